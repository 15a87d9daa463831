package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want Level
	}{
		{"trace", LevelTrace},
		{"debug", LevelDebug},
		{"info", LevelInfo},
		{"INFO", LevelInfo},
		{" warn ", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"err", LevelError},
	} {
		got, err := ParseLevel(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	_, err := ParseLevel("verbose")
	require.Error(t, err)
}

func TestParseSpec(t *testing.T) {
	spec, err := ParseSpec("")
	require.NoError(t, err)
	assert.Equal(t, LevelInfo, spec.BaseLevel)
	assert.Empty(t, spec.Components)

	spec, err = ParseSpec("warn,nic=debug,xsk=trace")
	require.NoError(t, err)
	assert.Equal(t, LevelWarn, spec.BaseLevel)
	assert.Equal(t, LevelDebug, spec.LevelFor("nic"))
	assert.Equal(t, LevelTrace, spec.LevelFor("xsk"))
	assert.Equal(t, LevelWarn, spec.LevelFor("redirect"))
}

func TestParseSpecErrors(t *testing.T) {
	for _, in := range []string{
		"info,debug",      // second bare level
		"nic=chatty",      // bad component level
		"=debug",          // empty component
		"bogus",           // bad base level
		"info,nic=bogus",  // bad override
	} {
		_, err := ParseSpec(in)
		assert.Error(t, err, in)
	}
}

func TestSpecRoundTrips(t *testing.T) {
	spec, err := ParseSpec("debug,nic=trace")
	require.NoError(t, err)

	again, err := ParseSpec(spec.String())
	require.NoError(t, err)
	assert.Equal(t, spec.BaseLevel, again.BaseLevel)
	assert.Equal(t, spec.Components, again.Components)
}

func TestComponentFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{
		CLISpec: "warn,nic=debug",
		Output:  &buf,
	})
	require.NoError(t, err)

	// Base level warn suppresses info from unlisted components.
	logger.With("component", "xsk").Info("hidden")
	// The nic override lets debug through.
	logger.With("component", "nic").Debug("visible")
	logger.Warn("also visible")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible")
	assert.Contains(t, out, "also visible")
}

func TestSpecPrecedence(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{
		CLISpec:    "error",
		EnvSpec:    "debug",
		ConfigSpec: "trace",
		Output:     &buf,
	})
	require.NoError(t, err)

	logger.Warn("dropped by cli spec")
	assert.Zero(t, buf.Len())
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Format: FormatJSON, Output: &buf})
	require.NoError(t, err)

	logger.Info("structured")
	line := strings.TrimSpace(buf.String())
	assert.True(t, strings.HasPrefix(line, "{"), line)
	assert.Contains(t, line, `"msg":"structured"`)
}
