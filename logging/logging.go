package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// componentKey is the attribute key that names the emitting component.
const componentKey = "component"

// EnvVar overrides the configured log spec when set.
const EnvVar = "XSKNIC_LOG"

// Format selects the log output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat parses "text" or "json"; empty means text.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text", "":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	default:
		return FormatText, fmt.Errorf("unknown log format: %q", s)
	}
}

// filteringHandler applies per-component levels from a Spec. The
// component is picked up from the "component" attribute as loggers are
// derived with With.
type filteringHandler struct {
	inner     slog.Handler
	spec      *Spec
	component string
}

func (h *filteringHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.spec.LevelFor(h.component).ToSlog()
}

func (h *filteringHandler) Handle(ctx context.Context, r slog.Record) error {
	if !h.Enabled(ctx, r.Level) {
		return nil
	}
	return h.inner.Handle(ctx, r)
}

func (h *filteringHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := &filteringHandler{
		inner:     h.inner.WithAttrs(attrs),
		spec:      h.spec,
		component: h.component,
	}
	for _, attr := range attrs {
		if attr.Key == componentKey {
			next.component = attr.Value.String()
			break
		}
	}
	return next
}

func (h *filteringHandler) WithGroup(name string) slog.Handler {
	return &filteringHandler{
		inner:     h.inner.WithGroup(name),
		spec:      h.spec,
		component: h.component,
	}
}

// Options configures New.
type Options struct {
	// EnvSpec, CLISpec and ConfigSpec are the three spec sources;
	// CLISpec wins over EnvSpec, which wins over ConfigSpec.
	EnvSpec    string
	CLISpec    string
	ConfigSpec string
	Format     Format
	// Output defaults to os.Stderr.
	Output io.Writer
}

// New builds a component-filtered logger.
func New(opts Options) (*slog.Logger, error) {
	specStr := ""
	switch {
	case opts.CLISpec != "":
		specStr = opts.CLISpec
	case opts.EnvSpec != "":
		specStr = opts.EnvSpec
	case opts.ConfigSpec != "":
		specStr = opts.ConfigSpec
	}

	spec, err := ParseSpec(specStr)
	if err != nil {
		return nil, fmt.Errorf("invalid log spec: %w", err)
	}

	output := opts.Output
	if output == nil {
		output = os.Stderr
	}

	// The inner handler passes everything; the filtering layer is the
	// only gate.
	handlerOpts := &slog.HandlerOptions{Level: LevelTrace.ToSlog()}
	var inner slog.Handler
	switch opts.Format {
	case FormatJSON:
		inner = slog.NewJSONHandler(output, handlerOpts)
	default:
		inner = slog.NewTextHandler(output, handlerOpts)
	}

	return slog.New(&filteringHandler{inner: inner, spec: &spec}), nil
}

// FromEnv builds a logger from the XSKNIC_LOG environment variable.
func FromEnv() (*slog.Logger, error) {
	return New(Options{EnvSpec: os.Getenv(EnvVar)})
}
