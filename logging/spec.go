// Package logging configures structured logging for the shim. Verbosity
// is driven by a spec string with a base level and per-component
// overrides, e.g. "info,nic=debug" or "warn,redirect=trace".
package logging

import (
	"fmt"
	"log/slog"
	"strings"
)

// Level is a log level. Values coincide with slog.Level for debug
// through error; trace sits below debug.
type Level int

const (
	LevelTrace Level = -8
	LevelDebug Level = -4
	LevelInfo  Level = 0
	LevelWarn  Level = 4
	LevelError Level = 8
)

// ParseLevel parses trace, debug, info, warn or error, case-insensitive.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error", "err":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %q", s)
	}
}

// ToSlog converts the level to its slog equivalent.
func (l Level) ToSlog() slog.Level {
	return slog.Level(l)
}

func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "trace"
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("Level(%d)", l)
	}
}

// Spec is a parsed verbosity specification: a base level plus optional
// per-component levels. Component names are the "component" attribute
// values the packages log under: nic, redirect, xsk, cli.
type Spec struct {
	BaseLevel  Level
	Components map[string]Level
}

// ParseSpec parses "<base-level>[,<component>=<level>]...". The empty
// string yields info with no overrides.
func ParseSpec(s string) (Spec, error) {
	spec := Spec{
		BaseLevel:  LevelInfo,
		Components: make(map[string]Level),
	}

	s = strings.TrimSpace(s)
	if s == "" {
		return spec, nil
	}

	for i, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if idx := strings.Index(part, "="); idx != -1 {
			component := strings.TrimSpace(part[:idx])
			if component == "" {
				return spec, fmt.Errorf("empty component name in %q", part)
			}
			level, err := ParseLevel(part[idx+1:])
			if err != nil {
				return spec, fmt.Errorf("invalid level for component %q: %w", component, err)
			}
			spec.Components[component] = level
			continue
		}

		// A bare level sets the base and must come first.
		if i != 0 {
			return spec, fmt.Errorf("base level %q must be first in spec", part)
		}
		level, err := ParseLevel(part)
		if err != nil {
			return spec, err
		}
		spec.BaseLevel = level
	}

	return spec, nil
}

// LevelFor returns the effective level for a component: its override if
// one is configured, the base level otherwise.
func (s *Spec) LevelFor(component string) Level {
	if level, ok := s.Components[component]; ok {
		return level
	}
	return s.BaseLevel
}

// String renders the spec back into parseable form.
func (s *Spec) String() string {
	parts := []string{s.BaseLevel.String()}
	for component, level := range s.Components {
		parts = append(parts, fmt.Sprintf("%s=%s", component, level.String()))
	}
	return strings.Join(parts, ",")
}
