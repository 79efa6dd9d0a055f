// Package config defines the validated solver configuration shared by every
// rank and every worker of a solve. A Config is immutable once validated and
// is safe to share across goroutines.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Bounds accepted by Validate.
const (
	MaxWorkers    = 1024
	MaxInterlines = 10240
	MaxIterations = 200000
	MinPrecision  = 1e-20
	MaxPrecision  = 1e-4
)

// ErrConfiguration is matched by every *ConfigurationError via errors.Is.
var ErrConfiguration = errors.New("invalid configuration")

// ConfigurationError describes a single rejected configuration value.
// The solve must not start when one is returned.
type ConfigurationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("config %s=%v: %s", e.Field, e.Value, e.Reason)
}

// Is reports whether target is ErrConfiguration.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// Method selects the relaxation scheme.
type Method int

const (
	GaussSeidel Method = 1
	Jacobi      Method = 2
)

// Forcing selects the right-hand side of the discretized equation.
type Forcing int

const (
	// ForcingZero solves f(x,y) = 0 with linearly interpolated borders.
	ForcingZero Forcing = 1
	// ForcingSinusoidal solves f(x,y) = 2*pi^2*sin(pi*x)*sin(pi*y) with zero borders.
	ForcingSinusoidal Forcing = 2
)

// Termination selects the stopping predicate of the sweep loop.
type Termination int

const (
	TermPrecision Termination = 1
	TermIteration Termination = 2
)

// Config is the full description of one solve.
type Config struct {
	Workers     int         `yaml:"workers" json:"workers"`
	Method      Method      `yaml:"method" json:"method"`
	Interlines  int         `yaml:"interlines" json:"interlines"`
	Forcing     Forcing     `yaml:"forcing" json:"forcing"`
	Termination Termination `yaml:"termination" json:"termination"`
	Precision   float64     `yaml:"precision" json:"precision"`
	Iterations  int         `yaml:"iterations" json:"iterations"`
}

// Default returns a small Jacobi configuration that runs a fixed number of sweeps.
func Default() Config {
	return Config{
		Workers:     1,
		Method:      Jacobi,
		Interlines:  0,
		Forcing:     ForcingZero,
		Termination: TermIteration,
		Iterations:  100,
	}
}

// N is the number of spaces between grid lines; the grid has N+1 lines.
func (c Config) N() int {
	return c.Interlines*8 + 8
}

// H is the distance between two grid lines.
func (c Config) H() float64 {
	return 1.0 / float64(c.N())
}

// Matrices is the number of buffers the method needs.
func (c Config) Matrices() int {
	if c.Method == Jacobi {
		return 2
	}
	return 1
}

// Normalize fills the field that the termination mode does not use:
// precision mode iterates up to MaxIterations, iteration mode has no precision.
func (c Config) Normalize() Config {
	switch c.Termination {
	case TermPrecision:
		c.Iterations = MaxIterations
	case TermIteration:
		c.Precision = 0
	}
	return c
}

// Validate checks every field against its allowed range.
func (c Config) Validate() error {
	if c.Workers < 1 || c.Workers > MaxWorkers {
		return &ConfigurationError{"workers", c.Workers, fmt.Sprintf("must be in 1..%d", MaxWorkers)}
	}
	if c.Method != GaussSeidel && c.Method != Jacobi {
		return &ConfigurationError{"method", int(c.Method), "unknown method"}
	}
	if c.Interlines < 0 || c.Interlines > MaxInterlines {
		return &ConfigurationError{"interlines", c.Interlines, fmt.Sprintf("must be in 0..%d", MaxInterlines)}
	}
	if c.Forcing != ForcingZero && c.Forcing != ForcingSinusoidal {
		return &ConfigurationError{"forcing", int(c.Forcing), "unknown forcing function"}
	}
	switch c.Termination {
	case TermPrecision:
		if !(c.Precision >= MinPrecision && c.Precision <= MaxPrecision) {
			return &ConfigurationError{"precision", c.Precision, fmt.Sprintf("must be in %g..%g", MinPrecision, MaxPrecision)}
		}
	case TermIteration:
		if c.Iterations < 1 || c.Iterations > MaxIterations {
			return &ConfigurationError{"iterations", c.Iterations, fmt.Sprintf("must be in 1..%d", MaxIterations)}
		}
	default:
		return &ConfigurationError{"termination", int(c.Termination), "unknown termination mode"}
	}
	return nil
}

// ValidateRanks checks that size ranks can each own at least one relaxable row.
func (c Config) ValidateRanks(size int) error {
	if size < 1 {
		return &ConfigurationError{"ranks", size, "must be at least 1"}
	}
	if rows := c.N() - 1; size > rows {
		return &ConfigurationError{"ranks", size, fmt.Sprintf("exceeds the %d relaxable rows", rows)}
	}
	return nil
}

func (m Method) String() string {
	switch m {
	case GaussSeidel:
		return "gauss-seidel"
	case Jacobi:
		return "jacobi"
	}
	return "method(" + strconv.Itoa(int(m)) + ")"
}

func (f Forcing) String() string {
	switch f {
	case ForcingZero:
		return "zero"
	case ForcingSinusoidal:
		return "sinusoidal"
	}
	return "forcing(" + strconv.Itoa(int(f)) + ")"
}

func (t Termination) String() string {
	switch t {
	case TermPrecision:
		return "precision"
	case TermIteration:
		return "iterations"
	}
	return "termination(" + strconv.Itoa(int(t)) + ")"
}

// ParseMethod accepts the numeric code or the name of a method.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "gauss-seidel", "gaussseidel", "gs":
		return GaussSeidel, nil
	case "2", "jacobi":
		return Jacobi, nil
	}
	return 0, &ConfigurationError{"method", s, "expected 1 (gauss-seidel) or 2 (jacobi)"}
}

// ParseForcing accepts the numeric code or the name of a forcing function.
func ParseForcing(s string) (Forcing, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "zero", "f0":
		return ForcingZero, nil
	case "2", "sinusoidal", "sin", "fpisin":
		return ForcingSinusoidal, nil
	}
	return 0, &ConfigurationError{"forcing", s, "expected 1 (zero) or 2 (sinusoidal)"}
}

// ParseTermination accepts the numeric code or the name of a termination mode.
func ParseTermination(s string) (Termination, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "precision", "prec":
		return TermPrecision, nil
	case "2", "iterations", "iteration", "iter":
		return TermIteration, nil
	}
	return 0, &ConfigurationError{"termination", s, "expected 1 (precision) or 2 (iterations)"}
}

func (m Method) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *Method) UnmarshalText(b []byte) (err error) {
	*m, err = ParseMethod(string(b))
	return err
}

func (m *Method) UnmarshalYAML(n *yaml.Node) (err error) {
	*m, err = ParseMethod(n.Value)
	return err
}

func (f Forcing) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

func (f *Forcing) UnmarshalText(b []byte) (err error) {
	*f, err = ParseForcing(string(b))
	return err
}

func (f *Forcing) UnmarshalYAML(n *yaml.Node) (err error) {
	*f, err = ParseForcing(n.Value)
	return err
}

func (t Termination) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *Termination) UnmarshalText(b []byte) (err error) {
	*t, err = ParseTermination(string(b))
	return err
}

func (t *Termination) UnmarshalYAML(n *yaml.Node) (err error) {
	*t, err = ParseTermination(n.Value)
	return err
}
