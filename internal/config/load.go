package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Usage is the positional argument synopsis understood by ParseArgs.
const Usage = `[workers] [method] [interlines] [forcing] [termination] [prec/iter]

  - workers:     number of worker goroutines per rank (1 .. 1024)
  - method:      1 = Gauss-Seidel, 2 = Jacobi
  - interlines:  number of interlines (0 .. 10240), matrix size = interlines*8 + 9
  - forcing:     1 = f(x,y) = 0, 2 = f(x,y) = 2 * pi^2 * sin(pi * x) * sin(pi * y)
  - termination: 1 = sufficient precision, 2 = number of iterations
  - prec/iter:   precision 1e-4 .. 1e-20, or iterations 1 .. 200000

Example: 1 2 100 1 2 100`

// ParseArgs builds a validated Config from the six positional arguments.
func ParseArgs(args []string) (Config, error) {
	if len(args) != 6 {
		return Config{}, &ConfigurationError{"args", len(args), "expected 6 positional arguments"}
	}

	var c Config
	var err error
	if c.Workers, err = atoi("workers", args[0]); err != nil {
		return Config{}, err
	}
	if c.Method, err = ParseMethod(args[1]); err != nil {
		return Config{}, err
	}
	if c.Interlines, err = atoi("interlines", args[2]); err != nil {
		return Config{}, err
	}
	if c.Forcing, err = ParseForcing(args[3]); err != nil {
		return Config{}, err
	}
	if c.Termination, err = ParseTermination(args[4]); err != nil {
		return Config{}, err
	}
	if c.Termination == TermPrecision {
		p, perr := strconv.ParseFloat(args[5], 64)
		if perr != nil {
			return Config{}, &ConfigurationError{"precision", args[5], "not a number"}
		}
		c.Precision = p
	} else if c.Iterations, err = atoi("iterations", args[5]); err != nil {
		return Config{}, err
	}

	c = c.Normalize()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Load reads a YAML configuration file. Fields missing from the file keep
// their Default values.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	return Decode(raw)
}

// Decode parses a YAML document into a validated Config.
func Decode(raw []byte) (Config, error) {
	c := Default()
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	c = c.Normalize()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// FromEnv overlays PARTDIFF_* variables on Default. getenv has the
// signature of os.Getenv so tests can supply a map lookup.
func FromEnv(getenv func(string) string) (Config, error) {
	c := Default()
	var err error
	if v := getenv("PARTDIFF_WORKERS"); v != "" {
		if c.Workers, err = atoi("workers", v); err != nil {
			return Config{}, err
		}
	}
	if v := getenv("PARTDIFF_METHOD"); v != "" {
		if c.Method, err = ParseMethod(v); err != nil {
			return Config{}, err
		}
	}
	if v := getenv("PARTDIFF_INTERLINES"); v != "" {
		if c.Interlines, err = atoi("interlines", v); err != nil {
			return Config{}, err
		}
	}
	if v := getenv("PARTDIFF_FORCING"); v != "" {
		if c.Forcing, err = ParseForcing(v); err != nil {
			return Config{}, err
		}
	}
	if v := getenv("PARTDIFF_TERMINATION"); v != "" {
		if c.Termination, err = ParseTermination(v); err != nil {
			return Config{}, err
		}
	}
	if v := getenv("PARTDIFF_PRECISION"); v != "" {
		p, perr := strconv.ParseFloat(v, 64)
		if perr != nil {
			return Config{}, &ConfigurationError{"precision", v, "not a number"}
		}
		c.Precision = p
	}
	if v := getenv("PARTDIFF_ITERATIONS"); v != "" {
		if c.Iterations, err = atoi("iterations", v); err != nil {
			return Config{}, err
		}
	}

	c = c.Normalize()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func atoi(field, s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, &ConfigurationError{field, s, "not an integer"}
	}
	return v, nil
}
