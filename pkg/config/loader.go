package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// EnvNumThreads overrides Config.Workers when set
const EnvNumThreads = "AMPCORE_NUM_THREADS"

// LoadConfig loads and parses a configuration file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	cfg, err := ParseConfigYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// LoadModel loads and parses a model file
func LoadModel(path string) (*ModelSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file %s: %w", path, err)
	}
	spec, err := ParseModelYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse model file %s: %w", path, err)
	}
	return spec, nil
}

// ApplyEnv applies environment overrides to cfg. getenv is usually os.Getenv.
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	if v := strings.TrimSpace(getenv(EnvNumThreads)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("%s must be a non-negative integer, got %q", EnvNumThreads, v)
		}
		cfg.Workers = n
	}
	return nil
}

// validateConfig performs validation on the configuration
func validateConfig(cfg *Config) error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("invalid log_level: %s (must be debug, info, warn, or error)", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return fmt.Errorf("invalid log_format: %s (must be json or text)", cfg.LogFormat)
	}
	if cfg.Workers < 0 {
		return fmt.Errorf("workers cannot be negative")
	}

	switch cfg.Store.Driver {
	case "memory":
	case "sqlite":
		if cfg.Store.Path == "" {
			return fmt.Errorf("store.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("invalid store.driver: %s (must be memory or sqlite)", cfg.Store.Driver)
	}

	if cfg.Fit.MaxEvaluations < 0 {
		return fmt.Errorf("fit.max_evaluations cannot be negative")
	}
	if _, ok := FitMethods[cfg.Fit.Method]; !ok {
		return fmt.Errorf("invalid fit.method: %s", cfg.Fit.Method)
	}
	return nil
}

// FitMethods lists the minimizers the daemon can run
var FitMethods = map[string]struct{}{
	"nelder-mead": {},
	"bfgs":        {},
	"lbfgs":       {},
}

// validateModelSpec checks names, references and expression shape
func validateModelSpec(spec *ModelSpec) error {
	if len(spec.Sums) == 0 {
		return fmt.Errorf("at least one coherent sum must be defined")
	}

	names := make(map[string]bool)
	for _, a := range spec.Amplitudes {
		if a.Name == "" {
			return fmt.Errorf("amplitude name cannot be empty")
		}
		if names[a.Name] {
			return fmt.Errorf("duplicate amplitude name: %s", a.Name)
		}
		names[a.Name] = true
		if a.Kind == "" {
			return fmt.Errorf("amplitude %s: kind is required", a.Name)
		}
		if a.Range != nil && (len(a.Range) != 2 || !(a.Range[1] > a.Range[0])) {
			return fmt.Errorf("amplitude %s: range must be [low, high] with high > low", a.Name)
		}
		if a.Bins < 0 {
			return fmt.Errorf("amplitude %s: bins cannot be negative", a.Name)
		}
	}

	for i, sum := range spec.Sums {
		for j := range sum {
			if err := validateExpr(&sum[j], names); err != nil {
				return fmt.Errorf("sums[%d][%d]: %w", i, j, err)
			}
		}
	}

	if spec.Parameters != nil {
		if err := spec.Parameters.Validate(); err != nil {
			return fmt.Errorf("parameters: %w", err)
		}
	}
	return nil
}

func validateExpr(e *ExprSpec, names map[string]bool) error {
	set := 0
	if e.Amp != "" {
		set++
		if !names[e.Amp] {
			return fmt.Errorf("unknown amplitude: %s", e.Amp)
		}
	}
	if e.Real != nil {
		set++
		if err := validateExpr(e.Real, names); err != nil {
			return fmt.Errorf("real: %w", err)
		}
	}
	if e.Imag != nil {
		set++
		if err := validateExpr(e.Imag, names); err != nil {
			return fmt.Errorf("imag: %w", err)
		}
	}
	if e.Product != nil {
		set++
		for i := range e.Product {
			if err := validateExpr(&e.Product[i], names); err != nil {
				return fmt.Errorf("product[%d]: %w", i, err)
			}
		}
	}
	if e.Sum != nil {
		set++
		for i := range e.Sum {
			if err := validateExpr(&e.Sum[i], names); err != nil {
				return fmt.Errorf("sum[%d]: %w", i, err)
			}
		}
	}
	if set != 1 {
		return fmt.Errorf("expression must set exactly one of amp, real, imag, product, sum")
	}
	return nil
}
