package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ParseConfigYAML parses a Config from YAML bytes on top of DefaultConfig and validates it.
func ParseConfigYAML(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config yaml: %w", err)
	}

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// ParseModelYAML parses a ModelSpec from YAML bytes and validates it.
// This is used for APIs where the model is provided as payload (not via filesystem).
func ParseModelYAML(data []byte) (*ModelSpec, error) {
	var spec ModelSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse model yaml: %w", err)
	}

	if err := validateModelSpec(&spec); err != nil {
		return nil, fmt.Errorf("invalid model: %w", err)
	}

	return &spec, nil
}

// ParseModelYAMLString parses a ModelSpec from a YAML string and validates it.
func ParseModelYAMLString(yamlText string) (*ModelSpec, error) {
	return ParseModelYAML([]byte(yamlText))
}

// ParseParameterPlanYAML parses a ParameterPlan from YAML bytes and validates it.
func ParseParameterPlanYAML(data []byte) (*ParameterPlan, error) {
	var plan ParameterPlan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("failed to parse parameter plan yaml: %w", err)
	}

	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("invalid parameter plan: %w", err)
	}

	return &plan, nil
}

// UnmarshalYAML accepts either a bare amplitude name or a mapping.
func (e *ExprSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*e = ExprSpec{Amp: node.Value}
		return nil
	}
	type plain ExprSpec
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*e = ExprSpec(p)
	return nil
}
