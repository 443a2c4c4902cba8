package policy

import (
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v2"
)

type (
	Config struct {
		Default *RuleConfig  `yaml:"default"`
		Rules   []RuleConfig `yaml:"rules,flow"`
	}

	// RuleConfig fields left unset are inherited from the enclosing rule.
	RuleConfig struct {
		Prefix    string         `yaml:"prefix"`
		Algorithm *string        `yaml:"algorithm"`
		Limit     *float64       `yaml:"limit"`
		Window    *time.Duration `yaml:"window"`
		Mode      *string        `yaml:"mode"`
		Rules     []RuleConfig   `yaml:"rules,flow"`
	}
)

func Parse(configDataSource io.Reader) (*Table, error) {
	var c struct {
		Policies Config `yaml:"policies"`
	}

	if err := yaml.NewDecoder(configDataSource).Decode(&c); err != nil {
		return nil, fmt.Errorf("failed to decode policy config: %w", err)
	}

	return NewTable(c.Policies)
}
