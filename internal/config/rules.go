package config

import (
	"os"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/omniagentpay/payguard/internal/domain"
)

// RulesFile is the YAML document that seeds the guard registry.
type RulesFile struct {
	Guards []RuleEntry `yaml:"guards"`
}

// RuleEntry is one guard in a rules file. Enabled defaults to true.
type RuleEntry struct {
	ID      string            `yaml:"id"`
	Name    string            `yaml:"name"`
	Enabled *bool             `yaml:"enabled"`
	Kind    domain.GuardKind  `yaml:"kind"`
	Config  domain.RuleConfig `yaml:"config"`
}

// LoadRules reads guard rules from a YAML file.
func LoadRules(path string) ([]domain.GuardRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read rules file")
	}
	return ParseRules(data)
}

// ParseRules decodes a rules document. Config validity is not checked here;
// callers run the evaluator's validation.
func ParseRules(data []byte) ([]domain.GuardRule, error) {
	var file RulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrap(err, "failed to parse rules file")
	}

	seen := make(map[string]bool, len(file.Guards))
	rules := make([]domain.GuardRule, 0, len(file.Guards))
	for i, e := range file.Guards {
		if e.ID == "" {
			return nil, errors.Newf("guard %d: id is required", i)
		}
		if seen[e.ID] {
			return nil, errors.Newf("guard %d: duplicate id %q", i, e.ID)
		}
		seen[e.ID] = true

		name := e.Name
		if name == "" {
			name = e.ID
		}
		enabled := true
		if e.Enabled != nil {
			enabled = *e.Enabled
		}
		cfg := e.Config
		if cfg == nil {
			cfg = domain.RuleConfig{}
		}
		rules = append(rules, domain.GuardRule{
			ID:      e.ID,
			Name:    name,
			Enabled: enabled,
			Kind:    e.Kind,
			Config:  cfg,
		})
	}
	return rules, nil
}
