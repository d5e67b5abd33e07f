package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// TierConfig describes one reseller plan. The first tier in a list is the
// lowest and is used when a caller's plan is missing or unknown.
type TierConfig struct {
	Name        string   `yaml:"name" json:"name"`
	MaxDuration Duration `yaml:"max_duration" json:"max_duration"`
	AllowMerge  bool     `yaml:"allow_merge" json:"allow_merge"`
}

type tiersFile struct {
	Tiers []TierConfig `yaml:"tiers"`
}

// DefaultTiers returns the built-in plan table.
func DefaultTiers() []TierConfig {
	return []TierConfig{
		{Name: "BASIC", MaxDuration: Duration(10 * time.Minute), AllowMerge: false},
		{Name: "PRO", MaxDuration: Duration(time.Hour), AllowMerge: true},
		{Name: "ULTRA", MaxDuration: Duration(time.Hour), AllowMerge: true},
		{Name: "MEGA", MaxDuration: Duration(time.Hour), AllowMerge: true},
	}
}

// LoadTiersFile reads a YAML plan table:
//
//	tiers:
//	  - name: BASIC
//	    max_duration: 10m
//	    allow_merge: false
func LoadTiersFile(path string) ([]TierConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return ParseTiers(data)
}

// ParseTiers decodes and validates a YAML plan table.
func ParseTiers(data []byte) ([]TierConfig, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f tiersFile
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode tiers: %w", err)
	}
	if len(f.Tiers) == 0 {
		return nil, fmt.Errorf("tiers: at least one tier is required")
	}

	seen := make(map[string]struct{}, len(f.Tiers))
	for i := range f.Tiers {
		t := &f.Tiers[i]
		t.Name = strings.ToUpper(strings.TrimSpace(t.Name))
		if t.Name == "" {
			return nil, fmt.Errorf("tiers[%d].name: must not be empty", i)
		}
		if _, dup := seen[t.Name]; dup {
			return nil, fmt.Errorf("tiers[%d].name: duplicate tier %q", i, t.Name)
		}
		seen[t.Name] = struct{}{}
		if t.MaxDuration <= 0 {
			return nil, fmt.Errorf("tiers[%d].max_duration: must be positive", i)
		}
	}
	return f.Tiers, nil
}
