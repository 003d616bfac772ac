package agents

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Profile tunes one agent's inference parameters.
type Profile struct {
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// Profiles maps agent names (topics, content, improve, image) to their
// inference profiles.
type Profiles map[string]Profile

// DefaultProfiles returns the built-in agent profiles.
func DefaultProfiles() Profiles {
	return Profiles{
		"topics":  {Temperature: 0.7, MaxTokens: 4000},
		"content": {Temperature: 0.7, MaxTokens: 4000},
		"improve": {Temperature: 0.7, MaxTokens: 4000},
		"image":   {Temperature: 0.7, MaxTokens: 4000},
	}
}

// LoadProfiles reads YAML agent-profile overrides from path and merges them
// over the defaults. Unknown agent names are rejected so typos don't
// silently fall back to defaults.
func LoadProfiles(path string) (Profiles, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profiles file: %w", err)
	}

	var overrides Profiles
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("failed to parse profiles file: %w", err)
	}

	profiles := DefaultProfiles()
	for name, override := range overrides {
		base, ok := profiles[name]
		if !ok {
			return nil, fmt.Errorf("unknown agent profile %q", name)
		}
		if override.Temperature != 0 {
			base.Temperature = override.Temperature
		}
		if override.MaxTokens != 0 {
			base.MaxTokens = override.MaxTokens
		}
		profiles[name] = base
	}

	return profiles, nil
}

// For returns the profile for the named agent, falling back to the
// built-in default when missing.
func (p Profiles) For(name string) Profile {
	if profile, ok := p[name]; ok {
		return profile
	}
	return DefaultProfiles()[name]
}
