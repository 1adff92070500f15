package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/haleterminal/gator/plugin"
)

// PluginConfig is the on-disk shape of a gator config file: a set of
// compiled defaults per stage kind, overridden per named environment.
type PluginConfig struct {
	// Defaults maps a stage kind ("volume", "distro", ...) to its
	// default plugin settings block.
	Defaults map[string]yaml.Node `yaml:"defaults"`

	// Environments maps an environment name to the {kind: pluginName}
	// selection and any per-environment override blocks.
	Environments map[string]EnvironmentConfig `yaml:"environments"`
}

// EnvironmentConfig is one named environment's plugin selection and
// overrides.
type EnvironmentConfig struct {
	// Plugins maps stage kind to the plugin name to use in this
	// environment, e.g. {"volume": "linux", "distro": "debian"}.
	Plugins map[string]string `yaml:"plugins"`

	// Overrides maps stage kind to a YAML block merged onto that kind's
	// Defaults entry for this environment only.
	Overrides map[string]yaml.Node `yaml:"overrides"`

	Tags []Tag `yaml:"tags"`
}

// Load reads and parses a gator config file from path.
func Load(path string) (*PluginConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var pc PluginConfig
	if err := yaml.Unmarshal(data, &pc); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &pc, nil
}

// StageConfig returns the merged plugin.Config for kind in the named
// environment: the compiled default block with that environment's
// override block merged on top. A missing default or override for kind
// yields an empty Config rather than an error -- not every stage needs
// configuration.
func (pc *PluginConfig) StageConfig(environment, kind string) (plugin.Config, error) {
	env, ok := pc.Environments[environment]
	if !ok {
		return plugin.Config{}, fmt.Errorf("config: unknown environment %q", environment)
	}

	merged := pc.Defaults[kind]
	if override, ok := env.Overrides[kind]; ok {
		if err := mergeYAMLNodes(&merged, &override); err != nil {
			return plugin.Config{}, fmt.Errorf("config: merge %s override for %s: %w", kind, environment, err)
		}
	}
	return plugin.Config{Raw: merged}, nil
}

// PluginSelection returns the {kind: pluginName} map for environment,
// suitable for plugin.Registry.ResolveAll.
func (pc *PluginConfig) PluginSelection(environment string) (map[string]string, error) {
	env, ok := pc.Environments[environment]
	if !ok {
		return nil, fmt.Errorf("config: unknown environment %q", environment)
	}
	return env.Plugins, nil
}

// mergeYAMLNodes merges override onto base in place: scalar and sequence
// nodes in override replace base outright, mapping nodes merge key by
// key, recursing into shared keys.
func mergeYAMLNodes(base, override *yaml.Node) error {
	if base.Kind == 0 {
		*base = *override
		return nil
	}
	if base.Kind != yaml.MappingNode || override.Kind != yaml.MappingNode {
		*base = *override
		return nil
	}

	for i := 0; i < len(override.Content); i += 2 {
		key := override.Content[i]
		val := override.Content[i+1]

		found := false
		for j := 0; j < len(base.Content); j += 2 {
			if base.Content[j].Value == key.Value {
				if err := mergeYAMLNodes(base.Content[j+1], val); err != nil {
					return err
				}
				found = true
				break
			}
		}
		if !found {
			base.Content = append(base.Content, key, val)
		}
	}
	return nil
}
