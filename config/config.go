package config

import (
	"fmt"

	"github.com/kbukum/cryptokit/logger"
	"github.com/kbukum/cryptokit/validation"
)

// ProviderConfig declares one provider to register at startup.
type ProviderConfig struct {
	// Name identifies the provider in the store.
	Name string `yaml:"name" mapstructure:"name" validate:"required"`
	// Locations are per-provider module search directories, consulted
	// before the store-wide module path.
	Locations []string `yaml:"locations" mapstructure:"locations"`
	// Fallback marks the provider for implicit activation when a
	// caller iterates active providers and none exist yet.
	Fallback bool `yaml:"fallback" mapstructure:"fallback"`
	// Activate requests eager activation during Build.
	Activate bool `yaml:"activate" mapstructure:"activate"`
}

// RegistryConfig configures the provider store.
type RegistryConfig struct {
	// ModulePath lists store-wide directories searched for loadable
	// provider modules.
	ModulePath []string `yaml:"module_path" mapstructure:"module_path"`
	// Providers are registered with the store during Build, in order.
	Providers []ProviderConfig `yaml:"providers" mapstructure:"providers"`
}

// Config is the root cryptokit configuration.
type Config struct {
	Logging  logger.Config  `yaml:"logging" mapstructure:"logging"`
	Registry RegistryConfig `yaml:"registry" mapstructure:"registry"`
}

// ApplyDefaults applies default values to the configuration.
func (c *Config) ApplyDefaults() {
	c.Logging.ApplyDefaults()
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}

	seen := make(map[string]bool, len(c.Registry.Providers))
	for i, p := range c.Registry.Providers {
		if err := validation.Validate(&p); err != nil {
			return fmt.Errorf("registry.providers[%d]: %w", i, err)
		}
		if seen[p.Name] {
			return fmt.Errorf("registry.providers[%d]: duplicate provider name %q", i, p.Name)
		}
		seen[p.Name] = true
		if p.Fallback && p.Activate {
			return fmt.Errorf("registry.providers[%d] (%s): fallback and activate are mutually exclusive", i, p.Name)
		}
	}
	return nil
}
