// Package config provides configuration loading and validation for
// cryptokit applications.
//
// It uses Viper to load a YAML configuration file and environment
// variables, with optional .env support via godotenv. The resulting
// Config seeds a provider store: default module search locations,
// pre-registered loadable providers, fallback marks and eager
// activation.
//
// # Usage
//
//	var cfg config.Config
//	if err := config.Load(&cfg); err != nil { ... }
//	rt, err := config.Build(ctx, &cfg, builtins)
//
// Environment variables override file values using the CRYPTOKIT_
// prefix with underscore-separated paths (e.g.
// CRYPTOKIT_REGISTRY_MODULE_PATH).
package config
