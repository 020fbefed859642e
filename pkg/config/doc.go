// Package config provides configuration management for Wiretap.
//
// This package handles loading, validating, and managing configuration from
// YAML files with environment variable overrides. It provides a type-safe
// configuration system with comprehensive validation and sensible defaults.
//
// # Configuration Loading
//
// Configuration can be loaded in two ways:
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("config.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("config.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention WIRETAP_SECTION_FIELD.
// For example: WIRETAP_SERVER_LISTEN_ADDRESS, WIRETAP_PROXIES_TESTING_MODE.
// The one exception is LICENSING_API_URL (§6), which has no WIRETAP_ prefix
// because it is a passthrough contract owned by an external collaborator.
package config
