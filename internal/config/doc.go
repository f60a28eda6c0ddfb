// Package config provides configuration management for the FocusDeck assistant.
//
// The package uses Viper to load configuration from YAML files and environment
// variables. The configuration file lives at ~/.focusdeck/config.yaml and is
// created with defaults on first use.
//
// All values can be overridden using environment variables with the FOCUSDECK_
// prefix, nested fields separated by underscores:
//
//   - FOCUSDECK_PREFERENCES_PRIMARY_PROVIDER=gemini
//   - FOCUSDECK_PROVIDERS_GEMINI_API_KEY=...
//   - FOCUSDECK_LOGGING_LEVEL=debug
package config
