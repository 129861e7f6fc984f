// Package config defines the engine configuration and its loader.
//
// Configuration is layered: built-in defaults, then an optional YAML file,
// then environment variable overrides. Environment keys are derived from the
// struct env tags, prefixed with the loader's prefix (COAGENT by default):
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("coagent.yaml").
//	    WithEnvPrefix("COAGENT").
//	    Load()
package config
