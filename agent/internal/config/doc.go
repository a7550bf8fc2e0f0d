// Package config loads the agent configuration file (config.yaml).
//
// Load(path) reads the `agent:` section, applies defaults (30s scrape,
// 15m heartbeat, 1000 buffered readings, daily certificate check) and then
// validates required fields and enums. Secrets are never stored inline:
// AuthConfig resolves keys, tokens and passwords from the environment
// variables named by its *_env fields.
package config
