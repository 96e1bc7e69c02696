// Package config loads runtime configuration from multiple sources (YAML files,
// environment variables, CLI flags) with precedence: CLI flags > Environment
// variables > YAML config > Defaults. It exposes strongly typed settings to the
// rest of the application, including the storage backend selection consumed by
// the download mount.
package config
