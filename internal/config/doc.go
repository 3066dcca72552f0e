// Package config loads, normalizes, and validates conway-token-lab settings.
//
// It supplies defaults for a local development chain, reads TOML files, and
// honours environment overrides for secrets such as CONWAY_PRIVATE_KEY so keys
// never need to live in a config file. Commands obtain chain endpoints, probe
// bounds, cache DSNs and logging options through this package.
package config
