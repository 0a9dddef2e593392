// Package config loads, normalizes, and validates minutes configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads optional .env files, and honours
// environment fallbacks such as OPENROUTER_API_KEY and HF_TOKEN. The Config
// type centralizes every knob the daemon and CLI need so data directories,
// model service endpoints and LLM credentials are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
