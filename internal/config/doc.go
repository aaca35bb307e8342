// Package config loads, normalizes, and validates mkvshrink configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files strictly so misspelled keys fail loudly, and
// turns the [compression] table into validated settings. The Config type
// centralizes every knob the CLI needs: encoder location, batch policy,
// output validation, history and notifications.
//
// Always obtain settings through this package so downstream code receives
// absolute paths, canonical log formats, and clear validation errors.
package config
