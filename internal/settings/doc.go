// Package settings defines the immutable compression settings value used by
// every job, the built-in and user presets, and the plain key/value and TOML
// forms the configuration layer reads and writes.
//
// Settings are validated once in New. Downstream components (the ffmpeg
// command builder, job runner, and batch coordinator) trust the invariants and
// never re-check numeric ranges. Adjusting settings means deriving a new value
// with Settings.With; an existing value is never mutated.
package settings
