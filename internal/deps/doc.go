// Package deps locates and validates the external ffmpeg and ffprobe
// binaries. The encoding core consumes only the Locator; the check command
// renders CheckBinaries.
package deps
