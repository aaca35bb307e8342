// Package logging builds the slog logger for one mkvshrink run.
//
// Records go to the console and to mkvshrink.log in either a compact
// one-line console format or JSON. Context helpers tag lines with batch ids,
// job ids and stages, and the progress sampler keeps per-job progress to
// one line per bucket.
package logging
