// Package services defines shared utilities consumed by the compression core
// and its external tool integrations.
//
// Key responsibilities:
//   - Context helpers that stamp batch IDs, job IDs, and stage names for
//     logging.
//   - Structured error markers plus the Wrap helper that classify failures
//     into the job failure kinds reported to users (invalid settings, encoder
//     unavailable, probe failure, encoding failure, cancelled).
//
// Tool-specific clients live in subpackages (see services/ffmpeg).
package services
