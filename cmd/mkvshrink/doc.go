// Package main hosts the mkvshrink CLI entrypoint and command graph.
//
// The Cobra-based command tree turns terminal invocations into batch
// submissions, preset and history maintenance, media inspection and
// configuration scaffolding. It centralizes configuration resolution and
// structured logging setup so subcommands can focus on user experience
// instead of wiring.
//
// Keep this package lean: add new functionality to the internal packages
// first, then surface it through dedicated commands or flags here.
package main
