// Package batch compresses many inputs with one Settings value.
//
// A Coordinator validates the submission, resolves every output path up
// front and starts one coordinator goroutine per batch. That goroutine is the
// only writer of the batch Result: workers run jobs through an
// encoding.Runner and hand every runner event back over a single channel, so
// a job's progress always precedes its terminal state. Updates fan out to
// subscribers through an events.Bus.
package batch
