// Package preflight provides readiness checks for the encoder binaries and
// the filesystem paths a batch writes to.
//
// These checks run in two contexts:
//   - The compress command calls CheckOutputs before submitting a batch and
//     warns when the estimated output will not fit on disk.
//   - The check command uses RunAll and CheckSystemDeps to display health.
package preflight
