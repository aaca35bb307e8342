// Package history persists finished batch entries in SQLite.
//
// Each terminal entry of a batch becomes one row carrying the input and
// output paths, the outcome, sizes and elapsed time. The table is pruned to
// the configured maximum after every write so the database stays small.
// Writers serialize on a file lock next to the database; readers do not.
package history
