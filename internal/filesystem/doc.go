// Package filesystem provides the file primitives shared by the on-disk cache
// tiers: reads that retry NFS stale-handle errors, and atomic
// write-then-rename publishing so a crash never leaves a half-written file.
//
// Metrics are recorded through an [Observer] installed at startup, which keeps
// this package free of a dependency on the metrics package.
package filesystem
