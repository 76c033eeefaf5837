// Package indexer keeps the metadata store in step with the library on disk.
//
// Each scan walks the library, upserts asset records into the database in
// batches, removes records for files that disappeared, bootstraps the disk
// vault after the first successful scan and queues metadata analysis for
// assets that are new or whose content changed.
//
// Scans run:
//   - Once on Start, in the background
//   - Periodically at the configured interval
//   - After filesystem changes reported by fsnotify, debounced
//   - On demand via TriggerIndex
//
// Hidden files and directories (prefixed with '.') are excluded.
package indexer
