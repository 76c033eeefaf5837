// Package database provides the SQLite metadata store for media-cache.
//
// It holds:
//   - Asset records written by the indexer and replaced by metadata analysis
//   - Analysis results keyed by task id
//   - A small settings table (last scan time)
//
// The database uses WAL mode for concurrent reads and creates or migrates its
// schema on open. Database implements cache.MetadataSource, so the disk vault
// can bootstrap from it, and analysis.ResultStore.
package database
