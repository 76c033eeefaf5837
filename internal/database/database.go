package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"media-cache/internal/logging"
	"media-cache/internal/metrics"
)

// Default timeout for database operations
const defaultTimeout = 5 * time.Second

var log = logging.For("Database")

// Database is the durable metadata store: asset records, analysis results
// and a small key/value settings table.
type Database struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
	now    func() time.Time
}

// New opens (creating if needed) the database at dbPath.
// dbPath is the full path to the database FILE and its parent directory must
// already exist and be writable. startup.LoadConfig() validates that.
func New(ctx context.Context, dbPath string) (*Database, error) {
	log.Info("path: %s", dbPath)

	if err := diagnoseDatabasePermissions(dbPath); err != nil {
		log.Warn("permission diagnostics: %v", err)
	}

	// busy_timeout helps prevent "database is locked" errors
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000&_temp_store=MEMORY&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	d := &Database{
		db:     db,
		dbPath: dbPath,
	}

	if err := d.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("failed to close database after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	log.Info("initialized at %s", dbPath)
	return d, nil
}

func (d *Database) initialize(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { recordQuery("initialize_schema", start, err) }()

	schema := `
	CREATE TABLE IF NOT EXISTS assets (
		id TEXT PRIMARY KEY,
		width INTEGER NOT NULL DEFAULT 0,
		height INTEGER NOT NULL DEFAULT 0,
		byte_size INTEGER NOT NULL DEFAULT 0,
		captured_at INTEGER NOT NULL DEFAULT 0,
		kind TEXT NOT NULL,
		palette TEXT NOT NULL DEFAULT '',
		updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		seen_at INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_assets_captured_at ON assets(captured_at);

	CREATE TABLE IF NOT EXISTS analysis_results (
		task_id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		asset_id TEXT NOT NULL,
		score REAL NOT NULL DEFAULT 0,
		grp TEXT NOT NULL DEFAULT '',
		completed_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_analysis_asset ON analysis_results(asset_id);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT
	);
	`

	if _, err = d.db.ExecContext(ctx, schema); err != nil {
		return err
	}

	return d.runMigrations(ctx)
}

// runMigrations applies schema changes to databases created by older builds.
func (d *Database) runMigrations(ctx context.Context) error {
	// seen_at (Unix nanoseconds) drives DeleteMissingAssets; updated_at only
	// moves on content change.
	var columnExists bool
	err := d.db.QueryRowContext(ctx, `
		SELECT COUNT(*) > 0
		FROM pragma_table_info('assets')
		WHERE name='seen_at'
	`).Scan(&columnExists)
	if err != nil {
		return fmt.Errorf("failed to check for seen_at column: %w", err)
	}

	if !columnExists {
		log.Info("migrating: adding seen_at column to assets table")

		if _, err := d.db.ExecContext(ctx, `ALTER TABLE assets ADD COLUMN seen_at INTEGER NOT NULL DEFAULT 0`); err != nil {
			return fmt.Errorf("failed to add seen_at column: %w", err)
		}
		if _, err := d.db.ExecContext(ctx, `UPDATE assets SET seen_at = updated_at * 1000000000`); err != nil {
			return fmt.Errorf("failed to initialize seen_at values: %w", err)
		}
	}

	return nil
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) clock() time.Time {
	if d.now != nil {
		return d.now()
	}
	return time.Now()
}

// Path returns the database file path.
func (d *Database) Path() string {
	return d.dbPath
}

// Stats returns the number of stored assets and analysis results.
func (d *Database) Stats(ctx context.Context) (assets, results int, err error) {
	start := time.Now()
	defer func() { recordQuery("stats", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	err = d.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM assets),
			(SELECT COUNT(*) FROM analysis_results)
	`).Scan(&assets, &results)
	if err != nil {
		return 0, 0, err
	}

	metrics.LibraryAssetsTotal.Set(float64(assets))
	metrics.LibraryAnalysisResultsTotal.Set(float64(results))
	return assets, results, nil
}

// Vacuum optimizes the database.
func (d *Database) Vacuum(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { recordQuery("vacuum", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	_, err = d.db.ExecContext(ctx, "VACUUM")
	return err
}

// recordQuery records database query metrics
func recordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(duration)
}

// diagnoseDatabasePermissions checks the database directory is writable and
// repairs read-only WAL/SHM sidecar files left behind by another user.
func diagnoseDatabasePermissions(dbPath string) error {
	dir := filepath.Dir(dbPath)

	dirInfo, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot stat database directory: %w", err)
	}
	log.Debug("directory: %s (mode: %v)", dir, dirInfo.Mode())

	testFile := filepath.Join(dir, ".perm-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("database directory not writable: %w", err)
	}
	_ = os.Remove(testFile)

	if info, err := os.Stat(dbPath); err == nil && info.Mode().Perm()&0o200 == 0 {
		log.Warn("database file is read-only! Mode: %v", info.Mode())
	}

	for _, sidecar := range []string{dbPath + "-wal", dbPath + "-shm"} {
		info, err := os.Stat(sidecar)
		if err != nil || info.Mode().Perm()&0o200 != 0 {
			continue
		}
		log.Warn("%s is read-only (mode %v), this will cause write failures", filepath.Base(sidecar), info.Mode())
		if chmodErr := os.Chmod(sidecar, 0o600); chmodErr != nil {
			log.Error("failed to fix permissions on %s: %v", sidecar, chmodErr)
		} else {
			log.Info("fixed permissions on %s", sidecar)
		}
	}

	return nil
}
