package database

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const lastScanKey = "last_scan"

// GetSetting retrieves a setting by key. Returns sql.ErrNoRows if the key
// doesn't exist.
func (d *Database) GetSetting(ctx context.Context, key string) (value string, err error) {
	start := time.Now()
	defer func() {
		if errors.Is(err, sql.ErrNoRows) {
			recordQuery("get_setting", start, nil)
			return
		}
		recordQuery("get_setting", start, err)
	}()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	err = d.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err != nil {
		return "", err
	}
	return value, nil
}

// SetSetting stores a key/value pair.
func (d *Database) SetSetting(ctx context.Context, key, value string) (err error) {
	start := time.Now()
	defer func() { recordQuery("set_setting", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// LastScan returns when the library was last fully scanned, or the zero time
// if it never was.
func (d *Database) LastScan(ctx context.Context) (time.Time, error) {
	value, err := d.GetSetting(ctx, lastScanKey)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && value == "") {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, value)
}

// SetLastScan stores the time of the last completed scan.
func (d *Database) SetLastScan(ctx context.Context, t time.Time) error {
	if t.IsZero() {
		return d.SetSetting(ctx, lastScanKey, "")
	}
	return d.SetSetting(ctx, lastScanKey, t.UTC().Format(time.RFC3339))
}
