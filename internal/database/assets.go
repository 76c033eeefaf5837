package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"media-cache/internal/media"
)

// maxQueryParams keeps IN (...) lists under SQLite's bound parameter limit.
const maxQueryParams = 500

const assetColumns = "id, width, height, byte_size, captured_at, kind, palette"

// UpsertAssets inserts or updates asset records in one transaction and
// returns the ids whose record is new or whose content changed.
//
// A stored palette survives an upsert that carries none unless the asset's
// content changed, in which case it is cleared so analysis derives it again.
func (d *Database) UpsertAssets(ctx context.Context, assets []media.AssetMetadata) (changed []string, err error) {
	if len(assets) == 0 {
		return nil, nil
	}

	start := time.Now()
	defer func() { recordQuery("upsert_assets", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = errors.Join(err, fmt.Errorf("rollback also failed: %w", rbErr))
			}
		}
	}()

	lookup, err := tx.PrepareContext(ctx, `SELECT width, height, byte_size, captured_at, kind FROM assets WHERE id = ?`)
	if err != nil {
		return nil, err
	}
	defer lookup.Close()

	upsert, err := tx.PrepareContext(ctx, `
	INSERT INTO assets (id, width, height, byte_size, captured_at, kind, palette, updated_at, seen_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		width = excluded.width,
		height = excluded.height,
		byte_size = excluded.byte_size,
		captured_at = excluded.captured_at,
		kind = excluded.kind,
		palette = CASE
			WHEN excluded.palette != '' THEN excluded.palette
			WHEN ? THEN ''
			ELSE assets.palette
		END,
		updated_at = CASE WHEN ? THEN excluded.updated_at ELSE assets.updated_at END,
		seen_at = excluded.seen_at
	`)
	if err != nil {
		return nil, err
	}
	defer upsert.Close()

	now := d.clock()
	for _, a := range assets {
		var (
			width, height int
			byteSize      int64
			capturedAt    int64
			kind          string
		)
		isChanged := false
		switch scanErr := lookup.QueryRowContext(ctx, a.ID).Scan(&width, &height, &byteSize, &capturedAt, &kind); {
		case errors.Is(scanErr, sql.ErrNoRows):
			isChanged = true
		case scanErr != nil:
			return nil, scanErr
		default:
			isChanged = width != a.Width || height != a.Height || byteSize != a.ByteSize ||
				capturedAt != encodeTime(a.CapturedAt) || kind != string(a.Kind)
		}

		palette, encErr := encodePalette(a.Palette)
		if encErr != nil {
			return nil, encErr
		}

		if _, err = upsert.ExecContext(ctx,
			a.ID, a.Width, a.Height, a.ByteSize, encodeTime(a.CapturedAt), string(a.Kind), palette,
			now.Unix(), now.UnixNano(), isChanged, isChanged,
		); err != nil {
			return nil, fmt.Errorf("upsert %s: %w", a.ID, err)
		}
		if isChanged {
			changed = append(changed, a.ID)
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return changed, nil
}

// DeleteMissingAssets removes assets not seen by an upsert since cutoff,
// together with their analysis results.
func (d *Database) DeleteMissingAssets(ctx context.Context, cutoff time.Time) (removed int64, err error) {
	start := time.Now()
	defer func() { recordQuery("delete_assets", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	result, err := d.db.ExecContext(ctx, "DELETE FROM assets WHERE seen_at < ?", cutoff.UnixNano())
	if err != nil {
		return 0, err
	}
	removed, err = result.RowsAffected()
	if err != nil {
		return 0, err
	}

	if removed > 0 {
		_, err = d.db.ExecContext(ctx, "DELETE FROM analysis_results WHERE asset_id NOT IN (SELECT id FROM assets)")
	}
	return removed, err
}

// Metadata returns stored records for ids, in request order. Unknown ids are
// omitted.
func (d *Database) Metadata(ctx context.Context, ids []string) (out []media.AssetMetadata, err error) {
	if len(ids) == 0 {
		return nil, nil
	}

	start := time.Now()
	defer func() { recordQuery("get_assets", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	found := make(map[string]media.AssetMetadata, len(ids))
	for chunkStart := 0; chunkStart < len(ids); chunkStart += maxQueryParams {
		chunk := ids[chunkStart:min(chunkStart+maxQueryParams, len(ids))]

		args := make([]interface{}, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")

		rows, err := d.db.QueryContext(ctx,
			"SELECT "+assetColumns+" FROM assets WHERE id IN ("+placeholders+")", args...)
		if err != nil {
			return nil, err
		}
		if err := scanAssets(rows, func(m media.AssetMetadata) { found[m.ID] = m }); err != nil {
			return nil, err
		}
	}

	out = make([]media.AssetMetadata, 0, len(found))
	for _, id := range ids {
		if m, ok := found[id]; ok {
			out = append(out, m)
			delete(found, id)
		}
	}
	return out, nil
}

// AllAssets returns every stored record ordered by id.
func (d *Database) AllAssets(ctx context.Context) (out []media.AssetMetadata, err error) {
	start := time.Now()
	defer func() { recordQuery("get_assets", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.QueryContext(ctx, "SELECT "+assetColumns+" FROM assets ORDER BY id")
	if err != nil {
		return nil, err
	}
	err = scanAssets(rows, func(m media.AssetMetadata) { out = append(out, m) })
	return out, err
}

func scanAssets(rows *sql.Rows, emit func(media.AssetMetadata)) error {
	defer rows.Close()

	for rows.Next() {
		var (
			m          media.AssetMetadata
			capturedAt int64
			kind       string
			palette    string
		)
		if err := rows.Scan(&m.ID, &m.Width, &m.Height, &m.ByteSize, &capturedAt, &kind, &palette); err != nil {
			return err
		}
		m.CapturedAt = decodeTime(capturedAt)
		m.Kind = media.Kind(kind)
		if palette != "" {
			if err := json.Unmarshal([]byte(palette), &m.Palette); err != nil {
				log.Warn("asset %s has an unreadable palette: %v", m.ID, err)
				m.Palette = nil
			}
		}
		emit(m)
	}
	return rows.Err()
}

func encodePalette(palette []string) (string, error) {
	if len(palette) == 0 {
		return "", nil
	}
	data, err := json.Marshal(palette)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Capture times are stored as Unix nanoseconds; 0 means unknown.
func encodeTime(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func decodeTime(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(0, v).UTC()
}
