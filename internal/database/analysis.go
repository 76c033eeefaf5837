package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"media-cache/internal/analysis"
)

// SaveAnalysis records analysis results in one transaction. A result that
// carries Metadata replaces the asset record wholesale, palette included.
func (d *Database) SaveAnalysis(ctx context.Context, results []analysis.Result) (err error) {
	if len(results) == 0 {
		return nil
	}

	start := time.Now()
	defer func() { recordQuery("save_analysis", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = errors.Join(err, fmt.Errorf("rollback also failed: %w", rbErr))
			}
		}
	}()

	insert, err := tx.PrepareContext(ctx, `
	INSERT INTO analysis_results (task_id, kind, asset_id, score, grp, completed_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(task_id) DO UPDATE SET
		kind = excluded.kind,
		asset_id = excluded.asset_id,
		score = excluded.score,
		grp = excluded.grp,
		completed_at = excluded.completed_at
	`)
	if err != nil {
		return err
	}
	defer insert.Close()

	replace, err := tx.PrepareContext(ctx, `
	UPDATE assets SET
		width = ?, height = ?, byte_size = ?, captured_at = ?, kind = ?, palette = ?,
		updated_at = ?
	WHERE id = ?
	`)
	if err != nil {
		return err
	}
	defer replace.Close()

	now := d.clock().Unix()
	for _, r := range results {
		if _, err = insert.ExecContext(ctx,
			r.TaskID, string(r.Kind), r.AssetID, r.Score, r.Group, encodeTime(r.CompletedAt),
		); err != nil {
			return fmt.Errorf("save result %s: %w", r.TaskID, err)
		}

		if r.Metadata == nil {
			continue
		}
		m := r.Metadata
		palette, encErr := encodePalette(m.Palette)
		if encErr != nil {
			return encErr
		}
		if _, err = replace.ExecContext(ctx,
			m.Width, m.Height, m.ByteSize, encodeTime(m.CapturedAt), string(m.Kind), palette, now, r.AssetID,
		); err != nil {
			return fmt.Errorf("replace metadata %s: %w", r.AssetID, err)
		}
	}

	return tx.Commit()
}

// AnalysisResults returns the stored results for one asset, oldest first.
func (d *Database) AnalysisResults(ctx context.Context, assetID string) (out []analysis.Result, err error) {
	start := time.Now()
	defer func() { recordQuery("get_analysis", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `
		SELECT task_id, kind, asset_id, score, grp, completed_at
		FROM analysis_results
		WHERE asset_id = ?
		ORDER BY completed_at, task_id
	`, assetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			r           analysis.Result
			kind        string
			completedAt int64
		)
		if err := rows.Scan(&r.TaskID, &kind, &r.AssetID, &r.Score, &r.Group, &completedAt); err != nil {
			return nil, err
		}
		r.Kind = analysis.Kind(kind)
		r.CompletedAt = decodeTime(completedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}
