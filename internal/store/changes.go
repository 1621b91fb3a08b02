package store

import (
	"context"
	"fmt"
)

// Change actions recorded in the history.
const (
	ActionAdded   = "added"
	ActionUpdated = "updated"
	ActionRemoved = "removed"
)

// Change is one append-only history row.
type Change struct {
	ID          int64
	RecordedAt  string
	ContentType string // movie or tv_show
	Action      string
	ItemName    string
	ProviderURL string
	Details     string
	RunID       string
}

// Append records c. RecordedAt is set by the store when empty.
func (s *Store) Append(ctx context.Context, c Change) error {
	if c.RecordedAt == "" {
		c.RecordedAt = s.timestamp()
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO content_history (
            recorded_at, content_type, action, item_name, provider_url, details, run_id
        ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.RecordedAt, c.ContentType, c.Action, c.ItemName, c.ProviderURL, c.Details, c.RunID,
	); err != nil {
		return fmt.Errorf("append change: %w", err)
	}
	return nil
}

// Recent returns up to limit changes, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Change, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, recorded_at, content_type, action, item_name, provider_url, details, run_id
         FROM content_history ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query changes: %w", err)
	}
	defer rows.Close()

	var out []Change
	for rows.Next() {
		var c Change
		if err := rows.Scan(&c.ID, &c.RecordedAt, &c.ContentType, &c.Action, &c.ItemName, &c.ProviderURL, &c.Details, &c.RunID); err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate changes: %w", err)
	}
	return out, nil
}
