package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/snapetech/strmsync/internal/provider"
)

// Link is one playlist provider known to the store.
type Link struct {
	URL          string
	Name         string
	FirstSeen    string
	ContentCount int
	LastUpdated  string
}

// ErrEmptyURL is returned for link operations without a provider URL.
var ErrEmptyURL = errors.New("store: empty provider url")

// GetOrCreateName returns the friendly name for url, inserting the link with
// a derived default name on first sighting.
func (s *Store) GetOrCreateName(ctx context.Context, url string) (string, error) {
	if url == "" {
		return "", ErrEmptyURL
	}
	var name string
	err := s.db.QueryRowContext(ctx, "SELECT name FROM links WHERE url = ?", url).Scan(&name)
	if err == nil {
		return name, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("lookup link: %w", err)
	}

	ts := s.timestamp()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO links (url, name, first_seen, content_count, last_updated)
         VALUES (?, ?, ?, 0, ?)
         ON CONFLICT(url) DO NOTHING`,
		url, provider.DefaultName(url), ts, ts,
	); err != nil {
		return "", fmt.Errorf("insert link: %w", err)
	}
	// Re-read so a concurrent insert wins consistently.
	if err := s.db.QueryRowContext(ctx, "SELECT name FROM links WHERE url = ?", url).Scan(&name); err != nil {
		return "", fmt.Errorf("lookup link: %w", err)
	}
	return name, nil
}

// SetName renames the link for url, creating it when unknown.
func (s *Store) SetName(ctx context.Context, url, name string) error {
	if url == "" {
		return ErrEmptyURL
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("store: empty provider name")
	}
	ts := s.timestamp()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO links (url, name, first_seen, content_count, last_updated)
         VALUES (?, ?, ?, 0, ?)
         ON CONFLICT(url) DO UPDATE SET name = excluded.name, last_updated = excluded.last_updated`,
		url, name, ts, ts,
	); err != nil {
		return fmt.Errorf("set link name: %w", err)
	}
	return nil
}

// IncrementContentCount adds n to the content count of url.
func (s *Store) IncrementContentCount(ctx context.Context, url string, n int) error {
	if url == "" {
		return ErrEmptyURL
	}
	ts := s.timestamp()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO links (url, name, first_seen, content_count, last_updated)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(url) DO UPDATE SET
             content_count = content_count + excluded.content_count,
             last_updated = excluded.last_updated`,
		url, provider.DefaultName(url), ts, n, ts,
	); err != nil {
		return fmt.Errorf("increment content count: %w", err)
	}
	return nil
}

// List returns every link ordered by name.
func (s *Store) List(ctx context.Context) ([]Link, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT url, name, first_seen, content_count, last_updated
         FROM links ORDER BY name COLLATE NOCASE, url`)
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	defer rows.Close()

	var links []Link
	for rows.Next() {
		var l Link
		if err := rows.Scan(&l.URL, &l.Name, &l.FirstSeen, &l.ContentCount, &l.LastUpdated); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate links: %w", err)
	}
	return links, nil
}
