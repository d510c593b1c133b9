package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/robertmeta/feedcore/model"
)

// SaveScript inserts or replaces a script row.
func (s *Store) SaveScript(sc model.Script) error {
	events := make([]string, len(sc.Events))
	for i, e := range sc.Events {
		events[i] = string(e)
	}

	_, err := s.db.Exec(
		`INSERT INTO scripts (id, filename, enabled, events, scope_all, scope_feed_ids, source, last_run, last_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET filename = excluded.filename, enabled = excluded.enabled,
			events = excluded.events, scope_all = excluded.scope_all, scope_feed_ids = excluded.scope_feed_ids,
			source = excluded.source, last_run = excluded.last_run, last_error = excluded.last_error`,
		sc.ID, sc.Filename, boolToInt(sc.Enabled), strings.Join(events, ","),
		boolToInt(sc.Scope.IsAll()), joinIDs(sc.Scope.FeedIDs()), sc.Source,
		nullableTime(sc.LastRun), sc.LastError,
	)
	if err != nil {
		return fmt.Errorf("failed to save script: %w", err)
	}
	return nil
}

// DeleteScript deletes a script by ID.
func (s *Store) DeleteScript(id int64) error {
	_, err := s.db.Exec("DELETE FROM scripts WHERE id = ?", id)
	return err
}

// LoadScripts returns every script in registration (ID) order.
func (s *Store) LoadScripts() ([]model.Script, error) {
	rows, err := s.db.Query(`SELECT id, filename, enabled, events, scope_all, scope_feed_ids, source, last_run, last_error
		FROM scripts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query scripts: %w", err)
	}
	defer rows.Close()

	var scripts []model.Script
	for rows.Next() {
		var (
			sc       model.Script
			enabled  int
			events   string
			scopeAll int
			scopeIDs string
			lastRun  sql.NullInt64
		)
		if err := rows.Scan(&sc.ID, &sc.Filename, &enabled, &events, &scopeAll, &scopeIDs, &sc.Source, &lastRun, &sc.LastError); err != nil {
			return nil, fmt.Errorf("failed to scan script: %w", err)
		}
		sc.Enabled = intToBool(enabled)
		if events != "" {
			for _, e := range strings.Split(events, ",") {
				sc.Events = append(sc.Events, model.EventKind(e))
			}
		}
		if intToBool(scopeAll) {
			sc.Scope = model.AllFeeds()
		} else {
			ids, err := splitIDs(scopeIDs)
			if err != nil {
				return nil, fmt.Errorf("script %d: %w", sc.ID, err)
			}
			sc.Scope = model.FeedSubset(ids...)
		}
		if lastRun.Valid {
			t := unixToTime(lastRun.Int64)
			sc.LastRun = &t
		}
		scripts = append(scripts, sc)
	}

	return scripts, rows.Err()
}
