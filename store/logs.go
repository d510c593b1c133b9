package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/robertmeta/feedcore/model"
)

// LogQuery selects log entries. A nil FeedIDs selects every entry; an empty
// non-nil slice selects none.
type LogQuery struct {
	FeedIDs []int64
	Limit   int
	Offset  int
}

// AppendLog persists a log entry and sets its ID.
func (s *Store) AppendLog(e *model.LogEntry) error {
	var feedID interface{}
	if e.FeedID != 0 {
		feedID = e.FeedID
	}
	result, err := s.db.Exec(
		"INSERT INTO logs (timestamp, level, message, feed_id) VALUES (?, ?, ?, ?)",
		e.Timestamp.Unix(), string(e.Level), e.Message, feedID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert log: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	e.ID = id
	return nil
}

// GetLogs returns matching entries, newest first, and the total match count.
func (s *Store) GetLogs(q LogQuery) ([]model.LogEntry, int, error) {
	if q.FeedIDs != nil && len(q.FeedIDs) == 0 {
		return []model.LogEntry{}, 0, nil
	}

	where := ""
	var args []interface{}
	if q.FeedIDs != nil {
		in, inArgs := inClause(q.FeedIDs)
		where = " WHERE feed_id IN " + in
		args = inArgs
	}

	var total int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM logs"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count logs: %w", err)
	}

	query := "SELECT id, timestamp, level, message, feed_id FROM logs" + where + " ORDER BY timestamp DESC, id DESC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
		if q.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, q.Offset)
		}
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query logs: %w", err)
	}
	defer rows.Close()

	entries := []model.LogEntry{}
	for rows.Next() {
		var (
			e      model.LogEntry
			ts     int64
			level  string
			feedID sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &ts, &level, &e.Message, &feedID); err != nil {
			return nil, 0, fmt.Errorf("failed to scan log: %w", err)
		}
		e.Timestamp = unixToTime(ts)
		e.Level = model.LogLevel(level)
		e.FeedID = feedID.Int64
		entries = append(entries, e)
	}

	return entries, total, rows.Err()
}

// ClearLogs deletes matching entries. A nil feedIDs clears everything.
func (s *Store) ClearLogs(feedIDs []int64) error {
	if feedIDs == nil {
		_, err := s.db.Exec("DELETE FROM logs")
		return err
	}
	if len(feedIDs) == 0 {
		return nil
	}
	in, args := inClause(feedIDs)
	_, err := s.db.Exec("DELETE FROM logs WHERE feed_id IN "+in, args...)
	return err
}

// PruneLogs deletes entries older than the cutoff and reports how many.
func (s *Store) PruneLogs(before time.Time) (int64, error) {
	result, err := s.db.Exec("DELETE FROM logs WHERE timestamp < ?", before.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to prune logs: %w", err)
	}
	return result.RowsAffected()
}
