package hierarchy

import (
	"time"

	"github.com/robertmeta/feedcore/model"
	"github.com/robertmeta/feedcore/store"
)

// AppendLog persists a log entry. feedID 0 records a global entry.
func (t *Tree) AppendLog(level model.LogLevel, feedID int64, message string) error {
	entry := &model.LogEntry{
		Timestamp: t.now(),
		Level:     level,
		Message:   message,
		FeedID:    feedID,
	}
	if err := t.store.AppendLog(entry); err != nil {
		return model.NewStorageError("failed to append log", err)
	}
	return nil
}

// logFeeds resolves a log scope. The zero NodeRef selects every entry.
func (t *Tree) logFeeds(scope model.NodeRef) ([]int64, error) {
	if scope.Kind == "" {
		return nil, nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids, err := t.scopeFeeds(scope)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []int64{}
	}
	return ids, nil
}

// Logs returns one page (1-based) of entries in scope, newest first, and the
// total number of matching entries.
func (t *Tree) Logs(scope model.NodeRef, pageSize, pageIndex int) ([]model.LogEntry, int, error) {
	if pageSize < 1 || pageIndex < 1 {
		return nil, 0, model.NewValidationError("page size and index must be positive", nil)
	}
	feedIDs, err := t.logFeeds(scope)
	if err != nil {
		return nil, 0, err
	}
	entries, total, err := t.store.GetLogs(store.LogQuery{
		FeedIDs: feedIDs,
		Limit:   pageSize,
		Offset:  (pageIndex - 1) * pageSize,
	})
	if err != nil {
		return nil, 0, model.NewStorageError("failed to read logs", err)
	}
	return entries, total, nil
}

// ClearLogs deletes the entries in scope.
func (t *Tree) ClearLogs(scope model.NodeRef) error {
	feedIDs, err := t.logFeeds(scope)
	if err != nil {
		return err
	}
	if err := t.store.ClearLogs(feedIDs); err != nil {
		return model.NewStorageError("failed to clear logs", err)
	}
	return nil
}

// PruneLogs deletes entries older than the retention period.
func (t *Tree) PruneLogs(retention time.Duration) (int64, error) {
	n, err := t.store.PruneLogs(t.now().Add(-retention))
	if err != nil {
		return 0, model.NewStorageError("failed to prune logs", err)
	}
	return n, nil
}
