package store

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/robertmeta/feedcore/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// commit runs fn in a transaction and commits it.
func commit(t *testing.T, s *Store, fn func(tx *Tx) error) {
	t.Helper()
	tx, err := s.Begin()
	require.NoError(t, err)
	defer tx.Rollback()
	require.NoError(t, fn(tx))
	require.NoError(t, tx.Commit())
}

func seedTree(t *testing.T, s *Store) {
	t.Helper()
	commit(t, s, func(tx *Tx) error {
		if err := tx.InsertSource(model.Source{ID: 1, Title: "Local"}); err != nil {
			return err
		}
		if err := tx.InsertFolder(model.Folder{ID: 1, SourceID: 1, Title: "Tech"}, 0); err != nil {
			return err
		}
		if err := tx.InsertFeed(model.Feed{ID: 1, SourceID: 1, FolderID: 1, URL: "https://example.com/rss", Title: "Example"}, 0); err != nil {
			return err
		}
		return tx.InsertFeed(model.Feed{ID: 2, SourceID: 1, URL: "https://example.org/atom", Title: "Other"}, 1)
	})
}

func TestNewStore(t *testing.T) {
	s, err := New(":memory:")
	require.NoError(t, err)
	require.NotNil(t, s)
	defer s.Close()

	snap, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, snap.Sources)
	assert.Empty(t, snap.Posts)
}

func TestNewStore_ExclusiveFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feedcore.db")

	first, err := New(path)
	require.NoError(t, err)

	second, err := New(path)
	require.Error(t, err)
	assert.Nil(t, second)
	assert.ErrorIs(t, err, ErrLocked)
	assert.Contains(t, err.Error(), path)

	// The holder keeps working.
	seedTree(t, first)
	require.NoError(t, first.Close())

	reopened, err := New(path)
	require.NoError(t, err)
	defer reopened.Close()
	snap, err := reopened.Load()
	require.NoError(t, err)
	assert.Len(t, snap.Feeds, 2)
}

func TestNewStore_MemoryIsNotLocked(t *testing.T) {
	a, err := New(":memory:")
	require.NoError(t, err)
	defer a.Close()
	b, err := New(":memory:")
	require.NoError(t, err)
	defer b.Close()
}

func TestNewStore_MigratesPostColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE posts (
		id INTEGER PRIMARY KEY,
		feed_id INTEGER NOT NULL,
		guid TEXT NOT NULL,
		title TEXT,
		link TEXT,
		content TEXT,
		published INTEGER NOT NULL,
		is_read INTEGER DEFAULT 0,
		content_hash TEXT NOT NULL DEFAULT '',
		UNIQUE(feed_id, guid)
	)`)
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO posts (id, feed_id, guid, title, published) VALUES (1, 1, 'g1', 'Old', 100)")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := New(path)
	require.NoError(t, err)
	defer s.Close()

	snap, err := s.Load()
	require.NoError(t, err)
	require.Len(t, snap.Posts, 1)
	assert.Equal(t, "Old", snap.Posts[0].Title)
	assert.Empty(t, snap.Posts[0].Author)
	assert.Empty(t, snap.Posts[0].CommentsURL)
}

func TestStore_LoadTree(t *testing.T) {
	s := newTestStore(t)
	seedTree(t, s)

	snap, err := s.Load()
	require.NoError(t, err)
	require.Len(t, snap.Sources, 1)
	require.Len(t, snap.Folders, 1)
	require.Len(t, snap.Feeds, 2)

	assert.Equal(t, "Local", snap.Sources[0].Title)
	assert.Equal(t, int64(1), snap.Folders[0].SourceID)
	assert.Equal(t, int64(1), snap.Feeds[0].FolderID)
	assert.Equal(t, int64(0), snap.Feeds[1].FolderID)
	assert.Nil(t, snap.Feeds[0].LastRefreshed)
}

func TestStore_UpdateFeed(t *testing.T) {
	s := newTestStore(t)
	seedTree(t, s)

	refreshed := time.Unix(1700000000, 0)
	interval := 15 * time.Minute
	commit(t, s, func(tx *Tx) error {
		return tx.UpdateFeed(model.Feed{
			ID:               2,
			SourceID:         1,
			FolderID:         1,
			URL:              "https://example.org/atom",
			Title:            "Renamed",
			LastRefreshed:    &refreshed,
			LastRefreshError: "timeout",
			RefreshInterval:  &interval,
		}, 3)
	})

	snap, err := s.Load()
	require.NoError(t, err)
	var got model.Feed
	for _, f := range snap.Feeds {
		if f.ID == 2 {
			got = f
		}
	}
	assert.Equal(t, "Renamed", got.Title)
	assert.Equal(t, int64(1), got.FolderID)
	assert.Equal(t, "timeout", got.LastRefreshError)
	require.NotNil(t, got.LastRefreshed)
	assert.True(t, refreshed.Equal(*got.LastRefreshed))
	require.NotNil(t, got.RefreshInterval)
	assert.Equal(t, interval, *got.RefreshInterval)
}

func TestStore_PostsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	seedTree(t, s)

	published := time.Unix(1700000000, 0)
	commit(t, s, func(tx *Tx) error {
		if err := tx.InsertPost(model.Post{ID: 1, FeedID: 1, GUID: "g1", Title: "First", Link: "https://example.com/1", Content: "body", Published: published, ContentHash: "h1"}); err != nil {
			return err
		}
		if err := tx.InsertPost(model.Post{ID: 2, FeedID: 1, GUID: "g2", Title: "Second", Published: published.Add(time.Hour), ContentHash: "h2"}); err != nil {
			return err
		}
		if err := tx.InsertScriptFolder(model.ScriptFolder{ID: 1, Title: "Later"}); err != nil {
			return err
		}
		if err := tx.SetPostsRead([]int64{1}, true); err != nil {
			return err
		}
		if err := tx.SetPostFlag(1, model.FlagRed, true); err != nil {
			return err
		}
		// Flagging twice is ignored.
		if err := tx.SetPostFlag(1, model.FlagRed, true); err != nil {
			return err
		}
		if err := tx.SetPostFlag(1, model.FlagBlue, true); err != nil {
			return err
		}
		if err := tx.AddScriptFolderPost(1, 2); err != nil {
			return err
		}
		return tx.AddScriptFolderPost(1, 2)
	})

	snap, err := s.Load()
	require.NoError(t, err)
	require.Len(t, snap.Posts, 2)
	require.Len(t, snap.ScriptFolders, 1)

	first, second := snap.Posts[0], snap.Posts[1]
	assert.Equal(t, "g1", first.GUID)
	assert.True(t, first.IsRead)
	assert.Equal(t, "h1", first.ContentHash)
	assert.True(t, published.Equal(first.Published))
	assert.Equal(t, model.NewFlagSet(model.FlagRed, model.FlagBlue), first.Flags)
	assert.Empty(t, first.ScriptFolderIDs)

	assert.False(t, second.IsRead)
	assert.True(t, second.Flags.Empty())
	assert.Equal(t, []int64{1}, second.ScriptFolderIDs)
}

func TestStore_UpdatePostContentKeepsUserState(t *testing.T) {
	s := newTestStore(t)
	seedTree(t, s)

	commit(t, s, func(tx *Tx) error {
		if err := tx.InsertPost(model.Post{ID: 1, FeedID: 1, GUID: "g1", Title: "Old", Published: time.Unix(100, 0), ContentHash: "a"}); err != nil {
			return err
		}
		if err := tx.SetPostsRead([]int64{1}, true); err != nil {
			return err
		}
		return tx.SetPostFlag(1, model.FlagRed, true)
	})
	commit(t, s, func(tx *Tx) error {
		return tx.UpdatePostContent(model.Post{ID: 1, Title: "New", Content: "changed", Published: time.Unix(200, 0), ContentHash: "b"})
	})

	snap, err := s.Load()
	require.NoError(t, err)
	require.Len(t, snap.Posts, 1)
	p := snap.Posts[0]
	assert.Equal(t, "New", p.Title)
	assert.Equal(t, "changed", p.Content)
	assert.Equal(t, "b", p.ContentHash)
	assert.True(t, p.IsRead)
	assert.True(t, p.Flags.Has(model.FlagRed))
}

func TestStore_PostMetadata(t *testing.T) {
	s := newTestStore(t)
	seedTree(t, s)

	post := model.Post{
		ID: 1, FeedID: 1, GUID: "g1", Title: "Episode", Published: time.Unix(100, 0), ContentHash: "a",
		Author:      "Jane Doe",
		CommentsURL: "https://example.com/1#comments",
		Categories:  []string{"Go", "Audio"},
		Enclosures: []model.Enclosure{
			{URL: "https://example.com/1.mp3", MimeType: "audio/mpeg", Size: 1024},
			{URL: "https://example.com/1.txt"},
		},
	}
	commit(t, s, func(tx *Tx) error { return tx.InsertPost(post) })

	snap, err := s.Load()
	require.NoError(t, err)
	require.Len(t, snap.Posts, 1)
	got := snap.Posts[0]
	assert.Equal(t, post.Author, got.Author)
	assert.Equal(t, post.CommentsURL, got.CommentsURL)
	assert.Equal(t, post.Categories, got.Categories, "categories keep feed order")
	assert.Equal(t, post.Enclosures, got.Enclosures)

	post.Categories = []string{"Databases"}
	post.Enclosures = nil
	post.Author = ""
	commit(t, s, func(tx *Tx) error { return tx.UpdatePostContent(post) })

	snap, err = s.Load()
	require.NoError(t, err)
	got = snap.Posts[0]
	assert.Empty(t, got.Author)
	assert.Equal(t, []string{"Databases"}, got.Categories)
	assert.Empty(t, got.Enclosures)

	commit(t, s, func(tx *Tx) error { return tx.DeleteFeeds([]int64{1}) })
	var left int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM post_categories").Scan(&left))
	assert.Zero(t, left)
}

func TestStore_DeleteFeedsCascades(t *testing.T) {
	s := newTestStore(t)
	seedTree(t, s)

	commit(t, s, func(tx *Tx) error {
		if err := tx.InsertPost(model.Post{ID: 1, FeedID: 1, GUID: "g1", Published: time.Now()}); err != nil {
			return err
		}
		if err := tx.InsertPost(model.Post{ID: 2, FeedID: 2, GUID: "g1", Published: time.Now()}); err != nil {
			return err
		}
		if err := tx.InsertScriptFolder(model.ScriptFolder{ID: 1, Title: "Keep"}); err != nil {
			return err
		}
		if err := tx.AddScriptFolderPost(1, 1); err != nil {
			return err
		}
		return tx.SetPostFlag(1, model.FlagGreen, true)
	})
	require.NoError(t, s.AppendLog(&model.LogEntry{Timestamp: time.Now(), Level: model.LogInfo, Message: "hello", FeedID: 1}))

	commit(t, s, func(tx *Tx) error { return tx.DeleteFeeds([]int64{1}) })

	snap, err := s.Load()
	require.NoError(t, err)
	require.Len(t, snap.Feeds, 1)
	require.Len(t, snap.Posts, 1)
	assert.Equal(t, int64(2), snap.Posts[0].FeedID)
	require.Len(t, snap.ScriptFolders, 1, "script folder container survives")

	logs, total, err := s.GetLogs(LogQuery{FeedIDs: []int64{1}})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, logs)
}

func TestStore_DeleteScriptFolderKeepsPosts(t *testing.T) {
	s := newTestStore(t)
	seedTree(t, s)

	commit(t, s, func(tx *Tx) error {
		if err := tx.InsertPost(model.Post{ID: 1, FeedID: 1, GUID: "g1", Published: time.Now()}); err != nil {
			return err
		}
		if err := tx.InsertScriptFolder(model.ScriptFolder{ID: 1, Title: "Temp"}); err != nil {
			return err
		}
		return tx.AddScriptFolderPost(1, 1)
	})
	commit(t, s, func(tx *Tx) error { return tx.DeleteScriptFolder(1) })

	snap, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, snap.ScriptFolders)
	require.Len(t, snap.Posts, 1)
	assert.Empty(t, snap.Posts[0].ScriptFolderIDs)
}

func TestStore_RollbackDiscardsWrites(t *testing.T) {
	s := newTestStore(t)

	tx, err := s.Begin()
	require.NoError(t, err)
	require.NoError(t, tx.InsertSource(model.Source{ID: 1, Title: "Discarded"}))
	require.NoError(t, tx.Rollback())

	snap, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, snap.Sources)
}

func TestStore_UniqueConstraints(t *testing.T) {
	s := newTestStore(t)
	seedTree(t, s)

	tx, err := s.Begin()
	require.NoError(t, err)
	defer tx.Rollback()

	// Same URL within one source
	err = tx.InsertFeed(model.Feed{ID: 3, SourceID: 1, URL: "https://example.com/rss"}, 0)
	assert.Error(t, err, "Should error on duplicate feed URL")

	require.NoError(t, tx.InsertPost(model.Post{ID: 1, FeedID: 1, GUID: "unique-guid", Published: time.Now()}))
	err = tx.InsertPost(model.Post{ID: 2, FeedID: 1, GUID: "unique-guid", Published: time.Now()})
	assert.Error(t, err, "Should error on duplicate GUID in same feed")
}

func TestStore_Scripts(t *testing.T) {
	s := newTestStore(t)

	ran := time.Unix(1700000000, 0)
	require.NoError(t, s.SaveScript(model.Script{
		ID:       1,
		Filename: "flag.lua",
		Enabled:  true,
		Events:   []model.EventKind{model.EventNewPost, model.EventUpdatedPost},
		Scope:    model.AllFeeds(),
		Source:   "CurrentPost:flag('red')",
	}))
	require.NoError(t, s.SaveScript(model.Script{
		ID:        2,
		Filename:  "subset.lua",
		Events:    []model.EventKind{model.EventNewPost},
		Scope:     model.FeedSubset(4, 2),
		LastRun:   &ran,
		LastError: "boom",
	}))
	require.NoError(t, s.SaveScript(model.Script{ID: 3, Filename: "none.lua", Scope: model.FeedSubset()}))

	// Upsert keeps the id and replaces the columns.
	require.NoError(t, s.SaveScript(model.Script{ID: 1, Filename: "flag2.lua", Enabled: false, Scope: model.AllFeeds()}))

	scripts, err := s.LoadScripts()
	require.NoError(t, err)
	require.Len(t, scripts, 3)

	assert.Equal(t, "flag2.lua", scripts[0].Filename)
	assert.False(t, scripts[0].Enabled)
	assert.True(t, scripts[0].Scope.IsAll())
	assert.Empty(t, scripts[0].Events)

	assert.Equal(t, []int64{2, 4}, scripts[1].Scope.FeedIDs())
	assert.Equal(t, []model.EventKind{model.EventNewPost}, scripts[1].Events)
	assert.Equal(t, "boom", scripts[1].LastError)
	require.NotNil(t, scripts[1].LastRun)
	assert.True(t, ran.Equal(*scripts[1].LastRun))

	assert.False(t, scripts[2].Scope.IsAll())
	assert.False(t, scripts[2].Scope.Contains(1))

	require.NoError(t, s.DeleteScript(2))
	scripts, err = s.LoadScripts()
	require.NoError(t, err)
	assert.Len(t, scripts, 2)
}

func TestStore_Logs(t *testing.T) {
	s := newTestStore(t)

	base := time.Unix(1700000000, 0)
	for i := 0; i < 5; i++ {
		feedID := int64(1)
		if i%2 == 1 {
			feedID = 2
		}
		require.NoError(t, s.AppendLog(&model.LogEntry{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Level:     model.LogInfo,
			Message:   "entry",
			FeedID:    feedID,
		}))
	}
	require.NoError(t, s.AppendLog(&model.LogEntry{Timestamp: base.Add(-48 * time.Hour), Level: model.LogError, Message: "old"}))

	all, total, err := s.GetLogs(LogQuery{})
	require.NoError(t, err)
	assert.Equal(t, 6, total)
	require.Len(t, all, 6)
	assert.True(t, all[0].Timestamp.After(all[1].Timestamp), "newest first")

	page, total, err := s.GetLogs(LogQuery{FeedIDs: []int64{1}, Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 1)
	assert.Equal(t, int64(1), page[0].FeedID)

	none, total, err := s.GetLogs(LogQuery{FeedIDs: []int64{}})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, none)

	pruned, err := s.PruneLogs(base.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	require.NoError(t, s.ClearLogs([]int64{2}))
	_, total, err = s.GetLogs(LogQuery{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	require.NoError(t, s.ClearLogs(nil))
	_, total, err = s.GetLogs(LogQuery{})
	require.NoError(t, err)
	assert.Zero(t, total)
}
