// Package store provides SQLite persistence for feedcore.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robertmeta/feedcore/model"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrLocked is returned by New when another Store, in this or another
// process, already owns the database file.
var ErrLocked = errors.New("database is in use by another feedcore process")

// Store manages the SQLite database.
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path.
// Use ":memory:" for an in-memory database (useful for testing).
//
// A file database is held exclusively until Close: the tree keeps ids and
// counters in memory, so a second writer would corrupt both. Opening a path
// that is already held fails with ErrLocked.
func New(dbPath string) (*Store, error) {
	exclusive := !isMemory(dbPath)
	dsn := dbPath
	if exclusive {
		sep := "?"
		if strings.Contains(dbPath, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=locking_mode(EXCLUSIVE)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection serializes writers, keeps ":memory:" databases
	// from splitting across the pool and owns the exclusive file lock.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}

	type step struct {
		what string
		fn   func() error
	}
	steps := []step{
		{"create schema", store.createSchema},
		{"migrate schema", store.migrate},
	}
	if exclusive {
		steps = append(steps, step{"lock database", store.claim})
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			db.Close()
			if isBusy(err) {
				return nil, fmt.Errorf("failed to open %s: %w", dbPath, ErrLocked)
			}
			return nil, fmt.Errorf("failed to %s: %w", step.what, err)
		}
	}

	return store, nil
}

func isMemory(dbPath string) bool {
	return dbPath == "" || dbPath == ":memory:" ||
		strings.HasPrefix(dbPath, "file::memory:") || strings.Contains(dbPath, "mode=memory")
}

// claim writes the owner row. In exclusive locking mode the write lock it
// takes is kept until the connection closes.
func (s *Store) claim() error {
	_, err := s.db.Exec("INSERT OR REPLACE INTO store_owner (id, pid, opened_at) VALUES (1, ?, ?)",
		os.Getpid(), time.Now().Unix())
	return err
}

func isBusy(err error) bool {
	var serr *sqlite.Error
	if !errors.As(err, &serr) {
		return false
	}
	switch serr.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// createSchema creates the database tables and indexes.
func (s *Store) createSchema() error {
	schema := `
	PRAGMA foreign_keys = ON;

	CREATE TABLE IF NOT EXISTS sources (
		id INTEGER PRIMARY KEY,
		title TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS folders (
		id INTEGER PRIMARY KEY,
		source_id INTEGER NOT NULL,
		parent_id INTEGER NOT NULL DEFAULT 0,
		title TEXT NOT NULL,
		sort_order INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (source_id) REFERENCES sources(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS feeds (
		id INTEGER PRIMARY KEY,
		source_id INTEGER NOT NULL,
		folder_id INTEGER NOT NULL DEFAULT 0,
		url TEXT NOT NULL,
		title TEXT,
		sort_order INTEGER NOT NULL DEFAULT 0,
		last_refreshed INTEGER,
		last_refresh_error TEXT,
		refresh_interval INTEGER,
		FOREIGN KEY (source_id) REFERENCES sources(id) ON DELETE CASCADE,
		UNIQUE(source_id, url)
	);

	CREATE TABLE IF NOT EXISTS posts (
		id INTEGER PRIMARY KEY,
		feed_id INTEGER NOT NULL,
		guid TEXT NOT NULL,
		title TEXT,
		link TEXT,
		content TEXT,
		published INTEGER NOT NULL,
		is_read INTEGER DEFAULT 0,
		content_hash TEXT NOT NULL DEFAULT '',
		author TEXT NOT NULL DEFAULT '',
		comments_url TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (feed_id) REFERENCES feeds(id) ON DELETE CASCADE,
		UNIQUE(feed_id, guid)
	);

	CREATE TABLE IF NOT EXISTS post_categories (
		post_id INTEGER NOT NULL,
		position INTEGER NOT NULL,
		name TEXT NOT NULL,
		PRIMARY KEY (post_id, position),
		FOREIGN KEY (post_id) REFERENCES posts(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS post_enclosures (
		post_id INTEGER NOT NULL,
		position INTEGER NOT NULL,
		url TEXT NOT NULL,
		mime_type TEXT NOT NULL DEFAULT '',
		size INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (post_id, position),
		FOREIGN KEY (post_id) REFERENCES posts(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS post_flags (
		post_id INTEGER NOT NULL,
		color INTEGER NOT NULL,
		PRIMARY KEY (post_id, color),
		FOREIGN KEY (post_id) REFERENCES posts(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS script_folders (
		id INTEGER PRIMARY KEY,
		title TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS script_folder_posts (
		script_folder_id INTEGER NOT NULL,
		post_id INTEGER NOT NULL,
		PRIMARY KEY (script_folder_id, post_id),
		FOREIGN KEY (script_folder_id) REFERENCES script_folders(id) ON DELETE CASCADE,
		FOREIGN KEY (post_id) REFERENCES posts(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS scripts (
		id INTEGER PRIMARY KEY,
		filename TEXT NOT NULL,
		enabled INTEGER DEFAULT 0,
		events TEXT NOT NULL DEFAULT '',
		scope_all INTEGER DEFAULT 0,
		scope_feed_ids TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL DEFAULT '',
		last_run INTEGER,
		last_error TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp INTEGER NOT NULL,
		level TEXT NOT NULL,
		message TEXT NOT NULL,
		feed_id INTEGER
	);

	CREATE TABLE IF NOT EXISTS store_owner (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		pid INTEGER NOT NULL,
		opened_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_posts_published ON posts(published DESC);
	CREATE INDEX IF NOT EXISTS idx_posts_feed_id ON posts(feed_id);
	CREATE INDEX IF NOT EXISTS idx_logs_feed_id ON logs(feed_id);
	CREATE INDEX IF NOT EXISTS idx_logs_timestamp ON logs(timestamp DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// migrate adds columns introduced after a database was first created.
func (s *Store) migrate() error {
	columns := []struct{ table, name, def string }{
		{"posts", "author", "TEXT NOT NULL DEFAULT ''"},
		{"posts", "comments_url", "TEXT NOT NULL DEFAULT ''"},
	}
	for _, c := range columns {
		ok, err := s.hasColumn(c.table, c.name)
		if err != nil {
			return err
		}
		if ok {
			continue
		}
		if _, err := s.db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", c.table, c.name, c.def)); err != nil {
			return fmt.Errorf("failed to add %s.%s: %w", c.table, c.name, err)
		}
	}
	return nil
}

func (s *Store) hasColumn(table, column string) (bool, error) {
	rows, err := s.db.Query("SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return false, fmt.Errorf("failed to inspect %s: %w", table, err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// Snapshot is the full persisted state, in id order.
type Snapshot struct {
	Sources       []model.Source
	Folders       []model.Folder
	Feeds         []model.Feed
	Posts         []model.Post
	ScriptFolders []model.ScriptFolder
}

// Load reads every source, folder, feed, post and script folder.
func (s *Store) Load() (*Snapshot, error) {
	snap := &Snapshot{}

	if err := s.loadSources(snap); err != nil {
		return nil, err
	}
	if err := s.loadFolders(snap); err != nil {
		return nil, err
	}
	if err := s.loadFeeds(snap); err != nil {
		return nil, err
	}
	if err := s.loadPosts(snap); err != nil {
		return nil, err
	}
	if err := s.loadScriptFolders(snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *Store) loadSources(snap *Snapshot) error {
	rows, err := s.db.Query("SELECT id, title FROM sources ORDER BY id")
	if err != nil {
		return fmt.Errorf("failed to query sources: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var src model.Source
		if err := rows.Scan(&src.ID, &src.Title); err != nil {
			return fmt.Errorf("failed to scan source: %w", err)
		}
		snap.Sources = append(snap.Sources, src)
	}
	return rows.Err()
}

func (s *Store) loadFolders(snap *Snapshot) error {
	rows, err := s.db.Query("SELECT id, source_id, parent_id, title FROM folders ORDER BY sort_order, id")
	if err != nil {
		return fmt.Errorf("failed to query folders: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var f model.Folder
		if err := rows.Scan(&f.ID, &f.SourceID, &f.ParentID, &f.Title); err != nil {
			return fmt.Errorf("failed to scan folder: %w", err)
		}
		snap.Folders = append(snap.Folders, f)
	}
	return rows.Err()
}

func (s *Store) loadFeeds(snap *Snapshot) error {
	rows, err := s.db.Query(`SELECT id, source_id, folder_id, url, title, last_refreshed, last_refresh_error, refresh_interval
		FROM feeds ORDER BY sort_order, id`)
	if err != nil {
		return fmt.Errorf("failed to query feeds: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			f         model.Feed
			title     sql.NullString
			refreshed sql.NullInt64
			lastErr   sql.NullString
			interval  sql.NullInt64
		)
		if err := rows.Scan(&f.ID, &f.SourceID, &f.FolderID, &f.URL, &title, &refreshed, &lastErr, &interval); err != nil {
			return fmt.Errorf("failed to scan feed: %w", err)
		}
		f.Title = title.String
		f.LastRefreshError = lastErr.String
		if refreshed.Valid {
			t := unixToTime(refreshed.Int64)
			f.LastRefreshed = &t
		}
		if interval.Valid {
			d := time.Duration(interval.Int64) * time.Second
			f.RefreshInterval = &d
		}
		snap.Feeds = append(snap.Feeds, f)
	}
	return rows.Err()
}

func (s *Store) loadPosts(snap *Snapshot) error {
	rows, err := s.db.Query(`SELECT id, feed_id, guid, title, link, content, author, comments_url, published, is_read, content_hash
		FROM posts ORDER BY id`)
	if err != nil {
		return fmt.Errorf("failed to query posts: %w", err)
	}
	defer rows.Close()

	index := make(map[int64]int)
	for rows.Next() {
		var (
			p                    model.Post
			title, link, content sql.NullString
			publishedUnix        int64
			isReadInt            int
		)
		if err := rows.Scan(&p.ID, &p.FeedID, &p.GUID, &title, &link, &content, &p.Author, &p.CommentsURL, &publishedUnix, &isReadInt, &p.ContentHash); err != nil {
			return fmt.Errorf("failed to scan post: %w", err)
		}
		p.Title, p.Link, p.Content = title.String, link.String, content.String
		p.Published = unixToTime(publishedUnix)
		p.IsRead = intToBool(isReadInt)
		index[p.ID] = len(snap.Posts)
		snap.Posts = append(snap.Posts, p)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	catRows, err := s.db.Query("SELECT post_id, name FROM post_categories ORDER BY post_id, position")
	if err != nil {
		return fmt.Errorf("failed to query categories: %w", err)
	}
	defer catRows.Close()
	for catRows.Next() {
		var postID int64
		var name string
		if err := catRows.Scan(&postID, &name); err != nil {
			return fmt.Errorf("failed to scan category: %w", err)
		}
		if i, ok := index[postID]; ok {
			snap.Posts[i].Categories = append(snap.Posts[i].Categories, name)
		}
	}
	if err := catRows.Err(); err != nil {
		return err
	}

	encRows, err := s.db.Query("SELECT post_id, url, mime_type, size FROM post_enclosures ORDER BY post_id, position")
	if err != nil {
		return fmt.Errorf("failed to query enclosures: %w", err)
	}
	defer encRows.Close()
	for encRows.Next() {
		var postID int64
		var e model.Enclosure
		if err := encRows.Scan(&postID, &e.URL, &e.MimeType, &e.Size); err != nil {
			return fmt.Errorf("failed to scan enclosure: %w", err)
		}
		if i, ok := index[postID]; ok {
			snap.Posts[i].Enclosures = append(snap.Posts[i].Enclosures, e)
		}
	}
	if err := encRows.Err(); err != nil {
		return err
	}

	flagRows, err := s.db.Query("SELECT post_id, color FROM post_flags")
	if err != nil {
		return fmt.Errorf("failed to query flags: %w", err)
	}
	defer flagRows.Close()
	for flagRows.Next() {
		var postID int64
		var color int
		if err := flagRows.Scan(&postID, &color); err != nil {
			return fmt.Errorf("failed to scan flag: %w", err)
		}
		if i, ok := index[postID]; ok {
			snap.Posts[i].Flags = snap.Posts[i].Flags.With(model.FlagColor(color))
		}
	}
	if err := flagRows.Err(); err != nil {
		return err
	}

	memberRows, err := s.db.Query("SELECT script_folder_id, post_id FROM script_folder_posts ORDER BY script_folder_id")
	if err != nil {
		return fmt.Errorf("failed to query script folder posts: %w", err)
	}
	defer memberRows.Close()
	for memberRows.Next() {
		var sfID, postID int64
		if err := memberRows.Scan(&sfID, &postID); err != nil {
			return fmt.Errorf("failed to scan script folder post: %w", err)
		}
		if i, ok := index[postID]; ok {
			snap.Posts[i].ScriptFolderIDs = append(snap.Posts[i].ScriptFolderIDs, sfID)
		}
	}
	return memberRows.Err()
}

func (s *Store) loadScriptFolders(snap *Snapshot) error {
	rows, err := s.db.Query("SELECT id, title FROM script_folders ORDER BY id")
	if err != nil {
		return fmt.Errorf("failed to query script folders: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sf model.ScriptFolder
		if err := rows.Scan(&sf.ID, &sf.Title); err != nil {
			return fmt.Errorf("failed to scan script folder: %w", err)
		}
		snap.ScriptFolders = append(snap.ScriptFolders, sf)
	}
	return rows.Err()
}

// Tx is a write transaction. Every mutation of the tree goes through one.
type Tx struct {
	tx *sql.Tx
}

// Begin starts a write transaction.
func (s *Store) Begin() (*Tx, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Tx{tx: tx}, nil
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Rollback aborts the transaction. It is safe to call after Commit.
func (t *Tx) Rollback() error {
	err := t.tx.Rollback()
	if err == sql.ErrTxDone {
		return nil
	}
	return err
}

func (t *Tx) exec(what, query string, args ...interface{}) error {
	if _, err := t.tx.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to %s: %w", what, err)
	}
	return nil
}

// InsertSource inserts a source with its preassigned ID.
func (t *Tx) InsertSource(src model.Source) error {
	return t.exec("insert source", "INSERT INTO sources (id, title) VALUES (?, ?)", src.ID, src.Title)
}

// DeleteSource deletes a source row. Callers delete its folders and feeds first.
func (t *Tx) DeleteSource(id int64) error {
	return t.exec("delete source", "DELETE FROM sources WHERE id = ?", id)
}

// InsertFolder inserts a folder with its preassigned ID.
func (t *Tx) InsertFolder(f model.Folder, sortOrder int) error {
	return t.exec("insert folder",
		"INSERT INTO folders (id, source_id, parent_id, title, sort_order) VALUES (?, ?, ?, ?, ?)",
		f.ID, f.SourceID, f.ParentID, f.Title, sortOrder,
	)
}

// UpdateFolder saves a folder's title, parent and position.
func (t *Tx) UpdateFolder(f model.Folder, sortOrder int) error {
	return t.exec("update folder",
		"UPDATE folders SET parent_id = ?, title = ?, sort_order = ? WHERE id = ?",
		f.ParentID, f.Title, sortOrder, f.ID,
	)
}

// DeleteFolders deletes folder rows. Callers delete contained feeds first.
func (t *Tx) DeleteFolders(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	in, args := inClause(ids)
	return t.exec("delete folders", "DELETE FROM folders WHERE id IN "+in, args...)
}

// InsertFeed inserts a feed with its preassigned ID.
func (t *Tx) InsertFeed(f model.Feed, sortOrder int) error {
	return t.exec("insert feed",
		`INSERT INTO feeds (id, source_id, folder_id, url, title, sort_order, last_refreshed, last_refresh_error, refresh_interval)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.SourceID, f.FolderID, f.URL, f.Title, sortOrder,
		nullableTime(f.LastRefreshed), nullableString(f.LastRefreshError), nullableDuration(f.RefreshInterval),
	)
}

// UpdateFeed saves every mutable feed column.
func (t *Tx) UpdateFeed(f model.Feed, sortOrder int) error {
	return t.exec("update feed",
		`UPDATE feeds SET folder_id = ?, url = ?, title = ?, sort_order = ?, last_refreshed = ?,
		last_refresh_error = ?, refresh_interval = ? WHERE id = ?`,
		f.FolderID, f.URL, f.Title, sortOrder, nullableTime(f.LastRefreshed),
		nullableString(f.LastRefreshError), nullableDuration(f.RefreshInterval), f.ID,
	)
}

// DeleteFeeds deletes feeds with their posts, flags, memberships and logs.
func (t *Tx) DeleteFeeds(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	in, args := inClause(ids)
	statements := []struct{ what, query string }{
		{"delete flags", "DELETE FROM post_flags WHERE post_id IN (SELECT id FROM posts WHERE feed_id IN " + in + ")"},
		{"delete categories", "DELETE FROM post_categories WHERE post_id IN (SELECT id FROM posts WHERE feed_id IN " + in + ")"},
		{"delete enclosures", "DELETE FROM post_enclosures WHERE post_id IN (SELECT id FROM posts WHERE feed_id IN " + in + ")"},
		{"delete memberships", "DELETE FROM script_folder_posts WHERE post_id IN (SELECT id FROM posts WHERE feed_id IN " + in + ")"},
		{"delete posts", "DELETE FROM posts WHERE feed_id IN " + in},
		{"delete logs", "DELETE FROM logs WHERE feed_id IN " + in},
		{"delete feeds", "DELETE FROM feeds WHERE id IN " + in},
	}
	for _, st := range statements {
		if err := t.exec(st.what, st.query, args...); err != nil {
			return err
		}
	}
	return nil
}

// InsertPost inserts a post with its preassigned ID, categories and
// enclosures.
func (t *Tx) InsertPost(p model.Post) error {
	if err := t.exec("insert post",
		`INSERT INTO posts (id, feed_id, guid, title, link, content, author, comments_url, published, is_read, content_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.FeedID, p.GUID, p.Title, p.Link, p.Content, p.Author, p.CommentsURL,
		p.Published.Unix(), boolToInt(p.IsRead), p.ContentHash,
	); err != nil {
		return err
	}
	return t.insertPostMetadata(p)
}

// UpdatePostContent overwrites the mutable content columns of a post and
// replaces its categories and enclosures. Read state, flags and memberships
// are left alone.
func (t *Tx) UpdatePostContent(p model.Post) error {
	if err := t.exec("update post",
		`UPDATE posts SET title = ?, link = ?, content = ?, author = ?, comments_url = ?, published = ?, content_hash = ?
		WHERE id = ?`,
		p.Title, p.Link, p.Content, p.Author, p.CommentsURL, p.Published.Unix(), p.ContentHash, p.ID,
	); err != nil {
		return err
	}
	if err := t.exec("clear categories", "DELETE FROM post_categories WHERE post_id = ?", p.ID); err != nil {
		return err
	}
	if err := t.exec("clear enclosures", "DELETE FROM post_enclosures WHERE post_id = ?", p.ID); err != nil {
		return err
	}
	return t.insertPostMetadata(p)
}

func (t *Tx) insertPostMetadata(p model.Post) error {
	for i, name := range p.Categories {
		if err := t.exec("insert category",
			"INSERT INTO post_categories (post_id, position, name) VALUES (?, ?, ?)", p.ID, i, name,
		); err != nil {
			return err
		}
	}
	for i, e := range p.Enclosures {
		if err := t.exec("insert enclosure",
			"INSERT INTO post_enclosures (post_id, position, url, mime_type, size) VALUES (?, ?, ?, ?, ?)",
			p.ID, i, e.URL, e.MimeType, e.Size,
		); err != nil {
			return err
		}
	}
	return nil
}

// SetPostsRead marks posts as read or unread.
func (t *Tx) SetPostsRead(ids []int64, isRead bool) error {
	for _, chunk := range chunks(ids) {
		in, args := inClause(chunk)
		args = append([]interface{}{boolToInt(isRead)}, args...)
		if err := t.exec("mark posts", "UPDATE posts SET is_read = ? WHERE id IN "+in, args...); err != nil {
			return err
		}
	}
	return nil
}

// SetPostFlag attaches or detaches a flag color.
func (t *Tx) SetPostFlag(postID int64, color model.FlagColor, flagged bool) error {
	if flagged {
		return t.exec("flag post", "INSERT OR IGNORE INTO post_flags (post_id, color) VALUES (?, ?)", postID, int(color))
	}
	return t.exec("unflag post", "DELETE FROM post_flags WHERE post_id = ? AND color = ?", postID, int(color))
}

// InsertScriptFolder inserts a script folder with its preassigned ID.
func (t *Tx) InsertScriptFolder(sf model.ScriptFolder) error {
	return t.exec("insert script folder", "INSERT INTO script_folders (id, title) VALUES (?, ?)", sf.ID, sf.Title)
}

// UpdateScriptFolder renames a script folder.
func (t *Tx) UpdateScriptFolder(sf model.ScriptFolder) error {
	return t.exec("update script folder", "UPDATE script_folders SET title = ? WHERE id = ?", sf.Title, sf.ID)
}

// DeleteScriptFolder removes the container and its memberships, never the posts.
func (t *Tx) DeleteScriptFolder(id int64) error {
	if err := t.exec("delete memberships", "DELETE FROM script_folder_posts WHERE script_folder_id = ?", id); err != nil {
		return err
	}
	return t.exec("delete script folder", "DELETE FROM script_folders WHERE id = ?", id)
}

// AddScriptFolderPost records a membership; adding twice is a no-op.
func (t *Tx) AddScriptFolderPost(scriptFolderID, postID int64) error {
	return t.exec("assign post",
		"INSERT OR IGNORE INTO script_folder_posts (script_folder_id, post_id) VALUES (?, ?)",
		scriptFolderID, postID,
	)
}

// RemoveScriptFolderPost drops a membership; removing an absent one is a no-op.
func (t *Tx) RemoveScriptFolderPost(scriptFolderID, postID int64) error {
	return t.exec("unassign post",
		"DELETE FROM script_folder_posts WHERE script_folder_id = ? AND post_id = ?",
		scriptFolderID, postID,
	)
}

// Helper functions for boolean<->int conversion (SQLite doesn't have BOOLEAN type)
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func intToBool(i int) bool {
	return i != 0
}

// Helper to convert Unix timestamp to time.Time
func unixToTime(unix int64) time.Time {
	return time.Unix(unix, 0)
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullableDuration(d *time.Duration) interface{} {
	if d == nil {
		return nil
	}
	return int64(*d / time.Second)
}

// inClause renders "(?, ?, ...)" with matching arguments.
func inClause(ids []int64) (string, []interface{}) {
	args := make([]interface{}, len(ids))
	marks := make([]string, len(ids))
	for i, id := range ids {
		args[i] = id
		marks[i] = "?"
	}
	return "(" + strings.Join(marks, ", ") + ")", args
}

const maxChunk = 500

func chunks(ids []int64) [][]int64 {
	var out [][]int64
	for len(ids) > maxChunk {
		out = append(out, ids[:maxChunk])
		ids = ids[maxChunk:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

func splitIDs(s string) ([]int64, error) {
	if s == "" {
		return nil, nil
	}
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
