// Package model defines the core data structures for feedcore.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

// Source is a top-level aggregator connection owning a folder/feed forest.
type Source struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	Unread int    `json:"unread"`
}

// Folder is a named container inside a source. ParentID is 0 for folders
// directly under the source.
type Folder struct {
	ID       int64  `json:"id"`
	SourceID int64  `json:"source_id"`
	ParentID int64  `json:"parent_id"`
	Title    string `json:"title"`
	Unread   int    `json:"unread"`
}

// Feed represents an RSS/Atom feed subscription. FolderID is 0 for feeds
// placed directly under the source.
type Feed struct {
	ID               int64          `json:"id"`
	SourceID         int64          `json:"source_id"`
	FolderID         int64          `json:"folder_id"`
	URL              string         `json:"url"`
	Title            string         `json:"title"`
	LastRefreshed    *time.Time     `json:"last_refreshed,omitempty"`
	LastRefreshError string         `json:"last_refresh_error,omitempty"`
	RefreshInterval  *time.Duration `json:"refresh_interval,omitempty"`
	Unread           int            `json:"unread"`
}

// Validate checks if the feed has required fields.
func (f *Feed) Validate() error {
	if f.URL == "" {
		return errors.New("feed URL is required")
	}
	return nil
}

// Post represents a single entry of a feed.
type Post struct {
	ID              int64       `json:"id"`
	FeedID          int64       `json:"feed_id"`
	GUID            string      `json:"guid"`
	Title           string      `json:"title"`
	Link            string      `json:"link"`
	Content         string      `json:"content"`
	Author          string      `json:"author,omitempty"`
	CommentsURL     string      `json:"comments_url,omitempty"`
	Categories      []string    `json:"categories,omitempty"`
	Enclosures      []Enclosure `json:"enclosures,omitempty"`
	Published       time.Time   `json:"published"`
	IsRead          bool        `json:"is_read"`
	Flags           FlagSet     `json:"flags"`
	ScriptFolderIDs []int64     `json:"script_folder_ids,omitempty"`
	ContentHash     string      `json:"-"`
}

// Enclosure is a media attachment of a post. Size is in bytes, 0 when the
// feed does not say.
type Enclosure struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// IsUnread returns true if the post hasn't been read.
func (p *Post) IsUnread() bool {
	return !p.IsRead
}

// Age returns how long ago the post was published.
func (p *Post) Age() time.Duration {
	return time.Since(p.Published)
}

// HasCategory reports whether the post carries the category, ignoring case.
func (p *Post) HasCategory(name string) bool {
	for _, c := range p.Categories {
		if strings.EqualFold(c, name) {
			return true
		}
	}
	return false
}

// InScriptFolder reports whether the post is a member of the script folder.
func (p *Post) InScriptFolder(id int64) bool {
	for _, sf := range p.ScriptFolderIDs {
		if sf == id {
			return true
		}
	}
	return false
}

// ScriptFolder is a curated collection of posts independent of the feed tree.
type ScriptFolder struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	Total  int    `json:"total"`
	Unread int    `json:"unread"`
}

// Candidate is a normalized item returned by a content source adapter.
type Candidate struct {
	GUID        string      `json:"guid"`
	Title       string      `json:"title"`
	Link        string      `json:"link"`
	Content     string      `json:"content"`
	Author      string      `json:"author,omitempty"`
	CommentsURL string      `json:"comments_url,omitempty"`
	Categories  []string    `json:"categories,omitempty"`
	Enclosures  []Enclosure `json:"enclosures,omitempty"`
	Published   time.Time   `json:"published"`
}

// Identity returns the stable external identity of the candidate: the GUID,
// else the link, else a digest of title and timestamp.
func (c *Candidate) Identity() string {
	if c.GUID != "" {
		return c.GUID
	}
	if c.Link != "" {
		return c.Link
	}
	sum := sha256.Sum256([]byte(c.Title + "\x00" + strconv.FormatInt(c.Published.Unix(), 10)))
	return "sha256:" + hex.EncodeToString(sum[:])
}

// ContentHash digests the mutable fields used for change detection. The
// metadata fields only contribute when set, so items without them keep the
// digest they had before those fields existed.
func (c *Candidate) ContentHash() string {
	h := sha256.New()
	for _, s := range []string{c.Title, c.Link, c.Content, strconv.FormatInt(c.Published.Unix(), 10)} {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	field := func(tag string, vals ...string) {
		h.Write([]byte(tag))
		h.Write([]byte{0})
		for _, v := range vals {
			h.Write([]byte(v))
			h.Write([]byte{0})
		}
	}
	if c.Author != "" {
		field("author", c.Author)
	}
	if c.CommentsURL != "" {
		field("comments", c.CommentsURL)
	}
	for _, cat := range c.Categories {
		field("category", cat)
	}
	for _, e := range c.Enclosures {
		field("enclosure", e.URL, e.MimeType, strconv.FormatInt(e.Size, 10))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Subscription is one entry of a bulk import: a feed URL and the folder path
// (outermost first) it belongs in. An empty path places the feed at the
// source root.
type Subscription struct {
	FolderPath []string `json:"folder_path,omitempty"`
	URL        string   `json:"url"`
	Title      string   `json:"title,omitempty"`
}

// TreeNode is one element of an enumerated source tree.
type TreeNode struct {
	Kind     NodeKind    `json:"kind"`
	ID       int64       `json:"id"`
	Title    string      `json:"title"`
	URL      string      `json:"url,omitempty"`
	Unread   int         `json:"unread"`
	Error    string      `json:"error,omitempty"`
	Children []*TreeNode `json:"children,omitempty"`
}

// LogLevel is the severity of a persisted log entry.
type LogLevel string

const (
	LogDebug   LogLevel = "debug"
	LogInfo    LogLevel = "info"
	LogWarning LogLevel = "warning"
	LogError   LogLevel = "error"
)

// LogEntry is a persisted log line, optionally attached to a feed.
type LogEntry struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Level     LogLevel  `json:"level"`
	Message   string    `json:"message"`
	FeedID    int64     `json:"feed_id,omitempty"`
}
