package model

import "time"

// FilterKind selects which posts a listing returns.
type FilterKind string

const (
	FilterAll          FilterKind = "all"
	FilterUnread       FilterKind = "unread"
	FilterFlagged      FilterKind = "flagged"
	FilterUnflagged    FilterKind = "unflagged"
	FilterScriptFolder FilterKind = "scriptfolder"
)

// SortOrder orders listings by published timestamp.
type SortOrder string

const (
	NewestFirst SortOrder = "newest"
	OldestFirst SortOrder = "oldest"
)

// PostFilter narrows a post listing. For FilterFlagged an empty Flags set
// means any flag.
type PostFilter struct {
	Kind           FilterKind `json:"kind"`
	Flags          FlagSet    `json:"flags,omitempty"`
	ScriptFolderID int64      `json:"script_folder_id,omitempty"`
	Since          *time.Time `json:"since,omitempty"`
	Search         string     `json:"search,omitempty"`
	Category       string     `json:"category,omitempty"`
	Order          SortOrder  `json:"order,omitempty"`
}

// PostPage is one page of a listing. PageIndex is 1-based.
type PostPage struct {
	Posts     []Post `json:"posts"`
	Total     int    `json:"total"`
	PageSize  int    `json:"page_size"`
	PageIndex int    `json:"page_index"`
	PageCount int    `json:"page_count"`
}

// Category is one distinct post category within a scope and how many posts
// carry it.
type Category struct {
	Name      string `json:"name"`
	PostCount int    `json:"post_count"`
}

// Statistics summarizes the posts under a node. OldestPost and NewestPost
// are nil when the node holds no posts.
type Statistics struct {
	FeedCount        int        `json:"feed_count"`
	PostCount        int        `json:"post_count"`
	UnreadCount      int        `json:"unread_count"`
	FlaggedPostCount int        `json:"flagged_post_count"`
	OldestPost       *time.Time `json:"oldest_post,omitempty"`
	NewestPost       *time.Time `json:"newest_post,omitempty"`
}
