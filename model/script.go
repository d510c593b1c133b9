package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// EventKind is a content-change event a script can subscribe to.
type EventKind string

const (
	EventNewPost     EventKind = "new-post"
	EventUpdatedPost EventKind = "updated-post"
)

// ParseEventKind validates an event name.
func ParseEventKind(s string) (EventKind, error) {
	switch EventKind(s) {
	case EventNewPost, EventUpdatedPost:
		return EventKind(s), nil
	}
	return "", fmt.Errorf("unknown event %q (expected %s or %s)", s, EventNewPost, EventUpdatedPost)
}

// Scope selects the feeds a script runs on: every feed, or an explicit
// subset. The zero value is an empty subset and matches nothing.
type Scope struct {
	all     bool
	feedIDs []int64
}

// AllFeeds returns the scope matching every feed.
func AllFeeds() Scope {
	return Scope{all: true}
}

// FeedSubset returns a scope matching exactly the given feeds.
func FeedSubset(ids ...int64) Scope {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return Scope{feedIDs: out}
}

// IsAll reports whether the scope covers every feed.
func (s Scope) IsAll() bool {
	return s.all
}

// FeedIDs returns the explicit subset; nil for the all-feeds scope.
func (s Scope) FeedIDs() []int64 {
	if s.all {
		return nil
	}
	return append([]int64{}, s.feedIDs...)
}

// Contains reports whether the scope matches feedID.
func (s Scope) Contains(feedID int64) bool {
	if s.all {
		return true
	}
	i := sort.Search(len(s.feedIDs), func(i int) bool { return s.feedIDs[i] >= feedID })
	return i < len(s.feedIDs) && s.feedIDs[i] == feedID
}

type scopeJSON struct {
	All     bool    `json:"all,omitempty"`
	FeedIDs []int64 `json:"feed_ids,omitempty"`
}

// MarshalJSON encodes {"all":true} or {"feed_ids":[...]}.
func (s Scope) MarshalJSON() ([]byte, error) {
	if s.all {
		return json.Marshal(scopeJSON{All: true})
	}
	return json.Marshal(scopeJSON{FeedIDs: s.FeedIDs()})
}

// UnmarshalJSON decodes the form written by MarshalJSON.
func (s *Scope) UnmarshalJSON(data []byte) error {
	var v scopeJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v.All {
		*s = AllFeeds()
		return nil
	}
	*s = FeedSubset(v.FeedIDs...)
	return nil
}

// Script is a user automation unit triggered by content events.
type Script struct {
	ID        int64       `json:"id"`
	Filename  string      `json:"filename"`
	Enabled   bool        `json:"enabled"`
	Events    []EventKind `json:"events"`
	Scope     Scope       `json:"scope"`
	Source    string      `json:"source"`
	LastRun   *time.Time  `json:"last_run,omitempty"`
	LastError string      `json:"last_error,omitempty"`
}

// Validate checks if the script has required fields.
func (s *Script) Validate() error {
	if s.Filename == "" {
		return fmt.Errorf("script filename is required")
	}
	for _, e := range s.Events {
		if _, err := ParseEventKind(string(e)); err != nil {
			return err
		}
	}
	return nil
}

// RunsOn reports whether the script subscribes to the event kind.
func (s *Script) RunsOn(kind EventKind) bool {
	for _, e := range s.Events {
		if e == kind {
			return true
		}
	}
	return false
}

// Matches applies the registry matching rule.
func (s *Script) Matches(feedID int64, kind EventKind) bool {
	return s.Enabled && s.RunsOn(kind) && s.Scope.Contains(feedID)
}

// ScriptRun is the outcome of executing one script for one event.
type ScriptRun struct {
	ScriptID int64     `json:"script_id"`
	PostID   int64     `json:"post_id"`
	Event    EventKind `json:"event"`
	Error    string    `json:"error,omitempty"`
}

// Failed reports whether the run ended in a script failure.
func (r ScriptRun) Failed() bool {
	return r.Error != ""
}

// PostChange pairs an ingested post with the event it produced.
type PostChange struct {
	Post Post      `json:"post"`
	Kind EventKind `json:"kind"`
}

// RefreshOutcome is the result of one refresh cycle of a feed.
type RefreshOutcome struct {
	FeedID     int64        `json:"feed_id"`
	Fetched    int          `json:"fetched"`
	New        int          `json:"new"`
	Updated    int          `json:"updated"`
	Unchanged  int          `json:"unchanged"`
	Changes    []PostChange `json:"changes,omitempty"`
	ScriptRuns []ScriptRun  `json:"script_runs,omitempty"`
}
