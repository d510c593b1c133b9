package store

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robertmeta/feedcore/model"
)

// durationPattern matches duration strings like "7d", "2w", "3m", "1y"
var durationPattern = regexp.MustCompile(`^(\d+)([dwmy])$`)

// ParseDuration parses a duration string like "7d", "2w", "3m", "1y".
// Returns the duration or an error if the format is invalid.
//
// Supported units:
//   - d: days
//   - w: weeks (7 days)
//   - m: months (30 days, approximation)
//   - y: years (365 days, approximation)
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("duration string is empty")
	}

	matches := durationPattern.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("invalid duration format: %s (expected format: <number><unit>, e.g., 7d, 2w, 3m, 1y)", s)
	}

	num, err := strconv.Atoi(matches[1])
	if err != nil || num < 0 {
		return 0, fmt.Errorf("invalid number in duration: %s", matches[1])
	}

	day := 24 * time.Hour
	switch matches[2] {
	case "d":
		return time.Duration(num) * day, nil
	case "w":
		return time.Duration(num) * 7 * day, nil
	case "m": // months (approximate as 30 days)
		return time.Duration(num) * 30 * day, nil
	case "y": // years (approximate as 365 days)
		return time.Duration(num) * 365 * day, nil
	}
	return 0, fmt.Errorf("invalid duration unit: %s (expected d, w, m, or y)", matches[2])
}

// SinceToTime converts a "since" duration string (e.g., "7d") to the point in
// time that lies that far before now.
func SinceToTime(since string, now time.Time) (time.Time, error) {
	duration, err := ParseDuration(since)
	if err != nil {
		return time.Time{}, err
	}
	return now.Add(-duration), nil
}

// FilterParams are the raw listing options accepted by the CLI and HTTP API.
type FilterParams struct {
	Filter       string // all, unread, flagged, unflagged, scriptfolder
	Flags        string // comma separated color names
	ScriptFolder int64
	Since        string
	Search       string
	Category     string
	Order        string // newest, oldest
}

// BuildPostFilter constructs a PostFilter from raw listing options.
func BuildPostFilter(p FilterParams) (model.PostFilter, error) {
	f := model.PostFilter{
		Kind:           model.FilterKind(p.Filter),
		ScriptFolderID: p.ScriptFolder,
		Search:         p.Search,
		Category:       strings.TrimSpace(p.Category),
		Order:          model.SortOrder(p.Order),
	}

	if f.Kind == "" {
		f.Kind = model.FilterAll
		if p.Flags != "" {
			f.Kind = model.FilterFlagged
		} else if p.ScriptFolder != 0 {
			f.Kind = model.FilterScriptFolder
		}
	}

	switch f.Kind {
	case model.FilterAll, model.FilterUnread, model.FilterFlagged, model.FilterUnflagged:
	case model.FilterScriptFolder:
		if p.ScriptFolder == 0 {
			return f, fmt.Errorf("filter %q requires a script folder id", p.Filter)
		}
	default:
		return f, fmt.Errorf("unknown filter %q", p.Filter)
	}

	switch f.Order {
	case "":
		f.Order = model.NewestFirst
	case model.NewestFirst, model.OldestFirst:
	default:
		return f, fmt.Errorf("unknown order %q (expected newest or oldest)", p.Order)
	}

	if p.Flags != "" {
		for _, name := range strings.Split(p.Flags, ",") {
			c, err := model.ParseFlagColor(name)
			if err != nil {
				return f, err
			}
			f.Flags = f.Flags.With(c)
		}
	}

	if p.Since != "" {
		since, err := SinceToTime(p.Since, time.Now())
		if err != nil {
			return f, fmt.Errorf("failed to parse since: %w", err)
		}
		f.Since = &since
	}

	return f, nil
}
