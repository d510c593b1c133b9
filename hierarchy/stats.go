package hierarchy

import (
	"sort"
	"strings"

	"github.com/robertmeta/feedcore/model"
)

// Categories lists the distinct categories of the posts in scope, sorted by
// name, with how many posts carry each. Names are compared without case;
// the spelling reported is the first one seen in post id order.
func (t *Tree) Categories(scope model.NodeRef) ([]model.Category, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	posts, err := t.postsIn(scope)
	if err != nil {
		return nil, err
	}
	sort.Slice(posts, func(i, j int) bool { return posts[i].ID < posts[j].ID })

	index := make(map[string]int)
	out := []model.Category{}
	for _, p := range posts {
		seen := make(map[string]struct{}, len(p.Categories))
		for _, name := range p.Categories {
			key := strings.ToLower(name)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			i, ok := index[key]
			if !ok {
				i = len(out)
				index[key] = i
				out = append(out, model.Category{Name: name})
			}
			out[i].PostCount++
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

// Statistics summarizes a node: for tree nodes the feeds beneath it, posts
// or not, and for posts and script folders the feeds their posts come from.
// The zero NodeRef covers everything.
func (t *Tree) Statistics(scope model.NodeRef) (model.Statistics, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	posts, err := t.postsIn(scope)
	if err != nil {
		return model.Statistics{}, err
	}

	var stats model.Statistics
	switch scope.Kind {
	case "":
		stats.FeedCount = len(t.feeds)
	case model.NodeFeed, model.NodeFolder, model.NodeSource:
		ids, err := t.scopeFeeds(scope)
		if err != nil {
			return model.Statistics{}, err
		}
		stats.FeedCount = len(ids)
	default:
		feeds := make(map[int64]struct{})
		for _, p := range posts {
			feeds[p.FeedID] = struct{}{}
		}
		stats.FeedCount = len(feeds)
	}

	for _, p := range posts {
		stats.PostCount++
		if p.IsUnread() {
			stats.UnreadCount++
		}
		if !p.Flags.Empty() {
			stats.FlaggedPostCount++
		}
		published := p.Published
		if stats.OldestPost == nil || published.Before(*stats.OldestPost) {
			stats.OldestPost = &published
		}
		if stats.NewestPost == nil || published.After(*stats.NewestPost) {
			newest := published
			stats.NewestPost = &newest
		}
	}
	return stats, nil
}
