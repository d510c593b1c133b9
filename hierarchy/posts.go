package hierarchy

import (
	"fmt"
	"time"

	"github.com/robertmeta/feedcore/model"
	"github.com/robertmeta/feedcore/store"
)

// postsIn resolves a scope to its posts. The zero NodeRef means every post.
func (t *Tree) postsIn(ref model.NodeRef) ([]*model.Post, error) {
	switch ref.Kind {
	case "":
		out := make([]*model.Post, 0, len(t.posts))
		for _, p := range t.posts {
			out = append(out, p)
		}
		return out, nil
	case model.NodePost:
		p, ok := t.posts[ref.ID]
		if !ok {
			return nil, model.Integrityf("post %d not found", ref.ID)
		}
		return []*model.Post{p}, nil
	case model.NodeScriptFolder:
		sf, ok := t.scriptFolders[ref.ID]
		if !ok {
			return nil, model.Integrityf("script folder %d not found", ref.ID)
		}
		out := make([]*model.Post, 0, len(sf.members))
		for pid := range sf.members {
			out = append(out, t.posts[pid])
		}
		return out, nil
	}

	feedIDs, err := t.scopeFeeds(ref)
	if err != nil {
		return nil, err
	}
	var out []*model.Post
	for _, fid := range feedIDs {
		for _, pid := range t.feeds[fid].posts {
			out = append(out, t.posts[pid])
		}
	}
	return out, nil
}

// MarkRead sets the read state of every post in scope (a post, feed, folder,
// source or script folder) and reports how many posts changed. Either every
// post changes or none does.
func (t *Tree) MarkRead(ref model.NodeRef, read bool) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	posts, err := t.postsIn(ref)
	if err != nil {
		return 0, err
	}
	var changed []*model.Post
	var ids []int64
	for _, p := range posts {
		if p.IsRead != read {
			changed = append(changed, p)
			ids = append(ids, p.ID)
		}
	}
	if len(changed) == 0 {
		return 0, nil
	}

	if err := t.write("failed to mark posts", func(tx *store.Tx) error {
		return tx.SetPostsRead(ids, read)
	}); err != nil {
		return 0, err
	}

	delta := -1
	if !read {
		delta = 1
	}
	for _, p := range changed {
		p.IsRead = read
		t.propagate(p, delta)
	}
	return len(changed), nil
}

// UnreadCount returns the maintained unread count of a node. The zero
// NodeRef counts every source.
func (t *Tree) UnreadCount(ref model.NodeRef) (int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	switch ref.Kind {
	case "":
		total := 0
		for _, src := range t.sources {
			total += src.Unread
		}
		return total, nil
	case model.NodePost:
		p, ok := t.posts[ref.ID]
		if !ok {
			return 0, model.Integrityf("post %d not found", ref.ID)
		}
		if p.IsUnread() {
			return 1, nil
		}
		return 0, nil
	case model.NodeFeed:
		if fn, ok := t.feeds[ref.ID]; ok {
			return fn.Unread, nil
		}
	case model.NodeFolder:
		if f, ok := t.folders[ref.ID]; ok {
			return f.Unread, nil
		}
	case model.NodeSource:
		if src, ok := t.sources[ref.ID]; ok {
			return src.Unread, nil
		}
	case model.NodeScriptFolder:
		if sf, ok := t.scriptFolders[ref.ID]; ok {
			return sf.Unread, nil
		}
	default:
		return 0, model.NewValidationError(fmt.Sprintf("unknown node kind %q", ref.Kind), nil)
	}
	return 0, model.Integrityf("%s not found", ref)
}

func (t *Tree) Post(id int64) (model.Post, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	p, ok := t.posts[id]
	if !ok {
		return model.Post{}, model.Integrityf("post %d not found", id)
	}
	return copyPost(p), nil
}

// SetFlag attaches or detaches a flag color. Setting a flag the post already
// carries, or clearing one it lacks, is a no-op.
func (t *Tree) SetFlag(postID int64, color model.FlagColor, on bool) error {
	if !color.Valid() {
		return model.NewValidationError(fmt.Sprintf("invalid flag color %d", color), nil)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.posts[postID]
	if !ok {
		return model.Integrityf("post %d not found", postID)
	}
	if p.Flags.Has(color) == on {
		return nil
	}
	if err := t.write("failed to flag post", func(tx *store.Tx) error {
		return tx.SetPostFlag(postID, color, on)
	}); err != nil {
		return err
	}
	if on {
		p.Flags = p.Flags.With(color)
	} else {
		p.Flags = p.Flags.Without(color)
	}
	return nil
}

// UsedFlagColors returns the union of flags carried by posts in scope.
func (t *Tree) UsedFlagColors(ref model.NodeRef) (model.FlagSet, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	posts, err := t.postsIn(ref)
	if err != nil {
		return 0, err
	}
	var used model.FlagSet
	for _, p := range posts {
		used |= p.Flags
	}
	return used, nil
}

// ApplyRefresh diffs fetched candidates against the feed's posts and stores
// the result in one transaction: new identities are inserted unread, changed
// ones get their content overwritten, unchanged ones are skipped. Read state,
// flags and script folder membership of existing posts are kept. Counters are
// updated before the lock is released. The returned changes are in candidate
// order; duplicate identities within one batch keep the first occurrence.
func (t *Tree) ApplyRefresh(feedID int64, candidates []model.Candidate, at time.Time) ([]model.PostChange, error) {
	at = time.Unix(at.Unix(), 0)

	t.mu.Lock()
	defer t.mu.Unlock()

	fn, ok := t.feeds[feedID]
	if !ok {
		return nil, model.Integrityf("feed %d not found", feedID)
	}

	var (
		changes []model.PostChange
		nextID  = t.nextPost
		seen    = make(map[string]struct{}, len(candidates))
	)
	for i := range candidates {
		c := &candidates[i]
		identity := c.Identity()
		if _, dup := seen[identity]; dup {
			continue
		}
		seen[identity] = struct{}{}

		hash := c.ContentHash()
		published := at
		if !c.Published.IsZero() {
			published = time.Unix(c.Published.Unix(), 0)
		}

		if pid, exists := fn.byGUID[identity]; exists {
			cur := t.posts[pid]
			if cur.ContentHash == hash {
				continue
			}
			upd := copyPost(cur)
			upd.Title, upd.Link, upd.Content, upd.ContentHash = c.Title, c.Link, c.Content, hash
			upd.Author, upd.CommentsURL = c.Author, c.CommentsURL
			upd.Categories = append([]string(nil), c.Categories...)
			upd.Enclosures = append([]model.Enclosure(nil), c.Enclosures...)
			if !c.Published.IsZero() {
				upd.Published = published
			}
			changes = append(changes, model.PostChange{Post: upd, Kind: model.EventUpdatedPost})
			continue
		}

		changes = append(changes, model.PostChange{
			Post: model.Post{
				ID:          nextID,
				FeedID:      feedID,
				GUID:        identity,
				Title:       c.Title,
				Link:        c.Link,
				Content:     c.Content,
				Author:      c.Author,
				CommentsURL: c.CommentsURL,
				Categories:  append([]string(nil), c.Categories...),
				Enclosures:  append([]model.Enclosure(nil), c.Enclosures...),
				Published:   published,
				ContentHash: hash,
			},
			Kind: model.EventNewPost,
		})
		nextID++
	}

	refreshed := fn.Feed
	refreshed.LastRefreshed = &at
	refreshed.LastRefreshError = ""

	if err := t.write("failed to apply refresh", func(tx *store.Tx) error {
		for _, ch := range changes {
			var err error
			if ch.Kind == model.EventNewPost {
				err = tx.InsertPost(ch.Post)
			} else {
				err = tx.UpdatePostContent(ch.Post)
			}
			if err != nil {
				return err
			}
		}
		return tx.UpdateFeed(refreshed, t.feedPosition(fn))
	}); err != nil {
		return nil, err
	}

	t.nextPost = nextID
	fn.Feed = refreshed
	for _, ch := range changes {
		if ch.Kind == model.EventNewPost {
			p := ch.Post
			t.posts[p.ID] = &p
			fn.posts = append(fn.posts, p.ID)
			fn.byGUID[p.GUID] = p.ID
			t.propagate(&p, 1)
			continue
		}
		cur := t.posts[ch.Post.ID]
		cur.Title, cur.Link, cur.Content = ch.Post.Title, ch.Post.Link, ch.Post.Content
		cur.Published, cur.ContentHash = ch.Post.Published, ch.Post.ContentHash
	}
	return changes, nil
}

// RecordRefreshFailure stores the error on the feed and in the log. Posts
// already stored are left alone.
func (t *Tree) RecordRefreshFailure(feedID int64, cause error) error {
	if err := t.setRefreshError(feedID, cause.Error()); err != nil {
		return err
	}
	return t.AppendLog(model.LogError, feedID, "refresh failed: "+cause.Error())
}

func (t *Tree) setRefreshError(feedID int64, msg string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	fn, ok := t.feeds[feedID]
	if !ok {
		return model.Integrityf("feed %d not found", feedID)
	}
	failed := fn.Feed
	failed.LastRefreshError = msg
	if err := t.write("failed to record refresh error", func(tx *store.Tx) error {
		return tx.UpdateFeed(failed, t.feedPosition(fn))
	}); err != nil {
		return err
	}
	fn.Feed = failed
	return nil
}
