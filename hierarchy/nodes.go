package hierarchy

import (
	"net/url"
	"strings"
	"time"

	"github.com/robertmeta/feedcore/model"
	"github.com/robertmeta/feedcore/store"
)

// AddSource creates an empty source.
func (t *Tree) AddSource(title string) (model.Source, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return model.Source{}, model.NewValidationError("source title is required", nil)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	src := model.Source{ID: t.nextSource, Title: title}
	if err := t.write("failed to add source", func(tx *store.Tx) error {
		return tx.InsertSource(src)
	}); err != nil {
		return model.Source{}, err
	}

	t.nextSource++
	t.sources[src.ID] = &sourceNode{Source: src}
	t.sourceOrder = append(t.sourceOrder, src.ID)
	return src, nil
}

// RemoveSource deletes a source with every folder, feed and post it owns.
func (t *Tree) RemoveSource(id int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	src, ok := t.sources[id]
	if !ok {
		return model.Integrityf("source %d not found", id)
	}
	feedIDs := t.feedIDsUnder(&src.container)
	folderIDs := t.foldersUnder(&src.container)

	if err := t.write("failed to remove source", func(tx *store.Tx) error {
		if err := tx.DeleteFeeds(feedIDs); err != nil {
			return err
		}
		if err := tx.DeleteFolders(folderIDs); err != nil {
			return err
		}
		return tx.DeleteSource(id)
	}); err != nil {
		return err
	}

	t.dropFeeds(feedIDs)
	for _, fid := range folderIDs {
		delete(t.folders, fid)
	}
	delete(t.sources, id)
	t.sourceOrder = removeID(t.sourceOrder, id)
	return nil
}

// Sources returns every source with its unread count.
func (t *Tree) Sources() []model.Source {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]model.Source, 0, len(t.sourceOrder))
	for _, id := range t.sourceOrder {
		out = append(out, t.sources[id].Source)
	}
	return out
}

// AddFolder creates a folder under a source root (parentID 0) or a folder of
// the same source.
func (t *Tree) AddFolder(sourceID, parentID int64, title string) (model.Folder, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return model.Folder{}, model.NewValidationError("folder title is required", nil)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	c, err := t.containerOf(sourceID, parentID)
	if err != nil {
		return model.Folder{}, err
	}
	f := model.Folder{ID: t.nextFolder, SourceID: sourceID, ParentID: parentID, Title: title}
	if err := t.write("failed to add folder", func(tx *store.Tx) error {
		return tx.InsertFolder(f, len(c.folders))
	}); err != nil {
		return model.Folder{}, err
	}

	t.nextFolder++
	t.folders[f.ID] = &folderNode{Folder: f}
	c.folders = append(c.folders, f.ID)
	return f, nil
}

func (t *Tree) RenameFolder(id int64, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return model.NewValidationError("folder title is required", nil)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	f, ok := t.folders[id]
	if !ok {
		return model.Integrityf("folder %d not found", id)
	}
	renamed := f.Folder
	renamed.Title = title
	if err := t.write("failed to rename folder", func(tx *store.Tx) error {
		return tx.UpdateFolder(renamed, t.folderPosition(f))
	}); err != nil {
		return err
	}
	f.Title = title
	return nil
}

// MoveFolder re-parents a folder within its source. Moving a folder into
// itself or one of its descendants is rejected.
func (t *Tree) MoveFolder(id, newParentID int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, ok := t.folders[id]
	if !ok {
		return model.Integrityf("folder %d not found", id)
	}
	dest, err := t.containerOf(f.SourceID, newParentID)
	if err != nil {
		return err
	}
	for p := newParentID; p != 0; p = t.folders[p].ParentID {
		if p == id {
			return model.Integrityf("moving folder %d under folder %d would create a cycle", id, newParentID)
		}
	}
	if newParentID == f.ParentID {
		return nil
	}
	src, _ := t.containerOf(f.SourceID, f.ParentID)

	moved := f.Folder
	moved.ParentID = newParentID
	order := append(append([]int64{}, dest.folders...), id)
	if err := t.write("failed to move folder", func(tx *store.Tx) error {
		for i, fid := range order {
			row := t.folders[fid].Folder
			if fid == id {
				row = moved
			}
			if err := tx.UpdateFolder(row, i); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}

	t.adjustAncestors(f.SourceID, f.ParentID, -f.Unread)
	src.folders = removeID(src.folders, id)
	f.ParentID = newParentID
	dest.folders = order
	t.adjustAncestors(f.SourceID, newParentID, f.Unread)
	return nil
}

// RemoveFolder deletes a folder with its subfolders, feeds and posts.
func (t *Tree) RemoveFolder(id int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, ok := t.folders[id]
	if !ok {
		return model.Integrityf("folder %d not found", id)
	}
	feedIDs := t.feedIDsUnder(&f.container)
	folderIDs := append([]int64{id}, t.foldersUnder(&f.container)...)

	if err := t.write("failed to remove folder", func(tx *store.Tx) error {
		if err := tx.DeleteFeeds(feedIDs); err != nil {
			return err
		}
		return tx.DeleteFolders(folderIDs)
	}); err != nil {
		return err
	}

	t.dropFeeds(feedIDs)
	parent, _ := t.containerOf(f.SourceID, f.ParentID)
	parent.folders = removeID(parent.folders, id)
	for _, fid := range folderIDs {
		delete(t.folders, fid)
	}
	return nil
}

func (t *Tree) folderPosition(f *folderNode) int {
	c, _ := t.containerOf(f.SourceID, f.ParentID)
	for i, id := range c.folders {
		if id == f.ID {
			return i
		}
	}
	return len(c.folders)
}

func (t *Tree) feedPosition(fn *feedNode) int {
	c, _ := t.containerOf(fn.SourceID, fn.FolderID)
	for i, id := range c.feeds {
		if id == fn.ID {
			return i
		}
	}
	return len(c.feeds)
}

func validateFeedURL(raw string) error {
	f := model.Feed{URL: raw}
	if err := f.Validate(); err != nil {
		return model.NewValidationError(err.Error(), nil)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return model.NewValidationError("invalid feed URL", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return model.NewValidationError("feed URL must be absolute http or https: "+raw, nil)
	}
	return nil
}

// hasURL reports whether the source already subscribes to rawURL.
func (t *Tree) hasURL(sourceID int64, rawURL string, except int64) bool {
	for _, fn := range t.feeds {
		if fn.SourceID == sourceID && fn.URL == rawURL && fn.ID != except {
			return true
		}
	}
	return false
}

// AddFeed subscribes a URL under a source root (folderID 0) or a folder.
func (t *Tree) AddFeed(sourceID, folderID int64, rawURL, title string) (model.Feed, error) {
	rawURL = strings.TrimSpace(rawURL)
	if err := validateFeedURL(rawURL); err != nil {
		return model.Feed{}, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	c, err := t.containerOf(sourceID, folderID)
	if err != nil {
		return model.Feed{}, err
	}
	if t.hasURL(sourceID, rawURL, 0) {
		return model.Feed{}, model.Integrityf("source %d already subscribes to %s", sourceID, rawURL)
	}

	f := model.Feed{ID: t.nextFeed, SourceID: sourceID, FolderID: folderID, URL: rawURL, Title: strings.TrimSpace(title)}
	if err := t.write("failed to add feed", func(tx *store.Tx) error {
		return tx.InsertFeed(f, len(c.feeds))
	}); err != nil {
		return model.Feed{}, err
	}

	t.nextFeed++
	t.feeds[f.ID] = &feedNode{Feed: f, byGUID: make(map[string]int64)}
	c.feeds = append(c.feeds, f.ID)
	return f, nil
}

// FeedPatch lists the feed fields to change; nil fields are left alone. A
// non-positive RefreshInterval clears the per-feed interval.
type FeedPatch struct {
	URL             *string
	Title           *string
	RefreshInterval *time.Duration
}

func (t *Tree) UpdateFeed(id int64, patch FeedPatch) (model.Feed, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fn, ok := t.feeds[id]
	if !ok {
		return model.Feed{}, model.Integrityf("feed %d not found", id)
	}
	updated := fn.Feed
	if patch.URL != nil {
		u := strings.TrimSpace(*patch.URL)
		if err := validateFeedURL(u); err != nil {
			return model.Feed{}, err
		}
		if t.hasURL(fn.SourceID, u, id) {
			return model.Feed{}, model.Integrityf("source %d already subscribes to %s", fn.SourceID, u)
		}
		updated.URL = u
	}
	if patch.Title != nil {
		updated.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.RefreshInterval != nil {
		if d := *patch.RefreshInterval; d > 0 {
			updated.RefreshInterval = &d
		} else {
			updated.RefreshInterval = nil
		}
	}

	if err := t.write("failed to update feed", func(tx *store.Tx) error {
		return tx.UpdateFeed(updated, t.feedPosition(fn))
	}); err != nil {
		return model.Feed{}, err
	}
	fn.Feed = updated
	return fn.Feed, nil
}

// MoveFeed places a feed under another folder of its source, or the source
// root when folderID is 0.
func (t *Tree) MoveFeed(id, folderID int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	fn, ok := t.feeds[id]
	if !ok {
		return model.Integrityf("feed %d not found", id)
	}
	dest, err := t.containerOf(fn.SourceID, folderID)
	if err != nil {
		return err
	}
	if folderID == fn.FolderID {
		return nil
	}
	src, _ := t.containerOf(fn.SourceID, fn.FolderID)

	moved := fn.Feed
	moved.FolderID = folderID
	order := append(append([]int64{}, dest.feeds...), id)
	if err := t.write("failed to move feed", func(tx *store.Tx) error {
		for i, fid := range order {
			row := t.feeds[fid].Feed
			if fid == id {
				row = moved
			}
			if err := tx.UpdateFeed(row, i); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}

	t.adjustAncestors(fn.SourceID, fn.FolderID, -fn.Unread)
	src.feeds = removeID(src.feeds, id)
	fn.FolderID = folderID
	dest.feeds = order
	t.adjustAncestors(fn.SourceID, folderID, fn.Unread)
	return nil
}

// RemoveFeed unsubscribes a feed and deletes its posts.
func (t *Tree) RemoveFeed(id int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	fn, ok := t.feeds[id]
	if !ok {
		return model.Integrityf("feed %d not found", id)
	}
	if err := t.write("failed to remove feed", func(tx *store.Tx) error {
		return tx.DeleteFeeds([]int64{id})
	}); err != nil {
		return err
	}

	parent, _ := t.containerOf(fn.SourceID, fn.FolderID)
	parent.feeds = removeID(parent.feeds, id)
	t.dropFeeds([]int64{id})
	return nil
}

// dropFeeds removes feeds and their posts from memory, keeping every counter
// consistent. The caller unlinks the feeds from their containers.
func (t *Tree) dropFeeds(ids []int64) {
	for _, id := range ids {
		fn := t.feeds[id]
		for _, pid := range fn.posts {
			p := t.posts[pid]
			if p.IsUnread() {
				t.propagate(p, -1)
			}
			for _, sfID := range p.ScriptFolderIDs {
				if sf, ok := t.scriptFolders[sfID]; ok {
					delete(sf.members, pid)
					sf.Total--
				}
			}
			delete(t.posts, pid)
		}
		delete(t.feeds, id)
	}
}

func (t *Tree) Feed(id int64) (model.Feed, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	fn, ok := t.feeds[id]
	if !ok {
		return model.Feed{}, model.Integrityf("feed %d not found", id)
	}
	return fn.Feed, nil
}

// Feeds returns every feed in tree order: sources in creation order, then
// depth first with folders before feeds.
func (t *Tree) Feeds() []model.Feed {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []model.Feed
	for _, sid := range t.sourceOrder {
		for _, fid := range t.orderedFeeds(&t.sources[sid].container) {
			out = append(out, t.feeds[fid].Feed)
		}
	}
	return out
}

func (t *Tree) orderedFeeds(c *container) []int64 {
	var ids []int64
	for _, fid := range c.folders {
		ids = append(ids, t.orderedFeeds(&t.folders[fid].container)...)
	}
	return append(ids, c.feeds...)
}

// Tree enumerates a source's folders and feeds with their unread counts.
func (t *Tree) Tree(sourceID int64) ([]*model.TreeNode, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	src, ok := t.sources[sourceID]
	if !ok {
		return nil, model.Integrityf("source %d not found", sourceID)
	}
	return t.treeNodes(&src.container), nil
}

func (t *Tree) treeNodes(c *container) []*model.TreeNode {
	nodes := []*model.TreeNode{}
	for _, fid := range c.folders {
		f := t.folders[fid]
		nodes = append(nodes, &model.TreeNode{
			Kind:     model.NodeFolder,
			ID:       f.ID,
			Title:    f.Title,
			Unread:   f.Unread,
			Children: t.treeNodes(&f.container),
		})
	}
	for _, fid := range c.feeds {
		fn := t.feeds[fid]
		title := fn.Title
		if title == "" {
			title = fn.URL
		}
		nodes = append(nodes, &model.TreeNode{
			Kind:   model.NodeFeed,
			ID:     fn.ID,
			Title:  title,
			URL:    fn.URL,
			Unread: fn.Unread,
			Error:  fn.LastRefreshError,
		})
	}
	return nodes
}
