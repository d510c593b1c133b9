// Package hierarchy keeps the live source/folder/feed/post tree, its unread
// counters and the script folders. Every mutation is written through to the
// store inside one transaction before it becomes visible in memory.
package hierarchy

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robertmeta/feedcore/logging"
	"github.com/robertmeta/feedcore/model"
	"github.com/robertmeta/feedcore/store"
)

// container holds the ordered child ids of a source or folder.
type container struct {
	folders []int64
	feeds   []int64
}

type sourceNode struct {
	model.Source
	container
}

type folderNode struct {
	model.Folder
	container
}

type feedNode struct {
	model.Feed
	posts  []int64          // insertion order
	byGUID map[string]int64 // identity -> post id
}

type scriptFolderNode struct {
	model.ScriptFolder
	members map[int64]struct{}
}

// Tree is the arena of every node, addressed by id. Parents are referenced by
// id only. All fields are guarded by mu.
type Tree struct {
	mu     sync.RWMutex
	store  *store.Store
	logger *logging.Logger

	sources       map[int64]*sourceNode
	sourceOrder   []int64
	folders       map[int64]*folderNode
	feeds         map[int64]*feedNode
	posts         map[int64]*model.Post
	scriptFolders map[int64]*scriptFolderNode
	sfOrder       []int64

	nextSource, nextFolder, nextFeed, nextPost, nextScriptFolder int64

	now func() time.Time
}

// Load builds the tree from everything persisted in st.
func Load(st *store.Store, logger *logging.Logger) (*Tree, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	snap, err := st.Load()
	if err != nil {
		return nil, model.NewStorageError("failed to load tree", err)
	}

	t := &Tree{
		store:         st,
		logger:        logger.ForComponent("hierarchy"),
		sources:       make(map[int64]*sourceNode),
		folders:       make(map[int64]*folderNode),
		feeds:         make(map[int64]*feedNode),
		posts:         make(map[int64]*model.Post),
		scriptFolders: make(map[int64]*scriptFolderNode),
		nextSource:    1, nextFolder: 1, nextFeed: 1, nextPost: 1, nextScriptFolder: 1,
		now: time.Now,
	}

	for _, src := range snap.Sources {
		t.sources[src.ID] = &sourceNode{Source: src}
		t.sourceOrder = append(t.sourceOrder, src.ID)
		t.nextSource = max(t.nextSource, src.ID+1)
	}
	for _, f := range snap.Folders {
		t.folders[f.ID] = &folderNode{Folder: f}
		t.nextFolder = max(t.nextFolder, f.ID+1)
	}
	// Children are linked after every folder exists; rows come in sort order.
	for _, f := range snap.Folders {
		c, err := t.containerOf(f.SourceID, f.ParentID)
		if err != nil {
			return nil, fmt.Errorf("folder %d: %w", f.ID, err)
		}
		c.folders = append(c.folders, f.ID)
	}
	for _, f := range snap.Feeds {
		c, err := t.containerOf(f.SourceID, f.FolderID)
		if err != nil {
			return nil, fmt.Errorf("feed %d: %w", f.ID, err)
		}
		c.feeds = append(c.feeds, f.ID)
		t.feeds[f.ID] = &feedNode{Feed: f, byGUID: make(map[string]int64)}
		t.nextFeed = max(t.nextFeed, f.ID+1)
	}
	for _, sf := range snap.ScriptFolders {
		t.scriptFolders[sf.ID] = &scriptFolderNode{ScriptFolder: sf, members: make(map[int64]struct{})}
		t.sfOrder = append(t.sfOrder, sf.ID)
		t.nextScriptFolder = max(t.nextScriptFolder, sf.ID+1)
	}
	for i := range snap.Posts {
		p := snap.Posts[i]
		fn, ok := t.feeds[p.FeedID]
		if !ok {
			return nil, fmt.Errorf("post %d references unknown feed %d", p.ID, p.FeedID)
		}
		t.posts[p.ID] = &p
		fn.posts = append(fn.posts, p.ID)
		fn.byGUID[p.GUID] = p.ID
		for _, sfID := range p.ScriptFolderIDs {
			if sf, ok := t.scriptFolders[sfID]; ok {
				sf.members[p.ID] = struct{}{}
			}
		}
		t.nextPost = max(t.nextPost, p.ID+1)
	}

	t.recount()
	return t, nil
}

// containerOf returns the source root (folderID 0) or the folder container.
func (t *Tree) containerOf(sourceID, folderID int64) (*container, error) {
	if folderID == 0 {
		src, ok := t.sources[sourceID]
		if !ok {
			return nil, model.Integrityf("source %d not found", sourceID)
		}
		return &src.container, nil
	}
	f, ok := t.folders[folderID]
	if !ok {
		return nil, model.Integrityf("folder %d not found", folderID)
	}
	if f.SourceID != sourceID {
		return nil, model.Integrityf("folder %d belongs to source %d, not %d", folderID, f.SourceID, sourceID)
	}
	return &f.container, nil
}

// write runs fn in a store transaction. Callers hold mu and apply the change
// to memory only when write returns nil.
func (t *Tree) write(what string, fn func(tx *store.Tx) error) error {
	tx, err := t.store.Begin()
	if err != nil {
		return model.NewStorageError(what, err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		var coded *model.Error
		if errors.As(err, &coded) {
			return err
		}
		return model.NewStorageError(what, err)
	}
	if err := tx.Commit(); err != nil {
		return model.NewStorageError(what, err)
	}
	return nil
}

// propagate is the single entry point for unread counter changes caused by
// a post: it applies delta to the post's feed, every ancestor folder, the
// source, and each script folder the post belongs to.
func (t *Tree) propagate(p *model.Post, delta int) {
	if delta == 0 {
		return
	}
	fn := t.feeds[p.FeedID]
	fn.Unread += delta
	t.adjustAncestors(fn.SourceID, fn.FolderID, delta)
	for _, sfID := range p.ScriptFolderIDs {
		if sf, ok := t.scriptFolders[sfID]; ok {
			sf.Unread += delta
		}
	}
}

// adjustAncestors applies delta from folderID up to the source root.
func (t *Tree) adjustAncestors(sourceID, folderID int64, delta int) {
	for id := folderID; id != 0; {
		f := t.folders[id]
		f.Unread += delta
		id = f.ParentID
	}
	t.sources[sourceID].Unread += delta
}

// recount rebuilds every counter from the posts.
func (t *Tree) recount() {
	for _, src := range t.sources {
		src.Unread = 0
	}
	for _, f := range t.folders {
		f.Unread = 0
	}
	for _, fn := range t.feeds {
		fn.Unread = 0
	}
	for _, sf := range t.scriptFolders {
		sf.Unread = 0
		sf.Total = len(sf.members)
	}
	for _, p := range t.posts {
		if p.IsUnread() {
			t.propagate(p, 1)
		}
	}
}

// feedIDsUnder lists the feeds contained (transitively) in a container.
func (t *Tree) feedIDsUnder(c *container) []int64 {
	ids := append([]int64{}, c.feeds...)
	for _, fid := range c.folders {
		ids = append(ids, t.feedIDsUnder(&t.folders[fid].container)...)
	}
	return ids
}

// foldersUnder lists the folders contained (transitively) in a container.
func (t *Tree) foldersUnder(c *container) []int64 {
	var ids []int64
	for _, fid := range c.folders {
		ids = append(ids, fid)
		ids = append(ids, t.foldersUnder(&t.folders[fid].container)...)
	}
	return ids
}

// scopeFeeds resolves a tree node to the feeds it contains. Post and script
// folder scopes are not tree nodes and are rejected.
func (t *Tree) scopeFeeds(ref model.NodeRef) ([]int64, error) {
	switch ref.Kind {
	case model.NodeFeed:
		if _, ok := t.feeds[ref.ID]; !ok {
			return nil, model.Integrityf("feed %d not found", ref.ID)
		}
		return []int64{ref.ID}, nil
	case model.NodeFolder:
		f, ok := t.folders[ref.ID]
		if !ok {
			return nil, model.Integrityf("folder %d not found", ref.ID)
		}
		return t.feedIDsUnder(&f.container), nil
	case model.NodeSource:
		src, ok := t.sources[ref.ID]
		if !ok {
			return nil, model.Integrityf("source %d not found", ref.ID)
		}
		return t.feedIDsUnder(&src.container), nil
	}
	return nil, model.NewValidationError(fmt.Sprintf("%s is not a tree node", ref), nil)
}

// removeID deletes one id from a slice, keeping order.
func removeID(ids []int64, id int64) []int64 {
	for i, v := range ids {
		if v == id {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return ids
}

func copyPost(p *model.Post) model.Post {
	out := *p
	out.ScriptFolderIDs = append([]int64(nil), p.ScriptFolderIDs...)
	out.Categories = append([]string(nil), p.Categories...)
	out.Enclosures = append([]model.Enclosure(nil), p.Enclosures...)
	return out
}
