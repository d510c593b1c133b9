package hierarchy

import (
	"fmt"
	"strings"

	"github.com/robertmeta/feedcore/model"
	"github.com/robertmeta/feedcore/store"
)

// ImportResult summarizes a bulk import.
type ImportResult struct {
	FoldersCreated int `json:"folders_created"`
	FeedsCreated   int `json:"feeds_created"`
	Skipped        int `json:"skipped"`
}

type plannedFolder struct {
	folder model.Folder
	order  int
}

type plannedFeed struct {
	feed  model.Feed
	order int
}

// Import creates the folders and feeds named by subs under a source. Folders
// are matched by title along each path and created when missing; URLs the
// source already subscribes to are skipped. The input is validated as a
// whole first and written in one transaction, so a bad entry leaves the tree
// untouched.
func (t *Tree) Import(sourceID int64, subs []model.Subscription) (ImportResult, error) {
	for i, sub := range subs {
		if err := validateFeedURL(strings.TrimSpace(sub.URL)); err != nil {
			return ImportResult{}, model.NewImportFailure(fmt.Sprintf("entry %d", i+1), err)
		}
		for _, name := range sub.FolderPath {
			if strings.TrimSpace(name) == "" {
				return ImportResult{}, model.NewImportFailure(fmt.Sprintf("entry %d has an empty folder name", i+1), nil)
			}
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	src, ok := t.sources[sourceID]
	if !ok {
		return ImportResult{}, model.Integrityf("source %d not found", sourceID)
	}

	var (
		result     ImportResult
		folders    []plannedFolder
		feeds      []plannedFeed
		newByKey   = make(map[string]int64) // parent id + title -> planned folder id
		added      = make(map[int64]int)    // container key -> planned children count
		addedFeeds = make(map[int64]int)
		seenURLs   = make(map[string]struct{})
		nextFolder = t.nextFolder
		nextFeed   = t.nextFeed
	)

	childCount := func(parentID int64) int {
		if parentID == 0 {
			return len(src.folders)
		}
		if f, ok := t.folders[parentID]; ok {
			return len(f.folders)
		}
		return 0
	}
	feedCount := func(parentID int64) int {
		if parentID == 0 {
			return len(src.feeds)
		}
		if f, ok := t.folders[parentID]; ok {
			return len(f.feeds)
		}
		return 0
	}

	for _, sub := range subs {
		rawURL := strings.TrimSpace(sub.URL)
		if _, dup := seenURLs[rawURL]; dup || t.hasURL(sourceID, rawURL, 0) {
			result.Skipped++
			continue
		}
		seenURLs[rawURL] = struct{}{}

		parent := int64(0)
		for _, name := range sub.FolderPath {
			name = strings.TrimSpace(name)
			if id, ok := t.existingChild(sourceID, parent, name); ok {
				parent = id
				continue
			}
			key := fmt.Sprintf("%d\x00%s", parent, name)
			if id, ok := newByKey[key]; ok {
				parent = id
				continue
			}
			f := model.Folder{ID: nextFolder, SourceID: sourceID, ParentID: parent, Title: name}
			folders = append(folders, plannedFolder{folder: f, order: childCount(parent) + added[parent]})
			added[parent]++
			newByKey[key] = f.ID
			nextFolder++
			parent = f.ID
		}

		f := model.Feed{ID: nextFeed, SourceID: sourceID, FolderID: parent, URL: rawURL, Title: strings.TrimSpace(sub.Title)}
		feeds = append(feeds, plannedFeed{feed: f, order: feedCount(parent) + addedFeeds[parent]})
		addedFeeds[parent]++
		nextFeed++
	}

	if len(folders) == 0 && len(feeds) == 0 {
		return result, nil
	}

	if err := t.write("failed to import subscriptions", func(tx *store.Tx) error {
		for _, pf := range folders {
			if err := tx.InsertFolder(pf.folder, pf.order); err != nil {
				return err
			}
		}
		for _, pf := range feeds {
			if err := tx.InsertFeed(pf.feed, pf.order); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return ImportResult{}, err
	}

	// Planned folders are ordered parents first, so every parent exists by
	// the time its children are linked.
	for _, pf := range folders {
		t.folders[pf.folder.ID] = &folderNode{Folder: pf.folder}
		c, _ := t.containerOf(sourceID, pf.folder.ParentID)
		c.folders = append(c.folders, pf.folder.ID)
	}
	for _, pf := range feeds {
		t.feeds[pf.feed.ID] = &feedNode{Feed: pf.feed, byGUID: make(map[string]int64)}
		c, _ := t.containerOf(sourceID, pf.feed.FolderID)
		c.feeds = append(c.feeds, pf.feed.ID)
	}
	t.nextFolder = nextFolder
	t.nextFeed = nextFeed

	result.FoldersCreated = len(folders)
	result.FeedsCreated = len(feeds)
	t.logger.Info("imported subscriptions", "source_id", sourceID,
		"folders", result.FoldersCreated, "feeds", result.FeedsCreated, "skipped", result.Skipped)
	return result, nil
}

// existingChild finds a stored folder by title directly under parentID.
func (t *Tree) existingChild(sourceID, parentID int64, title string) (int64, bool) {
	if parentID != 0 {
		if _, ok := t.folders[parentID]; !ok {
			return 0, false
		}
	}
	c, err := t.containerOf(sourceID, parentID)
	if err != nil {
		return 0, false
	}
	for _, id := range c.folders {
		if t.folders[id].Title == title {
			return id, true
		}
	}
	return 0, false
}
