package hierarchy

import (
	"strings"

	"github.com/robertmeta/feedcore/model"
	"github.com/robertmeta/feedcore/store"
)

// CreateScriptFolder creates an empty script folder. Titles are unique so
// scripts can address folders by name.
func (t *Tree) CreateScriptFolder(title string) (model.ScriptFolder, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.createScriptFolder(title)
}

func (t *Tree) createScriptFolder(title string) (model.ScriptFolder, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return model.ScriptFolder{}, model.NewValidationError("script folder title is required", nil)
	}
	if _, ok := t.scriptFolderByTitle(title); ok {
		return model.ScriptFolder{}, model.Integrityf("script folder %q already exists", title)
	}

	sf := model.ScriptFolder{ID: t.nextScriptFolder, Title: title}
	if err := t.write("failed to create script folder", func(tx *store.Tx) error {
		return tx.InsertScriptFolder(sf)
	}); err != nil {
		return model.ScriptFolder{}, err
	}

	t.nextScriptFolder++
	t.scriptFolders[sf.ID] = &scriptFolderNode{ScriptFolder: sf, members: make(map[int64]struct{})}
	t.sfOrder = append(t.sfOrder, sf.ID)
	return sf, nil
}

func (t *Tree) RenameScriptFolder(id int64, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return model.NewValidationError("script folder title is required", nil)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	sf, ok := t.scriptFolders[id]
	if !ok {
		return model.Integrityf("script folder %d not found", id)
	}
	if other, ok := t.scriptFolderByTitle(title); ok && other.ID != id {
		return model.Integrityf("script folder %q already exists", title)
	}
	renamed := sf.ScriptFolder
	renamed.Title = title
	if err := t.write("failed to rename script folder", func(tx *store.Tx) error {
		return tx.UpdateScriptFolder(renamed)
	}); err != nil {
		return err
	}
	sf.Title = title
	return nil
}

// RemoveScriptFolder deletes the container only; its posts are untouched.
func (t *Tree) RemoveScriptFolder(id int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	sf, ok := t.scriptFolders[id]
	if !ok {
		return model.Integrityf("script folder %d not found", id)
	}
	if err := t.write("failed to remove script folder", func(tx *store.Tx) error {
		return tx.DeleteScriptFolder(id)
	}); err != nil {
		return err
	}

	for pid := range sf.members {
		p := t.posts[pid]
		p.ScriptFolderIDs = removeID(p.ScriptFolderIDs, id)
	}
	delete(t.scriptFolders, id)
	t.sfOrder = removeID(t.sfOrder, id)
	return nil
}

// ScriptFolders returns every script folder with total and unread counts.
func (t *Tree) ScriptFolders() []model.ScriptFolder {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]model.ScriptFolder, 0, len(t.sfOrder))
	for _, id := range t.sfOrder {
		out = append(out, t.scriptFolders[id].ScriptFolder)
	}
	return out
}

// ScriptFolderByTitle looks a script folder up by exact title.
func (t *Tree) ScriptFolderByTitle(title string) (model.ScriptFolder, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	sf, ok := t.scriptFolderByTitle(strings.TrimSpace(title))
	if !ok {
		return model.ScriptFolder{}, false
	}
	return sf.ScriptFolder, true
}

func (t *Tree) scriptFolderByTitle(title string) (*scriptFolderNode, bool) {
	for _, id := range t.sfOrder {
		if sf := t.scriptFolders[id]; sf.Title == title {
			return sf, true
		}
	}
	return nil, false
}

// AssignToScriptFolder adds a post to a script folder. Adding a member twice
// is a no-op.
func (t *Tree) AssignToScriptFolder(scriptFolderID, postID int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	sf, ok := t.scriptFolders[scriptFolderID]
	if !ok {
		return model.Integrityf("script folder %d not found", scriptFolderID)
	}
	return t.assign(sf, postID)
}

// AssignToNamedScriptFolder adds a post to the script folder with the given
// title, creating the folder first when none exists.
func (t *Tree) AssignToNamedScriptFolder(title string, postID int64) (model.ScriptFolder, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.posts[postID]; !ok {
		return model.ScriptFolder{}, model.Integrityf("post %d not found", postID)
	}
	title = strings.TrimSpace(title)
	if sf, ok := t.scriptFolderByTitle(title); ok {
		if err := t.assign(sf, postID); err != nil {
			return model.ScriptFolder{}, err
		}
		return sf.ScriptFolder, nil
	}
	if title == "" {
		return model.ScriptFolder{}, model.NewValidationError("script folder title is required", nil)
	}

	// The folder and its first member land together or not at all.
	created := model.ScriptFolder{ID: t.nextScriptFolder, Title: title}
	if err := t.write("failed to assign post", func(tx *store.Tx) error {
		if err := tx.InsertScriptFolder(created); err != nil {
			return err
		}
		return tx.AddScriptFolderPost(created.ID, postID)
	}); err != nil {
		return model.ScriptFolder{}, err
	}

	t.nextScriptFolder++
	sf := &scriptFolderNode{ScriptFolder: created, members: make(map[int64]struct{})}
	t.scriptFolders[sf.ID] = sf
	t.sfOrder = append(t.sfOrder, sf.ID)
	t.addMember(sf, t.posts[postID])
	return sf.ScriptFolder, nil
}

func (t *Tree) assign(sf *scriptFolderNode, postID int64) error {
	p, ok := t.posts[postID]
	if !ok {
		return model.Integrityf("post %d not found", postID)
	}
	if _, member := sf.members[postID]; member {
		return nil
	}
	if err := t.write("failed to assign post", func(tx *store.Tx) error {
		return tx.AddScriptFolderPost(sf.ID, postID)
	}); err != nil {
		return err
	}

	t.addMember(sf, p)
	return nil
}

func (t *Tree) addMember(sf *scriptFolderNode, p *model.Post) {
	sf.members[p.ID] = struct{}{}
	p.ScriptFolderIDs = append(p.ScriptFolderIDs, sf.ID)
	sf.Total++
	if p.IsUnread() {
		sf.Unread++
	}
}

// UnassignFromScriptFolder removes a post from a script folder. Removing a
// post that is not a member is a no-op.
func (t *Tree) UnassignFromScriptFolder(scriptFolderID, postID int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	sf, ok := t.scriptFolders[scriptFolderID]
	if !ok {
		return model.Integrityf("script folder %d not found", scriptFolderID)
	}
	return t.unassign(sf, postID)
}

// UnassignFromNamedScriptFolder removes a post from the script folder with
// the given title. An unknown title is a no-op.
func (t *Tree) UnassignFromNamedScriptFolder(title string, postID int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	sf, ok := t.scriptFolderByTitle(strings.TrimSpace(title))
	if !ok {
		return nil
	}
	return t.unassign(sf, postID)
}

func (t *Tree) unassign(sf *scriptFolderNode, postID int64) error {
	p, ok := t.posts[postID]
	if !ok {
		return model.Integrityf("post %d not found", postID)
	}
	if _, member := sf.members[postID]; !member {
		return nil
	}
	if err := t.write("failed to unassign post", func(tx *store.Tx) error {
		return tx.RemoveScriptFolderPost(sf.ID, postID)
	}); err != nil {
		return err
	}

	delete(sf.members, postID)
	p.ScriptFolderIDs = removeID(p.ScriptFolderIDs, sf.ID)
	sf.Total--
	if p.IsUnread() {
		sf.Unread--
	}
	return nil
}
