package hierarchy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/robertmeta/feedcore/model"
)

// ListPosts returns one page of the posts in scope that pass filter. The
// zero NodeRef lists every post. Pages are 1-based and computed from a
// single snapshot taken under the read lock, ordered by published time
// (newest first unless filter.Order says otherwise) with the post id as
// tiebreaker.
func (t *Tree) ListPosts(scope model.NodeRef, filter model.PostFilter, pageSize, pageIndex int) (model.PostPage, error) {
	if pageSize < 1 {
		return model.PostPage{}, model.NewValidationError(fmt.Sprintf("page size must be positive, got %d", pageSize), nil)
	}
	if pageIndex < 1 {
		return model.PostPage{}, model.NewValidationError(fmt.Sprintf("page index starts at 1, got %d", pageIndex), nil)
	}
	match, err := compileFilter(filter)
	if err != nil {
		return model.PostPage{}, err
	}

	t.mu.RLock()
	posts, err := t.postsIn(scope)
	if err != nil {
		t.mu.RUnlock()
		return model.PostPage{}, err
	}
	if filter.Kind == model.FilterScriptFolder {
		if _, ok := t.scriptFolders[filter.ScriptFolderID]; !ok {
			t.mu.RUnlock()
			return model.PostPage{}, model.Integrityf("script folder %d not found", filter.ScriptFolderID)
		}
	}
	var selected []model.Post
	for _, p := range posts {
		if match(p) {
			selected = append(selected, copyPost(p))
		}
	}
	t.mu.RUnlock()

	newestFirst := filter.Order != model.OldestFirst
	sort.Slice(selected, func(i, j int) bool {
		a, b := selected[i], selected[j]
		if !a.Published.Equal(b.Published) {
			if newestFirst {
				return a.Published.After(b.Published)
			}
			return a.Published.Before(b.Published)
		}
		if newestFirst {
			return a.ID > b.ID
		}
		return a.ID < b.ID
	})

	page := model.PostPage{
		Posts:     []model.Post{},
		Total:     len(selected),
		PageSize:  pageSize,
		PageIndex: pageIndex,
		PageCount: (len(selected) + pageSize - 1) / pageSize,
	}
	start := (pageIndex - 1) * pageSize
	if start < len(selected) {
		end := min(start+pageSize, len(selected))
		page.Posts = selected[start:end]
	}
	return page, nil
}

func compileFilter(f model.PostFilter) (func(*model.Post) bool, error) {
	var kind func(*model.Post) bool
	switch f.Kind {
	case "", model.FilterAll:
		kind = func(*model.Post) bool { return true }
	case model.FilterUnread:
		kind = func(p *model.Post) bool { return p.IsUnread() }
	case model.FilterFlagged:
		if f.Flags.Empty() {
			kind = func(p *model.Post) bool { return !p.Flags.Empty() }
		} else {
			kind = func(p *model.Post) bool { return p.Flags.Intersects(f.Flags) }
		}
	case model.FilterUnflagged:
		kind = func(p *model.Post) bool { return p.Flags.Empty() }
	case model.FilterScriptFolder:
		if f.ScriptFolderID == 0 {
			return nil, model.NewValidationError("script folder filter needs a script folder id", nil)
		}
		kind = func(p *model.Post) bool { return p.InScriptFolder(f.ScriptFolderID) }
	default:
		return nil, model.NewValidationError(fmt.Sprintf("unknown filter %q", f.Kind), nil)
	}

	switch f.Order {
	case "", model.NewestFirst, model.OldestFirst:
	default:
		return nil, model.NewValidationError(fmt.Sprintf("unknown sort order %q", f.Order), nil)
	}

	search := strings.ToLower(strings.TrimSpace(f.Search))
	category := strings.TrimSpace(f.Category)
	return func(p *model.Post) bool {
		if !kind(p) {
			return false
		}
		if f.Since != nil && p.Published.Before(*f.Since) {
			return false
		}
		if search != "" && !strings.Contains(strings.ToLower(p.Title), search) {
			return false
		}
		if category != "" && !p.HasCategory(category) {
			return false
		}
		return true
	}, nil
}
