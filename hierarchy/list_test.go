package hierarchy

import (
	"testing"
	"time"

	"github.com/robertmeta/feedcore/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListPosts_PaginationPartitions(t *testing.T) {
	tree, _ := newTestTree(t)
	src, _ := tree.AddSource("Local")
	feed, _ := tree.AddFeed(src.ID, 0, "https://example.com/feed", "")

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := tree.ApplyRefresh(feed.ID, candidates("p", 25, base), base)
	require.NoError(t, err)

	seen := make(map[int64]bool)
	var ordered []model.Post
	for page := 1; page <= 3; page++ {
		got, err := tree.ListPosts(model.FeedRef(feed.ID), model.PostFilter{}, 10, page)
		require.NoError(t, err)
		assert.Equal(t, 25, got.Total)
		assert.Equal(t, 3, got.PageCount)
		for _, p := range got.Posts {
			assert.False(t, seen[p.ID], "post %d appears twice", p.ID)
			seen[p.ID] = true
		}
		ordered = append(ordered, got.Posts...)
	}
	assert.Len(t, seen, 25)
	for i := 1; i < len(ordered); i++ {
		assert.False(t, ordered[i].Published.After(ordered[i-1].Published), "newest first")
	}

	past, err := tree.ListPosts(model.FeedRef(feed.ID), model.PostFilter{}, 10, 4)
	require.NoError(t, err)
	assert.Empty(t, past.Posts)
}

func TestListPosts_SameTimestampTiebreak(t *testing.T) {
	tree, _ := newTestTree(t)
	src, _ := tree.AddSource("Local")
	feed, _ := tree.AddFeed(src.ID, 0, "https://example.com/feed", "")

	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var batch []model.Candidate
	for _, g := range []string{"a", "b", "c", "d", "e"} {
		batch = append(batch, model.Candidate{GUID: g, Title: g, Published: at})
	}
	_, err := tree.ApplyRefresh(feed.ID, batch, at)
	require.NoError(t, err)

	p1, _ := tree.ListPosts(model.FeedRef(feed.ID), model.PostFilter{}, 2, 1)
	p2, _ := tree.ListPosts(model.FeedRef(feed.ID), model.PostFilter{}, 2, 2)
	p3, _ := tree.ListPosts(model.FeedRef(feed.ID), model.PostFilter{}, 2, 3)

	var titles []string
	for _, page := range []model.PostPage{p1, p2, p3} {
		for _, p := range page.Posts {
			titles = append(titles, p.Title)
		}
	}
	assert.Equal(t, []string{"e", "d", "c", "b", "a"}, titles)
}

func TestListPosts_Filters(t *testing.T) {
	fx := newFixture(t)
	tree := fx.tree

	aPosts := postsOf(t, tree, fx.a.ID)
	_, err := tree.MarkRead(model.PostRef(aPosts[0].ID), true)
	require.NoError(t, err)
	require.NoError(t, tree.SetFlag(aPosts[1].ID, model.FlagRed, true))
	require.NoError(t, tree.SetFlag(aPosts[2].ID, model.FlagBlue, true))
	sf, err := tree.CreateScriptFolder("Later")
	require.NoError(t, err)
	require.NoError(t, tree.AssignToScriptFolder(sf.ID, aPosts[2].ID))

	scope := model.SourceRef(fx.source.ID)
	count := func(f model.PostFilter) int {
		page, err := tree.ListPosts(scope, f, 100, 1)
		require.NoError(t, err)
		return page.Total
	}

	assert.Equal(t, 6, count(model.PostFilter{Kind: model.FilterAll}))
	assert.Equal(t, 5, count(model.PostFilter{Kind: model.FilterUnread}))
	assert.Equal(t, 2, count(model.PostFilter{Kind: model.FilterFlagged}))
	assert.Equal(t, 1, count(model.PostFilter{Kind: model.FilterFlagged, Flags: model.NewFlagSet(model.FlagRed)}))
	assert.Equal(t, 2, count(model.PostFilter{Kind: model.FilterFlagged, Flags: model.NewFlagSet(model.FlagRed, model.FlagBlue)}))
	assert.Equal(t, 4, count(model.PostFilter{Kind: model.FilterUnflagged}))
	assert.Equal(t, 1, count(model.PostFilter{Kind: model.FilterScriptFolder, ScriptFolderID: sf.ID}))
	assert.Equal(t, 3, count(model.PostFilter{Search: "A POST"}))

	since := time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)
	assert.Equal(t, 3, count(model.PostFilter{Since: &since}), "b and c posts are at or after 13:00")

	page, err := tree.ListPosts(model.ScriptFolderRef(sf.ID), model.PostFilter{}, 10, 1)
	require.NoError(t, err)
	require.Len(t, page.Posts, 1)
	assert.Equal(t, aPosts[2].ID, page.Posts[0].ID)

	oldest, err := tree.ListPosts(scope, model.PostFilter{Order: model.OldestFirst}, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, "a post 0", oldest.Posts[0].Title)
}

func TestListPosts_Invalid(t *testing.T) {
	fx := newFixture(t)
	scope := model.SourceRef(fx.source.ID)

	_, err := fx.tree.ListPosts(scope, model.PostFilter{}, 0, 1)
	assert.True(t, model.IsCode(err, model.ErrCodeValidation))
	_, err = fx.tree.ListPosts(scope, model.PostFilter{}, 10, 0)
	assert.True(t, model.IsCode(err, model.ErrCodeValidation))
	_, err = fx.tree.ListPosts(scope, model.PostFilter{Kind: "starred"}, 10, 1)
	assert.True(t, model.IsCode(err, model.ErrCodeValidation))
	_, err = fx.tree.ListPosts(scope, model.PostFilter{Kind: model.FilterScriptFolder, ScriptFolderID: 77}, 10, 1)
	assert.True(t, model.IsCode(err, model.ErrCodeIntegrity))
	_, err = fx.tree.ListPosts(model.FeedRef(404), model.PostFilter{}, 10, 1)
	assert.True(t, model.IsCode(err, model.ErrCodeIntegrity))
}
