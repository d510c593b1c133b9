package hierarchy

import (
	"fmt"
	"testing"
	"time"

	"github.com/robertmeta/feedcore/model"
	"github.com/robertmeta/feedcore/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTree(t *testing.T) (*Tree, *store.Store) {
	t.Helper()
	s, err := store.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	tree, err := Load(s, nil)
	require.NoError(t, err)
	return tree, s
}

func candidates(prefix string, n int, base time.Time) []model.Candidate {
	var out []model.Candidate
	for i := 0; i < n; i++ {
		out = append(out, model.Candidate{
			GUID:      fmt.Sprintf("%s-%d", prefix, i),
			Title:     fmt.Sprintf("%s post %d", prefix, i),
			Link:      fmt.Sprintf("https://example.com/%s/%d", prefix, i),
			Content:   "body",
			Published: base.Add(time.Duration(i) * time.Minute),
		})
	}
	return out
}

// fixture is a source S with folder F holding feeds A (3 posts) and B (2
// posts), plus feed C (1 post) at the source root.
type fixture struct {
	tree    *Tree
	store   *store.Store
	source  model.Source
	folder  model.Folder
	a, b, c model.Feed
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	tree, s := newTestTree(t)
	fx := fixture{tree: tree, store: s}

	var err error
	fx.source, err = tree.AddSource("Local")
	require.NoError(t, err)
	fx.folder, err = tree.AddFolder(fx.source.ID, 0, "Tech")
	require.NoError(t, err)
	fx.a, err = tree.AddFeed(fx.source.ID, fx.folder.ID, "https://a.example.com/feed", "A")
	require.NoError(t, err)
	fx.b, err = tree.AddFeed(fx.source.ID, fx.folder.ID, "https://b.example.com/feed", "B")
	require.NoError(t, err)
	fx.c, err = tree.AddFeed(fx.source.ID, 0, "https://c.example.com/feed", "C")
	require.NoError(t, err)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	_, err = tree.ApplyRefresh(fx.a.ID, candidates("a", 3, base), base)
	require.NoError(t, err)
	_, err = tree.ApplyRefresh(fx.b.ID, candidates("b", 2, base.Add(time.Hour)), base)
	require.NoError(t, err)
	_, err = tree.ApplyRefresh(fx.c.ID, candidates("c", 1, base.Add(2*time.Hour)), base)
	require.NoError(t, err)
	return fx
}

func unread(t *testing.T, tree *Tree, ref model.NodeRef) int {
	t.Helper()
	n, err := tree.UnreadCount(ref)
	require.NoError(t, err)
	return n
}

func postsOf(t *testing.T, tree *Tree, feedID int64) []model.Post {
	t.Helper()
	page, err := tree.ListPosts(model.FeedRef(feedID), model.PostFilter{}, 100, 1)
	require.NoError(t, err)
	return page.Posts
}

func TestCounters_AfterIngest(t *testing.T) {
	fx := newFixture(t)

	assert.Equal(t, 3, unread(t, fx.tree, model.FeedRef(fx.a.ID)))
	assert.Equal(t, 2, unread(t, fx.tree, model.FeedRef(fx.b.ID)))
	assert.Equal(t, 5, unread(t, fx.tree, model.FolderRef(fx.folder.ID)))
	assert.Equal(t, 6, unread(t, fx.tree, model.SourceRef(fx.source.ID)))
}

func TestMarkRead_CascadesThroughFolder(t *testing.T) {
	fx := newFixture(t)
	before := unread(t, fx.tree, model.SourceRef(fx.source.ID))

	n, err := fx.tree.MarkRead(model.FolderRef(fx.folder.ID), true)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	assert.Equal(t, 0, unread(t, fx.tree, model.FolderRef(fx.folder.ID)))
	assert.Equal(t, 0, unread(t, fx.tree, model.FeedRef(fx.a.ID)))
	assert.Equal(t, 0, unread(t, fx.tree, model.FeedRef(fx.b.ID)))
	assert.Equal(t, before-5, unread(t, fx.tree, model.SourceRef(fx.source.ID)))

	// Marking again changes nothing
	n, err = fx.tree.MarkRead(model.FolderRef(fx.folder.ID), true)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMarkRead_PostAndSource(t *testing.T) {
	fx := newFixture(t)
	p := postsOf(t, fx.tree, fx.a.ID)[0]

	_, err := fx.tree.MarkRead(model.PostRef(p.ID), true)
	require.NoError(t, err)
	assert.Equal(t, 2, unread(t, fx.tree, model.FeedRef(fx.a.ID)))
	assert.Equal(t, 4, unread(t, fx.tree, model.FolderRef(fx.folder.ID)))
	assert.Equal(t, 0, unread(t, fx.tree, model.PostRef(p.ID)))

	_, err = fx.tree.MarkRead(model.SourceRef(fx.source.ID), true)
	require.NoError(t, err)
	assert.Equal(t, 0, unread(t, fx.tree, model.SourceRef(fx.source.ID)))

	_, err = fx.tree.MarkRead(model.FeedRef(fx.c.ID), false)
	require.NoError(t, err)
	assert.Equal(t, 1, unread(t, fx.tree, model.SourceRef(fx.source.ID)))
}

func TestMarkRead_UnknownNode(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.tree.MarkRead(model.FolderRef(999), true)
	assert.True(t, model.IsCode(err, model.ErrCodeIntegrity))
}

func TestCounters_SurviveReload(t *testing.T) {
	fx := newFixture(t)
	p := postsOf(t, fx.tree, fx.b.ID)[0]
	_, err := fx.tree.MarkRead(model.PostRef(p.ID), true)
	require.NoError(t, err)
	require.NoError(t, fx.tree.SetFlag(p.ID, model.FlagRed, true))

	reloaded, err := Load(fx.store, nil)
	require.NoError(t, err)

	assert.Equal(t, 4, unread(t, reloaded, model.FolderRef(fx.folder.ID)))
	assert.Equal(t, 5, unread(t, reloaded, model.SourceRef(fx.source.ID)))
	got, err := reloaded.Post(p.ID)
	require.NoError(t, err)
	assert.True(t, got.IsRead)
	assert.True(t, got.Flags.Has(model.FlagRed))

	// New ids continue after the highest stored one
	f, err := reloaded.AddFeed(fx.source.ID, 0, "https://d.example.com/feed", "D")
	require.NoError(t, err)
	assert.Greater(t, f.ID, fx.c.ID)
}

func TestApplyRefresh_IdempotentReingest(t *testing.T) {
	tree, _ := newTestTree(t)
	src, _ := tree.AddSource("Local")
	feed, err := tree.AddFeed(src.ID, 0, "https://example.com/feed", "")
	require.NoError(t, err)

	batch := candidates("x", 2, time.Now())
	changes, err := tree.ApplyRefresh(feed.ID, batch, time.Now())
	require.NoError(t, err)
	require.Len(t, changes, 2)
	for _, ch := range changes {
		assert.Equal(t, model.EventNewPost, ch.Kind)
		assert.False(t, ch.Post.IsRead)
		assert.True(t, ch.Post.Flags.Empty())
		assert.Empty(t, ch.Post.ScriptFolderIDs)
	}

	sf, err := tree.CreateScriptFolder("Keep")
	require.NoError(t, err)
	require.NoError(t, tree.AssignToScriptFolder(sf.ID, changes[0].Post.ID))
	require.NoError(t, tree.SetFlag(changes[0].Post.ID, model.FlagBlue, true))

	changes, err = tree.ApplyRefresh(feed.ID, batch, time.Now())
	require.NoError(t, err)
	assert.Empty(t, changes, "unchanged candidates emit no events")

	posts := postsOf(t, tree, feed.ID)
	assert.Len(t, posts, 2)
	assert.Equal(t, 2, unread(t, tree, model.FeedRef(feed.ID)))

	p, _ := tree.Post(posts[1].ID)
	assert.True(t, p.Flags.Has(model.FlagBlue))
	assert.Equal(t, []int64{sf.ID}, p.ScriptFolderIDs)
}

func TestApplyRefresh_UpdatePreservesUserState(t *testing.T) {
	tree, _ := newTestTree(t)
	src, _ := tree.AddSource("Local")
	feed, _ := tree.AddFeed(src.ID, 0, "https://example.com/feed", "")

	orig := model.Candidate{GUID: "g1", Title: "Old", Content: "old body", Published: time.Unix(1700000000, 0)}
	changes, err := tree.ApplyRefresh(feed.ID, []model.Candidate{orig}, time.Now())
	require.NoError(t, err)
	id := changes[0].Post.ID

	_, err = tree.MarkRead(model.PostRef(id), true)
	require.NoError(t, err)
	require.NoError(t, tree.SetFlag(id, model.FlagRed, true))

	upd := model.Candidate{GUID: "g1", Title: "New", Content: "new body", Published: time.Unix(1700003600, 0)}
	changes, err = tree.ApplyRefresh(feed.ID, []model.Candidate{upd}, time.Now())
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, model.EventUpdatedPost, changes[0].Kind)
	assert.Equal(t, id, changes[0].Post.ID)

	p, err := tree.Post(id)
	require.NoError(t, err)
	assert.Equal(t, "New", p.Title)
	assert.Equal(t, "new body", p.Content)
	assert.Equal(t, int64(1700003600), p.Published.Unix())
	assert.True(t, p.IsRead)
	assert.True(t, p.Flags.Has(model.FlagRed))
	assert.Equal(t, 0, unread(t, tree, model.FeedRef(feed.ID)))
}

func TestApplyRefresh_UpdateKeepsUnread(t *testing.T) {
	tree, _ := newTestTree(t)
	src, _ := tree.AddSource("Local")
	feed, _ := tree.AddFeed(src.ID, 0, "https://example.com/feed", "")

	_, err := tree.ApplyRefresh(feed.ID, []model.Candidate{{GUID: "g1", Title: "P1", Content: "v1"}}, time.Now())
	require.NoError(t, err)

	changes, err := tree.ApplyRefresh(feed.ID, []model.Candidate{{GUID: "g1", Title: "P1", Content: "v2"}}, time.Now())
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, model.EventUpdatedPost, changes[0].Kind)
	assert.Equal(t, "v2", changes[0].Post.Content)
	assert.False(t, changes[0].Post.IsRead)
	assert.Equal(t, 1, unread(t, tree, model.FeedRef(feed.ID)))
}

func TestApplyRefresh_UndatedAndDuplicates(t *testing.T) {
	tree, _ := newTestTree(t)
	src, _ := tree.AddSource("Local")
	feed, _ := tree.AddFeed(src.ID, 0, "https://example.com/feed", "")

	at := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	batch := []model.Candidate{
		{GUID: "dup", Title: "first"},
		{GUID: "dup", Title: "second"},
		{Title: "no identity"},
	}
	changes, err := tree.ApplyRefresh(feed.ID, batch, at)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, "first", changes[0].Post.Title, "first occurrence wins")
	assert.True(t, changes[0].Post.Published.Equal(at), "undated posts get the refresh time")

	changes, err = tree.ApplyRefresh(feed.ID, batch, at.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, changes)

	f, _ := tree.Feed(feed.ID)
	require.NotNil(t, f.LastRefreshed)
	assert.Equal(t, at.Add(time.Hour).Unix(), f.LastRefreshed.Unix())
}

func TestApplyRefresh_UnknownFeed(t *testing.T) {
	tree, _ := newTestTree(t)
	_, err := tree.ApplyRefresh(42, candidates("x", 1, time.Now()), time.Now())
	assert.True(t, model.IsCode(err, model.ErrCodeIntegrity))
}

func TestRecordRefreshFailure(t *testing.T) {
	fx := newFixture(t)
	before := postsOf(t, fx.tree, fx.a.ID)

	require.NoError(t, fx.tree.RecordRefreshFailure(fx.a.ID, fmt.Errorf("connection refused")))

	f, _ := fx.tree.Feed(fx.a.ID)
	assert.Equal(t, "connection refused", f.LastRefreshError)
	assert.Equal(t, before, postsOf(t, fx.tree, fx.a.ID), "stored posts are kept")

	logs, total, err := fx.tree.Logs(model.FeedRef(fx.a.ID), 10, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, model.LogError, logs[0].Level)

	// A successful refresh clears the error
	_, err = fx.tree.ApplyRefresh(fx.a.ID, nil, time.Now())
	require.NoError(t, err)
	f, _ = fx.tree.Feed(fx.a.ID)
	assert.Empty(t, f.LastRefreshError)
}

func TestSetFlag(t *testing.T) {
	fx := newFixture(t)
	p := postsOf(t, fx.tree, fx.a.ID)[0]

	require.NoError(t, fx.tree.SetFlag(p.ID, model.FlagRed, true))
	require.NoError(t, fx.tree.SetFlag(p.ID, model.FlagRed, true))
	require.NoError(t, fx.tree.SetFlag(p.ID, model.FlagPurple, true))

	got, _ := fx.tree.Post(p.ID)
	assert.Equal(t, model.NewFlagSet(model.FlagRed, model.FlagPurple), got.Flags)

	used, err := fx.tree.UsedFlagColors(model.SourceRef(fx.source.ID))
	require.NoError(t, err)
	assert.Equal(t, []model.FlagColor{model.FlagRed, model.FlagPurple}, used.Colors())

	used, err = fx.tree.UsedFlagColors(model.FeedRef(fx.b.ID))
	require.NoError(t, err)
	assert.True(t, used.Empty())

	require.NoError(t, fx.tree.SetFlag(p.ID, model.FlagRed, false))
	require.NoError(t, fx.tree.SetFlag(p.ID, model.FlagGreen, false))
	got, _ = fx.tree.Post(p.ID)
	assert.Equal(t, model.NewFlagSet(model.FlagPurple), got.Flags)

	assert.True(t, model.IsCode(fx.tree.SetFlag(999, model.FlagRed, true), model.ErrCodeIntegrity))
	assert.True(t, model.IsCode(fx.tree.SetFlag(p.ID, model.FlagColor(9), true), model.ErrCodeValidation))
}
