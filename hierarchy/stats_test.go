package hierarchy

import (
	"testing"
	"time"

	"github.com/robertmeta/feedcore/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatistics(t *testing.T) {
	fx := newFixture(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	a := postsOf(t, fx.tree, fx.a.ID)
	require.NoError(t, fx.tree.SetFlag(a[0].ID, model.FlagRed, true))
	_, err := fx.tree.MarkRead(model.PostRef(a[1].ID), true)
	require.NoError(t, err)
	empty, err := fx.tree.AddFeed(fx.source.ID, fx.folder.ID, "https://empty.example.com/feed", "Empty")
	require.NoError(t, err)

	stats, err := fx.tree.Statistics(model.FolderRef(fx.folder.ID))
	require.NoError(t, err)
	assert.Equal(t, 3, stats.FeedCount, "feeds without posts still count")
	assert.Equal(t, 5, stats.PostCount)
	assert.Equal(t, 4, stats.UnreadCount)
	assert.Equal(t, 1, stats.FlaggedPostCount)
	require.NotNil(t, stats.OldestPost)
	require.NotNil(t, stats.NewestPost)
	assert.True(t, base.Equal(*stats.OldestPost))
	assert.True(t, base.Add(time.Hour+time.Minute).Equal(*stats.NewestPost))

	all, err := fx.tree.Statistics(model.NodeRef{})
	require.NoError(t, err)
	assert.Equal(t, 4, all.FeedCount)
	assert.Equal(t, 6, all.PostCount)
	assert.True(t, base.Add(2*time.Hour).Equal(*all.NewestPost))

	none, err := fx.tree.Statistics(model.FeedRef(empty.ID))
	require.NoError(t, err)
	assert.Equal(t, 1, none.FeedCount)
	assert.Zero(t, none.PostCount)
	assert.Nil(t, none.OldestPost)
	assert.Nil(t, none.NewestPost)

	sf, err := fx.tree.CreateScriptFolder("Picks")
	require.NoError(t, err)
	require.NoError(t, fx.tree.AssignToScriptFolder(sf.ID, a[0].ID))
	require.NoError(t, fx.tree.AssignToScriptFolder(sf.ID, postsOf(t, fx.tree, fx.c.ID)[0].ID))
	picked, err := fx.tree.Statistics(model.ScriptFolderRef(sf.ID))
	require.NoError(t, err)
	assert.Equal(t, 2, picked.FeedCount, "script folders count the feeds their posts come from")
	assert.Equal(t, 2, picked.PostCount)
	assert.Equal(t, 1, picked.FlaggedPostCount)

	_, err = fx.tree.Statistics(model.FolderRef(999))
	assert.True(t, model.IsCode(err, model.ErrCodeIntegrity))
}

func TestPostMetadata_IngestAndCategories(t *testing.T) {
	fx := newFixture(t)
	published := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

	episode := model.Candidate{
		GUID: "ep-1", Title: "Episode 1", Published: published,
		Author:      "Jane Doe",
		CommentsURL: "https://c.example.com/ep-1#comments",
		Categories:  []string{"Go", "Podcasts"},
		Enclosures:  []model.Enclosure{{URL: "https://c.example.com/ep-1.mp3", MimeType: "audio/mpeg", Size: 2048}},
	}
	other := model.Candidate{GUID: "ep-2", Title: "Episode 2", Published: published.Add(time.Hour), Categories: []string{"go"}}
	changes, err := fx.tree.ApplyRefresh(fx.c.ID, []model.Candidate{episode, other}, published)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, "Jane Doe", changes[0].Post.Author)
	assert.Equal(t, episode.Enclosures, changes[0].Post.Enclosures)

	cats, err := fx.tree.Categories(model.FeedRef(fx.c.ID))
	require.NoError(t, err)
	assert.Equal(t, []model.Category{{Name: "Go", PostCount: 2}, {Name: "Podcasts", PostCount: 1}}, cats)

	none, err := fx.tree.Categories(model.FeedRef(fx.a.ID))
	require.NoError(t, err)
	assert.Empty(t, none)

	page, err := fx.tree.ListPosts(model.SourceRef(fx.source.ID), model.PostFilter{Category: "GO"}, 10, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	page, err = fx.tree.ListPosts(model.NodeRef{}, model.PostFilter{Category: "podcasts"}, 10, 1)
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, "Episode 1", page.Posts[0].Title)

	// A metadata-only change is an update, and survives a reload.
	episode.Categories = []string{"Go"}
	episode.Enclosures = nil
	changes, err = fx.tree.ApplyRefresh(fx.c.ID, []model.Candidate{episode, other}, published)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, model.EventUpdatedPost, changes[0].Kind)

	reloaded, err := Load(fx.store, nil)
	require.NoError(t, err)
	got, err := reloaded.Post(changes[0].Post.ID)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", got.Author)
	assert.Equal(t, "https://c.example.com/ep-1#comments", got.CommentsURL)
	assert.Equal(t, []string{"Go"}, got.Categories)
	assert.Empty(t, got.Enclosures)

	// Copies handed out do not alias tree state.
	got.Categories[0] = "mutated"
	again, _ := reloaded.Post(got.ID)
	assert.Equal(t, []string{"Go"}, again.Categories)
}
