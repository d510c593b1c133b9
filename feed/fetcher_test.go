package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/robertmeta/feedcore/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetcher_ParseRSS2(t *testing.T) {
	data, err := os.ReadFile("../testdata/rss2.xml")
	require.NoError(t, err)

	fetcher := NewFetcher()
	candidates, err := fetcher.Parse(string(data))
	require.NoError(t, err)
	require.Len(t, candidates, 3, "Should parse 3 entries from RSS feed")

	assert.Equal(t, "First Test Entry", candidates[0].Title)
	assert.Equal(t, "https://example.com/entry-1", candidates[0].Link)
	assert.Equal(t, "entry-1", candidates[0].GUID)
	assert.Contains(t, candidates[0].Content, "first test entry")
	assert.False(t, candidates[0].Published.IsZero(), "Published date should be set")

	assert.Equal(t, "Jane Doe", candidates[0].Author)
	assert.Equal(t, "https://example.com/entry-1#comments", candidates[0].CommentsURL)
	assert.Equal(t, []string{"Go", "Databases"}, candidates[0].Categories)
	assert.Equal(t, []model.Enclosure{
		{URL: "https://example.com/entry-1.mp3", MimeType: "audio/mpeg", Size: 12345},
	}, candidates[0].Enclosures)

	assert.Equal(t, "entry-2", candidates[1].GUID)
	assert.Empty(t, candidates[1].Author)
	assert.Empty(t, candidates[1].CommentsURL)
	assert.Empty(t, candidates[1].Categories)
	assert.Empty(t, candidates[1].Enclosures)

	// Without a guid the link becomes the identity.
	assert.Equal(t, "", candidates[2].GUID)
	assert.Equal(t, "https://example.com/entry-3", candidates[2].Identity())
}

func TestFetcher_ParseAtom(t *testing.T) {
	data, err := os.ReadFile("../testdata/atom.xml")
	require.NoError(t, err)

	fetcher := NewFetcher()
	candidates, err := fetcher.Parse(string(data))
	require.NoError(t, err)
	require.Len(t, candidates, 2, "Should parse 2 entries from Atom feed")

	assert.Equal(t, "First Atom Entry", candidates[0].Title)
	assert.Equal(t, "https://example.com/atom-entry-1", candidates[0].Link)
	assert.Equal(t, "atom-entry-1", candidates[0].GUID)
	assert.Contains(t, candidates[0].Content, "HTML content")
	assert.Equal(t, "Ann Atom", candidates[0].Author)
	assert.Equal(t, []string{"Go"}, candidates[0].Categories)
	// An unparseable length leaves the size unknown.
	assert.Equal(t, []model.Enclosure{
		{URL: "https://example.com/atom-entry-1.ogg", MimeType: "audio/ogg"},
	}, candidates[0].Enclosures)

	// Falls back to the updated timestamp and the summary.
	assert.Equal(t, "Only a summary", candidates[1].Content)
	assert.Equal(t, time.Date(2024, 5, 5, 10, 0, 0, 0, time.UTC), candidates[1].Published.UTC())
}

func TestFetcher_ParseInvalidFeed(t *testing.T) {
	fetcher := NewFetcher()

	_, err := fetcher.Parse("<invalid>xml</broken>")
	assert.Error(t, err, "Should error on invalid XML")

	_, err = fetcher.Parse("")
	assert.Error(t, err, "Should error on empty string")

	_, err = fetcher.Parse("<?xml version='1.0'?><root><item>not a feed</item></root>")
	assert.Error(t, err, "Should error on non-feed XML")
}

func TestFetcher_UndatedItemsKeepStableHash(t *testing.T) {
	minimalRSS := `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Minimal Feed</title>
    <item>
      <title>Entry with no content</title>
      <link>https://example.com/minimal</link>
      <guid>minimal-1</guid>
    </item>
  </channel>
</rss>`

	fetcher := NewFetcher()
	first, err := fetcher.Parse(minimalRSS)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, "", first[0].Content)
	assert.True(t, first[0].Published.IsZero())

	second, err := fetcher.Parse(minimalRSS)
	require.NoError(t, err)
	assert.Equal(t, first[0].ContentHash(), second[0].ContentHash())
}

func TestFetcher_FetchURL(t *testing.T) {
	data, err := os.ReadFile("../testdata/rss2.xml")
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write(data)
	}))
	defer srv.Close()

	candidates, err := NewFetcher().Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, candidates, 3)

	title, err := NewFetcher().Title(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Test RSS Feed", title)
}

func TestFetcher_FetchErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			http.NotFound(w, r)
		default:
			w.Write([]byte("<html><body>not a feed</body></html>"))
		}
	}))
	defer srv.Close()

	fetcher := NewFetcher()

	_, err := fetcher.Fetch(context.Background(), srv.URL+"/missing")
	assert.Error(t, err)

	_, err = fetcher.Fetch(context.Background(), srv.URL+"/html")
	assert.Error(t, err)

	_, err = fetcher.Fetch(context.Background(), "not-a-valid-url")
	assert.Error(t, err)
}

func TestFetcher_FetchCancelled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := NewFetcher().Fetch(ctx, srv.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDomainLimiter_BoundsConcurrency(t *testing.T) {
	dl := newDomainLimiter(2, 0)

	var inFlight, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, dl.acquire(context.Background(), "example.com"))
			n := atomic.AddInt32(&inFlight, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
			dl.release("example.com")
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestDomainLimiter_CancelWhileWaiting(t *testing.T) {
	dl := newDomainLimiter(1, 0)
	require.NoError(t, dl.acquire(context.Background(), "example.com"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := dl.acquire(ctx, "example.com")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	dl.release("example.com")
}

func TestDomainLimiter_SpacesConcurrentStarts(t *testing.T) {
	dl := newDomainLimiter(2, 40*time.Millisecond)

	var mu sync.Mutex
	var starts []time.Time
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, dl.acquire(context.Background(), "example.com"))
			mu.Lock()
			starts = append(starts, time.Now())
			mu.Unlock()
			dl.release("example.com")
		}()
	}
	wg.Wait()

	require.Len(t, starts, 3)
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })
	for i := 1; i < len(starts); i++ {
		assert.GreaterOrEqual(t, starts[i].Sub(starts[i-1]), 30*time.Millisecond,
			"starts %d and %d share a delay window", i-1, i)
	}

	// Other hosts have their own budget.
	begin := time.Now()
	require.NoError(t, dl.acquire(context.Background(), "other.example.com"))
	dl.release("other.example.com")
	assert.Less(t, time.Since(begin), 30*time.Millisecond)
}

func TestDomainLimiter_CancelWhilePacing(t *testing.T) {
	dl := newDomainLimiter(2, time.Hour)
	require.NoError(t, dl.acquire(context.Background(), "example.com"))
	dl.release("example.com")

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	err := dl.acquire(ctx, "example.com")
	assert.ErrorIs(t, err, context.Canceled)

	// The slot taken before pacing was given back.
	assert.True(t, dl.host("example.com").slots.TryAcquire(2))
}

func TestFetcher_ConcurrentFetches(t *testing.T) {
	data, err := os.ReadFile("../testdata/rss2.xml")
	require.NoError(t, err)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write(data)
	}))
	defer srv.Close()

	fetcher := NewFetcherWithOptions(Options{PerDomain: 8, Timeout: 5 * time.Second})
	assert.NotNil(t, fetcher.parser.RSSTranslator)
	assert.NotNil(t, fetcher.parser.AtomTranslator)
	assert.NotNil(t, fetcher.parser.JSONTranslator)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	counts := make([]int, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := fetcher.Fetch(context.Background(), srv.URL)
			errs[i], counts[i] = err, len(got)
		}(i)
	}
	wg.Wait()

	for i := range errs {
		require.NoError(t, errs[i])
		assert.Equal(t, 3, counts[i])
	}
}

func TestExtractDomain(t *testing.T) {
	assert.Equal(t, "example.com", extractDomain("https://example.com/rss"))
	assert.Equal(t, "example.com:8080", extractDomain("http://example.com:8080/feed"))
	assert.Equal(t, "not a url", extractDomain("not a url"))
}
