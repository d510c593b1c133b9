// Package feed provides RSS/Atom feed fetching and parsing for feedcore.
package feed

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/mmcdole/gofeed/rss"
	"github.com/robertmeta/feedcore/model"
)

// Options tune a Fetcher.
type Options struct {
	// PerDomain limits parallel requests to any single host.
	PerDomain int
	// DomainDelay is the minimum spacing between requests to one host.
	DomainDelay time.Duration
	// Timeout bounds a single HTTP fetch.
	Timeout time.Duration
	// UserAgent is sent with every request.
	UserAgent string
}

// DefaultOptions returns the options used by NewFetcher.
func DefaultOptions() Options {
	return Options{
		PerDomain:   2,
		DomainDelay: 500 * time.Millisecond,
		Timeout:     30 * time.Second,
		UserAgent:   "feedcore/0.1",
	}
}

// Fetcher handles fetching and parsing RSS/Atom feeds.
type Fetcher struct {
	parser  *gofeed.Parser
	limiter *domainLimiter
}

// NewFetcher creates a new Fetcher with default options.
func NewFetcher() *Fetcher {
	return NewFetcherWithOptions(DefaultOptions())
}

// NewFetcherWithOptions creates a Fetcher with explicit rate limits.
func NewFetcherWithOptions(opts Options) *Fetcher {
	parser := gofeed.NewParser()
	// The parser installs missing translators lazily on first use, which
	// races when one Fetcher serves many workers.
	parser.RSSTranslator = &rssTranslator{}
	parser.AtomTranslator = &gofeed.DefaultAtomTranslator{}
	parser.JSONTranslator = &gofeed.DefaultJSONTranslator{}
	parser.UserAgent = opts.UserAgent
	if opts.Timeout > 0 {
		parser.Client = &http.Client{Timeout: opts.Timeout}
	}
	return &Fetcher{
		parser:  parser,
		limiter: newDomainLimiter(opts.PerDomain, opts.DomainDelay),
	}
}

// Fetch retrieves and parses a feed from a URL. Cancelling ctx aborts the
// request.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]model.Candidate, error) {
	domain := extractDomain(url)
	if err := f.limiter.acquire(ctx, domain); err != nil {
		return nil, fmt.Errorf("rate limit cancelled for %s: %w", url, err)
	}
	defer f.limiter.release(domain)

	parsedFeed, err := f.parser.ParseURLWithContext(url, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed from %s: %w", url, err)
	}

	return f.convert(parsedFeed), nil
}

// Parse parses feed content from a string.
func (f *Fetcher) Parse(content string) ([]model.Candidate, error) {
	if content == "" {
		return nil, fmt.Errorf("feed content is empty")
	}

	parsedFeed, err := f.parser.ParseString(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	return f.convert(parsedFeed), nil
}

// Title fetches only the feed's title, used when subscribing.
func (f *Fetcher) Title(ctx context.Context, url string) (string, error) {
	parsedFeed, err := f.parser.ParseURLWithContext(url, ctx)
	if err != nil {
		return "", fmt.Errorf("failed to fetch feed from %s: %w", url, err)
	}
	return parsedFeed.Title, nil
}

// convert converts a gofeed.Feed to candidates.
func (f *Fetcher) convert(gf *gofeed.Feed) []model.Candidate {
	candidates := make([]model.Candidate, 0, len(gf.Items))
	for _, item := range gf.Items {
		candidates = append(candidates, f.convertItem(item))
	}
	return candidates
}

// convertItem converts a gofeed.Item to a model.Candidate.
func (f *Fetcher) convertItem(item *gofeed.Item) model.Candidate {
	c := model.Candidate{
		GUID:  item.GUID,
		Title: item.Title,
		Link:  item.Link,
	}

	// Get content (prefer full content over description)
	if item.Content != "" {
		c.Content = item.Content
	} else if item.Description != "" {
		c.Content = item.Description
	}

	if item.Author != nil {
		c.Author = item.Author.Name
		if c.Author == "" {
			c.Author = item.Author.Email
		}
	}
	c.CommentsURL = item.Custom[commentsKey]

	for _, cat := range item.Categories {
		if cat = strings.TrimSpace(cat); cat != "" {
			c.Categories = append(c.Categories, cat)
		}
	}
	for _, enc := range item.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		size, _ := strconv.ParseInt(strings.TrimSpace(enc.Length), 10, 64)
		c.Enclosures = append(c.Enclosures, model.Enclosure{
			URL:      enc.URL,
			MimeType: enc.Type,
			Size:     max(size, 0),
		})
	}

	// Undated items keep a zero timestamp so their content hash stays stable
	// across fetches; the store stamps them on first insert.
	if item.PublishedParsed != nil {
		c.Published = *item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		c.Published = *item.UpdatedParsed
	}

	return c
}

// commentsKey carries the RSS <comments> link through gofeed's generic item,
// which has no field for it.
const commentsKey = "feedcore:comments"

type rssTranslator struct {
	gofeed.DefaultRSSTranslator
}

func (t *rssTranslator) Translate(feed interface{}) (*gofeed.Feed, error) {
	out, err := t.DefaultRSSTranslator.Translate(feed)
	if err != nil {
		return nil, err
	}
	rf := feed.(*rss.Feed)
	for i, item := range rf.Items {
		if item.Comments == "" || i >= len(out.Items) {
			continue
		}
		custom := make(map[string]string, len(out.Items[i].Custom)+1)
		for k, v := range out.Items[i].Custom {
			custom[k] = v
		}
		custom[commentsKey] = item.Comments
		out.Items[i].Custom = custom
	}
	return out, nil
}
