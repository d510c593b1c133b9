// Package ingest refreshes feeds: it fetches candidates, lets the hierarchy
// classify and store them, and hands every new or updated post to the
// dispatcher.
package ingest

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/robertmeta/feedcore/logging"
	"github.com/robertmeta/feedcore/model"
)

// Adapter fetches and parses a feed URL. *feed.Fetcher satisfies it.
type Adapter interface {
	Fetch(ctx context.Context, url string) ([]model.Candidate, error)
}

// Dispatcher runs scripts for a content event. *dispatch.Dispatcher
// satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, post model.Post, kind model.EventKind) []model.ScriptRun
}

// Tree is the part of *hierarchy.Tree the pipeline uses.
type Tree interface {
	Feed(id int64) (model.Feed, error)
	Feeds() []model.Feed
	ApplyRefresh(feedID int64, candidates []model.Candidate, at time.Time) ([]model.PostChange, error)
	RecordRefreshFailure(feedID int64, cause error) error
	PruneLogs(retention time.Duration) (int64, error)
}

// Pipeline refreshes feeds. At most one refresh per feed is in flight;
// concurrent callers for the same feed share its result.
type Pipeline struct {
	tree       Tree
	adapter    Adapter
	dispatcher Dispatcher
	logger     *logging.Logger
	workers    int
	flights    singleflight.Group
	now        func() time.Time

	mu       sync.Mutex
	inflight map[string]*flight
	gen      uint64
}

// flight is one shared refresh. It runs on its own context, cancelled only
// once every caller waiting on it has gone.
type flight struct {
	key     string
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// New creates a pipeline refreshing up to workers feeds at once in
// RefreshAll. A nil dispatcher skips script execution.
func New(tree Tree, adapter Adapter, dispatcher Dispatcher, workers int, logger *logging.Logger) *Pipeline {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Pipeline{
		tree:       tree,
		adapter:    adapter,
		dispatcher: dispatcher,
		logger:     logger.ForComponent("ingest"),
		workers:    workers,
		now:        time.Now,
		inflight:   make(map[string]*flight),
	}
}

// Refresh runs one refresh cycle for a feed. Fetch errors are recorded on
// the feed and returned as FETCH_FAILURE. A caller whose ctx ends stops
// waiting without disturbing others sharing the flight; the fetch itself is
// abandoned, leaving the store untouched, only when no caller is left. Once
// candidates are applied, scripts run to completion.
func (p *Pipeline) Refresh(ctx context.Context, feedID int64) (model.RefreshOutcome, error) {
	id := strconv.FormatInt(feedID, 10)

	p.mu.Lock()
	fl, joined := p.inflight[id]
	if !joined {
		p.gen++
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		fl = &flight{key: id + "/" + strconv.FormatUint(p.gen, 10), ctx: fctx, cancel: cancel}
		p.inflight[id] = fl
	}
	fl.waiters++
	ch := p.flights.DoChan(fl.key, func() (interface{}, error) {
		return p.refresh(fl.ctx, feedID)
	})
	p.mu.Unlock()
	defer p.leave(id, fl)

	if joined {
		p.logger.Debug("joined in-flight refresh", "feed_id", feedID)
	}
	select {
	case res := <-ch:
		outcome, _ := res.Val.(model.RefreshOutcome)
		outcome.FeedID = feedID
		return outcome, res.Err
	case <-ctx.Done():
		return model.RefreshOutcome{FeedID: feedID}, ctx.Err()
	}
}

func (p *Pipeline) leave(id string, fl *flight) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fl.waiters--
	if fl.waiters > 0 {
		return
	}
	fl.cancel()
	if p.inflight[id] == fl {
		delete(p.inflight, id)
	}
}

func (p *Pipeline) refresh(ctx context.Context, feedID int64) (model.RefreshOutcome, error) {
	outcome := model.RefreshOutcome{FeedID: feedID}
	log := p.logger.WithFeed(feedID)

	f, err := p.tree.Feed(feedID)
	if err != nil {
		return outcome, err
	}
	if err := ctx.Err(); err != nil {
		return outcome, err
	}

	log.Debug("refreshing feed", "url", f.URL)
	candidates, err := p.adapter.Fetch(ctx, f.URL)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			log.Info("refresh cancelled")
			return outcome, ctxErr
		}
		log.Warn("refresh failed", "url", f.URL, "error", err)
		if recErr := p.tree.RecordRefreshFailure(feedID, err); recErr != nil {
			log.Error("failed to record refresh failure", "error", recErr)
		}
		return outcome, model.NewFetchFailure("failed to fetch "+f.URL, err)
	}
	if err := ctx.Err(); err != nil {
		log.Info("refresh cancelled")
		return outcome, err
	}

	changes, err := p.tree.ApplyRefresh(feedID, candidates, p.now())
	if err != nil {
		return outcome, err
	}

	outcome.Fetched = len(candidates)
	outcome.Changes = changes
	for _, ch := range changes {
		if ch.Kind == model.EventNewPost {
			outcome.New++
		} else {
			outcome.Updated++
		}
	}
	outcome.Unchanged = outcome.Fetched - outcome.New - outcome.Updated

	// The store already holds the changes, so scripts are not cut short by
	// the caller going away.
	if p.dispatcher != nil {
		dctx := context.WithoutCancel(ctx)
		for _, ch := range changes {
			outcome.ScriptRuns = append(outcome.ScriptRuns, p.dispatcher.Dispatch(dctx, ch.Post, ch.Kind)...)
		}
	}

	log.Info("feed refreshed", "fetched", outcome.Fetched, "new", outcome.New,
		"updated", outcome.Updated, "script_runs", len(outcome.ScriptRuns))
	return outcome, nil
}

// Result is the outcome of one feed in RefreshAll.
type Result struct {
	FeedID  int64                `json:"feed_id"`
	Outcome model.RefreshOutcome `json:"outcome"`
	Err     error                `json:"-"`
	Error   string               `json:"error,omitempty"`
}

// RefreshAll refreshes the given feeds (every feed when ids is nil) with
// bounded concurrency. One feed failing does not affect the others; results
// are returned in input order.
func (p *Pipeline) RefreshAll(ctx context.Context, ids []int64) []Result {
	if ids == nil {
		for _, f := range p.tree.Feeds() {
			ids = append(ids, f.ID)
		}
	}

	results := make([]Result, len(ids))
	g := new(errgroup.Group)
	g.SetLimit(p.workers)
	for i, id := range ids {
		g.Go(func() error {
			outcome, err := p.Refresh(ctx, id)
			results[i] = Result{FeedID: id, Outcome: outcome, Err: err}
			if err != nil {
				results[i].Error = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil && !errors.Is(r.Err, context.Canceled) {
			failed++
		}
	}
	p.logger.Info("refresh cycle finished", "feeds", len(ids), "failed", failed)
	return results
}
