package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/robertmeta/feedcore/logging"
	"github.com/robertmeta/feedcore/model"
)

// SchedulerConfig controls periodic refreshes.
type SchedulerConfig struct {
	// Interval is the default refresh period of a feed.
	Interval time.Duration
	// Tick is how often due feeds are looked for. Defaults to the smaller of
	// Interval and one minute.
	Tick time.Duration
	// LogRetention prunes persisted log entries older than this each cycle.
	// Zero keeps everything.
	LogRetention time.Duration
}

// Scheduler refreshes feeds whose interval has elapsed.
type Scheduler struct {
	pipeline *Pipeline
	config   SchedulerConfig
	logger   *logging.Logger

	mu       sync.Mutex
	attempts map[int64]time.Time
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewScheduler(pipeline *Pipeline, config SchedulerConfig, logger *logging.Logger) *Scheduler {
	if config.Tick <= 0 {
		config.Tick = time.Minute
		if config.Interval > 0 {
			config.Tick = min(config.Interval, time.Minute)
		}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Scheduler{
		pipeline: pipeline,
		config:   config,
		logger:   logger.ForComponent("scheduler"),
		attempts: make(map[int64]time.Time),
		stopChan: make(chan struct{}),
	}
}

// Start runs the scheduler loop in the background until Stop or ctx ends.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("starting refresh scheduler", "interval", s.config.Interval, "tick", s.config.Tick)
	s.wg.Add(1)
	go s.loop(ctx)
}

// Stop signals the loop and waits for the running cycle to finish. It is
// safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("stopping refresh scheduler")
		close(s.stopChan)
	})
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	ticker := time.NewTicker(s.config.Tick)
	defer ticker.Stop()

	s.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce refreshes every due feed and prunes old log entries.
func (s *Scheduler) RunOnce(ctx context.Context) []Result {
	now := s.pipeline.now()
	var due []int64
	for _, f := range s.pipeline.tree.Feeds() {
		if s.isDue(f, now) {
			due = append(due, f.ID)
		}
	}

	var results []Result
	if len(due) > 0 {
		s.mu.Lock()
		for _, id := range due {
			s.attempts[id] = now
		}
		s.mu.Unlock()

		s.logger.Info("refreshing due feeds", "count", len(due))
		results = s.pipeline.RefreshAll(ctx, due)
	}

	if s.config.LogRetention > 0 {
		if n, err := s.pipeline.tree.PruneLogs(s.config.LogRetention); err != nil {
			s.logger.Error("failed to prune logs", "error", err)
		} else if n > 0 {
			s.logger.Debug("pruned logs", "count", n)
		}
	}
	return results
}

// isDue reports whether a feed's interval has passed since its last
// successful refresh and since the scheduler last tried it.
func (s *Scheduler) isDue(f model.Feed, now time.Time) bool {
	interval := s.config.Interval
	if f.RefreshInterval != nil {
		interval = *f.RefreshInterval
	}
	if interval <= 0 {
		return false
	}

	s.mu.Lock()
	last, tried := s.attempts[f.ID]
	s.mu.Unlock()
	if tried && now.Sub(last) < interval {
		return false
	}
	return f.LastRefreshed == nil || now.Sub(*f.LastRefreshed) >= interval
}
