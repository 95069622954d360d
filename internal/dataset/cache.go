package dataset

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"sheetdash/internal/metrics"
	"sheetdash/internal/record"
	"sheetdash/internal/sheets"
)

// DefaultTTL is how long a fetched dataset is served without refetching.
const DefaultTTL = time.Hour

// errFetchTimeout is the cancellation cause when a fetch exceeds FetchTimeout.
var errFetchTimeout = errors.New("sheet fetch timed out")

// DataFetchError reports that the sheet could not be loaded.
type DataFetchError struct {
	Table string
	Err   error
}

func (e *DataFetchError) Error() string {
	return fmt.Sprintf("fetch sheet %q: %v", e.Table, e.Err)
}

func (e *DataFetchError) Unwrap() error {
	return e.Err
}

// Snapshot is an immutable view of the dataset at fetch time.
type Snapshot struct {
	Rows      []record.MetricRow
	FetchedAt time.Time
	// Generation is the cache generation the fetch started in; Invalidate
	// bumps the generation so older snapshots are never fresh.
	Generation uint64
}

// State summarises the cache for health reporting.
type State struct {
	Rows      int        `json:"rows"`
	FetchedAt *time.Time `json:"fetchedAt,omitempty"`
	Fresh     bool       `json:"fresh"`
	TTL       string     `json:"ttl"`
}

// RefreshEvent describes one attempt to load the sheet.
type RefreshEvent struct {
	Table    string
	Rows     int
	Duration time.Duration
	At       time.Time
	Err      error
}

// RefreshHook observes refresh attempts.
type RefreshHook func(ctx context.Context, event RefreshEvent)

// Options configure the cache.
type Options struct {
	Table      string
	DateColumn string
	TTL        time.Duration
	// Coalesce lets concurrent misses share a single sheet fetch. The shared
	// fetch is detached from any one caller's context.
	Coalesce bool
	// FetchTimeout bounds a single fetch; zero leaves it to the caller.
	FetchTimeout time.Duration
	Now          func() time.Time
}

// Cache holds the most recently fetched rows. Rows handed out are shared
// and must be treated as read-only.
type Cache struct {
	source     sheets.Source
	opts       Options
	logger     zerolog.Logger
	snapshot   atomic.Pointer[Snapshot]
	generation atomic.Uint64
	group         singleflight.Group
	hooks      []RefreshHook
}

// New constructs a dataset cache over source.
func New(source sheets.Source, opts Options, logger zerolog.Logger) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.DateColumn == "" {
		opts.DateColumn = record.DefaultDateColumn
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Cache{
		source: source,
		opts:   opts,
		logger: logger.With().Str("component", "dataset_cache").Str("table", opts.Table).Logger(),
	}
}

// OnRefresh registers hook. Hooks must be registered before the cache is used.
func (c *Cache) OnRefresh(hook RefreshHook) {
	c.hooks = append(c.hooks, hook)
}

// Get returns cached rows while they are fresh and refetches otherwise.
// On fetch failure the previous snapshot is kept and a *DataFetchError returned.
func (c *Cache) Get(ctx context.Context) ([]record.MetricRow, error) {
	if snap := c.snapshot.Load(); c.fresh(snap) {
		metrics.DatasetCacheHits.Inc()
		c.logger.Debug().Int("rows", len(snap.Rows)).Msg("dataset cache hit")
		return snap.Rows, nil
	}

	metrics.DatasetCacheMisses.Inc()
	return c.Refresh(ctx)
}

// Refresh fetches the sheet unconditionally and swaps in the new snapshot.
// With coalescing, a caller whose ctx ends stops waiting and gets ctx.Err()
// while the shared fetch carries on for the others.
func (c *Cache) Refresh(ctx context.Context) ([]record.MetricRow, error) {
	if !c.opts.Coalesce {
		snap, err := c.fetch(ctx)
		if err != nil {
			return nil, err
		}
		return snap.Rows, nil
	}

	ch := c.group.DoChan("refresh", func() (any, error) {
		return c.fetch(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		c.logger.Debug().Err(ctx.Err()).Msg("caller left in-flight dataset refresh")
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			c.logger.Debug().Msg("joined in-flight dataset refresh")
		}
		return res.Val.(*Snapshot).Rows, nil
	}
}

// Invalidate marks the current snapshot stale so the next Get refetches.
// Fetches already in flight also land stale.
func (c *Cache) Invalidate() {
	c.generation.Add(1)
}

// Snapshot returns the current snapshot, or nil before the first fetch.
func (c *Cache) Snapshot() *Snapshot {
	return c.snapshot.Load()
}

// State reports cache contents and freshness.
func (c *Cache) State() State {
	snap := c.snapshot.Load()
	state := State{TTL: c.opts.TTL.String()}
	if snap == nil {
		return state
	}
	fetchedAt := snap.FetchedAt
	state.Rows = len(snap.Rows)
	state.FetchedAt = &fetchedAt
	state.Fresh = c.fresh(snap)
	return state
}

func (c *Cache) fresh(snap *Snapshot) bool {
	if snap == nil || len(snap.Rows) == 0 || snap.Generation != c.generation.Load() {
		return false
	}
	return c.opts.Now().Sub(snap.FetchedAt) < c.opts.TTL
}

func (c *Cache) fetch(parent context.Context) (*Snapshot, error) {
	ctx, cancel := c.fetchContext(parent)
	defer cancel()

	generation := c.generation.Load()
	start := time.Now()
	raw, err := c.source.LoadRows(ctx, c.opts.Table)
	elapsed := time.Since(start)

	if err != nil {
		fetchErr := &DataFetchError{Table: c.opts.Table, Err: err}
		if abandoned(ctx, err) {
			// The caller went away; the sheet is not at fault.
			metrics.DatasetFetchDuration.WithLabelValues("cancelled").Observe(elapsed.Seconds())
			c.logger.Debug().Err(err).Dur("duration", elapsed).Msg("dataset fetch cancelled by caller")
			return nil, fetchErr
		}
		metrics.DatasetFetchDuration.WithLabelValues("error").Observe(elapsed.Seconds())
		c.logger.Error().Err(err).Dur("duration", elapsed).Msg("dataset fetch failed; keeping previous snapshot")
		c.notify(parent, RefreshEvent{Table: c.opts.Table, Duration: elapsed, At: c.opts.Now(), Err: fetchErr})
		return nil, fetchErr
	}

	snap := &Snapshot{
		Rows:       record.FromRawRows(raw, c.opts.DateColumn),
		FetchedAt:  c.opts.Now(),
		Generation: generation,
	}
	c.snapshot.Store(snap)

	metrics.DatasetFetchDuration.WithLabelValues("success").Observe(elapsed.Seconds())
	metrics.DatasetRows.Set(float64(len(snap.Rows)))
	c.logger.Info().Int("raw_rows", len(raw)).Int("rows", len(snap.Rows)).Dur("duration", elapsed).Msg("dataset refreshed")
	c.notify(parent, RefreshEvent{Table: c.opts.Table, Rows: len(snap.Rows), Duration: elapsed, At: snap.FetchedAt})
	return snap, nil
}

func (c *Cache) fetchContext(parent context.Context) (context.Context, context.CancelFunc) {
	if c.opts.FetchTimeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeoutCause(parent, c.opts.FetchTimeout, errFetchTimeout)
}

// abandoned reports whether err stems from the caller's context ending
// rather than from the fetch timeout or the source itself.
func abandoned(ctx context.Context, err error) bool {
	if ctx.Err() == nil {
		return false
	}
	if errors.Is(context.Cause(ctx), errFetchTimeout) {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (c *Cache) notify(ctx context.Context, event RefreshEvent) {
	for _, hook := range c.hooks {
		hook(ctx, event)
	}
}
