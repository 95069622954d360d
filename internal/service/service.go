package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"sheetdash/internal/alerting"
	"sheetdash/internal/dataset"
	"sheetdash/internal/metrics"
	"sheetdash/internal/query"
	"sheetdash/internal/record"
	"sheetdash/internal/storage"
)

var (
	// ErrEmptyQuery is returned for blank query text.
	ErrEmptyQuery = errors.New("query text is required")
	// ErrHistoryDisabled is returned when no query log store is configured.
	ErrHistoryDisabled = errors.New("query history requires database.dsn")
)

// Health status values.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
)

const persistTimeout = 5 * time.Second

// BreakerState reports the circuit breaker guarding the sheet source.
type BreakerState interface {
	State() string
}

type cooldownResetter interface {
	Reset(sheet string)
}

// Health is the payload of the health endpoint.
type Health struct {
	Status  string        `json:"status"`
	Cache   dataset.State `json:"cacheState"`
	Breaker string        `json:"breaker,omitempty"`
}

// Service answers analytic questions over the cached sheet and records
// what it did. Stores and notifier are optional.
type Service struct {
	cache      *dataset.Cache
	interp     *query.Interpreter
	queryLog   storage.QueryLogStore
	refreshLog storage.RefreshLogStore
	notifier   alerting.Notifier
	breaker    BreakerState
	logger     zerolog.Logger
	now        func() time.Time
}

// Options carries the optional collaborators.
type Options struct {
	QueryLog   storage.QueryLogStore
	RefreshLog storage.RefreshLogStore
	Notifier   alerting.Notifier
	Breaker    BreakerState
}

// New constructs the service and subscribes it to cache refreshes.
func New(cache *dataset.Cache, interp *query.Interpreter, opts Options, logger zerolog.Logger) *Service {
	s := &Service{
		cache:      cache,
		interp:     interp,
		queryLog:   opts.QueryLog,
		refreshLog: opts.RefreshLog,
		notifier:   opts.Notifier,
		breaker:    opts.Breaker,
		logger:     logger.With().Str("component", "service").Logger(),
		now:        time.Now,
	}
	cache.OnRefresh(s.onRefresh)
	return s
}

// ProcessQuery answers text for user. Data and interpretation failures come
// back as an error-typed Result; the returned error is only ErrEmptyQuery.
func (s *Service) ProcessQuery(ctx context.Context, text, user string) (query.Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return query.Result{}, ErrEmptyQuery
	}

	start := s.now()
	var (
		q      query.Query
		result query.Result
		err    error
	)

	rows, fetchErr := s.cache.Get(ctx)
	if fetchErr != nil {
		q = s.interp.Interpret(text, nil)
		result, err = query.ErrorResult(fetchErr), fetchErr
	} else {
		q, result, err = s.interp.Answer(text, rows)
	}
	elapsed := s.now().Sub(start)

	metrics.QueriesTotal.WithLabelValues(string(q.Intent), string(result.Type)).Inc()
	metrics.QueryDuration.Observe(elapsed.Seconds())

	event := s.logger.Info()
	if err != nil {
		event = s.logger.Warn().Err(err)
	}
	event.Str("user", user).
		Str("intent", string(q.Intent)).
		Strs("dates", q.Dates).
		Int("metrics", len(q.Metrics)).
		Str("result_type", string(result.Type)).
		Int("items", len(result.Data)).
		Dur("duration", elapsed).
		Msg("query processed")

	s.audit(ctx, user, q, result, err, elapsed)
	return result, nil
}

func (s *Service) audit(ctx context.Context, user string, q query.Query, result query.Result, queryErr error, elapsed time.Duration) {
	if s.queryLog == nil {
		return
	}

	entry := storage.QueryLogEntry{
		UserEmail:  user,
		Text:       q.OriginalText,
		Intent:     string(q.Intent),
		ResultType: string(result.Type),
		Dates:      q.Dates,
		Metrics:    q.Metrics,
		ItemCount:  len(result.Data),
		DurationMS: elapsed.Milliseconds(),
	}
	if queryErr != nil {
		msg := queryErr.Error()
		entry.Error = &msg
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if _, err := s.queryLog.InsertQuery(ctx, entry); err != nil {
		s.logger.Error().Err(err).Msg("failed to record query log entry")
	}
}

// Dataset returns the current rows, fetching when the cache is stale.
func (s *Service) Dataset(ctx context.Context) ([]record.MetricRow, error) {
	return s.cache.Get(ctx)
}

// Refresh refetches the sheet regardless of freshness.
func (s *Service) Refresh(ctx context.Context) (dataset.State, error) {
	s.cache.Invalidate()
	if _, err := s.cache.Refresh(ctx); err != nil {
		return s.cache.State(), err
	}
	return s.cache.State(), nil
}

// Health reports cache state and breaker status.
func (s *Service) Health() Health {
	h := Health{Status: StatusOK, Cache: s.cache.State()}
	if s.breaker != nil {
		h.Breaker = s.breaker.State()
		if h.Breaker == "open" {
			h.Status = StatusDegraded
		}
	}
	return h
}

// RecentQueries lists the newest query log entries.
func (s *Service) RecentQueries(ctx context.Context, limit int) ([]storage.QueryLogEntry, error) {
	if s.queryLog == nil {
		return nil, ErrHistoryDisabled
	}
	if limit <= 0 {
		limit = 50
	}
	return s.queryLog.ListRecentQueries(ctx, limit)
}

// PurgeQueryLog deletes entries older than maxAge relative to bucket. It is
// the retention scheduler's tick.
func (s *Service) PurgeQueryLog(maxAge time.Duration) func(ctx context.Context, bucket time.Time) error {
	return func(ctx context.Context, bucket time.Time) error {
		if s.queryLog == nil {
			return ErrHistoryDisabled
		}
		cutoff := bucket.Add(-maxAge)
		removed, err := s.queryLog.DeleteQueriesBefore(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("purge query log: %w", err)
		}
		metrics.RetentionPurged.Add(float64(removed))
		s.logger.Info().Time("cutoff", cutoff).Int64("removed", removed).Msg("query log pruned")
		return nil
	}
}

func (s *Service) onRefresh(ctx context.Context, event dataset.RefreshEvent) {
	// A cancelled fetch says nothing about the sheet.
	if errors.Is(event.Err, context.Canceled) {
		s.logger.Debug().Str("sheet", event.Table).Msg("ignoring cancelled dataset refresh")
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if s.refreshLog != nil {
		rec := storage.RefreshRecord{
			SheetName:  event.Table,
			Status:     storage.RefreshOK,
			RowCount:   event.Rows,
			DurationMS: event.Duration.Milliseconds(),
		}
		if event.Err != nil {
			msg := event.Err.Error()
			rec.Status = storage.RefreshFailed
			rec.Error = &msg
		}
		if _, err := s.refreshLog.InsertRefresh(ctx, rec); err != nil {
			s.logger.Error().Err(err).Msg("failed to record dataset refresh")
		}
	}

	if s.notifier == nil {
		return
	}
	if event.Err == nil {
		if r, ok := s.notifier.(cooldownResetter); ok {
			r.Reset(event.Table)
		}
		return
	}

	note := alerting.Notification{
		Sheet: event.Table,
		At:    event.At,
		Error: event.Err.Error(),
	}
	if snap := s.cache.Snapshot(); snap != nil {
		last := snap.FetchedAt
		note.LastSuccess = &last
		note.CachedRows = len(snap.Rows)
	}
	if s.breaker != nil {
		note.BreakerState = s.breaker.State()
	}
	if err := s.notifier.Notify(ctx, note); err != nil {
		s.logger.Error().Err(err).Str("sheet", event.Table).Msg("failed to send fetch failure alert")
	}
}
