package app

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"sheetdash/internal/alerting"
	"sheetdash/internal/api"
	"sheetdash/internal/auth"
	"sheetdash/internal/config"
	"sheetdash/internal/dataset"
	"sheetdash/internal/query"
	"sheetdash/internal/scheduler"
	"sheetdash/internal/service"
	"sheetdash/internal/sheets"
	"sheetdash/internal/storage"
)

// retentionLockKey is the advisory lock id shared by every replica's pruning job.
const retentionLockKey int64 = 0x5348454554

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	// Out receives command output; defaults to stdout.
	Out io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{
		Config: cfg,
		Logger: logger.With().Str("component", "app").Logger(),
		Out:    os.Stdout,
	}
}

// newSource builds the configured sheet source. Remote sources come back
// wrapped in a circuit breaker, which is also returned for health reporting.
func (a *App) newSource() (sheets.Source, *sheets.Breaker) {
	cfg := a.Config.Sheet
	if cfg.Mode == config.SheetModeFile {
		return sheets.NewFile(cfg.FilePath), nil
	}

	opts := sheets.GoogleOptions{
		BaseURL:       cfg.BaseURL,
		SpreadsheetID: cfg.SpreadsheetID,
		APIKey:        cfg.APIKey,
		Timeout:       cfg.RequestTimeout,
		UserAgent:     cfg.UserAgent,
	}

	var source sheets.Source
	if cfg.Mode == config.SheetModeAPI {
		source = sheets.NewValuesAPI(opts, a.Logger)
	} else {
		source = sheets.NewCSVExport(opts, a.Logger)
	}

	breaker := sheets.NewBreaker(source, sheets.BreakerOptions{
		Name:             "sheet:" + cfg.SheetName,
		FailureThreshold: cfg.BreakerFailures,
		OpenTimeout:      cfg.BreakerTimeout,
		HalfOpenRequests: cfg.BreakerHalfOpens,
	}, a.Logger)
	return breaker, breaker
}

func (a *App) newCache(source sheets.Source) *dataset.Cache {
	return dataset.New(source, dataset.Options{
		Table:        a.Config.Sheet.SheetName,
		DateColumn:   a.Config.Sheet.DateColumn,
		TTL:          a.Config.Cache.TTL,
		Coalesce:     a.Config.Cache.Coalesce,
		FetchTimeout: a.Config.Sheet.RequestTimeout,
	}, a.Logger)
}

func (a *App) newInterpreter() (*query.Interpreter, error) {
	loc, err := a.Config.Location()
	if err != nil {
		return nil, err
	}
	return query.NewInterpreter(query.InterpreterOptions{Location: loc}), nil
}

func (a *App) newNotifier() alerting.Notifier {
	if !a.Config.Alerting.Enabled || !a.Config.Alerting.Telegram.Enabled {
		return nil
	}
	cfg := a.Config.Alerting.Telegram
	telegram := alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	return alerting.NewCooldown(telegram, a.Config.Alerting.Cooldown, a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// newService wires the dataset cache, interpreter and optional persistence.
// store may be nil.
func (a *App) newService(store *storage.Store) (*service.Service, error) {
	interp, err := a.newInterpreter()
	if err != nil {
		return nil, err
	}

	source, breaker := a.newSource()
	cache := a.newCache(source)

	var opts service.Options
	if store != nil {
		opts.QueryLog = store
		opts.RefreshLog = store
	}
	if notifier := a.newNotifier(); notifier != nil {
		opts.Notifier = notifier
	}
	if breaker != nil {
		opts.Breaker = breaker
	}
	return service.New(cache, interp, opts, a.Logger), nil
}

// Serve runs the HTTP API until SIGINT/SIGTERM, plus the query log
// retention job when enabled.
func (a *App) Serve(ctx context.Context) error {
	if err := a.Config.ValidateServe(); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; query history disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	svc, err := a.newService(store)
	if err != nil {
		return err
	}
	authn, err := auth.New(a.Config.Auth, a.Logger)
	if err != nil {
		return err
	}

	router := api.NewRouter(api.NewHandler(svc, authn), api.RouterOptions{
		CORSOrigins:    a.Config.Server.CORSOrigins,
		LoginRateLimit: a.Config.Server.LoginRateLimit,
		APIRateLimit:   a.Config.Server.APIRateLimit,
	}, a.Logger)
	server := api.NewServer(a.Config.Server, router, a.Logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx)
	})

	if a.Config.Retention.Enabled {
		if store == nil {
			a.Logger.Warn().Msg("retention enabled without database; skipping")
		} else {
			g.Go(func() error {
				return a.runRetention(gctx, svc, store)
			})
		}
	}

	// Warm the cache so the first query does not pay for the fetch.
	go func() {
		if _, err := svc.Dataset(gctx); err != nil {
			a.Logger.Warn().Err(err).Msg("initial dataset load failed")
		}
	}()

	a.Logger.Info().Str("sheet", a.Config.Sheet.SheetName).Str("mode", a.Config.Sheet.Mode).Msg("starting sheetdash")
	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("server terminated with error")
		return err
	}

	a.Logger.Info().Msg("sheetdash stopped")
	return nil
}

func (a *App) runRetention(ctx context.Context, svc *service.Service, store *storage.Store) error {
	cfg := a.Config.Retention
	sched := scheduler.New(scheduler.Options{
		Name:         "query_log_retention",
		Interval:     cfg.Interval,
		AlignToStart: cfg.AlignToBucket,
		StartupDelay: cfg.StartupDelay,
		RunAtStart:   true,
		Locker:       store,
		LockKey:      retentionLockKey,
	}, a.Logger)
	return sched.Run(ctx, svc.PurgeQueryLog(cfg.MaxAge))
}

// QueryOptions configure the one-shot query command.
type QueryOptions struct {
	Text string
	User string
}

// DataOptions configure the data command.
type DataOptions struct {
	Limit   int
	Metrics []string
}

// HistoryOptions configure the history command.
type HistoryOptions struct {
	Limit int
}

// ExportOptions hold parameters for exporting a metric trend.
type ExportOptions struct {
	Metric    string
	PNGPath   string
	CSVPath   string
	MaxPoints int
}
