package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"budgetwise/internal/analytics"
	"budgetwise/internal/api"
	"budgetwise/internal/auth"
	"budgetwise/internal/backend"
	"budgetwise/internal/cache"
	"budgetwise/internal/config"
	"budgetwise/internal/core"
	"budgetwise/internal/expenses"
	applog "budgetwise/internal/log"
	"budgetwise/internal/store"
)

// ErrExportDisabled is returned by Export when no spreadsheet is configured.
var ErrExportDisabled = errors.New("sheets export is not configured (set GOOGLE_SPREADSHEET_ID)")

// App is the wired client: one session, one expense log, one analytics memo.
type App struct {
	Config    *config.Config
	Logger    *applog.Logger
	Store     store.Store
	Client    *api.Client
	Auth      *auth.Manager
	Expenses  *expenses.Service
	Analytics *analytics.Memo
	Exporter  expenses.Exporter

	caches  *cache.Manager
	cleanup backend.CleanupFunc
}

// BootstrapOptions overrides pieces of the wiring, mainly for tests.
type BootstrapOptions struct {
	HTTPClient *http.Client
	Factory    backend.Factory
}

// Bootstrap builds the backend from cfg, restores the session and loads
// the expense log.
func Bootstrap(ctx context.Context, cfg *config.Config, logger *applog.Logger, opts BootstrapOptions) (*App, error) {
	if logger == nil {
		logger = applog.Discard()
	}
	factory := opts.Factory
	if factory == nil {
		factory = backend.NewFactory(logger)
	}

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := factory.Create(ctx, bcfg)
	if err != nil {
		return nil, err
	}

	client := api.New(api.Options{
		BaseURL:    cfg.APIBaseURL,
		Timeout:    cfg.APITimeout,
		RateLimit:  cfg.APIRateLimit,
		HTTPClient: opts.HTTPClient,
		Logger:     logger,
	})

	app := &App{
		Config:    cfg,
		Logger:    logger,
		Store:     res.Store,
		Client:    client,
		Auth:      auth.NewManager(client, res.Store, logger),
		Expenses:  expenses.NewService(client, res.Store, expenses.Options{Publisher: res.Publisher, Logger: logger}),
		Analytics: analytics.NewMemo(cfg.AnalyticsCacheSize, cfg.AnalyticsCacheTTL),
		Exporter:  res.Exporter,
		caches:    cache.NewManager(logger),
		cleanup:   res.Cleanup,
	}
	app.caches.Register(app.Analytics)
	app.caches.StartCleanup(cfg.AnalyticsCacheTTL)

	if err := app.Auth.Initialize(ctx); err != nil {
		app.Close()
		return nil, fmt.Errorf("restore session: %w", err)
	}
	if _, err := app.Expenses.Load(ctx); err != nil {
		app.Close()
		return nil, fmt.Errorf("load expense log: %w", err)
	}
	return app, nil
}

// Snapshot computes dashboard analytics over the current log.
func (a *App) Snapshot(f analytics.Filter, now time.Time) core.AnalyticsSnapshot {
	return a.Analytics.Snapshot(a.Expenses.Version(), a.Expenses.Records(), f, now)
}

func (a *App) Export(ctx context.Context) (int, error) {
	if a.Exporter == nil {
		return 0, ErrExportDisabled
	}
	return a.Expenses.Export(ctx, a.Exporter)
}

// Close waits for background profile fetches, then releases the backend.
func (a *App) Close() error {
	a.Auth.Wait()
	a.caches.Stop()
	if a.cleanup != nil {
		return a.cleanup()
	}
	return nil
}
