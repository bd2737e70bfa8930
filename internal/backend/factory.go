package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"budgetwise/internal/amqp"
	applog "budgetwise/internal/log"
	"budgetwise/internal/sheets"
	"budgetwise/internal/store"
)

// How long startup waits for the broker before running without events.
const amqpConnectTimeout = 3 * time.Second

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger         *applog.Logger
	connectTimeout time.Duration
}

// NewFactory creates a new backend factory
func NewFactory(logger *applog.Logger) *DefaultFactory {
	if logger == nil {
		logger = applog.Discard()
	}
	return &DefaultFactory{
		logger:         logger.WithComponent(applog.ComponentStore),
		connectTimeout: amqpConnectTimeout,
	}
}

// Create opens the store and checks its schema, then sets up the optional
// integrations. A broker that cannot be reached is logged and skipped; a
// misconfigured exporter is an error.
func (f *DefaultFactory) Create(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	st, err := f.createStore(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureSchema(ctx, st); err != nil {
		st.Close()
		return nil, err
	}

	res := &Result{Store: st}
	closers := []func() error{st.Close}

	if config.AMQPURL != "" {
		client := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPRoutingKey, f.logger)
		connectCtx, cancel := context.WithTimeout(ctx, f.connectTimeout)
		err := client.Connect(connectCtx)
		cancel()
		if err != nil {
			f.logger.WarnContext(ctx, "AMQP unavailable, continuing without expense events",
				applog.FieldError, err)
		} else {
			res.Publisher = client
			closers = append(closers, client.Close)
			f.logger.InfoContext(ctx, "Initialized AMQP publisher",
				"exchange", config.AMQPExchange,
				"routing_key", config.AMQPRoutingKey)
		}
	}

	if config.GoogleSpreadsheetID != "" {
		exp, err := sheets.New(ctx, sheets.Config{
			SpreadsheetID:   config.GoogleSpreadsheetID,
			SheetName:       config.GoogleSheetName,
			CredentialsJSON: config.GoogleServiceAccountJSON,
			CredentialsFile: config.GoogleServiceAccountFile,
		}, f.logger)
		if err != nil {
			closeAll(closers)
			return nil, fmt.Errorf("failed to initialize Google Sheets exporter: %w", err)
		}
		res.Exporter = exp
	}

	res.Cleanup = func() error { return closeAll(closers) }

	f.logger.InfoContext(ctx, "Initialized backend",
		applog.FieldBackend, config.Store.String(),
		"amqp_enabled", res.Publisher != nil,
		"sheets_enabled", res.Exporter != nil)
	return res, nil
}

func (f *DefaultFactory) createStore(ctx context.Context, config Config) (store.Store, error) {
	switch config.Store {
	case MemoryStore:
		return store.NewMemory(), nil
	case SQLiteStore:
		st, err := store.NewSQLite(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
		}
		return st, nil
	case RedisStore:
		st, err := store.NewRedis(ctx, config.RedisURL, config.RedisPrefix)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Redis store: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", config.Store)
	}
}

// closeAll closes in reverse order of creation.
func closeAll(closers []func() error) error {
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
