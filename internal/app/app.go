// Package app wires configuration into the stores and services shared by
// the gateway and gradectl.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/mind-engage/mindengage-grades/internal/cache"
	"github.com/mind-engage/mindengage-grades/internal/config"
	"github.com/mind-engage/mindengage-grades/internal/db"
	"github.com/mind-engage/mindengage-grades/internal/dojo"
	"github.com/mind-engage/mindengage-grades/pkg/lti-ags-gradebook/agshttp"
	"github.com/mind-engage/mindengage-grades/pkg/lti-ags-gradebook/gradebook"
	"github.com/mind-engage/mindengage-grades/pkg/lti-ags-gradebook/sqlstore"
)

type App struct {
	Config  config.Config
	Logger  *slog.Logger
	DB      *sql.DB
	Store   *dojo.SQLStore
	Service *dojo.Service
	Credits *cache.CreditCounter
	Syncer  *gradebook.Syncer // nil when passback is not configured

	redis *redis.Client
}

// NewLogger builds the process logger; JSON online, text offline.
func NewLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Mode == config.ModeOnline {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// Open connects the database, optional redis and optional LMS client.
// pushdown overrides cfg.GradesPushdown.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger, pushdown bool) (*App, error) {
	driver, err := db.ParseDriver(cfg.DBDriver)
	if err != nil {
		return nil, err
	}
	dbh, err := db.Open(ctx, driver, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	if err := gradebook.Migrate(ctx, dbh, string(driver)); err != nil {
		dbh.Close()
		return nil, fmt.Errorf("gradebook migrate: %w", err)
	}
	a := &App{Config: cfg, Logger: logger, DB: dbh, Store: dojo.NewSQLStore(dbh, string(driver))}

	if cfg.RedisURL != "" {
		rc, err := cache.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn("writeup cache disabled", "error", err)
		} else {
			a.redis = rc
		}
	}
	a.Credits = cache.NewCreditCounter(a.redis, a.Store, cfg.CreditCacheTTL)

	a.Service = dojo.NewService(a.Store,
		dojo.WithPushdown(pushdown),
		dojo.WithStrictRequired(cfg.GradesStrictRequired),
		dojo.WithWriteupCounter(a.Credits),
		dojo.WithServiceLogger(logger),
	)

	if cfg.PassbackEnabled() {
		ags := agshttp.New(agshttp.Config{
			TokenURL:     cfg.LTITokenURL,
			ClientID:     cfg.LTIClientID,
			ClientSecret: cfg.LTIClientSecret,
			Scopes:       cfg.LTIScopes,
		})
		a.Syncer = gradebook.New(&sqlstore.Store{DB: dbh}, ags, nil)
		a.Syncer.Logger = logger
	}
	return a, nil
}

// Ping checks the database and, when configured, redis.
func (a *App) Ping(ctx context.Context) error {
	if err := a.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("db: %w", err)
	}
	if a.redis != nil {
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

func (a *App) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	errs = append(errs, a.DB.Close())
	return errors.Join(errs...)
}
