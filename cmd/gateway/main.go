package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "github.com/mind-engage/mindengage-grades/internal/api/http"
	"github.com/mind-engage/mindengage-grades/internal/app"
	auth "github.com/mind-engage/mindengage-grades/internal/auth/middleware"
	"github.com/mind-engage/mindengage-grades/internal/config"
	"github.com/mind-engage/mindengage-grades/pkg/lti-ags-gradebook/httpchi"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := app.NewLogger(cfg)

	// --- DB, cache, LMS client ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a, err := app.Open(ctx, cfg, logger, cfg.GradesPushdown)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	defer a.Close()

	if cfg.AdminPassHash != "" {
		u, err := a.Store.EnsureAdmin(ctx, cfg.AdminUser, cfg.AdminPassHash)
		if err != nil {
			log.Fatalf("bootstrap admin: %v", err)
		}
		logger.Info("bootstrap admin ready", "username", u.Username, "user_id", u.ID)
	}

	rc := api.RouterConfig{
		Auth:               auth.NewAuthService(cfg.AuthHMACSecret, cfg.TokenTTL),
		Users:              a.Store,
		Grades:             a.Service,
		Roster:             a.Store,
		Identities:         a.Store,
		AllowClaimFallback: cfg.AllowClaimFallback(),
		CORSOrigins:        cfg.CORSOrigins(),
		Ready: func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return a.Ping(ctx)
		},
	}
	if a.Syncer != nil {
		rc.Gradebook = &httpchi.API{Syncer: a.Syncer, Reports: a.Service}
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(rc),
		ReadHeaderTimeout: 10 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-stop
		shutdown, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()

	logger.Info("listening", "addr", cfg.HTTPAddr, "mode", cfg.Mode, "db", cfg.DBDriver,
		"pushdown", cfg.GradesPushdown, "passback", a.Syncer != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
