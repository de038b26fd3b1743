package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hotspotportal/internal/api"
	"hotspotportal/internal/clock"
	"hotspotportal/internal/config"
	"hotspotportal/internal/db"
	"hotspotportal/internal/jobs"
	"hotspotportal/internal/logging"
	"hotspotportal/internal/radacct"
	"hotspotportal/internal/service"
	"hotspotportal/internal/store"
	"hotspotportal/internal/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "hotspotportal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sqdb, err := db.OpenSQLite(cfg.DBPath, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer sqdb.Close()
	if err := db.Migrate(ctx, sqdb); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	radius, closeRadius, err := openRadius(ctx, cfg, sqdb)
	if err != nil {
		return err
	}
	defer closeRadius()

	st := store.New(sqdb)
	var enq jobs.Enqueuer = jobs.LogEnqueuer{Log: log}
	if cfg.JobSink == "sql" {
		enq = jobs.SQLEnqueuer{Store: st}
	}

	svc := service.New(cfg, st, radius, enq, log)
	if err := svc.EnsureBootstrapOperator(ctx, cfg.BootstrapOperatorLogin, cfg.BootstrapOperatorPassword); err != nil {
		return fmt.Errorf("bootstrap operator: %w", err)
	}

	hsrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewRouter(cfg, svc, log),
		ReadTimeout:       time.Duration(cfg.HTTPReadTimeoutSec) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.HTTPReadHeaderTimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(cfg.HTTPWriteTimeoutSec) * time.Second,
		IdleTimeout:       time.Duration(cfg.HTTPIdleTimeoutSec) * time.Second,
		ErrorLog:          slog.NewLogLogger(log.Slog().Handler(), slog.LevelError),
	}

	errc := make(chan error, 1)
	go func() {
		v := version.Current()
		log.Info(ctx, "listening", "addr", cfg.ListenAddr, "version", v.Version, "commit", v.Commit, "job_sink", cfg.JobSink)
		if err := hsrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}
	log.Info(context.Background(), "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeoutSec)*time.Second)
	defer cancel()
	return hsrv.Shutdown(shutdownCtx)
}

// openRadius returns the accounting repository. Without a configured driver
// the radacct table of the portal database is used.
func openRadius(ctx context.Context, cfg config.Config, appDB *sql.DB) (*radacct.Repository, func(), error) {
	loc, err := cfg.RadiusLocation()
	if err != nil {
		return nil, nil, err
	}
	opts := []radacct.Option{radacct.WithLocation(loc), radacct.WithClock(clock.Real{})}
	if cfg.RadiusDBDriver == "" {
		return radacct.New(appDB, radacct.SQLite, opts...), func() {}, nil
	}
	dialect, err := radacct.DialectForDriver(cfg.RadiusDBDriver)
	if err != nil {
		return nil, nil, err
	}
	rdb, err := db.OpenRadius(ctx, cfg.RadiusDBDriver, cfg.RadiusDBDSN, db.Pool{
		MaxOpen:     cfg.DBMaxOpenConns,
		MaxIdle:     cfg.DBMaxIdleConns,
		MaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, nil, err
	}
	return radacct.New(rdb, dialect, opts...), func() { _ = rdb.Close() }, nil
}
