package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"battery-sizer/internal/api"
	"battery-sizer/internal/api/middleware"
	"battery-sizer/internal/config"
	"battery-sizer/internal/data"
	"battery-sizer/internal/logging"
	"battery-sizer/internal/sizing"
	"battery-sizer/internal/solver"
	"battery-sizer/internal/store"
)

func main() {
	cfgPath := flag.String("config", os.Getenv("SIZER_CONFIG"), "Optional YAML config (solver, logging and api sections)")
	flag.Parse()

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger := logging.New(os.Stderr, logging.Options{
		Level:  logging.LevelFromString(cfg.Logging.Level),
		Format: cfg.Logging.Format,
	})
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	cfg := &config.Config{}
	if path != "" {
		var err error
		if cfg, err = config.LoadUnchecked(path); err != nil {
			return nil, err
		}
	}
	cfg.ApplyDefaults()
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	solverCfg := cfg.Solver.ToSolverConfig()
	lpSolver, err := solver.New(solverCfg, logger)
	if err != nil {
		return err
	}
	for _, info := range solver.Describe(solverCfg) {
		if info.Name == lpSolver.Name() && !info.Available {
			logger.Warn("configured solver is not available, sizing requests will fail",
				slog.String("solver", info.Name), slog.String("detail", info.Detail))
		}
	}

	// Run history is optional: the server keeps answering without it.
	var st *store.Store
	if cfg.API.DatabasePath != "" {
		st, err = store.Open(ctx, cfg.API.DatabasePath, logger)
		if err != nil {
			logger.Warn("run history disabled", slog.String("path", cfg.API.DatabasePath), slog.Any("error", err))
			st = nil
		} else {
			defer st.Close()
		}
	}

	cache := data.NewProfileCache(cfg.API.ProfileTTL, cfg.API.ProfileTTL/4)
	defer cache.Close()

	if cfg.API.Production {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(api.Deps{
		Engine:         sizing.New(lpSolver, logger),
		SolverConfig:   solverCfg,
		Store:          st,
		Cache:          cache,
		Metrics:        middleware.NewMetrics(),
		Logger:         logger,
		StorageDir:     cfg.API.StorageDir,
		ProfileDir:     cfg.API.ProfileDir,
		StaticDir:      cfg.API.StaticDir,
		AllowedOrigins: cfg.API.AllowedOrigins,
		DefaultTimeout: cfg.Solver.Timeout,
		CompareLimit:   cfg.API.CompareLimit,
		Verify:         cfg.Solver.Verify,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.API.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info("starting API server",
			slog.String("addr", srv.Addr),
			slog.String("solver", lpSolver.Name()),
			slog.Bool("history", st != nil))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
