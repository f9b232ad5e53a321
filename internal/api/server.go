// Package api wires the HTTP handlers, middleware and routes of the sizing
// server.
package api

import (
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"battery-sizer/internal/api/handlers"
	"battery-sizer/internal/api/middleware"
	"battery-sizer/internal/data"
	"battery-sizer/internal/sizing"
	"battery-sizer/internal/solver"
	"battery-sizer/internal/store"
)

// Deps are the services the router serves. Store, Cache and Metrics may be
// nil.
type Deps struct {
	Engine       *sizing.Engine
	SolverConfig solver.Config
	Store        *store.Store
	Cache        *data.ProfileCache
	Metrics      *middleware.Metrics
	Logger       *slog.Logger

	StorageDir     string
	ProfileDir     string
	StaticDir      string
	AllowedOrigins []string
	DefaultTimeout time.Duration
	CompareLimit   int
	Verify         bool
}

// NewRouter builds the gin engine. Call gin.SetMode before it to pick the
// mode.
func NewRouter(d Deps) *gin.Engine {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := gin.New()
	r.Use(middleware.ErrorHandler(logger))
	r.Use(middleware.CORS(d.AllowedOrigins))
	r.Use(middleware.Logger(logger))
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware())
		r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	sizingHandler := &handlers.SizingHandler{
		Engine:         d.Engine,
		Store:          d.Store,
		Cache:          d.Cache,
		Metrics:        d.Metrics,
		Logger:         logger,
		StorageDir:     d.StorageDir,
		ProfileDir:     d.ProfileDir,
		DefaultTimeout: d.DefaultTimeout,
		CompareLimit:   d.CompareLimit,
		Verify:         d.Verify,
	}
	runsHandler := &handlers.RunsHandler{Store: d.Store}
	metaHandler := &handlers.MetaHandler{
		SolverConfig: d.SolverConfig,
		ActiveSolver: d.Engine.SolverName(),
		StorageDir:   d.StorageDir,
		FileSources:  d.ProfileDir != "",
		StoreReady:   d.Store != nil,
		Logger:       logger,
	}

	r.GET("/health", metaHandler.Health)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/sizing", sizingHandler.RunSizing)
		v1.POST("/sizing/compare", sizingHandler.Compare)

		v1.GET("/runs", runsHandler.List)
		v1.GET("/runs/latest", runsHandler.Latest)
		v1.GET("/runs/:id", runsHandler.Get)

		v1.GET("/solvers", metaHandler.Solvers)
		v1.GET("/strategies", metaHandler.Strategies)
		v1.GET("/profile-sources", metaHandler.ProfileSources)
		v1.GET("/storage-presets", metaHandler.StoragePresets)
	}

	serveStatic(r, d.StaticDir, logger)
	return r
}

// serveStatic serves a single-page frontend from dir when it exists. Unknown
// API paths still get a JSON 404.
func serveStatic(r *gin.Engine, dir string, logger *slog.Logger) {
	notFound := func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"code": handlers.CodeNotFound, "message": "route not found"}})
	}
	if dir == "" {
		r.NoRoute(notFound)
		return
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		logger.Info("static directory not found, skipping", slog.String("dir", dir))
		r.NoRoute(notFound)
		return
	}
	r.Static("/assets", filepath.Join(dir, "assets"))
	r.StaticFile("/favicon.ico", filepath.Join(dir, "favicon.ico"))
	index := filepath.Join(dir, "index.html")
	r.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api") {
			notFound(c)
			return
		}
		c.File(index)
	})
	logger.Info("serving static files", slog.String("dir", dir))
}
