package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"battery-sizer/internal/api/models"
	"battery-sizer/internal/config"
	"battery-sizer/internal/data"
	"battery-sizer/internal/solver"
	"battery-sizer/internal/strategy"
)

// MetaHandler serves the listings that help clients build requests.
type MetaHandler struct {
	SolverConfig solver.Config
	ActiveSolver string
	StorageDir   string
	// FileSources reports whether csv and json sources are accepted.
	FileSources bool
	StoreReady  bool
	Logger      *slog.Logger
}

// Health handles GET /health
func (h *MetaHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, models.HealthResponse{
		Status: "ok",
		Solver: h.ActiveSolver,
		Store:  h.StoreReady,
		Time:   time.Now().UTC(),
	})
}

// Solvers handles GET /api/v1/solvers
func (h *MetaHandler) Solvers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"active":  h.ActiveSolver,
		"solvers": solver.Describe(h.SolverConfig),
	})
}

// Strategies handles GET /api/v1/strategies
func (h *MetaHandler) Strategies(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"strategies": strategy.Catalog()})
}

// ProfileSources handles GET /api/v1/profile-sources
func (h *MetaHandler) ProfileSources(c *gin.Context) {
	sources := []models.ProfileSourceInfo{
		{
			Type:        data.TypeSynthetic,
			Description: "Standard household load shape and a clear-sky PV profile from the sun position.",
			Fields:      []string{"latitude", "longitude", "year", "timezone", "annual_yield_kwh_per_kwp"},
		},
		{
			Type:        data.TypeHTTP,
			Description: "JSON document with demand_fraction and pv_fraction arrays fetched over HTTP. The key goes in the X-Profile-API-Key header.",
			Fields:      []string{"url"},
		},
	}
	if h.FileSources {
		sources = append(sources,
			models.ProfileSourceInfo{
				Type:        data.TypeCSV,
				Description: "8760-row CSV in the profile directory.",
				Fields:      []string{"path", "demand_column", "pv_column"},
			},
			models.ProfileSourceInfo{
				Type:        data.TypeJSON,
				Description: "JSON file with demand_fraction and pv_fraction arrays in the profile directory.",
				Fields:      []string{"path"},
			})
	}
	c.JSON(http.StatusOK, gin.H{"sources": sources})
}

// StoragePresets handles GET /api/v1/storage-presets
func (h *MetaHandler) StoragePresets(c *gin.Context) {
	presets, skipped, err := config.ListStoragePresets(h.StorageDir)
	if err != nil {
		writeError(c, err)
		return
	}
	for file, err := range skipped {
		if h.Logger != nil {
			h.Logger.Warn("storage preset skipped", slog.String("file", file), slog.Any("error", err))
		}
	}

	out := make([]models.StoragePresetInfo, 0, len(presets))
	for _, p := range presets {
		st := p.Storage.WithDefaults()
		rate, err := st.CostRate()
		if err != nil {
			continue
		}
		var loss float64
		if st.LossRate != nil {
			loss = *st.LossRate
		}
		out = append(out, models.StoragePresetInfo{
			ID:             p.ID,
			Name:           st.Name,
			CapexPerKWh:    st.CapexPerKWh,
			CostPerKWhYear: rate,
			LossRate:       loss,
			Ratio:          st.PowerToCapacityRatio,
			LifetimeYears:  st.LifetimeYears,
		})
	}
	c.JSON(http.StatusOK, gin.H{"presets": out, "count": len(out)})
}
