package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"battery-sizer/internal/analysis"
	"battery-sizer/internal/api/middleware"
	"battery-sizer/internal/api/models"
	"battery-sizer/internal/backtest"
	"battery-sizer/internal/config"
	"battery-sizer/internal/data"
	"battery-sizer/internal/model"
	"battery-sizer/internal/sizing"
	"battery-sizer/internal/store"
)

// ReferenceStart is the timestamp of hour 0 of the reference year in hourly
// output.
var ReferenceStart = time.Date(data.DefaultSyntheticYear, time.January, 1, 0, 0, 0, 0, time.UTC)

// MaxVariations bounds one compare request.
const MaxVariations = 20

// ProfileKeyHeader carries the API key of an http profile source. It is
// never stored with the run.
const ProfileKeyHeader = "X-Profile-API-Key"

// SizingHandler serves the sizing endpoints. Store, Cache and Metrics are
// optional.
type SizingHandler struct {
	Engine  *sizing.Engine
	Store   *store.Store
	Cache   *data.ProfileCache
	Metrics *middleware.Metrics
	Logger  *slog.Logger

	// StorageDir holds the storage presets.
	StorageDir string
	// ProfileDir is the only place csv and json sources may be read from;
	// empty disables file sources.
	ProfileDir     string
	DefaultTimeout time.Duration
	CompareLimit   int
	Verify         bool
}

func (h *SizingHandler) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

// RunSizing handles POST /api/v1/sizing
func (h *SizingHandler) RunSizing(c *gin.Context) {
	var req models.SizingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeCode(c, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}
	ctx := c.Request.Context()

	profiles, err := h.loadProfiles(ctx, req.Profiles, c.GetHeader(ProfileKeyHeader))
	if err != nil {
		writeError(c, err)
		return
	}
	sc, err := h.scenario(req, profiles)
	if err != nil {
		writeError(c, err)
		return
	}

	res, err := h.Engine.Run(ctx, sc)
	if err != nil {
		code, _ := classify(err)
		h.Metrics.SizingRun(code, 0)
		h.save(ctx, store.FailedRun(sc.Name, h.Engine.SolverName(), req, err))
		writeError(c, err)
		return
	}
	h.Metrics.SizingRun("ok", res.Stats.SolveTime)

	resp := buildResponse(res, sc)
	if run, err := store.RunFromResult(sc.Name, req, res); err == nil {
		resp.ID = h.save(ctx, run)
	} else {
		h.logger().Warn("run not recorded", slog.Any("error", err))
	}

	start := ReferenceStart
	if req.Options.IncludeHourly {
		pricing := backtest.Pricing{ElectricityPrice: sc.System.ElectricityPrice, FeedInPrice: sc.System.FeedInPrice}
		resp.Hourly = backtest.BuildLedger(res.Flows, pricing, start, lastSOC(res.Flows))
	}
	if req.Options.Replay != nil {
		cmp, err := backtest.Replay(sc, res, *req.Options.Replay, start)
		if err != nil {
			writeError(c, badRequest(fmt.Errorf("replay: %w", err)))
			return
		}
		resp.Replay = &models.ReplaySummary{
			Strategy:      cmp.Replay.Strategy,
			OptimizedCost: cmp.Optimized.TotalCost,
			ReplayCost:    cmp.Replay.TotalCost,
			ExtraCost:     cmp.ExtraCost,
			Metrics:       cmp.ReplayMetrics,
			FinalSOC:      cmp.Replay.FinalSOC,
		}
		if req.Options.IncludeHourly {
			resp.Replay.Hourly = cmp.Replay.Ledger
		}
	}
	c.JSON(http.StatusOK, resp)
}

// Compare handles POST /api/v1/sizing/compare
func (h *SizingHandler) Compare(c *gin.Context) {
	var req models.CompareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeCode(c, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}
	if len(req.Variations) == 0 {
		writeCode(c, http.StatusBadRequest, CodeInvalidRequest, "at least one variation is required")
		return
	}
	if len(req.Variations) > MaxVariations {
		writeCode(c, http.StatusBadRequest, CodeInvalidRequest, fmt.Sprintf("at most %d variations per request", MaxVariations))
		return
	}
	seen := map[string]bool{}
	for i, v := range req.Variations {
		if v.Name == "" {
			writeCode(c, http.StatusBadRequest, CodeInvalidRequest, fmt.Sprintf("variations[%d]: name is required", i))
			return
		}
		if seen[v.Name] {
			writeCode(c, http.StatusBadRequest, CodeInvalidRequest, fmt.Sprintf("duplicate variation name %q", v.Name))
			return
		}
		seen[v.Name] = true
	}
	ctx := c.Request.Context()

	// Profiles are shared by every variation.
	profiles, err := h.loadProfiles(ctx, req.Base.Profiles, c.GetHeader(ProfileKeyHeader))
	if err != nil {
		writeError(c, err)
		return
	}

	outcomes := make([]sizing.Outcome, len(req.Variations))
	var scenarios []sizing.Scenario
	var slots []int
	for i, v := range req.Variations {
		sc, err := h.scenario(mergeVariation(req.Base, v), profiles)
		if err != nil {
			outcomes[i] = sizing.Outcome{Scenario: v.Name, Err: err}
			continue
		}
		scenarios = append(scenarios, sc)
		slots = append(slots, i)
	}
	for j, o := range h.Engine.RunAll(ctx, scenarios, h.CompareLimit) {
		outcomes[slots[j]] = o
	}

	byName := map[string]sizing.Outcome{}
	for i, o := range outcomes {
		byName[o.Scenario] = o
		if o.Err != nil {
			code, _ := classify(o.Err)
			h.Metrics.SizingRun(code, 0)
			h.save(ctx, store.FailedRun(o.Scenario, h.Engine.SolverName(), req.Variations[i], o.Err))
			continue
		}
		h.Metrics.SizingRun("ok", o.Result.Stats.SolveTime)
		if run, err := store.RunFromResult(o.Scenario, req.Variations[i], o.Result); err == nil {
			h.save(ctx, run)
		}
	}

	ranked := analysis.RankByPayback(sizing.Ranked(outcomes))
	resp := models.CompareResponse{Results: make([]models.CompareResult, 0, len(ranked))}
	for i, r := range ranked {
		cr := models.CompareResult{Rank: i + 1, Name: r.Name, Status: store.StatusOK}
		if r.Err != nil {
			d := errorDetail(r.Err)
			cr.Status = store.StatusFailed
			cr.Error = &d
		} else if o := byName[r.Name]; o.Result != nil {
			capKWh := o.Result.CapacityKWh()
			cr.CapacityKWh = &capKWh
			cr.Metrics = &o.Result.Metrics
			cr.Financials = &o.Result.Financials
		}
		resp.Results = append(resp.Results, cr)
	}
	c.JSON(http.StatusOK, resp)
}

// save records a run when a store is configured and returns its id.
func (h *SizingHandler) save(ctx context.Context, run store.Run) string {
	if h.Store == nil {
		return ""
	}
	saved, err := h.Store.SaveRun(ctx, run)
	if err != nil {
		h.logger().Warn("run not recorded", slog.String("name", run.Name), slog.Any("error", err))
		return ""
	}
	return saved.ID
}

func (h *SizingHandler) loadProfiles(ctx context.Context, in models.ProfilesInput, apiKey string) (model.Profiles, error) {
	if in.Inline() {
		if in.Source != nil {
			return model.Profiles{}, badRequest(errors.New("profiles: give either a source or inline arrays, not both"))
		}
		return model.Profiles{DemandFraction: in.DemandFraction, PVFraction: in.PVFraction}, nil
	}
	if in.Source == nil {
		return model.Profiles{}, badRequest(errors.New("profiles are required"))
	}
	spec := *in.Source
	spec.APIKey = apiKey
	switch strings.ToLower(spec.Type) {
	case "", data.TypeCSV, data.TypeJSON:
		p, err := h.profilePath(spec.Path)
		if err != nil {
			return model.Profiles{}, badRequest(err)
		}
		spec.Path = p
	}
	src, err := data.NewSource(spec)
	if err != nil {
		return model.Profiles{}, badRequest(err)
	}
	if h.Cache != nil {
		_, hit := h.Cache.Get(data.CacheKey(spec))
		h.Metrics.CacheLookup(hit)
	}
	p, err := h.Cache.Load(ctx, spec, src)
	if err != nil {
		var fe *data.FetchError
		if errors.As(err, &fe) || errors.Is(err, model.ErrShapeMismatch) {
			return model.Profiles{}, err
		}
		return model.Profiles{}, badRequest(fmt.Errorf("profiles: %w", err))
	}
	return p, nil
}

// profilePath confines file sources to ProfileDir.
func (h *SizingHandler) profilePath(p string) (string, error) {
	if h.ProfileDir == "" {
		return "", errors.New("file profile sources are disabled on this server")
	}
	if p == "" || filepath.IsAbs(p) {
		return "", fmt.Errorf("profile path must be relative to the profile directory, got %q", p)
	}
	clean := filepath.Clean(p)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("profile path %q leaves the profile directory", p)
	}
	return filepath.Join(h.ProfileDir, clean), nil
}

// scenario resolves presets and defaults and converts the request to model
// parameters. Range checks are left to the engine so they report the
// typed errors.
func (h *SizingHandler) scenario(req models.SizingRequest, profiles model.Profiles) (sizing.Scenario, error) {
	st := req.Storage
	if req.StorageFile != "" {
		preset, err := config.FindStoragePreset(h.StorageDir, req.StorageFile)
		if err != nil {
			return sizing.Scenario{}, badRequest(err)
		}
		st = config.MergeStorage(preset, req.Storage)
	}
	st = st.WithDefaults()
	storage, err := st.ToModelParams()
	if err != nil {
		return sizing.Scenario{}, err
	}

	name := req.Name
	if name == "" {
		name = "sizing"
	}
	timeout := h.DefaultTimeout
	if req.Options.TimeoutSeconds > 0 {
		timeout = time.Duration(req.Options.TimeoutSeconds * float64(time.Second))
	}
	return sizing.Scenario{
		Name:    name,
		System:  req.System.ToModelParams(),
		Storage: storage,
		Economics: model.EconomicParams{
			PVUnitCost:      req.Economics.PVCapexPerKWp,
			BatteryUnitCost: st.CapexPerKWh,
		},
		Profiles: profiles,
		Options: sizing.Options{
			Timeout:        timeout,
			Horizon:        req.Options.HorizonHours,
			VerifySolution: h.Verify || req.Options.Verify,
		},
		Currency: req.Economics.Currency,
	}, nil
}

// mergeVariation overlays the non-zero fields of v onto base.
func mergeVariation(base models.SizingRequest, v models.Variation) models.SizingRequest {
	out := base
	out.Name = v.Name
	if v.System.AnnualDemandKWh != 0 {
		out.System.AnnualDemandKWh = v.System.AnnualDemandKWh
	}
	if v.System.PVCapacityKWp != 0 {
		out.System.PVCapacityKWp = v.System.PVCapacityKWp
	}
	if v.System.ElectricityPrice != 0 {
		out.System.ElectricityPrice = v.System.ElectricityPrice
	}
	if v.System.FeedInPrice != 0 {
		out.System.FeedInPrice = v.System.FeedInPrice
	}
	out.Storage = config.MergeStorage(base.Storage, v.Storage)
	if v.Economics.PVCapexPerKWp != 0 {
		out.Economics.PVCapexPerKWp = v.Economics.PVCapexPerKWp
	}
	if v.Economics.Currency != "" {
		out.Economics.Currency = v.Economics.Currency
	}
	return out
}

func buildResponse(res *sizing.Result, sc sizing.Scenario) models.SizingResponse {
	f := res.Flows
	return models.SizingResponse{
		Name:        res.Scenario,
		Status:      store.StatusOK,
		CapacityKWh: f.CapacityKWh,
		PowerKW:     f.CapacityKWh * sc.Storage.PowerToCapacityRatio,
		Metrics:     res.Metrics,
		Financials:  res.Financials,
		Report:      res.Financials.Rows(),
		Totals:      res.Totals,
		Stats:       res.Stats,
		Profiles: models.ProfileSummary{
			Demand:     analysis.DescribeSeries(f.Demand),
			PV:         analysis.DescribeSeries(f.PVGen),
			GridImport: analysis.DescribeSeries(f.GridImport),
		},
		Disclaimer: analysis.Disclaimer,
	}
}

func lastSOC(f *model.Flows) float64 {
	if len(f.SOC) == 0 {
		return 0
	}
	return f.SOC[len(f.SOC)-1]
}
