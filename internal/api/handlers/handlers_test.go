package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"battery-sizer/internal/api/models"
	"battery-sizer/internal/config"
	"battery-sizer/internal/data"
	"battery-sizer/internal/model"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		err    error
		code   string
		status int
	}{
		{fmt.Errorf("x: %w", model.ErrShapeMismatch), CodeShapeMismatch, http.StatusUnprocessableEntity},
		{fmt.Errorf("x: %w", model.ErrInvalidParams), CodeInvalidParams, http.StatusBadRequest},
		{model.ErrOptimizationTimedOut, CodeTimedOut, http.StatusGatewayTimeout},
		{context.DeadlineExceeded, CodeTimedOut, http.StatusGatewayTimeout},
		{model.ErrOptimizationFailed, CodeOptimization, http.StatusUnprocessableEntity},
		{model.ErrSolverUnavailable, CodeSolverUnavail, http.StatusServiceUnavailable},
		{&data.FetchError{StatusCode: 429, Code: "RATE_LIMIT_EXCEEDED"}, CodeProfileFetch, http.StatusBadGateway},
		{badRequest(errors.New("bad")), CodeInvalidRequest, http.StatusBadRequest},
		{errors.New("boom"), CodeInternal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		code, status := classify(tc.err)
		assert.Equal(t, tc.code, code, tc.err.Error())
		assert.Equal(t, tc.status, status, tc.err.Error())
	}
}

func TestErrorDetailCarriesFetchInfo(t *testing.T) {
	d := errorDetail(fmt.Errorf("profiles: %w", &data.FetchError{
		StatusCode: 429, Code: "RATE_LIMIT_EXCEEDED", Message: "slow down", RetryAfter: "30",
	}))
	assert.Equal(t, CodeProfileFetch, d.Code)
	assert.Equal(t, 429, d.Details["status_code"])
	assert.Equal(t, "30", d.Details["retry_after"])
}

func TestProfilePath(t *testing.T) {
	h := &SizingHandler{ProfileDir: "/srv/profiles"}
	p, err := h.profilePath("munich/2023.csv")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/srv/profiles", "munich", "2023.csv"), p)

	for _, bad := range []string{"", "/etc/passwd", "../secret.csv", "a/../../b.csv"} {
		_, err := h.profilePath(bad)
		assert.Error(t, err, bad)
	}

	_, err = (&SizingHandler{}).profilePath("x.csv")
	assert.Error(t, err)
}

func TestMergeVariation(t *testing.T) {
	loss := 0.001
	base := models.SizingRequest{
		Name:      "base",
		System:    config.SystemConfig{AnnualDemandKWh: 4000, PVCapacityKWp: 5, ElectricityPrice: 0.3, FeedInPrice: 0.08},
		Storage:   config.StorageConfig{CapexPerKWh: 500, LossRate: &loss},
		Economics: config.EconomicsConfig{PVCapexPerKWp: 1200, Currency: "€"},
	}
	out := mergeVariation(base, models.Variation{
		Name:    "bigger",
		System:  config.SystemConfig{PVCapacityKWp: 10},
		Storage: config.StorageConfig{CapexPerKWh: 400},
	})
	assert.Equal(t, "bigger", out.Name)
	assert.Equal(t, 10.0, out.System.PVCapacityKWp)
	assert.Equal(t, 4000.0, out.System.AnnualDemandKWh)
	assert.Equal(t, 400.0, out.Storage.CapexPerKWh)
	require.NotNil(t, out.Storage.LossRate)
	assert.Equal(t, loss, *out.Storage.LossRate)
	assert.Equal(t, "€", out.Economics.Currency)
	assert.Equal(t, 5.0, base.System.PVCapacityKWp)
}

func TestScenarioDefaults(t *testing.T) {
	h := &SizingHandler{DefaultTimeout: 42}
	sc, err := h.scenario(models.SizingRequest{
		System:  config.SystemConfig{AnnualDemandKWh: 1, ElectricityPrice: 0.3},
		Storage: config.StorageConfig{CapexPerKWh: 150},
	}, model.Profiles{})
	require.NoError(t, err)
	assert.Equal(t, "sizing", sc.Name)
	assert.EqualValues(t, 42, sc.Options.Timeout)
	assert.Equal(t, model.DefaultPowerToCapacityRatio, sc.Storage.PowerToCapacityRatio)
	assert.Equal(t, 150.0, sc.Economics.BatteryUnitCost)
	assert.Greater(t, sc.Storage.CostPerKWhYear, 0.0)

	_, err = h.scenario(models.SizingRequest{StorageFile: "../x"}, model.Profiles{})
	assert.Error(t, err)
}
