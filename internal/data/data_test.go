package data

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"battery-sizer/internal/model"
)

func TestReadProfilesCSV(t *testing.T) {
	in := "idx,h0,other,AC_Power\n0,0.1,x,0\n1, 0.2 ,y,0.5\n\n2,0.3,z,0.25\n"
	p, err := ReadProfilesCSV(strings.NewReader(in), "", "")
	require.NoError(t, err)
	assert.Equal(t, model.TimeSeries{0.1, 0.2, 0.3}, p.DemandFraction)
	assert.Equal(t, model.TimeSeries{0, 0.5, 0.25}, p.PVFraction)
}

func TestReadProfilesCSVErrors(t *testing.T) {
	_, err := ReadProfilesCSV(strings.NewReader(""), "", "")
	assert.Error(t, err)

	_, err = ReadProfilesCSV(strings.NewReader("h0,pv\n1,2\n"), "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"AC_Power"`)

	_, err = ReadProfilesCSV(strings.NewReader("h0,AC_Power\n1,2\n1,abc\n"), "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 3")

	_, err = ReadProfilesCSV(strings.NewReader("h0,AC_Power\n1\n"), "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestCSVRoundTripThroughSource(t *testing.T) {
	p := model.Profiles{
		DemandFraction: model.TimeSeries{0.25, 0.25, 0.5},
		PVFraction:     model.TimeSeries{0, 1.5, 0.125},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteProfilesCSV(&buf, p))

	path := filepath.Join(t.TempDir(), "profiles.csv")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	src, err := NewSource(SourceSpec{Type: "csv", Path: path})
	require.NoError(t, err)
	got, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestWriteProfilesCSVShapeMismatch(t *testing.T) {
	err := WriteProfilesCSV(&bytes.Buffer{}, model.Profiles{DemandFraction: model.TimeSeries{1}})
	assert.ErrorIs(t, err, model.ErrShapeMismatch)
}

func TestJSONSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"demand_fraction":[1,2],"pv_fraction":[0,3]}`), 0o644))
	src, err := NewSource(SourceSpec{Type: "json", Path: path})
	require.NoError(t, err)
	p, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.TimeSeries{1, 2}, p.DemandFraction)
	assert.Equal(t, model.TimeSeries{0, 3}, p.PVFraction)
}

func TestNewSourceErrors(t *testing.T) {
	for _, spec := range []SourceSpec{
		{Type: "csv"},
		{Type: "json"},
		{Type: "http"},
		{Type: "parquet", Path: "x"},
	} {
		_, err := NewSource(spec)
		assert.Error(t, err, spec.Type)
	}
}

func TestSyntheticPV(t *testing.T) {
	pv, err := SyntheticPV(SyntheticOptions{Latitude: 48.14, Longitude: 11.58, Year: 2023})
	require.NoError(t, err)
	require.Len(t, pv, model.HoursPerYear)
	assert.InDelta(t, DefaultAnnualYieldKWhPerKWp, pv.Sum(), 1e-6)

	// Midnight UTC is night in central Europe; late June noon is not.
	assert.Equal(t, 0.0, pv[0])
	june21 := (31+28+31+30+31+20)*24 + 11
	assert.Greater(t, pv[june21], pv[june21-5])
	for _, v := range pv {
		assert.GreaterOrEqual(t, v, 0.0)
	}
}

func TestSyntheticPVRejectsLeapYear(t *testing.T) {
	_, err := SyntheticPV(SyntheticOptions{Year: 2024})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "8784")
}

func TestSyntheticPVBadTimezone(t *testing.T) {
	_, err := SyntheticPV(SyntheticOptions{Timezone: "Nowhere/Special"})
	assert.Error(t, err)
}

func TestStandardLoadProfile(t *testing.T) {
	d, err := StandardLoadProfile(SyntheticOptions{Year: 2023})
	require.NoError(t, err)
	require.Len(t, d, model.HoursPerYear)
	assert.InDelta(t, 1, d.Sum(), 1e-9)

	// Jan 2nd 2023 is a Monday: evening peak above the night trough.
	assert.Greater(t, d[24+19], d[24+3])
	// Winter days weigh more than summer days at the same hour.
	assert.Greater(t, d[24+19], d[(31+28+31+30+31+26)*24+19])
}

func TestSyntheticSourceMatchesReferenceShape(t *testing.T) {
	src, err := NewSource(SourceSpec{Type: "synthetic"})
	require.NoError(t, err)
	p, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.NoError(t, p.Validate(model.HoursPerYear))
}

func TestHTTPSource(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		switch r.URL.Path {
		case "/profiles":
			_ = json.NewEncoder(w).Encode(model.Profiles{
				DemandFraction: model.TimeSeries{0.5, 0.5},
				PVFraction:     model.TimeSeries{0, 1},
			})
		case "/limited":
			w.Header().Set("Retry-After", "30")
			w.WriteHeader(http.StatusTooManyRequests)
		case "/denied":
			w.WriteHeader(http.StatusForbidden)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	p, err := NewHTTPSource(srv.URL+"/profiles", "secret-key", nil).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "secret-key", gotKey)
	assert.Equal(t, model.TimeSeries{0, 1}, p.PVFraction)

	_, err = NewHTTPSource(srv.URL+"/limited", "", nil).Load(context.Background())
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", fe.Code)
	assert.Equal(t, "30", fe.RetryAfter)

	_, err = NewHTTPSource(srv.URL+"/denied", "", nil).Load(context.Background())
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, http.StatusForbidden, fe.StatusCode)

	_, err = NewHTTPSource(srv.URL+"/missing", "", nil).Load(context.Background())
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "NOT_FOUND", fe.Code)

	_, err = NewHTTPSource("not a url", "", nil).Load(context.Background())
	assert.Error(t, err)
}

type countingSource struct {
	calls atomic.Int32
	p     model.Profiles
}

func (s *countingSource) Load(ctx context.Context) (model.Profiles, error) {
	s.calls.Add(1)
	return s.p, nil
}

func TestProfileCache(t *testing.T) {
	c := NewProfileCache(time.Minute, time.Hour)
	defer c.Close()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	spec := SourceSpec{Type: "csv", Path: "a.csv"}
	src := &countingSource{p: model.Profiles{DemandFraction: model.TimeSeries{1}, PVFraction: model.TimeSeries{0}}}

	for i := 0; i < 3; i++ {
		p, err := c.Load(context.Background(), spec, src)
		require.NoError(t, err)
		assert.Equal(t, src.p, p)
	}
	assert.Equal(t, int32(1), src.calls.Load())
	assert.Equal(t, 1, c.Len())

	now = now.Add(2 * time.Minute)
	_, ok := c.Get(CacheKey(spec))
	assert.False(t, ok)
	c.sweep()
	assert.Equal(t, 0, c.Len())

	_, err := c.Load(context.Background(), spec, src)
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.calls.Load())

	c.Clear()
	assert.Equal(t, 0, c.Len())
	c.Close()
}

func TestCacheKeyIgnoresAPIKey(t *testing.T) {
	a := SourceSpec{Type: "http", URL: "https://x/y", APIKey: "one"}
	b := a
	b.APIKey = "two"
	assert.Equal(t, CacheKey(a), CacheKey(b))
	b.URL = "https://x/z"
	assert.NotEqual(t, CacheKey(a), CacheKey(b))
}

func TestNilCacheLoads(t *testing.T) {
	var c *ProfileCache
	src := &countingSource{}
	_, err := c.Load(context.Background(), SourceSpec{}, src)
	require.NoError(t, err)
	assert.Equal(t, int32(1), src.calls.Load())
	c.Close()
}
