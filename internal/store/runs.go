package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"battery-sizer/internal/sizing"
)

// Run statuses.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// timeLayout is fixed-width so created_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNotFound is returned when no run matches.
var ErrNotFound = errors.New("run not found")

// Run is one stored sizing run. Metric fields are nil when the run failed
// or the metric was undefined.
type Run struct {
	ID               string          `json:"id"`
	CreatedAt        time.Time       `json:"created_at"`
	Name             string          `json:"name"`
	Status           string          `json:"status"`
	Error            string          `json:"error,omitempty"`
	Solver           string          `json:"solver,omitempty"`
	CapacityKWh      *float64        `json:"capacity_kwh"`
	SelfConsumption  *float64        `json:"self_consumption"`
	SelfSufficiency  *float64        `json:"self_sufficiency"`
	FeedInPercentage *float64        `json:"feedin_percentage"`
	YearlySavings    *float64        `json:"yearly_savings"`
	TotalInvestment  *float64        `json:"total_investment"`
	PaybackYears     *float64        `json:"payback_years"`
	Params           json.RawMessage `json:"params,omitempty"`
	Report           json.RawMessage `json:"report,omitempty"`
}

// RunFromResult summarizes a successful run. params is stored as JSON.
func RunFromResult(name string, params any, res *sizing.Result) (Run, error) {
	p, err := json.Marshal(params)
	if err != nil {
		return Run{}, fmt.Errorf("encode params: %w", err)
	}
	report, err := json.Marshal(res)
	if err != nil {
		return Run{}, fmt.Errorf("encode report: %w", err)
	}
	fin := res.Financials
	r := Run{
		Name:             name,
		Status:           StatusOK,
		Solver:           res.Stats.Solver,
		CapacityKWh:      ptr(res.CapacityKWh()),
		SelfConsumption:  res.Metrics.SelfConsumption.Ptr(),
		SelfSufficiency:  res.Metrics.SelfSufficiency.Ptr(),
		FeedInPercentage: res.Metrics.FeedInPercentage.Ptr(),
		YearlySavings:    ptr(fin.YearlySavings),
		TotalInvestment:  ptr(fin.TotalInvestment),
		Params:           p,
		Report:           report,
	}
	if fin.Payback.Defined {
		r.PaybackYears = ptr(fin.Payback.Years)
	}
	return r, nil
}

// FailedRun records a run that produced no result.
func FailedRun(name, solver string, params any, runErr error) Run {
	r := Run{Name: name, Status: StatusFailed, Solver: solver}
	if runErr != nil {
		r.Error = runErr.Error()
	}
	if p, err := json.Marshal(params); err == nil {
		r.Params = p
	}
	return r
}

// SaveRun inserts r, assigning an ID and creation time when unset, and
// returns the stored run.
func (s *Store) SaveRun(ctx context.Context, r Run) (Run, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	r.CreatedAt = r.CreatedAt.UTC()
	if r.Status == "" {
		r.Status = StatusOK
	}

	_, err := s.write.ExecContext(ctx, `
		INSERT INTO runs (id, created_at, name, status, error, solver,
			capacity_kwh, self_consumption, self_sufficiency, feedin_percentage,
			yearly_savings, total_investment, payback_years, params_json, report_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.CreatedAt.Format(timeLayout), r.Name, r.Status,
		nullString(r.Error), nullString(r.Solver),
		r.CapacityKWh, r.SelfConsumption, r.SelfSufficiency, r.FeedInPercentage,
		r.YearlySavings, r.TotalInvestment, r.PaybackYears,
		nullJSON(r.Params), nullJSON(r.Report),
	)
	if err != nil {
		return Run{}, fmt.Errorf("saving run: %w", err)
	}
	s.logger.Debug("run saved",
		slog.String("id", r.ID),
		slog.String("name", r.Name),
		slog.String("status", r.Status))
	return r, nil
}

const runColumns = `id, created_at, name, status, error, solver,
	capacity_kwh, self_consumption, self_sufficiency, feedin_percentage,
	yearly_savings, total_investment, payback_years, params_json, report_json`

// GetRun returns the run with the given id, or ErrNotFound.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.read.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	return r, err
}

// LatestSuccessful returns the newest run with status ok, or ErrNotFound.
// Failed runs never replace it.
func (s *Store) LatestSuccessful(ctx context.Context) (Run, error) {
	row := s.read.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs
		WHERE status = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`, StatusOK)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	return r, err
}

// ListRuns returns up to limit runs, newest first, without the report
// payload.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.read.QueryContext(ctx, `SELECT `+runColumns+` FROM runs
		ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		r.Report = nil
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return out, nil
}

// DeleteBefore removes runs created before t and returns how many went.
func (s *Store) DeleteBefore(ctx context.Context, t time.Time) (int64, error) {
	res, err := s.write.ExecContext(ctx, `DELETE FROM runs WHERE created_at < ?`, t.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("purging runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		s.logger.Warn("can't get rows affected by purge", slog.Any("error", err))
		return 0, nil
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		r                            Run
		created                      string
		errText, solver              sql.NullString
		capacity, sc1, ss, fi        sql.NullFloat64
		savings, investment, payback sql.NullFloat64
		params, report               sql.NullString
	)
	err := sc.Scan(&r.ID, &created, &r.Name, &r.Status, &errText, &solver,
		&capacity, &sc1, &ss, &fi, &savings, &investment, &payback, &params, &report)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scanning run: %w", err)
	}
	r.CreatedAt, err = time.Parse(timeLayout, created)
	if err != nil {
		return Run{}, fmt.Errorf("run %s: bad created_at %q: %w", r.ID, created, err)
	}
	r.Error = errText.String
	r.Solver = solver.String
	r.CapacityKWh = nullFloat(capacity)
	r.SelfConsumption = nullFloat(sc1)
	r.SelfSufficiency = nullFloat(ss)
	r.FeedInPercentage = nullFloat(fi)
	r.YearlySavings = nullFloat(savings)
	r.TotalInvestment = nullFloat(investment)
	r.PaybackYears = nullFloat(payback)
	if params.Valid {
		r.Params = json.RawMessage(params.String)
	}
	if report.Valid {
		r.Report = json.RawMessage(report.String)
	}
	return r, nil
}

func ptr(v float64) *float64 { return &v }

func nullFloat(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	return ptr(n.Float64)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullJSON(b json.RawMessage) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}
