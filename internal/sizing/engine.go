package sizing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"battery-sizer/internal/analysis"
	"battery-sizer/internal/lp"
	"battery-sizer/internal/model"
)

// verifyTol is the row/bound tolerance used when Options.VerifySolution is set.
const verifyTol = 1e-6

// Options tune one run.
type Options struct {
	// Timeout bounds the solve. Zero means only the caller's context applies.
	Timeout time.Duration
	// Horizon is the number of hourly steps; zero means a full year.
	Horizon int
	// VerifySolution re-checks every row and bound of the returned solution.
	VerifySolution bool
}

// Scenario is everything one sizing run needs.
type Scenario struct {
	Name      string
	System    model.SystemParams
	Storage   model.StorageParams
	Economics model.EconomicParams
	Profiles  model.Profiles
	Options   Options
	// Currency is the display symbol of the financial rows.
	Currency string
}

// Stats describe the LP and how long the stages took.
type Stats struct {
	Solver    string        `json:"solver"`
	Variables int           `json:"variables"`
	Rows      int           `json:"rows"`
	NonZeros  int           `json:"nonzeros"`
	Objective float64       `json:"objective"`
	BuildTime time.Duration `json:"build_time"`
	SolveTime time.Duration `json:"solve_time"`
}

// Result is the outcome of a successful run.
type Result struct {
	Scenario   string              `json:"scenario"`
	Flows      *model.Flows        `json:"-"`
	Totals     model.FlowTotals    `json:"totals"`
	Metrics    analysis.Metrics    `json:"metrics"`
	Financials analysis.Financials `json:"financials"`
	Stats      Stats               `json:"stats"`
}

// CapacityKWh is the optimal battery capacity.
func (r *Result) CapacityKWh() float64 { return r.Flows.CapacityKWh }

// Engine runs the sizing pipeline. It holds no per-run state and may be used
// from several goroutines if its solver allows that.
type Engine struct {
	solver lp.Solver
	logger *slog.Logger
}

func New(solver lp.Solver, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{solver: solver, logger: logger}
}

func (e *Engine) SolverName() string { return e.solver.Name() }

// Run validates, builds, solves and evaluates one scenario. On error no
// partial result is returned.
func (e *Engine) Run(ctx context.Context, sc Scenario) (*Result, error) {
	if e.solver == nil {
		return nil, fmt.Errorf("%w: no solver configured", model.ErrSolverUnavailable)
	}
	log := e.logger.With(slog.String("scenario", sc.Name), slog.String("solver", e.solver.Name()))

	if err := sc.Economics.Validate(); err != nil {
		return nil, err
	}
	var opts []BuildOption
	if sc.Options.Horizon > 0 {
		opts = append(opts, WithHorizon(sc.Options.Horizon))
	}

	buildStart := time.Now()
	m, err := BuildModel(sc.System, sc.Storage, sc.Profiles, opts...)
	if err != nil {
		log.Warn("model rejected", slog.Any("error", err))
		return nil, err
	}
	stats := Stats{
		Solver:    e.solver.Name(),
		Variables: m.Problem.NumVariables(),
		Rows:      m.Problem.NumRows(),
		NonZeros:  m.Problem.NumNonZeros(),
		BuildTime: time.Since(buildStart),
	}
	log.Debug("model built",
		slog.Int("variables", stats.Variables),
		slog.Int("rows", stats.Rows),
		slog.Duration("elapsed", stats.BuildTime))

	solveCtx := ctx
	if sc.Options.Timeout > 0 {
		var cancel context.CancelFunc
		solveCtx, cancel = context.WithTimeout(ctx, sc.Options.Timeout)
		defer cancel()
	}

	solveStart := time.Now()
	sol, err := e.solver.Solve(solveCtx, m.Problem)
	stats.SolveTime = time.Since(solveStart)
	if err != nil {
		if !errors.Is(err, model.ErrSolverUnavailable) {
			err = fmt.Errorf("%w: %v", model.ErrSolverUnavailable, err)
		}
		log.Error("solver failed to run", slog.Any("error", err))
		return nil, err
	}
	if sol.Status != lp.StatusOptimal && solveCtx.Err() != nil {
		sol = &lp.Solution{Status: lp.StatusTimeout, Message: solveCtx.Err().Error()}
	}

	flows, err := Extract(m, sol)
	if err != nil {
		log.Warn("optimization unsuccessful",
			slog.String("status", string(sol.Status)),
			slog.Duration("elapsed", stats.SolveTime),
			slog.Any("error", err))
		return nil, err
	}
	if sc.Options.VerifySolution {
		if v := lp.Check(m.Problem, sol.Values, verifyTol); len(v) > 0 {
			return nil, fmt.Errorf("%w: solution violates %d constraints, first: %s",
				model.ErrOptimizationFailed, len(v), v[0])
		}
	}
	stats.Objective = sol.Objective

	totals := flows.Totals()
	res := &Result{
		Scenario: sc.Name,
		Flows:    flows,
		Totals:   totals,
		Metrics:  analysis.ComputeMetrics(totals),
		Financials: analysis.Analyze(analysis.FinancialInputs{
			System:      sc.System,
			Economics:   sc.Economics,
			Totals:      totals,
			CapacityKWh: flows.CapacityKWh,
			Currency:    sc.Currency,
		}),
		Stats: stats,
	}
	log.Info("sizing complete",
		slog.Float64("capacity_kwh", flows.CapacityKWh),
		slog.Float64("objective", sol.Objective),
		slog.String("self_sufficiency", res.Metrics.SelfSufficiency.String()),
		slog.Duration("solve_time", stats.SolveTime))
	return res, nil
}

// Outcome is the result or error of one scenario of a batch.
type Outcome struct {
	Scenario string
	Result   *Result
	Err      error
}

// RunAll runs scenarios concurrently, at most limit at a time (no limit when
// limit <= 0). Outcomes keep the input order; one failing scenario does not
// stop the others.
func (e *Engine) RunAll(ctx context.Context, scenarios []Scenario, limit int) []Outcome {
	out := make([]Outcome, len(scenarios))
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i := range scenarios {
		i := i
		g.Go(func() error {
			res, err := e.Run(ctx, scenarios[i])
			out[i] = Outcome{Scenario: scenarios[i].Name, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Ranked converts outcomes for analysis.RankByPayback.
func Ranked(outcomes []Outcome) []analysis.Ranked {
	out := make([]analysis.Ranked, len(outcomes))
	for i, o := range outcomes {
		out[i] = analysis.Ranked{Name: o.Scenario, Err: o.Err}
		if o.Result != nil {
			out[i].Financials = o.Result.Financials
		}
	}
	return out
}
