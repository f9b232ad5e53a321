// Package solver provides the LP back-ends behind lp.Solver.
package solver

import (
	"context"
	"fmt"
	"log/slog"

	"battery-sizer/internal/lp"
	"battery-sizer/internal/model"
)

// Config selects and tunes a back-end.
type Config struct {
	Name         string // "cbc" or "simplex"
	Path         string // cbc executable
	Threads      int
	TempDir      string
	MaxVariables int // simplex only
	// Serialize funnels every solve through one slot.
	Serialize bool
}

// Names lists the back-ends New understands.
func Names() []string { return []string{"cbc", "simplex"} }

// New builds the configured back-end.
func New(cfg Config, logger *slog.Logger) (lp.Solver, error) {
	var s lp.Solver
	switch cfg.Name {
	case "", "cbc":
		s = &CBC{Path: cfg.Path, Threads: cfg.Threads, TempDir: cfg.TempDir, Logger: logger}
	case "simplex":
		sx := NewSimplex()
		if cfg.MaxVariables > 0 {
			sx.MaxVariables = cfg.MaxVariables
		}
		s = sx
	default:
		return nil, fmt.Errorf("%w: unknown solver %q", model.ErrSolverUnavailable, cfg.Name)
	}
	if cfg.Serialize {
		s = NewSerialized(s)
	}
	return s, nil
}

// Info describes a back-end for listings.
type Info struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
	Detail    string `json:"detail,omitempty"`
}

// Describe reports which back-ends can run on this host.
func Describe(cfg Config) []Info {
	cbc := &CBC{Path: cfg.Path}
	ci := Info{Name: "cbc", Available: true, Detail: "external COIN-OR CBC process, full-year models"}
	if err := cbc.Available(); err != nil {
		ci.Available = false
		ci.Detail = err.Error()
	}
	limit := cfg.MaxVariables
	if limit <= 0 {
		limit = DefaultMaxVariables
	}
	return []Info{
		ci,
		{Name: "simplex", Available: true, Detail: fmt.Sprintf("in-process dense simplex, up to %d columns", limit)},
	}
}

// Serialized allows one solve at a time through the wrapped back-end.
// Callers waiting for the slot give up when their context ends.
type Serialized struct {
	inner lp.Solver
	slot  chan struct{}
}

func NewSerialized(inner lp.Solver) *Serialized {
	return &Serialized{inner: inner, slot: make(chan struct{}, 1)}
}

func (s *Serialized) Name() string { return s.inner.Name() }

func (s *Serialized) Solve(ctx context.Context, p *lp.Problem) (*lp.Solution, error) {
	select {
	case s.slot <- struct{}{}:
	case <-ctx.Done():
		return &lp.Solution{Status: lp.StatusTimeout, Message: "waiting for solver: " + ctx.Err().Error()}, nil
	}
	defer func() { <-s.slot }()
	return s.inner.Solve(ctx, p)
}
