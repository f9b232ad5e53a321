package solver

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"battery-sizer/internal/lp"
	"battery-sizer/internal/model"
)

// CBC runs the COIN-OR CBC executable on a CPLEX-LP file and reads back its
// solution file.
type CBC struct {
	// Path is the executable, looked up in PATH when it has no separator.
	// Defaults to "cbc".
	Path    string
	Threads int
	// TempDir is where the per-solve working directory is created.
	TempDir string
	Logger  *slog.Logger
}

func (c *CBC) Name() string { return "cbc" }

func (c *CBC) binary() string {
	if c.Path == "" {
		return "cbc"
	}
	return c.Path
}

func (c *CBC) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// Available reports whether the executable can be found.
func (c *CBC) Available() error {
	if _, err := exec.LookPath(c.binary()); err != nil {
		return fmt.Errorf("%w: cbc: %v", model.ErrSolverUnavailable, err)
	}
	return nil
}

func (c *CBC) Solve(ctx context.Context, p *lp.Problem) (*lp.Solution, error) {
	bin, err := exec.LookPath(c.binary())
	if err != nil {
		return nil, fmt.Errorf("%w: cbc: %v", model.ErrSolverUnavailable, err)
	}
	if err := ctx.Err(); err != nil {
		return &lp.Solution{Status: lp.StatusTimeout, Message: err.Error()}, nil
	}

	dir, err := os.MkdirTemp(c.TempDir, "cbc-")
	if err != nil {
		return nil, fmt.Errorf("%w: cbc: create work dir: %v", model.ErrSolverUnavailable, err)
	}
	defer os.RemoveAll(dir)

	modelPath := filepath.Join(dir, "model.lp")
	solPath := filepath.Join(dir, "model.sol")
	if err := writeModelFile(modelPath, p); err != nil {
		return nil, fmt.Errorf("%w: cbc: %v", model.ErrSolverUnavailable, err)
	}

	args := []string{modelPath}
	if deadline, ok := ctx.Deadline(); ok {
		secs := int(math.Ceil(time.Until(deadline).Seconds()))
		if secs < 1 {
			secs = 1
		}
		args = append(args, "sec", strconv.Itoa(secs))
	}
	if c.Threads > 0 {
		args = append(args, "threads", strconv.Itoa(c.Threads))
	}
	args = append(args, "solve", "solu", solPath)

	log := c.logger()
	log.Debug("cbc start",
		slog.String("bin", bin),
		slog.Int("variables", p.NumVariables()),
		slog.Int("rows", p.NumRows()),
		slog.String("args", strings.Join(args[1:], " ")))

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	if ctxErr := ctx.Err(); ctxErr != nil {
		log.Warn("cbc stopped by context", slog.Duration("elapsed", elapsed), slog.Any("error", ctxErr))
		return &lp.Solution{Status: lp.StatusTimeout, Message: ctxErr.Error()}, nil
	}

	f, openErr := os.Open(solPath)
	if openErr != nil {
		msg := lastLines(out.String(), 5)
		if runErr != nil {
			msg = runErr.Error() + ": " + msg
		}
		log.Error("cbc produced no solution", slog.Duration("elapsed", elapsed), slog.String("output", msg))
		return &lp.Solution{Status: lp.StatusError, Message: msg}, nil
	}
	defer f.Close()

	sol, err := ParseSolution(f, p)
	if err != nil {
		return &lp.Solution{Status: lp.StatusError, Message: err.Error()}, nil
	}
	log.Debug("cbc done",
		slog.String("status", string(sol.Status)),
		slog.Float64("objective", sol.Objective),
		slog.Duration("elapsed", elapsed))
	return sol, nil
}

func writeModelFile(path string, p *lp.Problem) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := lp.WriteLP(f, p); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ParseSolution reads a CBC solution file. The first line carries the
// status and objective; each further line is
//
//	[**] index name value reduced-cost
//
// Variables CBC leaves out are zero.
func ParseSolution(r io.Reader, p *lp.Problem) (*lp.Solution, error) {
	index := make(map[string]int, len(p.Vars))
	for i, v := range p.Vars {
		index[lp.LPName(v.Name)] = i
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, err
		}
		return nil, errors.New("cbc: empty solution file")
	}
	header := strings.TrimSpace(sc.Text())
	sol := &lp.Solution{
		Status:  statusFromHeader(header),
		Message: header,
		Values:  make([]float64, len(p.Vars)),
	}
	if i := strings.Index(header, "objective value"); i >= 0 {
		fields := strings.Fields(header[i+len("objective value"):])
		if len(fields) > 0 {
			if v, err := strconv.ParseFloat(fields[0], 64); err == nil {
				sol.Objective = v
			}
		}
	}

	line := 1
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) > 0 && fields[0] == "**" {
			fields = fields[1:]
		}
		if len(fields) < 3 {
			continue
		}
		i, ok := index[fields[1]]
		if !ok {
			continue
		}
		v, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return nil, fmt.Errorf("cbc: solution line %d: %w", line, err)
		}
		sol.Values[i] = v
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if sol.Status != lp.StatusOptimal {
		sol.Values = nil
	}
	return sol, nil
}

func statusFromHeader(h string) lp.Status {
	l := strings.ToLower(h)
	switch {
	case strings.HasPrefix(l, "optimal"):
		return lp.StatusOptimal
	case strings.Contains(l, "unbounded"), strings.Contains(l, "dual infeasible"):
		return lp.StatusUnbounded
	case strings.Contains(l, "infeasible"):
		return lp.StatusInfeasible
	case strings.Contains(l, "stopped on time"):
		return lp.StatusTimeout
	default:
		return lp.StatusError
	}
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
