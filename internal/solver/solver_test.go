package solver

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"battery-sizer/internal/lp"
	"battery-sizer/internal/model"
)

var inf = math.Inf(1)

// min -x - y  s.t. x + y <= 4, 0 <= x <= 3, 0 <= y <= 2
func boxProblem() *lp.Problem {
	p := lp.NewProblem("box")
	x := p.AddVariable("x", 0, 3)
	y := p.AddVariable("y", 0, 2)
	p.SetCost(x, -1)
	p.SetCost(y, -1)
	p.AddConstraint("cap", []lp.Term{{Var: x, Coef: 1}, {Var: y, Coef: 1}}, lp.LE, 4)
	return p
}

func TestSimplexOptimal(t *testing.T) {
	p := boxProblem()
	sol, err := NewSimplex().Solve(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, lp.StatusOptimal, sol.Status)
	assert.InDelta(t, -4, sol.Objective, 1e-9)
	assert.Empty(t, lp.Check(p, sol.Values, 1e-9))
}

func TestSimplexShiftedLowerBound(t *testing.T) {
	p := lp.NewProblem("shift")
	x := p.AddVariable("x", 2, inf)
	y := p.AddVariable("y", 0, 0.5)
	fixed := p.AddVariable("fixed", 1, 1)
	p.SetCost(x, 1)
	p.AddConstraint("floor", []lp.Term{{Var: x, Coef: 1}, {Var: y, Coef: 1}, {Var: fixed, Coef: 1}}, lp.GE, 4)

	sol, err := NewSimplex().Solve(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, lp.StatusOptimal, sol.Status)
	assert.InDelta(t, 2.5, sol.Values[x], 1e-9)
	assert.InDelta(t, 0.5, sol.Values[y], 1e-9)
	assert.InDelta(t, 1, sol.Values[fixed], 0)
	assert.InDelta(t, 2.5, sol.Objective, 1e-9)
}

func TestSimplexShiftedEquality(t *testing.T) {
	p := lp.NewProblem("shift-eq")
	x := p.AddVariable("x", 1, inf)
	y := p.AddVariable("y", 0.5, 4)
	p.SetCost(x, 2)
	p.SetCost(y, 1)
	p.AddConstraint("sum", []lp.Term{{Var: x, Coef: 1}, {Var: y, Coef: 2}}, lp.EQ, 6)

	sol, err := NewSimplex().Solve(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, lp.StatusOptimal, sol.Status)
	assert.InDelta(t, 1, sol.Values[x], 1e-9)
	assert.InDelta(t, 2.5, sol.Values[y], 1e-9)
	assert.Empty(t, lp.Check(p, sol.Values, 1e-9))
}

// Duplicate equality rows leave the constraint matrix rank deficient.
func TestSimplexRedundantRows(t *testing.T) {
	p := lp.NewProblem("redundant")
	x := p.AddVariable("x", 0, inf)
	y := p.AddVariable("y", 0, inf)
	p.SetCost(x, 1)
	p.SetCost(y, 3)
	for _, name := range []string{"a", "b", "c"} {
		p.AddConstraint(name, []lp.Term{{Var: x, Coef: 1}, {Var: y, Coef: 1}}, lp.EQ, 2)
	}
	p.AddConstraint("zero", []lp.Term{{Var: x, Coef: 1}, {Var: y, Coef: -1}}, lp.LE, 0)

	sol, err := NewSimplex().Solve(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, lp.StatusOptimal, sol.Status)
	assert.InDelta(t, 1, sol.Values[x], 1e-9)
	assert.InDelta(t, 1, sol.Values[y], 1e-9)
	assert.InDelta(t, 4, sol.Objective, 1e-9)
}

func TestSimplexInfeasible(t *testing.T) {
	p := lp.NewProblem("infeasible")
	x := p.AddVariable("x", 0, 3)
	p.AddConstraint("floor", []lp.Term{{Var: x, Coef: 1}}, lp.GE, 5)

	sol, err := NewSimplex().Solve(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, lp.StatusInfeasible, sol.Status)
}

func TestSimplexUnbounded(t *testing.T) {
	p := lp.NewProblem("unbounded")
	x := p.AddVariable("x", 0, inf)
	y := p.AddVariable("y", 0, inf)
	p.SetCost(x, -1)
	p.AddConstraint("gap", []lp.Term{{Var: x, Coef: 1}, {Var: y, Coef: -1}}, lp.LE, 1)

	sol, err := NewSimplex().Solve(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, lp.StatusUnbounded, sol.Status)
}

func TestSimplexUnusedVariable(t *testing.T) {
	p := boxProblem()
	bonus := p.AddVariable("bonus", 0, 7)
	p.SetCost(bonus, -1)
	p.AddVariable("idle", 0, inf)

	sol, err := NewSimplex().Solve(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, lp.StatusOptimal, sol.Status)
	assert.InDelta(t, 7, sol.Values[bonus], 0)
	assert.InDelta(t, -11, sol.Objective, 1e-9)
}

func TestSimplexTooLarge(t *testing.T) {
	s := NewSimplex()
	s.MaxVariables = 2
	_, err := s.Solve(context.Background(), boxProblem())
	assert.ErrorIs(t, err, model.ErrSolverUnavailable)
}

func TestSimplexCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sol, err := NewSimplex().Solve(ctx, boxProblem())
	require.NoError(t, err)
	assert.Equal(t, lp.StatusTimeout, sol.Status)
}

func TestParseSolution(t *testing.T) {
	p := boxProblem()
	in := strings.Join([]string{
		"Optimal - objective value -4.00000000",
		"      0 x                     2                       0",
		"**    1 y                     2                       0",
		"",
	}, "\n")
	sol, err := ParseSolution(strings.NewReader(in), p)
	require.NoError(t, err)
	assert.Equal(t, lp.StatusOptimal, sol.Status)
	assert.InDelta(t, -4, sol.Objective, 1e-12)
	assert.Equal(t, []float64{2, 2}, sol.Values)
}

func TestParseSolutionStatuses(t *testing.T) {
	p := boxProblem()
	cases := map[string]lp.Status{
		"Infeasible - objective value 0.00000000":       lp.StatusInfeasible,
		"Unbounded - objective value -1e+50":            lp.StatusUnbounded,
		"Stopped on time - objective value 12.50000000": lp.StatusTimeout,
		"Stopped on difficulties":                       lp.StatusError,
	}
	for header, want := range cases {
		sol, err := ParseSolution(strings.NewReader(header+"\n"), p)
		require.NoError(t, err, header)
		assert.Equal(t, want, sol.Status, header)
		assert.Nil(t, sol.Values, header)
	}

	_, err := ParseSolution(strings.NewReader(""), p)
	assert.Error(t, err)
}

// fakeCBC writes a shell script that records its arguments and answers with
// the given solution file body.
func fakeCBC(t *testing.T, solution string) (bin, argsFile string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script solver stub needs a POSIX shell")
	}
	dir := t.TempDir()
	bin = filepath.Join(dir, "cbc")
	argsFile = filepath.Join(dir, "args.txt")
	script := fmt.Sprintf(`#!/bin/sh
echo "$@" > %q
out=""
prev=""
for a in "$@"; do
  if [ "$prev" = "solu" ]; then out="$a"; fi
  prev="$a"
done
cat > "$out" <<'EOS'
%sEOS
`, argsFile, solution)
	require.NoError(t, os.WriteFile(bin, []byte(script), 0o755))
	return bin, argsFile
}

func TestCBCRoundTrip(t *testing.T) {
	bin, argsFile := fakeCBC(t, "Optimal - objective value -4\n      0 x 2 0\n      1 y 2 0\n")
	c := &CBC{Path: bin, Threads: 2}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sol, err := c.Solve(ctx, boxProblem())
	require.NoError(t, err)
	require.Equal(t, lp.StatusOptimal, sol.Status)
	assert.Equal(t, []float64{2, 2}, sol.Values)

	args, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Contains(t, string(args), "model.lp sec ")
	assert.Contains(t, string(args), "threads 2 solve solu ")
}

func TestCBCMissingBinary(t *testing.T) {
	c := &CBC{Path: filepath.Join(t.TempDir(), "no-such-cbc")}
	_, err := c.Solve(context.Background(), boxProblem())
	assert.ErrorIs(t, err, model.ErrSolverUnavailable)
	assert.Error(t, c.Available())
}

func TestCBCNoSolutionFile(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script solver stub needs a POSIX shell")
	}
	bin := filepath.Join(t.TempDir(), "cbc")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\necho 'licence trouble'\nexit 3\n"), 0o755))

	sol, err := (&CBC{Path: bin}).Solve(context.Background(), boxProblem())
	require.NoError(t, err)
	assert.Equal(t, lp.StatusError, sol.Status)
	assert.Contains(t, sol.Message, "licence trouble")
}

type blockingSolver struct {
	release chan struct{}
}

func (b *blockingSolver) Name() string { return "blocking" }

func (b *blockingSolver) Solve(ctx context.Context, p *lp.Problem) (*lp.Solution, error) {
	<-b.release
	return &lp.Solution{Status: lp.StatusOptimal}, nil
}

func TestSerializedOneAtATime(t *testing.T) {
	inner := &blockingSolver{release: make(chan struct{})}
	s := NewSerialized(inner)

	first := make(chan *lp.Solution, 1)
	go func() {
		sol, _ := s.Solve(context.Background(), boxProblem())
		first <- sol
	}()

	// Wait until the first call holds the slot.
	require.Eventually(t, func() bool { return len(s.slot) == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	sol, err := s.Solve(ctx, boxProblem())
	require.NoError(t, err)
	assert.Equal(t, lp.StatusTimeout, sol.Status)

	close(inner.release)
	assert.Equal(t, lp.StatusOptimal, (<-first).Status)
	assert.Equal(t, "blocking", s.Name())
}

func TestNew(t *testing.T) {
	s, err := New(Config{Name: "simplex", MaxVariables: 10}, nil)
	require.NoError(t, err)
	assert.Equal(t, 10, s.(*Simplex).MaxVariables)

	s, err = New(Config{Name: "cbc", Serialize: true}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Serialized{}, s)
	assert.Equal(t, "cbc", s.Name())

	_, err = New(Config{Name: "glpk"}, nil)
	assert.ErrorIs(t, err, model.ErrSolverUnavailable)

	infos := Describe(Config{Path: filepath.Join(t.TempDir(), "missing")})
	require.Len(t, infos, 2)
	assert.False(t, infos[0].Available)
	assert.True(t, infos[1].Available)
}
