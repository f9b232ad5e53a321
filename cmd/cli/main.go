package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"battery-sizer/internal/analysis"
	"battery-sizer/internal/backtest"
	"battery-sizer/internal/config"
	"battery-sizer/internal/data"
	"battery-sizer/internal/logging"
	"battery-sizer/internal/lp"
	"battery-sizer/internal/model"
	"battery-sizer/internal/sizing"
	"battery-sizer/internal/solver"
	"battery-sizer/internal/store"
	"battery-sizer/internal/strategy"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	switch os.Args[1] {
	case "size":
		err = cmdSize(ctx, os.Args[2:])
	case "compare":
		err = cmdCompare(ctx, os.Args[2:])
	case "profile":
		err = cmdProfile(os.Args[2:])
	case "runs":
		err = cmdRuns(ctx, os.Args[2:])
	case "help", "-h", "--help":
		usage()
		return
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("usage:")
	fmt.Println("  cli size --config config.yaml [--out ledger.csv] [--write-lp model.lp] [--replay self_consumption] [--json] [--db sizer.db]")
	fmt.Println("  cli compare --config config.yaml [--pv 4,6,8] [--feedin 0.08,0.12] [--price 0.30,0.40] [--parallel 2]")
	fmt.Println("  cli profile [--lat 48.14 --lon 11.58] [--year 2023] [--tz Europe/Berlin] [--yield 950] --out profiles.csv")
	fmt.Println("  cli runs [--db sizer.db] [--n 20] [--backup copy.db] [--prune-days 90]")
	fmt.Println("")
	fmt.Println("notes:")
	fmt.Println("  - size solves one LP for the optimal capacity and prints the financial report")
	fmt.Println("  - compare varies PV size and prices around the config and ranks by payback")
	fmt.Println("  - profile writes a synthetic reference year in the csv source format")
}

// setup loads the config and builds the logger and engine it describes.
func setup(cfgPath, logLevel string) (*config.Config, *slog.Logger, *sizing.Engine, error) {
	if cfgPath == "" {
		return nil, nil, nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, nil, err
	}
	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	logger := logging.New(os.Stderr, logging.Options{
		Level:  logging.LevelFromString(level),
		Format: cfg.Logging.Format,
	})
	s, err := solver.New(cfg.Solver.ToSolverConfig(), logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, logger, sizing.New(s, logger), nil
}

func scenarioFrom(cfg *config.Config, name string, profiles model.Profiles) (sizing.Scenario, error) {
	params, err := cfg.ScenarioParams()
	if err != nil {
		return sizing.Scenario{}, err
	}
	return sizing.Scenario{
		Name:      name,
		System:    params.System,
		Storage:   params.Storage,
		Economics: params.Economics,
		Profiles:  profiles,
		Options: sizing.Options{
			Timeout:        cfg.Solver.Timeout,
			Horizon:        cfg.HorizonHours,
			VerifySolution: cfg.Solver.Verify,
		},
		Currency: cfg.Economics.Currency,
	}, nil
}

func loadProfiles(ctx context.Context, cfg *config.Config, logger *slog.Logger) (model.Profiles, error) {
	src, err := data.NewSource(cfg.Profiles)
	if err != nil {
		return model.Profiles{}, err
	}
	if h, ok := src.(*data.HTTPSource); ok {
		h.Logger = logger
	}
	return src.Load(ctx)
}

func cmdSize(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("size", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to YAML config")
	outPath := fs.String("out", "", "Optional: write the hourly ledger CSV here")
	lpPath := fs.String("write-lp", "", "Optional: write the LP model in CPLEX LP format and exit")
	replay := fs.String("replay", "", "Optional: replay the sized battery with a rule-based strategy")
	asJSON := fs.Bool("json", false, "Print the result as JSON")
	dbPath := fs.String("db", "", "Optional: record the run in this database")
	logLevel := fs.String("log-level", "", "Override logging.level")
	_ = fs.Parse(args)

	cfg, logger, engine, err := setup(*cfgPath, *logLevel)
	if err != nil {
		return err
	}
	profiles, err := loadProfiles(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("profiles: %w", err)
	}
	name := strings.TrimSuffix(filepath.Base(*cfgPath), filepath.Ext(*cfgPath))
	sc, err := scenarioFrom(cfg, name, profiles)
	if err != nil {
		return err
	}

	if *lpPath != "" {
		return writeModel(*lpPath, sc)
	}

	res, runErr := engine.Run(ctx, sc)
	if *dbPath != "" {
		record(ctx, *dbPath, logger, name, engine.SolverName(), cfg, res, runErr)
	}
	if runErr != nil {
		return runErr
	}

	start := time.Date(data.DefaultSyntheticYear, time.January, 1, 0, 0, 0, 0, time.UTC)
	if cfg.Profiles.Year != 0 {
		start = time.Date(cfg.Profiles.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
	}
	var cmp *backtest.Comparison
	if *replay != "" {
		if cmp, err = backtest.Replay(sc, res, strategy.Spec{Name: *replay}, start); err != nil {
			return err
		}
	}

	if *outPath != "" {
		ledger := backtest.BuildLedger(res.Flows, backtest.Pricing{
			ElectricityPrice: sc.System.ElectricityPrice,
			FeedInPrice:      sc.System.FeedInPrice,
		}, start, res.Flows.SOC[len(res.Flows.SOC)-1])
		if err := os.MkdirAll(filepath.Dir(*outPath), 0o755); err != nil {
			return err
		}
		if err := backtest.WriteLedgerCSV(*outPath, ledger); err != nil {
			return err
		}
		logger.Info("ledger written", slog.String("path", *outPath), slog.Int("rows", len(ledger)))
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			*sizing.Result
			Replay *backtest.Comparison `json:"replay,omitempty"`
		}{res, cmp})
	}
	printResult(res, cmp)
	return nil
}

func writeModel(path string, sc sizing.Scenario) error {
	var opts []sizing.BuildOption
	if sc.Options.Horizon > 0 {
		opts = append(opts, sizing.WithHorizon(sc.Options.Horizon))
	}
	m, err := sizing.BuildModel(sc.System, sc.Storage, sc.Profiles, opts...)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := lp.WriteLP(f, m.Problem); err != nil {
		return err
	}
	fmt.Printf("Wrote LP with %d variables and %d rows to %s\n", m.Problem.NumVariables(), m.Problem.NumRows(), path)
	return f.Close()
}

func record(ctx context.Context, dbPath string, logger *slog.Logger, name, solverName string, cfg *config.Config, res *sizing.Result, runErr error) {
	st, err := store.Open(ctx, dbPath, logger)
	if err != nil {
		logger.Warn("run not recorded", slog.Any("error", err))
		return
	}
	defer st.Close()

	params := struct {
		System    config.SystemConfig    `json:"system"`
		Storage   config.StorageConfig   `json:"storage"`
		Economics config.EconomicsConfig `json:"economics"`
	}{cfg.System, cfg.Storage, cfg.Economics}

	var run store.Run
	if runErr != nil {
		run = store.FailedRun(name, solverName, params, runErr)
	} else if run, err = store.RunFromResult(name, params, res); err != nil {
		logger.Warn("run not recorded", slog.Any("error", err))
		return
	}
	saved, err := st.SaveRun(ctx, run)
	if err != nil {
		logger.Warn("run not recorded", slog.Any("error", err))
		return
	}
	logger.Info("run recorded", slog.String("id", saved.ID))
}

func printResult(res *sizing.Result, cmp *backtest.Comparison) {
	fmt.Printf("Optimal storage capacity: %.2f kWh\n", res.CapacityKWh())
	fmt.Printf("Self-consumption:   %s\n", res.Metrics.SelfConsumption)
	fmt.Printf("Self-sufficiency:   %s\n", res.Metrics.SelfSufficiency)
	fmt.Printf("Feed-in percentage: %s\n", res.Metrics.FeedInPercentage)
	fmt.Println()
	for _, row := range res.Financials.Rows() {
		if row.Section {
			fmt.Printf("\n%s\n", row.Label)
			continue
		}
		fmt.Printf("  %-40s %18s\n", row.Label, row.Value)
	}
	if cmp != nil {
		fmt.Println()
		fmt.Printf("Replay %-18s operating cost %.2f vs optimized %.2f (extra %.2f)\n",
			cmp.Replay.Strategy, cmp.Replay.TotalCost, cmp.Optimized.TotalCost, cmp.ExtraCost)
		fmt.Printf("  self-sufficiency %s\n", cmp.ReplayMetrics.SelfSufficiency)
	}
	fmt.Println()
	fmt.Println(analysis.Disclaimer)
	fmt.Printf("(solver %s, %d variables, %d rows, solved in %s)\n",
		res.Stats.Solver, res.Stats.Variables, res.Stats.Rows, res.Stats.SolveTime.Round(time.Millisecond))
}

func cmdCompare(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("compare", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to YAML config")
	pvList := fs.String("pv", "", "Comma-separated PV capacities in kWp")
	feedinList := fs.String("feedin", "", "Comma-separated feed-in prices")
	priceList := fs.String("price", "", "Comma-separated electricity prices")
	parallel := fs.Int("parallel", 0, "Concurrent solves (0 = api.compare_limit)")
	logLevel := fs.String("log-level", "", "Override logging.level")
	_ = fs.Parse(args)

	cfg, logger, engine, err := setup(*cfgPath, *logLevel)
	if err != nil {
		return err
	}
	pvs, err := parseFloats(*pvList, cfg.System.PVCapacityKWp)
	if err != nil {
		return fmt.Errorf("--pv: %w", err)
	}
	feedins, err := parseFloats(*feedinList, cfg.System.FeedInPrice)
	if err != nil {
		return fmt.Errorf("--feedin: %w", err)
	}
	prices, err := parseFloats(*priceList, cfg.System.ElectricityPrice)
	if err != nil {
		return fmt.Errorf("--price: %w", err)
	}

	profiles, err := loadProfiles(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("profiles: %w", err)
	}
	var scenarios []sizing.Scenario
	for _, pv := range pvs {
		for _, fi := range feedins {
			for _, pr := range prices {
				c := *cfg
				c.System.PVCapacityKWp, c.System.FeedInPrice, c.System.ElectricityPrice = pv, fi, pr
				name := fmt.Sprintf("pv=%g feedin=%g price=%g", pv, fi, pr)
				sc, err := scenarioFrom(&c, name, profiles)
				if err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}
				scenarios = append(scenarios, sc)
			}
		}
	}

	limit := *parallel
	if limit <= 0 {
		limit = cfg.API.CompareLimit
	}
	outcomes := engine.RunAll(ctx, scenarios, limit)
	byName := make(map[string]*sizing.Result, len(outcomes))
	for _, o := range outcomes {
		byName[o.Scenario] = o.Result
	}

	fmt.Printf("%-4s %-36s %-10s %-10s %-12s %-10s\n", "rank", "scenario", "kWh", "self-suff", "savings/yr", "payback")
	for i, r := range analysis.RankByPayback(sizing.Ranked(outcomes)) {
		if r.Err != nil {
			fmt.Printf("%-4d %-36s failed: %v\n", i+1, r.Name, r.Err)
			continue
		}
		res := byName[r.Name]
		fmt.Printf("%-4d %-36s %-10.2f %-10s %-12.2f %-10s\n",
			i+1, r.Name, res.CapacityKWh(), res.Metrics.SelfSufficiency, r.Financials.YearlySavings, r.Financials.Payback)
	}
	return nil
}

func parseFloats(s string, def float64) ([]float64, error) {
	if strings.TrimSpace(s) == "" {
		return []float64{def}, nil
	}
	var out []float64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func cmdProfile(args []string) error {
	fs := flag.NewFlagSet("profile", flag.ExitOnError)
	lat := fs.Float64("lat", data.DefaultLatitude, "Latitude in degrees")
	lon := fs.Float64("lon", data.DefaultLongitude, "Longitude in degrees")
	year := fs.Int("year", data.DefaultSyntheticYear, "Reference year (365 days)")
	tz := fs.String("tz", "", "IANA timezone of the hour index (default UTC)")
	yield := fs.Float64("yield", data.DefaultAnnualYieldKWhPerKWp, "Annual PV yield in kWh per kWp")
	outPath := fs.String("out", "profiles.csv", "Output CSV path")
	_ = fs.Parse(args)

	src := &data.SyntheticSource{Options: data.SyntheticOptions{
		Latitude:             *lat,
		Longitude:            *lon,
		Year:                 *year,
		Timezone:             *tz,
		AnnualYieldKWhPerKWp: *yield,
	}}
	p, err := src.Load(context.Background())
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(*outPath), 0o755); err != nil {
		return err
	}
	f, err := os.Create(*outPath)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := data.WriteProfilesCSV(f, p); err != nil {
		return err
	}
	pv := analysis.DescribeSeries(p.PVFraction)
	fmt.Printf("Wrote %d hours to %s (PV %.0f kWh/kWp, peak at hour %d)\n", pv.Count, *outPath, pv.Sum, pv.PeakHour)
	return f.Close()
}

func cmdRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	dbPath := fs.String("db", config.DefaultDatabasePath, "Run history database")
	n := fs.Int("n", 20, "Number of runs to list")
	backup := fs.String("backup", "", "Optional: write a consistent copy of the database here")
	pruneDays := fs.Int("prune-days", 0, "Optional: delete runs older than this many days")
	_ = fs.Parse(args)

	st, err := store.Open(ctx, *dbPath, logging.Discard())
	if err != nil {
		return err
	}
	defer st.Close()

	if *backup != "" {
		if err := st.Backup(ctx, *backup); err != nil {
			return err
		}
		fmt.Printf("Backed up %s to %s\n", *dbPath, *backup)
	}
	if *pruneDays > 0 {
		removed, err := st.DeleteBefore(ctx, time.Now().AddDate(0, 0, -*pruneDays))
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %d runs older than %d days\n", removed, *pruneDays)
	}

	runs, err := st.ListRuns(ctx, *n)
	if err != nil {
		return err
	}
	fmt.Printf("%-36s %-20s %-24s %-7s %-10s %-10s\n", "id", "created", "name", "status", "kWh", "payback")
	for _, r := range runs {
		fmt.Printf("%-36s %-20s %-24s %-7s %-10s %-10s\n",
			r.ID, r.CreatedAt.Format("2006-01-02 15:04:05"), truncate(r.Name, 24), r.Status,
			optional(r.CapacityKWh, "%.2f"), optional(r.PaybackYears, "%.1f"))
	}
	return nil
}

func optional(v *float64, format string) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf(format, *v)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
