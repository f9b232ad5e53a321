package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"battery-sizer/internal/data"
	"battery-sizer/internal/model"
	"battery-sizer/internal/solver"
)

// Config is the on-disk configuration shape (YAML).
type Config struct {
	// Optional storage preset (e.g. presets/lfp.yaml). Explicit fields under
	// storage override the preset.
	StorageFile string          `yaml:"storage_file"`
	System      SystemConfig    `yaml:"system"`
	Storage     StorageConfig   `yaml:"storage"`
	Economics   EconomicsConfig `yaml:"economics"`
	Profiles    data.SourceSpec `yaml:"profiles"`
	Solver      SolverConfig    `yaml:"solver"`
	Logging     LoggingConfig   `yaml:"logging"`
	API         APIConfig       `yaml:"api"`
	// HorizonHours shortens the model to the first N hours; 0 is a full year.
	HorizonHours int `yaml:"horizon_hours"`
}

type SystemConfig struct {
	AnnualDemandKWh  float64 `yaml:"annual_demand_kwh" json:"annual_demand_kwh"`
	PVCapacityKWp    float64 `yaml:"pv_capacity_kwp" json:"pv_capacity_kwp"`
	ElectricityPrice float64 `yaml:"electricity_price" json:"electricity_price"`
	FeedInPrice      float64 `yaml:"feedin_price" json:"feedin_price"`
}

// StorageConfig holds the battery technology. LossRate and WACC are pointers
// because zero is a meaningful value for both.
type StorageConfig struct {
	Name                 string   `yaml:"name" json:"name,omitempty"`
	LossRate             *float64 `yaml:"loss_rate" json:"loss_rate,omitempty"`
	PowerToCapacityRatio float64  `yaml:"power_to_capacity_ratio" json:"power_to_capacity_ratio,omitempty"`
	ChargeEfficiency     float64  `yaml:"charge_efficiency" json:"charge_efficiency,omitempty"`
	DischargeEfficiency  float64  `yaml:"discharge_efficiency" json:"discharge_efficiency,omitempty"`
	CapexPerKWh          float64  `yaml:"capex_per_kwh" json:"capex_per_kwh"`
	LifetimeYears        int      `yaml:"lifetime_years" json:"lifetime_years,omitempty"`
	WACC                 *float64 `yaml:"wacc" json:"wacc,omitempty"`
}

type EconomicsConfig struct {
	PVCapexPerKWp float64 `yaml:"pv_capex_per_kwp" json:"pv_capex_per_kwp"`
	Currency      string  `yaml:"currency" json:"currency,omitempty"`
}

type SolverConfig struct {
	Name         string        `yaml:"name"`
	Path         string        `yaml:"path"`
	Timeout      time.Duration `yaml:"timeout"`
	Threads      int           `yaml:"threads"`
	Serialize    bool          `yaml:"serialize"`
	Verify       bool          `yaml:"verify"`
	MaxVariables int           `yaml:"max_variables"`
	TempDir      string        `yaml:"temp_dir"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type APIConfig struct {
	Port           string        `yaml:"port"`
	DatabasePath   string        `yaml:"database_path"`
	StorageDir     string        `yaml:"storage_dir"`
	CompareLimit   int           `yaml:"compare_limit"`
	ProfileTTL     time.Duration `yaml:"profile_ttl"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	Production     bool          `yaml:"production"`
	// ProfileDir is where API requests may read csv and json profiles
	// from. Empty disables file sources over the API.
	ProfileDir string `yaml:"profile_dir"`
	StaticDir  string `yaml:"static_dir"`
}

const (
	DefaultSolver       = "cbc"
	DefaultSolveTimeout = 5 * time.Minute
	DefaultPort         = "8080"
	DefaultDatabasePath = "sizer.db"
	DefaultStorageDir   = "presets"
	DefaultCompareLimit = 2
	DefaultProfileTTL   = time.Hour
)

func Load(path string) (*Config, error) {
	c, err := LoadUnchecked(path)
	if err != nil {
		return nil, err
	}
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadUnchecked loads and merges config, but does not apply defaults or
// validate. Relative profile paths are resolved against the config file.
func LoadUnchecked(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	dir := filepath.Dir(path)
	if c.StorageFile != "" {
		loaded, err := LoadStorageFile(resolve(dir, c.StorageFile))
		if err != nil {
			return nil, err
		}
		c.Storage = MergeStorage(loaded, c.Storage)
	}
	if c.Profiles.Path != "" {
		c.Profiles.Path = resolve(dir, c.Profiles.Path)
	}
	return c, nil
}

// Parse decodes a YAML document without touching the filesystem.
func Parse(raw []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// resolve prefers a path relative to dir, falling back to the path as given
// (relative to the working directory) when that does not exist.
func resolve(dir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	cand := filepath.Join(dir, p)
	if _, err := os.Stat(cand); err == nil {
		return cand
	}
	return p
}

// ApplyDefaults fills every unset field with the reference configuration.
func (c *Config) ApplyDefaults() {
	c.Storage = c.Storage.WithDefaults()
	if c.Profiles.Type == "" {
		c.Profiles.Type = data.TypeCSV
	}
	if c.Profiles.Type == data.TypeCSV {
		if c.Profiles.DemandColumn == "" {
			c.Profiles.DemandColumn = data.DefaultDemandColumn
		}
		if c.Profiles.PVColumn == "" {
			c.Profiles.PVColumn = data.DefaultPVColumn
		}
	}
	if c.Solver.Name == "" {
		c.Solver.Name = DefaultSolver
	}
	if c.Solver.Timeout == 0 {
		c.Solver.Timeout = DefaultSolveTimeout
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "INFO"
	}
	if c.API.Port == "" {
		c.API.Port = DefaultPort
	}
	if c.API.DatabasePath == "" {
		c.API.DatabasePath = DefaultDatabasePath
	}
	if c.API.StorageDir == "" {
		c.API.StorageDir = DefaultStorageDir
	}
	if c.API.CompareLimit <= 0 {
		c.API.CompareLimit = DefaultCompareLimit
	}
	if c.API.ProfileTTL <= 0 {
		c.API.ProfileTTL = DefaultProfileTTL
	}
}

// ApplyEnv overrides server settings from the environment: API_PORT,
// API_ENV=production, SIZER_DB, STORAGE_DIR, PROFILE_DIR, STATIC_DIR,
// SIZER_SOLVER and SIZER_COMPARE_LIMIT.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("API_PORT"); v != "" {
		c.API.Port = v
	}
	if getenv("API_ENV") == "production" {
		c.API.Production = true
	}
	if v := getenv("SIZER_DB"); v != "" {
		c.API.DatabasePath = v
	}
	if v := getenv("STORAGE_DIR"); v != "" {
		c.API.StorageDir = v
	}
	if v := getenv("PROFILE_DIR"); v != "" {
		c.API.ProfileDir = v
	}
	if v := getenv("STATIC_DIR"); v != "" {
		c.API.StaticDir = v
	}
	if v := getenv("SIZER_SOLVER"); v != "" {
		c.Solver.Name = v
	}
	if v := getenv("SIZER_COMPARE_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("SIZER_COMPARE_LIMIT must be a positive integer, got %q", v)
		}
		c.API.CompareLimit = n
	}
	return nil
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if _, err := c.ScenarioParams(); err != nil {
		return err
	}
	known := false
	for _, n := range solver.Names() {
		if n == c.Solver.Name {
			known = true
		}
	}
	if !known {
		return fmt.Errorf("solver.name must be one of %s, got %q", strings.Join(solver.Names(), ", "), c.Solver.Name)
	}
	if c.Solver.Timeout < 0 {
		return fmt.Errorf("solver.timeout must be >= 0, got %s", c.Solver.Timeout)
	}
	if c.HorizonHours < 0 || c.HorizonHours > model.HoursPerYear {
		return fmt.Errorf("horizon_hours must be in [0, %d], got %d", model.HoursPerYear, c.HorizonHours)
	}
	if _, err := data.NewSource(c.Profiles); err != nil {
		return fmt.Errorf("profiles: %w", err)
	}
	return nil
}

// Params is the model-level view of a configuration.
type Params struct {
	System    model.SystemParams
	Storage   model.StorageParams
	Economics model.EconomicParams
}

// ScenarioParams converts the system, storage and economics sections and
// validates them.
func (c *Config) ScenarioParams() (Params, error) {
	sys := c.System.ToModelParams()
	if err := sys.Validate(); err != nil {
		return Params{}, fmt.Errorf("system: %w", err)
	}
	st, err := c.Storage.ToModelParams()
	if err != nil {
		return Params{}, fmt.Errorf("storage: %w", err)
	}
	econ := model.EconomicParams{PVUnitCost: c.Economics.PVCapexPerKWp, BatteryUnitCost: c.Storage.CapexPerKWh}
	if err := econ.Validate(); err != nil {
		return Params{}, fmt.Errorf("economics: %w", err)
	}
	return Params{System: sys, Storage: st, Economics: econ}, nil
}

func (s SystemConfig) ToModelParams() model.SystemParams {
	return model.SystemParams{
		AnnualDemandKWh:  s.AnnualDemandKWh,
		PVCapacityKWp:    s.PVCapacityKWp,
		ElectricityPrice: s.ElectricityPrice,
		FeedInPrice:      s.FeedInPrice,
	}
}

// WithDefaults returns s with unset fields taken from the reference storage.
func (s StorageConfig) WithDefaults() StorageConfig {
	return MergeStorage(StorageConfig{
		LossRate:             ptr(model.DefaultLossRate),
		PowerToCapacityRatio: model.DefaultPowerToCapacityRatio,
		ChargeEfficiency:     1,
		DischargeEfficiency:  1,
		LifetimeYears:        model.DefaultLifetimeYears,
		WACC:                 ptr(model.DefaultWACC),
	}, s)
}

// CostRate is the annualized cost of one kWh of capacity.
func (s StorageConfig) CostRate() (float64, error) {
	return model.Annuity(s.CapexPerKWh, s.LifetimeYears, deref(s.WACC))
}

// ToModelParams converts a defaulted storage section, annualizing the capex.
func (s StorageConfig) ToModelParams() (model.StorageParams, error) {
	rate, err := s.CostRate()
	if err != nil {
		return model.StorageParams{}, err
	}
	p := model.StorageParams{
		LossRate:             deref(s.LossRate),
		PowerToCapacityRatio: s.PowerToCapacityRatio,
		ChargeEfficiency:     s.ChargeEfficiency,
		DischargeEfficiency:  s.DischargeEfficiency,
		CostPerKWhYear:       rate,
	}
	if err := p.Validate(); err != nil {
		return model.StorageParams{}, err
	}
	return p, nil
}

// ToSolverConfig maps the solver section onto solver.Config.
func (s SolverConfig) ToSolverConfig() solver.Config {
	return solver.Config{
		Name:         s.Name,
		Path:         s.Path,
		Threads:      s.Threads,
		TempDir:      s.TempDir,
		MaxVariables: s.MaxVariables,
		Serialize:    s.Serialize,
	}
}

type storageFileWrapper struct {
	Storage StorageConfig `yaml:"storage"`
}

// LoadStorageFile reads a preset file with a top-level storage key.
func LoadStorageFile(path string) (StorageConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return StorageConfig{}, err
	}
	var w storageFileWrapper
	if err := yaml.Unmarshal(raw, &w); err != nil {
		return StorageConfig{}, fmt.Errorf("%s: %w", path, err)
	}
	return w.Storage, nil
}

// Preset is one storage preset file in a directory.
type Preset struct {
	ID      string        `json:"id"`
	File    string        `json:"file"`
	Storage StorageConfig `json:"storage"`
}

// ListStoragePresets reads every *.yaml file in dir. Files that do not
// parse are returned in skipped rather than failing the listing. A missing
// directory yields no presets.
func ListStoragePresets(dir string) (presets []Preset, skipped map[string]error, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	skipped = map[string]error{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !(strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")) {
			continue
		}
		path := filepath.Join(dir, name)
		st, err := LoadStorageFile(path)
		if err != nil {
			skipped[name] = err
			continue
		}
		id := strings.TrimSuffix(strings.TrimSuffix(name, ".yaml"), ".yml")
		if st.Name == "" {
			st.Name = id
		}
		presets = append(presets, Preset{ID: id, File: path, Storage: st})
	}
	sort.Slice(presets, func(i, j int) bool { return presets[i].ID < presets[j].ID })
	return presets, skipped, nil
}

// FindStoragePreset loads the preset with the given id from dir. The id may
// not contain path separators.
func FindStoragePreset(dir, id string) (StorageConfig, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return StorageConfig{}, fmt.Errorf("invalid storage preset id %q", id)
	}
	for _, ext := range []string{".yaml", ".yml"} {
		path := filepath.Join(dir, id+ext)
		if _, err := os.Stat(path); err == nil {
			return LoadStorageFile(path)
		}
	}
	return StorageConfig{}, fmt.Errorf("storage preset %q not found", id)
}

// MergeStorage overlays set fields from override onto base.
func MergeStorage(base, override StorageConfig) StorageConfig {
	out := base
	if override.Name != "" {
		out.Name = override.Name
	}
	if override.LossRate != nil {
		out.LossRate = ptr(*override.LossRate)
	}
	if override.PowerToCapacityRatio != 0 {
		out.PowerToCapacityRatio = override.PowerToCapacityRatio
	}
	if override.ChargeEfficiency != 0 {
		out.ChargeEfficiency = override.ChargeEfficiency
	}
	if override.DischargeEfficiency != 0 {
		out.DischargeEfficiency = override.DischargeEfficiency
	}
	if override.CapexPerKWh != 0 {
		out.CapexPerKWh = override.CapexPerKWh
	}
	if override.LifetimeYears != 0 {
		out.LifetimeYears = override.LifetimeYears
	}
	if override.WACC != nil {
		out.WACC = ptr(*override.WACC)
	}
	return out
}

func ptr(v float64) *float64 { return &v }

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
