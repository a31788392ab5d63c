package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/recon-cli/internal/model"
	"github.com/sells-group/recon-cli/internal/normalize"
)

// Config holds the full application configuration.
type Config struct {
	Engine    EngineConfig    `yaml:"engine" mapstructure:"engine"`
	Reconcile ReconcileConfig `yaml:"reconcile" mapstructure:"reconcile"`
	Reprice   RepriceConfig   `yaml:"reprice" mapstructure:"reprice"`
	Columns   ColumnsConfig   `yaml:"columns" mapstructure:"columns"`
	Inputs    InputsConfig    `yaml:"inputs" mapstructure:"inputs"`
	OCR       OCRConfig       `yaml:"ocr" mapstructure:"ocr"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// EngineConfig holds the constants the engine used to read from ambient
// state.
type EngineConfig struct {
	EURUSDRate              float64  `yaml:"eur_usd_rate" mapstructure:"eur_usd_rate"`
	FuzzyThreshold          float64  `yaml:"fuzzy_threshold" mapstructure:"fuzzy_threshold"`
	ActiveStages            []string `yaml:"active_stages" mapstructure:"active_stages"`
	ExtractionErrorFraction float64  `yaml:"extraction_error_fraction" mapstructure:"extraction_error_fraction"`
	AllowConflicts          bool     `yaml:"allow_conflicts" mapstructure:"allow_conflicts"`
	WriteBackWeighted       bool     `yaml:"write_back_weighted" mapstructure:"write_back_weighted"`
}

// ReconcileConfig configures the account reconciliation run.
type ReconcileConfig struct {
	PeriodStart        string `yaml:"period_start" mapstructure:"period_start"`
	PeriodEnd          string `yaml:"period_end" mapstructure:"period_end"`
	RunRateCurrency    string `yaml:"runrate_currency" mapstructure:"runrate_currency"`
	RunRateSheet       string `yaml:"runrate_sheet" mapstructure:"runrate_sheet"`
	RunRateMonthColumn string `yaml:"runrate_month_column" mapstructure:"runrate_month_column"`
	OpportunitySheet   string `yaml:"opportunity_sheet" mapstructure:"opportunity_sheet"`
}

// WindowConfig is one named target close-date window.
type WindowConfig struct {
	Name  string `yaml:"name" mapstructure:"name"`
	Start string `yaml:"start" mapstructure:"start"`
	End   string `yaml:"end" mapstructure:"end"`
}

// RepriceConfig configures the probability reprice run.
type RepriceConfig struct {
	Windows []WindowConfig `yaml:"windows" mapstructure:"windows"`
}

// ColumnsConfig declares the input column headers. Columns are declared,
// never guessed.
type ColumnsConfig struct {
	Opportunities OpportunityColumns `yaml:"opportunities" mapstructure:"opportunities"`
	RunRate       RunRateColumns     `yaml:"runrate" mapstructure:"runrate"`
}

// OpportunityColumns maps opportunity fields to header names. An empty
// name means the column is not exported.
type OpportunityColumns struct {
	ID                    string `yaml:"id" mapstructure:"id"`
	Account               string `yaml:"account" mapstructure:"account"`
	Name                  string `yaml:"name" mapstructure:"name"`
	AccountClass          string `yaml:"account_class" mapstructure:"account_class"`
	Stage                 string `yaml:"stage" mapstructure:"stage"`
	Revenue               string `yaml:"revenue" mapstructure:"revenue"`
	ACV                   string `yaml:"acv" mapstructure:"acv"`
	TermMonths            string `yaml:"term_months" mapstructure:"term_months"`
	WeightedACV           string `yaml:"weighted_acv" mapstructure:"weighted_acv"`
	CustomProbability     string `yaml:"custom_probability" mapstructure:"custom_probability"`
	CalculatedProbability string `yaml:"calculated_probability" mapstructure:"calculated_probability"`
	RevenueType           string `yaml:"revenue_type" mapstructure:"revenue_type"`
	CloseDate             string `yaml:"close_date" mapstructure:"close_date"`
}

// RunRateColumns maps the run-rate workbook. With Months empty, every
// column after Account is a month column.
type RunRateColumns struct {
	Account string   `yaml:"account" mapstructure:"account"`
	Months  []string `yaml:"months" mapstructure:"months"`
}

// InputsConfig points at the declarative YAML inputs.
type InputsConfig struct {
	Aliases  string `yaml:"aliases" mapstructure:"aliases"`
	Matrices string `yaml:"matrices" mapstructure:"matrices"`
}

// OCRConfig configures contract text extraction.
type OCRConfig struct {
	Provider      string `yaml:"provider" mapstructure:"provider"`
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	Concurrency   int    `yaml:"concurrency" mapstructure:"concurrency"`
}

// StoreConfig configures the run ledger. An empty DatabaseURL disables it.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment. An empty path
// searches the working directory for config.yaml, which is optional.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("RECON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("engine.eur_usd_rate", 1.18)
	v.SetDefault("engine.fuzzy_threshold", 0.80)
	v.SetDefault("engine.active_stages", []string{"Qualifying", "Discovery", "SQO", "Pilot", "Proposal"})
	v.SetDefault("engine.extraction_error_fraction", 0.20)
	v.SetDefault("engine.allow_conflicts", false)
	v.SetDefault("engine.write_back_weighted", false)
	v.SetDefault("reconcile.runrate_currency", "USD")
	v.SetDefault("columns.opportunities.id", "Opportunity ID")
	v.SetDefault("columns.opportunities.account", "Account Name")
	v.SetDefault("columns.opportunities.name", "Opportunity Name")
	v.SetDefault("columns.opportunities.account_class", "Account Classification")
	v.SetDefault("columns.opportunities.stage", "Stage")
	v.SetDefault("columns.opportunities.revenue", "Revenue")
	v.SetDefault("columns.opportunities.acv", "ACV")
	v.SetDefault("columns.opportunities.term_months", "Term (Months)")
	v.SetDefault("columns.opportunities.weighted_acv", "Weighted ACV")
	v.SetDefault("columns.opportunities.custom_probability", "Custom Probability")
	v.SetDefault("columns.opportunities.calculated_probability", "Calculated Probability")
	v.SetDefault("columns.opportunities.revenue_type", "Revenue Type")
	v.SetDefault("columns.opportunities.close_date", "Close Date")
	v.SetDefault("columns.runrate.account", "Account")
	v.SetDefault("ocr.provider", "local")
	v.SetDefault("ocr.pdftotext_path", "pdftotext")
	v.SetDefault("ocr.concurrency", 4)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional when searching)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks value ranges and parses every stage and date once so
// later accessors cannot fail. Violations are returned together as a
// *model.ValidationError.
func (c *Config) Validate() error {
	var issues []model.RowIssue
	add := func(key, format string, args ...any) {
		issues = append(issues, model.RowIssue{Source: "config", Column: key, Reason: fmt.Sprintf(format, args...)})
	}

	if c.Engine.EURUSDRate <= 0 {
		add("engine.eur_usd_rate", "must be > 0, got %v", c.Engine.EURUSDRate)
	}
	if c.Engine.FuzzyThreshold <= 0 || c.Engine.FuzzyThreshold > 1 {
		add("engine.fuzzy_threshold", "must be in (0,1], got %v", c.Engine.FuzzyThreshold)
	}
	if c.Engine.ExtractionErrorFraction < 0 || c.Engine.ExtractionErrorFraction > 1 {
		add("engine.extraction_error_fraction", "must be in [0,1], got %v", c.Engine.ExtractionErrorFraction)
	}
	for _, s := range c.Engine.ActiveStages {
		if _, ok := normalize.Stage(s); !ok {
			add("engine.active_stages", "unknown stage %q", s)
		}
	}

	switch strings.ToUpper(c.Reconcile.RunRateCurrency) {
	case "", string(model.USD), string(model.EUR):
	default:
		add("reconcile.runrate_currency", "must be USD or EUR, got %q", c.Reconcile.RunRateCurrency)
	}
	if _, _, err := c.Reconcile.Period(); err != nil {
		add("reconcile.period", "%s", err.Error())
	}
	if _, err := c.Reprice.ParsedWindows(); err != nil {
		add("reprice.windows", "%s", err.Error())
	}

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		add("store.driver", "must be sqlite or postgres, got %q", c.Store.Driver)
	}
	if c.OCR.Concurrency < 0 {
		add("ocr.concurrency", "must be >= 0, got %d", c.OCR.Concurrency)
	}

	if len(issues) > 0 {
		return &model.ValidationError{Issues: issues}
	}
	return nil
}

// Stages returns the configured active-stage set.
func (e EngineConfig) Stages() model.StageSet {
	var out model.StageSet
	for _, s := range e.ActiveStages {
		if st, ok := normalize.Stage(s); ok && !out.Contains(st) {
			out = append(out, st)
		}
	}
	return out
}

// Currency returns the run-rate currency, defaulting to USD.
func (r ReconcileConfig) Currency() model.Currency {
	if strings.EqualFold(r.RunRateCurrency, string(model.EUR)) {
		return model.EUR
	}
	return model.USD
}

// Period parses the reconcile period bounds. Unset bounds are zero.
func (r ReconcileConfig) Period() (time.Time, time.Time, error) {
	start, err := optionalDate(r.PeriodStart)
	if err != nil {
		return time.Time{}, time.Time{}, eris.Wrap(err, "period_start")
	}
	end, err := optionalDate(r.PeriodEnd)
	if err != nil {
		return time.Time{}, time.Time{}, eris.Wrap(err, "period_end")
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return time.Time{}, time.Time{}, eris.Errorf("period end %s before start %s",
			end.Format(time.DateOnly), start.Format(time.DateOnly))
	}
	return start, end, nil
}

// ParsedWindows parses every reprice window. A window without a name is
// named after its bounds.
func (r RepriceConfig) ParsedWindows() ([]model.Window, error) {
	out := make([]model.Window, 0, len(r.Windows))
	for i, w := range r.Windows {
		win, err := ParseWindow(w.Name, w.Start, w.End)
		if err != nil {
			return nil, eris.Wrapf(err, "window %d", i+1)
		}
		out = append(out, win)
	}
	return out, nil
}

// ParseWindow builds a window from date strings; both bounds are required.
func ParseWindow(name, start, end string) (model.Window, error) {
	s := normalize.ParseDate(start)
	if s == nil {
		return model.Window{}, eris.Errorf("bad start date %q", start)
	}
	e := normalize.ParseDate(end)
	if e == nil {
		return model.Window{}, eris.Errorf("bad end date %q", end)
	}
	if e.Before(*s) {
		return model.Window{}, eris.Errorf("end %s before start %s", end, start)
	}
	if name == "" {
		name = s.Format(time.DateOnly) + "_" + e.Format(time.DateOnly)
	}
	return model.Window{Name: name, Start: *s, End: *e}, nil
}

func optionalDate(s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, nil
	}
	d := normalize.ParseDate(s)
	if d == nil {
		return time.Time{}, eris.Errorf("bad date %q", s)
	}
	return *d, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
