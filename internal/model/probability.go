package model

import "time"

// Reprice reasons.
const (
	ReasonRepriced     = "Repriced"
	ReasonOverride     = "Override"
	ReasonInactive     = "Non-active/out-of-window"
	ReasonZeroProb     = "zero-prob"
	ReasonZeroWeighted = "zero-weighted"
	ReasonNoMatrix     = "no-matrix-entry"
)

// Window is a named, inclusive target close-date window.
type Window struct {
	Name  string    `json:"name"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ProbabilitySource records which input supplied probability_used.
type ProbabilitySource string

const (
	ProbCustom     ProbabilitySource = "custom"
	ProbCalculated ProbabilitySource = "calculated"
	ProbMatrix     ProbabilitySource = "matrix"
	ProbNone       ProbabilitySource = "none"
)

// DealResult is the per-opportunity reprice detail.
type DealResult struct {
	Key             string            `json:"key"`
	Account         string            `json:"account"`
	Name            string            `json:"name"`
	Stage           Stage             `json:"stage"`
	AccountClass    AccountClass      `json:"account_class"`
	RevenueClass    RevenueClass      `json:"revenue_class"`
	Active          bool              `json:"active"`
	Override        bool              `json:"override"`
	ProbabilityUsed float64           `json:"probability_used"`
	ProbSource      ProbabilitySource `json:"prob_source"`
	NewProbability  float64           `json:"new_probability"`
	ACV             float64           `json:"acv"`
	ACVProxied      bool              `json:"acv_proxied,omitempty"`
	StoredWeighted  float64           `json:"stored_weighted"`
	NewWeighted     float64           `json:"new_weighted"`
	Delta           float64           `json:"delta"`
	Reason          string            `json:"reason"`
}

// Aggregate sums reprice results over a group of deals.
type Aggregate struct {
	Group            string  `json:"group"`
	Deals            int     `json:"deals"`
	CurrentWeighted  float64 `json:"current_weighted"`
	ProposedWeighted float64 `json:"proposed_weighted"`
	Delta            float64 `json:"delta"`
	Overrides        int     `json:"overrides"`
	OverrideWeighted float64 `json:"override_weighted"`
}

// ProbabilityReport is the full reprice output for one window.
type ProbabilityReport struct {
	Window           Window       `json:"window"`
	Deals            []DealResult `json:"deals"`
	ByAccountClass   []Aggregate  `json:"by_account_class"`
	ByRevenueClass   []Aggregate  `json:"by_revenue_class"`
	ByStage          []Aggregate  `json:"by_stage"`
	OverridesByClass []Aggregate  `json:"overrides_by_class"`
	Total            Aggregate    `json:"total"`
	Excluded         int          `json:"excluded"`
	ZeroProb         int          `json:"zero_prob"`
	ZeroWeighted     int          `json:"zero_weighted"`
}
