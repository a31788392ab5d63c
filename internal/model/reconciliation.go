package model

// CoverageStatus labels contract coverage against the run-rate benchmark.
type CoverageStatus string

const (
	StatusAligned  CoverageStatus = "ALIGNED"
	StatusPartial  CoverageStatus = "PARTIAL"
	StatusCritical CoverageStatus = "CRITICAL"
	StatusOver     CoverageStatus = "OVER"
)

// SourcePresence records which inputs mentioned an account.
type SourcePresence struct {
	RunRate   bool `json:"run_rate"`
	CRM       bool `json:"crm"`
	Contracts bool `json:"contracts"`
}

// String renders the presence flags as a compact label, e.g. "RR+CRM".
func (p SourcePresence) String() string {
	s := ""
	add := func(ok bool, label string) {
		if !ok {
			return
		}
		if s != "" {
			s += "+"
		}
		s += label
	}
	add(p.RunRate, "RR")
	add(p.CRM, "CRM")
	add(p.Contracts, "CONTRACT")
	if s == "" {
		return "NONE"
	}
	return s
}

// ReconciliationRow is the per-account revenue picture.
type ReconciliationRow struct {
	AccountKey    string         `json:"account_key"`
	AccountName   string         `json:"account_name"`
	Benchmark     float64        `json:"benchmark"`
	ContractSum   float64        `json:"contract_sum"`
	OppSum        float64        `json:"opp_sum"`
	Gap           float64        `json:"gap"`
	Coverage      float64        `json:"coverage"`
	Status        CoverageStatus `json:"status"`
	Presence      SourcePresence `json:"presence"`
	ContractCount int            `json:"contract_count"`
	OppCount      int            `json:"opp_count"`
	Unclassified  int            `json:"unclassified"`
	MatchNote     string         `json:"match_note,omitempty"`
}

// IssueKind is the category of a non-fatal finding surfaced in a report.
type IssueKind string

const (
	IssueOrphanContract IssueKind = "ORPHAN_CONTRACT"
	IssueExtraction     IssueKind = "EXTRACTION"
	IssueAmbiguousMatch IssueKind = "AMBIGUOUS_MATCH"
	IssueManualReview   IssueKind = "NEEDS_MANUAL_REVIEW"
	IssueConflict       IssueKind = "CHANGESET_CONFLICT"
	IssueZeroProb       IssueKind = "ZERO_PROB"
)

// Issue is a human-readable non-fatal finding.
type Issue struct {
	Kind    IssueKind `json:"kind"`
	Subject string    `json:"subject"`
	Detail  string    `json:"detail"`
}

// ReconciliationReport is the ordered reconciliation output plus counters.
type ReconciliationReport struct {
	Rows              []ReconciliationRow `json:"rows"`
	Contracts         []Contract          `json:"contracts"`
	Issues            []Issue             `json:"issues"`
	OrphanContracts   int                 `json:"orphan_contracts"`
	UnmatchedRunRate  int                 `json:"unmatched_run_rate"`
	ExtractionErrors  int                 `json:"extraction_errors"`
	ContractsReviewed int                 `json:"contracts_reviewed"`
}
