package model

import "time"

// ContractStatus is the processing outcome of a single contract.
type ContractStatus string

const (
	ContractOK          ContractStatus = "OK"
	ContractNeedsReview ContractStatus = "NEEDS_REVIEW"
	ContractError       ContractStatus = "ERROR"
	ContractOrphan      ContractStatus = "ORPHAN_CONTRACT"
)

// Contract is a signed contract with its extracted fiscal terms.
// ACVUSD is the canonical figure; every amount below is as written in the
// document, in Currency.
type Contract struct {
	Key          string `json:"key"`
	AccountLabel string `json:"account_label"`
	AccountKey   string `json:"account_key,omitempty"`
	FileLabel    string `json:"file_label"`
	Path         string `json:"path,omitempty"`

	StartDate    *time.Time `json:"start_date,omitempty"`
	EndDate      *time.Time `json:"end_date,omitempty"`
	StartDateRaw string     `json:"start_date_raw,omitempty"`
	EndDateRaw   string     `json:"end_date_raw,omitempty"`
	TermMonths   int        `json:"term_months,omitempty"`
	TermDerived  bool       `json:"term_derived,omitempty"`
	Currency     Currency   `json:"currency"`

	HourlyRate  *float64 `json:"hourly_rate,omitempty"`
	WeeklyHours *float64 `json:"weekly_hours,omitempty"`
	MonthlyFee  *float64 `json:"monthly_fee,omitempty"`
	AnnualFee   *float64 `json:"annual_fee,omitempty"`
	TotalValue  *float64 `json:"total_value,omitempty"`
	DayRate     *float64 `json:"day_rate,omitempty"`

	ACVUSD     *float64   `json:"acv_usd,omitempty"`
	ACVMethod  string     `json:"acv_method,omitempty"`
	ACVRule    int        `json:"acv_rule,omitempty"`
	Confidence Confidence `json:"confidence,omitempty"`

	Quotes map[string]string `json:"quotes,omitempty"`
	Status ContractStatus    `json:"status"`
	Error  string            `json:"error,omitempty"`

	// MatchNote records how the folder label was resolved to an account.
	MatchNote string `json:"match_note,omitempty"`
}

// Currency is a detected document currency.
type Currency string

const (
	EUR Currency = "EUR"
	USD Currency = "USD"
)
