package model

// RunRateRow is one account from the finance run-rate workbook.
type RunRateRow struct {
	AccountLabel  string    `json:"account_label"`
	AccountKey    string    `json:"account_key"`
	MonthLabels   []string  `json:"month_labels,omitempty"`
	Months        []float64 `json:"months,omitempty"`
	MonthlyUSD    float64   `json:"monthly_usd"`
	MonthUsed     string    `json:"month_used"`
	AnnualizedUSD float64   `json:"annualized_usd"`
	Row           int       `json:"row"`
}
