package model

import "time"

// Opportunity is a CRM opportunity row. It is immutable within a run;
// changes are expressed through the change set.
type Opportunity struct {
	ID           string       `json:"id,omitempty"`
	AccountLabel string       `json:"account_label"`
	AccountKey   string       `json:"account_key"`
	Name         string       `json:"name"`
	NameKey      string       `json:"name_key"`
	AccountClass AccountClass `json:"account_class,omitempty"`
	Stage        Stage        `json:"stage"`
	Revenue      float64      `json:"revenue"`
	ACV          *float64     `json:"acv,omitempty"`
	TermMonths   int          `json:"term_months,omitempty"`
	CloseDate    *time.Time   `json:"close_date,omitempty"`

	// WeightedACV is the stored weighted figure from the CRM, if exported.
	WeightedACV *float64 `json:"weighted_acv,omitempty"`

	CustomProbability     *float64     `json:"custom_probability,omitempty"`
	CalculatedProbability *float64     `json:"calculated_probability,omitempty"`
	RevenueType           RevenueType  `json:"revenue_type,omitempty"`
	Class                 RevenueClass `json:"class,omitempty"`

	Source string `json:"source,omitempty"`
	Row    int    `json:"row"`
}

// NaturalKey returns the stable identity of the opportunity: the external id
// when present, else account key and normalized name.
func (o *Opportunity) NaturalKey() string {
	if o.ID != "" {
		return o.ID
	}
	return o.AccountKey + "/" + o.NameKey
}

// HasOverride reports whether a custom probability suppresses repricing.
func (o *Opportunity) HasOverride() bool {
	return o.CustomProbability != nil && *o.CustomProbability > 0
}

// InWindow reports whether the close date falls inside [start, end].
// A missing close date is never in a window.
func (o *Opportunity) InWindow(start, end time.Time) bool {
	if o.CloseDate == nil {
		return false
	}
	d := *o.CloseDate
	return !d.Before(start) && !d.After(end)
}
