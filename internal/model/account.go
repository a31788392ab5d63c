package model

// AccountClass is the account-level classification consumed by the
// probability matrix. The engine never derives it.
type AccountClass string

const (
	AccountNewLogo        AccountClass = "New Logo"
	AccountExistingClient AccountClass = "Existing Client"
	AccountLOI            AccountClass = "LOI"
	AccountGovernment     AccountClass = "Government"
)

// AccountClasses lists the account classes in declared order.
var AccountClasses = []AccountClass{
	AccountNewLogo, AccountExistingClient, AccountLOI, AccountGovernment,
}

// RevenueClass is the per-opportunity revenue classification.
type RevenueClass string

const (
	RevenueCommitment RevenueClass = "Commitment (LOI)"
	RevenueRecurring  RevenueClass = "Recurring"
	RevenueProject    RevenueClass = "Project"
	RevenueOther      RevenueClass = "Other"
)

// RevenueType is the explicit revenue-type tag carried by a CRM row.
type RevenueType string

const (
	RevenueTypeNone       RevenueType = ""
	RevenueTypeRecurring  RevenueType = "Recurring"
	RevenueTypeProject    RevenueType = "Project"
	RevenueTypeCommitment RevenueType = "Commitment"
)

// Account is a canonical account keyed by its normalized name.
type Account struct {
	Key         string       `json:"key"`
	DisplayName string       `json:"display_name"`
	Class       AccountClass `json:"class,omitempty"`
	OwnerID     string       `json:"owner_id,omitempty"`
	ExternalID  string       `json:"external_id,omitempty"`
}
