package model

// ObjectKind is the CRM object a change record targets.
type ObjectKind string

const (
	ObjectAccount     ObjectKind = "Account"
	ObjectContract    ObjectKind = "Contract"
	ObjectOpportunity ObjectKind = "Opportunity"
)

// Operation is what a change record asks the uploader to do.
type Operation string

const (
	OpUpdate Operation = "update-field"
	OpInsert Operation = "insert"
	OpTag    Operation = "tag"
	OpNoop   Operation = "no-op"
)

// Confidence is the qualitative certainty of a change record.
type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

// Rule names the upstream rule that originated a change record.
type Rule string

const (
	RuleLinkContract        Rule = "link-contract"
	RuleMissingAccount      Rule = "missing-account"
	RuleNeedsClassification Rule = "needs-classification"
	RuleNeedsManualACV      Rule = "needs-manual-acv"
	RuleWeightedACV         Rule = "weighted-acv"
	RuleAligned             Rule = "aligned"
)

// ChangeRecord is one per-record operation for the external bulk uploader.
// Field values are pre-formatted strings so serialization is byte-stable.
type ChangeRecord struct {
	Kind       ObjectKind        `json:"kind"`
	Key        string            `json:"key"`
	Op         Operation         `json:"op"`
	Fields     map[string]string `json:"fields,omitempty"`
	Rationale  string            `json:"rationale"`
	Account    string            `json:"account"`
	Confidence Confidence        `json:"confidence"`
	Rule       Rule              `json:"rule"`
}
