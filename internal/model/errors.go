package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrBadMoney is returned when a monetary value cannot be parsed.
var ErrBadMoney = errors.New("bad money value")

// ErrUnreadablePDF marks a contract document whose text cannot be read.
var ErrUnreadablePDF = errors.New("unreadable pdf")

// RowIssue identifies one offending input row.
type RowIssue struct {
	Source string `json:"source"`
	Row    int    `json:"row"`
	Column string `json:"column,omitempty"`
	Reason string `json:"reason"`
}

func (ri RowIssue) String() string {
	if ri.Row > 0 {
		return fmt.Sprintf("%s row %d [%s]: %s", ri.Source, ri.Row, ri.Column, ri.Reason)
	}
	return fmt.Sprintf("%s [%s]: %s", ri.Source, ri.Column, ri.Reason)
}

// ValidationError is a fatal input validation failure listing every
// offending row.
type ValidationError struct {
	Issues []RowIssue
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, ri := range e.Issues {
		parts = append(parts, ri.String())
	}
	return fmt.Sprintf("input validation failed (%d issues): %s", len(e.Issues), strings.Join(parts, "; "))
}

// ConflictError reports two change records that mutate the same field to
// different values.
type ConflictError struct {
	Kind        ObjectKind
	Key         string
	Field       string
	First       ChangeRecord
	Second      ChangeRecord
	FirstValue  string
	SecondValue string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("change set conflict on %s %s field %s: %q (%s: %s) vs %q (%s: %s)",
		e.Kind, e.Key, e.Field,
		e.FirstValue, e.First.Rule, e.First.Rationale,
		e.SecondValue, e.Second.Rule, e.Second.Rationale)
}

// ExtractionThresholdError is raised when too many contracts fail to read.
type ExtractionThresholdError struct {
	Failed    int
	Total     int
	Threshold float64
}

func (e *ExtractionThresholdError) Error() string {
	return fmt.Sprintf("extraction failures %d/%d exceed threshold %.0f%%",
		e.Failed, e.Total, e.Threshold*100)
}
