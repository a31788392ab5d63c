package model

import (
	"encoding/json"
	"time"
)

// RunStatus is the outcome of a recorded CLI run.
type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Run is one ledger entry. Changes holds the serialized change set
// exactly as written, so two runs can be compared byte for byte.
type Run struct {
	ID              string          `json:"id"`
	Command         string          `json:"command"`
	Status          RunStatus       `json:"status"`
	ExitCode        int             `json:"exit_code"`
	InputDigest     string          `json:"input_digest"`
	ChangesetDigest string          `json:"changeset_digest"`
	Summary         json.RawMessage `json:"summary,omitempty"`
	Changes         []byte          `json:"-"`
	CreatedAt       time.Time       `json:"created_at"`
}
