// Package store records every CLI run in a ledger so change sets can be
// compared across runs.
package store

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/sells-group/recon-cli/internal/config"
	"github.com/sells-group/recon-cli/internal/model"
)

// ErrNotFound is returned when a run id is unknown.
var ErrNotFound = errors.New("store: run not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Command string `json:"command,omitempty"`
	Limit   int    `json:"limit,omitempty"`
	Offset  int    `json:"offset,omitempty"`
}

// Store defines the run ledger.
type Store interface {
	// SaveRun persists run, assigning ID and CreatedAt when empty.
	SaveRun(ctx context.Context, run *model.Run) error
	// GetRun returns a run with its serialized change set.
	GetRun(ctx context.Context, id string) (*model.Run, error)
	// ListRuns returns runs newest first, without change sets.
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

// Open connects to the configured ledger and migrates it.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	if cfg.DatabaseURL == "" {
		return nil, eris.New("store: database_url is not set")
	}

	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case "sqlite", "":
		s, err = NewSQLite(cfg.DatabaseURL)
	case "postgres":
		s, err = NewPostgres(ctx, cfg.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close() //nolint:errcheck
		return nil, err
	}
	return s, nil
}
