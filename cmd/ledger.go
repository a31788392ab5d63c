package main

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/recon-cli/internal/changeset"
	"github.com/sells-group/recon-cli/internal/model"
	"github.com/sells-group/recon-cli/internal/store"
)

// openLedger opens the configured run ledger.
func openLedger(ctx context.Context) (store.Store, error) {
	if cfg.Store.DatabaseURL == "" {
		return nil, eris.New("run ledger is not configured (store.database_url / RECON_STORE_DATABASE_URL)")
	}
	return store.Open(ctx, cfg.Store)
}

// recordRun saves a run to the ledger when one is configured. Ledger
// failures are logged and never change the command's outcome.
func recordRun(ctx context.Context, command string, inputs []string, changes []model.ChangeRecord, summary any, runErr error) {
	if cfg == nil || cfg.Store.DatabaseURL == "" {
		return
	}
	log := zap.L().With(zap.String("command", command))

	run, err := newRun(command, inputs, changes, summary, runErr)
	if err != nil {
		log.Warn("ledger: build run failed", zap.Error(err))
		return
	}

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		log.Warn("ledger: open failed", zap.Error(err))
		return
	}
	defer st.Close() //nolint:errcheck

	if err := st.SaveRun(ctx, run); err != nil {
		log.Warn("ledger: save run failed", zap.Error(err))
		return
	}
	log.Info("ledger: run recorded",
		zap.String("run_id", run.ID),
		zap.String("status", string(run.Status)),
		zap.String("changeset_digest", run.ChangesetDigest),
	)
}

func newRun(command string, inputs []string, changes []model.ChangeRecord, summary any, runErr error) (*model.Run, error) {
	run := &model.Run{
		Command:  command,
		Status:   model.RunSucceeded,
		ExitCode: exitCode(runErr),
	}
	if runErr != nil {
		run.Status = model.RunFailed
	}

	digest, err := store.InputDigest(inputs...)
	if err != nil {
		zap.L().Debug("ledger: input digest unavailable", zap.Error(err))
	}
	run.InputDigest = digest

	data, err := changeset.Marshal(changes)
	if err != nil {
		return nil, err
	}
	run.Changes = data
	if run.ChangesetDigest, err = changeset.Digest(changes); err != nil {
		return nil, err
	}

	if summary != nil {
		b, err := json.Marshal(summary)
		if err != nil {
			return nil, eris.Wrap(err, "ledger: marshal summary")
		}
		run.Summary = b
	}
	return run, nil
}
