package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/recon-cli/internal/db"
	"github.com/sells-group/recon-cli/internal/model"
	"github.com/sells-group/recon-cli/internal/resilience"
)

// PostgresStore implements Store using pgxpool. Change sets are stored one
// record per row in run_changes, loaded with COPY.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

var changeColumns = []string{"run_id", "seq", "record"}

// queries are the fixed statements of the ledger.
var queries = map[string]string{
	"insert_run": `INSERT INTO runs (id, command, status, exit_code, input_digest, changeset_digest, summary, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
	"get_run": `SELECT id, command, status, exit_code, input_digest, changeset_digest, summary, created_at
		FROM runs WHERE id = $1`,
	"get_run_changes": `SELECT record FROM run_changes WHERE run_id = $1 ORDER BY seq`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := ping(ctx, pool, resilience.DefaultRetryConfig()); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

// ping retries until the server answers. Errors pgconn reports as safe to
// retry, and timeouts, are marked transient.
func ping(ctx context.Context, pool db.Pool, retry resilience.RetryConfig) error {
	retry.OnRetry = resilience.RetryLogger("postgres: ping")
	err := resilience.Do(ctx, retry, func(ctx context.Context) error {
		err := pool.Ping(ctx)
		if err != nil && (pgconn.SafeToRetry(err) || pgconn.Timeout(err)) {
			return resilience.Transient(err)
		}
		return err
	})
	return eris.Wrap(err, "postgres: ping")
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id               TEXT PRIMARY KEY,
	command          TEXT NOT NULL,
	status           TEXT NOT NULL,
	exit_code        INTEGER NOT NULL DEFAULT 0,
	input_digest     TEXT NOT NULL,
	changeset_digest TEXT NOT NULL,
	summary          JSONB,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS run_changes (
	run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	seq    INTEGER NOT NULL,
	record TEXT NOT NULL,
	PRIMARY KEY (run_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_runs_command ON runs(command);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) SaveRun(ctx context.Context, run *model.Run) error {
	prepareRun(run)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin")
	}
	if err := saveRunTx(ctx, tx, run); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return eris.Wrapf(err, "postgres: commit run %s", run.ID)
	}
	return nil
}

func saveRunTx(ctx context.Context, tx pgx.Tx, run *model.Run) error {
	var summary any
	if len(run.Summary) > 0 {
		summary = string(run.Summary)
	}
	_, err := tx.Exec(ctx, queries["insert_run"],
		run.ID, run.Command, string(run.Status), run.ExitCode, run.InputDigest, run.ChangesetDigest,
		summary, run.CreatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert run %s", run.ID)
	}

	rows := changeRows(run.ID, run.Changes)
	if _, err := db.CopyFrom(ctx, tx, "run_changes", changeColumns, rows); err != nil {
		return eris.Wrapf(err, "postgres: copy changes for run %s", run.ID)
	}
	return nil
}

// changeRows splits a JSONL change set into one row per record.
func changeRows(runID string, jsonl []byte) [][]any {
	var rows [][]any
	for i, line := range bytes.Split(bytes.TrimSuffix(jsonl, []byte("\n")), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		rows = append(rows, []any{runID, i, string(line)})
	}
	return rows
}

func (s *PostgresStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	r, err := scanPostgresRun(s.pool.QueryRow(ctx, queries["get_run"], id))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", id)
	}

	rows, err := s.pool.Query(ctx, queries["get_run_changes"], id)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run changes %s", id)
	}
	defer rows.Close()

	var buf bytes.Buffer
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, eris.Wrap(err, "postgres: scan change")
		}
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: get run changes iterate")
	}
	if buf.Len() > 0 {
		r.Changes = buf.Bytes()
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, command, status, exit_code, input_digest, changeset_digest, summary, created_at FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Command != "" {
		query += fmt.Sprintf(` AND command = $%d`, argIdx)
		args = append(args, filter.Command)
		argIdx++
	}
	query += ` ORDER BY created_at DESC, id`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPostgresRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: list runs")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func scanPostgresRun(row pgx.Row) (*model.Run, error) {
	var (
		r       model.Run
		status  string
		summary []byte
	)
	err := row.Scan(&r.ID, &r.Command, &status, &r.ExitCode, &r.InputDigest, &r.ChangesetDigest, &summary, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan run")
	}
	r.Status = model.RunStatus(status)
	if len(summary) > 0 {
		r.Summary = summary
	}
	return &r, nil
}
