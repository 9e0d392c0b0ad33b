// Package seed_repo stores the seed ledger in sys_seed_runs.
package seed_repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"

	"stockwise/internal/domain/seeding"
	"stockwise/internal/infrastructure/storage/postgres"
)

// SeedRepo implements seeding.Repository.
type SeedRepo struct {
	txManager *postgres.TxManager
}

var _ seeding.Repository = (*SeedRepo)(nil)

// NewSeedRepo creates a seed ledger repository.
func NewSeedRepo(txManager *postgres.TxManager) *SeedRepo {
	return &SeedRepo{txManager: txManager}
}

// Acquire takes a transaction-scoped advisory lock on the seeder, so two
// processes running the same seeder serialize instead of double-running.
func (r *SeedRepo) Acquire(ctx context.Context, name, environment string) error {
	if !r.txManager.InTx(ctx) {
		return errors.New("seed lock requires a transaction")
	}
	_, err := r.txManager.GetQuerier(ctx).Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtext($1))`, "seed:"+environment+":"+name)
	if err != nil {
		return postgres.MapError(err, "seed_run")
	}
	return nil
}

func (r *SeedRepo) Get(ctx context.Context, name, environment string) (seeding.Record, error) {
	var rec seeding.Record
	err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &rec, `
		SELECT name, environment, state, checksum, run_count, ran_at, locked_at
		FROM sys_seed_runs
		WHERE name = $1 AND environment = $2
	`, name, environment)
	if pgxscan.NotFound(err) {
		return seeding.Record{Name: name, Environment: environment, State: seeding.StateNeverRun}, nil
	}
	if err != nil {
		return seeding.Record{}, postgres.MapError(err, "seed_run")
	}
	return rec, nil
}

func (r *SeedRepo) Save(ctx context.Context, rec seeding.Record) error {
	_, err := r.txManager.GetQuerier(ctx).Exec(ctx, `
		INSERT INTO sys_seed_runs (name, environment, state, checksum, run_count, ran_at, locked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (name, environment) DO UPDATE SET
			state = EXCLUDED.state,
			checksum = EXCLUDED.checksum,
			run_count = EXCLUDED.run_count,
			ran_at = EXCLUDED.ran_at,
			locked_at = EXCLUDED.locked_at
	`, rec.Name, rec.Environment, string(rec.State), rec.Checksum, rec.RunCount, rec.RanAt, rec.LockedAt)
	if err != nil {
		return postgres.MapError(err, "seed_run")
	}
	return nil
}

func (r *SeedRepo) List(ctx context.Context, environment string) ([]seeding.Record, error) {
	var out []seeding.Record
	err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &out, `
		SELECT name, environment, state, checksum, run_count, ran_at, locked_at
		FROM sys_seed_runs
		WHERE environment = $1
		ORDER BY name
	`, environment)
	if err != nil {
		return nil, fmt.Errorf("list seed runs: %w", postgres.MapError(err, "seed_run"))
	}
	return out, nil
}
