package seeding

import (
	"context"
	"fmt"
	"strings"
	"time"

	"stockwise/internal/core/apperror"
	"stockwise/internal/core/tx"
	"stockwise/pkg/logger"
)

// Repository stores seed records.
type Repository interface {
	// Acquire serializes runners of the same seeder until the transaction ends.
	Acquire(ctx context.Context, name, environment string) error

	// Get returns the record, or a StateNeverRun record when none is stored.
	Get(ctx context.Context, name, environment string) (Record, error)

	Save(ctx context.Context, r Record) error

	List(ctx context.Context, environment string) ([]Record, error)
}

// Seeder is one idempotent setup operation.
type Seeder interface {
	Name() string
	Seed(ctx context.Context) error
}

// Checksummer is implemented by seeders whose content can change between
// releases. The checksum is stored with the record for inspection.
type Checksummer interface {
	Checksum() string
}

// RunOptions modify a run.
type RunOptions struct {
	// Force re-runs a seeder that already ran. Locked seeders never run.
	Force bool

	// Lock locks the seeder after the run so it can never run again.
	Lock bool
}

// Outcome of a run.
type Outcome string

const (
	OutcomeRan           Outcome = "ran"
	OutcomeSkippedRan    Outcome = "skipped: already ran"
	OutcomeSkippedLocked Outcome = "skipped: locked"
	OutcomeLockedOnly    Outcome = "locked"
)

// Runner guards seeders with the seed ledger.
type Runner struct {
	repo        Repository
	txManager   tx.Manager
	environment string
	now         func() time.Time
}

// NewRunner creates a runner for one environment.
func NewRunner(repo Repository, txManager tx.Manager, environment string) *Runner {
	return &Runner{
		repo:        repo,
		txManager:   txManager,
		environment: strings.ToLower(strings.TrimSpace(environment)),
		now:         time.Now,
	}
}

// Run executes s unless the ledger says otherwise. The seeder and its ledger
// update share one transaction: a failed seeder leaves no record.
func (r *Runner) Run(ctx context.Context, s Seeder, opts RunOptions) (Outcome, error) {
	name := s.Name()
	if name == "" {
		return "", apperror.NewValidation("seeder name is required")
	}
	log := logger.FromContext(ctx).WithComponent("seeding").With("seeder", name, "environment", r.environment)

	var outcome Outcome
	err := r.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := r.repo.Acquire(ctx, name, r.environment); err != nil {
			return fmt.Errorf("acquire seed lock: %w", err)
		}
		rec, err := r.repo.Get(ctx, name, r.environment)
		if err != nil {
			return fmt.Errorf("load seed record: %w", err)
		}

		switch {
		case rec.State == StateLocked:
			outcome = OutcomeSkippedLocked
			return nil
		case rec.State == StateRan && !opts.Force:
			if !opts.Lock {
				outcome = OutcomeSkippedRan
				return nil
			}
			outcome = OutcomeLockedOnly
			return r.lock(ctx, &rec)
		}

		ev := EventRun
		if opts.Force {
			ev = EventForceRun
		}
		next, err := Next(rec.State, ev)
		if err != nil {
			return err
		}

		if err := s.Seed(ctx); err != nil {
			return fmt.Errorf("seed %s: %w", name, err)
		}

		now := r.now().UTC()
		rec.State = next
		rec.RanAt = &now
		rec.RunCount++
		if c, ok := s.(Checksummer); ok {
			rec.Checksum = c.Checksum()
		}
		outcome = OutcomeRan

		if opts.Lock {
			return r.lock(ctx, &rec)
		}
		return r.repo.Save(ctx, rec)
	})
	if err != nil {
		log.Errorw("seeder failed", "error", err)
		return "", err
	}

	log.Infow("seeder finished", "outcome", string(outcome))
	return outcome, nil
}

// Lock moves a seeder that ran to locked without running it.
func (r *Runner) Lock(ctx context.Context, name string) error {
	return r.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := r.repo.Acquire(ctx, name, r.environment); err != nil {
			return fmt.Errorf("acquire seed lock: %w", err)
		}
		rec, err := r.repo.Get(ctx, name, r.environment)
		if err != nil {
			return fmt.Errorf("load seed record: %w", err)
		}
		return r.lock(ctx, &rec)
	})
}

// Status lists the records of the runner's environment.
func (r *Runner) Status(ctx context.Context) ([]Record, error) {
	return r.repo.List(ctx, r.environment)
}

func (r *Runner) lock(ctx context.Context, rec *Record) error {
	next, err := Next(rec.State, EventLock)
	if err != nil {
		return err
	}
	now := r.now().UTC()
	rec.State = next
	rec.LockedAt = &now
	return r.repo.Save(ctx, *rec)
}
