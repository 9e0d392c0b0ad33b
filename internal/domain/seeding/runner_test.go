package seeding_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockwise/internal/core/apperror"
	"stockwise/internal/domain/seeding"
	"stockwise/internal/infrastructure/storage/memory"
)

type countingSeeder struct {
	name  string
	calls int
	err   error
}

func (s *countingSeeder) Name() string { return s.name }

func (s *countingSeeder) Seed(context.Context) error {
	s.calls++
	return s.err
}

func (s *countingSeeder) Checksum() string { return "v1" }

func newRunner() *seeding.Runner {
	store := memory.New()
	return seeding.NewRunner(store.Seeds(), store, " Dev ")
}

func TestRunner_RunsOnce(t *testing.T) {
	ctx := context.Background()
	runner := newRunner()
	s := &countingSeeder{name: "units"}

	outcome, err := runner.Run(ctx, s, seeding.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, seeding.OutcomeRan, outcome)

	outcome, err = runner.Run(ctx, s, seeding.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, seeding.OutcomeSkippedRan, outcome)
	assert.Equal(t, 1, s.calls)

	records, err := runner.Status(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "dev", records[0].Environment)
	assert.Equal(t, seeding.StateRan, records[0].State)
	assert.Equal(t, "v1", records[0].Checksum)
	assert.Equal(t, 1, records[0].RunCount)
	assert.NotNil(t, records[0].RanAt)
}

func TestRunner_ForceAndLock(t *testing.T) {
	ctx := context.Background()
	runner := newRunner()
	s := &countingSeeder{name: "demo"}

	steps := []struct {
		name    string
		opts    seeding.RunOptions
		outcome seeding.Outcome
		calls   int
	}{
		{"first run", seeding.RunOptions{}, seeding.OutcomeRan, 1},
		{"force re-runs", seeding.RunOptions{Force: true}, seeding.OutcomeRan, 2},
		{"lock without running", seeding.RunOptions{Lock: true}, seeding.OutcomeLockedOnly, 2},
		{"locked refuses force", seeding.RunOptions{Force: true}, seeding.OutcomeSkippedLocked, 2},
		{"locked refuses run", seeding.RunOptions{}, seeding.OutcomeSkippedLocked, 2},
	}
	for _, step := range steps {
		outcome, err := runner.Run(ctx, s, step.opts)
		require.NoError(t, err, step.name)
		assert.Equal(t, step.outcome, outcome, step.name)
		assert.Equal(t, step.calls, s.calls, step.name)
	}

	records, err := runner.Status(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, seeding.StateLocked, records[0].State)
	assert.Equal(t, 2, records[0].RunCount)
	assert.NotNil(t, records[0].LockedAt)
}

func TestRunner_RunAndLockInOneStep(t *testing.T) {
	ctx := context.Background()
	runner := newRunner()
	s := &countingSeeder{name: "topology"}

	outcome, err := runner.Run(ctx, s, seeding.RunOptions{Lock: true})
	require.NoError(t, err)
	assert.Equal(t, seeding.OutcomeRan, outcome)

	outcome, err = runner.Run(ctx, s, seeding.RunOptions{Force: true})
	require.NoError(t, err)
	assert.Equal(t, seeding.OutcomeSkippedLocked, outcome)
	assert.Equal(t, 1, s.calls)
}

func TestRunner_FailureLeavesNoRecord(t *testing.T) {
	ctx := context.Background()
	runner := newRunner()
	s := &countingSeeder{name: "broken", err: errors.New("boom")}

	_, err := runner.Run(ctx, s, seeding.RunOptions{})
	require.Error(t, err)

	records, err := runner.Status(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)

	s.err = nil
	outcome, err := runner.Run(ctx, s, seeding.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, seeding.OutcomeRan, outcome)
}

func TestRunner_LockRequiresRun(t *testing.T) {
	ctx := context.Background()
	runner := newRunner()

	err := runner.Lock(ctx, "never")
	assert.Equal(t, apperror.CodeInvalidTransition, apperror.CodeOf(err))

	_, err = runner.Run(ctx, &countingSeeder{name: "never"}, seeding.RunOptions{})
	require.NoError(t, err)
	require.NoError(t, runner.Lock(ctx, "never"))
}

func TestRunner_EnvironmentsAreIndependent(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	dev := seeding.NewRunner(store.Seeds(), store, "dev")
	prod := seeding.NewRunner(store.Seeds(), store, "prod")
	s := &countingSeeder{name: "units"}

	_, err := dev.Run(ctx, s, seeding.RunOptions{Lock: true})
	require.NoError(t, err)
	outcome, err := prod.Run(ctx, s, seeding.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, seeding.OutcomeRan, outcome)
	assert.Equal(t, 2, s.calls)
}
