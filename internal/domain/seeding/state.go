// Package seeding runs setup operations at most once per environment. Each
// seeder has a ledger record moving through never-run -> ran -> locked.
package seeding

import (
	"time"

	"stockwise/internal/core/apperror"
)

// State of a seeder in one environment.
type State string

const (
	StateNeverRun State = "never-run"
	StateRan      State = "ran"
	StateLocked   State = "locked"
)

// Event drives a state change.
type Event string

const (
	EventRun      Event = "run"
	EventForceRun Event = "force-run"
	EventLock     Event = "lock"
)

// Next returns the state reached from s on ev.
//
//	never-run --run|force-run--> ran
//	ran       --force-run-->     ran
//	ran       --lock-->          locked
//
// Every other pair is refused; locked is terminal.
func Next(s State, ev Event) (State, error) {
	switch {
	case s == StateNeverRun && (ev == EventRun || ev == EventForceRun):
		return StateRan, nil
	case s == StateRan && ev == EventForceRun:
		return StateRan, nil
	case s == StateRan && ev == EventLock:
		return StateLocked, nil
	}
	return s, apperror.NewInvalidTransition("seed_run", string(s), string(ev))
}

// Record is the ledger entry of one seeder in one environment.
// A seeder that never ran has no stored record; Get returns StateNeverRun.
type Record struct {
	Name        string     `db:"name" json:"name"`
	Environment string     `db:"environment" json:"environment"`
	State       State      `db:"state" json:"state"`
	Checksum    string     `db:"checksum" json:"checksum,omitempty"`
	RunCount    int        `db:"run_count" json:"run_count"`
	RanAt       *time.Time `db:"ran_at" json:"ran_at,omitempty"`
	LockedAt    *time.Time `db:"locked_at" json:"locked_at,omitempty"`
}
