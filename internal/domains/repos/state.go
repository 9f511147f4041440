package repos

import (
	"errors"
	"fmt"
	"time"
)

// State is the lifecycle state of a registered repository
type State string

const (
	StatePending  State = "pending"
	StateSyncing  State = "syncing"
	StateActive   State = "active"
	StateError    State = "error"
	StateInactive State = "inactive"
)

var ErrInvalidTransition = errors.New("invalid state transition")

// InvalidTransitionError reports a rejected transition. The repository keeps
// its current state.
type InvalidTransitionError struct {
	RepositoryID string
	From         State
	To           State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("repository %s: cannot transition from %s to %s", e.RepositoryID, e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidTransition
}

func (s State) String() string {
	return string(s)
}

// IsValid reports whether s is one of the known states.
func (s State) IsValid() bool {
	switch s {
	case StatePending, StateSyncing, StateActive, StateError, StateInactive:
		return true
	}
	return false
}

// ParseState parses the wire form of a state.
func ParseState(s string) (State, error) {
	st := State(s)
	if !st.IsValid() {
		return "", fmt.Errorf("unknown repository state %q", s)
	}
	return st, nil
}

var transitions = map[State][]State{
	StatePending:  {StateSyncing},
	StateSyncing:  {StateActive, StateError},
	StateError:    {StateSyncing},
	StateActive:   {StateSyncing},
	StateInactive: {StateSyncing},
}

// CanTransition reports whether from -> to is legal. Deactivation is legal
// from every state.
func CanTransition(from, to State) bool {
	if to == StateInactive {
		return from.IsValid()
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Apply returns repo moved to state to. cause is recorded as LastError when
// entering StateError and cleared otherwise; entering StateActive stamps
// LastSyncedAt. repo is not modified.
func Apply(repo Repository, to State, cause string, now time.Time) (Repository, error) {
	if !CanTransition(repo.State, to) {
		return repo, &InvalidTransitionError{RepositoryID: repo.ID, From: repo.State, To: to}
	}

	next := repo
	next.State = to
	next.LastError = ""

	switch to {
	case StateError:
		if cause == "" {
			cause = "unknown error"
		}
		next.LastError = cause
	case StateActive:
		ts := now.Unix()
		next.LastSyncedAt = &ts
	}

	if err := next.checkInvariants(); err != nil {
		return repo, err
	}
	return next, nil
}

func (r Repository) checkInvariants() error {
	if (r.State == StateError) != (r.LastError != "") {
		return fmt.Errorf("repository %s: last_error must be set iff state is error (state=%s)", r.ID, r.State)
	}
	return nil
}
