// Package txn holds the per-connection transaction state machine:
// MULTI/EXEC/DISCARD queueing and WATCH-based optimistic locking.
package txn

import "errors"

var (
	// ErrNestedMulti is returned when MULTI is issued while already active.
	ErrNestedMulti = errors.New("ERR MULTI calls can not be nested")
	// ErrDiscardWithoutMulti is returned by DISCARD outside a transaction.
	ErrDiscardWithoutMulti = errors.New("ERR DISCARD without MULTI")
	// ErrExecWithoutMulti is returned by EXEC outside a transaction.
	ErrExecWithoutMulti = errors.New("ERR EXEC without MULTI")
	// ErrExecAbort is returned when EXEC runs after a queueing-time error.
	ErrExecAbort = errors.New("EXECABORT Transaction discarded because of previous errors.")
)

// State is the per-connection transaction context.
type State struct {
	Active      bool
	Queued      [][]string
	ErrorSticky bool
	Watched     map[string]uint64 // key -> version captured at WATCH time
}

// NewState returns a fresh, inactive transaction state.
func NewState() *State {
	return &State{Watched: make(map[string]uint64)}
}

// Multi begins a transaction.
func (s *State) Multi() error {
	if s.Active {
		return ErrNestedMulti
	}
	s.Active = true
	s.Queued = nil
	s.ErrorSticky = false
	return nil
}

// Queue appends a raw command to the pending batch. Callers are
// expected to have already verified s.Active before calling this.
func (s *State) Queue(args []string) {
	s.Queued = append(s.Queued, args)
}

// MarkError records that a command failed syntax validation before it
// could be queued, which makes the eventual EXEC abort per spec §4.6.
func (s *State) MarkError() {
	s.ErrorSticky = true
}

// Discard clears the transaction (and any WATCHes) and returns to the
// non-transactional state.
func (s *State) Discard() error {
	if !s.Active {
		return ErrDiscardWithoutMulti
	}
	s.reset()
	return nil
}

// BeginExec validates that EXEC is legal right now and returns the
// queued batch, clearing the transaction state either way (EXEC always
// ends the transaction, whether it runs the batch or aborts it).
func (s *State) BeginExec() ([][]string, error) {
	if !s.Active {
		return nil, ErrExecWithoutMulti
	}
	queued := s.Queued
	sticky := s.ErrorSticky
	s.reset()
	if sticky {
		return nil, ErrExecAbort
	}
	return queued, nil
}

func (s *State) reset() {
	s.Active = false
	s.Queued = nil
	s.ErrorSticky = false
	s.Watched = make(map[string]uint64)
}

// Watch records the current version of key so a later EXEC can detect
// whether it changed.
func (s *State) Watch(key string, version uint64) {
	if s.Watched == nil {
		s.Watched = make(map[string]uint64)
	}
	s.Watched[key] = version
}

// Unwatch clears every watched key without touching the MULTI queue.
func (s *State) Unwatch() {
	s.Watched = make(map[string]uint64)
}

// HasWatches reports whether any key is currently watched.
func (s *State) HasWatches() bool {
	return len(s.Watched) > 0
}
