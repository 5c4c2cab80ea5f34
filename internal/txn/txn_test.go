package txn

import "testing"

func TestMultiQueueExec(t *testing.T) {
	s := NewState()
	if err := s.Multi(); err != nil {
		t.Fatal(err)
	}
	if !s.Active {
		t.Fatal("expected Active after MULTI")
	}
	s.Queue([]string{"SET", "a", "1"})
	s.Queue([]string{"INCR", "a"})

	batch, err := s.BeginExec()
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 2 {
		t.Fatalf("len(batch) = %d, want 2", len(batch))
	}
	if s.Active {
		t.Fatal("expected Active false after EXEC")
	}
}

func TestNestedMultiRejected(t *testing.T) {
	s := NewState()
	s.Multi()
	if err := s.Multi(); err != ErrNestedMulti {
		t.Fatalf("err = %v, want ErrNestedMulti", err)
	}
}

func TestExecWithoutMulti(t *testing.T) {
	s := NewState()
	if _, err := s.BeginExec(); err != ErrExecWithoutMulti {
		t.Fatalf("err = %v, want ErrExecWithoutMulti", err)
	}
}

func TestDiscardWithoutMulti(t *testing.T) {
	s := NewState()
	if err := s.Discard(); err != ErrDiscardWithoutMulti {
		t.Fatalf("err = %v, want ErrDiscardWithoutMulti", err)
	}
}

func TestDiscardClearsQueue(t *testing.T) {
	s := NewState()
	s.Multi()
	s.Queue([]string{"SET", "a", "1"})
	if err := s.Discard(); err != nil {
		t.Fatal(err)
	}
	if s.Active || len(s.Queued) != 0 {
		t.Fatal("expected transaction fully cleared")
	}
}

func TestExecAbortsOnQueueingError(t *testing.T) {
	s := NewState()
	s.Multi()
	s.Queue([]string{"SET", "a", "1"})
	s.MarkError()
	if _, err := s.BeginExec(); err != ErrExecAbort {
		t.Fatalf("err = %v, want ErrExecAbort", err)
	}
	if s.Active {
		t.Fatal("expected transaction cleared after aborted EXEC")
	}
}

func TestWatchUnwatch(t *testing.T) {
	s := NewState()
	s.Watch("k", 3)
	if !s.HasWatches() {
		t.Fatal("expected HasWatches true")
	}
	if s.Watched["k"] != 3 {
		t.Fatalf("Watched[k] = %d, want 3", s.Watched["k"])
	}
	s.Unwatch()
	if s.HasWatches() {
		t.Fatal("expected HasWatches false after Unwatch")
	}
}

func TestExecClearsWatches(t *testing.T) {
	s := NewState()
	s.Watch("k", 1)
	s.Multi()
	s.BeginExec()
	if s.HasWatches() {
		t.Fatal("expected watches cleared after EXEC")
	}
}
