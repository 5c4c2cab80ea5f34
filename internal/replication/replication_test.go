package replication

import (
	"net"
	"testing"
	"time"
)

func TestPropagateAdvancesOffsetWithNoReplicas(t *testing.T) {
	s := NewMaster()
	before := s.MasterOffset()
	s.Propagate([]string{"SET", "a", "1"})
	after := s.MasterOffset()
	if after <= before {
		t.Fatalf("offset did not advance: before=%d after=%d", before, after)
	}
}

func TestPropagateWritesToReplicas(t *testing.T) {
	s := NewMaster()
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	r := s.RegisterReplica(server, 6380)

	done := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 64)
		n, _ := client.Read(buf)
		done <- buf[:n]
	}()

	s.Propagate([]string{"SET", "k", "v"})

	select {
	case got := <-done:
		want := "*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n"
		if string(got) != want {
			t.Fatalf("got %q, want %q", got, want)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for propagated write")
	}

	replicas := s.ConnectedReplicas()
	if len(replicas) != 1 || replicas[0] != r {
		t.Fatalf("ConnectedReplicas = %v", replicas)
	}
}

func TestRemoveReplica(t *testing.T) {
	s := NewMaster()
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()
	r := s.RegisterReplica(server, 6380)
	s.RemoveReplica(r)
	if len(s.ConnectedReplicas()) != 0 {
		t.Fatal("expected replica removed")
	}
}

func TestWaitQuorumSatisfiedImmediately(t *testing.T) {
	s := NewMaster()
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()
	r := s.RegisterReplica(server, 6380)
	s.Ack(r, 100)

	n := s.WaitQuorum(1, 50, time.Second)
	if n != 1 {
		t.Fatalf("WaitQuorum = %d, want 1", n)
	}
}

func TestWaitQuorumTimesOut(t *testing.T) {
	s := NewMaster()
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()
	s.RegisterReplica(server, 6380)

	start := time.Now()
	n := s.WaitQuorum(1, 1000, 30*time.Millisecond)
	if n != 0 {
		t.Fatalf("WaitQuorum = %d, want 0", n)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatal("returned too early")
	}
}

func TestInfoMasterAndSlave(t *testing.T) {
	master := NewMaster()
	if info := master.Info(); info == "" {
		t.Fatal("expected non-empty master info")
	}
	slave := NewReplica("127.0.0.1", 6379)
	info := slave.Info()
	if info == "" {
		t.Fatal("expected non-empty slave info")
	}
}

func TestAdvanceProcessed(t *testing.T) {
	s := NewReplica("127.0.0.1", 6379)
	s.AdvanceProcessed(37)
	s.AdvanceProcessed(5)
	if got := s.ProcessedOffset(); got != 42 {
		t.Fatalf("ProcessedOffset = %d, want 42", got)
	}
}
