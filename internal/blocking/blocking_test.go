package blocking

import (
	"context"
	"testing"
	"time"

	"github.com/alwaysvivek/redis-go/internal/keyspace"
)

func TestBPopImmediate(t *testing.T) {
	ks := keyspace.New()
	ks.Push("L", []string{"a", "b"}, false)
	c := NewListCoordinator()
	res, ok := c.BPop(context.Background(), ks, []string{"L"}, 0, true)
	if !ok || res.Value != "a" {
		t.Fatalf("BPop = %v, %v", res, ok)
	}
}

func TestBPopWakesOnPush(t *testing.T) {
	ks := keyspace.New()
	c := NewListCoordinator()

	done := make(chan ListResult, 1)
	go func() {
		res, ok := c.BPop(context.Background(), ks, []string{"L"}, 0, true)
		if ok {
			done <- res
		}
	}()

	// Give the waiter time to enqueue before pushing.
	time.Sleep(20 * time.Millisecond)
	n, err := c.Push(ks, "L", []string{"x"}, false)
	if err != nil || n != 1 {
		t.Fatalf("Push = %d, %v", n, err)
	}

	select {
	case res := <-done:
		if res.Value != "x" || res.Key != "L" {
			t.Fatalf("unexpected result %v", res)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for BPop to wake")
	}

	if n, _ := ks.Len("L"); n != 0 {
		t.Fatalf("expected list to be drained, len=%d", n)
	}
}

func TestBPopTimeout(t *testing.T) {
	ks := keyspace.New()
	c := NewListCoordinator()
	start := time.Now()
	_, ok := c.BPop(context.Background(), ks, []string{"L"}, 30*time.Millisecond, true)
	if ok {
		t.Fatal("expected timeout")
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatal("returned too early")
	}
}

func TestBPopFIFOFairness(t *testing.T) {
	ks := keyspace.New()
	c := NewListCoordinator()

	results := make([]chan ListResult, 2)
	for i := 0; i < 2; i++ {
		ch := make(chan ListResult, 1)
		results[i] = ch
		go func() {
			res, ok := c.BPop(context.Background(), ks, []string{"L"}, 0, true)
			if ok {
				ch <- res
			}
		}()
		time.Sleep(10 * time.Millisecond) // keep arrival order deterministic
	}

	c.Push(ks, "L", []string{"first"}, false)
	c.Push(ks, "L", []string{"second"}, false)

	r1 := <-results[0]
	r2 := <-results[1]
	if r1.Value != "first" || r2.Value != "second" {
		t.Fatalf("expected FIFO delivery (first, second), got %v and %v", r1, r2)
	}
}

func TestStreamReadBlocks(t *testing.T) {
	ks := keyspace.New()
	c := NewStreamCoordinator()

	done := make(chan StreamResult, 1)
	go func() {
		res, ok := c.Read(context.Background(), ks, []string{"s"}, []keyspace.StreamID{{}}, true, 0)
		if ok {
			done <- res
		}
	}()

	time.Sleep(20 * time.Millisecond)
	id, err := c.XAdd(ks, "s", "1-1", nil, 0)
	if err != nil {
		t.Fatal(err)
	}

	select {
	case res := <-done:
		entries := res["s"]
		if len(entries) != 1 || entries[0].ID != id {
			t.Fatalf("unexpected result %v", res)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for XREAD BLOCK to wake")
	}
}

func TestStreamReadCancellation(t *testing.T) {
	ks := keyspace.New()
	c := NewStreamCoordinator()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan bool, 1)
	go func() {
		_, ok := c.Read(ctx, ks, []string{"s"}, []keyspace.StreamID{{}}, true, 0)
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case ok := <-done:
		if ok {
			t.Fatal("expected cancellation to return ok=false")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for cancellation")
	}
}
