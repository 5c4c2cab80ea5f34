package server

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/alwaysvivek/redis-go/internal/replication"
	"github.com/alwaysvivek/redis-go/internal/resp"
)

// testHarness wires a Server to one connection over a net.Pipe, so
// Dispatch can be driven directly and replies read back with the same
// resp.ReadReply a real client would use.
type testHarness struct {
	srv    *Server
	conn   *Conn
	client net.Conn
	cbr    *bufio.Reader
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	srv := New(replication.NewMaster(), Options{})
	server, client := net.Pipe()
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	return &testHarness{
		srv:    srv,
		conn:   newConn(server, nil),
		client: client,
		cbr:    bufio.NewReader(client),
	}
}

func (h *testHarness) dispatch(t *testing.T, args ...string) resp.Reply {
	t.Helper()
	done := make(chan resp.Reply, 1)
	errc := make(chan error, 1)
	go func() {
		r, err := resp.ReadReply(h.cbr)
		if err != nil {
			errc <- err
			return
		}
		done <- r
	}()
	h.srv.Dispatch(context.Background(), h.conn, args)
	select {
	case r := <-done:
		return r
	case err := <-errc:
		t.Fatalf("ReadReply: %v", err)
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for reply to %v", args)
	}
	return resp.Reply{}
}

func TestPingEcho(t *testing.T) {
	h := newHarness(t)
	if r := h.dispatch(t, "PING"); r.Str != "PONG" {
		t.Fatalf("PING = %+v", r)
	}
	if r := h.dispatch(t, "ECHO", "hi"); string(r.Bulk) != "hi" {
		t.Fatalf("ECHO = %+v", r)
	}
}

func TestSetGetDel(t *testing.T) {
	h := newHarness(t)
	h.dispatch(t, "SET", "k", "v")
	if r := h.dispatch(t, "GET", "k"); string(r.Bulk) != "v" {
		t.Fatalf("GET = %+v", r)
	}
	if r := h.dispatch(t, "DEL", "k"); r.Int != 1 {
		t.Fatalf("DEL = %+v", r)
	}
	if r := h.dispatch(t, "GET", "k"); !r.Null {
		t.Fatalf("GET after DEL = %+v, want null", r)
	}
}

func TestIncrByOnMissingKey(t *testing.T) {
	h := newHarness(t)
	if r := h.dispatch(t, "INCRBY", "counter", "5"); r.Int != 5 {
		t.Fatalf("INCRBY = %+v", r)
	}
	if r := h.dispatch(t, "INCR", "counter"); r.Int != 6 {
		t.Fatalf("INCR = %+v", r)
	}
}

func TestWrongTypeError(t *testing.T) {
	h := newHarness(t)
	h.dispatch(t, "LPUSH", "list", "a")
	if r := h.dispatch(t, "GET", "list"); r.Type != '-' {
		t.Fatalf("GET on a list = %+v, want error", r)
	}
}

func TestListPushPopRange(t *testing.T) {
	h := newHarness(t)
	h.dispatch(t, "RPUSH", "l", "a", "b", "c")
	if r := h.dispatch(t, "LLEN", "l"); r.Int != 3 {
		t.Fatalf("LLEN = %+v", r)
	}
	if r := h.dispatch(t, "LPOP", "l"); string(r.Bulk) != "a" {
		t.Fatalf("LPOP = %+v", r)
	}
	r := h.dispatch(t, "LRANGE", "l", "0", "-1")
	if len(r.Array) != 2 || string(r.Array[0].Bulk) != "b" || string(r.Array[1].Bulk) != "c" {
		t.Fatalf("LRANGE = %+v", r)
	}
}

func TestBlockingPopReturnsImmediatelyWhenDataPresent(t *testing.T) {
	h := newHarness(t)
	h.dispatch(t, "RPUSH", "q", "x")
	r := h.dispatch(t, "BLPOP", "q", "0")
	if len(r.Array) != 2 || string(r.Array[0].Bulk) != "q" || string(r.Array[1].Bulk) != "x" {
		t.Fatalf("BLPOP = %+v", r)
	}
}

func TestZSetBasics(t *testing.T) {
	h := newHarness(t)
	h.dispatch(t, "ZADD", "z", "1", "a")
	h.dispatch(t, "ZADD", "z", "2", "b")
	if r := h.dispatch(t, "ZCARD", "z"); r.Int != 2 {
		t.Fatalf("ZCARD = %+v", r)
	}
	if r := h.dispatch(t, "ZRANK", "z", "b"); r.Int != 1 {
		t.Fatalf("ZRANK = %+v", r)
	}
}

func TestPubSubDeliversToSubscriber(t *testing.T) {
	h := newHarness(t)

	// SUBSCRIBE replies with a confirmation frame.
	h.dispatch(t, "SUBSCRIBE", "news")

	// PUBLISH on a second, throwaway connection. Its own reply (the
	// receiver count) arrives on the publisher's socket; the message
	// itself arrives independently on the subscriber's, via Deliver.
	pubServer, pubClient := net.Pipe()
	defer pubServer.Close()
	defer pubClient.Close()
	pubConn := newConn(pubServer, nil)

	msgDone := make(chan resp.Reply, 1)
	go func() {
		r, err := resp.ReadReply(h.cbr)
		if err == nil {
			msgDone <- r
		}
	}()

	go func() {
		_, _ = resp.ReadReply(bufio.NewReader(pubClient))
	}()
	h.srv.Dispatch(context.Background(), pubConn, []string{"PUBLISH", "news", "hello"})

	select {
	case r := <-msgDone:
		if len(r.Array) != 3 || string(r.Array[0].Bulk) != "message" || string(r.Array[2].Bulk) != "hello" {
			t.Fatalf("message frame = %+v", r)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published message")
	}
}

func TestMultiExecCommitsQueuedWrites(t *testing.T) {
	h := newHarness(t)
	h.dispatch(t, "MULTI")
	if r := h.dispatch(t, "SET", "a", "1"); r.Str != "QUEUED" {
		t.Fatalf("queued SET = %+v", r)
	}
	if r := h.dispatch(t, "INCR", "a"); r.Str != "QUEUED" {
		t.Fatalf("queued INCR = %+v", r)
	}
	r := h.dispatch(t, "EXEC")
	if len(r.Array) != 2 {
		t.Fatalf("EXEC reply = %+v, want 2 elements", r)
	}
	if r := h.dispatch(t, "GET", "a"); string(r.Bulk) != "2" {
		t.Fatalf("GET after EXEC = %+v", r)
	}
}

func TestMultiExecUnsupportedCommandDoesNotAbortBatch(t *testing.T) {
	h := newHarness(t)
	h.dispatch(t, "MULTI")
	h.dispatch(t, "SET", "a", "1")
	h.dispatch(t, "KEYS", "*")
	h.dispatch(t, "SET", "b", "2")
	r := h.dispatch(t, "EXEC")
	if len(r.Array) != 3 {
		t.Fatalf("EXEC reply = %+v, want 3 elements", r)
	}
	if r.Array[1].Type != '-' {
		t.Fatalf("KEYS inside MULTI = %+v, want error", r.Array[1])
	}
	if r := h.dispatch(t, "GET", "b"); string(r.Bulk) != "2" {
		t.Fatalf("GET b after EXEC = %+v", r)
	}
}

func TestWatchAbortsExecOnConflictingWrite(t *testing.T) {
	h := newHarness(t)
	h.dispatch(t, "SET", "w", "1")
	h.dispatch(t, "WATCH", "w")
	h.dispatch(t, "MULTI")
	h.dispatch(t, "SET", "w", "2")

	// A second connection mutates the watched key before EXEC runs.
	otherServer, otherClient := net.Pipe()
	defer otherServer.Close()
	defer otherClient.Close()
	other := newConn(otherServer, nil)
	go func() { _, _ = resp.ReadReply(bufio.NewReader(otherClient)) }()
	h.srv.Dispatch(context.Background(), other, []string{"SET", "w", "999"})

	r := h.dispatch(t, "EXEC")
	if !r.Null {
		t.Fatalf("EXEC after conflicting write = %+v, want null array", r)
	}
	if r := h.dispatch(t, "GET", "w"); string(r.Bulk) != "999" {
		t.Fatalf("GET w = %+v, want unchanged by the aborted transaction", r)
	}
}

func TestDiscardClearsQueuedCommands(t *testing.T) {
	h := newHarness(t)
	h.dispatch(t, "MULTI")
	h.dispatch(t, "SET", "x", "1")
	h.dispatch(t, "DISCARD")
	if r := h.dispatch(t, "GET", "x"); !r.Null {
		t.Fatalf("GET x after DISCARD = %+v, want null", r)
	}
}

func TestReplicatedWriteIsPropagated(t *testing.T) {
	h := newHarness(t)
	before := h.srv.Repl.MasterOffset()
	h.dispatch(t, "SET", "k", "v")
	if after := h.srv.Repl.MasterOffset(); after <= before {
		t.Fatalf("MasterOffset did not advance: before=%d after=%d", before, after)
	}
}

func TestReplconfAndInfo(t *testing.T) {
	h := newHarness(t)
	h.dispatch(t, "REPLCONF", "listening-port", "6380")
	r := h.dispatch(t, "INFO")
	if string(r.Bulk) == "" {
		t.Fatal("INFO returned empty body")
	}
}
