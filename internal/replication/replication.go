// Package replication implements master/replica role state: the
// PSYNC handshake, write-command propagation, offset accounting, and
// WAIT quorum logic. Its registry mutex is acquired only after the
// keyspace mutex (order K -> R), matching the rest of the server.
package replication

import (
	"bufio"
	"crypto/rand"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/alwaysvivek/redis-go/internal/rdb"
	"github.com/alwaysvivek/redis-go/internal/resp"
)

const replidAlphabet = "0123456789abcdef"

// GenerateReplID returns a fresh 40-character replication id, the
// same length and alphabet real Redis uses.
func GenerateReplID() string {
	b := make([]byte, 40)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	for i := range b {
		b[i] = replidAlphabet[int(b[i])%len(replidAlphabet)]
	}
	return string(b)
}

// Replica is one connected downstream replica, tracked from the point
// it issues PSYNC.
type Replica struct {
	Conn       net.Conn
	Addr       string
	ListenPort int
	mu         sync.Mutex
	ackOffset  int64
}

func (r *Replica) setAck(offset int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if offset > r.ackOffset {
		r.ackOffset = offset
	}
}

// AckOffset returns the most recently reported acknowledged offset.
func (r *Replica) AckOffset() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ackOffset
}

// write sends already-framed RESP bytes to the replica's socket. It
// takes no lock of its own, and its callers (State.Propagate,
// State.RequestAcks) call it after releasing State.mu.
func (r *Replica) write(b []byte) error {
	_, err := r.Conn.Write(b)
	return err
}

// State is the shared replication role and bookkeeping for a single
// server instance: either a master tracking its replicas, or a
// replica tracking its master and its own consumption offset.
type State struct {
	mu sync.Mutex

	Role   string // "master" or "slave"
	ReplID string

	// master-side offset: total bytes of command stream ever produced.
	masterOffset int64
	replicas     []*Replica

	// replica-side fields.
	MasterHost      string
	MasterPort      int
	processedOffset int64
}

// NewMaster returns replication state for a server acting as master
// from startup (no --replicaof given).
func NewMaster() *State {
	return &State{Role: "master", ReplID: GenerateReplID()}
}

// NewReplica returns replication state for a server configured with
// --replicaof host port.
func NewReplica(host string, port int) *State {
	return &State{Role: "slave", ReplID: GenerateReplID(), MasterHost: host, MasterPort: port}
}

// IsMaster reports whether this instance currently acts as a master.
func (s *State) IsMaster() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Role == "master"
}

// RegisterReplica adds a connection that has just completed PSYNC.
func (s *State) RegisterReplica(conn net.Conn, listenPort int) *Replica {
	r := &Replica{Conn: conn, Addr: conn.RemoteAddr().String(), ListenPort: listenPort}
	s.mu.Lock()
	s.replicas = append(s.replicas, r)
	s.mu.Unlock()
	return r
}

// RemoveReplica drops a replica whose connection has closed.
func (s *State) RemoveReplica(r *Replica) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cand := range s.replicas {
		if cand == r {
			s.replicas = append(s.replicas[:i], s.replicas[i+1:]...)
			return
		}
	}
}

// ConnectedReplicas returns a snapshot of the currently registered
// replicas, for WAIT and INFO replication.
func (s *State) ConnectedReplicas() []*Replica {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Replica, len(s.replicas))
	copy(out, s.replicas)
	return out
}

// Ack records a REPLCONF ACK <offset> from a connected replica.
func (s *State) Ack(r *Replica, offset int64) {
	r.setAck(offset)
}

// MasterOffset returns the total bytes of write-command stream
// produced since startup.
func (s *State) MasterOffset() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.masterOffset
}

// Propagate encodes args as a RESP array and writes it to every
// connected replica, advancing the master offset by the encoded
// length regardless of whether any replica is currently attached —
// offset accounting must be byte-exact even with zero replicas.
func (s *State) Propagate(args []string) {
	payload := resp.EncodeCommand(args)

	s.mu.Lock()
	s.masterOffset += int64(len(payload))
	replicas := make([]*Replica, len(s.replicas))
	copy(replicas, s.replicas)
	s.mu.Unlock()

	for _, r := range replicas {
		_ = r.write(payload)
	}
}

// FullResyncHeader returns the "+FULLRESYNC <replid> <offset>\r\n"
// line a master sends a replica right after PSYNC.
func (s *State) FullResyncHeader() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("+FULLRESYNC %s %d\r\n", s.ReplID, s.masterOffset)
}

// SendSnapshot writes the RDB bulk payload a freshly attached replica
// expects right after the FULLRESYNC line: a raw bulk header with no
// trailing CRLF, followed by the payload bytes themselves.
func SendSnapshot(w *bufio.Writer, payload []byte) error {
	if err := resp.WriteRawBulkHeader(w, len(payload)); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	return w.Flush()
}

// WaitQuorum blocks until at least n replicas have acknowledged an
// offset >= target, or timeout elapses (0 = return immediately with
// whatever is already true). It returns the number of replicas that
// currently satisfy the target.
func (s *State) WaitQuorum(n int, target int64, timeout time.Duration) int {
	deadline := time.Now().Add(timeout)
	for {
		count := s.countAcked(target)
		if count >= n || timeout <= 0 {
			return count
		}
		if time.Now().After(deadline) {
			return count
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func (s *State) countAcked(target int64) int {
	n := 0
	for _, r := range s.ConnectedReplicas() {
		if r.AckOffset() >= target {
			n++
		}
	}
	return n
}

// RequestAcks sends REPLCONF GETACK * to every connected replica, used
// by WAIT to force a fresh ACK before checking the quorum.
func (s *State) RequestAcks() {
	getack := resp.EncodeCommand([]string{"REPLCONF", "GETACK", "*"})
	s.mu.Lock()
	s.masterOffset += int64(len(getack))
	replicas := make([]*Replica, len(s.replicas))
	copy(replicas, s.replicas)
	s.mu.Unlock()
	for _, r := range replicas {
		_ = r.write(getack)
	}
}

// ProcessedOffset returns how many stream bytes a replica has consumed
// from its master so far.
func (s *State) ProcessedOffset() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processedOffset
}

// AdvanceProcessed records that a replica consumed n more bytes of the
// replication stream from its master.
func (s *State) AdvanceProcessed(n int64) {
	s.mu.Lock()
	s.processedOffset += n
	s.mu.Unlock()
}

// Info renders the "# Replication" section of the INFO command.
func (s *State) Info() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Role == "master" {
		return fmt.Sprintf(
			"# Replication\r\nrole:master\r\nconnected_slaves:%d\r\nmaster_replid:%s\r\nmaster_repl_offset:%d\r\n",
			len(s.replicas), s.ReplID, s.masterOffset,
		)
	}
	return fmt.Sprintf(
		"# Replication\r\nrole:slave\r\nmaster_host:%s\r\nmaster_port:%d\r\nmaster_replid:%s\r\nmaster_repl_offset:%d\r\n",
		s.MasterHost, s.MasterPort, s.ReplID, s.processedOffset,
	)
}

// EmptySnapshot returns the RDB payload used when a replica attaches
// to a master that (for now) never persists to disk: a syntactically
// valid, empty database.
func EmptySnapshot() []byte {
	return rdb.Empty()
}
