package server

import (
	"bufio"
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/alwaysvivek/redis-go/internal/replication"
	"github.com/alwaysvivek/redis-go/internal/resp"
	"github.com/alwaysvivek/redis-go/internal/txn"
)

// RunReplicaOf consumes the replication stream from an already
// handshaken master connection until it closes or ctx is cancelled,
// applying each command to this server's own keyspace and advancing
// processed_offset by the re-encoded byte length of each command —
// the replica always sees the identical wire form the master produced
// with resp.EncodeCommand, so re-deriving the length this way stays
// byte-exact with spec.md invariant 6 without needing the decoder to
// expose how many raw bytes it consumed.
func (s *Server) RunReplicaOf(ctx context.Context, mc *replication.MasterConn) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		args, err := resp.ReadCommand(mc.Reader)
		if err != nil {
			return
		}
		if len(args) == 0 {
			continue
		}
		strArgs := make([]string, len(args))
		for i, a := range args {
			strArgs[i] = string(a)
		}
		n := int64(len(resp.EncodeCommand(strArgs)))

		if strings.EqualFold(strArgs[0], "REPLCONF") && len(strArgs) >= 2 && strings.EqualFold(strArgs[1], "GETACK") {
			s.Repl.AdvanceProcessed(n)
			ack := resp.EncodeCommand([]string{"REPLCONF", "ACK", strconv.FormatInt(s.Repl.ProcessedOffset(), 10)})
			_, _ = mc.Conn.Write(ack)
			continue
		}

		s.applyReplicated(strArgs)
		s.Repl.AdvanceProcessed(n)
	}
}

// applyReplicated runs a propagated write command against the local
// keyspace through the same handler commandTable uses for ordinary
// clients, discarding whatever reply it would have produced — a
// replica executes the stream silently, per spec.md §4.8.
func (s *Server) applyReplicated(args []string) {
	cmd, ok := commandTable[strings.ToUpper(args[0])]
	if !ok {
		return
	}
	sink := &Conn{
		bw:         bufio.NewWriter(io.Discard),
		subscribed: make(map[string]bool),
		txn:        txn.NewState(),
	}
	cmd.fn(context.Background(), s, sink, args)
}
