package server

import (
	"bufio"
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/alwaysvivek/redis-go/internal/keyspace"
	"github.com/alwaysvivek/redis-go/internal/resp"
)

func cmdMulti(_ context.Context, s *Server, c *Conn, _ []string) bool {
	s.reply(c, func() {
		if err := c.txn.Multi(); err != nil {
			_ = resp.WriteError(c.bw, err.Error())
			return
		}
		_ = resp.WriteSimpleString(c.bw, "OK")
	})
	return false
}

func cmdDiscard(_ context.Context, s *Server, c *Conn, _ []string) bool {
	s.reply(c, func() {
		if err := c.txn.Discard(); err != nil {
			_ = resp.WriteError(c.bw, err.Error())
			return
		}
		_ = resp.WriteSimpleString(c.bw, "OK")
	})
	return false
}

func cmdWatch(_ context.Context, s *Server, c *Conn, args []string) bool {
	for _, key := range args[1:] {
		c.txn.Watch(key, s.KS.Version(key))
	}
	s.reply(c, func() { _ = resp.WriteSimpleString(c.bw, "OK") })
	return false
}

func cmdUnwatch(_ context.Context, s *Server, c *Conn, _ []string) bool {
	c.txn.Unwatch()
	s.reply(c, func() { _ = resp.WriteSimpleString(c.bw, "OK") })
	return false
}

// cmdExec runs the queued batch under the keyspace mutex held for its
// entire duration: the WATCH version check and every queued command's
// execution happen inside the same critical section, which is what
// makes the batch atomic per spec.md invariant 5. Queued commands are
// executed through txCommandTable's lock-free handlers rather than the
// self-locking ones in commandTable, since Keyspace.mu is not
// reentrant.
func cmdExec(_ context.Context, s *Server, c *Conn, _ []string) bool {
	watched := make(map[string]uint64, len(c.txn.Watched))
	for k, v := range c.txn.Watched {
		watched[k] = v
	}
	queued, err := c.txn.BeginExec()
	if err != nil {
		s.reply(c, func() { _ = resp.WriteError(c.bw, err.Error()) })
		return false
	}

	writes := make([]func(*bufio.Writer), len(queued))

	s.KS.Lock()
	for k, v := range watched {
		if s.KS.VersionLocked(k) != v {
			s.KS.Unlock()
			s.reply(c, func() { _ = resp.WriteNullArray(c.bw) })
			return false
		}
	}

	// Propagating each write right after it runs, still inside this
	// critical section, keeps the batch's effect on the keyspace and
	// its effect on the replication stream in the same order — the
	// same invariant dispatchAtomic enforces for ordinary commands.
	isMaster := s.Repl.IsMaster()
	for i, cmdArgs := range queued {
		write, propagate := execQueued(s, cmdArgs)
		writes[i] = write
		if propagate && isMaster {
			s.Repl.Propagate(cmdArgs)
		}
	}
	s.KS.Unlock()

	s.reply(c, func() {
		_ = resp.WriteArrayHeader(c.bw, len(writes))
		for _, write := range writes {
			write(c.bw)
		}
	})
	return false
}

// execQueued looks up args' command in txCommandTable and runs it.
// Callers must already hold s.KS.Lock(). Commands with no entry (pub/
// sub management, replication, nested transaction control — none of
// which make sense mid-batch) reply with an error without aborting the
// rest of the batch, per spec.md §4.6.
func execQueued(s *Server, args []string) (func(*bufio.Writer), bool) {
	name := strings.ToUpper(args[0])
	fn, ok := txCommandTable[name]
	if !ok {
		return func(w *bufio.Writer) {
			_ = resp.WriteError(w, "ERR '"+name+"' is not supported inside MULTI/EXEC")
		}, false
	}
	return fn(s, args)
}

// txCommandTable mirrors commandTable's command set using the
// Keyspace's *Locked methods, so each handler runs to completion
// before cmdExec releases ks.Lock(). Blocking commands degrade to a
// single non-blocking attempt (real Redis does the same inside
// MULTI), and commands with no natural meaning mid-batch are omitted.
var txCommandTable = map[string]func(s *Server, args []string) (func(*bufio.Writer), bool){
	"PING": func(_ *Server, args []string) (func(*bufio.Writer), bool) {
		return func(w *bufio.Writer) {
			if len(args) >= 2 {
				_ = resp.WriteBulkString(w, args[1])
				return
			}
			_ = resp.WriteSimpleString(w, "PONG")
		}, false
	},
	"ECHO": func(_ *Server, args []string) (func(*bufio.Writer), bool) {
		return func(w *bufio.Writer) { _ = resp.WriteBulkString(w, args[1]) }, false
	},
	"SET":      txSet,
	"GET":      txGet,
	"DEL":      txDel,
	"EXISTS":   txExists,
	"TYPE":     txType,
	"KEYS":     txKeys,
	"INCR":     txIncr,
	"INCRBY":   txIncrBy,
	"RENAME":   txRename,
	"RENAMENX": txRenameNX,
	"PERSIST":  txPersist,
	"PTTL":     txPTTL,
	"TTL":      txTTL,
	"DBSIZE":   txDBSize,

	"LPUSH":  txLPush,
	"RPUSH":  txRPush,
	"LPOP":   txLPop,
	"RPOP":   txRPop,
	"LLEN":   txLLen,
	"LRANGE": txLRange,
	"LINDEX": txLIndex,
	"LSET":   txLSet,
	"BLPOP":  txBLPop,
	"BRPOP":  txBRPop,

	"ZADD":   txZAdd,
	"ZSCORE": txZScore,
	"ZRANK":  txZRank,
	"ZRANGE": txZRange,
	"ZCARD":  txZCard,
	"ZREM":   txZRem,

	"XADD":      txXAdd,
	"XLEN":      txXLen,
	"XRANGE":    txXRange,
	"XREVRANGE": txXRevRange,

	"PUBLISH": txPublish,
}

func txSet(s *Server, args []string) (func(*bufio.Writer), bool) {
	var opts keyspace.SetOptions
	for i := 3; i < len(args); i++ {
		switch strings.ToUpper(args[i]) {
		case "EX":
			if i+1 >= len(args) {
				return errWriter(errSyntax), false
			}
			n, err := strconv.ParseInt(args[i+1], 10, 64)
			if err != nil {
				return errWriter(errSyntax), false
			}
			opts.HasExpiry = true
			opts.ExpireAt = time.Now().Add(time.Duration(n) * time.Second)
			i++
		case "PX":
			if i+1 >= len(args) {
				return errWriter(errSyntax), false
			}
			n, err := strconv.ParseInt(args[i+1], 10, 64)
			if err != nil {
				return errWriter(errSyntax), false
			}
			opts.HasExpiry = true
			opts.ExpireAt = time.Now().Add(time.Duration(n) * time.Millisecond)
			i++
		default:
			return errWriter(errSyntax), false
		}
	}
	s.KS.SetLocked(args[1], args[2], opts)
	return okWriter(), true
}

func txGet(s *Server, args []string) (func(*bufio.Writer), bool) {
	v, ok, err := s.KS.GetLocked(args[1])
	return func(w *bufio.Writer) {
		if err != nil {
			_ = resp.WriteError(w, err.Error())
			return
		}
		if !ok {
			_ = resp.WriteNullBulk(w)
			return
		}
		_ = resp.WriteBulkString(w, v)
	}, false
}

func txDel(s *Server, args []string) (func(*bufio.Writer), bool) {
	n := s.KS.DelLocked(args[1:]...)
	return intWriter(int64(n)), n > 0
}

func txExists(s *Server, args []string) (func(*bufio.Writer), bool) {
	ok := s.KS.ExistsLocked(args[1])
	n := int64(0)
	if ok {
		n = 1
	}
	return intWriter(n), false
}

func txType(s *Server, args []string) (func(*bufio.Writer), bool) {
	t := s.KS.TypeLocked(args[1])
	return simpleWriter(t), false
}

func txKeys(s *Server, args []string) (func(*bufio.Writer), bool) {
	// Keys() takes ks.mu itself; calling it here would deadlock since
	// EXEC already holds the lock, so KEYS replies with an error instead.
	return func(w *bufio.Writer) {
		_ = resp.WriteError(w, "ERR KEYS is not supported inside MULTI/EXEC")
	}, false
}

func txIncr(s *Server, args []string) (func(*bufio.Writer), bool) {
	return txIncrByDelta(s, args[1], 1)
}

func txIncrBy(s *Server, args []string) (func(*bufio.Writer), bool) {
	delta, err := strconv.ParseInt(args[2], 10, 64)
	if err != nil {
		return errWriter(keyspace.ErrNotInteger), false
	}
	return txIncrByDelta(s, args[1], delta)
}

func txIncrByDelta(s *Server, key string, delta int64) (func(*bufio.Writer), bool) {
	n, err := s.KS.IncrByLocked(key, delta)
	return func(w *bufio.Writer) {
		if err != nil {
			_ = resp.WriteError(w, err.Error())
			return
		}
		_ = resp.WriteInteger(w, n)
	}, err == nil
}

func txRename(s *Server, args []string) (func(*bufio.Writer), bool) {
	return func(w *bufio.Writer) {
		_ = resp.WriteError(w, "ERR RENAME is not supported inside MULTI/EXEC")
	}, false
}

func txRenameNX(s *Server, args []string) (func(*bufio.Writer), bool) {
	return func(w *bufio.Writer) {
		_ = resp.WriteError(w, "ERR RENAMENX is not supported inside MULTI/EXEC")
	}, false
}

func txPersist(s *Server, args []string) (func(*bufio.Writer), bool) {
	return func(w *bufio.Writer) {
		_ = resp.WriteError(w, "ERR PERSIST is not supported inside MULTI/EXEC")
	}, false
}

func txPTTL(s *Server, args []string) (func(*bufio.Writer), bool) {
	return func(w *bufio.Writer) {
		_ = resp.WriteError(w, "ERR PTTL is not supported inside MULTI/EXEC")
	}, false
}

func txTTL(s *Server, args []string) (func(*bufio.Writer), bool) {
	return func(w *bufio.Writer) {
		_ = resp.WriteError(w, "ERR TTL is not supported inside MULTI/EXEC")
	}, false
}

func txDBSize(s *Server, args []string) (func(*bufio.Writer), bool) {
	return func(w *bufio.Writer) {
		_ = resp.WriteError(w, "ERR DBSIZE is not supported inside MULTI/EXEC")
	}, false
}

func txLPush(s *Server, args []string) (func(*bufio.Writer), bool) {
	n, err := s.KS.PushLocked(args[1], args[2:], true)
	return errOrInt(err, int64(n)), err == nil
}

func txRPush(s *Server, args []string) (func(*bufio.Writer), bool) {
	n, err := s.KS.PushLocked(args[1], args[2:], false)
	return errOrInt(err, int64(n)), err == nil
}

func txLPop(s *Server, args []string) (func(*bufio.Writer), bool) {
	return txListPop(s, args, true)
}

func txRPop(s *Server, args []string) (func(*bufio.Writer), bool) {
	return txListPop(s, args, false)
}

func txListPop(s *Server, args []string, head bool) (func(*bufio.Writer), bool) {
	single := len(args) == 2
	count := 1
	if !single {
		n, err := strconv.Atoi(args[2])
		if err != nil || n < 0 {
			return errWriter(keyspace.ErrNotInteger), false
		}
		count = n
	}
	items, err := s.KS.PopLocked(args[1], count, head)
	return func(w *bufio.Writer) {
		if err != nil {
			_ = resp.WriteError(w, err.Error())
			return
		}
		if single {
			if len(items) == 0 {
				_ = resp.WriteNullBulk(w)
				return
			}
			_ = resp.WriteBulkString(w, items[0])
			return
		}
		_ = resp.WriteArrayHeader(w, len(items))
		for _, it := range items {
			_ = resp.WriteBulkString(w, it)
		}
	}, err == nil && len(items) > 0
}

func txLLen(s *Server, args []string) (func(*bufio.Writer), bool) {
	n, err := s.KS.LenLocked(args[1])
	return errOrInt(err, int64(n)), false
}

func txLRange(s *Server, args []string) (func(*bufio.Writer), bool) {
	start, err1 := strconv.Atoi(args[2])
	stop, err2 := strconv.Atoi(args[3])
	if err1 != nil || err2 != nil {
		return errWriter(errSyntax), false
	}
	items, err := s.KS.RangeLocked(args[1], start, stop)
	return func(w *bufio.Writer) {
		if err != nil {
			_ = resp.WriteError(w, err.Error())
			return
		}
		_ = resp.WriteArrayHeader(w, len(items))
		for _, it := range items {
			_ = resp.WriteBulkString(w, it)
		}
	}, false
}

func txLIndex(s *Server, args []string) (func(*bufio.Writer), bool) {
	idx, err := strconv.Atoi(args[2])
	if err != nil {
		return errWriter(errSyntax), false
	}
	v, ok, kerr := s.KS.IndexLocked(args[1], idx)
	return func(w *bufio.Writer) {
		if kerr != nil {
			_ = resp.WriteError(w, kerr.Error())
			return
		}
		if !ok {
			_ = resp.WriteNullBulk(w)
			return
		}
		_ = resp.WriteBulkString(w, v)
	}, false
}

func txLSet(s *Server, args []string) (func(*bufio.Writer), bool) {
	idx, err := strconv.Atoi(args[2])
	if err != nil {
		return errWriter(errSyntax), false
	}
	kerr := s.KS.SetIndexLocked(args[1], idx, args[3])
	return func(w *bufio.Writer) {
		if kerr != nil {
			_ = resp.WriteError(w, kerr.Error())
			return
		}
		_ = resp.WriteSimpleString(w, "OK")
	}, kerr == nil
}

// txBLPop and txBRPop degrade BLPOP/BRPOP to a single non-blocking
// attempt: parking a worker mid-batch while holding ks.Lock() would
// stall every other connection, so queued blocking pops behave like
// real Redis's documented MULTI/EXEC semantics for them (immediate,
// non-blocking).
func txBLPop(s *Server, args []string) (func(*bufio.Writer), bool) {
	return txBlockingPopAttempt(s, args, true)
}

func txBRPop(s *Server, args []string) (func(*bufio.Writer), bool) {
	return txBlockingPopAttempt(s, args, false)
}

func txBlockingPopAttempt(s *Server, args []string, head bool) (func(*bufio.Writer), bool) {
	keys := args[1 : len(args)-1]
	for _, key := range keys {
		items, err := s.KS.PopLocked(key, 1, head)
		if err == nil && len(items) > 0 {
			return func(w *bufio.Writer) {
				_ = resp.WriteArrayHeader(w, 2)
				_ = resp.WriteBulkString(w, key)
				_ = resp.WriteBulkString(w, items[0])
			}, true
		}
	}
	return func(w *bufio.Writer) { _ = resp.WriteNullArray(w) }, false
}

func txZAdd(s *Server, args []string) (func(*bufio.Writer), bool) {
	rest := args[2:]
	if len(rest)%2 != 0 || len(rest) == 0 {
		return errWriter(wrongArgs("ZADD")), false
	}
	items := make([]keyspace.ZItem, 0, len(rest)/2)
	for i := 0; i < len(rest); i += 2 {
		score, err := strconv.ParseFloat(rest[i], 64)
		if err != nil {
			return errWriter(errSyntax), false
		}
		items = append(items, keyspace.ZItem{Score: score, Member: rest[i+1]})
	}
	n, err := s.KS.ZAddLocked(args[1], items)
	return errOrInt(err, int64(n)), err == nil
}

func txZScore(s *Server, args []string) (func(*bufio.Writer), bool) {
	score, ok, err := s.KS.ZScoreLocked(args[1], args[2])
	return func(w *bufio.Writer) {
		if err != nil {
			_ = resp.WriteError(w, err.Error())
			return
		}
		if !ok {
			_ = resp.WriteNullBulk(w)
			return
		}
		_ = resp.WriteBulkString(w, strconv.FormatFloat(score, 'f', -1, 64))
	}, false
}

func txZRank(s *Server, args []string) (func(*bufio.Writer), bool) {
	rank, ok, err := s.KS.ZRankLocked(args[1], args[2])
	return func(w *bufio.Writer) {
		if err != nil {
			_ = resp.WriteError(w, err.Error())
			return
		}
		if !ok {
			_ = resp.WriteNullBulk(w)
			return
		}
		_ = resp.WriteInteger(w, int64(rank))
	}, false
}

func txZRange(s *Server, args []string) (func(*bufio.Writer), bool) {
	start, err1 := strconv.Atoi(args[2])
	stop, err2 := strconv.Atoi(args[3])
	if err1 != nil || err2 != nil {
		return errWriter(errSyntax), false
	}
	items, err := s.KS.ZRangeLocked(args[1], start, stop)
	return func(w *bufio.Writer) {
		if err != nil {
			_ = resp.WriteError(w, err.Error())
			return
		}
		_ = resp.WriteArrayHeader(w, len(items))
		for _, it := range items {
			_ = resp.WriteBulkString(w, it.Member)
		}
	}, false
}

func txZCard(s *Server, args []string) (func(*bufio.Writer), bool) {
	n, err := s.KS.ZCardLocked(args[1])
	return errOrInt(err, int64(n)), false
}

func txZRem(s *Server, args []string) (func(*bufio.Writer), bool) {
	n, err := s.KS.ZRemLocked(args[1], args[2:])
	return errOrInt(err, int64(n)), err == nil && n > 0
}

func txXAdd(s *Server, args []string) (func(*bufio.Writer), bool) {
	fieldArgs := args[3:]
	if len(fieldArgs)%2 != 0 || len(fieldArgs) == 0 {
		return errWriter(wrongArgs("XADD")), false
	}
	fields := make([]keyspace.Field, 0, len(fieldArgs)/2)
	for i := 0; i < len(fieldArgs); i += 2 {
		fields = append(fields, keyspace.Field{Name: fieldArgs[i], Value: fieldArgs[i+1]})
	}
	id, err := s.KS.XAddLocked(args[1], args[2], fields, time.Now().UnixMilli())
	return func(w *bufio.Writer) {
		if err != nil {
			_ = resp.WriteError(w, err.Error())
			return
		}
		_ = resp.WriteBulkString(w, id.String())
	}, err == nil
}

func txXLen(s *Server, args []string) (func(*bufio.Writer), bool) {
	n, err := s.KS.XLenLocked(args[1])
	return errOrInt(err, int64(n)), false
}

func txXRange(s *Server, args []string) (func(*bufio.Writer), bool) {
	return txStreamRange(s, args, false)
}

func txXRevRange(s *Server, args []string) (func(*bufio.Writer), bool) {
	return txStreamRange(s, args, true)
}

func txStreamRange(s *Server, args []string, reverse bool) (func(*bufio.Writer), bool) {
	start, end := args[2], args[3]
	if reverse {
		start, end = args[3], args[2]
	}
	entries, err := s.KS.XRangeLocked(args[1], start, end, reverse)
	return func(w *bufio.Writer) {
		if err != nil {
			_ = resp.WriteError(w, err.Error())
			return
		}
		_ = resp.WriteArrayHeader(w, len(entries))
		for _, e := range entries {
			_ = resp.WriteArrayHeader(w, 2)
			_ = resp.WriteBulkString(w, e.ID.String())
			_ = resp.WriteArrayHeader(w, len(e.Fields)*2)
			for _, f := range e.Fields {
				_ = resp.WriteBulkString(w, f.Name)
				_ = resp.WriteBulkString(w, f.Value)
			}
		}
	}, false
}

// txPublish runs PUBLISH while ks.Lock() is held. This still respects
// the K -> P acquisition order from spec.md §5 since pub/sub's own
// mutex is acquired, never the reverse.
func txPublish(s *Server, args []string) (func(*bufio.Writer), bool) {
	n := s.PS.Publish(args[1], args[2])
	return intWriter(int64(n)), false
}

func errWriter(err error) func(*bufio.Writer) {
	return func(w *bufio.Writer) { _ = resp.WriteError(w, err.Error()) }
}

func okWriter() func(*bufio.Writer) {
	return func(w *bufio.Writer) { _ = resp.WriteSimpleString(w, "OK") }
}

func intWriter(n int64) func(*bufio.Writer) {
	return func(w *bufio.Writer) { _ = resp.WriteInteger(w, n) }
}

func simpleWriter(s string) func(*bufio.Writer) {
	return func(w *bufio.Writer) { _ = resp.WriteSimpleString(w, s) }
}

func errOrInt(err error, n int64) func(*bufio.Writer) {
	if err != nil {
		return errWriter(err)
	}
	return intWriter(n)
}
