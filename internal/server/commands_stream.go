package server

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/alwaysvivek/redis-go/internal/keyspace"
	"github.com/alwaysvivek/redis-go/internal/resp"
)

func cmdXAdd(_ context.Context, s *Server, c *Conn, args []string) bool {
	key, idSpec := args[1], args[2]
	fieldArgs := args[3:]
	if len(fieldArgs)%2 != 0 || len(fieldArgs) == 0 {
		writeErr(s, c, wrongArgs("XADD"))
		return false
	}
	fields := make([]keyspace.Field, 0, len(fieldArgs)/2)
	for i := 0; i < len(fieldArgs); i += 2 {
		fields = append(fields, keyspace.Field{Name: fieldArgs[i], Value: fieldArgs[i+1]})
	}

	id, err := s.StreamC.XAdd(s.KS, key, idSpec, fields, time.Now().UnixMilli())
	s.reply(c, func() {
		if err != nil {
			_ = resp.WriteError(c.bw, err.Error())
			return
		}
		_ = resp.WriteBulkString(c.bw, id.String())
	})
	return err == nil
}

func cmdXLen(_ context.Context, s *Server, c *Conn, args []string) bool {
	n, err := s.KS.XLen(args[1])
	s.reply(c, func() {
		if err != nil {
			_ = resp.WriteError(c.bw, err.Error())
			return
		}
		_ = resp.WriteInteger(c.bw, int64(n))
	})
	return false
}

func cmdXRange(_ context.Context, s *Server, c *Conn, args []string) bool {
	return doXRange(s, c, args, false)
}

func cmdXRevRange(_ context.Context, s *Server, c *Conn, args []string) bool {
	return doXRange(s, c, args, true)
}

func doXRange(s *Server, c *Conn, args []string, reverse bool) bool {
	start, end := args[2], args[3]
	if reverse {
		start, end = args[3], args[2]
	}
	entries, err := s.KS.XRange(args[1], start, end, reverse)
	s.reply(c, func() {
		if err != nil {
			_ = resp.WriteError(c.bw, err.Error())
			return
		}
		writeStreamEntries(c, entries)
	})
	return false
}

func writeStreamEntries(c *Conn, entries []keyspace.StreamEntry) {
	_ = resp.WriteArrayHeader(c.bw, len(entries))
	for _, e := range entries {
		_ = resp.WriteArrayHeader(c.bw, 2)
		_ = resp.WriteBulkString(c.bw, e.ID.String())
		_ = resp.WriteArrayHeader(c.bw, len(e.Fields)*2)
		for _, f := range e.Fields {
			_ = resp.WriteBulkString(c.bw, f.Name)
			_ = resp.WriteBulkString(c.bw, f.Value)
		}
	}
}

// cmdXRead implements "XREAD [BLOCK ms] STREAMS key... id...". id "$"
// resolves to the stream's current last id at call time, so a blocking
// read only ever wakes on entries appended after the call.
func cmdXRead(ctx context.Context, s *Server, c *Conn, args []string) bool {
	rest := args[1:]
	block := false
	var timeout time.Duration
	if len(rest) >= 2 && strings.EqualFold(rest[0], "BLOCK") {
		ms, err := strconv.ParseInt(rest[1], 10, 64)
		if err != nil || ms < 0 {
			writeErr(s, c, errSyntax)
			return false
		}
		block = true
		timeout = time.Duration(ms) * time.Millisecond
		rest = rest[2:]
	}
	if len(rest) < 3 || !strings.EqualFold(rest[0], "STREAMS") {
		writeErr(s, c, errSyntax)
		return false
	}
	rest = rest[1:]
	if len(rest)%2 != 0 {
		writeErr(s, c, errSyntax)
		return false
	}
	n := len(rest) / 2
	keys := rest[:n]
	idSpecs := rest[n:]

	after := make([]keyspace.StreamID, n)
	for i, spec := range idSpecs {
		if spec == "$" {
			last, ok := s.KS.LastStreamID(keys[i])
			if ok {
				after[i] = last
			}
			continue
		}
		id, err := keyspace.ParseStreamID(spec)
		if err != nil {
			writeErr(s, c, err)
			return false
		}
		after[i] = id
	}

	res, ok := s.StreamC.Read(ctx, s.KS, keys, after, block, timeout)
	s.reply(c, func() {
		if !ok {
			_ = resp.WriteNullArray(c.bw)
			return
		}
		_ = resp.WriteArrayHeader(c.bw, len(res))
		for _, k := range keys {
			entries, present := res[k]
			if !present {
				continue
			}
			_ = resp.WriteArrayHeader(c.bw, 2)
			_ = resp.WriteBulkString(c.bw, k)
			writeStreamEntries(c, entries)
		}
	})
	return false
}
