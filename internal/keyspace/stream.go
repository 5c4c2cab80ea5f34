package keyspace

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrStreamIDOrder mirrors Redis's XADD ordering error message.
	ErrStreamIDOrder = errors.New("ERR The ID specified in XADD is equal or smaller than the target stream top item")
	// ErrStreamIDZero mirrors Redis's rejection of 0-0.
	ErrStreamIDZero = errors.New("ERR The ID specified in XADD must be greater than 0-0")
	// ErrInvalidStreamID is returned for a malformed id argument.
	ErrInvalidStreamID = errors.New("ERR Invalid stream ID specified as stream command argument")
)

func formatStreamID(id StreamID) string {
	return strconv.FormatInt(id.Ms, 10) + "-" + strconv.FormatInt(id.Seq, 10)
}

// ParseStreamID parses an "ms-seq" id; a bare "ms" parses as (ms, 0).
func ParseStreamID(s string) (StreamID, error) {
	parts := strings.SplitN(s, "-", 2)
	ms, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return StreamID{}, ErrInvalidStreamID
	}
	if len(parts) == 1 {
		return StreamID{Ms: ms}, nil
	}
	seq, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return StreamID{}, ErrInvalidStreamID
	}
	return StreamID{Ms: ms, Seq: seq}, nil
}

// XAdd appends a new entry to the stream at key.
//
// idSpec is one of:
//   - "*": both ms and seq are auto-generated from nowMs and the
//     stream's last id.
//   - "<ms>-*": seq is auto-generated.
//   - "<ms>-<seq>": fully explicit; must exceed the current last id.
func (ks *Keyspace) XAdd(key string, idSpec string, fields []Field, nowMs int64) (StreamID, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.XAddLocked(key, idSpec, fields, nowMs)
}

// XAddLocked is XAdd assuming the caller already holds ks.mu. Exported
// for the stream blocking coordinator, which must append and drain
// XREAD BLOCK waiters inside one critical section.
func (ks *Keyspace) XAddLocked(key string, idSpec string, fields []Field, nowMs int64) (StreamID, error) {
	e, exists := ks.lockedGet(key)
	if exists && e.kind != KindStream {
		return StreamID{}, ErrWrongType
	}
	if !exists {
		e = &entry{kind: KindStream}
	}

	var lastID StreamID
	hasLast := len(e.streams) > 0
	if hasLast {
		lastID = e.streams[len(e.streams)-1].ID
	}

	id, err := resolveStreamID(idSpec, lastID, hasLast, nowMs)
	if err != nil {
		return StreamID{}, err
	}
	if id.Ms == 0 && id.Seq == 0 {
		return StreamID{}, ErrStreamIDZero
	}
	if hasLast && !lastID.Less(id) {
		return StreamID{}, ErrStreamIDOrder
	}

	e.streams = append(e.streams, StreamEntry{ID: id, Fields: fields})
	e.version++
	ks.m[key] = e
	return id, nil
}

func resolveStreamID(spec string, lastID StreamID, hasLast bool, nowMs int64) (StreamID, error) {
	if spec == "*" {
		ms := nowMs
		if hasLast && lastID.Ms > ms {
			ms = lastID.Ms
		}
		seq := int64(0)
		if hasLast && ms == lastID.Ms {
			seq = lastID.Seq + 1
		}
		return StreamID{Ms: ms, Seq: seq}, nil
	}
	if strings.HasSuffix(spec, "-*") {
		msStr := strings.TrimSuffix(spec, "-*")
		ms, err := strconv.ParseInt(msStr, 10, 64)
		if err != nil {
			return StreamID{}, ErrInvalidStreamID
		}
		seq := int64(0)
		if hasLast && ms == lastID.Ms {
			seq = lastID.Seq + 1
		}
		return StreamID{Ms: ms, Seq: seq}, nil
	}
	return ParseStreamID(spec)
}

// XLen returns the number of entries in the stream at key.
func (ks *Keyspace) XLen(key string) (int, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.XLenLocked(key)
}

// XLenLocked is XLen for a caller already holding ks.Lock().
func (ks *Keyspace) XLenLocked(key string) (int, error) {
	e, exists := ks.lockedGet(key)
	if !exists {
		return 0, nil
	}
	if e.kind != KindStream {
		return 0, ErrWrongType
	}
	return len(e.streams), nil
}

// LastStreamID returns the id of the most recently added entry, and
// whether the stream exists and is non-empty.
func (ks *Keyspace) LastStreamID(key string) (StreamID, bool) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	e, exists := ks.lockedGet(key)
	if !exists || e.kind != KindStream || len(e.streams) == 0 {
		return StreamID{}, false
	}
	return e.streams[len(e.streams)-1].ID, true
}

// EntriesAfterLocked returns entries with id strictly greater than
// after, assuming the caller holds ks.mu. Used by XREAD and XREAD
// BLOCK, neither of which needs the full range-bound parsing XRANGE
// does.
func (ks *Keyspace) EntriesAfterLocked(key string, after StreamID) ([]StreamEntry, error) {
	e, exists := ks.lockedGet(key)
	if !exists {
		return nil, nil
	}
	if e.kind != KindStream {
		return nil, ErrWrongType
	}
	var out []StreamEntry
	for _, se := range e.streams {
		if after.Less(se.ID) {
			out = append(out, se)
		}
	}
	return out, nil
}

// XRange returns entries with id in [start, end], inclusive. "-" and
// "+" denote the minimum and maximum ids; a partial "ms" bound expands
// to (ms, 0) for start or (ms, math.MaxInt64) for end.
func (ks *Keyspace) XRange(key string, startSpec, endSpec string, reverse bool) ([]StreamEntry, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.XRangeLocked(key, startSpec, endSpec, reverse)
}

// XRangeLocked is XRange for a caller already holding ks.Lock().
func (ks *Keyspace) XRangeLocked(key string, startSpec, endSpec string, reverse bool) ([]StreamEntry, error) {
	e, exists := ks.lockedGet(key)
	if !exists {
		return nil, nil
	}
	if e.kind != KindStream {
		return nil, ErrWrongType
	}
	start, err := parseRangeBound(startSpec, false)
	if err != nil {
		return nil, err
	}
	end, err := parseRangeBound(endSpec, true)
	if err != nil {
		return nil, err
	}
	var out []StreamEntry
	for _, se := range e.streams {
		if !se.ID.Less(start) && !end.Less(se.ID) {
			out = append(out, se)
		}
	}
	if reverse {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}

func parseRangeBound(spec string, isEnd bool) (StreamID, error) {
	switch spec {
	case "-":
		return StreamID{Ms: 0, Seq: 0}, nil
	case "+":
		return StreamID{Ms: 1<<63 - 1, Seq: 1<<63 - 1}, nil
	}
	if !strings.Contains(spec, "-") {
		ms, err := strconv.ParseInt(spec, 10, 64)
		if err != nil {
			return StreamID{}, fmt.Errorf("%w", ErrInvalidStreamID)
		}
		if isEnd {
			return StreamID{Ms: ms, Seq: 1<<63 - 1}, nil
		}
		return StreamID{Ms: ms, Seq: 0}, nil
	}
	return ParseStreamID(spec)
}
