// Package keyspace implements the shared, mutex-guarded keyspace: typed
// entries (string, list, stream, sorted set) with lazy TTL expiration.
package keyspace

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrWrongType is returned when a command targets a key holding a
// different kind of value.
var ErrWrongType = errors.New("WRONGTYPE Operation against a key holding the wrong kind of value")

// Kind tags the type of value an Entry holds.
type Kind int

const (
	KindString Kind = iota
	KindList
	KindStream
	KindZSet
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindStream:
		return "stream"
	case KindZSet:
		return "zset"
	default:
		return "none"
	}
}

// StreamID is a strictly ordered (ms, seq) stream entry identifier.
type StreamID struct {
	Ms  int64
	Seq int64
}

// Less reports whether id precedes other in total order.
func (id StreamID) Less(other StreamID) bool {
	if id.Ms != other.Ms {
		return id.Ms < other.Ms
	}
	return id.Seq < other.Seq
}

func (id StreamID) String() string {
	return formatStreamID(id)
}

// Field is an ordered (name, value) pair within a stream entry.
type Field struct {
	Name  string
	Value string
}

// StreamEntry is one entry appended to a stream.
type StreamEntry struct {
	ID     StreamID
	Fields []Field
}

// ZItem is one member of a sorted set, used when returning ranked slices.
type ZItem struct {
	Member string
	Score  float64
}

// entry is one value in the keyspace: a tagged variant over the four
// supported kinds, plus an optional absolute expiry deadline and a
// modification counter used by WATCH to detect concurrent changes.
type entry struct {
	kind    Kind
	str     string
	list    []string
	streams []StreamEntry
	zmap    map[string]float64
	zorder  []ZItem // kept sorted by (score, member); rebuilt on mutation
	expiry  time.Time
	version uint64
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiry.IsZero() && !now.Before(e.expiry)
}

// Keyspace is the shared key-value map. A single mutex protects the map
// and every payload nested inside it; §5 of the spec requires this
// ordering to be acquired before the blocking coordinator's mutex or the
// pub/sub mutex, never after.
type Keyspace struct {
	mu sync.Mutex
	m  map[string]*entry
}

// New creates an empty Keyspace.
func New() *Keyspace {
	return &Keyspace{m: make(map[string]*entry)}
}

// lockedGet returns the live entry for key, deleting it first if it has
// expired. Caller must hold ks.mu.
func (ks *Keyspace) lockedGet(key string) (*entry, bool) {
	e, ok := ks.m[key]
	if !ok {
		return nil, false
	}
	if e.expired(time.Now()) {
		delete(ks.m, key)
		return nil, false
	}
	return e, true
}

// Exists reports whether key is present and unexpired.
func (ks *Keyspace) Exists(key string) bool {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.ExistsLocked(key)
}

// ExistsLocked is Exists for a caller already holding ks.Lock().
func (ks *Keyspace) ExistsLocked(key string) bool {
	_, ok := ks.lockedGet(key)
	return ok
}

// Type returns the kind name for key, or "none" if absent/expired.
func (ks *Keyspace) Type(key string) string {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.TypeLocked(key)
}

// TypeLocked is Type for a caller already holding ks.Lock().
func (ks *Keyspace) TypeLocked(key string) string {
	e, ok := ks.lockedGet(key)
	if !ok {
		return "none"
	}
	return e.kind.String()
}

// Del removes each listed key, returning the count actually removed.
func (ks *Keyspace) Del(keys ...string) int {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.DelLocked(keys...)
}

// DelLocked is Del for a caller already holding ks.Lock().
func (ks *Keyspace) DelLocked(keys ...string) int {
	n := 0
	for _, k := range keys {
		if _, ok := ks.lockedGet(k); ok {
			delete(ks.m, k)
			n++
		}
	}
	return n
}

// Keys returns every live key matching the glob pattern.
func (ks *Keyspace) Keys(pattern string) []string {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	now := time.Now()
	out := make([]string, 0, len(ks.m))
	for k, e := range ks.m {
		if e.expired(now) {
			delete(ks.m, k)
			continue
		}
		if MatchGlob(pattern, k) {
			out = append(out, k)
		}
	}
	return out
}

// DBSize returns the number of live keys.
func (ks *Keyspace) DBSize() int {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	now := time.Now()
	n := 0
	for k, e := range ks.m {
		if e.expired(now) {
			delete(ks.m, k)
			continue
		}
		n++
	}
	return n
}

// Rename moves the value at src to dst, deleting dst first if present.
// overwrite=false refuses to clobber an existing destination (RENAMENX).
func (ks *Keyspace) Rename(src, dst string, overwrite bool) (bool, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	e, ok := ks.lockedGet(src)
	if !ok {
		return false, errNoSuchKey
	}
	if !overwrite {
		if _, exists := ks.lockedGet(dst); exists {
			return false, nil
		}
	}
	delete(ks.m, src)
	e.version++
	ks.m[dst] = e
	return true, nil
}

var errNoSuchKey = errors.New("ERR no such key")

// ErrNoSuchKey is returned by Rename when the source key is absent.
func ErrNoSuchKey() error { return errNoSuchKey }

// Persist clears key's expiry; returns true if an expiry was removed.
func (ks *Keyspace) Persist(key string) bool {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	e, ok := ks.lockedGet(key)
	if !ok || e.expiry.IsZero() {
		return false
	}
	e.expiry = time.Time{}
	e.version++
	return true
}

// PTTL returns remaining ms to live, -1 if no expiry, -2 if absent.
func (ks *Keyspace) PTTL(key string) int64 {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	e, ok := ks.lockedGet(key)
	if !ok {
		return -2
	}
	if e.expiry.IsZero() {
		return -1
	}
	d := time.Until(e.expiry)
	if d < 0 {
		return 0
	}
	return d.Milliseconds()
}

// Version returns key's modification counter (0 if absent), used by
// WATCH to detect concurrent changes across EXEC. Must be called with
// the caller already holding whatever external synchronization it needs
// around the watch/exec window; the read itself is internally locked.
func (ks *Keyspace) Version(key string) uint64 {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	e, ok := ks.lockedGet(key)
	if !ok {
		return 0
	}
	return e.version
}

// Lock/Unlock expose the keyspace mutex for callers (EXEC, WATCH
// validation) that must hold it across a batch of operations to get the
// atomicity spec.md invariant 5 and §5 require. Ordinary single-command
// paths should prefer the typed methods above instead.
func (ks *Keyspace) Lock()   { ks.mu.Lock() }
func (ks *Keyspace) Unlock() { ks.mu.Unlock() }

// VersionLocked is Version without acquiring the mutex, for use inside
// an already-held Lock()/Unlock() span.
func (ks *Keyspace) VersionLocked(key string) uint64 {
	e, ok := ks.lockedGet(key)
	if !ok {
		return 0
	}
	return e.version
}

// rebuildZOrder resorts zorder from zmap by (score, member).
func rebuildZOrder(e *entry) {
	e.zorder = e.zorder[:0]
	for m, s := range e.zmap {
		e.zorder = append(e.zorder, ZItem{Member: m, Score: s})
	}
	sort.Slice(e.zorder, func(i, j int) bool {
		if e.zorder[i].Score != e.zorder[j].Score {
			return e.zorder[i].Score < e.zorder[j].Score
		}
		return e.zorder[i].Member < e.zorder[j].Member
	})
}
