package keyspace

import (
	"errors"
	"strconv"
	"time"
)

// ErrNotInteger mirrors Redis's message for INCR on a non-integer body.
var ErrNotInteger = errors.New("ERR value is not an integer or out of range")

// SetOptions controls expiry behavior for SET.
type SetOptions struct {
	ExpireAt time.Time // zero means "no expiry option given"
	HasExpiry bool
}

// Set stores value as a string, replacing whatever was at key
// (regardless of its previous kind) and applying opts.ExpireAt if
// HasExpiry is set, or clearing any prior expiry otherwise.
func (ks *Keyspace) Set(key, value string, opts SetOptions) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.SetLocked(key, value, opts)
}

// SetLocked is Set for a caller already holding ks.Lock(), used by EXEC
// to keep a queued batch's writes inside one critical section.
func (ks *Keyspace) SetLocked(key, value string, opts SetOptions) {
	e := &entry{kind: KindString, str: value}
	if opts.HasExpiry {
		e.expiry = opts.ExpireAt
	}
	if old, ok := ks.m[key]; ok {
		e.version = old.version
	}
	e.version++
	ks.m[key] = e
}

// Get returns the string at key. ok is false if the key is absent,
// expired, or not a string (err is ErrWrongType in that last case).
func (ks *Keyspace) Get(key string) (value string, ok bool, err error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.GetLocked(key)
}

// GetLocked is Get for a caller already holding ks.Lock().
func (ks *Keyspace) GetLocked(key string) (value string, ok bool, err error) {
	e, exists := ks.lockedGet(key)
	if !exists {
		return "", false, nil
	}
	if e.kind != KindString {
		return "", false, ErrWrongType
	}
	return e.str, true, nil
}

// IncrBy parses the existing value (or 0 if absent) as a signed 64-bit
// decimal, adds delta, stores the result, and returns it.
func (ks *Keyspace) IncrBy(key string, delta int64) (int64, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.IncrByLocked(key, delta)
}

// IncrByLocked is IncrBy for a caller already holding ks.Lock().
func (ks *Keyspace) IncrByLocked(key string, delta int64) (int64, error) {
	e, exists := ks.lockedGet(key)
	var cur int64
	if exists {
		if e.kind != KindString {
			return 0, ErrWrongType
		}
		n, err := strconv.ParseInt(e.str, 10, 64)
		if err != nil {
			return 0, ErrNotInteger
		}
		cur = n
	}
	next := cur + delta
	if exists {
		e.str = strconv.FormatInt(next, 10)
		e.version++
	} else {
		ks.m[key] = &entry{kind: KindString, str: strconv.FormatInt(next, 10), version: 1}
	}
	return next, nil
}
