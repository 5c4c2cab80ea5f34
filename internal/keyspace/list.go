package keyspace

// Push appends values to the head (head=true) or tail of the list at
// key, creating it if absent. It does not know about blocking waiters —
// callers that need FIFO waiter delivery (RPUSH/LPUSH from the
// dispatcher) should go through the blocking coordinator's Push, which
// calls PushLocked/PopFrontLocked under this same mutex instead.
func (ks *Keyspace) Push(key string, values []string, head bool) (int, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.PushLocked(key, values, head)
}

// PushLocked is Push assuming the caller already holds ks.mu (via
// Lock/Unlock). Exported for the blocking coordinator, which must push
// and drain waiters inside one critical section.
func (ks *Keyspace) PushLocked(key string, values []string, head bool) (int, error) {
	e, exists := ks.lockedGet(key)
	if exists && e.kind != KindList {
		return 0, ErrWrongType
	}
	if !exists {
		e = &entry{kind: KindList}
		ks.m[key] = e
	}
	if head {
		// LPUSH inserts each value so the last argument ends up closest
		// to the head, matching Redis: LPUSH k a b c -> c b a <old...>.
		newList := make([]string, 0, len(values)+len(e.list))
		for i := len(values) - 1; i >= 0; i-- {
			newList = append(newList, values[i])
		}
		newList = append(newList, e.list...)
		e.list = newList
	} else {
		e.list = append(e.list, values...)
	}
	e.version++
	return len(e.list), nil
}

// PopFrontLocked removes and returns the head element, assuming ks.mu
// is held. Deletes the entry if the list becomes empty.
func (ks *Keyspace) PopFrontLocked(key string) (string, bool) {
	e, exists := ks.lockedGet(key)
	if !exists || e.kind != KindList || len(e.list) == 0 {
		return "", false
	}
	v := e.list[0]
	e.list = e.list[1:]
	e.version++
	if len(e.list) == 0 {
		delete(ks.m, key)
	}
	return v, true
}

// PopBackLocked removes and returns the tail element, assuming ks.mu is
// held.
func (ks *Keyspace) PopBackLocked(key string) (string, bool) {
	e, exists := ks.lockedGet(key)
	if !exists || e.kind != KindList || len(e.list) == 0 {
		return "", false
	}
	n := len(e.list)
	v := e.list[n-1]
	e.list = e.list[:n-1]
	e.version++
	if len(e.list) == 0 {
		delete(ks.m, key)
	}
	return v, true
}

// Pop removes up to count elements from the front (head=true) or back
// of the list at key.
func (ks *Keyspace) Pop(key string, count int, head bool) ([]string, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.PopLocked(key, count, head)
}

// PopLocked is Pop for a caller already holding ks.Lock().
func (ks *Keyspace) PopLocked(key string, count int, head bool) ([]string, error) {
	e, exists := ks.lockedGet(key)
	if !exists {
		return []string{}, nil
	}
	if e.kind != KindList {
		return nil, ErrWrongType
	}
	n := len(e.list)
	if n == 0 {
		return []string{}, nil
	}
	if count > n {
		count = n
	}
	var out []string
	if head {
		out = append(out, e.list[:count]...)
		e.list = e.list[count:]
	} else {
		out = append(out, e.list[n-count:]...)
		reverse(out)
		e.list = e.list[:n-count]
	}
	e.version++
	if len(e.list) == 0 {
		delete(ks.m, key)
	}
	return out, nil
}

func reverse(s []string) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// Len returns the length of the list at key (0 if absent).
func (ks *Keyspace) Len(key string) (int, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.LenLocked(key)
}

// LenLocked is Len for a caller already holding ks.Lock().
func (ks *Keyspace) LenLocked(key string) (int, error) {
	e, exists := ks.lockedGet(key)
	if !exists {
		return 0, nil
	}
	if e.kind != KindList {
		return 0, ErrWrongType
	}
	return len(e.list), nil
}

// Range returns a snapshot of list elements in [start, stop] inclusive,
// with Python-style negative indices and clamping.
func (ks *Keyspace) Range(key string, start, stop int) ([]string, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.RangeLocked(key, start, stop)
}

// RangeLocked is Range for a caller already holding ks.Lock().
func (ks *Keyspace) RangeLocked(key string, start, stop int) ([]string, error) {
	e, exists := ks.lockedGet(key)
	if !exists {
		return []string{}, nil
	}
	if e.kind != KindList {
		return nil, ErrWrongType
	}
	n := len(e.list)
	start, stop, ok := clampRange(start, stop, n)
	if !ok {
		return []string{}, nil
	}
	out := make([]string, stop-start+1)
	copy(out, e.list[start:stop+1])
	return out, nil
}

// Index returns the element at idx (negative offsets from the end), or
// ok=false if out of range.
func (ks *Keyspace) Index(key string, idx int) (string, bool, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.IndexLocked(key, idx)
}

// IndexLocked is Index for a caller already holding ks.Lock().
func (ks *Keyspace) IndexLocked(key string, idx int) (string, bool, error) {
	e, exists := ks.lockedGet(key)
	if !exists {
		return "", false, nil
	}
	if e.kind != KindList {
		return "", false, ErrWrongType
	}
	n := len(e.list)
	if idx < 0 {
		idx += n
	}
	if idx < 0 || idx >= n {
		return "", false, nil
	}
	return e.list[idx], true, nil
}

var ErrIndexOutOfRange = indexOutOfRangeErr()

func indexOutOfRangeErr() error { return &simpleError{"ERR index out of range"} }

type simpleError struct{ s string }

func (e *simpleError) Error() string { return e.s }

// SetIndex overwrites the element at idx.
func (ks *Keyspace) SetIndex(key string, idx int, value string) error {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.SetIndexLocked(key, idx, value)
}

// SetIndexLocked is SetIndex for a caller already holding ks.Lock().
func (ks *Keyspace) SetIndexLocked(key string, idx int, value string) error {
	e, exists := ks.lockedGet(key)
	if !exists {
		return ErrIndexOutOfRange
	}
	if e.kind != KindList {
		return ErrWrongType
	}
	n := len(e.list)
	if idx < 0 {
		idx += n
	}
	if idx < 0 || idx >= n {
		return ErrIndexOutOfRange
	}
	e.list[idx] = value
	e.version++
	return nil
}

func clampRange(start, stop, n int) (int, int, bool) {
	if n == 0 {
		return 0, 0, false
	}
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return 0, 0, false
	}
	return start, stop, true
}
