package keyspace

// ZAdd inserts or updates members with the given scores, returning the
// count of members that did not already exist. The member->score map
// and the (score, member)-sorted slice are maintained together so that
// ZRank/ZRange never have to re-sort on every read — only on every
// write, matching the dict+sort approach the spec's Open Questions
// accept as a correct baseline for the sorted-set payload.
func (ks *Keyspace) ZAdd(key string, items []ZItem) (int, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.ZAddLocked(key, items)
}

// ZAddLocked is ZAdd for a caller already holding ks.Lock().
func (ks *Keyspace) ZAddLocked(key string, items []ZItem) (int, error) {
	e, exists := ks.lockedGet(key)
	if exists && e.kind != KindZSet {
		return 0, ErrWrongType
	}
	if !exists {
		e = &entry{kind: KindZSet, zmap: make(map[string]float64)}
		ks.m[key] = e
	}
	added := 0
	for _, it := range items {
		if _, ok := e.zmap[it.Member]; !ok {
			added++
		}
		e.zmap[it.Member] = it.Score
	}
	rebuildZOrder(e)
	e.version++
	return added, nil
}

// ZScore returns the score of member, or ok=false if absent.
func (ks *Keyspace) ZScore(key, member string) (float64, bool, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.ZScoreLocked(key, member)
}

// ZScoreLocked is ZScore for a caller already holding ks.Lock().
func (ks *Keyspace) ZScoreLocked(key, member string) (float64, bool, error) {
	e, exists := ks.lockedGet(key)
	if !exists {
		return 0, false, nil
	}
	if e.kind != KindZSet {
		return 0, false, ErrWrongType
	}
	s, ok := e.zmap[member]
	return s, ok, nil
}

// ZRank returns member's zero-based rank in (score, member) order, or
// ok=false if absent.
func (ks *Keyspace) ZRank(key, member string) (int, bool, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.ZRankLocked(key, member)
}

// ZRankLocked is ZRank for a caller already holding ks.Lock().
func (ks *Keyspace) ZRankLocked(key, member string) (int, bool, error) {
	e, exists := ks.lockedGet(key)
	if !exists {
		return 0, false, nil
	}
	if e.kind != KindZSet {
		return 0, false, ErrWrongType
	}
	if _, ok := e.zmap[member]; !ok {
		return 0, false, nil
	}
	for i, it := range e.zorder {
		if it.Member == member {
			return i, true, nil
		}
	}
	return 0, false, nil
}

// ZRange returns items (member and score) in rank order over
// [start, stop], with the same negative-index and clamping rules as
// list ranges.
func (ks *Keyspace) ZRange(key string, start, stop int) ([]ZItem, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.ZRangeLocked(key, start, stop)
}

// ZRangeLocked is ZRange for a caller already holding ks.Lock().
func (ks *Keyspace) ZRangeLocked(key string, start, stop int) ([]ZItem, error) {
	e, exists := ks.lockedGet(key)
	if !exists {
		return []ZItem{}, nil
	}
	if e.kind != KindZSet {
		return nil, ErrWrongType
	}
	n := len(e.zorder)
	start, stop, ok := clampRange(start, stop, n)
	if !ok {
		return []ZItem{}, nil
	}
	out := make([]ZItem, stop-start+1)
	copy(out, e.zorder[start:stop+1])
	return out, nil
}

// ZCard returns the member count of the sorted set at key.
func (ks *Keyspace) ZCard(key string) (int, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.ZCardLocked(key)
}

// ZCardLocked is ZCard for a caller already holding ks.Lock().
func (ks *Keyspace) ZCardLocked(key string) (int, error) {
	e, exists := ks.lockedGet(key)
	if !exists {
		return 0, nil
	}
	if e.kind != KindZSet {
		return 0, ErrWrongType
	}
	return len(e.zmap), nil
}

// ZRem removes the listed members, returning the count actually
// removed. Deletes the key entirely if it becomes empty.
func (ks *Keyspace) ZRem(key string, members []string) (int, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.ZRemLocked(key, members)
}

// ZRemLocked is ZRem for a caller already holding ks.Lock().
func (ks *Keyspace) ZRemLocked(key string, members []string) (int, error) {
	e, exists := ks.lockedGet(key)
	if !exists {
		return 0, nil
	}
	if e.kind != KindZSet {
		return 0, ErrWrongType
	}
	removed := 0
	for _, m := range members {
		if _, ok := e.zmap[m]; ok {
			delete(e.zmap, m)
			removed++
		}
	}
	if removed > 0 {
		e.version++
		if len(e.zmap) == 0 {
			delete(ks.m, key)
		} else {
			rebuildZOrder(e)
		}
	}
	return removed, nil
}
