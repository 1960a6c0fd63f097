package watch

// Filter returns, in feed order, the records whose actor is a roster member
// and whose identity is not in seen. The target is irrelevant. Repeats of one
// identity within records are returned once.
func Filter(records []EventRecord, roster Snapshot, seen *DedupCache) []EventRecord {
	var out []EventRecord
	batch := make(map[Identity]struct{}, len(records))
	for _, r := range records {
		if _, ok := roster[r.Actor]; !ok {
			continue
		}
		id := r.ID()
		if _, dup := batch[id]; dup {
			continue
		}
		if seen != nil && seen.Contains(id) {
			continue
		}
		batch[id] = struct{}{}
		out = append(out, r)
	}
	return out
}
