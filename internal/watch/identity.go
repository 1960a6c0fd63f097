package watch

import (
	"fmt"
	"hash/fnv"
)

// EventRecord is one row of the death feed. Timestamp is the source's display
// string and is only used for identity.
type EventRecord struct {
	Actor     string
	Target    string
	Timestamp string
}

// Identity keys an EventRecord for deduplication.
type Identity string

// ID derives the record's identity. Fields are NUL-separated before hashing so
// ("ab","c") and ("a","bc") differ.
func (r EventRecord) ID() Identity {
	h := fnv.New64a()
	_, _ = h.Write([]byte(r.Actor))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(r.Target))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(r.Timestamp))
	return Identity(fmt.Sprintf("%016x", h.Sum64()))
}
