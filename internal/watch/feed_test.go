package watch

import (
	"reflect"
	"testing"
)

func TestEventRecordID(t *testing.T) {
	a := EventRecord{Actor: "A", Target: "X", Timestamp: "D1"}
	if a.ID() != a.ID() {
		t.Fatal("ID is not deterministic")
	}
	tests := []EventRecord{
		{Actor: "A", Target: "X", Timestamp: "D2"},
		{Actor: "A", Target: "Y", Timestamp: "D1"},
		{Actor: "X", Target: "A", Timestamp: "D1"},
		{Actor: "AX", Target: "", Timestamp: "D1"},
	}
	for _, b := range tests {
		if a.ID() == b.ID() {
			t.Fatalf("ID collision between %+v and %+v", a, b)
		}
	}
}

func TestFilter(t *testing.T) {
	roster := Snapshot{"A": 10, "B": 20}
	d1 := EventRecord{Actor: "A", Target: "Outsider", Timestamp: "D1"}
	d2 := EventRecord{Actor: "Outsider", Target: "A", Timestamp: "D2"}
	d3 := EventRecord{Actor: "B", Target: "A", Timestamp: "D3"}
	d4 := EventRecord{Actor: "B", Target: "C", Timestamp: "D4"}

	seen := NewDedupCache(30)
	seen.Add(d4.ID())

	got := Filter([]EventRecord{d1, d2, d3, d1, d4}, roster, seen)
	want := []EventRecord{d1, d3}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Filter = %+v, want %+v", got, want)
	}
	if seen.Len() != 1 {
		t.Fatal("Filter must not mutate the cache")
	}
}

func TestFilterEmptyRoster(t *testing.T) {
	recs := []EventRecord{{Actor: "A", Target: "B", Timestamp: "D"}}
	if got := Filter(recs, Snapshot{}, nil); len(got) != 0 {
		t.Fatalf("Filter with empty roster = %+v", got)
	}
}
