package conversion

import (
	"errors"
	"math/big"
	"testing"
)

func pid(b byte) [32]byte {
	var id [32]byte
	id[0] = b
	return id
}

func mustInsert(t *testing.T, l *supplyList, id [32]byte, trigger int64, hint [32]byte) {
	t.Helper()
	if err := l.insert(id, big.NewInt(trigger), big.NewInt(0), hint); err != nil {
		t.Fatalf("insert %x: %v", id[:1], err)
	}
}

func triggers(l *supplyList) []int64 {
	entries := l.entries()
	out := make([]int64, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entry.TriggerPrice.Int64())
	}
	return out
}

func TestSupplyListKeepsAscendingOrder(t *testing.T) {
	list := newSupplyList()
	var none [32]byte
	mustInsert(t, list, pid(3), 300, none)
	mustInsert(t, list, pid(1), 100, none)
	mustInsert(t, list, pid(2), 200, none)

	got := triggers(list)
	want := []int64{100, 200, 300}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
	head, ok := list.headEntry()
	if !ok || head.id != pid(1) {
		t.Fatalf("head = %x, want 01", head.id[:1])
	}
}

func TestSupplyListValidHintInsertsAfter(t *testing.T) {
	list := newSupplyList()
	var none [32]byte
	mustInsert(t, list, pid(1), 100, none)
	mustInsert(t, list, pid(3), 300, none)

	// Hint names the entry the new one should follow.
	mustInsert(t, list, pid(2), 200, pid(1))
	got := triggers(list)
	want := []int64{100, 200, 300}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestSupplyListStaleHintFallsBack(t *testing.T) {
	list := newSupplyList()
	var none [32]byte
	mustInsert(t, list, pid(1), 100, none)
	mustInsert(t, list, pid(2), 200, none)
	mustInsert(t, list, pid(3), 300, none)

	// The hinted neighbour no longer bounds the trigger; the scan still finds
	// the right slot.
	mustInsert(t, list, pid(4), 150, pid(3))
	got := triggers(list)
	want := []int64{100, 150, 200, 300}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestSupplyListEqualTriggersPreserveArrival(t *testing.T) {
	list := newSupplyList()
	var none [32]byte
	mustInsert(t, list, pid(1), 100, none)
	mustInsert(t, list, pid(2), 100, none)
	mustInsert(t, list, pid(3), 100, none)

	entries := list.entries()
	for i, want := range []byte{1, 2, 3} {
		if entries[i].PositionID != pid(want) {
			t.Fatalf("entry %d = %x, want %02x", i, entries[i].PositionID[:1], want)
		}
	}
}

func TestSupplyListRejectsDuplicates(t *testing.T) {
	list := newSupplyList()
	var none [32]byte
	mustInsert(t, list, pid(1), 100, none)
	if err := list.insert(pid(1), big.NewInt(100), big.NewInt(0), none); !errors.Is(err, errAlreadyQueued) {
		t.Fatalf("expected errAlreadyQueued, got %v", err)
	}
}

func TestSupplyListRemoveRelinks(t *testing.T) {
	list := newSupplyList()
	var none [32]byte
	mustInsert(t, list, pid(1), 100, none)
	mustInsert(t, list, pid(2), 200, none)
	mustInsert(t, list, pid(3), 300, none)

	if err := list.remove(pid(2)); err != nil {
		t.Fatalf("remove: %v", err)
	}
	got := triggers(list)
	want := []int64{100, 300}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
	if err := list.remove(pid(2)); !errors.Is(err, errNotQueued) {
		t.Fatalf("expected errNotQueued, got %v", err)
	}

	// Freed slots get reused without breaking the links.
	mustInsert(t, list, pid(4), 250, none)
	got = triggers(list)
	want = []int64{100, 250, 300}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order after reuse = %v, want %v", got, want)
		}
	}
	if list.len() != 3 {
		t.Fatalf("len = %d, want 3", list.len())
	}
}

func TestSupplyListCloneIsIndependent(t *testing.T) {
	list := newSupplyList()
	var none [32]byte
	mustInsert(t, list, pid(1), 100, none)
	mustInsert(t, list, pid(2), 200, none)

	clone := list.clone()
	if err := clone.remove(pid(1)); err != nil {
		t.Fatalf("remove on clone: %v", err)
	}
	mustInsert(t, clone, pid(3), 50, none)

	if list.len() != 2 {
		t.Fatalf("original len = %d after clone mutation, want 2", list.len())
	}
	head, _ := list.headEntry()
	if head.id != pid(1) {
		t.Fatalf("original head changed to %x", head.id[:1])
	}
}
