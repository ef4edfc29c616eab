package history

import (
	"fmt"
	"testing"

	"github.com/RedBackRubbish/torbit/internal/domain/ledger"
)

func summary(id string) ledger.Summary {
	return ledger.Summary{ExecutionID: id}
}

func TestRingEvictsOldestFirst(t *testing.T) {
	r := NewRing(3)
	for i := range 5 {
		r.Add(summary(fmt.Sprintf("exec-%d", i)))
	}

	if r.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", r.Len())
	}
	got := r.Recent(0)
	want := []string{"exec-4", "exec-3", "exec-2"}
	for i, w := range want {
		if got[i].ExecutionID != w {
			t.Fatalf("Recent()[%d] = %s, want %s", i, got[i].ExecutionID, w)
		}
	}
}

func TestRecentLimit(t *testing.T) {
	r := NewRing(10)
	for i := range 4 {
		r.Add(summary(fmt.Sprintf("exec-%d", i)))
	}

	got := r.Recent(2)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ExecutionID != "exec-3" || got[1].ExecutionID != "exec-2" {
		t.Fatalf("unexpected order: %s, %s", got[0].ExecutionID, got[1].ExecutionID)
	}
}

func TestZeroCapacityClampedToOne(t *testing.T) {
	r := NewRing(0)
	r.Add(summary("a"))
	r.Add(summary("b"))
	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}
	if r.Recent(0)[0].ExecutionID != "b" {
		t.Fatal("expected newest entry retained")
	}
}
