package autosave_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/elodin/bridge/pkg/autosave"
)

func TestSnapshotEncodePreservesOrder(t *testing.T) {
	snap := autosave.Snapshot{
		{Name: "zeta", Value: "last letter"},
		{Name: "alpha", Value: "a&b=c"},
		{Name: "list[]", Value: "one"},
		{Name: "list[]", Value: "two"},
	}

	want := "zeta=last+letter&alpha=a%26b%3Dc&list%5B%5D=one&list%5B%5D=two"
	if got := snap.Encode(); got != want {
		t.Fatalf("encode = %q, want %q", got, want)
	}

	reordered := autosave.Snapshot{snap[1], snap[0], snap[2], snap[3]}
	if snap.Equal(reordered) {
		t.Fatalf("snapshots with different order must not be equal")
	}
	if !snap.Equal(append(autosave.Snapshot(nil), snap...)) {
		t.Fatalf("copy must be equal")
	}

	if value, ok := snap.Get("alpha"); !ok || value != "a&b=c" {
		t.Fatalf("get alpha = %q, %v", value, ok)
	}
	if diff := cmp.Diff([]string{"one", "two"}, snap.Values()["list[]"]); diff != "" {
		t.Fatalf("values mismatch (-want +got):\n%s", diff)
	}
	if (autosave.Snapshot{}).Encode() != "" {
		t.Fatalf("empty snapshot must encode to empty string")
	}
}
