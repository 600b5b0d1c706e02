package regedit

import (
	"testing"

	"github.com/virtshift/virtshift/internal/hivestore"
	"github.com/virtshift/virtshift/internal/regcodec"
	"github.com/virtshift/virtshift/pkg/report"
)

func seedSelect(s *hivestore.MemStore, current uint32) {
	s.SeedValue([]string{"Select"}, hivestore.Value{
		Name:  "Current",
		Kind:  hivestore.KindDword,
		Bytes: regcodec.EncodeDword(current),
	})
}

func mustRoot(t *testing.T, s hivestore.Store) regcodec.NodeRef {
	t.Helper()
	root, err := hiveRoot(s)
	if err != nil {
		t.Fatal(err)
	}
	return root
}

func TestResolveControlSetCurrent(t *testing.T) {
	s := hivestore.NewMemStore()
	seedSelect(s, 1)
	s.SeedKey("ControlSet001")

	rpt := report.New("SYSTEM", false)
	cs := ResolveControlSet(s, mustRoot(t, s), rpt)

	if cs.Name != "ControlSet001" {
		t.Fatalf("resolved %s, want ControlSet001", cs.Name)
	}
	if !cs.Node.Valid() {
		t.Fatal("control set node should be valid")
	}
	if len(rpt.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", rpt.Warnings)
	}
}

func TestResolveControlSetMissingFallsBackWithWarning(t *testing.T) {
	s := hivestore.NewMemStore()
	seedSelect(s, 1)
	// ControlSet001 itself is absent.

	rpt := report.New("SYSTEM", false)
	cs := ResolveControlSet(s, mustRoot(t, s), rpt)

	if cs.Name != "ControlSet001" {
		t.Fatalf("resolved %s, want ControlSet001 fallback", cs.Name)
	}
	if cs.Node.Valid() {
		t.Fatal("node should be the invalid sentinel for an absent subtree")
	}
	if len(rpt.Warnings) == 0 {
		t.Fatal("fallback must be surfaced as a warning")
	}
}

func TestResolveControlSetFallsBackFromMissingCurrent(t *testing.T) {
	s := hivestore.NewMemStore()
	seedSelect(s, 2)
	s.SeedKey("ControlSet001")

	rpt := report.New("SYSTEM", false)
	cs := ResolveControlSet(s, mustRoot(t, s), rpt)

	if cs.Name != "ControlSet001" || !cs.Node.Valid() {
		t.Fatalf("expected valid ControlSet001 fallback, got %s valid=%v", cs.Name, cs.Node.Valid())
	}
	if len(rpt.Warnings) == 0 {
		t.Fatal("fallback from ControlSet002 must warn")
	}
}

func TestResolveControlSetAbsentSelectAssumesOne(t *testing.T) {
	s := hivestore.NewMemStore()
	s.SeedKey("ControlSet001")

	rpt := report.New("SYSTEM", false)
	cs := ResolveControlSet(s, mustRoot(t, s), rpt)

	if cs.Name != "ControlSet001" || !cs.Node.Valid() {
		t.Fatalf("expected ControlSet001, got %s", cs.Name)
	}
	if len(rpt.Warnings) == 0 {
		t.Fatal("unreadable Select\\Current must warn")
	}
}
