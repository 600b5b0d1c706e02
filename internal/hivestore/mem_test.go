package hivestore

import (
	"bytes"
	"testing"
)

func TestMemStoreChildLifecycle(t *testing.T) {
	s := NewMemStore()
	root, err := s.Root()
	if err != nil {
		t.Fatal(err)
	}

	child, err := s.AddChild(root, "Services")
	if err != nil || child == 0 {
		t.Fatalf("AddChild = %d, %v", child, err)
	}

	// Case-insensitive lookup, same handle on re-add.
	got, err := s.GetChild(root, "sErViCeS")
	if err != nil || got != child {
		t.Fatalf("GetChild = %d, %v, want %d", got, err, child)
	}
	again, _ := s.AddChild(root, "SERVICES")
	if again != child {
		t.Fatalf("re-add returned new handle %d, want %d", again, child)
	}

	deleted, err := s.DeleteChild(root, "services")
	if err != nil || !deleted {
		t.Fatalf("DeleteChild = %v, %v", deleted, err)
	}
	if h, _ := s.GetChild(root, "Services"); h != 0 {
		t.Fatalf("deleted child still resolves: %d", h)
	}
}

func TestMemStoreAbsentShapes(t *testing.T) {
	s := NewMemStore()
	root, _ := s.Root()

	h, err := s.GetChild(root, "missing")
	if h != 0 || err != nil {
		t.Fatalf("default absent shape should be (0, nil), got (%d, %v)", h, err)
	}

	s.AbsentAsError = true
	h, err = s.GetChild(root, "missing")
	if h != 0 || err == nil {
		t.Fatalf("error absent shape should be (0, err), got (%d, %v)", h, err)
	}
}

func TestMemStoreValueRoundTrip(t *testing.T) {
	s := NewMemStore()
	root, _ := s.Root()

	in := Value{Name: "Start", Kind: KindDword, Bytes: []byte{3, 0, 0, 0}}
	if err := s.SetValue(root, in); err != nil {
		t.Fatal(err)
	}

	out, err := s.GetValue(root, "start")
	if err != nil || out == nil {
		t.Fatalf("GetValue = %v, %v", out, err)
	}
	if out.Kind != KindDword || !bytes.Equal(out.Bytes, in.Bytes) {
		t.Fatalf("value mangled: %+v", out)
	}

	// Mutating the returned copy must not touch the stored value.
	out.Bytes[0] = 9
	out2, _ := s.GetValue(root, "Start")
	if out2.Bytes[0] != 3 {
		t.Fatal("GetValue returned aliased bytes")
	}
}

func TestMemStoreSerializeIsDeterministicAndChangeSensitive(t *testing.T) {
	build := func() *MemStore {
		s := NewMemStore()
		s.SeedValue([]string{"Select"}, Value{Name: "Current", Kind: KindDword, Bytes: []byte{1, 0, 0, 0}})
		s.SeedKey("ControlSet001", "Services")
		return s
	}

	a, b := build(), build()
	if !bytes.Equal(a.Serialize(), b.Serialize()) {
		t.Fatal("identical trees should serialize identically")
	}

	b.SeedKey("ControlSet001", "Services", "viostor")
	if bytes.Equal(a.Serialize(), b.Serialize()) {
		t.Fatal("different trees should serialize differently")
	}
}
