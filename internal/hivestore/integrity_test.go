package hivestore

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeHiveFile(t *testing.T, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "SYSTEM")
	if err := os.WriteFile(path, content, 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCheckFileAcceptsValidHive(t *testing.T) {
	content := make([]byte, 8192)
	copy(content, "regf")
	if err := CheckFile(writeHiveFile(t, content)); err != nil {
		t.Fatalf("valid hive rejected: %v", err)
	}
}

func TestCheckFileRejectsUndersized(t *testing.T) {
	content := make([]byte, 4095)
	copy(content, "regf")
	err := CheckFile(writeHiveFile(t, content))
	if !errors.Is(err, ErrIntegrity) {
		t.Fatalf("undersized hive should fail integrity, got: %v", err)
	}
}

func TestCheckFileRejectsBadSignature(t *testing.T) {
	content := bytes.Repeat([]byte{0xAA}, 8192)
	err := CheckFile(writeHiveFile(t, content))
	if !errors.Is(err, ErrIntegrity) {
		t.Fatalf("bad signature should fail integrity, got: %v", err)
	}
}

func TestCheckFileRejectsMissingFile(t *testing.T) {
	err := CheckFile(filepath.Join(t.TempDir(), "nope"))
	if !errors.Is(err, ErrIntegrity) {
		t.Fatalf("missing file should fail integrity, got: %v", err)
	}
}

func TestCheckFileEmptyFile(t *testing.T) {
	// The common failure mode: a download "succeeds" but materializes
	// zero bytes.
	err := CheckFile(writeHiveFile(t, nil))
	if !errors.Is(err, ErrIntegrity) {
		t.Fatalf("empty file should fail integrity, got: %v", err)
	}
}

func TestMemStoreSerializePassesIntegrityGate(t *testing.T) {
	s := NewMemStore()
	s.SeedValue([]string{"Select"}, Value{Name: "Current", Kind: KindDword, Bytes: []byte{1, 0, 0, 0}})

	path := filepath.Join(t.TempDir(), "SYSTEM")
	s.BackingPath = path
	if err := s.Commit(); err != nil {
		t.Fatal(err)
	}
	if err := CheckFile(path); err != nil {
		t.Fatalf("serialized mem hive should pass the gate: %v", err)
	}
}
