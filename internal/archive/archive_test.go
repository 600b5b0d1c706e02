package archive

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/virtshift/virtshift/internal/archive/providers"
	"github.com/virtshift/virtshift/internal/config"
)

func TestDisabledManagerIsNil(t *testing.T) {
	m, err := NewManager(config.ArchiveConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if m != nil {
		t.Fatal("empty provider should disable archiving")
	}
	if err := m.Store("x", "y"); err != nil {
		t.Fatalf("nil manager Store should no-op: %v", err)
	}
}

func TestLocalArchiveRoundTrip(t *testing.T) {
	base := t.TempDir()
	m, err := NewManager(config.ArchiveConfig{Provider: "local", LocalPath: base})
	if err != nil {
		t.Fatal(err)
	}

	content := []byte("hive bytes for archival")
	local := filepath.Join(t.TempDir(), "SYSTEM")
	if err := os.WriteFile(local, content, 0600); err != nil {
		t.Fatal(err)
	}

	if err := m.Store(local, "/Windows/System32/config/SYSTEM"); err != nil {
		t.Fatalf("store failed: %v", err)
	}

	keys, err := m.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 1 || !strings.HasSuffix(keys[0], "SYSTEM.gz") {
		t.Fatalf("unexpected keys: %v", keys)
	}

	restored := filepath.Join(t.TempDir(), "SYSTEM.restored")
	if err := m.Restore(keys[0], restored); err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	got, err := os.ReadFile(restored)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, content) {
		t.Fatal("restored content differs from original")
	}
}

func TestLocalRequiresPath(t *testing.T) {
	if _, err := NewManager(config.ArchiveConfig{Provider: "local"}); err == nil {
		t.Fatal("local provider without local_path should be rejected")
	}
}

func TestUnknownProviderRejected(t *testing.T) {
	if _, err := NewManager(config.ArchiveConfig{Provider: "ftp"}); err == nil {
		t.Fatal("unknown provider should be rejected")
	}
}

func TestPruneRemovesOnlyExpiredEntries(t *testing.T) {
	base := t.TempDir()
	m := &Manager{provider: providers.NewLocalProvider(base)}

	src := filepath.Join(t.TempDir(), "SYSTEM")
	if err := os.WriteFile(src, []byte("hive bytes"), 0600); err != nil {
		t.Fatal(err)
	}

	oldKey := "2020-01-01T000000Z/SYSTEM.gz"
	freshKey := time.Now().UTC().Format(keyStamp) + "/SYSTEM.gz"
	for _, key := range []string{oldKey, freshKey, "notes.txt"} {
		if err := m.provider.Upload(src, key); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := m.Prune(30 * 24 * time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Fatalf("pruned %d entries, want 1", removed)
	}

	keys, err := m.List()
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range keys {
		if key == oldKey {
			t.Fatal("expired entry survived prune")
		}
	}
	if len(keys) != 2 {
		t.Fatalf("remaining keys: %v", keys)
	}
}

func TestPruneWithoutProviderFails(t *testing.T) {
	var m *Manager
	if _, err := m.Prune(time.Hour); err == nil {
		t.Fatal("prune with no provider configured must fail")
	}
}
