package audit

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/virtshift/virtshift/internal/config"
)

func newTestLogger(t *testing.T) (*Logger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	l, err := newLoggerAt(path, config.AuditConfig{MaxSizeMB: 1, MaxBackups: 2})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })
	return l, path
}

func TestChainVerifies(t *testing.T) {
	l, path := newTestLogger(t)
	l.Record(EventHiveDownloaded, "/Windows/System32/config/SYSTEM", map[string]string{"sha256": "abc"})
	l.Record(EventServiceConfigured, "/Windows/System32/config/SYSTEM", map[string]string{"service": "viostor"})
	l.Record(EventHiveCommitted, "/Windows/System32/config/SYSTEM", nil)
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	n, err := VerifyChain(path)
	if err != nil {
		t.Fatalf("chain verification failed: %v", err)
	}
	if n != 3 {
		t.Fatalf("verified %d entries, want 3", n)
	}
}

func TestTamperBreaksChain(t *testing.T) {
	l, path := newTestLogger(t)
	l.Record(EventHiveDownloaded, "SYSTEM", nil)
	l.Record(EventHiveUploaded, "SYSTEM", nil)
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	tampered := strings.Replace(string(data), "hive_downloaded", "hive_xxxloaded", 1)
	if err := os.WriteFile(path, []byte(tampered), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := VerifyChain(path); err == nil {
		t.Fatal("tampered trail should fail verification")
	}
}

func TestDroppedCountNeverWritten(t *testing.T) {
	l, _ := newTestLogger(t)
	if got := l.DroppedCount(); got != 0 {
		t.Fatalf("dropped = %d, want 0", got)
	}
}

func TestNilLoggerIsNoOp(t *testing.T) {
	var l *Logger
	l.Record(EventHiveCommitted, "SYSTEM", nil)
	if err := l.Close(); err != nil {
		t.Fatalf("nil close: %v", err)
	}
	if got := l.DroppedCount(); got != -1 {
		t.Fatalf("nil dropped = %d, want -1", got)
	}
}
