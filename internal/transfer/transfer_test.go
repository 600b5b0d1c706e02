package transfer

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/virtshift/virtshift/internal/gueststore"
)

const systemPath = "/Windows/System32/config/SYSTEM"

func validHiveBytes(seed byte) []byte {
	content := make([]byte, 8192)
	copy(content, "regf")
	content[5000] = seed
	return content
}

func newTestManager(t *testing.T) (*Manager, *gueststore.MemGuest, string) {
	t.Helper()
	g := gueststore.NewMemGuest()
	workDir := t.TempDir()
	return NewManager(g, workDir, 0), g, workDir
}

func TestDownloadValidHive(t *testing.T) {
	m, g, workDir := newTestManager(t)
	g.Files[systemPath] = validHiveBytes(1)

	local := filepath.Join(workDir, "SYSTEM")
	if err := m.Download(systemPath, local); err != nil {
		t.Fatalf("download failed: %v", err)
	}
	data, _ := os.ReadFile(local)
	if !bytes.Equal(data, g.Files[systemPath]) {
		t.Fatal("downloaded content mismatch")
	}
}

func TestDownloadFallsBackOnTruncatedFile(t *testing.T) {
	m, g, workDir := newTestManager(t)
	g.Files[systemPath] = validHiveBytes(1)
	// The download primitive reports success but writes an empty file.
	g.TruncateDownloads = 1

	local := filepath.Join(workDir, "SYSTEM")
	if err := m.Download(systemPath, local); err != nil {
		t.Fatalf("fallback should recover the hive: %v", err)
	}
	data, _ := os.ReadFile(local)
	if !bytes.Equal(data, g.Files[systemPath]) {
		t.Fatal("fallback content mismatch")
	}
}

func TestDownloadFailsWhenBothPathsFail(t *testing.T) {
	m, g, workDir := newTestManager(t)
	g.Files[systemPath] = []byte("tiny") // fails the integrity gate
	g.ReadErr = os.ErrPermission

	err := m.Download(systemPath, filepath.Join(workDir, "SYSTEM"))
	if err == nil {
		t.Fatal("expected permanent failure")
	}
}

func TestUploadAndVerifyReportsChange(t *testing.T) {
	m, g, workDir := newTestManager(t)
	before := validHiveBytes(1)
	g.Files[systemPath] = before

	shaBefore, err := hashBytes(t, workDir, before)
	if err != nil {
		t.Fatal(err)
	}

	// Simulate a committed local hive with different content.
	local := filepath.Join(workDir, "SYSTEM")
	if err := os.WriteFile(local, validHiveBytes(2), 0600); err != nil {
		t.Fatal(err)
	}

	rec, err := m.UploadAndVerify(local, systemPath, shaBefore)
	if err != nil {
		t.Fatalf("upload and verify failed: %v", err)
	}
	if !rec.Changed {
		t.Fatal("modified hive should report changed=true")
	}
	if rec.SHA256Before == rec.SHA256After {
		t.Fatal("hashes should differ for a modified hive")
	}
}

func TestUploadAndVerifyUnchangedContent(t *testing.T) {
	m, g, workDir := newTestManager(t)
	content := validHiveBytes(1)
	g.Files[systemPath] = content

	local := filepath.Join(workDir, "SYSTEM")
	if err := os.WriteFile(local, content, 0600); err != nil {
		t.Fatal(err)
	}
	shaBefore, err := HashFile(local)
	if err != nil {
		t.Fatal(err)
	}

	rec, err := m.UploadAndVerify(local, systemPath, shaBefore)
	if err != nil {
		t.Fatalf("upload and verify failed: %v", err)
	}
	if rec.Changed {
		t.Fatal("identical content should report changed=false")
	}
}

func TestBackupCreatesTimestampedGuestCopy(t *testing.T) {
	m, g, _ := newTestManager(t)
	g.Files[systemPath] = validHiveBytes(1)

	backupPath, err := m.Backup(systemPath)
	if err != nil {
		t.Fatalf("backup failed: %v", err)
	}
	if !strings.HasPrefix(backupPath, systemPath+".backup.") {
		t.Fatalf("unexpected backup path: %s", backupPath)
	}
	if !bytes.Equal(g.Files[backupPath], g.Files[systemPath]) {
		t.Fatal("backup content mismatch")
	}
}

func TestPreflightSpace(t *testing.T) {
	g := gueststore.NewMemGuest()
	workDir := t.TempDir()

	if err := NewManager(g, workDir, 0).PreflightSpace(); err != nil {
		t.Fatalf("disabled preflight should pass: %v", err)
	}
	// No filesystem has an exabyte free.
	if err := NewManager(g, workDir, 1<<40).PreflightSpace(); err == nil {
		t.Fatal("absurd space requirement should fail preflight")
	}
}

func hashBytes(t *testing.T, dir string, data []byte) (string, error) {
	t.Helper()
	tmp := filepath.Join(dir, "hashtmp")
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return "", err
	}
	defer os.Remove(tmp)
	return HashFile(tmp)
}
