// Package transfer moves hive files between the guest store and the local
// working directory, with integrity gates and after-the-fact verification.
// The upload round-trip is the only proof available that an offline write
// landed: the guest is never executed to check itself.
package transfer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/virtshift/virtshift/internal/gueststore"
	"github.com/virtshift/virtshift/internal/hivestore"
	"github.com/virtshift/virtshift/internal/logging"
	"github.com/virtshift/virtshift/pkg/report"
)

var log = logging.L("transfer")

// backupStamp is the timestamp layout for in-guest hive backups.
const backupStamp = "20060102T150405Z"

// Manager performs guest file movement for one conversion session.
type Manager struct {
	guest     gueststore.Store
	workDir   string
	minFreeMB int
}

// NewManager creates a Manager that stages files under workDir.
func NewManager(guest gueststore.Store, workDir string, minFreeMB int) *Manager {
	return &Manager{guest: guest, workDir: workDir, minFreeMB: minFreeMB}
}

// PreflightSpace verifies the working directory has room for hive copies.
// SYSTEM hives run to hundreds of megabytes and are staged up to three times
// (download, backup, verification copy).
func (m *Manager) PreflightSpace() error {
	if m.minFreeMB <= 0 {
		return nil
	}
	usage, err := disk.Usage(m.workDir)
	if err != nil {
		return fmt.Errorf("stat work dir %s: %w", m.workDir, err)
	}
	needed := uint64(m.minFreeMB) * 1024 * 1024
	if usage.Free < needed {
		return fmt.Errorf("work dir %s has %d MB free, need %d MB", m.workDir, usage.Free/1024/1024, m.minFreeMB)
	}
	log.Debug("work dir space ok", "free", usage.Free, "needed", needed)
	return nil
}

// Download copies a guest hive to local and proves it is a real hive. The
// download primitive is known to sometimes return success while producing an
// empty or truncated file; when validation fails, the whole-file read
// primitive is the fallback. Fails permanently only when both paths fail.
func (m *Manager) Download(remote, local string) error {
	dlErr := m.guest.Download(remote, local)
	if dlErr == nil {
		checkErr := hivestore.CheckFile(local)
		if checkErr == nil {
			return nil
		}
		log.Warn("downloaded hive failed validation, falling back to whole-file read", "remote", remote, logging.KeyError, checkErr)
	} else {
		log.Warn("download failed, falling back to whole-file read", "remote", remote, logging.KeyError, dlErr)
	}

	data, readErr := m.guest.ReadFile(remote)
	if readErr != nil {
		return fmt.Errorf("download %s failed (%v) and whole-file read failed: %w", remote, dlErr, readErr)
	}
	if err := os.WriteFile(local, data, 0600); err != nil {
		return fmt.Errorf("writing fallback copy of %s: %w", remote, err)
	}
	if err := hivestore.CheckFile(local); err != nil {
		return fmt.Errorf("fallback copy of %s: %w", remote, err)
	}
	log.Info("hive recovered via whole-file read", "remote", remote, "bytes", len(data))
	return nil
}

// UploadAndVerify pushes the committed local hive into the guest, then
// re-downloads it to a separate temp path and hashes it. shaBefore is the
// hash of the hive as originally downloaded (pre-edit); Changed reports
// whether the edit altered the remote content. A round-trip hash that does
// not match the local file is returned as an error: the write did not land.
func (m *Manager) UploadAndVerify(local, remote, shaBefore string) (report.Transfer, error) {
	rec := report.Transfer{
		RemotePath:   remote,
		LocalPath:    local,
		SHA256Before: shaBefore,
	}

	shaLocal, err := HashFile(local)
	if err != nil {
		return rec, fmt.Errorf("hashing %s before upload: %w", local, err)
	}

	if err := m.guest.Upload(local, remote); err != nil {
		return rec, fmt.Errorf("uploading %s: %w", remote, err)
	}

	verifyPath := local + ".verify"
	defer os.Remove(verifyPath)
	if err := m.Download(remote, verifyPath); err != nil {
		return rec, fmt.Errorf("re-downloading %s for verification: %w", remote, err)
	}

	shaAfter, err := HashFile(verifyPath)
	if err != nil {
		return rec, fmt.Errorf("hashing verification copy: %w", err)
	}
	rec.SHA256After = shaAfter
	rec.Changed = shaAfter != shaBefore

	if shaAfter != shaLocal {
		return rec, fmt.Errorf("upload round-trip mismatch for %s: local %s, remote %s", remote, shaLocal, shaAfter)
	}
	log.Info("upload verified", "remote", remote, "changed", rec.Changed)
	return rec, nil
}

// Backup copies the guest hive to <path>.backup.<timestamp> inside the guest
// before any destructive edit. Returns the in-guest backup path.
func (m *Manager) Backup(remote string) (string, error) {
	staging, err := os.CreateTemp(m.workDir, "backup-*")
	if err != nil {
		return "", fmt.Errorf("staging backup: %w", err)
	}
	stagingPath := staging.Name()
	staging.Close()
	defer os.Remove(stagingPath)

	if err := m.Download(remote, stagingPath); err != nil {
		return "", fmt.Errorf("backing up %s: %w", remote, err)
	}

	backupPath := fmt.Sprintf("%s.backup.%s", remote, time.Now().UTC().Format(backupStamp))
	if err := m.guest.Upload(stagingPath, backupPath); err != nil {
		return "", fmt.Errorf("uploading backup to %s: %w", backupPath, err)
	}
	log.Info("hive backed up", "remote", remote, "backup", backupPath)
	return backupPath, nil
}

// HashFile returns the hex SHA-256 of a local file.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
