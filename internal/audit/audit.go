// Package audit writes a tamper-evident JSONL trail of every mutating
// registry operation. Each entry carries a SHA-256 hash chained to the
// previous entry, so any removed or altered record breaks verification.
package audit

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/virtshift/virtshift/internal/config"
	"github.com/virtshift/virtshift/internal/logging"
)

var log = logging.L("audit")

// Event types recorded in the trail.
const (
	EventHiveDownloaded       = "hive_downloaded"
	EventHiveBackedUp         = "hive_backed_up"
	EventServiceConfigured    = "service_configured"
	EventCriticalDeviceAdded  = "critical_device_added"
	EventStartOverrideRemoved = "startoverride_removed"
	EventValueWritten         = "value_written"
	EventHiveCommitted        = "hive_committed"
	EventHiveUploaded         = "hive_uploaded"
	EventVerification         = "verification"
	EventLogRotated           = "log_rotated"
)

// criticalEvents are fsynced after writing. These are the records that prove
// a guest image was actually modified.
var criticalEvents = map[string]bool{
	EventHiveCommitted: true,
	EventHiveUploaded:  true,
	EventVerification:  true,
}

// Entry is a single audit record.
type Entry struct {
	Timestamp string            `json:"timestamp"`
	EventType string            `json:"eventType"`
	Hive      string            `json:"hive,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
	PrevHash  string            `json:"prevHash"`
	EntryHash string            `json:"entryHash"`
}

// Logger writes hash-chained JSONL audit records. On rotation, a sentinel
// entry (EventLogRotated) opens the new file with prevHash linking to the
// last entry of the old one.
type Logger struct {
	mu         sync.Mutex
	file       *os.File
	filePath   string
	maxSize    int64
	maxBackups int
	written    int64
	prevHash   string
	dropped    atomic.Int64
}

// NewLogger creates an audit logger writing to {dataDir}/audit.jsonl.
func NewLogger(cfg config.AuditConfig) (*Logger, error) {
	dataDir := config.GetDataDir()
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("create audit data dir: %w", err)
	}
	return newLoggerAt(filepath.Join(dataDir, "audit.jsonl"), cfg)
}

func newLoggerAt(filePath string, cfg config.AuditConfig) (*Logger, error) {
	maxSize := cfg.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 50
	}
	maxBackups := cfg.MaxBackups
	if maxBackups <= 0 {
		maxBackups = 3
	}

	l := &Logger{
		filePath:   filePath,
		maxSize:    int64(maxSize) * 1024 * 1024,
		maxBackups: maxBackups,
		prevHash:   "genesis",
	}

	if err := l.openFile(); err != nil {
		return nil, err
	}

	log.Info("audit trail started", "path", filePath)
	return l, nil
}

// Record writes a single entry with hash chain linking. The chain is only
// advanced after a successful write: if the write fails, the next entry
// re-links to the same prevHash. Safe to call on a nil receiver (no-op).
func (l *Logger) Record(eventType, hive string, details map[string]string) {
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry := Entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		EventType: eventType,
		Hive:      hive,
		Details:   details,
		PrevHash:  l.prevHash,
	}

	entryHash, err := computeHash(entry)
	if err != nil {
		log.Error("failed to compute audit entry hash", logging.KeyError, err, "eventType", eventType)
		l.dropped.Add(1)
		return
	}
	entry.EntryHash = entryHash

	data, err := json.Marshal(entry)
	if err != nil {
		log.Error("failed to marshal audit entry", logging.KeyError, err, "eventType", eventType)
		l.dropped.Add(1)
		return
	}
	data = append(data, '\n')

	if l.written+int64(len(data)) > l.maxSize {
		if err := l.rotate(); err != nil {
			log.Error("audit log rotation failed", logging.KeyError, err)
			l.dropped.Add(1)
			return
		}
	}

	n, err := l.file.Write(data)
	if err != nil {
		log.Error("failed to write audit entry", logging.KeyError, err, "eventType", eventType)
		l.dropped.Add(1)
		return
	}
	l.written += int64(n)
	l.prevHash = entry.EntryHash

	if criticalEvents[eventType] {
		if err := l.file.Sync(); err != nil {
			log.Error("failed to fsync critical audit entry", logging.KeyError, err, "eventType", eventType)
		}
	}
}

// Close flushes and closes the audit file. Safe on a nil receiver.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// DroppedCount returns the number of entries that failed to write, or -1
// when the logger was never initialized.
func (l *Logger) DroppedCount() int64 {
	if l == nil {
		return -1
	}
	return l.dropped.Load()
}

// VerifyChain replays a trail file and checks every entry's hash and link.
// Returns the number of verified entries.
func VerifyChain(filePath string) (int, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return 0, err
	}

	prevHash := "genesis"
	count := 0
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var entry Entry
		if err := dec.Decode(&entry); err != nil {
			return count, fmt.Errorf("entry %d: %w", count, err)
		}
		// A rotation sentinel links to the previous file's chain.
		if entry.EventType != EventLogRotated || count > 0 {
			if entry.PrevHash != prevHash {
				return count, fmt.Errorf("entry %d: chain broken, prevHash %s, expected %s", count, entry.PrevHash, prevHash)
			}
		}
		want := entry.EntryHash
		entry.EntryHash = ""
		got, err := computeHash(entry)
		if err != nil {
			return count, fmt.Errorf("entry %d: %w", count, err)
		}
		if got != want {
			return count, fmt.Errorf("entry %d: hash mismatch", count)
		}
		prevHash = want
		count++
	}
	return count, nil
}

// computeHash hashes the entry's fields. Fields are length-prefixed to
// prevent delimiter collisions between field combinations.
func computeHash(entry Entry) (string, error) {
	h := sha256.New()
	for _, field := range []string{entry.Timestamp, entry.EventType, entry.Hive, entry.PrevHash} {
		fmt.Fprintf(h, "%d:%s", len(field), field)
	}
	if entry.Details != nil {
		detailBytes, err := json.Marshal(entry.Details)
		if err != nil {
			return "", fmt.Errorf("marshal details for hash: %w", err)
		}
		fmt.Fprintf(h, "%d:", len(detailBytes))
		h.Write(detailBytes)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (l *Logger) openFile() error {
	f, err := os.OpenFile(l.filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat audit log: %w", err)
	}

	l.file = f
	l.written = info.Size()
	return nil
}

func (l *Logger) rotate() error {
	prevHashBeforeRotation := l.prevHash

	if l.file != nil {
		l.file.Close()
	}

	// Shift existing backups: .3 removed, .2 -> .3, .1 -> .2
	for i := l.maxBackups; i >= 2; i-- {
		src := l.backupName(i - 1)
		dst := l.backupName(i)
		if i == l.maxBackups {
			if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
				log.Warn("audit rotation: failed to remove oldest backup", "path", dst, logging.KeyError, err)
			}
		}
		if err := os.Rename(src, dst); err != nil && !os.IsNotExist(err) {
			log.Warn("audit rotation: failed to rename backup", "src", src, "dst", dst, logging.KeyError, err)
		}
	}

	if err := os.Rename(l.filePath, l.backupName(1)); err != nil && !os.IsNotExist(err) {
		log.Warn("audit rotation: failed to rename current log", logging.KeyError, err)
	}

	if err := l.openFile(); err != nil {
		return err
	}

	sentinel := Entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		EventType: EventLogRotated,
		PrevHash:  prevHashBeforeRotation,
		Details: map[string]string{
			"previousFile": l.backupName(1),
		},
	}
	sentinelHash, err := computeHash(sentinel)
	if err != nil {
		log.Error("rotation sentinel hash failed, chain broken", logging.KeyError, err)
		l.dropped.Add(1)
		l.prevHash = "chain-broken"
		return nil
	}
	sentinel.EntryHash = sentinelHash

	data, err := json.Marshal(sentinel)
	if err != nil {
		log.Error("rotation sentinel marshal failed, chain broken", logging.KeyError, err)
		l.dropped.Add(1)
		l.prevHash = "chain-broken"
		return nil
	}
	data = append(data, '\n')

	n, writeErr := l.file.Write(data)
	if writeErr != nil {
		log.Error("rotation sentinel write failed, chain broken", logging.KeyError, writeErr)
		l.dropped.Add(1)
		l.prevHash = "chain-broken"
		return nil
	}
	l.written += int64(n)
	l.prevHash = sentinel.EntryHash

	return nil
}

func (l *Logger) backupName(index int) string {
	if index == 0 {
		return l.filePath
	}
	return fmt.Sprintf("%s.%d", l.filePath, index)
}
