// Package archive keeps compressed, dated copies of pre-edit hives in
// off-host storage, so a migration gone wrong can be reconstructed after
// the in-guest backup is lost with the image.
package archive

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/virtshift/virtshift/internal/archive/providers"
	"github.com/virtshift/virtshift/internal/config"
	"github.com/virtshift/virtshift/internal/logging"
)

var log = logging.L("archive")

const keyStamp = "2006-01-02T150405Z"

// Manager archives pre-edit hive copies through a configured provider.
// A nil Manager is valid and archives nothing.
type Manager struct {
	provider providers.Provider
	prefix   string
}

// NewManager builds a manager from config. Returns (nil, nil) when no
// provider is configured.
func NewManager(cfg config.ArchiveConfig) (*Manager, error) {
	switch cfg.Provider {
	case "":
		return nil, nil
	case "local":
		if cfg.LocalPath == "" {
			return nil, errors.New("archive provider local requires local_path")
		}
		return &Manager{provider: providers.NewLocalProvider(cfg.LocalPath)}, nil
	case "s3":
		p, err := providers.NewS3Provider(context.Background(), cfg.S3Bucket, cfg.S3Region, cfg.S3AccessKey, cfg.S3SecretKey)
		if err != nil {
			return nil, err
		}
		return &Manager{provider: p, prefix: cfg.S3Prefix}, nil
	default:
		return nil, fmt.Errorf("unknown archive provider %q", cfg.Provider)
	}
}

// Store archives the local pre-edit copy of a guest hive under a dated key.
func (m *Manager) Store(localPath, remotePath string) error {
	if m == nil {
		return nil
	}
	key := m.key(remotePath)
	if err := m.provider.Upload(localPath, key); err != nil {
		return fmt.Errorf("archiving %s: %w", remotePath, err)
	}
	log.Info("pre-edit hive archived", "key", key, logging.KeyHive, remotePath)
	return nil
}

// List returns the keys of all archived hives.
func (m *Manager) List() ([]string, error) {
	if m == nil {
		return nil, nil
	}
	return m.provider.List(m.prefix)
}

// Restore downloads an archived hive to a local file.
func (m *Manager) Restore(key, localPath string) error {
	if m == nil {
		return errors.New("no archive provider configured")
	}
	return m.provider.Download(key, localPath)
}

// Prune deletes archived hives whose date stamp is older than olderThan.
// Keys without a parseable stamp are left in place. Returns the number of
// entries removed.
func (m *Manager) Prune(olderThan time.Duration) (int, error) {
	if m == nil {
		return 0, errors.New("no archive provider configured")
	}
	keys, err := m.provider.List(m.prefix)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().UTC().Add(-olderThan)
	removed := 0
	for _, key := range keys {
		when, err := time.Parse(keyStamp, m.stampOf(key))
		if err != nil {
			log.Warn("archive key without a date stamp skipped", "key", key)
			continue
		}
		if !when.Before(cutoff) {
			continue
		}
		if err := m.provider.Delete(key); err != nil {
			return removed, fmt.Errorf("pruning %s: %w", key, err)
		}
		removed++
		log.Info("archived hive pruned", "key", key)
	}
	return removed, nil
}

// stampOf extracts the date segment from a key shaped by Store.
func (m *Manager) stampOf(key string) string {
	rel := key
	if m.prefix != "" {
		rel = strings.TrimPrefix(rel, strings.TrimSuffix(m.prefix, "/")+"/")
	}
	if i := strings.Index(rel, "/"); i >= 0 {
		return rel[:i]
	}
	return rel
}

func (m *Manager) key(remotePath string) string {
	name := path.Base(filepath.ToSlash(remotePath))
	key := fmt.Sprintf("%s/%s.gz", time.Now().UTC().Format(keyStamp), name)
	if m.prefix != "" {
		key = path.Join(m.prefix, key)
	}
	return key
}
