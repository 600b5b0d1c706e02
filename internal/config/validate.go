package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks the loaded config for values that would fail deep inside a
// conversion run. Returns all problems joined, not just the first.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.WorkDir) == "" {
		errs = append(errs, errors.New("work_dir must not be empty"))
	}
	if c.BootStartValue < 0 || c.BootStartValue > 4 {
		errs = append(errs, fmt.Errorf("boot_start_value %d outside SERVICE_BOOT_START..SERVICE_DISABLED range", c.BootStartValue))
	}
	if c.MinFreeMB < 0 {
		errs = append(errs, fmt.Errorf("min_free_mb must not be negative, got %d", c.MinFreeMB))
	}

	switch c.Archive.Provider {
	case "", "local", "s3":
	default:
		errs = append(errs, fmt.Errorf("unknown archive provider %q (want local or s3)", c.Archive.Provider))
	}
	if c.Archive.Provider == "local" && strings.TrimSpace(c.Archive.LocalPath) == "" {
		errs = append(errs, errors.New("archive.local_path required for the local provider"))
	}
	if c.Archive.Provider == "s3" {
		if c.Archive.S3Bucket == "" {
			errs = append(errs, errors.New("archive.s3_bucket required for the s3 provider"))
		}
		if c.Archive.S3Region == "" {
			errs = append(errs, errors.New("archive.s3_region required for the s3 provider"))
		}
	}

	return errors.Join(errs...)
}
