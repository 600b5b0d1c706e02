// Package mountcheck proves that the guest filesystem root currently mounted
// is the Windows system volume before any hive is touched. Editing the wrong
// volume is silent data corruption, so an unprovable mount is a hard stop.
package mountcheck

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/virtshift/virtshift/internal/gueststore"
	"github.com/virtshift/virtshift/internal/logging"
)

var log = logging.L("mountcheck")

// ErrMount means the expected Windows layout could not be proven at the
// guest root, even after remounting.
var ErrMount = errors.New("windows system volume not proven")

// expectedPaths must all exist at the guest root for it to be accepted as a
// Windows system volume.
var expectedPaths = []string{
	"/Windows/System32/config/SYSTEM",
	"/Windows/System32/config/SOFTWARE",
	"/Windows/System32/cmd.exe",
}

// EnsureWindowsRoot verifies the expected layout, and on failure re-runs OS
// inspection and remounts everything before re-checking. rootHint selects
// among multiple inspected roots; empty means take the first.
func EnsureWindowsRoot(g gueststore.Store, rootHint string) error {
	missing, err := missingPaths(g)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMount, err)
	}
	if len(missing) == 0 {
		return nil
	}

	log.Warn("windows layout not visible, remounting", "missing", strings.Join(missing, ", "))
	if err := remount(g, rootHint); err != nil {
		return fmt.Errorf("%w: %v", ErrMount, err)
	}

	missing, err = missingPaths(g)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMount, err)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: still missing after remount: %s", ErrMount, strings.Join(missing, ", "))
	}
	return nil
}

func missingPaths(g gueststore.Store) ([]string, error) {
	var missing []string
	for _, p := range expectedPaths {
		ok, err := g.IsFile(p)
		if err != nil {
			return nil, fmt.Errorf("checking %s: %w", p, err)
		}
		if !ok {
			missing = append(missing, p)
		}
	}
	return missing, nil
}

func remount(g gueststore.Store, rootHint string) error {
	roots, err := g.InspectOS()
	if err != nil {
		return fmt.Errorf("inspect_os: %w", err)
	}
	if len(roots) == 0 {
		return errors.New("no operating systems detected")
	}

	root := roots[0]
	for _, r := range roots {
		if r == rootHint {
			root = r
			break
		}
	}

	mps, err := g.InspectMountpoints(root)
	if err != nil {
		return fmt.Errorf("inspect mountpoints for %s: %w", root, err)
	}
	// Parents before children: "/" must be mounted before "/boot" or the
	// nested mount lands on the wrong filesystem.
	sort.SliceStable(mps, func(i, j int) bool {
		return len(mps[i].Path) < len(mps[j].Path)
	})

	if err := g.UnmountAll(); err != nil {
		return fmt.Errorf("umount_all: %w", err)
	}
	for _, mp := range mps {
		if err := g.Mount(mp.Device, mp.Path); err != nil {
			// Secondary mounts (swap-like, recovery partitions) may fail
			// without making the root unusable. The re-check decides.
			log.Warn("mount failed", "device", mp.Device, "path", mp.Path, logging.KeyError, err)
		}
	}
	return nil
}
