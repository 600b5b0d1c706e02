package hivestore

import (
	"fmt"
	"strings"

	"github.com/virtshift/virtshift/internal/logging"
)

var log = logging.L("hivestore")

// nodeDeleter is the subset of the hive library used by the delete
// strategies.
type nodeDeleter interface {
	NodeGetChild(node int64, name string) (int64, error)
	NodeChildren(node int64) ([]int64, error)
	NodeName(node int64) (string, error)
	NodeDeleteChild(node int64) (int, error)
}

// deleteStrategy is one call shape for removing a child key. Library
// versions disagree on lookup semantics, so strategies are tried in order
// until one succeeds; the list exists so future quirks get a new entry
// instead of another ad hoc retry.
type deleteStrategy struct {
	name string
	run  func(d nodeDeleter, parent int64, name string) (bool, error)
}

var deleteStrategies = []deleteStrategy{
	{
		// Resolve the child by name, then delete through its own handle.
		name: "child-handle",
		run: func(d nodeDeleter, parent int64, name string) (bool, error) {
			child, err := d.NodeGetChild(parent, name)
			if err != nil {
				return false, err
			}
			if child <= 0 {
				return false, nil
			}
			if _, err := d.NodeDeleteChild(child); err != nil {
				return false, err
			}
			return true, nil
		},
	},
	{
		// Some library versions fail name lookups that their own child
		// enumeration can satisfy. Scan children case-insensitively and
		// delete the match.
		name: "child-scan",
		run: func(d nodeDeleter, parent int64, name string) (bool, error) {
			children, err := d.NodeChildren(parent)
			if err != nil {
				return false, err
			}
			for _, child := range children {
				childName, err := d.NodeName(child)
				if err != nil {
					continue
				}
				if strings.EqualFold(childName, name) {
					if _, err := d.NodeDeleteChild(child); err != nil {
						return false, err
					}
					return true, nil
				}
			}
			return false, nil
		},
	},
}

// deleteChild tries each strategy in order. Returns (true, nil) when a
// strategy removed the key, (false, nil) when no strategy found it, and the
// last error when every strategy that found work failed.
func deleteChild(d nodeDeleter, parent int64, name string) (bool, error) {
	var lastErr error
	for _, s := range deleteStrategies {
		deleted, err := s.run(d, parent, name)
		if err != nil {
			log.Debug("delete strategy failed", "strategy", s.name, "key", name, logging.KeyError, err)
			lastErr = err
			continue
		}
		if deleted {
			log.Debug("delete strategy succeeded", "strategy", s.name, "key", name)
			return true, nil
		}
	}
	if lastErr != nil {
		return false, fmt.Errorf("all delete strategies failed for %q: %w", name, lastErr)
	}
	return false, nil
}
