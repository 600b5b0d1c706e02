package regedit

import (
	"fmt"

	"github.com/virtshift/virtshift/internal/hivestore"
	"github.com/virtshift/virtshift/internal/regcodec"
	"github.com/virtshift/virtshift/pkg/report"
)

const fallbackControlSet = "ControlSet001"

// ControlSet identifies the authoritative configuration subtree of a SYSTEM
// hive. Node is the invalid sentinel when the named subtree is not present;
// editors treat that as fatal for their sub-edit.
type ControlSet struct {
	Name string
	Node regcodec.NodeRef
}

// ResolveControlSet picks the current control set from Select\Current and
// falls back to ControlSet001 when the named subtree is missing. The
// fallback can mask a genuinely corrupt hive, so it is surfaced as a
// warning rather than chosen silently.
func ResolveControlSet(s hivestore.Store, root regcodec.NodeRef, rpt *report.Report) ControlSet {
	current, ok := readDword(s, walk(s, root, "Select"), "Current")
	if !ok {
		rpt.Warnf(`Select\Current not readable, assuming control set 1`)
		current = 1
	}

	name := fmt.Sprintf("ControlSet%03d", current)
	node := child(s, root, name)
	if !node.Valid() && name != fallbackControlSet {
		rpt.Warnf("control set %s not found, falling back to %s", name, fallbackControlSet)
		name = fallbackControlSet
		node = child(s, root, name)
	}
	if !node.Valid() {
		rpt.Warnf("control set %s not present in hive", name)
	}

	log.Debug("control set resolved", "name", name, "present", node.Valid())
	return ControlSet{Name: name, Node: node}
}
