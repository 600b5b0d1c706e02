package regedit

import (
	"strconv"
	"strings"

	"github.com/virtshift/virtshift/internal/audit"
)

// SetDwordAt writes a Dword at an arbitrary key path under the control set,
// creating intermediate keys as needed. The prior value is reported and an
// identical value is not rewritten.
func (e *Editor) SetDwordAt(cs ControlSet, keyPath []string, name string, value uint32) {
	joined := strings.Join(keyPath, `\`)

	if !cs.Node.Valid() {
		e.rpt.Errorf(`cannot set %s\%s: control set %s not present`, joined, name, cs.Name)
		return
	}

	if e.dryRun {
		node := walk(e.store, cs.Node, keyPath...)
		if prior, ok := readDword(e.store, node, name); ok && prior == value {
			e.rpt.Notef(`%s\%s already %d`, joined, name, value)
		} else {
			e.rpt.Notef(`would set %s\%s = %d`, joined, name, value)
		}
		return
	}

	node, err := ensurePath(e.store, cs.Node, keyPath...)
	if err != nil {
		e.rpt.Errorf("%s: %v", joined, err)
		return
	}

	prior, had := readDword(e.store, node, name)
	if had && prior == value {
		e.rpt.Notef(`%s\%s already %d`, joined, name, value)
		return
	}

	if err := setDword(e.store, node, name, value); err != nil {
		e.rpt.Errorf(`%s\%s: %v`, joined, name, err)
		return
	}
	if had {
		e.rpt.Notef(`%s\%s changed from %d to %d`, joined, name, prior, value)
	} else {
		e.rpt.Notef(`%s\%s set to %d`, joined, name, value)
	}
	e.rpt.Modified = true
	e.record(audit.EventValueWritten, map[string]string{
		"key":   cs.Name + `\` + joined,
		"name":  name,
		"value": strconv.FormatUint(uint64(value), 10),
	})
}
