package regedit

import (
	"strings"

	"github.com/virtshift/virtshift/internal/audit"
	"github.com/virtshift/virtshift/internal/hivestore"
	"github.com/virtshift/virtshift/internal/regcodec"
)

const defaultDevicePath = `%SystemRoot%\inf`

// AppendDevicePath adds entry to the SOFTWARE hive's device driver search
// path unless a case-insensitive duplicate already exists, so repeated runs
// never grow the path.
func (e *Editor) AppendDevicePath(root regcodec.NodeRef, entry string) {
	entry = strings.TrimSpace(entry)

	if e.dryRun {
		cv := walk(e.store, root, "Microsoft", "Windows", "CurrentVersion")
		current, ok := readString(e.store, cv, "DevicePath")
		if !ok || current == "" {
			current = defaultDevicePath
		}
		if devicePathContains(current, entry) {
			e.rpt.Notef("DevicePath already contains %s", entry)
		} else {
			e.rpt.Notef("would append %s to DevicePath", entry)
		}
		return
	}

	cv, err := ensurePath(e.store, root, "Microsoft", "Windows", "CurrentVersion")
	if err != nil {
		e.rpt.Errorf("DevicePath: %v", err)
		return
	}

	current, ok := readString(e.store, cv, "DevicePath")
	if !ok || current == "" {
		current = defaultDevicePath
	}
	if devicePathContains(current, entry) {
		e.rpt.Notef("DevicePath already contains %s", entry)
		return
	}

	updated := current + ";" + entry
	if err := setString(e.store, cv, "DevicePath", hivestore.KindExpandStringZ, updated); err != nil {
		e.rpt.Errorf("DevicePath: %v", err)
		return
	}
	e.rpt.Modified = true
	e.record(audit.EventValueWritten, map[string]string{
		"key":   `Microsoft\Windows\CurrentVersion`,
		"name":  "DevicePath",
		"value": updated,
	})
	log.Info("DevicePath updated", "entry", entry)
}

func devicePathContains(current, entry string) bool {
	for _, part := range strings.Split(current, ";") {
		if strings.EqualFold(strings.TrimSpace(part), entry) {
			return true
		}
	}
	return false
}

// SetRunOnce installs a first-boot command under RunOnce. A matching
// existing value is left untouched, keeping repeated runs idempotent.
func (e *Editor) SetRunOnce(root regcodec.NodeRef, name, command string) {
	if e.dryRun {
		ro := walk(e.store, root, "Microsoft", "Windows", "CurrentVersion", "RunOnce")
		if existing, ok := readString(e.store, ro, name); ok && existing == command {
			e.rpt.Notef("RunOnce %s already set", name)
		} else {
			e.rpt.Notef("would set RunOnce %s = %s", name, command)
		}
		return
	}

	ro, err := ensurePath(e.store, root, "Microsoft", "Windows", "CurrentVersion", "RunOnce")
	if err != nil {
		e.rpt.Errorf("RunOnce: %v", err)
		return
	}

	if existing, ok := readString(e.store, ro, name); ok && existing == command {
		e.rpt.Notef("RunOnce %s already set", name)
		return
	}

	if err := setString(e.store, ro, name, hivestore.KindStringZ, command); err != nil {
		e.rpt.Errorf("RunOnce %s: %v", name, err)
		return
	}
	e.rpt.Modified = true
	e.record(audit.EventValueWritten, map[string]string{
		"key":  `Microsoft\Windows\CurrentVersion\RunOnce`,
		"name": name,
	})
	log.Info("RunOnce command installed", "name", name)
}
