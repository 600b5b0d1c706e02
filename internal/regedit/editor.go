package regedit

import (
	"github.com/virtshift/virtshift/internal/audit"
	"github.com/virtshift/virtshift/internal/hivestore"
	"github.com/virtshift/virtshift/pkg/report"
)

// Editor applies edits to one open hive and accumulates the outcome.
// Per-driver and per-field failures are isolated: they land in the report's
// error list and do not stop sibling edits. In dry-run mode the editor only
// reads, recording the deltas it would have written as notes.
type Editor struct {
	store  hivestore.Store
	rpt    *report.Report
	trail  *audit.Logger
	dryRun bool
}

// NewEditor binds an editor to an open hive and a report.
func NewEditor(store hivestore.Store, rpt *report.Report, trail *audit.Logger, dryRun bool) *Editor {
	return &Editor{store: store, rpt: rpt, trail: trail, dryRun: dryRun}
}

func (e *Editor) record(eventType string, details map[string]string) {
	e.trail.Record(eventType, e.rpt.HivePath, details)
}
