package regedit

import (
	"strings"
	"testing"

	"github.com/virtshift/virtshift/pkg/report"
)

func TestSetDwordAtCreatesPath(t *testing.T) {
	s := newSystemStore()
	rpt := report.New("SYSTEM", false)
	ed := NewEditor(s, rpt, nil, false)

	ed.SetDwordAt(resolveForTest(t, s, rpt), []string{"Control", "CrashControl"}, "AutoReboot", 1)

	got := dwordAt(t, s, []string{"ControlSet001", "Control", "CrashControl"}, "AutoReboot")
	if got != 1 {
		t.Fatalf("AutoReboot = %d", got)
	}
	if !rpt.Modified {
		t.Fatal("write should mark the report modified")
	}
}

func TestSetDwordAtSkipsIdenticalValue(t *testing.T) {
	s := newSystemStore()
	first := report.New("SYSTEM", false)
	NewEditor(s, first, nil, false).SetDwordAt(resolveForTest(t, s, first), []string{"Control", "CrashControl"}, "CrashDumpEnabled", 7)

	rerun := report.New("SYSTEM", false)
	NewEditor(s, rerun, nil, false).SetDwordAt(resolveForTest(t, s, rerun), []string{"Control", "CrashControl"}, "CrashDumpEnabled", 7)

	if rerun.Modified {
		t.Fatal("identical value must not be rewritten")
	}
	if len(rerun.Notes) == 0 || !strings.Contains(rerun.Notes[0], "already") {
		t.Fatalf("notes = %v", rerun.Notes)
	}
}

func TestSetDwordAtReportsPriorValue(t *testing.T) {
	s := newSystemStore()
	first := report.New("SYSTEM", false)
	NewEditor(s, first, nil, false).SetDwordAt(resolveForTest(t, s, first), []string{"Control", "CrashControl"}, "CrashDumpEnabled", 7)

	second := report.New("SYSTEM", false)
	NewEditor(s, second, nil, false).SetDwordAt(resolveForTest(t, s, second), []string{"Control", "CrashControl"}, "CrashDumpEnabled", 3)

	if got := dwordAt(t, s, []string{"ControlSet001", "Control", "CrashControl"}, "CrashDumpEnabled"); got != 3 {
		t.Fatalf("CrashDumpEnabled = %d", got)
	}
	found := false
	for _, note := range second.Notes {
		if strings.Contains(note, "changed from 7 to 3") {
			found = true
		}
	}
	if !found {
		t.Fatalf("prior value not reported: %v", second.Notes)
	}
}

func TestSetDwordAtFailsWithoutControlSet(t *testing.T) {
	s := newSystemStore()
	rpt := report.New("SYSTEM", false)
	ed := NewEditor(s, rpt, nil, false)

	ed.SetDwordAt(ControlSet{Name: "ControlSet001"}, []string{"Control"}, "X", 1)

	if len(rpt.Errors) != 1 {
		t.Fatalf("errors = %v", rpt.Errors)
	}
}
