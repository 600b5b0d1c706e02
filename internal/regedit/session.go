package regedit

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/virtshift/virtshift/internal/archive"
	"github.com/virtshift/virtshift/internal/audit"
	"github.com/virtshift/virtshift/internal/drivers"
	"github.com/virtshift/virtshift/internal/gueststore"
	"github.com/virtshift/virtshift/internal/hivestore"
	"github.com/virtshift/virtshift/internal/logging"
	"github.com/virtshift/virtshift/internal/mountcheck"
	"github.com/virtshift/virtshift/internal/transfer"
	"github.com/virtshift/virtshift/pkg/report"
)

// Guest paths of the hives this tool edits.
const (
	SystemHivePath   = "/Windows/System32/config/SYSTEM"
	SoftwareHivePath = "/Windows/System32/config/SOFTWARE"
)

// SessionConfig wires a session's collaborators. Trail and Archive are
// optional; nil disables them.
type SessionConfig struct {
	Guest     gueststore.Store
	Open      hivestore.Opener
	WorkDir   string
	DryRun    bool
	BootStart uint32
	MinFreeMB int

	// RootHint selects among multiple inspected OS roots when the mount
	// validator has to remount; empty takes the first.
	RootHint string

	Trail   *audit.Logger
	Archive *archive.Manager
}

// Session runs hive operations against one guest image. Each operation is
// single-threaded and blocking; operations on distinct hives carry no
// shared mutable state and may run in separate sessions concurrently.
//
// Nothing is raised past an operation: every failure lands in the returned
// report's error list.
type Session struct {
	guest     gueststore.Store
	xfer      *transfer.Manager
	open      hivestore.Opener
	trail     *audit.Logger
	archive   *archive.Manager
	workDir   string
	dryRun    bool
	bootStart uint32
	rootHint  string
}

// NewSession builds a session from its collaborators.
func NewSession(cfg SessionConfig) *Session {
	return &Session{
		guest:     cfg.Guest,
		xfer:      transfer.NewManager(cfg.Guest, cfg.WorkDir, cfg.MinFreeMB),
		open:      cfg.Open,
		trail:     cfg.Trail,
		archive:   cfg.Archive,
		workDir:   cfg.WorkDir,
		dryRun:    cfg.DryRun,
		bootStart: cfg.BootStart,
		rootHint:  cfg.RootHint,
	}
}

// FixBoot rewrites the SYSTEM hive so the guest boots on the new platform:
// driver service entries, boot-start storage drivers, and critical device
// database entries. After a live commit the hive is re-downloaded and each
// service's Start value is checked against what should have been written.
func (s *Session) FixBoot(ds []drivers.Descriptor) *report.Report {
	expected := make(map[string]uint32, len(ds))

	rpt := s.editHive(SystemHivePath, func(st hivestore.Store, rpt *report.Report) {
		root, err := hiveRoot(st)
		if err != nil {
			rpt.Errorf("%v", err)
			return
		}
		cs := ResolveControlSet(st, root, rpt)
		ed := NewEditor(st, rpt, s.trail, s.dryRun)
		for i := range ds {
			d := &ds[i]
			if ed.ConfigureService(cs, d, s.bootStart) {
				expected[d.ServiceName] = d.StartValue(s.bootStart)
			}
		}
	})

	if !s.dryRun && rpt.Verification != nil {
		s.postWriteCheck(SystemHivePath, expected, rpt)
	}
	return rpt.Finish()
}

// FixSoftware edits the SOFTWARE hive: the device driver search path and an
// optional first-boot command.
func (s *Session) FixSoftware(devicePathEntry, runOnceName, runOnceCommand string) *report.Report {
	rpt := s.editHive(SoftwareHivePath, func(st hivestore.Store, rpt *report.Report) {
		root, err := hiveRoot(st)
		if err != nil {
			rpt.Errorf("%v", err)
			return
		}
		ed := NewEditor(st, rpt, s.trail, s.dryRun)
		if devicePathEntry != "" {
			ed.AppendDevicePath(root, devicePathEntry)
		}
		if runOnceCommand != "" {
			ed.SetRunOnce(root, runOnceName, runOnceCommand)
		}
	})
	return rpt.Finish()
}

// SetValue writes one Dword at keyPath under the current control set of the
// SYSTEM hive.
func (s *Session) SetValue(keyPath []string, name string, value uint32) *report.Report {
	rpt := s.editHive(SystemHivePath, func(st hivestore.Store, rpt *report.Report) {
		root, err := hiveRoot(st)
		if err != nil {
			rpt.Errorf("%v", err)
			return
		}
		cs := ResolveControlSet(st, root, rpt)
		ed := NewEditor(st, rpt, s.trail, s.dryRun)
		ed.SetDwordAt(cs, keyPath, name, value)
	})
	return rpt.Finish()
}

// Inspect reports the resolved control set and the state of the named
// services without modifying anything.
func (s *Session) Inspect(services []string) *report.Report {
	rpt := report.New(SystemHivePath, true)

	if err := mountcheck.EnsureWindowsRoot(s.guest, s.rootHint); err != nil {
		rpt.Errorf("mount validation: %v", err)
		return rpt.Finish()
	}
	if exists, err := s.guest.IsFile(SystemHivePath); err != nil || !exists {
		rpt.Errorf("hive %s not found in guest", SystemHivePath)
		return rpt.Finish()
	}

	local := filepath.Join(s.workDir, "SYSTEM.inspect")
	if err := s.xfer.Download(SystemHivePath, local); err != nil {
		rpt.Errorf("download: %v", err)
		return rpt.Finish()
	}
	defer os.Remove(local)

	st, err := s.open(local, false)
	if err != nil {
		rpt.Errorf("opening hive: %v", err)
		return rpt.Finish()
	}
	defer st.Close()

	root, err := hiveRoot(st)
	if err != nil {
		rpt.Errorf("%v", err)
		return rpt.Finish()
	}
	cs := ResolveControlSet(st, root, rpt)
	rpt.Notef("current control set: %s", cs.Name)

	for _, name := range services {
		svc := walk(st, cs.Node, "Services", name)
		if !svc.Valid() {
			rpt.Notef("service %s: not present", name)
			continue
		}
		start, ok := readDword(st, svc, "Start")
		imagePath, _ := readString(st, svc, "ImagePath")
		if ok {
			rpt.Notef("service %s: Start=%d ImagePath=%s", name, start, imagePath)
		} else {
			rpt.Notef("service %s: present, Start not readable", name)
		}
	}
	return rpt.Finish()
}

// editHive runs one edit operation end to end: validate mount, back up,
// download, open, edit, commit, upload, verify. The hive handle is closed
// on every exit path. The returned report is not finished; callers may
// append verification results before calling Finish.
func (s *Session) editHive(remote string, edit func(hivestore.Store, *report.Report)) *report.Report {
	rpt := report.New(remote, s.dryRun)
	logger := logging.WithHive(log, remote)

	if err := mountcheck.EnsureWindowsRoot(s.guest, s.rootHint); err != nil {
		rpt.Errorf("mount validation: %v", err)
		return rpt
	}
	if exists, err := s.guest.IsFile(remote); err != nil || !exists {
		rpt.Errorf("hive %s not found in guest", remote)
		return rpt
	}
	if err := s.xfer.PreflightSpace(); err != nil {
		rpt.Errorf("%v", err)
		return rpt
	}

	if s.dryRun {
		rpt.Notef("dry run: backup skipped")
	} else {
		backupPath, err := s.xfer.Backup(remote)
		if err != nil {
			rpt.Errorf("backup: %v", err)
			return rpt
		}
		rpt.Notef("hive backed up to %s", backupPath)
		s.trail.Record(audit.EventHiveBackedUp, remote, map[string]string{"backup": backupPath})
	}

	local := filepath.Join(s.workDir, filepath.Base(remote))
	if err := s.xfer.Download(remote, local); err != nil {
		rpt.Errorf("download: %v", err)
		return rpt
	}
	defer os.Remove(local)

	shaBefore, err := transfer.HashFile(local)
	if err != nil {
		rpt.Errorf("hashing %s: %v", local, err)
		return rpt
	}
	s.trail.Record(audit.EventHiveDownloaded, remote, map[string]string{"sha256": shaBefore})

	if !s.dryRun {
		if err := s.archive.Store(local, remote); err != nil {
			rpt.Warnf("archiving pre-edit hive: %v", err)
		}
	}

	st, err := s.open(local, !s.dryRun)
	if err != nil {
		rpt.Errorf("opening hive: %v", err)
		return rpt
	}
	closed := false
	defer func() {
		if !closed {
			st.Close()
		}
	}()

	edit(st, rpt)

	if s.dryRun {
		return rpt
	}

	if err := st.Commit(); err != nil {
		rpt.Errorf("commit: %v", err)
		return rpt
	}
	s.trail.Record(audit.EventHiveCommitted, remote, map[string]string{"sha256_before": shaBefore})

	if err := st.Close(); err != nil {
		rpt.Warnf("closing hive: %v", err)
	}
	closed = true

	rec, err := s.xfer.UploadAndVerify(local, remote, shaBefore)
	rpt.Verification = &rec
	if err != nil {
		rpt.Errorf("upload: %v", err)
		return rpt
	}
	s.trail.Record(audit.EventHiveUploaded, remote, map[string]string{
		"sha256":  rec.SHA256After,
		"changed": strconv.FormatBool(rec.Changed),
	})
	if rpt.Modified && !rec.Changed {
		rpt.Warnf("hive content unchanged after commit")
	}
	logger.Info("hive edit complete", "modified", rpt.Modified, "changed", rec.Changed)
	return rpt
}

// postWriteCheck re-downloads the hive read-only and asserts each service's
// Start value matches the intent.
func (s *Session) postWriteCheck(remote string, expected map[string]uint32, rpt *report.Report) {
	if len(expected) == 0 {
		return
	}

	local := filepath.Join(s.workDir, filepath.Base(remote)+".postcheck")
	if err := s.xfer.Download(remote, local); err != nil {
		rpt.VerificationErrors = append(rpt.VerificationErrors,
			"re-download for service check: "+err.Error())
		return
	}
	defer os.Remove(local)

	st, err := s.open(local, false)
	if err != nil {
		rpt.VerificationErrors = append(rpt.VerificationErrors,
			"reopening hive for service check: "+err.Error())
		return
	}
	defer st.Close()

	VerifyServiceStarts(st, expected, rpt)
	s.trail.Record(audit.EventVerification, remote, map[string]string{
		"verified":   strconv.Itoa(len(rpt.VerifiedServices)),
		"mismatches": strconv.Itoa(len(rpt.VerificationErrors)),
	})
}
