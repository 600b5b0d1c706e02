package regedit

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/virtshift/virtshift/internal/audit"
	"github.com/virtshift/virtshift/internal/drivers"
	"github.com/virtshift/virtshift/internal/hivestore"
	"github.com/virtshift/virtshift/internal/logging"
	"github.com/virtshift/virtshift/internal/regcodec"
	"github.com/virtshift/virtshift/pkg/report"
)

const (
	serviceTypeKernelDriver = 1
	errorControlNormal      = 1
	scsiAdapterClass        = "SCSIAdapter"
)

// ConfigureService creates or updates Services\<name> under the control set
// and, for storage drivers, the critical device database entries that let
// early boot find the new controller. Returns whether the service entry was
// written (or would be, in dry run); callers only verify written services.
func (e *Editor) ConfigureService(cs ControlSet, d *drivers.Descriptor, bootStart uint32) bool {
	if !cs.Node.Valid() {
		e.rpt.Errorf("cannot configure %s: control set %s not present", d.ServiceName, cs.Name)
		return false
	}

	start := d.StartValue(bootStart)

	if e.dryRun {
		e.rpt.Notef("would configure service %s (Start=%d, Group=%s)", d.ServiceName, start, d.Group())
		if so := walk(e.store, cs.Node, "Services", d.ServiceName, "StartOverride"); so.Valid() {
			e.rpt.Notef("would remove StartOverride from %s", d.ServiceName)
		}
		if d.Kind == drivers.KindStorage {
			for _, id := range d.PCIIDs {
				e.rpt.Notef("would add critical device %s -> %s", id, d.ServiceName)
			}
		}
		return true
	}

	svc, err := ensurePath(e.store, cs.Node, "Services", d.ServiceName)
	if err != nil {
		e.rpt.Errorf("service %s: %v", d.ServiceName, err)
		return false
	}

	if err := e.writeServiceValues(svc, d, start); err != nil {
		e.rpt.Errorf("service %s: %v", d.ServiceName, err)
		return false
	}
	e.rpt.Modified = true
	e.rpt.Services = append(e.rpt.Services, d.ServiceName)
	e.record(audit.EventServiceConfigured, map[string]string{
		"service": d.ServiceName,
		"start":   strconv.FormatUint(uint64(start), 10),
	})
	log.Info("service configured", logging.KeyService, d.ServiceName, "start", start)

	e.removeStartOverride(svc, d.ServiceName)

	if d.Kind == drivers.KindStorage {
		e.addCriticalDevices(cs, d)
	}
	return true
}

func (e *Editor) writeServiceValues(svc regcodec.NodeRef, d *drivers.Descriptor, start uint32) error {
	if err := setDword(e.store, svc, "Type", serviceTypeKernelDriver); err != nil {
		return fmt.Errorf("Type: %w", err)
	}
	if err := setDword(e.store, svc, "Start", start); err != nil {
		return fmt.Errorf("Start: %w", err)
	}
	if err := setDword(e.store, svc, "ErrorControl", errorControlNormal); err != nil {
		return fmt.Errorf("ErrorControl: %w", err)
	}
	if err := setString(e.store, svc, "Group", hivestore.KindStringZ, d.Group()); err != nil {
		return fmt.Errorf("Group: %w", err)
	}
	if err := setString(e.store, svc, "ImagePath", hivestore.KindExpandStringZ, d.ImagePath()); err != nil {
		return fmt.Errorf("ImagePath: %w", err)
	}
	if err := setString(e.store, svc, "DisplayName", hivestore.KindStringZ, d.Display()); err != nil {
		return fmt.Errorf("DisplayName: %w", err)
	}
	return nil
}

// removeStartOverride drops the StartOverride child whenever present. The
// key can disable a driver despite a correct Start value. A failed delete
// is logged, not fatal.
func (e *Editor) removeStartOverride(svc regcodec.NodeRef, service string) {
	existed, err := e.store.DeleteChild(svc.Raw(), "StartOverride")
	if err != nil {
		e.rpt.Warnf("service %s: removing StartOverride: %v", service, err)
		return
	}
	if !existed {
		return
	}
	e.rpt.Modified = true
	e.rpt.StartOverrideRemoved = append(e.rpt.StartOverrideRemoved, service)
	e.record(audit.EventStartOverrideRemoved, map[string]string{"service": service})
	log.Info("StartOverride removed", logging.KeyService, service)
}

func (e *Editor) addCriticalDevices(cs ControlSet, d *drivers.Descriptor) {
	cdd, err := ensurePath(e.store, cs.Node, "Control", "CriticalDeviceDatabase")
	if err != nil {
		e.rpt.Errorf("critical device database: %v", err)
		return
	}

	for _, id := range d.PCIIDs {
		entry, err := ensureChild(e.store, cdd, id)
		if err != nil {
			e.rpt.Errorf("critical device %s: %v", id, err)
			continue
		}
		if err := e.writeCriticalDevice(entry, d); err != nil {
			e.rpt.Errorf("critical device %s: %v", id, err)
			continue
		}
		e.rpt.Modified = true
		e.rpt.CriticalDevices = append(e.rpt.CriticalDevices, id)
		e.record(audit.EventCriticalDeviceAdded, map[string]string{
			"device":  id,
			"service": d.ServiceName,
		})
	}
}

func (e *Editor) writeCriticalDevice(entry regcodec.NodeRef, d *drivers.Descriptor) error {
	if err := setString(e.store, entry, "Service", hivestore.KindStringZ, d.ServiceName); err != nil {
		return fmt.Errorf("Service: %w", err)
	}
	if d.ClassGUID != "" {
		if err := setString(e.store, entry, "ClassGUID", hivestore.KindStringZ, d.ClassGUID); err != nil {
			return fmt.Errorf("ClassGUID: %w", err)
		}
	}
	if err := setString(e.store, entry, "Class", hivestore.KindStringZ, scsiAdapterClass); err != nil {
		return fmt.Errorf("Class: %w", err)
	}
	if err := setString(e.store, entry, "DeviceDesc", hivestore.KindStringZ, d.Display()); err != nil {
		return fmt.Errorf("DeviceDesc: %w", err)
	}
	return nil
}

// VerifyServiceStarts re-reads each service's Start value from a freshly
// reopened hive and compares it against the value that should have been
// written. Mismatches are verification errors, not failures: the edit
// already happened and no rollback is attempted.
func VerifyServiceStarts(s hivestore.Store, expected map[string]uint32, rpt *report.Report) {
	root, err := hiveRoot(s)
	if err != nil {
		rpt.VerificationErrors = append(rpt.VerificationErrors, err.Error())
		return
	}
	cs := ResolveControlSet(s, root, rpt)

	names := make([]string, 0, len(expected))
	for name := range expected {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		svc := walk(s, cs.Node, "Services", name)
		got, ok := readDword(s, svc, "Start")
		switch {
		case !ok:
			rpt.VerificationErrors = append(rpt.VerificationErrors,
				fmt.Sprintf("service %s: Start not readable after write", name))
		case got != expected[name]:
			rpt.VerificationErrors = append(rpt.VerificationErrors,
				fmt.Sprintf("service %s: Start=%d after write, want %d", name, got, expected[name]))
		default:
			rpt.VerifiedServices = append(rpt.VerifiedServices, name)
		}
	}
}
