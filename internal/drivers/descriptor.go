// Package drivers defines the fixed-shape descriptor for a guest driver to
// be registered offline. Optional fields are resolved to concrete defaults
// here, at the boundary, so editor logic never branches on missing data.
package drivers

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Kind classifies a driver by the registry treatment it needs.
type Kind int

const (
	KindOther Kind = iota
	KindStorage
	KindNetwork
)

// Service start types from the SERVICE_*_START constants.
const (
	StartBoot   = 0
	StartSystem = 1
	StartAuto   = 2
	StartDemand = 3
)

// Service groups controlling driver load ordering.
const (
	GroupSCSIMiniport = "SCSI miniport"
	GroupNDIS         = "NDIS"
	GroupBusExtender  = "System Bus Extender"
)

func (k Kind) String() string {
	switch k {
	case KindStorage:
		return "storage"
	case KindNetwork:
		return "network"
	default:
		return "other"
	}
}

// UnmarshalYAML accepts "storage", "network", and "other".
func (k *Kind) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "storage":
		*k = KindStorage
	case "network":
		*k = KindNetwork
	case "other", "":
		*k = KindOther
	default:
		return fmt.Errorf("unknown driver kind %q", s)
	}
	return nil
}

// Descriptor describes one driver service to create or update in the guest.
// Read-only to the editors; owned by the caller.
type Descriptor struct {
	ServiceName  string   `yaml:"service_name"`
	DestFileName string   `yaml:"dest_file"`
	Kind         Kind     `yaml:"kind"`
	StartType    *int     `yaml:"start_type"` // nil -> StartDemand
	ClassGUID    string   `yaml:"class_guid"`
	DisplayName  string   `yaml:"display_name"`
	PCIIDs       []string `yaml:"pci_ids"`
}

// Validate rejects descriptors the editors cannot act on.
func (d *Descriptor) Validate() error {
	if strings.TrimSpace(d.ServiceName) == "" {
		return fmt.Errorf("driver descriptor missing service_name")
	}
	if strings.TrimSpace(d.DestFileName) == "" {
		return fmt.Errorf("driver %s missing dest_file", d.ServiceName)
	}
	if d.Kind == KindStorage && len(d.PCIIDs) == 0 {
		return fmt.Errorf("storage driver %s has no pci_ids for the critical device database", d.ServiceName)
	}
	return nil
}

// StartValue resolves the Start value to write. Storage drivers are forced
// to bootStart no matter what the descriptor says: a non-boot-start storage
// driver leaves the guest at INACCESSIBLE_BOOT_DEVICE.
func (d *Descriptor) StartValue(bootStart uint32) uint32 {
	if d.Kind == KindStorage {
		return bootStart
	}
	if d.StartType != nil {
		return uint32(*d.StartType)
	}
	return StartDemand
}

// Group returns the load-order group for the driver's class.
func (d *Descriptor) Group() string {
	switch d.Kind {
	case KindStorage:
		return GroupSCSIMiniport
	case KindNetwork:
		return GroupNDIS
	default:
		return GroupBusExtender
	}
}

// Display returns the display name, defaulting to the service name.
func (d *Descriptor) Display() string {
	if d.DisplayName != "" {
		return d.DisplayName
	}
	return d.ServiceName
}

// ImagePath returns the in-guest kernel path of the driver binary.
func (d *Descriptor) ImagePath() string {
	return `\SystemRoot\System32\drivers\` + d.DestFileName
}
