package drivers

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleManifest = `
drivers:
  - service_name: viostor
    dest_file: viostor.sys
    kind: storage
    class_guid: "{4d36e97b-e325-11ce-bfc1-08002be10318}"
    pci_ids:
      - "PCI#VEN_1AF4&DEV_1001&SUBSYS_00021AF4&REV_00"
      - "PCI#VEN_1AF4&DEV_1001"
  - service_name: netkvm
    dest_file: netkvm.sys
    kind: network
    start_type: 2
    display_name: Red Hat VirtIO Ethernet Adapter
  - service_name: balloon
    dest_file: balloon.sys
`

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "drivers.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadManifest(t *testing.T) {
	ds, err := LoadManifest(writeManifest(t, sampleManifest))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(ds) != 3 {
		t.Fatalf("expected 3 drivers, got %d", len(ds))
	}

	viostor := ds[0]
	if viostor.Kind != KindStorage {
		t.Errorf("viostor kind = %v", viostor.Kind)
	}
	if len(viostor.PCIIDs) != 2 {
		t.Errorf("viostor pci ids = %v", viostor.PCIIDs)
	}

	netkvm := ds[1]
	if netkvm.Kind != KindNetwork || netkvm.StartType == nil || *netkvm.StartType != StartAuto {
		t.Errorf("netkvm parsed wrong: %+v", netkvm)
	}

	balloon := ds[2]
	if balloon.Kind != KindOther || balloon.StartType != nil {
		t.Errorf("balloon parsed wrong: %+v", balloon)
	}
}

func TestLoadManifestRejectsBadKind(t *testing.T) {
	_, err := LoadManifest(writeManifest(t, "drivers:\n  - service_name: x\n    dest_file: x.sys\n    kind: floppy\n"))
	if err == nil || !strings.Contains(err.Error(), "kind") {
		t.Fatalf("expected kind error, got %v", err)
	}
}

func TestLoadManifestRejectsStorageWithoutPCIIDs(t *testing.T) {
	_, err := LoadManifest(writeManifest(t, "drivers:\n  - service_name: vioscsi\n    dest_file: vioscsi.sys\n    kind: storage\n"))
	if err == nil || !strings.Contains(err.Error(), "pci_ids") {
		t.Fatalf("expected pci_ids error, got %v", err)
	}
}

func TestStartValueForcesBootStartForStorage(t *testing.T) {
	three := StartDemand
	d := Descriptor{ServiceName: "vioscsi", Kind: KindStorage, StartType: &three}
	if got := d.StartValue(StartBoot); got != StartBoot {
		t.Fatalf("storage Start = %d, want boot-start regardless of descriptor", got)
	}
}

func TestStartValueDefaultsToDemand(t *testing.T) {
	d := Descriptor{ServiceName: "balloon", Kind: KindOther}
	if got := d.StartValue(StartBoot); got != StartDemand {
		t.Fatalf("default Start = %d, want %d", got, StartDemand)
	}
}

func TestGroupByKind(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindStorage, GroupSCSIMiniport},
		{KindNetwork, GroupNDIS},
		{KindOther, GroupBusExtender},
	}
	for _, tt := range tests {
		d := Descriptor{Kind: tt.kind}
		if got := d.Group(); got != tt.want {
			t.Errorf("Group(%v) = %q, want %q", tt.kind, got, tt.want)
		}
	}
}
