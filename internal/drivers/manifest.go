package drivers

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// manifest is the on-disk shape of a driver manifest file.
type manifest struct {
	Drivers []Descriptor `yaml:"drivers"`
}

// LoadManifest reads a YAML driver manifest and validates every entry.
func LoadManifest(path string) ([]Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading driver manifest: %w", err)
	}

	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing driver manifest %s: %w", path, err)
	}
	if len(m.Drivers) == 0 {
		return nil, fmt.Errorf("driver manifest %s lists no drivers", path)
	}

	for i := range m.Drivers {
		if err := m.Drivers[i].Validate(); err != nil {
			return nil, fmt.Errorf("driver manifest %s entry %d: %w", path, i, err)
		}
	}
	return m.Drivers, nil
}
