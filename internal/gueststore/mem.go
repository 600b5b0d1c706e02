package gueststore

import (
	"fmt"
	"os"
)

// MemGuest is an in-memory Store used by tests. Guest files are byte blobs
// keyed by path; mounts and inspection calls are recorded so tests can assert
// on ordering and remount behavior.
type MemGuest struct {
	Files       map[string][]byte
	Roots       []string
	Mountpoints map[string][]Mountpoint

	// TruncateDownloads makes the next N Download calls succeed while
	// materializing an empty local file, the real-world failure the
	// transfer manager's fallback exists for.
	TruncateDownloads int

	DownloadErr error
	UploadErr   error
	ReadErr     error

	// MountHook runs on every Mount call, letting tests change visible
	// Files when a remount happens.
	MountHook func()

	MountCalls   []Mountpoint
	UnmountCalls int
	InspectCalls int
	Closed       bool
}

// NewMemGuest creates an empty fake guest.
func NewMemGuest() *MemGuest {
	return &MemGuest{
		Files:       map[string][]byte{},
		Mountpoints: map[string][]Mountpoint{},
	}
}

func (m *MemGuest) IsFile(path string) (bool, error) {
	_, ok := m.Files[path]
	return ok, nil
}

func (m *MemGuest) Download(remote, local string) error {
	if m.DownloadErr != nil {
		return m.DownloadErr
	}
	if m.TruncateDownloads > 0 {
		m.TruncateDownloads--
		return os.WriteFile(local, nil, 0600)
	}
	data, ok := m.Files[remote]
	if !ok {
		return fmt.Errorf("no such guest file: %s", remote)
	}
	return os.WriteFile(local, data, 0600)
}

func (m *MemGuest) Upload(local, remote string) error {
	if m.UploadErr != nil {
		return m.UploadErr
	}
	data, err := os.ReadFile(local)
	if err != nil {
		return err
	}
	m.Files[remote] = data
	return nil
}

func (m *MemGuest) ReadFile(remote string) ([]byte, error) {
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	data, ok := m.Files[remote]
	if !ok {
		return nil, fmt.Errorf("no such guest file: %s", remote)
	}
	return append([]byte(nil), data...), nil
}

func (m *MemGuest) InspectOS() ([]string, error) {
	m.InspectCalls++
	return m.Roots, nil
}

func (m *MemGuest) InspectMountpoints(root string) ([]Mountpoint, error) {
	return m.Mountpoints[root], nil
}

func (m *MemGuest) Mount(device, mountpath string) error {
	m.MountCalls = append(m.MountCalls, Mountpoint{Path: mountpath, Device: device})
	if m.MountHook != nil {
		m.MountHook()
	}
	return nil
}

func (m *MemGuest) UnmountAll() error {
	m.UnmountCalls++
	return nil
}

func (m *MemGuest) Close() error {
	m.Closed = true
	return nil
}
