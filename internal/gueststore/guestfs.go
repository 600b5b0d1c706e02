//go:build guestfs

package gueststore

import (
	"fmt"
	"sort"

	"libguestfs.org/guestfs"
)

// libStore adapts the libguestfs appliance to the Store interface.
type libStore struct {
	g *guestfs.Guestfs
}

// Connect launches a libguestfs appliance with the disk image attached.
// The image is attached read-only when readwrite is false, which makes every
// Upload fail fast instead of silently writing to a throwaway overlay.
func Connect(image string, readwrite bool) (Store, error) {
	g, errno := guestfs.Create()
	if errno != nil {
		return nil, fmt.Errorf("create guestfs handle: %w", errno)
	}

	optargs := guestfs.OptargsAdd_drive{
		Readonly_is_set: true,
		Readonly:        !readwrite,
	}
	if err := g.Add_drive(image, &optargs); err != nil {
		g.Close()
		return nil, fmt.Errorf("add drive %s: %s", image, err.Errmsg)
	}
	if err := g.Launch(); err != nil {
		g.Close()
		return nil, fmt.Errorf("launch appliance: %s", err.Errmsg)
	}
	return &libStore{g: g}, nil
}

func (s *libStore) IsFile(path string) (bool, error) {
	ok, err := s.g.Is_file(path, nil)
	if err != nil {
		return false, fmt.Errorf("is_file %s: %s", path, err.Errmsg)
	}
	return ok, nil
}

func (s *libStore) Download(remote, local string) error {
	if err := s.g.Download(remote, local); err != nil {
		return fmt.Errorf("download %s: %s", remote, err.Errmsg)
	}
	return nil
}

func (s *libStore) Upload(local, remote string) error {
	if err := s.g.Upload(local, remote); err != nil {
		return fmt.Errorf("upload %s: %s", remote, err.Errmsg)
	}
	return nil
}

func (s *libStore) ReadFile(remote string) ([]byte, error) {
	data, err := s.g.Read_file(remote)
	if err != nil {
		return nil, fmt.Errorf("read_file %s: %s", remote, err.Errmsg)
	}
	return data, nil
}

func (s *libStore) InspectOS() ([]string, error) {
	roots, err := s.g.Inspect_os()
	if err != nil {
		return nil, fmt.Errorf("inspect_os: %s", err.Errmsg)
	}
	return roots, nil
}

func (s *libStore) InspectMountpoints(root string) ([]Mountpoint, error) {
	mps, err := s.g.Inspect_get_mountpoints(root)
	if err != nil {
		return nil, fmt.Errorf("inspect_get_mountpoints %s: %s", root, err.Errmsg)
	}

	out := make([]Mountpoint, 0, len(mps))
	for path, device := range mps {
		out = append(out, Mountpoint{Path: path, Device: device})
	}
	// Shortest mount path first: "/" before "/boot".
	sort.Slice(out, func(i, j int) bool {
		if len(out[i].Path) != len(out[j].Path) {
			return len(out[i].Path) < len(out[j].Path)
		}
		return out[i].Path < out[j].Path
	})
	return out, nil
}

func (s *libStore) Mount(device, mountpath string) error {
	if err := s.g.Mount(device, mountpath); err != nil {
		return fmt.Errorf("mount %s at %s: %s", device, mountpath, err.Errmsg)
	}
	return nil
}

func (s *libStore) UnmountAll() error {
	if err := s.g.Umount_all(); err != nil {
		return fmt.Errorf("umount_all: %s", err.Errmsg)
	}
	return nil
}

func (s *libStore) Close() error {
	if err := s.g.Shutdown(); err != nil {
		s.g.Close()
		return fmt.Errorf("shutdown appliance: %s", err.Errmsg)
	}
	if err := s.g.Close(); err != nil {
		return fmt.Errorf("close handle: %s", err.Errmsg)
	}
	return nil
}
