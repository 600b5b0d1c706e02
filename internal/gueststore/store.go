// Package gueststore abstracts access to an un-booted guest's filesystem:
// mount, inspection, and file movement. Implementations never execute
// anything inside the guest.
package gueststore

// Mountpoint pairs a guest mount path with the device that backs it.
// Ordering matters: filesystems must be mounted parents-first.
type Mountpoint struct {
	Path   string
	Device string
}

// Store is one attached guest disk image.
type Store interface {
	// IsFile reports whether path exists in the guest and is a regular file.
	IsFile(path string) (bool, error)

	// Download copies a guest file to a local path.
	Download(remote, local string) error

	// Upload copies a local file into the guest.
	Upload(local, remote string) error

	// ReadFile returns the whole content of a guest file. Fallback path for
	// when Download silently materializes nothing.
	ReadFile(remote string) ([]byte, error)

	// InspectOS returns the root filesystems of detected operating systems.
	InspectOS() ([]string, error)

	// InspectMountpoints returns the mountpoints of an inspected root,
	// ordered shortest mount path first so nested mounts land correctly.
	InspectMountpoints(root string) ([]Mountpoint, error)

	// Mount mounts a device at a guest mount path.
	Mount(device, mountpath string) error

	// UnmountAll unmounts every mounted filesystem.
	UnmountAll() error

	// Close detaches the image and releases the appliance.
	Close() error
}
