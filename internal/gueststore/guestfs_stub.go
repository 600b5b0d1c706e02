//go:build !guestfs

package gueststore

import "errors"

// ErrNotSupported is returned when the binary was built without the guestfs
// build tag (libguestfs and its headers are required at build time).
var ErrNotSupported = errors.New("guest access not supported: rebuild with -tags guestfs")

// Connect fails: this build carries no guest filesystem library.
func Connect(image string, readwrite bool) (Store, error) {
	return nil, ErrNotSupported
}
