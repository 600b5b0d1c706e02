//go:build !hivex

package hivestore

import "errors"

// ErrNotSupported is returned when the binary was built without the hivex
// build tag (libhivex and its headers are required at build time).
var ErrNotSupported = errors.New("hive access not supported: rebuild with -tags hivex")

// Open fails: this build carries no hive library.
func Open(path string, write bool) (Store, error) {
	return nil, ErrNotSupported
}
