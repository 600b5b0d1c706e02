package hivestore

import (
	"errors"
	"fmt"
	"os"
)

// Registry hive files start with the 4-byte "regf" signature and are never
// smaller than one header block.
const (
	regfSignature = "regf"
	minHiveSize   = 4096
)

// ErrIntegrity marks a local file that cannot be trusted as a registry hive.
var ErrIntegrity = errors.New("hive integrity check failed")

// CheckFile verifies that path holds a plausible registry hive: at least
// minHiveSize bytes and beginning with the regf signature. A file failing
// either check is never partially trusted.
func CheckFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrIntegrity, path, err)
	}
	if info.Size() < minHiveSize {
		return fmt.Errorf("%w: %s is %d bytes, want at least %d", ErrIntegrity, path, info.Size(), minHiveSize)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrIntegrity, path, err)
	}
	defer f.Close()

	sig := make([]byte, len(regfSignature))
	if _, err := f.Read(sig); err != nil {
		return fmt.Errorf("%w: %s: reading signature: %v", ErrIntegrity, path, err)
	}
	if string(sig) != regfSignature {
		return fmt.Errorf("%w: %s: signature % x is not regf", ErrIntegrity, path, sig)
	}
	return nil
}
