// Package hivestore wraps the external registry hive library behind a small
// primitive surface: open, child/value lookup, mutation, commit. The hive's
// on-disk layout is entirely the library's business.
package hivestore

// ValueKind identifies the registry data types this tool reads and writes.
type ValueKind int

const (
	KindNone ValueKind = iota
	KindStringZ
	KindExpandStringZ
	KindDword
	KindBinary
)

func (k ValueKind) String() string {
	switch k {
	case KindStringZ:
		return "REG_SZ"
	case KindExpandStringZ:
		return "REG_EXPAND_SZ"
	case KindDword:
		return "REG_DWORD"
	case KindBinary:
		return "REG_BINARY"
	default:
		return "REG_NONE"
	}
}

// Value is a typed registry value in guest-native binary form. StringZ and
// ExpandStringZ bytes are UTF-16LE with a trailing NUL pair; Dword bytes are
// exactly 4 little-endian bytes.
type Value struct {
	Name  string
	Kind  ValueKind
	Bytes []byte
}

// Store is one open hive. Node handles are raw library values: zero, a
// negative number, or a lookup error may all mean "absent" depending on the
// library version. Callers normalize through regcodec and never interpret
// raw handles directly.
//
// A Store must be closed on every exit path. Closing does not commit.
type Store interface {
	// Root returns the handle of the hive's root node.
	Root() (int64, error)

	// GetChild looks up a child key by name (case-insensitive).
	GetChild(node int64, name string) (int64, error)

	// AddChild creates a child key and returns its handle.
	AddChild(node int64, name string) (int64, error)

	// GetValue reads a named value. Absent values surface as (nil, nil) or
	// as an error, depending on the implementation.
	GetValue(node int64, name string) (*Value, error)

	// SetValue writes a value, replacing any existing value of that name.
	SetValue(node int64, v Value) error

	// DeleteChild removes a child key. Returns whether the key existed.
	// A failed delete is non-fatal to callers and is logged here.
	DeleteChild(node int64, name string) (bool, error)

	// Commit writes accumulated changes back to the hive file.
	Commit() error

	// Close releases the hive. Safe after a failed Commit.
	Close() error
}

// Opener opens the hive file at path, read-write when write is true.
type Opener func(path string, write bool) (Store, error)
