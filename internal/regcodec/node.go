package regcodec

// NodeRef is a normalized reference to a key inside an open hive. The zero
// value is the single "no such node" sentinel; every other value is an opaque
// library handle valid only for the lifetime of the hive that produced it.
type NodeRef int64

// InvalidNode is the one sentinel for "no such node".
const InvalidNode NodeRef = 0

// Normalize folds the hive library's inconsistent absent-node representations
// into InvalidNode. Depending on the library version a missing child surfaces
// as handle 0, a negative handle, or a lookup error; all of them map to the
// same sentinel here so callers never compare raw integers against zero.
func Normalize(raw int64) NodeRef {
	if raw <= 0 {
		return InvalidNode
	}
	return NodeRef(raw)
}

// NormalizeLookup folds a (handle, error) lookup result into a NodeRef. A
// lookup error is treated as "absent": the hive library reports missing
// children through errno in some versions and through a zero handle in
// others.
func NormalizeLookup(raw int64, err error) NodeRef {
	if err != nil {
		return InvalidNode
	}
	return Normalize(raw)
}

// Valid reports whether n refers to an actual node.
func (n NodeRef) Valid() bool {
	return n != InvalidNode
}

// Raw returns the library handle for passing back into the hive store.
// Only meaningful for valid refs.
func (n NodeRef) Raw() int64 {
	return int64(n)
}
