package hivestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
)

var errAbsentNode = errors.New("no such node")

type memNode struct {
	name     string
	children map[string]int64 // lowercased name -> handle
	values   map[string]Value // lowercased name -> value
}

// MemStore is an in-memory Store implementation. It backs the package tests
// and the editor scenario tests, and can emulate both absent-node call shapes
// the real library exhibits across versions.
type MemStore struct {
	nodes map[int64]*memNode
	next  int64
	root  int64

	// AbsentAsError emulates library versions that report missing children
	// and values through an error instead of a zero handle.
	AbsentAsError bool

	// BackingPath, when set, receives a serialized dump of the tree on
	// Commit so file-level hash comparison observes content changes.
	BackingPath string

	// CommitErr, when set, makes Commit fail without touching BackingPath.
	CommitErr error

	Commits int
	Closed  bool
}

// NewMemStore creates an empty hive with just a root node.
func NewMemStore() *MemStore {
	s := &MemStore{nodes: map[int64]*memNode{}, next: 4096}
	s.root = s.newNode("$$$PROTO.HIV")
	return s
}

func (s *MemStore) newNode(name string) int64 {
	h := s.next
	s.next += 8
	s.nodes[h] = &memNode{
		name:     name,
		children: map[string]int64{},
		values:   map[string]Value{},
	}
	return h
}

func (s *MemStore) Root() (int64, error) {
	return s.root, nil
}

func (s *MemStore) GetChild(node int64, name string) (int64, error) {
	n, ok := s.nodes[node]
	if !ok {
		return 0, fmt.Errorf("bad node handle %d", node)
	}
	child, ok := n.children[strings.ToLower(name)]
	if !ok {
		if s.AbsentAsError {
			return 0, fmt.Errorf("%w: %s", errAbsentNode, name)
		}
		return 0, nil
	}
	return child, nil
}

func (s *MemStore) AddChild(node int64, name string) (int64, error) {
	n, ok := s.nodes[node]
	if !ok {
		return 0, fmt.Errorf("bad node handle %d", node)
	}
	key := strings.ToLower(name)
	if existing, ok := n.children[key]; ok {
		return existing, nil
	}
	child := s.newNode(name)
	n.children[key] = child
	return child, nil
}

func (s *MemStore) GetValue(node int64, name string) (*Value, error) {
	n, ok := s.nodes[node]
	if !ok {
		return nil, fmt.Errorf("bad node handle %d", node)
	}
	v, ok := n.values[strings.ToLower(name)]
	if !ok {
		if s.AbsentAsError {
			return nil, fmt.Errorf("%w: value %s", errAbsentNode, name)
		}
		return nil, nil
	}
	out := v
	out.Bytes = append([]byte(nil), v.Bytes...)
	return &out, nil
}

func (s *MemStore) SetValue(node int64, v Value) error {
	n, ok := s.nodes[node]
	if !ok {
		return fmt.Errorf("bad node handle %d", node)
	}
	stored := v
	stored.Bytes = append([]byte(nil), v.Bytes...)
	n.values[strings.ToLower(v.Name)] = stored
	return nil
}

func (s *MemStore) DeleteChild(node int64, name string) (bool, error) {
	n, ok := s.nodes[node]
	if !ok {
		return false, fmt.Errorf("bad node handle %d", node)
	}
	key := strings.ToLower(name)
	child, ok := n.children[key]
	if !ok {
		return false, nil
	}
	s.removeSubtree(child)
	delete(n.children, key)
	return true, nil
}

func (s *MemStore) removeSubtree(node int64) {
	n, ok := s.nodes[node]
	if !ok {
		return
	}
	for _, child := range n.children {
		s.removeSubtree(child)
	}
	delete(s.nodes, node)
}

func (s *MemStore) Commit() error {
	if s.CommitErr != nil {
		return s.CommitErr
	}
	s.Commits++
	if s.BackingPath != "" {
		return os.WriteFile(s.BackingPath, s.Serialize(), 0600)
	}
	return nil
}

func (s *MemStore) Close() error {
	s.Closed = true
	return nil
}

// SeedKey walks/creates the key path from the root and returns its handle.
func (s *MemStore) SeedKey(path ...string) int64 {
	node := s.root
	for _, name := range path {
		node, _ = s.AddChild(node, name)
	}
	return node
}

// SeedValue creates the key path and sets a value on its last key.
func (s *MemStore) SeedValue(path []string, v Value) {
	node := s.SeedKey(path...)
	_ = s.SetValue(node, v)
}

// Lookup resolves a key path case-insensitively without creating anything.
func (s *MemStore) Lookup(path ...string) (int64, bool) {
	node := s.root
	for _, name := range path {
		n, ok := s.nodes[node]
		if !ok {
			return 0, false
		}
		child, ok := n.children[strings.ToLower(name)]
		if !ok {
			return 0, false
		}
		node = child
	}
	return node, true
}

// ValueAt reads a value at a key path. Test convenience.
func (s *MemStore) ValueAt(path []string, name string) (*Value, bool) {
	node, ok := s.Lookup(path...)
	if !ok {
		return nil, false
	}
	n := s.nodes[node]
	v, ok := n.values[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	return &v, true
}

type memDump struct {
	Name     string    `json:"name"`
	Values   []Value   `json:"values,omitempty"`
	Children []memDump `json:"children,omitempty"`
}

// Serialize renders the tree as a deterministic hive-shaped blob: the regf
// signature, zero padding to the minimum hive size, then a stable JSON dump.
// Good enough for integrity gates and hash comparison in tests; the real
// library writes real hives.
func (s *MemStore) Serialize() []byte {
	header := make([]byte, minHiveSize)
	copy(header, regfSignature)

	dump := s.dumpNode(s.root)
	body, _ := json.Marshal(dump)
	return append(header, body...)
}

func (s *MemStore) dumpNode(node int64) memDump {
	n := s.nodes[node]
	d := memDump{Name: n.name}

	valueNames := make([]string, 0, len(n.values))
	for name := range n.values {
		valueNames = append(valueNames, name)
	}
	sort.Strings(valueNames)
	for _, name := range valueNames {
		d.Values = append(d.Values, n.values[name])
	}

	childNames := make([]string, 0, len(n.children))
	for name := range n.children {
		childNames = append(childNames, name)
	}
	sort.Strings(childNames)
	for _, name := range childNames {
		d.Children = append(d.Children, s.dumpNode(n.children[name]))
	}
	return d
}
