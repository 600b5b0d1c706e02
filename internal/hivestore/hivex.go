//go:build hivex

package hivestore

import (
	"fmt"

	hivex "github.com/gabriel-samfira/go-hivex"
)

// hivexStore adapts the libhivex cgo binding to the Store interface.
type hivexStore struct {
	h *hivex.Hivex
}

// Open opens the hive file at path through libhivex.
func Open(path string, write bool) (Store, error) {
	flags := hivex.READ
	if write {
		flags = hivex.WRITE
	}
	h, err := hivex.NewHivex(path, flags)
	if err != nil {
		return nil, fmt.Errorf("open hive %s: %w", path, err)
	}
	return &hivexStore{h: h}, nil
}

func (s *hivexStore) Root() (int64, error) {
	return s.h.Root()
}

func (s *hivexStore) GetChild(node int64, name string) (int64, error) {
	return s.h.NodeGetChild(node, name)
}

func (s *hivexStore) AddChild(node int64, name string) (int64, error) {
	return s.h.NodeAddChild(node, name)
}

func (s *hivexStore) GetValue(node int64, name string) (*Value, error) {
	vh, err := s.h.NodeGetValue(node, name)
	if err != nil || vh == 0 {
		// Missing values surface as errno in some libhivex versions and as
		// a zero handle in others. Either way: absent.
		return nil, nil
	}
	t, data, err := s.h.ValueValue(vh)
	if err != nil {
		return nil, fmt.Errorf("read value %q: %w", name, err)
	}
	return &Value{Name: name, Kind: kindFromHivex(t), Bytes: data}, nil
}

func (s *hivexStore) SetValue(node int64, v Value) error {
	data := v.Bytes
	if len(data) == 0 {
		// libhivex addresses value[0] even for empty data.
		data = []byte{0}
	}
	_, err := s.h.NodeSetValue(node, hivex.HiveValue{
		Type:  kindToHivex(v.Kind),
		Key:   v.Name,
		Value: data,
	})
	if err != nil {
		return fmt.Errorf("set value %q: %w", v.Name, err)
	}
	return nil
}

func (s *hivexStore) DeleteChild(node int64, name string) (bool, error) {
	return deleteChild(s.h, node, name)
}

func (s *hivexStore) Commit() error {
	if _, err := s.h.Commit(); err != nil {
		return fmt.Errorf("commit hive: %w", err)
	}
	return nil
}

func (s *hivexStore) Close() error {
	return s.h.Close()
}

func kindFromHivex(t int64) ValueKind {
	switch t {
	case hivex.RegSz:
		return KindStringZ
	case hivex.RegExpandSz:
		return KindExpandStringZ
	case hivex.RegDword:
		return KindDword
	case hivex.RegBinary:
		return KindBinary
	default:
		return KindNone
	}
}

func kindToHivex(k ValueKind) int {
	switch k {
	case KindStringZ:
		return hivex.RegSz
	case KindExpandStringZ:
		return hivex.RegExpandSz
	case KindDword:
		return hivex.RegDword
	case KindBinary:
		return hivex.RegBinary
	default:
		return hivex.RegNone
	}
}
