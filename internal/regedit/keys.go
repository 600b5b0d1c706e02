// Package regedit implements the offline registry edits that make a guest
// bootable under new virtual hardware: control set resolution, driver
// service entries, the critical device database, and SOFTWARE hive hooks.
// All lookups go through the node normalizer; raw hive handles are never
// compared against zero here.
package regedit

import (
	"errors"
	"fmt"

	"github.com/virtshift/virtshift/internal/hivestore"
	"github.com/virtshift/virtshift/internal/logging"
	"github.com/virtshift/virtshift/internal/regcodec"
)

var log = logging.L("regedit")

// child looks up one child key, folding every absent-node shape into the
// invalid sentinel.
func child(s hivestore.Store, node regcodec.NodeRef, name string) regcodec.NodeRef {
	if !node.Valid() {
		return regcodec.InvalidNode
	}
	return regcodec.NormalizeLookup(s.GetChild(node.Raw(), name))
}

// walk follows path segments from node, returning the invalid sentinel when
// any segment is missing.
func walk(s hivestore.Store, node regcodec.NodeRef, path ...string) regcodec.NodeRef {
	for _, name := range path {
		node = child(s, node, name)
		if !node.Valid() {
			return regcodec.InvalidNode
		}
	}
	return node
}

// ensureChild returns the named child, creating it when absent.
func ensureChild(s hivestore.Store, node regcodec.NodeRef, name string) (regcodec.NodeRef, error) {
	if !node.Valid() {
		return regcodec.InvalidNode, fmt.Errorf("cannot create %s under an absent key", name)
	}
	if existing := child(s, node, name); existing.Valid() {
		return existing, nil
	}
	raw, err := s.AddChild(node.Raw(), name)
	if err != nil {
		return regcodec.InvalidNode, fmt.Errorf("creating key %s: %w", name, err)
	}
	ref := regcodec.Normalize(raw)
	if !ref.Valid() {
		return regcodec.InvalidNode, fmt.Errorf("creating key %s returned no handle", name)
	}
	return ref, nil
}

// ensurePath walks path segments from node, creating missing keys.
func ensurePath(s hivestore.Store, node regcodec.NodeRef, path ...string) (regcodec.NodeRef, error) {
	var err error
	for _, name := range path {
		node, err = ensureChild(s, node, name)
		if err != nil {
			return regcodec.InvalidNode, err
		}
	}
	return node, nil
}

// hiveRoot returns the normalized root node of an open hive.
func hiveRoot(s hivestore.Store) (regcodec.NodeRef, error) {
	raw, err := s.Root()
	if err != nil {
		return regcodec.InvalidNode, fmt.Errorf("reading hive root: %w", err)
	}
	ref := regcodec.Normalize(raw)
	if !ref.Valid() {
		return regcodec.InvalidNode, errors.New("hive has no root node")
	}
	return ref, nil
}

// readDword reads a named Dword value. ok is false when the value is
// absent, unreadable, or too short.
func readDword(s hivestore.Store, node regcodec.NodeRef, name string) (uint32, bool) {
	if !node.Valid() {
		return 0, false
	}
	v, err := s.GetValue(node.Raw(), name)
	if err != nil || v == nil {
		return 0, false
	}
	return regcodec.DecodeDword(v.Bytes)
}

// readString reads and decodes a named string value.
func readString(s hivestore.Store, node regcodec.NodeRef, name string) (string, bool) {
	if !node.Valid() {
		return "", false
	}
	v, err := s.GetValue(node.Raw(), name)
	if err != nil || v == nil {
		return "", false
	}
	return regcodec.DecodeString(v.Bytes), true
}

func setDword(s hivestore.Store, node regcodec.NodeRef, name string, value uint32) error {
	return s.SetValue(node.Raw(), hivestore.Value{
		Name:  name,
		Kind:  hivestore.KindDword,
		Bytes: regcodec.EncodeDword(value),
	})
}

func setString(s hivestore.Store, node regcodec.NodeRef, name string, kind hivestore.ValueKind, value string) error {
	return s.SetValue(node.Raw(), hivestore.Value{
		Name:  name,
		Kind:  kind,
		Bytes: regcodec.EncodeString(value),
	})
}
