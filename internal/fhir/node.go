package fhir

import (
	"bytes"
	"encoding/json"
)

// node is a read-only view over a decoded JSON value. Navigating through a
// missing key, a non-object, or an out-of-range index yields an empty node,
// so every accessor chain degrades to "absent" instead of failing.
type node struct {
	v any
}

// decodeNode decodes raw JSON keeping numbers as json.Number so quantity
// values keep the literal the server sent.
func decodeNode(raw []byte) (node, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return node{}, err
	}
	return node{v: v}, nil
}

// Get returns the named field of an object node.
func (n node) Get(field string) node {
	m, ok := n.v.(map[string]any)
	if !ok {
		return node{}
	}
	return node{v: m[field]}
}

// Path walks a chain of object fields.
func (n node) Path(fields ...string) node {
	cur := n
	for _, f := range fields {
		cur = cur.Get(f)
	}
	return cur
}

// Index returns the i-th element of an array node.
func (n node) Index(i int) node {
	arr, ok := n.v.([]any)
	if !ok || i < 0 || i >= len(arr) {
		return node{}
	}
	return node{v: arr[i]}
}

// First is shorthand for Get(field).Index(0).
func (n node) First(field string) node {
	return n.Get(field).Index(0)
}

// Items returns the elements of an array node, or nil for anything else.
func (n node) Items() []node {
	arr, ok := n.v.([]any)
	if !ok {
		return nil
	}
	out := make([]node, len(arr))
	for i, item := range arr {
		out[i] = node{v: item}
	}
	return out
}

// Find returns the first array element whose field holds the given string.
func (n node) Find(field, value string) node {
	for _, item := range n.Items() {
		if s, ok := item.Get(field).v.(string); ok && s == value {
			return item
		}
	}
	return node{}
}

func (n node) IsObject() bool {
	_, ok := n.v.(map[string]any)
	return ok
}

func (n node) IsArray() bool {
	_, ok := n.v.([]any)
	return ok
}

func (n node) Exists() bool {
	return n.v != nil
}

// Str returns the string value or nil.
func (n node) Str() *string {
	s, ok := n.v.(string)
	if !ok {
		return nil
	}
	return &s
}

// NonEmptyStr is like Str but also treats "" as absent.
func (n node) NonEmptyStr() *string {
	s := n.Str()
	if s == nil || *s == "" {
		return nil
	}
	return s
}

// Bool returns the boolean value or nil.
func (n node) Bool() *bool {
	b, ok := n.v.(bool)
	if !ok {
		return nil
	}
	return &b
}

// Int returns an integral number value.
func (n node) Int() (int, bool) {
	num, ok := n.v.(json.Number)
	if !ok {
		return 0, false
	}
	i, err := num.Int64()
	if err != nil {
		return 0, false
	}
	return int(i), true
}

// Scalar renders a string, number, or boolean the way it appeared on the wire.
func (n node) Scalar() (string, bool) {
	switch v := n.v.(type) {
	case string:
		return v, true
	case json.Number:
		return v.String(), true
	case bool:
		if v {
			return "true", true
		}
		return "false", true
	}
	return "", false
}

// Strings returns the string elements of an array node, skipping others.
func (n node) Strings() []string {
	var out []string
	for _, item := range n.Items() {
		if s := item.Str(); s != nil {
			out = append(out, *s)
		}
	}
	return out
}

// coalesce returns the first non-nil, non-empty string.
func coalesce(values ...*string) *string {
	for _, v := range values {
		if v != nil && *v != "" {
			return v
		}
	}
	return nil
}

func strptr(s string) *string {
	return &s
}
