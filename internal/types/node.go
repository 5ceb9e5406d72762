package types

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// =============================================================================
// GENERIC DOCUMENT TREE
// =============================================================================
//
// Both format parsers normalize their input into a tree of Nodes. A node is
// either null, a scalar string, an ordered object or an array. Parsers build
// the tree with the Set/Append methods; everything downstream only reads it.
//
// =============================================================================

// Kind identifies the shape of a Node.
type Kind uint8

const (
	NullKind Kind = iota
	ScalarKind
	ObjectKind
	ArrayKind
)

var kindNames = [...]string{
	NullKind:   "null",
	ScalarKind: "scalar",
	ObjectKind: "object",
	ArrayKind:  "array",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// Node is one element of the document tree.
type Node struct {
	kind    Kind
	text    string
	numeric bool
	keys    []string
	fields  map[string]*Node
	items   []*Node
}

// NewNull returns an explicit null node.
func NewNull() *Node {
	return &Node{kind: NullKind}
}

// NewScalar returns a string leaf.
func NewScalar(s string) *Node {
	return &Node{kind: ScalarKind, text: s}
}

// NewInt returns a numeric leaf. Its Text is the decimal representation; it
// is rendered unquoted in JSON.
func NewInt(n int) *Node {
	return &Node{kind: ScalarKind, text: strconv.Itoa(n), numeric: true}
}

// NewObject returns an empty ordered object.
func NewObject() *Node {
	return &Node{kind: ObjectKind, fields: make(map[string]*Node)}
}

// NewArray returns an array holding the given items.
func NewArray(items ...*Node) *Node {
	n := &Node{kind: ArrayKind}
	for _, item := range items {
		n.Append(item)
	}
	return n
}

// Kind reports the node's shape. A nil node is reported as null.
func (n *Node) Kind() Kind {
	if n == nil {
		return NullKind
	}
	return n.kind
}

func (n *Node) IsNull() bool   { return n.Kind() == NullKind }
func (n *Node) IsScalar() bool { return n.Kind() == ScalarKind }
func (n *Node) IsObject() bool { return n.Kind() == ObjectKind }
func (n *Node) IsArray() bool  { return n.Kind() == ArrayKind }

// Text returns the scalar value. Objects, arrays and null yield "".
func (n *Node) Text() string {
	if n.Kind() != ScalarKind {
		return ""
	}
	return n.text
}

// Get returns the named child of an object, or nil when the node is not an
// object or has no such key.
func (n *Node) Get(key string) *Node {
	if n.Kind() != ObjectKind {
		return nil
	}
	return n.fields[key]
}

// Has reports whether an object node has the key, even if its value is null.
func (n *Node) Has(key string) bool {
	if n.Kind() != ObjectKind {
		return false
	}
	_, ok := n.fields[key]
	return ok
}

// Path walks nested objects by key and returns nil as soon as a step is missing.
func (n *Node) Path(keys ...string) *Node {
	cur := n
	for _, k := range keys {
		cur = cur.Get(k)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// Keys returns an object's keys in insertion order.
func (n *Node) Keys() []string {
	if n.Kind() != ObjectKind {
		return nil
	}
	out := make([]string, len(n.keys))
	copy(out, n.keys)
	return out
}

// Len returns the number of array items or object keys.
func (n *Node) Len() int {
	switch n.Kind() {
	case ArrayKind:
		return len(n.items)
	case ObjectKind:
		return len(n.keys)
	}
	return 0
}

// Index returns the i-th array item, or nil when out of range.
func (n *Node) Index(i int) *Node {
	if n.Kind() != ArrayKind || i < 0 || i >= len(n.items) {
		return nil
	}
	return n.items[i]
}

// Items returns the array items.
func (n *Node) Items() []*Node {
	if n.Kind() != ArrayKind {
		return nil
	}
	return n.items
}

// Set adds or replaces a child of an object node. Replacing keeps the key's
// original position. A nil value is stored as an explicit null.
func (n *Node) Set(key string, v *Node) {
	if n.Kind() != ObjectKind {
		return
	}
	if v == nil {
		v = NewNull()
	}
	if _, exists := n.fields[key]; !exists {
		n.keys = append(n.keys, key)
	}
	n.fields[key] = v
}

// SetString is shorthand for Set(key, NewScalar(s)).
func (n *Node) SetString(key, s string) {
	n.Set(key, NewScalar(s))
}

// Append adds an item to an array node.
func (n *Node) Append(v *Node) {
	if n.Kind() != ArrayKind {
		return
	}
	if v == nil {
		v = NewNull()
	}
	n.items = append(n.items, v)
}

// MarshalJSON renders the tree with object keys in insertion order.
func (n *Node) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := n.writeJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (n *Node) writeJSON(buf *bytes.Buffer) error {
	switch n.Kind() {
	case NullKind:
		buf.WriteString("null")
	case ScalarKind:
		if n.numeric {
			buf.WriteString(n.text)
			return nil
		}
		b, err := json.Marshal(n.text)
		if err != nil {
			return err
		}
		buf.Write(b)
	case ObjectKind:
		buf.WriteByte('{')
		for i, k := range n.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := n.fields[k].writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case ArrayKind:
		buf.WriteByte('[')
		for i, item := range n.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	}
	return nil
}
