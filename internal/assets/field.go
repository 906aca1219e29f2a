// Package assets provides the in-memory object model of a scene bundle:
// typed value trees, per-file object tables and the bundle container itself,
// together with loading and writing of the on-disk bundle encoding.
package assets

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrFieldNotFound is returned when a field path does not resolve.
	ErrFieldNotFound = errors.New("field not found")
	// ErrTypeMismatch is returned when a field has a different kind than requested.
	ErrTypeMismatch = errors.New("field type mismatch")
)

// Kind is the storage kind of a Field
type Kind uint8

const (
	KindStruct Kind = iota
	KindInt
	KindFloat
	KindBool
	KindString
	KindArray
)

var kindNames = [...]string{
	KindStruct: "struct",
	KindInt:    "int",
	KindFloat:  "float",
	KindBool:   "bool",
	KindString: "string",
	KindArray:  "array",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// MarshalText implements encoding.TextMarshaler
func (k Kind) MarshalText() ([]byte, error) {
	if int(k) >= len(kindNames) {
		return nil, fmt.Errorf("unknown field kind %d", k)
	}
	return []byte(kindNames[k]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (k *Kind) UnmarshalText(text []byte) error {
	for i, name := range kindNames {
		if name == string(text) {
			*k = Kind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown field kind %q", text)
}

// Field is a node of an object's value tree.
//
// Struct fields hold named children, array fields hold unnamed elements and
// the scalar kinds carry their value in the matching member.
type Field struct {
	Name     string   `json:"name,omitempty"`
	Type     string   `json:"type"`
	Kind     Kind     `json:"kind"`
	Int      int64    `json:"int,omitempty"`
	Float    float64  `json:"float,omitempty"`
	Bool     bool     `json:"bool,omitempty"`
	Str      string   `json:"str,omitempty"`
	Children []*Field `json:"children,omitempty"`
}

// NewStruct creates a struct field
func NewStruct(name, typ string, children ...*Field) *Field {
	return &Field{Name: name, Type: typ, Kind: KindStruct, Children: children}
}

// NewInt creates an integer field
func NewInt(name string, v int64) *Field {
	return &Field{Name: name, Type: "SInt64", Kind: KindInt, Int: v}
}

// NewFloat creates a float field
func NewFloat(name string, v float64) *Field {
	return &Field{Name: name, Type: "float", Kind: KindFloat, Float: v}
}

// NewBool creates a bool field
func NewBool(name string, v bool) *Field {
	return &Field{Name: name, Type: "bool", Kind: KindBool, Bool: v}
}

// NewString creates a string field
func NewString(name, v string) *Field {
	return &Field{Name: name, Type: "string", Kind: KindString, Str: v}
}

// NewArray creates an array field with the given elements
func NewArray(name, elemType string, elems ...*Field) *Field {
	return &Field{Name: name, Type: "vector<" + elemType + ">", Kind: KindArray, Children: elems}
}

// Child returns the direct child with the given name
func (f *Field) Child(name string) *Field {
	if f == nil || f.Kind != KindStruct {
		return nil
	}
	for _, c := range f.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Get resolves a dot-separated path relative to f.
// An empty path returns f itself.
func (f *Field) Get(path string) (*Field, error) {
	if f == nil {
		return nil, fmt.Errorf("%w: %s", ErrFieldNotFound, path)
	}
	if path == "" {
		return f, nil
	}
	cur := f
	for part := range strings.SplitSeq(path, ".") {
		next := cur.Child(part)
		if next == nil {
			return nil, fmt.Errorf("%w: %s (at %q)", ErrFieldNotFound, path, part)
		}
		cur = next
	}
	return cur, nil
}

// Has reports whether path resolves
func (f *Field) Has(path string) bool {
	_, err := f.Get(path)
	return err == nil
}

// Elements returns the elements of the array field at path
func (f *Field) Elements(path string) ([]*Field, error) {
	arr, err := f.Get(path)
	if err != nil {
		return nil, err
	}
	if arr.Kind != KindArray {
		return nil, fmt.Errorf("%w: %s is %s, not array", ErrTypeMismatch, path, arr.Kind)
	}
	return arr.Children, nil
}

// SetElements replaces the elements of the array field at path
func (f *Field) SetElements(path string, elems []*Field) error {
	arr, err := f.Get(path)
	if err != nil {
		return err
	}
	if arr.Kind != KindArray {
		return fmt.Errorf("%w: %s is %s, not array", ErrTypeMismatch, path, arr.Kind)
	}
	arr.Children = elems
	return nil
}

// Clone returns a deep copy of f
func (f *Field) Clone() *Field {
	if f == nil {
		return nil
	}
	c := *f
	if f.Children != nil {
		c.Children = make([]*Field, len(f.Children))
		for i, child := range f.Children {
			c.Children[i] = child.Clone()
		}
	}
	return &c
}

// Scalar is the set of Go types a leaf field can be read or written as
type Scalar interface {
	int64 | float64 | bool | string
}

// Get reads the scalar at path. The field kind must match T exactly;
// values are never coerced between kinds.
func Get[T Scalar](f *Field, path string) (T, error) {
	var zero T
	leaf, err := f.Get(path)
	if err != nil {
		return zero, err
	}
	var v any
	switch any(zero).(type) {
	case int64:
		v = leaf.Int
	case float64:
		v = leaf.Float
	case bool:
		v = leaf.Bool
	case string:
		v = leaf.Str
	}
	if want := kindOf(zero); leaf.Kind != want {
		return zero, fmt.Errorf("%w: %s is %s, not %s", ErrTypeMismatch, path, leaf.Kind, want)
	}
	return v.(T), nil
}

// Set writes the scalar at path. The field must already exist with the kind of T.
func Set[T Scalar](f *Field, path string, value T) error {
	leaf, err := f.Get(path)
	if err != nil {
		return err
	}
	if want := kindOf(value); leaf.Kind != want {
		return fmt.Errorf("%w: %s is %s, not %s", ErrTypeMismatch, path, leaf.Kind, want)
	}
	switch v := any(value).(type) {
	case int64:
		leaf.Int = v
	case float64:
		leaf.Float = v
	case bool:
		leaf.Bool = v
	case string:
		leaf.Str = v
	}
	return nil
}

func kindOf(v any) Kind {
	switch v.(type) {
	case int64:
		return KindInt
	case float64:
		return KindFloat
	case bool:
		return KindBool
	default:
		return KindString
	}
}
