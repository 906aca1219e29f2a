package assets

import (
	"fmt"
	"strings"

	"github.com/kilupskalvis/scenepack/internal/models"
)

const (
	pptrPrefix  = "PPtr<"
	fieldFileID = "m_FileID"
	fieldPathID = "m_PathID"
)

// NewPPtr creates a reference field pointing at (fileID, pathID).
// target names the referenced class, e.g. "Transform".
func NewPPtr(name, target string, fileID int32, pathID int64) *Field {
	return NewStruct(name, pptrPrefix+target+">",
		&Field{Name: fieldFileID, Type: "int", Kind: KindInt, Int: int64(fileID)},
		&Field{Name: fieldPathID, Type: "SInt64", Kind: KindInt, Int: pathID},
	)
}

// IsPPtr reports whether f is a reference field
func (f *Field) IsPPtr() bool {
	return f != nil && f.Kind == KindStruct && strings.HasPrefix(f.Type, pptrPrefix)
}

// PPtr decodes a reference field. A reference without integer m_FileID and
// m_PathID children is a structural error.
func (f *Field) PPtr() (models.PPtr, error) {
	if !f.IsPPtr() {
		return models.PPtr{}, fmt.Errorf("%w: field %q of type %q is not a reference", models.ErrStructural, f.Name, f.Type)
	}
	fileID := f.Child(fieldFileID)
	pathID := f.Child(fieldPathID)
	if fileID == nil || pathID == nil || fileID.Kind != KindInt || pathID.Kind != KindInt {
		return models.PPtr{}, fmt.Errorf("%w: malformed reference field %q", models.ErrStructural, f.Name)
	}
	return models.PPtr{FileID: int32(fileID.Int), PathID: pathID.Int}, nil
}

// SetPPtr overwrites the target of a reference field
func (f *Field) SetPPtr(p models.PPtr) error {
	if _, err := f.PPtr(); err != nil {
		return err
	}
	f.Child(fieldFileID).Int = int64(p.FileID)
	f.Child(fieldPathID).Int = p.PathID
	return nil
}

// WalkPPtrs calls fn for every reference field in the tree rooted at f, in
// document order. path is the dot-separated field path of the reference; array
// elements contribute no path segment. Returning an error stops the walk.
// References are not descended into.
func WalkPPtrs(f *Field, fn func(path string, ref *Field) error) error {
	return walkPPtrs(f, "", fn)
}

func walkPPtrs(f *Field, path string, fn func(string, *Field) error) error {
	if f == nil {
		return nil
	}
	if f.IsPPtr() {
		return fn(path, f)
	}
	if f.Kind != KindStruct && f.Kind != KindArray {
		return nil
	}
	for _, c := range f.Children {
		childPath := path
		if f.Kind == KindStruct {
			if childPath == "" {
				childPath = c.Name
			} else {
				childPath = path + "." + c.Name
			}
		}
		if err := walkPPtrs(c, childPath, fn); err != nil {
			return err
		}
	}
	return nil
}
