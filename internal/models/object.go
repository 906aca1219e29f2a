// Package models defines the core data structures used throughout scenepack
// including object pointers, dependency sets, hierarchy entries and repack results.
package models

import (
	"cmp"
	"fmt"
	"slices"
)

// Class IDs of the objects the repacker needs to understand.
const (
	ClassGameObject    int32 = 1
	ClassTransform     int32 = 4
	ClassAssetBundle   int32 = 142
	ClassRectTransform int32 = 224
)

// DescriptorPathID is the path id reserved for the bundle descriptor object.
const DescriptorPathID int64 = 1

// PPtr is a typed pointer to an object: FileID 0 is the local file, FileID n
// indexes the n-th external of the local file (1-based).
type PPtr struct {
	FileID int32 `json:"file_id"`
	PathID int64 `json:"path_id"`
}

// IsNull reports whether the pointer references nothing
func (p PPtr) IsNull() bool {
	return p.PathID == 0
}

// IsLocal reports whether the pointer targets the local file
func (p PPtr) IsLocal() bool {
	return p.FileID == 0
}

func (p PPtr) String() string {
	return fmt.Sprintf("(%d, %d)", p.FileID, p.PathID)
}

// ComparePPtr orders pointers by file id, then path id
func ComparePPtr(a, b PPtr) int {
	if c := cmp.Compare(a.FileID, b.FileID); c != 0 {
		return c
	}
	return cmp.Compare(a.PathID, b.PathID)
}

// IsTransformClass reports whether the class id is a Transform or RectTransform
func IsTransformClass(classID int32) bool {
	return classID == ClassTransform || classID == ClassRectTransform
}

// PathSet is a set of local path ids
type PathSet map[int64]struct{}

// Add inserts id and reports whether it was not already present
func (s PathSet) Add(id int64) bool {
	if _, ok := s[id]; ok {
		return false
	}
	s[id] = struct{}{}
	return true
}

// Has reports whether id is in the set
func (s PathSet) Has(id int64) bool {
	_, ok := s[id]
	return ok
}

// Union adds every id of other to s
func (s PathSet) Union(other PathSet) {
	for id := range other {
		s[id] = struct{}{}
	}
}

// Sorted returns the ids in ascending order
func (s PathSet) Sorted() []int64 {
	ids := make([]int64, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Clone returns a copy of the set
func (s PathSet) Clone() PathSet {
	c := make(PathSet, len(s))
	c.Union(s)
	return c
}

// PreloadSet is a set of pointers destined for a preload table
type PreloadSet map[PPtr]struct{}

// Add inserts p and reports whether it was not already present
func (s PreloadSet) Add(p PPtr) bool {
	if _, ok := s[p]; ok {
		return false
	}
	s[p] = struct{}{}
	return true
}

// Has reports whether p is in the set
func (s PreloadSet) Has(p PPtr) bool {
	_, ok := s[p]
	return ok
}

// Sorted returns the pointers ordered by file id, then path id
func (s PreloadSet) Sorted() []PPtr {
	ptrs := make([]PPtr, 0, len(s))
	for p := range s {
		ptrs = append(ptrs, p)
	}
	slices.SortFunc(ptrs, ComparePPtr)
	return ptrs
}

// DependencySet holds the references found from an object.
// InternalPaths are path ids in the local file, ExternalPaths point into
// external files and are never traversed further.
type DependencySet struct {
	InternalPaths PathSet
	ExternalPaths PreloadSet
}

// NewDependencySet creates an empty DependencySet
func NewDependencySet() *DependencySet {
	return &DependencySet{
		InternalPaths: make(PathSet),
		ExternalPaths: make(PreloadSet),
	}
}
