package assets

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/kilupskalvis/scenepack/internal/models"
)

// Object is one entry of a file's object table
type Object struct {
	PathID  int64  `json:"path_id"`
	ClassID int32  `json:"class_id"`
	Data    *Field `json:"data"`
}

// External is a dependency on another serialized file.
// PathName is the path as stored, e.g. "archive:/CAB-1234/CAB-1234".
type External struct {
	PathName string `json:"path_name"`
}

// CabName returns the lower-case cab name of the external file
func (e External) CabName() string {
	name := e.PathName
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	return strings.ToLower(name)
}

// TypeEntry is a type-schema entry of a file. Objects of a class can only be
// stored in a file that carries the class's entry.
type TypeEntry struct {
	ClassID int32  `json:"class_id"`
	Name    string `json:"name"`
}

// File is a serialized file inside a bundle: an object table keyed by path id,
// its externals and its type entries.
type File struct {
	Name      string
	Externals []External
	Types     []TypeEntry

	objects map[int64]*Object
}

// NewFile creates an empty file
func NewFile(name string) *File {
	return &File{Name: name, objects: make(map[int64]*Object)}
}

// Len returns the number of objects in the table
func (f *File) Len() int {
	return len(f.objects)
}

// Object returns the object at pathID, or nil
func (f *File) Object(pathID int64) *Object {
	return f.objects[pathID]
}

// Has reports whether pathID is occupied
func (f *File) Has(pathID int64) bool {
	_, ok := f.objects[pathID]
	return ok
}

// Objects returns all objects ordered by path id
func (f *File) Objects() []*Object {
	objs := make([]*Object, 0, len(f.objects))
	for _, o := range f.objects {
		objs = append(objs, o)
	}
	slices.SortFunc(objs, func(a, b *Object) int {
		return cmp.Compare(a.PathID, b.PathID)
	})
	return objs
}

// PathIDs returns the set of occupied path ids
func (f *File) PathIDs() models.PathSet {
	ids := make(models.PathSet, len(f.objects))
	for id := range f.objects {
		ids.Add(id)
	}
	return ids
}

// AddObject inserts obj. Path ids are unique: adding to an occupied id fails.
func (f *File) AddObject(obj *Object) error {
	if obj == nil || obj.Data == nil {
		return fmt.Errorf("add object to %s: nil object data", f.Name)
	}
	if f.objects == nil {
		f.objects = make(map[int64]*Object)
	}
	if _, ok := f.objects[obj.PathID]; ok {
		return fmt.Errorf("add object to %s: path id %d already in use", f.Name, obj.PathID)
	}
	f.objects[obj.PathID] = obj
	return nil
}

// RemoveObject deletes the object at pathID and returns it, or nil if absent
func (f *File) RemoveObject(pathID int64) *Object {
	obj, ok := f.objects[pathID]
	if !ok {
		return nil
	}
	delete(f.objects, pathID)
	return obj
}

// SetObjectID moves the object at from to the free id to.
// References to the object are left untouched; use Redirect for those.
func (f *File) SetObjectID(from, to int64) error {
	obj, ok := f.objects[from]
	if !ok {
		return fmt.Errorf("move object in %s: no object at path id %d", f.Name, from)
	}
	if _, taken := f.objects[to]; taken {
		return fmt.Errorf("move object in %s: path id %d already in use", f.Name, to)
	}
	delete(f.objects, from)
	obj.PathID = to
	f.objects[to] = obj
	return nil
}

// Redirect rewrites every local reference in obj that points at from so it
// points at to, and returns the number of fields rewritten.
func (f *File) Redirect(obj *Object, from, to int64) (int, error) {
	count := 0
	err := WalkPPtrs(obj.Data, func(_ string, ref *Field) error {
		p, err := ref.PPtr()
		if err != nil {
			return err
		}
		if p.FileID != 0 || p.PathID != from {
			return nil
		}
		count++
		return ref.SetPPtr(models.PPtr{FileID: 0, PathID: to})
	})
	return count, err
}

// FirstOfClass returns the object with the lowest path id of the given class
func (f *File) FirstOfClass(classID int32) *Object {
	for _, o := range f.Objects() {
		if o.ClassID == classID {
			return o
		}
	}
	return nil
}

// OfClass returns every object of the given class ordered by path id
func (f *File) OfClass(classID int32) []*Object {
	var objs []*Object
	for _, o := range f.Objects() {
		if o.ClassID == classID {
			objs = append(objs, o)
		}
	}
	return objs
}

// Type returns the type entry for classID
func (f *File) Type(classID int32) (TypeEntry, bool) {
	for _, t := range f.Types {
		if t.ClassID == classID {
			return t, true
		}
	}
	return TypeEntry{}, false
}

// AddType appends a type entry unless one for the class already exists
func (f *File) AddType(t TypeEntry) {
	if _, ok := f.Type(t.ClassID); ok {
		return
	}
	f.Types = append(f.Types, t)
}

// External returns the external a non-zero file id refers to
func (f *File) External(fileID int32) (External, error) {
	if fileID < 1 || int(fileID) > len(f.Externals) {
		return External{}, fmt.Errorf("%w: file id %d out of range in %s (%d externals)",
			models.ErrStructural, fileID, f.Name, len(f.Externals))
	}
	return f.Externals[fileID-1], nil
}

// ValidRef reports an error when p cannot be resolved against the file's externals
func (f *File) ValidRef(p models.PPtr) error {
	if p.FileID < 0 || int(p.FileID) > len(f.Externals) {
		return fmt.Errorf("%w: file id %d out of range in %s (%d externals)",
			models.ErrStructural, p.FileID, f.Name, len(f.Externals))
	}
	return nil
}

type fileDoc struct {
	Name      string      `json:"name"`
	Externals []External  `json:"externals,omitempty"`
	Types     []TypeEntry `json:"types,omitempty"`
	Objects   []*Object   `json:"objects"`
}

// MarshalJSON writes the object table ordered by path id
func (f *File) MarshalJSON() ([]byte, error) {
	return json.Marshal(fileDoc{
		Name:      f.Name,
		Externals: f.Externals,
		Types:     f.Types,
		Objects:   f.Objects(),
	})
}

// UnmarshalJSON reads a file document, rejecting duplicate path ids
func (f *File) UnmarshalJSON(data []byte) error {
	var doc fileDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	f.Name = doc.Name
	f.Externals = doc.Externals
	f.Types = doc.Types
	f.objects = make(map[int64]*Object, len(doc.Objects))
	for _, obj := range doc.Objects {
		if err := f.AddObject(obj); err != nil {
			return fmt.Errorf("%w: %v", models.ErrStructural, err)
		}
	}
	return nil
}
