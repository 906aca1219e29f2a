// Package deps computes direct and transitive object references within one
// serialized file.
package deps

import (
	"fmt"

	"github.com/kilupskalvis/scenepack/internal/assets"
	"github.com/kilupskalvis/scenepack/internal/models"
)

// FieldFather is the Transform field pointing at the parent transform.
const FieldFather = "m_Father"

// Resolver finds the dependencies of objects in a single file.
//
// Results of FindBundleDeps are cached for the lifetime of the resolver. A
// resolver belongs to one repack run; call Reset after rewriting the table.
type Resolver struct {
	file  *assets.File
	skip  map[string]struct{}
	cache map[int64]*models.DependencySet
}

// Option configures a Resolver
type Option func(*Resolver)

// WithSkippedFields replaces the set of reference field names that
// FindBundleDeps does not follow. Parent pointers are skipped by default: a
// child needs its parent to be placed in the scene but not to be loaded.
func WithSkippedFields(names ...string) Option {
	return func(r *Resolver) {
		r.skip = make(map[string]struct{}, len(names))
		for _, n := range names {
			r.skip[n] = struct{}{}
		}
	}
}

// New creates a resolver over file
func New(file *assets.File, opts ...Option) *Resolver {
	r := &Resolver{
		file:  file,
		skip:  map[string]struct{}{FieldFather: {}},
		cache: make(map[int64]*models.DependencySet),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reset drops all cached closures
func (r *Resolver) Reset() {
	r.cache = make(map[int64]*models.DependencySet)
}

// FindImmediateDeps returns every reference held by the object at pathID,
// including references to itself, back-references and parent pointers. Null
// pointers are left out. Local targets are reported whether or not they exist
// in the table.
func (r *Resolver) FindImmediateDeps(pathID int64) (*models.DependencySet, error) {
	return r.immediate(pathID, nil)
}

// immediate collects the references of one object, ignoring fields in skip
func (r *Resolver) immediate(pathID int64, skip map[string]struct{}) (*models.DependencySet, error) {
	obj := r.file.Object(pathID)
	if obj == nil {
		return nil, fmt.Errorf("%w: object %d in %s", models.ErrNotFound, pathID, r.file.Name)
	}

	deps := models.NewDependencySet()
	err := assets.WalkPPtrs(obj.Data, func(path string, ref *assets.Field) error {
		if _, skipped := skip[ref.Name]; skipped {
			return nil
		}
		p, err := ref.PPtr()
		if err != nil {
			return fmt.Errorf("object %d field %s: %w", pathID, path, err)
		}
		if p.IsNull() {
			return nil
		}
		if err := r.file.ValidRef(p); err != nil {
			return fmt.Errorf("object %d field %s: %w", pathID, path, err)
		}
		if p.IsLocal() {
			deps.InternalPaths.Add(p.PathID)
		} else {
			deps.ExternalPaths.Add(p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deps, nil
}

// FindBundleDeps returns the closure of the object at pathID.
//
// InternalPaths holds every local object reachable through one or more
// internal references; the root itself is only included when it lies on a
// cycle. ExternalPaths holds the external references of the root and of every
// internal object, which are not followed further. References to objects that
// are missing from the table are dangling and omitted.
//
// The returned set is shared with the cache and must not be modified.
func (r *Resolver) FindBundleDeps(pathID int64) (*models.DependencySet, error) {
	if cached, ok := r.cache[pathID]; ok {
		return cached, nil
	}
	if !r.file.Has(pathID) {
		return nil, fmt.Errorf("%w: object %d in %s", models.ErrNotFound, pathID, r.file.Name)
	}

	result := models.NewDependencySet()
	expanded := make(models.PathSet)
	stack := []int64{pathID}

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !expanded.Add(current) {
			continue
		}

		immediate, err := r.immediate(current, r.skip)
		if err != nil {
			return nil, err
		}
		for ext := range immediate.ExternalPaths {
			result.ExternalPaths.Add(ext)
		}
		for id := range immediate.InternalPaths {
			if !r.file.Has(id) {
				continue
			}
			result.InternalPaths.Add(id)
			if !expanded.Has(id) {
				stack = append(stack, id)
			}
		}
	}

	r.cache[pathID] = result
	return result, nil
}
