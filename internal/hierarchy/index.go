// Package hierarchy indexes the game objects of a scene file by their
// slash-separated hierarchical names.
package hierarchy

import (
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/kilupskalvis/scenepack/internal/assets"
	"github.com/kilupskalvis/scenepack/internal/logging"
	"github.com/kilupskalvis/scenepack/internal/models"
)

// Field names read while walking the hierarchy.
const (
	fieldName       = "m_Name"
	fieldComponents = "m_Component"
	fieldComponent  = "component"
	fieldGameObject = "m_GameObject"
	fieldFather     = "m_Father"
)

// Index maps hierarchical names to game objects and back.
//
// Sibling names are not required to be unique. When two game objects share a
// hierarchical name, the one with the lower path id owns the name; the others
// remain reachable by path id and through All.
type Index struct {
	byName       map[string]*models.GameObjectInfo
	byGameObject map[int64]*models.GameObjectInfo
	entries      []*models.GameObjectInfo
}

// Build indexes every game object of file that has a transform component.
// A nil logger discards output.
func Build(file *assets.File, logger *slog.Logger) (*Index, error) {
	logger = logging.OrDiscard(logger)

	idx := &Index{
		byName:       make(map[string]*models.GameObjectInfo),
		byGameObject: make(map[int64]*models.GameObjectInfo),
	}

	for _, goObj := range file.OfClass(models.ClassGameObject) {
		transformID, err := findTransform(file, goObj)
		if err != nil {
			return nil, err
		}
		if transformID == 0 {
			logger.Debug("game object has no transform", "path_id", goObj.PathID)
			continue
		}

		name, err := hierarchicalName(file, transformID, logger)
		if err != nil {
			return nil, fmt.Errorf("game object %d: %w", goObj.PathID, err)
		}

		info := &models.GameObjectInfo{
			Name:             name,
			GameObjectPathID: goObj.PathID,
			TransformPathID:  transformID,
		}
		idx.entries = append(idx.entries, info)
		idx.byGameObject[goObj.PathID] = info

		if existing, dup := idx.byName[name]; dup {
			logger.Warn("duplicate game object name, keeping first",
				"name", name, "kept", existing.GameObjectPathID, "ignored", goObj.PathID)
			continue
		}
		idx.byName[name] = info
	}

	return idx, nil
}

// findTransform returns the path id of the first Transform or RectTransform
// among the game object's components, or 0 if it has none.
func findTransform(file *assets.File, goObj *assets.Object) (int64, error) {
	components, err := goObj.Data.Elements(fieldComponents)
	if err != nil {
		return 0, fmt.Errorf("%w: game object %d: %v", models.ErrStructural, goObj.PathID, err)
	}
	for _, c := range components {
		ref, err := c.Get(fieldComponent)
		if err != nil {
			return 0, fmt.Errorf("%w: game object %d: %v", models.ErrStructural, goObj.PathID, err)
		}
		p, err := ref.PPtr()
		if err != nil {
			return 0, fmt.Errorf("game object %d: %w", goObj.PathID, err)
		}
		if !p.IsLocal() || p.IsNull() {
			continue
		}
		if obj := file.Object(p.PathID); obj != nil && models.IsTransformClass(obj.ClassID) {
			return p.PathID, nil
		}
	}
	return 0, nil
}

// hierarchicalName walks the parent chain of a transform and joins the names
// of the owning game objects from the root down.
func hierarchicalName(file *assets.File, transformID int64, logger *slog.Logger) (string, error) {
	var parts []string
	seen := make(models.PathSet)

	for current := transformID; current != 0; {
		if !seen.Add(current) {
			return "", fmt.Errorf("%w: transform parent cycle at %d", models.ErrStructural, current)
		}
		transform := file.Object(current)
		if transform == nil {
			logger.Warn("dangling parent transform, treating child as root", "transform", current)
			break
		}

		name, err := gameObjectName(file, transform)
		if err != nil {
			return "", err
		}
		parts = append(parts, name)

		father, err := transform.Data.Get(fieldFather)
		if err != nil {
			return "", fmt.Errorf("%w: transform %d: %v", models.ErrStructural, current, err)
		}
		p, err := father.PPtr()
		if err != nil {
			return "", fmt.Errorf("transform %d: %w", current, err)
		}
		if !p.IsLocal() {
			return "", fmt.Errorf("%w: transform %d has external parent %s", models.ErrStructural, current, p)
		}
		current = p.PathID
	}

	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, Separator), nil
}

func gameObjectName(file *assets.File, transform *assets.Object) (string, error) {
	ref, err := transform.Data.Get(fieldGameObject)
	if err != nil {
		return "", fmt.Errorf("%w: transform %d: %v", models.ErrStructural, transform.PathID, err)
	}
	p, err := ref.PPtr()
	if err != nil {
		return "", fmt.Errorf("transform %d: %w", transform.PathID, err)
	}
	goObj := file.Object(p.PathID)
	if !p.IsLocal() || goObj == nil {
		return "", fmt.Errorf("%w: transform %d has no game object", models.ErrStructural, transform.PathID)
	}
	name, err := assets.Get[string](goObj.Data, fieldName)
	if err != nil {
		return "", fmt.Errorf("%w: game object %d: %v", models.ErrStructural, goObj.PathID, err)
	}
	return name, nil
}

// Len returns the number of indexed game objects
func (idx *Index) Len() int {
	return len(idx.entries)
}

// TryLookupName returns the game object owning a hierarchical name
func (idx *Index) TryLookupName(name string) (*models.GameObjectInfo, bool) {
	info, ok := idx.byName[name]
	return info, ok
}

// LookupName is TryLookupName with an ErrNotFound error for missing names
func (idx *Index) LookupName(name string) (*models.GameObjectInfo, error) {
	info, ok := idx.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: game object %q", models.ErrNotFound, name)
	}
	return info, nil
}

// TryLookupGameObject returns the entry of the game object at pathID
func (idx *Index) TryLookupGameObject(pathID int64) (*models.GameObjectInfo, bool) {
	info, ok := idx.byGameObject[pathID]
	return info, ok
}

// All iterates over every indexed game object in ascending path id order
func (idx *Index) All() iter.Seq[*models.GameObjectInfo] {
	return func(yield func(*models.GameObjectInfo) bool) {
		for _, info := range idx.entries {
			if !yield(info) {
				return
			}
		}
	}
}
