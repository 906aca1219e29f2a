package preload

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/kilupskalvis/scenepack/internal/assets"
	"github.com/kilupskalvis/scenepack/internal/deps"
	"github.com/kilupskalvis/scenepack/internal/logging"
	"github.com/kilupskalvis/scenepack/internal/models"
)

// BundleLoader reads a bundle from disk
type BundleLoader interface {
	LoadBundle(path string) (*assets.Bundle, error)
}

// BundleData is what ContainerAnchored needs to know about an external bundle.
type BundleData struct {
	// ContainerPaths are the path ids of the bundle's container assets.
	ContainerPaths models.PathSet
	// ContainerInternalDeps maps each container path id to its internal dependencies.
	ContainerInternalDeps map[int64]models.PathSet
}

// NewBundleData computes the container data of a loaded bundle. The
// descriptor of a non-scene bundle sits at path id 1 of its first file.
func NewBundleData(b *assets.Bundle) (*BundleData, error) {
	if len(b.Files) == 0 {
		return nil, fmt.Errorf("%w: bundle %s has no files", models.ErrStructural, b.Name)
	}
	file := b.Files[0]

	descriptor := file.Object(models.DescriptorPathID)
	if descriptor == nil || descriptor.ClassID != models.ClassAssetBundle {
		return nil, fmt.Errorf("%w: bundle %s has no descriptor at path id %d",
			models.ErrStructural, b.Name, models.DescriptorPathID)
	}
	entries, err := descriptor.Data.Elements(assets.FieldContainer)
	if err != nil {
		return nil, fmt.Errorf("%w: bundle %s: %v", models.ErrStructural, b.Name, err)
	}

	data := &BundleData{
		ContainerPaths:        make(models.PathSet, len(entries)),
		ContainerInternalDeps: make(map[int64]models.PathSet, len(entries)),
	}
	resolver := deps.New(file)
	for _, entry := range entries {
		e, err := assets.ParseContainerEntry(entry)
		if err != nil {
			return nil, fmt.Errorf("%w: bundle %s container entry: %v", models.ErrStructural, b.Name, err)
		}
		p := e.Asset
		if !p.IsLocal() || p.IsNull() {
			continue
		}
		data.ContainerPaths.Add(p.PathID)

		closure, err := resolver.FindBundleDeps(p.PathID)
		if errors.Is(err, models.ErrNotFound) {
			// container entry for an object the bundle does not carry
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("bundle %s: %w", b.Name, err)
		}
		data.ContainerInternalDeps[p.PathID] = closure.InternalPaths
	}
	return data, nil
}

// ContainerAnchored augments an existing preload table with container anchors.
//
// For every external entry (fileID, pathID) that is not itself a container
// asset of its bundle, it looks for a container asset of that bundle whose
// internal dependencies include pathID and adds (fileID, containerPathID).
// Loading the anchor pulls in the external entry as one of its dependencies,
// and container assets are the ones a host runtime preloads reliably.
//
// When several container assets qualify exactly one of them is added, and
// which one is unspecified: callers must not depend on the choice, which can
// differ between runs over the same input.
//
// A bundle that cannot be loaded or parsed is logged and its entries are left
// without anchors. Bundle data and load failures are cached per instance by
// lower-case cab name, so roots of the same run share parsed bundles and a
// broken bundle is read once. An instance is not safe for concurrent use.
type ContainerAnchored struct {
	cabs   CabResolver
	loader BundleLoader
	logger *slog.Logger
	failed map[string]error

	// Cache maps lower-case cab names to bundle data.
	Cache map[string]*BundleData
}

// NewContainerAnchored creates the resolver. A nil logger discards output.
func NewContainerAnchored(cabs CabResolver, loader BundleLoader, logger *slog.Logger) *ContainerAnchored {
	logger = logging.OrDiscard(logger)
	return &ContainerAnchored{
		cabs:   cabs,
		loader: loader,
		logger: logger,
		failed: make(map[string]error),
		Cache:  make(map[string]*BundleData),
	}
}

// BuildPreloadTable implements Resolver
func (c *ContainerAnchored) BuildPreloadTable(rootPathID int64, scene *Scene, table models.PreloadSet) error {
	// Group the entries present on entry; anchors added below are not revisited.
	grouped := make(map[int32][]int64)
	for p := range table {
		if p.IsLocal() {
			continue
		}
		grouped[p.FileID] = append(grouped[p.FileID], p.PathID)
	}
	fileIDs := make([]int32, 0, len(grouped))
	for id := range grouped {
		fileIDs = append(fileIDs, id)
	}
	slices.Sort(fileIDs)

	for _, fileID := range fileIDs {
		ext, err := scene.File.External(fileID)
		if err != nil {
			return err
		}
		cabName := ext.CabName()

		bundlePath, ok := c.cabs.ResolveCab(cabName)
		if !ok {
			c.logger.Warn("failed to resolve cab name",
				"cab", cabName, "scene", scene.Name, "error", models.ErrResolution)
			continue
		}
		if bundlePath == "" {
			continue
		}

		data, err := c.bundleData(cabName, bundlePath)
		if err != nil {
			c.logger.Warn("skipping container anchors of unreadable bundle",
				"cab", cabName, "bundle", bundlePath, "scene", scene.Name, "error", err)
			continue
		}

		pathIDs := grouped[fileID]
		slices.Sort(pathIDs)
		for _, pathID := range pathIDs {
			if data.ContainerPaths.Has(pathID) {
				continue
			}
			anchor, found := data.anchorFor(pathID)
			if !found {
				c.logger.Warn("failed to find container asset",
					"cab", cabName, "path_id", pathID, "scene", scene.Name)
				continue
			}
			if table.Add(models.PPtr{FileID: fileID, PathID: anchor}) {
				c.logger.Debug("added container anchor",
					"cab", cabName, "anchor", anchor, "path_id", pathID,
					"scene", scene.Name, "root", rootPathID)
			}
		}
	}
	return nil
}

func (c *ContainerAnchored) bundleData(cabName, bundlePath string) (*BundleData, error) {
	if data, ok := c.Cache[cabName]; ok {
		return data, nil
	}
	if err, ok := c.failed[cabName]; ok {
		return nil, err
	}
	c.logger.Info("building container cache", "cab", cabName, "bundle", bundlePath)

	b, err := c.loader.LoadBundle(bundlePath)
	if err != nil {
		c.failed[cabName] = fmt.Errorf("%w: load bundle for cab %s: %v", models.ErrResolution, cabName, err)
		return nil, c.failed[cabName]
	}
	data, err := NewBundleData(b)
	if err != nil {
		c.failed[cabName] = fmt.Errorf("%w: %v", models.ErrResolution, err)
		return nil, c.failed[cabName]
	}
	c.Cache[cabName] = data
	return data, nil
}

// anchorFor returns some container path id whose internal dependencies hold pathID
func (d *BundleData) anchorFor(pathID int64) (int64, bool) {
	for containerID, internal := range d.ContainerInternalDeps {
		if internal.Has(pathID) {
			return containerID, true
		}
	}
	return 0, false
}
