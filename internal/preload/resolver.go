// Package preload builds the preload tables of container entries: the
// external objects a host runtime must load before the entry itself.
package preload

import (
	"github.com/kilupskalvis/scenepack/internal/assets"
	"github.com/kilupskalvis/scenepack/internal/deps"
	"github.com/kilupskalvis/scenepack/internal/models"
)

// Scene is the state of the repack run a table is built for
type Scene struct {
	// Name identifies the scene in log output.
	Name string
	// File is the main file of the scene; its externals give meaning to the
	// file ids of preload entries.
	File *assets.File
	// Deps resolves dependencies within File.
	Deps *deps.Resolver
}

// Resolver adds the preload entries needed by the asset at rootPathID to table.
// Entries already in table may be inspected and built upon.
type Resolver interface {
	BuildPreloadTable(rootPathID int64, scene *Scene, table models.PreloadSet) error
}

// Direct adds the external dependencies reached by following every internal
// reference from the root.
type Direct struct{}

// BuildPreloadTable implements Resolver
func (Direct) BuildPreloadTable(rootPathID int64, scene *Scene, table models.PreloadSet) error {
	closure, err := scene.Deps.FindBundleDeps(rootPathID)
	if err != nil {
		return err
	}
	for p := range closure.ExternalPaths {
		table.Add(p)
	}
	return nil
}

// Union runs resolvers in order against the same table, so each one sees the
// entries added by the ones before it.
type Union []Resolver

// BuildPreloadTable implements Resolver
func (u Union) BuildPreloadTable(rootPathID int64, scene *Scene, table models.PreloadSet) error {
	for _, r := range u {
		if err := r.BuildPreloadTable(rootPathID, scene, table); err != nil {
			return err
		}
	}
	return nil
}
