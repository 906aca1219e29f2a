package repack

import (
	"fmt"
	"log/slog"

	"github.com/kilupskalvis/scenepack/internal/assets"
	"github.com/kilupskalvis/scenepack/internal/deps"
	"github.com/kilupskalvis/scenepack/internal/hierarchy"
	"github.com/kilupskalvis/scenepack/internal/models"
)

// Context holds the state of one repack run. Nothing in it outlives the run.
type Context struct {
	Bundle     *assets.Bundle
	MainFile   *assets.File
	SharedFile *assets.File
	// Descriptor is the AssetBundle object of the shared file; it is moved
	// into the main file once the metadata is rebuilt.
	Descriptor *assets.Object

	Index *hierarchy.Index
	Deps  *deps.Resolver

	stage  Stage
	logger *slog.Logger
}

// newContext locates the files and descriptor of a scene bundle
func newContext(b *assets.Bundle, logger *slog.Logger) (*Context, error) {
	main := b.MainFile()
	if main == nil {
		return nil, fmt.Errorf("%w: bundle %s has no main file", models.ErrStructural, b.Name)
	}
	shared := b.SharedFile()
	if shared == nil {
		return nil, fmt.Errorf("%w: bundle %s has no shared assets file", models.ErrStructural, b.Name)
	}
	descriptor := shared.FirstOfClass(models.ClassAssetBundle)
	if descriptor == nil {
		return nil, fmt.Errorf("%w: bundle %s has no descriptor object", models.ErrStructural, b.Name)
	}
	if err := checkDescriptor(descriptor.Data); err != nil {
		return nil, fmt.Errorf("%w: descriptor of %s: %v", models.ErrStructural, b.Name, err)
	}
	if _, ok := shared.Type(models.ClassAssetBundle); !ok {
		if _, ok := main.Type(models.ClassAssetBundle); !ok {
			return nil, fmt.Errorf("%w: bundle %s has no AssetBundle type entry", models.ErrStructural, b.Name)
		}
	}

	return &Context{
		Bundle:     b,
		MainFile:   main,
		SharedFile: shared,
		Descriptor: descriptor,
		stage:      StageInit,
		logger:     logger,
	}, nil
}

// checkDescriptor verifies every descriptor field the pipeline writes
func checkDescriptor(d *assets.Field) error {
	for _, path := range []string{assets.FieldName, assets.FieldAssetBundleName} {
		if _, err := assets.Get[string](d, path); err != nil {
			return err
		}
	}
	if _, err := assets.Get[bool](d, assets.FieldIsStreamedScene); err != nil {
		return err
	}
	for _, path := range []string{assets.FieldContainer, assets.FieldPreloadTable} {
		if _, err := d.Elements(path); err != nil {
			return err
		}
	}
	return nil
}

// Stage returns the last completed stage
func (c *Context) Stage() Stage {
	return c.stage
}

// advance records the completion of the next stage
func (c *Context) advance(next Stage) error {
	if next != c.stage+1 {
		return fmt.Errorf("invalid stage transition %s -> %s", c.stage, next)
	}
	c.stage = next
	c.logger.Debug("stage complete", "stage", next.String())
	return nil
}
