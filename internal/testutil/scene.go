// Package testutil builds scene and prefab bundles for tests.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/kilupskalvis/scenepack/internal/assets"
	"github.com/kilupskalvis/scenepack/internal/models"
	"github.com/stretchr/testify/require"
)

// Ref builds a reference field named name
func Ref(name string, fileID int32, pathID int64) *assets.Field {
	return assets.NewPPtr(name, "Object", fileID, pathID)
}

// SceneBuilder assembles a scene bundle: a main file holding the hierarchy and
// a shared assets file holding the AssetBundle descriptor.
type SceneBuilder struct {
	t      testing.TB
	Name   string
	Main   *assets.File
	Shared *assets.File
}

// NewScene creates a scene bundle whose shared file carries an empty
// descriptor at path id 1.
func NewScene(t testing.TB, name string) *SceneBuilder {
	t.Helper()
	s := &SceneBuilder{
		t:      t,
		Name:   name,
		Main:   assets.NewFile("BuildPlayer-" + name),
		Shared: assets.NewFile("BuildPlayer-" + name + ".sharedAssets"),
	}
	s.Main.Types = []assets.TypeEntry{
		{ClassID: models.ClassGameObject, Name: "GameObject"},
		{ClassID: models.ClassTransform, Name: "Transform"},
	}
	s.Shared.Types = []assets.TypeEntry{
		{ClassID: models.ClassAssetBundle, Name: "AssetBundle"},
	}
	require.NoError(t, s.Shared.AddObject(&assets.Object{
		PathID:  models.DescriptorPathID,
		ClassID: models.ClassAssetBundle,
		Data:    assets.NewDescriptor(name),
	}))
	return s
}

// External registers an external file and returns its file id
func (s *SceneBuilder) External(cab string) int32 {
	s.Main.Externals = append(s.Main.Externals, assets.External{PathName: "archive:/" + cab + "/" + cab})
	return int32(len(s.Main.Externals))
}

// GameObject adds a game object at goID with a transform at transformID.
// father is the parent transform's path id, 0 for a root. The parent's
// m_Children list is updated.
func (s *SceneBuilder) GameObject(goID, transformID int64, name string, father int64) {
	s.t.Helper()
	s.add(goID, models.ClassGameObject, assets.NewStruct("Base", "GameObject",
		assets.NewArray("m_Component", "ComponentPair",
			assets.NewStruct("data", "ComponentPair", Ref("component", 0, transformID)),
		),
		assets.NewString("m_Name", name),
	))
	s.add(transformID, models.ClassTransform, assets.NewStruct("Base", "Transform",
		Ref("m_GameObject", 0, goID),
		assets.NewArray("m_Children", "PPtr<Transform>"),
		Ref("m_Father", 0, father),
	))

	if father == 0 {
		return
	}
	parent := s.Main.Object(father)
	require.NotNil(s.t, parent, "parent transform %d must be added first", father)
	children, err := parent.Data.Get("m_Children")
	require.NoError(s.t, err)
	children.Children = append(children.Children, Ref("data", 0, transformID))
}

// Component adds an object of classID owned by goID and lists it among the
// game object's components. fields are appended after m_GameObject.
func (s *SceneBuilder) Component(goID, pathID int64, classID int32, fields ...*assets.Field) {
	s.t.Helper()
	data := assets.NewStruct("Base", "Component", append([]*assets.Field{Ref("m_GameObject", 0, goID)}, fields...)...)
	s.add(pathID, classID, data)

	owner := s.Main.Object(goID)
	require.NotNil(s.t, owner, "game object %d must be added first", goID)
	components, err := owner.Data.Get("m_Component")
	require.NoError(s.t, err)
	components.Children = append(components.Children,
		assets.NewStruct("data", "ComponentPair", Ref("component", 0, pathID)))
}

// Object adds a free-standing object, e.g. a material or mesh
func (s *SceneBuilder) Object(pathID int64, classID int32, fields ...*assets.Field) {
	s.t.Helper()
	s.add(pathID, classID, assets.NewStruct("Base", "Object", fields...))
}

func (s *SceneBuilder) add(pathID int64, classID int32, data *assets.Field) {
	s.t.Helper()
	require.NoError(s.t, s.Main.AddObject(&assets.Object{PathID: pathID, ClassID: classID, Data: data}))
}

// Bundle returns the assembled bundle
func (s *SceneBuilder) Bundle() *assets.Bundle {
	return &assets.Bundle{Name: s.Name, Files: []*assets.File{s.Main, s.Shared}}
}

// PrefabBuilder assembles a non-scene bundle with its descriptor at path id 1
// of its only file.
type PrefabBuilder struct {
	t    testing.TB
	File *assets.File
	name string
}

// NewPrefab creates a prefab bundle whose file is named cab
func NewPrefab(t testing.TB, name, cab string) *PrefabBuilder {
	t.Helper()
	f := assets.NewFile(cab)
	f.Types = []assets.TypeEntry{{ClassID: models.ClassAssetBundle, Name: "AssetBundle"}}
	require.NoError(t, f.AddObject(&assets.Object{
		PathID:  models.DescriptorPathID,
		ClassID: models.ClassAssetBundle,
		Data:    assets.NewDescriptor(name),
	}))
	return &PrefabBuilder{t: t, File: f, name: name}
}

// Object adds an object to the prefab file
func (p *PrefabBuilder) Object(pathID int64, classID int32, fields ...*assets.Field) {
	p.t.Helper()
	require.NoError(p.t, p.File.AddObject(&assets.Object{
		PathID:  pathID,
		ClassID: classID,
		Data:    assets.NewStruct("Base", "Object", fields...),
	}))
}

// Container exposes pathID under the container path
func (p *PrefabBuilder) Container(path string, pathID int64) {
	p.t.Helper()
	desc := p.File.Object(models.DescriptorPathID).Data
	entries, err := desc.Elements(assets.FieldContainer)
	require.NoError(p.t, err)
	entries = append(entries, assets.NewContainerEntryField(models.ContainerEntry{
		Path:  path,
		Asset: models.PPtr{PathID: pathID},
	}))
	require.NoError(p.t, desc.SetElements(assets.FieldContainer, entries))
}

// Bundle returns the assembled bundle
func (p *PrefabBuilder) Bundle() *assets.Bundle {
	return &assets.Bundle{Name: p.name, Files: []*assets.File{p.File}}
}

// WriteBundle encodes b into dir/name and returns the path
func WriteBundle(t testing.TB, dir, name string, b *assets.Bundle) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, assets.NewManager(nil).WriteBundle(b, path))
	return path
}
