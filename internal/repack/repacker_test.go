package repack

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kilupskalvis/scenepack/internal/assets"
	"github.com/kilupskalvis/scenepack/internal/deps"
	"github.com/kilupskalvis/scenepack/internal/logging"
	"github.com/kilupskalvis/scenepack/internal/models"
	"github.com/kilupskalvis/scenepack/internal/preload"
	"github.com/kilupskalvis/scenepack/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	classMaterial     = 21
	classMeshRenderer = 23
)

// memProvider serves bundles from memory and keeps whatever is written
type memProvider struct {
	bundles  map[string]*assets.Bundle
	written  map[string]*assets.Bundle
	writeErr error
}

func newMemProvider(path string, b *assets.Bundle) *memProvider {
	return &memProvider{
		bundles: map[string]*assets.Bundle{path: b},
		written: make(map[string]*assets.Bundle),
	}
}

func (p *memProvider) LoadBundle(path string) (*assets.Bundle, error) {
	b, ok := p.bundles[path]
	if !ok {
		return nil, models.ErrIO
	}
	return b, nil
}

func (p *memProvider) WriteBundle(b *assets.Bundle, path string) error {
	if p.writeErr != nil {
		return p.writeErr
	}
	p.written[path] = b
	return nil
}

// levelScene builds:
//
//	Root (10/11)
//	├── Child (20/21)   renderer 22 -> material 50, CAB-PROPS:7
//	│   └── Leaf (30/31)
//	└── Other (40/41)
//	Solo (60/61)        renderer 62 -> CAB-OTHER:9, CAB-PROPS:7
//
// Material 50 references CAB-PROPS:8.
func levelScene(t *testing.T) *testutil.SceneBuilder {
	s := testutil.NewScene(t, "level1")
	props := s.External("CAB-PROPS")
	other := s.External("CAB-OTHER")

	s.GameObject(10, 11, "Root", 0)
	s.GameObject(20, 21, "Child", 11)
	s.GameObject(30, 31, "Leaf", 21)
	s.GameObject(40, 41, "Other", 11)
	s.GameObject(60, 61, "Solo", 0)

	s.Object(50, classMaterial, testutil.Ref("m_Shader", props, 8))
	s.Component(20, 22, classMeshRenderer,
		testutil.Ref("m_Material", 0, 50),
		testutil.Ref("m_Mesh", props, 7),
	)
	s.Component(60, 62, classMeshRenderer,
		testutil.Ref("m_Mesh", other, 9),
		testutil.Ref("m_Extra", props, 7),
	)
	return s
}

func repackMem(t *testing.T, s *testutil.SceneBuilder, names ...string) (*models.RepackResult, *assets.Bundle) {
	t.Helper()
	provider := newMemProvider("in/level1.bundle", s.Bundle())
	result, err := New(provider).Repack(&models.RepackParams{
		BundlePath:      "in/level1.bundle",
		ObjectNames:     names,
		ContainerPrefix: "assets",
		OutBundlePath:   "out/level1_child.bundle",
	})
	require.NoError(t, err)
	out := provider.written["out/level1_child.bundle"]
	require.NotNil(t, out)
	return result, out
}

func father(t *testing.T, f *assets.File, transformID int64) models.PPtr {
	t.Helper()
	obj := f.Object(transformID)
	require.NotNil(t, obj, "transform %d", transformID)
	field, err := obj.Data.Get("m_Father")
	require.NoError(t, err)
	p, err := field.PPtr()
	require.NoError(t, err)
	return p
}

// ==================== Repack Tests ====================

func TestRepack_SingleChild(t *testing.T) {
	result, out := repackMem(t, levelScene(t), "Root/Child")

	require.Len(t, out.Files, 1)
	main := out.Files[0]
	assert.Equal(t, result.CabName, main.Name)
	assert.Equal(t, "level1_child", out.Name)

	assert.Equal(t, []int64{1, 20, 21, 22, 30, 31, 50}, main.PathIDs().Sorted())
	assert.False(t, main.Has(10), "parent is stripped")
	assert.False(t, main.Has(40), "sibling is stripped")

	assert.True(t, father(t, main, 21).IsNull(), "child becomes a root")
	assert.Equal(t, models.PPtr{PathID: 21}, father(t, main, 31), "kept parent stays")

	assert.Equal(t, map[string]string{"assets/Root/Child.prefab": "Root/Child"}, result.GameObjectAssets)
	assert.Equal(t, map[string]string{"Root/Child": "assets/Root/Child.prefab"}, result.Targets)
	assert.Empty(t, result.NonRepackedAssets)
	assert.Zero(t, result.Redirected)
	assert.False(t, result.Timestamp.IsZero())
}

func TestRepack_StripKeepsExactlyTheClosure(t *testing.T) {
	fresh := levelScene(t)
	closure, err := deps.New(fresh.Main).FindBundleDeps(60)
	require.NoError(t, err)
	expected := closure.InternalPaths.Clone()
	expected.Add(60)
	expected.Add(models.DescriptorPathID)

	_, out := repackMem(t, levelScene(t), "Solo")
	assert.Equal(t, expected.Sorted(), out.Files[0].PathIDs().Sorted())
}

func TestRepack_Descriptor(t *testing.T) {
	s := levelScene(t)
	desc := s.Shared.Object(models.DescriptorPathID).Data
	require.NoError(t, assets.Set(desc, assets.FieldIsStreamedScene, true))
	require.NoError(t, desc.SetElements(assets.FieldSceneHashes, []*assets.Field{
		assets.NewStruct("data", "pair", assets.NewString("first", "level1"), assets.NewString("second", "abc")),
	}))

	result, out := repackMem(t, s, "Root/Child", "Solo")
	main := out.Files[0]

	obj := main.Object(models.DescriptorPathID)
	require.NotNil(t, obj)
	assert.Equal(t, int32(models.ClassAssetBundle), obj.ClassID)
	_, ok := main.Type(models.ClassAssetBundle)
	assert.True(t, ok, "type entry copied from the shared file")

	for _, field := range []string{assets.FieldName, assets.FieldAssetBundleName} {
		name, err := assets.Get[string](obj.Data, field)
		require.NoError(t, err)
		assert.Equal(t, "level1_child", name)
	}
	streamed, err := assets.Get[bool](obj.Data, assets.FieldIsStreamedScene)
	require.NoError(t, err)
	assert.False(t, streamed)
	hashes, err := obj.Data.Elements(assets.FieldSceneHashes)
	require.NoError(t, err)
	assert.Empty(t, hashes)

	entries, _, err := assets.Descriptor(obj.Data)
	require.NoError(t, err)
	assert.Equal(t, result.Containers, entries)
}

func TestRepack_PreloadRangesAreContiguous(t *testing.T) {
	result, out := repackMem(t, levelScene(t), "Solo", "Root/Child")

	entries, table, err := assets.Descriptor(out.Files[0].Object(models.DescriptorPathID).Data)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "assets/Root/Child.prefab", entries[0].Path)
	assert.Equal(t, models.PPtr{PathID: 20}, entries[0].Asset)
	assert.Equal(t, "assets/Solo.prefab", entries[1].Path)
	assert.Equal(t, models.PPtr{PathID: 60}, entries[1].Asset)

	next := 0
	for _, e := range entries {
		assert.Equal(t, next, e.PreloadIndex)
		next = e.PreloadEnd()
	}
	assert.Equal(t, len(table), next)

	assert.Equal(t, []models.PPtr{{FileID: 1, PathID: 7}, {FileID: 1, PathID: 8}},
		table[entries[0].PreloadIndex:entries[0].PreloadEnd()])
	assert.Equal(t, []models.PPtr{{FileID: 1, PathID: 7}, {FileID: 2, PathID: 9}},
		table[entries[1].PreloadIndex:entries[1].PreloadEnd()])
	assert.Len(t, result.Targets, 2)
}

func TestRepack_DescendantSharesAncestorContainer(t *testing.T) {
	result, _ := repackMem(t, levelScene(t), "Root/Child/Leaf", "Root/Child")

	assert.Equal(t, map[string]string{"assets/Root/Child.prefab": "Root/Child"}, result.GameObjectAssets)
	assert.Equal(t, map[string]string{
		"Root/Child":      "assets/Root/Child.prefab",
		"Root/Child/Leaf": "assets/Root/Child.prefab",
	}, result.Targets)
}

func TestRepack_AncestorPulledInByReference(t *testing.T) {
	s := levelScene(t)
	s.Component(60, 63, 114, testutil.Ref("m_Target", 0, 10))

	result, out := repackMem(t, s, "Root/Child", "Solo")

	assert.True(t, out.Files[0].Has(40), "the whole tree under Root is reachable")
	assert.Equal(t, map[string]string{
		"assets/Root.prefab": "Root",
		"assets/Solo.prefab": "Solo",
	}, result.GameObjectAssets)
	assert.Equal(t, "assets/Root.prefab", result.Targets["Root/Child"])
}

func TestRepack_MissingNamesReportedOnce(t *testing.T) {
	result, out := repackMem(t, levelScene(t), "Nope", "Root/Child", "Nope", "Root/Missing")

	assert.Equal(t, []string{"Nope", "Root/Missing"}, result.NonRepackedAssets)
	assert.Len(t, result.Targets, 1)
	assert.True(t, out.Files[0].Has(20))
}

func TestRepack_NothingFound(t *testing.T) {
	result, out := repackMem(t, levelScene(t), "Nope")

	assert.Equal(t, []string{"Nope"}, result.NonRepackedAssets)
	assert.Empty(t, result.GameObjectAssets)
	assert.Equal(t, []int64{models.DescriptorPathID}, out.Files[0].PathIDs().Sorted())
}

// ==================== Collision Tests ====================

func TestRepack_CollisionRemap(t *testing.T) {
	s := levelScene(t)
	s.Object(1, classMaterial, testutil.Ref("m_Shader", 1, 3))
	renderer, err := s.Main.Object(22).Data.Get("m_Material")
	require.NoError(t, err)
	require.NoError(t, renderer.SetPPtr(models.PPtr{PathID: 1}))

	result, out := repackMem(t, s, "Root/Child")
	main := out.Files[0]

	assert.Equal(t, int64(-1), result.MovedPathID)
	assert.Equal(t, 1, result.Redirected)

	moved := main.Object(-1)
	require.NotNil(t, moved)
	assert.Equal(t, int32(classMaterial), moved.ClassID)
	assert.Equal(t, int32(models.ClassAssetBundle), main.Object(1).ClassID)

	r := deps.New(main)
	for _, obj := range main.Objects() {
		if obj.PathID == models.DescriptorPathID {
			continue
		}
		d, err := r.FindImmediateDeps(obj.PathID)
		require.NoError(t, err)
		assert.False(t, d.InternalPaths.Has(models.DescriptorPathID), "object %d still refers to path id 1", obj.PathID)
	}

	d, err := r.FindImmediateDeps(22)
	require.NoError(t, err)
	assert.True(t, d.InternalPaths.Has(-1))

	_, table, err := assets.Descriptor(main.Object(1).Data)
	require.NoError(t, err)
	assert.Contains(t, table, models.PPtr{FileID: 1, PathID: 3}, "preload follows the moved object")
}

func TestRepack_CollisionSkipsTakenNegativeIDs(t *testing.T) {
	s := levelScene(t)
	s.Object(1, classMaterial)
	s.Object(-1, classMaterial, testutil.Ref("m_Next", 0, 1))
	material, err := s.Main.Object(50).Data.Get("m_Shader")
	require.NoError(t, err)
	require.NoError(t, material.SetPPtr(models.PPtr{PathID: -1}))

	result, out := repackMem(t, s, "Root/Child")

	assert.Equal(t, int64(-2), result.MovedPathID)
	assert.True(t, out.Files[0].Has(-1))
	assert.True(t, out.Files[0].Has(-2))
}

func TestRepack_CollisionAvoidsStrippedParentID(t *testing.T) {
	s := testutil.NewScene(t, "negative")
	s.GameObject(10, -1, "Root", 0)
	s.GameObject(20, 21, "Child", -1)
	s.Object(1, classMaterial)
	s.Component(20, 22, classMeshRenderer, testutil.Ref("m_Material", 0, 1))

	result, out := repackMem(t, s, "Root/Child")
	main := out.Files[0]

	assert.Equal(t, int64(-2), result.MovedPathID, "-1 is still referenced as the stripped parent")
	assert.False(t, main.Has(-1))
	moved := main.Object(-2)
	require.NotNil(t, moved)
	assert.Equal(t, int32(classMaterial), moved.ClassID)

	assert.True(t, father(t, main, 21).IsNull(), "child of a stripped parent becomes a root")
	assert.Equal(t, map[string]string{"Root/Child": "assets/Root/Child.prefab"}, result.Targets)
}

func TestRepack_ParentAtReservedIDKept(t *testing.T) {
	s := testutil.NewScene(t, "reserved")
	s.GameObject(10, 1, "Root", 0)
	s.GameObject(20, 21, "Child", 1)
	s.Component(20, 22, classMeshRenderer, testutil.Ref("m_Owner", 0, 10))

	result, out := repackMem(t, s, "Root/Child")
	main := out.Files[0]

	assert.Equal(t, int64(-1), result.MovedPathID)
	assert.Equal(t, models.PPtr{PathID: -1}, father(t, main, 21), "parent moved off path id 1 is still the parent")
}

func TestRepack_GameObjectAtReservedID(t *testing.T) {
	s := testutil.NewScene(t, "tiny")
	s.GameObject(1, 2, "Root", 0)
	s.GameObject(3, 4, "Child", 2)

	result, out := repackMem(t, s, "Root")
	main := out.Files[0]

	assert.Equal(t, int64(-1), result.MovedPathID)
	require.Len(t, result.Containers, 1)
	assert.Equal(t, models.PPtr{PathID: -1}, result.Containers[0].Asset)

	transform := main.Object(2)
	ref, err := transform.Data.Get("m_GameObject")
	require.NoError(t, err)
	p, err := ref.PPtr()
	require.NoError(t, err)
	assert.Equal(t, int64(-1), p.PathID)
}

// ==================== Naming Tests ====================

func TestBundleAndCabName(t *testing.T) {
	p := &models.RepackParams{OutBundlePath: "/out/Props_Level1.bundle"}
	assert.Equal(t, "props_level1", bundleName(p))

	p.BundleName = "Custom"
	assert.Equal(t, "Custom", bundleName(p))

	cab := CabName("props_level1")
	assert.True(t, strings.HasPrefix(cab, "CAB-"))
	assert.Len(t, cab, len("CAB-")+32)
	assert.Equal(t, cab, CabName("props_level1"))
	assert.NotEqual(t, cab, CabName("props_level2"))
}

func TestContainerPath(t *testing.T) {
	s := New(nil)
	assert.Equal(t, "assets/scenes/Root/Child.prefab", s.containerPath("assets/scenes/", "Root/Child"))
	assert.Equal(t, "Root.prefab", s.containerPath("", "Root"))

	s = New(nil, WithContainerSuffix(".asset"))
	assert.Equal(t, "assets/Root.asset", s.containerPath("assets", "Root"))
}

// ==================== Error Tests ====================

func TestRepack_RequiresPaths(t *testing.T) {
	_, err := New(newMemProvider("x", nil)).Repack(&models.RepackParams{BundlePath: "x"})
	assert.Error(t, err)
}

func TestRepack_LoadFailure(t *testing.T) {
	provider := newMemProvider("in.bundle", levelScene(t).Bundle())
	_, err := New(provider).Repack(&models.RepackParams{BundlePath: "missing.bundle", OutBundlePath: "out.bundle"})
	assert.ErrorIs(t, err, models.ErrIO)
}

func TestRepack_WriteFailure(t *testing.T) {
	provider := newMemProvider("in.bundle", levelScene(t).Bundle())
	provider.writeErr = errors.Join(models.ErrIO, errors.New("disk full"))

	_, err := New(provider).Repack(&models.RepackParams{
		BundlePath:    "in.bundle",
		ObjectNames:   []string{"Solo"},
		OutBundlePath: "out.bundle",
	})
	assert.ErrorIs(t, err, models.ErrIO)
	assert.True(t, strings.HasPrefix(err.Error(), StageSerialized.String()+":"))
}

func TestRepack_StructuralErrors(t *testing.T) {
	params := &models.RepackParams{BundlePath: "in.bundle", ObjectNames: []string{"Root"}, OutBundlePath: "out.bundle"}

	tests := []struct {
		name  string
		build func(s *testutil.SceneBuilder) *assets.Bundle
	}{
		{"no shared file", func(s *testutil.SceneBuilder) *assets.Bundle {
			return &assets.Bundle{Name: "x", Files: []*assets.File{s.Main}}
		}},
		{"no main file", func(s *testutil.SceneBuilder) *assets.Bundle {
			return &assets.Bundle{Name: "x", Files: []*assets.File{s.Shared}}
		}},
		{"no descriptor", func(s *testutil.SceneBuilder) *assets.Bundle {
			s.Shared.RemoveObject(models.DescriptorPathID)
			return s.Bundle()
		}},
		{"descriptor without container", func(s *testutil.SceneBuilder) *assets.Bundle {
			s.Shared.Object(models.DescriptorPathID).Data = assets.NewStruct("Base", "AssetBundle",
				assets.NewString(assets.FieldName, "x"))
			return s.Bundle()
		}},
		{"no type entry", func(s *testutil.SceneBuilder) *assets.Bundle {
			s.Shared.Types = nil
			return s.Bundle()
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testutil.NewScene(t, "broken")
			s.GameObject(10, 11, "Root", 0)

			_, err := New(newMemProvider("in.bundle", tt.build(s))).Repack(params)
			assert.ErrorIs(t, err, models.ErrStructural)
		})
	}
}

// ==================== Stage Tests ====================

func TestContext_Advance(t *testing.T) {
	c := &Context{logger: logging.Discard()}
	assert.Equal(t, StageInit, c.Stage())

	require.NoError(t, c.advance(StageHierarchyBuilt))
	assert.Error(t, c.advance(StageStripped), "stages cannot be skipped")
	assert.Error(t, c.advance(StageHierarchyBuilt), "stages cannot repeat")

	for next := StageClosureComputed; next <= StageSerialized; next++ {
		require.NoError(t, c.advance(next))
	}
	assert.True(t, c.Stage().Terminal())
	assert.Equal(t, "collision-remapped", StageCollisionRemapped.String())
	assert.Equal(t, "stage(42)", Stage(42).String())
}

// ==================== Integration Tests ====================

func TestRepack_ThroughDisk(t *testing.T) {
	dir := t.TempDir()
	in := testutil.WriteBundle(t, dir, "level1.bundle", levelScene(t).Bundle())
	out := filepath.Join(dir, "out", "Level1_Child.bundle")

	m := assets.NewManager(nil)
	result, err := New(m).Repack(&models.RepackParams{
		BundlePath:      in,
		ObjectNames:     []string{"Root/Child"},
		ContainerPrefix: "assets/",
		OutBundlePath:   out,
	})
	require.NoError(t, err)
	assert.Equal(t, "level1_child", result.BundleName)
	assert.Equal(t, out, result.OutPath)

	b, err := m.LoadBundle(out)
	require.NoError(t, err)
	require.Len(t, b.Files, 1)
	assert.Equal(t, CabName("level1_child"), b.MainFile().Name)

	entries, _, err := assets.Descriptor(b.MainFile().Object(models.DescriptorPathID).Data)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "assets/Root/Child.prefab", entries[0].Path)
}

func TestRepack_ContainerAnchoredPreload(t *testing.T) {
	dir := t.TempDir()

	p := testutil.NewPrefab(t, "props", "CAB-PROPS")
	p.Object(70, models.ClassGameObject, testutil.Ref("m_Mesh", 0, 7), testutil.Ref("m_Shader", 0, 8))
	p.Object(7, classMaterial)
	p.Object(8, classMaterial)
	p.Container("assets/props/lamp.prefab", 70)
	propsPath := testutil.WriteBundle(t, dir, "props.bundle", p.Bundle())

	m := assets.NewManager(nil)
	resolver := preload.Union{
		preload.Direct{},
		preload.NewContainerAnchored(preload.CabMap{"cab-props": propsPath}, m, nil),
	}
	provider := newMemProvider("in.bundle", levelScene(t).Bundle())

	_, err := New(provider, WithPreloadResolver(resolver)).Repack(&models.RepackParams{
		BundlePath:    "in.bundle",
		ObjectNames:   []string{"Root/Child"},
		OutBundlePath: "out.bundle",
	})
	require.NoError(t, err)

	_, table, err := assets.Descriptor(provider.written["out.bundle"].Files[0].Object(models.DescriptorPathID).Data)
	require.NoError(t, err)
	assert.Equal(t, []models.PPtr{
		{FileID: 1, PathID: 7},
		{FileID: 1, PathID: 8},
		{FileID: 1, PathID: 70},
	}, table)
}
