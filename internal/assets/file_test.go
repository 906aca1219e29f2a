package assets

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"testing/iotest"

	"github.com/kilupskalvis/scenepack/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFile(t *testing.T) *File {
	t.Helper()
	f := NewFile("BuildPlayer-level1")
	f.Externals = []External{{PathName: "archive:/CAB-ABCD/CAB-ABCD"}}
	f.Types = []TypeEntry{{ClassID: models.ClassGameObject, Name: "GameObject"}}
	require.NoError(t, f.AddObject(&Object{PathID: 1, ClassID: models.ClassGameObject,
		Data: NewStruct("Base", "GameObject", NewString("m_Name", "A"), NewPPtr("m_Self", "GameObject", 0, 1))}))
	require.NoError(t, f.AddObject(&Object{PathID: 2, ClassID: 21,
		Data: NewStruct("Base", "Material", NewPPtr("m_Owner", "GameObject", 0, 1), NewPPtr("m_Shader", "Shader", 1, 7))}))
	return f
}

// ==================== File Tests ====================

func TestFile_AddRemove(t *testing.T) {
	f := newTestFile(t)
	assert.Equal(t, 2, f.Len())

	err := f.AddObject(&Object{PathID: 2, ClassID: 21, Data: NewStruct("Base", "X")})
	assert.Error(t, err, "path ids are unique")

	removed := f.RemoveObject(2)
	require.NotNil(t, removed)
	assert.False(t, f.Has(2))
	assert.Nil(t, f.RemoveObject(2))

	var zero File
	require.NoError(t, zero.AddObject(&Object{PathID: 5, Data: NewStruct("Base", "X")}))
	assert.True(t, zero.Has(5))
}

func TestFile_ObjectsOrdered(t *testing.T) {
	f := newTestFile(t)
	require.NoError(t, f.AddObject(&Object{PathID: -3, ClassID: 21, Data: NewStruct("Base", "X")}))

	var ids []int64
	for _, o := range f.Objects() {
		ids = append(ids, o.PathID)
	}
	assert.Equal(t, []int64{-3, 1, 2}, ids)
	assert.Equal(t, int64(1), f.FirstOfClass(models.ClassGameObject).PathID)
	assert.Len(t, f.OfClass(21), 2)
}

func TestFile_SetObjectIDAndRedirect(t *testing.T) {
	f := newTestFile(t)

	require.NoError(t, f.SetObjectID(1, -1))
	assert.False(t, f.Has(1))
	moved := f.Object(-1)
	require.NotNil(t, moved)
	assert.Equal(t, int64(-1), moved.PathID)

	assert.Error(t, f.SetObjectID(1, -5), "nothing at the source id")
	assert.Error(t, f.SetObjectID(-1, 2), "target id taken")

	n, err := f.Redirect(moved, 1, -1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	mat := f.Object(2)
	n, err = f.Redirect(mat, 1, -1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	owner, _ := mat.Data.Get("m_Owner")
	p, _ := owner.PPtr()
	assert.Equal(t, models.PPtr{PathID: -1}, p)

	shader, _ := mat.Data.Get("m_Shader")
	p, _ = shader.PPtr()
	assert.Equal(t, models.PPtr{FileID: 1, PathID: 7}, p, "external references are not redirected")
}

func TestFile_Externals(t *testing.T) {
	f := newTestFile(t)

	ext, err := f.External(1)
	require.NoError(t, err)
	assert.Equal(t, "cab-abcd", ext.CabName())

	_, err = f.External(0)
	assert.ErrorIs(t, err, models.ErrStructural)
	_, err = f.External(2)
	assert.ErrorIs(t, err, models.ErrStructural)

	assert.NoError(t, f.ValidRef(models.PPtr{FileID: 1, PathID: 3}))
	assert.ErrorIs(t, f.ValidRef(models.PPtr{FileID: 2, PathID: 3}), models.ErrStructural)
	assert.ErrorIs(t, f.ValidRef(models.PPtr{FileID: -1, PathID: 3}), models.ErrStructural)
}

func TestFile_Types(t *testing.T) {
	f := newTestFile(t)

	f.AddType(TypeEntry{ClassID: models.ClassGameObject, Name: "Duplicate"})
	assert.Len(t, f.Types, 1)

	f.AddType(TypeEntry{ClassID: models.ClassAssetBundle, Name: "AssetBundle"})
	tp, ok := f.Type(models.ClassAssetBundle)
	assert.True(t, ok)
	assert.Equal(t, "AssetBundle", tp.Name)
}

func TestFile_JSONRejectsDuplicateIDs(t *testing.T) {
	doc := `{"name":"f","objects":[
		{"path_id":1,"class_id":1,"data":{"type":"X","kind":"struct"}},
		{"path_id":1,"class_id":1,"data":{"type":"X","kind":"struct"}}]}`
	var f File
	err := json.Unmarshal([]byte(doc), &f)
	assert.ErrorIs(t, err, models.ErrStructural)
}

// ==================== Bundle Tests ====================

func newTestBundle(t *testing.T) *Bundle {
	t.Helper()
	shared := NewFile("BuildPlayer-level1.sharedAssets")
	require.NoError(t, shared.AddObject(&Object{PathID: 1, ClassID: models.ClassAssetBundle, Data: NewDescriptor("level1")}))
	return &Bundle{
		Name: "level1",
		Files: []*File{
			NewFile("BuildPlayer-level1.resS"),
			newTestFile(t),
			shared,
		},
	}
}

func TestBundle_Files(t *testing.T) {
	b := newTestBundle(t)

	require.NotNil(t, b.MainFile())
	assert.Equal(t, "BuildPlayer-level1", b.MainFile().Name)
	require.NotNil(t, b.SharedFile())
	assert.Equal(t, "BuildPlayer-level1.sharedAssets", b.SharedFile().Name)
	assert.NotNil(t, b.File("buildplayer-LEVEL1"))
	assert.Nil(t, b.File("nope"))
	assert.Equal(t, []string{"buildplayer-level1.ress", "buildplayer-level1", "buildplayer-level1.sharedassets"}, b.CabNames())

	assert.True(t, IsResource("x.resource"))
	assert.False(t, IsSharedAssets("x.resS"))
}

// ==================== Codec Tests ====================

func TestCodec_RoundTripThroughFile(t *testing.T) {
	m := NewManager(nil)
	path := filepath.Join(t.TempDir(), "out", "level1.bundle")

	require.NoError(t, m.WriteBundle(newTestBundle(t), path))

	b, err := m.LoadBundle(path)
	require.NoError(t, err)
	assert.Equal(t, "level1", b.Name)
	require.Len(t, b.Files, 3)

	main := b.MainFile()
	assert.Equal(t, 2, main.Len())
	assert.Equal(t, "cab-abcd", main.Externals[0].CabName())
	name, err := Get[string](main.Object(1).Data, "m_Name")
	require.NoError(t, err)
	assert.Equal(t, "A", name)

	// second load reuses pooled buffers and decoders
	again, err := m.LoadBundle(path)
	require.NoError(t, err)
	assert.Equal(t, b.CabNames(), again.CabNames())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestCodec_BytesAndReader(t *testing.T) {
	data, err := EncodeBytes(newTestBundle(t))
	require.NoError(t, err)
	assert.Equal(t, []byte("SPKB"), data[:4])

	m := NewManager(nil)
	b, err := m.ReadBundle(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "level1", b.Name)

	b, err = m.LoadBundleBytes(data)
	require.NoError(t, err)
	assert.Len(t, b.Files, 3)

	_, err = m.ReadBundle(iotest.ErrReader(errors.New("broken pipe")))
	assert.ErrorIs(t, err, models.ErrIO)

	_, err = m.ReadBundle(bytes.NewReader(data[:2]))
	assert.ErrorIs(t, err, models.ErrStructural)
}

func TestCodec_Rejects(t *testing.T) {
	_, err := Decode([]byte("nope"), nil)
	assert.ErrorIs(t, err, models.ErrStructural)

	_, err = Decode([]byte("SPKB\x02\x00\x00\x00"), nil)
	assert.ErrorIs(t, err, models.ErrStructural, "unknown format version")

	data, err := EncodeBytes(&Bundle{Name: "x", Files: []*File{nil}})
	require.NoError(t, err)
	_, err = Decode(data, NewDecompressPool(0))
	assert.ErrorIs(t, err, models.ErrStructural)
}

func TestManager_LoadMissing(t *testing.T) {
	_, err := NewManager(nil).LoadBundle(filepath.Join(t.TempDir(), "missing.bundle"))
	assert.ErrorIs(t, err, models.ErrIO)
}

// ==================== Pool Tests ====================

func TestBufferPool(t *testing.T) {
	p := NewBufferPool()

	buf := p.Rent(16)
	assert.Len(t, buf, 16)
	p.Release(buf)

	path := filepath.Join(t.TempDir(), "data")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0644))

	rented, err := p.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(rented.Data))
	require.NoError(t, rented.Close())
	require.NoError(t, rented.Close())
	assert.Nil(t, rented.Data)
}
