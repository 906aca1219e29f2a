package hierarchy

import (
	"testing"

	"github.com/kilupskalvis/scenepack/internal/assets"
	"github.com/kilupskalvis/scenepack/internal/models"
	"github.com/kilupskalvis/scenepack/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==================== Path Tests ====================

func TestHighestNodes(t *testing.T) {
	assert.Equal(t, []string{"A", "C"}, HighestNodes([]string{"A", "A/B", "C"}))
	assert.Equal(t, []string{"A", "A-x"}, HighestNodes([]string{"A/B/C", "A-x", "A", "A"}))
	assert.Equal(t, []string{"A/B", "AB"}, HighestNodes([]string{"A/B", "AB", "A/B/C"}))
	assert.Empty(t, HighestNodes(nil))
}

func TestFindAncestor(t *testing.T) {
	ancestor, depth, ok := FindAncestor([]string{"A", "C"}, "A/B/D")
	assert.True(t, ok)
	assert.Equal(t, "A", ancestor)
	assert.Equal(t, 2, depth)

	ancestor, depth, ok = FindAncestor([]string{"A", "C"}, "C")
	assert.True(t, ok)
	assert.Equal(t, "C", ancestor)
	assert.Equal(t, 0, depth)

	_, _, ok = FindAncestor([]string{"A", "C"}, "AB/D")
	assert.False(t, ok, "prefix match must stop at a separator")

	ancestor, depth, ok = FindAncestor([]string{"A", "A/B"}, "A/B/D")
	assert.True(t, ok)
	assert.Equal(t, "A/B", ancestor, "closest ancestor wins")
	assert.Equal(t, 1, depth)
}

func TestParentAndDepth(t *testing.T) {
	parent, ok := Parent("A/B/C")
	assert.True(t, ok)
	assert.Equal(t, "A/B", parent)

	_, ok = Parent("A")
	assert.False(t, ok)

	assert.Equal(t, 0, Depth("A", "A"))
	assert.Equal(t, 2, Depth("A", "A/B/C"))
	assert.Equal(t, -1, Depth("A/B", "A"))
	assert.True(t, IsDescendant("A", "A/B"))
	assert.False(t, IsDescendant("A", "A"))
}

// ==================== Index Tests ====================

func TestBuild(t *testing.T) {
	s := testutil.NewScene(t, "level1")
	s.GameObject(10, 11, "Root", 0)
	s.GameObject(20, 21, "Child", 11)
	s.GameObject(30, 31, "Leaf", 21)
	s.GameObject(40, 41, "Other", 0)

	idx, err := Build(s.Main, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, idx.Len())

	info, ok := idx.TryLookupName("Root/Child/Leaf")
	require.True(t, ok)
	assert.Equal(t, int64(30), info.GameObjectPathID)
	assert.Equal(t, int64(31), info.TransformPathID)

	info, ok = idx.TryLookupGameObject(20)
	require.True(t, ok)
	assert.Equal(t, "Root/Child", info.Name)

	_, ok = idx.TryLookupName("Child")
	assert.False(t, ok)
	_, err = idx.LookupName("Missing")
	assert.ErrorIs(t, err, models.ErrNotFound)

	var names []string
	for info := range idx.All() {
		names = append(names, info.Name)
	}
	assert.Equal(t, []string{"Root", "Root/Child", "Root/Child/Leaf", "Other"}, names)
}

func TestBuild_RectTransform(t *testing.T) {
	s := testutil.NewScene(t, "ui")
	s.GameObject(10, 11, "Canvas", 0)
	s.Main.Object(11).ClassID = models.ClassRectTransform
	s.GameObject(20, 21, "Button", 11)

	idx, err := Build(s.Main, nil)
	require.NoError(t, err)
	_, ok := idx.TryLookupName("Canvas/Button")
	assert.True(t, ok)
}

func TestBuild_SkipsObjectsWithoutTransform(t *testing.T) {
	s := testutil.NewScene(t, "level1")
	s.GameObject(10, 11, "Root", 0)
	s.Object(50, models.ClassGameObject,
		assets.NewArray("m_Component", "ComponentPair"),
		assets.NewString("m_Name", "Loose"),
	)

	idx, err := Build(s.Main, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, idx.Len())
	_, ok := idx.TryLookupGameObject(50)
	assert.False(t, ok)
}

func TestBuild_DuplicateNamesKeepLowestPathID(t *testing.T) {
	s := testutil.NewScene(t, "level1")
	s.GameObject(10, 11, "Root", 0)
	s.GameObject(30, 31, "Dup", 11)
	s.GameObject(20, 21, "Dup", 11)

	idx, err := Build(s.Main, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, idx.Len())

	info, ok := idx.TryLookupName("Root/Dup")
	require.True(t, ok)
	assert.Equal(t, int64(20), info.GameObjectPathID)

	other, ok := idx.TryLookupGameObject(30)
	require.True(t, ok)
	assert.Equal(t, "Root/Dup", other.Name)
}

func TestBuild_DanglingParentBecomesRoot(t *testing.T) {
	s := testutil.NewScene(t, "level1")
	s.GameObject(10, 11, "Root", 0)
	s.GameObject(20, 21, "Child", 11)
	s.Main.RemoveObject(11)
	s.Main.RemoveObject(10)

	idx, err := Build(s.Main, nil)
	require.NoError(t, err)
	_, ok := idx.TryLookupName("Child")
	assert.True(t, ok)
}

func TestBuild_ParentCycle(t *testing.T) {
	s := testutil.NewScene(t, "level1")
	s.GameObject(10, 11, "A", 0)
	s.GameObject(20, 21, "B", 11)

	father, err := s.Main.Object(11).Data.Get("m_Father")
	require.NoError(t, err)
	require.NoError(t, father.SetPPtr(models.PPtr{PathID: 21}))

	_, err = Build(s.Main, nil)
	assert.ErrorIs(t, err, models.ErrStructural)
}
