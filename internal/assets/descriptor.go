package assets

import (
	"fmt"

	"github.com/kilupskalvis/scenepack/internal/models"
)

// Fields of the AssetBundle descriptor object.
const (
	FieldName               = "m_Name"
	FieldAssetBundleName    = "m_AssetBundleName"
	FieldContainer          = "m_Container"
	FieldPreloadTable       = "m_PreloadTable"
	FieldIsStreamedScene    = "m_IsStreamedSceneAssetBundle"
	FieldSceneHashes        = "m_SceneHashes"
	containerEntryType      = "pair"
	containerAssetInfoType  = "AssetInfo"
	preloadPointerType      = "Object"
	containerAssetFieldPath = "second.asset"
)

// NewContainerEntryField builds an element of the descriptor's m_Container array
func NewContainerEntryField(e models.ContainerEntry) *Field {
	return NewStruct("data", containerEntryType,
		NewString("first", e.Path),
		NewStruct("second", containerAssetInfoType,
			&Field{Name: "preloadIndex", Type: "int", Kind: KindInt, Int: int64(e.PreloadIndex)},
			&Field{Name: "preloadSize", Type: "int", Kind: KindInt, Int: int64(e.PreloadSize)},
			NewPPtr("asset", preloadPointerType, e.Asset.FileID, e.Asset.PathID),
		),
	)
}

// ParseContainerEntry reads an element of the descriptor's m_Container array
func ParseContainerEntry(f *Field) (models.ContainerEntry, error) {
	path, err := Get[string](f, "first")
	if err != nil {
		return models.ContainerEntry{}, err
	}
	index, err := Get[int64](f, "second.preloadIndex")
	if err != nil {
		return models.ContainerEntry{}, err
	}
	size, err := Get[int64](f, "second.preloadSize")
	if err != nil {
		return models.ContainerEntry{}, err
	}
	ref, err := f.Get(containerAssetFieldPath)
	if err != nil {
		return models.ContainerEntry{}, err
	}
	asset, err := ref.PPtr()
	if err != nil {
		return models.ContainerEntry{}, err
	}
	return models.ContainerEntry{
		Path:         path,
		Asset:        asset,
		PreloadIndex: int(index),
		PreloadSize:  int(size),
	}, nil
}

// NewPreloadField builds an element of the descriptor's m_PreloadTable array
func NewPreloadField(p models.PPtr) *Field {
	return NewPPtr("data", preloadPointerType, p.FileID, p.PathID)
}

// NewDescriptor builds an empty AssetBundle descriptor value tree
func NewDescriptor(name string) *Field {
	return NewStruct("Base", "AssetBundle",
		NewString(FieldName, name),
		NewArray(FieldPreloadTable, "PPtr<Object>"),
		NewArray(FieldContainer, "pair"),
		NewString(FieldAssetBundleName, name),
		NewBool(FieldIsStreamedScene, false),
		NewArray(FieldSceneHashes, "pair"),
	)
}

// Descriptor reads the container entries and preload table of a descriptor
func Descriptor(f *Field) ([]models.ContainerEntry, []models.PPtr, error) {
	containerFields, err := f.Elements(FieldContainer)
	if err != nil {
		return nil, nil, err
	}
	preloadFields, err := f.Elements(FieldPreloadTable)
	if err != nil {
		return nil, nil, err
	}

	entries := make([]models.ContainerEntry, 0, len(containerFields))
	for i, cf := range containerFields {
		e, err := ParseContainerEntry(cf)
		if err != nil {
			return nil, nil, fmt.Errorf("container entry %d: %w", i, err)
		}
		entries = append(entries, e)
	}
	table := make([]models.PPtr, 0, len(preloadFields))
	for i, pf := range preloadFields {
		p, err := pf.PPtr()
		if err != nil {
			return nil, nil, fmt.Errorf("preload entry %d: %w", i, err)
		}
		table = append(table, p)
	}
	return entries, table, nil
}
