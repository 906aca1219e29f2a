// Package repack turns a scene bundle into a bundle holding only the game
// objects that were asked for, exposed through container entries.
package repack

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/kilupskalvis/scenepack/internal/assets"
	"github.com/kilupskalvis/scenepack/internal/deps"
	"github.com/kilupskalvis/scenepack/internal/hierarchy"
	"github.com/kilupskalvis/scenepack/internal/logging"
	"github.com/kilupskalvis/scenepack/internal/models"
	"github.com/kilupskalvis/scenepack/internal/preload"
)

// DefaultContainerSuffix is the extension given to container paths
const DefaultContainerSuffix = "prefab"

// Provider loads and writes bundles
type Provider interface {
	LoadBundle(path string) (*assets.Bundle, error)
	WriteBundle(b *assets.Bundle, path string) error
}

// StrippedSceneRepacker repacks a scene by keeping the minimal set of objects
// that lets every requested game object load. Game objects whose parents are
// not kept become roots.
type StrippedSceneRepacker struct {
	provider Provider
	preload  preload.Resolver
	logger   *slog.Logger
	suffix   string
}

// Option configures a StrippedSceneRepacker
type Option func(*StrippedSceneRepacker)

// WithPreloadResolver sets the preload table strategy. The default is preload.Direct.
func WithPreloadResolver(r preload.Resolver) Option {
	return func(s *StrippedSceneRepacker) {
		s.preload = r
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(s *StrippedSceneRepacker) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithContainerSuffix sets the extension of container paths
func WithContainerSuffix(suffix string) Option {
	return func(s *StrippedSceneRepacker) {
		s.suffix = strings.TrimPrefix(suffix, ".")
	}
}

// New creates a repacker reading and writing bundles through provider
func New(provider Provider, opts ...Option) *StrippedSceneRepacker {
	s := &StrippedSceneRepacker{
		provider: provider,
		preload:  preload.Direct{},
		logger:   logging.Discard(),
		suffix:   DefaultContainerSuffix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// run carries the per-invocation working sets between stages
type run struct {
	*Context
	params *models.RepackParams
	result *models.RepackResult

	requested []string        // unique requested names, in request order
	missing   map[string]bool // requested names absent from the hierarchy
	included  models.PathSet  // closure, by path id before any remap
	movedTo   int64           // new path id of the object evicted from path id 1

	containerRoots map[string]struct{}
	targetRoots    map[string]string // requested name -> container root
}

// current maps a path id from before the collision remap to its id now
func (r *run) current(pathID int64) int64 {
	if pathID == models.DescriptorPathID {
		return r.movedTo
	}
	return pathID
}

// original maps a path id after the collision remap back to its id before it
func (r *run) original(pathID int64) int64 {
	if r.movedTo != models.DescriptorPathID && pathID == r.movedTo {
		return models.DescriptorPathID
	}
	return pathID
}

// Repack runs the whole pipeline for one scene bundle.
//
// Requested names that cannot be exposed are reported in the result's
// NonRepackedAssets and do not fail the run. Structural problems with the
// bundle and I/O failures abort it.
func (s *StrippedSceneRepacker) Repack(params *models.RepackParams) (*models.RepackResult, error) {
	if params.BundlePath == "" || params.OutBundlePath == "" {
		return nil, errors.New("bundle path and output path are required")
	}

	b, err := s.provider.LoadBundle(params.BundlePath)
	if err != nil {
		return nil, err
	}

	ctx, err := newContext(b, s.logger.With("scene", params.BundlePath))
	if err != nil {
		return nil, err
	}

	r := &run{
		Context:        ctx,
		params:         params,
		result:         models.NewRepackResult(),
		missing:        make(map[string]bool),
		included:       make(models.PathSet),
		movedTo:        models.DescriptorPathID,
		containerRoots: make(map[string]struct{}),
		targetRoots:    make(map[string]string),
	}
	r.result.BundlePath = params.BundlePath
	r.result.OutPath = params.OutBundlePath
	r.result.BundleName = bundleName(params)
	r.result.CabName = CabName(r.result.BundleName)

	steps := []struct {
		stage Stage
		fn    func() error
	}{
		{StageHierarchyBuilt, r.buildHierarchy},
		{StageClosureComputed, r.computeClosure},
		{StageStripped, r.strip},
		{StageCollisionRemapped, r.remapCollision},
		{StageDeparented, r.deparent},
		{StageMetadataRebuilt, func() error { return s.rebuildMetadata(r) }},
		{StageSerialized, func() error { return s.serialize(r) }},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			return nil, fmt.Errorf("%s: %w", step.stage, err)
		}
		if err := r.advance(step.stage); err != nil {
			return nil, err
		}
	}

	r.result.Timestamp = time.Now().UTC()
	return r.result, nil
}

func (r *run) buildHierarchy() error {
	idx, err := hierarchy.Build(r.MainFile, r.logger)
	if err != nil {
		return err
	}
	r.Index = idx
	r.Deps = deps.New(r.MainFile)
	r.logger.Debug("indexed game objects", "count", idx.Len())
	return nil
}

func (r *run) computeClosure() error {
	seen := make(map[string]bool, len(r.params.ObjectNames))
	for _, name := range r.params.ObjectNames {
		if !seen[name] {
			seen[name] = true
			r.requested = append(r.requested, name)
		}
	}

	// Descendants of another requested name are covered by its closure.
	for _, name := range hierarchy.HighestNodes(r.requested) {
		info, ok := r.Index.TryLookupName(name)
		if !ok {
			r.logger.Error("couldn't find game object", "name", name)
			r.missing[name] = true
			continue
		}
		r.included.Add(info.GameObjectPathID)
		closure, err := r.Deps.FindBundleDeps(info.GameObjectPathID)
		if err != nil {
			return fmt.Errorf("closure of %q: %w", name, err)
		}
		r.included.Union(closure.InternalPaths)
	}

	r.logger.Info("computed closure", "objects", len(r.included), "targets", len(r.requested))
	return nil
}

func (r *run) strip() error {
	removed := 0
	for _, obj := range r.MainFile.Objects() {
		if !r.included.Has(obj.PathID) {
			r.MainFile.RemoveObject(obj.PathID)
			removed++
		}
	}
	if r.MainFile.Len() != len(r.included) {
		return fmt.Errorf("%w: %d objects kept but closure has %d", models.ErrStructural, r.MainFile.Len(), len(r.included))
	}
	r.logger.Info("stripped objects", "removed", removed, "kept", r.MainFile.Len())
	return nil
}

// remapCollision frees path id 1 for the descriptor. A kept object there is
// moved to the first negative id that is neither kept nor referenced by a kept
// object, and every reference to it rewritten.
func (r *run) remapCollision() error {
	occupant := r.MainFile.Object(models.DescriptorPathID)
	if occupant == nil || occupant.ClassID == models.ClassAssetBundle {
		return nil
	}

	referenced, err := r.referencedPaths()
	if err != nil {
		return err
	}
	newID := int64(-1)
	for r.included.Has(newID) || r.MainFile.Has(newID) || referenced.Has(newID) {
		newID--
	}
	if err := r.MainFile.SetObjectID(models.DescriptorPathID, newID); err != nil {
		return err
	}

	redirected, selfRedirected := 0, 0
	for _, obj := range r.MainFile.Objects() {
		n, err := r.MainFile.Redirect(obj, models.DescriptorPathID, newID)
		if err != nil {
			return fmt.Errorf("redirect references of %d: %w", obj.PathID, err)
		}
		if obj == occupant {
			selfRedirected += n
		} else {
			redirected += n
		}
	}

	r.movedTo = newID
	r.Deps.Reset()
	r.result.MovedPathID = newID
	r.result.Redirected = redirected + selfRedirected
	r.logger.Info("moved object off reserved path id",
		"to", newID, "references", redirected, "self_references", selfRedirected)
	return nil
}

// referencedPaths collects every local path id a kept object points at,
// including parent pointers to stripped transforms.
func (r *run) referencedPaths() (models.PathSet, error) {
	referenced := make(models.PathSet)
	for _, obj := range r.MainFile.Objects() {
		d, err := r.Deps.FindImmediateDeps(obj.PathID)
		if err != nil {
			return nil, err
		}
		referenced.Union(d.InternalPaths)
	}
	return referenced, nil
}

// deparent clears the parent of every kept transform whose parent was stripped
func (r *run) deparent() error {
	count := 0
	for info := range r.Index.All() {
		if !r.included.Has(info.TransformPathID) {
			continue
		}
		transform := r.MainFile.Object(r.current(info.TransformPathID))
		father, err := transform.Data.Get(deps.FieldFather)
		if err != nil {
			return fmt.Errorf("%w: transform %d: %v", models.ErrStructural, transform.PathID, err)
		}
		p, err := father.PPtr()
		if err != nil {
			return fmt.Errorf("transform %d: %w", transform.PathID, err)
		}
		if p.IsNull() || r.included.Has(r.original(p.PathID)) {
			continue
		}
		if err := father.SetPPtr(models.PPtr{}); err != nil {
			return err
		}
		count++
		r.logger.Debug("deparented game object", "name", info.Name)
	}
	r.logger.Info("deparented game objects", "count", count)
	return r.selectContainers()
}

// selectContainers picks, for every requested name, the rootmost kept game
// object above it. Those roots become container entries.
func (r *run) selectContainers() error {
	var kept []string
	for id := range r.included {
		if info, ok := r.Index.TryLookupGameObject(id); ok {
			kept = append(kept, info.Name)
		}
	}
	rootmost := hierarchy.HighestNodes(kept)

	for _, name := range r.requested {
		if r.missing[name] {
			r.result.NonRepackedAssets = append(r.result.NonRepackedAssets, name)
			continue
		}
		if _, ok := r.Index.TryLookupName(name); !ok {
			r.logger.Error("couldn't find game object", "name", name)
			r.result.NonRepackedAssets = append(r.result.NonRepackedAssets, name)
			continue
		}
		ancestor, depth, ok := hierarchy.FindAncestor(rootmost, name)
		if !ok {
			r.logger.Warn("did not find game object in repacked bundle", "name", name)
			r.result.NonRepackedAssets = append(r.result.NonRepackedAssets, name)
			continue
		}
		r.containerRoots[ancestor] = struct{}{}
		r.targetRoots[name] = ancestor
		r.logger.Debug("resolved container root", "name", name, "root", ancestor, "depth", depth)
	}
	return nil
}

func (s *StrippedSceneRepacker) rebuildMetadata(r *run) error {
	roots := make([]string, 0, len(r.containerRoots))
	for root := range r.containerRoots {
		roots = append(roots, root)
	}
	slices.Sort(roots)

	scene := &preload.Scene{Name: r.MainFile.Name, File: r.MainFile, Deps: r.Deps}
	var preloadFields, containerFields []*assets.Field
	containerPaths := make(map[string]string, len(roots))

	for _, root := range roots {
		info, err := r.Index.LookupName(root)
		if err != nil {
			return err
		}
		assetID := r.current(info.GameObjectPathID)

		table := make(models.PreloadSet)
		if err := s.preload.BuildPreloadTable(assetID, scene, table); err != nil {
			return fmt.Errorf("preload table of %q: %w", root, err)
		}

		start := len(preloadFields)
		for _, p := range table.Sorted() {
			preloadFields = append(preloadFields, assets.NewPreloadField(p))
		}

		entry := models.ContainerEntry{
			Path:         s.containerPath(r.params.ContainerPrefix, root),
			Asset:        models.PPtr{FileID: 0, PathID: assetID},
			PreloadIndex: start,
			PreloadSize:  len(preloadFields) - start,
		}
		containerFields = append(containerFields, assets.NewContainerEntryField(entry))
		containerPaths[root] = entry.Path
		r.result.GameObjectAssets[entry.Path] = root
		r.result.Containers = append(r.result.Containers, entry)
	}

	for name, root := range r.targetRoots {
		r.result.Targets[name] = containerPaths[root]
	}

	desc := r.Descriptor.Data
	if err := desc.SetElements(assets.FieldPreloadTable, preloadFields); err != nil {
		return err
	}
	if err := desc.SetElements(assets.FieldContainer, containerFields); err != nil {
		return err
	}
	r.logger.Info("rebuilt container", "entries", len(containerFields), "preloads", len(preloadFields))

	return r.installDescriptor()
}

// installDescriptor updates the descriptor's bundle fields and moves it into
// the main file at the reserved path id.
func (r *run) installDescriptor() error {
	desc := r.Descriptor.Data
	name := r.result.BundleName
	if err := assets.Set(desc, assets.FieldName, name); err != nil {
		return err
	}
	if err := assets.Set(desc, assets.FieldAssetBundleName, name); err != nil {
		return err
	}
	if err := assets.Set(desc, assets.FieldIsStreamedScene, false); err != nil {
		return err
	}
	if desc.Has(assets.FieldSceneHashes) {
		if err := desc.SetElements(assets.FieldSceneHashes, nil); err != nil {
			return err
		}
	}

	if _, ok := r.MainFile.Type(models.ClassAssetBundle); !ok {
		t, ok := r.SharedFile.Type(models.ClassAssetBundle)
		if !ok {
			return fmt.Errorf("%w: no AssetBundle type entry to copy", models.ErrStructural)
		}
		r.MainFile.AddType(t)
	}

	if placeholder := r.MainFile.Object(models.DescriptorPathID); placeholder != nil {
		if placeholder.ClassID != models.ClassAssetBundle {
			return fmt.Errorf("%w: path id %d still held by class %d",
				models.ErrStructural, models.DescriptorPathID, placeholder.ClassID)
		}
		r.MainFile.RemoveObject(models.DescriptorPathID)
	}
	r.SharedFile.RemoveObject(r.Descriptor.PathID)
	if err := r.MainFile.AddObject(&assets.Object{
		PathID:  models.DescriptorPathID,
		ClassID: models.ClassAssetBundle,
		Data:    desc,
	}); err != nil {
		return err
	}

	r.MainFile.Name = r.result.CabName
	r.Bundle.Name = name
	r.Bundle.Files = []*assets.File{r.MainFile}
	return nil
}

func (s *StrippedSceneRepacker) serialize(r *run) error {
	if err := s.provider.WriteBundle(r.Bundle, r.params.OutBundlePath); err != nil {
		return err
	}
	r.logger.Info("wrote repacked bundle",
		"path", r.params.OutBundlePath,
		"containers", len(r.result.GameObjectAssets),
		"not_repacked", len(r.result.NonRepackedAssets))
	return nil
}

func (s *StrippedSceneRepacker) containerPath(prefix, root string) string {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		return root + "." + s.suffix
	}
	return prefix + "/" + root + "." + s.suffix
}

// bundleName is the explicit name, or the lower-case base name of the output
func bundleName(p *models.RepackParams) string {
	if p.BundleName != "" {
		return p.BundleName
	}
	base := filepath.Base(p.OutBundlePath)
	return strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base)))
}

// CabName derives the cab name of a bundle's main file from the bundle name
func CabName(bundleName string) string {
	sum := md5.Sum([]byte(bundleName))
	return "CAB-" + hex.EncodeToString(sum[:])
}
