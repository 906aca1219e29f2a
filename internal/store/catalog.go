// Package store provides persistence for scenepack: a bbolt cab catalog that
// maps cab names to the bundles containing them, and a SQLite history of
// repack runs.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/kilupskalvis/scenepack/internal/logging"
	"github.com/kilupskalvis/scenepack/internal/models"
	"github.com/kilupskalvis/scenepack/internal/preload"
	bolt "go.etcd.io/bbolt"
	"golang.org/x/sync/errgroup"
)

// Bucket names used by the catalog.
var (
	bucketCabs    = []byte("cabs")
	bucketBundles = []byte("bundles")
	bucketKV      = []byte("kv")
)

// Key names in the kv bucket.
var keyLastIndexed = []byte("last_indexed")

// DefaultIndexWorkers bounds the number of bundles read concurrently while indexing
const DefaultIndexWorkers = 4

// Catalog is the persistent cab catalog. It resolves cab names for
// preload augmentation.
type Catalog struct {
	db     *bolt.DB
	logger *slog.Logger
}

var _ preload.CabResolver = (*Catalog)(nil)

// OpenCatalog opens or creates a catalog database at the given path and
// makes sure its buckets exist. A nil logger discards output.
func OpenCatalog(dbPath string, logger *slog.Logger) (*Catalog, error) {
	logger = logging.OrDiscard(logger)
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create catalog directory: %w", err)
		}
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	c := &Catalog{db: db, logger: logger}
	if err := c.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// Close closes the database.
func (c *Catalog) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

func (c *Catalog) initialize() error {
	return c.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketCabs, bucketBundles, bucketKV} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

func cabKey(cab string) []byte {
	return []byte(strings.ToLower(cab))
}

// Put maps cab to bundlePath, replacing any previous entry.
func (c *Catalog) Put(cab, bundlePath string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		return putCab(tx, cab, bundlePath)
	})
}

// Exclude marks cab as known but not to be loaded.
func (c *Catalog) Exclude(cab string) error {
	return c.Put(cab, "")
}

func putCab(tx *bolt.Tx, cab, bundlePath string) error {
	entry := models.CabEntry{
		Cab:        strings.ToLower(cab),
		BundlePath: bundlePath,
		UpdatedAt:  time.Now().UTC(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cab entry: %w", err)
	}
	return tx.Bucket(bucketCabs).Put(cabKey(cab), data)
}

// Remove deletes the entry for cab. Removing an unknown cab is not an error.
func (c *Catalog) Remove(cab string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCabs).Delete(cabKey(cab))
	})
}

// Get returns the entry for cab, or an error wrapping models.ErrNotFound.
func (c *Catalog) Get(cab string) (*models.CabEntry, error) {
	var entry *models.CabEntry
	err := c.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketCabs).Get(cabKey(cab))
		if data == nil {
			return fmt.Errorf("%w: cab %s", models.ErrNotFound, cab)
		}
		entry = &models.CabEntry{}
		return json.Unmarshal(data, entry)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// ResolveCab implements preload.CabResolver. Excluded cabs resolve to an
// empty path with ok set.
func (c *Catalog) ResolveCab(cabName string) (string, bool) {
	entry, err := c.Get(cabName)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			c.logger.Warn("cab lookup failed", "cab", cabName, "error", err)
		}
		return "", false
	}
	return entry.BundlePath, true
}

// List returns every cab entry ordered by cab name.
func (c *Catalog) List() ([]*models.CabEntry, error) {
	var entries []*models.CabEntry
	err := c.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCabs).ForEach(func(_, v []byte) error {
			var e models.CabEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("unmarshal cab entry: %w", err)
			}
			entries = append(entries, &e)
			return nil
		})
	})
	return entries, err
}

// Bundles returns every indexed bundle ordered by path.
func (c *Catalog) Bundles() ([]*models.IndexedBundle, error) {
	var bundles []*models.IndexedBundle
	err := c.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBundles).ForEach(func(_, v []byte) error {
			var b models.IndexedBundle
			if err := json.Unmarshal(v, &b); err != nil {
				return fmt.Errorf("unmarshal indexed bundle: %w", err)
			}
			bundles = append(bundles, &b)
			return nil
		})
	})
	return bundles, err
}

// LastIndexed returns the time of the last successful IndexDirs, or zero.
func (c *Catalog) LastIndexed() (time.Time, error) {
	var t time.Time
	err := c.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketKV).Get(keyLastIndexed)
		if v == nil {
			return nil
		}
		return t.UnmarshalText(v)
	})
	return t, err
}

// IndexReport summarises one IndexDirs call
type IndexReport struct {
	Bundles []*models.IndexedBundle
	Skipped []string // files that are not readable bundles
	Cabs    int      // cab entries written
}

// IndexDirs scans dirs recursively, reads every bundle with loader using up to
// workers goroutines, and records the cabs of each bundle. Existing
// exclusions are kept. All entries are written in a single transaction.
func (c *Catalog) IndexDirs(ctx context.Context, dirs []string, loader preload.BundleLoader, workers int) (*IndexReport, error) {
	if workers <= 0 {
		workers = DefaultIndexWorkers
	}

	var paths []string
	for _, dir := range dirs {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != dir && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if d.Type().IsRegular() && !strings.HasPrefix(d.Name(), ".") {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("%w: scan %s: %v", models.ErrIO, dir, err)
		}
	}
	slices.Sort(paths)

	report := &IndexReport{}
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			indexed, err := indexBundle(path, loader)

			mu.Lock()
			defer mu.Unlock()
			if errors.Is(err, models.ErrStructural) {
				c.logger.Warn("skipping unreadable bundle", "path", path, "error", err)
				report.Skipped = append(report.Skipped, path)
				return nil
			}
			if err != nil {
				return err
			}
			report.Bundles = append(report.Bundles, indexed)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	slices.SortFunc(report.Bundles, func(a, b *models.IndexedBundle) int {
		return strings.Compare(a.Path, b.Path)
	})
	slices.Sort(report.Skipped)

	err := c.db.Update(func(tx *bolt.Tx) error {
		cabs := tx.Bucket(bucketCabs)
		bundles := tx.Bucket(bucketBundles)

		for _, b := range report.Bundles {
			data, err := json.Marshal(b)
			if err != nil {
				return fmt.Errorf("marshal indexed bundle: %w", err)
			}
			if err := bundles.Put([]byte(b.Path), data); err != nil {
				return fmt.Errorf("store indexed bundle: %w", err)
			}

			for _, cab := range b.Cabs {
				if existing := cabs.Get(cabKey(cab)); existing != nil {
					var e models.CabEntry
					if err := json.Unmarshal(existing, &e); err == nil && e.Excluded() {
						continue
					}
				}
				if err := putCab(tx, cab, b.Path); err != nil {
					return err
				}
				report.Cabs++
			}
		}

		now, err := time.Now().UTC().MarshalText()
		if err != nil {
			return err
		}
		return tx.Bucket(bucketKV).Put(keyLastIndexed, now)
	})
	if err != nil {
		return nil, fmt.Errorf("write catalog: %w", err)
	}

	c.logger.Info("indexed bundles",
		"bundles", len(report.Bundles), "cabs", report.Cabs, "skipped", len(report.Skipped))
	return report, nil
}

func indexBundle(path string, loader preload.BundleLoader) (*models.IndexedBundle, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: stat %s: %v", models.ErrIO, path, err)
	}
	b, err := loader.LoadBundle(path)
	if err != nil {
		return nil, err
	}
	return &models.IndexedBundle{
		Path:    path,
		Name:    b.Name,
		Cabs:    b.CabNames(),
		Size:    info.Size(),
		ModTime: info.ModTime().UTC(),
	}, nil
}

// Cabs resolves cab names through the catalog after checking static
// overrides. Overrides win over catalog entries.
func Cabs(overrides map[string]string, catalog *Catalog) preload.CabResolver {
	chain := preload.CabChain{}
	if len(overrides) > 0 {
		chain = append(chain, preload.CabMap(lowerKeys(overrides)))
	}
	if catalog != nil {
		chain = append(chain, catalog)
	}
	return chain
}

func lowerKeys(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[strings.ToLower(k)] = v
	}
	return out
}
