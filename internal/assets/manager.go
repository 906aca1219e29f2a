package assets

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/kilupskalvis/scenepack/internal/logging"
	"github.com/kilupskalvis/scenepack/internal/models"
)

// Manager loads and writes bundles. Buffers and decoders are pooled across
// loads; a Manager may be shared by several sequential runs.
type Manager struct {
	buffers  *BufferPool
	decoders *DecompressPool
	logger   *slog.Logger
}

// NewManager creates a manager. A nil logger discards output.
func NewManager(logger *slog.Logger) *Manager {
	logger = logging.OrDiscard(logger)
	return &Manager{
		buffers:  NewBufferPool(),
		decoders: NewDecompressPool(0),
		logger:   logger,
	}
}

// LoadBundle reads and decodes the bundle at path. The pooled buffer backing
// the read is released before returning, on success and failure alike.
func (m *Manager) LoadBundle(path string) (*Bundle, error) {
	rented, err := m.buffers.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: load bundle %s: %v", models.ErrIO, path, err)
	}
	defer rented.Close()

	b, err := Decode(rented.Data, m.decoders)
	if err != nil {
		return nil, fmt.Errorf("load bundle %s: %w", path, err)
	}
	m.logger.Debug("loaded bundle", "path", path, "name", b.Name, "files", len(b.Files))
	return b, nil
}

// LoadBundleBytes decodes a bundle held in memory
func (m *Manager) LoadBundleBytes(data []byte) (*Bundle, error) {
	return Decode(data, m.decoders)
}

// ReadBundle reads a whole bundle from r and decodes it
func (m *Manager) ReadBundle(r io.Reader) (*Bundle, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: read bundle: %v", models.ErrIO, err)
	}
	b, err := m.LoadBundleBytes(data)
	if err != nil {
		return nil, err
	}
	m.logger.Debug("read bundle", "name", b.Name, "bytes", len(data))
	return b, nil
}

// WriteBundle encodes b to path. The bundle is written to a temp file in the
// destination directory and renamed into place.
func (m *Manager) WriteBundle(b *Bundle, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: create output dir: %v", models.ErrIO, err)
	}

	tmpFile, err := os.CreateTemp(dir, ".bundle-*")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", models.ErrIO, err)
	}
	tmpPath := tmpFile.Name()

	if err := Encode(tmpFile, b); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: write bundle %s: %v", models.ErrIO, path, err)
	}

	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: close temp file: %v", models.ErrIO, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: rename bundle: %v", models.ErrIO, err)
	}

	m.logger.Debug("wrote bundle", "path", path, "name", b.Name, "files", len(b.Files))
	return nil
}

// EncodeBytes returns the bundle encoding of b
func EncodeBytes(b *Bundle) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, b); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
