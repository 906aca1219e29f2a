package assets

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/kilupskalvis/scenepack/internal/models"
	"github.com/klauspost/compress/zstd"
)

// Bundle encoding: an 8 byte header (magic, little-endian format version)
// followed by a zstd stream of the JSON bundle document.
var bundleMagic = [4]byte{'S', 'P', 'K', 'B'}

const (
	formatVersion = 1
	headerSize    = 8
)

// Encode writes b to w in the bundle encoding
func Encode(w io.Writer, b *Bundle) error {
	var header [headerSize]byte
	copy(header[:4], bundleMagic[:])
	binary.LittleEndian.PutUint32(header[4:], formatVersion)
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	enc, err := zstd.NewWriter(w, zstd.WithEncoderConcurrency(1), zstd.WithLowerEncoderMem(true))
	if err != nil {
		return fmt.Errorf("create encoder: %w", err)
	}
	if err := json.NewEncoder(enc).Encode(b); err != nil {
		enc.Close()
		return fmt.Errorf("encode bundle: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("flush encoder: %w", err)
	}
	return nil
}

// Decode parses a bundle from data. Decoders are taken from pool when non-nil.
// The returned bundle does not alias data.
func Decode(data []byte, pool *DecompressPool) (*Bundle, error) {
	if len(data) < headerSize || !bytes.Equal(data[:4], bundleMagic[:]) {
		return nil, fmt.Errorf("%w: not a bundle (bad magic)", models.ErrStructural)
	}
	if v := binary.LittleEndian.Uint32(data[4:headerSize]); v != formatVersion {
		return nil, fmt.Errorf("%w: unsupported bundle format version %d", models.ErrStructural, v)
	}

	dec, release, err := pool.Get(bytes.NewReader(data[headerSize:]))
	if err != nil {
		return nil, fmt.Errorf("create decoder: %w", err)
	}
	defer release()

	var b Bundle
	if err := json.NewDecoder(bufio.NewReader(dec)).Decode(&b); err != nil {
		return nil, fmt.Errorf("%w: decode bundle: %v", models.ErrStructural, err)
	}
	for i, f := range b.Files {
		if f == nil {
			return nil, fmt.Errorf("%w: bundle file %d is empty", models.ErrStructural, i)
		}
	}
	return &b, nil
}
