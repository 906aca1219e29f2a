package assets

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// BufferPool hands out byte slices large enough to hold a whole file.
type BufferPool struct {
	pool sync.Pool
}

// NewBufferPool creates an empty buffer pool
func NewBufferPool() *BufferPool {
	return &BufferPool{}
}

// Rent returns a slice of length n. Return it with Release when done.
func (p *BufferPool) Rent(n int) []byte {
	if v, ok := p.pool.Get().(*[]byte); ok && cap(*v) >= n {
		return (*v)[:n]
	}
	return make([]byte, n)
}

// Release puts buf back into the pool. buf must not be used afterwards.
func (p *BufferPool) Release(buf []byte) {
	if buf == nil {
		return
	}
	buf = buf[:0]
	p.pool.Put(&buf)
}

// RentedFile is the content of a file held in a pooled buffer.
type RentedFile struct {
	Data  []byte
	owner *BufferPool
}

// ReadFile reads path into a buffer rented from p. The buffer goes back to
// the pool if reading fails; otherwise the caller must Close the result.
func (p *BufferPool) ReadFile(path string) (*RentedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	buf := p.Rent(int(info.Size()))
	if _, err := io.ReadFull(f, buf); err != nil {
		p.Release(buf)
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return &RentedFile{Data: buf, owner: p}, nil
}

// Close returns the buffer to its pool. Safe to call more than once.
func (r *RentedFile) Close() error {
	if r.owner != nil {
		r.owner.Release(r.Data)
		r.owner = nil
		r.Data = nil
	}
	return nil
}

// DecompressPool manages reusable zstd decoders to reduce allocation overhead.
type DecompressPool struct {
	pool             *sync.Pool
	maxDecoderMemory uint64
}

// NewDecompressPool creates a new pool for zstd decoders.
// If maxMemory is 0, no memory limit is applied to decoders.
func NewDecompressPool(maxMemory uint64) *DecompressPool {
	p := &DecompressPool{maxDecoderMemory: maxMemory}
	p.pool = &sync.Pool{
		New: func() any {
			dec, err := p.newDecoder(nil)
			if err != nil {
				return nil
			}
			return dec
		},
	}
	return p
}

// Get returns a decoder configured to read from r.
// The caller must call the returned release function when done.
// If an error is returned, no release function needs to be called.
func (p *DecompressPool) Get(r io.Reader) (*zstd.Decoder, func(), error) {
	if p == nil || p.pool == nil {
		dec, err := p.newDecoder(r)
		if err != nil {
			return nil, nil, err
		}
		return dec, dec.Close, nil
	}

	dec, ok := p.pool.Get().(*zstd.Decoder)
	if !ok || dec == nil {
		// Pool's New function failed, try directly
		newDec, err := p.newDecoder(r)
		if err != nil {
			return nil, nil, err
		}
		return newDec, newDec.Close, nil
	}

	if err := dec.Reset(r); err != nil {
		dec.Close()
		newDec, err := p.newDecoder(r)
		if err != nil {
			return nil, nil, err
		}
		return newDec, newDec.Close, nil
	}

	return dec, func() {
		_ = dec.Reset(nil) //nolint:errcheck // clearing state before pool return
		p.pool.Put(dec)
	}, nil
}

func (p *DecompressPool) newDecoder(r io.Reader) (*zstd.Decoder, error) {
	opts := []zstd.DOption{zstd.WithDecoderConcurrency(1)}
	if p != nil && p.maxDecoderMemory != 0 {
		opts = append(opts, zstd.WithDecoderMaxMemory(p.maxDecoderMemory))
	}
	return zstd.NewReader(r, opts...)
}
