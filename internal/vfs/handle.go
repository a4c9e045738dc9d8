package vfs

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/chunkdrive/chunkdrive/internal/engine"
)

// compile-time check: Handle satisfies the io.ReaderAt/io.WriterAt/io.Closer
// trio that pkg/sftp's request-server caches per open file handle.
var (
	_ io.ReaderAt = (*Handle)(nil)
	_ io.WriterAt = (*Handle)(nil)
	_ io.Closer   = (*Handle)(nil)
)

// Handle is a buffered, seekable view onto a single file's content. Reads
// are served from a buffer downloaded up front; writes accumulate in that
// same buffer and are only flushed to the Engine (re-chunked, encrypted,
// and committed) on Close.
type Handle struct {
	mu sync.Mutex

	engine *engine.Engine
	path   string

	data     []byte
	pos      int64
	readable bool
	writable bool
	closed   bool
}

// newHandle builds a Handle for mode, seeding its buffer from data when
// the mode reads existing content (r, r+, a, a+).
func newHandle(eng *engine.Engine, path, mode string, data []byte) *Handle {
	h := &Handle{engine: eng, path: path}
	switch {
	case strings.Contains(mode, "r"):
		h.data = data
		h.readable = true
		h.writable = strings.Contains(mode, "+")
		h.pos = 0
	case strings.Contains(mode, "a"):
		h.data = data
		h.writable = true
		h.readable = strings.Contains(mode, "+")
		h.pos = int64(len(data))
	default: // w, w+, x, x+
		h.writable = true
		h.readable = strings.Contains(mode, "+")
		h.pos = 0
	}
	return h
}

// Read fills p from the buffer at the current position.
func (h *Handle) Read(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.readable {
		return 0, ErrNotReadable
	}
	if h.pos >= int64(len(h.data)) {
		return 0, io.EOF
	}
	n := copy(p, h.data[h.pos:])
	h.pos += int64(n)
	return n, nil
}

// Write stores p in the buffer at the current position, growing the
// buffer as needed.
func (h *Handle) Write(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.writable {
		return 0, ErrNotWritable
	}
	end := h.pos + int64(len(p))
	if end > int64(len(h.data)) {
		grown := make([]byte, end)
		copy(grown, h.data)
		h.data = grown
	}
	copy(h.data[h.pos:end], p)
	h.pos = end
	return len(p), nil
}

// ReadAt serves a pread-style read from an arbitrary offset without
// disturbing the handle's current position, for concurrent access from
// an SFTP request server.
func (h *Handle) ReadAt(p []byte, off int64) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.readable {
		return 0, ErrNotReadable
	}
	if off >= int64(len(h.data)) {
		return 0, io.EOF
	}
	n := copy(p, h.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt serves a pwrite-style write at an arbitrary offset without
// disturbing the handle's current position, growing the buffer as needed.
func (h *Handle) WriteAt(p []byte, off int64) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.writable {
		return 0, ErrNotWritable
	}
	end := off + int64(len(p))
	if end > int64(len(h.data)) {
		grown := make([]byte, end)
		copy(grown, h.data)
		h.data = grown
	}
	copy(h.data[off:end], p)
	return len(p), nil
}

// Seek repositions the handle per the io.Seeker contract.
func (h *Handle) Seek(offset int64, whence int) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = h.pos + offset
	case io.SeekEnd:
		newPos = int64(len(h.data)) + offset
	default:
		return 0, errors.New("vfs: invalid whence")
	}
	if newPos < 0 {
		return 0, errors.New("vfs: negative seek position")
	}
	h.pos = newPos
	return h.pos, nil
}

// Tell returns the current position without moving it.
func (h *Handle) Tell() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pos
}

// Truncate resizes the buffer to n bytes, zero-filling any growth.
func (h *Handle) Truncate(n int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n < 0 {
		return errors.New("vfs: negative truncate size")
	}
	if n <= int64(len(h.data)) {
		h.data = h.data[:n]
		return nil
	}
	grown := make([]byte, n)
	copy(grown, h.data)
	h.data = grown
	return nil
}

// Close flushes a writable handle's buffer through the Engine (chunk,
// encrypt, upload, commit) and releases the buffer. Closing twice, or
// closing a read-only handle, is a no-op beyond the first call. Close
// takes no context, matching io.Closer, so a Handle can be returned
// directly as a pkg/sftp request handler's cached reader/writer; it runs
// the flush against context.Background().
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	if h.writable {
		size := int64(len(h.data))
		if err := h.engine.SendFile(context.Background(), h.path, h.asSource(), size); err != nil {
			return err
		}
	}
	h.data = nil
	return nil
}

// asSource adapts the handle's in-memory buffer to engine.Source. It lives
// here rather than alongside engine's other adapters because vfs already
// imports engine, and engine cannot import vfs back without a cycle.
func (h *Handle) asSource() engine.Source {
	return engine.FromBytes(h.data)
}
