package capture

import (
	"image"
	"sync"
)

// FrameBuffer is a FrameSource fed by a remote client that uploads frames,
// for example a browser forwarding its camera preview.
type FrameBuffer struct {
	mu     sync.RWMutex
	frame  image.Image
	closed bool
}

// NewFrameBuffer returns an empty buffer. It is not ready until the first Push.
func NewFrameBuffer() *FrameBuffer {
	return &FrameBuffer{}
}

// Push replaces the current frame. Frames pushed after Close are dropped.
func (b *FrameBuffer) Push(img image.Image) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.frame = img
}

// Ready implements FrameSource.
func (b *FrameBuffer) Ready() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.closed && b.frame != nil
}

// Dimensions implements FrameSource.
func (b *FrameBuffer) Dimensions() (int, int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.frame == nil {
		return 0, 0
	}
	r := b.frame.Bounds()
	return r.Dx(), r.Dy()
}

// Snapshot implements FrameSource.
func (b *FrameBuffer) Snapshot() (image.Image, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed || b.frame == nil {
		return nil, ErrNotReady
	}
	return b.frame, nil
}

// Close implements FrameSource.
func (b *FrameBuffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.frame = nil
	return nil
}
