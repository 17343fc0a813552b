package frame

import "sync/atomic"

// Handle owns an acquired image until Release returns it to its producer.
type Handle struct {
	image    *Image
	release  func(*Image)
	released atomic.Bool
}

func NewHandle(image *Image, release func(*Image)) *Handle {
	return &Handle{image: image, release: release}
}

// Image returns the owned image, or nil once the handle is released.
func (h *Handle) Image() *Image {
	if h == nil || h.released.Load() {
		return nil
	}
	return h.image
}

// Release runs the release hook. Only the first call has any effect.
func (h *Handle) Release() {
	if h == nil || !h.released.CompareAndSwap(false, true) {
		return
	}
	if h.release != nil {
		h.release(h.image)
	}
}

func (h *Handle) Released() bool {
	return h != nil && h.released.Load()
}
