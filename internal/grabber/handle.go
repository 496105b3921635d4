package grabber

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/hhpc/hhpc/pkg/pointer"
)

// Handle is one held grab plus its invisible cursor
type Handle struct {
	dev    pointer.Device
	cursor pointer.Cursor

	once     sync.Once
	released bool
	mu       sync.Mutex
}

// Cursor is the invisible cursor bound to the grab
func (h *Handle) Cursor() pointer.Cursor {
	return h.cursor
}

// Held reports whether Release has not run yet
func (h *Handle) Held() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.released
}

// Release ungrabs the pointer and frees the cursor. Only the first call does
// anything; both steps are attempted even if the first fails.
func (h *Handle) Release() error {
	var err error
	h.once.Do(func() {
		h.mu.Lock()
		h.released = true
		h.mu.Unlock()

		if uerr := h.dev.UngrabPointer(); uerr != nil {
			err = errors.Wrap(uerr, "failed to ungrab pointer")
		}
		if ferr := h.dev.FreeCursor(h.cursor); ferr != nil && err == nil {
			err = errors.Wrap(ferr, "failed to free invisible cursor")
		}
	})
	return err
}
