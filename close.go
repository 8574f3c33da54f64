package cellgc

import (
	"context"
	"errors"
)

// Close stops the heap. Blocked and later allocations fail with ErrClosed.
// A running background cycle is finished before Close returns, and the
// memory reserved with the resource controller is released.
func (h *Heap) Close() error {
	if h == nil {
		return nil
	}
	var err error
	h.closeOnce.Do(func() {
		h.orch.Close()
		if h.group != nil {
			h.cancel()
			if werr := h.group.Wait(); werr != nil && !errors.Is(werr, context.Canceled) {
				err = werr
			}
		}
		h.rc.ReleaseMemory(h.reserved)
		h.logger.LogClose(context.Background(), err)
	})
	return err
}
