package outputwriter

import (
	"fmt"
	"sync"
)

// OrderedWriter emits groups strictly in ascending InputIndex order,
// parking out-of-order arrivals in an in-memory reorder buffer until the
// gap in front of them closes (§4.6 ordered mode). The buffer is bounded;
// once it reaches maxBuffer the Scheduler is expected to have already
// throttled dispatch via Pending(), so Submit returning ErrBufferFull
// indicates a Scheduler bug rather than a normal operating condition.
type OrderedWriter struct {
	mu        sync.Mutex
	lf        *lineFile
	nextIndex int
	buffer    map[int]Group
	maxBuffer int
}

// ErrBufferFull is returned when Submit is called while the reorder
// buffer is already at capacity and the submitted group does not close
// the gap. The Scheduler must never let this happen in practice — it
// exists as a safety net, not a flow-control signal.
var ErrBufferFull = fmt.Errorf("outputwriter: reorder buffer full")

func (w *OrderedWriter) Submit(g Group) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if g.InputIndex < w.nextIndex {
		// Already committed (can happen on resume replay); ignore.
		return nil
	}

	if g.InputIndex != w.nextIndex {
		if len(w.buffer) >= w.maxBuffer {
			return ErrBufferFull
		}
		w.buffer[g.InputIndex] = g
		return nil
	}

	if err := w.drainFromLocked(g); err != nil {
		return err
	}
	return nil
}

// drainFromLocked writes g (which is known to be exactly nextIndex) and
// then any now-contiguous buffered groups, advancing nextIndex as it goes.
func (w *OrderedWriter) drainFromLocked(g Group) error {
	if err := w.lf.writeRecords(g.Outputs); err != nil {
		return err
	}
	w.nextIndex++

	for {
		next, ok := w.buffer[w.nextIndex]
		if !ok {
			return nil
		}
		delete(w.buffer, w.nextIndex)
		if err := w.lf.writeRecords(next.Outputs); err != nil {
			return err
		}
		w.nextIndex++
	}
}

func (w *OrderedWriter) Flush() error {
	return w.lf.flush()
}

// Sync fsyncs and returns nextIndex-1, the highest index now guaranteed
// contiguous and durable on disk — exactly what the Scheduler should feed
// into checkpoint.MarkCompleted's prefix advance.
func (w *OrderedWriter) Sync() (int, error) {
	if err := w.lf.sync(); err != nil {
		return 0, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.nextIndex - 1, nil
}

// Pending returns the number of groups parked waiting on a gap. The
// Scheduler compares this against its own configured cap before
// dispatching further work (§4.7 backpressure).
func (w *OrderedWriter) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.buffer)
}

func (w *OrderedWriter) Close() error { return w.lf.close() }
