package outputwriter

import "sync"

// UnorderedWriter appends each completed group to the output file in
// whatever order workers finish (§4.6 unordered mode): lowest latency,
// no reorder buffer, at the cost of an output file whose line order does
// not match the input.
type UnorderedWriter struct {
	mu        sync.Mutex
	lf        *lineFile
	maxIdxSeen int
	sawAny    bool
}

func (w *UnorderedWriter) Submit(g Group) error {
	if err := w.lf.writeRecords(g.Outputs); err != nil {
		return err
	}
	w.mu.Lock()
	if !w.sawAny || g.InputIndex > w.maxIdxSeen {
		w.maxIdxSeen = g.InputIndex
		w.sawAny = true
	}
	w.mu.Unlock()
	return nil
}

func (w *UnorderedWriter) Flush() error {
	return w.lf.flush()
}

// Sync fsyncs and reports the highest index submitted so far. Unlike the
// ordered writer this is NOT a durable-prefix guarantee — the caller must
// only use it in combination with its own completed-index bookkeeping,
// since unordered mode has no contiguity guarantee (§4.6, §3 glossary).
func (w *UnorderedWriter) Sync() (int, error) {
	if err := w.lf.sync(); err != nil {
		return 0, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.maxIdxSeen, nil
}

func (w *UnorderedWriter) Pending() int { return 0 }

func (w *UnorderedWriter) Close() error { return w.lf.close() }
