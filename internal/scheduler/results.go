package scheduler

import (
	"errors"
	"sort"

	"github.com/kilnforge/distill/internal/outputwriter"
	"github.com/kilnforge/distill/internal/promptbuilder"
	"github.com/kilnforge/distill/internal/record"
)

// groupState tracks one input index's fan-out until every generation for
// it has reported in, at which point the group is handed to the Writer
// as a single unit (§4.6: "an input index is only considered written
// once every surviving generation for it has been appended").
type groupState struct {
	total     int
	done      int
	outputs   map[int]*record.OutputRecord // keyed by FanoutSeq
	failures  int
}

// resultHandler consumes the results channel, assembles fan-out groups,
// submits them to the Output Writer, and periodically commits the
// durable prefix to the Checkpoint Store (§4.5/§8 invariant 1).
type resultHandler struct {
	cfg Config
	deps Deps
	sched *Scheduler

	groups map[int]*groupState

	awaitingSync   map[int]int // inputIndex -> outputs written for it, not yet fsynced
	groupsSinceCommit int
}

func newResultHandler(cfg Config, deps Deps, sched *Scheduler) *resultHandler {
	return &resultHandler{
		cfg:          cfg,
		deps:         deps,
		sched:        sched,
		groups:       make(map[int]*groupState),
		awaitingSync: make(map[int]int),
	}
}

func (rh *resultHandler) drain(results <-chan jobOutcome) {
	for outcome := range results {
		rh.handle(outcome)
	}
}

func (rh *resultHandler) handle(o jobOutcome) {
	if o.cancelled {
		// §4.7: cancelled in-flight jobs are not failures; they are
		// simply redone on resume. Do not advance any group state for
		// them so the index remains incomplete.
		return
	}

	idx := o.job.InputIndex
	g, ok := rh.groups[idx]
	if !ok {
		g = &groupState{total: o.job.FanoutTotal, outputs: make(map[int]*record.OutputRecord)}
		rh.groups[idx] = g
	}

	if o.err != nil {
		g.failures++
		rh.sched.failures.Add(1)
		var qf *promptbuilder.QualityFailError
		if errors.As(o.err, &qf) {
			rh.deps.Counters.RecordQualityFail(idx)
		}
	} else if o.output != nil {
		g.outputs[o.job.FanoutSeq] = o.output
		rh.deps.Counters.RecordSuccess(idx)
	}
	g.done++
	rh.sched.reportProgress()

	if g.done >= g.total {
		rh.finalizeGroup(idx, g)
		delete(rh.groups, idx)
	}

	if rh.groupsSinceCommit >= rh.cfg.CheckpointInterval && rh.cfg.CheckpointInterval > 0 {
		rh.commitDurable()
	}
}

// finalizeGroup submits a completed group's surviving outputs, in
// ascending FanoutSeq order, to the Writer (§4.7: "the writer groups
// them in ordered mode"; the unordered writer simply appends them as one
// batch, which is equivalent since within a group order is preserved).
func (rh *resultHandler) finalizeGroup(idx int, g *groupState) {
	outs := make([]*record.OutputRecord, 0, len(g.outputs))
	seqs := make([]int, 0, len(g.outputs))
	for seq := range g.outputs {
		seqs = append(seqs, seq)
	}
	sort.Ints(seqs)
	for _, seq := range seqs {
		outs = append(outs, g.outputs[seq])
	}

	// Submit unconditionally, even with zero surviving outputs (every
	// fan-out for this index failed): the ordered writer advances its
	// next-expected-index strictly on Submit calls, so a silently
	// skipped empty group would wedge every later index behind it in
	// the reorder buffer forever.
	if err := rh.deps.Writer.Submit(outputwriter.Group{InputIndex: idx, Outputs: outs}); err != nil {
		rh.sched.ioErr.Store(err)
		return
	}

	rh.sched.processed.Add(1)
	rh.sched.written.Add(int64(len(outs)))
	rh.awaitingSync[idx] = len(outs)
	rh.groupsSinceCommit++
}

// commitDurable fsyncs the Writer and moves every awaiting index whose
// bytes are now durably on disk into the Checkpoint Store, then saves
// it. This is the only place checkpoint.MarkCompleted is called,
// guaranteeing the invariant that a checkpoint never advances past an
// index whose bytes are not yet on disk (§8 invariant 1, §5 ordering
// guarantees).
//
// In ordered mode, Sync's maxDurableIndex may be lower than some indices
// already present in awaitingSync: the ordered writer only flushes a
// group once every index below it has arrived, so a later index can
// finish (and be handed to finalizeGroup) while still sitting in the
// writer's reorder buffer, unwritten. Those indices must stay in
// awaitingSync — not be marked completed — until a subsequent commit
// observes a maxDurableIndex that has caught up to them.
func (rh *resultHandler) commitDurable() {
	if len(rh.awaitingSync) == 0 {
		return
	}

	maxDurableIndex, err := rh.deps.Writer.Sync()
	if err != nil {
		rh.sched.ioErr.Store(err)
		return
	}

	for idx, n := range rh.awaitingSync {
		if idx > maxDurableIndex {
			continue
		}
		rh.deps.Checkpoint.MarkCompleted(idx, n)
		delete(rh.awaitingSync, idx)
	}
	rh.groupsSinceCommit = 0

	if err := rh.deps.Checkpoint.Save(); err != nil {
		rh.sched.ioErr.Store(err)
	}
}
