package scheduler

import (
	"context"
	"fmt"

	"github.com/kilnforge/distill/internal/inputreader"
	"github.com/kilnforge/distill/internal/record"
)

// malformedAbortThreshold is §7's INPUT_ERROR escalation rule: if the
// first 100 records are all malformed, the task fails outright rather
// than limping along on an almost-certainly-wrong file.
const malformedAbortThreshold = 100

// produce reads the input file in order, skips indices the checkpoint
// already has completed (resume), expands each surviving record into its
// fan-out jobs, and sends them to dispatch. It respects ctx cancellation
// and s.paused, and applies the INPUT_ERROR policy of §7.
func (s *Scheduler) produce(ctx context.Context, dispatch chan<- record.Job) error {
	seen := 0
	malformedStreak := 0
	genCount := s.cfg.Params.GenerationCount
	if genCount <= 0 {
		genCount = 1
	}

	err := inputreader.ReadAll(s.cfg.InputPath, func(rec record.InputRecord, rerr error) error {
		seen++
		s.inputTotal.Store(int64(seen))

		if rerr != nil {
			malformedStreak++
			s.failures.Add(1)
			if seen <= malformedAbortThreshold && malformedStreak >= malformedAbortThreshold {
				return fmt.Errorf("scheduler: first %d input records are all malformed: %w", malformedAbortThreshold, rerr)
			}
			return nil
		}
		malformedStreak = 0

		if s.deps.Checkpoint.IsCompleted(rec.Index) {
			s.processed.Add(1)
			return nil
		}

		for seq := 0; seq < genCount; seq++ {
			job := record.Job{
				InputIndex:  rec.Index,
				Record:      rec,
				Strategy:    s.cfg.Strategy,
				Params:      s.cfg.Params,
				FanoutSeq:   seq,
				FanoutTotal: genCount,
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			if s.paused.Load() {
				// Stop enqueuing while paused; already-dispatched jobs
				// keep draining through the worker pool untouched.
				return errPausedStop
			}

			select {
			case dispatch <- job:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	if err == errPausedStop || err == context.Canceled || err == context.DeadlineExceeded {
		return nil
	}
	return err
}

// errPausedStop is a sentinel used internally to unwind out of the
// input-reading callback once a pause has been requested; it is never
// surfaced to the caller as a real error.
var errPausedStop = fmt.Errorf("scheduler: paused")
