// Package scheduler implements the Worker Pool / Scheduler of §4.7: the
// producer/dispatch-channel/worker-pool/results-channel/checkpoint
// topology that drives one task from start (or resume) to completion,
// pause, or failure.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/kilnforge/distill/internal/checkpoint"
	"github.com/kilnforge/distill/internal/modelclient"
	"github.com/kilnforge/distill/internal/outputwriter"
	"github.com/kilnforge/distill/internal/qualityreport"
	"github.com/kilnforge/distill/internal/ratelimit"
	"github.com/kilnforge/distill/internal/record"
	"github.com/kilnforge/distill/internal/retry"
)

// Config mirrors the tunables of §6 that shape scheduling and admission.
type Config struct {
	InputPath          string
	Workers            int
	InflightMultiplier int
	CheckpointInterval int
	Strategy           string
	ModelID            string
	Params             record.Params
	Topic              string // optional seed/topic threaded into prompts sampled from input
}

func (c Config) dispatchCapacity() int {
	if c.Workers <= 0 {
		c.Workers = 8
	}
	if c.InflightMultiplier <= 0 {
		c.InflightMultiplier = 4
	}
	return c.Workers * c.InflightMultiplier
}

// Deps are the already-constructed collaborators a Scheduler drives. The
// Task Controller owns their lifecycle; the Scheduler only calls them.
type Deps struct {
	ModelClient modelclient.Client
	RateLimiter *ratelimit.Limiter
	RetryPolicy retry.Policy
	Checkpoint  *checkpoint.Store
	Writer      outputwriter.Writer
	Counters    *qualityreport.Counters

	// Progress, if non-nil, is invoked after every job outcome with a
	// cheap snapshot the Task Controller can persist to the State Store.
	Progress func(Progress)
}

// Progress is a lightweight snapshot handed to the Task Controller.
type Progress struct {
	InputTotal     int
	InputProcessed int
	OutputsWritten int
	Failures       int
}

// Outcome summarizes how a Run ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomePaused    Outcome = "paused"
	OutcomeFailed    Outcome = "failed"
)

// Result is returned by Run.
type Result struct {
	Outcome  Outcome
	Err      error // set when Outcome == OutcomeFailed due to an IO_ERROR
	Progress Progress
}

// Scheduler owns one task's run. Construct fresh per task/resume.
type Scheduler struct {
	cfg  Config
	deps Deps

	paused  atomic.Bool
	inputTotal atomic.Int64

	processed atomic.Int64
	written   atomic.Int64
	failures  atomic.Int64

	ioErr atomic.Value // error
}

// New constructs a Scheduler ready to Run.
func New(cfg Config, deps Deps) *Scheduler {
	return &Scheduler{cfg: cfg, deps: deps}
}

// Pause requests a graceful pause: the producer stops enqueuing new
// records, in-flight jobs drain normally, and Run returns with
// OutcomePaused once the writer and checkpoint have been flushed (§4.7
// pause semantics, §8 testable property 6).
func (s *Scheduler) Pause() { s.paused.Store(true) }

// Run drives the task to completion, pause, or failure. ctx cancellation
// is the "stop" signal of §5: it differs from Pause in that in-flight
// Model Client calls are themselves interrupted, and the final state is
// OutcomeFailed/cancelled rather than resumable-paused — callers that
// want a resumable stop should call Pause and let Run return on its own.
func (s *Scheduler) Run(ctx context.Context) Result {
	dispatch := make(chan record.Job, s.cfg.dispatchCapacity())
	results := make(chan jobOutcome, s.cfg.dispatchCapacity())

	var producerErr atomic.Value
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(dispatch)
		if err := s.produce(ctx, dispatch); err != nil {
			producerErr.Store(err)
		}
	}()

	workers := s.cfg.Workers
	if workers <= 0 {
		workers = 8
	}
	var workerWG sync.WaitGroup
	for i := 0; i < workers; i++ {
		workerWG.Add(1)
		go func() {
			defer workerWG.Done()
			s.runWorker(ctx, dispatch, results)
		}()
	}

	go func() {
		workerWG.Wait()
		close(results)
	}()

	rh := newResultHandler(s.cfg, s.deps, s)
	rh.drain(results)

	wg.Wait()

	if err, _ := producerErr.Load().(error); err != nil {
		s.ioErr.Store(err)
	}

	return s.finish(ctx, rh)
}

func (s *Scheduler) finish(ctx context.Context, rh *resultHandler) Result {
	if err, ok := s.ioErr.Load().(error); ok && err != nil {
		_ = s.deps.Checkpoint.Save()
		return Result{Outcome: OutcomeFailed, Err: err, Progress: s.progress()}
	}

	if s.paused.Load() {
		if err := s.deps.Writer.Flush(); err != nil {
			return Result{Outcome: OutcomeFailed, Err: err, Progress: s.progress()}
		}
		rh.commitDurable()
		if err := s.deps.Checkpoint.Save(); err != nil {
			return Result{Outcome: OutcomeFailed, Err: err, Progress: s.progress()}
		}
		return Result{Outcome: OutcomePaused, Progress: s.progress()}
	}

	if ctx.Err() != nil {
		// Cancelled rather than paused: still save whatever is durable so
		// a future resume does not redo finished work, but report it as
		// a failure-equivalent stop rather than "completed".
		rh.commitDurable()
		_ = s.deps.Checkpoint.Save()
		return Result{Outcome: OutcomeFailed, Err: ctx.Err(), Progress: s.progress()}
	}

	rh.commitDurable()
	if err := s.deps.Checkpoint.Save(); err != nil {
		return Result{Outcome: OutcomeFailed, Err: err, Progress: s.progress()}
	}
	if err := s.deps.Writer.Close(); err != nil {
		return Result{Outcome: OutcomeFailed, Err: err, Progress: s.progress()}
	}
	return Result{Outcome: OutcomeCompleted, Progress: s.progress()}
}

func (s *Scheduler) progress() Progress {
	return Progress{
		InputTotal:     int(s.inputTotal.Load()),
		InputProcessed: int(s.processed.Load()),
		OutputsWritten: int(s.written.Load()),
		Failures:       int(s.failures.Load()),
	}
}

func (s *Scheduler) reportProgress() {
	if s.deps.Progress != nil {
		s.deps.Progress(s.progress())
	}
}

// jobOutcome is what a worker sends on the results channel: either a
// successful OutputRecord or a classified failure, always tagged with
// enough identity for the result handler to group by input index.
type jobOutcome struct {
	job       record.Job
	output    *record.OutputRecord
	err       error
	cancelled bool
}
