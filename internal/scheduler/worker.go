package scheduler

import (
	"context"
	"time"

	"github.com/kilnforge/distill/internal/modelclient"
	"github.com/kilnforge/distill/internal/promptbuilder"
	"github.com/kilnforge/distill/internal/record"
	"github.com/kilnforge/distill/internal/retry"
)

// runWorker pulls jobs from dispatch until it is closed or ctx is done,
// processing each independently (§4.7: "workers are otherwise
// independent; they neither share mutable state nor coordinate except
// through channels").
func (s *Scheduler) runWorker(ctx context.Context, dispatch <-chan record.Job, results chan<- jobOutcome) {
	for {
		select {
		case job, ok := <-dispatch:
			if !ok {
				return
			}
			outcome := s.processJob(ctx, job)
			select {
			case results <- outcome:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// processJob runs one job to completion: admission via the rate
// limiter, prompt construction, the retry loop around the Model Client,
// post-processing, and strategy-specific quality validation.
func (s *Scheduler) processJob(ctx context.Context, job record.Job) jobOutcome {
	if err := s.deps.RateLimiter.Acquire(ctx); err != nil {
		return jobOutcome{job: job, cancelled: true, err: err}
	}

	prompt, err := promptbuilder.Build(job.Strategy, job.Record, job.Params, s.cfg.Topic)
	if err != nil {
		return jobOutcome{job: job, err: err}
	}

	start := time.Now()
	var resp *modelclient.Response

	for attempt := 0; ; attempt++ {
		select {
		case <-ctx.Done():
			return jobOutcome{job: job, cancelled: true, err: ctx.Err()}
		default:
		}

		req := modelclient.Request{
			ModelID:      job.Params.Model,
			Prompt:       prompt,
			SystemPrompt: job.Params.SystemPrompt,
			Params: modelclient.Params{
				Temperature: job.Params.Temperature,
				TopP:        job.Params.TopP,
				TopK:        job.Params.TopK,
				MaxTokens:   job.Params.MaxTokens,
				TimeoutMs:   job.Params.TimeoutMs,
			},
		}

		callCtx := ctx
		var cancel context.CancelFunc
		if job.Params.TimeoutMs > 0 {
			callCtx, cancel = context.WithTimeout(ctx, time.Duration(job.Params.TimeoutMs)*time.Millisecond)
		}
		r, callErr := s.deps.ModelClient.Generate(callCtx, req)
		if cancel != nil {
			cancel()
		}

		if callErr == nil {
			resp = r
			break
		}

		if ctx.Err() != nil {
			return jobOutcome{job: job, cancelled: true, err: ctx.Err()}
		}

		me, _ := modelclient.Classify(callErr)
		if !s.deps.RetryPolicy.ShouldRetry(attempt, callErr) {
			return jobOutcome{job: job, err: callErr}
		}

		retryAfter := 0
		if me != nil {
			retryAfter = me.RetryAfter
		}
		delay := s.deps.RetryPolicy.Delay(attempt, retryAfter)
		if err := retry.Sleep(ctx, delay); err != nil {
			return jobOutcome{job: job, cancelled: true, err: err}
		}
	}

	elapsed := time.Since(start)
	content := promptbuilder.PostProcess(resp.Text)

	output, err := buildOutput(job, content, elapsed)
	if err != nil {
		return jobOutcome{job: job, err: err}
	}

	return jobOutcome{job: job, output: output}
}

// buildOutput applies strategy-specific post-processing and assembles the
// OutputRecord: label snapping for classify_label, multi-field record
// replacement for expand (§4.4: "replacement record derived from
// originals"), plain single-field passthrough otherwise. The q_to_a/
// custom strategies draw their question from the source record already,
// so no strategy here synthesizes one.
func buildOutput(job record.Job, content string, elapsed time.Duration) (*record.OutputRecord, error) {
	switch job.Strategy {
	case "classify_label":
		label, err := promptbuilder.SnapLabel(content, job.Params.LabelSet)
		if err != nil {
			return nil, err
		}
		return record.NewOutputRecord(job, label, "", elapsed), nil
	case "expand":
		fields, err := promptbuilder.ExpandFields(content, job.Params.SelectedFields)
		if err != nil {
			return nil, err
		}
		return record.NewExpandOutputRecord(job, fields, elapsed), nil
	default:
		return record.NewOutputRecord(job, content, "", elapsed), nil
	}
}
