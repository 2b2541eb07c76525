package run

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/beamlinehq/hitwriter/internal/logging"
	"github.com/beamlinehq/hitwriter/internal/metrics"
)

// runParallel implements the dispatcher, workers, sequencer flow. Workers
// build event records concurrently; the sequencer appends them strictly in
// delivery order so the run file is identical to a sequential run.
func (r *Runner) runParallel(ctx context.Context, log *slog.Logger) error {
	workers := r.cfg.Perf.Workers
	queueSize := r.cfg.Perf.QueueSize

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workQueue := make(chan EventTask, queueSize)
	resultChan := make(chan EventResult, queueSize)

	bundleCh, errCh := r.src.Stream(ctx)

	// Dispatcher: number bundles in delivery order and hand them out.
	dispatchErr := make(chan error, 1)
	go func() {
		defer close(workQueue)
		var index uint64
		budget := r.cfg.Run.MaxEvents
		for bundle := range bundleCh {
			if budget > 0 && index >= budget {
				break
			}
			task := EventTask{Index: index, Bundle: bundle}
			select {
			case workQueue <- task:
				index++
			case <-ctx.Done():
				dispatchErr <- ctx.Err()
				return
			}
			if m := metrics.Get(); m != nil {
				m.WorkerQueueDepth.Set(float64(len(workQueue)))
			}
		}
		dispatchErr <- nil
	}()

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			wlog := logging.WorkerLogger(workerID)
			for task := range workQueue {
				start := time.Now()
				rec, err := r.builder.Build(task.Bundle)
				result := EventResult{
					Task:      task,
					Record:    rec,
					BuildTime: time.Since(start),
					Err:       err,
				}
				if err != nil {
					wlog.Error("event build failed",
						"event_number", task.Bundle.EventNumber, "error", err)
				}
				select {
				case resultChan <- result:
				case <-ctx.Done():
					return
				}
			}
		}(i)
	}

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	if err := r.sequencerLoop(ctx, resultChan); err != nil {
		return err
	}

	// Unblock the source if the event budget cut the stream short.
	cancel()

	if err := <-dispatchErr; err != nil && !r.done() {
		return err
	}
	if err := <-errCh; err != nil && !r.done() {
		if m := metrics.Get(); m != nil {
			m.IncSourceErrors(r.cfg.Run.DetectorName, r.cfg.Source.Mode)
		}
		return fmt.Errorf("event stream: %w", err)
	}
	return nil
}

// sequencerLoop commits built records in task order. Out-of-order results
// are buffered until their predecessors have been appended.
func (r *Runner) sequencerLoop(ctx context.Context, results <-chan EventResult) error {
	pending := make(map[uint64]EventResult)
	var next uint64

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case result, ok := <-results:
			if !ok {
				if len(pending) > 0 {
					return fmt.Errorf("results closed with %d events pending at index %d", len(pending), next)
				}
				return nil
			}
			if result.Err != nil {
				r.countFailure(result.Err, "build")
				return fmt.Errorf("build event %d: %w", result.Task.Bundle.EventNumber, result.Err)
			}

			pending[result.Task.Index] = result
			if m := metrics.Get(); m != nil {
				m.SequencerPending.Set(float64(len(pending)))
			}

			for {
				res, ok := pending[next]
				if !ok {
					break
				}
				if err := r.appendRecord(res.Record, res.BuildTime); err != nil {
					return err
				}
				delete(pending, next)
				next++
			}
		}
	}
}
