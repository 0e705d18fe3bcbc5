package strand

import (
	"context"
	"fmt"
	"sync"
)

// Completion is the outcome of one scheduled tool call: the
// function-response part to feed back to the model.
type Completion struct {
	Response Part
}

// Scheduler executes a batch of tool calls through the per-round resolver.
// Implementations choose their own concurrency, but must return exactly one
// completion per call, in request order, and propagate cancellation. A
// non-nil error aborts the turn.
type Scheduler interface {
	Run(ctx context.Context, calls []FunctionCall, resolve ResolveFunc) ([]Completion, error)
}

// maxParallelTools caps the number of concurrent tool goroutines in the
// default scheduler to avoid overwhelming external services.
const maxParallelTools = 10

// poolScheduler is the default Scheduler: a fixed worker pool that preserves
// request order in its results. A single call runs inline with no goroutine.
type poolScheduler struct{}

// NewPoolScheduler returns the default order-preserving scheduler.
func NewPoolScheduler() Scheduler { return poolScheduler{} }

// indexedOutcome pairs a result with its position in the original call
// slice, allowing channel-based collection in order.
type indexedOutcome struct {
	idx  int
	part Part
	err  error
}

func (poolScheduler) Run(ctx context.Context, calls []FunctionCall, resolve ResolveFunc) ([]Completion, error) {
	if len(calls) == 0 {
		return nil, nil
	}

	run := func(ctx context.Context, call FunctionCall) (Part, error) {
		bound, ok := resolve(call.Name)
		if !ok {
			return ResponsePart(FunctionResponse{
				ID:      call.ID,
				Name:    call.Name,
				Content: "error: unknown tool: " + call.Name,
				IsError: true,
			}), nil
		}
		return safeRun(ctx, bound, call)
	}

	// Fast path: single call, no goroutine needed.
	if len(calls) == 1 {
		part, err := run(ctx, calls[0])
		if err != nil {
			return nil, err
		}
		return []Completion{{Response: part}}, nil
	}

	outcomeCh := make(chan indexedOutcome, len(calls))

	type workItem struct {
		idx  int
		call FunctionCall
	}
	workCh := make(chan workItem, len(calls))
	for i, call := range calls {
		workCh <- workItem{idx: i, call: call}
	}
	close(workCh)

	numWorkers := min(len(calls), maxParallelTools)
	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for range numWorkers {
		go func() {
			defer wg.Done()
			for w := range workCh {
				if ctx.Err() != nil {
					outcomeCh <- indexedOutcome{idx: w.idx, err: ctx.Err()}
					continue
				}
				part, err := run(ctx, w.call)
				outcomeCh <- indexedOutcome{idx: w.idx, part: part, err: err}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(outcomeCh)
	}()

	// Collect in request order, bailing out if ctx is cancelled while calls
	// are still in flight.
	results := make([]Completion, len(calls))
	var firstErr error
	received := 0
collect:
	for received < len(calls) {
		select {
		case out, ok := <-outcomeCh:
			if !ok {
				break collect
			}
			received++
			if out.err != nil && firstErr == nil {
				firstErr = out.err
				continue
			}
			results[out.idx] = Completion{Response: out.part}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}

// safeRun wraps a bound tool call with panic recovery so a panicking tool
// becomes an error result instead of crashing the process.
func safeRun(ctx context.Context, bound BoundTool, call FunctionCall) (part Part, err error) {
	defer func() {
		if p := recover(); p != nil {
			part = ResponsePart(FunctionResponse{
				ID:      call.ID,
				Name:    call.Name,
				Content: fmt.Sprintf("error: tool %q panic: %v", call.Name, p),
				IsError: true,
			})
			err = nil
		}
	}()
	return bound(ctx, call)
}
