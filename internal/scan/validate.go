package scan

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Validate self-tests every provider that implements Validator: its claimed
// username must be found and its unclaimed one must not. Each mismatch is
// reported through onFailure; the number of failures is returned.
func (e *Engine) Validate(ctx context.Context, onFailure func(ValidationFailure)) (int, error) {
	if onFailure == nil {
		return 0, fmt.Errorf("onFailure callback is nil")
	}

	cat := e.Catalog()
	names := sortedKeys(cat.Providers)

	workers := min(e.cfg.MaxConcurrency, len(names))
	if workers == 0 {
		return 0, nil
	}

	gate := semaphore.NewWeighted(int64(e.cfg.MaxConcurrency))
	jobs := make(chan string)
	failures := make(chan ValidationFailure, workers)

	var wg sync.WaitGroup
	wg.Add(workers)
	for range workers {
		go func() {
			defer wg.Done()
			for name := range jobs {
				p := cat.Providers[name]
				v, ok := p.(Validator)
				if !ok {
					continue
				}
				claimed, unclaimed := v.ValidationPair()
				if claimed == "" || unclaimed == "" {
					// Declared as a validator but nothing to validate with.
					err := fmt.Errorf("missing claimed/unclaimed username")
					failures <- ValidationFailure{
						Provider:  name,
						Claimed:   claimed,
						Unclaimed: unclaimed,
						Used:      ErrorResult(name, claimed, "", err),
						Unused:    ErrorResult(name, unclaimed, "", err),
					}
					continue
				}

				used := e.runProvider(ctx, gate, claimed, name, p)
				unused := e.runProvider(ctx, gate, unclaimed, name, p)
				if used.Status == StatusFound && unused.Status == StatusNotFound {
					continue
				}

				failures <- ValidationFailure{
					Provider:  name,
					Claimed:   claimed,
					Unclaimed: unclaimed,
					Used:      used,
					Unused:    unused,
				}
			}
		}()
	}

	go func() {
		defer close(failures)
		wg.Wait()
	}()

	go func() {
		defer close(jobs)
		for _, name := range names {
			select {
			case <-ctx.Done():
				return
			case jobs <- name:
			}
		}
	}()

	count := 0
	for f := range failures {
		count++
		onFailure(f)
	}

	return count, ctx.Err()
}
