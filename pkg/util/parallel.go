package util

import (
	"context"
	"errors"
	"sync"
)

// ForEach runs fn over every input with at most workerLimit goroutines. A
// failing item does not stop the others; all failures are joined.
func ForEach[T any](ctx context.Context, inputs []T, workerLimit int, fn func(context.Context, T) error) error {
	var (
		mu   sync.Mutex
		errs []error
	)
	run(ctx, inputs, workerLimit, func(ctx context.Context, item T) {
		if err := fn(ctx, item); err != nil {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}
	})
	return errors.Join(errs...)
}

func run[T any](ctx context.Context, inputs []T, workerLimit int, fn func(context.Context, T)) {
	if workerLimit <= 0 {
		workerLimit = 1
	}
	tasks := make(chan T)

	wg := sync.WaitGroup{}
	for i := 0; i < min(workerLimit, len(inputs)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range tasks {
				fn(ctx, item)
			}
		}()
	}

	// stop feeding once the context ends
	func() {
		defer close(tasks)
		for _, item := range inputs {
			select {
			case <-ctx.Done():
				return
			case tasks <- item:
			}
		}
	}()
	wg.Wait()
}
