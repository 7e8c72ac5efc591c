package embed

import (
	"context"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// PoolOptions configures EmbedAll.
type PoolOptions struct {
	// BatchSize is the number of texts per EmbedBatch call.
	BatchSize int

	// Workers is the number of batches in flight.
	Workers int

	// Progress, if set, is called after each batch with (done, total) texts.
	Progress func(done, total int)
}

// EmbedAll embeds texts in batches on a bounded worker pool. The result is
// in input order regardless of completion order. The first batch error
// cancels the remaining batches.
func EmbedAll(ctx context.Context, e Embedder, texts []string, opts PoolOptions) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}

	pool, err := ants.NewPool(opts.Workers)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding pool: %w", err)
	}
	defer pool.Release()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([][]float32, len(texts))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
		done     int
	)
	fail := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
	}

	for start := 0; start < len(texts); start += opts.BatchSize {
		end := min(start+opts.BatchSize, len(texts))
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}

			vecs, err := e.EmbedBatch(ctx, texts[start:end])
			if err != nil {
				fail(fmt.Errorf("batch %d-%d: %w", start, end, err))
				return
			}
			if len(vecs) != end-start {
				fail(fmt.Errorf("batch %d-%d: expected %d vectors, got %d", start, end, end-start, len(vecs)))
				return
			}
			copy(results[start:end], vecs)

			if opts.Progress != nil {
				mu.Lock()
				done += end - start
				n := done
				mu.Unlock()
				opts.Progress(n, len(texts))
			}
		})
		if submitErr != nil {
			wg.Done()
			fail(fmt.Errorf("failed to submit batch: %w", submitErr))
			break
		}
	}

	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
