package dataset

import (
	"context"
	"fmt"
	"image"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jamesainslie/go-fcneval/sample"
)

// DefaultWorkers is the number of samples decoded concurrently.
const DefaultWorkers = 4

// Dataset is a random-access collection of labeled samples.
type Dataset interface {
	Len() int
	Get(i int) (sample.Sample, error)
	ClassNames() []string
	Untransform(s sample.Sample) (image.Image, sample.LabelMap)
}

// Loader walks a Dataset in index order, decoding ahead with a pool of
// workers. Delivery order never depends on the worker count.
type Loader struct {
	Dataset
	workers int
}

// NewLoader wraps ds. A non-positive workers count loads sequentially.
func NewLoader(ds Dataset, workers int) *Loader {
	return &Loader{Dataset: ds, workers: workers}
}

// Each calls fn with every sample in index order, from a single goroutine.
// It stops at the first error from loading or from fn.
func (l *Loader) Each(ctx context.Context, fn func(sample.Sample) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if l.workers <= 0 {
		return l.sequential(ctx, fn)
	}

	n := l.Len()
	g, ctx := errgroup.WithContext(ctx)
	indices := make(chan int)
	results := make(chan sample.Sample)
	// Tokens bound how far workers may run ahead of fn.
	window := make(chan struct{}, 2*l.workers)

	g.Go(func() error {
		defer close(indices)
		for i := 0; i < n; i++ {
			select {
			case window <- struct{}{}:
			case <-ctx.Done():
				return ctx.Err()
			}
			select {
			case indices <- i:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	var workers sync.WaitGroup
	for w := 0; w < l.workers; w++ {
		workers.Add(1)
		g.Go(func() error {
			defer workers.Done()
			for i := range indices {
				s, err := l.Get(i)
				if err != nil {
					return fmt.Errorf("loading sample %d: %w", i, err)
				}
				s.Index = i
				select {
				case results <- s:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		})
	}
	go func() {
		workers.Wait()
		close(results)
	}()

	g.Go(func() error {
		pending := make(map[int]sample.Sample)
		next := 0
		for s := range results {
			pending[s.Index] = s
			for {
				cur, ok := pending[next]
				if !ok {
					break
				}
				delete(pending, next)
				if err := fn(cur); err != nil {
					return err
				}
				<-window
				next++
			}
		}
		return nil
	})

	return g.Wait()
}

func (l *Loader) sequential(ctx context.Context, fn func(sample.Sample) error) error {
	for i := 0; i < l.Len(); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		s, err := l.Get(i)
		if err != nil {
			return fmt.Errorf("loading sample %d: %w", i, err)
		}
		s.Index = i
		if err := fn(s); err != nil {
			return err
		}
	}
	return nil
}
