package compiler

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ECCC-CCCS/geomet-climate/internal/catalog"
	"github.com/ECCC-CCCS/geomet-climate/internal/core/observability"
)

// LayerError ties a compile failure to its layer.
type LayerError struct {
	Layer string
	Err   error
}

func (e *LayerError) Error() string { return e.Layer + ": " + e.Err.Error() }
func (e *LayerError) Unwrap() error { return e.Err }

// BatchError lists every layer that failed in a CompileAll run.
type BatchError struct {
	Failures []*LayerError
}

func (e *BatchError) Error() string {
	msgs := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		msgs[i] = f.Error()
	}
	return "compile: " + strings.Join(msgs, "; ")
}

func (e *BatchError) Unwrap() []error {
	out := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		out[i] = f
	}
	return out
}

// Batch is the outcome of CompileAll. Configs are in name order and only
// contain layers that compiled.
type Batch struct {
	Service  Service
	Configs  []LayerConfig
	Warnings []Warning
}

// CompileAll compiles names (every catalog layer when empty) on up to
// workers goroutines. A failing layer is logged and skipped; the returned
// error is a *BatchError when any layer failed.
func (c *Compiler) CompileAll(ctx context.Context, cat *catalog.Catalog, names []string, svc Service, workers int) (Batch, error) {
	start := time.Now()
	defer func() { observability.ObserveCompile(string(svc), time.Since(start).Seconds()) }()

	if len(names) == 0 {
		names = cat.Names()
	}
	if workers <= 0 {
		workers = 1
	}

	type result struct {
		cfg   LayerConfig
		warns []Warning
		err   error
	}
	results := make([]result, len(names))

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i, name := range names {
		if err := ctx.Err(); err != nil {
			results[i].err = err
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, name string) {
			defer wg.Done()
			defer func() { <-sem }()
			l, err := cat.Lookup(name)
			if err != nil {
				results[i].err = err
				return
			}
			results[i].cfg, results[i].warns, results[i].err = c.Compile(name, l, svc)
		}(i, name)
	}
	wg.Wait()

	b := Batch{Service: svc}
	var failures []*LayerError
	for i, r := range results {
		if r.err != nil {
			failures = append(failures, &LayerError{Layer: names[i], Err: r.err})
			observability.IncCompiled(string(svc), "failed")
			c.log.ErrorContext(ctx, "layer compile failed", "layer", names[i], "service", string(svc), "err", r.err)
			continue
		}
		observability.IncCompiled(string(svc), "ok")
		b.Configs = append(b.Configs, r.cfg)
		b.Warnings = append(b.Warnings, r.warns...)
	}
	if len(failures) > 0 {
		return b, &BatchError{Failures: failures}
	}
	return b, nil
}
