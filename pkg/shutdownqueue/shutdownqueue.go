// Package shutdownqueue is a process-wide LIFO list of named cleanup tasks.
//
// Components register their teardown with Add as they start, and main drains
// the queue once with Shutdown under a deadline. Tasks run once, newest first,
// and a panicking task does not stop the ones registered before it.
package shutdownqueue

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"
)

// Task should honor ctx and give up when it is done.
type Task func(ctx context.Context) error

type entry struct {
	name string
	run  Task
}

type queue struct {
	mu      sync.Mutex
	entries []entry
	closed  bool
}

var q = &queue{entries: make([]entry, 0, 8)}

// Add registers t under name. It is a no-op for a nil task or once Shutdown
// has started.
func Add(name string, t Task) {
	if t == nil {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.entries = append(q.entries, entry{name: name, run: t})
}

// Pending lists registered task names in the order Shutdown will run them.
func Pending() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	names := make([]string, 0, len(q.entries))
	for i := len(q.entries) - 1; i >= 0; i-- {
		names = append(names, q.entries[i].name)
	}

	return names
}

// Shutdown runs every task newest first and returns their combined errors.
// If ctx ends mid-drain the remaining tasks are skipped. Later calls are
// no-ops.
func Shutdown(ctx context.Context) error {
	q.mu.Lock()
	entries := q.entries
	q.entries = nil
	q.closed = true
	q.mu.Unlock()

	var errs error

	for i := len(entries) - 1; i >= 0; i-- {
		if ctx.Err() != nil {
			return multierr.Append(errs, fmt.Errorf("shutdown canceled before %q: %w", entries[i].name, ctx.Err()))
		}

		errs = multierr.Append(errs, runTask(ctx, entries[i]))
	}

	return errs
}

func runTask(ctx context.Context, e entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("shutdown %s: panic: %v", e.name, r)
		}
	}()

	err = e.run(ctx)
	if err != nil {
		return fmt.Errorf("shutdown %s: %w", e.name, err)
	}

	return nil
}
