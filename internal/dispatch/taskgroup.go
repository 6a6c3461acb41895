package dispatch

import (
	"context"
	"sync"
)

// taskGroup runs functions with at most limit in flight.
type taskGroup struct {
	sem chan struct{}
	wg  sync.WaitGroup
}

func newTaskGroup(limit int) *taskGroup {
	if limit <= 0 {
		limit = 1
	}
	return &taskGroup{sem: make(chan struct{}, limit)}
}

// Go blocks until a slot is free, then runs fn in a goroutine. It returns
// the context error if ctx ends first; fn is not run in that case.
func (g *taskGroup) Go(ctx context.Context, fn func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case g.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	g.wg.Add(1)
	go func() {
		defer func() {
			<-g.sem
			g.wg.Done()
		}()
		fn()
	}()
	return nil
}

func (g *taskGroup) Wait() { g.wg.Wait() }
