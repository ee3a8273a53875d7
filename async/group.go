package async

import (
	"context"
	"sync"
)

// Group is a cancellable wait group whose goroutines recover panics through
// the configured panic handler before unwinding the process.
type Group struct {
	ctx    context.Context
	cancel context.CancelFunc

	wg           sync.WaitGroup
	panicHandler PanicHandler
}

func NewGroup(ctx context.Context, panicHandler PanicHandler) *Group {
	ctx, cancel := context.WithCancel(ctx)

	return &Group{
		ctx:          ctx,
		cancel:       cancel,
		panicHandler: panicHandler,
	}
}

func (g *Group) Go(f func(ctx context.Context)) {
	g.wg.Add(1)

	go func() {
		defer g.wg.Done()

		defer HandlePanic(g.panicHandler)

		f(g.ctx)
	}()
}

// Cancel cancels the context passed to the group's goroutines.
func (g *Group) Cancel() {
	g.cancel()
}

// Wait blocks until all goroutines started through Go have returned.
func (g *Group) Wait() {
	g.wg.Wait()
}

// CancelAndWait cancels the group and waits for its goroutines to finish.
func (g *Group) CancelAndWait() {
	g.cancel()
	g.wg.Wait()
}
