package realtime

import (
	"context"
	"sync"
)

// Callbacks receive one call per matching change. Nil callbacks are skipped.
// OnResync runs when the subscription fell behind and changes were lost; the listener
// should reload its state.
type Callbacks struct {
	OnInsert func(Change)
	OnUpdate func(Change)
	OnDelete func(Change)
	OnResync func(Change)
}

func (cb Callbacks) dispatch(change Change) {
	var fn func(Change)
	switch change.Op {
	case OpInsert:
		fn = cb.OnInsert
	case OpUpdate:
		fn = cb.OnUpdate
	case OpDelete:
		fn = cb.OnDelete
	case OpResync:
		fn = cb.OnResync
	}
	if fn != nil {
		fn(change)
	}
}

// Listen subscribes with filter and invokes callbacks sequentially from one goroutine
// until ctx ends or the returned unsubscribe is called. Unsubscribe waits for the
// delivery goroutine to exit, so no callback runs after it returns.
func Listen(ctx context.Context, sub Subscriber, filter Filter, callbacks Callbacks) func() {
	return ListenBuffered(ctx, sub, filter, 0, callbacks)
}

// ListenBuffered is Listen with an explicit subscription buffer; buffer <= 0 uses
// DefaultBufferSize.
func ListenBuffered(ctx context.Context, sub Subscriber, filter Filter, buffer int, callbacks Callbacks) func() {
	_, stream, cancel := sub.Subscribe(filter, buffer)
	ctx, stop := context.WithCancel(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case change, ok := <-stream:
				if !ok {
					return
				}
				callbacks.dispatch(change)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			stop()
			wg.Wait()
		})
	}
}
