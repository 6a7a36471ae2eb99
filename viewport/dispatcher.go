package viewport

import (
	"context"
	"sync"

	"github.com/enriquebris/goconcurrentqueue"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var ErrDispatcherClosed = errors.New("dispatcher closed")

type job struct {
	notification Notification
	done         chan error
}

type worker struct {
	queue  *goconcurrentqueue.FIFO
	cancel context.CancelFunc
}

// Dispatcher serialises notifications per view. Every view owns a FIFO and a
// goroutine; layout changes go through their own queue and fan out to the
// view queues.
type Dispatcher struct {
	shim   *Shim
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	layout  *worker
	workers map[string]*worker
}

func NewDispatcher(shim *Shim, logger *zap.Logger) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	dispatcher := &Dispatcher{
		shim:    shim,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		workers: make(map[string]*worker),
	}
	dispatcher.layout = dispatcher.start(dispatcher.handleLayout)
	return dispatcher
}

func (dispatcher *Dispatcher) start(handle func(Notification) error) *worker {
	ctx, cancel := context.WithCancel(dispatcher.ctx)
	w := &worker{queue: goconcurrentqueue.NewFIFO(), cancel: cancel}
	dispatcher.wg.Add(1)
	go func() {
		defer dispatcher.wg.Done()
		for {
			item, err := w.queue.DequeueOrWaitForNextElementContext(ctx)
			if err != nil {
				return
			}
			j := item.(job)
			j.done <- handle(j.notification)
			close(j.done)
		}
	}()
	return w
}

// Submit queues n and returns a channel that receives the result once it
// has been handled.
func (dispatcher *Dispatcher) Submit(n Notification) <-chan error {
	j := job{notification: n, done: make(chan error, 1)}

	dispatcher.mu.Lock()
	defer dispatcher.mu.Unlock()

	if dispatcher.closed {
		j.done <- ErrDispatcherClosed
		close(j.done)
		return j.done
	}

	var w *worker
	if n.Kind == LayoutChanged {
		w = dispatcher.layout
	} else {
		w = dispatcher.workers[n.Viewport]
		if w == nil {
			w = dispatcher.start(func(n Notification) error {
				return dispatcher.shim.Handle(dispatcher.ctx, n)
			})
			dispatcher.workers[n.Viewport] = w
		}
	}

	if err := w.queue.Enqueue(j); err != nil {
		j.done <- errors.Wrap(err, "enqueue notification")
		close(j.done)
	}
	return j.done
}

// Refresh recomposes every registered view through its queue and reports
// the first error.
func (dispatcher *Dispatcher) Refresh() <-chan error {
	return dispatcher.fanOut(dispatcher.shim.Registry().Names())
}

func (dispatcher *Dispatcher) fanOut(names []string) <-chan error {
	pending := make([]<-chan error, 0, len(names))
	for _, name := range names {
		pending = append(pending, dispatcher.Submit(Notification{Kind: ContentChanged, Viewport: name}))
	}

	result := make(chan error, 1)
	go func() {
		var first error
		for _, done := range pending {
			if err := <-done; err != nil && first == nil {
				first = err
			}
		}
		result <- first
		close(result)
	}()
	return result
}

func (dispatcher *Dispatcher) handleLayout(Notification) error {
	names := dispatcher.shim.Sync()

	dispatcher.retire()

	select {
	case err := <-dispatcher.fanOut(names):
		return err
	case <-dispatcher.ctx.Done():
		return ErrDispatcherClosed
	}
}

// retire stops the idle workers of views that are no longer registered.
func (dispatcher *Dispatcher) retire() {
	dispatcher.mu.Lock()
	defer dispatcher.mu.Unlock()

	for name, w := range dispatcher.workers {
		if _, found := dispatcher.shim.Registry().Handle(name); found || w.queue.GetLen() > 0 {
			continue
		}
		w.cancel()
		delete(dispatcher.workers, name)
		dispatcher.logger.Debug("viewport queue stopped", zap.String("view", name))
	}
}

// Close stops every worker. Queued notifications fail with ErrDispatcherClosed.
func (dispatcher *Dispatcher) Close() {
	dispatcher.mu.Lock()
	if dispatcher.closed {
		dispatcher.mu.Unlock()
		return
	}
	dispatcher.closed = true
	dispatcher.mu.Unlock()

	dispatcher.cancel()
	dispatcher.wg.Wait()

	drain := func(w *worker) {
		for w.queue.GetLen() > 0 {
			item, err := w.queue.Dequeue()
			if err != nil {
				return
			}
			j := item.(job)
			j.done <- ErrDispatcherClosed
			close(j.done)
		}
	}
	drain(dispatcher.layout)
	for _, w := range dispatcher.workers {
		drain(w)
	}
}
