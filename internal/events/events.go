// Package events fans newly created posts out to interested parties: the
// realtime hub in-process and, when configured, a message broker.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bryan-buckman/buildlog/internal/model"
)

const publishTimeout = 5 * time.Second

// Notifier receives post events. Notify must not block.
type Notifier interface {
	Notify(ctx context.Context, ev model.PostEvent)
}

// Publisher delivers events to an external system.
type Publisher interface {
	Publish(ctx context.Context, ev model.PostEvent) error
	Close() error
}

// Fanout forwards every event to each of its notifiers.
type Fanout []Notifier

// Notify implements Notifier.
func (f Fanout) Notify(ctx context.Context, ev model.PostEvent) {
	for _, n := range f {
		n.Notify(ctx, ev)
	}
}

// Dispatcher queues events and publishes them from a background
// goroutine so request handlers never wait on the broker.
type Dispatcher struct {
	pub      Publisher
	queue    chan model.PostEvent
	logger   *slog.Logger
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewDispatcher creates a Dispatcher with room for size queued events.
func NewDispatcher(pub Publisher, size int, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		pub:      pub,
		queue:    make(chan model.PostEvent, size),
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Notify enqueues ev, dropping it when the queue is full.
func (d *Dispatcher) Notify(_ context.Context, ev model.PostEvent) {
	select {
	case d.queue <- ev:
	default:
		d.logger.Warn("event queue full, dropping post event", "slug", ev.Slug)
	}
}

// Start begins the publish loop.
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case <-d.stopChan:
				d.drain()
				return
			case ev := <-d.queue:
				d.publish(ev)
			}
		}
	}()
}

func (d *Dispatcher) drain() {
	for {
		select {
		case ev := <-d.queue:
			d.publish(ev)
		default:
			return
		}
	}
}

func (d *Dispatcher) publish(ev model.PostEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := d.pub.Publish(ctx, ev); err != nil {
		d.logger.Error("publish post event", "slug", ev.Slug, "error", err)
	}
}

// Stop publishes whatever is queued, then stops the loop.
func (d *Dispatcher) Stop() {
	close(d.stopChan)
	d.wg.Wait()
}
