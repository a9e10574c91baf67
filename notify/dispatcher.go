package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	defaultQueueSize   = 256
	defaultWorkers     = 2
	defaultSendTimeout = 10 * time.Second
)

// Dispatcher delivers events in the background. Publish only enqueues; a full
// queue drops the event with a warning rather than delaying the caller.
type Dispatcher struct {
	sink        Sink
	geo         GeoResolver
	renderer    *Renderer
	logger      zerolog.Logger
	queueSize   int
	workers     int
	sendTimeout time.Duration

	queue  chan Event
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

var _ Publisher = (*Dispatcher)(nil)

type DispatcherOption func(*Dispatcher)

func WithLogger(logger zerolog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func WithGeoResolver(geo GeoResolver) DispatcherOption {
	return func(d *Dispatcher) {
		d.geo = geo
	}
}

func WithRenderer(r *Renderer) DispatcherOption {
	return func(d *Dispatcher) {
		d.renderer = r
	}
}

func WithQueueSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queueSize = n
		}
	}
}

func WithWorkers(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

func WithSendTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		d.sendTimeout = timeout
	}
}

// NewDispatcher starts the worker goroutines. Call Close to drain them.
func NewDispatcher(sink Sink, options ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		sink:        sink,
		geo:         LocalGeoResolver{},
		renderer:    NewRenderer(""),
		logger:      log.Logger,
		queueSize:   defaultQueueSize,
		workers:     defaultWorkers,
		sendTimeout: defaultSendTimeout,
	}
	for _, opt := range options {
		opt(d)
	}

	d.queue = make(chan Event, d.queueSize)
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.run()
	}
	return d
}

func (d *Dispatcher) Publish(events ...Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, ev := range events {
		if d.closed {
			d.logger.Warn().Str("event", string(ev.Type)).Str("account_id", ev.AccountID).Msg("notifier closed, dropping security event")
			continue
		}
		select {
		case d.queue <- ev:
		default:
			d.logger.Warn().Str("event", string(ev.Type)).Str("account_id", ev.AccountID).Msg("notifier queue full, dropping security event")
		}
	}
}

// Close stops accepting events and waits for queued ones to be delivered or
// for ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for ev := range d.queue {
		d.deliver(ev)
	}
}

func (d *Dispatcher) deliver(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.sendTimeout)
	defer cancel()

	if ev.Location == "" && d.geo != nil {
		ev.Location = d.geo.Resolve(ctx, ev.IP)
	}

	msg, err := d.renderer.Render(ev)
	if err != nil {
		d.logger.Err(err).Str("event", string(ev.Type)).Msg("rendering security alert")
		return
	}
	if err := d.sink.Send(ctx, msg); err != nil {
		d.logger.Err(err).Str("event", string(ev.Type)).Str("account_id", ev.AccountID).Msg("sending security alert")
		return
	}
	d.logger.Debug().Str("event", string(ev.Type)).Str("account_id", ev.AccountID).Msg("security alert sent")
}
