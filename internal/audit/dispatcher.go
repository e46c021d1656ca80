package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull drops info and warning events when the buffer is full.
	// Critical events always wait for room.
	DropIfFull bool
}

// Severities lists every severity in reporting order.
var Severities = []Severity{SeverityInfo, SeverityWarning, SeverityCritical}

func severityIndex(s Severity) int {
	switch s {
	case SeverityWarning:
		return 1
	case SeverityCritical:
		return 2
	default:
		return 0
	}
}

// Dispatcher forwards audit events to a sink on its own goroutine and
// counts lost events per severity.
type Dispatcher struct {
	cfg       Config
	sink      Sink
	ch        chan Event
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   [3]atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewDispatcher starts the forwarding goroutine. It returns nil when
// auditing is disabled; a nil Dispatcher is safe to use.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		cfg:  cfg,
		sink: sink,
		ch:   make(chan Event, cfg.BufferSize),
		done: make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.ch:
			d.sink.Emit(context.Background(), event)
		case <-d.done:
			for {
				select {
				case event := <-d.ch:
					d.sink.Emit(context.Background(), event)
				default:
					return
				}
			}
		}
	}
}

// Emit enqueues event. A full buffer drops non-critical events when
// DropIfFull is set; otherwise Emit waits for room until ctx ends. Events
// that cannot be enqueued, including those emitted after Close, are counted
// under their severity.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	if d.closed.Load() {
		d.drop(event)
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.cfg.DropIfFull && event.Severity != SeverityCritical {
		select {
		case d.ch <- event:
		default:
			d.drop(event)
		}
		return
	}

	select {
	case d.ch <- event:
	case <-ctx.Done():
		d.drop(event)
	case <-d.done:
		d.drop(event)
	}
}

func (d *Dispatcher) drop(event Event) {
	d.dropped[severityIndex(event.Severity)].Add(1)
}

// Close stops accepting events and drains the buffer into the sink.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

// Dropped returns the total number of lost events.
func (d *Dispatcher) Dropped() uint64 {
	var n uint64
	for _, c := range d.DroppedBySeverity() {
		n += c
	}
	return n
}

// DroppedBySeverity returns lost-event counts for every severity, zeros
// included.
func (d *Dispatcher) DroppedBySeverity() map[Severity]uint64 {
	out := make(map[Severity]uint64, len(Severities))
	for _, s := range Severities {
		out[s] = 0
		if d != nil {
			out[s] = d.dropped[severityIndex(s)].Load()
		}
	}
	return out
}
