package syncer

import (
	"context"
	"sync"

	"github.com/pders01/storykeep/internal/debuglog"
)

type Syncer interface {
	Sync(ctx context.Context) (Result, error)
}

// Outcome is delivered on the channel returned by Trigger.
type Outcome struct {
	Reason string
	Result Result
	Err    error
}

type task struct {
	reason string
	done   chan Outcome
}

// Dispatcher runs sync passes on a single worker goroutine fed by a bounded
// queue. Callers get a completion channel they may wait on or ignore.
type Dispatcher struct {
	engine Syncer
	tasks  chan task

	mu      sync.RWMutex
	stopped bool

	log *debuglog.FieldLogger
}

func NewDispatcher(engine Syncer, size int) *Dispatcher {
	if size <= 0 {
		size = 1
	}
	return &Dispatcher{
		engine: engine,
		tasks:  make(chan task, size),
		log:    debuglog.Component("dispatcher"),
	}
}

// Trigger schedules a pass and never blocks. When the queue is full or the
// dispatcher has stopped, the returned channel already holds a skipped
// result.
func (d *Dispatcher) Trigger(reason string) <-chan Outcome {
	done := make(chan Outcome, 1)

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.stopped {
		done <- skipped(reason, ReasonStopped)
		return done
	}
	select {
	case d.tasks <- task{reason: reason, done: done}:
		d.log.Debugf("sync scheduled (%s)", reason)
	default:
		d.log.Warnf("sync queue full, dropping trigger (%s)", reason)
		done <- skipped(reason, ReasonQueueFull)
	}
	return done
}

// Notify is Trigger for callers that do not wait, such as the connectivity
// monitor.
func (d *Dispatcher) Notify(reason string) {
	d.Trigger(reason)
}

// Run processes triggers until ctx is done. Triggers still queued at that
// point are answered as skipped. A pass already under way runs to
// completion; cancelling ctx does not interrupt it.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer d.stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t := <-d.tasks:
			res, err := d.engine.Sync(context.WithoutCancel(ctx))
			if err != nil {
				d.log.Errorf("sync (%s) failed: %v", t.reason, err)
			}
			t.done <- Outcome{Reason: t.reason, Result: res, Err: err}
		}
	}
}

func (d *Dispatcher) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	for {
		select {
		case t := <-d.tasks:
			t.done <- skipped(t.reason, ReasonStopped)
		default:
			return
		}
	}
}

func skipped(trigger, reason string) Outcome {
	return Outcome{Reason: trigger, Result: Result{Skipped: true, Reason: reason}}
}
