// Package connectivity tracks whether the device believes it is online and
// turns the offline to online transition into a sync trigger.
package connectivity

import (
	"sync"
	"sync/atomic"

	"github.com/pders01/storykeep/internal/debuglog"
)

// TriggerFunc is invoked on every offline to online transition. It must not
// block for long; the monitor calls it on its own goroutine and never waits
// for it.
type TriggerFunc func(reason string)

// Monitor holds the current connectivity state. The state is a heuristic:
// callers must still handle request failures while it reports online.
type Monitor struct {
	online atomic.Bool

	mu      sync.Mutex
	trigger TriggerFunc
	subs    map[int]chan bool
	nextSub int

	log *debuglog.FieldLogger
}

func NewMonitor(initial bool) *Monitor {
	m := &Monitor{
		subs: make(map[int]chan bool),
		log:  debuglog.Component("connectivity"),
	}
	m.online.Store(initial)
	return m
}

// OnOnline registers the function called when connectivity returns. A
// later call replaces the earlier one.
func (m *Monitor) OnOnline(fn TriggerFunc) {
	m.mu.Lock()
	m.trigger = fn
	m.mu.Unlock()
}

func (m *Monitor) Online() bool {
	return m.online.Load()
}

// SetOnline records a platform network event and reports whether it changed
// the state. Repeated events for the same state are ignored.
func (m *Monitor) SetOnline(online bool) bool {
	m.mu.Lock()
	if m.online.Swap(online) == online {
		m.mu.Unlock()
		return false
	}
	trigger := m.trigger
	for _, ch := range m.subs {
		publish(ch, online)
	}
	m.mu.Unlock()

	if online {
		m.log.Infof("connection restored")
		if trigger != nil {
			go trigger("online")
		}
	} else {
		m.log.Infof("connection lost")
	}
	return true
}

// Subscribe returns a channel that always holds the most recent state
// change. The current state is delivered immediately. Call cancel to stop
// receiving; the channel is closed afterwards.
func (m *Monitor) Subscribe() (<-chan bool, func()) {
	ch := make(chan bool, 1)

	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	publish(ch, m.online.Load())
	m.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			close(ch)
			m.mu.Unlock()
		})
	}
	return ch, cancel
}

// publish replaces any unread value so slow subscribers only see the
// latest state.
func publish(ch chan bool, v bool) {
	select {
	case <-ch:
	default:
	}
	ch <- v
}
