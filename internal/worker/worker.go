// Package worker is the background worker boundary: a lifecycle state
// machine plus a dispatch table of independent event handlers. Handlers
// never touch the host directly; they return an Effect describing what the
// host should do.
package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/pders01/storykeep/internal/cache"
	"github.com/pders01/storykeep/internal/debuglog"
	"github.com/pders01/storykeep/internal/syncer"
)

type State int

const (
	StateParsed State = iota
	StateInstalling
	StateInstalled
	StateActivating
	StateActivated
	StateRedundant
)

func (s State) String() string {
	switch s {
	case StateParsed:
		return "parsed"
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActivating:
		return "activating"
	case StateActivated:
		return "activated"
	case StateRedundant:
		return "redundant"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	ErrRedundant       = errors.New("worker is redundant")
	ErrUnhandled       = errors.New("no handler for event")
	ErrInvalidState    = errors.New("event not valid in current state")
	ErrUnknownMessage  = errors.New("unknown message type")
	ErrNoSyncScheduler = errors.New("no sync dispatcher configured")
)

// Effect is what the host should do after an event.
type Effect struct {
	// Response answers a Fetch.
	Response *http.Response
	// Notification is shown after a Push.
	Notification *Notification
	// CloseNotification is set for every NotificationClick.
	CloseNotification bool
	// OpenWindow is a URL to focus or open.
	OpenWindow string
	// Sync is the completion channel of a triggered sync pass.
	Sync <-chan syncer.Outcome
	// Deleted lists cache partitions removed on activation.
	Deleted []string
	// Install is the precache report.
	Install *cache.InstallReport
}

// Cache is the request cache layer with its lifecycle hooks.
type Cache interface {
	http.RoundTripper
	Install(ctx context.Context) (*cache.InstallReport, error)
	Activate() ([]string, error)
}

type Dispatcher interface {
	Trigger(reason string) <-chan syncer.Outcome
}

// Handler processes one event kind.
type Handler func(ctx context.Context, w *Worker, ev Event) (Effect, error)

type Options struct {
	// SkipWaiting activates right after a successful install.
	SkipWaiting bool
	// Network serves fetches before activation. Defaults to
	// http.DefaultTransport.
	Network http.RoundTripper
}

type Worker struct {
	cache      Cache
	dispatcher Dispatcher
	network    http.RoundTripper
	opts       Options

	mu       sync.Mutex
	state    State
	handlers map[EventKind]Handler

	log *debuglog.FieldLogger
}

func New(c Cache, dispatcher Dispatcher, opts Options) *Worker {
	network := opts.Network
	if network == nil {
		network = http.DefaultTransport
	}
	w := &Worker{
		cache:      c,
		dispatcher: dispatcher,
		network:    network,
		opts:       opts,
		state:      StateParsed,
		log:        debuglog.Component("worker"),
	}
	w.handlers = map[EventKind]Handler{
		KindInstall:           handleInstall,
		KindActivate:          handleActivate,
		KindFetch:             handleFetch,
		KindPush:              handlePush,
		KindNotificationClick: handleNotificationClick,
		KindMessage:           handleMessage,
		KindSync:              handleSync,
	}
	return w
}

func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Handle replaces the handler for kind.
func (w *Worker) Handle(kind EventKind, h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[kind] = h
}

// Dispatch routes ev to its handler.
func (w *Worker) Dispatch(ctx context.Context, ev Event) (Effect, error) {
	w.mu.Lock()
	h, ok := w.handlers[ev.Kind()]
	redundant := w.state == StateRedundant
	w.mu.Unlock()

	if redundant {
		return Effect{}, ErrRedundant
	}
	if !ok {
		return Effect{}, fmt.Errorf("%w: %s", ErrUnhandled, ev.Kind())
	}
	return h(ctx, w, ev)
}

// RoundTrip lets the worker stand in for a transport: requests become
// Fetch events.
func (w *Worker) RoundTrip(req *http.Request) (*http.Response, error) {
	eff, err := w.Dispatch(req.Context(), Fetch{Request: req})
	if err != nil {
		return nil, err
	}
	return eff.Response, nil
}

// transition moves from one of the allowed states to next.
func (w *Worker) transition(next State, from ...State) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, s := range from {
		if w.state == s {
			w.log.Debugf("state %s -> %s", w.state, next)
			w.state = next
			return nil
		}
	}
	return fmt.Errorf("%w: %s to %s", ErrInvalidState, w.state, next)
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = s
}

func handleInstall(ctx context.Context, w *Worker, _ Event) (Effect, error) {
	if err := w.transition(StateInstalling, StateParsed); err != nil {
		return Effect{}, err
	}
	report, err := w.cache.Install(ctx)
	if err != nil {
		w.setState(StateRedundant)
		w.log.Errorf("install failed: %v", err)
		return Effect{}, err
	}
	w.setState(StateInstalled)

	eff := Effect{Install: report}
	if w.opts.SkipWaiting {
		act, err := handleActivate(ctx, w, Activate{})
		if err != nil {
			return eff, err
		}
		eff.Deleted = act.Deleted
	}
	return eff, nil
}

func handleActivate(_ context.Context, w *Worker, _ Event) (Effect, error) {
	if err := w.transition(StateActivating, StateInstalled); err != nil {
		return Effect{}, err
	}
	deleted, err := w.cache.Activate()
	if err != nil {
		// stay usable; stale partitions are retried on the next activation
		w.log.Errorf("activation cleanup failed: %v", err)
	}
	w.setState(StateActivated)
	return Effect{Deleted: deleted}, nil
}

// handleFetch answers through the cache layer once active, and straight
// from the network before that.
func handleFetch(_ context.Context, w *Worker, ev Event) (Effect, error) {
	req := ev.(Fetch).Request
	if req == nil {
		return Effect{}, errors.New("fetch event without request")
	}
	rt := w.network
	if w.State() == StateActivated {
		rt = w.cache
	}
	resp, err := rt.RoundTrip(req)
	if err != nil {
		return Effect{}, err
	}
	return Effect{Response: resp}, nil
}

func handlePush(_ context.Context, _ *Worker, ev Event) (Effect, error) {
	n := parsePush(ev.(Push).Data)
	return Effect{Notification: &n}, nil
}

func handleNotificationClick(_ context.Context, _ *Worker, ev Event) (Effect, error) {
	click := ev.(NotificationClick)
	eff := Effect{CloseNotification: true}
	if click.Action == "" || click.Action == ActionView {
		eff.OpenWindow = click.URL
		if eff.OpenWindow == "" {
			eff.OpenWindow = "/"
		}
	}
	return eff, nil
}

func handleMessage(ctx context.Context, w *Worker, ev Event) (Effect, error) {
	switch msg := ev.(Message); msg.Type {
	case MessageSyncStories:
		return w.triggerSync("message")
	case MessageSkipWaiting:
		if w.State() != StateInstalled {
			return Effect{}, nil
		}
		return handleActivate(ctx, w, Activate{})
	default:
		return Effect{}, fmt.Errorf("%w: %q", ErrUnknownMessage, msg.Type)
	}
}

func handleSync(_ context.Context, w *Worker, ev Event) (Effect, error) {
	if tag := ev.(BackgroundSync).Tag; tag != SyncTag {
		w.log.Debugf("ignoring sync tag %q", tag)
		return Effect{}, nil
	}
	return w.triggerSync("background sync")
}

func (w *Worker) triggerSync(reason string) (Effect, error) {
	if w.dispatcher == nil {
		return Effect{}, ErrNoSyncScheduler
	}
	return Effect{Sync: w.dispatcher.Trigger(reason)}, nil
}
