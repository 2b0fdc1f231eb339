// Package syncer replays the pending-action queue against the remote story
// service.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/oauth2"

	"github.com/pders01/storykeep/internal/debuglog"
	"github.com/pders01/storykeep/internal/queue"
	"github.com/pders01/storykeep/internal/remote"
	"github.com/pders01/storykeep/internal/storage"
)

const (
	ReasonOffline    = "offline"
	ReasonInProgress = "in progress"
	ReasonQueueFull  = "queue full"
	ReasonStopped    = "dispatcher stopped"
)

var errNoPhoto = errors.New("story has neither photo data nor a photo URL")

// Remote is the part of the story service the engine replays against.
type Remote interface {
	AddStory(ctx context.Context, story remote.NewStory) error
	DeleteStory(ctx context.Context, id string) error
	FetchPhoto(ctx context.Context, photoURL string) ([]byte, string, error)
}

type Queue interface {
	Drain() ([]queue.Action, error)
	Remove(ids ...uint64) error
}

type Connectivity interface {
	Online() bool
}

// LocalStories lets the engine drop the local copy of an offline story once
// the server has accepted it.
type LocalStories interface {
	DeleteStory(id string) error
}

type Deps struct {
	Queue  Queue
	Remote Remote
	Tokens oauth2.TokenSource
	Conn   Connectivity
	// Local is optional.
	Local LocalStories
}

type Options struct {
	// RequeueFailed keeps failed actions queued for the next pass instead
	// of dropping them with the rest of the snapshot.
	RequeueFailed bool
}

type Failure struct {
	ActionID uint64
	Kind     queue.Kind
	Err      error
}

// Result describes one sync pass. A pass that ran is reported with a nil
// error even when individual actions failed; those are listed in Failures.
type Result struct {
	Skipped bool
	Reason  string

	Attempted int
	Succeeded int
	Ignored   int
	Requeued  int
	Failures  []Failure
	// Interrupted is set when ctx ended the pass early. Actions not yet
	// attempted stay queued.
	Interrupted bool

	Started  time.Time
	Finished time.Time
}

// OK reports whether the pass ran and every action succeeded.
func (r Result) OK() bool {
	return !r.Skipped && len(r.Failures) == 0
}

func (r Result) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failures))
	for _, f := range r.Failures {
		errs = append(errs, fmt.Errorf("action %d (%s): %w", f.ActionID, f.Kind, f.Err))
	}
	return errors.Join(errs...)
}

type Engine struct {
	deps Deps
	opts Options

	running atomic.Bool
	log     *debuglog.FieldLogger
}

func NewEngine(deps Deps, opts Options) *Engine {
	return &Engine{
		deps: deps,
		opts: opts,
		log:  debuglog.Component("syncer"),
	}
}

// Running reports whether a pass is in progress.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Sync runs one pass over a snapshot of the queue. It is a no-op while
// offline or while another pass is running. Without a bearer token it
// returns remote.ErrAuthMissing and leaves the queue alone.
func (e *Engine) Sync(ctx context.Context) (Result, error) {
	if e.deps.Conn != nil && !e.deps.Conn.Online() {
		return Result{Skipped: true, Reason: ReasonOffline}, nil
	}
	if !e.running.CompareAndSwap(false, true) {
		e.log.Debugf("sync already in progress")
		return Result{Skipped: true, Reason: ReasonInProgress}, nil
	}
	defer e.running.Store(false)

	if err := e.checkToken(); err != nil {
		e.log.Warnf("sync aborted: %v", err)
		return Result{}, err
	}

	res := Result{Started: time.Now()}
	actions, err := e.deps.Queue.Drain()
	if err != nil {
		return res, fmt.Errorf("draining queue: %w", err)
	}
	e.log.Infof("starting sync of %d pending actions", len(actions))

	retire := make([]uint64, 0, len(actions))
	for _, action := range actions {
		if ctx.Err() != nil {
			res.Interrupted = true
			break
		}
		log := e.log.With("action_id", action.ID).With("kind", string(action.Kind()))

		ignored, err := e.apply(ctx, action)
		switch {
		case ignored:
			res.Ignored++
			log.Warnf("skipping unknown action kind")
		case err != nil && ctx.Err() != nil:
			// Cut short by cancellation; the action stays queued.
			res.Interrupted = true
			log.Warnf("sync interrupted: %v", err)
			continue
		case err != nil:
			res.Attempted++
			res.Failures = append(res.Failures, Failure{ActionID: action.ID, Kind: action.Kind(), Err: err})
			log.Errorf("failed to sync action: %v", err)
			if e.opts.RequeueFailed {
				res.Requeued++
				continue
			}
		default:
			res.Attempted++
			res.Succeeded++
		}
		retire = append(retire, action.ID)
	}

	if err := e.deps.Queue.Remove(retire...); err != nil {
		return res, fmt.Errorf("retiring synced actions: %w", err)
	}

	res.Finished = time.Now()
	if res.Interrupted {
		e.log.Warnf("sync interrupted after %d of %d actions", res.Attempted+res.Ignored, len(actions))
	}
	e.log.With("failed", len(res.Failures)).Infof("sync completed: %d of %d actions succeeded", res.Succeeded, res.Attempted)
	return res, nil
}

func (e *Engine) checkToken() error {
	if e.deps.Tokens == nil {
		return remote.ErrAuthMissing
	}
	tok, err := e.deps.Tokens.Token()
	if err != nil || tok == nil || tok.AccessToken == "" {
		return remote.ErrAuthMissing
	}
	return nil
}

// apply replays one action. The bool is true for actions of unknown kind.
func (e *Engine) apply(ctx context.Context, action queue.Action) (bool, error) {
	switch p := action.Payload.(type) {
	case queue.AddStory:
		return false, e.addStory(ctx, p)
	case queue.DeleteStory:
		return false, e.deps.Remote.DeleteStory(ctx, p.StoryID)
	default:
		return true, nil
	}
}

func (e *Engine) addStory(ctx context.Context, p queue.AddStory) error {
	story := remote.NewStory{
		Description: p.Description,
		Photo:       p.Photo,
		Location:    p.Location,
	}
	if len(story.Photo) == 0 {
		if p.PhotoURL == "" {
			return errNoPhoto
		}
		data, _, err := e.deps.Remote.FetchPhoto(ctx, p.PhotoURL)
		if err != nil {
			return fmt.Errorf("re-fetching photo: %w", err)
		}
		story.Photo = data
		story.PhotoName = "story-photo.jpg"
	}

	if err := e.deps.Remote.AddStory(ctx, story); err != nil {
		return err
	}

	if e.deps.Local != nil && storage.IsOfflineID(p.StoryID) {
		if err := e.deps.Local.DeleteStory(p.StoryID); err != nil {
			e.log.Warnf("removing local copy of %s: %v", p.StoryID, err)
		}
	}
	return nil
}
