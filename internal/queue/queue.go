// Package queue is the ordered log of mutations that have not reached the
// remote story service yet. Every operation writes through to the durable
// store; there is no in-memory copy.
package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pders01/storykeep/internal/debuglog"
	"github.com/pders01/storykeep/internal/storage"
)

// Store is the subset of storage.Store the queue persists through.
type Store interface {
	AppendPendingAction(actionType string, data json.RawMessage) (*storage.PendingAction, error)
	GetPendingActions() ([]*storage.PendingAction, error)
	DeletePendingActions(ids ...uint64) error
	ClearPendingActions() error
	CountPendingActions() (int, error)
}

type Action struct {
	ID        uint64
	Payload   Payload
	CreatedAt time.Time
}

func (a Action) Kind() Kind {
	return a.Payload.Kind()
}

type Queue struct {
	store Store
	log   *debuglog.FieldLogger
}

func New(store Store) *Queue {
	return &Queue{
		store: store,
		log:   debuglog.Component("queue"),
	}
}

// Enqueue appends p and returns the stored action with its assigned id.
func (q *Queue) Enqueue(p Payload) (Action, error) {
	typ, data, err := encode(p)
	if err != nil {
		return Action{}, err
	}
	rec, err := q.store.AppendPendingAction(typ, data)
	if err != nil {
		return Action{}, fmt.Errorf("enqueueing %s: %w", typ, err)
	}
	q.log.With("action_id", rec.ID).Debugf("enqueued %s", typ)
	return Action{ID: rec.ID, Payload: p, CreatedAt: rec.Timestamp}, nil
}

// Drain returns every queued action in insertion order without removing
// anything.
func (q *Queue) Drain() ([]Action, error) {
	recs, err := q.store.GetPendingActions()
	if err != nil {
		return nil, fmt.Errorf("reading pending actions: %w", err)
	}
	out := make([]Action, 0, len(recs))
	for _, rec := range recs {
		out = append(out, Action{
			ID:        rec.ID,
			Payload:   decode(rec.Type, rec.Data),
			CreatedAt: rec.Timestamp,
		})
	}
	return out, nil
}

// Clear removes every queued action.
func (q *Queue) Clear() error {
	if err := q.store.ClearPendingActions(); err != nil {
		return fmt.Errorf("clearing pending actions: %w", err)
	}
	return nil
}

// Remove deletes exactly the given actions. Ids that are no longer queued
// are ignored.
func (q *Queue) Remove(ids ...uint64) error {
	if err := q.store.DeletePendingActions(ids...); err != nil {
		return fmt.Errorf("removing pending actions: %w", err)
	}
	return nil
}

func (q *Queue) Len() (int, error) {
	return q.store.CountPendingActions()
}

// DiscardAddStory drops queued uploads of a locally created story, used
// when that story is deleted before it ever reached the server. It returns
// how many actions were removed.
func (q *Queue) DiscardAddStory(storyID string) (int, error) {
	actions, err := q.Drain()
	if err != nil {
		return 0, err
	}
	var ids []uint64
	for _, a := range actions {
		if add, ok := a.Payload.(AddStory); ok && add.StoryID == storyID {
			ids = append(ids, a.ID)
		}
	}
	if err := q.Remove(ids...); err != nil {
		return 0, err
	}
	return len(ids), nil
}
