package storage

import (
	"encoding/json"
	"time"

	bolt "go.etcd.io/bbolt"
)

// AppendPendingAction stores an action under the next value of the
// collection's sequence, so ids grow monotonically and key order is
// insertion order.
func (s *Store) AppendPendingAction(actionType string, data json.RawMessage) (*PendingAction, error) {
	var action *PendingAction
	err := s.update(func(tx *bolt.Tx) error {
		b, err := pendingActions.records(tx)
		if err != nil {
			return err
		}
		id, err := b.NextSequence()
		if err != nil {
			return err
		}
		action = &PendingAction{
			ID:        id,
			Type:      actionType,
			Data:      data,
			Timestamp: time.Now(),
		}
		return pendingActions.put(tx, action, true)
	})
	if err != nil {
		return nil, err
	}
	return action, nil
}

// GetPendingActions returns all pending actions in insertion order.
func (s *Store) GetPendingActions() ([]*PendingAction, error) {
	var list []*PendingAction
	err := s.view(func(tx *bolt.Tx) error {
		var err error
		list, err = pendingActions.all(tx)
		return err
	})
	return list, err
}

// PendingActionsByType uses the type index.
func (s *Store) PendingActionsByType(actionType string) ([]*PendingAction, error) {
	var list []*PendingAction
	err := s.view(func(tx *bolt.Tx) error {
		var err error
		list, err = pendingActions.scan(tx, "type", []byte(actionType), false)
		return err
	})
	return list, err
}

// DeletePendingActions removes the given ids in one transaction. Unknown
// ids are ignored.
func (s *Store) DeletePendingActions(ids ...uint64) error {
	if len(ids) == 0 {
		return nil
	}
	return s.update(func(tx *bolt.Tx) error {
		for _, id := range ids {
			if err := pendingActions.remove(tx, uint64Key(id)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) ClearPendingActions() error {
	return s.update(func(tx *bolt.Tx) error {
		return pendingActions.clear(tx)
	})
}

func (s *Store) CountPendingActions() (int, error) {
	n := 0
	err := s.view(func(tx *bolt.Tx) error {
		n = pendingActions.count(tx)
		return nil
	})
	return n, err
}
