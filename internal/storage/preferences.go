package storage

import (
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// SetPreference stores value as JSON under key.
func (s *Store) SetPreference(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding preference %s: %w", key, err)
	}
	return s.update(func(tx *bolt.Tx) error {
		return preferences.put(tx, &Preference{Key: key, Value: data}, false)
	})
}

// GetPreference decodes the value stored under key into out and reports
// whether the key was present.
func (s *Store) GetPreference(key string, out any) (bool, error) {
	var pref *Preference
	err := s.view(func(tx *bolt.Tx) error {
		var err error
		pref, err = preferences.get(tx, []byte(key))
		return err
	})
	if err != nil || pref == nil {
		return false, err
	}
	if err := json.Unmarshal(pref.Value, out); err != nil {
		return true, fmt.Errorf("decoding preference %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) DeletePreference(key string) error {
	return s.update(func(tx *bolt.Tx) error {
		return preferences.remove(tx, []byte(key))
	})
}
