package storage

import (
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// PutStory inserts or replaces a story. SavedAt is set to the write time.
func (s *Store) PutStory(story *Story) error {
	return s.update(func(tx *bolt.Tx) error {
		story.SavedAt = time.Now()
		return stories.put(tx, story, false)
	})
}

// AddStory inserts a story and fails with ErrConflict if the id is taken.
func (s *Store) AddStory(story *Story) error {
	return s.update(func(tx *bolt.Tx) error {
		story.SavedAt = time.Now()
		return stories.put(tx, story, true)
	})
}

// UpdateStory replaces an existing story and fails with ErrNotFound if it
// is absent.
func (s *Store) UpdateStory(story *Story) error {
	return s.update(func(tx *bolt.Tx) error {
		if !stories.exists(tx, []byte(story.ID)) {
			return fmt.Errorf("story %s: %w", story.ID, ErrNotFound)
		}
		story.SavedAt = time.Now()
		return stories.put(tx, story, false)
	})
}

// PutStoriesIfAbsent stores the stories whose ids are not present yet and
// reports how many were written. Existing copies are left untouched.
func (s *Store) PutStoriesIfAbsent(list []*Story) (int, error) {
	added := 0
	err := s.update(func(tx *bolt.Tx) error {
		now := time.Now()
		for _, story := range list {
			if stories.exists(tx, []byte(story.ID)) {
				continue
			}
			story.SavedAt = now
			if err := stories.put(tx, story, true); err != nil {
				return err
			}
			added++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

// GetStory returns the story with id, or nil when there is none.
func (s *Store) GetStory(id string) (*Story, error) {
	var story *Story
	err := s.view(func(tx *bolt.Tx) error {
		var err error
		story, err = stories.get(tx, []byte(id))
		return err
	})
	return story, err
}

func (s *Store) DeleteStory(id string) error {
	return s.update(func(tx *bolt.Tx) error {
		return stories.remove(tx, []byte(id))
	})
}

// GetAllStories returns every stored story, newest CreatedAt first.
func (s *Store) GetAllStories() ([]*Story, error) {
	var list []*Story
	err := s.view(func(tx *bolt.Tx) error {
		var err error
		list, err = stories.scan(tx, "createdAt", nil, true)
		return err
	})
	return list, err
}

// StoriesByName returns the stories written by the given author.
func (s *Store) StoriesByName(name string) ([]*Story, error) {
	var list []*Story
	err := s.view(func(tx *bolt.Tx) error {
		var err error
		list, err = stories.scan(tx, "name", []byte(name), false)
		return err
	})
	return list, err
}

// StoriesByCreatedAt returns stories created in [from, to), oldest first.
// A zero to means no upper bound.
func (s *Store) StoriesByCreatedAt(from, to time.Time) ([]*Story, error) {
	var upper []byte
	if !to.IsZero() {
		upper = timeValue(to)
	}
	var list []*Story
	err := s.view(func(tx *bolt.Tx) error {
		var err error
		list, err = stories.scanRange(tx, "createdAt", timeValue(from), upper)
		return err
	})
	return list, err
}

// RecentlySaved returns up to limit stories ordered by SavedAt, newest
// first. A limit <= 0 returns all of them.
func (s *Store) RecentlySaved(limit int) ([]*Story, error) {
	var list []*Story
	err := s.view(func(tx *bolt.Tx) error {
		var err error
		list, err = stories.scan(tx, "savedAt", nil, true)
		return err
	})
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, err
}

// OfflineStories returns the stories created on this device that the
// remote service has not confirmed yet.
func (s *Store) OfflineStories() ([]*Story, error) {
	all, err := s.GetAllStories()
	if err != nil {
		return nil, err
	}
	var out []*Story
	for _, story := range all {
		if story.IsOffline {
			out = append(out, story)
		}
	}
	return out, nil
}
