package storage

import (
	"time"

	bolt "go.etcd.io/bbolt"
)

// PutFavorite records a favorite holding a snapshot of story. Favoriting the
// same story again refreshes the snapshot and AddedAt.
func (s *Store) PutFavorite(story *Story) (*Favorite, error) {
	fav := &Favorite{
		ID:      FavoriteID(story.ID),
		StoryID: story.ID,
		Story:   *story,
		AddedAt: time.Now(),
	}
	err := s.update(func(tx *bolt.Tx) error {
		return favorites.put(tx, fav, false)
	})
	if err != nil {
		return nil, err
	}
	return fav, nil
}

// GetFavorite returns the favorite for storyID, or nil.
func (s *Store) GetFavorite(storyID string) (*Favorite, error) {
	var fav *Favorite
	err := s.view(func(tx *bolt.Tx) error {
		var err error
		fav, err = favorites.get(tx, []byte(FavoriteID(storyID)))
		return err
	})
	return fav, err
}

func (s *Store) DeleteFavorite(storyID string) error {
	return s.update(func(tx *bolt.Tx) error {
		return favorites.remove(tx, []byte(FavoriteID(storyID)))
	})
}

// GetAllFavorites returns favorites, most recently added first.
func (s *Store) GetAllFavorites() ([]*Favorite, error) {
	var list []*Favorite
	err := s.view(func(tx *bolt.Tx) error {
		var err error
		list, err = favorites.scan(tx, "addedAt", nil, true)
		return err
	})
	return list, err
}

// FavoritesByStory looks favorites up through the storyId index.
func (s *Store) FavoritesByStory(storyID string) ([]*Favorite, error) {
	var list []*Favorite
	err := s.view(func(tx *bolt.Tx) error {
		var err error
		list, err = favorites.scan(tx, "storyId", []byte(storyID), false)
		return err
	})
	return list, err
}

func (s *Store) ClearFavorites() error {
	return s.update(func(tx *bolt.Tx) error {
		return favorites.clear(tx)
	})
}
