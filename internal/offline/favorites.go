package offline

import (
	"context"
	"fmt"

	"github.com/pders01/storykeep/internal/storage"
)

// AddFavorite stores a snapshot of the story. A story missing locally is
// fetched from the service first.
func (m *Manager) AddFavorite(ctx context.Context, storyID string) (*storage.Favorite, error) {
	story, err := m.store.GetStory(storyID)
	if err != nil {
		return nil, err
	}
	if story == nil {
		story, err = m.GetStory(ctx, storyID)
		if err != nil {
			return nil, fmt.Errorf("loading story %s: %w", storyID, err)
		}
	}
	return m.store.PutFavorite(story)
}

func (m *Manager) RemoveFavorite(storyID string) error {
	return m.store.DeleteFavorite(storyID)
}

// Favorites lists favorites, most recently added first.
func (m *Manager) Favorites() ([]*storage.Favorite, error) {
	return m.store.GetAllFavorites()
}

func (m *Manager) IsFavorite(storyID string) (bool, error) {
	fav, err := m.store.GetFavorite(storyID)
	if err != nil {
		return false, err
	}
	return fav != nil, nil
}

func (m *Manager) ClearFavorites() error {
	return m.store.ClearFavorites()
}
