package search

import "github.com/pders01/storykeep/internal/storage"

// Searcher defines the minimal search API used by the offline manager.
type Searcher interface {
	Search(query string, limit int) ([]*Result, error)
}

// UpdateListener can be implemented by search engines that maintain
// an external index and want to be notified about data changes.
type UpdateListener interface {
	OnStoriesUpdated(stories []*storage.Story)
}

// DeleteListener can be implemented to get notified when a story is deleted.
type DeleteListener interface {
	OnStoryDeleted(storyID string)
}

// Result is a story matching a query.
type Result struct {
	Story   *storage.Story
	Score   float64
	Matches []Match
}

// Match represents where text was found
type Match struct {
	Field  string // "name" or "description"
	Text   string // matched text snippet
	Weight float64
}
