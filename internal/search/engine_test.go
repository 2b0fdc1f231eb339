package search

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/storykeep/internal/storage"
)

type sliceStore []*storage.Story

func (s sliceStore) GetAllStories() ([]*storage.Story, error) { return s, nil }

func (s sliceStore) GetStory(id string) (*storage.Story, error) {
	for _, story := range s {
		if story.ID == id {
			return story, nil
		}
	}
	return nil, nil
}

var fixtures = sliceStore{
	{ID: "story-1", Name: "Dimas", Description: "Sunset over the beach in Bali", CreatedAt: time.Now()},
	{ID: "story-2", Name: "Ayu", Description: "Morning coffee at the market", CreatedAt: time.Now()},
	{ID: "story-3", Name: "Bali Explorer", Description: "Rice terraces near Bali and a beach walk", CreatedAt: time.Now()},
}

func TestSearchMinLength(t *testing.T) {
	engine := NewEngine(fixtures)

	tests := []struct {
		name  string
		query string
	}{
		{"Empty query", ""},
		{"Single character query", "a"},
		{"Whitespace only", "   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := engine.Search(tt.query, 10)
			assert.NoError(t, err)
			assert.NotNil(t, results)
			assert.Equal(t, 0, len(results), "short queries should return empty results")
		})
	}
}

func TestSearchScoresNameAndDescription(t *testing.T) {
	engine := NewEngine(fixtures)

	results, err := engine.Search("bali", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "story-3", results[0].Story.ID, "name and description match outranks description only")

	var fields []string
	for _, m := range results[0].Matches {
		fields = append(fields, m.Field)
	}
	assert.ElementsMatch(t, []string{"name", "description"}, fields)

	results, err = engine.Search("coffee", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "story-2", results[0].Story.ID)

	results, err = engine.Search("beach", 1)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	results, err = engine.Search("volcano", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"hello", "wörld", "42"}, tokenize("Hello, wörld! a 42"))
	assert.Empty(t, tokenize("a b c"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
