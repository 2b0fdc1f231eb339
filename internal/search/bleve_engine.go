package search

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	bleveQuery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/pders01/storykeep/internal/debuglog"
	"github.com/pders01/storykeep/internal/storage"
)

// StoryStore is what the bleve engine reads to build and resolve hits.
type StoryStore interface {
	StoryLister
	GetStory(id string) (*storage.Story, error)
}

type BleveEngine struct {
	store StoryStore
	idx   bleve.Index
	log   *debuglog.FieldLogger
}

// NewBleveEngine creates or opens a Bleve index at indexPath and indexes current data.
func NewBleveEngine(store StoryStore, indexPath string) (*BleveEngine, error) {
	if err := os.MkdirAll(filepath.Dir(indexPath), 0o755); err != nil {
		return nil, err
	}

	idx, err := bleve.Open(indexPath)
	if err != nil {
		idx, err = bleve.New(indexPath, buildIndexMapping())
		if err != nil {
			return nil, err
		}
	}

	be := &BleveEngine{store: store, idx: idx, log: debuglog.Component("search")}
	if err := be.reindexAll(); err != nil {
		idx.Close()
		return nil, err
	}
	return be, nil
}

func buildIndexMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	im.DefaultAnalyzer = standard.Name

	dm := bleve.NewDocumentMapping()

	name := bleve.NewTextFieldMapping()
	name.Analyzer = standard.Name
	name.Store = true

	desc := bleve.NewTextFieldMapping()
	desc.Analyzer = standard.Name
	desc.Store = true
	desc.IncludeTermVectors = true

	created := bleve.NewDateTimeFieldMapping()
	created.Store = true

	dm.AddFieldMappingsAt("name", name)
	dm.AddFieldMappingsAt("description", desc)
	dm.AddFieldMappingsAt("created_at", created)

	im.DefaultMapping = dm
	return im
}

func storyDoc(s *storage.Story) map[string]any {
	return map[string]any{
		"type":        "story",
		"story_id":    s.ID,
		"name":        s.Name,
		"description": s.Description,
		"created_at":  s.CreatedAt.Format(time.RFC3339),
	}
}

func (b *BleveEngine) reindexAll() error {
	stories, err := b.store.GetAllStories()
	if err != nil {
		return err
	}
	batch := b.idx.NewBatch()
	for _, s := range stories {
		if err := batch.Index(docIDForStory(s.ID), storyDoc(s)); err != nil {
			return err
		}
	}
	return b.idx.Batch(batch)
}

func (b *BleveEngine) Search(query string, limit int) ([]*Result, error) {
	if len(strings.TrimSpace(query)) < 2 {
		return []*Result{}, nil
	}
	if limit <= 0 {
		limit = 20
	}

	var qs []bleveQuery.Query
	for _, tok := range tokenize(query) {
		qd := bleve.NewMatchQuery(tok)
		qd.SetField("description")
		qd.SetBoost(2.0)
		qdp := bleve.NewPrefixQuery(tok)
		qdp.SetField("description")
		qdp.SetBoost(1.8)
		qn := bleve.NewMatchQuery(tok)
		qn.SetField("name")
		qn.SetBoost(1.5)
		qnp := bleve.NewPrefixQuery(tok)
		qnp.SetField("name")
		qnp.SetBoost(1.2)
		qs = append(qs, qd, qdp, qn, qnp)
	}
	if len(qs) == 0 {
		return []*Result{}, nil
	}

	srch := bleve.NewSearchRequestOptions(bleve.NewDisjunctionQuery(qs...), limit, 0, false)
	srch.Fields = []string{"name", "description"}
	res, err := b.idx.Search(srch)
	if err != nil {
		return nil, err
	}

	out := make([]*Result, 0, len(res.Hits))
	for _, h := range res.Hits {
		id := strings.TrimPrefix(h.ID, "story:")
		story, err := b.store.GetStory(id)
		if err != nil {
			return nil, err
		}
		if story == nil {
			// stale document; the story was deleted behind the index
			b.OnStoryDeleted(id)
			continue
		}
		r := &Result{Story: story, Score: h.Score}
		if d, ok := h.Fields["description"].(string); ok && d != "" {
			r.Matches = append(r.Matches, Match{Field: "description", Text: truncate(d, 160)})
		}
		out = append(out, r)
	}
	return out, nil
}

// OnStoriesUpdated indexes the provided stories.
func (b *BleveEngine) OnStoriesUpdated(stories []*storage.Story) {
	if len(stories) == 0 {
		return
	}
	batch := b.idx.NewBatch()
	for _, s := range stories {
		_ = batch.Index(docIDForStory(s.ID), storyDoc(s))
	}
	if err := b.idx.Batch(batch); err != nil {
		b.log.Warnf("indexing %d stories: %v", len(stories), err)
	}
}

func (b *BleveEngine) OnStoryDeleted(storyID string) {
	if err := b.idx.Delete(docIDForStory(storyID)); err != nil {
		b.log.Warnf("removing %s from index: %v", storyID, err)
	}
}

// DocCount reports total documents in the index.
func (b *BleveEngine) DocCount() (int, error) {
	n, err := b.idx.DocCount()
	return int(n), err
}

func (b *BleveEngine) Close() error {
	return b.idx.Close()
}

func docIDForStory(storyID string) string { return "story:" + storyID }
