// Package offline ties the local store, the pending-action queue and the
// remote client together. Every user-facing story operation goes through
// the Manager, which prefers the network and falls back to local state.
package offline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/pders01/storykeep/internal/debuglog"
	"github.com/pders01/storykeep/internal/queue"
	"github.com/pders01/storykeep/internal/remote"
	"github.com/pders01/storykeep/internal/search"
	"github.com/pders01/storykeep/internal/storage"
	"github.com/pders01/storykeep/internal/syncer"
	"github.com/pders01/storykeep/internal/validation"
)

var (
	ErrSearchDisabled = errors.New("search is disabled")
	ErrNoDispatcher   = errors.New("no sync dispatcher configured")
	// ErrGuestOffline is returned for guest uploads without a connection;
	// they cannot be replayed later because replay needs a token.
	ErrGuestOffline = errors.New("guest uploads need a connection")
)

// Remote is the story service as seen by the manager.
type Remote interface {
	Register(ctx context.Context, name, email, password string) error
	Login(ctx context.Context, email, password string) (*remote.LoginResult, error)
	ListStories(ctx context.Context, opts remote.ListOptions) ([]remote.Story, error)
	GetStory(ctx context.Context, id string) (*remote.Story, error)
	AddStory(ctx context.Context, story remote.NewStory) error
	AddStoryGuest(ctx context.Context, story remote.NewStory) error
	DeleteStory(ctx context.Context, id string) error
}

type Connectivity interface {
	Online() bool
	SetOnline(online bool) bool
}

type Dispatcher interface {
	Trigger(reason string) <-chan syncer.Outcome
}

type SyncState interface {
	Running() bool
}

type Deps struct {
	Store   *storage.Store
	Queue   *queue.Queue
	Remote  Remote
	Monitor Connectivity
	// Tokens defaults to the preference-backed source.
	Tokens oauth2.TokenSource
	// Dispatcher, Engine and Index are optional.
	Dispatcher Dispatcher
	Engine     SyncState
	Index      search.Searcher
}

type Manager struct {
	store   *storage.Store
	queue   *queue.Queue
	client  Remote
	monitor Connectivity
	tokens  oauth2.TokenSource

	dispatcher Dispatcher
	engine     SyncState
	index      search.Searcher

	mu  sync.Mutex
	log *debuglog.FieldLogger
}

func NewManager(deps Deps) *Manager {
	tokens := deps.Tokens
	if tokens == nil {
		tokens = NewTokenSource(deps.Store, "")
	}
	return &Manager{
		store:      deps.Store,
		queue:      deps.Queue,
		client:     deps.Remote,
		monitor:    deps.Monitor,
		tokens:     tokens,
		dispatcher: deps.Dispatcher,
		engine:     deps.Engine,
		index:      deps.Index,
		log:        debuglog.Component("offline"),
	}
}

// StoryInput is a story as entered by the user.
type StoryInput struct {
	Description string
	Photo       []byte
	Lat         *float64
	Lon         *float64
	// Guest uploads without a token and is never queued.
	Guest bool
}

// AddResult reports where a new story ended up. Story is set only when the
// story was kept locally for a later upload.
type AddResult struct {
	Queued bool
	Story  *storage.Story
}

// DeleteResult reports whether the remote delete still has to be replayed.
type DeleteResult struct {
	Queued bool
	// Discarded counts pending uploads dropped with a local-only story.
	Discarded int
}

type ListResult struct {
	Stories []*storage.Story
	// Local is true when the list came from the store instead of the
	// service.
	Local bool
}

// AddStory uploads the story when online. If the device is offline or the
// upload fails for any reason but authentication, the story is kept locally
// under an offline id and an add-story action is queued.
func (m *Manager) AddStory(ctx context.Context, in StoryInput) (*AddResult, error) {
	if err := validation.ValidateNewStory(validation.NewStory{
		Description: in.Description,
		Photo:       in.Photo,
		Lat:         in.Lat,
		Lon:         in.Lon,
	}); err != nil {
		return nil, err
	}

	upload := remote.NewStory{
		Description: in.Description,
		Photo:       in.Photo,
		Location:    location(in.Lat, in.Lon),
	}

	online := m.online()
	if in.Guest {
		if !online {
			return nil, ErrGuestOffline
		}
		if err := m.client.AddStoryGuest(ctx, upload); err != nil {
			m.noteFailure(err)
			return nil, fmt.Errorf("uploading story: %w", err)
		}
		return &AddResult{}, nil
	}

	failedUpload := false
	if online {
		err := m.client.AddStory(ctx, upload)
		if err == nil {
			m.log.Infof("story uploaded")
			return &AddResult{}, nil
		}
		if isAuthError(err) {
			return nil, err
		}
		m.noteFailure(err)
		m.log.Warnf("upload failed, keeping story offline: %v", err)
		failedUpload = true
	}

	story := &storage.Story{
		ID:           storage.OfflineIDPrefix + uuid.NewString(),
		Name:         m.userName(),
		Description:  in.Description,
		Photo:        in.Photo,
		PhotoType:    mimetype.Detect(in.Photo).String(),
		Location:     upload.Location,
		CreatedAt:    time.Now(),
		IsOffline:    true,
		FailedUpload: failedUpload,
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.AddStory(story); err != nil {
		return nil, fmt.Errorf("saving offline story: %w", err)
	}
	if _, err := m.queue.Enqueue(queue.AddStory{
		StoryID:     story.ID,
		Name:        story.Name,
		Description: story.Description,
		Photo:       story.Photo,
		PhotoType:   story.PhotoType,
		Location:    story.Location,
		CreatedAt:   story.CreatedAt,
	}); err != nil {
		return nil, err
	}
	m.indexStories(story)

	m.log.With("story_id", story.ID).Infof("story saved offline")
	return &AddResult{Queued: true, Story: story}, nil
}

// DeleteStory removes the story locally and then from the service. Stories
// the service never saw are only deleted locally, together with their
// pending upload.
func (m *Manager) DeleteStory(ctx context.Context, id string) (*DeleteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.DeleteStory(id); err != nil {
		return nil, fmt.Errorf("deleting local story: %w", err)
	}
	m.unindexStory(id)

	if storage.IsOfflineID(id) {
		n, err := m.queue.DiscardAddStory(id)
		if err != nil {
			return nil, err
		}
		return &DeleteResult{Discarded: n}, nil
	}

	if m.online() {
		err := m.client.DeleteStory(ctx, id)
		if err == nil {
			return &DeleteResult{}, nil
		}
		if isAuthError(err) {
			return nil, err
		}
		m.noteFailure(err)
		m.log.Warnf("remote delete of %s failed, queueing: %v", id, err)
	}

	if _, err := m.queue.Enqueue(queue.DeleteStory{StoryID: id}); err != nil {
		return nil, err
	}
	return &DeleteResult{Queued: true}, nil
}

// ListStories asks the service first and remembers stories it has not seen
// before. When the service cannot answer, the local store is listed.
func (m *Manager) ListStories(ctx context.Context, opts remote.ListOptions) (*ListResult, error) {
	if m.online() {
		list, err := m.client.ListStories(ctx, opts)
		if err == nil {
			stories := make([]*storage.Story, 0, len(list))
			for _, s := range list {
				stories = append(stories, s.ToStorage())
			}
			if n, err := m.store.PutStoriesIfAbsent(stories); err != nil {
				m.log.Warnf("caching stories: %v", err)
			} else if n > 0 {
				m.indexStories(stories...)
			}
			return &ListResult{Stories: stories}, nil
		}
		if isAuthError(err) {
			return nil, err
		}
		m.noteFailure(err)
		m.log.Warnf("listing stories remotely failed, using local copy: %v", err)
	}

	stories, err := m.store.GetAllStories()
	if err != nil {
		return nil, fmt.Errorf("listing local stories: %w", err)
	}
	return &ListResult{Stories: stories, Local: true}, nil
}

// GetStory returns the story from the service, or the local copy.
func (m *Manager) GetStory(ctx context.Context, id string) (*storage.Story, error) {
	if m.online() && !storage.IsOfflineID(id) {
		s, err := m.client.GetStory(ctx, id)
		if err == nil {
			story := s.ToStorage()
			if _, err := m.store.PutStoriesIfAbsent([]*storage.Story{story}); err != nil {
				m.log.Warnf("caching story %s: %v", id, err)
			}
			return story, nil
		}
		if isAuthError(err) {
			return nil, err
		}
		m.noteFailure(err)
	}

	story, err := m.store.GetStory(id)
	if err != nil {
		return nil, err
	}
	if story == nil {
		return nil, fmt.Errorf("story %s: %w", id, storage.ErrNotFound)
	}
	return story, nil
}

func (m *Manager) OfflineStories() ([]*storage.Story, error) {
	return m.store.OfflineStories()
}

// Status is a snapshot of the client's sync state.
type Status struct {
	Online   bool
	Syncing  bool
	Pending  int
	LoggedIn bool
	User     string
}

func (m *Manager) Status() (Status, error) {
	pending, err := m.queue.Len()
	if err != nil {
		return Status{}, err
	}
	st := Status{
		Online:  m.online(),
		Pending: pending,
		User:    m.userName(),
	}
	if m.engine != nil {
		st.Syncing = m.engine.Running()
	}
	if tok, err := m.tokens.Token(); err == nil && tok.AccessToken != "" {
		st.LoggedIn = true
	}
	return st, nil
}

// SyncNow triggers a pass and waits for its outcome. When the pass uploaded
// anything, the story list is refetched so the server copies replace the
// offline ones the engine dropped.
func (m *Manager) SyncNow(ctx context.Context) (syncer.Outcome, error) {
	if m.dispatcher == nil {
		return syncer.Outcome{}, ErrNoDispatcher
	}
	var out syncer.Outcome
	select {
	case out = <-m.dispatcher.Trigger("manual"):
	case <-ctx.Done():
		return syncer.Outcome{}, ctx.Err()
	}
	if out.Err == nil && out.Result.Succeeded > 0 && m.online() {
		if _, err := m.ListStories(ctx, remote.ListOptions{}); err != nil {
			m.log.Warnf("refreshing stories after sync: %v", err)
		}
	}
	return out, out.Err
}

func (m *Manager) Search(query string, limit int) ([]*search.Result, error) {
	if m.index == nil {
		return nil, ErrSearchDisabled
	}
	return m.index.Search(query, limit)
}

func (m *Manager) online() bool {
	return m.monitor == nil || m.monitor.Online()
}

// noteFailure marks the device offline when err shows the service is out
// of reach.
func (m *Manager) noteFailure(err error) {
	if m.monitor != nil && remote.IsOffline(err) {
		m.monitor.SetOnline(false)
	}
}

func (m *Manager) indexStories(stories ...*storage.Story) {
	if l, ok := m.index.(search.UpdateListener); ok && len(stories) > 0 {
		l.OnStoriesUpdated(stories)
	}
}

func (m *Manager) unindexStory(id string) {
	if l, ok := m.index.(search.DeleteListener); ok {
		l.OnStoryDeleted(id)
	}
}

func isAuthError(err error) bool {
	return errors.Is(err, remote.ErrAuthMissing) || errors.Is(err, remote.ErrUnauthorized)
}

func location(lat, lon *float64) *storage.Location {
	if lat == nil || lon == nil {
		return nil
	}
	return &storage.Location{Lat: *lat, Lon: *lon}
}
