package offline

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/storykeep/internal/connectivity"
	"github.com/pders01/storykeep/internal/queue"
	"github.com/pders01/storykeep/internal/remote"
	"github.com/pders01/storykeep/internal/search"
	"github.com/pders01/storykeep/internal/storage"
	"github.com/pders01/storykeep/internal/syncer"
)

var pngPhoto = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 32)...)

type fakeRemote struct {
	mu      sync.Mutex
	calls   []string
	addErr  error
	delErr  error
	listErr error
	stories []remote.Story
}

func (f *fakeRemote) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeRemote) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeRemote) Register(ctx context.Context, name, email, password string) error {
	f.record("register:" + email)
	return nil
}

func (f *fakeRemote) Login(ctx context.Context, email, password string) (*remote.LoginResult, error) {
	f.record("login:" + email)
	if password != "correct-horse" {
		return nil, &remote.APIError{Status: 401, Message: "Invalid password"}
	}
	return &remote.LoginResult{UserID: "user-1", Name: "Dimas", Token: "tok-123"}, nil
}

func (f *fakeRemote) ListStories(ctx context.Context, opts remote.ListOptions) ([]remote.Story, error) {
	f.record("list")
	return f.stories, f.listErr
}

func (f *fakeRemote) GetStory(ctx context.Context, id string) (*remote.Story, error) {
	f.record("get:" + id)
	for _, s := range f.stories {
		if s.ID == id {
			return &s, nil
		}
	}
	return nil, &remote.APIError{Status: 404, Message: "Story not found"}
}

func (f *fakeRemote) AddStory(ctx context.Context, s remote.NewStory) error {
	f.record("add:" + s.Description)
	return f.addErr
}

func (f *fakeRemote) AddStoryGuest(ctx context.Context, s remote.NewStory) error {
	f.record("guest:" + s.Description)
	return f.addErr
}

func (f *fakeRemote) DeleteStory(ctx context.Context, id string) error {
	f.record("delete:" + id)
	return f.delErr
}

type fixture struct {
	store   *storage.Store
	queue   *queue.Queue
	remote  *fakeRemote
	monitor *connectivity.Monitor
	index   *search.BleveEngine
	manager *Manager
}

func newFixture(t *testing.T, online bool) *fixture {
	t.Helper()
	dir := t.TempDir()
	store := storage.Open(filepath.Join(dir, "test.db"), storage.Options{})
	t.Cleanup(func() { _ = store.Close() })

	index, err := search.NewBleveEngine(store, filepath.Join(dir, "index.bleve"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })

	f := &fixture{
		store:   store,
		queue:   queue.New(store),
		remote:  &fakeRemote{},
		monitor: connectivity.NewMonitor(online),
		index:   index,
	}
	f.manager = NewManager(Deps{
		Store:   f.store,
		Queue:   f.queue,
		Remote:  f.remote,
		Monitor: f.monitor,
		Index:   f.index,
	})
	return f
}

func (f *fixture) pending(t *testing.T) []queue.Action {
	t.Helper()
	actions, err := f.queue.Drain()
	require.NoError(t, err)
	return actions
}

func TestAddStoryOnlineUploads(t *testing.T) {
	f := newFixture(t, true)

	res, err := f.manager.AddStory(context.Background(), StoryInput{Description: "beach", Photo: pngPhoto})
	require.NoError(t, err)
	assert.False(t, res.Queued)
	assert.Nil(t, res.Story)
	assert.Equal(t, []string{"add:beach"}, f.remote.Calls())
	assert.Empty(t, f.pending(t))
}

func TestAddStoryOfflineQueues(t *testing.T) {
	f := newFixture(t, false)
	lat, lon := -8.65, 115.2

	res, err := f.manager.AddStory(context.Background(), StoryInput{
		Description: "rice terraces",
		Photo:       pngPhoto,
		Lat:         &lat,
		Lon:         &lon,
	})
	require.NoError(t, err)
	require.True(t, res.Queued)
	assert.Empty(t, f.remote.Calls())

	story := res.Story
	assert.True(t, storage.IsOfflineID(story.ID))
	assert.True(t, story.IsOffline)
	assert.False(t, story.FailedUpload)
	assert.Equal(t, "image/png", story.PhotoType)
	require.NotNil(t, story.Location)
	assert.Equal(t, lat, story.Location.Lat)

	saved, err := f.store.GetStory(story.ID)
	require.NoError(t, err)
	require.NotNil(t, saved)

	actions := f.pending(t)
	require.Len(t, actions, 1)
	add, ok := actions[0].Payload.(queue.AddStory)
	require.True(t, ok)
	assert.Equal(t, story.ID, add.StoryID)
	assert.Equal(t, pngPhoto, add.Photo)

	results, err := f.manager.Search("terraces", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, story.ID, results[0].Story.ID)
}

func TestAddStoryFailedUploadFallsBack(t *testing.T) {
	f := newFixture(t, true)
	f.remote.addErr = &remote.APIError{Status: 500, Message: "boom"}

	res, err := f.manager.AddStory(context.Background(), StoryInput{Description: "market", Photo: pngPhoto})
	require.NoError(t, err)
	require.True(t, res.Queued)
	assert.True(t, res.Story.FailedUpload)
	assert.Len(t, f.pending(t), 1)
	assert.True(t, f.monitor.Online(), "a server error does not mean offline")
}

func TestAddStoryUnreachableMarksOffline(t *testing.T) {
	f := newFixture(t, true)
	f.remote.addErr = remote.ErrUnreachable

	res, err := f.manager.AddStory(context.Background(), StoryInput{Description: "market", Photo: pngPhoto})
	require.NoError(t, err)
	assert.True(t, res.Queued)
	assert.False(t, f.monitor.Online())
}

func TestAddStoryAuthErrorNotQueued(t *testing.T) {
	for _, authErr := range []error{remote.ErrAuthMissing, &remote.APIError{Status: 401, Message: "Missing authentication"}} {
		f := newFixture(t, true)
		f.remote.addErr = authErr

		_, err := f.manager.AddStory(context.Background(), StoryInput{Description: "x", Photo: pngPhoto})
		assert.Error(t, err)
		assert.Empty(t, f.pending(t))
		list, err := f.store.GetAllStories()
		require.NoError(t, err)
		assert.Empty(t, list)
	}
}

func TestAddStoryValidation(t *testing.T) {
	f := newFixture(t, true)

	_, err := f.manager.AddStory(context.Background(), StoryInput{Description: "", Photo: []byte("not an image")})
	require.Error(t, err)
	assert.Empty(t, f.remote.Calls())
	assert.Empty(t, f.pending(t))
}

func TestAddStoryGuest(t *testing.T) {
	f := newFixture(t, true)
	_, err := f.manager.AddStory(context.Background(), StoryInput{Description: "hi", Photo: pngPhoto, Guest: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"guest:hi"}, f.remote.Calls())

	f.monitor.SetOnline(false)
	_, err = f.manager.AddStory(context.Background(), StoryInput{Description: "hi", Photo: pngPhoto, Guest: true})
	assert.ErrorIs(t, err, ErrGuestOffline)
	assert.Empty(t, f.pending(t))
}

func TestDeleteStory(t *testing.T) {
	t.Run("online deletes remotely", func(t *testing.T) {
		f := newFixture(t, true)
		require.NoError(t, f.store.PutStory(&storage.Story{ID: "story-1", Description: "a"}))

		res, err := f.manager.DeleteStory(context.Background(), "story-1")
		require.NoError(t, err)
		assert.False(t, res.Queued)
		assert.Equal(t, []string{"delete:story-1"}, f.remote.Calls())

		got, err := f.store.GetStory("story-1")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("offline queues", func(t *testing.T) {
		f := newFixture(t, false)
		require.NoError(t, f.store.PutStory(&storage.Story{ID: "story-1", Description: "a"}))

		res, err := f.manager.DeleteStory(context.Background(), "story-1")
		require.NoError(t, err)
		assert.True(t, res.Queued)
		actions := f.pending(t)
		require.Len(t, actions, 1)
		assert.Equal(t, queue.DeleteStory{StoryID: "story-1"}, actions[0].Payload)
	})

	t.Run("remote failure queues", func(t *testing.T) {
		f := newFixture(t, true)
		f.remote.delErr = errors.New("gateway timeout")

		res, err := f.manager.DeleteStory(context.Background(), "story-9")
		require.NoError(t, err)
		assert.True(t, res.Queued)
		assert.Len(t, f.pending(t), 1)
	})

	t.Run("offline story is local only", func(t *testing.T) {
		f := newFixture(t, false)
		added, err := f.manager.AddStory(context.Background(), StoryInput{Description: "draft", Photo: pngPhoto})
		require.NoError(t, err)
		_, err = f.queue.Enqueue(queue.DeleteStory{StoryID: "story-2"})
		require.NoError(t, err)

		f.monitor.SetOnline(true)
		res, err := f.manager.DeleteStory(context.Background(), added.Story.ID)
		require.NoError(t, err)
		assert.False(t, res.Queued)
		assert.Equal(t, 1, res.Discarded)
		assert.Empty(t, f.remote.Calls())

		actions := f.pending(t)
		require.Len(t, actions, 1)
		assert.Equal(t, queue.KindDeleteStory, actions[0].Kind())

		results, err := f.manager.Search("draft", 10)
		require.NoError(t, err)
		assert.Empty(t, results)
	})
}

func TestListStories(t *testing.T) {
	f := newFixture(t, true)
	now := time.Now().UTC().Truncate(time.Second)
	f.remote.stories = []remote.Story{
		{ID: "story-1", Name: "Ayu", Description: "coffee", CreatedAt: now},
		{ID: "story-2", Name: "Dimas", Description: "sunset", CreatedAt: now.Add(-time.Hour)},
	}
	require.NoError(t, f.store.PutStory(&storage.Story{ID: "story-1", Name: "Ayu", Description: "edited locally", CreatedAt: now}))

	res, err := f.manager.ListStories(context.Background(), remote.ListOptions{Size: 10})
	require.NoError(t, err)
	assert.False(t, res.Local)
	assert.Len(t, res.Stories, 2)

	kept, err := f.store.GetStory("story-1")
	require.NoError(t, err)
	assert.Equal(t, "edited locally", kept.Description, "existing stories are not overwritten")

	f.remote.listErr = remote.ErrUnreachable
	res, err = f.manager.ListStories(context.Background(), remote.ListOptions{})
	require.NoError(t, err)
	assert.True(t, res.Local)
	require.Len(t, res.Stories, 2)
	assert.Equal(t, "story-1", res.Stories[0].ID)
	assert.False(t, f.monitor.Online())

	calls := len(f.remote.Calls())
	res, err = f.manager.ListStories(context.Background(), remote.ListOptions{})
	require.NoError(t, err)
	assert.True(t, res.Local)
	assert.Len(t, f.remote.Calls(), calls, "offline listing does not hit the service")
}

func TestGetStoryFallsBack(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.manager.GetStory(context.Background(), "story-1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, f.store.PutStory(&storage.Story{ID: "story-1", Description: "a"}))
	story, err := f.manager.GetStory(context.Background(), "story-1")
	require.NoError(t, err)
	assert.Equal(t, "a", story.Description)
}

func TestFavorites(t *testing.T) {
	f := newFixture(t, true)
	f.remote.stories = []remote.Story{{ID: "story-7", Name: "Ayu", Description: "remote only"}}
	require.NoError(t, f.store.PutStory(&storage.Story{ID: "story-1", Description: "local"}))

	_, err := f.manager.AddFavorite(context.Background(), "story-1")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	fav, err := f.manager.AddFavorite(context.Background(), "story-7")
	require.NoError(t, err)
	assert.Equal(t, "remote only", fav.Story.Description)

	favs, err := f.manager.Favorites()
	require.NoError(t, err)
	require.Len(t, favs, 2)
	assert.Equal(t, "story-7", favs[0].StoryID)

	ok, err := f.manager.IsFavorite("story-1")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, f.manager.RemoveFavorite("story-1"))
	ok, err = f.manager.IsFavorite("story-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, f.manager.ClearFavorites())
	favs, err = f.manager.Favorites()
	require.NoError(t, err)
	assert.Empty(t, favs)
}

func TestLoginLogout(t *testing.T) {
	f := newFixture(t, true)

	_, err := f.manager.Tokens().Token()
	assert.ErrorIs(t, err, remote.ErrAuthMissing)

	_, err = f.manager.Login(context.Background(), "dimas@example.org", "wrong-password")
	assert.ErrorIs(t, err, remote.ErrUnauthorized)

	user, err := f.manager.Login(context.Background(), "dimas@example.org", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, "Dimas", user.Name)

	tok, err := f.manager.Tokens().Token()
	require.NoError(t, err)
	assert.Equal(t, "tok-123", tok.AccessToken)

	st, err := f.manager.Status()
	require.NoError(t, err)
	assert.True(t, st.LoggedIn)
	assert.Equal(t, "Dimas", st.User)

	require.NoError(t, f.manager.Logout())
	_, err = f.manager.Tokens().Token()
	assert.ErrorIs(t, err, remote.ErrAuthMissing)
}

func TestTokenOverride(t *testing.T) {
	f := newFixture(t, true)
	tok, err := NewTokenSource(f.store, "from-config").Token()
	require.NoError(t, err)
	assert.Equal(t, "from-config", tok.AccessToken)
}

func TestRegisterValidates(t *testing.T) {
	f := newFixture(t, true)
	assert.Error(t, f.manager.Register(context.Background(), "D", "not-an-email", "short"))
	require.NoError(t, f.manager.Register(context.Background(), "Dimas", "dimas@example.org", "correct-horse"))
	assert.Equal(t, []string{"register:dimas@example.org"}, f.remote.Calls())
}

type fakeDispatcher struct{ reasons []string }

func (d *fakeDispatcher) Trigger(reason string) <-chan syncer.Outcome {
	d.reasons = append(d.reasons, reason)
	ch := make(chan syncer.Outcome, 1)
	ch <- syncer.Outcome{Reason: reason, Result: syncer.Result{Attempted: 1, Succeeded: 1}}
	return ch
}

func TestSyncNowAndStatus(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.manager.SyncNow(context.Background())
	assert.ErrorIs(t, err, ErrNoDispatcher)

	d := &fakeDispatcher{}
	f.manager.dispatcher = d
	out, err := f.manager.SyncNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, out.Result.Succeeded)
	assert.Equal(t, []string{"manual"}, d.reasons)

	_, err = f.queue.Enqueue(queue.DeleteStory{StoryID: "story-1"})
	require.NoError(t, err)
	st, err := f.manager.Status()
	require.NoError(t, err)
	assert.False(t, st.Online)
	assert.Equal(t, 1, st.Pending)
	assert.False(t, st.LoggedIn)
}

func TestSyncNowRefreshesStories(t *testing.T) {
	f := newFixture(t, true)
	f.manager.dispatcher = &fakeDispatcher{}
	f.remote.stories = []remote.Story{{ID: "story-42", Name: "Dimas", Description: "beach"}}

	_, err := f.manager.SyncNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"list"}, f.remote.Calls())

	local, err := f.store.GetStory("story-42")
	require.NoError(t, err)
	require.NotNil(t, local, "uploaded story is cached under its server id")
	assert.Equal(t, "beach", local.Description)
}

func TestSearchDisabled(t *testing.T) {
	f := newFixture(t, true)
	f.manager.index = nil
	_, err := f.manager.Search("beach", 5)
	assert.ErrorIs(t, err, ErrSearchDisabled)
}
