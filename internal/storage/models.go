package storage

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// OfflineIDPrefix namespaces ids minted on the device so they never collide
// with server-issued ids ("story-...").
const OfflineIDPrefix = "offline_"

// IsOfflineID reports whether id was created locally and has not been
// confirmed by the remote service.
func IsOfflineID(id string) bool {
	return strings.HasPrefix(id, OfflineIDPrefix)
}

// Location is a geocoordinate. Latitude and longitude are always present
// together; a story without coordinates has a nil *Location.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type Story struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	PhotoURL    string    `json:"photoUrl,omitempty"`
	Photo       []byte    `json:"photo,omitempty"`
	PhotoType   string    `json:"photoType,omitempty"`
	Location    *Location `json:"location,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	// SavedAt is assigned by the store on every write.
	SavedAt      time.Time `json:"savedAt"`
	IsOffline    bool      `json:"isOffline"`
	FailedUpload bool      `json:"failedUpload,omitempty"`
}

// FavoriteID derives the favorite key from a story id, so favoriting the
// same story twice overwrites instead of duplicating.
func FavoriteID(storyID string) string {
	return "fav_" + storyID
}

type Favorite struct {
	ID      string    `json:"id"`
	StoryID string    `json:"storyId"`
	Story   Story     `json:"story"`
	AddedAt time.Time `json:"addedAt"`
}

type PendingAction struct {
	ID        uint64          `json:"id"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

type Preference struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// CachedResponse is a serialized HTTP response held in a cache partition.
type CachedResponse struct {
	Key      string      `json:"key"`
	Method   string      `json:"method"`
	URL      string      `json:"url"`
	Status   int         `json:"status"`
	Header   http.Header `json:"header"`
	Body     []byte      `json:"body"`
	StoredAt time.Time   `json:"storedAt"`
}

// CacheKey is the request identity used by cache partitions.
func CacheKey(method, url string) string {
	return strings.ToUpper(method) + " " + url
}

var (
	stories = collection[Story]{
		name: "stories",
		key:  func(s *Story) []byte { return []byte(s.ID) },
		indexes: []index[Story]{
			{name: "name", value: func(s *Story) []byte { return []byte(s.Name) }},
			{name: "createdAt", value: func(s *Story) []byte { return timeValue(s.CreatedAt) }},
			{name: "savedAt", value: func(s *Story) []byte { return timeValue(s.SavedAt) }},
		},
	}

	favorites = collection[Favorite]{
		name: "favorites",
		key:  func(f *Favorite) []byte { return []byte(f.ID) },
		indexes: []index[Favorite]{
			{name: "storyId", value: func(f *Favorite) []byte { return []byte(f.StoryID) }},
			{name: "addedAt", value: func(f *Favorite) []byte { return timeValue(f.AddedAt) }},
		},
	}

	pendingActions = collection[PendingAction]{
		name: "pending_actions",
		key:  func(a *PendingAction) []byte { return uint64Key(a.ID) },
		indexes: []index[PendingAction]{
			{name: "type", value: func(a *PendingAction) []byte { return []byte(a.Type) }},
			{name: "timestamp", value: func(a *PendingAction) []byte { return timeValue(a.Timestamp) }},
		},
	}

	preferences = collection[Preference]{
		name: "preferences",
		key:  func(p *Preference) []byte { return []byte(p.Key) },
	}
)
