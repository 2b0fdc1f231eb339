package remote

import (
	"time"

	"github.com/pders01/storykeep/internal/storage"
)

// Story is the wire shape of a story returned by the service.
type Story struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	PhotoURL    string    `json:"photoUrl"`
	CreatedAt   time.Time `json:"createdAt"`
	Lat         *float64  `json:"lat"`
	Lon         *float64  `json:"lon"`
}

// ToStorage converts the wire story to the local model. Coordinates are
// kept only when both are present.
func (s Story) ToStorage() *storage.Story {
	out := &storage.Story{
		ID:          s.ID,
		Name:        s.Name,
		Description: s.Description,
		PhotoURL:    s.PhotoURL,
		CreatedAt:   s.CreatedAt,
	}
	if s.Lat != nil && s.Lon != nil {
		out.Location = &storage.Location{Lat: *s.Lat, Lon: *s.Lon}
	}
	return out
}

type ListOptions struct {
	Page     int
	Size     int
	Location bool
}

// NewStory is the content of a story upload.
type NewStory struct {
	Description string
	Photo       []byte
	// PhotoName is the multipart filename; derived from the content type
	// when empty.
	PhotoName string
	Location  *storage.Location
}

type LoginResult struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Token  string `json:"token"`
}

// PushSubscription is a web push subscription as registered with the
// notification endpoint.
type PushSubscription struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

type envelope struct {
	Error       bool         `json:"error"`
	Message     string       `json:"message"`
	ListStory   []Story      `json:"listStory,omitempty"`
	Story       *Story       `json:"story,omitempty"`
	LoginResult *LoginResult `json:"loginResult,omitempty"`
}
