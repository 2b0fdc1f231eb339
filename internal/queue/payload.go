package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pders01/storykeep/internal/storage"
)

// Kind is the persisted discriminator of a pending action.
type Kind string

const (
	KindAddStory    Kind = "ADD_STORY"
	KindDeleteStory Kind = "DELETE_STORY"
)

// Payload is one of AddStory, DeleteStory or Unknown.
type Payload interface {
	Kind() Kind
	isPayload()
}

// AddStory replays the creation of a story made while the remote service
// was unreachable. The photo is either the raw bytes or a URL that must be
// fetched again before upload.
type AddStory struct {
	StoryID     string            `json:"id"`
	Name        string            `json:"name,omitempty"`
	Description string            `json:"description"`
	Photo       []byte            `json:"photo,omitempty"`
	PhotoType   string            `json:"photoType,omitempty"`
	PhotoURL    string            `json:"photoUrl,omitempty"`
	Location    *storage.Location `json:"location,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}

func (AddStory) Kind() Kind { return KindAddStory }
func (AddStory) isPayload() {}

type DeleteStory struct {
	StoryID string `json:"id"`
}

func (DeleteStory) Kind() Kind { return KindDeleteStory }
func (DeleteStory) isPayload() {}

// Unknown carries an action whose kind this build does not understand, or
// whose data could not be decoded. It is skipped during sync.
type Unknown struct {
	Type string
	Raw  json.RawMessage
	Err  error
}

func (u Unknown) Kind() Kind { return Kind(u.Type) }
func (Unknown) isPayload()   {}

func encode(p Payload) (string, json.RawMessage, error) {
	if _, ok := p.(Unknown); ok {
		return "", nil, fmt.Errorf("cannot enqueue action of unknown kind %q", p.Kind())
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", nil, fmt.Errorf("encoding %s payload: %w", p.Kind(), err)
	}
	return string(p.Kind()), data, nil
}

func decode(typ string, data json.RawMessage) Payload {
	switch Kind(typ) {
	case KindAddStory:
		var p AddStory
		if err := json.Unmarshal(data, &p); err != nil {
			return Unknown{Type: typ, Raw: data, Err: err}
		}
		return p
	case KindDeleteStory:
		var p DeleteStory
		if err := json.Unmarshal(data, &p); err != nil {
			return Unknown{Type: typ, Raw: data, Err: err}
		}
		return p
	default:
		return Unknown{Type: typ, Raw: data}
	}
}
