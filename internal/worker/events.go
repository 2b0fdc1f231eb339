package worker

import "net/http"

// EventKind keys the dispatch table.
type EventKind string

const (
	KindInstall           EventKind = "install"
	KindActivate          EventKind = "activate"
	KindFetch             EventKind = "fetch"
	KindPush              EventKind = "push"
	KindNotificationClick EventKind = "notificationclick"
	KindMessage           EventKind = "message"
	KindSync              EventKind = "sync"
)

// Message types understood by the worker.
const (
	MessageSyncStories = "SYNC_STORIES"
	MessageSkipWaiting = "SKIP_WAITING"
)

// SyncTag is the background sync registration that replays the queue.
const SyncTag = "story-sync"

type Event interface {
	Kind() EventKind
}

type Install struct{}

type Activate struct{}

type Fetch struct {
	Request *http.Request
}

// Push carries the raw push payload. It may be JSON or plain text.
type Push struct {
	Data []byte
}

type NotificationClick struct {
	Action string
	URL    string
}

type Message struct {
	Type string `json:"type"`
}

type BackgroundSync struct {
	Tag string
}

func (Install) Kind() EventKind           { return KindInstall }
func (Activate) Kind() EventKind          { return KindActivate }
func (Fetch) Kind() EventKind             { return KindFetch }
func (Push) Kind() EventKind              { return KindPush }
func (NotificationClick) Kind() EventKind { return KindNotificationClick }
func (Message) Kind() EventKind           { return KindMessage }
func (BackgroundSync) Kind() EventKind    { return KindSync }
