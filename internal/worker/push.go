package worker

import "encoding/json"

// Notification is what a push event asks the host to display.
type Notification struct {
	Title   string               `json:"title"`
	Body    string               `json:"body"`
	Icon    string               `json:"icon"`
	Badge   string               `json:"badge"`
	Tag     string               `json:"tag"`
	Data    NotificationData     `json:"data"`
	Vibrate []int                `json:"vibrate,omitempty"`
	Actions []NotificationAction `json:"actions,omitempty"`
}

type NotificationData struct {
	URL string `json:"url"`
}

type NotificationAction struct {
	Action string `json:"action"`
	Title  string `json:"title"`
	Icon   string `json:"icon,omitempty"`
}

const (
	ActionView  = "view"
	ActionClose = "close"
)

func defaultNotification() Notification {
	return Notification{
		Title: "Story App",
		Body:  "There is a new story for you!",
		Icon:  "/icon-192x192.png",
		Badge: "/icon-72x72.png",
		Tag:   "story-notification",
		Data:  NotificationData{URL: "/"},
	}
}

// parsePush merges a JSON payload over the defaults. A payload that is not
// a JSON object becomes the body text.
func parsePush(data []byte) Notification {
	n := defaultNotification()
	if len(data) > 0 {
		merged := n
		if err := json.Unmarshal(data, &merged); err != nil {
			n.Body = string(data)
		} else {
			n = merged
		}
	}
	if n.Data.URL == "" {
		n.Data.URL = "/"
	}
	n.Vibrate = []int{100, 50, 100}
	n.Actions = []NotificationAction{
		{Action: ActionView, Title: "View story", Icon: "/icon-192x192.png"},
		{Action: ActionClose, Title: "Close", Icon: "/icon-192x192.png"},
	}
	return n
}
