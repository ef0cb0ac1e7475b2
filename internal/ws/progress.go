package ws

import (
	"encoding/json"
	"time"
)

// ProgressEvent mirrors the task state the scheduler tracks, flattened for
// the dashboard: which task, which source, how far along, and a human
// message.
type ProgressEvent struct {
	Type      string `json:"type"`
	Task      string `json:"task"`
	Source    string `json:"source,omitempty"`
	Message   string `json:"message,omitempty"`
	Current   int    `json:"current"`
	Total     int    `json:"total"`
	Timestamp string `json:"timestamp"`
}

// Notifier turns progress callbacks into hub broadcasts. A nil notifier is
// safe to call so the pipeline never needs to care whether a dashboard is
// attached.
type Notifier struct {
	hub *Hub
}

func NewNotifier(hub *Hub) *Notifier {
	return &Notifier{hub: hub}
}

func (n *Notifier) Publish(ev ProgressEvent) {
	if n == nil || n.hub == nil {
		return
	}
	if ev.Type == "" {
		ev.Type = "progress"
	}
	ev.Timestamp = time.Now().UTC().Format(time.RFC3339)
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	n.hub.Broadcast(b)
}
