package pipeline

import "time"

// Event types published by the orchestrator.
const (
	EventContactAnalyzed = "contact.analyzed"
	EventSuggestion      = "suggestion.created"
	EventMessageSent     = "message.sent"
	EventBatchCompleted  = "batch.completed"
	EventRealtimeTick    = "realtime.tick"
	EventRealtimeState   = "realtime.state"
)

// Event is a notification about completed pipeline work.
type Event struct {
	Type    string    `json:"type"`
	Subject string    `json:"subject,omitempty"`
	Time    time.Time `json:"time"`
	Data    any       `json:"data,omitempty"`
}

// EventSink receives events. Publish must not block for long; the
// orchestrator calls it inline.
type EventSink interface {
	Publish(Event)
}

// TickSummary describes one realtime sync pass.
type TickSummary struct {
	Chats    int `json:"chats"`
	Messages int `json:"messages"`
	Failed   int `json:"failed"`
}

func (o *Orchestrator) publish(typ, subject string, data any) {
	if o.events == nil {
		return
	}
	o.events.Publish(Event{Type: typ, Subject: subject, Time: time.Now().UTC(), Data: data})
}
