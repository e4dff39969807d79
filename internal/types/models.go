// internal/types/models.go
package types

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by stores when a keyed row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is the conflict signal for an insert whose key already exists.
	ErrDuplicate = errors.New("duplicate key")
)

// ChatHandle identifies a conversation on the transport.
type ChatHandle struct {
	ChatID       string    `json:"jid"`
	Name         string    `json:"name"`
	LastActivity time.Time `json:"last_message_time"`
	LastMessage  string    `json:"last_message,omitempty"`
}

// ContactHandle is a contact as known to the transport.
type ContactHandle struct {
	JID         string `json:"jid"`
	PhoneNumber string `json:"phone_number"`
	Name        string `json:"name"`
}

type MessageRecord struct {
	MessageID string         `json:"message_id"`
	ChatID    string         `json:"chat_jid"`
	SenderID  string         `json:"sender_jid"`
	Content   string         `json:"content"`
	FromSelf  bool           `json:"from_me"`
	Timestamp time.Time      `json:"timestamp"`
	HasMedia  bool           `json:"has_media"`
	MediaType string         `json:"media_type,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type Contact struct {
	JID                     string         `json:"jid"`
	PhoneNumber             string         `json:"phone_number"`
	Name                    string         `json:"name"`
	CustomerType            string         `json:"customer_type"`
	InterestLevel           string         `json:"interest_level"`
	BuyingStage             string         `json:"buying_stage"`
	Tags                    []string       `json:"tags"`
	LifetimeValuePrediction string         `json:"lifetime_value_prediction,omitempty"`
	ChurnRisk               string         `json:"churn_risk,omitempty"`
	Metadata                map[string]any `json:"metadata,omitempty"`
	CreatedAt               time.Time      `json:"created_at"`
	UpdatedAt               time.Time      `json:"updated_at"`
}

// Analysis is the conversation-analysis payload returned by the insight provider.
type Analysis struct {
	Sentiment      string   `json:"sentiment"`
	Tone           string   `json:"tone"`
	Intent         string   `json:"intent"`
	KeyTopics      []string `json:"key_topics"`
	CustomerMood   string   `json:"customer_mood"`
	UrgencyLevel   string   `json:"urgency_level"`
	SalesStage     string   `json:"sales_stage"`
	NextBestAction string   `json:"next_best_action"`
	Summary        string   `json:"summary"`
}

// AnalysisRecord is one persisted analysis run. Rows are append-only; the
// latest one for a contact is the one with the greatest CreatedAt.
type AnalysisRecord struct {
	ID           AnalysisID `json:"id"`
	ContactID    string     `json:"contact_jid"`
	ChatID       string     `json:"chat_jid"`
	AnalysisType string     `json:"analysis_type"`
	Analysis
	CreatedAt time.Time `json:"created_at"`
}

type StyleProfile struct {
	WritingStyle      string    `json:"writing_style"`
	CommonExpressions []string  `json:"common_expressions"`
	Tone              string    `json:"tone"`
	MessageLength     string    `json:"message_length"`
	EmojiUsage        string    `json:"emoji_usage"`
	PunctuationStyle  string    `json:"punctuation_style"`
	GreetingStyle     string    `json:"greeting_style"`
	ClosingStyle      string    `json:"closing_style"`
	UpdatedAt         time.Time `json:"updated_at,omitempty"`
}

type Categorization struct {
	CustomerType            string   `json:"customer_type"`
	InterestLevel           string   `json:"interest_level"`
	BuyingStage             string   `json:"buying_stage"`
	Tags                    []string `json:"tags"`
	LifetimeValuePrediction string   `json:"lifetime_value_prediction"`
	ChurnRisk               string   `json:"churn_risk"`
}

type SuggestedAction struct {
	ActionType       string `json:"action_type"`
	Priority         string `json:"priority"`
	Timing           string `json:"timing"`
	Reasoning        string `json:"reasoning"`
	MessageIntent    string `json:"message_intent,omitempty"`
	SuggestedContent string `json:"suggested_content,omitempty"`
	ExpectedOutcome  string `json:"expected_outcome"`
}

type GeneratedMessage struct {
	Message    string  `json:"message"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// GenerateRequest conditions a generated reply.
type GenerateRequest struct {
	History        []*MessageRecord
	Style          *StyleProfile
	Intent         string
	SpecificPoints []string
}

// Entities are facts extracted from a single message.
type Entities struct {
	Values    []EntityValue  `json:"values"`
	Products  []string       `json:"products"`
	Dates     []EntityDate   `json:"dates"`
	People    []string       `json:"people"`
	Companies []string       `json:"companies"`
	Locations []string       `json:"locations"`
	Actions   []EntityAction `json:"actions"`
}

type EntityValue struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
	Context  string  `json:"context"`
}

type EntityDate struct {
	Date    string `json:"date"`
	Context string `json:"context"`
}

type EntityAction struct {
	Action   string `json:"action"`
	Deadline string `json:"deadline"`
}

const (
	InteractionNote    = "note"
	InteractionMessage = "message"

	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// InteractionLog is an append-only audit entry for an action taken on behalf
// of a contact.
type InteractionLog struct {
	ID          InteractionID  `json:"id"`
	ContactID   string         `json:"contact_jid"`
	Type        string         `json:"interaction_type"`
	Direction   string         `json:"direction"`
	Content     string         `json:"content"`
	AIGenerated bool           `json:"ai_generated"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// PipelineStageRecord holds the current sales stage of a contact. Value is nil
// until something assigns a monetary value.
type PipelineStageRecord struct {
	ContactID string    `json:"contact_jid"`
	Stage     string    `json:"stage"`
	Value     *float64  `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PipelineEntry is a pipeline row joined with its contact for dashboards.
type PipelineEntry struct {
	PipelineStageRecord
	Name         string `json:"name"`
	PhoneNumber  string `json:"phone_number"`
	CustomerType string `json:"customer_type"`
}

// DispatchResult is the transport's answer to a single send.
type DispatchResult struct {
	Success   bool           `json:"success"`
	MessageID string         `json:"message_id,omitempty"`
	Raw       map[string]any `json:"raw,omitempty"`
}

type DashboardMetrics struct {
	TotalContacts  int64              `json:"total_contacts"`
	MessagesToday  int64              `json:"messages_today"`
	ActiveContacts int64              `json:"active_contacts"`
	Pipeline       map[string]float64 `json:"pipeline"`
}

type ContactFilter struct {
	CustomerType  string
	InterestLevel string
	Tags          []string
	Limit         int
}

type MessageFilter struct {
	ChatID   string
	FromSelf *bool
	After    time.Time
	Before   time.Time
	Limit    int
}
