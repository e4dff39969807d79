// internal/types/interfaces.go
package types

import (
	"context"
)

// Transport is the messaging network the pipeline reads from and writes to.
type Transport interface {
	ListChats(ctx context.Context, limit int, sortBy string) ([]ChatHandle, error)
	ListMessages(ctx context.Context, chatID string, limit int) ([]*MessageRecord, error)
	Send(ctx context.Context, recipient, text string) (*DispatchResult, error)
	SearchContacts(ctx context.Context, query string) ([]ContactHandle, error)
}

// TypingNotifier is implemented by transports that can show a "typing..."
// indicator to the recipient.
type TypingNotifier interface {
	NotifyTyping(ctx context.Context, recipient string) error
}

type InsightProvider interface {
	AnalyzeConversation(ctx context.Context, messages []*MessageRecord) (*Analysis, error)
	LearnStyle(ctx context.Context, samples []string) (*StyleProfile, error)
	GenerateMessage(ctx context.Context, req GenerateRequest) (*GeneratedMessage, error)
	SuggestNextAction(ctx context.Context, contact *Contact, analysis *AnalysisRecord) (*SuggestedAction, error)
	CategorizeContact(ctx context.Context, contact *Contact, messages []*MessageRecord) (*Categorization, error)
	ExtractEntities(ctx context.Context, message string) (*Entities, error)
}

// ConversationStore is the durable state the pipeline reads and writes.
// InsertMessage returns ErrDuplicate when the message id is already stored;
// the Get* methods return ErrNotFound when nothing matches.
type ConversationStore interface {
	UpsertContact(ctx context.Context, contact *Contact) (*Contact, error)
	GetContact(ctx context.Context, jid string) (*Contact, error)
	InsertMessage(ctx context.Context, msg *MessageRecord) error
	GetMessages(ctx context.Context, chatID string, limit int) ([]*MessageRecord, error)
	SaveAnalysis(ctx context.Context, rec *AnalysisRecord) error
	GetLatestAnalysis(ctx context.Context, contactID string) (*AnalysisRecord, error)
	SaveStyle(ctx context.Context, contactID string, style *StyleProfile) error
	GetStyle(ctx context.Context, contactID string) (*StyleProfile, error)
	UpdatePipelineStage(ctx context.Context, contactID, stage string, value *float64) error
	LogInteraction(ctx context.Context, entry *InteractionLog) error
}

// DashboardStore holds the read-only aggregate queries behind the API.
type DashboardStore interface {
	ListContacts(ctx context.Context, filter ContactFilter) ([]*Contact, error)
	SearchMessages(ctx context.Context, query string, filter MessageFilter) ([]*MessageRecord, error)
	GetPipeline(ctx context.Context) ([]*PipelineEntry, error)
	GetInteractions(ctx context.Context, contactID string, limit int) ([]*InteractionLog, error)
	DashboardMetrics(ctx context.Context) (*DashboardMetrics, error)
}
