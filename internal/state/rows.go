package state

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/user/chatpilot/internal/types"
)

type contactRow struct {
	JID                     string         `gorm:"column:jid;primaryKey"`
	PhoneNumber             string         `gorm:"column:phone_number;index"`
	Name                    string         `gorm:"column:name"`
	CustomerType            string         `gorm:"column:customer_type;not null;default:lead;index"`
	InterestLevel           string         `gorm:"column:interest_level;not null;default:medium"`
	BuyingStage             string         `gorm:"column:buying_stage;not null;default:awareness"`
	Tags                    datatypes.JSON `gorm:"column:tags"`
	LifetimeValuePrediction string         `gorm:"column:lifetime_value_prediction"`
	ChurnRisk               string         `gorm:"column:churn_risk"`
	Metadata                datatypes.JSON `gorm:"column:metadata"`
	CreatedAt               time.Time      `gorm:"column:created_at;not null"`
	UpdatedAt               time.Time      `gorm:"column:updated_at;not null;index"`
}

func (contactRow) TableName() string { return "contacts" }

type messageRow struct {
	ID        uint           `gorm:"column:id;primaryKey;autoIncrement"`
	MessageID string         `gorm:"column:message_id;not null;uniqueIndex"`
	ChatID    string         `gorm:"column:chat_jid;not null;index:idx_messages_chat_ts,priority:1"`
	SenderID  string         `gorm:"column:sender_jid;index"`
	Content   string         `gorm:"column:content"`
	FromSelf  bool           `gorm:"column:from_me;not null;default:false"`
	Timestamp time.Time      `gorm:"column:timestamp;not null;index:idx_messages_chat_ts,priority:2"`
	HasMedia  bool           `gorm:"column:has_media;not null;default:false"`
	MediaType string         `gorm:"column:media_type"`
	Metadata  datatypes.JSON `gorm:"column:metadata"`
	CreatedAt time.Time      `gorm:"column:created_at"`
}

func (messageRow) TableName() string { return "messages" }

type analysisRow struct {
	ID           string         `gorm:"column:id;primaryKey"`
	ContactID    string         `gorm:"column:contact_jid;not null;index:idx_analysis_contact_created,priority:1"`
	ChatID       string         `gorm:"column:chat_jid"`
	AnalysisType string         `gorm:"column:analysis_type;not null"`
	Sentiment    string         `gorm:"column:sentiment"`
	Tone         string         `gorm:"column:tone"`
	Intent       string         `gorm:"column:intent"`
	KeyTopics    datatypes.JSON `gorm:"column:key_topics"`
	Insights     datatypes.JSON `gorm:"column:insights"`
	CreatedAt    time.Time      `gorm:"column:created_at;not null;index:idx_analysis_contact_created,priority:2"`
}

func (analysisRow) TableName() string { return "ai_analysis" }

type interactionRow struct {
	ID          string         `gorm:"column:id;primaryKey"`
	ContactID   string         `gorm:"column:contact_jid;not null;index:idx_interactions_contact_ts,priority:1"`
	Type        string         `gorm:"column:interaction_type;not null"`
	Direction   string         `gorm:"column:direction"`
	Content     string         `gorm:"column:content"`
	AIGenerated bool           `gorm:"column:ai_generated;not null;default:false"`
	Metadata    datatypes.JSON `gorm:"column:metadata"`
	Timestamp   time.Time      `gorm:"column:timestamp;not null;index:idx_interactions_contact_ts,priority:2"`
}

func (interactionRow) TableName() string { return "interactions" }

type styleRow struct {
	ContactID         string         `gorm:"column:contact_jid;primaryKey"`
	WritingStyle      string         `gorm:"column:writing_style"`
	CommonExpressions datatypes.JSON `gorm:"column:common_expressions"`
	Tone              string         `gorm:"column:tone"`
	MessageLength     string         `gorm:"column:message_length"`
	EmojiUsage        string         `gorm:"column:emoji_usage"`
	PunctuationStyle  string         `gorm:"column:punctuation_style"`
	GreetingStyle     string         `gorm:"column:greeting_style"`
	ClosingStyle      string         `gorm:"column:closing_style"`
	UpdatedAt         time.Time      `gorm:"column:updated_at;not null"`
}

func (styleRow) TableName() string { return "conversation_style" }

type pipelineRow struct {
	ContactID string    `gorm:"column:contact_jid;primaryKey"`
	Stage     string    `gorm:"column:stage;not null;index"`
	Value     *float64  `gorm:"column:value"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;index"`
}

func (pipelineRow) TableName() string { return "pipeline" }

// analysisInsights carries the analysis fields without dedicated columns.
type analysisInsights struct {
	CustomerMood   string `json:"customer_mood"`
	UrgencyLevel   string `json:"urgency_level"`
	SalesStage     string `json:"sales_stage"`
	NextBestAction string `json:"next_best_action"`
	Summary        string `json:"summary"`
}

func toJSON(v any) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil || string(b) == "null" {
		return nil
	}
	return datatypes.JSON(b)
}

func fromJSON[T any](raw datatypes.JSON) T {
	var out T
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return out
}

func newContactRow(c *types.Contact) *contactRow {
	tags := c.Tags
	if tags == nil {
		tags = []string{}
	}
	meta := c.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	return &contactRow{
		JID:                     c.JID,
		PhoneNumber:             c.PhoneNumber,
		Name:                    c.Name,
		CustomerType:            orDefault(c.CustomerType, "lead"),
		InterestLevel:           orDefault(c.InterestLevel, "medium"),
		BuyingStage:             orDefault(c.BuyingStage, "awareness"),
		Tags:                    toJSON(tags),
		LifetimeValuePrediction: c.LifetimeValuePrediction,
		ChurnRisk:               c.ChurnRisk,
		Metadata:                toJSON(meta),
	}
}

func (r *contactRow) toContact() *types.Contact {
	tags := fromJSON[[]string](r.Tags)
	if tags == nil {
		tags = []string{}
	}
	return &types.Contact{
		JID:                     r.JID,
		PhoneNumber:             r.PhoneNumber,
		Name:                    r.Name,
		CustomerType:            r.CustomerType,
		InterestLevel:           r.InterestLevel,
		BuyingStage:             r.BuyingStage,
		Tags:                    tags,
		LifetimeValuePrediction: r.LifetimeValuePrediction,
		ChurnRisk:               r.ChurnRisk,
		Metadata:                fromJSON[map[string]any](r.Metadata),
		CreatedAt:               r.CreatedAt,
		UpdatedAt:               r.UpdatedAt,
	}
}

func newMessageRow(m *types.MessageRecord) *messageRow {
	return &messageRow{
		MessageID: m.MessageID,
		ChatID:    m.ChatID,
		SenderID:  m.SenderID,
		Content:   m.Content,
		FromSelf:  m.FromSelf,
		Timestamp: m.Timestamp.UTC(),
		HasMedia:  m.HasMedia,
		MediaType: m.MediaType,
		Metadata:  toJSON(m.Metadata),
	}
}

func (r *messageRow) toRecord() *types.MessageRecord {
	return &types.MessageRecord{
		MessageID: r.MessageID,
		ChatID:    r.ChatID,
		SenderID:  r.SenderID,
		Content:   r.Content,
		FromSelf:  r.FromSelf,
		Timestamp: r.Timestamp,
		HasMedia:  r.HasMedia,
		MediaType: r.MediaType,
		Metadata:  fromJSON[map[string]any](r.Metadata),
	}
}

func (r *analysisRow) toRecord() *types.AnalysisRecord {
	ins := fromJSON[analysisInsights](r.Insights)
	return &types.AnalysisRecord{
		ID:           types.AnalysisID(r.ID),
		ContactID:    r.ContactID,
		ChatID:       r.ChatID,
		AnalysisType: r.AnalysisType,
		Analysis: types.Analysis{
			Sentiment:      r.Sentiment,
			Tone:           r.Tone,
			Intent:         r.Intent,
			KeyTopics:      fromJSON[[]string](r.KeyTopics),
			CustomerMood:   ins.CustomerMood,
			UrgencyLevel:   ins.UrgencyLevel,
			SalesStage:     ins.SalesStage,
			NextBestAction: ins.NextBestAction,
			Summary:        ins.Summary,
		},
		CreatedAt: r.CreatedAt,
	}
}

func (r *interactionRow) toLog() *types.InteractionLog {
	return &types.InteractionLog{
		ID:          types.InteractionID(r.ID),
		ContactID:   r.ContactID,
		Type:        r.Type,
		Direction:   r.Direction,
		Content:     r.Content,
		AIGenerated: r.AIGenerated,
		Metadata:    fromJSON[map[string]any](r.Metadata),
		Timestamp:   r.Timestamp,
	}
}

func (r *styleRow) toProfile() *types.StyleProfile {
	return &types.StyleProfile{
		WritingStyle:      r.WritingStyle,
		CommonExpressions: fromJSON[[]string](r.CommonExpressions),
		Tone:              r.Tone,
		MessageLength:     r.MessageLength,
		EmojiUsage:        r.EmojiUsage,
		PunctuationStyle:  r.PunctuationStyle,
		GreetingStyle:     r.GreetingStyle,
		ClosingStyle:      r.ClosingStyle,
		UpdatedAt:         r.UpdatedAt,
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
