package state

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm/clause"

	"github.com/user/chatpilot/internal/types"
)

// SaveAnalysis appends an analysis row. ID and CreatedAt are filled in on
// rec when unset.
func (s *Store) SaveAnalysis(ctx context.Context, rec *types.AnalysisRecord) error {
	if rec.ID == "" {
		rec.ID = types.NewAnalysisID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	row := &analysisRow{
		ID:           string(rec.ID),
		ContactID:    rec.ContactID,
		ChatID:       rec.ChatID,
		AnalysisType: rec.AnalysisType,
		Sentiment:    rec.Sentiment,
		Tone:         rec.Tone,
		Intent:       rec.Intent,
		KeyTopics:    toJSON(rec.KeyTopics),
		Insights: toJSON(analysisInsights{
			CustomerMood:   rec.CustomerMood,
			UrgencyLevel:   rec.UrgencyLevel,
			SalesStage:     rec.SalesStage,
			NextBestAction: rec.NextBestAction,
			Summary:        rec.Summary,
		}),
		CreatedAt: rec.CreatedAt.UTC(),
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("save analysis: %w", translate(err))
	}
	return nil
}

// GetLatestAnalysis returns the contact's analysis with the greatest
// created-at.
func (s *Store) GetLatestAnalysis(ctx context.Context, contactID string) (*types.AnalysisRecord, error) {
	var row analysisRow
	err := s.db.WithContext(ctx).
		Where("contact_jid = ?", contactID).
		Order("created_at DESC").
		Take(&row).Error
	if err != nil {
		return nil, translate(err)
	}
	return row.toRecord(), nil
}

// SaveStyle upserts the single style profile kept per contact.
func (s *Store) SaveStyle(ctx context.Context, contactID string, style *types.StyleProfile) error {
	row := &styleRow{
		ContactID:         contactID,
		WritingStyle:      style.WritingStyle,
		CommonExpressions: toJSON(style.CommonExpressions),
		Tone:              style.Tone,
		MessageLength:     style.MessageLength,
		EmojiUsage:        style.EmojiUsage,
		PunctuationStyle:  style.PunctuationStyle,
		GreetingStyle:     style.GreetingStyle,
		ClosingStyle:      style.ClosingStyle,
		UpdatedAt:         time.Now().UTC(),
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "contact_jid"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"writing_style",
				"common_expressions",
				"tone",
				"message_length",
				"emoji_usage",
				"punctuation_style",
				"greeting_style",
				"closing_style",
				"updated_at",
			}),
		}).
		Create(row).Error
	if err != nil {
		return fmt.Errorf("save style: %w", translate(err))
	}
	return nil
}

func (s *Store) GetStyle(ctx context.Context, contactID string) (*types.StyleProfile, error) {
	var row styleRow
	if err := s.db.WithContext(ctx).Where("contact_jid = ?", contactID).Take(&row).Error; err != nil {
		return nil, translate(err)
	}
	return row.toProfile(), nil
}

// UpdatePipelineStage overwrites the contact's stage. A nil value is stored
// as NULL.
func (s *Store) UpdatePipelineStage(ctx context.Context, contactID, stage string, value *float64) error {
	row := &pipelineRow{
		ContactID: contactID,
		Stage:     stage,
		Value:     value,
		UpdatedAt: time.Now().UTC(),
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "contact_jid"}},
			DoUpdates: clause.AssignmentColumns([]string{"stage", "value", "updated_at"}),
		}).
		Create(row).Error
	if err != nil {
		return fmt.Errorf("update pipeline stage: %w", translate(err))
	}
	return nil
}

func (s *Store) GetPipeline(ctx context.Context) ([]*types.PipelineEntry, error) {
	var rows []struct {
		ContactID    string
		Stage        string
		Value        *float64
		UpdatedAt    time.Time
		Name         string
		PhoneNumber  string
		CustomerType string
	}
	err := s.db.WithContext(ctx).
		Table("pipeline AS p").
		Select(`p.contact_jid AS contact_id, p.stage, p.value, p.updated_at,
			COALESCE(c.name, '') AS name,
			COALESCE(c.phone_number, '') AS phone_number,
			COALESCE(c.customer_type, '') AS customer_type`).
		Joins("LEFT JOIN contacts c ON p.contact_jid = c.jid").
		Order("p.updated_at DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("get pipeline: %w", err)
	}

	out := make([]*types.PipelineEntry, len(rows))
	for i, r := range rows {
		out[i] = &types.PipelineEntry{
			PipelineStageRecord: types.PipelineStageRecord{
				ContactID: r.ContactID,
				Stage:     r.Stage,
				Value:     r.Value,
				UpdatedAt: r.UpdatedAt,
			},
			Name:         r.Name,
			PhoneNumber:  r.PhoneNumber,
			CustomerType: r.CustomerType,
		}
	}
	return out, nil
}

// LogInteraction appends an audit entry. ID and Timestamp are filled in on
// entry when unset.
func (s *Store) LogInteraction(ctx context.Context, entry *types.InteractionLog) error {
	if entry.ID == "" {
		entry.ID = types.NewInteractionID()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	row := &interactionRow{
		ID:          string(entry.ID),
		ContactID:   entry.ContactID,
		Type:        entry.Type,
		Direction:   entry.Direction,
		Content:     entry.Content,
		AIGenerated: entry.AIGenerated,
		Metadata:    toJSON(entry.Metadata),
		Timestamp:   entry.Timestamp.UTC(),
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("log interaction: %w", translate(err))
	}
	return nil
}

func (s *Store) GetInteractions(ctx context.Context, contactID string, limit int) ([]*types.InteractionLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []interactionRow
	err := s.db.WithContext(ctx).
		Where("contact_jid = ?", contactID).
		Order("timestamp DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("get interactions: %w", err)
	}
	out := make([]*types.InteractionLog, len(rows))
	for i := range rows {
		out[i] = rows[i].toLog()
	}
	return out, nil
}
