package state

import (
	"context"
	"fmt"

	"github.com/user/chatpilot/internal/types"
)

const defaultSearchLimit = 100

// InsertMessage stores a message. A message id that is already stored
// yields ErrDuplicate and leaves the existing row untouched.
func (s *Store) InsertMessage(ctx context.Context, msg *types.MessageRecord) error {
	if msg == nil || msg.MessageID == "" {
		return fmt.Errorf("insert message: missing message id")
	}
	if err := s.db.WithContext(ctx).Create(newMessageRow(msg)).Error; err != nil {
		return translate(err)
	}
	return nil
}

// GetMessages returns up to limit messages of a chat, newest first.
func (s *Store) GetMessages(ctx context.Context, chatID string, limit int) ([]*types.MessageRecord, error) {
	var rows []messageRow
	q := s.db.WithContext(ctx).Where("chat_jid = ?", chatID).Order("timestamp DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	return toRecords(rows), nil
}

// SearchMessages does a case-insensitive substring match on content,
// newest first.
func (s *Store) SearchMessages(ctx context.Context, query string, filter types.MessageFilter) ([]*types.MessageRecord, error) {
	q := s.db.WithContext(ctx).Model(&messageRow{}).
		Where("LOWER(content) LIKE LOWER(?)", "%"+query+"%")
	if filter.ChatID != "" {
		q = q.Where("chat_jid = ?", filter.ChatID)
	}
	if filter.FromSelf != nil {
		q = q.Where("from_me = ?", *filter.FromSelf)
	}
	if !filter.After.IsZero() {
		q = q.Where("timestamp >= ?", filter.After.UTC())
	}
	if !filter.Before.IsZero() {
		q = q.Where("timestamp <= ?", filter.Before.UTC())
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	var rows []messageRow
	if err := q.Order("timestamp DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	return toRecords(rows), nil
}

func toRecords(rows []messageRow) []*types.MessageRecord {
	out := make([]*types.MessageRecord, len(rows))
	for i := range rows {
		out[i] = rows[i].toRecord()
	}
	return out
}
