package state

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm/clause"

	"github.com/user/chatpilot/internal/types"
)

// UpsertContact inserts or overwrites the contact keyed by JID and returns
// the stored row. Empty classification fields fall back to lead / medium /
// awareness.
func (s *Store) UpsertContact(ctx context.Context, c *types.Contact) (*types.Contact, error) {
	if c == nil || c.JID == "" {
		return nil, fmt.Errorf("upsert contact: missing jid")
	}
	row := newContactRow(c)
	now := time.Now().UTC()
	row.CreatedAt = now
	row.UpdatedAt = now

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "jid"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"phone_number",
				"name",
				"customer_type",
				"interest_level",
				"buying_stage",
				"tags",
				"lifetime_value_prediction",
				"churn_risk",
				"metadata",
				"updated_at",
			}),
		}).
		Create(row).Error
	if err != nil {
		return nil, fmt.Errorf("upsert contact: %w", translate(err))
	}
	return s.GetContact(ctx, c.JID)
}

func (s *Store) GetContact(ctx context.Context, jid string) (*types.Contact, error) {
	var row contactRow
	if err := s.db.WithContext(ctx).Where("jid = ?", jid).Take(&row).Error; err != nil {
		return nil, translate(err)
	}
	return row.toContact(), nil
}

// ListContacts returns contacts most recently updated first. A tag filter
// matches contacts carrying any of the given tags.
func (s *Store) ListContacts(ctx context.Context, filter types.ContactFilter) ([]*types.Contact, error) {
	q := s.db.WithContext(ctx).Model(&contactRow{})
	if filter.CustomerType != "" {
		q = q.Where("customer_type = ?", filter.CustomerType)
	}
	if filter.InterestLevel != "" {
		q = q.Where("interest_level = ?", filter.InterestLevel)
	}
	q = q.Order("updated_at DESC")
	// Tags live in a JSON column; overlap is checked after the fetch.
	if filter.Limit > 0 && len(filter.Tags) == 0 {
		q = q.Limit(filter.Limit)
	}

	var rows []contactRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}

	out := make([]*types.Contact, 0, len(rows))
	for i := range rows {
		c := rows[i].toContact()
		if len(filter.Tags) > 0 && !overlaps(c.Tags, filter.Tags) {
			continue
		}
		out = append(out, c)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func overlaps(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}
