package state

import (
	"context"
	"fmt"
	"time"

	"github.com/user/chatpilot/internal/types"
)

const activeWindow = 7 * 24 * time.Hour

// DashboardMetrics aggregates contact, message and pipeline totals. Active
// contacts are distinct inbound senders over the last seven days; pipeline
// values that were never set count as zero.
func (s *Store) DashboardMetrics(ctx context.Context) (*types.DashboardMetrics, error) {
	return s.metricsAt(ctx, time.Now())
}

func (s *Store) metricsAt(ctx context.Context, now time.Time) (*types.DashboardMetrics, error) {
	db := s.db.WithContext(ctx)
	m := &types.DashboardMetrics{Pipeline: map[string]float64{}}

	if err := db.Model(&contactRow{}).Count(&m.TotalContacts).Error; err != nil {
		return nil, fmt.Errorf("count contacts: %w", err)
	}

	y, mo, d := now.Date()
	midnight := time.Date(y, mo, d, 0, 0, 0, 0, now.Location()).UTC()
	if err := db.Model(&messageRow{}).Where("timestamp >= ?", midnight).Count(&m.MessagesToday).Error; err != nil {
		return nil, fmt.Errorf("count messages today: %w", err)
	}

	err := db.Model(&messageRow{}).
		Where("timestamp >= ? AND from_me = ?", now.Add(-activeWindow).UTC(), false).
		Distinct("sender_jid").
		Count(&m.ActiveContacts).Error
	if err != nil {
		return nil, fmt.Errorf("count active contacts: %w", err)
	}

	var stages []struct {
		Stage string
		Total float64
	}
	err = db.Model(&pipelineRow{}).
		Select("stage, COALESCE(SUM(value), 0) AS total").
		Group("stage").
		Scan(&stages).Error
	if err != nil {
		return nil, fmt.Errorf("sum pipeline: %w", err)
	}
	for _, st := range stages {
		m.Pipeline[st.Stage] = st.Total
	}
	return m, nil
}
