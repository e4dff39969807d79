// Package state provides the gorm-backed conversation store. It runs on
// Postgres in production and SQLite for local use and tests.
package state

import "github.com/user/chatpilot/internal/types"

// Compile-time interface compliance checks.
var _ types.ConversationStore = (*Store)(nil)
var _ types.DashboardStore = (*Store)(nil)
