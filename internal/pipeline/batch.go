package pipeline

import (
	"context"
	"fmt"
	"log/slog"
)

// BatchItem is the result for one chat of a batch run. Error is set when any
// stage failed for that chat; the other fields hold what completed.
type BatchItem struct {
	Contact    string         `json:"contact"`
	Name       string         `json:"name,omitempty"`
	Ingested   int            `json:"ingested"`
	Analysis   *AnalyzeResult `json:"analysis,omitempty"`
	Suggestion *SuggestResult `json:"suggestion,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// RunBatch processes up to limit of the most recently active chats, one at a
// time: ingest, analyze, suggest. A failure on one chat is recorded in its
// item and the batch moves on. Only failing to list chats, or ctx ending,
// fails the batch.
func (o *Orchestrator) RunBatch(ctx context.Context, limit int) ([]BatchItem, error) {
	chats, err := o.transport.ListChats(ctx, limit, "last_active")
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	slog.Info("batch started", "chats", len(chats))

	items := make([]BatchItem, 0, len(chats))
	failed := 0
	for _, chat := range chats {
		if err := ctx.Err(); err != nil {
			return items, err
		}
		item := BatchItem{Contact: chat.ChatID, Name: chat.Name}
		if err := o.processChat(ctx, &item); err != nil {
			slog.Warn("batch item failed", "chat_id", chat.ChatID, "error", err)
			item.Error = err.Error()
			failed++
		}
		items = append(items, item)
	}

	slog.Info("batch finished", "chats", len(items), "failed", failed)
	o.publish(EventBatchCompleted, "", items)
	return items, nil
}

func (o *Orchestrator) processChat(ctx context.Context, item *BatchItem) error {
	n, err := o.Ingest(ctx, item.Contact, o.cfg.BatchMessageLimit)
	if err != nil {
		return err
	}
	item.Ingested = n

	if item.Analysis, err = o.Analyze(ctx, item.Contact); err != nil {
		return err
	}
	if item.Suggestion, err = o.Suggest(ctx, item.Contact); err != nil {
		return err
	}
	return nil
}
