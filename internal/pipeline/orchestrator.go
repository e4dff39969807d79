// Package pipeline sequences ingestion, analysis, decision and delivery for
// conversations. Single-conversation operations run their steps strictly in
// order; RunBatch walks many conversations one at a time; Realtime keeps the
// store in sync with the transport on a fixed interval.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/user/chatpilot/internal/delivery"
	"github.com/user/chatpilot/internal/types"
)

const customerTypeLead = "lead"

// Config holds the window sizes and pacing the orchestrator works with.
type Config struct {
	AnalyzeWindow     int
	GenerateWindow    int
	MinStyleSamples   int
	BatchMessageLimit int
	Delivery          delivery.Options

	RealtimeInterval     time.Duration
	RealtimeChatLimit    int
	RealtimeMessageLimit int
}

func DefaultConfig() Config {
	return Config{
		AnalyzeWindow:        50,
		GenerateWindow:       20,
		MinStyleSamples:      5,
		BatchMessageLimit:    50,
		Delivery:             delivery.DefaultOptions(),
		RealtimeInterval:     30 * time.Second,
		RealtimeChatLimit:    20,
		RealtimeMessageLimit: 10,
	}
}

// Orchestrator ties a transport, an insight provider and a store together.
type Orchestrator struct {
	transport types.Transport
	insight   types.InsightProvider
	store     types.ConversationStore
	engine    *delivery.Engine
	events    EventSink
	cfg       Config

	realtime *Realtime
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) { o.cfg = cfg }
}

// WithEngine replaces the delivery engine built from the transport.
func WithEngine(e *delivery.Engine) Option {
	return func(o *Orchestrator) { o.engine = e }
}

func WithEvents(sink EventSink) Option {
	return func(o *Orchestrator) { o.events = sink }
}

// New creates an Orchestrator. Unless WithEngine is given, replies are
// delivered through t.
func New(t types.Transport, p types.InsightProvider, s types.ConversationStore, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		transport: t,
		insight:   p,
		store:     s,
		cfg:       DefaultConfig(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.engine == nil {
		o.engine = delivery.New(t)
	}
	o.realtime = newRealtime(o.cfg.RealtimeInterval, o.syncTick)
	return o
}

// Realtime returns the orchestrator's polling loop.
func (o *Orchestrator) Realtime() *Realtime {
	return o.realtime
}

// Ingest copies up to limit messages of chatID from the transport into the
// store. Messages already stored are skipped; other per-message store
// failures are logged and skipped. The count is of messages attempted.
func (o *Orchestrator) Ingest(ctx context.Context, chatID string, limit int) (int, error) {
	msgs, err := o.transport.ListMessages(ctx, chatID, limit)
	if err != nil {
		return 0, fmt.Errorf("list messages: %w", err)
	}

	for _, m := range msgs {
		if m == nil {
			continue
		}
		if err := o.store.InsertMessage(ctx, m); err != nil {
			if errors.Is(err, types.ErrDuplicate) {
				continue
			}
			slog.Warn("insert message failed", "chat_id", chatID, "message_id", m.MessageID, "error", err)
		}
	}
	slog.Debug("messages ingested", "chat_id", chatID, "count", len(msgs))
	return len(msgs), nil
}

// SyncContacts upserts every contact the transport knows about. New contacts
// start as leads; existing ones keep their categorization and only get name,
// phone and the sync timestamp refreshed.
func (o *Orchestrator) SyncContacts(ctx context.Context) (int, error) {
	handles, err := o.transport.SearchContacts(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("search contacts: %w", err)
	}

	syncedAt := time.Now().UTC().Format(time.RFC3339)
	for i, h := range handles {
		c, err := o.store.GetContact(ctx, h.JID)
		switch {
		case errors.Is(err, types.ErrNotFound):
			c = &types.Contact{JID: h.JID, CustomerType: customerTypeLead}
		case err != nil:
			return i, fmt.Errorf("get contact %s: %w", h.JID, err)
		}

		c.PhoneNumber = h.PhoneNumber
		if h.Name != "" {
			c.Name = h.Name
		} else if c.Name == "" {
			c.Name = h.PhoneNumber
		}
		if c.Metadata == nil {
			c.Metadata = map[string]any{}
		}
		c.Metadata["synced_at"] = syncedAt

		if _, err := o.store.UpsertContact(ctx, c); err != nil {
			return i, fmt.Errorf("upsert contact %s: %w", h.JID, err)
		}
	}
	slog.Info("contacts synced", "count", len(handles))
	return len(handles), nil
}

// AnalyzeResult is the output of Analyze.
type AnalyzeResult struct {
	Outcome
	Analysis         *types.Analysis       `json:"analysis,omitempty"`
	Categorization   *types.Categorization `json:"categorization,omitempty"`
	StyleLearned     bool                  `json:"style_learned"`
	MessagesAnalyzed int                   `json:"messages_analyzed"`
}

type analyzeRun struct {
	o         *Orchestrator
	contactID string
	messages  []*types.MessageRecord
	res       *AnalyzeResult
}

// Analyze runs a full analysis of contactID's stored conversation: analysis,
// style learning, categorization and pipeline stage. With no stored messages
// it stops before calling the provider and reports ErrNoMessages.
func (o *Orchestrator) Analyze(ctx context.Context, contactID string) (*AnalyzeResult, error) {
	r := &analyzeRun{o: o, contactID: contactID, res: &AnalyzeResult{}}
	outcome, err := runSteps(ctx, "analyze", contactID, []step{
		{"load messages", r.loadMessages},
		{"analyze conversation", r.analyzeConversation},
		{"learn style", r.learnStyle},
		{"categorize contact", r.categorize},
		{"update pipeline stage", r.updatePipeline},
	})
	if err != nil {
		return nil, fmt.Errorf("analyze %s: %w", contactID, err)
	}
	r.res.Outcome = outcome
	if outcome.Completed() {
		slog.Info("contact analyzed", "contact_id", contactID, "messages", r.res.MessagesAnalyzed,
			"stage", r.res.Analysis.SalesStage, "customer_type", r.res.Categorization.CustomerType)
		o.publish(EventContactAnalyzed, contactID, r.res)
	}
	return r.res, nil
}

func (r *analyzeRun) loadMessages(ctx context.Context) error {
	msgs, err := r.o.store.GetMessages(ctx, r.contactID, r.o.cfg.AnalyzeWindow)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return unmet(ErrNoMessages)
	}
	r.messages = msgs
	r.res.MessagesAnalyzed = len(msgs)
	return nil
}

func (r *analyzeRun) analyzeConversation(ctx context.Context) error {
	analysis, err := r.o.insight.AnalyzeConversation(ctx, r.messages)
	if err != nil {
		return err
	}
	r.res.Analysis = analysis
	return r.o.store.SaveAnalysis(ctx, &types.AnalysisRecord{
		ContactID:    r.contactID,
		ChatID:       r.contactID,
		AnalysisType: "full_conversation",
		Analysis:     *analysis,
	})
}

func (r *analyzeRun) learnStyle(ctx context.Context) error {
	var samples []string
	for _, m := range r.messages {
		if m.FromSelf && m.Content != "" {
			samples = append(samples, m.Content)
		}
	}
	if len(samples) < r.o.cfg.MinStyleSamples {
		return nil
	}
	style, err := r.o.insight.LearnStyle(ctx, samples)
	if err != nil {
		return err
	}
	if err := r.o.store.SaveStyle(ctx, r.contactID, style); err != nil {
		return err
	}
	r.res.StyleLearned = true
	return nil
}

func (r *analyzeRun) categorize(ctx context.Context) error {
	contact, err := r.o.store.GetContact(ctx, r.contactID)
	if errors.Is(err, types.ErrNotFound) {
		contact, err = &types.Contact{JID: r.contactID}, nil
	}
	if err != nil {
		return err
	}

	cat, err := r.o.insight.CategorizeContact(ctx, contact, r.messages)
	if err != nil {
		return err
	}
	r.res.Categorization = cat

	updated := *contact
	updated.CustomerType = cat.CustomerType
	updated.InterestLevel = cat.InterestLevel
	updated.BuyingStage = cat.BuyingStage
	updated.Tags = cat.Tags
	updated.LifetimeValuePrediction = cat.LifetimeValuePrediction
	updated.ChurnRisk = cat.ChurnRisk
	_, err = r.o.store.UpsertContact(ctx, &updated)
	return err
}

// updatePipeline records the stage only. The value stays empty until
// something outside the pipeline assigns one.
func (r *analyzeRun) updatePipeline(ctx context.Context) error {
	if r.res.Analysis.SalesStage == "" {
		return nil
	}
	return r.o.store.UpdatePipelineStage(ctx, r.contactID, r.res.Analysis.SalesStage, nil)
}

// SuggestResult is the output of Suggest.
type SuggestResult struct {
	Outcome
	Suggestion *types.SuggestedAction `json:"suggestion,omitempty"`
}

type suggestRun struct {
	o         *Orchestrator
	contactID string
	analysis  *types.AnalysisRecord
	contact   *types.Contact
	res       *SuggestResult
}

// Suggest asks the provider for the next best action given the contact's
// latest analysis and records it as an AI-generated note.
func (o *Orchestrator) Suggest(ctx context.Context, contactID string) (*SuggestResult, error) {
	r := &suggestRun{o: o, contactID: contactID, res: &SuggestResult{}}
	outcome, err := runSteps(ctx, "suggest", contactID, []step{
		{"load analysis", r.loadAnalysis},
		{"load contact", r.loadContact},
		{"suggest next action", r.suggest},
		{"log suggestion", r.logSuggestion},
	})
	if err != nil {
		return nil, fmt.Errorf("suggest %s: %w", contactID, err)
	}
	r.res.Outcome = outcome
	if outcome.Completed() {
		slog.Info("suggestion created", "contact_id", contactID,
			"action", r.res.Suggestion.ActionType, "priority", r.res.Suggestion.Priority)
		o.publish(EventSuggestion, contactID, r.res.Suggestion)
	}
	return r.res, nil
}

func (r *suggestRun) loadAnalysis(ctx context.Context) error {
	a, err := r.o.store.GetLatestAnalysis(ctx, r.contactID)
	if errors.Is(err, types.ErrNotFound) {
		return unmet(ErrNoAnalysis)
	}
	if err != nil {
		return err
	}
	r.analysis = a
	return nil
}

func (r *suggestRun) loadContact(ctx context.Context) error {
	c, err := r.o.store.GetContact(ctx, r.contactID)
	if errors.Is(err, types.ErrNotFound) {
		c, err = &types.Contact{JID: r.contactID}, nil
	}
	r.contact = c
	return err
}

func (r *suggestRun) suggest(ctx context.Context) error {
	s, err := r.o.insight.SuggestNextAction(ctx, r.contact, r.analysis)
	if err != nil {
		return err
	}
	r.res.Suggestion = s
	return nil
}

func (r *suggestRun) logSuggestion(ctx context.Context) error {
	s := r.res.Suggestion
	return r.o.store.LogInteraction(ctx, &types.InteractionLog{
		ContactID:   r.contactID,
		Type:        types.InteractionNote,
		Direction:   types.DirectionOutbound,
		Content:     fmt.Sprintf("AI Suggestion: %s - %s", s.ActionType, s.Reasoning),
		AIGenerated: true,
		Metadata:    toMetadata(s),
	})
}

// SendResult is the output of SendHumanized.
type SendResult struct {
	Outcome
	Success    bool    `json:"success"`
	Message    string  `json:"message,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	ChunksSent int     `json:"chunks_sent"`
}

type sendRun struct {
	o         *Orchestrator
	contactID string
	intent    string
	points    []string
	style     *types.StyleProfile
	history   []*types.MessageRecord
	generated *types.GeneratedMessage
	delivered *delivery.Result
	res       *SendResult
}

// SendHumanized composes a reply in the contact's learned style and delivers
// it in paced chunks. When delivery fails part way the partial result is
// returned together with the error.
func (o *Orchestrator) SendHumanized(ctx context.Context, contactID, intent string, points []string) (*SendResult, error) {
	r := &sendRun{o: o, contactID: contactID, intent: intent, points: points, res: &SendResult{}}
	outcome, err := runSteps(ctx, "send", contactID, []step{
		{"load style", r.loadStyle},
		{"load history", r.loadHistory},
		{"generate message", r.generate},
		{"deliver message", r.deliver},
		{"log message", r.logMessage},
	})
	if err != nil {
		return r.res, fmt.Errorf("send humanized to %s: %w", contactID, err)
	}
	r.res.Outcome = outcome
	if outcome.Completed() {
		slog.Info("humanized message sent", "contact_id", contactID,
			"chunks", r.res.ChunksSent, "confidence", r.res.Confidence)
		o.publish(EventMessageSent, contactID, r.res)
	}
	return r.res, nil
}

func (r *sendRun) loadStyle(ctx context.Context) error {
	style, err := r.o.store.GetStyle(ctx, r.contactID)
	if errors.Is(err, types.ErrNotFound) {
		return unmet(ErrStyleNotLearned)
	}
	if err != nil {
		return err
	}
	r.style = style
	return nil
}

func (r *sendRun) loadHistory(ctx context.Context) error {
	msgs, err := r.o.store.GetMessages(ctx, r.contactID, r.o.cfg.GenerateWindow)
	if err != nil {
		return err
	}
	r.history = msgs
	return nil
}

func (r *sendRun) generate(ctx context.Context) error {
	g, err := r.o.insight.GenerateMessage(ctx, types.GenerateRequest{
		History:        r.history,
		Style:          r.style,
		Intent:         r.intent,
		SpecificPoints: r.points,
	})
	if err != nil {
		return err
	}
	r.generated = g
	r.res.Message = g.Message
	r.res.Confidence = g.Confidence
	slog.Debug("message generated", "contact_id", r.contactID, "confidence", g.Confidence, "length", len(g.Message))
	return nil
}

func (r *sendRun) deliver(ctx context.Context) error {
	out, err := r.o.engine.Deliver(ctx, r.contactID, r.generated.Message, r.o.cfg.Delivery)
	if out != nil {
		r.res.ChunksSent = out.ChunksSent
	}
	if err != nil {
		return err
	}
	r.delivered = out
	r.res.Success = out.Success
	return nil
}

func (r *sendRun) logMessage(ctx context.Context) error {
	return r.o.store.LogInteraction(ctx, &types.InteractionLog{
		ContactID:   r.contactID,
		Type:        types.InteractionMessage,
		Direction:   types.DirectionOutbound,
		Content:     r.generated.Message,
		AIGenerated: true,
		Metadata: map[string]any{
			"intent":      r.intent,
			"confidence":  r.generated.Confidence,
			"chunks_sent": r.delivered.ChunksSent,
			"reasoning":   r.generated.Reasoning,
		},
	})
}

// toMetadata flattens v into a JSON object map.
func toMetadata(v any) map[string]any {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}
