// Package insight turns conversations into structured judgements by prompting
// an LLM for JSON objects: analyses, style profiles, generated replies, next
// actions, categorizations and extracted entities.
package insight

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/user/chatpilot/internal/types"
	"github.com/user/chatpilot/pkg/llm"
)

// Completion budgets per call.
const (
	analyzeMaxTokens    = 2000
	styleMaxTokens      = 1000
	generateMaxTokens   = 1500
	suggestMaxTokens    = 1000
	categorizeMaxTokens = 800
	entitiesMaxTokens   = 800

	categorizeWindow = 10
)

// Provider implements types.InsightProvider on top of an llm.Provider.
type Provider struct {
	llm    llm.Provider
	budget *historyBudget
}

// New creates a Provider. model selects the tokenizer used to keep rendered
// history under historyTokens; historyTokens <= 0 disables trimming.
func New(p llm.Provider, model string, historyTokens int) *Provider {
	var b *historyBudget
	if historyTokens > 0 {
		b = newHistoryBudget(model, historyTokens)
	}
	return &Provider{llm: p, budget: b}
}

func (p *Provider) AnalyzeConversation(ctx context.Context, messages []*types.MessageRecord) (*types.Analysis, error) {
	var out types.Analysis
	data := map[string]any{"Conversation": p.budget.render(messages)}
	if err := p.call(ctx, "analysis", data, analyzeMaxTokens, &out); err != nil {
		return nil, fmt.Errorf("analyze conversation: %w", err)
	}
	if err := requireFields("sentiment", out.Sentiment, "intent", out.Intent, "summary", out.Summary); err != nil {
		return nil, fmt.Errorf("analyze conversation: %w", err)
	}
	return &out, nil
}

func (p *Provider) LearnStyle(ctx context.Context, samples []string) (*types.StyleProfile, error) {
	var out types.StyleProfile
	if err := p.call(ctx, "style", map[string]any{"Samples": samples}, styleMaxTokens, &out); err != nil {
		return nil, fmt.Errorf("learn style: %w", err)
	}
	if err := requireFields("writing_style", out.WritingStyle, "tone", out.Tone); err != nil {
		return nil, fmt.Errorf("learn style: %w", err)
	}
	out.UpdatedAt = time.Now().UTC()
	return &out, nil
}

func (p *Provider) GenerateMessage(ctx context.Context, req types.GenerateRequest) (*types.GeneratedMessage, error) {
	style, err := indent(req.Style)
	if err != nil {
		return nil, fmt.Errorf("generate message: %w", err)
	}
	data := map[string]any{
		"Style":        style,
		"Conversation": p.budget.render(req.History),
		"Intent":       req.Intent,
		"Points":       req.SpecificPoints,
	}

	var out types.GeneratedMessage
	if err := p.call(ctx, "generate", data, generateMaxTokens, &out); err != nil {
		return nil, fmt.Errorf("generate message: %w", err)
	}
	if strings.TrimSpace(out.Message) == "" {
		return nil, fmt.Errorf("generate message: %w: empty message", ErrMalformed)
	}
	if out.Confidence < 0 || out.Confidence > 1 {
		return nil, fmt.Errorf("generate message: %w: confidence %v out of range", ErrMalformed, out.Confidence)
	}
	return &out, nil
}

func (p *Provider) SuggestNextAction(ctx context.Context, contact *types.Contact, analysis *types.AnalysisRecord) (*types.SuggestedAction, error) {
	c, err := indent(contact)
	if err != nil {
		return nil, fmt.Errorf("suggest next action: %w", err)
	}
	a, err := indent(analysis)
	if err != nil {
		return nil, fmt.Errorf("suggest next action: %w", err)
	}

	var out types.SuggestedAction
	if err := p.call(ctx, "suggest", map[string]any{"Contact": c, "Analysis": a}, suggestMaxTokens, &out); err != nil {
		return nil, fmt.Errorf("suggest next action: %w", err)
	}
	if err := checkEnum("action_type", out.ActionType, actionTypes); err != nil {
		return nil, fmt.Errorf("suggest next action: %w", err)
	}
	if err := checkEnum("priority", out.Priority, priorities); err != nil {
		return nil, fmt.Errorf("suggest next action: %w", err)
	}
	if err := requireFields("timing", out.Timing, "reasoning", out.Reasoning); err != nil {
		return nil, fmt.Errorf("suggest next action: %w", err)
	}
	return &out, nil
}

func (p *Provider) CategorizeContact(ctx context.Context, contact *types.Contact, messages []*types.MessageRecord) (*types.Categorization, error) {
	c, err := indent(contact)
	if err != nil {
		return nil, fmt.Errorf("categorize contact: %w", err)
	}
	recent := chronological(messages)
	if len(recent) > categorizeWindow {
		recent = recent[len(recent)-categorizeWindow:]
	}

	var out types.Categorization
	data := map[string]any{"Contact": c, "Conversation": p.budget.render(recent)}
	if err := p.call(ctx, "categorize", data, categorizeMaxTokens, &out); err != nil {
		return nil, fmt.Errorf("categorize contact: %w", err)
	}
	if err := checkEnum("customer_type", out.CustomerType, customerTypes); err != nil {
		return nil, fmt.Errorf("categorize contact: %w", err)
	}
	if err := requireFields("interest_level", out.InterestLevel, "buying_stage", out.BuyingStage); err != nil {
		return nil, fmt.Errorf("categorize contact: %w", err)
	}
	return &out, nil
}

func (p *Provider) ExtractEntities(ctx context.Context, message string) (*types.Entities, error) {
	var out types.Entities
	if err := p.call(ctx, "entities", map[string]any{"Message": message}, entitiesMaxTokens, &out); err != nil {
		return nil, fmt.Errorf("extract entities: %w", err)
	}
	return &out, nil
}

func (p *Provider) call(ctx context.Context, name string, data any, maxTokens int, out any) error {
	prompt, err := render(name, data)
	if err != nil {
		return fmt.Errorf("render %s prompt: %w", name, err)
	}

	req := llm.UserPrompt(prompt, maxTokens)
	req.System = systemPrompt

	start := time.Now()
	resp, err := p.llm.Complete(ctx, req)
	if err != nil {
		return err
	}
	slog.Debug("insight call complete",
		"call", name,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
		"duration", time.Since(start),
	)
	return decodeObject(resp.Content, out)
}

func indent(v any) (string, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}
