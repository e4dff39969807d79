package pipeline

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/user/chatpilot/internal/types"
)

type fakeTransport struct {
	mu       sync.Mutex
	chats    []types.ChatHandle
	msgs     map[string][]*types.MessageRecord
	contacts []types.ContactHandle
	listErr  error
	readErr  map[string]error
	sendErr  error
	sent     []string
	listed   int
}

func (f *fakeTransport) ListChats(ctx context.Context, limit int, sortBy string) ([]types.ChatHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listed++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := f.chats
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeTransport) ListMessages(ctx context.Context, chatID string, limit int) ([]*types.MessageRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.readErr[chatID]; err != nil {
		return nil, err
	}
	out := f.msgs[chatID]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeTransport) Send(ctx context.Context, recipient, text string) (*types.DispatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, text)
	return &types.DispatchResult{Success: true}, nil
}

func (f *fakeTransport) SearchContacts(ctx context.Context, query string) ([]types.ContactHandle, error) {
	return f.contacts, nil
}

func (f *fakeTransport) listCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listed
}

// fakeInsight returns canned answers and counts calls per method.
type fakeInsight struct {
	mu         sync.Mutex
	calls      map[string]int
	analyzeErr map[string]error
	analysis   types.Analysis
	generated  types.GeneratedMessage
	styleInput []string
	genReq     types.GenerateRequest
}

func newFakeInsight() *fakeInsight {
	return &fakeInsight{
		calls:      map[string]int{},
		analyzeErr: map[string]error{},
		analysis: types.Analysis{
			Sentiment:  "positive",
			Intent:     "compra",
			SalesStage: "consideration",
			Summary:    "Cliente interessado no plano anual.",
		},
		generated: types.GeneratedMessage{
			Message:    "Oi! Tudo certo por aí? Separei as condições do plano anual pra você. Posso te mandar agora?",
			Confidence: 0.87,
			Reasoning:  "segue o tom informal",
		},
	}
}

func (f *fakeInsight) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeInsight) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeInsight) AnalyzeConversation(ctx context.Context, messages []*types.MessageRecord) (*types.Analysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["analyze"]++
	if len(messages) > 0 {
		if err := f.analyzeErr[messages[0].ChatID]; err != nil {
			return nil, err
		}
	}
	a := f.analysis
	return &a, nil
}

func (f *fakeInsight) LearnStyle(ctx context.Context, samples []string) (*types.StyleProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["style"]++
	f.styleInput = samples
	return &types.StyleProfile{WritingStyle: "informal", Tone: "amigável", UpdatedAt: time.Now()}, nil
}

func (f *fakeInsight) GenerateMessage(ctx context.Context, req types.GenerateRequest) (*types.GeneratedMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["generate"]++
	f.genReq = req
	g := f.generated
	return &g, nil
}

func (f *fakeInsight) SuggestNextAction(ctx context.Context, contact *types.Contact, analysis *types.AnalysisRecord) (*types.SuggestedAction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["suggest"]++
	return &types.SuggestedAction{
		ActionType:      "send_proposal",
		Priority:        "high",
		Timing:          "hoje",
		Reasoning:       "cliente pediu preço",
		ExpectedOutcome: "fechamento",
	}, nil
}

func (f *fakeInsight) CategorizeContact(ctx context.Context, contact *types.Contact, messages []*types.MessageRecord) (*types.Categorization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["categorize"]++
	return &types.Categorization{
		CustomerType:  "prospect",
		InterestLevel: "high",
		BuyingStage:   "consideration",
		Tags:          []string{"plano-anual"},
		ChurnRisk:     "low",
	}, nil
}

func (f *fakeInsight) ExtractEntities(ctx context.Context, message string) (*types.Entities, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["entities"]++
	return &types.Entities{}, nil
}

type stageUpdate struct {
	stage string
	value *float64
}

// memStore is an in-memory types.ConversationStore.
type memStore struct {
	mu           sync.Mutex
	contacts     map[string]*types.Contact
	messages     map[string]*types.MessageRecord
	analyses     []*types.AnalysisRecord
	styles       map[string]*types.StyleProfile
	stages       map[string]stageUpdate
	interactions []*types.InteractionLog
	writes       int
	insertErr    error
}

func newMemStore() *memStore {
	return &memStore{
		contacts: map[string]*types.Contact{},
		messages: map[string]*types.MessageRecord{},
		styles:   map[string]*types.StyleProfile{},
		stages:   map[string]stageUpdate{},
	}
}

func (s *memStore) UpsertContact(ctx context.Context, c *types.Contact) (*types.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	cp := *c
	s.contacts[c.JID] = &cp
	out := cp
	return &out, nil
}

func (s *memStore) GetContact(ctx context.Context, jid string) (*types.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contacts[jid]
	if !ok {
		return nil, types.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *memStore) InsertMessage(ctx context.Context, m *types.MessageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	if _, ok := s.messages[m.MessageID]; ok {
		return types.ErrDuplicate
	}
	s.writes++
	cp := *m
	s.messages[m.MessageID] = &cp
	return nil
}

func (s *memStore) GetMessages(ctx context.Context, chatID string, limit int) ([]*types.MessageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.MessageRecord
	for _, m := range s.messages {
		if m.ChatID == chatID {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) SaveAnalysis(ctx context.Context, rec *types.AnalysisRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	cp := *rec
	cp.CreatedAt = time.Now()
	s.analyses = append(s.analyses, &cp)
	return nil
}

func (s *memStore) GetLatestAnalysis(ctx context.Context, contactID string) (*types.AnalysisRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.analyses) - 1; i >= 0; i-- {
		if s.analyses[i].ContactID == contactID {
			cp := *s.analyses[i]
			return &cp, nil
		}
	}
	return nil, types.ErrNotFound
}

func (s *memStore) SaveStyle(ctx context.Context, contactID string, style *types.StyleProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	cp := *style
	s.styles[contactID] = &cp
	return nil
}

func (s *memStore) GetStyle(ctx context.Context, contactID string) (*types.StyleProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.styles[contactID]
	if !ok {
		return nil, types.ErrNotFound
	}
	cp := *st
	return &cp, nil
}

func (s *memStore) UpdatePipelineStage(ctx context.Context, contactID, stage string, value *float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	s.stages[contactID] = stageUpdate{stage: stage, value: value}
	return nil
}

func (s *memStore) LogInteraction(ctx context.Context, entry *types.InteractionLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	cp := *entry
	s.interactions = append(s.interactions, &cp)
	return nil
}

func (s *memStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// conversation builds n messages for chatID alternating inbound/outbound,
// starting with an inbound one.
func conversation(chatID string, n int) []*types.MessageRecord {
	base := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	out := make([]*types.MessageRecord, 0, n)
	for i := 0; i < n; i++ {
		fromSelf := i%2 == 1
		sender := chatID
		if fromSelf {
			sender = "me@s.whatsapp.net"
		}
		out = append(out, &types.MessageRecord{
			MessageID: chatID + "-" + string(rune('a'+i)),
			ChatID:    chatID,
			SenderID:  sender,
			Content:   "mensagem " + string(rune('a'+i)),
			FromSelf:  fromSelf,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
	}
	return out
}

func seed(s *memStore, msgs []*types.MessageRecord) {
	for _, m := range msgs {
		s.InsertMessage(context.Background(), m)
	}
}

var errBoom = errors.New("provider unavailable")
