package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/user/chatpilot/internal/types"
)

// Mux routes addresses to transports by network prefix, e.g. "telegram:42".
// Addresses without a prefix (WhatsApp JIDs) go to the default transport.
// Ids handed back by a prefixed transport are re-prefixed so callers can
// route them again.
type Mux struct {
	mu         sync.RWMutex
	def        types.Transport
	transports map[string]types.Transport
}

func NewMux(def types.Transport) *Mux {
	return &Mux{
		def:        def,
		transports: make(map[string]types.Transport),
	}
}

// Register adds a transport for addresses starting with "<network>:".
func (m *Mux) Register(network string, t types.Transport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transports[network] = t
}

func (m *Mux) route(addr string) (types.Transport, string, string, error) {
	network, id := types.SplitAddress(addr)

	m.mu.RLock()
	defer m.mu.RUnlock()
	if network != "" {
		if t, ok := m.transports[network]; ok {
			return t, network, id, nil
		}
	}
	if m.def == nil {
		return nil, "", "", fmt.Errorf("no transport for address: %s", addr)
	}
	return m.def, "", addr, nil
}

// all returns the registered transports keyed by network, "" for the default.
func (m *Mux) all() map[string]types.Transport {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]types.Transport, len(m.transports)+1)
	if m.def != nil {
		out[""] = m.def
	}
	for k, v := range m.transports {
		out[k] = v
	}
	return out
}

func qualify(network, id string) string {
	if network == "" || id == "" {
		return id
	}
	return types.NewAddress(network, id)
}

// ListChats merges chats from every transport, most recently active first.
// A failing transport is skipped unless all of them fail.
func (m *Mux) ListChats(ctx context.Context, limit int, sortBy string) ([]types.ChatHandle, error) {
	var (
		chats []types.ChatHandle
		errs  []error
	)
	transports := m.all()
	for network, t := range transports {
		list, err := t.ListChats(ctx, limit, sortBy)
		if err != nil {
			slog.Warn("list chats failed", "network", networkName(network), "error", err)
			errs = append(errs, err)
			continue
		}
		for _, c := range list {
			c.ChatID = qualify(network, c.ChatID)
			chats = append(chats, c)
		}
	}
	if len(transports) > 0 && len(errs) == len(transports) {
		return nil, errors.Join(errs...)
	}

	sort.SliceStable(chats, func(i, j int) bool {
		return chats[i].LastActivity.After(chats[j].LastActivity)
	})
	if limit > 0 && len(chats) > limit {
		chats = chats[:limit]
	}
	return chats, nil
}

func (m *Mux) ListMessages(ctx context.Context, chatID string, limit int) ([]*types.MessageRecord, error) {
	t, network, id, err := m.route(chatID)
	if err != nil {
		return nil, err
	}
	msgs, err := t.ListMessages(ctx, id, limit)
	if err != nil {
		return nil, err
	}
	for _, msg := range msgs {
		msg.ChatID = qualify(network, msg.ChatID)
		msg.SenderID = qualify(network, msg.SenderID)
		msg.MessageID = qualify(network, msg.MessageID)
	}
	return msgs, nil
}

func (m *Mux) Send(ctx context.Context, recipient, text string) (*types.DispatchResult, error) {
	t, _, id, err := m.route(recipient)
	if err != nil {
		return nil, err
	}
	return t.Send(ctx, id, text)
}

// SearchContacts queries every transport and merges the results.
func (m *Mux) SearchContacts(ctx context.Context, query string) ([]types.ContactHandle, error) {
	var (
		out  []types.ContactHandle
		errs []error
	)
	transports := m.all()
	for network, t := range transports {
		list, err := t.SearchContacts(ctx, query)
		if err != nil {
			slog.Warn("search contacts failed", "network", networkName(network), "error", err)
			errs = append(errs, err)
			continue
		}
		for _, c := range list {
			c.JID = qualify(network, c.JID)
			out = append(out, c)
		}
	}
	if len(transports) > 0 && len(errs) == len(transports) {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

// NotifyTyping forwards to the routed transport when it supports typing
// indicators and is a no-op otherwise.
func (m *Mux) NotifyTyping(ctx context.Context, recipient string) error {
	t, _, id, err := m.route(recipient)
	if err != nil {
		return err
	}
	if n, ok := t.(types.TypingNotifier); ok {
		return n.NotifyTyping(ctx, id)
	}
	return nil
}

func networkName(n string) string {
	if n == "" {
		return "default"
	}
	return n
}
