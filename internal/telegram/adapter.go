// Package telegram exposes a Telegram bot as a conversation transport. Bot
// chats are long-polled into a bounded in-memory log per chat, which serves
// the read side of types.Transport.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/chatpilot/internal/types"
)

const (
	Network            = "telegram"
	maxTelegramMessage = 4096
	defaultChatLog     = 200
)

// botAPI is the subset of *tgbotapi.BotAPI the adapter uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type chatLog struct {
	name     string
	last     time.Time
	messages []*types.MessageRecord // oldest first
}

// Adapter implements types.Transport and types.TypingNotifier for one bot.
type Adapter struct {
	bot       botAPI
	maxPerLog int
	onInbound func(chatID string)

	mu    sync.RWMutex
	chats map[int64]*chatLog
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithInboundHook registers fn to run after each inbound message is
// buffered. chatID is the transport-local id.
func WithInboundHook(fn func(chatID string)) Option {
	return func(a *Adapter) { a.onInbound = fn }
}

// WithChatLogSize bounds how many messages are kept per chat.
func WithChatLogSize(n int) Option {
	return func(a *Adapter) { a.maxPerLog = n }
}

// New connects to the Bot API with token.
func New(token string, opts ...Option) (*Adapter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	slog.Info("telegram bot authorized", "username", bot.Self.UserName)
	return newAdapter(bot, opts...), nil
}

func newAdapter(bot botAPI, opts ...Option) *Adapter {
	a := &Adapter{
		bot:       bot,
		maxPerLog: defaultChatLog,
		chats:     make(map[int64]*chatLog),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Start long-polls for updates until ctx is cancelled.
func (a *Adapter) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := a.bot.GetUpdatesChan(u)
	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil {
				continue
			}
			a.handleMessage(update.Message)
		case <-ctx.Done():
			a.bot.StopReceivingUpdates()
			return
		}
	}
}

func (a *Adapter) handleMessage(msg *tgbotapi.Message) {
	if msg.IsCommand() {
		a.handleCommand(msg)
		return
	}
	rec := a.record(msg, false)
	if rec == nil {
		return
	}
	if a.onInbound != nil {
		a.onInbound(rec.ChatID)
	}
}

func (a *Adapter) handleCommand(msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	switch msg.Command() {
	case "start":
		a.reply(chatID, "Olá! Suas mensagens aqui são acompanhadas pelo nosso time.")
	case "status":
		a.mu.RLock()
		n := 0
		if l, ok := a.chats[chatID]; ok {
			n = len(l.messages)
		}
		a.mu.RUnlock()
		a.reply(chatID, fmt.Sprintf("Mensagens registradas nesta conversa: %d", n))
	default:
		a.reply(chatID, "Comandos disponíveis: /start, /status")
	}
}

func (a *Adapter) reply(chatID int64, text string) {
	if _, err := a.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		slog.Warn("telegram reply failed", "chat_id", chatID, "error", err)
	}
}

// record buffers a message and returns its record, or nil when the message
// has no text content worth keeping.
func (a *Adapter) record(msg *tgbotapi.Message, fromSelf bool) *types.MessageRecord {
	if msg == nil || msg.Chat == nil {
		return nil
	}
	rec := toRecord(msg, fromSelf)
	if rec.Content == "" && !rec.HasMedia {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.chats[msg.Chat.ID]
	if !ok {
		l = &chatLog{}
		a.chats[msg.Chat.ID] = l
	}
	if name := chatName(msg.Chat); name != "" {
		l.name = name
	}
	l.messages = append(l.messages, rec)
	if over := len(l.messages) - a.maxPerLog; a.maxPerLog > 0 && over > 0 {
		l.messages = l.messages[over:]
	}
	if rec.Timestamp.After(l.last) {
		l.last = rec.Timestamp
	}
	return rec
}

func toRecord(msg *tgbotapi.Message, fromSelf bool) *types.MessageRecord {
	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	sender := chatID
	if msg.From != nil && !fromSelf {
		sender = strconv.FormatInt(msg.From.ID, 10)
	}

	rec := &types.MessageRecord{
		MessageID: messageID(msg.Chat.ID, msg.MessageID),
		ChatID:    chatID,
		SenderID:  sender,
		Content:   msg.Text,
		FromSelf:  fromSelf,
		Timestamp: msg.Time().UTC(),
	}
	if rec.Content == "" {
		rec.Content = msg.Caption
	}
	switch {
	case len(msg.Photo) > 0:
		rec.HasMedia, rec.MediaType = true, "image"
	case msg.Voice != nil:
		rec.HasMedia, rec.MediaType = true, "audio"
	case msg.Video != nil:
		rec.HasMedia, rec.MediaType = true, "video"
	case msg.Document != nil:
		rec.HasMedia, rec.MediaType = true, "document"
	}
	return rec
}

// messageID is unique per bot: Telegram numbers messages per chat.
func messageID(chatID int64, msgID int) string {
	return strconv.FormatInt(chatID, 10) + "-" + strconv.Itoa(msgID)
}

func chatName(c *tgbotapi.Chat) string {
	if c.Title != "" {
		return c.Title
	}
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

func parseChatID(id string) (int64, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid telegram chat id %q", id)
	}
	return n, nil
}

func (a *Adapter) ListChats(ctx context.Context, limit int, sortBy string) ([]types.ChatHandle, error) {
	a.mu.RLock()
	out := make([]types.ChatHandle, 0, len(a.chats))
	for id, l := range a.chats {
		h := types.ChatHandle{
			ChatID:       strconv.FormatInt(id, 10),
			Name:         l.name,
			LastActivity: l.last,
		}
		if n := len(l.messages); n > 0 {
			h.LastMessage = l.messages[n-1].Content
		}
		out = append(out, h)
	}
	a.mu.RUnlock()

	if sortBy == "name" {
		sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	} else {
		sort.Slice(out, func(i, j int) bool { return out[i].LastActivity.After(out[j].LastActivity) })
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListMessages returns up to limit buffered messages, newest first.
func (a *Adapter) ListMessages(ctx context.Context, chatID string, limit int) ([]*types.MessageRecord, error) {
	id, err := parseChatID(chatID)
	if err != nil {
		return nil, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	l, ok := a.chats[id]
	if !ok {
		return nil, nil
	}
	n := len(l.messages)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]*types.MessageRecord, 0, n)
	for i := len(l.messages) - 1; i >= 0 && len(out) < n; i-- {
		cp := *l.messages[i]
		out = append(out, &cp)
	}
	return out, nil
}

// Send delivers text as plain messages, split at the Bot API size limit.
func (a *Adapter) Send(ctx context.Context, recipient, text string) (*types.DispatchResult, error) {
	id, err := parseChatID(recipient)
	if err != nil {
		return nil, err
	}

	res := &types.DispatchResult{}
	for _, part := range splitMessage(text) {
		sent, err := a.bot.Send(tgbotapi.NewMessage(id, part))
		if err != nil {
			return res, fmt.Errorf("telegram send: %w", err)
		}
		if sent.Chat == nil {
			sent.Chat = &tgbotapi.Chat{ID: id}
		}
		if sent.Text == "" {
			sent.Text = part
		}
		if sent.Date == 0 {
			sent.Date = int(time.Now().Unix())
		}
		a.record(&sent, true)
		res.MessageID = messageID(id, sent.MessageID)
	}
	res.Success = true
	return res, nil
}

func (a *Adapter) NotifyTyping(ctx context.Context, recipient string) error {
	id, err := parseChatID(recipient)
	if err != nil {
		return err
	}
	if _, err := a.bot.Request(tgbotapi.NewChatAction(id, tgbotapi.ChatTyping)); err != nil {
		return fmt.Errorf("telegram typing: %w", err)
	}
	return nil
}

// SearchContacts matches chat names case-insensitively; an empty query
// returns every known chat.
func (a *Adapter) SearchContacts(ctx context.Context, query string) ([]types.ContactHandle, error) {
	q := strings.ToLower(query)
	a.mu.RLock()
	defer a.mu.RUnlock()

	var out []types.ContactHandle
	for id, l := range a.chats {
		if q != "" && !strings.Contains(strings.ToLower(l.name), q) {
			continue
		}
		out = append(out, types.ContactHandle{
			JID:  strconv.FormatInt(id, 10),
			Name: l.name,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JID < out[j].JID })
	return out, nil
}

func splitMessage(text string) []string {
	if utf8.RuneCountInString(text) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	runes := []rune(text)
	for len(runes) > 0 {
		end := maxTelegramMessage
		if end > len(runes) {
			end = len(runes)
		}
		parts = append(parts, string(runes[:end]))
		runes = runes[end:]
	}
	return parts
}
