package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Realtime runs a sync tick on a fixed interval while started. A tick that
// is still running when the next one is due causes that next one to be
// skipped, so ticks never overlap, including across Stop and Start.
type Realtime struct {
	interval time.Duration
	tick     func(ctx context.Context)

	// busy is held for the duration of a tick. It outlives the cron
	// instance so a restarted loop still sees the previous tick.
	busy sync.Mutex

	mu      sync.Mutex
	cron    *cron.Cron
	entry   cron.EntryID
	started time.Time
}

func newRealtime(interval time.Duration, tick func(ctx context.Context)) *Realtime {
	if interval <= 0 {
		interval = DefaultConfig().RealtimeInterval
	}
	return &Realtime{interval: interval, tick: tick}
}

// Start arms the repeating tick. Ticks run with ctx, so cancelling it aborts
// in-flight work; Stop does not. Returns false if already running.
func (r *Realtime) Start(ctx context.Context) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron != nil {
		slog.Info("realtime sync already running")
		return false
	}

	logger := cronLogger{}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	r.entry = c.Schedule(cron.Every(r.interval), cron.FuncJob(func() { r.runTick(ctx) }))
	c.Start()

	r.cron = c
	r.started = time.Now()
	slog.Info("realtime sync started", "interval", r.interval)
	return true
}

func (r *Realtime) runTick(ctx context.Context) {
	if !r.busy.TryLock() {
		slog.Info("realtime tick skipped, previous tick still running")
		return
	}
	defer r.busy.Unlock()
	r.tick(ctx)
}

// Stop prevents further ticks. A tick already running is left to finish.
// Returns false if not running.
func (r *Realtime) Stop() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron == nil {
		return false
	}
	r.cron.Stop()
	r.cron = nil
	r.entry = 0
	slog.Info("realtime sync stopped")
	return true
}

func (r *Realtime) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cron != nil
}

// Status is a snapshot of the loop for status endpoints.
type Status struct {
	Running  bool      `json:"running"`
	Interval string    `json:"interval"`
	Since    time.Time `json:"since,omitempty"`
	NextTick time.Time `json:"next_tick,omitempty"`
}

func (r *Realtime) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Status{Running: r.cron != nil, Interval: r.interval.String()}
	if r.cron != nil {
		s.Since = r.started
		s.NextTick = r.cron.Entry(r.entry).Next
	}
	return s
}

func (r *Realtime) entries() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron == nil {
		return 0
	}
	return len(r.cron.Entries())
}

// syncTick pulls the latest messages of the most recently active chats.
func (o *Orchestrator) syncTick(ctx context.Context) {
	chats, err := o.transport.ListChats(ctx, o.cfg.RealtimeChatLimit, "last_active")
	if err != nil {
		slog.Error("realtime tick: list chats failed", "error", err)
		return
	}

	var sum TickSummary
	sum.Chats = len(chats)
	for _, chat := range chats {
		n, err := o.Ingest(ctx, chat.ChatID, o.cfg.RealtimeMessageLimit)
		if err != nil {
			slog.Warn("realtime tick: ingest failed", "chat_id", chat.ChatID, "error", err)
			sum.Failed++
			continue
		}
		sum.Messages += n
	}

	slog.Info("realtime tick done", "chats", sum.Chats, "messages", sum.Messages, "failed", sum.Failed)
	o.publish(EventRealtimeTick, "", sum)
}

// cronLogger routes cron's own logging through slog. Routine scheduling
// chatter goes to debug.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
