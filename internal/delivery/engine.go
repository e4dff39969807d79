// Package delivery turns one generated reply into a paced sequence of
// transport sends that resembles a person typing.
package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/user/chatpilot/internal/types"
)

const (
	typingPerChar  = 50 * time.Millisecond
	maxTypingDelay = 3 * time.Second
)

// Options controls chunking and pacing for a single delivery.
type Options struct {
	ChunkSize       int
	InterChunkDelay time.Duration
	SimulateTyping  bool
}

// DefaultOptions returns 80-character chunks, a 2.5s pause between chunks and
// typing simulation on.
func DefaultOptions() Options {
	return Options{
		ChunkSize:       80,
		InterChunkDelay: 2500 * time.Millisecond,
		SimulateTyping:  true,
	}
}

// Result describes what went out. ChunksSent counts successful sends only.
type Result struct {
	Success    bool                    `json:"success"`
	ChunksSent int                     `json:"chunks_sent"`
	Results    []*types.DispatchResult `json:"results,omitempty"`
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Engine delivers messages through a transport.
type Engine struct {
	transport types.Transport
	sleep     SleepFunc
}

// Option configures an Engine.
type Option func(*Engine)

// WithSleep replaces the wait used between chunks.
func WithSleep(fn SleepFunc) Option {
	return func(e *Engine) { e.sleep = fn }
}

// New creates an Engine that sends through t.
func New(t types.Transport, opts ...Option) *Engine {
	e := &Engine{transport: t, sleep: sleepCtx}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// TypingDelay is the simulated typing time for a chunk: 50ms per character,
// capped at 3s.
func TypingDelay(chunk string) time.Duration {
	d := time.Duration(utf8.RuneCountInString(chunk)) * typingPerChar
	if d > maxTypingDelay {
		return maxTypingDelay
	}
	return d
}

// Deliver sends message to recipient. Messages that fit in one chunk go out
// in a single send. Longer ones are split on sentence boundaries and paced.
// The first failing send aborts the delivery: already-sent chunks stay sent
// and the partial Result is returned together with the error.
func (e *Engine) Deliver(ctx context.Context, recipient, message string, opts Options) (*Result, error) {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultOptions().ChunkSize
	}

	if utf8.RuneCountInString(message) <= opts.ChunkSize {
		res, err := e.transport.Send(ctx, recipient, message)
		if err != nil {
			return &Result{}, fmt.Errorf("send message: %w", err)
		}
		return &Result{Success: true, ChunksSent: 1, Results: []*types.DispatchResult{res}}, nil
	}

	chunks := SplitNaturally(message, opts.ChunkSize)
	result := &Result{Results: make([]*types.DispatchResult, 0, len(chunks))}

	for i, chunk := range chunks {
		last := i == len(chunks)-1

		if opts.SimulateTyping && !last {
			e.notifyTyping(ctx, recipient)
			if err := e.sleep(ctx, TypingDelay(chunk)); err != nil {
				return result, fmt.Errorf("typing pause before chunk %d: %w", i+1, err)
			}
		}

		res, err := e.transport.Send(ctx, recipient, chunk)
		if err != nil {
			return result, fmt.Errorf("send chunk %d/%d: %w", i+1, len(chunks), err)
		}
		result.Results = append(result.Results, res)
		result.ChunksSent++

		if !last {
			if err := e.sleep(ctx, opts.InterChunkDelay); err != nil {
				return result, fmt.Errorf("pause after chunk %d: %w", i+1, err)
			}
		}
	}

	result.Success = true
	return result, nil
}

func (e *Engine) notifyTyping(ctx context.Context, recipient string) {
	tn, ok := e.transport.(types.TypingNotifier)
	if !ok {
		return
	}
	if err := tn.NotifyTyping(ctx, recipient); err != nil {
		slog.Debug("typing indicator failed", "recipient", recipient, "error", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
