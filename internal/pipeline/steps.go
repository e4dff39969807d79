package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Precondition sentinels. They surface in Outcome.Unmet, never as a returned
// error.
var (
	ErrNoMessages      = errors.New("no messages")
	ErrNoAnalysis      = errors.New("no prior analysis")
	ErrStyleNotLearned = errors.New("style not learned")
)

// Outcome reports whether an operation stopped early because the state it
// depends on does not exist yet. A zero Outcome means the operation ran to
// completion.
type Outcome struct {
	Error string `json:"error,omitempty"`
	Unmet error  `json:"-"`
}

// Completed reports whether every step ran.
func (o Outcome) Completed() bool {
	return o.Unmet == nil
}

// precondition halts a step chain without failing it.
type precondition struct{ reason error }

func (p precondition) Error() string { return p.reason.Error() }
func (p precondition) Unwrap() error { return p.reason }

func unmet(reason error) error {
	return precondition{reason: reason}
}

// step is one named, fallible unit of a pipeline operation. Steps share state
// through the run struct whose methods they are.
type step struct {
	name string
	run  func(ctx context.Context) error
}

// runSteps executes steps in order. The first step returning a precondition
// stops the chain and is reported in the Outcome; any other error stops the
// chain and is returned wrapped with the step name.
func runSteps(ctx context.Context, op, subject string, steps []step) (Outcome, error) {
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}
		err := s.run(ctx)
		var p precondition
		if errors.As(err, &p) {
			slog.Info("precondition not met", "op", op, "subject", subject, "step", s.name, "reason", p.reason)
			return Outcome{Error: p.reason.Error(), Unmet: p.reason}, nil
		}
		if err != nil {
			return Outcome{}, fmt.Errorf("%s: %w", s.name, err)
		}
		slog.Debug("step done", "op", op, "subject", subject, "step", s.name)
	}
	return Outcome{}, nil
}
