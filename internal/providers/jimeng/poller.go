package jimeng

import (
	"context"
	"errors"
	"fmt"
	"time"

	"visualgen/internal/infra"
	"visualgen/internal/metrics"
)

// DefaultPollInterval is the fixed delay before every status query.
const DefaultPollInterval = 3 * time.Second

// ErrPollLimit is returned when a bounded poller gives up on a task.
var ErrPollLimit = errors.New("jimeng: poll limit reached")

// State is a position in the task lifecycle as seen by the poller.
type State string

const (
	StateSubmitted  State = "submitted"
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateDone       State = "done"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

// Terminal reports whether the poller stops in this state.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed || s == StateCancelled
}

// Outcome is the single value the poller hands back for a task. Err is nil
// only when State is StateDone.
type Outcome struct {
	TaskID string
	Kind   Kind
	State  State
	Result *GenerationResult
	Polls  int
	Err    error
}

// UserMessage is the short text shown to an end user.
func (o Outcome) UserMessage() string {
	switch o.State {
	case StateDone:
		return "generation finished"
	case StateCancelled:
		return "generation cancelled"
	default:
		return "generation failed, please try again"
	}
}

// Progress is reported after every status query.
type Progress struct {
	TaskID  string
	Kind    Kind
	Polls   int
	State   State
	Raw     string
	Message string
}

// PollerOptions configures a Poller.
type PollerOptions struct {
	// Interval defaults to DefaultPollInterval.
	Interval time.Duration
	// MaxPolls of 0 polls until a terminal status or cancellation.
	MaxPolls   int
	Locale     string
	OnProgress func(Progress)
	Logger     *infra.Logger
}

// Poller drives submit, then poll on a fixed delay, until the task is terminal
// or ctx is cancelled. One Poller can run many tasks concurrently; each Run
// owns its own state.
type Poller struct {
	client     TaskClient
	interval   time.Duration
	maxPolls   int
	locale     string
	onProgress func(Progress)
	logger     *infra.Logger
	wait       func(ctx context.Context, d time.Duration) error
}

// NewPoller wraps client.
func NewPoller(client TaskClient, opts PollerOptions) *Poller {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	maxPolls := opts.MaxPolls
	if maxPolls < 0 {
		maxPolls = 0
	}
	return &Poller{
		client:     client,
		interval:   interval,
		maxPolls:   maxPolls,
		locale:     opts.Locale,
		onProgress: opts.OnProgress,
		logger:     loggerOrDiscard(opts.Logger),
		wait:       sleepContext,
	}
}

// Interval returns the delay between status queries.
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Run submits req and follows the task to a terminal state.
func (p *Poller) Run(ctx context.Context, req Request) Outcome {
	out := Outcome{State: StateSubmitted}
	if req != nil {
		out.Kind = req.Kind()
	}

	env, err := p.client.Submit(ctx, req)
	if err != nil {
		return p.finish(out, StateFailed, err)
	}
	if env == nil || !env.Success {
		msg := "empty response"
		if env != nil && env.Error != "" {
			msg = env.Error
		}
		return p.finish(out, StateFailed, &SubmissionError{Kind: out.Kind, Message: msg})
	}
	if env.Data != nil {
		out.TaskID = env.Data.TaskID
	}

	c := Classify(env.Data)
	switch c.Status {
	case StatusDone:
		out.Result = c.Result
		return p.finish(out, StateDone, nil)
	case StatusFailed:
		return p.finish(out, StateFailed, &ProviderFailed{TaskID: out.TaskID, Status: c.Raw})
	}
	if out.Kind.Synchronous() {
		return p.finish(out, StateFailed, &SubmissionError{Kind: out.Kind, Message: "no result in synchronous response"})
	}

	p.logger.Info().
		Str("kind", string(out.Kind)).
		Str("task_id", out.TaskID).
		Dur("interval", p.interval).
		Msg("jimeng: polling task")
	return p.await(ctx, out, stateFor(c.Status))
}

// Await follows an already submitted task.
func (p *Poller) Await(ctx context.Context, taskID string, kind Kind) Outcome {
	out := Outcome{TaskID: taskID, Kind: kind, State: StateSubmitted}
	if kind.Synchronous() {
		return p.finish(out, StateFailed, fmt.Errorf("jimeng: %s tasks cannot be polled", kind))
	}
	return p.await(ctx, out, StatePending)
}

func (p *Poller) await(ctx context.Context, out Outcome, state State) Outcome {
	metrics.ActiveTasks.Inc()
	defer metrics.ActiveTasks.Dec()

	out.State = state
	for {
		if p.maxPolls > 0 && out.Polls >= p.maxPolls {
			return p.finish(out, StateFailed, fmt.Errorf("%w after %d polls", ErrPollLimit, out.Polls))
		}
		if err := p.wait(ctx, p.interval); err != nil {
			return p.finish(out, StateCancelled, err)
		}

		out.Polls++
		env, err := p.client.Poll(ctx, out.TaskID, out.Kind)
		if err != nil {
			if ctx.Err() != nil {
				return p.finish(out, StateCancelled, ctx.Err())
			}
			metrics.PollsTotal.WithLabelValues(string(out.Kind), "error").Inc()
			return p.finish(out, StateFailed, &PollTransportError{TaskID: out.TaskID, Attempt: out.Polls, Err: err})
		}
		if env == nil {
			metrics.PollsTotal.WithLabelValues(string(out.Kind), "error").Inc()
			return p.finish(out, StateFailed, &PollTransportError{TaskID: out.TaskID, Attempt: out.Polls, Err: errors.New("empty response")})
		}
		if !env.Success {
			// the query was refused; the task itself may still be running
			metrics.PollsTotal.WithLabelValues(string(out.Kind), "error").Inc()
			msg := env.Error
			if msg == "" {
				msg = "unsuccessful response"
			}
			return p.finish(out, StateFailed, &PollTransportError{TaskID: out.TaskID, Attempt: out.Polls, Err: errors.New(msg)})
		}

		c := Classify(env.Data)
		metrics.PollsTotal.WithLabelValues(string(out.Kind), string(c.Status)).Inc()
		out.State = stateFor(c.Status)
		p.report(out, c)

		switch c.Status {
		case StatusDone:
			out.Result = c.Result
			return p.finish(out, StateDone, nil)
		case StatusFailed:
			msg := ""
			if env.Data != nil {
				msg = env.Data.StatusMessage
			}
			return p.finish(out, StateFailed, &ProviderFailed{TaskID: out.TaskID, Status: c.Raw, Message: msg})
		}
	}
}

func (p *Poller) report(out Outcome, c Classification) {
	if c.Unknown {
		p.logger.Warn().
			Str("task_id", out.TaskID).
			Str("status", c.Raw).
			Msg("jimeng: unrecognized task status, still polling")
	}
	p.logger.Debug().
		Str("task_id", out.TaskID).
		Int("poll", out.Polls).
		Str("status", c.Raw).
		Msg("jimeng: task status")
	if p.onProgress == nil {
		return
	}
	p.onProgress(Progress{
		TaskID:  out.TaskID,
		Kind:    out.Kind,
		Polls:   out.Polls,
		State:   out.State,
		Raw:     c.Raw,
		Message: DisplayText(c.Raw, p.locale),
	})
}

func (p *Poller) finish(out Outcome, state State, err error) Outcome {
	out.State = state
	out.Err = err
	metrics.TaskOutcomesTotal.WithLabelValues(string(out.Kind), string(state)).Inc()

	event := p.logger.Info()
	if state != StateDone {
		event = p.logger.Warn().Err(err)
	}
	event.
		Str("kind", string(out.Kind)).
		Str("task_id", out.TaskID).
		Int("polls", out.Polls).
		Str("state", string(state)).
		Msg("jimeng: task finished")
	return out
}

func stateFor(s Status) State {
	switch s {
	case StatusPending:
		return StatePending
	case StatusDone:
		return StateDone
	case StatusFailed:
		return StateFailed
	default:
		return StateProcessing
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
