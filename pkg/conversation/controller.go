package conversation

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Completer is the remote inference endpoint as seen by the controller.
// An empty reply means the endpoint answered without a response text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, prompt string) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Policy decides what happens to a submission made while another one is in flight.
type Policy string

const (
	// PolicyQueue holds later submissions in FIFO order until the gate frees up.
	PolicyQueue Policy = "queue"
	// PolicyReject refuses submissions while busy with ErrBusy.
	PolicyReject Policy = "reject"
	// PolicyOverlap lets submissions run concurrently; replies may interleave.
	PolicyOverlap Policy = "overlap"
)

func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyQueue, PolicyReject, PolicyOverlap:
		return p, nil
	case "":
		return PolicyQueue, nil
	default:
		return "", errors.Errorf("unknown submission policy: %q", s)
	}
}

var (
	ErrBusy           = errors.New("a request is already in flight")
	ErrAlreadyAwaited = errors.New("submission already awaited")
)

// Outcome is how a single submission ended.
type Outcome int

const (
	OutcomeSkipped Outcome = iota
	OutcomeFulfilled
	OutcomeRejected
	OutcomeAbandoned
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFulfilled:
		return "fulfilled"
	case OutcomeRejected:
		return "rejected"
	case OutcomeAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// Controller runs the submit-and-respond protocol against a Store.
type Controller struct {
	store     *Store
	completer Completer
	preamble  string
	policy    Policy

	mu       sync.Mutex
	inflight bool
	queue    []*Submission
}

type ControllerOption func(*Controller)

func WithPreamble(preamble string) ControllerOption {
	return func(c *Controller) {
		c.preamble = preamble
	}
}

func WithPolicy(p Policy) ControllerOption {
	return func(c *Controller) {
		if p != "" {
			c.policy = p
		}
	}
}

func NewController(store *Store, completer Completer, opts ...ControllerOption) *Controller {
	c := &Controller{
		store:     store,
		completer: completer,
		preamble:  DefaultPreamble,
		policy:    PolicyQueue,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Controller) Store() *Store {
	return c.store
}

func (c *Controller) Policy() Policy {
	return c.policy
}

// Pending returns the number of submissions waiting for the gate.
func (c *Controller) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Submit runs one full exchange for the current draft and returns once it settled.
func (c *Controller) Submit(ctx context.Context) (Outcome, error) {
	sub, err := c.Begin()
	if err != nil {
		return OutcomeSkipped, err
	}
	if sub == nil {
		return OutcomeSkipped, nil
	}
	return sub.Await(ctx)
}

// Begin performs the synchronous half of a submission: it validates the
// draft and, if the gate is free, appends the user message, clears the draft
// and raises busy. It returns nil when the draft is blank. Under PolicyQueue a
// busy controller clears the draft and queues the submission instead.
func (c *Controller) Begin() (*Submission, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	text := c.store.Draft()
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	sub := &Submission{c: c, text: text, beganAt: time.Now()}

	switch c.policy {
	case PolicyOverlap:
		c.dispatch(sub)
		return sub, nil

	case PolicyReject:
		if c.inflight {
			return nil, ErrBusy
		}
		c.inflight = true
		sub.gated = true
		c.dispatch(sub)
		return sub, nil

	default:
		sub.gated = true
		if !c.inflight && len(c.queue) == 0 {
			c.inflight = true
			c.dispatch(sub)
			return sub, nil
		}
		sub.ready = make(chan struct{})
		c.queue = append(c.queue, sub)
		c.store.SetDraft("")
		log.Debug().
			Str("component", "controller").
			Str("session_id", c.store.SessionID()).
			Int("queue_position", len(c.queue)).
			Msg("submission queued")
		return sub, nil
	}
}

func (c *Controller) dispatch(sub *Submission) {
	c.store.AppendMessage(RoleUser, sub.text)
	c.store.SetDraft("")
	c.store.SetBusy(true)
}

// release hands the gate to the next queued submission or frees it.
func (c *Controller) release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) > 0 {
		next := c.queue[0]
		c.queue = c.queue[1:]
		close(next.ready)
		return
	}
	c.inflight = false
}

// abandon removes a queued submission. It reports false when the submission
// was already handed the gate.
func (c *Controller) abandon(sub *Submission) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, q := range c.queue {
		if q == sub {
			c.queue = append(c.queue[:i], c.queue[i+1:]...)
			return true
		}
	}
	return false
}

// Submission is one accepted draft on its way to settlement.
type Submission struct {
	c       *Controller
	text    string
	beganAt time.Time
	gated   bool
	ready   chan struct{}
	awaited atomic.Bool
}

func (s *Submission) Text() string {
	return s.text
}

// Queued reports whether the submission had to wait for the gate.
func (s *Submission) Queued() bool {
	return s.ready != nil
}

// Await waits for the gate if needed, calls the endpoint and appends the
// reply or the error placeholder. Endpoint failures are converted into a
// transcript entry and never returned.
func (s *Submission) Await(ctx context.Context) (Outcome, error) {
	if !s.awaited.CompareAndSwap(false, true) {
		return OutcomeSkipped, ErrAlreadyAwaited
	}
	c := s.c

	if s.ready != nil {
		select {
		case <-s.ready:
		case <-ctx.Done():
			if !c.abandon(s) {
				// the gate was handed over concurrently, pass it on
				c.release()
			}
			log.Debug().
				Str("component", "controller").
				Str("session_id", c.store.SessionID()).
				Msg("queued submission abandoned")
			return OutcomeAbandoned, ctx.Err()
		}
		// the draft was already cleared when the submission was queued
		c.store.AppendMessage(RoleUser, s.text)
		c.store.SetBusy(true)
	}

	if s.gated {
		defer c.release()
	}
	defer c.store.SetBusy(false)

	logger := log.With().
		Str("component", "controller").
		Str("session_id", c.store.SessionID()).
		Logger()

	start := time.Now()
	reply, err := c.completer.Complete(ctx, BuildPrompt(c.preamble, s.text))
	if err != nil {
		logger.Warn().Err(err).Dur("elapsed", time.Since(start)).Msg("exchange failed")
		c.store.AppendMessage(RoleBot, ConnectionErrorText)
		return OutcomeRejected, nil
	}
	if reply == "" {
		logger.Warn().Dur("elapsed", time.Since(start)).Msg("endpoint returned no response text")
		reply = NoResponseText
	}
	c.store.AppendMessage(RoleBot, reply)
	logger.Debug().
		Dur("elapsed", time.Since(start)).
		Dur("since_begin", time.Since(s.beganAt)).
		Msg("exchange fulfilled")
	return OutcomeFulfilled, nil
}
