// Package session runs the timed block session: a mood selection installs that
// mood's block rules, arms one countdown, and expiry removes the rules again.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/emoradar/emoradar/internal/clock"
	"github.com/emoradar/emoradar/internal/domain"
	"github.com/emoradar/emoradar/internal/logger"
	"github.com/emoradar/emoradar/internal/policy"
	"github.com/emoradar/emoradar/internal/retry"
	"github.com/emoradar/emoradar/internal/rules"
)

const (
	// DefaultDuration is the length of a block session.
	DefaultDuration = 25 * time.Minute

	// NotificationTitle is the title of the expiry notification.
	NotificationTitle = "EmoRadar: Unblocked!"

	// NotificationPriority is the priority of the expiry notification.
	NotificationPriority = 2

	inboxSize       = 32
	shutdownTimeout = 2 * time.Second
)

// ErrStopped is returned by Send and Status once Run has returned.
var ErrStopped = errors.New("session controller stopped")

// Notifier delivers the expiry notification.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}

// versioned is implemented by resolvers that know their policy version.
type versioned interface {
	Version() int
}

// Options configure a Controller. Resolver, Engine and Logger are required.
type Options struct {
	Resolver policy.Resolver
	Engine   rules.Engine
	Clock    clock.Clock
	Notifier Notifier
	Logger   logger.Logger
	Duration time.Duration
	Retry    retry.Policy

	// OnError observes rule-engine failures that outlived the retry policy.
	OnError func(error)
	// OnChange receives a snapshot after every state transition.
	OnChange func(domain.SessionState)
}

// Controller owns the session state. All state lives in the Run goroutine.
// Status and timer fires reach it through a FIFO inbox. Moods go to a single
// pending slot where the newest selection replaces one not yet handled, and
// that slot is drained before any inbox command.
type Controller struct {
	resolver policy.Resolver
	engine   rules.Engine
	clock    clock.Clock
	notifier Notifier
	log      logger.Logger
	duration time.Duration
	retry    retry.Policy
	onError  func(error)
	onChange func(domain.SessionState)

	inbox   chan command
	wake    chan struct{}
	done    chan struct{}
	started chan struct{}

	pendingMu sync.Mutex
	pending   *domain.Mood
}

type command struct {
	fire   *uint64
	status chan domain.SessionState
}

// New validates opts and returns an idle controller. Call Run to start it.
func New(opts Options) (*Controller, error) {
	if opts.Resolver == nil {
		return nil, errors.New("session: resolver is required")
	}
	if opts.Engine == nil {
		return nil, errors.New("session: rule engine is required")
	}
	if opts.Logger == nil {
		return nil, errors.New("session: logger is required")
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Duration <= 0 {
		opts.Duration = DefaultDuration
	}
	if opts.Retry == (retry.Policy{}) {
		opts.Retry = retry.Policy{MaxAttempts: 1, Initial: time.Millisecond, MaxWait: time.Millisecond}
	}
	if err := opts.Retry.Validate(); err != nil {
		return nil, fmt.Errorf("session: invalid retry policy: %w", err)
	}

	return &Controller{
		resolver: opts.Resolver,
		engine:   opts.Engine,
		clock:    opts.Clock,
		notifier: opts.Notifier,
		log:      opts.Logger.Named("session"),
		duration: opts.Duration,
		retry:    opts.Retry,
		onError:  opts.OnError,
		onChange: opts.OnChange,
		inbox:    make(chan command, inboxSize),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		started:  make(chan struct{}),
	}, nil
}

// Duration returns the configured session length.
func (c *Controller) Duration() time.Duration { return c.duration }

// Send accepts msg and acknowledges it without waiting for the rule engine.
// It never blocks. Unknown message types are acknowledged with Success false.
func (c *Controller) Send(_ context.Context, msg Message) (Response, error) {
	if msg.Type != TypeUpdateMood {
		return Response{Success: false, Error: fmt.Sprintf("unknown message type %q", msg.Type)}, nil
	}
	select {
	case <-c.done:
		return Response{Success: false, Error: ErrStopped.Error()}, ErrStopped
	default:
	}

	mood := domain.ParseMood(string(msg.Payload))
	c.pendingMu.Lock()
	replaced := c.pending
	c.pending = &mood
	c.pendingMu.Unlock()
	if replaced != nil {
		c.log.Debug("pending mood replaced",
			logger.String("replaced", replaced.String()),
			logger.String("mood", mood.String()))
	}

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return Response{Success: true}, nil
}

// UpdateMood is Send with an UPDATE_MOOD message.
func (c *Controller) UpdateMood(ctx context.Context, m domain.Mood) (Response, error) {
	return c.Send(ctx, Message{Type: TypeUpdateMood, Payload: m})
}

// Status returns a snapshot taken after every previously sent message was handled.
func (c *Controller) Status(ctx context.Context) (domain.SessionState, error) {
	reply := make(chan domain.SessionState, 1)
	if err := c.enqueue(ctx, command{status: reply}); err != nil {
		return domain.SessionState{}, err
	}
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return domain.SessionState{}, ctx.Err()
	case <-c.done:
		return domain.SessionState{}, ErrStopped
	}
}

func (c *Controller) enqueue(ctx context.Context, cmd command) error {
	select {
	case <-c.done:
		return ErrStopped
	default:
	}
	select {
	case c.inbox <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrStopped
	}
}

// Run processes moods and the inbox until ctx is done. On exit it cancels the
// timer and removes any installed rules so nothing stays blocked without a
// countdown. A mood still pending at that point is discarded and logged.
func (c *Controller) Run(ctx context.Context) error {
	select {
	case <-c.started:
		return errors.New("session: controller already running")
	default:
		close(c.started)
	}
	defer close(c.done)

	r := &runner{Controller: c, state: domain.SessionState{Phase: domain.SessionIdle}}
	c.log.Info("session controller started", logger.Duration("duration", c.duration))

	for {
		if ctx.Err() != nil {
			r.shutdown(ctx)
			c.log.Info("session controller stopped")
			return nil
		}
		select {
		case <-ctx.Done():
		case <-c.wake:
			r.drainPending(ctx)
		case cmd := <-c.inbox:
			r.drainPending(ctx)
			switch {
			case cmd.fire != nil:
				r.expire(ctx, *cmd.fire)
			case cmd.status != nil:
				cmd.status <- r.state.Clone()
			}
		}
	}
}

// runner is the state confined to the Run goroutine.
type runner struct {
	*Controller
	state domain.SessionState
	timer clock.Timer
}

func (c *Controller) takePending() *domain.Mood {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	m := c.pending
	c.pending = nil
	return m
}

func (r *runner) drainPending(ctx context.Context) {
	if m := r.takePending(); m != nil {
		r.selectMood(ctx, *m)
	}
}

func (r *runner) selectMood(ctx context.Context, mood domain.Mood) {
	domains := r.resolver.Resolve(mood)
	r.cancelTimer()

	if len(domains) == 0 {
		if len(r.state.RuleIDs) == 0 {
			r.log.Debug("non-blocking mood while idle", logger.String("mood", mood.String()))
			r.state.Mood = mood
			r.state.Phase = domain.SessionIdle
			return
		}
		r.log.Info("non-blocking mood, ending session early",
			logger.String("mood", mood.String()),
			logger.Ints("removed", r.state.RuleIDs))
		r.removeTracked(ctx)
		r.state.Mood = mood
		r.state.Phase = domain.SessionIdle
		r.state.Domains = nil
		r.state.ArmedAt, r.state.Deadline = time.Time{}, time.Time{}
		r.changed()
		return
	}

	add := policy.RulesFor(domains)
	update := rules.Update{RemoveIDs: r.state.RuleIDs, AddRules: add}
	newIDs := domain.RuleIDs(len(add))

	if err := r.apply(ctx, update); err != nil {
		// Either generation may be installed now; track both so the next removal covers them.
		newIDs = union(r.state.RuleIDs, newIDs)
	} else {
		r.state.LastError = ""
	}

	now := r.clock.Now()
	r.state.Generation++
	r.state.Phase = domain.SessionActive
	r.state.Mood = mood
	r.state.Domains = domains
	r.state.RuleIDs = newIDs
	r.state.ArmedAt = now
	r.state.Deadline = now.Add(r.duration)
	if v, ok := r.resolver.(versioned); ok {
		r.state.PolicyVersion = v.Version()
	}
	r.arm(r.state.Generation)

	r.log.Info("block session armed",
		logger.String("mood", mood.String()),
		logger.Strings("domains", domains),
		logger.Uint64("generation", r.state.Generation),
		logger.Time("deadline", r.state.Deadline))
	r.changed()
}

func (r *runner) expire(ctx context.Context, gen uint64) {
	if !r.state.Active() || gen != r.state.Generation {
		r.log.Debug("ignoring stale timer fire",
			logger.Uint64("fired", gen),
			logger.Uint64("current", r.state.Generation))
		return
	}
	r.timer = nil

	mood := r.state.Mood
	r.removeTracked(ctx)
	r.state.Phase = domain.SessionIdle
	r.state.Domains = nil
	r.state.ArmedAt, r.state.Deadline = time.Time{}, time.Time{}
	r.state.Sessions++

	r.log.Info("block session ended", logger.String("mood", mood.String()))
	r.notify(ctx, mood)
	r.changed()
}

func (r *runner) shutdown(ctx context.Context) {
	if m := r.takePending(); m != nil {
		r.log.Warn("discarding pending mood on shutdown", logger.String("mood", m.String()))
	}
	r.cancelTimer()
	if len(r.state.RuleIDs) == 0 {
		return
	}
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := r.engine.UpdateRules(cleanupCtx, rules.Update{RemoveIDs: r.state.RuleIDs}); err != nil {
		r.log.Error("failed to remove rules on shutdown",
			logger.Ints("rule_ids", r.state.RuleIDs),
			logger.Error(err))
		return
	}
	r.log.Info("removed rules on shutdown", logger.Ints("rule_ids", r.state.RuleIDs))
	r.state.RuleIDs = nil
	r.state.Phase = domain.SessionIdle
}

// removeTracked removes the tracked generation. Ids stay tracked if removal fails.
func (r *runner) removeTracked(ctx context.Context) {
	if len(r.state.RuleIDs) == 0 {
		return
	}
	if err := r.apply(ctx, rules.Update{RemoveIDs: r.state.RuleIDs}); err != nil {
		return
	}
	r.state.RuleIDs = nil
	r.state.LastError = ""
}

// apply runs u through the retry policy and reports a final failure.
func (r *runner) apply(ctx context.Context, u rules.Update) error {
	attempts, err := retry.Do(ctx, r.retry, func(ctx context.Context) error {
		return r.engine.UpdateRules(ctx, u)
	}, func(attempt int, wait time.Duration, err error) {
		r.log.Warn("rule update failed, retrying",
			logger.Int("attempt", attempt),
			logger.Duration("next_retry_in", wait),
			logger.Error(err))
	})
	if err == nil {
		return nil
	}

	r.log.Error("rule update failed",
		logger.Ints("remove", u.RemoveIDs),
		logger.Int("add", len(u.AddRules)),
		logger.Int("attempts", attempts),
		logger.Error(err))
	r.state.LastError = err.Error()
	if r.onError != nil {
		r.onError(err)
	}
	return err
}

func (r *runner) arm(gen uint64) {
	r.timer = r.clock.AfterFunc(r.duration, func() {
		select {
		case r.inbox <- command{fire: &gen}:
		case <-r.done:
		}
	})
}

func (r *runner) cancelTimer() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *runner) notify(ctx context.Context, mood domain.Mood) {
	if r.notifier == nil {
		return
	}
	n := domain.Notification{
		Type:     domain.NotificationSessionEnded,
		Title:    NotificationTitle,
		Message:  endedMessage(r.duration),
		Priority: NotificationPriority,
		Mood:     mood,
		EndedAt:  r.clock.Now(),
	}
	if err := r.notifier.Notify(ctx, n); err != nil {
		r.log.Warn("failed to deliver notification", logger.Error(err))
	}
}

func (r *runner) changed() {
	if r.onChange != nil {
		r.onChange(r.state.Clone())
	}
}

func endedMessage(d time.Duration) string {
	if m := int(d / time.Minute); m >= 1 && d%time.Minute == 0 {
		return fmt.Sprintf("Your %d-minute focus session has ended. Sites are unblocked.", m)
	}
	return fmt.Sprintf("Your %s focus session has ended. Sites are unblocked.", d)
}

func union(a, b []int) []int {
	seen := make(map[int]bool, len(a)+len(b))
	out := make([]int, 0, len(a)+len(b))
	for _, ids := range [][]int{a, b} {
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}
