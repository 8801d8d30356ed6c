package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/emoradar/emoradar/internal/clock"
	"github.com/emoradar/emoradar/internal/domain"
	"github.com/emoradar/emoradar/internal/logger"
	"github.com/emoradar/emoradar/internal/policy"
	"github.com/emoradar/emoradar/internal/retry"
	"github.com/emoradar/emoradar/internal/rules"
)

// recordingEngine records every update and fails the first failN of them.
type recordingEngine struct {
	mu      sync.Mutex
	calls   []rules.Update
	failN   int
	failAll bool
	inner   *rules.MemoryEngine
}

func newRecordingEngine(t *testing.T) *recordingEngine {
	t.Helper()
	inner, err := rules.NewMemoryEngine(0)
	require.NoError(t, err)
	return &recordingEngine{inner: inner}
}

func (e *recordingEngine) UpdateRules(ctx context.Context, u rules.Update) error {
	e.mu.Lock()
	e.calls = append(e.calls, u)
	fail := e.failAll || e.failN > 0
	if e.failN > 0 {
		e.failN--
	}
	e.mu.Unlock()
	if fail {
		return errors.New("rule engine unavailable")
	}
	return e.inner.UpdateRules(ctx, u)
}

func (e *recordingEngine) Rules(ctx context.Context) ([]domain.BlockRule, error) {
	return e.inner.Rules(ctx)
}

func (e *recordingEngine) Calls() []rules.Update {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]rules.Update(nil), e.calls...)
}

func (e *recordingEngine) SetFailAll(v bool) {
	e.mu.Lock()
	e.failAll = v
	e.mu.Unlock()
}

// gatedEngine holds its first update until release is closed.
type gatedEngine struct {
	*recordingEngine
	entered chan struct{}
	release chan struct{}
	first   sync.Once
}

func newGatedEngine(t *testing.T) *gatedEngine {
	t.Helper()
	return &gatedEngine{
		recordingEngine: newRecordingEngine(t),
		entered:         make(chan struct{}),
		release:         make(chan struct{}),
	}
}

func (e *gatedEngine) UpdateRules(ctx context.Context, u rules.Update) error {
	e.first.Do(func() {
		close(e.entered)
		<-e.release
	})
	return e.recordingEngine.UpdateRules(ctx, u)
}

func (e *gatedEngine) waitEntered(t *testing.T) {
	t.Helper()
	select {
	case <-e.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("engine never called")
	}
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []domain.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, note domain.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, note)
	return nil
}

func (n *recordingNotifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

func (n *recordingNotifier) Last() domain.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sent[len(n.sent)-1]
}

type harness struct {
	ctrl     *Controller
	engine   *recordingEngine
	clock    *clock.Fake
	notifier *recordingNotifier
	errs     chan error
	cancel   context.CancelFunc
	stopped  chan struct{}
}

func newHarness(t *testing.T, tweak ...func(*Options)) *harness {
	t.Helper()
	h := &harness{
		engine:   newRecordingEngine(t),
		clock:    clock.NewFake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)),
		notifier: &recordingNotifier{},
		errs:     make(chan error, 16),
		stopped:  make(chan struct{}),
	}
	opts := Options{
		Resolver: policy.NewProvider(nil),
		Engine:   h.engine,
		Clock:    h.clock,
		Notifier: h.notifier,
		Logger:   logger.Nop(),
		Retry:    retry.Policy{MaxAttempts: 1, Initial: time.Millisecond, MaxWait: time.Millisecond},
		OnError:  func(err error) { h.errs <- err },
	}
	for _, fn := range tweak {
		fn(&opts)
	}

	ctrl, err := New(opts)
	require.NoError(t, err)
	h.ctrl = ctrl

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() {
		defer close(h.stopped)
		_ = ctrl.Run(ctx)
	}()
	t.Cleanup(h.stop)
	return h
}

func (h *harness) stop() {
	h.cancel()
	<-h.stopped
}

func (h *harness) send(t *testing.T, m domain.Mood) domain.SessionState {
	t.Helper()
	resp, err := h.ctrl.UpdateMood(context.Background(), m)
	require.NoError(t, err)
	require.True(t, resp.Success)
	return h.status(t)
}

func (h *harness) status(t *testing.T) domain.SessionState {
	t.Helper()
	s, err := h.ctrl.Status(context.Background())
	require.NoError(t, err)
	return s
}

func ruleIDsOf(rs []domain.BlockRule) []int {
	ids := make([]int, len(rs))
	for i, r := range rs {
		ids[i] = r.ID
	}
	return ids
}

func suffixesOf(rs []domain.BlockRule) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.MatchSuffix
	}
	return out
}

func TestBlockingMoodActivatesSession(t *testing.T) {
	h := newHarness(t)

	s := h.send(t, domain.MoodAnxious)

	assert.Equal(t, domain.SessionActive, s.Phase)
	assert.Equal(t, []int{1000, 1001, 1002, 1003}, s.RuleIDs)
	assert.Equal(t, []string{"news.com", "twitter.com", "reddit.com", "facebook.com"}, s.Domains)
	assert.Equal(t, uint64(1), s.Generation)
	assert.Equal(t, s.ArmedAt.Add(DefaultDuration), s.Deadline)
	assert.Equal(t, policy.DefaultVersion, s.PolicyVersion)

	calls := h.engine.Calls()
	require.Len(t, calls, 1)
	assert.Empty(t, calls[0].RemoveIDs)
	assert.Equal(t, []int{1000, 1001, 1002, 1003}, ruleIDsOf(calls[0].AddRules))
	assert.Equal(t, []string{"news.com", "twitter.com", "reddit.com", "facebook.com"}, suffixesOf(calls[0].AddRules))
	for _, r := range calls[0].AddRules {
		assert.Equal(t, domain.RulePriority, r.Priority)
		assert.Equal(t, domain.ScopeMainFrame, r.Scope)
	}
	assert.Equal(t, 1, h.clock.Pending())
}

func TestEveryBlockingMoodInstallsItsList(t *testing.T) {
	for _, m := range []domain.Mood{domain.MoodAngry, domain.MoodSad, domain.MoodAnxious, domain.MoodFocused} {
		t.Run(m.String(), func(t *testing.T) {
			h := newHarness(t)
			want := policy.Default().Resolve(m)

			s := h.send(t, m)

			assert.Equal(t, domain.SessionActive, s.Phase)
			assert.Equal(t, domain.RuleIDs(len(want)), s.RuleIDs)
			installed, err := h.engine.Rules(context.Background())
			require.NoError(t, err)
			assert.Equal(t, want, suffixesOf(installed))
		})
	}
}

func TestSecondMoodReplacesRulesAndRearmsOnce(t *testing.T) {
	h := newHarness(t)

	h.send(t, domain.MoodFocused)
	h.clock.Advance(20 * time.Minute)
	s := h.send(t, domain.MoodSad)

	assert.Equal(t, uint64(2), s.Generation)
	assert.Equal(t, 1, h.clock.Pending())

	calls := h.engine.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, []int{1000, 1001, 1002, 1003}, calls[1].RemoveIDs)
	assert.Equal(t, []int{1000, 1001, 1002}, ruleIDsOf(calls[1].AddRules))

	// the first session's deadline passes without firing
	h.clock.Advance(10 * time.Minute)
	s = h.status(t)
	assert.Equal(t, domain.SessionActive, s.Phase)
	assert.Zero(t, h.notifier.Count())

	h.clock.Advance(15 * time.Minute)
	s = h.status(t)
	assert.Equal(t, domain.SessionIdle, s.Phase)
	assert.Equal(t, 1, h.notifier.Count())
}

func TestLongerToShorterMoodLeavesNoStaleRules(t *testing.T) {
	h := newHarness(t)

	h.send(t, domain.MoodAnxious)
	h.send(t, domain.MoodAngry)

	installed, err := h.engine.Rules(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1000, 1001, 1002}, ruleIDsOf(installed))
	assert.Equal(t, []string{"twitter.com", "facebook.com", "reddit.com"}, suffixesOf(installed))
}

func TestHappyWhileActiveEndsWithoutNotification(t *testing.T) {
	h := newHarness(t)

	h.send(t, domain.MoodAngry)
	s := h.send(t, domain.MoodHappy)

	assert.Equal(t, domain.SessionIdle, s.Phase)
	assert.Empty(t, s.RuleIDs)
	assert.Zero(t, h.clock.Pending())

	calls := h.engine.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, []int{1000, 1001, 1002}, calls[1].RemoveIDs)
	assert.Empty(t, calls[1].AddRules)

	h.clock.Advance(time.Hour)
	h.status(t)
	assert.Zero(t, h.notifier.Count())

	installed, err := h.engine.Rules(context.Background())
	require.NoError(t, err)
	assert.Empty(t, installed)
}

func TestExpiryRemovesRulesAndNotifiesOnce(t *testing.T) {
	h := newHarness(t)

	h.send(t, domain.MoodAnxious)
	h.clock.Advance(25 * time.Minute)
	s := h.status(t)

	assert.Equal(t, domain.SessionIdle, s.Phase)
	assert.Empty(t, s.RuleIDs)
	assert.Equal(t, uint64(1), s.Sessions)
	require.Equal(t, 1, h.notifier.Count())

	n := h.notifier.Last()
	assert.Equal(t, domain.NotificationSessionEnded, n.Type)
	assert.Equal(t, "EmoRadar: Unblocked!", n.Title)
	assert.Equal(t, "Your 25-minute focus session has ended. Sites are unblocked.", n.Message)
	assert.Equal(t, 2, n.Priority)
	assert.Equal(t, domain.MoodAnxious, n.Mood)

	calls := h.engine.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, []int{1000, 1001, 1002, 1003}, calls[1].RemoveIDs)
	assert.Empty(t, calls[1].AddRules)

	h.clock.Advance(time.Hour)
	h.status(t)
	assert.Equal(t, 1, h.notifier.Count())
}

func TestNewSessionAfterExpiryIsIndependent(t *testing.T) {
	h := newHarness(t)

	h.send(t, domain.MoodAngry)
	h.clock.Advance(25 * time.Minute)
	h.status(t)

	s := h.send(t, domain.MoodFocused)
	assert.Equal(t, domain.SessionActive, s.Phase)
	assert.Equal(t, uint64(2), s.Generation)

	calls := h.engine.Calls()
	require.Len(t, calls, 3)
	assert.Empty(t, calls[2].RemoveIDs)
	assert.Equal(t, []int{1000, 1001, 1002, 1003}, ruleIDsOf(calls[2].AddRules))

	h.clock.Advance(25 * time.Minute)
	h.status(t)
	assert.Equal(t, 2, h.notifier.Count())
}

func TestNonBlockingMoodWhileIdleIsAckOnly(t *testing.T) {
	h := newHarness(t)

	for _, m := range []domain.Mood{domain.MoodHappy, domain.MoodUnset, "grumpy"} {
		s := h.send(t, m)
		assert.Equal(t, domain.SessionIdle, s.Phase)
	}
	assert.Empty(t, h.engine.Calls())
	assert.Zero(t, h.clock.Pending())
}

func TestUnknownMessageType(t *testing.T) {
	h := newHarness(t)

	resp, err := h.ctrl.Send(context.Background(), Message{Type: "SET_THEME", Payload: domain.MoodAngry})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Error)

	assert.Equal(t, domain.SessionIdle, h.status(t).Phase)
	assert.Empty(t, h.engine.Calls())
}

func TestMoodPayloadIsNormalized(t *testing.T) {
	h := newHarness(t)

	resp, err := h.ctrl.Send(context.Background(), Message{Type: TypeUpdateMood, Payload: " Angry "})
	require.NoError(t, err)
	require.True(t, resp.Success)
	assert.Equal(t, domain.MoodAngry, h.status(t).Mood)
}

func TestStaleTimerFireIsIgnored(t *testing.T) {
	h := newHarness(t)

	h.send(t, domain.MoodAngry)
	h.send(t, domain.MoodSad)

	stale := uint64(1)
	h.ctrl.inbox <- command{fire: &stale}
	s := h.status(t)

	assert.Equal(t, domain.SessionActive, s.Phase)
	assert.Zero(t, h.notifier.Count())
	assert.Len(t, h.engine.Calls(), 2)
}

func TestEngineFailureIsReportedAndNonFatal(t *testing.T) {
	h := newHarness(t)
	h.engine.SetFailAll(true)

	s := h.send(t, domain.MoodAngry)

	assert.Equal(t, domain.SessionActive, s.Phase)
	assert.Contains(t, s.LastError, "rule engine unavailable")
	select {
	case err := <-h.errs:
		assert.Error(t, err)
	default:
		t.Fatal("expected OnError to be called")
	}

	h.engine.SetFailAll(false)
	s = h.send(t, domain.MoodHappy)
	assert.Equal(t, domain.SessionIdle, s.Phase)
	assert.Empty(t, s.LastError)
	assert.Empty(t, s.RuleIDs)
}

func TestFailedInstallTracksBothGenerations(t *testing.T) {
	h := newHarness(t)

	h.send(t, domain.MoodAngry)
	h.engine.SetFailAll(true)
	s := h.send(t, domain.MoodFocused)
	h.engine.SetFailAll(false)

	assert.Equal(t, []int{1000, 1001, 1002, 1003}, s.RuleIDs)

	h.send(t, domain.MoodHappy)
	calls := h.engine.Calls()
	assert.Equal(t, []int{1000, 1001, 1002, 1003}, calls[len(calls)-1].RemoveIDs)
}

func TestEngineFailureIsRetried(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.Retry = retry.Policy{MaxAttempts: 3, Initial: time.Millisecond, MaxWait: 2 * time.Millisecond}
	})
	h.engine.mu.Lock()
	h.engine.failN = 2
	h.engine.mu.Unlock()

	s := h.send(t, domain.MoodSad)

	assert.Equal(t, domain.SessionActive, s.Phase)
	assert.Empty(t, s.LastError)
	assert.Len(t, h.engine.Calls(), 3)
	assert.Empty(t, h.errs)
}

func TestShutdownRemovesInstalledRules(t *testing.T) {
	h := newHarness(t)

	h.send(t, domain.MoodFocused)
	h.stop()

	installed, err := h.engine.Rules(context.Background())
	require.NoError(t, err)
	assert.Empty(t, installed)
	assert.Zero(t, h.clock.Pending())

	_, err = h.ctrl.UpdateMood(context.Background(), domain.MoodAngry)
	assert.ErrorIs(t, err, ErrStopped)
	_, err = h.ctrl.Status(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
}

func TestOnChangeReceivesSnapshots(t *testing.T) {
	var mu sync.Mutex
	var seen []domain.SessionPhase
	h := newHarness(t, func(o *Options) {
		o.OnChange = func(s domain.SessionState) {
			mu.Lock()
			seen = append(seen, s.Phase)
			mu.Unlock()
		}
	})

	h.send(t, domain.MoodAngry)
	h.clock.Advance(25 * time.Minute)
	h.status(t)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []domain.SessionPhase{domain.SessionActive, domain.SessionIdle}, seen)
}

func TestCustomDurationMessage(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Duration = 50 * time.Minute })

	h.send(t, domain.MoodAngry)
	h.clock.Advance(25 * time.Minute)
	h.status(t)
	assert.Zero(t, h.notifier.Count())

	h.clock.Advance(25 * time.Minute)
	h.status(t)
	require.Equal(t, 1, h.notifier.Count())
	assert.Equal(t, "Your 50-minute focus session has ended. Sites are unblocked.", h.notifier.Last().Message)
}

func TestPolicySwapAppliesToNextSelection(t *testing.T) {
	provider := policy.NewProvider(nil)
	h := newHarness(t, func(o *Options) { o.Resolver = provider })

	next := policy.Default()
	next.Version = 2
	mp := next.Moods[domain.MoodAngry]
	mp.Block = []string{"example.com"}
	next.Moods[domain.MoodAngry] = mp
	provider.Swap(next)

	s := h.send(t, domain.MoodAngry)
	assert.Equal(t, 2, s.PolicyVersion)
	assert.Equal(t, []string{"example.com"}, s.Domains)
	assert.Equal(t, []int{1000}, s.RuleIDs)
}

func TestRunTwice(t *testing.T) {
	h := newHarness(t)
	h.status(t)
	assert.Error(t, h.ctrl.Run(context.Background()))
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(Options{Engine: newRecordingEngine(t), Logger: logger.Nop()})
	assert.Error(t, err)
	_, err = New(Options{Resolver: policy.Default(), Logger: logger.Nop()})
	assert.Error(t, err)
	_, err = New(Options{Resolver: policy.Default(), Engine: newRecordingEngine(t)})
	assert.Error(t, err)
}

func TestSendAcksWhileEngineIsBusy(t *testing.T) {
	engine := newGatedEngine(t)
	h := newHarness(t, func(o *Options) { o.Engine = engine })
	var releaseOnce sync.Once
	release := func() { releaseOnce.Do(func() { close(engine.release) }) }
	t.Cleanup(release)

	_, err := h.ctrl.UpdateMood(context.Background(), domain.MoodAngry)
	require.NoError(t, err)
	engine.waitEntered(t)

	moodsSent := []domain.Mood{domain.MoodSad, domain.MoodFocused, domain.MoodAnxious}
	var last domain.Mood
	for i := 0; i < 4*inboxSize; i++ {
		last = moodsSent[i%len(moodsSent)]
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		resp, err := h.ctrl.UpdateMood(ctx, last)
		cancel()
		require.NoError(t, err, "send %d", i)
		require.True(t, resp.Success, "send %d", i)
	}

	release()
	s := h.status(t)
	assert.Equal(t, last, s.Mood)
	assert.Equal(t, uint64(2), s.Generation, "queued moods collapse into the newest one")
	assert.Len(t, engine.Calls(), 2)
}

func TestShutdownDiscardsPendingMood(t *testing.T) {
	engine := newGatedEngine(t)
	core, logs := observer.New(zap.DebugLevel)
	h := newHarness(t, func(o *Options) {
		o.Engine = engine
		o.Logger = logger.FromZap(zap.New(core))
	})

	_, err := h.ctrl.UpdateMood(context.Background(), domain.MoodAngry)
	require.NoError(t, err)
	engine.waitEntered(t)
	resp, err := h.ctrl.UpdateMood(context.Background(), domain.MoodSad)
	require.NoError(t, err)
	require.True(t, resp.Success)

	h.cancel()
	close(engine.release)
	<-h.stopped

	calls := engine.Calls()
	require.Len(t, calls, 2)
	assert.Len(t, calls[0].AddRules, 3, "angry installs its list")
	assert.Empty(t, calls[1].AddRules, "shutdown only removes")
	assert.Equal(t, []int{1000, 1001, 1002}, calls[1].RemoveIDs)

	installed, err := engine.Rules(context.Background())
	require.NoError(t, err)
	assert.Empty(t, installed)

	discarded := logs.FilterMessage("discarding pending mood on shutdown").All()
	require.Len(t, discarded, 1)
	assert.Equal(t, "sad", discarded[0].ContextMap()["mood"])
}
