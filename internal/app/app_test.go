package app

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emoradar/emoradar/internal/config"
	"github.com/emoradar/emoradar/internal/domain"
	"github.com/emoradar/emoradar/internal/logger"
	"github.com/emoradar/emoradar/internal/rules"
)

func testConfig() *config.Config {
	return &config.Config{
		ListenPort:           "127.0.0.1:0",
		ShutdownTimeout:      3 * time.Second,
		RequestTimeout:       3 * time.Second,
		LogLevel:             "error",
		SessionDuration:      25 * time.Minute,
		Store:                "memory",
		HistoryRecent:        10,
		HistoryPruneInterval: time.Hour,
		RulesBackend:         "memory",
		RulesCacheSize:       16,
		RulesRetryAttempts:   2,
		RulesRetryInitial:    time.Millisecond,
		RulesRetryMaxWait:    time.Millisecond,
		SubmitRateBurst:      50,
		SubmitRatePerMin:     50,
		SubmitForwards:       true,
	}
}

type running struct {
	app    *App
	base   string
	cancel context.CancelFunc
	done   chan error
}

func start(t *testing.T, cfg *config.Config) *running {
	t.Helper()
	a, err := NewWithConfig(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	r := &running{app: a, base: "http://" + ln.Addr().String(), cancel: cancel, done: make(chan error, 1)}
	go func() { r.done <- a.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get(r.base + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 3*time.Second, 20*time.Millisecond)
	return r
}

func (r *running) stop(t *testing.T) {
	t.Helper()
	r.cancel()
	select {
	case err := <-r.done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}
}

func getJSON(t *testing.T, url string, v any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func submit(t *testing.T, base, mood string) {
	t.Helper()
	resp, err := http.Post(base+"/api/mood/submit", "application/json", strings.NewReader(`{"mood":"`+mood+`"}`))
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestAppServesAndCleansUpOnShutdown(t *testing.T) {
	r := start(t, testConfig())

	submit(t, r.base, "anxious")

	var state domain.SessionState
	getJSON(t, r.base+"/api/session", &state)
	assert.Equal(t, domain.SessionActive, state.Phase)
	assert.Equal(t, []int{1000, 1001, 1002, 1003}, state.RuleIDs)

	r.stop(t)

	engine := r.app.engine.(*rules.MemoryEngine)
	assert.Zero(t, engine.Count(), "shutdown should remove installed rules")
}

func TestAppSubmitWithoutForwardingLeavesSessionToExtension(t *testing.T) {
	cfg := testConfig()
	cfg.SubmitForwards = false
	r := start(t, cfg)
	defer r.stop(t)

	submit(t, r.base, "angry")

	var state domain.SessionState
	getJSON(t, r.base+"/api/session", &state)
	assert.Equal(t, domain.SessionIdle, state.Phase, "submit only records history")
	assert.Empty(t, state.RuleIDs)

	resp, err := http.Post(r.base+"/api/extension/message", "application/json",
		strings.NewReader(`{"type":"UPDATE_MOOD","payload":"angry"}`))
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	getJSON(t, r.base+"/api/session", &state)
	assert.Equal(t, domain.SessionActive, state.Phase)
	assert.Equal(t, uint64(1), state.Generation, "one selection arms one session")
}

func TestAppBoltHistorySurvivesRestart(t *testing.T) {
	cfg := testConfig()
	cfg.Store = "bolt"
	cfg.BoltPath = filepath.Join(t.TempDir(), "moods.db")

	first := start(t, cfg)
	submit(t, first.base, "sad")
	submit(t, first.base, "happy")
	first.stop(t)

	second := start(t, cfg)
	defer second.stop(t)

	var all []domain.MoodEntry
	getJSON(t, second.base+"/api/mood/all", &all)
	require.Len(t, all, 2)
	assert.Equal(t, domain.MoodSad, all[0].Mood)

	var recent []domain.MoodEntry
	getJSON(t, second.base+"/api/mood/recent", &recent)
	assert.Len(t, recent, 2, "recent list is warmed from the store on startup")
}

func TestAppFailsOnInvalidPolicyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 0\nmoods: {}\n"), 0o600))

	cfg := testConfig()
	cfg.PolicyFile = path
	a, err := NewWithConfig(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	err = a.Serve(context.Background(), ln)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start policy reloader")
}

func TestNewRejectsUnopenableBoltPath(t *testing.T) {
	cfg := testConfig()
	cfg.Store = "bolt"
	cfg.BoltPath = filepath.Join(t.TempDir(), "missing", "dir", "moods.db")

	_, err := NewWithConfig(context.Background(), cfg, logger.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open bolt store")
}
