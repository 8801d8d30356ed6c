package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/emoradar/emoradar/internal/clock"
	"github.com/emoradar/emoradar/internal/config"
	"github.com/emoradar/emoradar/internal/domain"
	"github.com/emoradar/emoradar/internal/httpserver"
	"github.com/emoradar/emoradar/internal/httpserver/deps"
	"github.com/emoradar/emoradar/internal/index"
	"github.com/emoradar/emoradar/internal/logger"
	"github.com/emoradar/emoradar/internal/moods"
	"github.com/emoradar/emoradar/internal/notify"
	"github.com/emoradar/emoradar/internal/policy"
	"github.com/emoradar/emoradar/internal/redis"
	"github.com/emoradar/emoradar/internal/retry"
	"github.com/emoradar/emoradar/internal/rules"
	"github.com/emoradar/emoradar/internal/scheduler"
	"github.com/emoradar/emoradar/internal/session"
	boltstore "github.com/emoradar/emoradar/internal/store/bolt"
	redisstore "github.com/emoradar/emoradar/internal/store/redis"
	"github.com/emoradar/emoradar/internal/version"
)

type App struct {
	cfg         *config.Config
	logger      logger.Logger
	server      *httpserver.Server
	redisClient *goredis.Client
	closers     []io.Closer
	engine      rules.Engine
	hub         *notify.Hub
	controller  *session.Controller
	reloader    *scheduler.PolicyReloader
	pruner      *scheduler.HistoryPruner
	syncer      *scheduler.HistorySyncer
}

// New loads the configuration from the environment and builds the app.
func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return NewWithConfig(ctx, cfg, logger.New(cfg.LogLevel, cfg.PrettyLog))
}

// NewWithConfig wires every component from cfg. Redis is dialed here so a
// misconfigured backend fails before the listener opens.
func NewWithConfig(ctx context.Context, cfg *config.Config, loggerClient logger.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: loggerClient}
	loggerClient.Debug("configuration loaded", logger.String("config", fmt.Sprintf("%+v", cfg.Redacted())))

	if cfg.UsesRedis() {
		loggerClient.Infof("Connecting to Redis at %s", cfg.RedisAddr)
		client, err := redis.New(ctx, redis.ConnectOptions{
			Addr:           cfg.RedisAddr,
			User:           cfg.RedisUser,
			Password:       cfg.RedisPassword,
			RedisDB:        cfg.RedisDB,
			DialTimeout:    cfg.RedisDT,
			ReadTimeout:    cfg.RedisRT,
			WriteTimeout:   cfg.RedisWT,
			PoolSize:       cfg.RedisPoolSize,
			ConnectTimeout: cfg.RedisConnectTimeout,
			RetryInterval:  cfg.RedisRetryInterval,
			MaxWait:        cfg.RedisMaxWait,
			PingTimeout:    cfg.RedisPingTimeout,
			WarnThreshold:  cfg.RedisWarnThreshold,
		}, loggerClient)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.redisClient = client
		a.closers = append(a.closers, client)
	}

	store, err := a.openStore()
	if err != nil {
		a.close()
		return nil, err
	}
	engine, err := a.openEngine()
	if err != nil {
		a.close()
		return nil, err
	}
	a.engine = engine

	provider := policy.NewProvider(nil)
	a.hub = notify.NewHub(loggerClient)

	a.controller, err = session.New(session.Options{
		Resolver: provider,
		Engine:   engine,
		Clock:    clock.Real{},
		Notifier: notify.Multi{a.hub, notify.NewLogNotifier(loggerClient)},
		Logger:   loggerClient,
		Duration: cfg.SessionDuration,
		Retry: retry.Policy{
			MaxAttempts: cfg.RulesRetryAttempts,
			Initial:     cfg.RulesRetryInitial,
			MaxWait:     cfg.RulesRetryMaxWait,
		},
		OnChange: func(s domain.SessionState) { a.hub.Publish(notify.SessionEvent(s)) },
	})
	if err != nil {
		a.close()
		return nil, err
	}

	serviceOpts := []moods.ServiceOption{
		moods.WithOnSubmit(func(e domain.MoodEntry) { a.hub.Publish(notify.MoodEvent(e)) }),
	}
	if cfg.SubmitForwards {
		serviceOpts = append(serviceOpts, moods.WithForwarder(a.controller))
	} else {
		loggerClient.Info("mood submissions are history only, sessions follow /api/extension/message")
	}
	moodService := moods.NewService(store, index.NewHistory(cfg.HistoryRecent), provider, loggerClient, serviceOpts...)

	reloadTrigger := make(chan struct{}, 1)
	a.reloader = scheduler.NewPolicyReloader(
		policy.NewLoader(cfg.PolicyFile),
		provider,
		loggerClient,
		cfg.PolicyReloadInterval,
		reloadTrigger,
		func(p *policy.Policy) { a.hub.Publish(notify.PolicyEvent(p.Version)) },
	)
	a.pruner = scheduler.NewHistoryPruner(moodService, loggerClient, cfg.HistoryPruneInterval, cfg.HistoryRetention)
	a.syncer = scheduler.NewHistorySyncer(moodService, loggerClient)

	d := deps.Deps{
		Logger:           loggerClient,
		StartTime:        time.Now(),
		Build:            version.Current(),
		TimeNow:          time.Now,
		AllowedHosts:     cfg.AllowedHosts,
		AllowedCIDRS:     cfg.AllowedCIDRS,
		TrustProxy:       cfg.TrustProxy,
		SubmitRateBurst:  cfg.SubmitRateBurst,
		SubmitRatePerMin: cfg.SubmitRatePerMin,
		Moods:            moodService,
		Session:          a.controller,
		Engine:           engine,
		Policy:           provider,
		Reloader:         a.reloader,
		ReloadTrigger:    reloadTrigger,
		Events:           a.hub,
		RedisClient:      a.redisClient,
		StoreKind:        cfg.Store,
		RulesBackend:     cfg.RulesBackend,
	}
	a.server = httpserver.New(cfg, loggerClient, d)
	return a, nil
}

func (a *App) openStore() (moods.Store, error) {
	switch a.cfg.Store {
	case "redis":
		return redisstore.NewStore(a.redisClient), nil
	case "bolt":
		st, err := boltstore.Open(a.cfg.BoltPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open bolt store: %w", err)
		}
		a.closers = append(a.closers, st)
		a.logger.Info("bolt store opened", logger.String("path", st.Path()))
		return st, nil
	default:
		return moods.NewMemoryStore(), nil
	}
}

func (a *App) openEngine() (rules.Engine, error) {
	if a.cfg.RulesBackend == "redis" {
		return rules.NewRedisEngine(a.redisClient), nil
	}
	e, err := rules.NewMemoryEngine(a.cfg.RulesCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create rule engine: %w", err)
	}
	return e, nil
}

// Run starts every component and blocks until ctx is cancelled or the HTTP
// server fails, then shuts down in order: event streams, HTTP, session
// controller (which removes its rules), backends.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.ListenPort)
	if err != nil {
		a.close()
		return fmt.Errorf("failed to listen on %s: %w", a.cfg.ListenPort, err)
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	a.logger.Infof("🚀 Starting EmoRadar %s on %s", version.Version, ln.Addr())
	a.logger.Info(version.Current().String())

	if removed, err := rules.ClearSessionRules(ctx, a.engine); err != nil {
		a.logger.Warn("failed to clear rules left by a previous run", logger.Error(err))
	} else if len(removed) > 0 {
		a.logger.Warn("removed rules left by a previous run", logger.Ints("rule_ids", removed))
	}

	if err := a.reloader.Start(ctx); err != nil {
		_ = ln.Close()
		a.close()
		return fmt.Errorf("failed to start policy reloader: %w", err)
	}
	a.logger.Info("policy reloader started",
		logger.Duration("interval", a.cfg.PolicyReloadInterval))

	if err := a.syncer.Sync(ctx); err != nil {
		a.logger.Warn("failed to sync mood history on startup", logger.Error(err))
	}
	if err := a.pruner.Start(ctx); err != nil {
		a.logger.Warn("failed to start history pruner", logger.Error(err))
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	a.hub.Start(hubCtx)

	ctrlCtx, stopController := context.WithCancel(context.Background())
	defer stopController()
	ctrlDone := make(chan error, 1)
	go func() { ctrlDone <- a.controller.Run(ctrlCtx) }()

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Serve(ln); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case runErr = <-errCh:
		a.logger.Error("http server failed, shutting down", logger.Error(runErr))
	}

	a.reloader.Stop()
	a.pruner.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.hub.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("event hub did not stop cleanly", logger.Error(err))
	}
	if err := a.server.Stop(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("failed to stop server: %w", err))
	}

	stopController()
	select {
	case err := <-ctrlDone:
		if err != nil {
			runErr = errors.Join(runErr, err)
		}
	case <-shutdownCtx.Done():
		a.logger.Warn("session controller did not stop before the shutdown deadline")
	}

	a.close()
	if runErr == nil {
		a.logger.Info("✅ EmoRadar stopped cleanly")
	}
	_ = a.logger.Sync()
	return runErr
}

// close releases backends in reverse order of opening.
func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Warnf("failed to close backend: %v", err)
		}
	}
	a.closers = nil
}
