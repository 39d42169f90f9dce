package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/p-blackswan/reply-agent/internal/config"
	"github.com/p-blackswan/reply-agent/internal/dedup"
	"github.com/p-blackswan/reply-agent/internal/event"
	"github.com/p-blackswan/reply-agent/internal/graph"
	"github.com/p-blackswan/reply-agent/internal/health"
	"github.com/p-blackswan/reply-agent/internal/metrics"
	"github.com/p-blackswan/reply-agent/internal/mgmt"
	"github.com/p-blackswan/reply-agent/internal/pipeline"
	"github.com/p-blackswan/reply-agent/internal/replylog"
	"github.com/p-blackswan/reply-agent/internal/rules"
)

// clientHandle holds the Graph client behind an atomic pointer so the OAuth
// callback can swap in a freshly connected client while the pipeline and the
// management API keep their references.
type clientHandle struct {
	ptr atomic.Pointer[graph.Client]
}

func (h *clientHandle) set(c *graph.Client) { h.ptr.Store(c) }

func (h *clientHandle) connected() bool { return h.ptr.Load() != nil }

// AccountID returns the connected account's ID, or "" before connect. The
// management API reads it live so rules land under the key events carry.
func (h *clientHandle) AccountID() string {
	if c := h.ptr.Load(); c != nil {
		return c.AccountID()
	}
	return ""
}

func (h *clientHandle) SendMessage(ctx context.Context, recipientID, text string) (string, error) {
	c := h.ptr.Load()
	if c == nil {
		return "", fmt.Errorf("no account connected")
	}
	return c.SendMessage(ctx, recipientID, text)
}

func (h *clientHandle) ListMedia(ctx context.Context) ([]graph.Media, error) {
	c := h.ptr.Load()
	if c == nil {
		return nil, fmt.Errorf("no account connected")
	}
	return c.ListMedia(ctx)
}

func (h *clientHandle) ListComments(ctx context.Context, mediaID string) ([]graph.Comment, error) {
	c := h.ptr.Load()
	if c == nil {
		return nil, fmt.Errorf("no account connected")
	}
	return c.ListComments(ctx, mediaID)
}

// agentState reports live agent state to the management API.
type agentState struct {
	handle     *clientHandle
	pollActive *atomic.Bool
}

func (s *agentState) AccountID() string { return s.handle.AccountID() }
func (s *agentState) PollActive() bool  { return s.pollActive.Load() }

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()

	if os.Getenv("ENVIRONMENT") == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	log.Logger = logger

	// Load config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err == nil {
		zerolog.SetGlobalLevel(level)
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Int("http_port", cfg.HTTPPort).
		Str("mgmt_addr", cfg.MgmtListenAddr).
		Bool("webhook_enabled", cfg.WebhookEnabled()).
		Bool("poll_enabled", cfg.PollEnabled()).
		Msg("starting reply agent")

	// Context with graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Core state
	metricsCollector := metrics.New()
	checker := health.NewChecker(logger)
	store := rules.NewMemoryStore()
	replyLog := replylog.NewMemoryLog(cfg.MaxLogSize)
	ledger := dedup.NewLedger()

	// Seed rules from file (optional)
	if cfg.RulesFile != "" {
		n, err := rules.LoadFile(cfg.RulesFile, cfg.AccountID, store)
		if err != nil {
			logger.Fatal().Err(err).Str("file", cfg.RulesFile).Msg("failed to load rules file")
		}
		logger.Info().Int("rules", n).Str("file", cfg.RulesFile).Msg("rules seeded from file")
	}
	metricsCollector.SetRulesActive(float64(store.Count()))

	// Graph client (pre-provisioned credentials, or connected later via OAuth)
	handle := &clientHandle{}
	if cfg.AccountID != "" && cfg.AccessToken != "" {
		handle.set(graph.NewClient(graph.ClientConfig{
			BaseURL:     cfg.GraphBaseURL,
			Version:     cfg.GraphAPIVersion,
			AccountID:   cfg.AccountID,
			AccessToken: cfg.AccessToken,
			Timeout:     cfg.GraphTimeout,
			RateLimit:   cfg.GraphRateLimit,
		}, logger))
		logger.Info().Str("account_id", cfg.AccountID).Msg("account connected from environment")
	}

	checker.Register("graph", func(ctx context.Context) health.Status {
		if handle.connected() {
			return health.StatusOK
		}
		return health.StatusDown
	})

	// Pipeline
	pipe := pipeline.New(pipeline.Config{SendTimeout: cfg.SendTimeout},
		store, ledger, replyLog, handle, metricsCollector, logger)

	events := make(chan event.CommentEvent, 256)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		pipe.Run(ctx, events)
	}()

	// Poll source. Startable later by the OAuth callback when credentials
	// only arrive at runtime.
	var pollOnce sync.Once
	var pollActive atomic.Bool
	startPoll := func(accountID string) {
		pollOnce.Do(func() {
			poll := event.NewPollSource(event.PollConfig{
				AccountID: accountID,
				Interval:  cfg.PollInterval,
			}, handle, store, metricsCollector, logger)
			if err := poll.Subscribe(ctx, events); err != nil {
				logger.Error().Err(err).Msg("failed to start poll source")
				return
			}
			pollActive.Store(true)
			logger.Info().Dur("interval", cfg.PollInterval).Msg("poll source started")
		})
	}
	if cfg.PollEnabled() {
		startPoll(cfg.AccountID)
	}

	// HTTP server: webhook, probes, metrics, OAuth connect flow
	mux := http.NewServeMux()
	mux.HandleFunc("/health", health.LivenessHandler())
	mux.HandleFunc("/ready", checker.ReadinessHandler())
	mux.Handle("/metrics", metricsCollector.Handler())

	if cfg.WebhookEnabled() {
		webhook := event.NewWebhookSource(event.WebhookConfig{
			VerifyToken: cfg.WebhookVerifyToken,
		}, logger)
		if err := webhook.Subscribe(ctx, events); err != nil {
			logger.Fatal().Err(err).Msg("failed to start webhook source")
		}
		mux.Handle(cfg.WebhookPath, webhook)
		logger.Info().Str("path", cfg.WebhookPath).Msg("webhook receiver mounted")
	} else {
		logger.Info().Msg("webhook not configured, skipping")
	}

	if cfg.OAuthEnabled() {
		oauth := graph.NewOAuth(graph.OAuthConfig{
			AppID:       cfg.AppID,
			AppSecret:   cfg.AppSecret,
			RedirectURI: cfg.RedirectURI,
			BaseURL:     cfg.GraphBaseURL,
			Version:     cfg.GraphAPIVersion,
		}, logger)

		var stateMu sync.Mutex
		states := make(map[string]time.Time)

		mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
			state := uuid.New().String()
			stateMu.Lock()
			states[state] = time.Now()
			stateMu.Unlock()
			http.Redirect(w, r, oauth.AuthorizeURL(state), http.StatusFound)
		})

		mux.HandleFunc("/auth/callback", func(w http.ResponseWriter, r *http.Request) {
			state := r.URL.Query().Get("state")
			stateMu.Lock()
			issued, ok := states[state]
			delete(states, state)
			stateMu.Unlock()
			if !ok || time.Since(issued) > 10*time.Minute {
				http.Error(w, "invalid or expired state", http.StatusForbidden)
				return
			}

			code := r.URL.Query().Get("code")
			if code == "" {
				http.Error(w, "missing code", http.StatusBadRequest)
				return
			}

			creds, err := oauth.Connect(r.Context(), code)
			if err != nil {
				logger.Error().Err(err).Msg("connect flow failed")
				http.Error(w, "connect failed", http.StatusBadGateway)
				return
			}

			handle.set(graph.NewClient(graph.ClientConfig{
				BaseURL:     cfg.GraphBaseURL,
				Version:     cfg.GraphAPIVersion,
				AccountID:   creds.AccountID,
				AccessToken: creds.PageAccessToken,
				Timeout:     cfg.GraphTimeout,
				RateLimit:   cfg.GraphRateLimit,
			}, logger))

			logger.Info().
				Str("account_id", creds.AccountID).
				Str("page_id", creds.PageID).
				Msg("account connected via oauth")

			if !cfg.PollDisabled {
				startPoll(creds.AccountID)
			}

			w.WriteHeader(http.StatusOK)
			_, _ = fmt.Fprintf(w, "Connected account %s\n", creds.AccountID)
		})

		logger.Info().Msg("oauth connect flow mounted at /auth/login")
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info().Int("port", cfg.HTTPPort).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	// Management API server
	cachedPosts := graph.NewCachedLister(handle, 30*time.Second)
	mgmtHandlers := mgmt.NewHandlers(store, replyLog, ledger, cachedPosts, checker, metricsCollector,
		&agentState{handle: handle, pollActive: &pollActive},
		mgmt.RuntimeConfig{
			Environment:    cfg.Environment,
			LogLevel:       cfg.LogLevel,
			HTTPPort:       cfg.HTTPPort,
			MgmtListenAddr: cfg.MgmtListenAddr,
			AuthMode:       cfg.MgmtAuthMode,
			WebhookEnabled: cfg.WebhookEnabled(),
			PollInterval:   cfg.PollInterval,
			RateLimitRPS:   cfg.MgmtRateLimitRPS,
			RateLimitBurst: cfg.MgmtRateLimitBurst,
		}, logger)

	mgmtServer := mgmt.NewServer(mgmt.ServerConfig{
		ListenAddr: cfg.MgmtListenAddr,
		AuthConfig: mgmt.AuthConfig{
			Mode:      cfg.MgmtAuthMode,
			APIKey:    cfg.MgmtAPIKey,
			JWTSecret: cfg.MgmtJWTSecret,
		},
		RateLimit: mgmt.RateLimitConfig{
			RPS:   cfg.MgmtRateLimitRPS,
			Burst: cfg.MgmtRateLimitBurst,
		},
		CORSOrigins: cfg.MgmtCORSOrigins,
		TLSCert:     cfg.MgmtTLSCert,
		TLSKey:      cfg.MgmtTLSKey,
	}, mgmtHandlers, logger)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := mgmtServer.Start(); err != nil {
			logger.Error().Err(err).Msg("management API server error")
		}
	}()

	// Wait for shutdown signal
	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("shutting down gracefully")

	// Cancel context to signal all goroutines
	cancel()

	// Shutdown servers
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	if err := mgmtServer.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("management API server shutdown error")
	}

	// Wait for in-flight work to complete
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("all goroutines stopped")
	case <-time.After(15 * time.Second):
		logger.Warn().Msg("forced shutdown after timeout")
	}

	logger.Info().Msg("reply agent stopped")
}
