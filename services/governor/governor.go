// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package governor provides the schema change governance service for Strait.
//
// This package contains the main service type that coordinates all
// components of the governor: HTTP routing, the dependency registry,
// impact analysis, policy enforcement, the review workflow, audit
// logging, notifications, and observability infrastructure.
//
// # Architecture
//
// The governor is assembled bottom-up. A single storage.Store backs the
// change tracker, the review engine, the breaking-change approval store,
// and the audit log, so one backend choice (BadgerDB, Redis, or memory)
// covers all persistent state. The governance config and the team
// directory load from YAML files; the config is hot-reloaded on file
// change, the directory is read once at startup.
//
// # Usage
//
//	cfg := governor.Config{Port: 12260, PolicyPath: "configs/governance.yaml"}
//	svc, err := governor.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run())
package governor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/strait/pkg/logging"
	"github.com/AleutianAI/strait/services/governor/audit"
	"github.com/AleutianAI/strait/services/governor/breaking"
	"github.com/AleutianAI/strait/services/governor/depgraph"
	"github.com/AleutianAI/strait/services/governor/impact"
	"github.com/AleutianAI/strait/services/governor/middleware"
	"github.com/AleutianAI/strait/services/governor/notify"
	"github.com/AleutianAI/strait/services/governor/observability"
	"github.com/AleutianAI/strait/services/governor/policy"
	"github.com/AleutianAI/strait/services/governor/review"
	"github.com/AleutianAI/strait/services/governor/routes"
	"github.com/AleutianAI/strait/services/governor/storage"
	"github.com/AleutianAI/strait/services/governor/teams"
	"github.com/AleutianAI/strait/services/governor/telemetry"
	"github.com/AleutianAI/strait/services/governor/tracker"
)

// pendingSampleInterval is how often the pending-review gauge is
// refreshed from the store. The gauge is sampled rather than counted so
// it stays correct across restarts and idempotent retries.
const pendingSampleInterval = 30 * time.Second

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the governor service.
//
// # Description
//
// Service abstracts the governor lifecycle, enabling testing and
// alternative implementations. Run() blocks and should only be called
// once per instance.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	Run() error

	// Router returns the underlying Gin engine for testing.
	//
	// Callers must not modify the router after construction.
	Router() *gin.Engine
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds governor configuration options.
//
// # Description
//
// Config centralizes all configuration for the governor service. Values
// can be populated from environment variables, config files, or
// programmatically for testing.
//
// # Required Fields
//
// PolicyPath and TeamsPath must point at readable YAML files; everything
// else has a default.
//
// # Examples
//
//	// Minimal config
//	cfg := Config{
//	    PolicyPath: "configs/governance.yaml",
//	    TeamsPath:  "configs/teams.yaml",
//	}
//
//	// Redis-backed with webhook notifications
//	cfg := Config{
//	    PolicyPath:   "configs/governance.yaml",
//	    TeamsPath:    "configs/teams.yaml",
//	    StoreBackend: "redis",
//	    RedisAddr:    "localhost:6379",
//	    WebhookURL:   "https://hooks.internal/strait",
//	}
type Config struct {
	// Port is the HTTP server port. Default: 12260
	Port int

	// GinMode sets the Gin framework mode.
	// Valid values: "debug", "release", "test"
	// Default: uses GIN_MODE env var or "debug"
	GinMode string

	// LogLevel sets the minimum log level.
	// Valid values: "debug", "info", "warn", "error"
	LogLevel string

	// LogDir enables file logging when set.
	LogDir string

	// PolicyPath is the governance policy YAML file. The file is
	// watched; edits take effect without a restart.
	// Default: "configs/governance.yaml"
	PolicyPath string

	// TeamsPath is the team directory YAML file.
	// Default: "configs/teams.yaml"
	TeamsPath string

	// StoreBackend selects the persistence layer.
	// Valid values: "badger", "redis", "memory"
	// Default: "badger"
	StoreBackend string

	// DataDir is the BadgerDB directory for the badger backend.
	// Default: "./data/governor"
	DataDir string

	// RedisAddr is the host:port for the redis backend.
	RedisAddr string

	// RedisPassword is the optional AUTH password.
	RedisPassword string

	// RedisDB is the logical database index.
	RedisDB int

	// DetectorCommand is the external breaking-change detector binary
	// ("buf", "schema-diff"). If empty, modification changes cannot be
	// tracked and fail with a configuration error.
	DetectorCommand string

	// DetectorArgs are passed to the detector. The placeholders
	// {current} and {baseline} are replaced with schema payload paths.
	DetectorArgs []string

	// WebhookURL is the default notification endpoint. If empty,
	// notifications are disabled.
	WebhookURL string

	// WebhookChannels maps team names to per-team endpoints that
	// override WebhookURL.
	WebhookChannels map[string]string

	// WebhookSigningKey, when set, enables HMAC-SHA256 payload
	// signatures on outbound notifications.
	WebhookSigningKey string

	// ArchiveBucket is the Cloud Storage bucket for aged audit
	// records. If empty, archival is disabled and audit records stay
	// in the hot store indefinitely.
	ArchiveBucket string

	// ArchivePrefix is prepended to archived object names.
	// Default: "audit/"
	ArchivePrefix string

	// ArchiveRetention is how long audit records stay in the hot
	// store. Default: 90 days.
	ArchiveRetention time.Duration

	// ArchiveInterval is how often the archive pass runs.
	// Default: 6 hours.
	ArchiveInterval time.Duration
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use.
//
// # Thread Safety
//
// Thread-safe after construction. All fields are read-only after New()
// returns; background goroutines own their own state.
type service struct {
	config Config
	log    *logging.Logger
	router *gin.Engine

	store      storage.Store
	registry   *depgraph.Registry
	analyzer   *impact.Analyzer
	source     *policy.Source
	directory  *teams.StaticDirectory
	approvals  *policy.ApprovalStore
	enforcer   *policy.Enforcer
	dispatcher *notify.Dispatcher
	reviews    *review.Engine
	auditLog   *audit.Log
	archiver   *audit.Archiver
	tracker    *tracker.Tracker

	telemetryShutdown func(context.Context) error
	cancelBackground  context.CancelFunc
}

// =============================================================================
// Constructor
// =============================================================================

// New creates a governor Service with the given configuration.
//
// # Description
//
// New initializes all governor components in dependency order:
//  1. Applies default configuration for missing values
//  2. Initializes telemetry (tracing + metrics)
//  3. Opens the storage backend
//  4. Builds the dependency registry and impact analyzer
//  5. Loads the governance config (with hot reload) and team directory
//  6. Wires policy enforcement, notifications, reviews, and audit
//  7. Assembles the change tracker and HTTP routes
//
// On failure, everything initialized so far is torn down before the
// error is returned.
//
// # Inputs
//
//   - cfg: Service configuration. Zero values use defaults.
//
// # Outputs
//
//   - Service: Ready-to-run governor service
//   - error: Non-nil if initialization fails
//
// # Limitations
//
//   - The team directory is read once; changing it requires a restart
//   - Cloud Storage archival failures at startup disable archival
//     rather than failing the service
func New(cfg Config) (Service, error) {
	s := &service{
		config: applyConfigDefaults(cfg),
	}

	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}

	s.log = logging.New(logging.Config{
		Level:   logging.ParseLevel(s.config.LogLevel),
		LogDir:  s.config.LogDir,
		Service: "governor",
	})

	ctx := context.Background()
	tcfg := telemetry.DefaultConfig()
	tcfg.ServiceName = "governor-service"
	shutdown, err := telemetry.Init(ctx, tcfg)
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	s.telemetryShutdown = shutdown

	observability.InitMetrics()

	if err := s.initStore(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to open %s store: %w", s.config.StoreBackend, err)
	}

	s.registry = depgraph.NewRegistry(s.log)
	s.analyzer = impact.NewAnalyzer(s.log)

	s.source, err = policy.NewSource(s.config.PolicyPath, s.log)
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to load governance config: %w", err)
	}

	s.directory, err = teams.LoadDirectory(s.config.TeamsPath)
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to load team directory: %w", err)
	}

	s.approvals = policy.NewApprovalStore(s.store)
	s.enforcer = policy.NewEnforcer(s.source, s.directory, s.approvals, s.log)

	if err := s.initNotifications(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize notifications: %w", err)
	}

	// The dispatcher is nil when no webhook is configured; both the
	// review engine and the tracker treat that as notifications off.
	var notifier notify.Notifier
	if s.dispatcher != nil {
		notifier = s.dispatcher
	}
	s.reviews = review.NewEngine(s.store, s.directory, notifier, s.log)
	s.auditLog = audit.NewLog(s.store, s.log)

	s.initArchiver(ctx)

	detector, err := s.buildDetector()
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize breaking-change detector: %w", err)
	}

	s.tracker, err = tracker.NewTracker(tracker.Params{
		Store:    s.store,
		Registry: s.registry,
		Analyzer: s.analyzer,
		Enforcer: s.enforcer,
		Reviews:  s.reviews,
		Audit:    s.auditLog,
		Config:   s.source,
		Detector: detector,
		Notifier: notifier,
		Logger:   s.log,
	})
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to assemble change tracker: %w", err)
	}

	s.startBackground()
	s.initRouter()

	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until shutdown or error.
// Cleanup is automatic on return.
func (s *service) Run() error {
	defer s.cleanup()

	addr := fmt.Sprintf(":%d", s.config.Port)
	s.log.Info("starting governor server",
		"port", s.config.Port,
		"store", s.config.StoreBackend,
		"policy_path", s.config.PolicyPath)

	return s.router.Run(addr)
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12260
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.PolicyPath == "" {
		cfg.PolicyPath = "configs/governance.yaml"
	}
	if cfg.TeamsPath == "" {
		cfg.TeamsPath = "configs/teams.yaml"
	}
	if cfg.StoreBackend == "" {
		cfg.StoreBackend = "badger"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "./data/governor"
	}
	if cfg.ArchiveRetention == 0 {
		cfg.ArchiveRetention = 90 * 24 * time.Hour
	}
	if cfg.ArchiveInterval == 0 {
		cfg.ArchiveInterval = 6 * time.Hour
	}
	return cfg
}

// initStore opens the configured storage backend.
func (s *service) initStore() error {
	switch strings.ToLower(s.config.StoreBackend) {
	case "badger":
		store, err := storage.OpenBadger(storage.BadgerConfig{
			Path:       s.config.DataDir,
			SyncWrites: true,
			Logger:     s.log.Slog(),
		})
		if err != nil {
			return err
		}
		s.store = store

	case "redis":
		store, err := storage.NewRedis(storage.RedisConfig{
			Addr:     s.config.RedisAddr,
			Password: s.config.RedisPassword,
			DB:       s.config.RedisDB,
		})
		if err != nil {
			return err
		}
		s.store = store

	case "memory":
		s.log.Warn("using in-memory store, state is lost on restart")
		s.store = storage.NewMemory()

	default:
		return fmt.Errorf("unknown store backend %q", s.config.StoreBackend)
	}

	s.log.Info("storage backend ready", "backend", s.config.StoreBackend)
	return nil
}

// initNotifications builds the webhook sender and dispatcher. An empty
// WebhookURL with no per-team channels disables notifications entirely.
func (s *service) initNotifications() error {
	if s.config.WebhookURL == "" && len(s.config.WebhookChannels) == 0 {
		s.log.Info("no webhook configured, notifications disabled")
		return nil
	}

	var key []byte
	if s.config.WebhookSigningKey != "" {
		key = []byte(s.config.WebhookSigningKey)
	}

	sender, err := notify.NewWebhookSender(notify.WebhookConfig{
		URL:        s.config.WebhookURL,
		Channels:   s.config.WebhookChannels,
		SigningKey: key,
	})
	if err != nil {
		return err
	}

	s.dispatcher = notify.NewDispatcher(sender, notify.DispatcherConfig{
		Logger: s.log,
	})
	return nil
}

// initArchiver wires Cloud Storage archival for aged audit records.
// Failures here disable archival but never fail startup; the audit log
// keeps accumulating in the hot store.
func (s *service) initArchiver(ctx context.Context) {
	if s.config.ArchiveBucket == "" {
		return
	}

	archiver, err := audit.NewArchiver(ctx, s.store, audit.ArchiverConfig{
		Bucket:    s.config.ArchiveBucket,
		Prefix:    s.config.ArchivePrefix,
		Retention: s.config.ArchiveRetention,
		Logger:    s.log,
	})
	if err != nil {
		s.log.Warn("audit archiver initialization failed, archival disabled",
			"bucket", s.config.ArchiveBucket,
			"error", err)
		return
	}

	s.archiver = archiver
	s.log.Info("audit archiver ready",
		"bucket", s.config.ArchiveBucket,
		"retention", s.config.ArchiveRetention.String())
}

// buildDetector constructs the external breaking-change detector, or
// returns nil when none is configured.
func (s *service) buildDetector() (breaking.Detector, error) {
	if s.config.DetectorCommand == "" {
		s.log.Warn("no breaking-change detector configured, modification changes will be rejected")
		return nil, nil
	}

	return breaking.NewCommandDetector(breaking.CommandConfig{
		Command: s.config.DetectorCommand,
		Args:    s.config.DetectorArgs,
		Logger:  s.log.Slog(),
	})
}

// startBackground launches the long-running goroutines: governance
// config watching, notification dispatch, the pending-review gauge
// sampler, and the audit archive loop.
func (s *service) startBackground() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancelBackground = cancel

	go s.source.Watch(ctx)

	if s.dispatcher != nil {
		s.dispatcher.Start(ctx)
	}

	go s.samplePendingReviews(ctx)

	if s.archiver != nil {
		go s.archiveLoop(ctx)
	}
}

// samplePendingReviews refreshes the pending-review gauge from the
// store on a fixed interval.
func (s *service) samplePendingReviews(ctx context.Context) {
	ticker := time.NewTicker(pendingSampleInterval)
	defer ticker.Stop()

	for {
		pending, err := s.reviews.ListByStatus(ctx, review.StatusPending)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Warn("pending review sample failed", "error", err)
		} else {
			observability.DefaultMetrics.SetPendingReviews(len(pending))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// archiveLoop periodically moves aged audit records to Cloud Storage.
func (s *service) archiveLoop(ctx context.Context) {
	ticker := time.NewTicker(s.config.ArchiveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.archiver.Archive(ctx, time.Now())
			if err != nil {
				s.log.Warn("audit archive pass failed", "error", err)
				continue
			}
			if n > 0 {
				s.log.Info("archived audit records", "count", n)
			}
		}
	}
}

// initRouter sets up the Gin HTTP router with all routes.
func (s *service) initRouter() {
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("governor-service"))
	s.router.Use(middleware.ActorMiddleware())

	routes.SetupRoutes(s.router, routes.Deps{
		Tracker:   s.tracker,
		Registry:  s.registry,
		Analyzer:  s.analyzer,
		Enforcer:  s.enforcer,
		Approvals: s.approvals,
		Reviews:   s.reviews,
		Audit:     s.auditLog,
		Metrics:   observability.DefaultMetrics,
		Log:       s.log,
	})
}

// cleanup releases all resources held by the service. Called when Run()
// exits or on initialization failure; tolerates partially built state.
func (s *service) cleanup() {
	if s.cancelBackground != nil {
		s.cancelBackground()
	}

	if s.dispatcher != nil {
		s.dispatcher.Close()
	}

	if s.source != nil {
		if err := s.source.Close(); err != nil {
			s.log.Warn("governance config watcher close error", "error", err)
		}
	}

	if s.archiver != nil {
		if err := s.archiver.Close(); err != nil {
			s.log.Warn("audit archiver close error", "error", err)
		}
	}

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.log.Warn("store close error", "error", err)
		}
	}

	if s.telemetryShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.telemetryShutdown(ctx); err != nil {
			s.log.Warn("telemetry shutdown error", "error", err)
		}
	}

	if s.log != nil {
		if err := s.log.Close(); err != nil {
			fmt.Printf("logger close error: %v\n", err)
		}
	}
}

// =============================================================================
// Compile-time Interface Compliance
// =============================================================================

var _ Service = (*service)(nil)
