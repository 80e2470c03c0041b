// Package daemon assembles the Paws service: session store, tool
// registry, conversation loop, and the WhatsApp webhook server, with
// coordinated startup and graceful shutdown.
package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/HackAi2025-Paws/paws-wpp-sub000/internal/config"
	"github.com/HackAi2025-Paws/paws-wpp-sub000/internal/logger"
	"github.com/HackAi2025-Paws/paws-wpp-sub000/internal/metrics"
	"github.com/HackAi2025-Paws/paws-wpp-sub000/pkg/agent"
	"github.com/HackAi2025-Paws/paws-wpp-sub000/pkg/clinics"
	"github.com/HackAi2025-Paws/paws-wpp-sub000/pkg/prompt"
	"github.com/HackAi2025-Paws/paws-wpp-sub000/pkg/records"
	"github.com/HackAi2025-Paws/paws-wpp-sub000/pkg/session"
	"github.com/HackAi2025-Paws/paws-wpp-sub000/pkg/tools"
	"github.com/HackAi2025-Paws/paws-wpp-sub000/pkg/vettools"
	"github.com/HackAi2025-Paws/paws-wpp-sub000/pkg/webhook"
)

// Daemon is the assembled Paws service.
type Daemon struct {
	cfg      *config.Config
	log      *logger.Logger
	metrics  *metrics.Metrics
	store    *session.Store
	sweeper  *session.Sweeper
	prompts  *prompt.Loader
	registry *tools.Registry
	loop     *agent.Loop
	server   *webhook.Server
}

// New builds the daemon from configuration without starting anything.
func New(cfg *config.Config) (*Daemon, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   true,
		Pretty:    true,
		Redaction: cfg.Logging.Redaction,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	m := metrics.NewMetrics()

	store, err := session.NewStore(session.Options{
		Path:      cfg.Session.Path,
		TTL:       time.Duration(cfg.Session.TTLHours) * time.Hour,
		MarkerTTL: time.Duration(cfg.Session.MarkerTTLMinutes) * time.Minute,
		MaxTurns:  cfg.Session.MaxTurns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session store: %w", err)
	}

	sweeper, err := session.NewSweeper(store, cfg.Session.SweepSchedule)
	if err != nil {
		return nil, fmt.Errorf("failed to create session sweeper: %w", err)
	}
	sweeper.OnSweep = func(sessions, markers int64) {
		m.SessionsPurged.Add(float64(sessions))
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if active, err := store.CountActive(ctx); err == nil {
			m.SessionsActive.Set(float64(active))
		}
	}

	prompts, err := prompt.NewLoader(cfg.Prompt.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to load system prompt: %w", err)
	}

	provider, err := agent.NewProvider(cfg.Model.Provider, cfg.Model.APIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create model provider: %w", err)
	}

	registry := tools.NewRegistry()
	deps := vettools.Collaborators{}

	if cfg.Records.BaseURL != "" {
		recordsClient, err := records.NewClient(records.Config{
			BaseURL: cfg.Records.BaseURL,
			Token:   cfg.Records.Token,
			Timeout: time.Duration(cfg.Records.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create records client: %w", err)
		}
		deps.Pets = recordsClient
		deps.Consultations = recordsClient
		deps.Vaccines = recordsClient
	}

	if cfg.Clinics.BaseURL != "" {
		clinicsClient, err := clinics.NewClient(clinics.Config{
			BaseURL: cfg.Clinics.BaseURL,
			APIKey:  cfg.Clinics.APIKey,
			Timeout: time.Duration(cfg.Clinics.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create clinics client: %w", err)
		}
		deps.Clinics = clinicsClient
	}

	if err := vettools.Register(registry, deps); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	runner, err := tools.NewRunner(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool runner: %w", err)
	}

	loop, err := agent.NewLoop(agent.Config{
		Store:    store,
		Provider: provider,
		Registry: registry,
		Tools:    runner,
		Prompts:  prompts,
		Metrics:  m,
		Model: agent.ModelConfig{
			Model:       cfg.Model.Model,
			MaxTokens:   cfg.Model.MaxTokens,
			Temperature: cfg.Model.Temperature,
			MaxRounds:   cfg.Model.MaxRounds,
			MaxRetries:  cfg.Model.MaxRetries,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation loop: %w", err)
	}

	sender, err := webhook.NewGraphSender(webhook.SenderConfig{
		BaseURL:       cfg.WhatsApp.GraphBaseURL,
		PhoneNumberID: cfg.WhatsApp.PhoneNumberID,
		AccessToken:   cfg.WhatsApp.AccessToken,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create message sender: %w", err)
	}

	server, err := webhook.NewServer(webhook.Options{
		Host:               cfg.Server.Host,
		Port:               cfg.Server.Port,
		VerifyToken:        cfg.WhatsApp.VerifyToken,
		AppSecret:          cfg.WhatsApp.AppSecret,
		RateLimitPerMinute: cfg.Server.RateLimitPerMinute,
		HandlerTimeout:     time.Duration(cfg.Server.HandlerTimeoutSecs) * time.Second,
	}, loop, sender, m, appLogger.GetZerolog())
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook server: %w", err)
	}

	return &Daemon{
		cfg:      cfg,
		log:      appLogger,
		metrics:  m,
		store:    store,
		sweeper:  sweeper,
		prompts:  prompts,
		registry: registry,
		loop:     loop,
		server:   server,
	}, nil
}

// Registry exposes the tool registry, mainly for status reporting.
func (d *Daemon) Registry() *tools.Registry {
	return d.registry
}

// Run starts every component and blocks until the context is cancelled
// or the webhook server fails.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.store.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect session store: %w", err)
	}
	if err := d.sweeper.Start(); err != nil {
		return fmt.Errorf("failed to start session sweeper: %w", err)
	}
	if d.cfg.Prompt.Watch && d.cfg.Prompt.Path != "" {
		if err := d.prompts.Watch(); err != nil {
			return fmt.Errorf("failed to watch system prompt: %w", err)
		}
	}

	d.log.Info().
		Int("tools", d.registry.Count()).
		Str("provider", d.cfg.Model.Provider).
		Str("model", d.cfg.Model.Model).
		Msg("Paws daemon starting")

	errCh := make(chan error, 1)
	go func() {
		errCh <- d.server.Start()
	}()

	select {
	case <-ctx.Done():
		d.log.Info().Msg("Shutdown signal received")
		return d.shutdown()
	case err := <-errCh:
		if err != nil {
			d.shutdown()
			return err
		}
		return d.shutdown()
	}
}

func (d *Daemon) shutdown() error {
	var firstErr error

	if err := d.server.Stop(); err != nil {
		d.log.Error().Err(err).Msg("Failed to stop webhook server")
		firstErr = err
	}

	d.sweeper.Stop()

	if err := d.prompts.Stop(); err != nil {
		d.log.Error().Err(err).Msg("Failed to stop prompt watcher")
		if firstErr == nil {
			firstErr = err
		}
	}

	if err := d.store.Close(); err != nil {
		d.log.Error().Err(err).Msg("Failed to close session store")
		if firstErr == nil {
			firstErr = err
		}
	}

	d.log.Info().Msg("Paws daemon stopped")
	d.log.Close()

	return firstErr
}
