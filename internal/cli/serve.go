package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MikeSquared-Agency/chathub/internal/api"
	"github.com/MikeSquared-Agency/chathub/internal/byom"
	"github.com/MikeSquared-Agency/chathub/internal/config"
	"github.com/MikeSquared-Agency/chathub/internal/hermes"
	"github.com/MikeSquared-Agency/chathub/internal/history"
	"github.com/MikeSquared-Agency/chathub/internal/provider"
	"github.com/MikeSquared-Agency/chathub/internal/relay"
	"github.com/MikeSquared-Agency/chathub/internal/store"
	"github.com/MikeSquared-Agency/chathub/internal/summarize"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat hub",
	Long: `Run the chat hub: the websocket relay, the BYOM endpoints and, when
STATIC_DIR is set, the web client.

Configuration comes from the environment (PORT, SAAS_BASE_URL,
OPENAI_API_KEY, SUM_MODEL, NATS_URL, DATABASE_URL, ...).`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "listen port (overrides PORT)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()
	if servePort > 0 {
		cfg.Port = servePort
	}

	logger, closeLog := config.SetupLogger(cfg.LogLevel, cfg.LogFile)
	defer closeLog()

	logger.Info("chathub starting", "port", cfg.Port, "history_cap", cfg.HistoryCap)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var relayOpts []relay.Option

	// Postgres archive (optional)
	if cfg.DatabaseURL != "" {
		db, err := store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer db.Close()
		if err := db.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
		relayOpts = append(relayOpts, relay.WithArchive(db))
		logger.Info("database connected")
	}

	// NATS fan-out between hub processes (optional)
	var bus *hermes.Client
	if cfg.NatsURL != "" {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		var err error
		bus, err = hermes.NewClient(connectCtx, cfg.NatsURL, cfg.NatsToken, logger)
		cancel()
		if err != nil {
			return fmt.Errorf("connect to NATS: %w", err)
		}
		defer bus.Close()
		relayOpts = append(relayOpts, relay.WithBus(bus))
		logger.Info("NATS connected", "url", cfg.NatsURL)
	}

	rl := relay.New(history.New(cfg.HistoryCap), logger, relayOpts...)
	if bus != nil {
		if err := bus.Subscribe(relay.SubjectEvents, rl.HandleBusEvent); err != nil {
			return fmt.Errorf("subscribe to relay events: %w", err)
		}
	}

	providerHTTP := &http.Client{Timeout: cfg.ProviderTimeout}
	factory := func(kind provider.Kind, pc provider.Config) (provider.Provider, error) {
		return provider.New(kind, pc, providerHTTP)
	}
	svc := byom.NewService(byom.NewRegistry(), factory, logger)
	if cfg.ProvidersFile != "" {
		seedProviders(svc, cfg.ProvidersFile, logger)
	}

	var sum *summarize.Summarizer
	if cfg.OpenAIAPIKey != "" {
		var err error
		sum, err = summarize.NewOpenAI(cfg.OpenAIAPIKey, cfg.SumModel, providerHTTP, logger)
		if err != nil {
			return fmt.Errorf("init summarizer: %w", err)
		}
		logger.Info("summarizer ready", "model", cfg.SumModel)
	} else {
		logger.Warn("OPENAI_API_KEY not set, conversation summaries disabled")
	}

	srv, err := api.NewServer(cfg.Port, api.Deps{
		Relay:       rl,
		BYOM:        svc,
		Summarizer:  sum,
		StaticDir:   cfg.StaticDir,
		SaaSBaseURL: cfg.SaaSBaseURL,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if bus != nil {
			if err := bus.Drain(); err != nil {
				logger.Warn("nats drain failed", "error", err)
			}
		}
		return srv.Shutdown(shutdownCtx)
	})

	logger.Info("chathub ready", "port", cfg.Port)
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("chathub stopped")
	return nil
}

func seedProviders(svc *byom.Service, path string, logger *slog.Logger) {
	seeds, err := config.LoadProviderSeeds(path)
	if err != nil {
		logger.Error("failed to load provider seeds", "error", err)
		return
	}
	for _, seed := range seeds {
		if err := svc.Register(seed.UserID, seed.Provider, seed.Config); err != nil {
			logger.Warn("skipping provider seed", "user_id", seed.UserID, "error", err)
		}
	}
	logger.Info("provider seeds loaded", "file", path, "registered", svc.Registry().Len())
}
