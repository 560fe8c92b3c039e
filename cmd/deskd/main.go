package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/deskd-io/deskd/internal/agent"
	apiPkg "github.com/deskd-io/deskd/internal/api"
	"github.com/deskd-io/deskd/internal/config"
	"github.com/deskd-io/deskd/internal/connector"
	slackconn "github.com/deskd-io/deskd/internal/connector/slack"
	"github.com/deskd-io/deskd/internal/connector/telegram"
	"github.com/deskd-io/deskd/internal/embed"
	"github.com/deskd-io/deskd/internal/identity"
	"github.com/deskd-io/deskd/internal/logbuf"
	"github.com/deskd-io/deskd/internal/memory"
	"github.com/deskd-io/deskd/internal/provider"
	"github.com/deskd-io/deskd/internal/scheduler"
	"github.com/deskd-io/deskd/internal/store"
	"github.com/deskd-io/deskd/internal/tool"
	"github.com/deskd-io/deskd/internal/transport"
)

var version = "dev"

func main() {
	godotenv.Load()

	configPath := flag.String("config", "", "Path to config JSON file")
	platformURL := flag.String("platform-url", os.Getenv("DESKD_PLATFORM_URL"), "Control plane URL")
	deskID := flag.String("desk-id", os.Getenv("DESKD_DESK_ID"), "Desk ID for platform mode")
	platformKey := flag.String("platform-key", os.Getenv("DESKD_PLATFORM_KEY"), "API key for platform auth")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	// Set up logging
	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logBuf := logbuf.New(2000)
	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(logbuf.NewHandler(jsonHandler, logBuf))
	slog.SetDefault(logger)

	// Load config (3 modes: file, platform, env)
	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else if *platformURL != "" {
		logger.Info("loading config from platform", "url", *platformURL, "desk_id", *deskID)
		cfg, err = config.LoadFromPlatform(config.PlatformOptions{
			PlatformURL: *platformURL,
			DeskID:      *deskID,
			APIKey:      *platformKey,
		})
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("deskd starting", "desk_id", cfg.Desk.ID, "version", version)

	// 1. Provider for the three model-backed stages
	pcfg, ok := cfg.Providers[cfg.Desk.Provider]
	if !ok {
		logger.Error("configured provider not found", "provider", cfg.Desk.Provider)
		os.Exit(1)
	}
	var prov provider.Provider
	switch pcfg.Type {
	case "anthropic":
		var opts []provider.AnthropicOption
		if pcfg.BaseURL != "" {
			opts = append(opts, provider.WithAnthropicBaseURL(pcfg.BaseURL))
		}
		if pcfg.Model != "" {
			opts = append(opts, provider.WithAnthropicModel(pcfg.Model))
		}
		prov = provider.NewAnthropic(pcfg.APIKey, opts...)
	default: // "openai" or empty
		var opts []provider.OpenAIOption
		if pcfg.BaseURL != "" {
			opts = append(opts, provider.WithBaseURL(pcfg.BaseURL))
		}
		if pcfg.Model != "" {
			opts = append(opts, provider.WithModel(pcfg.Model))
		}
		prov = provider.NewOpenAI(pcfg.APIKey, opts...)
	}
	logger.Info("provider initialized", "name", cfg.Desk.Provider, "type", pcfg.Type, "model", pcfg.Model)

	// 2. Data store
	os.MkdirAll(cfg.Desk.DataDir, 0o755)
	st, err := store.NewSQLiteStore(cfg.Desk.StorePath)
	if err != nil {
		logger.Error("failed to open store", "path", cfg.Desk.StorePath, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	// 3. Embedder (optional — similarity search degrades without it)
	var embedder embed.Embedder
	if cfg.Embedder.URL != "" {
		embedder = embed.NewHTTPEmbedder(cfg.Embedder.URL, embed.WithEmbedModel(cfg.Embedder.Model))
		logger.Info("embedder initialized", "url", cfg.Embedder.URL, "model", cfg.Embedder.Model)
	} else {
		logger.Warn("no embedder configured, similarity search disabled")
	}

	// 4. Tool registry + orchestrator
	reg := tool.NewRegistry(tool.Deps{
		Store:    st,
		Embedder: embedder,
		Info:     tool.DefaultSystemInfo(version),
		Logger:   logger.With("component", "tools"),
	})
	ag := agent.New(prov, reg, agent.WithLogger(logger.With("component", "agent")))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 5. Conversation memory: Redis when configured, in-process otherwise
	var mem memory.Store
	if cfg.Redis.Addr != "" {
		redisMem, err := memory.NewRedisStore(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			time.Duration(cfg.Redis.SessionTTL)*time.Hour)
		if err != nil {
			logger.Error("failed to connect redis", "addr", cfg.Redis.Addr, "error", err)
			os.Exit(1)
		}
		defer redisMem.Close()
		mem = redisMem
		logger.Info("conversation memory on redis", "addr", cfg.Redis.Addr)
	} else {
		mem = memory.NewInMemoryStore()
	}

	ident := identity.NewStoreResolver(st)

	// 6. Background jobs
	if !cfg.Scheduler.Disabled && embedder != nil {
		sched := scheduler.New(logger.With("component", "scheduler"))
		backfill := &scheduler.Backfill{Store: st, Embedder: embedder, Logger: logger.With("job", "backfill")}
		if err := sched.AddJob("embed-backfill", cfg.Scheduler.EmbedBackfill, backfill.Run); err != nil {
			logger.Error("failed to schedule backfill", "error", err)
			os.Exit(1)
		}
		go safeGo(logger, "scheduler", func() { sched.Start(ctx) })
	}

	// 7. NATS transport (optional)
	if cfg.NATS.URL != "" {
		nt, err := transport.NewServer(cfg.NATS.URL, cfg.NATS.Subject, ag, ident, mem,
			logger.With("component", "nats"))
		if err != nil {
			logger.Error("failed to connect nats", "url", cfg.NATS.URL, "error", err)
			os.Exit(1)
		}
		go safeGo(logger, "nats", func() { nt.Start(ctx) })
	}

	// 8. Connectors
	if cfg.Connectors.Telegram != nil {
		router := &connector.Router{
			Chat:     ag,
			Identity: ident,
			Memory:   mem,
			Users:    cfg.Connectors.Telegram.Users,
			Logger:   logger.With("connector", "telegram"),
		}
		tgConn, err := telegram.New(
			telegram.Config{Token: cfg.Connectors.Telegram.Token},
			router.Handle,
			func(ctx context.Context, chatID string) error {
				return router.ClearSession(ctx, "telegram", chatID)
			},
			logger.With("connector", "telegram"),
		)
		if err != nil {
			logger.Error("failed to init telegram connector", "error", err)
			os.Exit(1)
		}
		go safeGo(logger, "telegram", func() { tgConn.Start(ctx) })
	}
	if cfg.Connectors.Slack != nil {
		router := &connector.Router{
			Chat:     ag,
			Identity: ident,
			Memory:   mem,
			Users:    cfg.Connectors.Slack.Users,
			Logger:   logger.With("connector", "slack"),
		}
		slConn, err := slackconn.New(
			slackconn.Config{
				BotToken: cfg.Connectors.Slack.BotToken,
				AppToken: cfg.Connectors.Slack.AppToken,
			},
			router.Handle,
			logger.With("connector", "slack"),
		)
		if err != nil {
			logger.Error("failed to init slack connector", "error", err)
			os.Exit(1)
		}
		go safeGo(logger, "slack", func() { slConn.Start(ctx) })
	}

	// 9. API server
	apiSrv := apiPkg.NewServer(ag, ident, mem, st, apiPkg.Config{
		Host: cfg.API.Host,
		Port: cfg.API.Port,
		Key:  cfg.API.Key,
	}, logger.With("component", "api"), logBuf)

	go safeGo(logger, "api-server", func() { apiSrv.Start(ctx) })
	logger.Info("api server started", "port", cfg.API.Port)

	// 10. Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)
	cancel()
	logger.Info("deskd stopped")
}

// safeGo runs fn with panic recovery.
func safeGo(logger *slog.Logger, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("goroutine panicked", "name", name, "panic", fmt.Sprintf("%v", r))
		}
	}()
	fn()
}
