package cli

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/soyeahso/snare/internal/channel"
	"github.com/soyeahso/snare/internal/channel/email"
	"github.com/soyeahso/snare/internal/config"
	"github.com/soyeahso/snare/internal/detector"
	"github.com/soyeahso/snare/internal/gateway"
	"github.com/soyeahso/snare/internal/honeypot"
	"github.com/soyeahso/snare/internal/hooks"
	"github.com/soyeahso/snare/internal/llm"
	"github.com/soyeahso/snare/internal/logging"
	"github.com/soyeahso/snare/internal/persona"
	"github.com/soyeahso/snare/internal/report"
	"github.com/soyeahso/snare/internal/store"
)

func newServeCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the honeypot gateway",
		Long: "Starts the HTTP/WebSocket gateway, the session engine, and any\n" +
			"configured ingestion channels. Blocks until interrupted.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if cmd.Flags().Changed("bind") {
				cfg.Server.Bind = bind
			}

			if issues := config.Validate(&cfg); len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}

			if err := paths.EnsureDirs(); err != nil {
				return err
			}

			// CLI flag wins, then config file, then the default level.
			if !cmd.Flags().Changed("log-level") && logLevel == "" && cfg.Logging.Level != "" {
				log = logging.New(nil, cfg.Logging.Level)
			}

			return runServe(cmd, cfg)
		},
	}

	cmd.Flags().IntVar(&port, "port", 8787, "gateway port")
	cmd.Flags().StringVar(&bind, "bind", "", "bind mode (auto, lan, loopback, custom)")

	return cmd
}

func runServe(cmd *cobra.Command, cfg config.Config) error {
	hookMgr := hooks.NewManager(log)

	var sessions honeypot.SessionStore
	if cfg.Session.Store == "memory" {
		sessions = honeypot.NewMemorySessionStore()
	} else {
		db, err := store.Open(filepath.Join(paths.Data, "snare.db"), log)
		if err != nil {
			return fmt.Errorf("open session database: %w", err)
		}
		defer db.Close()
		sessions = store.NewSQLiteSessionStore(db)
	}

	registry := llm.NewRegistryFromConfig(cfg.LLM, log)
	client, err := registry.Resolve(cfg.LLM.Model)
	if err != nil {
		return fmt.Errorf("llm provider: %w (set llm.provider, llm.apiKey and llm.model)", err)
	}

	timeout := time.Duration(cfg.LLM.TimeoutSeconds) * time.Second
	classifier := detector.New(client, timeout, log)
	responder := persona.New(client, cfg.Persona.Name, cfg.Persona.Profile, timeout, log)

	var sink report.Sink
	if cfg.Callback.URL != "" {
		sink = report.NewHTTPSink(cfg.Callback.URL, cfg.Callback.AuthToken,
			time.Duration(cfg.Callback.TimeoutSeconds)*time.Second, log)
	} else {
		log.Warn().Msg("no callback URL configured; final reports will only be logged")
		sink = report.NewLogSink(log)
	}

	policy := honeypot.Policy{
		DetectionThreshold: cfg.Policy.DetectionThreshold,
		EngagementFloor:    cfg.Policy.EngagementFloor,
		MessageCeiling:     cfg.Policy.MessageCeiling,
	}

	engine := honeypot.NewEngine(sessions, classifier, responder, sink, policy, hookMgr, log)
	defer engine.Wait()

	channels := channel.NewRegistry(log)
	if cfg.Channels.Email != nil {
		channels.Register(email.New(*cfg.Channels.Email, engine, log))
	}

	srv := gateway.New(cfg, engine, log,
		gateway.WithHooks(hookMgr),
		gateway.WithChannels(channels),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if channels.Count() > 0 {
		channels.StartAll(ctx)
		defer channels.StopAll(ctx)
	}

	return srv.Start(ctx)
}
