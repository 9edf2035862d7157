package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"chatbridge/internal/bridge"
	"chatbridge/internal/bus"
	"chatbridge/internal/callback"
	"chatbridge/internal/channel"
	"chatbridge/internal/config"
	"chatbridge/internal/domain"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	// Credentials commonly live in a .env next to the binary; absence is fine.
	_ = godotenv.Load()

	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:     "chatbridge",
		Short:   "chatbridge: multi-platform chat to AI bridge",
		Long:    "chatbridge forwards Telegram, Discord and WhatsApp messages to a conversational AI endpoint and routes the answers back.",
		Version: version,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default: ~/.chatbridge/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(probeCmd())
	root.AddCommand(mockAICmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write the default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if err := config.Save(cfgPath, config.Defaults()); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bridge (callback ingress + enabled channels)",
		Long:  "Starts the callback ingress server, then every enabled channel and the bridge loop. Press Ctrl+C to stop.",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, closeLog, err := buildLogger(cfg.General)
	if err != nil {
		return err
	}
	defer closeLog()
	logger = log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	messageBus := bus.New(100, logger)

	client := bridge.NewClient(bridge.ClientConfig{
		Endpoint: cfg.AI.Endpoint,
		Timeout:  time.Duration(cfg.AI.TimeoutSeconds) * time.Second,
		Logger:   logger,
	})
	router := bridge.NewRouter(logger)

	loop := bridge.NewLoop(bridge.LoopConfig{
		Client: client,
		Router: router,
		Bus:    messageBus,
		Logger: logger,
	})
	go loop.Run(ctx)

	var channels []domain.Channel

	var telegramCh *channel.Telegram
	if cfg.Channels.Telegram.Enabled {
		telegramCh = channel.NewTelegram(channel.TelegramConfig{
			Token:     cfg.Channels.Telegram.Token,
			AllowFrom: cfg.Channels.Telegram.AllowFrom,
			Logger:    logger,
		})
		channels = append(channels, telegramCh)
	}

	var discordCh *channel.Discord
	if cfg.Channels.Discord.Enabled {
		discordCh = channel.NewDiscord(channel.DiscordConfig{
			Token:         cfg.Channels.Discord.Token,
			GuildID:       cfg.Channels.Discord.GuildID,
			PublicBaseURL: cfg.Callback.PublicBaseURL,
			Logger:        logger,
		})
		channels = append(channels, discordCh)
	}

	if cfg.Channels.WhatsApp.Enabled {
		channels = append(channels, channel.NewWhatsApp(channel.WhatsAppConfig{
			Port:   cfg.Channels.WhatsApp.Port,
			Path:   cfg.Channels.WhatsApp.WebhookPath,
			Client: client,
			Router: router,
			Logger: logger,
		}))
	}

	if len(channels) == 0 {
		return fmt.Errorf("no channels enabled in %s", cfgPath)
	}

	// The callback ingress must be reachable before any platform session
	// connects: hosting health checks probe it while the gateway handshake
	// is still in flight.
	if cfg.Callback.Enabled {
		cbSrv := callback.NewServer(callback.ServerConfig{
			Port:   cfg.Callback.Port,
			Logger: logger,
		})
		if discordCh != nil {
			cbSrv.Register(domain.PlatformDiscord, discordCh)
		}
		if telegramCh != nil {
			cbSrv.Register(domain.PlatformTelegram, telegramCh)
		}
		if err := cbSrv.Listen(); err != nil {
			return err
		}
		go func() {
			if err := cbSrv.Serve(ctx); err != nil {
				logger.Error("callback ingress error", "err", err)
			}
		}()
	}

	for _, ch := range channels {
		go func(ch domain.Channel) {
			if err := ch.Start(ctx, messageBus); err != nil {
				logger.Error("channel error", "channel", ch.Name(), "err", err)
			}
		}(ch)
		logger.Info("channel enabled", "channel", ch.Name())
	}

	logger.Info("bridge started. Press Ctrl+C to stop.", "ai_endpoint", cfg.AI.Endpoint)

	<-ctx.Done()
	logger.Info("shutting down bridge...")

	for _, ch := range channels {
		if err := ch.Stop(); err != nil {
			logger.Warn("channel stop", "channel", ch.Name(), "err", err)
		}
	}
	messageBus.Close()

	logger.Info("shutdown complete")
	return nil
}

// buildLogger creates the serve logger: stderr, plus the configured log
// file when set.
func buildLogger(cfg config.GeneralConfig) (*slog.Logger, func(), error) {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var w io.Writer = os.Stderr
	closeFn := func() {}
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w = io.MultiWriter(os.Stderr, f)
		closeFn = func() { f.Close() }
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), closeFn, nil
}

func probeCmd() *cobra.Command {
	var (
		platform string
		groupID  string
		user     string
	)
	cmd := &cobra.Command{
		Use:   "probe [message]",
		Short: "Send a test message through the AI handshake",
		Long:  "Builds a canonical message and performs one handshake against the configured AI endpoint. Start 'chatbridge mockai' first for local testing.",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				logger.Warn("config not found, using defaults", "err", err)
				cfg = config.Defaults()
			}

			content := "Test message from terminal"
			if len(args) > 0 {
				content = args[0]
				for _, a := range args[1:] {
					content += " " + a
				}
			}

			msg := domain.Message{
				Platform:  domain.Platform(platform),
				GroupID:   groupID,
				UserID:    "probe",
				UserName:  user,
				Content:   content,
				Timestamp: time.Now().UTC().Format(time.RFC3339),
				MessageID: "probe_" + strconv.FormatInt(time.Now().UnixNano(), 10),
			}

			payload, _ := json.MarshalIndent(msg, "", "  ")
			fmt.Println("===== PAYLOAD =====")
			fmt.Println(string(payload))
			fmt.Println("===== HANDSHAKE =====")
			fmt.Println("POST", cfg.AI.Endpoint)

			client := bridge.NewClient(bridge.ClientConfig{
				Endpoint: cfg.AI.Endpoint,
				Timeout:  time.Duration(cfg.AI.TimeoutSeconds) * time.Second,
				Logger:   logger,
			})

			ans, err := client.Ask(cmd.Context(), &msg)
			if err != nil {
				return fmt.Errorf("handshake: %w", err)
			}

			if !ans.ShouldRespond {
				fmt.Println("AI declined to respond")
				return nil
			}
			fmt.Println("AI:", ans.Content)
			return nil
		},
	}
	cmd.Flags().StringVar(&platform, "platform", "discord", "platform to claim in the payload")
	cmd.Flags().StringVar(&groupID, "group", "test-channel-123", "group/channel identifier")
	cmd.Flags().StringVar(&user, "user", "TerminalTester", "sender name")
	return cmd
}

func mockAICmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "mockai",
		Short: "Run a canned AI endpoint for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			mux := http.NewServeMux()
			mux.HandleFunc("POST /process", func(rw http.ResponseWriter, r *http.Request) {
				var msg domain.Message
				if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
					rw.Header().Set("Content-Type", "application/json")
					rw.WriteHeader(http.StatusBadRequest)
					json.NewEncoder(rw).Encode(map[string]string{"error": err.Error()})
					return
				}
				logger.Info("mock ai request", "platform", msg.Platform, "user", msg.UserName)
				rw.Header().Set("Content-Type", "application/json")
				json.NewEncoder(rw).Encode(map[string]any{
					"should_respond": true,
					"response": map[string]string{
						"content": fmt.Sprintf("Mock AI reply to %s: I received '%s'", msg.UserName, msg.Content),
					},
				})
			})

			addr := fmt.Sprintf("127.0.0.1:%d", port)
			logger.Info("mock AI server running", "url", "http://"+addr+"/process")

			srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&port, "port", 5001, "listen port")
	return cmd
}
