// cortexre is the CLI entry point: ask one question, serve the HTTP
// API, or inspect the loaded portfolio.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"cortexre/internal/agent"
	"cortexre/internal/config"
	"cortexre/internal/logging"
	"cortexre/internal/perception"
	"cortexre/internal/portfolio"
	"cortexre/internal/server"
	"cortexre/internal/session"
)

const version = "1.0.0"

// Exit codes: 0 answered, 1 failure, 2 query blocked by the input guard.
const exitBlocked = 2

// errBlocked signals the blocked exit code without printing an error.
var errBlocked = errors.New("query blocked")

var (
	configPath string
	debugMode  bool
	threadID   string

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "cortexre",
	Short: "CortexRE - natural-language Q&A over a real-estate portfolio",
	Long: `CortexRE answers natural-language questions about a commercial
real-estate portfolio. Every answer is produced by a guarded pipeline:
an input guard scopes the question, a tool-calling research loop pulls
figures from the ledger dataset, a critique loop scores and revises the
draft, and an output guard validates the final text.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if debugMode {
			cfg.Logging.DebugMode = true
		}

		zapCfg := zap.NewProductionConfig()
		if cfg.Logging.DebugMode {
			zapCfg = zap.NewDevelopmentConfig()
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}

		if err := logging.Initialize(cfg.Logging.Dir, logging.Settings{
			DebugMode:  cfg.Logging.DebugMode,
			Level:      cfg.Logging.Level,
			Categories: cfg.Logging.Categories,
		}); err != nil {
			return fmt.Errorf("initialize category logs: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Close()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var askCmd = &cobra.Command{
	Use:   "ask \"question\"",
	Short: "Ask one question and print the answer",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")

		svc, store, sessions, err := buildService()
		if err != nil {
			return err
		}
		defer store.Close()
		if sessions != nil {
			defer sessions.Close()
		}

		ctx, stop := signalContext()
		defer stop()

		resp, err := svc.Submit(ctx, query, threadID)
		if err != nil {
			return err
		}

		fmt.Println(resp.Answer)
		if resp.Blocked {
			logger.Info("query blocked", zap.String("reason", resp.BlockReason))
			return errBlocked
		}
		fmt.Fprintf(os.Stderr, "thread: %s\n", resp.ThreadID)
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, store, sessions, err := buildService()
		if err != nil {
			return err
		}
		defer store.Close()
		if sessions != nil {
			defer sessions.Close()
		}

		ctx, stop := signalContext()
		defer stop()

		if cfg.Data.WatchReload {
			if err := store.Watch(ctx); err != nil {
				logger.Warn("dataset watcher unavailable", zap.Error(err))
			}
		}

		srv := server.New(cfg, svc, store, logger)
		return srv.Run(ctx)
	},
}

var propertiesCmd = &cobra.Command{
	Use:   "properties",
	Short: "List the portfolio's property names",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		for _, p := range store.Dataset().Properties() {
			fmt.Println(p)
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("cortexre %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (optional)")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug logging")
	askCmd.Flags().StringVar(&threadID, "thread", "", "continue an existing conversation thread")

	rootCmd.AddCommand(askCmd, serveCmd, propertiesCmd, versionCmd)
}

// buildService assembles the full pipeline from config.
func buildService() (*agent.AgentService, *portfolio.Store, *session.Store, error) {
	store, err := openStore()
	if err != nil {
		return nil, nil, nil, err
	}

	client, err := perception.NewClientFromConfig(cfg)
	if err != nil {
		store.Close()
		return nil, nil, nil, err
	}

	var sessions *session.Store
	var svcSessions agent.SessionStore
	if cfg.Session.DBPath != "" {
		sessions, err = session.Open(cfg.Session.DBPath)
		if err != nil {
			store.Close()
			return nil, nil, nil, err
		}
		svcSessions = sessions
	}

	svc := agent.NewAgentService(cfg, client, store, svcSessions)
	return svc, store, sessions, nil
}

func openStore() (*portfolio.Store, error) {
	path, err := resolveDataPath()
	if err != nil {
		return nil, err
	}
	logger.Info("loading dataset", zap.String("path", path))
	return portfolio.NewStore(path)
}

// resolveDataPath returns the configured dataset file, or the first CSV
// in the data directory when no filename is configured.
func resolveDataPath() (string, error) {
	if cfg.Data.File != "" {
		return filepath.Join(cfg.Data.Dir, cfg.Data.File), nil
	}
	matches, err := filepath.Glob(filepath.Join(cfg.Data.Dir, "*.csv"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no CSV dataset found in %s", cfg.Data.Dir)
	}
	return matches[0], nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errBlocked) {
			os.Exit(exitBlocked)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
