package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/japaniel/sentencebase/pkg/config"
	"github.com/japaniel/sentencebase/pkg/db"
	"github.com/japaniel/sentencebase/pkg/dictionary"
	"github.com/japaniel/sentencebase/pkg/export"
	"github.com/japaniel/sentencebase/pkg/ingest"
	"github.com/japaniel/sentencebase/pkg/intake"
	"github.com/japaniel/sentencebase/pkg/tokenize"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd(os.Stderr).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// app carries the state shared by every command of one invocation.
type app struct {
	configPath string
	dbPath     string
	logOut     io.Writer

	cfg    *config.Config
	logger *slog.Logger
	conn   *sql.DB
}

func newRootCmd(logOut io.Writer) *cobra.Command {
	a := &app{logOut: logOut}

	rootCmd := &cobra.Command{
		Use:           "sentencebase",
		Short:         "Collect Japanese example sentences and batch them for mining",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default $SENTENCEBASE_CONFIG or "+config.DefaultPath+")")
	rootCmd.PersistentFlags().StringVar(&a.dbPath, "db", "", "database path (overrides db_path)")

	rootCmd.AddCommand(userCmd(a))
	rootCmd.AddCommand(analyzeCmd(a))
	rootCmd.AddCommand(submitCmd(a))
	rootCmd.AddCommand(pendingCmd(a))
	rootCmd.AddCommand(withdrawCmd(a))
	rootCmd.AddCommand(batchCmd(a))
	rootCmd.AddCommand(batchesCmd(a))
	rootCmd.AddCommand(showCmd(a))
	rootCmd.AddCommand(wordsCmd(a))
	rootCmd.AddCommand(harvestCmd(a))
	rootCmd.AddCommand(fetchDictCmd(a))
	rootCmd.AddCommand(serveCmd(a))
	return rootCmd
}

func (a *app) load() error {
	cfg, err := config.Resolve(a.configPath)
	if err != nil {
		return err
	}
	if a.dbPath != "" {
		cfg.DBPath = a.dbPath
	}
	a.cfg = cfg
	a.logger = cfg.NewLogger(a.logOut)
	return nil
}

func (a *app) close() error {
	if a.conn == nil {
		return nil
	}
	err := a.conn.Close()
	a.conn = nil
	return err
}

// open returns the database, creating its directory and schema on first use.
func (a *app) open() (*sql.DB, error) {
	if a.conn != nil {
		return a.conn, nil
	}
	if dir := filepath.Dir(a.cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	conn, err := db.Open(a.cfg.DBDriver, a.cfg.DBPath)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("database opened", "path", a.cfg.DBPath, "driver", a.cfg.DBDriver)
	a.conn = conn
	return conn, nil
}

// ingester wires the pipeline. Commands that never tokenize pass
// withAnalyzer=false to skip loading the morphological dictionary.
func (a *app) ingester(withAnalyzer bool) (*ingest.Ingester, error) {
	conn, err := a.open()
	if err != nil {
		return nil, err
	}
	q, err := intake.NewQueue(a.cfg.MaxPendingSentences)
	if err != nil {
		return nil, err
	}
	var analyzer ingest.Tokenizer
	if withAnalyzer {
		an, err := tokenize.NewAnalyzer()
		if err != nil {
			return nil, fmt.Errorf("failed to create analyzer: %w", err)
		}
		analyzer = an
	}
	ig := ingest.NewIngester(conn, analyzer, q)
	ig.Logger = a.logger
	ig.Workers = a.cfg.Workers
	ig.BatchSize = a.cfg.WriteBatchSize
	return ig, nil
}

// glosser loads the JMdict index when the configured file exists.
func (a *app) glosser() export.Glosser {
	path := a.cfg.DictionaryPath
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		a.logger.Info("dictionary missing, exporting without definitions", "path", path)
		return nil
	}
	entries, err := dictionary.LoadJMdictSimplified(path)
	if err != nil {
		a.logger.Warn("failed to load dictionary", "path", path, "error", err)
		return nil
	}
	return dictionary.NewIndex(entries)
}

// ranker loads the corpus frequency list when one is configured.
func (a *app) ranker() export.Ranker {
	path := a.cfg.FrequencyListPath
	if path == "" {
		return nil
	}
	fl, err := dictionary.LoadFrequencyList(path)
	if err != nil {
		a.logger.Warn("failed to load frequency list", "path", path, "error", err)
		return nil
	}
	return fl
}

func requireUserFlag(cmd *cobra.Command, user *string) {
	cmd.Flags().StringVarP(user, "user", "u", "", "user id")
	_ = cmd.MarkFlagRequired("user")
}
