// Package cmd holds the cobra commands.
package cmd

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vquang/leaflib/api"
	"github.com/vquang/leaflib/config"
	"github.com/vquang/leaflib/cover"
	"github.com/vquang/leaflib/database"
	"github.com/vquang/leaflib/ebook"
	"github.com/vquang/leaflib/importer"
	"github.com/vquang/leaflib/scheduler"
)

var rootCmdPersistentFlags struct {
	LogFile    string
	ConfigFile string
	LogLevel   string
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootCmdPersistentFlags.LogFile, "log-file", "", "File to write logs to")
	rootCmd.PersistentFlags().StringVarP(&rootCmdPersistentFlags.ConfigFile, "config", "c", "", "Path to config file (default: config.json in the current dir)")
	rootCmd.PersistentFlags().StringVar(&rootCmdPersistentFlags.LogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
}

var rootCmd = &cobra.Command{
	Use:   "leaflib",
	Short: "Leaflib is a self-hosted personal e-book library",
	Long: `Leaflib serves a personal e-book collection over the web: upload books,
extract their metadata and covers with calibre, search without worrying
about accents, convert between formats and read EPUBs in the browser.`,
	Example: `leaflib --config config.json
  leaflib -c /path/to/config.json --log-level debug`,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		setLogLevel(rootCmdPersistentFlags.LogLevel)
		logToFile()
	},
	Run: root,
}

func root(cmd *cobra.Command, _ []string) {
	cfg, err := config.Load(rootCmdPersistentFlags.ConfigFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	for _, dir := range []string{cfg.BooksDir(), cfg.CoversDir(), cfg.ScratchDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("failed to create data directory %s: %v", dir, err)
		}
	}

	db, err := database.New(cfg.DatabaseFile())
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close() //nolint:errcheck

	tool := ebook.NewTool()
	covers := cover.NewProcessor(cfg.CoversDir(), tool)
	if err := covers.EnsureDefault(); err != nil {
		log.Fatalf("failed to create placeholder cover: %v", err)
	}
	imp := importer.New(db, covers, cfg.BooksDir(), cfg.ScratchDir())

	sched, err := scheduler.New()
	if err != nil {
		log.Fatalf("failed to create scheduler: %v", err)
	}
	if err := scheduler.RegisterMaintenanceJobs(sched, db, covers, tool, cfg.BooksDir(), cfg.ScratchDir()); err != nil {
		log.Fatalf("failed to register maintenance jobs: %v", err)
	}

	server, err := api.New(cfg, db, covers, tool, imp)
	if err != nil {
		log.Fatalf("failed to create server: %v", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sched.Start()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx)
	})

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	log.Info("leaflib started", "library", cfg.LibraryName, "listen", cfg.Listen())
	select {
	case <-c:
	case <-gctx.Done():
	}
	log.Info("shutting down gracefully...")

	cancel()
	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
	}
	if err := sched.Stop(); err != nil {
		log.Error("failed to stop scheduler", "error", err)
	}
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warn":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		log.Warnf("unknown log level %s, defaulting to info", level)
		log.SetLevel(log.InfoLevel)
	}
}

func logToFile() {
	if rootCmdPersistentFlags.LogFile == "" {
		return
	}
	file, err := os.OpenFile(rootCmdPersistentFlags.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) //nolint:gosec
	if err != nil {
		log.Errorf("failed to open log file: %v", err)
		return
	}
	log.SetOutput(io.MultiWriter(os.Stdout, file))
	log.Info("logging to both console and file", "file", rootCmdPersistentFlags.LogFile)
}

func Execute() error {
	return rootCmd.Execute()
}
