package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/aluiziolira/ri-harvester/config"
)

var (
	configFile  string
	outputDir   string
	backend     string
	driverPath  string
	headless    bool
	reset       bool
	metricsAddr string
	logDir      string
	verbose     bool

	cfg      *config.Config
	logFile  *os.File
	logLevel *slog.LevelVar
)

var rootCmd = &cobra.Command{
	Use:           "harvester",
	Short:         "Harvest article and author metadata from an institutional repository",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		cfg = c

		logger, level, err := newLogger(cfg.Verbose, cfg.LogDir)
		if err != nil {
			return err
		}
		logLevel = level
		slog.SetDefault(logger.With(slog.String("run_id", uuid.NewString())))
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "YAML config file")
	flags.StringVar(&outputDir, "output-dir", "", "Directory for records, checkpoints and error logs")
	flags.StringVar(&backend, "backend", "", "Browser backend: auto, chromedp, rod, or static")
	flags.StringVar(&driverPath, "driver-path", "", "Browser binary path")
	flags.BoolVar(&headless, "headless", true, "Run the browser without a window")
	flags.BoolVar(&reset, "reset", false, "Discard saved progress and outputs of the flow before running")
	flags.StringVar(&metricsAddr, "metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")
	flags.StringVar(&logDir, "log-dir", "", "Also write logs to a daily file in this directory")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(linksCmd(), articlesCmd(), authorsCmd(), compactCmd())
}

// loadConfig layers defaults, the config file, HARVESTER_* variables and
// explicitly set flags, in that order.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	c := config.DefaultConfig()
	if err := c.LoadFile(configFile); err != nil {
		return nil, err
	}
	if err := c.ApplyEnv(); err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed
	if changed("output-dir") {
		c.OutputDir = outputDir
	}
	if changed("backend") {
		c.Backend = strings.ToLower(backend)
	}
	if changed("driver-path") {
		c.DriverPath = driverPath
	}
	if changed("headless") {
		c.Headless = headless
	}
	if changed("metrics-addr") {
		c.MetricsAddr = metricsAddr
	}
	if changed("log-dir") {
		c.LogDir = logDir
	}
	if changed("verbose") {
		c.Verbose = verbose
	}
	c.Reset = reset
	return c, nil
}

func newLogger(verbose bool, dir string) (*slog.Logger, *slog.LevelVar, error) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	var out io.Writer = os.Stdout
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		name := filepath.Join(dir, time.Now().Format("2006-01-02")+".log")
		f, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		logFile = f
		out = io.MultiWriter(os.Stdout, f)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	return slog.New(handler), level, nil
}

func closeLog() {
	if logFile != nil {
		_ = logFile.Close()
	}
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
