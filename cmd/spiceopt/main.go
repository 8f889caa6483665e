package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/GoSim-25-26J-441/spice-tuner/internal/tuner"
	"github.com/GoSim-25-26J-441/spice-tuner/pkg/config"
	"github.com/GoSim-25-26J-441/spice-tuner/pkg/logger"
)

// stdinConfirm prints the prompt and continues only when the reply is C
func stdinConfirm(in io.Reader, out io.Writer) tuner.ConfirmFunc {
	reader := bufio.NewReader(in)
	return func(ctx context.Context, prompt string) (bool, error) {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		fmt.Fprintf(out, "%s enter C to continue or any other key to exit: ", prompt)
		reply, err := reader.ReadString('\n')
		if err != nil && reply == "" {
			if err == io.EOF {
				return false, nil
			}
			return false, fmt.Errorf("failed to read confirmation: %w", err)
		}
		return strings.EqualFold(strings.TrimSpace(reply), "c"), nil
	}
}

func main() {
	var configPath string
	var logLevel string
	var logFormat string
	var reportPath string
	var assumeYes bool

	flag.StringVar(&configPath, "config", "config/config.yaml", "tuning config file")
	flag.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); overrides the config")
	flag.StringVar(&logFormat, "log-format", "", "log format (text, json); overrides the config")
	flag.StringVar(&reportPath, "report", "", "report path; overrides the config")
	flag.BoolVar(&assumeYes, "yes", false, "skip the confirmation prompts")
	flag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Error("failed to load config", "path", configPath, "error", err)
		os.Exit(1)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}
	if reportPath != "" {
		// the flag is relative to the shell, not to the config file
		cfg.Report = tuner.ResolvePath("", reportPath)
	}

	log, err := logger.NewWithFormat(cfg.LogFormat, cfg.LogLevel, os.Stderr)
	if err != nil {
		logger.Error("invalid logging flags", "error", err)
		os.Exit(1)
	}
	logger.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	t, err := tuner.New(cfg)
	if err != nil {
		logger.Error("failed to set up tuner", "error", err)
		stop()
		os.Exit(1)
	}
	t.WithBaseDir(filepath.Dir(configPath))
	if !assumeYes {
		t.WithConfirm(stdinConfirm(os.Stdin, os.Stdout))
	}

	run, err := t.Run(ctx)
	if err != nil {
		logger.Error("tuning failed", "run_id", run.ID, "error", err)
		stop()
		os.Exit(1)
	}
	logger.Info("tuning completed", "run_id", run.ID, "report", run.Artifacts["report"],
		"optimized_schematic", run.Artifacts["optimized_schematic"])
}
