package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/nexus/internal/config"
	"github.com/haasonsaas/nexus/internal/observe"
	"github.com/haasonsaas/nexus/internal/workflow"
)

// buildAskCmd creates the "ask" command: dispatch a single utterance and
// print the final text (spec §6 "dispatch(utterance, session_handle,
// observer) -> final_text").
func buildAskCmd(configPath *string) *cobra.Command {
	var debug bool
	var session string

	cmd := &cobra.Command{
		Use:   "ask <utterance>",
		Short: "Dispatch one utterance through the router and print the final answer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadCoreConfig(*configPath)
			if err != nil {
				return err
			}
			dispatcher, _, err := buildDispatcher(cfg, logger)
			if err != nil {
				return err
			}

			text, err := dispatcher.Dispatch(cmd.Context(), args[0], session, debugSink(debug))
			if err != nil {
				return err
			}
			fmt.Println(text)
			return nil
		},
	}
	cmd.Flags().BoolVar(&debug, "debug", false, "print Observation Protocol events to stderr as JSON lines")
	cmd.Flags().StringVar(&session, "session", "cli", "session handle grouping this utterance's history")
	return cmd
}

// buildServeCmd creates the "serve" command: an interactive loop reading
// one utterance per line from stdin and printing each final answer, for
// exercising the core without a real transcription/speech-synthesis
// front end wired up.
func buildServeCmd(configPath *string) *cobra.Command {
	var debug bool
	var session string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Read utterances from stdin, one per line, and print each final answer",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadCoreConfig(*configPath)
			if err != nil {
				return err
			}
			dispatcher, _, err := buildDispatcher(cfg, logger)
			if err != nil {
				return err
			}

			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				utterance := strings.TrimSpace(scanner.Text())
				if utterance == "" {
					continue
				}
				text, err := dispatcher.Dispatch(cmd.Context(), utterance, session, debugSink(debug))
				if err != nil {
					logger.Warn("dispatch failed", "error", err)
					continue
				}
				fmt.Println(text)
			}
			return scanner.Err()
		},
	}
	cmd.Flags().BoolVar(&debug, "debug", false, "print Observation Protocol events to stderr as JSON lines")
	cmd.Flags().StringVar(&session, "session", "cli", "session handle grouping every utterance's history")
	return cmd
}

// buildValidateCmd creates the "validate" command: load and validate the
// configuration file, plus any workflow-definition directory it points
// at, without dispatching anything — for CI and operator sanity checks.
func buildValidateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration and workflow definitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadCoreConfig(*configPath)
			if err != nil {
				return err
			}
			if cfg.Workflow.DefinitionsPath == "" {
				return nil
			}
			defs, err := workflow.LoadDefinitionsDir(cfg.Workflow.DefinitionsPath)
			if err != nil {
				return fmt.Errorf("validating workflow definitions: %w", err)
			}
			fmt.Printf("ok: %d custom workflow definition(s)\n", len(defs))
			return nil
		},
	}
}

// loadCoreConfig loads config from path and builds the process-wide
// logger it specifies (spec §9 ambient stack: structured logging via
// log/slog, grounded in the donor's own slog usage).
func loadCoreConfig(path string) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("loading config: %w", err)
	}
	logger := newLogger(cfg.Logging)
	return cfg, logger, nil
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// debugSink returns a Sink that prints each Observation Protocol event
// to stderr as a JSON line when enabled, or observe.Noop otherwise.
func debugSink(enabled bool) observe.Sink {
	if !enabled {
		return observe.Noop
	}
	return observe.SinkFunc(func(e observe.Event) {
		b, err := json.Marshal(e)
		if err != nil {
			return
		}
		fmt.Fprintln(os.Stderr, string(b))
	})
}
