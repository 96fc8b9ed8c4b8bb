// Package main provides the CLI entry point for the voice research
// assistant core: the Entry Dispatcher, Keyword Router, Orchestrator,
// and Workflow Engine described in the core specification, fronted by a
// thin command-line harness. Speech transcription, speech synthesis, and
// the real-time audio/signaling transport that would normally carry
// utterances to this core are out of scope (external collaborators) —
// this binary accepts utterances as plain text on stdin or as an
// argument instead.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "assistant",
		Short: "Voice research assistant core: router, orchestrator, and workflow engine",
		Long: `assistant drives the hybrid routing and workflow engine described in the
core specification: a Keyword Router decides whether an utterance is simple
(one Orchestrator tool-call loop) or complex (a declarative Workflow Engine
run), and every workflow step's progress streams through the Observation
Protocol.

Configuration loads from assistant.yaml (or --config) with environment
variable overrides layered on top; see internal/config for the full table.`,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "assistant.yaml", "path to the configuration file")

	root.AddCommand(buildAskCmd(&configPath))
	root.AddCommand(buildServeCmd(&configPath))
	root.AddCommand(buildValidateCmd(&configPath))

	return root
}
