// stagehand-session runs one interactive task under a pseudo-terminal,
// mirroring the conversation to a transcript and honoring the in-band
// pause command. Invoked by the scheduler, not by operators directly.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/stagehand-dev/stagehand/internal/session"
)

func main() {
	opts := session.Options{}
	var graceSeconds int

	cmd := &cobra.Command{
		Use:   "stagehand-session [flags] -- command [args...]",
		Short: "Run an interactive task under a pseudo-terminal",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Command = args
			opts.Grace = time.Duration(graceSeconds) * time.Second
			code, err := session.Run(opts)
			if err != nil {
				fmt.Fprintf(os.Stderr, "stagehand-session: %v\n", err)
			}
			os.Exit(code)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Transcript, "transcript", "", "transcript file (required)")
	cmd.Flags().StringVar(&opts.PauseMarker, "pause-marker", "", "pause marker file")
	cmd.Flags().StringVar(&opts.PauseCommand, "pause-command", "/pause", "exact input line that pauses the session")
	cmd.Flags().StringVar(&opts.PromptFile, "prompt-file", "", "prompt file to seed the session with")
	cmd.Flags().StringVar(&opts.PromptMode, "prompt-mode", "stdin", "how to deliver the prompt: stdin or arg")
	cmd.Flags().BoolVar(&opts.Append, "append", false, "append to the transcript (resume a paused session)")
	cmd.Flags().IntVar(&graceSeconds, "grace", 20, "seconds a paused child may keep running before termination")
	_ = cmd.MarkFlagRequired("transcript")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
