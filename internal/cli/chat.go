package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"pkai/internal/chat"
)

func newChatCmd(flags *GlobalFlags) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation",
		Long:  "Start an interactive conversation. History lives in memory until the process exits. With --json, questions are read one per line from stdin and NDJSON events are written to stdout.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !jsonOut && flags.NonInteractive {
				return errors.New("chat needs a terminal; use --json or pkai ask with --non-interactive")
			}
			a, cfg, cleanup, err := openAssistant(flags, !jsonOut)
			if err != nil {
				return err
			}
			defer cleanup()

			opts := chat.Options{
				Provider: cfg.LLM.Provider,
				Model:    cfg.LLM.Model,
				Tools:    a.Registry().Names(),
				JSON:     jsonOut,
			}
			if jsonOut {
				return chat.RunJSONLoop(cmd.Context(), a, opts, cmd.InOrStdin(), cmd.OutOrStdout())
			}
			return chat.Run(cmd.Context(), a, opts)
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "read questions from stdin and emit NDJSON events")
	return cmd
}
