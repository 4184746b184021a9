package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"pkai/internal/agent"
	"pkai/internal/chat"
	"pkai/internal/llm"
)

func newAskCmd(flags *GlobalFlags) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask one question and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, cleanup, err := openAssistant(flags, false)
			if err != nil {
				return err
			}
			defer cleanup()

			question := strings.Join(args, " ")
			res, err := a.Ask(cmd.Context(), question, nil)
			if err != nil {
				if hint := chat.Hint(err); hint != "" && !llm.IsQuotaError(err) {
					fmt.Fprintln(cmd.ErrOrStderr(), "Hint:", hint)
				}
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			s := newStyles(out, false)
			fmt.Fprintln(out, res.Response)
			if tools := s.tools(res.ToolsInvoked); tools != "" {
				fmt.Fprintln(out)
				fmt.Fprintln(out, tools)
			}
			if res.StopReason != agent.StopComplete {
				fmt.Fprintln(out, s.dim("(stopped: "+res.StopReason+")"))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the full result as JSON")
	return cmd
}
