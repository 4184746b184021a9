package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"pkai/internal/assistant"
	"pkai/internal/mcp"
)

type toolsReport struct {
	Assistant []toolEntry             `json:"assistant"`
	Workspace *mcp.CapabilityManifest `json:"workspace,omitempty"`
	Error     string                  `json:"workspace_error,omitempty"`
}

type toolEntry struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func newToolsCmd(flags *GlobalFlags) *cobra.Command {
	var jsonOut, offline bool
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the assistant's tools and the workspace server's tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags, true)
			if err != nil {
				return err
			}
			lg, err := newLogger(cfg, false)
			if err != nil {
				return fmt.Errorf("logging: %w", err)
			}
			defer lg.Close()

			report := toolsReport{}
			for _, def := range assistant.ToolDefinitions() {
				report.Assistant = append(report.Assistant, toolEntry{Name: def.Name, Description: def.Description})
			}
			if !offline {
				client := assistant.NewWorkspaceClient(cfg.Workspace, dialWorkspace, lg.Logger)
				defer client.Close()
				manifest, err := mcp.BuildCapabilityManifest(cmd.Context(), client)
				if err != nil {
					report.Error = err.Error()
				} else {
					report.Workspace = &manifest
				}
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			s := newStyles(out, false)
			fmt.Fprintln(out, s.sectionHeader(fmt.Sprintf("Assistant tools (%d)", len(report.Assistant))))
			for _, t := range report.Assistant {
				fmt.Fprintln(out, s.kv(t.Name, t.Description))
			}
			if offline {
				return nil
			}
			fmt.Fprintln(out, s.separator(40))
			fmt.Fprintln(out, s.sectionHeader("Workspace server"))
			if report.Workspace == nil {
				fmt.Fprintln(out, s.warnPrefix(), report.Error)
				if hint := mcp.ActionableMessageForCode(mcp.CodeFromText(report.Error)); hint != "" {
					fmt.Fprintln(out, s.dim("Hint: "+hint))
				}
				return nil
			}
			fmt.Fprintln(out, mcp.RenderCapabilityManifestHuman(*report.Workspace))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print JSON")
	cmd.Flags().BoolVar(&offline, "offline", false, "do not contact the workspace server")
	return cmd
}
