// Package chat runs an interactive conversation with the assistant, either
// as a terminal UI or as an NDJSON loop for automation.
package chat

import (
	"context"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"pkai/internal/ui"
)

type Options struct {
	Provider string
	Model    string
	// Tools are the names offered to the model, shown in the banner.
	Tools []string
	JSON  bool
}

func Run(ctx context.Context, asker Asker, opts Options) error {
	if opts.JSON {
		return RunJSONLoop(ctx, asker, opts, os.Stdin, os.Stdout)
	}
	p := tea.NewProgram(initialModel(ctx, asker, opts), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

func banner(opts Options) []string {
	lines := []string{
		ui.Info("pkai", "personal knowledge assistant"),
		ui.Info("model", strings.TrimSpace(opts.Provider+" "+opts.Model)),
	}
	if len(opts.Tools) > 0 {
		lines = append(lines, ui.Info("tools", strings.Join(opts.Tools, ", ")))
	}
	lines = append(lines, ui.Dim("Type a question, or /help for commands."))
	return []string{strings.Join(lines, "\n")}
}

func formatHelp() string {
	var b strings.Builder
	b.WriteString(ui.Brand.Render("Commands:\n"))
	fmt.Fprintf(&b, "  %s  %s\n", ui.Keyword.Render("/help "), ui.Muted.Render("Show help"))
	fmt.Fprintf(&b, "  %s  %s\n", ui.Keyword.Render("/quit "), ui.Muted.Render("Exit chat"))
	fmt.Fprintf(&b, "  %s  %s\n", ui.Keyword.Render("/clear"), ui.Muted.Render("Forget the conversation so far"))
	b.WriteString(ui.Dim("  Any other text is sent to the assistant"))
	return b.String()
}

func formatHelpPlain() string {
	return strings.Join([]string{
		"Commands:",
		"  /help   Show help",
		"  /quit   Exit chat",
		"  /clear  Forget the conversation so far",
		"  Any other text is sent to the assistant",
	}, "\n")
}
