package chat

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"pkai/internal/agent"
	"pkai/internal/ui"
)

type answerMsg struct {
	result agent.ChatResult
	err    error
}

type chatModel struct {
	ctx       context.Context
	session   *Session
	viewport  viewport.Model
	textInput textinput.Model
	spinner   spinner.Model
	messages  []string
	banner    []string
	isLoading bool
	ready     bool
	width     int
	height    int
	showHelp  bool
}

func initialModel(ctx context.Context, asker Asker, opts Options) chatModel {
	ti := textinput.New()
	ti.Placeholder = "Ask a question or type /help..."
	ti.Focus()
	ti.CharLimit = 2000
	ti.Width = 80

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(ui.ClrBrand)

	msgs := banner(opts)
	return chatModel{
		ctx:       ctx,
		session:   NewSession(asker),
		textInput: ti,
		spinner:   s,
		messages:  msgs,
		banner:    append([]string(nil), msgs...),
	}
}

func (m chatModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		spCmd tea.Cmd
	)

	m.textInput, tiCmd = m.textInput.Update(msg)
	m.spinner, spCmd = m.spinner.Update(msg)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+k" {
			m.showHelp = !m.showHelp
			m.applyWindowSize(m.width, m.height)
			return m, nil
		}
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			if m.isLoading {
				return m, nil
			}
			input := strings.TrimSpace(m.textInput.Value())
			if input == "" {
				return m, nil
			}
			m.textInput.SetValue("")

			switch parseCommand(input) {
			case cmdQuit:
				return m, tea.Quit
			case cmdHelp:
				m.append(formatHelp())
				return m, nil
			case cmdClear:
				m.session.Clear()
				m.messages = append([]string(nil), m.banner...)
				m.refresh()
				return m, nil
			case cmdUnknown:
				m.append(ui.Errorf("unknown command %s (try /help)", input))
				return m, nil
			}

			m.append(ui.Prompt("you") + input)
			m.isLoading = true
			return m, tea.Batch(m.askCmd(input), m.spinner.Tick)
		}

	case tea.WindowSizeMsg:
		m.applyWindowSize(msg.Width, msg.Height)

	case answerMsg:
		m.isLoading = false
		m.append(renderAnswer(msg.result, msg.err))
		return m, nil
	}

	m.viewport, vpCmd = m.viewport.Update(msg)
	return m, tea.Batch(tiCmd, vpCmd, spCmd)
}

func (m chatModel) View() string {
	if !m.ready {
		return "\n  Initializing..."
	}

	var b strings.Builder
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	if m.showHelp {
		b.WriteString(m.renderHelpBlock(m.width))
		b.WriteString("\n")
	}
	if m.isLoading {
		b.WriteString(m.spinner.View() + " ")
	} else {
		b.WriteString(ui.Prompt("pkai"))
	}
	b.WriteString(m.textInput.View())
	b.WriteString("\n")
	b.WriteString(ui.Dim("ctrl+k help · esc quit"))
	return b.String()
}

func (m *chatModel) append(line string) {
	m.messages = append(m.messages, line)
	m.refresh()
}

func (m *chatModel) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(strings.Join(m.messages, "\n\n"))
	m.viewport.GotoBottom()
}

func (m *chatModel) applyWindowSize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	m.width = width
	m.height = height

	vpWidth := max(width-2, 1)
	m.textInput.Width = max(width-12, 1)

	reservedHeight := 2 // input row + status row
	if m.showHelp {
		reservedHeight += lipgloss.Height(m.renderHelpBlock(width)) + 1
	}
	vpHeight := max(height-reservedHeight, 1)

	if !m.ready {
		m.viewport = viewport.New(vpWidth, vpHeight)
		m.ready = true
		m.refresh()
		return
	}
	m.viewport.Width = vpWidth
	m.viewport.Height = vpHeight
}

func (m chatModel) renderHelpBlock(width int) string {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ui.ClrSubtle).
		Padding(0, 1).
		MaxWidth(max(width-2, 1)).
		Render(formatHelp())
}

func (m chatModel) askCmd(input string) tea.Cmd {
	sess := m.session
	ctx := m.ctx
	return func() tea.Msg {
		res, err := sess.Send(ctx, input)
		return answerMsg{result: res, err: err}
	}
}

func renderAnswer(res agent.ChatResult, err error) string {
	if err != nil {
		line := ui.Errorf("%v", err)
		if hint := Hint(err); hint != "" {
			line += "\n" + ui.Dim("Hint: "+hint)
		}
		return line
	}
	out := res.Response
	if tools := ui.Tools(res.ToolsInvoked); tools != "" {
		out += "\n" + tools
	}
	if res.StopReason == agent.StopMaxTurns {
		out += "\n" + ui.Yellow.Render("stopped after the tool-call budget was spent")
	}
	return out
}
