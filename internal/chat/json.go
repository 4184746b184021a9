package chat

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
)

type jsonEvent struct {
	Version string         `json:"version"`
	Type    string         `json:"type"`
	Data    map[string]any `json:"data"`
}

// RunJSONLoop reads one question per line from in and writes NDJSON events
// to out until in is exhausted or a /quit line arrives.
func RunJSONLoop(ctx context.Context, asker Asker, opts Options, in io.Reader, out io.Writer) error {
	sess := NewSession(asker)
	enc := json.NewEncoder(out)
	write := func(kind string, data map[string]any) error {
		return enc.Encode(jsonEvent{Version: "v1", Type: kind, Data: data})
	}

	if err := write("session", map[string]any{
		"provider": opts.Provider,
		"model":    opts.Model,
		"tools":    opts.Tools,
	}); err != nil {
		return err
	}

	s := bufio.NewScanner(in)
	s.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for s.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		input := strings.TrimSpace(s.Text())
		if input == "" {
			continue
		}
		switch parseCommand(input) {
		case cmdQuit:
			return write("exit", map[string]any{"reason": "user"})
		case cmdHelp:
			if err := write("help", map[string]any{"text": formatHelpPlain()}); err != nil {
				return err
			}
			continue
		case cmdClear:
			sess.Clear()
			if err := write("cleared", map[string]any{"status": "ok"}); err != nil {
				return err
			}
			continue
		case cmdUnknown:
			if err := write("error", map[string]any{"message": "unknown command: " + input}); err != nil {
				return err
			}
			continue
		}

		res, err := sess.Send(ctx, input)
		if err != nil {
			data := map[string]any{"message": err.Error()}
			if hint := Hint(err); hint != "" {
				data["hint"] = hint
			}
			if err := write("error", data); err != nil {
				return err
			}
			continue
		}
		if err := write("result", map[string]any{
			"response":          res.Response,
			"used_knowledge":    res.UsedKnowledge,
			"tools_invoked":     res.ToolsInvoked,
			"suggested_actions": res.SuggestedActions,
			"turns":             res.Turns,
			"stop_reason":       res.StopReason,
		}); err != nil {
			return err
		}
	}
	return s.Err()
}
