package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pkai/internal/llm"
	"pkai/internal/protocol"
)

// Tool is a named capability the model may invoke.
type Tool interface {
	Name() string
	Description() string
	// Parameters returns the JSON schema of the arguments object.
	Parameters() map[string]any
	Invoke(ctx context.Context, args map[string]any) (string, error)
}

var (
	ErrNilTool       = errors.New("tool is nil")
	ErrEmptyToolName = errors.New("tool name is empty")
)

type OutcomeKind int

const (
	OutcomeOK OutcomeKind = iota
	OutcomeUnknownTool
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeUnknownTool:
		return "unknown_tool"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the result of dispatching one tool call. Only Text is ever shown
// to the model.
type Outcome struct {
	Text string
	Kind OutcomeKind
}

// Registry maps tool names to handlers. It is fixed at construction and safe
// for concurrent reads.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry builds a registry from tools, rejecting nil tools, empty names
// and duplicates.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, tool := range tools {
		if err := r.add(tool); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) add(tool Tool) error {
	if tool == nil {
		return ErrNilTool
	}
	name := strings.TrimSpace(tool.Name())
	if name == "" {
		return ErrEmptyToolName
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}
	r.tools[name] = tool
	r.order = append(r.order, name)
	return nil
}

func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

func (r *Registry) Lookup(name string) (Tool, bool) {
	tool, ok := r.tools[name]
	return tool, ok
}

// Definitions lists the tools in registration order.
func (r *Registry) Definitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		tool := r.tools[name]
		defs = append(defs, llm.ToolDefinition{
			Name:        name,
			Description: tool.Description(),
			Parameters:  tool.Parameters(),
		})
	}
	return defs
}

// Dispatch invokes the named tool. It never returns an error and never
// panics: unknown names and failing tools become text outcomes.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any) Outcome {
	tool, ok := r.tools[name]
	if !ok {
		return Outcome{Text: protocol.UnknownToolPrefix + name, Kind: OutcomeUnknownTool}
	}
	if args == nil {
		args = map[string]any{}
	}
	text, err := invoke(ctx, tool, args)
	if err != nil {
		return Outcome{Text: protocol.ToolErrorPrefix + err.Error(), Kind: OutcomeFailed}
	}
	return Outcome{Text: text, Kind: OutcomeOK}
}

func invoke(ctx context.Context, tool Tool, args map[string]any) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			text = ""
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return tool.Invoke(ctx, args)
}
