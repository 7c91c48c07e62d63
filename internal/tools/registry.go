// Package tools holds the function tools the advice agent can call and the
// registry that dispatches model tool calls to them.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/jaehwang/sulbi/internal/llm"
)

// Hints carries job-level fallback values. Executors fall back to these when
// the model sends malformed or empty arguments.
type Hints struct {
	Question    string // the founder's original question
	DongName    string // administrative dong of the job's district
	AreaKeyword string // normalized trend area keyword for the district
	Concept     string // desired pub concept from the job options
}

// Executor runs one tool invocation. Implementations report failures through
// the returned error and must not panic.
type Executor interface {
	Execute(ctx context.Context, args json.RawMessage, hints Hints) (any, error)
}

// Spec binds a tool definition to its executor and its per-job call cap.
type Spec struct {
	Def  llm.ToolDef
	Exec Executor
	Cap  int
}

// Registry is an immutable name -> Spec lookup built once at startup.
type Registry struct {
	specs map[string]Spec
}

func NewRegistry(specs ...Spec) *Registry {
	m := make(map[string]Spec, len(specs))
	for _, s := range specs {
		m[s.Def.Name] = s
	}
	return &Registry{specs: m}
}

func (r *Registry) Lookup(name string) (Spec, bool) {
	s, ok := r.specs[name]
	return s, ok
}

// Defs returns the tool definitions in stable name order, for inclusion in
// chat requests.
func (r *Registry) Defs() []llm.ToolDef {
	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	defs := make([]llm.ToolDef, 0, len(names))
	for _, name := range names {
		defs = append(defs, r.specs[name].Def)
	}
	return defs
}

// Result is the envelope fed back to the model as the tool message. A failed
// tool still produces a Result so the conversation can continue.
type Result struct {
	Tool    string `json:"tool"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	Reused  bool   `json:"reused,omitempty"`
	Skipped bool   `json:"skipped,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// JSON renders the result for the tool message content.
func (r Result) JSON() string {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf(`{"tool":%q,"ok":false,"error":"unserializable result"}`, r.Tool)
	}
	return string(b)
}

// Execute dispatches a model tool call. Unknown tools, executor errors, and
// panics all come back as error-shaped Results, never as Go errors.
func (r *Registry) Execute(ctx context.Context, call llm.ToolCall, hints Hints) (res Result) {
	res = Result{Tool: call.Name}
	spec, ok := r.Lookup(call.Name)
	if !ok {
		res.Error = fmt.Sprintf("unknown tool %q", call.Name)
		return res
	}
	defer func() {
		if p := recover(); p != nil {
			res = Result{Tool: call.Name, Error: fmt.Sprintf("tool panicked: %v", p)}
		}
	}()
	data, err := spec.Exec.Execute(ctx, json.RawMessage(call.Arguments), hints)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.OK = true
	res.Data = data
	return res
}
