package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/jaehwang/sulbi/internal/llm"
)

type fnExecutor struct {
	fn func(ctx context.Context, args json.RawMessage, hints Hints) (any, error)
}

func (f *fnExecutor) Execute(ctx context.Context, args json.RawMessage, hints Hints) (any, error) {
	return f.fn(ctx, args, hints)
}

func spec(name string, cap int, fn func(ctx context.Context, args json.RawMessage, hints Hints) (any, error)) Spec {
	return Spec{
		Def:  llm.ToolDef{Name: name, Parameters: json.RawMessage(`{"type":"object"}`)},
		Exec: &fnExecutor{fn: fn},
		Cap:  cap,
	}
}

func TestRegistry_DefsSorted(t *testing.T) {
	r := NewRegistry(
		spec("zeta", 1, nil),
		spec("alpha", 1, nil),
		spec("mid", 1, nil),
	)
	defs := r.Defs()
	if len(defs) != 3 {
		t.Fatalf("len(defs) = %d, want 3", len(defs))
	}
	for i, want := range []string{"alpha", "mid", "zeta"} {
		if defs[i].Name != want {
			t.Errorf("defs[%d].Name = %q, want %q", i, defs[i].Name, want)
		}
	}
}

func TestRegistry_ExecuteSuccess(t *testing.T) {
	var gotHints Hints
	r := NewRegistry(spec("echo", 1, func(_ context.Context, args json.RawMessage, hints Hints) (any, error) {
		gotHints = hints
		return map[string]string{"args": string(args)}, nil
	}))

	res := r.Execute(context.Background(), llm.ToolCall{Name: "echo", Arguments: `{"x":1}`}, Hints{Question: "질문"})
	if !res.OK {
		t.Fatalf("res = %+v, want ok", res)
	}
	if res.Tool != "echo" || res.Error != "" {
		t.Errorf("res = %+v", res)
	}
	if gotHints.Question != "질문" {
		t.Errorf("hints not passed through: %+v", gotHints)
	}
}

func TestRegistry_ExecuteUnknownTool(t *testing.T) {
	r := NewRegistry()
	res := r.Execute(context.Background(), llm.ToolCall{Name: "nope"}, Hints{})
	if res.OK || res.Error == "" {
		t.Fatalf("res = %+v, want error-shaped", res)
	}
}

func TestRegistry_ExecuteError(t *testing.T) {
	r := NewRegistry(spec("boom", 1, func(context.Context, json.RawMessage, Hints) (any, error) {
		return nil, errors.New("upstream unavailable")
	}))
	res := r.Execute(context.Background(), llm.ToolCall{Name: "boom"}, Hints{})
	if res.OK {
		t.Fatal("want error-shaped result")
	}
	if res.Error != "upstream unavailable" {
		t.Errorf("Error = %q", res.Error)
	}
}

func TestRegistry_ExecuteRecovers(t *testing.T) {
	r := NewRegistry(spec("panicky", 1, func(context.Context, json.RawMessage, Hints) (any, error) {
		panic("nil map write")
	}))
	res := r.Execute(context.Background(), llm.ToolCall{Name: "panicky"}, Hints{})
	if res.OK {
		t.Fatal("want error-shaped result")
	}
	if !strings.Contains(res.Error, "nil map write") {
		t.Errorf("Error = %q, want panic message included", res.Error)
	}
}

func TestResult_JSON(t *testing.T) {
	res := Result{Tool: "trend_search", OK: true, Data: []string{"a"}}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(res.JSON()), &decoded); err != nil {
		t.Fatalf("JSON() not parseable: %v", err)
	}
	if decoded["tool"] != "trend_search" || decoded["ok"] != true {
		t.Errorf("decoded = %v", decoded)
	}
	if _, ok := decoded["error"]; ok {
		t.Error("empty error should be omitted")
	}
}
