// Package agent drives the bounded tool-calling conversation with the model
// and streams the final answer through the relay.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jaehwang/sulbi/internal/cache"
	"github.com/jaehwang/sulbi/internal/llm"
	"github.com/jaehwang/sulbi/internal/relay"
	"github.com/jaehwang/sulbi/internal/tools"
)

const (
	defaultMaxRounds     = 3
	defaultFlushInterval = 80 * time.Millisecond
)

// Checkpoint is consulted at coarse stage boundaries (start of round,
// before the final stream). A non-nil error stops the run; in-flight
// external calls are never interrupted.
type Checkpoint func(ctx context.Context) error

// Loop runs the multi-round tool conversation. At most maxRounds rounds of
// tool calls are allowed; the final answer always comes from a streaming
// completion with tools disabled.
type Loop struct {
	client        llm.Client
	registry      *tools.Registry
	relay         *relay.Relay
	maxRounds     int
	flushInterval time.Duration
}

func New(client llm.Client, registry *tools.Registry, r *relay.Relay) *Loop {
	return &Loop{
		client:        client,
		registry:      registry,
		relay:         r,
		maxRounds:     defaultMaxRounds,
		flushInterval: defaultFlushInterval,
	}
}

// Configure overrides the round cap and delta flush interval. Zero or
// negative values keep the defaults.
func (l *Loop) Configure(maxRounds int, flushInterval time.Duration) {
	if maxRounds > 0 {
		l.maxRounds = maxRounds
	}
	if flushInterval > 0 {
		l.flushInterval = flushInterval
	}
}

// RunInput is one job's conversation setup.
type RunInput struct {
	JobID    string
	Model    string
	Messages []llm.Message
	Hints    tools.Hints
}

// runState tracks per-run tool bookkeeping. Nothing here outlives a single
// Run call.
type runState struct {
	counts map[string]int
	memo   map[string]tools.Result
	best   map[string]tools.Result
}

// callAction is the decision made for one requested tool call before any
// execution starts.
type callAction int

const (
	actExecute callAction = iota
	actMemo
	actReuseBest
	actSkip
)

// Run executes the agent conversation and returns the final streamed text.
// Tool failures never abort the run; only upstream model errors and
// checkpoint rejections do.
func (l *Loop) Run(ctx context.Context, in RunInput, checkpoint Checkpoint) (string, error) {
	msgs := append([]llm.Message(nil), in.Messages...)
	state := &runState{
		counts: make(map[string]int),
		memo:   make(map[string]tools.Result),
		best:   make(map[string]tools.Result),
	}

	for round := 1; round <= l.maxRounds; round++ {
		if checkpoint != nil {
			if err := checkpoint(ctx); err != nil {
				return "", err
			}
		}
		l.relay.Progress(in.JobID, fmt.Sprintf("agent_round_%d", round))

		comp, err := l.client.Chat(ctx, llm.Request{
			Model:    in.Model,
			Messages: msgs,
			Tools:    l.registry.Defs(),
		})
		if err != nil {
			return "", fmt.Errorf("agent round %d: %w", round, err)
		}
		if len(comp.ToolCalls) == 0 {
			break
		}

		msgs = append(msgs, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   comp.Content,
			ToolCalls: comp.ToolCalls,
		})
		msgs = append(msgs, l.runToolCalls(ctx, in, state, comp.ToolCalls)...)
	}

	if checkpoint != nil {
		if err := checkpoint(ctx); err != nil {
			return "", err
		}
	}
	return l.streamFinal(ctx, in, msgs)
}

// runToolCalls decides each call's fate in request order, dispatches the
// real executions concurrently, and returns the tool messages in request
// order.
func (l *Loop) runToolCalls(ctx context.Context, in RunInput, state *runState, calls []llm.ToolCall) []llm.Message {
	type planned struct {
		action callAction
		key    string
		result tools.Result
	}
	plan := make([]planned, len(calls))

	for i, call := range calls {
		key := call.Name + ":" + argsHash(call.Arguments)
		plan[i].key = key

		state.counts[call.Name]++
		spec, known := l.registry.Lookup(call.Name)
		switch {
		case known && spec.Cap > 0 && state.counts[call.Name] > spec.Cap:
			if best, ok := state.best[call.Name]; ok {
				best.Reused = true
				plan[i] = planned{action: actReuseBest, key: key, result: best}
			} else {
				plan[i] = planned{action: actSkip, key: key, result: tools.Result{
					Tool:    call.Name,
					Skipped: true,
					Error:   "tool call limit exceeded",
				}}
			}
		default:
			if memoized, ok := state.memo[key]; ok {
				memoized.Reused = true
				plan[i] = planned{action: actMemo, key: key, result: memoized}
			} else {
				plan[i].action = actExecute
			}
		}
	}

	results := make([]tools.Result, len(calls))
	executed := make(map[string]int) // key -> index of the executing call
	type dupJoin struct{ i, first int }
	var dups []dupJoin
	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		if plan[i].action != actExecute {
			results[i] = plan[i].result
			continue
		}
		if first, dup := executed[plan[i].key]; dup {
			// identical call twice in one round: join on the first
			dups = append(dups, dupJoin{i: i, first: first})
			continue
		}
		executed[plan[i].key] = i
		i, call := i, call
		g.Go(func() error {
			results[i] = l.registry.Execute(gctx, call, in.Hints)
			return nil
		})
	}
	// executors only report through their Result, so Wait cannot fail
	_ = g.Wait()
	for _, d := range dups {
		r := results[d.first]
		r.Reused = true
		results[d.i] = r
	}

	for i := range calls {
		if plan[i].action != actExecute {
			continue
		}
		res := results[i]
		state.memo[plan[i].key] = res
		if res.OK {
			state.best[res.Tool] = res
		}
		if !res.OK {
			slog.Debug("tool call failed", "job", in.JobID, "tool", res.Tool, "error", res.Error)
		}
	}

	out := make([]llm.Message, len(calls))
	for i, call := range calls {
		out[i] = llm.Message{
			Role:       llm.RoleTool,
			ToolCallID: call.ID,
			Name:       call.Name,
			Content:    results[i].JSON(),
		}
	}
	return out
}

// streamFinal asks for the answer with tools disabled, batching deltas to
// the relay so the event rate stays bounded.
func (l *Loop) streamFinal(ctx context.Context, in RunInput, msgs []llm.Message) (string, error) {
	l.relay.Progress(in.JobID, "streaming")

	var pending, full strings.Builder
	lastFlush := time.Now()
	flush := func() {
		if pending.Len() > 0 {
			l.relay.Delta(in.JobID, pending.String())
			pending.Reset()
		}
	}

	comp, err := l.client.ChatStream(ctx, llm.Request{
		Model:    in.Model,
		Messages: msgs,
	}, func(delta string) {
		pending.WriteString(delta)
		full.WriteString(delta)
		if time.Since(lastFlush) >= l.flushInterval {
			flush()
			lastFlush = time.Now()
		}
	})
	flush()
	if err != nil {
		return "", fmt.Errorf("final completion: %w", err)
	}

	if comp.Content != "" {
		return comp.Content, nil
	}
	return full.String(), nil
}

// argsHash normalizes tool arguments before hashing so formatting
// differences do not defeat memoization.
func argsHash(raw string) string {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return cache.HashKey(strings.TrimSpace(raw))
	}
	normalized, err := json.Marshal(v)
	if err != nil {
		return cache.HashKey(strings.TrimSpace(raw))
	}
	return cache.HashKey(string(normalized))
}
