package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const maxUpstreamAttempts = 3

var retryBaseDelay = 500 * time.Millisecond

// OpenAIClient implements Client over the OpenAI chat and embeddings APIs.
// A custom BaseURL allows pointing it at any OpenAI-compatible server.
type OpenAIClient struct {
	client     *openai.Client
	embedModel string
}

// NewOpenAIClient builds a client for the given API key, optional base URL,
// and embedding model.
func NewOpenAIClient(apiKey, baseURL, embedModel string) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if embedModel == "" {
		embedModel = "text-embedding-3-small"
	}
	return &OpenAIClient{
		client:     openai.NewClientWithConfig(cfg),
		embedModel: embedModel,
	}
}

// retryTransient runs fn up to maxUpstreamAttempts times, backing off on
// rate limits, 5xx responses, and network errors. Anything else fails fast.
func retryTransient(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < maxUpstreamAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryBaseDelay << (attempt - 1)):
			}
		}
		if err = fn(); err == nil || !isTransient(err) {
			return err
		}
	}
	return err
}

func isTransient(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests ||
			apiErr.HTTPStatusCode >= http.StatusInternalServerError
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests ||
			reqErr.HTTPStatusCode >= http.StatusInternalServerError
	}
	// No typed error means the request never got a response.
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func (c *OpenAIClient) Chat(ctx context.Context, req Request) (Completion, error) {
	var resp openai.ChatCompletionResponse
	err := retryTransient(ctx, func() error {
		var e error
		resp, e = c.client.CreateChatCompletion(ctx, toOpenAIRequest(req))
		return e
	})
	if err != nil {
		return Completion{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Completion{}, errors.New("chat completion: empty choices")
	}

	choice := resp.Choices[0]
	out := Completion{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}

func (c *OpenAIClient) ChatStream(ctx context.Context, req Request, onDelta func(string)) (Completion, error) {
	oreq := toOpenAIRequest(req)
	oreq.Stream = true

	var stream *openai.ChatCompletionStream
	err := retryTransient(ctx, func() error {
		var e error
		stream, e = c.client.CreateChatCompletionStream(ctx, oreq)
		return e
	})
	if err != nil {
		return Completion{}, fmt.Errorf("opening chat stream: %w", err)
	}
	defer stream.Close()

	var out Completion
	var content []byte
	// Tool call fragments arrive indexed; arguments accumulate per index.
	calls := map[int]*ToolCall{}

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Completion{}, fmt.Errorf("reading chat stream: %w", err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if choice.FinishReason != "" {
			out.FinishReason = string(choice.FinishReason)
		}
		if choice.Delta.Content != "" {
			content = append(content, choice.Delta.Content...)
			if onDelta != nil {
				onDelta(choice.Delta.Content)
			}
		}
		for _, tc := range choice.Delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			call, ok := calls[idx]
			if !ok {
				call = &ToolCall{}
				calls[idx] = call
			}
			if tc.ID != "" {
				call.ID = tc.ID
			}
			if tc.Function.Name != "" {
				call.Name = tc.Function.Name
			}
			call.Arguments += tc.Function.Arguments
		}
	}

	out.Content = string(content)
	for i := 0; i < len(calls); i++ {
		if call, ok := calls[i]; ok {
			out.ToolCalls = append(out.ToolCalls, *call)
		}
	}
	return out, nil
}

func (c *OpenAIClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var resp openai.EmbeddingResponse
	err := retryTransient(ctx, func() error {
		var e error
		resp, e = c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model: openai.EmbeddingModel(c.embedModel),
			Input: texts,
		})
		return e
	})
	if err != nil {
		return nil, fmt.Errorf("creating embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("creating embeddings: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("creating embeddings: index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

func toOpenAIRequest(req Request) openai.ChatCompletionRequest {
	oreq := openai.ChatCompletionRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
	}
	if req.JSONOnly {
		oreq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	for _, m := range req.Messages {
		om := openai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		}
		for _, tc := range m.ToolCalls {
			om.ToolCalls = append(om.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		oreq.Messages = append(oreq.Messages, om)
	}

	for _, t := range req.Tools {
		oreq.Tools = append(oreq.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  json.RawMessage(t.Parameters),
			},
		})
	}
	return oreq
}
