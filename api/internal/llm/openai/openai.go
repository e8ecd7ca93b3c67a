package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"school-time-bot/api/internal/llm"
)

const DefaultBaseURL = "https://api.openai.com/v1"

type Engine struct {
	APIKey     string
	Model      string
	EmbedModel string
	BaseURL    string
	httpc      *http.Client
}

func New(key, model, embedModel, baseURL string) *Engine {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	return &Engine{
		APIKey:     key,
		Model:      model,
		EmbedModel: embedModel,
		BaseURL:    strings.TrimRight(baseURL, "/"),
		httpc:      &http.Client{Timeout: 120 * time.Second},
	}
}

func (e *Engine) Name() string { return "gpt" }

func (e *Engine) EmbeddingModel() string { return "gpt/" + e.EmbedModel }

func (e *Engine) GetModel() string { return e.Model }

// WithModel returns a copy of the engine bound to another chat model.
func (e *Engine) WithModel(model string) llm.Engine {
	cp := *e
	cp.Model = model
	return &cp
}

func (e *Engine) Complete(ctx context.Context, in llm.Request) (string, error) {
	if e.APIKey == "" {
		return "", llm.Unavailable("OPENAI_API_KEY is empty")
	}
	body := map[string]any{
		"model": e.Model,
		"messages": []any{
			map[string]any{"role": "system", "content": in.System},
			map[string]any{"role": "user", "content": in.User},
		},
		"temperature": in.Temperature,
	}
	if in.MaxTokens > 0 {
		body["max_tokens"] = in.MaxTokens
	}

	var raw struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := e.post(ctx, "/chat/completions", body, &raw); err != nil {
		return "", err
	}
	if len(raw.Choices) == 0 {
		return "", fmt.Errorf("openai complete: empty response")
	}
	return strings.TrimSpace(raw.Choices[0].Message.Content), nil
}

func (e *Engine) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if e.APIKey == "" {
		return nil, llm.Unavailable("OPENAI_API_KEY is empty")
	}
	if len(texts) == 0 {
		return nil, nil
	}
	body := map[string]any{"model": e.EmbedModel, "input": texts}

	var raw struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := e.post(ctx, "/embeddings", body, &raw); err != nil {
		return nil, err
	}
	if len(raw.Data) != len(texts) {
		return nil, fmt.Errorf("openai embed: got %d vectors for %d inputs", len(raw.Data), len(texts))
	}
	out := make([][]float32, len(texts))
	for _, d := range raw.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("openai embed: index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

func (e *Engine) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.APIKey)

	resp, err := e.httpc.Do(req)
	if err != nil {
		return llm.WrapUnavailable("openai "+path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		x, _ := io.ReadAll(resp.Body)
		return llm.Unavailable("openai %s %d: %s", path, resp.StatusCode, strings.TrimSpace(string(x)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("openai %s: decode: %w", path, err)
	}
	return nil
}
