package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"school-time-bot/api/internal/llm"
)

type Engine struct {
	APIKey     string
	Model      string
	EmbedModel string
}

func New(apiKey, model, embedModel string) *Engine {
	return &Engine{
		APIKey:     strings.TrimSpace(apiKey),
		Model:      strings.TrimSpace(model),
		EmbedModel: strings.TrimSpace(embedModel),
	}
}

func (e *Engine) Name() string     { return "gemini" }
func (e *Engine) GetModel() string { return e.Model }

func (e *Engine) EmbeddingModel() string { return "gemini/" + e.EmbedModel }

func (e *Engine) WithModel(model string) llm.Engine {
	cp := *e
	cp.Model = strings.TrimSpace(model)
	return &cp
}

func (e *Engine) client(ctx context.Context) (*genai.Client, error) {
	if e.APIKey == "" {
		return nil, llm.Unavailable("GEMINI_API_KEY is empty")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(e.APIKey))
	if err != nil {
		return nil, llm.WrapUnavailable("gemini client", err)
	}
	return cl, nil
}

func (e *Engine) Complete(ctx context.Context, in llm.Request) (string, error) {
	cl, err := e.client(ctx)
	if err != nil {
		return "", err
	}
	defer cl.Close()

	m := cl.GenerativeModel(e.Model)
	m.GenerationConfig = genai.GenerationConfig{
		Temperature: ptrFloat32(in.Temperature),
	}
	if in.MaxTokens > 0 {
		m.GenerationConfig.MaxOutputTokens = ptrInt32(int32(in.MaxTokens))
	}
	if in.JSON {
		m.GenerationConfig.ResponseMIMEType = "application/json"
	}
	if s := strings.TrimSpace(in.System); s != "" {
		m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(s)}}
	}

	resp, err := m.GenerateContent(ctx, genai.Text(in.User))
	if err != nil {
		return "", llm.WrapUnavailable("gemini generate", err)
	}
	out := strings.TrimSpace(firstText(resp))
	if out == "" {
		return "", fmt.Errorf("gemini generate: empty response")
	}
	return out, nil
}

func (e *Engine) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	cl, err := e.client(ctx)
	if err != nil {
		return nil, err
	}
	defer cl.Close()

	em := cl.EmbeddingModel(e.EmbedModel)
	b := em.NewBatch()
	for _, t := range texts {
		b.AddContent(genai.Text(t))
	}
	res, err := em.BatchEmbedContents(ctx, b)
	if err != nil {
		return nil, llm.WrapUnavailable("gemini embed", err)
	}
	if len(res.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini embed: got %d vectors for %d inputs", len(res.Embeddings), len(texts))
	}
	out := make([][]float32, len(texts))
	for i, v := range res.Embeddings {
		if v != nil {
			out[i] = v.Values
		}
	}
	return out, nil
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }
func ptrInt32(v int32) *int32       { return &v }
