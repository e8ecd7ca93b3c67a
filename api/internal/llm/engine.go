package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrUnavailable wraps transport, auth and non-2xx failures of an engine.
var ErrUnavailable = errors.New("llm: generator unavailable")

type Request struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float32
	// JSON asks engines that support it for a JSON-only response.
	JSON bool
}

type Engine interface {
	Name() string
	GetModel() string
	Complete(ctx context.Context, req Request) (string, error)
}

// Embedder turns texts into vectors. EmbeddingModel names the provider and
// model so persisted vectors can be matched to the embedder that made them.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbeddingModel() string
}

// Unavailable formats an error that satisfies errors.Is(err, ErrUnavailable).
func Unavailable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnavailable, fmt.Sprintf(format, args...))
}

// WrapUnavailable marks err as ErrUnavailable and keeps err in the chain.
func WrapUnavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}

// Engines is the set of configured engines addressed by name.
type Engines struct {
	OpenAI Engine
	Gemini Engine
}

func (e *Engines) GetEngine(name string) (Engine, error) {
	var eng Engine
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "gpt", "openai":
		eng = e.OpenAI
	case "gemini":
		eng = e.Gemini
	default:
		return nil, fmt.Errorf("unknown engine %q (gpt | gemini)", name)
	}
	if eng == nil {
		return nil, fmt.Errorf("engine %q is not configured", name)
	}
	return eng, nil
}

