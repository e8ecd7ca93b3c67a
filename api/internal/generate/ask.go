package generate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"school-time-bot/api/internal/llm"
)

// Turn is one answered question of the assistant chat.
type Turn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

const maxHistory = 6

var ErrEmptyQuestion = errors.New("generate: empty question")

// Ask answers a free-form question about school autonomous time, grounded on
// the reference corpus when one is configured.
func (g *Gateway) Ask(ctx context.Context, question string, history []Turn) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrEmptyQuestion
	}
	if len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}

	var sb strings.Builder
	for _, t := range history {
		fmt.Fprintf(&sb, "질문: %s\n답변: %s\n\n", t.Question, t.Answer)
	}
	fmt.Fprintf(&sb, "질문: %s\n", question)
	if ctxText := g.retrieveK(ctx, question, g.prompts.ChatQueryK); ctxText != "" {
		fmt.Fprintf(&sb, "관련 정보: %s\n", ctxText)
	}
	sb.WriteString("답변:")

	answer, err := g.engine.Complete(ctx, llm.Request{
		System:      g.prompts.ChatSystem,
		User:        sb.String(),
		MaxTokens:   g.prompts.ChatMaxTokens,
		Temperature: g.prompts.ChatTemperature,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(answer), nil
}
