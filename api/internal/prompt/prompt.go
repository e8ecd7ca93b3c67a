package prompt

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultYAML []byte

type Step struct {
	Query       string  `yaml:"query"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float32 `yaml:"temperature"`
	Template    string  `yaml:"template"`

	tmpl *template.Template
}

type Catalogue struct {
	System             string        `yaml:"system"`
	ChatSystem         string        `yaml:"chat_system"`
	ChatMaxTokens      int           `yaml:"chat_max_tokens"`
	ChatTemperature    float32       `yaml:"chat_temperature"`
	ChatQueryK         int           `yaml:"chat_query_k"`
	SuggestedQuestions []string      `yaml:"suggested_questions"`
	Steps              map[int]*Step `yaml:"steps"`
}

var funcs = template.FuncMap{
	"join": strings.Join,
	"json": func(v any) (string, error) {
		b, err := json.MarshalIndent(v, "", "  ")
		return string(b), err
	},
}

// Default returns the embedded catalogue.
func Default() (*Catalogue, error) {
	return Parse(defaultYAML)
}

// Load reads path, or the embedded catalogue when path is empty.
func Load(path string) (*Catalogue, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("prompt: read %s: %w", path, err)
	}
	return Parse(b)
}

func Parse(b []byte) (*Catalogue, error) {
	var c Catalogue
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("prompt: yaml: %w", err)
	}
	if strings.TrimSpace(c.System) == "" {
		return nil, fmt.Errorf("prompt: system instruction is empty")
	}
	if c.ChatMaxTokens <= 0 {
		c.ChatMaxTokens = 512
	}
	if c.ChatQueryK <= 0 {
		c.ChatQueryK = 3
	}
	for n, s := range c.Steps {
		if s == nil {
			return nil, fmt.Errorf("prompt: step %d is empty", n)
		}
		t, err := template.New(fmt.Sprintf("step%d", n)).Funcs(funcs).Option("missingkey=zero").Parse(s.Template)
		if err != nil {
			return nil, fmt.Errorf("prompt: step %d template: %w", n, err)
		}
		s.tmpl = t
	}
	return &c, nil
}

func (c *Catalogue) Step(n int) (*Step, bool) {
	s, ok := c.Steps[n]
	return s, ok
}

// Render executes the template of step n with data.
func (c *Catalogue) Render(n int, data any) (string, error) {
	s, ok := c.Steps[n]
	if !ok {
		return "", fmt.Errorf("prompt: no template for step %d", n)
	}
	var sb strings.Builder
	if err := s.tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("prompt: render step %d: %w", n, err)
	}
	return sb.String(), nil
}
