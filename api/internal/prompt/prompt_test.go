package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type basic struct {
	ActivityName string
	Requirements string
	SchoolLevel  string
	Grades       []string
	Subjects     []string
	Semesters    []string
	TotalHours   int
	WeeklyHours  int
}

func TestDefaultCatalogue(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	for _, n := range []int{1, 3, 4, 5, 6} {
		s, ok := c.Step(n)
		if !ok {
			t.Fatalf("step %d missing", n)
		}
		if s.MaxTokens < 1800 || s.MaxTokens > 3000 {
			t.Fatalf("step %d max_tokens = %d", n, s.MaxTokens)
		}
	}
	for _, n := range []int{2, 7} {
		if _, ok := c.Step(n); ok {
			t.Fatalf("step %d must have no template", n)
		}
	}
	if s, _ := c.Step(6); s.Temperature != 0.5 {
		t.Fatalf("lesson temperature = %v", s.Temperature)
	}
	if c.ChatMaxTokens != 512 || len(c.SuggestedQuestions) != 3 {
		t.Fatalf("chat settings = %d / %d", c.ChatMaxTokens, len(c.SuggestedQuestions))
	}
}

func TestRenderStepOne(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	out, err := c.Render(1, map[string]any{"Basic": basic{
		ActivityName: "텃밭가꾸기",
		Grades:       []string{"4학년", "5학년"},
		Subjects:     []string{"사회"},
		Semesters:    []string{"1학기"},
		TotalHours:   29,
		WeeklyHours:  1,
	}})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	for _, want := range []string{"활동명: 텃밭가꾸기", "대상 학년: 4학년, 5학년", "총 차시: 29차시"} {
		if !strings.Contains(out, want) {
			t.Fatalf("rendered prompt lacks %q:\n%s", want, out)
		}
	}
	if _, err := c.Render(2, nil); err == nil {
		t.Fatalf("Render(2): want error")
	}
}

func TestLoadOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.yaml")
	body := "system: sys\nsteps:\n  3:\n    query: q\n    max_tokens: 10\n    template: \"ctx={{.Context}}\"\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	out, err := c.Render(3, struct{ Context string }{"passages"})
	if err != nil || out != "ctx=passages" {
		t.Fatalf("Render = %q, %v", out, err)
	}
	if c.ChatMaxTokens != 512 || c.ChatQueryK != 3 {
		t.Fatalf("chat defaults not applied: %+v", c)
	}

	if _, err := Parse([]byte("steps: {}\n")); err == nil {
		t.Fatalf("empty system: want error")
	}
	if _, err := Parse([]byte("system: s\nsteps:\n  1:\n    template: \"{{.Broken\"\n")); err == nil {
		t.Fatalf("broken template: want error")
	}
}
