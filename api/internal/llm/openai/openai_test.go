package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"school-time-bot/api/internal/llm"
)

func TestCompleteSendsRequest(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("auth header = %q", r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  [1,2]  "}}]}`))
	}))
	defer srv.Close()

	e := New("sk-test", "gpt-4o", "emb", srv.URL)
	out, err := e.Complete(context.Background(), llm.Request{System: "sys", User: "usr", MaxTokens: 1800, Temperature: 0.7})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "[1,2]" {
		t.Fatalf("out = %q", out)
	}
	if got["model"] != "gpt-4o" || got["max_tokens"].(float64) != 1800 {
		t.Fatalf("request body = %v", got)
	}
	msgs := got["messages"].([]any)
	if len(msgs) != 2 || msgs[0].(map[string]any)["content"] != "sys" {
		t.Fatalf("messages = %v", msgs)
	}
}

func TestCompleteUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := New("sk-bad", "gpt-4o", "", srv.URL).Complete(context.Background(), llm.Request{})
	if !errors.Is(err, llm.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	_, err = New("", "gpt-4o", "", srv.URL).Complete(context.Background(), llm.Request{})
	if !errors.Is(err, llm.ErrUnavailable) {
		t.Fatalf("missing key err = %v", err)
	}
}

func TestEmbedOrdersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[0,1]},{"index":0,"embedding":[1,0]}]}`))
	}))
	defer srv.Close()

	vecs, err := New("k", "m", "emb", srv.URL).Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if vecs[0][0] != 1 || vecs[1][1] != 1 {
		t.Fatalf("vecs = %v", vecs)
	}
}

func TestWithModelCopies(t *testing.T) {
	e := New("k", "gpt-4o", "", "")
	other := e.WithModel("gpt-4o-mini")
	if e.GetModel() != "gpt-4o" || other.GetModel() != "gpt-4o-mini" {
		t.Fatalf("models = %s / %s", e.GetModel(), other.GetModel())
	}
	if e.BaseURL != DefaultBaseURL {
		t.Fatalf("base url = %s", e.BaseURL)
	}
}
