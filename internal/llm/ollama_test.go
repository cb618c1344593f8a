package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOllama_Generate(t *testing.T) {
	var got ollamaChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		fmt.Fprint(w, `{"model":"llama3.2","message":{"role":"assistant","content":"hello"}}`)
	}))
	defer srv.Close()

	c := NewOllama(srv.URL, "")
	resp, err := c.Generate(context.Background(), Request{System: "s", Prompt: "p", Temperature: 0.5})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Text != "hello" {
		t.Errorf("Text = %q", resp.Text)
	}
	if got.Stream {
		t.Error("stream must be false")
	}
	if got.Options["temperature"] != 0.5 {
		t.Errorf("options = %v", got.Options)
	}
}

func TestOllama_HasModelAndEnsure(t *testing.T) {
	pulled := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			if pulled {
				fmt.Fprint(w, `{"models":[{"name":"llama3.2:latest"}]}`)
				return
			}
			fmt.Fprint(w, `{"models":[{"name":"other:latest"}]}`)
		case "/api/pull":
			pulled = true
			fmt.Fprintln(w, `{"status":"pulling","total":10,"completed":5}`)
			fmt.Fprintln(w, `{"status":"success"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewOllama(srv.URL, "llama3.2")
	if ok, err := c.HasModel(context.Background()); err != nil || ok {
		t.Fatalf("HasModel before pull = %v, %v", ok, err)
	}

	var lines []PullProgress
	if err := c.EnsureModel(context.Background(), func(p PullProgress) { lines = append(lines, p) }); err != nil {
		t.Fatalf("EnsureModel: %v", err)
	}
	if len(lines) != 2 || lines[1].Status != "success" {
		t.Errorf("progress = %+v", lines)
	}
	if ok, _ := c.HasModel(context.Background()); !ok {
		t.Error("HasModel after pull = false")
	}
}

func TestOllama_NotRunning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	if err := NewOllama(url, "m").EnsureModel(context.Background(), nil); err == nil {
		t.Error("expected error when ollama is down")
	}
}
