package oaihttp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/inkwelldiary/inkwell/internal/inference/engine"
)

func TestNewRequiresBaseURL(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("New without base_url must fail")
	}
}

func TestGenerateSendsChatRequest(t *testing.T) {
	var captured chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path=%q, want /v1/chat/completions", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth header=%q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": `{"mood":"calm"}`}},
			},
		})
	}))
	defer srv.Close()

	eng, err := New(Options{BaseURL: srv.URL, APIKey: "test-key"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	session, err := eng.Load(context.Background(), "gemma-3n", engine.Params{MaxTokens: 256, TopK: 40})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	reply, err := session.Generate(context.Background(), "analyze this")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if reply != `{"mood":"calm"}` {
		t.Fatalf("reply=%q", reply)
	}

	if captured.Model != "gemma-3n" {
		t.Fatalf("model=%q, want gemma-3n", captured.Model)
	}
	if captured.MaxTokens != 256 || captured.TopK != 40 {
		t.Fatalf("params=%d/%d, want 256/40", captured.MaxTokens, captured.TopK)
	}
	if len(captured.Messages) != 1 || captured.Messages[0].Content != "analyze this" {
		t.Fatalf("messages=%+v", captured.Messages)
	}
}

func TestGenerateSurfacesServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	eng, err := New(Options{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	session, err := eng.Load(context.Background(), "gemma-3n", engine.Params{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if _, err := session.Generate(context.Background(), "hello"); err == nil {
		t.Fatal("expected error on 503")
	}
}

func TestCloseDuringInflightGenerate(t *testing.T) {
	inHandler := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(inHandler)
		<-release
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "ok"}},
			},
		})
	}))
	defer srv.Close()

	eng, err := New(Options{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	session, err := eng.Load(context.Background(), "gemma-3n", engine.Params{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := session.Generate(context.Background(), "hello")
		done <- err
	}()

	<-inHandler
	if err := session.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	close(release)

	// The request that was already in flight completes normally.
	if err := <-done; err != nil {
		t.Fatalf("in-flight Generate: %v", err)
	}
	if _, err := session.Generate(context.Background(), "again"); err == nil {
		t.Fatal("Generate after Close must fail")
	}
}

func TestGenerateAfterClose(t *testing.T) {
	eng, err := New(Options{BaseURL: "http://127.0.0.1:1"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	session, err := eng.Load(context.Background(), "gemma-3n", engine.Params{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := session.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := session.Generate(context.Background(), "hello"); err == nil {
		t.Fatal("Generate on a closed session must fail")
	}
}
