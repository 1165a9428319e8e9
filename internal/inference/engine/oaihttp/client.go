// Package oaihttp drives a local llama.cpp/llamafile server process over
// its OpenAI-compatible completions surface. The server holds the actual
// Gemma weights; the model path we were asked to load is forwarded as the
// model name so a multi-model server can resolve it.
package oaihttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/inkwelldiary/inkwell/internal/inference/engine"
)

type Options struct {
	BaseURL string
	APIKey  string

	// ChatCompletionsPath defaults to the standard OpenAI path.
	ChatCompletionsPath string

	Timeout time.Duration
}

type Engine struct {
	baseURL             string
	apiKey              string
	chatCompletionsPath string
	timeout             time.Duration
	httpClient          *http.Client
}

func New(opts Options) (*Engine, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("oaihttp: base_url required")
	}

	chatPath := strings.TrimSpace(opts.ChatCompletionsPath)
	if chatPath == "" {
		chatPath = "/v1/chat/completions"
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        4,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	return &Engine{
		baseURL:             baseURL,
		apiKey:              strings.TrimSpace(opts.APIKey),
		chatCompletionsPath: chatPath,
		timeout:             timeout,
		httpClient:          &http.Client{Transport: tr, Timeout: timeout},
	}, nil
}

// NewWithHTTPClient is intended for tests; it avoids network access by
// using a custom RoundTripper.
func NewWithHTTPClient(opts Options, httpClient *http.Client) (*Engine, error) {
	e, err := New(opts)
	if err != nil {
		return nil, err
	}
	if httpClient != nil {
		e.httpClient = httpClient
	}
	return e, nil
}

func (e *Engine) Load(ctx context.Context, modelPath string, params engine.Params) (engine.Session, error) {
	if strings.TrimSpace(modelPath) == "" {
		return nil, errors.New("oaihttp: model path required")
	}
	_ = ctx
	return &session{eng: e, model: modelPath, params: params}, nil
}

type httpError struct {
	StatusCode int
	Body       string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("engine http %d: %s", e.StatusCode, e.Body)
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
	// TopK is a llama.cpp extension accepted by local servers.
	TopK int `json:"top_k,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type session struct {
	eng    *Engine
	model  string
	params engine.Params
	// closed is atomic: Close may race an in-flight Generate.
	closed atomic.Bool
}

func (s *session) Generate(ctx context.Context, prompt string) (string, error) {
	if s.closed.Load() {
		return "", errors.New("oaihttp: session closed")
	}

	reqBody := chatRequest{
		Model: s.model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
		MaxTokens: s.params.MaxTokens,
		TopK:      s.params.TopK,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(reqBody); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.eng.baseURL+s.eng.chatCompletionsPath, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.eng.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.eng.apiKey)
	}

	resp, err := s.eng.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return "", readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &httpError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("oaihttp: decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", nil
	}
	return parsed.Choices[0].Message.Content, nil
}

func (s *session) Close() error {
	s.closed.Store(true)
	return nil
}
