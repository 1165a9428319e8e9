package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/inkwelldiary/inkwell/internal/inference/engine"
)

// Engine is a scripted engine for tests and model-less development runs.
// Replies are consumed in order; when exhausted, Reply (or a canned
// string) is returned for every further call.
type Engine struct {
	LoadErr     error
	GenerateErr error
	Replies     []string
	Reply       string

	// OnGenerate lets tests hold a generation open to observe
	// serialization.
	OnGenerate func(prompt string)

	mu       sync.Mutex
	loads    int
	calls    int
	closed   int
	lastPath string
}

func New() *Engine {
	return &Engine{}
}

func (e *Engine) Load(ctx context.Context, modelPath string, params engine.Params) (engine.Session, error) {
	_ = ctx
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.LoadErr != nil {
		return nil, e.LoadErr
	}
	e.loads++
	e.lastPath = modelPath
	return &session{eng: e, params: params}, nil
}

func (e *Engine) Loads() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loads
}

func (e *Engine) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func (e *Engine) Closes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *Engine) LastPath() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastPath
}

type session struct {
	eng    *Engine
	params engine.Params
}

func (s *session) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.eng.OnGenerate != nil {
		s.eng.OnGenerate(prompt)
	}
	s.eng.mu.Lock()
	defer s.eng.mu.Unlock()
	if s.eng.GenerateErr != nil {
		return "", s.eng.GenerateErr
	}
	idx := s.eng.calls
	s.eng.calls++
	if idx < len(s.eng.Replies) {
		return s.eng.Replies[idx], nil
	}
	if s.eng.Reply != "" {
		return s.eng.Reply, nil
	}
	return fmt.Sprintf(`{"mood":"neutral","summary":"scripted reply %d","tags":[]}`, idx), nil
}

func (s *session) Close() error {
	s.eng.mu.Lock()
	defer s.eng.mu.Unlock()
	s.eng.closed++
	return nil
}
