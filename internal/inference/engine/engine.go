package engine

import "context"

// Params are the fixed decoding settings a session is loaded with.
type Params struct {
	MaxTokens int
	TopK      int
}

// Session is one loaded model instance. It is a single mutable resource:
// callers must not issue concurrent Generate calls against the same
// session.
type Session interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Close() error
}

// Engine turns a model artifact on disk into a live session.
type Engine interface {
	Load(ctx context.Context, modelPath string, params Params) (Session, error)
}
