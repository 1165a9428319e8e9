package inference

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/inkwelldiary/inkwell/internal/inference/engine"
	"github.com/inkwelldiary/inkwell/internal/logger"
)

// ErrModelNotFound means no model artifact exists in any search
// directory. Analysis features cannot work until the file is provisioned;
// entry creation itself keeps working without them.
var ErrModelNotFound = errors.New("model artifact not found")

var errNotInitialized = errors.New("inference client not initialized")

type Options struct {
	// SearchDirs are tried in priority order: private app storage first,
	// then the external app-sandbox directory.
	SearchDirs    []string
	ModelFilename string
	Params        engine.Params
}

// Client owns the lifecycle of the single loaded model session. Only one
// session ever exists and it is not safe for concurrent generation, so
// every Generate call funnels through a weight-1 semaphore.
type Client struct {
	log  *logger.Logger
	eng  engine.Engine
	opts Options
	sem  *semaphore.Weighted

	mu      sync.Mutex
	session engine.Session
}

func NewClient(baseLog *logger.Logger, eng engine.Engine, opts Options) *Client {
	return &Client{
		log:  baseLog.With("service", "InferenceClient"),
		eng:  eng,
		opts: opts,
		sem:  semaphore.NewWeighted(1),
	}
}

// Initialize locates the model artifact and loads it. Must complete
// before any Generate call.
func (c *Client) Initialize(ctx context.Context) error {
	path, err := c.locateModelFile()
	if err != nil {
		return err
	}
	c.log.Info("Loading model", "path", path, "max_tokens", c.opts.Params.MaxTokens, "top_k", c.opts.Params.TopK)

	start := time.Now()
	session, err := c.eng.Load(ctx, path, c.opts.Params)
	if err != nil {
		c.log.Error("Model load failed", "path", path, "error", err)
		return fmt.Errorf("load model %s: %w", path, err)
	}
	c.log.Info("Model loaded", "elapsed", time.Since(start).String())

	c.mu.Lock()
	// A racing second Initialize would leak a session; keep the first.
	if c.session != nil {
		c.mu.Unlock()
		_ = session.Close()
		return nil
	}
	c.session = session
	c.mu.Unlock()
	return nil
}

// Generate sends one prompt through the loaded model and returns the full
// text response. Long-running: callers must not invoke it on a
// UI-serving goroutine. Concurrent calls queue on the session semaphore.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == nil {
		return "", errNotInitialized
	}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer c.sem.Release(1)

	callID := uuid.NewString()
	start := time.Now()
	c.log.Debug("Generation started", "call_id", callID, "prompt", prompt)

	reply, err := session.Generate(ctx, prompt)
	if err != nil {
		c.log.Warn("Generation failed", "call_id", callID, "elapsed", time.Since(start).String(), "error", err)
		return "", err
	}
	c.log.Debug("Generation finished", "call_id", callID, "elapsed", time.Since(start).String(), "reply_len", len(reply))
	return reply, nil
}

// Close releases the model session. Idempotent; safe to call even if
// Initialize never ran or failed.
func (c *Client) Close() {
	c.mu.Lock()
	session := c.session
	c.session = nil
	c.mu.Unlock()
	if session == nil {
		return
	}
	if err := session.Close(); err != nil {
		c.log.Warn("Closing model session failed", "error", err)
	}
}

func (c *Client) locateModelFile() (string, error) {
	// No search dirs means the engine resolves the name itself (mock
	// engine, or a server that owns the weights).
	if len(c.opts.SearchDirs) == 0 {
		return c.opts.ModelFilename, nil
	}
	for _, dir := range c.opts.SearchDirs {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, c.opts.ModelFilename)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	c.log.Error("Model artifact not found",
		"filename", c.opts.ModelFilename,
		"search_dirs", fmt.Sprintf("%v", c.opts.SearchDirs),
	)
	return "", fmt.Errorf("%w: place %q in one of %v",
		ErrModelNotFound, c.opts.ModelFilename, c.opts.SearchDirs)
}
