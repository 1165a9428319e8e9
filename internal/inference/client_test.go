package inference

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/inkwelldiary/inkwell/internal/inference/engine"
	"github.com/inkwelldiary/inkwell/internal/inference/engine/mock"
	"github.com/inkwelldiary/inkwell/internal/logger"
)

func newTestClient(t *testing.T, eng engine.Engine, opts Options) *Client {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	return NewClient(log, eng, opts)
}

func writeModelFile(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("weights"), 0o644); err != nil {
		t.Fatalf("write model file: %v", err)
	}
}

func TestInitializeModelNotFound(t *testing.T) {
	c := newTestClient(t, mock.New(), Options{
		SearchDirs:    []string{t.TempDir(), t.TempDir()},
		ModelFilename: "gemma.task",
	})

	err := c.Initialize(context.Background())
	if !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("err=%v, want ErrModelNotFound", err)
	}
}

func TestInitializePrefersFirstSearchDir(t *testing.T) {
	primary := t.TempDir()
	secondary := t.TempDir()
	writeModelFile(t, primary, "gemma.task")
	writeModelFile(t, secondary, "gemma.task")

	eng := mock.New()
	c := newTestClient(t, eng, Options{
		SearchDirs:    []string{primary, secondary},
		ModelFilename: "gemma.task",
	})

	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if got, want := eng.LastPath(), filepath.Join(primary, "gemma.task"); got != want {
		t.Fatalf("loaded path=%q, want %q", got, want)
	}
}

func TestGenerateBeforeInitialize(t *testing.T) {
	c := newTestClient(t, mock.New(), Options{ModelFilename: "gemma.task"})

	if _, err := c.Generate(context.Background(), "hello"); err == nil {
		t.Fatal("Generate before Initialize must fail")
	}
}

func TestGenerateSerializesConcurrentCalls(t *testing.T) {
	var active, peak int32
	eng := mock.New()
	eng.Reply = `{"mood":"ok"}`
	eng.OnGenerate = func(string) {
		n := atomic.AddInt32(&active, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&active, -1)
	}

	c := newTestClient(t, eng, Options{ModelFilename: "gemma.task"})
	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Generate(context.Background(), "prompt"); err != nil {
				t.Errorf("Generate: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&peak); got != 1 {
		t.Fatalf("peak concurrent generations=%d, want 1", got)
	}
	if eng.Calls() != 5 {
		t.Fatalf("calls=%d, want 5", eng.Calls())
	}
}

func TestGenerateRespectsContextWhileQueued(t *testing.T) {
	release := make(chan struct{})
	eng := mock.New()
	eng.Reply = `{"mood":"ok"}`
	eng.OnGenerate = func(string) { <-release }

	c := newTestClient(t, eng, Options{ModelFilename: "gemma.task"})
	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	// First call holds the session.
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.Generate(context.Background(), "first")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Generate(ctx, "second")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("queued Generate err=%v, want deadline exceeded", err)
	}

	close(release)
	<-done
}

func TestInitializeTwiceKeepsFirstSession(t *testing.T) {
	eng := mock.New()
	c := newTestClient(t, eng, Options{ModelFilename: "gemma.task"})

	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("first Initialize: %v", err)
	}
	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("second Initialize: %v", err)
	}
	// The redundant session is closed, the first stays live.
	if eng.Closes() != 1 {
		t.Fatalf("closes=%d, want 1", eng.Closes())
	}
	if _, err := c.Generate(context.Background(), "still alive"); err != nil {
		t.Fatalf("Generate after double Initialize: %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	eng := mock.New()
	c := newTestClient(t, eng, Options{ModelFilename: "gemma.task"})

	// Close before Initialize is a no-op.
	c.Close()

	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	c.Close()
	c.Close()
	if eng.Closes() != 1 {
		t.Fatalf("closes=%d, want 1", eng.Closes())
	}

	if _, err := c.Generate(context.Background(), "gone"); err == nil {
		t.Fatal("Generate after Close must fail")
	}
}
