// Package enrich runs profile-signature enrichment off the entry
// creation path. Jobs are fire-and-forget: a full queue or a failed run
// never surfaces to the writer of the entry.
package enrich

import (
	"context"
	"sync"

	"github.com/inkwelldiary/inkwell/internal/logger"
	"github.com/inkwelldiary/inkwell/internal/utils"
)

type Job struct {
	EntryID int64
	Text    string
}

// Handler executes one enrichment round.
type Handler func(ctx context.Context, entryID int64, text string)

type Worker struct {
	log     *logger.Logger
	handler Handler
	queue   chan Job
	wg      sync.WaitGroup
}

func NewWorker(baseLog *logger.Logger, handler Handler, queueSize int) *Worker {
	if queueSize <= 0 {
		queueSize = 16
	}
	return &Worker{
		log:     baseLog.With("component", "EnrichWorker"),
		handler: handler,
		queue:   make(chan Job, queueSize),
	}
}

// Start spins up the worker goroutines. Concurrency defaults to 1 so
// enrichment rounds queue behind each other on the single model session
// instead of contending for it.
func (w *Worker) Start(ctx context.Context) {
	concurrency := utils.GetEnvAsInt("ENRICH_WORKER_CONCURRENCY", 1, w.log)
	if concurrency < 1 {
		concurrency = 1
	}
	w.log.Info("Enrichment worker starting", "concurrency", concurrency, "queue_size", cap(w.queue))

	for i := 0; i < concurrency; i++ {
		w.wg.Add(1)
		go w.runLoop(ctx)
	}
}

func (w *Worker) runLoop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-w.queue:
			if !ok {
				return
			}
			w.log.Debug("Enrichment job picked up", "entry_id", job.EntryID)
			func() {
				defer func() {
					if r := recover(); r != nil {
						w.log.Error("Enrichment handler panic", "entry_id", job.EntryID, "panic", r)
					}
				}()
				w.handler(ctx, job.EntryID, job.Text)
			}()
		}
	}
}

// Enqueue hands an entry to the worker without blocking. Returns false
// when the queue is full and the job was dropped.
func (w *Worker) Enqueue(entryID int64, text string) bool {
	select {
	case w.queue <- Job{EntryID: entryID, Text: text}:
		return true
	default:
		return false
	}
}

// Wait blocks until every worker goroutine has exited. Call after
// cancelling the Start context.
func (w *Worker) Wait() {
	w.wg.Wait()
}
