package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/graphrouter/internal/llm"
	"github.com/persistorai/graphrouter/internal/metrics"
	"github.com/persistorai/graphrouter/internal/models"
)

// EmbedJob asks for an embedding of one node.
type EmbedJob struct {
	NodeID string
	Text   string
}

// EmbeddingStore writes a generated vector back onto a node.
type EmbeddingStore func(ctx context.Context, nodeID string, vec []float64) error

// EmbedWorker fills the embedding property of newly created nodes in the
// background, with retry.
type EmbedWorker struct {
	embedder    llm.Embedder
	store       EmbeddingStore
	log         *logrus.Logger
	jobs        chan EmbedJob
	concurrency int
	retryDelay  time.Duration
}

// NewEmbedWorker creates a worker with the given queue capacity and concurrency.
func NewEmbedWorker(embedder llm.Embedder, store EmbeddingStore, log *logrus.Logger, queueSize, concurrency int) *EmbedWorker {
	if queueSize <= 0 {
		queueSize = 1000
	}
	if concurrency <= 0 {
		concurrency = 4
	}

	return &EmbedWorker{
		embedder:    embedder,
		store:       store,
		log:         log,
		jobs:        make(chan EmbedJob, queueSize),
		concurrency: concurrency,
		retryDelay:  baseRetryDelay,
	}
}

// Enqueue adds an embedding job. Non-blocking; drops the job if the queue is full.
func (w *EmbedWorker) Enqueue(job EmbedJob) {
	select {
	case w.jobs <- job:
		metrics.EmbedQueueDepth.Set(float64(len(w.jobs)))
	default:
		w.log.WithField("node_id", job.NodeID).Warn("embedding queue full, dropping job")
	}
}

// Run spawns the worker goroutines and blocks until the context is cancelled
// and all workers have returned. Call in a goroutine.
func (w *EmbedWorker) Run(ctx context.Context) {
	var wg sync.WaitGroup

	w.log.WithField("concurrency", w.concurrency).Info("starting embed workers")

	for i := range w.concurrency {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w.runWorker(ctx, id)
		}(i)
	}

	wg.Wait()
	w.log.Info("all embed workers stopped")
}

func (w *EmbedWorker) runWorker(ctx context.Context, id int) {
	w.log.WithField("worker_id", id).Debug("embed worker started")
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-w.jobs:
			metrics.EmbedQueueDepth.Set(float64(len(w.jobs)))
			w.processWithRetry(ctx, job)
		}
	}
}

const (
	maxRetries     = 3
	baseRetryDelay = 2 * time.Second
)

func (w *EmbedWorker) processWithRetry(ctx context.Context, job EmbedJob) {
	for attempt := range maxRetries {
		if ctx.Err() != nil {
			return
		}

		vec, err := w.embedder.Embed(ctx, job.Text)
		if err != nil {
			w.log.WithError(err).WithFields(logrus.Fields{
				"node_id": job.NodeID,
				"attempt": attempt + 1,
			}).Warn("embedding generation failed")

			if attempt < maxRetries-1 {
				delay := w.retryDelay * (1 << attempt)
				select {
				case <-ctx.Done():
					return
				case <-time.After(delay):
				}
			}

			continue
		}

		if err := w.store(ctx, job.NodeID, vec); err != nil {
			w.log.WithError(err).WithField("node_id", job.NodeID).Error("storing embedding")
		} else {
			w.log.WithField("node_id", job.NodeID).Debug("embedding stored")
		}

		return
	}

	w.log.WithField("node_id", job.NodeID).Error("embedding failed after all retries")
}

// embedText renders a node as "Label: key=value, ..." with keys sorted.
// Vectors and nested values are left out.
func embedText(n *models.Node, skip string) string {
	keys := make([]string, 0, len(n.Properties))
	for k := range n.Properties {
		if k != skip {
			keys = append(keys, k)
		}
	}

	slices.Sort(keys)

	parts := make([]string, 0, len(keys))

	for _, k := range keys {
		switch v := n.Properties[k].(type) {
		case string, bool, int, int64, float64:
			parts = append(parts, fmt.Sprintf("%s=%v", k, v))
		}
	}

	return n.Label + ": " + strings.Join(parts, ", ")
}

// enqueueEmbedding schedules an embedding for n when a worker is running and
// the node does not already carry one.
func (d *Database) enqueueEmbedding(n *models.Node) {
	d.mu.RLock()
	w := d.embeds
	d.mu.RUnlock()

	if w == nil || n == nil {
		return
	}

	if _, ok := n.Properties[d.opts.EmbedField]; ok {
		return
	}

	w.Enqueue(EmbedJob{NodeID: n.ID, Text: embedText(n, d.opts.EmbedField)})
}

func (d *Database) storeEmbedding(ctx context.Context, id string, vec []float64) error {
	if _, err := d.UpdateNode(ctx, id, map[string]any{d.opts.EmbedField: vec}); err != nil {
		return fmt.Errorf("writing %s of node %s: %w", d.opts.EmbedField, id, err)
	}

	return nil
}
