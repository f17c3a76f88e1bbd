package embedder

import (
	"context"
	"fmt"
	"sync"
)

// Pool runs embedding generation on a fixed number of workers. Each
// worker owns its own Embedder instance, and with it its own cache and
// model state, so workers never share mutable state. This trades one
// model load per worker for zero cross-worker synchronization.
type Pool struct {
	jobs    chan *poolJob
	workers []Embedder
	wg      sync.WaitGroup
	once    sync.Once
}

type poolJob struct {
	ctx    context.Context
	texts  []string
	result []*Embedding
	err    error
	done   chan struct{}
}

// NewPool starts workerCount workers, constructing a fresh embedder for
// each via newEmbedder
func NewPool(workerCount int, newEmbedder func() (Embedder, error)) (*Pool, error) {
	if workerCount <= 0 {
		workerCount = 4
	}

	p := &Pool{
		jobs:    make(chan *poolJob),
		workers: make([]Embedder, 0, workerCount),
	}

	for i := 0; i < workerCount; i++ {
		emb, err := newEmbedder()
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("failed to construct worker %d: %w", i, err)
		}
		p.workers = append(p.workers, emb)
		p.wg.Add(1)
		go p.run(emb)
	}
	return p, nil
}

func (p *Pool) run(emb Embedder) {
	defer p.wg.Done()
	for job := range p.jobs {
		if job.ctx.Err() != nil {
			job.err = job.ctx.Err()
			close(job.done)
			continue
		}
		resp, err := emb.GenerateBatch(job.ctx, BatchRequest{Texts: job.texts})
		if err != nil {
			job.err = err
		} else {
			job.result = resp.Embeddings
		}
		close(job.done)
	}
}

// GenerateBatch splits texts into provider-sized sub-batches, fans them
// out across the workers and reassembles the results in input order.
// The output always matches the input length on success.
func (p *Pool) GenerateBatch(ctx context.Context, texts []string) ([]*Embedding, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: no texts provided", ErrInvalidInput)
	}

	var jobs []*poolJob
	var offsets []int
	for start := 0; start < len(texts); start += DefaultBatchSize {
		end := start + DefaultBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		jobs = append(jobs, &poolJob{
			ctx:   ctx,
			texts: texts[start:end],
			done:  make(chan struct{}),
		})
		offsets = append(offsets, start)
	}

	for _, job := range jobs {
		select {
		case p.jobs <- job:
		case <-ctx.Done():
			job.err = ctx.Err()
			close(job.done)
		}
	}

	results := make([]*Embedding, len(texts))
	var firstErr error
	for i, job := range jobs {
		<-job.done
		if job.err != nil {
			if firstErr == nil {
				firstErr = job.err
			}
			continue
		}
		copy(results[offsets[i]:], job.result)
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}

// Dimension reports the embedding dimension of the pool's provider
func (p *Pool) Dimension() int {
	if len(p.workers) == 0 {
		return 0
	}
	return p.workers[0].Dimension()
}

// Provider reports the provider name of the pool's workers
func (p *Pool) Provider() string {
	if len(p.workers) == 0 {
		return ""
	}
	return p.workers[0].Provider()
}

// Model reports the model name of the pool's workers
func (p *Pool) Model() string {
	if len(p.workers) == 0 {
		return ""
	}
	return p.workers[0].Model()
}

// Close stops the workers and releases their embedders
func (p *Pool) Close() error {
	var err error
	p.once.Do(func() {
		close(p.jobs)
		p.wg.Wait()
		for _, w := range p.workers {
			if cerr := w.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
	})
	return err
}
