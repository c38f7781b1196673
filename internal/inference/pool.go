package inference

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Pool bounds the number of completion calls in flight against the backend.
// Local backends fall over badly under unbounded concurrency, so background
// pipelines funnel every generation through a pool.
type Pool struct {
	client    *Client
	semaphore chan struct{}
	metrics   PoolMetrics
	mu        sync.Mutex
}

// PoolMetrics tracks pool throughput.
type PoolMetrics struct {
	TotalRequests   int64
	CompletedOK     int64
	CompletedError  int64
	TotalLatency    time.Duration
	AverageLatency  time.Duration
	CurrentInflight int
}

// PoolConfig holds pool configuration.
type PoolConfig struct {
	MaxConcurrent   int // maximum concurrent completion calls
	InferenceConfig *Config
}

// DefaultPoolConfig returns default pool configuration.
func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		MaxConcurrent:   4, // matches typical local backend limits
		InferenceConfig: DefaultConfig(),
	}
}

// NewPool creates a new inference pool.
func NewPool(config *PoolConfig) *Pool {
	if config == nil {
		config = DefaultPoolConfig()
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 4
	}
	return &Pool{
		client:    NewClient(config.InferenceConfig),
		semaphore: make(chan struct{}, config.MaxConcurrent),
	}
}

// Generate runs one completion through the pool, blocking while the backend
// is saturated. Cancellation while waiting for a slot returns ctx.Err().
func (p *Pool) Generate(ctx context.Context, prompt string) (*Result, error) {
	select {
	case p.semaphore <- struct{}{}:
		defer func() { <-p.semaphore }()
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for inference slot: %w", ctx.Err())
	}

	p.mu.Lock()
	p.metrics.CurrentInflight++
	p.mu.Unlock()

	start := time.Now()
	result, err := p.client.GenerateSync(ctx, prompt)
	latency := time.Since(start)

	p.mu.Lock()
	p.metrics.CurrentInflight--
	p.metrics.TotalRequests++
	p.metrics.TotalLatency += latency
	if err != nil {
		p.metrics.CompletedError++
	} else {
		p.metrics.CompletedOK++
		p.metrics.AverageLatency = p.metrics.TotalLatency / time.Duration(p.metrics.CompletedOK)
	}
	p.mu.Unlock()

	return result, err
}

// Metrics returns a snapshot of pool metrics.
func (p *Pool) Metrics() PoolMetrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.metrics
}
