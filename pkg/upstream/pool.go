package upstream

import (
	"sync"

	"github.com/platinummonkey/nexus-mcp/pkg/observability"
)

// Pool keeps one Client per cluster
type Pool struct {
	cfg     Config
	logger  *observability.Logger
	metrics *observability.Metrics

	mu      sync.Mutex
	clients map[string]*Client
}

// NewPool creates an empty pool
func NewPool(cfg Config, logger *observability.Logger) *Pool {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Pool{
		cfg:     cfg.withDefaults(),
		logger:  logger,
		clients: make(map[string]*Client),
	}
}

// SetMetrics attaches Prometheus metrics to every client created afterwards
func (p *Pool) SetMetrics(m *observability.Metrics) {
	p.metrics = m
}

// Get returns the client for key, creating it at most once. A client whose
// credentials changed is replaced.
func (p *Pool) Get(key string, creds Credentials) (*Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[key]; ok {
		if c.Credentials() == creds {
			return c, nil
		}
		c.CloseIdleConnections()
		delete(p.clients, key)
		p.logger.WithField("cluster", key).Info("cluster credentials changed, replacing client")
	}

	c, err := NewClient(creds, p.cfg, p.logger.WithField("cluster", key))
	if err != nil {
		return nil, err
	}
	c.SetMetrics(p.metrics)
	p.clients[key] = c
	return c, nil
}

// Remove drops the client for key
func (p *Pool) Remove(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[key]; ok {
		c.CloseIdleConnections()
		delete(p.clients, key)
	}
}

// Len returns the number of live clients
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}

// Close releases every client's idle connections
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, c := range p.clients {
		c.CloseIdleConnections()
		delete(p.clients, key)
	}
	return nil
}
