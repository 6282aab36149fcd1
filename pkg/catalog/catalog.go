package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/platinummonkey/nexus-mcp/pkg/apierr"
	"github.com/platinummonkey/nexus-mcp/pkg/async"
	"github.com/platinummonkey/nexus-mcp/pkg/observability"
)

// loadWorkers bounds how many namespace documents are parsed at once
const loadWorkers = 4

// LoadReport summarizes a LoadAll or Reload pass
type LoadReport struct {
	Loaded     map[string]int    `json:"loaded"`
	Failed     map[string]string `json:"failed,omitempty"`
	Skipped    []string          `json:"skipped,omitempty"`
	Operations int               `json:"operations"`
	LoadedAt   time.Time         `json:"loaded_at"`
}

// Catalog holds the operations of every loaded namespace
type Catalog struct {
	specDir    string
	builder    *Builder
	logger     *observability.Logger
	metrics    *observability.Metrics
	mu         sync.RWMutex
	namespaces map[string]Namespace
	order      []string
	operations map[string][]Operation
	byName     map[string]Operation
	byTool     map[string]Operation
}

// New creates an empty catalog for the given namespaces
func New(namespaces []Namespace, specDir string, logger *observability.Logger) *Catalog {
	if logger == nil {
		logger = observability.NopLogger()
	}
	c := &Catalog{
		specDir:    specDir,
		builder:    NewBuilder(logger),
		logger:     logger,
		namespaces: make(map[string]Namespace, len(namespaces)),
		operations: make(map[string][]Operation),
		byName:     make(map[string]Operation),
		byTool:     make(map[string]Operation),
	}
	for _, ns := range namespaces {
		c.namespaces[ns.Name] = ns
		c.order = append(c.order, ns.Name)
	}
	return c
}

// SetMetrics attaches Prometheus metrics
func (c *Catalog) SetMetrics(m *observability.Metrics) {
	c.metrics = m
}

// SpecDir returns the directory documents are read from
func (c *Catalog) SpecDir() string {
	return c.specDir
}

// LoadAll loads every enabled namespace. Failures are isolated per
// namespace and reported; they never abort the other namespaces.
func (c *Catalog) LoadAll(ctx context.Context) *LoadReport {
	report := &LoadReport{
		Loaded:   make(map[string]int),
		Failed:   make(map[string]string),
		LoadedAt: time.Now().UTC(),
	}

	var enabled []string
	c.mu.RLock()
	for _, name := range c.order {
		if !c.namespaces[name].Enabled {
			report.Skipped = append(report.Skipped, name)
			continue
		}
		enabled = append(enabled, name)
	}
	c.mu.RUnlock()

	errs := async.Batch(ctx, enabled, loadWorkers, 0, "load namespace", func(ctx context.Context, name string) error {
		_, err := c.Reload(name)
		return err
	})
	for i, name := range enabled {
		if errs[i] != nil {
			report.Failed[name] = errs[i].Error()
			continue
		}
		c.mu.RLock()
		report.Loaded[name] = len(c.operations[name])
		c.mu.RUnlock()
	}

	report.Operations = c.Count()
	return report
}

// Reload re-reads one namespace document and swaps its operations in.
// On failure the previously loaded operations stay in place.
func (c *Catalog) Reload(name string) (int, error) {
	c.mu.RLock()
	ns, ok := c.namespaces[name]
	c.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("unknown namespace: %s", name)
	}

	data, err := os.ReadFile(c.specPath(ns))
	if err != nil {
		c.recordFailure(name)
		return 0, apierr.Catalog(name, fmt.Errorf("failed to read spec file: %w", err))
	}

	return c.LoadDocument(ns, data)
}

// LoadDocument parses data for ns and swaps its operations in
func (c *Catalog) LoadDocument(ns Namespace, data []byte) (int, error) {
	ops, err := c.builder.Build(ns, data)
	if err != nil {
		c.recordFailure(ns.Name)
		c.logger.WithError(err).WithField("namespace", ns.Name).Error("namespace document rejected")
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.namespaces[ns.Name]; !ok {
		c.order = append(c.order, ns.Name)
	}
	c.namespaces[ns.Name] = ns

	for _, old := range c.operations[ns.Name] {
		delete(c.byName, old.Name())
		if existing, ok := c.byTool[old.ToolName()]; ok && existing.Namespace == ns.Name {
			delete(c.byTool, old.ToolName())
		}
	}

	c.operations[ns.Name] = ops
	for _, op := range ops {
		c.byName[op.Name()] = op
		tool := op.ToolName()
		if existing, ok := c.byTool[tool]; ok && existing.Name() != op.Name() {
			c.logger.WithFields(map[string]interface{}{
				"tool":     tool,
				"existing": existing.Name(),
				"skipped":  op.Name(),
			}).Warn("tool name collision after truncation")
			continue
		}
		c.byTool[tool] = op
	}

	if c.metrics != nil {
		c.metrics.CatalogOperations.WithLabelValues(ns.Name).Set(float64(len(ops)))
	}
	c.logger.WithFields(map[string]interface{}{
		"namespace":  ns.Name,
		"operations": len(ops),
	}).Info("namespace loaded")

	return len(ops), nil
}

func (c *Catalog) recordFailure(name string) {
	if c.metrics != nil {
		c.metrics.CatalogLoadErrors.WithLabelValues(name).Inc()
	}
}

func (c *Catalog) specPath(ns Namespace) string {
	if filepath.IsAbs(ns.SpecFile) || c.specDir == "" {
		return ns.SpecFile
	}
	return filepath.Join(c.specDir, ns.SpecFile)
}

// NamespaceForFile returns the namespace whose spec file has the given base name
func (c *Catalog) NamespaceForFile(path string) (string, bool) {
	base := filepath.Base(path)
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, name := range c.order {
		if filepath.Base(c.namespaces[name].SpecFile) == base {
			return name, true
		}
	}
	return "", false
}

// Lookup finds an operation by namespace and operation id
func (c *Catalog) Lookup(namespace, operationID string) (Operation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	op, ok := c.byName[namespace+"_"+operationID]
	return op, ok
}

// LookupName finds an operation by its namespaced name
func (c *Catalog) LookupName(name string) (Operation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	op, ok := c.byName[name]
	return op, ok
}

// LookupTool finds an operation by raw tool name
func (c *Catalog) LookupTool(tool string) (Operation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	op, ok := c.byTool[tool]
	return op, ok
}

// Namespace returns a namespace definition
func (c *Catalog) Namespace(name string) (Namespace, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ns, ok := c.namespaces[name]
	return ns, ok
}

// Namespaces returns namespace definitions in registration order
func (c *Catalog) Namespaces() []Namespace {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Namespace, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.namespaces[name])
	}
	return out
}

// LoadedNamespaces returns the names of namespaces with operations, sorted
func (c *Catalog) LoadedNamespaces() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.operations))
	for name := range c.operations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NamespaceOperations returns a copy of one namespace's operations in catalog order
func (c *Catalog) NamespaceOperations(namespace string) []Operation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Operation(nil), c.operations[namespace]...)
}

// Operations returns every operation, namespaces in registration order
func (c *Catalog) Operations() []Operation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []Operation
	for _, name := range c.order {
		out = append(out, c.operations[name]...)
	}
	return out
}

// Count returns the number of loaded operations
func (c *Catalog) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byName)
}

// ResolvePath returns the upstream path for an already-substituted operation path
func (c *Catalog) ResolvePath(namespace, template, path string) string {
	ns, ok := c.Namespace(namespace)
	if !ok {
		return path
	}
	return ns.ResolvePath(template, path)
}
