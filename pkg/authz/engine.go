package authz

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/platinummonkey/nexus-mcp/pkg/catalog"
	"github.com/platinummonkey/nexus-mcp/pkg/observability"
)

// DefaultClusterParams are the argument names checked for a target cluster, in order
var DefaultClusterParams = []string{"cluster_id", "clusterId", "cluster_name", "clusterName", "cluster"}

// DenialReason explains a negative decision
type DenialReason string

const (
	ReasonOperationNotPermitted DenialReason = "operation_not_permitted"
	ReasonClusterNotPermitted   DenialReason = "cluster_not_permitted"
	ReasonClusterNotFound       DenialReason = "cluster_not_found"
)

// Decision is the outcome of an authorization check
type Decision struct {
	Allowed bool
	Reason  DenialReason
	Message string
	// Cluster is the target cluster named by the arguments, if any
	Cluster *Cluster
}

// ClusterLookup resolves clusters by id or name
type ClusterLookup interface {
	ClusterByID(ctx context.Context, id int64) (*Cluster, error)
	ClusterByName(ctx context.Context, name string) (*Cluster, error)
}

// Engine performs per-call authorization
type Engine struct {
	clusters ClusterLookup
	logger   *observability.Logger

	mu            sync.RWMutex
	defaultParams []string
	overrides     map[string][]string
}

// NewEngine creates an engine using DefaultClusterParams
func NewEngine(clusters ClusterLookup, logger *observability.Logger) *Engine {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Engine{
		clusters:      clusters,
		logger:        logger,
		defaultParams: append([]string(nil), DefaultClusterParams...),
		overrides:     make(map[string][]string),
	}
}

// SetDefaultClusterParams replaces the default candidate list; an empty list is ignored
func (e *Engine) SetDefaultClusterParams(names []string) {
	if len(names) == 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.defaultParams = append([]string(nil), names...)
}

// SetClusterParams overrides the candidate list for one namespaced operation
func (e *Engine) SetClusterParams(operationName string, names []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.overrides[operationName] = append([]string(nil), names...)
}

// ClusterParams returns the candidate names for an operation
func (e *Engine) ClusterParams(operationName string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if names, ok := e.overrides[operationName]; ok {
		return names
	}
	return e.defaultParams
}

// Authorize checks operation membership and then cluster access
func (e *Engine) Authorize(ctx context.Context, p Principal, op catalog.Operation, args map[string]interface{}) (*Decision, error) {
	name := op.Name()
	if !p.AllowsOperation(name) {
		return &Decision{
			Reason:  ReasonOperationNotPermitted,
			Message: fmt.Sprintf("Permission denied: operation %s is not permitted", name),
		}, nil
	}

	param, value, ok := ClusterArgument(args, e.ClusterParams(name))
	if !ok {
		return &Decision{Allowed: true}, nil
	}

	cluster, err := e.lookupCluster(ctx, value)
	if errors.Is(err, ErrClusterNotFound) {
		return &Decision{
			Reason:  ReasonClusterNotFound,
			Message: fmt.Sprintf("Cluster not found: %s=%s", param, value),
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve cluster: %w", err)
	}

	if !p.AllowsCluster(cluster.ID) {
		e.logger.WithFields(map[string]interface{}{
			"user_id":    p.UserID(),
			"cluster_id": cluster.ID,
			"operation":  name,
		}).Warn("cluster access denied")
		return &Decision{
			Reason:  ReasonClusterNotPermitted,
			Message: fmt.Sprintf("Permission denied: no access to cluster %s", cluster.Name),
			Cluster: cluster,
		}, nil
	}

	return &Decision{Allowed: true, Cluster: cluster}, nil
}

func (e *Engine) lookupCluster(ctx context.Context, value string) (*Cluster, error) {
	if e.clusters == nil {
		return nil, ErrClusterNotFound
	}
	if id, err := strconv.ParseInt(value, 10, 64); err == nil {
		return e.clusters.ClusterByID(ctx, id)
	}
	return e.clusters.ClusterByName(ctx, value)
}

// ClusterArgument returns the first candidate present in args as a string
func ClusterArgument(args map[string]interface{}, candidates []string) (string, string, bool) {
	for _, name := range candidates {
		raw, ok := args[name]
		if !ok || raw == nil {
			continue
		}
		value := formatClusterValue(raw)
		if value == "" {
			continue
		}
		return name, value, true
	}
	return "", "", false
}

func formatClusterValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == math.Trunc(t) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprint(t)
	}
}
