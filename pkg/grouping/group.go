package grouping

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/platinummonkey/nexus-mcp/pkg/catalog"
)

// MiscResource is the resource key for operations whose path has no first segment
const MiscResource = "misc"

// Group is a named set of operations exposed as one consolidated tool
type Group struct {
	ID           int64     `json:"id"`
	Key          string    `json:"group_key"`
	Namespace    string    `json:"namespace"`
	Resource     string    `json:"resource"`
	DisplayName  string    `json:"display_name"`
	Description  string    `json:"description"`
	OperationIDs []string  `json:"operations"`
	Enabled      bool      `json:"is_enabled"`
	IsCustom     bool      `json:"is_custom"`
	SortOrder    int       `json:"sort_order"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Contains reports whether operationID is a member
func (g *Group) Contains(operationID string) bool {
	for _, id := range g.OperationIDs {
		if id == operationID {
			return true
		}
	}
	return false
}

// ResourceKey returns the first path segment, case preserved
func ResourceKey(path string) string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return MiscResource
	}
	first := strings.SplitN(trimmed, "/", 2)[0]
	if first == "" {
		return MiscResource
	}
	return first
}

// GroupKey returns the group key for a namespace and resource
func GroupKey(namespace, resource string) string {
	return namespace + "_" + resource
}

// Partition groups operations by namespace and resource. Groups are ordered
// by key and members keep catalog order, so identical input yields
// identical output.
func Partition(ops []catalog.Operation) []*Group {
	byKey := make(map[string]*Group)
	members := make(map[string][]catalog.Operation)

	for _, op := range ops {
		resource := ResourceKey(op.Path)
		key := GroupKey(op.Namespace, resource)
		g, ok := byKey[key]
		if !ok {
			g = &Group{
				Key:       key,
				Namespace: op.Namespace,
				Resource:  resource,
				Enabled:   true,
			}
			byKey[key] = g
		}
		if g.Contains(op.OperationID) {
			continue
		}
		g.OperationIDs = append(g.OperationIDs, op.OperationID)
		members[key] = append(members[key], op)
	}

	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	groups := make([]*Group, 0, len(keys))
	for _, k := range keys {
		g := byKey[k]
		g.DisplayName = displayName(g.Resource, g.Namespace)
		g.Description = Describe(g.Resource, g.Namespace, members[k])
		groups = append(groups, g)
	}
	return groups
}

// Describe builds the consolidated tool description for a resource
func Describe(resource, namespace string, ops []catalog.Operation) string {
	counts := make(map[string]int)
	for _, op := range ops {
		counts[strings.ToUpper(op.Method)]++
	}
	methods := make([]string, 0, len(counts))
	for m := range counts {
		methods = append(methods, m)
	}
	sort.Strings(methods)

	parts := make([]string, 0, len(methods))
	for _, m := range methods {
		parts = append(parts, fmt.Sprintf("%d %s", counts[m], m))
	}

	var examples []string
	for _, op := range ops {
		if len(examples) == 3 {
			break
		}
		if op.Summary != "" {
			examples = append(examples, op.Summary)
		}
	}

	desc := fmt.Sprintf("Operations for %s resource (%s API). Contains %d operations (%s).",
		resource, namespace, len(ops), strings.Join(parts, ", "))
	if len(examples) > 0 {
		desc += " Examples: " + strings.Join(examples, "; ")
	}
	return desc
}

func displayName(resource, namespace string) string {
	words := strings.Fields(strings.ReplaceAll(resource, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return fmt.Sprintf("%s (%s)", strings.Join(words, " "), namespace)
}
