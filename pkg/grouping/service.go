package grouping

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/platinummonkey/nexus-mcp/pkg/apierr"
	"github.com/platinummonkey/nexus-mcp/pkg/catalog"
	"github.com/platinummonkey/nexus-mcp/pkg/observability"
)

// ErrNotCustom is returned when an admin change only custom groups allow is
// attempted on a generated group
var ErrNotCustom = errors.New("resource group is not custom")

// ErrInvalidGroup wraps rejected custom group definitions
var ErrInvalidGroup = errors.New("invalid resource group")

// OperationSource provides the operations groups are built from
type OperationSource interface {
	LoadedNamespaces() []string
	NamespaceOperations(namespace string) []catalog.Operation
	Lookup(namespace, operationID string) (catalog.Operation, bool)
}

// GenerateResult reports what one Generate call did
type GenerateResult struct {
	Namespace string `json:"namespace"`
	Skipped   bool   `json:"skipped"`
	Groups    int    `json:"groups"`
	Excluded  int    `json:"excluded"`
}

// Service generates, stores and serves resource groups. It keeps a snapshot
// of every group so tool listing never touches the repository.
type Service struct {
	repo   Repository
	source OperationSource
	logger *observability.Logger

	mu     sync.RWMutex
	groups []*Group
	byTool map[string]*Group
}

// NewService creates a grouping service
func NewService(repo Repository, source OperationSource, logger *observability.Logger) *Service {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Service{
		repo:   repo,
		source: source,
		logger: logger,
		byTool: make(map[string]*Group),
	}
}

// ToolName returns the consolidated tool name of a group
func ToolName(g *Group) string {
	if len(g.Key) > catalog.MaxToolNameLength {
		return g.Key[:catalog.MaxToolNameLength]
	}
	return g.Key
}

// Refresh reloads the group snapshot from the repository
func (s *Service) Refresh(ctx context.Context) error {
	groups, err := s.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list resource groups: %w", err)
	}

	byTool := make(map[string]*Group, len(groups))
	for _, g := range groups {
		byTool[ToolName(g)] = g
	}

	s.mu.Lock()
	s.groups = groups
	s.byTool = byTool
	s.mu.Unlock()
	return nil
}

// Generate partitions ops into groups for namespace. Existing groups make
// this a no-op unless force is set; a forced run replaces generated groups
// and leaves custom groups and the operations they claim alone.
func (s *Service) Generate(ctx context.Context, namespace string, ops []catalog.Operation, force bool) (*GenerateResult, error) {
	result := &GenerateResult{Namespace: namespace}

	existing, err := s.repo.ListByNamespace(ctx, namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups for %s: %w", namespace, err)
	}
	if len(existing) > 0 && !force {
		result.Skipped = true
		return result, nil
	}

	claimed := make(map[string]bool)
	enabled := make(map[string]bool)
	for _, g := range existing {
		if g.IsCustom {
			for _, id := range g.OperationIDs {
				claimed[id] = true
			}
			continue
		}
		enabled[g.Key] = g.Enabled
	}

	candidates := make([]catalog.Operation, 0, len(ops))
	for _, op := range ops {
		if op.Namespace != namespace {
			continue
		}
		if claimed[op.OperationID] {
			result.Excluded++
			continue
		}
		candidates = append(candidates, op)
	}

	groups := Partition(candidates)
	for i, g := range groups {
		g.SortOrder = i
		if was, ok := enabled[g.Key]; ok {
			g.Enabled = was
		}
	}

	if err := s.repo.ReplaceGenerated(ctx, namespace, groups); err != nil {
		return nil, fmt.Errorf("failed to store groups for %s: %w", namespace, err)
	}
	result.Groups = len(groups)

	s.logger.WithFields(map[string]interface{}{
		"namespace": namespace,
		"groups":    result.Groups,
		"excluded":  result.Excluded,
		"forced":    force,
	}).Info("resource groups generated")

	return result, s.Refresh(ctx)
}

// EnsureAll generates groups for every loaded namespace that has none
func (s *Service) EnsureAll(ctx context.Context) error {
	for _, ns := range s.source.LoadedNamespaces() {
		if _, err := s.Generate(ctx, ns, s.source.NamespaceOperations(ns), false); err != nil {
			return err
		}
	}
	return s.Refresh(ctx)
}

// Regenerate force-regenerates one namespace from the current catalog
func (s *Service) Regenerate(ctx context.Context, namespace string, force bool) (*GenerateResult, error) {
	return s.Generate(ctx, namespace, s.source.NamespaceOperations(namespace), force)
}

func (s *Service) members(g *Group) []catalog.Operation {
	ops := make([]catalog.Operation, 0, len(g.OperationIDs))
	for _, id := range g.OperationIDs {
		if op, ok := s.source.Lookup(g.Namespace, id); ok {
			ops = append(ops, op)
		}
	}
	return ops
}

// Tools returns the consolidated tools visible through filter
func (s *Service) Tools(filter Filter) []catalog.Tool {
	s.mu.RLock()
	groups := s.groups
	s.mu.RUnlock()

	tools := make([]catalog.Tool, 0, len(groups))
	for _, g := range groups {
		if tool, ok := ToolFor(g, s.members(g), filter); ok {
			tools = append(tools, tool)
		}
	}
	return tools
}

// IsGroupTool reports whether name is a consolidated tool name
func (s *Service) IsGroupTool(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byTool[name]
	return ok
}

// Resolve maps a consolidated tool name and operation id to a member operation
func (s *Service) Resolve(toolName, operationID string) (catalog.Operation, *Group, error) {
	s.mu.RLock()
	g, ok := s.byTool[toolName]
	s.mu.RUnlock()
	if !ok || !g.Enabled {
		return catalog.Operation{}, nil, apierr.Dispatch(apierr.CodeUnknownTool,
			fmt.Sprintf("Unknown tool: %s", toolName))
	}
	if operationID == "" {
		return catalog.Operation{}, g, apierr.Dispatch(apierr.CodeInvalidArguments,
			"Missing required argument: operation").WithDetail("tool", toolName)
	}
	if !g.Contains(operationID) {
		return catalog.Operation{}, g, apierr.Dispatch(apierr.CodeInvalidArguments,
			fmt.Sprintf("Operation %s is not part of %s", operationID, toolName)).
			WithDetail("available_operations", g.OperationIDs)
	}
	op, ok := s.source.Lookup(g.Namespace, operationID)
	if !ok {
		return catalog.Operation{}, g, apierr.Dispatch(apierr.CodeUnknownTool,
			fmt.Sprintf("Operation %s is no longer loaded", operationID))
	}
	return op, g, nil
}

// List returns all stored groups
func (s *Service) List(ctx context.Context) ([]*Group, error) {
	return s.repo.List(ctx)
}

// Get returns one group
func (s *Service) Get(ctx context.Context, id int64) (*Group, error) {
	return s.repo.Get(ctx, id)
}

// GroupUpdate carries admin changes; nil fields are left unchanged
type GroupUpdate struct {
	DisplayName  *string  `json:"display_name,omitempty"`
	Description  *string  `json:"description,omitempty"`
	Enabled      *bool    `json:"is_enabled,omitempty"`
	SortOrder    *int     `json:"sort_order,omitempty"`
	OperationIDs []string `json:"operations,omitempty"`
}

// Update applies an admin change. Enabled and sort order may change on any
// group; members, name and description only on custom groups.
func (s *Service) Update(ctx context.Context, id int64, u GroupUpdate) (*Group, error) {
	g, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !g.IsCustom && (u.DisplayName != nil || u.Description != nil || u.OperationIDs != nil) {
		return nil, ErrNotCustom
	}
	if u.Enabled != nil {
		g.Enabled = *u.Enabled
	}
	if u.SortOrder != nil {
		g.SortOrder = *u.SortOrder
	}
	if u.DisplayName != nil {
		g.DisplayName = *u.DisplayName
	}
	if u.Description != nil {
		g.Description = *u.Description
	}
	if u.OperationIDs != nil {
		if err := s.validateMembers(g.Namespace, u.OperationIDs); err != nil {
			return nil, err
		}
		if err := s.claim(ctx, g.Namespace, g.ID, u.OperationIDs); err != nil {
			return nil, err
		}
		g.OperationIDs = u.OperationIDs
	}

	if err := s.repo.Update(ctx, g); err != nil {
		return nil, err
	}
	return g, s.Refresh(ctx)
}

// CreateCustom stores a custom group, removing its operations from the
// namespace's generated groups
func (s *Service) CreateCustom(ctx context.Context, g *Group) error {
	if g.Namespace == "" || g.Resource == "" {
		return fmt.Errorf("%w: namespace and resource are required", ErrInvalidGroup)
	}
	if err := s.validateMembers(g.Namespace, g.OperationIDs); err != nil {
		return err
	}
	g.IsCustom = true
	if g.Key == "" {
		g.Key = GroupKey(g.Namespace, g.Resource)
	}
	if g.Description == "" {
		g.Description = Describe(g.Resource, g.Namespace, s.members(g))
	}
	if g.DisplayName == "" {
		g.DisplayName = displayName(g.Resource, g.Namespace)
	}
	if err := s.claim(ctx, g.Namespace, 0, g.OperationIDs); err != nil {
		return err
	}
	if err := s.repo.Create(ctx, g); err != nil {
		return err
	}
	return s.Refresh(ctx)
}

// DeleteCustom removes a custom group
func (s *Service) DeleteCustom(ctx context.Context, id int64) error {
	g, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !g.IsCustom {
		return ErrNotCustom
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	return s.Refresh(ctx)
}

func (s *Service) validateMembers(namespace string, ids []string) error {
	if len(ids) == 0 {
		return fmt.Errorf("%w: at least one operation is required", ErrInvalidGroup)
	}
	for _, id := range ids {
		if _, ok := s.source.Lookup(namespace, id); !ok {
			return fmt.Errorf("%w: unknown operation %s in namespace %s", ErrInvalidGroup, id, namespace)
		}
	}
	return nil
}

// claim removes ids from every other group in namespace
func (s *Service) claim(ctx context.Context, namespace string, ownerID int64, ids []string) error {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	groups, err := s.repo.ListByNamespace(ctx, namespace)
	if err != nil {
		return err
	}
	for _, g := range groups {
		if g.ID == ownerID {
			continue
		}
		kept := make([]string, 0, len(g.OperationIDs))
		for _, id := range g.OperationIDs {
			if !want[id] {
				kept = append(kept, id)
			}
		}
		if len(kept) == len(g.OperationIDs) {
			continue
		}
		if g.IsCustom {
			return fmt.Errorf("%w: operation already claimed by custom group %s", ErrInvalidGroup, g.Key)
		}
		if len(kept) == 0 {
			if err := s.repo.Delete(ctx, g.ID); err != nil {
				return err
			}
			continue
		}
		g.OperationIDs = kept
		if err := s.repo.Update(ctx, g); err != nil {
			return err
		}
	}
	return nil
}
