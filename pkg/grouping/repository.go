package grouping

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrNotFound is returned when a group does not exist
var ErrNotFound = errors.New("resource group not found")

// ErrKeyExists is returned when creating a group whose key is taken
var ErrKeyExists = errors.New("resource group key already exists")

// Repository persists resource groups
type Repository interface {
	List(ctx context.Context) ([]*Group, error)
	ListByNamespace(ctx context.Context, namespace string) ([]*Group, error)
	Get(ctx context.Context, id int64) (*Group, error)
	GetByKey(ctx context.Context, key string) (*Group, error)
	Create(ctx context.Context, g *Group) error
	Update(ctx context.Context, g *Group) error
	Delete(ctx context.Context, id int64) error

	// ReplaceGenerated removes the namespace's non-custom groups and inserts
	// groups in their place as one unit of work.
	ReplaceGenerated(ctx context.Context, namespace string, groups []*Group) error
}

// MemoryRepository is an in-process Repository
type MemoryRepository struct {
	mu     sync.RWMutex
	nextID int64
	groups map[int64]*Group
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{groups: make(map[int64]*Group)}
}

func cloneGroup(g *Group) *Group {
	c := *g
	c.OperationIDs = append([]string(nil), g.OperationIDs...)
	return &c
}

func sortGroups(groups []*Group) {
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].SortOrder != groups[j].SortOrder {
			return groups[i].SortOrder < groups[j].SortOrder
		}
		return groups[i].Key < groups[j].Key
	})
}

// List returns all groups ordered by sort order then key
func (r *MemoryRepository) List(ctx context.Context) ([]*Group, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Group, 0, len(r.groups))
	for _, g := range r.groups {
		out = append(out, cloneGroup(g))
	}
	sortGroups(out)
	return out, nil
}

// ListByNamespace returns the namespace's groups
func (r *MemoryRepository) ListByNamespace(ctx context.Context, namespace string) ([]*Group, error) {
	all, _ := r.List(ctx)
	out := all[:0]
	for _, g := range all {
		if g.Namespace == namespace {
			out = append(out, g)
		}
	}
	return out, nil
}

// Get returns a group by id
func (r *MemoryRepository) Get(ctx context.Context, id int64) (*Group, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.groups[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneGroup(g), nil
}

// GetByKey returns a group by key
func (r *MemoryRepository) GetByKey(ctx context.Context, key string) (*Group, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, g := range r.groups {
		if g.Key == key {
			return cloneGroup(g), nil
		}
	}
	return nil, ErrNotFound
}

// Create inserts a group and assigns its ID
func (r *MemoryRepository) Create(ctx context.Context, g *Group) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insertLocked(g)
}

func (r *MemoryRepository) insertLocked(g *Group) error {
	for _, existing := range r.groups {
		if existing.Key == g.Key {
			return ErrKeyExists
		}
	}
	r.nextID++
	now := time.Now().UTC()
	g.ID = r.nextID
	g.CreatedAt = now
	g.UpdatedAt = now
	r.groups[g.ID] = cloneGroup(g)
	return nil
}

// Update replaces a stored group
func (r *MemoryRepository) Update(ctx context.Context, g *Group) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.groups[g.ID]; !ok {
		return ErrNotFound
	}
	g.UpdatedAt = time.Now().UTC()
	r.groups[g.ID] = cloneGroup(g)
	return nil
}

// Delete removes a group
func (r *MemoryRepository) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.groups[id]; !ok {
		return ErrNotFound
	}
	delete(r.groups, id)
	return nil
}

// ReplaceGenerated swaps the namespace's generated groups
func (r *MemoryRepository) ReplaceGenerated(ctx context.Context, namespace string, groups []*Group) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, g := range r.groups {
		if g.Namespace == namespace && !g.IsCustom {
			delete(r.groups, id)
		}
	}
	for _, g := range groups {
		if err := r.insertLocked(g); err != nil {
			return err
		}
	}
	return nil
}
