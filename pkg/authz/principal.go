package authz

// Kind identifies a principal variant
type Kind string

const (
	KindLegacy    Kind = "legacy"
	KindSuperuser Kind = "superuser"
	KindUser      Kind = "user"
)

// Principal is the resolved identity of a caller
type Principal interface {
	Kind() Kind
	// UserID returns the stored user id, or 0 for the legacy bypass
	UserID() int64
	Username() string
	CanEdit() bool
	// AllowsOperation reports whether the namespaced operation name is granted
	AllowsOperation(name string) bool
	AllowsCluster(id int64) bool
	// FullAccess reports whether every operation and cluster is granted
	FullAccess() bool

	sealed()
}

// LegacyBypass is the shared-secret principal
type LegacyBypass struct{}

func (LegacyBypass) Kind() Kind                  { return KindLegacy }
func (LegacyBypass) UserID() int64               { return 0 }
func (LegacyBypass) Username() string            { return "legacy" }
func (LegacyBypass) CanEdit() bool               { return true }
func (LegacyBypass) AllowsOperation(string) bool { return true }
func (LegacyBypass) AllowsCluster(int64) bool    { return true }
func (LegacyBypass) FullAccess() bool            { return true }
func (LegacyBypass) sealed()                     {}

// Superuser is a stored user with full access
type Superuser struct {
	ID   int64
	Name string
}

func (s Superuser) Kind() Kind                { return KindSuperuser }
func (s Superuser) UserID() int64             { return s.ID }
func (s Superuser) Username() string          { return s.Name }
func (Superuser) CanEdit() bool               { return true }
func (Superuser) AllowsOperation(string) bool { return true }
func (Superuser) AllowsCluster(int64) bool    { return true }
func (Superuser) FullAccess() bool            { return true }
func (Superuser) sealed()                     {}

// RoleBasedUser is a stored user limited by role grants and cluster assignments
type RoleBasedUser struct {
	ID         int64
	Name       string
	Operations map[string]struct{}
	EditMode   bool
	Clusters   map[int64]struct{}
}

func (u *RoleBasedUser) Kind() Kind       { return KindUser }
func (u *RoleBasedUser) UserID() int64    { return u.ID }
func (u *RoleBasedUser) Username() string { return u.Name }
func (u *RoleBasedUser) CanEdit() bool    { return u.EditMode }
func (u *RoleBasedUser) FullAccess() bool { return false }
func (u *RoleBasedUser) sealed()          {}

func (u *RoleBasedUser) AllowsOperation(name string) bool {
	_, ok := u.Operations[name]
	return ok
}

func (u *RoleBasedUser) AllowsCluster(id int64) bool {
	_, ok := u.Clusters[id]
	return ok
}

// NewRoleBasedUser builds a role-based principal from granted names and cluster ids
func NewRoleBasedUser(id int64, name string, operations []string, editMode bool, clusters []int64) *RoleBasedUser {
	u := &RoleBasedUser{
		ID:         id,
		Name:       name,
		Operations: make(map[string]struct{}, len(operations)),
		EditMode:   editMode,
		Clusters:   make(map[int64]struct{}, len(clusters)),
	}
	for _, op := range operations {
		u.Operations[op] = struct{}{}
	}
	for _, c := range clusters {
		u.Clusters[c] = struct{}{}
	}
	return u
}
