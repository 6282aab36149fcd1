package authz

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/nexus-mcp/pkg/catalog"
)

var getFabrics = catalog.Operation{Namespace: "manage", OperationID: "getFabrics", Method: "GET", Path: "/fabrics"}

func newTestEngine(t *testing.T) *Engine {
	db := setupTestDB(t)
	seedTestData(t, db)
	return NewEngine(NewStore(db), nil)
}

func TestEngineOperationMembership(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	carol := NewRoleBasedUser(3, "carol", []string{"manage_getFabrics"}, false, nil)
	d, err := e.Authorize(ctx, carol, getFabrics, nil)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	other := catalog.Operation{Namespace: "manage", OperationID: "deleteFabric", Method: "DELETE"}
	d, err = e.Authorize(ctx, carol, other, nil)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonOperationNotPermitted, d.Reason)
	assert.Contains(t, d.Message, "manage_deleteFabric")

	unnamespaced := NewRoleBasedUser(3, "carol", []string{"getFabrics"}, false, nil)
	d, err = e.Authorize(ctx, unnamespaced, getFabrics, nil)
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	for _, p := range []Principal{LegacyBypass{}, Superuser{ID: 1}} {
		d, err = e.Authorize(ctx, p, other, nil)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}
}

func TestEngineClusterCheck(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	bob := NewRoleBasedUser(2, "bob", []string{"manage_getFabrics"}, true, []int64{1})

	tests := []struct {
		name      string
		principal Principal
		args      map[string]interface{}
		allowed   bool
		reason    DenialReason
		clusterID int64
	}{
		{"assigned by id", bob, map[string]interface{}{"cluster_id": float64(1)}, true, "", 1},
		{"assigned by name", bob, map[string]interface{}{"clusterName": "prod"}, true, "", 1},
		{"numeric string", bob, map[string]interface{}{"cluster": "1"}, true, "", 1},
		{"unassigned", bob, map[string]interface{}{"cluster_id": 2}, false, ReasonClusterNotPermitted, 2},
		{"unknown", bob, map[string]interface{}{"cluster_name": "nope"}, false, ReasonClusterNotFound, 0},
		{"inactive", bob, map[string]interface{}{"cluster_name": "old"}, false, ReasonClusterNotFound, 0},
		{"absent", bob, map[string]interface{}{"fabricName": "f1"}, true, "", 0},
		{"superuser any cluster", Superuser{ID: 1}, map[string]interface{}{"cluster_id": 2}, true, "", 2},
		{"superuser unknown cluster", Superuser{ID: 1}, map[string]interface{}{"cluster_id": 77}, false, ReasonClusterNotFound, 0},
		{"no assignments fails closed", NewRoleBasedUser(3, "carol", []string{"manage_getFabrics"}, false, nil), map[string]interface{}{"cluster_id": 1}, false, ReasonClusterNotPermitted, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := e.Authorize(ctx, tt.principal, getFabrics, tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.allowed, d.Allowed)
			assert.Equal(t, tt.reason, d.Reason)
			if tt.clusterID == 0 {
				assert.Nil(t, d.Cluster)
			} else {
				require.NotNil(t, d.Cluster)
				assert.Equal(t, tt.clusterID, d.Cluster.ID)
			}
		})
	}
}

func TestEngineCandidateOrder(t *testing.T) {
	e := newTestEngine(t)
	bob := NewRoleBasedUser(2, "bob", []string{"manage_getFabrics"}, true, []int64{1})

	d, err := e.Authorize(context.Background(), bob, getFabrics, map[string]interface{}{
		"cluster":    "lab",
		"cluster_id": 1,
	})
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, "prod", d.Cluster.Name)
}

func TestEngineClusterParamOverride(t *testing.T) {
	e := newTestEngine(t)
	bob := NewRoleBasedUser(2, "bob", []string{"manage_getFabrics"}, true, []int64{1})
	e.SetClusterParams("manage_getFabrics", []string{"site"})

	d, err := e.Authorize(context.Background(), bob, getFabrics, map[string]interface{}{"cluster_id": 2})
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Nil(t, d.Cluster)

	d, err = e.Authorize(context.Background(), bob, getFabrics, map[string]interface{}{"site": "lab"})
	require.NoError(t, err)
	assert.Equal(t, ReasonClusterNotPermitted, d.Reason)

	e.SetDefaultClusterParams(nil)
	assert.Equal(t, DefaultClusterParams, e.ClusterParams("manage_other"))
}

type failingLookup struct{}

func (failingLookup) ClusterByID(context.Context, int64) (*Cluster, error) {
	return nil, errors.New("db down")
}
func (failingLookup) ClusterByName(context.Context, string) (*Cluster, error) {
	return nil, errors.New("db down")
}

func TestEngineLookupError(t *testing.T) {
	e := NewEngine(failingLookup{}, nil)
	_, err := e.Authorize(context.Background(), LegacyBypass{}, getFabrics, map[string]interface{}{"cluster_id": 1})
	assert.Error(t, err)
}
