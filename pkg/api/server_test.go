package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/nexus-mcp/pkg/audit"
	"github.com/platinummonkey/nexus-mcp/pkg/authz"
	"github.com/platinummonkey/nexus-mcp/pkg/catalog"
	"github.com/platinummonkey/nexus-mcp/pkg/editmode"
	"github.com/platinummonkey/nexus-mcp/pkg/grouping"
)

var testOperations = []catalog.Operation{
	{Namespace: "manage", OperationID: "getFabrics", Method: "GET", Path: "/fabrics"},
	{Namespace: "manage", OperationID: "createVlan", Method: "POST", Path: "/fabrics/{fabricName}/vlans"},
	{Namespace: "manage", OperationID: "getSwitches", Method: "GET", Path: "/inventory/switches"},
}

type fakeSource struct {
	ops []catalog.Operation
}

func (f *fakeSource) LoadedNamespaces() []string { return []string{"manage"} }

func (f *fakeSource) NamespaceOperations(ns string) []catalog.Operation {
	var out []catalog.Operation
	for _, op := range f.ops {
		if op.Namespace == ns {
			out = append(out, op)
		}
	}
	return out
}

func (f *fakeSource) Lookup(ns, id string) (catalog.Operation, bool) {
	for _, op := range f.ops {
		if op.Namespace == ns && op.OperationID == id {
			return op, true
		}
	}
	return catalog.Operation{}, false
}

type fakeCatalog struct {
	report *catalog.LoadReport
	calls  int
}

func (f *fakeCatalog) LoadAll(ctx context.Context) *catalog.LoadReport {
	f.calls++
	return f.report
}

type fakeTokens struct {
	issued map[int64]string
	err    error
}

func (f *fakeTokens) Issue(ctx context.Context, userID int64) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if userID != 7 {
		return "", authz.ErrUserNotFound
	}
	token := "ndmcp_test_" + strconv.FormatInt(userID, 10)
	f.issued[userID] = token
	return token, nil
}

type fakeAudit struct {
	entries []*audit.Entry
}

func (f *fakeAudit) Search(ctx context.Context, filter audit.SearchFilter) ([]*audit.Entry, error) {
	return f.entries, nil
}

func (f *fakeAudit) Get(ctx context.Context, id int64) (*audit.Entry, error) {
	for _, e := range f.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, nil
}

func (f *fakeAudit) GetStats(ctx context.Context, startTime, endTime *time.Time) (*audit.Stats, error) {
	return &audit.Stats{}, nil
}

func (f *fakeAudit) Export(ctx context.Context, filter audit.SearchFilter, format audit.ExportFormat) ([]byte, error) {
	return []byte("[]"), nil
}

func (f *fakeAudit) Cleanup(ctx context.Context, policy audit.RetentionPolicy) (int64, error) {
	return 0, nil
}

type testEnv struct {
	handler http.Handler
	gate    *editmode.Gate
	groups  *grouping.Service
	catalog *fakeCatalog
	tokens  *fakeTokens
}

// testAuth maps bearer tokens to principals: admin, legacy and viewer
func testAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p authz.Principal
		switch authz.ParseCredential(r.Header.Get("Authorization")) {
		case "admin":
			p = authz.Superuser{ID: 1, Name: "alice"}
		case "legacy":
			p = authz.LegacyBypass{}
		case "viewer":
			p = authz.NewRoleBasedUser(3, "carol", []string{"manage_getFabrics"}, false, nil)
		default:
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(authz.WithPrincipal(r.Context(), p)))
	})
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gate := editmode.NewGate(editmode.NewMemoryStore(nil), time.Minute, nil)
	groups := grouping.NewService(grouping.NewMemoryRepository(), &fakeSource{ops: testOperations}, nil)
	require.NoError(t, groups.EnsureAll(context.Background()))

	cat := &fakeCatalog{report: &catalog.LoadReport{
		Loaded:     map[string]int{"manage": 3},
		Failed:     map[string]string{"analyze": "invalid API document for namespace analyze: missing paths"},
		Operations: 3,
	}}
	tokens := &fakeTokens{issued: map[int64]string{}}

	s := NewServer(Dependencies{
		Audit:    &fakeAudit{entries: []*audit.Entry{{Record: audit.Record{ID: 1, OperationID: "manage_getFabrics", HTTPMethod: "GET"}}}},
		EditMode: gate,
		Groups:   groups,
		Catalog:  cat,
		Tokens:   tokens,
	}, nil)

	return &testEnv{handler: s.Handler(testAuth), gate: gate, groups: groups, catalog: cat, tokens: tokens}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	r := httptest.NewRequest(method, path, &buf)
	r.Header.Set("Content-Type", "application/json")
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, r)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dest))
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		token string
		want  int
	}{
		{token: "", want: http.StatusUnauthorized},
		{token: "viewer", want: http.StatusForbidden},
		{token: "admin", want: http.StatusOK},
		{token: "legacy", want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run("token="+tt.token, func(t *testing.T) {
			w := env.do(t, http.MethodGet, "/api/security/edit-mode", tt.token, nil)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestAuditRoutesMounted(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/audit/1", "admin", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var entry audit.Entry
	decode(t, w, &entry)
	assert.Equal(t, "manage_getFabrics", entry.OperationID)

	w = env.do(t, http.MethodGet, "/api/audit/99", "admin", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEditModeToggle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	w := env.do(t, http.MethodGet, "/api/security/edit-mode", "admin", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var cfg editmode.Config
	decode(t, w, &cfg)
	assert.False(t, cfg.Enabled)
	assert.True(t, cfg.AuditLoggingEnabled)

	w = env.do(t, http.MethodPut, "/api/security/edit-mode", "admin", map[string]bool{"edit_mode_enabled": true})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &cfg)
	assert.True(t, cfg.Enabled)
	assert.True(t, env.gate.Enabled(ctx))
	assert.NoError(t, env.gate.Check(ctx, "POST"))

	w = env.do(t, http.MethodPut, "/api/security/edit-mode", "admin", map[string]bool{"audit_logging_enabled": false})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &cfg)
	assert.True(t, cfg.Enabled)
	assert.False(t, cfg.AuditLoggingEnabled)

	w = env.do(t, http.MethodPost, "/api/security/edit-mode/refresh", "admin", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &cfg)
	assert.True(t, cfg.Enabled)
}

func TestEditModeRejectsEmptyChange(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPut, "/api/security/edit-mode", "admin", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, env.gate.Enabled(context.Background()))
}

func findGroup(t *testing.T, env *testEnv, key string) *grouping.Group {
	t.Helper()
	groups, err := env.groups.List(context.Background())
	require.NoError(t, err)
	for _, g := range groups {
		if g.Key == key {
			return g
		}
	}
	t.Fatalf("group %s not found", key)
	return nil
}

func TestResourceGroupList(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/resource-groups", "admin", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var out struct {
		Count  int               `json:"count"`
		Groups []*grouping.Group `json:"groups"`
	}
	decode(t, w, &out)
	assert.Equal(t, 2, out.Count)

	w = env.do(t, http.MethodGet, "/api/resource-groups?namespace=analyze", "admin", nil)
	decode(t, w, &out)
	assert.Equal(t, 0, out.Count)
}

func TestResourceGroupGetAndToggle(t *testing.T) {
	env := newTestEnv(t)
	fabrics := findGroup(t, env, "manage_fabrics")
	path := "/api/resource-groups/" + strconv.FormatInt(fabrics.ID, 10)

	w := env.do(t, http.MethodGet, path, "admin", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPut, path, "admin", map[string]bool{"is_enabled": false})
	require.Equal(t, http.StatusOK, w.Code)
	var g grouping.Group
	decode(t, w, &g)
	assert.False(t, g.Enabled)
	assert.False(t, findGroup(t, env, "manage_fabrics").Enabled)

	w = env.do(t, http.MethodPut, path, "admin", map[string]string{"description": "renamed"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodGet, "/api/resource-groups/999", "admin", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestResourceGroupCustomLifecycle(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/resource-groups", "admin", CreateGroupRequest{
		Namespace:    "manage",
		Resource:     "vlans",
		OperationIDs: []string{"createVlan"},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var created grouping.Group
	decode(t, w, &created)
	assert.True(t, created.IsCustom)
	assert.Equal(t, "manage_vlans", created.Key)
	assert.False(t, findGroup(t, env, "manage_fabrics").Contains("createVlan"))

	w = env.do(t, http.MethodPost, "/api/resource-groups", "admin", CreateGroupRequest{
		Namespace:    "manage",
		Resource:     "broken",
		OperationIDs: []string{"doesNotExist"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	generated := findGroup(t, env, "manage_inventory")
	w = env.do(t, http.MethodDelete, "/api/resource-groups/"+strconv.FormatInt(generated.ID, 10), "admin", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodDelete, "/api/resource-groups/"+strconv.FormatInt(created.ID, 10), "admin", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.False(t, env.groups.IsGroupTool("manage_vlans"))
}

func TestResourceGroupRegenerate(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/resource-groups/regenerate", "admin", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/resource-groups/regenerate?namespace=manage&force=maybe", "admin", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/resource-groups/regenerate?namespace=manage&force=false", "admin", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var result grouping.GenerateResult
	decode(t, w, &result)
	assert.True(t, result.Skipped)

	w = env.do(t, http.MethodPost, "/api/resource-groups/regenerate?namespace=manage", "admin", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &result)
	assert.False(t, result.Skipped)
	assert.Equal(t, 2, result.Groups)
}

func TestCatalogReload(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/catalog/reload", "legacy", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, env.catalog.calls)

	var report catalog.LoadReport
	decode(t, w, &report)
	assert.Equal(t, 3, report.Loaded["manage"])
	assert.Contains(t, report.Failed["analyze"], "invalid API document")
}

func TestIssueToken(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/users/7/token", "admin", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var out map[string]interface{}
	decode(t, w, &out)
	assert.Equal(t, env.tokens.issued[7], out["token"])
	assert.Equal(t, float64(7), out["user_id"])

	w = env.do(t, http.MethodPost, "/api/users/8/token", "admin", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	env.tokens.err = errors.New("database unavailable")
	w = env.do(t, http.MethodPost, "/api/users/7/token", "admin", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestNilDependenciesLeaveRoutesUnmounted(t *testing.T) {
	h := NewServer(Dependencies{}, nil).Handler(testAuth)

	r := httptest.NewRequest(http.MethodGet, "/api/security/edit-mode", nil)
	r.Header.Set("Authorization", "Bearer admin")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
