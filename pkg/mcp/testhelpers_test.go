package mcp

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/nexus-mcp/pkg/catalog"
	"github.com/platinummonkey/nexus-mcp/pkg/dispatch"
	"github.com/platinummonkey/nexus-mcp/pkg/grouping"
)

var testOperations = []catalog.Operation{
	{Namespace: "manage", OperationID: "getFabrics", Method: "GET", Path: "/fabrics", Summary: "List fabrics"},
	{Namespace: "manage", OperationID: "getFabric", Method: "GET", Path: "/fabrics/{fabricName}", Summary: "Get a fabric"},
	{Namespace: "manage", OperationID: "createVlan", Method: "POST", Path: "/fabrics/{fabricName}/vlans", Summary: "Create a VLAN", HasRequestBody: true},
	{Namespace: "manage", OperationID: "getSwitches", Method: "GET", Path: "/inventory/switches", Summary: "List switches"},
}

type fakeOps struct {
	ops []catalog.Operation
}

func (f *fakeOps) Operations() []catalog.Operation { return f.ops }

func (f *fakeOps) Count() int { return len(f.ops) }

func (f *fakeOps) LoadedNamespaces() []string {
	if len(f.ops) == 0 {
		return []string{}
	}
	return []string{"manage"}
}

func (f *fakeOps) NamespaceOperations(namespace string) []catalog.Operation {
	var out []catalog.Operation
	for _, op := range f.ops {
		if op.Namespace == namespace {
			out = append(out, op)
		}
	}
	return out
}

func (f *fakeOps) Lookup(namespace, operationID string) (catalog.Operation, bool) {
	for _, op := range f.ops {
		if op.Namespace == namespace && op.OperationID == operationID {
			return op, true
		}
	}
	return catalog.Operation{}, false
}

func (f *fakeOps) LookupTool(tool string) (catalog.Operation, bool) {
	for _, op := range f.ops {
		if op.ToolName() == tool {
			return op, true
		}
	}
	return catalog.Operation{}, false
}

type fakeDispatcher struct {
	mu     sync.Mutex
	calls  []dispatch.Call
	result *dispatch.Result
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, call dispatch.Call) *dispatch.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	if f.result != nil {
		return f.result
	}
	return &dispatch.Result{Data: map[string]interface{}{"ok": true}, Status: 200, Outcome: dispatch.OutcomeSuccess}
}

func (f *fakeDispatcher) lastCall(t *testing.T) dispatch.Call {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.calls)
	return f.calls[len(f.calls)-1]
}

func newTestGroups(t *testing.T, ops *fakeOps) *grouping.Service {
	t.Helper()
	svc := grouping.NewService(grouping.NewMemoryRepository(), ops, nil)
	require.NoError(t, svc.EnsureAll(context.Background()))
	return svc
}

func newTestServer(t *testing.T, mode ToolMode) (*Server, *fakeDispatcher) {
	t.Helper()
	ops := &fakeOps{ops: testOperations}
	d := &fakeDispatcher{}
	var groups Groups
	if mode == ToolModeGrouped {
		groups = newTestGroups(t, ops)
	}
	return NewServer(ops, groups, d, ServerConfig{Mode: mode, Version: "1.2.3"}, nil), d
}
