package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRegistry(t *testing.T) {
	data := []byte(`
namespaces:
  - name: manage
    spec_file: custom_manage.json
    base_path: /api/v1/manage
    enabled: true
  - name: orchestrator
    spec_file: orchestrator.json
    base_path: /api/v1/orchestrator
    enabled: false
`)

	namespaces, err := ParseRegistry(data)
	require.NoError(t, err)
	require.Len(t, namespaces, 5)
	assert.Equal(t, "custom_manage.json", namespaces[0].SpecFile)
	assert.Equal(t, "analyze", namespaces[1].Name)
	assert.Equal(t, "orchestrator", namespaces[4].Name)
	assert.False(t, namespaces[4].Enabled)
}

func TestParseRegistry_Errors(t *testing.T) {
	_, err := ParseRegistry([]byte("namespaces:\n  - spec_file: x.json\n"))
	assert.Error(t, err)

	_, err = ParseRegistry([]byte("namespaces:\n  - name: x\n"))
	assert.Error(t, err)

	_, err = ParseRegistry([]byte("namespaces: [unclosed"))
	assert.Error(t, err)
}

func TestLoadRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "namespaces.yaml")
	require.NoError(t, os.WriteFile(path, []byte("namespaces: []\n"), 0o644))

	namespaces, err := LoadRegistry(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultNamespaces(), namespaces)

	_, err = LoadRegistry(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestNamespace_ResolvePath(t *testing.T) {
	ns := Namespace{BasePath: "/api/v1/oneManage/"}
	assert.Equal(t, "/api/v1/oneManage/sites", ns.ResolvePath("/sites", "/sites"))
	assert.Equal(t, "/api/v1/infra/x", ns.ResolvePath("/api/v1/infra/x", "/api/v1/infra/x"))
	assert.Equal(t, "/sites", Namespace{}.ResolvePath("/sites", "/sites"))

	t.Run("substituted value cannot escape the base path", func(t *testing.T) {
		// {name} filled with "api" yields /api/... but the template is relative
		assert.Equal(t, "/api/v1/oneManage/api/v1/infra", ns.ResolvePath("/{name}/v1/infra", "/api/v1/infra"))
	})
}
