package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/watchreload"
)

const testManifest = `
modules:
  - id: lib
  - id: main
    deps: [lib]
    acceptDeps: [lib]
  - id: widget
    accept: true
styles:
  - /css/site.css
`

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest([]byte(testManifest))
	require.NoError(t, err)
	assert.Equal(t, []string{"lib", "main", "widget"}, m.Entry)
	require.Len(t, m.Modules, 3)
	assert.Equal(t, []string{"lib"}, m.Modules[1].Deps)
	assert.True(t, m.Modules[2].Accept)
	assert.Equal(t, []string{"/css/site.css"}, m.Styles)

	m, err = ParseManifest([]byte("entry: [main]\nmodules:\n  - id: main\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"main"}, m.Entry)
}

func TestParseManifestErrors(t *testing.T) {
	_, err := ParseManifest(nil)
	assert.ErrorIs(t, err, ErrManifestEmpty)

	_, err = ParseManifest([]byte("modules:\n  - id: a\n    unknown: true\n"))
	assert.Error(t, err)
}

func TestLoadManifestJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"modules":[{"id":"a","deps":["b"]},{"id":"b"}]}`), 0o644))
	m, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, m.Entry)
}

func TestManifestFactory(t *testing.T) {
	m, err := ParseManifest([]byte(testManifest))
	require.NoError(t, err)
	sources := m.Sources(watchreload.NopLogger{})
	require.Len(t, sources, 3)

	registry, err := watchreload.NewRegistry(watchreload.RegistryConfig{
		Resolver: watchreload.PathResolverFunc(func(id string) string { return "/" + id }),
	})
	require.NoError(t, err)

	hot, err := registry.Register(watchreload.ModuleSpec{ID: "main", DependencyIDs: []string{"lib"}})
	require.NoError(t, err)
	exports, err := sources[1].Factory(hot, []any{"lib#1"})
	require.NoError(t, err)
	assert.Equal(t, "main#1", exports)
	assert.True(t, hot.Accepts("lib"))
	assert.False(t, hot.SelfAccepted())

	hot, err = registry.Register(watchreload.ModuleSpec{ID: "widget"})
	require.NoError(t, err)
	_, err = sources[2].Factory(hot, nil)
	require.NoError(t, err)
	assert.True(t, hot.SelfAccepted())
}
