package cmd

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/watchreload"
	"github.com/GoCodeAlone/watchreload/config"
	"github.com/GoCodeAlone/watchreload/devserver"
)

func awaitResult(t *testing.T, results <-chan watchreload.UpdateResult, match func(watchreload.UpdateResult) bool) watchreload.UpdateResult {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case result := <-results:
			if match(result) {
				return result
			}
		case <-deadline:
			t.Fatal("timed out waiting for update result")
			return watchreload.UpdateResult{}
		}
	}
}

func TestHeadlessClientAgainstDevServer(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lib.js"), []byte("lib v1"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.js"), []byte("main v1"), 0o644))

	serverCfg, err := config.Load("")
	require.NoError(t, err)
	serverCfg.DevServer.Root = dir
	serverCfg.DevServer.Rescan = config.RescanOff
	server, err := devserver.New(serverCfg, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	server.Rescan(ctx)
	httpServer := httptest.NewServer(server.Handler())
	defer httpServer.Close()

	clientCfg, err := config.Load("")
	require.NoError(t, err)
	clientCfg.Server = "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/ws"
	manifest, err := ParseManifest([]byte("modules:\n  - id: lib\n  - id: main\n    deps: [lib]\n"))
	require.NoError(t, err)

	client, err := NewHeadlessClient(clientCfg, manifest, nil)
	require.NoError(t, err)

	results := make(chan watchreload.UpdateResult, 16)
	require.NoError(t, client.Engine.RegisterObserver(watchreload.NewFunctionalObserver("results",
		func(_ context.Context, event cloudevents.Event) error {
			var result watchreload.UpdateResult
			if err := event.DataAs(&result); err != nil {
				return err
			}
			results <- result
			return nil
		}), watchreload.EventTypeUpdateCompleted, watchreload.EventTypeUpdateNoop))

	require.NoError(t, client.Start(ctx))
	done := make(chan error, 1)
	go func() { done <- client.Transport.Run(ctx) }()

	// the init handshake syncs every loaded module with the server
	awaitResult(t, results, func(r watchreload.UpdateResult) bool { return r.Request.Path == "main.js" })
	assert.True(t, client.Dispatcher.Config().HMR)
	before, ok := client.Loader.Exports("main")
	require.True(t, ok)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "lib.js"), []byte("lib v2"), 0o644))
	require.NoError(t, server.Refresh(ctx, "lib.js"))
	hash, _ := server.Index().Hash("lib.js")

	result := awaitResult(t, results, func(r watchreload.UpdateResult) bool {
		return r.Request.Path == "lib.js" && r.Request.Fingerprint == hash
	})
	assert.Equal(t, "lib", result.ModuleID)
	assert.Equal(t, []string{"main"}, result.Outdated)

	after, ok := client.Loader.Exports("main")
	require.True(t, ok)
	assert.NotEqual(t, before, after)
	assert.Zero(t, client.Reloader.PageReloads())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("transport did not stop")
	}
}
