package watchreload

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEngine(t *testing.T) {
	t.Run("should_reject_nil_loader", func(t *testing.T) {
		engine, err := NewEngine(nil)
		assert.Nil(t, engine)
		assert.ErrorIs(t, err, ErrLoaderNil)
	})

	t.Run("should_start_idle", func(t *testing.T) {
		engine := newTestEngine(t, newTestLoader(), nil)
		assert.Equal(t, StatusIdle, engine.Status())
		assert.Equal(t, "idle", engine.Status().String())
		assert.Equal(t, 0, engine.Pending())
	})

	t.Run("should_register_observers_from_options", func(t *testing.T) {
		recorder := newEventRecorder("recorder")
		loader := newTestLoader()
		loader.define("b", nil, nil)
		engine := newTestEngine(t, loader, []string{"b"}, WithObserver(recorder, EventTypeModuleRegistered))

		require.Len(t, engine.GetObservers(), 1)
		assert.Equal(t, []string{EventTypeModuleRegistered}, recorder.Types())
	})

	t.Run("should_reject_nil_observer_option", func(t *testing.T) {
		_, err := NewEngine(newTestLoader(), WithObserver(nil))
		assert.ErrorIs(t, err, ErrObserverNil)
	})
}

func TestEngineUpdateModule(t *testing.T) {
	ctx := context.Background()

	t.Run("should_reload_changed_module_and_redefine_dependents", func(t *testing.T) {
		loader := newTestLoader()
		loader.define("b", nil, nil)
		loader.define("a", []string{"b"}, nil)
		recorder := newEventRecorder("recorder")
		engine := newTestEngine(t, loader, []string{"b", "a"}, WithObserver(recorder))
		a := loader.definition("a")

		err := engine.UpdateModule(ctx, UpdateRequest{Path: "static/b.js", Fingerprint: "h2"})
		require.NoError(t, err)

		assert.Equal(t, []string{"b"}, loader.Loads())
		assert.Equal(t, 2, a.Calls())
		assert.Equal(t, StatusIdle, engine.Status())

		results := recorder.Results(t, EventTypeUpdateCompleted)
		require.Len(t, results, 1)
		assert.Equal(t, "b", results[0].ModuleID)
		assert.Equal(t, []string{"a"}, results[0].Outdated)
		assert.NotEmpty(t, results[0].UpdateID)

		fingerprint, ok := engine.Registry().Fingerprint("static/b.js")
		assert.True(t, ok)
		assert.Equal(t, "h2", fingerprint)
	})

	t.Run("should_dispatch_dependency_accept_instead_of_redefining", func(t *testing.T) {
		var mu sync.Mutex
		var calls [][]string
		loader := newTestLoader()
		loader.define("b", nil, nil)
		loader.define("a", []string{"b"}, func(hot *Hot) error {
			hot.AcceptDeps(func(updated []string) {
				mu.Lock()
				defer mu.Unlock()
				calls = append(calls, updated)
			}, "b")
			return nil
		})
		engine := newTestEngine(t, loader, []string{"b", "a"})
		a := loader.definition("a")

		require.NoError(t, engine.UpdateModule(ctx, UpdateRequest{Path: "static/b.js", Fingerprint: "h2"}))

		assert.Equal(t, 1, a.Calls())
		assert.Equal(t, []string{"b"}, loader.Loads())
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, [][]string{{"b"}}, calls)
	})

	t.Run("should_abort_on_self_decline_without_modifying_registry", func(t *testing.T) {
		loader := newTestLoader()
		loader.define("b", nil, func(hot *Hot) error {
			hot.Decline()
			return nil
		})
		loader.define("a", []string{"b"}, nil)
		recorder := newEventRecorder("recorder")
		engine := newTestEngine(t, loader, []string{"b", "a"}, WithObserver(recorder))
		before, ok := engine.Registry().Lookup("b")
		require.True(t, ok)

		err := engine.UpdateModule(ctx, UpdateRequest{Path: "static/b.js", Fingerprint: "h2"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrSelfDeclined)
		assert.True(t, IsAbort(err))

		var declined SelfDeclineAbortError
		require.ErrorAs(t, err, &declined)
		assert.Equal(t, "b", declined.ID)

		after, ok := engine.Registry().Lookup("b")
		require.True(t, ok)
		assert.Same(t, before, after)
		assert.True(t, after.Hot().Active())
		assert.Equal(t, 2, engine.Registry().Len())
		assert.Equal(t, 1, loader.definition("a").Calls())
		assert.Empty(t, loader.Loads())
		assert.Equal(t, StatusIdle, engine.Status())
		assert.Len(t, recorder.Results(t, EventTypeUpdateAborted), 1)
	})

	t.Run("should_abort_self_decline_even_when_self_accepting", func(t *testing.T) {
		loader := newTestLoader()
		loader.define("b", nil, func(hot *Hot) error {
			hot.Accept()
			hot.Decline()
			return nil
		})
		engine := newTestEngine(t, loader, []string{"b"})

		err := engine.UpdateModule(ctx, UpdateRequest{Path: "static/b.js"})
		assert.ErrorIs(t, err, ErrSelfDeclined)
		assert.Empty(t, loader.Loads())
	})

	t.Run("should_abort_on_dependency_decline", func(t *testing.T) {
		loader := newTestLoader()
		loader.define("b", nil, nil)
		loader.define("a", []string{"b"}, func(hot *Hot) error {
			hot.DeclineDeps("b")
			return nil
		})
		engine := newTestEngine(t, loader, []string{"b", "a"})

		err := engine.UpdateModule(ctx, UpdateRequest{Path: "static/b.js"})
		require.Error(t, err)
		var declined DependencyDeclineAbortError
		require.ErrorAs(t, err, &declined)
		assert.Equal(t, "a", declined.Dependent)
		assert.Equal(t, "b", declined.Dependency)
		assert.Equal(t, 2, engine.Registry().Len())
		assert.Empty(t, loader.Loads())
	})

	t.Run("should_notify_self_accepting_module_once", func(t *testing.T) {
		var mu sync.Mutex
		var notified []error
		loader := newTestLoader()
		loader.define("b", nil, func(hot *Hot) error {
			hot.AcceptSelf(func(err error) {
				mu.Lock()
				defer mu.Unlock()
				notified = append(notified, err)
			})
			return nil
		})
		loader.define("a", []string{"b"}, nil)
		engine := newTestEngine(t, loader, []string{"b", "a"})

		require.NoError(t, engine.UpdateModule(ctx, UpdateRequest{Path: "static/b.js", Fingerprint: "h2"}))

		assert.Equal(t, 1, loader.definition("a").Calls())
		assert.Equal(t, []string{"b"}, loader.Loads())
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, []error{nil}, notified)
	})

	t.Run("should_ignore_unchanged_fingerprint", func(t *testing.T) {
		loader := newTestLoader()
		loader.define("b", nil, nil)
		recorder := newEventRecorder("recorder")
		engine := newTestEngine(t, loader, []string{"b"}, WithObserver(recorder))

		require.NoError(t, engine.UpdateModule(ctx, UpdateRequest{Path: "static/b.js", Fingerprint: "h1"}))
		require.NoError(t, engine.UpdateModule(ctx, UpdateRequest{Path: "static/b.js", Fingerprint: "h1"}))

		assert.Equal(t, []string{"b"}, loader.Loads())
		assert.Len(t, recorder.Results(t, EventTypeUpdateNoop), 1)
	})

	t.Run("should_reload_when_fingerprint_is_missing", func(t *testing.T) {
		loader := newTestLoader()
		loader.define("b", nil, nil)
		engine := newTestEngine(t, loader, []string{"b"})

		require.NoError(t, engine.UpdateModule(ctx, UpdateRequest{Path: "static/b.js"}))
		require.NoError(t, engine.UpdateModule(ctx, UpdateRequest{Path: "static/b.js"}))

		assert.Equal(t, []string{"b", "b"}, loader.Loads())
	})

	t.Run("should_treat_unknown_path_as_empty_update", func(t *testing.T) {
		loader := newTestLoader()
		recorder := newEventRecorder("recorder")
		engine := newTestEngine(t, loader, nil, WithObserver(recorder))

		require.NoError(t, engine.UpdateModule(ctx, UpdateRequest{Path: "static/unknown.js", Fingerprint: "x"}))

		assert.Empty(t, loader.Loads())
		assert.Equal(t, StatusIdle, engine.Status())
		results := recorder.Results(t, EventTypeUpdateCompleted)
		require.Len(t, results, 1)
		assert.Empty(t, results[0].ModuleID)
		assert.Empty(t, results[0].Outdated)
	})

	t.Run("should_contain_load_failure_and_still_redefine_dependents", func(t *testing.T) {
		loader := newTestLoader()
		loader.define("b", nil, nil)
		loader.define("a", []string{"b"}, nil)
		recorder := newEventRecorder("recorder")
		engine := newTestEngine(t, loader, []string{"b", "a"}, WithObserver(recorder))
		loader.fail("b", errors.New("network down"))

		err := engine.UpdateModule(ctx, UpdateRequest{Path: "static/b.js", Fingerprint: "h2"})
		require.NoError(t, err)

		assert.Equal(t, 2, loader.definition("a").Calls())
		_, ok := engine.Registry().Lookup("b")
		assert.False(t, ok)
		_, ok = engine.Registry().Fingerprint("static/b.js")
		assert.False(t, ok)
		assert.Contains(t, recorder.Types(), EventTypeModuleLoadFailed)

		results := recorder.Results(t, EventTypeUpdateCompleted)
		require.Len(t, results, 1)
		assert.Contains(t, results[0].LoadError, "network down")
	})

	t.Run("should_hand_load_failure_to_self_accept_notifier", func(t *testing.T) {
		var received error
		loader := newTestLoader()
		loader.define("b", nil, func(hot *Hot) error {
			hot.AcceptSelf(func(err error) { received = err })
			return nil
		})
		engine := newTestEngine(t, loader, []string{"b"})
		loader.fail("b", errors.New("syntax error"))

		require.NoError(t, engine.UpdateModule(ctx, UpdateRequest{Path: "static/b.js"}))

		require.Error(t, received)
		assert.ErrorIs(t, received, ErrModuleLoadFailed)
		var loadErr ModuleLoadError
		require.ErrorAs(t, received, &loadErr)
		assert.Equal(t, "b", loadErr.ID)
	})

	t.Run("should_contain_loader_panic", func(t *testing.T) {
		loader := newTestLoader()
		loader.define("b", nil, nil)
		engine := newTestEngine(t, loader, []string{"b"})
		loader.define("b", nil, func(hot *Hot) error { panic("boom") })

		assert.NotPanics(t, func() {
			assert.NoError(t, engine.UpdateModule(ctx, UpdateRequest{Path: "static/b.js"}))
		})
		assert.Equal(t, StatusIdle, engine.Status())
	})

	t.Run("should_carry_dispose_data_to_next_incarnation", func(t *testing.T) {
		var mu sync.Mutex
		var seen []HotData
		incarnation := 0
		loader := newTestLoader()
		loader.define("b", nil, func(hot *Hot) error {
			mu.Lock()
			defer mu.Unlock()
			incarnation++
			current := incarnation
			seen = append(seen, hot.Data())
			hot.Dispose(func(data HotData) { data["incarnation"] = current })
			return nil
		})
		engine := newTestEngine(t, loader, []string{"b"})

		require.NoError(t, engine.UpdateModule(ctx, UpdateRequest{Path: "static/b.js"}))

		mu.Lock()
		defer mu.Unlock()
		require.Len(t, seen, 2)
		assert.Nil(t, seen[0])
		assert.Equal(t, HotData{"incarnation": 1}, seen[1])
	})

	t.Run("should_redefine_diamond_ancestor_once", func(t *testing.T) {
		loader := newTestLoader()
		loader.define("d", nil, nil)
		loader.define("b", []string{"d"}, nil)
		loader.define("c", []string{"d"}, nil)
		loader.define("a", []string{"b", "c"}, nil)
		recorder := newEventRecorder("recorder")
		engine := newTestEngine(t, loader, []string{"d", "b", "c", "a"}, WithObserver(recorder))

		require.NoError(t, engine.UpdateModule(ctx, UpdateRequest{Path: "static/d.js"}))

		assert.Equal(t, 2, loader.definition("a").Calls())
		assert.Equal(t, 2, loader.definition("b").Calls())
		assert.Equal(t, 2, loader.definition("c").Calls())
		results := recorder.Results(t, EventTypeUpdateCompleted)
		require.Len(t, results, 1)
		assert.Equal(t, []string{"b", "a", "c"}, results[0].Outdated)
	})

	t.Run("should_call_shared_accept_callback_once", func(t *testing.T) {
		var calls [][]string
		loader := newTestLoader()
		loader.define("b", nil, nil)
		loader.define("c", []string{"b"}, nil)
		loader.define("a", []string{"b", "c"}, func(hot *Hot) error {
			hot.AcceptDeps(func(updated []string) { calls = append(calls, updated) }, "b", "c")
			return nil
		})
		engine := newTestEngine(t, loader, []string{"b", "c", "a"})

		require.NoError(t, engine.UpdateModule(ctx, UpdateRequest{Path: "static/b.js"}))

		assert.Equal(t, 1, loader.definition("a").Calls())
		assert.Equal(t, 2, loader.definition("c").Calls())
		assert.Equal(t, [][]string{{"c", "b"}}, calls)
	})

	t.Run("should_contain_redefine_failure", func(t *testing.T) {
		var received error
		loader := newTestLoader()
		loader.define("b", nil, nil)
		loader.define("a", []string{"b"}, func(hot *Hot) error {
			hot.AcceptSelf(func(err error) { received = err })
			if hot.Data() != nil {
				return errors.New("factory failed")
			}
			hot.Dispose(func(HotData) {})
			return nil
		})
		engine := newTestEngine(t, loader, []string{"b", "a"})

		require.NoError(t, engine.UpdateModule(ctx, UpdateRequest{Path: "static/b.js"}))

		require.Error(t, received)
		assert.ErrorIs(t, received, ErrModuleRedefineFailed)
		assert.Equal(t, StatusIdle, engine.Status())
	})
}

func TestEngineRemoveModule(t *testing.T) {
	ctx := context.Background()
	disposed := false
	loader := newTestLoader()
	loader.define("b", nil, func(hot *Hot) error {
		hot.Dispose(func(HotData) { disposed = true })
		return nil
	})
	loader.define("a", []string{"b"}, nil)
	recorder := newEventRecorder("recorder")
	engine := newTestEngine(t, loader, []string{"b", "a"}, WithObserver(recorder))

	require.NoError(t, engine.RemoveModule(ctx, "static/b.js"))

	assert.True(t, disposed)
	assert.Empty(t, loader.Loads())
	_, ok := engine.Registry().Lookup("b")
	assert.False(t, ok)
	assert.Equal(t, 2, loader.definition("a").Calls())
	assert.Contains(t, recorder.Types(), EventTypeModuleDisposed)
	assert.Contains(t, recorder.Types(), EventTypeModuleRedefined)
}

func TestEngineAddAndSyncModule(t *testing.T) {
	ctx := context.Background()
	loader := newTestLoader()
	loader.define("b", nil, nil)
	loader.define("c", nil, nil)
	engine := newTestEngine(t, loader, []string{"b", "c"})

	require.NoError(t, engine.AddModule(ctx,
		UpdateRequest{Path: "static/b.js", Fingerprint: "b1"},
		UpdateRequest{Path: "static/c.js", Fingerprint: "c1"},
	))
	assert.Equal(t, []string{"b", "c"}, loader.Loads())

	require.NoError(t, engine.SyncModule(ctx, []UpdateRequest{
		{Path: "static/b.js", Fingerprint: "b1"},
		{Path: "static/c.js", Fingerprint: "c2"},
	}))
	assert.Equal(t, []string{"b", "c", "c"}, loader.Loads())
}

func TestEngineSyncModules(t *testing.T) {
	t.Run("should_return_nil_when_empty", func(t *testing.T) {
		engine := newTestEngine(t, newTestLoader(), nil)
		assert.Nil(t, engine.SyncModules())
	})

	t.Run("should_separate_modules_and_resources", func(t *testing.T) {
		loader := newTestLoader()
		loader.define("b", nil, nil)
		engine := newTestEngine(t, loader, []string{"b"})
		_, err := engine.Register(ModuleSpec{ID: "text!tpl/view.html"})
		require.NoError(t, err)

		snapshot := engine.SyncModules()
		require.NotNil(t, snapshot)
		assert.Equal(t, []string{"static/b.js"}, snapshot.Modules)
		assert.Equal(t, []string{"static/tpl/view.html"}, snapshot.Resources)
	})
}

func TestEngineQueue(t *testing.T) {
	t.Run("should_apply_queued_requests_in_order", func(t *testing.T) {
		loader := newTestLoader()
		loader.define("b", nil, nil)
		loader.define("c", nil, nil)
		loader.define("d", nil, nil)
		recorder := newEventRecorder("recorder")
		engine := newTestEngine(t, loader, []string{"b", "c", "d"}, WithObserver(recorder))
		gate := loader.gate("b")

		done := make(chan error, 1)
		go func() {
			done <- engine.UpdateModule(context.Background(), UpdateRequest{Path: "static/b.js"})
		}()

		select {
		case <-loader.entered:
		case <-time.After(2 * time.Second):
			t.Fatal("loader was never called")
		}

		assert.Equal(t, StatusApplying, engine.Status())
		require.NoError(t, engine.UpdateModule(context.Background(), UpdateRequest{Path: "static/c.js"}))
		require.NoError(t, engine.UpdateModule(context.Background(), UpdateRequest{Path: "static/d.js"}))
		assert.Equal(t, 2, engine.Pending())
		assert.Equal(t, []string{"b"}, loader.Loads())

		close(gate)
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("update did not complete")
		}

		assert.Equal(t, []string{"b", "c", "d"}, loader.Loads())
		assert.Equal(t, StatusIdle, engine.Status())
		assert.Equal(t, 0, engine.Pending())
		assert.Equal(t, 2, recorder.Count(EventTypeUpdateQueued))
		assert.Equal(t, 3, recorder.Count(EventTypeUpdateCompleted))
	})

	t.Run("should_report_queued_aborts_to_handler", func(t *testing.T) {
		var mu sync.Mutex
		var aborted []UpdateRequest
		var abortErrs []error
		handler := func(_ context.Context, req UpdateRequest, err error) {
			mu.Lock()
			defer mu.Unlock()
			aborted = append(aborted, req)
			abortErrs = append(abortErrs, err)
		}

		loader := newTestLoader()
		loader.define("b", nil, nil)
		loader.define("c", nil, func(hot *Hot) error {
			hot.Decline()
			return nil
		})
		engine := newTestEngine(t, loader, []string{"b", "c"}, WithAbortHandler(handler))
		gate := loader.gate("b")

		done := make(chan error, 1)
		go func() {
			done <- engine.UpdateModule(context.Background(), UpdateRequest{Path: "static/b.js"})
		}()
		<-loader.entered
		require.NoError(t, engine.UpdateModule(context.Background(), UpdateRequest{Path: "static/c.js"}))
		close(gate)
		require.NoError(t, <-done)

		mu.Lock()
		defer mu.Unlock()
		require.Len(t, aborted, 1)
		assert.Equal(t, "static/c.js", aborted[0].Path)
		assert.True(t, IsAbort(abortErrs[0]))
		assert.Equal(t, StatusIdle, engine.Status())
	})
}
