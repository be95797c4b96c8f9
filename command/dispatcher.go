package command

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/GoCodeAlone/watchreload"
	"github.com/GoCodeAlone/watchreload/config"
)

// ObserverID identifies the dispatcher on an event bus.
const ObserverID = "watchreload.command.dispatcher"

// levelSetter is implemented by loggers whose level follows the server's
// init options.
type levelSetter interface {
	SetLevel(level string)
}

// Dispatcher routes server commands. A command that fails falls back to a
// full page reload, so the page never keeps running stale code.
type Dispatcher struct {
	engine   Engine
	reloader Reloader
	sender   Sender
	logger   watchreload.Logger

	mu     sync.Mutex
	config *config.Config
	rules  *Rules
}

// NewDispatcher creates a dispatcher. cfg is updated in place by init
// commands.
func NewDispatcher(engine Engine, reloader Reloader, sender Sender, cfg *config.Config, logger watchreload.Logger) (*Dispatcher, error) {
	if logger == nil {
		logger = watchreload.NopLogger{}
	}
	rules, err := CompileRules(cfg.Livereload)
	if err != nil {
		return nil, err
	}
	return &Dispatcher{
		engine:   engine,
		reloader: reloader,
		sender:   sender,
		logger:   logger,
		config:   cfg,
		rules:    rules,
	}, nil
}

// Dispatch handles one command.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) error {
	d.logger.Debug("receive command", "type", msg.Type, "data", string(msg.Data))

	var err error
	switch msg.Type {
	case Init:
		err = d.init(ctx, msg.Data)
	case ReloadCSS:
		err = d.reloadAsset(msg.Data, d.reloader.ReloadCSS)
	case ReloadImage:
		err = d.reloadAsset(msg.Data, d.reloader.ReloadImage)
	case ReloadPage:
		d.reloader.ReloadPage()
	case UpdateModule:
		var req watchreload.UpdateRequest
		if err = decode(msg.Data, &req); err == nil {
			err = d.engine.UpdateModule(ctx, req)
		}
	case RemoveModule:
		var paths []string
		if err = decodeList(msg.Data, &paths); err == nil {
			err = d.engine.RemoveModule(ctx, paths...)
		}
	case AddModule:
		var reqs []watchreload.UpdateRequest
		if err = decodeList(msg.Data, &reqs); err == nil {
			err = d.engine.AddModule(ctx, reqs...)
		}
	case SyncModule:
		var reqs []watchreload.UpdateRequest
		if err = decodeList(msg.Data, &reqs); err == nil {
			err = d.engine.SyncModule(ctx, reqs)
		}
	default:
		d.logger.Debug("ignore unknown command", "type", msg.Type)
		return nil
	}

	if err != nil {
		d.logger.Warn("Command failed, reloading page", "type", msg.Type, "error", err)
		d.reloader.ReloadPage()
		return fmt.Errorf("%s: %w", msg.Type, err)
	}
	return nil
}

func (d *Dispatcher) init(ctx context.Context, raw json.RawMessage) error {
	options := map[string]interface{}{}
	if err := decode(raw, &options); err != nil {
		return err
	}

	d.mu.Lock()
	if err := d.config.ApplyInit(options); err != nil {
		d.mu.Unlock()
		return err
	}
	rules, err := CompileRules(d.config.Livereload)
	if err != nil {
		d.mu.Unlock()
		return err
	}
	d.rules = rules
	hmr := d.config.HMR
	level := d.config.LogLevel
	d.mu.Unlock()

	if setter, ok := d.logger.(levelSetter); ok {
		setter.SetLevel(level)
	}
	d.logger.Info("Client initialized", "hmr", hmr, "logLevel", level)

	if !hmr {
		return nil
	}
	snapshot := d.engine.SyncModules()
	if snapshot == nil {
		return nil
	}
	return d.sender.Send(ctx, SyncModule, snapshot)
}

func (d *Dispatcher) reloadAsset(raw json.RawMessage, reload func(string) bool) error {
	var data PathData
	if err := decode(raw, &data); err != nil {
		return err
	}

	d.mu.Lock()
	target := d.rules.Map(data.Path)
	d.mu.Unlock()

	if !reload(target) {
		d.logger.Debug("no asset matched, reloading page", "path", target)
		d.reloader.ReloadPage()
	}
	return nil
}

// Config returns a copy of the live options.
func (d *Dispatcher) Config() config.Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return *d.config
}

// AbortHandler reloads the page when a queued hot update is aborted.
func (d *Dispatcher) AbortHandler() watchreload.AbortHandler {
	return func(_ context.Context, req watchreload.UpdateRequest, err error) {
		d.logger.Warn("Queued hot update aborted, reloading page", "path", req.Path, "error", err)
		d.reloader.ReloadPage()
	}
}

// OnEvent implements watchreload.Observer for command events published by
// the transport.
func (d *Dispatcher) OnEvent(ctx context.Context, event cloudevents.Event) error {
	name, ok := strings.CutPrefix(event.Type(), watchreload.CommandEventPrefix)
	if !ok {
		return nil
	}
	return d.Dispatch(ctx, Message{Type: name, Data: event.Data()})
}

// ObserverID implements watchreload.Observer.
func (d *Dispatcher) ObserverID() string { return ObserverID }

func isEmpty(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func decode(raw json.RawMessage, target interface{}) error {
	if isEmpty(raw) {
		return nil
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return nil
}

// decodeList accepts either a JSON array or a single element.
func decodeList[T any](raw json.RawMessage, target *[]T) error {
	if isEmpty(raw) {
		return nil
	}
	trimmed := bytes.TrimSpace(raw)
	if trimmed[0] == '[' {
		return decode(trimmed, target)
	}
	var single T
	if err := decode(trimmed, &single); err != nil {
		return err
	}
	*target = append(*target, single)
	return nil
}
