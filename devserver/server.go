// Package devserver is a development server for the live-update client. It
// serves a directory, watches it for changes and tells connected clients how
// to apply each change: hot module update, stylesheet or image refresh, or a
// full page reload.
package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/fsnotify/fsnotify"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/GoCodeAlone/watchreload"
	"github.com/GoCodeAlone/watchreload/command"
	"github.com/GoCodeAlone/watchreload/config"
)

// EventSource is the CloudEvents source of dev server events.
const EventSource = "watchreload/devserver"

// Event types emitted by the dev server.
const (
	EventTypeFileChanged      = "com.watchreload.devserver.file_changed"
	EventTypeClientRegistered = "com.watchreload.devserver.client_registered"
	EventTypeRescanCompleted  = "com.watchreload.devserver.rescan_completed"
)

// Broadcast is the payload of EventTypeFileChanged.
type Broadcast struct {
	Change  Change `json:"change"`
	Kind    string `json:"kind"`
	Command string `json:"command"`
	Clients int    `json:"clients"`
}

// Server is the development server.
type Server struct {
	cfg        config.DevServerConfig
	livereload map[string]string
	logLevel   string
	logger     watchreload.Logger

	index    *Index
	classify classifier
	hub      *hub
	upgrader websocket.Upgrader
	events   *watchreload.EventBus
	router   chi.Router

	mu      sync.Mutex
	started bool
	watcher *fsnotify.Watcher
	cron    *cron.Cron
}

// New creates a dev server for cfg.DevServer. The client options of cfg
// (livereload rules, log level) are handed to clients with init.
func New(cfg *config.Config, logger watchreload.Logger) (*Server, error) {
	if cfg == nil {
		return nil, config.ErrConfigNil
	}
	if logger == nil {
		logger = watchreload.NopLogger{}
	}
	index, err := NewIndex(cfg.DevServer.Root, cfg.DevServer.Ignore)
	if err != nil {
		return nil, err
	}
	s := &Server{
		cfg:        cfg.DevServer,
		livereload: cfg.Livereload,
		logLevel:   cfg.LogLevel,
		logger:     logger,
		index:      index,
		classify:   newClassifier(cfg.DevServer),
		hub:        newHub(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		events: watchreload.NewEventBus(EventSource, logger),
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/ws", s.handleWS)
	r.Get("/modules", s.handleModules)
	r.Handle("/*", http.FileServer(http.Dir(s.index.Root())))
	return r
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler { return s.router }

// Index returns the fingerprint index.
func (s *Server) Index() *Index { return s.index }

// Clients returns the number of connected clients.
func (s *Server) Clients() int { return s.hub.len() }

// Start fingerprints the tree and starts watching it. Watching stops when
// ctx is done or Close is called.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}

	if _, err := s.index.Rescan(); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := s.watchTree(watcher, s.index.Root()); err != nil {
		_ = watcher.Close()
		return err
	}
	s.watcher = watcher
	go s.watch(ctx, watcher)

	if s.cfg.Rescan != config.RescanOff {
		c := cron.New()
		if _, err := c.AddFunc(s.cfg.Rescan, func() { s.Rescan(ctx) }); err != nil {
			_ = watcher.Close()
			return fmt.Errorf("schedule rescan: %w", err)
		}
		c.Start()
		s.cron = c
	}

	s.started = true
	s.logger.Info("Dev server watching", "root", s.index.Root(), "files", len(s.index.Files()), "rescan", s.cfg.Rescan)
	return nil
}

// Close stops watching.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		<-s.cron.Stop().Done()
		s.cron = nil
	}
	var err error
	if s.watcher != nil {
		err = s.watcher.Close()
		s.watcher = nil
	}
	s.started = false
	return err
}

// Run starts watching and serves HTTP on the configured address until ctx
// is done.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	defer s.Close()

	srv := &http.Server{Addr: s.cfg.Addr, Handler: s.router}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("Dev server listening", "addr", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return srv.Shutdown(context.WithoutCancel(ctx))
	})
	return g.Wait()
}

// Refresh fingerprints one file again and notifies clients when it changed.
func (s *Server) Refresh(ctx context.Context, rel string) error {
	change, ok, err := s.index.Refresh(rel)
	if err != nil {
		return err
	}
	if ok {
		s.Notify(ctx, change)
	}
	return nil
}

// Rescan fingerprints the whole tree and notifies clients of every change.
func (s *Server) Rescan(ctx context.Context) {
	changes, err := s.index.Rescan()
	if err != nil {
		s.logger.Error("Rescan failed", "error", err)
		return
	}
	for _, change := range changes {
		s.Notify(ctx, change)
	}
	s.events.Emit(ctx, EventTypeRescanCompleted, map[string]int{"changes": len(changes)})
}

// Notify broadcasts the command that applies change.
func (s *Server) Notify(ctx context.Context, change Change) {
	kind := s.classify.kind(change.Path)
	msgType, data := s.commandFor(kind, change)

	for _, p := range s.hub.broadcast(msgType, data) {
		s.logger.Warn("Dropping client after failed send", "client", p.Name())
		s.hub.remove(p)
		_ = p.conn.Close()
	}

	s.logger.Info("File changed", "path", change.Path, "op", change.Op, "kind", kind, "command", msgType)
	s.events.Emit(ctx, EventTypeFileChanged, Broadcast{
		Change:  change,
		Kind:    kind.String(),
		Command: msgType,
		Clients: s.hub.len(),
	})
}

func (s *Server) commandFor(kind Kind, change Change) (string, interface{}) {
	switch kind {
	case KindModule:
		if s.cfg.DisableHMR {
			return command.ReloadPage, nil
		}
		req := watchreload.UpdateRequest{Path: change.Path, Fingerprint: change.Hash}
		switch change.Op {
		case OpAdded:
			return command.AddModule, req
		case OpRemoved:
			return command.RemoveModule, []string{change.Path}
		default:
			return command.UpdateModule, req
		}
	case KindStyle:
		if change.Op != OpRemoved {
			return command.ReloadCSS, command.PathData{Path: change.Path}
		}
	case KindImage:
		if change.Op != OpRemoved {
			return command.ReloadImage, command.PathData{Path: change.Path}
		}
	}
	return command.ReloadPage, nil
}

func (s *Server) handleModules(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.index.Files()); err != nil {
		s.logger.Error("Failed to encode modules", "error", err)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	p := &peer{conn: conn}
	s.hub.add(p)
	defer func() {
		s.hub.remove(p)
		_ = conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			s.logger.Debug("client disconnected", "client", p.Name(), "error", err)
			return
		}
		var msg command.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.logger.Warn("Ignoring malformed client message", "error", err)
			continue
		}
		if err := s.handleClientMessage(r.Context(), p, msg); err != nil {
			s.logger.Warn("Client message failed", "type", msg.Type, "error", err)
		}
	}
}

func (s *Server) handleClientMessage(ctx context.Context, p *peer, msg command.Message) error {
	switch msg.Type {
	case command.Register:
		var data command.RegisterData
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &data); err != nil {
				return err
			}
		}
		p.setName(data.Name)
		s.logger.Info("Client registered", "client", data.Name)
		s.events.Emit(ctx, EventTypeClientRegistered, data)
		return p.send(command.Init, s.initOptions())
	case command.SyncModule:
		var snapshot watchreload.SyncSnapshot
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &snapshot); err != nil {
				return err
			}
		}
		return p.send(command.SyncModule, s.syncReply(&snapshot))
	default:
		s.logger.Debug("ignore client message", "type", msg.Type)
		return nil
	}
}

func (s *Server) initOptions() map[string]interface{} {
	options := map[string]interface{}{"hmr": !s.cfg.DisableHMR}
	if len(s.livereload) > 0 {
		options["livereload"] = s.livereload
	}
	if s.logLevel != "" {
		options["logLevel"] = s.logLevel
	}
	return options
}

// syncReply tells the client the current fingerprint of everything it has
// loaded, or that it is gone.
func (s *Server) syncReply(snapshot *watchreload.SyncSnapshot) []watchreload.UpdateRequest {
	paths := append(append([]string(nil), snapshot.Modules...), snapshot.Resources...)
	reply := make([]watchreload.UpdateRequest, 0, len(paths))
	for _, p := range paths {
		if hash, ok := s.index.Hash(p); ok {
			reply = append(reply, watchreload.UpdateRequest{Path: p, Fingerprint: hash})
		} else {
			reply = append(reply, watchreload.UpdateRequest{Path: p, Removed: true})
		}
	}
	return reply
}

// RegisterObserver implements watchreload.Subject.
func (s *Server) RegisterObserver(observer watchreload.Observer, eventTypes ...string) error {
	return s.events.RegisterObserver(observer, eventTypes...)
}

// UnregisterObserver implements watchreload.Subject.
func (s *Server) UnregisterObserver(observer watchreload.Observer) error {
	return s.events.UnregisterObserver(observer)
}

// NotifyObservers implements watchreload.Subject.
func (s *Server) NotifyObservers(ctx context.Context, event cloudevents.Event) error {
	return s.events.NotifyObservers(ctx, event)
}

// GetObservers implements watchreload.Subject.
func (s *Server) GetObservers() []watchreload.ObserverInfo {
	return s.events.GetObservers()
}
