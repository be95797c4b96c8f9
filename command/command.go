// Package command turns commands of the update server into calls on the
// hot-update engine and on the page reload collaborator.
package command

import (
	"context"
	"encoding/json"

	"github.com/GoCodeAlone/watchreload"
)

// Commands sent by the update server.
const (
	Init         = "init"
	ReloadCSS    = "reloadCSS"
	ReloadImage  = "reloadImage"
	ReloadPage   = "reloadPage"
	UpdateModule = "updateModule"
	RemoveModule = "removeModule"
	AddModule    = "addModule"
	SyncModule   = "syncModule"
)

// Messages sent by the client.
const (
	Register = "register"
)

// Message is the {type, data} envelope of every command.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// PathData is the payload of reloadCSS and reloadImage.
type PathData struct {
	Path string `json:"path"`
}

// RegisterData is the payload of the register message.
type RegisterData struct {
	Name string `json:"name"`
}

// Reloader applies updates the module engine cannot: stylesheets, images
// and full page reloads. ReloadCSS and ReloadImage report whether anything
// matched path.
type Reloader interface {
	ReloadCSS(path string) bool
	ReloadImage(path string) bool
	ReloadPage()
}

// Engine is the part of the hot-update engine the dispatcher drives.
type Engine interface {
	UpdateModule(ctx context.Context, req watchreload.UpdateRequest) error
	AddModule(ctx context.Context, reqs ...watchreload.UpdateRequest) error
	RemoveModule(ctx context.Context, paths ...string) error
	SyncModule(ctx context.Context, reqs []watchreload.UpdateRequest) error
	SyncModules() *watchreload.SyncSnapshot
}

// Sender sends a message to the update server.
type Sender interface {
	Send(ctx context.Context, msgType string, data interface{}) error
}
