package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/GoCodeAlone/watchreload"
	"github.com/GoCodeAlone/watchreload/loader/memloader"
)

// ErrManifestEmpty is returned for a manifest without modules.
var ErrManifestEmpty = errors.New("manifest declares no modules")

// Manifest describes the page a headless client simulates: its modules and
// how each one reacts to hot updates, plus the assets it references.
type Manifest struct {
	// Entry modules are loaded at startup. Defaults to every module.
	Entry   []string         `yaml:"entry"`
	Modules []ModuleManifest `yaml:"modules"`
	Styles  []string         `yaml:"styles"`
	Images  []string         `yaml:"images"`
}

// ModuleManifest is one simulated module.
type ModuleManifest struct {
	ID          string   `yaml:"id"`
	Deps        []string `yaml:"deps"`
	Resources   []string `yaml:"resources"`
	Accept      bool     `yaml:"accept"`
	AcceptDeps  []string `yaml:"acceptDeps"`
	Decline     bool     `yaml:"decline"`
	DeclineDeps []string `yaml:"declineDeps"`
}

// LoadManifest reads a YAML (or JSON) manifest.
func LoadManifest(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseManifest(raw)
}

// ParseManifest decodes a manifest, rejecting unknown keys.
func ParseManifest(raw []byte) (*Manifest, error) {
	var m Manifest
	decoder := yaml.NewDecoder(bytes.NewReader(raw))
	decoder.KnownFields(true)
	if err := decoder.Decode(&m); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if len(m.Modules) == 0 {
		return nil, ErrManifestEmpty
	}
	if len(m.Entry) == 0 {
		for _, mod := range m.Modules {
			m.Entry = append(m.Entry, mod.ID)
		}
	}
	return &m, nil
}

// Sources turns the manifest into loader sources. Every module exports
// "<id>#<n>" where n counts its executions across incarnations.
func (m *Manifest) Sources(logger watchreload.Logger) []memloader.Source {
	sources := make([]memloader.Source, 0, len(m.Modules))
	for _, mod := range m.Modules {
		sources = append(sources, memloader.Source{
			ID:            mod.ID,
			DependencyIDs: mod.Deps,
			ResourceIDs:   mod.Resources,
			Factory:       mod.factory(logger),
		})
	}
	return sources
}

func (mod ModuleManifest) factory(logger watchreload.Logger) memloader.Factory {
	return func(hot *watchreload.Hot, deps []any) (any, error) {
		executions := 1
		if n, ok := hot.Data()["executions"].(int); ok {
			executions = n + 1
		}
		hot.Dispose(func(data watchreload.HotData) {
			data["executions"] = executions
		})

		if mod.Accept {
			hot.AcceptSelf(func(err error) {
				if err != nil {
					logger.Warn("Self update failed", "module", mod.ID, "error", err)
					return
				}
				logger.Info("Self update applied", "module", mod.ID)
			})
		}
		if len(mod.AcceptDeps) > 0 {
			hot.AcceptDeps(func(updated []string) {
				logger.Info("Dependency update accepted", "module", mod.ID, "updated", updated)
			}, mod.AcceptDeps...)
		}
		if mod.Decline {
			hot.Decline()
		}
		if len(mod.DeclineDeps) > 0 {
			hot.DeclineDeps(mod.DeclineDeps...)
		}

		exports := fmt.Sprintf("%s#%d", mod.ID, executions)
		logger.Debug("module executed", "module", mod.ID, "exports", exports, "deps", deps)
		return exports, nil
	}
}
