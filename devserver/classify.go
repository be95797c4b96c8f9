package devserver

import (
	"path"
	"strings"

	"github.com/GoCodeAlone/watchreload/config"
)

// Kind tells how a client applies a changed file.
type Kind int

const (
	KindPage Kind = iota
	KindModule
	KindStyle
	KindImage
)

func (k Kind) String() string {
	switch k {
	case KindModule:
		return "module"
	case KindStyle:
		return "style"
	case KindImage:
		return "image"
	default:
		return "page"
	}
}

// classifier maps file extensions to kinds.
type classifier map[string]Kind

func newClassifier(cfg config.DevServerConfig) classifier {
	c := make(classifier)
	for _, ext := range cfg.ImageExtensions {
		c[strings.ToLower(ext)] = KindImage
	}
	for _, ext := range cfg.StyleExtensions {
		c[strings.ToLower(ext)] = KindStyle
	}
	for _, ext := range cfg.ModuleExtensions {
		c[strings.ToLower(ext)] = KindModule
	}
	return c
}

func (c classifier) kind(rel string) Kind {
	return c[strings.ToLower(path.Ext(rel))]
}
