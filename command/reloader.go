package command

import (
	"sync"
	"time"

	"github.com/GoCodeAlone/watchreload"
)

// AssetReloader is a headless Reloader. It tracks the stylesheet and image
// URLs a page references and re-versions the ones a change matches.
type AssetReloader struct {
	logger       watchreload.Logger
	onPageReload func()
	now          func() time.Time

	mu          sync.Mutex
	styles      []string
	images      []string
	pageReloads int
}

// NewAssetReloader creates a reloader. onPageReload may be nil.
func NewAssetReloader(logger watchreload.Logger, onPageReload func()) *AssetReloader {
	if logger == nil {
		logger = watchreload.NopLogger{}
	}
	return &AssetReloader{logger: logger, onPageReload: onPageReload, now: time.Now}
}

// TrackStyle registers a stylesheet URL.
func (r *AssetReloader) TrackStyle(url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.styles = append(r.styles, url)
}

// TrackImage registers an image URL.
func (r *AssetReloader) TrackImage(url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.images = append(r.images, url)
}

// ReloadCSS implements Reloader.
func (r *AssetReloader) ReloadCSS(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reload(r.styles, path, "stylesheet")
}

// ReloadImage implements Reloader.
func (r *AssetReloader) ReloadImage(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reload(r.images, path, "image")
}

// reload re-versions every fully matching URL in place. Caller holds r.mu.
func (r *AssetReloader) reload(urls []string, path, kind string) bool {
	version := r.now().UnixMilli()
	reloaded := false
	for _, m := range FindMaxMatch(path, urls) {
		if !m.FullMatch {
			continue
		}
		urls[m.Index] = AddQueryTimestamp(m.Candidate, version)
		reloaded = true
		r.logger.Info("Asset reloaded", "kind", kind, "url", urls[m.Index])
	}
	return reloaded
}

// ReloadPage implements Reloader.
func (r *AssetReloader) ReloadPage() {
	r.mu.Lock()
	r.pageReloads++
	r.mu.Unlock()

	r.logger.Info("Page reload requested")
	if r.onPageReload != nil {
		r.onPageReload()
	}
}

// Styles returns the tracked stylesheet URLs.
func (r *AssetReloader) Styles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.styles...)
}

// Images returns the tracked image URLs.
func (r *AssetReloader) Images() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.images...)
}

// PageReloads returns how often a full reload was requested.
func (r *AssetReloader) PageReloads() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pageReloads
}
