package dev

import (
	"context"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeType represents the type of file change.
type ChangeType int

const (
	ChangeScript ChangeType = iota
	ChangeStyle
	ChangeHTML
	ChangePublic
	ChangeConfig
	ChangeAsset
)

// String returns the metric label of the change type.
func (t ChangeType) String() string {
	switch t {
	case ChangeScript:
		return "script"
	case ChangeStyle:
		return "style"
	case ChangeHTML:
		return "html"
	case ChangePublic:
		return "public"
	case ChangeConfig:
		return "config"
	default:
		return "asset"
	}
}

// Change represents a detected file change.
type Change struct {
	Path string
	Type ChangeType
}

// WatcherConfig configures the file watcher.
type WatcherConfig struct {
	// Paths are the directories to watch.
	Paths []string

	// Ignore patterns to skip (globs).
	Ignore []string

	// Interval is the polling interval.
	Interval time.Duration

	// UsePolling selects the polling watcher. Native file events are
	// used otherwise.
	UsePolling bool

	// PublicDir is classified as ChangePublic.
	PublicDir string

	// ConfigFile is classified as ChangeConfig.
	ConfigFile string
}

// DefaultIgnore contains default patterns to ignore.
var DefaultIgnore = []string{
	".git",
	"node_modules",
	".devpack",
	"*.tmp",
	"*.swp",
	"*~",
	".DS_Store",
}

// Watcher reports file changes under a set of directories.
type Watcher interface {
	// OnChange sets the callback for file changes.
	OnChange(fn func(Change))

	// Start watches until ctx is done or Stop is called.
	Start(ctx context.Context) error

	// Stop stops the watcher. It is safe to call more than once.
	Stop()
}

// NewWatcher returns a polling watcher when config.UsePolling is set and a
// native event watcher otherwise.
func NewWatcher(config WatcherConfig) Watcher {
	if config.Interval <= 0 {
		config.Interval = 100 * time.Millisecond
	}
	if len(config.Ignore) == 0 {
		config.Ignore = DefaultIgnore
	}
	if config.UsePolling {
		return &PollWatcher{config: config, stamps: make(map[string]stamp)}
	}
	return &NotifyWatcher{config: config}
}

// PollWatcher detects changes by comparing modification times.
type PollWatcher struct {
	config   WatcherConfig
	onChange func(Change)
	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	stamps   map[string]stamp
}

// stamp is what the poller compares between scans.
type stamp struct {
	mod  time.Time
	size int64
}

// OnChange sets the callback for file changes.
func (w *PollWatcher) OnChange(fn func(Change)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = fn
}

// Start begins polling for file changes.
func (w *PollWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.stopCh = make(chan struct{})
	stopCh := w.stopCh
	w.mu.Unlock()

	w.scan(nil)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stopCh:
			return nil
		case <-ticker.C:
			w.checkForChanges()
		}
	}
}

// Stop stops the watcher.
func (w *PollWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		close(w.stopCh)
		w.running = false
	}
}

// IsRunning returns whether the watcher is running.
func (w *PollWatcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// scan walks the watched paths and records modification times. New or
// modified files are reported through changes when it is non-nil.
func (w *PollWatcher) scan(changes *[]Change) {
	seen := make(map[string]bool)
	for _, root := range w.config.Paths {
		filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				if p != root && w.ignored(root, p) {
					return filepath.SkipDir
				}
				return nil
			}
			if w.ignored(root, p) {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}
			seen[p] = true

			cur := stamp{mod: info.ModTime(), size: info.Size()}
			w.mu.Lock()
			last, exists := w.stamps[p]
			w.stamps[p] = cur
			w.mu.Unlock()

			if changes != nil && (!exists || !cur.mod.Equal(last.mod) || cur.size != last.size) {
				*changes = append(*changes, w.change(p))
			}
			return nil
		})
	}

	if changes == nil {
		return
	}
	w.mu.Lock()
	for p := range w.stamps {
		if !seen[p] {
			delete(w.stamps, p)
			*changes = append(*changes, w.change(p))
		}
	}
	w.mu.Unlock()
}

// checkForChanges scans for modified, created and deleted files.
func (w *PollWatcher) checkForChanges() {
	w.mu.Lock()
	callback := w.onChange
	w.mu.Unlock()

	var changes []Change
	w.scan(&changes)
	if callback == nil {
		return
	}
	for _, change := range changes {
		callback(change)
	}
}

func (w *PollWatcher) ignored(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return shouldIgnore(w.config.Ignore, rel)
}

func (w *PollWatcher) change(p string) Change {
	return Change{Path: p, Type: classifyChange(p, w.config.PublicDir, w.config.ConfigFile)}
}

// NotifyWatcher reports changes from native file system events.
type NotifyWatcher struct {
	config   WatcherConfig
	onChange func(Change)
	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
}

// OnChange sets the callback for file changes.
func (w *NotifyWatcher) OnChange(fn func(Change)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = fn
}

// Start subscribes to file events for every watched directory.
func (w *NotifyWatcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.stopCh = make(chan struct{})
	stopCh := w.stopCh
	w.mu.Unlock()

	for _, root := range w.config.Paths {
		w.addTree(fw, root)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stopCh:
			return nil
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			if err != nil {
				return err
			}
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handle(fw, ev)
		}
	}
}

// Stop stops the watcher.
func (w *NotifyWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		close(w.stopCh)
		w.running = false
	}
}

// IsRunning returns whether the watcher is running.
func (w *NotifyWatcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *NotifyWatcher) addTree(fw *fsnotify.Watcher, root string) {
	filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if rel, _ := filepath.Rel(root, p); p != root && shouldIgnore(w.config.Ignore, rel) {
			return filepath.SkipDir
		}
		_ = fw.Add(p)
		return nil
	})
}

func (w *NotifyWatcher) handle(fw *fsnotify.Watcher, ev fsnotify.Event) {
	if ev.Op == fsnotify.Chmod || w.ignored(ev.Name) {
		return
	}
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			w.addTree(fw, ev.Name)
			return
		}
	}

	w.mu.Lock()
	callback := w.onChange
	w.mu.Unlock()
	if callback != nil {
		callback(Change{Path: ev.Name, Type: classifyChange(ev.Name, w.config.PublicDir, w.config.ConfigFile)})
	}
}

// ignored matches p against the ignore patterns relative to the watched
// directory that contains it.
func (w *NotifyWatcher) ignored(p string) bool {
	for _, root := range w.config.Paths {
		if isWithinDir(p, root) {
			rel, _ := filepath.Rel(root, p)
			return shouldIgnore(w.config.Ignore, rel)
		}
	}
	return shouldIgnore(w.config.Ignore, p)
}

// shouldIgnore checks if a path, relative to a watched directory, should be
// ignored.
func shouldIgnore(patterns []string, fullPath string) bool {
	name := filepath.Base(fullPath)
	normalized := filepath.ToSlash(fullPath)

	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}

		// Direct match
		if name == pattern {
			return true
		}

		pattern = filepath.ToSlash(pattern)
		pattern = strings.TrimSuffix(pattern, "/**")
		hasPathSep := strings.Contains(pattern, "/")
		hasGlob := strings.ContainsAny(pattern, "*?[")

		if hasGlob {
			if hasPathSep {
				if matched, _ := path.Match(pattern, normalized); matched {
					return true
				}
				if pathMatchesGlobSegments(normalized, pattern) {
					return true
				}
			} else if matched, _ := filepath.Match(pattern, name); matched {
				return true
			}
			continue
		}

		if hasPathSep {
			if pathMatchesSegments(normalized, pattern) {
				return true
			}
			continue
		}

		if pathHasSegment(normalized, pattern) {
			return true
		}
	}

	return false
}

func pathHasSegment(path, segment string) bool {
	if segment == "" {
		return false
	}
	for _, part := range splitPathSegments(path) {
		if part == segment {
			return true
		}
	}
	return false
}

func pathMatchesSegments(path, pattern string) bool {
	pathParts := splitPathSegments(path)
	patternParts := splitPathSegments(pattern)
	return matchSegments(pathParts, patternParts, func(a, b string) bool { return a == b })
}

func pathMatchesGlobSegments(p, pattern string) bool {
	return matchSegments(splitPathSegments(p), splitPathSegments(pattern), func(part, pat string) bool {
		ok, _ := path.Match(pat, part)
		return ok
	})
}

func matchSegments(pathParts, patternParts []string, eq func(part, pat string) bool) bool {
	if len(patternParts) == 0 || len(patternParts) > len(pathParts) {
		return false
	}

	for i := 0; i <= len(pathParts)-len(patternParts); i++ {
		match := true
		for j := range patternParts {
			if !eq(pathParts[i+j], patternParts[j]) {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}

	return false
}

func splitPathSegments(path string) []string {
	if path == "" {
		return nil
	}
	parts := strings.Split(path, "/")
	result := parts[:0]
	for _, part := range parts {
		if part != "" && part != "." {
			result = append(result, part)
		}
	}
	return result
}

// classifyChange determines the type of change from its location and
// extension.
func classifyChange(p, publicDir, configFile string) ChangeType {
	if configFile != "" && isSamePath(p, configFile) {
		return ChangeConfig
	}
	if publicDir != "" && isWithinDir(p, publicDir) {
		return ChangePublic
	}
	switch strings.ToLower(filepath.Ext(p)) {
	case ".js", ".jsx", ".mjs", ".cjs", ".ts", ".tsx", ".mts", ".json":
		return ChangeScript
	case ".css", ".scss", ".sass", ".less":
		return ChangeStyle
	case ".html":
		return ChangeHTML
	default:
		return ChangeAsset
	}
}
