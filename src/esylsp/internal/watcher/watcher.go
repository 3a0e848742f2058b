// Package watcher forwards build-artifact filesystem changes into a running
// session's synchronize channel.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module is the Fx module for this package.
var Module = fx.Provide(New)

// ArtifactPatterns is the fixed glob set covering per-file build artifacts
// and build-output directories.
var ArtifactPatterns = []string{
	"**/*.cmt",
	"**/*.cmti",
	"**/*.cmi",
	"**/_build/**",
	"**/_esy/**",
}

// Sink receives change notifications for watched files. protocol.Server
// satisfies this interface.
type Sink interface {
	DidChangeWatchedFiles(ctx context.Context, params *protocol.DidChangeWatchedFilesParams) error
}

// Watcher observes a workspace root for build-artifact changes.
type Watcher interface {
	// Watch begins watching root and forwards matching events to sink until
	// the returned stop function is called or ctx is cancelled.
	Watch(ctx context.Context, root string, sink Sink) (stop func(), err error)
}

// Params are inbound parameters to initialize a new Watcher.
type Params struct {
	fx.In

	Logger *zap.SugaredLogger
}

type watcherImpl struct {
	logger *zap.SugaredLogger
}

// New creates a new Watcher.
func New(p Params) Watcher {
	return &watcherImpl{logger: p.Logger}
}

func (w *watcherImpl) Watch(ctx context.Context, root string, sink Sink) (func(), error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := addRecursive(fsw, root); err != nil {
		fsw.Close()
		return nil, err
	}

	done := make(chan struct{})
	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(done)
			fsw.Close()
		})
	}

	go w.run(ctx, fsw, root, sink, done)
	return stop, nil
}

func (w *watcherImpl) run(ctx context.Context, fsw *fsnotify.Watcher, root string, sink Sink, done chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warnw("watch error", "error", err)
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			// New directories must be added so events below them are seen.
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = addRecursive(fsw, event.Name)
				}
			}

			if !Matches(root, event.Name) {
				continue
			}

			changeType := translateOp(event.Op)
			if changeType == 0 {
				continue
			}

			params := &protocol.DidChangeWatchedFilesParams{
				Changes: []*protocol.FileEvent{
					{URI: uri.File(event.Name), Type: changeType},
				},
			}
			if err := sink.DidChangeWatchedFiles(ctx, params); err != nil {
				w.logger.Warnw("forwarding watched file change", "file", event.Name, "error", err)
			}
		}
	}
}

func addRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// A directory may vanish mid-walk; skip rather than abort.
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if name := d.Name(); strings.HasPrefix(name, ".") && p != root {
			return fs.SkipDir
		}
		return fsw.Add(p)
	})
}

// Matches reports whether path (relative to root) matches any artifact pattern.
func Matches(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, pattern := range ArtifactPatterns {
		if matchPattern(pattern, rel) {
			return true
		}
	}
	return false
}

func matchPattern(pattern, rel string) bool {
	switch {
	case strings.HasPrefix(pattern, "**/") && strings.HasSuffix(pattern, "/**"):
		seg := strings.TrimSuffix(strings.TrimPrefix(pattern, "**/"), "/**")
		for _, part := range strings.Split(rel, "/") {
			if part == seg {
				return true
			}
		}
		return false
	case strings.HasPrefix(pattern, "**/"):
		ok, _ := path.Match(strings.TrimPrefix(pattern, "**/"), path.Base(rel))
		return ok
	default:
		ok, _ := path.Match(pattern, rel)
		return ok
	}
}

func translateOp(op fsnotify.Op) protocol.FileChangeType {
	switch {
	case op.Has(fsnotify.Create):
		return protocol.FileChangeTypeCreated
	case op.Has(fsnotify.Write):
		return protocol.FileChangeTypeChanged
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return protocol.FileChangeTypeDeleted
	default:
		return 0
	}
}
