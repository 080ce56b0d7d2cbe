package browser

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"polistep/internal/logging"
)

// downloadsWatcher collects the names of files the browser drops into
// the per-run downloads directory while the agent works.
type downloadsWatcher struct {
	mu    sync.Mutex
	files []string
	seen  map[string]bool
}

func newDownloadsWatcher() *downloadsWatcher {
	return &downloadsWatcher{seen: make(map[string]bool)}
}

// Watch blocks until ctx is cancelled, recording every file created or
// renamed into dir. Chrome writes to a .crdownload temp name first and
// renames on completion, so rename events matter as much as creates.
func (w *downloadsWatcher) Watch(ctx context.Context, dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return err
	}
	logging.Browser("watching downloads dir %s", dir)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			name := filepath.Base(ev.Name)
			if strings.HasSuffix(name, ".crdownload") || strings.HasSuffix(name, ".tmp") || strings.HasPrefix(name, ".") {
				continue
			}
			w.record(name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.BrowserWarn("downloads watcher: %v", err)
		}
	}
}

func (w *downloadsWatcher) record(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.seen[name] {
		return
	}
	w.seen[name] = true
	w.files = append(w.files, name)
	logging.Browser("download observed: %s", name)
}

// Files returns the observed download names in arrival order.
func (w *downloadsWatcher) Files() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.files))
	copy(out, w.files)
	return out
}
