// Package notify watches the record root for edits made by other writers
// (the dashboard, a text editor, sync tooling) and reports the touched
// records so the engine can re-run linking for them.
package notify

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Record kinds reported to the callback.
const (
	KindMemory = "memory"
	KindTask   = "task"
)

// Change identifies one externally modified record file.
type Change struct {
	Kind    string // memory|task
	Project string // sanitized project key from the path
	ID      string // memory id for memories, empty for task containers
	Path    string
}

// RecordWatcher watches <root>/memories/ and <root>/tasks/ for external
// writes. Events are debounced per file: editors typically emit several
// writes per save.
type RecordWatcher struct {
	root     string
	callback func(Change)
	debounce time.Duration
	logger   *log.Logger

	watcher *fsnotify.Watcher
	done    chan struct{}

	mu      sync.Mutex
	pending map[string]*time.Timer

	// Suppress marks paths the process itself is writing so its own saves
	// do not loop back through the callback.
	suppressMu sync.Mutex
	suppressed map[string]time.Time
}

// NewRecordWatcher creates a watcher over the record root. callback runs on
// the watcher goroutine; keep it quick or hand off.
func NewRecordWatcher(root string, callback func(Change), logger *log.Logger) *RecordWatcher {
	if logger == nil {
		logger = log.Default()
	}
	return &RecordWatcher{
		root:       root,
		callback:   callback,
		debounce:   250 * time.Millisecond,
		logger:     logger,
		done:       make(chan struct{}),
		pending:    make(map[string]*time.Timer),
		suppressed: make(map[string]time.Time),
	}
}

// Start registers the watch points and begins dispatching. New project
// directories under memories/ are picked up as they appear.
func (rw *RecordWatcher) Start() error {
	memDir := filepath.Join(rw.root, "memories")
	taskDir := filepath.Join(rw.root, "tasks")
	for _, dir := range []string{memDir, taskDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	for _, dir := range []string{memDir, taskDir} {
		if err := w.Add(dir); err != nil {
			_ = w.Close()
			return err
		}
	}
	// Existing project directories under memories/.
	entries, err := os.ReadDir(memDir)
	if err == nil {
		for _, e := range entries {
			if e.IsDir() {
				if err := w.Add(filepath.Join(memDir, e.Name())); err != nil {
					rw.logger.Printf("notify: watch %s: %v", e.Name(), err)
				}
			}
		}
	}
	rw.watcher = w

	go rw.loop()
	rw.logger.Printf("notify: watching %s for external record edits", rw.root)
	return nil
}

// Stop shuts the watcher down and waits for the loop to exit.
func (rw *RecordWatcher) Stop() {
	if rw.watcher == nil {
		return
	}
	_ = rw.watcher.Close()
	<-rw.done

	rw.mu.Lock()
	for _, t := range rw.pending {
		t.Stop()
	}
	rw.pending = map[string]*time.Timer{}
	rw.mu.Unlock()
}

// Suppress marks a path as self-written for a short window. The record
// store invokes this through its write hook right before each save or
// removal so the watcher skips the resulting event.
func (rw *RecordWatcher) Suppress(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	rw.suppressMu.Lock()
	rw.suppressed[abs] = time.Now().Add(2 * time.Second)
	rw.suppressMu.Unlock()
}

func (rw *RecordWatcher) isSuppressed(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	rw.suppressMu.Lock()
	defer rw.suppressMu.Unlock()
	until, ok := rw.suppressed[abs]
	if !ok {
		return false
	}
	if time.Now().After(until) {
		delete(rw.suppressed, abs)
		return false
	}
	return true
}

func (rw *RecordWatcher) loop() {
	defer close(rw.done)
	for {
		select {
		case evt, ok := <-rw.watcher.Events:
			if !ok {
				return
			}
			rw.handle(evt)
		case err, ok := <-rw.watcher.Errors:
			if !ok {
				return
			}
			rw.logger.Printf("notify: watcher error: %v", err)
		}
	}
}

func (rw *RecordWatcher) handle(evt fsnotify.Event) {
	if evt.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return
	}

	// A new project directory under memories/ needs its own watch.
	if evt.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(evt.Name); err == nil && info.IsDir() {
			if filepath.Dir(evt.Name) == filepath.Join(rw.root, "memories") {
				if err := rw.watcher.Add(evt.Name); err != nil {
					rw.logger.Printf("notify: watch %s: %v", evt.Name, err)
				}
			}
			return
		}
	}

	if !strings.HasSuffix(evt.Name, ".md") {
		return
	}
	if rw.isSuppressed(evt.Name) {
		return
	}

	change, ok := rw.classify(evt.Name)
	if !ok {
		return
	}
	rw.schedule(change)
}

// classify maps a file path to the record it holds.
func (rw *RecordWatcher) classify(path string) (Change, bool) {
	rel, err := filepath.Rel(rw.root, path)
	if err != nil {
		return Change{}, false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	base := strings.TrimSuffix(parts[len(parts)-1], ".md")
	switch {
	case len(parts) == 3 && parts[0] == "memories":
		return Change{Kind: KindMemory, Project: parts[1], ID: base, Path: path}, true
	case len(parts) == 2 && parts[0] == "tasks":
		return Change{Kind: KindTask, Project: base, Path: path}, true
	default:
		return Change{}, false
	}
}

// schedule debounces per path, firing the callback once the writes settle.
func (rw *RecordWatcher) schedule(change Change) {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if t, ok := rw.pending[change.Path]; ok {
		t.Reset(rw.debounce)
		return
	}
	rw.pending[change.Path] = time.AfterFunc(rw.debounce, func() {
		rw.mu.Lock()
		delete(rw.pending, change.Path)
		rw.mu.Unlock()
		if rw.callback != nil {
			rw.callback(change)
		}
	})
}
