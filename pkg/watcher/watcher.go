package watcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/halcyonlabs/vecstore/pkg/fileindex"
	"github.com/halcyonlabs/vecstore/pkg/textnorm"
	"github.com/halcyonlabs/vecstore/pkg/verrors"
	"github.com/halcyonlabs/vecstore/pkg/vlog"
)

// Config configures a Watcher: the roots to observe, the mandatory
// exclusion layers, the debounce window, and collection
// routing identical in shape and precedence to the DocumentLoader's.
type Config struct {
	Roots              []string
	Exclusions         fileindex.ExclusionConfig
	DebounceMs         int
	CollectionMapping  map[string]string // glob -> collection
	DefaultCollection  string
	Logger             vlog.Logger
}

// ReindexFunc is invoked once content-hash comparison confirms a file
// genuinely changed. changed is false for a pure delete.
type ReindexFunc func(ctx context.Context, path, collection string, changed bool) error

// Watcher observes disk changes under Config.Roots, debounces bursts per
// path, and calls Reindex only when the new content hash differs from the
// tracked one — avoiding redundant work on touch/save-without-change.
type Watcher struct {
	cfg     Config
	index   *fileindex.Index
	reindex ReindexFunc
	logger  vlog.Logger

	fsw       *fsnotify.Watcher
	debouncer *debouncer

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
}

// New builds a Watcher. idx is the shared file-descriptor index;
// reindex is called after debounce+hash-compare confirms real work exists.
func New(cfg Config, idx *fileindex.Index, reindex ReindexFunc) *Watcher {
	if cfg.DebounceMs <= 0 {
		cfg.DebounceMs = 1000
	}
	if cfg.DefaultCollection == "" {
		cfg.DefaultCollection = "workspace-default"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = vlog.Nop()
	}
	return &Watcher{cfg: cfg, index: idx, reindex: reindex, logger: logger}
}

// collectionFor resolves the target collection for path using the same
// precedence the loader uses, minus the file-index lookup (the watcher
// IS the file index's owner, so step 1 degenerates to "whatever it's
// already tracked under", resolved lazily at flush time instead).
func (w *Watcher) collectionFor(path string) string {
	for pattern, collection := range w.cfg.CollectionMapping {
		if fileindex.MatchesAny([]string{pattern}, path) {
			return collection
		}
	}
	return w.cfg.DefaultCollection
}

func hashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	normalized := textnorm.Normalize(string(data))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:]), nil
}

// Start begins watching. It blocks only long enough to register the
// initial directory tree; events are handled on an internal goroutine
// until Stop is called or ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return verrors.Resource("watcher.start", fmt.Errorf("fsnotify: %w", err))
	}
	w.fsw = fsw

	for _, root := range w.cfg.Roots {
		if err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				if fileindex.IsExcluded(w.cfg.Exclusions, p) {
					return filepath.SkipDir
				}
				return fsw.Add(p)
			}
			return nil
		}); err != nil {
			_ = fsw.Close()
			return verrors.Resource("watcher.start", fmt.Errorf("walk %s: %w", root, err))
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})

	w.debouncer = newDebouncer(time.Duration(w.cfg.DebounceMs)*time.Millisecond, w.logger, func(ev Event) {
		w.handleDebounced(runCtx, ev)
	})

	go w.loop(runCtx, fsw)
	w.logger.Info("file watcher started", "roots", len(w.cfg.Roots))
	return nil
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			if fileindex.IsExcluded(w.cfg.Exclusions, ev.Name) {
				continue
			}
			w.debouncer.Add(ev.Name, translateOp(ev.Op))
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "err", err)
		}
	}
}

func translateOp(op fsnotify.Op) Op {
	switch {
	case op&fsnotify.Remove != 0 || op&fsnotify.Rename != 0:
		return OpDelete
	case op&fsnotify.Create != 0:
		return OpCreate
	default:
		return OpModify
	}
}

func (w *Watcher) handleDebounced(ctx context.Context, ev Event) {
	collection, tracked, err := w.index.FindCollectionFor(ctx, ev.Path)
	if err != nil {
		w.logger.Warn("file index lookup failed", "path", ev.Path, "err", err)
		return
	}
	if !tracked {
		collection = w.collectionFor(ev.Path)
	}

	if ev.Op == OpDelete {
		if err := w.index.Delete(ctx, ev.Path, collection); err != nil {
			w.logger.Warn("delete descriptor failed", "path", ev.Path, "err", err)
		}
		if err := w.reindex(ctx, ev.Path, collection, false); err != nil {
			w.logger.Warn("reindex delete failed", "path", ev.Path, "err", err)
		}
		return
	}

	newHash, err := hashFile(ev.Path)
	if err != nil {
		w.logger.Warn("hash failed, skipping", "path", ev.Path, "err", err)
		return
	}
	existing, err := w.index.Get(ctx, ev.Path, collection)
	if err != nil {
		w.logger.Warn("descriptor lookup failed", "path", ev.Path, "err", err)
		return
	}
	if existing != nil && existing.ContentHash == newHash {
		return // touch/save-without-change: no redundant reindex
	}

	if err := w.reindex(ctx, ev.Path, collection, true); err != nil {
		w.logger.Warn("reindex failed", "path", ev.Path, "err", err)
	}
}

// Stop halts event processing. Safe to call multiple times.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel == nil {
		return
	}
	w.cancel()
	if w.debouncer != nil {
		w.debouncer.Stop()
	}
	if w.fsw != nil {
		_ = w.fsw.Close()
	}
	<-w.done
	w.cancel = nil
}
