package vecstore

import (
	"context"

	"github.com/halcyonlabs/vecstore/pkg/fileindex"
	"github.com/halcyonlabs/vecstore/pkg/ingest"
	"github.com/halcyonlabs/vecstore/pkg/verrors"
	"github.com/halcyonlabs/vecstore/pkg/watcher"
)

// StartWatching begins observing ws.Roots for changes and drives
// incremental reindex through the same Loader LoadWorkspace uses. Only
// one watcher may run at a time; calling it again while one is active
// returns Conflict.
func (s *VectorStore) StartWatching(ctx context.Context, ws WorkspaceConfig) error {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if s.watcherStop != nil {
		return verrors.Conflict("vecstore.start_watching", verrors.ErrWatcherAlreadyRunning)
	}

	loader := ingest.New(s.loaderConfig(ws), s.fileIdx, s.providers, s.collectionSource())

	defaultCollection := ws.DefaultCollection
	if defaultCollection == "" {
		defaultCollection = s.cfg.DefaultCollection
	}
	wcfg := watcher.Config{
		Roots: ws.Roots,
		Exclusions: fileindex.ExclusionConfig{
			DataDirectory:   s.cfg.DataDirectory,
			ExcludePatterns: append(append([]string{}, s.cfg.ExcludePatterns...), ws.ExcludePatterns...),
		},
		DebounceMs:        s.cfg.DebounceMs,
		CollectionMapping: ws.CollectionMapping,
		DefaultCollection: defaultCollection,
		Logger:            s.logger,
	}

	w := watcher.New(wcfg, s.fileIdx, func(ctx context.Context, path, _ string, _ bool) error {
		_, err := loader.LoadFile(ctx, path)
		return err
	})

	if err := w.Start(ctx); err != nil {
		return err
	}
	s.watcherStop = w.Stop
	return nil
}

// StopWatching halts the active watcher, if any. Safe to call when no
// watcher is running.
func (s *VectorStore) StopWatching() {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if s.watcherStop == nil {
		return
	}
	s.watcherStop()
	s.watcherStop = nil
}
