package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/halcyonlabs/vecstore/pkg/collection"
	"github.com/halcyonlabs/vecstore/pkg/embedding"
	"github.com/halcyonlabs/vecstore/pkg/fileindex"
	"github.com/halcyonlabs/vecstore/pkg/textnorm"
	"github.com/halcyonlabs/vecstore/pkg/verrors"
	"github.com/halcyonlabs/vecstore/pkg/vlog"
)

// Config configures a Loader: the workspace roots to walk, the three
// mandatory exclusion layers, collection routing, and
// chunking defaults.
type Config struct {
	Roots             []string
	DataDirectory     string
	ExcludePatterns   []string
	IncludePatterns   map[string][]string // collection -> include globs
	CollectionMapping map[string]string   // glob -> collection
	DefaultCollection string
	MaxChunkSize      int
	ChunkOverlap      int
	Logger            vlog.Logger
}

// CollectionSource resolves a collection by name, used instead of
// depending on the vecstore facade directly (ingest sits below it in the
// dependency order).
type CollectionSource func(name string) (*collection.Collection, error)

// Loader discovers workspace files, chunks them, embeds each chunk with
// its collection's embedding provider, and inserts the resulting vectors
// — skipping unchanged files via content-hash comparison against the
// shared file-descriptor index.
type Loader struct {
	cfg       Config
	index     *fileindex.Index
	providers *embedding.Manager
	source    CollectionSource
	logger    vlog.Logger
}

// New builds a Loader.
func New(cfg Config, idx *fileindex.Index, providers *embedding.Manager, source CollectionSource) *Loader {
	if cfg.MaxChunkSize <= 0 {
		cfg.MaxChunkSize = DefaultMaxChunkSize
	}
	if cfg.ChunkOverlap <= 0 {
		cfg.ChunkOverlap = DefaultOverlap
	}
	if cfg.DefaultCollection == "" {
		cfg.DefaultCollection = "workspace-default"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = vlog.Nop()
	}
	return &Loader{cfg: cfg, index: idx, providers: providers, source: source, logger: logger}
}

func (l *Loader) exclusions() fileindex.ExclusionConfig {
	return fileindex.ExclusionConfig{DataDirectory: l.cfg.DataDirectory, ExcludePatterns: l.cfg.ExcludePatterns}
}

// routeCollection applies the routing precedence: (1) already
// tracked in the file index, (2) explicit collection_mapping, (3)
// per-collection include patterns, (4) default_collection. Path-derived
// collection names are never synthesized.
func (l *Loader) routeCollection(ctx context.Context, path string) (string, error) {
	if tracked, ok, err := l.index.FindCollectionFor(ctx, path); err != nil {
		return "", err
	} else if ok {
		return tracked, nil
	}
	for pattern, collectionName := range l.cfg.CollectionMapping {
		if fileindex.MatchesAny([]string{pattern}, path) {
			return collectionName, nil
		}
	}
	var names []string
	for name := range l.cfg.IncludePatterns {
		names = append(names, name)
	}
	sort.Strings(names) // deterministic when multiple collections could match
	for _, name := range names {
		if fileindex.MatchesAny(l.cfg.IncludePatterns[name], path) {
			return name, nil
		}
	}
	return l.cfg.DefaultCollection, nil
}

func hashContent(content string) string {
	normalized := textnorm.Normalize(content)
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// Discover walks the configured roots and returns every file path not
// excluded by the three mandatory safety layers.
func (l *Loader) Discover(ctx context.Context) ([]string, error) {
	excl := l.exclusions()
	var out []string
	for _, root := range l.cfg.Roots {
		err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				if fileindex.IsExcluded(excl, p) {
					return filepath.SkipDir
				}
				return nil
			}
			if fileindex.IsExcluded(excl, p) {
				return nil
			}
			out = append(out, p)
			return nil
		})
		if err != nil {
			return nil, verrors.Resource("ingest.discover", fmt.Errorf("walk %s: %w", root, err))
		}
	}
	return out, nil
}

// Result summarizes what LoadFile did for one path.
type Result struct {
	Path          string
	Collection    string
	ChunksInserted int
	Skipped       bool
	Deleted       bool
}

// LoadFile chunks, embeds, and inserts a single file, comparing its
// content hash to the tracked descriptor first (the incremental
// reindex): unchanged files are skipped, changed files have their
// existing vectors deleted and re-inserted, missing files have their
// vectors deleted.
func (l *Loader) LoadFile(ctx context.Context, path string) (Result, error) {
	collectionName, err := l.routeCollection(ctx, path)
	if err != nil {
		return Result{}, err
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return l.handleMissingFile(ctx, path, collectionName)
	}
	if err != nil {
		return Result{}, verrors.Resource("ingest.load_file", err)
	}

	content := textnorm.Normalize(string(data))
	hash := hashContent(content)

	existing, err := l.index.Get(ctx, path, collectionName)
	if err != nil {
		return Result{}, err
	}
	if existing != nil && existing.ContentHash == hash {
		return Result{Path: path, Collection: collectionName, Skipped: true}, nil
	}

	coll, err := l.source(collectionName)
	if err != nil {
		return Result{}, err
	}

	if existing != nil {
		if _, err := coll.DeleteByFilePath(path); err != nil {
			return Result{}, err
		}
	}

	provider, err := l.providers.Get(coll.Config().EmbeddingProvider)
	if err != nil {
		provider, err = l.providers.Default()
		if err != nil {
			return Result{}, err
		}
	}

	chunks := ChunkText(content, coll.Config().MaxChunkSize, coll.Config().ChunkOverlap)
	for _, chunk := range chunks {
		vec, err := provider.Embed(ctx, chunk.Text)
		if err != nil {
			return Result{}, err
		}
		payload := map[string]any{
			"file_path":    path,
			"chunk_index":  chunk.Ordinal,
			"extension":    filepath.Ext(path),
			"text":         chunk.Text,
			"start_offset": chunk.Start,
			"end_offset":   chunk.End,
		}
		if chunk.Page != nil {
			payload["page"] = *chunk.Page
		}
		id := uuid.NewString()
		if err := coll.Insert(id, vec, payload); err != nil {
			return Result{}, err
		}
	}

	if err := l.index.Upsert(ctx, fileindex.Descriptor{
		Path:        path,
		Collection:  collectionName,
		ContentHash: hash,
		LastSeen:    time.Now(),
		ChunkCount:  len(chunks),
	}); err != nil {
		return Result{}, err
	}

	return Result{Path: path, Collection: collectionName, ChunksInserted: len(chunks)}, nil
}

func (l *Loader) handleMissingFile(ctx context.Context, path, collectionName string) (Result, error) {
	coll, err := l.source(collectionName)
	if err != nil {
		return Result{}, err
	}
	if _, err := coll.DeleteByFilePath(path); err != nil {
		return Result{}, err
	}
	if err := l.index.Delete(ctx, path, collectionName); err != nil {
		return Result{}, err
	}
	return Result{Path: path, Collection: collectionName, Deleted: true}, nil
}

// LoadWorkspace discovers every file under the configured roots and loads
// each of them, then prunes descriptors for files the index still tracks
// but that no longer exist on disk. Re-running on an unchanged workspace
// performs zero insertions (the content-hash idempotence law).
func (l *Loader) LoadWorkspace(ctx context.Context) ([]Result, error) {
	paths, err := l.Discover(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(paths))
	results := make([]Result, 0, len(paths))
	for _, p := range paths {
		seen[p] = struct{}{}
		r, err := l.LoadFile(ctx, p)
		if err != nil {
			l.logger.Warn("load file failed", "path", p, "err", err)
			continue
		}
		results = append(results, r)
	}

	collections := make(map[string]struct{})
	for name := range l.cfg.IncludePatterns {
		collections[name] = struct{}{}
	}
	for _, c := range l.cfg.CollectionMapping {
		collections[c] = struct{}{}
	}
	collections[l.cfg.DefaultCollection] = struct{}{}
	for collectionName := range collections {
		descriptors, err := l.index.ListForCollection(ctx, collectionName)
		if err != nil {
			continue
		}
		for _, d := range descriptors {
			if _, ok := seen[d.Path]; ok {
				continue
			}
			if r, err := l.handleMissingFile(ctx, d.Path, collectionName); err == nil {
				results = append(results, r)
			}
		}
	}

	return results, nil
}
