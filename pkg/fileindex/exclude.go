package fileindex

import (
	"path/filepath"
	"strings"
)

// storageSuffixes are file suffixes that belong to vecstore's own
// on-disk format; ingest and the watcher must never read them back in as
// documents, no matter what the caller's include patterns say.
var storageSuffixes = []string{".vecdb", "_metadata.json", "_tokenizer.json", ".bin"}

// ExclusionConfig bundles the three mandatory safety layers: configured
// exclude patterns, the data directory itself, and storage-format
// suffixes. All three are enforced unconditionally; no configuration can
// bypass them.
type ExclusionConfig struct {
	DataDirectory   string
	ExcludePatterns []string
}

// IsExcluded reports whether path must never be read as ingest content.
func IsExcluded(cfg ExclusionConfig, path string) bool {
	if isUnderDataDirectory(cfg.DataDirectory, path) {
		return true
	}
	if hasStorageSuffix(path) {
		return true
	}
	for _, pattern := range cfg.ExcludePatterns {
		if matched, _ := filepath.Match(pattern, path); matched {
			return true
		}
		if matched, _ := filepath.Match(pattern, filepath.Base(path)); matched {
			return true
		}
	}
	return false
}

func isUnderDataDirectory(dataDir, path string) bool {
	if dataDir == "" {
		return false
	}
	absData, err := filepath.Abs(dataDir)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absData, absPath)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && rel != "")
}

func hasStorageSuffix(path string) bool {
	base := filepath.Base(path)
	for _, suffix := range storageSuffixes {
		if strings.HasSuffix(base, suffix) {
			return true
		}
	}
	return false
}

// MatchesAny reports whether path (or its base name) matches any of the
// given glob patterns, used for include-pattern and collection_mapping
// evaluation.
func MatchesAny(patterns []string, path string) bool {
	for _, pattern := range patterns {
		if matched, _ := filepath.Match(pattern, path); matched {
			return true
		}
		if matched, _ := filepath.Match(pattern, filepath.Base(path)); matched {
			return true
		}
	}
	return false
}
