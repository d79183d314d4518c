// Package persistence implements the atomic, gzip-compressed, checksummed
// on-disk format a collection is saved to and restored from:
// one `<name>.vecdb` file, an optional `<name>.vocab.json` sidecar owned by
// the embedding layer, and hourly `<name>.<timestamp>.vecdb` snapshots under
// a `snapshots/` subdirectory.
package persistence

import (
	"bytes"
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/halcyonlabs/vecstore/pkg/collection"
	"github.com/halcyonlabs/vecstore/pkg/verrors"
)

func init() {
	gob.Register(map[string]interface{}{})
	gob.Register([]interface{}{})
	gob.Register(string(""))
	gob.Register(float64(0))
	gob.Register(int(0))
	gob.Register(int64(0))
	gob.Register(bool(false))
}

// Magic identifies a vecdb file; FormatVersion is refused by readers that
// don't understand it (non-destructive: the file is left intact).
const (
	Magic         = "VDB1"
	FormatVersion = 1
)

// Header is the part of a vecdb file describing how to reconstruct the
// owning collection before its snapshot body is even decoded.
type Header struct {
	Magic             string
	FormatVersion     int
	CollectionName    string
	Dimension         int
	Metric            string
	QuantizationMode  string
	EmbeddingProvider string
	VectorCount       int64
	CreatedAt         time.Time
	ModifiedAt        time.Time
}

// fileBody is the full gob-encoded payload, checksummed and gzip-wrapped.
type fileBody struct {
	Header   Header
	Snapshot collection.Snapshot
}

func vecdbPath(dir, name string) string { return filepath.Join(dir, name+".vecdb") }

// Save atomically writes c's full state to <dir>/<name>.vecdb: write to a
// `.tmp` sibling, fsync, keep the previous file as a `.bak` until the
// rename succeeds, restore the backup on any failure. Refuses to overwrite
// a non-empty on-disk file with an empty in-memory collection
// (RefuseToOverwriteNonEmpty safety block, no override).
func Save(dir string, c *collection.Collection) error {
	name := c.Name()
	path := vecdbPath(dir, name)

	if err := checkOverwriteSafety(path, c); err != nil {
		return err
	}

	snap, err := c.ExportSnapshot()
	if err != nil {
		return err
	}
	cfg := c.Config()
	stats := c.Stats()
	body := fileBody{
		Header: Header{
			Magic:             Magic,
			FormatVersion:     FormatVersion,
			CollectionName:    name,
			Dimension:         cfg.Dimension,
			Metric:            string(cfg.Metric),
			QuantizationMode:  string(cfg.QuantizationMode),
			EmbeddingProvider: cfg.EmbeddingProvider,
			VectorCount:       stats.VectorCount,
			CreatedAt:         stats.CreatedAt,
			ModifiedAt:        stats.ModifiedAt,
		},
		Snapshot: *snap,
	}

	return writeAtomic(path, body)
}

// checkOverwriteSafety enforces the hard safety block: an empty in-memory
// collection may never clobber a non-empty on-disk file.
func checkOverwriteSafety(path string, c *collection.Collection) error {
	info, err := os.Stat(path)
	if err != nil {
		return nil // nothing on disk yet, nothing to protect
	}
	if info.Size() == 0 {
		return nil
	}
	if !c.IsEmpty() {
		return nil
	}
	existing, err := readHeader(path)
	if err != nil {
		// can't parse what's there; be conservative and refuse anyway.
		return verrors.SafetyBlock("persistence.save", verrors.ErrRefuseOverwriteNonEmpty)
	}
	if existing.VectorCount > 0 {
		return verrors.SafetyBlock("persistence.save", verrors.ErrRefuseOverwriteNonEmpty)
	}
	return nil
}

func writeAtomic(path string, body fileBody) error {
	var raw bytes.Buffer
	if err := gob.NewEncoder(&raw).Encode(&body); err != nil {
		return verrors.Integrity("persistence.save", fmt.Errorf("encode: %w", err))
	}
	checksum := crc32.ChecksumIEEE(raw.Bytes())

	tmpPath := path + ".tmp"
	tmpFile, err := os.Create(tmpPath)
	if err != nil {
		return verrors.Resource("persistence.save", fmt.Errorf("create tmp: %w", err))
	}

	gz := gzip.NewWriter(tmpFile)
	writeErr := func() error {
		var checksumBuf [4]byte
		putUint32(checksumBuf[:], checksum)
		if _, err := gz.Write(checksumBuf[:]); err != nil {
			return err
		}
		if _, err := gz.Write(raw.Bytes()); err != nil {
			return err
		}
		return nil
	}()

	if closeErr := gz.Close(); writeErr == nil {
		writeErr = closeErr
	}
	if syncErr := tmpFile.Sync(); writeErr == nil {
		writeErr = syncErr
	}
	_ = tmpFile.Close()

	if writeErr != nil {
		_ = os.Remove(tmpPath)
		return verrors.Resource("persistence.save", fmt.Errorf("write: %w", writeErr))
	}

	backupPath := path + ".bak"
	hadExisting := false
	if _, err := os.Stat(path); err == nil {
		hadExisting = true
		if err := os.Rename(path, backupPath); err != nil {
			_ = os.Remove(tmpPath)
			return verrors.Resource("persistence.save", fmt.Errorf("backup existing: %w", err))
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		if hadExisting {
			_ = os.Rename(backupPath, path) // restore on failed rename
		}
		_ = os.Remove(tmpPath)
		return verrors.Resource("persistence.save", fmt.Errorf("rename: %w", err))
	}

	if hadExisting {
		_ = os.Remove(backupPath)
	}
	return nil
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func getUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// readBody decompresses and checksum-verifies a vecdb file, returning its
// decoded body.
func readBody(path string) (*fileBody, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, verrors.NotFound("persistence.load", fmt.Errorf("open: %w", err))
	}
	defer func() { _ = f.Close() }()

	r, err := detectReader(f)
	if err != nil {
		return nil, verrors.Integrity("persistence.load", err)
	}

	all, err := io.ReadAll(r)
	if err != nil {
		return nil, verrors.Integrity("persistence.load", fmt.Errorf("read: %w", err))
	}
	if len(all) < 4 {
		return nil, verrors.Integrity("persistence.load", verrors.ErrCorruptPayload)
	}
	wantChecksum := getUint32(all[:4])
	raw := all[4:]
	if crc32.ChecksumIEEE(raw) != wantChecksum {
		return nil, verrors.Integrity("persistence.load", verrors.ErrChecksumMismatch)
	}

	var body fileBody
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&body); err != nil {
		return nil, verrors.Integrity("persistence.load", fmt.Errorf("decode: %w", err))
	}
	if body.Header.Magic != Magic {
		return nil, verrors.Integrity("persistence.load", verrors.ErrCorruptPayload)
	}
	if body.Header.FormatVersion > FormatVersion {
		return nil, verrors.Integrity("persistence.load", verrors.ErrFormatVersionUnsupported)
	}
	return &body, nil
}

// detectReader auto-detects gzip compression by magic bytes, falling back
// to a plain reader for legacy uncompressed files.
func detectReader(f *os.File) (io.Reader, error) {
	magic := make([]byte, 2)
	n, err := io.ReadFull(f, magic)
	if _, seekErr := f.Seek(0, io.SeekStart); seekErr != nil {
		return nil, seekErr
	}
	if err != nil && n < 2 {
		return f, nil
	}
	if magic[0] == 0x1f && magic[1] == 0x8b {
		return gzip.NewReader(f)
	}
	return f, nil
}

// readHeader reads only the header of a vecdb file, for overwrite-safety
// checks and catalog listings without paying the full decode cost... in
// practice the body is still decoded since the format has no separate
// header section on disk; callers needing only metadata pay the same cost
// as a full Load.
func readHeader(path string) (*Header, error) {
	body, err := readBody(path)
	if err != nil {
		return nil, err
	}
	return &body.Header, nil
}

// Load reads <dir>/<name>.vecdb and restores it into a freshly constructed
// collection built from cfg (which must match the persisted dimension,
// metric, and quantization mode).
func Load(dir, name string, cfg collection.Config) (*collection.Collection, error) {
	path := vecdbPath(dir, name)
	body, err := readBody(path)
	if err != nil {
		return nil, err
	}

	cfg.Name = name
	c, err := collection.New(cfg)
	if err != nil {
		return nil, err
	}
	if err := c.RestoreSnapshot(&body.Snapshot); err != nil {
		return nil, err
	}
	return c, nil
}

// Exists reports whether a vecdb file is present for name in dir.
func Exists(dir, name string) bool {
	_, err := os.Stat(vecdbPath(dir, name))
	return err == nil
}

// HeaderFor returns the header of an existing vecdb file, used by the
// store facade to derive a collection's config before loading it. Like
// readHeader, it decodes the whole file body to get there.
func HeaderFor(dir, name string) (*Header, error) {
	return readHeader(vecdbPath(dir, name))
}

// Snapshot copies the current vecdb file into snapshots/<name>.<UTC
// timestamp>.vecdb, used by the hourly snapshot rotation.
// Snapshots are plain file copies: the vecdb is already compressed and
// checksummed, so no re-encoding is needed.
func Snapshot(dir, name string, at time.Time) error {
	src := vecdbPath(dir, name)
	if _, err := os.Stat(src); err != nil {
		return verrors.NotFound("persistence.snapshot", fmt.Errorf("no vecdb for %q: %w", name, err))
	}

	snapDir := filepath.Join(dir, "snapshots")
	if err := os.MkdirAll(snapDir, 0o755); err != nil {
		return verrors.Resource("persistence.snapshot", err)
	}

	dstName := fmt.Sprintf("%s.%s.vecdb", name, at.UTC().Format("20060102T150405Z"))
	dst := filepath.Join(snapDir, dstName)

	data, err := os.ReadFile(src)
	if err != nil {
		return verrors.Resource("persistence.snapshot", err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return verrors.Resource("persistence.snapshot", err)
	}
	return nil
}

// PruneSnapshots deletes snapshot files for name older than retention,
// relative to now. Snapshots are read-only and never modified, only
// deleted once stale (48-hour default retention).
func PruneSnapshots(dir, name string, retention time.Duration, now time.Time) (int, error) {
	snapDir := filepath.Join(dir, "snapshots")
	entries, err := os.ReadDir(snapDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, verrors.Resource("persistence.prune_snapshots", err)
	}

	prefix := name + "."
	cutoff := now.Add(-retention)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) || !strings.HasSuffix(e.Name(), ".vecdb") {
			continue
		}
		ts := strings.TrimSuffix(strings.TrimPrefix(e.Name(), prefix), ".vecdb")
		stamp, err := time.Parse("20060102T150405Z", ts)
		if err != nil {
			continue
		}
		if stamp.Before(cutoff) {
			if err := os.Remove(filepath.Join(snapDir, e.Name())); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}

// ListSnapshots returns the snapshot file names for name, oldest first.
func ListSnapshots(dir, name string) ([]string, error) {
	snapDir := filepath.Join(dir, "snapshots")
	entries, err := os.ReadDir(snapDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, verrors.Resource("persistence.list_snapshots", err)
	}
	prefix := name + "."
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), prefix) && strings.HasSuffix(e.Name(), ".vecdb") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
