// Package verrors defines the structured error taxonomy shared by every
// vecstore component: validation, not-found, conflict, state, integrity,
// resource and safety-block errors, all wrapping a common Error type.
package verrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error into the taxonomy used throughout vecstore.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindState
	KindIntegrity
	KindResource
	KindSafetyBlock
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindState:
		return "state"
	case KindIntegrity:
		return "integrity"
	case KindResource:
		return "resource"
	case KindSafetyBlock:
		return "safety_block"
	default:
		return "unknown"
	}
}

// Error is the structured error value returned across the vecstore public
// surface. It carries the operation that failed, a taxonomy kind, the
// wrapped cause and optional contextual fields (expected/actual dimension,
// offending path, and so on).
type Error struct {
	Op     string
	Kind   Kind
	Err    error
	Fields map[string]any
}

func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v %v", e.Op, e.Kind, e.Err, e.Fields)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match on the wrapped sentinel.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// Wrap builds a structured Error for op/kind wrapping err, attaching fields.
func Wrap(op string, kind Kind, err error, fields map[string]any) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Kind: kind, Err: err, Fields: fields}
}

// Sentinel causes, matched via errors.Is against the wrapped Err.
var (
	ErrDimensionMismatch    = errors.New("dimension mismatch")
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrEmptyInput           = errors.New("empty input")
	ErrPatternInvalid       = errors.New("invalid pattern")

	ErrCollectionNotFound = errors.New("collection not found")
	ErrVectorNotFound     = errors.New("vector not found")
	ErrFileNotFound       = errors.New("file not found")

	ErrCollectionAlreadyExists = errors.New("collection already exists")
	ErrVectorAlreadyExists     = errors.New("vector already exists")

	ErrNotFitted         = errors.New("embedding provider not fitted")
	ErrIndexNotReady     = errors.New("index not ready")
	ErrSnapshotInProgress = errors.New("snapshot in progress")

	ErrChecksumMismatch        = errors.New("checksum mismatch")
	ErrFormatVersionUnsupported = errors.New("unsupported format version")
	ErrCorruptPayload          = errors.New("corrupt payload")

	ErrOutOfMemory    = errors.New("out of memory")
	ErrIO             = errors.New("io error")
	ErrQuotaExceeded  = errors.New("quota exceeded")

	ErrRefuseOverwriteNonEmpty = errors.New("refusing to overwrite non-empty collection on disk with an empty one")
	ErrRefuseIndexStorageFile  = errors.New("refusing to index a storage-format file")

	ErrWatcherAlreadyRunning = errors.New("file watcher already running")
)

// helpers, one per taxonomy kind.

func Validation(op string, err error) error   { return Wrap(op, KindValidation, err, nil) }
func NotFound(op string, err error) error     { return Wrap(op, KindNotFound, err, nil) }
func Conflict(op string, err error) error     { return Wrap(op, KindConflict, err, nil) }
func State(op string, err error) error        { return Wrap(op, KindState, err, nil) }
func Integrity(op string, err error) error    { return Wrap(op, KindIntegrity, err, nil) }
func Resource(op string, err error) error     { return Wrap(op, KindResource, err, nil) }
func SafetyBlock(op string, err error) error  { return Wrap(op, KindSafetyBlock, err, nil) }

// WithFields attaches contextual fields to an already-wrapped Error, or
// wraps err fresh under KindUnknown if it isn't one of ours.
func WithFields(err error, fields map[string]any) error {
	var e *Error
	if errors.As(err, &e) {
		if e.Fields == nil {
			e.Fields = fields
		} else {
			for k, v := range fields {
				e.Fields[k] = v
			}
		}
		return e
	}
	return &Error{Kind: KindUnknown, Err: err, Fields: fields}
}
