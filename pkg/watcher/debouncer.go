package watcher

import (
	"sync"
	"time"

	"github.com/halcyonlabs/vecstore/pkg/vlog"
)

// Op identifies the kind of filesystem change a debounced event collapses
// down to.
type Op int

const (
	OpCreate Op = iota
	OpModify
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// Event is one coalesced, debounced filesystem change ready to drive a
// reindex decision.
type Event struct {
	Path      string
	Op        Op
	Timestamp time.Time
}

// debouncer coalesces rapid per-path events within a fixed window
// (default 1000ms) before emitting them, following the coalescing rules
// of a create/modify/delete automaton: CREATE+MODIFY=CREATE,
// CREATE+DELETE=nothing, MODIFY+DELETE=DELETE, DELETE+CREATE=MODIFY.
type debouncer struct {
	window  time.Duration
	mu      sync.Mutex
	pending map[string]Op
	timers  map[string]*time.Timer
	emit    func(Event)
	logger  vlog.Logger
	stopped bool
}

func newDebouncer(window time.Duration, logger vlog.Logger, emit func(Event)) *debouncer {
	if logger == nil {
		logger = vlog.Nop()
	}
	return &debouncer{
		window:  window,
		pending: make(map[string]Op),
		timers:  make(map[string]*time.Timer),
		emit:    emit,
		logger:  logger,
	}
}

func coalesce(existing, incoming Op) (Op, bool) {
	switch existing {
	case OpCreate:
		switch incoming {
		case OpModify:
			return OpCreate, true
		case OpDelete:
			return 0, false
		default:
			return incoming, true
		}
	case OpModify:
		if incoming == OpDelete {
			return OpDelete, true
		}
		return incoming, true
	case OpDelete:
		if incoming == OpCreate {
			return OpModify, true
		}
		return incoming, true
	default:
		return incoming, true
	}
}

// Add records a raw event for path, coalescing it with whatever is still
// pending and (re)scheduling the debounce timer.
func (d *debouncer) Add(path string, op Op) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	if existing, ok := d.pending[path]; ok {
		merged, keep := coalesce(existing, op)
		if !keep {
			delete(d.pending, path)
			if t, ok := d.timers[path]; ok {
				t.Stop()
				delete(d.timers, path)
			}
			return
		}
		d.pending[path] = merged
	} else {
		d.pending[path] = op
	}

	if t, ok := d.timers[path]; ok {
		t.Stop()
	}
	d.timers[path] = time.AfterFunc(d.window, func() { d.flush(path) })
}

func (d *debouncer) flush(path string) {
	d.mu.Lock()
	op, ok := d.pending[path]
	if ok {
		delete(d.pending, path)
		delete(d.timers, path)
	}
	d.mu.Unlock()
	if !ok {
		return
	}
	d.emit(Event{Path: path, Op: op, Timestamp: time.Now()})
}

// Stop cancels every pending timer without flushing.
func (d *debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.stopped = true
	for _, t := range d.timers {
		t.Stop()
	}
	d.pending = nil
	d.timers = nil
}
