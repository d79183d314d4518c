package watcher

import (
	"sync"
	"testing"
	"time"
)

func TestCoalesce(t *testing.T) {
	cases := []struct {
		existing, incoming Op
		want                Op
		keep                bool
	}{
		{OpCreate, OpModify, OpCreate, true},
		{OpCreate, OpDelete, 0, false},
		{OpModify, OpDelete, OpDelete, true},
		{OpDelete, OpCreate, OpModify, true},
		{OpModify, OpModify, OpModify, true},
	}
	for _, c := range cases {
		got, keep := coalesce(c.existing, c.incoming)
		if keep != c.keep || (keep && got != c.want) {
			t.Errorf("coalesce(%v, %v) = %v, %v; want %v, %v", c.existing, c.incoming, got, keep, c.want, c.keep)
		}
	}
}

func TestDebouncerEmitsAfterWindow(t *testing.T) {
	var mu sync.Mutex
	var events []Event
	d := newDebouncer(20*time.Millisecond, nil, func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})
	defer d.Stop()

	d.Add("/ws/a.md", OpCreate)
	d.Add("/ws/a.md", OpModify)

	time.Sleep(80 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 1 {
		t.Fatalf("expected exactly one coalesced event, got %d", len(events))
	}
	if events[0].Op != OpCreate {
		t.Errorf("expected coalesced CREATE+MODIFY=CREATE, got %v", events[0].Op)
	}
}

func TestDebouncerCreateThenDeleteDropsEvent(t *testing.T) {
	var mu sync.Mutex
	var events []Event
	d := newDebouncer(20*time.Millisecond, nil, func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})
	defer d.Stop()

	d.Add("/ws/a.md", OpCreate)
	d.Add("/ws/a.md", OpDelete)

	time.Sleep(80 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 0 {
		t.Fatalf("expected CREATE+DELETE to cancel out, got %d events", len(events))
	}
}

func TestDebouncerStopSuppressesFurtherEvents(t *testing.T) {
	fired := false
	d := newDebouncer(10*time.Millisecond, nil, func(Event) { fired = true })
	d.Add("/ws/a.md", OpCreate)
	d.Stop()
	time.Sleep(40 * time.Millisecond)
	if fired {
		t.Error("expected no event after Stop")
	}
	d.Add("/ws/b.md", OpCreate) // must not panic on a stopped debouncer
}
