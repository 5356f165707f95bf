package autosave

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

type fakeTimer struct {
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// fakeClock fires callbacks synchronously from Advance.
type fakeClock struct {
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	t := &fakeTimer{at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) {
	target := c.now.Add(d)
	for {
		var next *fakeTimer
		for _, t := range c.timers {
			if t.stopped || t.fired || t.at.After(target) {
				continue
			}
			if next == nil || t.at.Before(next.at) {
				next = t
			}
		}
		if next == nil {
			break
		}
		c.now = next.at
		next.fired = true
		next.f()
	}
	c.now = target
}

func (c *fakeClock) pending() int {
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type fakeSource struct {
	snap     Snapshot
	prepared int
}

func (s *fakeSource) Capture() Snapshot { return s.snap }

func (s *fakeSource) Prepare() Snapshot {
	s.prepared++
	return s.snap
}

type fakePersister struct {
	mu       sync.Mutex
	requests []Request
	results  []error
	version  int64
	during   func()
}

func (p *fakePersister) Save(_ context.Context, req Request) (*Response, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	var err error
	if len(p.results) > 0 {
		err, p.results = p.results[0], p.results[1:]
	}
	during := p.during
	p.during = nil
	p.mu.Unlock()

	if during != nil {
		during()
	}
	if err != nil {
		return nil, err
	}
	p.version = req.Version + 1
	return &Response{Version: p.version, Modified: time.Now()}, nil
}

func (p *fakePersister) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

type fixture struct {
	clock     *fakeClock
	src       *fakeSource
	persister *fakePersister
	mgr       *Manager
	statuses  []Status
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		clock:     newFakeClock(),
		src:       &fakeSource{snap: Snapshot{Markup: "<p>a</p>", Title: "t"}},
		persister: &fakePersister{},
	}
	f.mgr = NewManager(DefaultConfig(), f.src, f.persister, f.clock, zaptest.NewLogger(t))
	f.mgr.OnStatus(func(s Status) { f.statuses = append(f.statuses, s) })
	f.mgr.Reset(f.src.snap, 3)
	t.Cleanup(f.mgr.Close)
	return f
}

func (f *fixture) edit(markup string) {
	f.src.snap.Markup = markup
	f.mgr.ScheduleSave()
}

func TestDebounce(t *testing.T) {
	f := newFixture(t)

	f.edit("<p>ab</p>")
	f.clock.Advance(time.Second)
	f.edit("<p>abc</p>")
	f.clock.Advance(1500 * time.Millisecond)
	if f.persister.calls() != 0 {
		t.Fatalf("saved before idle delay elapsed")
	}
	if f.mgr.Status() != StatusUnsaved {
		t.Fatalf("expected unsaved, got %s", f.mgr.Status())
	}

	f.clock.Advance(600 * time.Millisecond)
	if f.persister.calls() != 1 {
		t.Fatalf("expected single save, got %d", f.persister.calls())
	}
	req := f.persister.requests[0]
	if req.Version != 3 || req.Markup != "<p>abc</p>" || req.Title != "t" {
		t.Fatalf("unexpected request %+v", req)
	}
	if f.mgr.Status() != StatusSaved || f.mgr.Version() != 4 {
		t.Fatalf("unexpected state %s/%d", f.mgr.Status(), f.mgr.Version())
	}
	if f.clock.pending() != 0 {
		t.Fatalf("timers left after completed save: %d", f.clock.pending())
	}
	want := []Status{StatusUnsaved, StatusSaving, StatusSaved}
	if !slices.Equal(f.statuses, want) {
		t.Fatalf("unexpected status sequence %v", f.statuses)
	}
}

func TestCeiling(t *testing.T) {
	f := newFixture(t)

	for i := range 31 {
		f.edit("<p>" + string(rune('a'+i%26)) + "</p>")
		f.clock.Advance(time.Second)
		if i < 29 && f.persister.calls() != 0 {
			t.Fatalf("saved too early at %ds", i+1)
		}
	}
	if f.persister.calls() != 1 {
		t.Fatalf("expected ceiling save, got %d", f.persister.calls())
	}
}

func TestCleanChangeArmsNothing(t *testing.T) {
	f := newFixture(t)

	f.mgr.ScheduleSave()
	if f.clock.pending() != 0 || f.mgr.Status() != StatusSaved {
		t.Fatalf("clean state must not arm timers")
	}

	// edit and revert before idle delay
	f.edit("<p>x</p>")
	f.edit("<p>a</p>")
	if f.mgr.Status() != StatusSaved {
		t.Fatalf("reverted edit must report saved, got %s", f.mgr.Status())
	}
	f.clock.Advance(time.Minute)
	if f.persister.calls() != 0 {
		t.Fatalf("nothing to save, got %d requests", f.persister.calls())
	}
	if err := f.mgr.SaveNow(context.Background()); err != nil || f.persister.calls() != 0 {
		t.Fatalf("save now on clean state must be a no-op: %v", err)
	}
}

func TestMetadataChangeIsDirty(t *testing.T) {
	f := newFixture(t)

	f.src.snap.Reference = "img-1"
	f.mgr.ScheduleSave()
	if f.mgr.Status() != StatusUnsaved {
		t.Fatalf("reference change must be unsaved")
	}
	if err := f.mgr.SaveNow(context.Background()); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if f.persister.requests[0].Reference != "img-1" || f.src.prepared != 1 {
		t.Fatalf("unexpected request %+v", f.persister.requests[0])
	}
}

func TestConflictKeepsVersion(t *testing.T) {
	f := newFixture(t)
	f.persister.results = []error{&ConflictError{Markup: "<p>theirs</p>", Version: 7}}

	f.edit("<p>mine</p>")
	err := f.mgr.SaveNow(context.Background())
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if f.mgr.Version() != 3 || f.mgr.Status() != StatusUnsaved {
		t.Fatalf("conflict must keep version and unsaved state: %d/%s", f.mgr.Version(), f.mgr.Status())
	}
	c, ok := f.mgr.Conflict()
	if !ok || c.Version != 7 || c.Markup != "<p>theirs</p>" {
		t.Fatalf("conflict not exposed: %+v", c)
	}

	// no silent retries while conflict is pending
	f.edit("<p>mine, more</p>")
	f.clock.Advance(time.Minute)
	if f.persister.calls() != 1 || f.clock.pending() != 0 {
		t.Fatalf("automatic save attempted during conflict")
	}
	if err := f.mgr.SaveNow(context.Background()); !errors.As(err, &conflict) || f.persister.calls() != 1 {
		t.Fatalf("explicit save must not bypass conflict: %v", err)
	}

	if err := f.mgr.ResolveConflict(context.Background(), c.Version); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	last := f.persister.requests[len(f.persister.requests)-1]
	if last.Version != 7 || last.Markup != "<p>mine, more</p>" {
		t.Fatalf("unexpected resolution request %+v", last)
	}
	if f.mgr.Version() != 8 || f.mgr.Status() != StatusSaved {
		t.Fatalf("unexpected state after resolution %d/%s", f.mgr.Version(), f.mgr.Status())
	}
	if _, ok := f.mgr.Conflict(); ok {
		t.Fatalf("conflict still pending")
	}
}

func TestTransientRetries(t *testing.T) {
	f := newFixture(t)
	fail := &TransientError{StatusCode: 503, Err: errors.New("unavailable")}
	f.persister.results = []error{fail, fail, fail, fail}

	f.edit("<p>b</p>")
	f.clock.Advance(2 * time.Second)
	if f.persister.calls() != 1 || f.mgr.Status() != StatusUnsaved {
		t.Fatalf("expected first attempt, got %d/%s", f.persister.calls(), f.mgr.Status())
	}

	for i, delay := range []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second} {
		f.clock.Advance(delay - time.Millisecond)
		if f.persister.calls() != i+1 {
			t.Fatalf("retry %d fired early", i+1)
		}
		f.clock.Advance(time.Millisecond)
		if f.persister.calls() != i+2 {
			t.Fatalf("retry %d did not fire after %s", i+1, delay)
		}
	}
	if f.mgr.Status() != StatusError || f.mgr.Err() == nil {
		t.Fatalf("expected error state, got %s", f.mgr.Status())
	}
	if f.mgr.Version() != 3 {
		t.Fatalf("failed saves changed version")
	}

	// error is sticky until retried explicitly
	f.edit("<p>bc</p>")
	f.clock.Advance(time.Minute)
	if f.persister.calls() != 4 || f.mgr.Status() != StatusError {
		t.Fatalf("error state must not schedule saves")
	}

	if err := f.mgr.Retry(context.Background()); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if f.mgr.Status() != StatusSaved || f.mgr.Version() != 4 || f.mgr.Err() != nil {
		t.Fatalf("unexpected state after retry %s/%d", f.mgr.Status(), f.mgr.Version())
	}
}

func TestCeilingDuringBackoff(t *testing.T) {
	f := newFixture(t)
	fail := &TransientError{StatusCode: 502, Err: errors.New("bad gateway")}
	f.persister.results = []error{fail, fail, fail}

	// ceiling armed at 0s, idle save fails at 29s
	for i := range 28 {
		f.edit("<p>" + string(rune('b'+i%20)) + "</p>")
		f.clock.Advance(time.Second)
	}
	f.clock.Advance(time.Second)
	if f.persister.calls() != 1 {
		t.Fatalf("expected idle save at 29s, got %d", f.persister.calls())
	}

	f.clock.Advance(1500 * time.Millisecond)
	if f.persister.calls() != 1 {
		t.Fatalf("ceiling interrupted backoff: %d requests at 30.5s", f.persister.calls())
	}
	f.clock.Advance(500 * time.Millisecond)
	if f.persister.calls() != 2 {
		t.Fatalf("first retry must fire 2s after failure, got %d", f.persister.calls())
	}
	f.clock.Advance(4*time.Second - time.Millisecond)
	if f.persister.calls() != 2 {
		t.Fatalf("second retry fired early")
	}
	f.clock.Advance(time.Millisecond)
	if f.persister.calls() != 3 {
		t.Fatalf("second retry must fire 4s after first one, got %d", f.persister.calls())
	}
}

func TestGenericFailure(t *testing.T) {
	f := newFixture(t)
	f.persister.results = []error{errors.New("malformed response")}

	f.edit("<p>b</p>")
	f.clock.Advance(2 * time.Second)
	if f.mgr.Status() != StatusError || f.persister.calls() != 1 || f.clock.pending() != 0 {
		t.Fatalf("generic failure must not retry: %s/%d", f.mgr.Status(), f.persister.calls())
	}
}

func TestChangesDuringRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.persister.during = func() {
		f.edit("<p>typed while saving</p>")
	}

	f.edit("<p>b</p>")
	if err := f.mgr.SaveNow(context.Background()); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if f.mgr.Status() != StatusUnsaved || f.mgr.Acknowledged().Markup != "<p>b</p>" {
		t.Fatalf("round trip changes lost: %s %+v", f.mgr.Status(), f.mgr.Acknowledged())
	}

	f.clock.Advance(2 * time.Second)
	if f.persister.calls() != 2 || f.persister.requests[1].Version != 4 {
		t.Fatalf("follow-up save missing: %+v", f.persister.requests)
	}
	if f.mgr.Status() != StatusSaved {
		t.Fatalf("unexpected status %s", f.mgr.Status())
	}
}

func TestClose(t *testing.T) {
	f := newFixture(t)
	f.edit("<p>b</p>")
	f.mgr.Close()
	f.clock.Advance(time.Minute)
	if f.persister.calls() != 0 {
		t.Fatalf("closed manager saved")
	}
	if err := f.mgr.SaveNow(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
