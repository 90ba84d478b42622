package transfer

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// fakeService is an in-test Service that lets tests drive notification
// delivery by hand and inspect subscription bookkeeping.
type fakeService struct {
	mu           sync.Mutex
	removed      []string
	removeErr    error
	nextSub      int
	statusSubs   map[int]func(StatusEvent)
	progressSubs map[int]func(ProgressEvent)
}

func newFakeService() *fakeService {
	return &fakeService{
		statusSubs:   make(map[int]func(StatusEvent)),
		progressSubs: make(map[int]func(ProgressEvent)),
	}
}

func (f *fakeService) Lookup(id string) (*Request, bool) {
	return nil, false
}

func (f *fakeService) Remove(ctx context.Context, req *Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, req.ID)
	return f.removeErr
}

func (f *fakeService) SubscribeStatus(req *Request, fn func(StatusEvent)) Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextSub
	f.nextSub++
	f.statusSubs[id] = fn
	return SubscriptionFunc(func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.statusSubs, id)
	})
}

func (f *fakeService) SubscribeProgress(req *Request, fn func(ProgressEvent)) Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextSub
	f.nextSub++
	f.progressSubs[id] = fn
	return SubscriptionFunc(func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.progressSubs, id)
	})
}

func (f *fakeService) emitStatus(ev StatusEvent) {
	f.mu.Lock()
	subs := make([]func(StatusEvent), 0, len(f.statusSubs))
	for _, fn := range f.statusSubs {
		subs = append(subs, fn)
	}
	f.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}

func (f *fakeService) emitProgress(ev ProgressEvent) {
	f.mu.Lock()
	subs := make([]func(ProgressEvent), 0, len(f.progressSubs))
	for _, fn := range f.progressSubs {
		subs = append(subs, fn)
	}
	f.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}

func (f *fakeService) subCounts() (status, progress int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.statusSubs), len(f.progressSubs)
}

func (f *fakeService) removedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.removed))
	copy(out, f.removed)
	return out
}

// waitForDetach polls until both subscription maps drain or the deadline hits.
func waitForDetach(t *testing.T, f *fakeService) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s, p := f.subCounts()
		if s == 0 && p == 0 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	s, p := f.subCounts()
	t.Fatalf("subscriptions not detached: status=%d progress=%d", s, p)
}

// progressCollector is a mutex-guarded sink for test assertions.
type progressCollector struct {
	mu    sync.Mutex
	calls []Progress
}

func (c *progressCollector) sink(p Progress) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, p)
}

func (c *progressCollector) snapshot() []Progress {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Progress, len(c.calls))
	copy(out, c.calls)
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
