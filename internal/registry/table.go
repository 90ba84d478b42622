package registry

import (
	"sync"

	"github.com/bytehaul/bytehaul/pkg/transfer"
)

// Table is the bookkeeping every backend shares: it tracks the requests a
// service currently owns and fans their status and progress notifications
// out to subscribers. Callbacks are invoked outside the table lock, so a
// subscriber may cancel its own subscription from within a delivery.
type Table struct {
	mu      sync.Mutex
	entries map[string]*entry
	nextSub int
}

type entry struct {
	req          transfer.Request
	status       transfer.Status
	lastStatus   transfer.StatusEvent
	statusSubs   map[int]func(transfer.StatusEvent)
	progressSubs map[int]func(transfer.ProgressEvent)
}

func NewTable() *Table {
	return &Table{entries: make(map[string]*entry)}
}

// Add registers a request. Adding an ID twice replaces the old entry.
func (t *Table) Add(req *transfer.Request) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[req.ID] = &entry{
		req:          *req,
		status:       transfer.StatusQueued,
		statusSubs:   make(map[int]func(transfer.StatusEvent)),
		progressSubs: make(map[int]func(transfer.ProgressEvent)),
	}
}

// Lookup resolves a request ID to its handle.
func (t *Table) Lookup(id string) (*transfer.Request, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok {
		return nil, false
	}
	req := e.req
	return &req, true
}

// Status returns the last published status for a request.
func (t *Table) Status(id string) (transfer.Status, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok {
		return 0, false
	}
	return e.status, true
}

// Delete drops a request and all its subscriptions.
func (t *Table) Delete(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, id)
}

// SubscribeStatus registers fn for status notifications of req. The returned
// subscription's Cancel is idempotent. Subscribing to an unknown request
// yields a subscription that never fires. If the request already reached a
// terminal status, fn is replayed that status synchronously so a subscriber
// attaching after completion cannot miss the terminal transition.
func (t *Table) SubscribeStatus(req *transfer.Request, fn func(transfer.StatusEvent)) transfer.Subscription {
	t.mu.Lock()
	e, ok := t.entries[req.ID]
	if !ok {
		t.mu.Unlock()
		return transfer.SubscriptionFunc(func() {})
	}
	var replay *transfer.StatusEvent
	if e.status.Terminal() {
		ev := e.lastStatus
		replay = &ev
	}
	id := t.nextSub
	t.nextSub++
	e.statusSubs[id] = fn
	reqID := req.ID
	t.mu.Unlock()

	if replay != nil {
		fn(*replay)
	}
	return transfer.SubscriptionFunc(func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if e, ok := t.entries[reqID]; ok {
			delete(e.statusSubs, id)
		}
	})
}

// SubscribeProgress registers fn for progress notifications of req.
func (t *Table) SubscribeProgress(req *transfer.Request, fn func(transfer.ProgressEvent)) transfer.Subscription {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[req.ID]
	if !ok {
		return transfer.SubscriptionFunc(func() {})
	}
	id := t.nextSub
	t.nextSub++
	e.progressSubs[id] = fn
	reqID := req.ID
	return transfer.SubscriptionFunc(func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if e, ok := t.entries[reqID]; ok {
			delete(e.progressSubs, id)
		}
	})
}

// PublishStatus records the status and notifies subscribers. Once a request
// is terminal, further publishes for it are dropped, so duplicate terminal
// notifications from a backend cannot reach the relays.
func (t *Table) PublishStatus(ev transfer.StatusEvent) {
	t.mu.Lock()
	e, ok := t.entries[ev.RequestID]
	if !ok || e.status.Terminal() {
		t.mu.Unlock()
		return
	}
	e.status = ev.Status
	e.lastStatus = ev
	subs := make([]func(transfer.StatusEvent), 0, len(e.statusSubs))
	for _, fn := range e.statusSubs {
		subs = append(subs, fn)
	}
	t.mu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
}

// PublishProgress notifies progress subscribers. Progress for a request that
// already reached a terminal status is dropped.
func (t *Table) PublishProgress(ev transfer.ProgressEvent) {
	t.mu.Lock()
	e, ok := t.entries[ev.RequestID]
	if !ok || e.status.Terminal() {
		t.mu.Unlock()
		return
	}
	subs := make([]func(transfer.ProgressEvent), 0, len(e.progressSubs))
	for _, fn := range e.progressSubs {
		subs = append(subs, fn)
	}
	t.mu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
}
