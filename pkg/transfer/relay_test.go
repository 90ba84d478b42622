package transfer

import (
	"testing"
)

func TestProgressRelayDetachIdempotent(t *testing.T) {
	svc := newFakeService()
	req := uploadRequest()
	slot := NewSlot()

	var collector progressCollector
	relay := newProgressRelay(req, slot, collector.sink, testLogger())
	relay.bind(svc)

	relay.Detach()
	relay.Detach()

	if _, p := svc.subCounts(); p != 0 {
		t.Fatalf("expected progress subscription gone, got %d", p)
	}

	svc.emitProgress(ProgressEvent{RequestID: req.ID, BytesSent: 10, TotalBytes: 100})
	if calls := collector.snapshot(); len(calls) != 0 {
		t.Errorf("sink called %d times after detach", len(calls))
	}
}

func TestProgressRelaySuppressedAfterSettlement(t *testing.T) {
	svc := newFakeService()
	req := uploadRequest()
	slot := NewSlot()

	var collector progressCollector
	relay := newProgressRelay(req, slot, collector.sink, testLogger())
	relay.bind(svc)

	slot.SetResult(Result{RequestID: req.ID, Status: StatusCompleted})

	// Subscription still live, but the settled slot suppresses delivery.
	svc.emitProgress(ProgressEvent{RequestID: req.ID, BytesSent: 99, TotalBytes: 100})
	if calls := collector.snapshot(); len(calls) != 0 {
		t.Errorf("sink called %d times after settlement", len(calls))
	}
}

func TestProgressRelayBindAfterDetach(t *testing.T) {
	svc := newFakeService()
	req := uploadRequest()

	var collector progressCollector
	relay := newProgressRelay(req, NewSlot(), collector.sink, testLogger())

	// Detach racing ahead of bind must still leave no live subscription.
	relay.Detach()
	relay.bind(svc)

	if _, p := svc.subCounts(); p != 0 {
		t.Fatalf("expected no live subscription, got %d", p)
	}
}

func TestCompletionRelaySettlesOnFirstTerminal(t *testing.T) {
	svc := newFakeService()
	req := uploadRequest()
	slot := NewSlot()

	completed := 0
	relay := newCompletionRelay(req, slot, func() { completed++ }, testLogger())
	relay.bind(svc)

	svc.emitStatus(StatusEvent{RequestID: req.ID, Status: StatusRunning})
	if slot.Settled() {
		t.Fatal("non-terminal status settled the slot")
	}

	svc.emitStatus(StatusEvent{RequestID: req.ID, Status: StatusCompleted, BytesSent: 100})

	res, err := slot.Pending().Result()
	if err != nil || res.Status != StatusCompleted {
		t.Fatalf("unexpected outcome: %v %v", res, err)
	}
	if completed != 1 {
		t.Errorf("completed signal fired %d times, want 1", completed)
	}
	if s, _ := svc.subCounts(); s != 0 {
		t.Errorf("status subscription still live after terminal")
	}
}

func TestCompletionRelayDuplicateTerminalNotifications(t *testing.T) {
	svc := newFakeService()
	req := uploadRequest()
	slot := NewSlot()

	completed := 0
	relay := newCompletionRelay(req, slot, func() { completed++ }, testLogger())
	relay.bind(svc)

	// Re-register the callback so a second delivery is possible even though
	// the relay unsubscribed after the first.
	fn := func(ev StatusEvent) { relay.onStatus(ev) }
	svc.SubscribeStatus(req, fn)

	svc.emitStatus(StatusEvent{RequestID: req.ID, Status: StatusCompleted, BytesSent: 100})
	svc.emitStatus(StatusEvent{RequestID: req.ID, Status: StatusFailed, ErrCode: "late"})

	res, err := slot.Pending().Result()
	if err != nil || res.Status != StatusCompleted {
		t.Fatalf("first terminal did not stick: %v %v", res, err)
	}
	if completed != 1 {
		t.Errorf("completed signal fired %d times, want 1", completed)
	}
}

func TestCompletionRelayLosesRaceStillSignals(t *testing.T) {
	svc := newFakeService()
	req := uploadRequest()
	slot := NewSlot()

	// A racing cancellation settled the slot first.
	slot.SetCanceled()

	completed := 0
	relay := newCompletionRelay(req, slot, func() { completed++ }, testLogger())
	relay.bind(svc)

	svc.emitStatus(StatusEvent{RequestID: req.ID, Status: StatusCompleted, BytesSent: 100})

	// The settlement attempt lost, but the relay still signals completion
	// and still detaches so the progress relay gets cleaned up.
	if completed != 1 {
		t.Errorf("completed signal fired %d times, want 1", completed)
	}
	if s, _ := svc.subCounts(); s != 0 {
		t.Errorf("status subscription still live after losing the race")
	}
	if _, err := slot.Pending().Result(); err != ErrCanceled {
		t.Errorf("winner overwritten: %v", err)
	}
}
