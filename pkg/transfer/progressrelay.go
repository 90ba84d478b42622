package transfer

import (
	"log/slog"
	"sync"
)

// progressRelay forwards progress notifications of one request to the
// caller's sink. The sink is invoked synchronously on the delivery path.
// Once detached, or once the slot has settled, further notifications are
// dropped; a notification observed after settlement is an invariant breach
// on the service side and is logged rather than propagated.
type progressRelay struct {
	req    *Request
	slot   *Slot
	sink   ProgressFunc
	logger *slog.Logger

	mu       sync.Mutex
	sub      Subscription
	detached bool
}

func newProgressRelay(req *Request, slot *Slot, sink ProgressFunc, logger *slog.Logger) *progressRelay {
	return &progressRelay{
		req:    req,
		slot:   slot,
		sink:   sink,
		logger: logger,
	}
}

func (r *progressRelay) bind(svc Service) {
	sub := svc.SubscribeProgress(r.req, r.onProgress)
	r.mu.Lock()
	r.sub = sub
	detached := r.detached
	r.mu.Unlock()
	if detached {
		sub.Cancel()
	}
}

func (r *progressRelay) onProgress(ev ProgressEvent) {
	r.mu.Lock()
	detached := r.detached
	r.mu.Unlock()
	if detached {
		return
	}
	if r.slot.Settled() {
		r.logger.Debug("progress after terminal settlement dropped",
			"request_id", r.req.ID, "bytes_sent", ev.BytesSent)
		return
	}
	r.sink(Progress{
		RequestID:  ev.RequestID,
		BytesSent:  ev.BytesSent,
		TotalBytes: ev.TotalBytes,
	})
}

// Detach cancels the progress subscription. Idempotent; safe to call both
// from the completion path and from an explicit teardown.
func (r *progressRelay) Detach() {
	r.mu.Lock()
	if r.detached {
		r.mu.Unlock()
		return
	}
	r.detached = true
	sub := r.sub
	r.mu.Unlock()
	if sub != nil {
		sub.Cancel()
	}
}
