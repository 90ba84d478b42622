package transfer

import (
	"log/slog"
	"sync"
)

// completionRelay watches the status stream of one request and settles the
// slot on the first terminal status it observes. Non-terminal statuses are
// ignored. The relay detaches itself from the stream after the terminal
// transition, and fires onCompleted exactly once so the coordinator can tear
// down the progress relay before the caller sees the outcome.
type completionRelay struct {
	req         *Request
	slot        *Slot
	onCompleted func()
	logger      *slog.Logger

	terminalOnce sync.Once

	mu       sync.Mutex
	sub      Subscription
	detached bool
}

func newCompletionRelay(req *Request, slot *Slot, onCompleted func(), logger *slog.Logger) *completionRelay {
	return &completionRelay{
		req:         req,
		slot:        slot,
		onCompleted: onCompleted,
		logger:      logger,
	}
}

// bind subscribes the relay to svc's status stream. If detach raced ahead
// (the service delivered a terminal event during subscription), the fresh
// subscription is canceled immediately.
func (r *completionRelay) bind(svc Service) {
	sub := svc.SubscribeStatus(r.req, r.onStatus)
	r.mu.Lock()
	r.sub = sub
	detached := r.detached
	r.mu.Unlock()
	if detached {
		sub.Cancel()
	}
}

func (r *completionRelay) onStatus(ev StatusEvent) {
	if !ev.Status.Terminal() {
		return
	}
	r.terminalOnce.Do(func() {
		// Tear down progress delivery first so no sink call can trail the
		// settled result, regardless of which side won a cancellation race.
		if r.onCompleted != nil {
			r.onCompleted()
		}
		switch ev.Status {
		case StatusCompleted:
			r.slot.SetResult(Result{
				RequestID: r.req.ID,
				Status:    StatusCompleted,
				BytesSent: ev.BytesSent,
				Location:  ev.Location,
			})
		case StatusCanceled:
			r.slot.SetCanceled()
		default:
			code := ev.ErrCode
			if code == "" {
				code = "transfer_failed"
			}
			r.slot.SetFault(&Fault{Code: code, Message: ev.ErrMessage})
		}
		r.logger.Debug("transfer reached terminal status",
			"request_id", r.req.ID, "status", ev.Status.String())
	})
	r.detach()
}

// detach cancels the status subscription. Idempotent.
func (r *completionRelay) detach() {
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
