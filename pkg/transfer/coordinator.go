package transfer

import (
	"context"
	"log/slog"
)

// Coordinator converts requests owned by a background transfer Service into
// single-settlement pending results. It is the public entry point of the
// adapter layer: one Attach call yields exactly one of result, cancellation
// or fault, never more.
type Coordinator struct {
	svc    Service
	logger *slog.Logger
}

func NewCoordinator(svc Service, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{svc: svc, logger: logger}
}

// Attach wires relays onto req's notification streams and returns the
// pending terminal outcome. sink may be nil; when provided it receives zero
// or more progress snapshots, all strictly before the result resolves.
//
// Canceling ctx before settlement asks the service to remove the request and
// then settles the result as canceled; if a terminal notification wins the
// race instead, the cancellation is a silent no-op. Attach itself never
// fails synchronously.
func (c *Coordinator) Attach(ctx context.Context, req *Request, sink ProgressFunc) *Pending {
	slot := NewSlot()

	var prog *progressRelay
	if sink != nil {
		prog = newProgressRelay(req, slot, sink, c.logger)
	}

	comp := newCompletionRelay(req, slot, func() {
		if prog != nil {
			prog.Detach()
		}
	}, c.logger)

	comp.bind(c.svc)
	if prog != nil {
		prog.bind(c.svc)
	}

	if ctx != nil && ctx.Done() != nil {
		go c.watchCancel(ctx, req, slot, comp, prog)
	}

	return slot.Pending()
}

// watchCancel is the cancellation writer racing the completion relay for the
// slot. It runs until either side settles.
func (c *Coordinator) watchCancel(ctx context.Context, req *Request, slot *Slot, comp *completionRelay, prog *progressRelay) {
	select {
	case <-slot.done:
		return
	case <-ctx.Done():
	}
	if !slot.Settled() {
		// Removal first, then settlement, so a caller resuming on the
		// canceled result cannot observe the request still queued.
		if err := c.svc.Remove(context.WithoutCancel(ctx), req); err != nil {
			c.logger.Warn("remove on cancel failed", "request_id", req.ID, "error", err)
		}
		slot.SetCanceled()
	}
	comp.detach()
	if prog != nil {
		prog.Detach()
	}
}
