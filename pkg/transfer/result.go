package transfer

import (
	"context"
	"sync/atomic"
)

// Result is the single terminal outcome of a transfer request.
type Result struct {
	RequestID string
	Status    Status
	BytesSent int64
	Location  string
}

// Progress is a point-in-time snapshot of a request's transferred bytes.
// Zero or more Progress values are observed, all strictly before the Result.
type Progress struct {
	RequestID  string
	BytesSent  int64
	TotalBytes int64
}

// Fraction returns completion in [0, 1], or 0 when the total is unknown.
func (p Progress) Fraction() float64 {
	if p.TotalBytes <= 0 {
		return 0
	}
	f := float64(p.BytesSent) / float64(p.TotalBytes)
	if f > 1 {
		f = 1
	}
	return f
}

// Slot is a single-assignment result cell. Settlement attempts race on an
// atomic flag: exactly one of SetResult, SetCanceled and SetFault wins, all
// later attempts are no-ops. The winner publishes its value by closing the
// done channel, so readers that observe the close also observe the value.
type Slot struct {
	won  atomic.Bool
	done chan struct{}
	res  Result
	err  error
}

func NewSlot() *Slot {
	return &Slot{done: make(chan struct{})}
}

// settle is the one check-and-set; everything funnels through it.
func (s *Slot) settle(res Result, err error) bool {
	if !s.won.CompareAndSwap(false, true) {
		return false
	}
	s.res = res
	s.err = err
	close(s.done)
	return true
}

// SetResult settles the slot with a successful outcome.
// It reports whether this attempt won.
func (s *Slot) SetResult(res Result) bool {
	return s.settle(res, nil)
}

// SetCanceled settles the slot as canceled.
func (s *Slot) SetCanceled() bool {
	return s.settle(Result{}, ErrCanceled)
}

// SetFault settles the slot with a failure.
func (s *Slot) SetFault(err error) bool {
	if err == nil {
		err = &Fault{Code: "unknown"}
	}
	return s.settle(Result{}, err)
}

// Settled reports whether some settlement attempt has already won. The
// settled value may not be visible yet; wait on Pending.Done to read it.
func (s *Slot) Settled() bool {
	return s.won.Load()
}

// Pending returns the caller-facing view of the slot.
func (s *Slot) Pending() *Pending {
	return &Pending{slot: s}
}

// Pending is the single-consumer future half of a Slot. It resolves to
// exactly one of: a Result, ErrCanceled, or a fault.
type Pending struct {
	slot *Slot
}

// Done returns a channel that is closed once the outcome is available.
func (p *Pending) Done() <-chan struct{} {
	return p.slot.done
}

// Result returns the settled outcome, or ErrNotSettled if the slot has not
// settled yet.
func (p *Pending) Result() (Result, error) {
	select {
	case <-p.slot.done:
		return p.slot.res, p.slot.err
	default:
		return Result{}, ErrNotSettled
	}
}

// Wait blocks until settlement or until ctx is done, whichever comes first.
// A ctx error abandons the wait only; the transfer itself keeps running.
func (p *Pending) Wait(ctx context.Context) (Result, error) {
	select {
	case <-p.slot.done:
		return p.slot.res, p.slot.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}
