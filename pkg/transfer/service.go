package transfer

import "context"

// Kind classifies a transfer request.
type Kind int

const (
	KindUpload Kind = iota
	KindDownload
)

func (k Kind) String() string {
	switch k {
	case KindUpload:
		return "upload"
	case KindDownload:
		return "download"
	default:
		return "unknown"
	}
}

// Status is the lifecycle state of a transfer request as reported by the
// owning service.
type Status int

const (
	StatusQueued Status = iota
	StatusRunning
	StatusRetrying
	StatusCompleted
	StatusFailed
	StatusCanceled
)

// Terminal reports whether no further status transitions can follow.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	switch s {
	case StatusQueued:
		return "queued"
	case StatusRunning:
		return "running"
	case StatusRetrying:
		return "retrying"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Request is an opaque handle to one transfer owned by a Service. The
// adapter layer only observes it; it never drives the request's lifecycle
// beyond asking the service to remove it on cancellation. Callers are
// responsible for handing in upload-kind requests only.
type Request struct {
	ID   string
	Kind Kind
	Name string
	Size int64
}

// StatusEvent is one status-changed notification for a request.
type StatusEvent struct {
	RequestID  string
	Status     Status
	BytesSent  int64
	TotalBytes int64
	Location   string // where the payload landed, on success
	ErrCode    string
	ErrMessage string
}

// ProgressEvent is one progress-changed notification for a request.
type ProgressEvent struct {
	RequestID  string
	BytesSent  int64
	TotalBytes int64
}

// Subscription is a handle to an active notification subscription.
// Cancel detaches it; canceling more than once is a no-op.
type Subscription interface {
	Cancel()
}

// SubscriptionFunc adapts a detach closure into a Subscription.
type SubscriptionFunc func()

func (f SubscriptionFunc) Cancel() {
	if f != nil {
		f()
	}
}

// Service is the boundary to the background transfer service. Notifications
// are delivered from the service's own execution context; implementations
// must tolerate Subscribe/Cancel racing with in-flight deliveries.
type Service interface {
	// Lookup resolves a request ID to its handle.
	Lookup(id string) (*Request, bool)
	// Remove aborts the request and drops it from the service. Removing a
	// request that already reached a terminal state is a no-op.
	Remove(ctx context.Context, req *Request) error
	// SubscribeStatus registers fn for status-changed notifications of req.
	SubscribeStatus(req *Request, fn func(StatusEvent)) Subscription
	// SubscribeProgress registers fn for progress-changed notifications of req.
	SubscribeProgress(req *Request, fn func(ProgressEvent)) Subscription
}

// ProgressFunc receives progress snapshots. Calls are fire-and-forget; the
// sink must not block for long since it runs on the delivery path.
type ProgressFunc func(Progress)
