package transfer

import (
	"errors"
	"fmt"
)

// ErrCanceled is the settlement outcome of a canceled transfer, whether the
// caller requested it or the service reported a canceled terminal status.
var ErrCanceled = errors.New("transfer canceled")

// ErrNotSettled is returned by Pending.Result before settlement.
var ErrNotSettled = errors.New("transfer not settled")

// Fault is a terminal failure reported by the transfer service, translated
// into the adapter's error taxonomy.
type Fault struct {
	Code    string
	Message string
}

func (f *Fault) Error() string {
	if f.Message == "" {
		return fmt.Sprintf("transfer fault: %s", f.Code)
	}
	return fmt.Sprintf("transfer fault %s: %s", f.Code, f.Message)
}
