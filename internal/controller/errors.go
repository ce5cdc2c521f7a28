package controller

import (
	"errors"
	"fmt"
)

// ErrNoMessage indicates a framing or I/O failure made the in-flight
// message unrecoverable; the caller should treat this message as dropped
// and move on, it is never fatal to the dispatch loop.
var ErrNoMessage = errors.New("controller: no message")

// ErrUnknown indicates a radio message failed cryptographic verification.
var ErrUnknown = errors.New("controller: verification failed")

// DropError wraps one of the sentinels above with the reason a
// particular message was dropped, the way the teacher's SWError attaches
// a status word to a bare command failure. ReadMsg constructs one at the
// short-read sites, where the underlying channel error is worth keeping;
// the cheaper drops (self-echo, oversize, unregistered, verification
// failure) stay bare sentinels and rely on diag.Drop for the detail.
type DropError struct {
	Reason string
	Err    error
}

func (e *DropError) Error() string {
	return fmt.Sprintf("controller: dropped message: %s: %v", e.Reason, e.Err)
}

func (e *DropError) Unwrap() error { return e.Err }
