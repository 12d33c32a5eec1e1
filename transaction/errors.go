package transaction

import (
	"errors"
	"fmt"
)

// ErrTimeout resolves a transaction whose response never arrived within
// the configured deadline.
var ErrTimeout = errors.New("transaction: timed out waiting for response")

// ErrCancelled resolves every outstanding transaction when the node
// shuts down.
var ErrCancelled = errors.New("transaction: cancelled")

// ErrIDSpaceExhausted is returned by Register in the vanishingly rare
// case where no free transaction id could be allocated.
var ErrIDSpaceExhausted = errors.New("transaction: could not allocate a free transaction id")

// RemoteError wraps a KRPC error reply ('y'='e': [code, message]).
type RemoteError struct {
	Code    int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error %d: %s", e.Code, e.Message)
}
