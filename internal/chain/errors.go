package chain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNonceExpired means the nonce was consumed by another transaction.
	ErrNonceExpired = errors.New("chain: nonce expired")
	// ErrReplacementUnderpriced means a pending transaction holds the nonce
	// with a higher fee.
	ErrReplacementUnderpriced = errors.New("chain: replacement transaction underpriced")
	// ErrTxReverted means the transaction was mined with a failed status.
	ErrTxReverted = errors.New("chain: transaction reverted")
	// ErrTxPending means the transaction was broadcast but no receipt was
	// seen before the wait ended. It may still be mined.
	ErrTxPending = errors.New("chain: transaction pending")
)

// TxPendingError carries the hash of a broadcast transaction whose receipt
// did not arrive in time. It matches ErrTxPending.
type TxPendingError struct {
	TxHash string
	Err    error
}

func (e *TxPendingError) Error() string {
	return fmt.Sprintf("chain: transaction %s pending: %v", e.TxHash, e.Err)
}

func (e *TxPendingError) Is(target error) bool { return target == ErrTxPending }

func (e *TxPendingError) Unwrap() error { return e.Err }

// Node messages and client error codes that indicate a nonce conflict.
var (
	nonceExpiredMarkers = []string{
		"nonce too low",
		"nonce expired",
		"nonce_expired",
		"invalid nonce",
	}
	underpricedMarkers = []string{
		"replacement transaction underpriced",
		"replacement_underpriced",
		"replacement fee too low",
	}
)

// Classify wraps err with ErrNonceExpired or ErrReplacementUnderpriced when
// it reports a nonce conflict. Other errors, and errors already carrying one
// of the sentinels, are returned unchanged.
func Classify(err error) error {
	if err == nil || IsNonceConflict(err) {
		return err
	}
	msg := strings.ToLower(err.Error())
	for _, m := range underpricedMarkers {
		if strings.Contains(msg, m) {
			return fmt.Errorf("%w: %v", ErrReplacementUnderpriced, err)
		}
	}
	for _, m := range nonceExpiredMarkers {
		if strings.Contains(msg, m) {
			return fmt.Errorf("%w: %v", ErrNonceExpired, err)
		}
	}
	return err
}

// IsNonceConflict reports whether err is a retryable nonce conflict.
func IsNonceConflict(err error) bool {
	return errors.Is(err, ErrNonceExpired) || errors.Is(err, ErrReplacementUnderpriced)
}
