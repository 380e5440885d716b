package deploy

import (
	"context"
	"errors"
	"fmt"

	"github.com/streme-fun/streme-bot/internal/chain"
)

// ErrNoSigners is returned when a queue is built without keys.
var ErrNoSigners = errors.New("deploy: no signer keys configured")

// SignerQueue owns the signing keys. A key is leased to one deployment at a
// time for its whole submit and confirm loop, so each key has at most one
// transaction in flight. Leases are handed out in FIFO order, which cycles
// through the keys round-robin.
type SignerQueue struct {
	ch    chan *chain.Signer
	total int
}

// NewSignerQueue parses hex private keys into a queue.
func NewSignerQueue(keys []string) (*SignerQueue, error) {
	signers := make([]*chain.Signer, 0, len(keys))
	for i, k := range keys {
		s, err := chain.NewSigner(k)
		if err != nil {
			return nil, fmt.Errorf("deploy: signer %d: %w", i, err)
		}
		signers = append(signers, s)
	}
	return NewSignerQueueFrom(signers...)
}

// NewSignerQueueFrom builds a queue from parsed signers.
func NewSignerQueueFrom(signers ...*chain.Signer) (*SignerQueue, error) {
	if len(signers) == 0 {
		return nil, ErrNoSigners
	}
	q := &SignerQueue{ch: make(chan *chain.Signer, len(signers)), total: len(signers)}
	for _, s := range signers {
		q.ch <- s
	}
	return q, nil
}

// Acquire leases a signer, waiting until one is free or ctx is done.
func (q *SignerQueue) Acquire(ctx context.Context) (*chain.Signer, error) {
	select {
	case s := <-q.ch:
		return s, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("deploy: acquire signer: %w", ctx.Err())
	}
}

// Release returns a leased signer to the back of the queue.
func (q *SignerQueue) Release(s *chain.Signer) {
	q.ch <- s
}

// Available returns the number of signers not leased.
func (q *SignerQueue) Available() int {
	return len(q.ch)
}

// Size returns the number of signers owned by the queue.
func (q *SignerQueue) Size() int {
	return q.total
}
