package deploy

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// State is the lifecycle state of one deployment.
type State string

const (
	StatePending          State = "PENDING"
	StateAddressPredicted State = "ADDRESS_PREDICTED"
	StateSubmitting       State = "SUBMITTING"
	StateRetryableFailure State = "RETRYABLE_FAILURE"
	StateSucceeded        State = "SUCCEEDED"
	StateUnconfirmed      State = "UNCONFIRMED"
	StateFatalFailure     State = "FATAL_FAILURE"
)

// Event triggers a state transition.
type Event string

const (
	EventPredicted     Event = "PREDICTED"
	EventSubmit        Event = "SUBMIT"
	EventConfirmed     Event = "CONFIRMED"
	EventUnconfirmed   Event = "UNCONFIRMED"
	EventNonceConflict Event = "NONCE_CONFLICT"
	EventRetry         Event = "RETRY"
	EventFail          Event = "FAIL"
)

type transition struct {
	from  State
	event Event
}

// transitions is the authoritative transition table. Every valid
// (currentState, event) pair maps to exactly one target state.
var transitions = map[transition]State{
	{StatePending, EventPredicted}:        StateAddressPredicted,
	{StatePending, EventFail}:             StateFatalFailure,
	{StateAddressPredicted, EventSubmit}:  StateSubmitting,
	{StateAddressPredicted, EventFail}:    StateFatalFailure,
	{StateSubmitting, EventConfirmed}:     StateSucceeded,
	{StateSubmitting, EventUnconfirmed}:   StateUnconfirmed,
	{StateSubmitting, EventNonceConflict}: StateRetryableFailure,
	{StateSubmitting, EventFail}:          StateFatalFailure,
	{StateRetryableFailure, EventRetry}:   StateSubmitting,
	{StateRetryableFailure, EventFail}:    StateFatalFailure,
}

// Deployment tracks one token deployment through the state machine. It is
// safe for concurrent reads while the orchestrator drives it.
type Deployment struct {
	mu sync.Mutex

	CastHash    string
	Symbol      string
	State       State
	Attempts    int
	Predicted   string
	TxHash      string
	BlockNumber uint64
	CreatedAt   time.Time
	CompletedAt time.Time
}

// NewDeployment creates a deployment in the PENDING state.
func NewDeployment(castHash, symbol string) *Deployment {
	return &Deployment{
		CastHash:  castHash,
		Symbol:    symbol,
		State:     StatePending,
		CreatedAt: time.Now(),
	}
}

// Transition advances the deployment. EventSubmit counts an attempt.
func (d *Deployment) Transition(event Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	prev := d.State
	next, ok := transitions[transition{from: d.State, event: event}]
	if !ok {
		return fmt.Errorf("invalid transition: state=%s event=%s", d.State, event)
	}

	if event == EventSubmit || event == EventRetry {
		d.Attempts++
	}
	d.State = next
	if d.isTerminalLocked() {
		d.CompletedAt = time.Now()
	}

	log.Info().
		Str("cast_hash", d.CastHash).
		Str("symbol", d.Symbol).
		Str("prev_state", string(prev)).
		Str("event", string(event)).
		Str("new_state", string(next)).
		Int("attempt", d.Attempts).
		Msg("deployment state transition")
	return nil
}

// IsTerminal reports whether the deployment reached a final state. An
// unconfirmed deployment is final for the orchestrator; its transaction may
// still be mined.
func (d *Deployment) IsTerminal() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.isTerminalLocked()
}

func (d *Deployment) isTerminalLocked() bool {
	return d.State == StateSucceeded || d.State == StateFatalFailure || d.State == StateUnconfirmed
}

// GetState returns the current state.
func (d *Deployment) GetState() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.State
}

// GetAttempts returns how many submissions were made.
func (d *Deployment) GetAttempts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Attempts
}
