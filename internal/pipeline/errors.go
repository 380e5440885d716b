package pipeline

import (
	"errors"

	"github.com/streme-fun/streme-bot/internal/gate"
	"github.com/streme-fun/streme-bot/internal/notify"
)

// Outcome aliases the reply taxonomy so callers need only this package.
type Outcome = notify.Outcome

// OutcomeFault marks an invocation that ended on an unexpected error. It has
// no reply.
const OutcomeFault Outcome = "fault"

// OutcomeUnconfirmed marks a deployment whose transaction was broadcast but
// not seen mined. It has no reply and the cast stays claimed.
const OutcomeUnconfirmed Outcome = "unconfirmed"

// Expected pipeline outcomes. They end an invocation early and are reported
// through Result.Cause, never as the returned error.
var (
	ErrUserIneligible        = gate.ErrUserIneligible
	ErrUserBanned            = gate.ErrUserBanned
	ErrDuplicateRequest      = gate.ErrDuplicateRequest
	ErrIntentNotFound        = errors.New("pipeline: token creation intent not found")
	ErrCreatorAddressMissing = errors.New("pipeline: creator address not found")
	ErrDeploymentFailed      = errors.New("pipeline: deploy txn failed")
)

// Status values of Result.
const (
	StatusProcessed = "processed"
	StatusError     = "error"
)

// Result reasons, as reported to the invoking layer.
const (
	ReasonIneligible     = "User does not qualify"
	ReasonLowScore       = "User does not qualify due to neynar_user_score"
	ReasonBanned         = "User is banned"
	ReasonDuplicate      = "Token already created"
	ReasonIntentNotFound = "token creation intent not found"
	ReasonNoAddress      = "creatorAddress not found"
	ReasonDeployFailed   = "deploy txn failed"
	ReasonUnconfirmed    = "deploy txn not confirmed"
	ReasonFault          = "internal error"
)

func rejection(outcome Outcome, reason string, cause error) Result {
	return Result{Status: StatusError, Reason: reason, Outcome: outcome, Cause: cause}
}

// gateResult maps a gate rejection onto its result. ok is false for errors
// that are not rejections.
func gateResult(err error) (Result, bool) {
	var low *gate.LowScoreError
	switch {
	case errors.Is(err, gate.ErrUserIneligible):
		return rejection(notify.OutcomeIneligible, ReasonIneligible, err), true
	case errors.As(err, &low):
		return rejection(notify.OutcomeLowScore, ReasonLowScore, err), true
	case errors.Is(err, gate.ErrUserBanned):
		return rejection(notify.OutcomeBanned, ReasonBanned, err), true
	case errors.Is(err, gate.ErrDuplicateRequest):
		return rejection(notify.OutcomeDuplicate, ReasonDuplicate, err), true
	}
	return Result{}, false
}
