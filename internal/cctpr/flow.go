package cctpr

import (
	"context"
	"fmt"
)

// ActionKind is the external action a flow is waiting for.
type ActionKind string

const (
	ActionSignPermit      ActionKind = "sign-permit"
	ActionPreApprove      ActionKind = "pre-approve"
	ActionSignPermit2     ActionKind = "sign-permit2"
	ActionTransfer        ActionKind = "transfer"
	ActionGaslessTransfer ActionKind = "gasless-transfer"
)

// IsSignature reports whether the caller answers with a signature rather
// than a transaction hash.
func (k ActionKind) IsSignature() bool {
	return k == ActionSignPermit || k == ActionSignPermit2
}

// IsTerminal reports whether the action ends the flow.
func (k ActionKind) IsTerminal() bool {
	return k == ActionTransfer || k == ActionGaslessTransfer
}

// Action is one step. Payload is platform specific: typed data to sign, a
// transaction to send, or the final relayer request.
type Action struct {
	Kind    ActionKind
	Payload any
}

// StepResult is the caller's answer to the previous Action.
type StepResult struct {
	Signature []byte
	TxHash    string
}

// Flow produces one Action at a time. The first call passes a nil result;
// every later call passes the result of the previous action. After the
// terminal action Next returns ErrFlowFinished.
type Flow interface {
	Next(ctx context.Context, prev *StepResult) (*Action, error)
}

// StepHandler performs one non-terminal action.
type StepHandler func(ctx context.Context, a *Action) (*StepResult, error)

// Drive runs f until its terminal action and returns it unexecuted. ctx is
// checked between steps.
func Drive(ctx context.Context, f Flow, handle StepHandler) (*Action, error) {
	var prev *StepResult
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		a, err := f.Next(ctx, prev)
		if err != nil {
			return nil, err
		}
		if a.Kind.IsTerminal() {
			return a, nil
		}
		if prev, err = handle(ctx, a); err != nil {
			return nil, fmt.Errorf("%s step: %w", a.Kind, err)
		}
	}
}

// RequireSignature validates the result given to a flow waiting for a
// signature.
func RequireSignature(prev *StepResult, kind ActionKind) ([]byte, error) {
	if prev == nil || len(prev.Signature) == 0 {
		return nil, fmt.Errorf("%w: %s needs a signature", ErrUnexpectedInput, kind)
	}
	return prev.Signature, nil
}

// RequireTxHash validates the result given to a flow waiting for a sent
// transaction.
func RequireTxHash(prev *StepResult, kind ActionKind) (string, error) {
	if prev == nil || prev.TxHash == "" {
		return "", fmt.Errorf("%w: %s needs a transaction hash", ErrUnexpectedInput, kind)
	}
	return prev.TxHash, nil
}
