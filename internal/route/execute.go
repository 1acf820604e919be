package route

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yourorg/cctpr-engine/internal/cctpr"
	"github.com/yourorg/cctpr-engine/internal/evm"
	"github.com/yourorg/cctpr-engine/internal/fetch"
	"github.com/yourorg/cctpr-engine/internal/otel"
	"github.com/yourorg/cctpr-engine/internal/types"
)

// Phase is where an execution failed.
type Phase string

const (
	// PhaseTransfer: the funds never left the sender.
	PhaseTransfer Phase = "transfer-failed"
	// PhaseAttestation: the burn happened but was not attested in time.
	PhaseAttestation Phase = "attestation-failed"
	// PhaseReceive: attested but the mint was not found in time.
	PhaseReceive Phase = "receive-failed"
)

// PhaseError is an execution failure. TxHash is the last transaction the
// failing phase was waiting on.
type PhaseError struct {
	Phase  Phase
	TxHash string
	Err    error
}

func (e *PhaseError) Error() string {
	if e.TxHash == "" {
		return fmt.Sprintf("%s: %v", e.Phase, e.Err)
	}
	return fmt.Sprintf("%s (tx %s): %v", e.Phase, e.TxHash, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

var ErrNoRelayer = errors.New("gasless route without relayer")

// Signer signs the typed-data payloads of signature steps.
type Signer interface {
	SignTypedData(ctx context.Context, d types.Domain, payload any) ([]byte, error)
}

// Submitter sends a transaction payload and returns its hash once mined.
type Submitter interface {
	SendTransaction(ctx context.Context, d types.Domain, payload any) (string, error)
}

// Relayer submits gasless transfers.
type Relayer interface {
	Relay(ctx context.Context, req fetch.RelayRequest) (string, error)
}

type AttestationFinder interface {
	FindAttestation(ctx context.Context, src types.Domain, txHash string, opts fetch.PollOptions) (fetch.Attestation, error)
}

type ReceiveFinder interface {
	FindReceive(ctx context.Context, dst types.Domain, txHash string, opts fetch.PollOptions) (fetch.Receive, error)
}

// Result is the outcome of a completed execution.
type Result struct {
	ExecutionID  string              `json:"execution_id"`
	Transactions []string            `json:"transactions"`
	Attestations []fetch.Attestation `json:"attestations"`
	Redeems      []fetch.Receive     `json:"redeems"`
	TransferHash string              `json:"transfer_hash"`
	RedeemHash   string              `json:"redeem_hash"`
}

// Executor drives a route from its first step to the mint on the
// destination.
type Executor struct {
	signer       Signer
	submitter    Submitter
	relayer      Relayer
	attestations AttestationFinder
	receives     ReceiveFinder
	bus          *Bus

	attestationPoll fetch.PollOptions
	hopPoll         fetch.PollOptions
	receivePoll     fetch.PollOptions
}

func NewExecutor(signer Signer, submitter Submitter, attestations AttestationFinder, receives ReceiveFinder) *Executor {
	return &Executor{
		signer:          signer,
		submitter:       submitter,
		attestations:    attestations,
		receives:        receives,
		attestationPoll: fetch.DefaultPoll,
		hopPoll:         fetch.HopPoll,
		receivePoll:     fetch.ReceivePoll,
	}
}

func (e *Executor) WithRelayer(r Relayer) *Executor {
	e.relayer = r
	return e
}

// WithBus publishes progress events to b.
func (e *Executor) WithBus(b *Bus) *Executor {
	e.bus = b
	return e
}

// WithPolling overrides the attestation, hop attestation and receive
// backoffs.
func (e *Executor) WithPolling(attestation, hop, receive fetch.PollOptions) *Executor {
	e.attestationPoll, e.hopPoll, e.receivePoll = attestation, hop, receive
	return e
}

// execution is the state of one Execute call.
type execution struct {
	*Executor
	id     string
	route  *Route
	result Result
}

func (x *execution) emit(kind EventKind, txHash string, data any) {
	if x.bus == nil {
		return
	}
	x.bus.Publish(Event{Kind: kind, RouteID: x.route.ID, TxHash: txHash, Data: data})
	x.bus.Publish(Event{Kind: EventStepCompleted, RouteID: x.route.ID, Step: kind, TxHash: txHash, Data: data})
}

func (x *execution) fail(ctx context.Context, phase Phase, txHash string, err error) error {
	pe := &PhaseError{Phase: phase, TxHash: txHash, Err: err}
	x.emit(EventError, txHash, ErrorDetails{Phase: phase, TxHash: txHash, Error: err.Error()})
	otel.RecordError(ctx, pe)
	logrus.WithFields(logrus.Fields{
		"execution": x.id,
		"route":     x.route.ID,
		"phase":     phase,
		"txHash":    txHash,
	}).WithError(err).Warn("Route execution failed")
	return pe
}

// Execute runs r: every step of its flow, then the attestation and redeem of
// the transfer, following an avaxHop through Avalanche. Failures come back as
// *PhaseError.
func (e *Executor) Execute(ctx context.Context, r *Route) (*Result, error) {
	x := &execution{Executor: e, id: uuid.NewString(), route: r}
	x.result.ExecutionID = x.id
	ctx, span := otel.Tracer().Start(ctx, "route.Execute", trace.WithAttributes(
		attribute.String("route", r.ID),
		attribute.String("kind", string(r.Kind)),
		attribute.String("corridor", string(r.Corridor.Type)),
	))
	defer span.End()

	x.emit(EventTransferInitiated, "", r.Intent)
	transferHash, err := x.sendTransfer(ctx)
	if err != nil {
		return nil, x.fail(ctx, PhaseTransfer, "", err)
	}
	return x.follow(ctx, transferHash)
}

// Track follows a transfer that was sent outside the executor, from its
// attestation to the mint, publishing the same events Execute does.
func (e *Executor) Track(ctx context.Context, routeID string, n types.Network, src types.Domain, transferHash string) (*Result, error) {
	r := &Route{ID: routeID, Intent: Intent{Network: n, Source: src}}
	x := &execution{Executor: e, id: uuid.NewString(), route: r}
	x.result.ExecutionID = x.id
	x.result.Transactions = []string{transferHash}
	ctx, span := otel.Tracer().Start(ctx, "route.Track", trace.WithAttributes(
		attribute.String("route", routeID),
		attribute.String("source", string(src)),
		attribute.String("tx", transferHash),
	))
	defer span.End()
	return x.follow(ctx, transferHash)
}

// follow waits for the attestation and redeem of transferHash, following an
// avaxHop through Avalanche.
func (x *execution) follow(ctx context.Context, transferHash string) (*Result, error) {
	r := x.route
	x.result.TransferHash = transferHash

	att, err := x.attestations.FindAttestation(ctx, r.Intent.Source, transferHash, x.attestationPoll)
	if err != nil {
		return nil, x.fail(ctx, PhaseAttestation, transferHash, err)
	}
	x.result.Attestations = append(x.result.Attestations, att)
	x.emit(EventTransferConfirmed, transferHash, att)

	// The attested target is Avalanche for the first leg of an avaxHop.
	redeem, err := x.receives.FindReceive(ctx, att.TargetDomain, transferHash, x.receivePoll)
	if err != nil {
		return nil, x.fail(ctx, PhaseReceive, transferHash, err)
	}
	x.result.Redeems = append(x.result.Redeems, redeem)

	if isAvaxHop(r.Intent.Network, att) {
		x.emit(EventHopRedeemed, redeem.TransactionHash, redeem)
		hopAtt, err := x.attestations.FindAttestation(ctx, att.TargetDomain, redeem.TransactionHash, x.hopPoll)
		if err != nil {
			return nil, x.fail(ctx, PhaseAttestation, redeem.TransactionHash, err)
		}
		x.result.Attestations = append(x.result.Attestations, hopAtt)
		x.emit(EventHopConfirmed, redeem.TransactionHash, hopAtt)

		redeem, err = x.receives.FindReceive(ctx, hopAtt.TargetDomain, redeem.TransactionHash, x.receivePoll)
		if err != nil {
			return nil, x.fail(ctx, PhaseReceive, x.result.Redeems[0].TransactionHash, err)
		}
		x.result.Redeems = append(x.result.Redeems, redeem)
	}
	x.emit(EventTransferRedeemed, redeem.TransactionHash, redeem)
	x.result.RedeemHash = redeem.TransactionHash

	logrus.WithFields(logrus.Fields{
		"execution": x.id,
		"route":     r.ID,
		"transfer":  transferHash,
		"redeem":    x.result.RedeemHash,
	}).Info("Transfer redeemed")
	return &x.result, nil
}

// isAvaxHop reports whether att is the first leg of an avaxHop: minted on
// Avalanche with the router as the only allowed caller.
func isAvaxHop(n types.Network, att fetch.Attestation) bool {
	router, ok := types.AvaxRouter(n)
	if !ok || att.TargetDomain != types.Avalanche || att.DestinationCaller == "" {
		return false
	}
	caller := common.BytesToAddress(common.FromHex(att.DestinationCaller))
	return caller == common.HexToAddress(router)
}

// sendTransfer drives the flow through its terminal action and returns the
// transfer transaction hash.
func (x *execution) sendTransfer(ctx context.Context) (string, error) {
	flow, err := x.route.Workflow(ctx)
	if err != nil {
		return "", err
	}
	src := x.route.Intent.Source
	final, err := cctpr.Drive(ctx, flow, func(ctx context.Context, a *cctpr.Action) (*cctpr.StepResult, error) {
		if a.Kind.IsSignature() {
			sig, err := x.signer.SignTypedData(ctx, src, a.Payload)
			if err != nil {
				return nil, err
			}
			x.emit(EventMessageSigned, "", a.Kind)
			return &cctpr.StepResult{Signature: sig}, nil
		}
		hash, err := x.submitter.SendTransaction(ctx, src, a.Payload)
		if err != nil {
			return nil, err
		}
		x.result.Transactions = append(x.result.Transactions, hash)
		x.emit(EventApprovalSent, hash, a.Kind)
		return &cctpr.StepResult{TxHash: hash}, nil
	})
	if err != nil {
		return "", err
	}

	var hash string
	switch final.Kind {
	case cctpr.ActionGaslessTransfer:
		hash, err = x.relay(ctx, final)
	default:
		hash, err = x.submitter.SendTransaction(ctx, src, final.Payload)
	}
	if err != nil {
		return "", fmt.Errorf("%s step: %w", final.Kind, err)
	}
	x.result.Transactions = append(x.result.Transactions, hash)
	x.emit(EventTransferSent, hash, x.route.Kind)
	return hash, nil
}

func (x *execution) relay(ctx context.Context, a *cctpr.Action) (string, error) {
	if x.relayer == nil || x.route.Gasless == nil {
		return "", ErrNoRelayer
	}
	sub, ok := a.Payload.(evm.GaslessSubmission)
	if !ok {
		return "", fmt.Errorf("%w: gasless payload %T", cctpr.ErrUnexpectedInput, a.Payload)
	}
	req := fetch.RelayRequest{JWT: x.route.Gasless.JWT, Permit2Signature: sub.Permit2Signature}
	if sub.Permit != nil {
		req.Permit = &fetch.PermitPayload{
			Signature: sub.Permit.Signature,
			Value:     sub.Permit.Value,
			Deadline:  sub.Permit.Deadline,
		}
	}
	return x.relayer.Relay(ctx, req)
}
