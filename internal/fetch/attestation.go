package fetch

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/cctpr-engine/internal/types"
)

// HopPoll is used for the Avalanche leg of an avaxHop transfer, which is
// attested within seconds of the first redeem.
var HopPoll = PollOptions{BaseDelay: 50 * time.Millisecond, MaxDelay: 350 * time.Millisecond}

// Attestation is a completed CCTP attestation.
type Attestation struct {
	SourceDomain      types.Domain
	TargetDomain      types.Domain
	TransactionHash   string
	CctpVersion       int
	Nonce             string
	Sender            string
	Recipient         string
	DestinationCaller string
	Message           []byte
	Attestation       []byte
}

func parseDomain(s string) (types.Domain, error) {
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return "", fmt.Errorf("domain id %q: %w", s, err)
	}
	d, ok := types.DomainOfID(uint32(id))
	if !ok {
		return "", fmt.Errorf("unknown domain id %d", id)
	}
	return d, nil
}

func (m Message) attestation(txHash string) (Attestation, error) {
	src, err := parseDomain(m.DecodedMessage.SourceDomain)
	if err != nil {
		return Attestation{}, err
	}
	dst, err := parseDomain(m.DecodedMessage.DestinationDomain)
	if err != nil {
		return Attestation{}, err
	}
	return Attestation{
		SourceDomain:      src,
		TargetDomain:      dst,
		TransactionHash:   txHash,
		CctpVersion:       m.CctpVersion,
		Nonce:             m.DecodedMessage.Nonce,
		Sender:            m.DecodedMessage.Sender,
		Recipient:         m.DecodedMessage.Recipient,
		DestinationCaller: m.DecodedMessage.DestinationCaller,
		Message:           common.FromHex(m.Message),
		Attestation:       common.FromHex(m.Attestation),
	}, nil
}

// GetAttestation returns the attestation of the first message of txHash, or
// ErrNoMessages / ErrAttestationPending while it is not ready.
func (c *IrisClient) GetAttestation(ctx context.Context, src types.Domain, txHash string) (Attestation, error) {
	msgs, err := c.GetMessages(ctx, src, txHash)
	if err != nil {
		return Attestation{}, err
	}
	m := msgs[0]
	if m.Status != AttestationStatusComplete {
		return Attestation{}, ErrAttestationPending
	}
	return m.attestation(txHash)
}

// FindAttestation polls Iris until the burn in txHash is attested.
func (c *IrisClient) FindAttestation(ctx context.Context, src types.Domain, txHash string, opts PollOptions) (Attestation, error) {
	log := logrus.WithFields(logrus.Fields{"source": src, "txHash": txHash})
	log.Debug("Waiting for attestation")
	return PollUntil(ctx, opts, func(ctx context.Context) (Attestation, bool, error) {
		att, err := c.GetAttestation(ctx, src, txHash)
		switch {
		case err == nil:
			log.WithField("target", att.TargetDomain).Debug("Attestation complete")
			return att, true, nil
		case errors.Is(err, ErrNoMessages), errors.Is(err, ErrAttestationPending):
			return Attestation{}, false, nil
		}
		return Attestation{}, false, err
	})
}
