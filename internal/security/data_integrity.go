// Package security signs the engine's outputs: off-chain relay quotes the
// CCTPR contracts accept, and API payloads clients can check for tampering.
package security

import (
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
)

var (
	ErrSignatureExpired = errors.New("signature expired")
	ErrBadSignature     = errors.New("signature verification failed")
)

// Signer holds the secp256k1 key of the quoter.
type Signer struct {
	key      *ecdsa.PrivateKey
	address  common.Address
	validity time.Duration
	now      func() time.Time
}

// NewSigner loads the hex-encoded private key, or generates an ephemeral one
// when hexKey is empty. validity bounds signed payloads and quotes.
func NewSigner(hexKey string, validity time.Duration) (*Signer, error) {
	var (
		key *ecdsa.PrivateKey
		err error
	)
	if hexKey == "" {
		key, err = crypto.GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("failed to generate key: %w", err)
		}
		logrus.Warn("No quoter key configured, using an ephemeral key")
	} else {
		key, err = crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("invalid quoter key: %w", err)
		}
	}
	if validity <= 0 {
		validity = 5 * time.Minute
	}
	s := &Signer{key: key, address: crypto.PubkeyToAddress(key.PublicKey), validity: validity, now: time.Now}
	logrus.WithField("address", s.address.Hex()).Info("Quote signer initialized")
	return s, nil
}

// Address is the account the contracts must know as off-chain quoter.
func (s *Signer) Address() common.Address { return s.address }

// sign returns an Ethereum style signature over digest with v in {27, 28}.
func (s *Signer) sign(digest []byte) ([]byte, error) {
	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// recoverSigner is the inverse of sign.
func recoverSigner(digest, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: length %d", ErrBadSignature, len(sig))
	}
	raw := append([]byte(nil), sig...)
	if raw[crypto.RecoveryIDOffset] >= 27 {
		raw[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(digest, raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// SignedPayload is an API payload with a detached signature. Hash is the
// EIP-191 personal message hash of Payload.
type SignedPayload struct {
	Payload    json.RawMessage `json:"payload"`
	Hash       string          `json:"hash"`
	Signature  string          `json:"signature"`
	Signer     string          `json:"signer"`
	Timestamp  int64           `json:"timestamp"`
	ValidUntil int64           `json:"valid_until"`
}

// SignPayload marshals payload and signs it.
func (s *Signer) SignPayload(payload any) (SignedPayload, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return SignedPayload{}, fmt.Errorf("failed to marshal payload: %w", err)
	}
	hash := accounts191Hash(raw)
	sig, err := s.sign(hash)
	if err != nil {
		return SignedPayload{}, fmt.Errorf("failed to sign payload: %w", err)
	}
	now := s.now()
	return SignedPayload{
		Payload:    raw,
		Hash:       hexutil.Encode(hash),
		Signature:  hexutil.Encode(sig),
		Signer:     s.address.Hex(),
		Timestamp:  now.Unix(),
		ValidUntil: now.Add(s.validity).Unix(),
	}, nil
}

// VerifyPayload checks that p was signed by its Signer, is unaltered and has
// not expired at now.
func VerifyPayload(p SignedPayload, now time.Time) error {
	if now.Unix() > p.ValidUntil {
		return fmt.Errorf("%w at %s", ErrSignatureExpired, time.Unix(p.ValidUntil, 0).UTC())
	}
	hash := accounts191Hash(p.Payload)
	if hexutil.Encode(hash) != p.Hash {
		return fmt.Errorf("%w: payload hash mismatch", ErrBadSignature)
	}
	sig, err := hexutil.Decode(p.Signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	signer, err := recoverSigner(hash, sig)
	if err != nil {
		return err
	}
	if signer != common.HexToAddress(p.Signer) {
		return fmt.Errorf("%w: signed by %s", ErrBadSignature, signer.Hex())
	}
	return nil
}

func accounts191Hash(data []byte) []byte {
	msg := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(data), data)
	return crypto.Keccak256([]byte(msg))
}
