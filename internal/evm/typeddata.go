package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// USDC implements EIP-2612 under domain version "2" on every chain.
const usdcPermitVersion = "2"

// MaxUint256 is the unlimited allowance.
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

var eip2612Types = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"Permit": {
		{Name: "owner", Type: "address"},
		{Name: "spender", Type: "address"},
		{Name: "value", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
		{Name: "deadline", Type: "uint256"},
	},
}

// PermitRequest is everything an EIP-2612 permit signs over.
type PermitRequest struct {
	ChainID   *big.Int
	Token     common.Address
	TokenName string
	Owner     common.Address
	Spender   common.Address
	Value     *big.Int
	Nonce     *big.Int
	Deadline  *big.Int
}

// TypedData renders the permit as EIP-712 typed data.
func (p PermitRequest) TypedData() apitypes.TypedData {
	return apitypes.TypedData{
		Types:       eip2612Types,
		PrimaryType: "Permit",
		Domain: apitypes.TypedDataDomain{
			Name:              p.TokenName,
			Version:           usdcPermitVersion,
			ChainId:           (*math.HexOrDecimal256)(p.ChainID),
			VerifyingContract: p.Token.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"owner":    p.Owner.Hex(),
			"spender":  p.Spender.Hex(),
			"value":    p.Value.String(),
			"nonce":    p.Nonce.String(),
			"deadline": p.Deadline.String(),
		},
	}
}

// ComposePermit reads the token name and the owner's permit nonce and returns
// the request to sign.
func ComposePermit(ctx context.Context, c Client, token *Token, owner, spender common.Address, value, deadline *big.Int) (PermitRequest, error) {
	chainID, err := c.ChainID(ctx)
	if err != nil {
		return PermitRequest{}, fmt.Errorf("read chain id: %w", err)
	}
	name, err := token.Name(ctx)
	if err != nil {
		return PermitRequest{}, err
	}
	nonce, err := token.Nonces(ctx, owner)
	if err != nil {
		return PermitRequest{}, err
	}
	return PermitRequest{
		ChainID:   chainID,
		Token:     token.Address,
		TokenName: name,
		Owner:     owner,
		Spender:   spender,
		Value:     value,
		Nonce:     nonce,
		Deadline:  deadline,
	}, nil
}

// TransferWitness is the CCTPR witness attached to a Permit2 transfer.
type TransferWitness struct {
	BaseAmount        uint64
	DestinationDomain uint8
	MintRecipient     []byte
	MicroGasDropoff   uint32
	Corridor          string
	MaxFastFee        uint64
	GaslessFee        uint64
	MaxRelayFee       uint64
	QuoteSource       string
}

// Permit2Request is a PermitWitnessTransferFrom over USDC.
type Permit2Request struct {
	ChainID  *big.Int
	Token    common.Address
	Amount   *big.Int
	Spender  common.Address
	Nonce    *big.Int
	Deadline time.Time
	Witness  TransferWitness
}

var permit2WitnessTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"PermitWitnessTransferFrom": {
		{Name: "permitted", Type: "TokenPermissions"},
		{Name: "spender", Type: "address"},
		{Name: "nonce", Type: "uint256"},
		{Name: "deadline", Type: "uint256"},
		{Name: "parameters", Type: "TransferWithRelayWitness"},
	},
	"TokenPermissions": {
		{Name: "token", Type: "address"},
		{Name: "amount", Type: "uint256"},
	},
	"TransferWithRelayWitness": {
		{Name: "baseAmount", Type: "uint64"},
		{Name: "destinationDomain", Type: "uint8"},
		{Name: "mintRecipient", Type: "bytes32"},
		{Name: "microGasDropoff", Type: "uint32"},
		{Name: "corridor", Type: "string"},
		{Name: "maxFastFee", Type: "uint64"},
		{Name: "gaslessFee", Type: "uint64"},
		{Name: "maxRelayFee", Type: "uint64"},
		{Name: "quoteSource", Type: "string"},
	},
}

func u64(v uint64) string { return strconv.FormatUint(v, 10) }

// TypedData renders the request as EIP-712 typed data.
func (p Permit2Request) TypedData() apitypes.TypedData {
	w := p.Witness
	return apitypes.TypedData{
		Types:       permit2WitnessTypes,
		PrimaryType: "PermitWitnessTransferFrom",
		Domain: apitypes.TypedDataDomain{
			Name:              "Permit2",
			ChainId:           (*math.HexOrDecimal256)(p.ChainID),
			VerifyingContract: Permit2Address.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"permitted": map[string]interface{}{
				"token":  p.Token.Hex(),
				"amount": p.Amount.String(),
			},
			"spender":  p.Spender.Hex(),
			"nonce":    p.Nonce.String(),
			"deadline": strconv.FormatInt(p.Deadline.Unix(), 10),
			"parameters": map[string]interface{}{
				"baseAmount":        u64(w.BaseAmount),
				"destinationDomain": u64(uint64(w.DestinationDomain)),
				"mintRecipient":     hexutil.Encode(w.MintRecipient),
				"microGasDropoff":   u64(uint64(w.MicroGasDropoff)),
				"corridor":          w.Corridor,
				"maxFastFee":        u64(w.MaxFastFee),
				"gaslessFee":        u64(w.GaslessFee),
				"maxRelayFee":       u64(w.MaxRelayFee),
				"quoteSource":       w.QuoteSource,
			},
		},
	}
}

// HashTypedData returns the EIP-712 digest of td.
func HashTypedData(td apitypes.TypedData) ([]byte, error) {
	hash, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		return nil, fmt.Errorf("hash typed data: %w", err)
	}
	return hash, nil
}

// SignTypedData signs td with key. The recovery id is returned as 27/28, the
// way wallets produce it.
func SignTypedData(td apitypes.TypedData, key *ecdsa.PrivateKey) ([]byte, error) {
	hash, err := HashTypedData(td)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(hash, key)
	if err != nil {
		return nil, fmt.Errorf("sign typed data: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// RecoverTypedDataSigner returns the address that produced sig over td.
func RecoverTypedDataSigner(td apitypes.TypedData, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(sig))
	}
	hash, err := HashTypedData(td)
	if err != nil {
		return common.Address{}, err
	}
	normalized := append([]byte(nil), sig...)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(hash, normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
