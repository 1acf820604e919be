package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Permit2Address is Uniswap's Permit2, deployed at the same address on every
// EVM chain.
var Permit2Address = common.HexToAddress("0x000000000022D473030F116dDEE9F6B43aC78BA3")

const erc20JSON = `[
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"nonces","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"name","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

const permit2JSON = `[
	{"type":"function","name":"nonceBitmap","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"wordPos","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]}
]`

var (
	erc20ABI   = mustParseABI(erc20JSON)
	permit2ABI = mustParseABI(permit2JSON)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("parse abi: %v", err))
	}
	return parsed
}

func call(ctx context.Context, c Client, contract common.Address, a abi.ABI, method string, args ...any) ([]any, error) {
	data, err := a.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	raw, err := c.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data})
	if err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", method, contract.Hex(), err)
	}
	out, err := a.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s returned nothing", method)
	}
	return out, nil
}

func callUint(ctx context.Context, c Client, contract common.Address, a abi.ABI, method string, args ...any) (*big.Int, error) {
	out, err := call(ctx, c, contract, a, method, args...)
	if err != nil {
		return nil, err
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s returned %T", method, out[0])
	}
	return v, nil
}

// Token reads an ERC-20 (with EIP-2612 extensions) through a Client.
type Token struct {
	client  Client
	Address common.Address
}

func NewToken(c Client, address common.Address) *Token {
	return &Token{client: c, Address: address}
}

func (t *Token) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	return callUint(ctx, t.client, t.Address, erc20ABI, "balanceOf", owner)
}

func (t *Token) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	return callUint(ctx, t.client, t.Address, erc20ABI, "allowance", owner, spender)
}

// Nonces returns the owner's EIP-2612 permit nonce.
func (t *Token) Nonces(ctx context.Context, owner common.Address) (*big.Int, error) {
	return callUint(ctx, t.client, t.Address, erc20ABI, "nonces", owner)
}

func (t *Token) Name(ctx context.Context) (string, error) {
	out, err := call(ctx, t.client, t.Address, erc20ABI, "name")
	if err != nil {
		return "", err
	}
	name, ok := out[0].(string)
	if !ok {
		return "", fmt.Errorf("name returned %T", out[0])
	}
	return name, nil
}

// ApproveTx builds the approve(spender, amount) call.
func (t *Token) ApproveTx(owner, spender common.Address, amount *big.Int) (TxRequest, error) {
	data, err := erc20ABI.Pack("approve", spender, amount)
	if err != nil {
		return TxRequest{}, fmt.Errorf("pack approve: %w", err)
	}
	return TxRequest{From: owner, To: t.Address, Value: new(big.Int), Data: data}, nil
}

// Permit2Bitmaps reads an owner's unordered nonce bitmap from Permit2.
type Permit2Bitmaps struct {
	client Client
	owner  common.Address
}

func NewPermit2Bitmaps(c Client, owner common.Address) *Permit2Bitmaps {
	return &Permit2Bitmaps{client: c, owner: owner}
}

// Word returns the 256 nonce bits of word position pos.
func (p *Permit2Bitmaps) Word(ctx context.Context, pos uint64) (*uint256.Int, error) {
	w, err := callUint(ctx, p.client, Permit2Address, permit2ABI, "nonceBitmap", p.owner, new(big.Int).SetUint64(pos))
	if err != nil {
		return nil, err
	}
	out, overflow := uint256.FromBig(w)
	if overflow {
		return nil, fmt.Errorf("nonce bitmap word %d overflows 256 bits", pos)
	}
	return out, nil
}
