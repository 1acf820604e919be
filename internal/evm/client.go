// Package evm builds CCTPR transfers for EVM source chains: contract calldata,
// EIP-2612 and Permit2 typed data, and the transfer flows that drive a wallet
// through approvals, signatures and the final transaction.
package evm

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/cctpr-engine/internal/registry"
	"github.com/yourorg/cctpr-engine/internal/types"
)

// Client is the read side of an EVM node that the builders need. Writes are
// never sent from here; flows hand unsigned transactions to the caller.
type Client interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
	StorageAt(ctx context.Context, contract common.Address, slot common.Hash) ([]byte, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
}

// TxRequest is an unsigned contract call for the user to sign and submit.
type TxRequest struct {
	From  common.Address `json:"from"`
	To    common.Address `json:"to"`
	Value *big.Int       `json:"value,omitempty"`
	Data  []byte         `json:"data"`
}

// CallMsg converts the request for gas estimation.
func (tx TxRequest) CallMsg() ethereum.CallMsg {
	return ethereum.CallMsg{From: tx.From, To: &tx.To, Value: tx.Value, Data: tx.Data}
}

// RPCClient adapts go-ethereum's ethclient to Client, always reading at the
// latest block.
type RPCClient struct {
	ec      *ethclient.Client
	network types.Network
	domain  types.Domain
}

// Dial connects to an EVM JSON-RPC endpoint.
func Dial(ctx context.Context, network types.Network, domain types.Domain, rpcURL string) (*RPCClient, error) {
	if domain.Platform() != types.PlatformEvm {
		return nil, fmt.Errorf("domain %s is not an EVM chain", domain)
	}
	ec, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s rpc: %w", domain, err)
	}
	logrus.WithFields(logrus.Fields{
		"network": network,
		"domain":  domain,
	}).Debug("Connected EVM client")
	return &RPCClient{ec: ec, network: network, domain: domain}, nil
}

func (c *RPCClient) Network() types.Network { return c.network }
func (c *RPCClient) Domain() types.Domain   { return c.domain }

func (c *RPCClient) ChainID(ctx context.Context) (*big.Int, error) {
	return c.ec.ChainID(ctx)
}

func (c *RPCClient) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	return c.ec.BalanceAt(ctx, account, nil)
}

func (c *RPCClient) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	return c.ec.CallContract(ctx, msg, nil)
}

func (c *RPCClient) StorageAt(ctx context.Context, contract common.Address, slot common.Hash) ([]byte, error) {
	return c.ec.StorageAt(ctx, contract, slot, nil)
}

func (c *RPCClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return c.ec.SuggestGasPrice(ctx)
}

func (c *RPCClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return c.ec.EstimateGas(ctx, msg)
}

// Close releases the underlying connection.
func (c *RPCClient) Close() { c.ec.Close() }

func init() {
	registry.Clients.Register(types.PlatformEvm, func(ctx context.Context, n types.Network, d types.Domain, rpcURL string) (any, error) {
		return Dial(ctx, n, d, rpcURL)
	})
}
