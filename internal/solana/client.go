// Package solana builds CCTPR transfers from Solana: program derived
// addresses, account and instruction layouts, oracle-priced relay quotes and
// the single-transaction transfer flow.
package solana

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/cctpr-engine/internal/registry"
	"github.com/yourorg/cctpr-engine/internal/types"
)

// Account is the part of an on-chain account the builders read.
type Account struct {
	Lamports uint64
	Owner    solana.PublicKey
	Data     []byte
}

// Client is the read side of a Solana node. Transactions are handed to the
// caller unsigned and never sent from here.
type Client interface {
	GetBalance(ctx context.Context, account solana.PublicKey) (uint64, error)
	// GetAccounts returns one entry per address, nil for accounts that do not
	// exist.
	GetAccounts(ctx context.Context, accounts ...solana.PublicKey) ([]*Account, error)
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
}

// RPCClient adapts solana-go's JSON-RPC client to Client.
type RPCClient struct {
	rpc        *rpc.Client
	network    types.Network
	commitment rpc.CommitmentType
}

// Dial returns a client for rpcURL. Solana RPC is plain HTTP, so nothing is
// contacted until the first call.
func Dial(_ context.Context, network types.Network, domain types.Domain, rpcURL string) (*RPCClient, error) {
	if domain.Platform() != types.PlatformSolana {
		return nil, fmt.Errorf("domain %s is not Solana", domain)
	}
	logrus.WithFields(logrus.Fields{
		"network": network,
		"domain":  domain,
	}).Debug("Created Solana client")
	return &RPCClient{rpc: rpc.New(rpcURL), network: network, commitment: rpc.CommitmentConfirmed}, nil
}

func (c *RPCClient) Network() types.Network { return c.network }

func (c *RPCClient) GetBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	res, err := c.rpc.GetBalance(ctx, account, c.commitment)
	if err != nil {
		return 0, fmt.Errorf("get balance of %s: %w", account, err)
	}
	return res.Value, nil
}

func (c *RPCClient) GetAccounts(ctx context.Context, accounts ...solana.PublicKey) ([]*Account, error) {
	res, err := c.rpc.GetMultipleAccountsWithOpts(ctx, accounts, &rpc.GetMultipleAccountsOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: c.commitment,
	})
	if err != nil {
		return nil, fmt.Errorf("get %d accounts: %w", len(accounts), err)
	}
	if len(res.Value) != len(accounts) {
		return nil, fmt.Errorf("got %d accounts for %d addresses", len(res.Value), len(accounts))
	}
	out := make([]*Account, len(res.Value))
	for i, a := range res.Value {
		if a == nil {
			continue
		}
		out[i] = &Account{Lamports: a.Lamports, Owner: a.Owner}
		if a.Data != nil {
			out[i].Data = a.Data.GetBinary()
		}
	}
	return out, nil
}

func (c *RPCClient) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	res, err := c.rpc.GetLatestBlockhash(ctx, c.commitment)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("get latest blockhash: %w", err)
	}
	return res.Value.Blockhash, nil
}

func init() {
	registry.Clients.Register(types.PlatformSolana, func(ctx context.Context, n types.Network, d types.Domain, rpcURL string) (any, error) {
		return Dial(ctx, n, d, rpcURL)
	})
}
