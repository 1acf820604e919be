package evm

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/yourorg/cctpr-engine/internal/types"
)

// fakeClient answers the handful of calls the builders make.
type fakeClient struct {
	mu         sync.Mutex
	chainID    *big.Int
	gas        *big.Int
	usdc       *big.Int
	allowances map[common.Address]*big.Int
	quoteWords []*big.Int
	quoteRaw   []byte
	usedNonces uint64
	storage    map[common.Hash][]byte
	calls      [][]byte
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		chainID:    big.NewInt(11155111),
		gas:        big.NewInt(0),
		usdc:       big.NewInt(0),
		allowances: map[common.Address]*big.Int{},
		storage:    map[common.Hash][]byte{},
	}
}

func (f *fakeClient) ChainID(context.Context) (*big.Int, error) { return f.chainID, nil }

func (f *fakeClient) BalanceAt(context.Context, common.Address) (*big.Int, error) {
	return f.gas, nil
}

func (f *fakeClient) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeClient) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 150_000, nil
}

func (f *fakeClient) StorageAt(_ context.Context, _ common.Address, slot common.Hash) ([]byte, error) {
	if v, ok := f.storage[slot]; ok {
		return v, nil
	}
	return make([]byte, WordSize), nil
}

func encodeWords(words []*big.Int) []byte {
	out := common.LeftPadBytes(big.NewInt(WordSize).Bytes(), WordSize)
	out = append(out, common.LeftPadBytes(big.NewInt(int64(len(words)*WordSize)).Bytes(), WordSize)...)
	for _, w := range words {
		out = append(out, common.LeftPadBytes(w.Bytes(), WordSize)...)
	}
	return out
}

func (f *fakeClient) CallContract(_ context.Context, msg ethereum.CallMsg) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, msg.Data)
	f.mu.Unlock()

	sel := msg.Data[:SelectorLength]
	if bytes.Equal(sel, GetSelector) {
		if f.quoteRaw != nil {
			return f.quoteRaw, nil
		}
		return encodeWords(f.quoteWords), nil
	}
	if m, err := erc20ABI.MethodById(sel); err == nil {
		args, err := m.Inputs.Unpack(msg.Data[SelectorLength:])
		if err != nil {
			return nil, err
		}
		switch m.Name {
		case "balanceOf":
			return m.Outputs.Pack(f.usdc)
		case "allowance":
			a, ok := f.allowances[args[1].(common.Address)]
			if !ok {
				a = new(big.Int)
			}
			return m.Outputs.Pack(a)
		case "nonces":
			return m.Outputs.Pack(big.NewInt(7))
		case "name":
			return m.Outputs.Pack("USDC")
		}
	}
	if m, err := permit2ABI.MethodById(sel); err == nil {
		args, err := m.Inputs.Unpack(msg.Data[SelectorLength:])
		if err != nil {
			return nil, err
		}
		lo := args[1].(*big.Int).Uint64() << 8
		w := new(big.Int)
		switch {
		case f.usedNonces >= lo+256:
			w.Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
		case f.usedNonces > lo:
			w.Sub(new(big.Int).Lsh(big.NewInt(1), uint(f.usedNonces-lo)), big.NewInt(1))
		}
		return m.Outputs.Pack(w)
	}
	return nil, fmt.Errorf("unexpected call %x", sel)
}

func (f *fakeClient) resolver() ClientResolver {
	return func(context.Context, types.Network, types.Domain) (Client, error) { return f, nil }
}
