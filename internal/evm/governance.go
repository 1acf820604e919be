package evm

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/cctpr-engine/internal/cctpr"
	"github.com/yourorg/cctpr-engine/internal/layout"
	"github.com/yourorg/cctpr-engine/internal/types"
)

// Role is an address-valued configuration slot of the contract.
type Role string

const (
	RoleFeeRecipient   Role = "feeRecipient"
	RoleOffChainQuoter Role = "offChainQuoter"
	RoleOwner          Role = "owner"
	RolePendingOwner   Role = "pendingOwner"
	RoleFeeAdjuster    Role = "feeAdjuster"
)

// Storage order of the contract: the mappings come first, then the roles.
var (
	storageMappings = []string{"extraChainIds", string(cctpr.V1), string(cctpr.V2Direct), string(cctpr.AvaxHop), "gasDropoff"}
	storageRoles    = []Role{RoleFeeRecipient, RoleOffChainQuoter, RoleOwner, RolePendingOwner, RoleFeeAdjuster}
)

func indexOf[T comparable](s []T, v T) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}

// GovernanceCommand is one entry of an exec768() governance batch.
type GovernanceCommand interface {
	commandValue() (map[string]any, error)
}

// UpdateFeeAdjustments replaces one slot (four consecutive domains) of a fee
// adjustment table.
type UpdateFeeAdjustments struct {
	FeeType      string
	MappingIndex uint8
	Adjustments  [FeeAdjustmentsPerSlot]cctpr.FeeAdjustment
}

func (c UpdateFeeAdjustments) commandValue() (map[string]any, error) {
	if indexOf(cctpr.FeeAdjustmentTypes, c.FeeType) < 0 {
		return nil, fmt.Errorf("unknown fee adjustment type %q", c.FeeType)
	}
	adj := make([]any, FeeAdjustmentsPerSlot)
	for i, a := range c.Adjustments {
		if a.Relative.Kind() == nil {
			a = cctpr.RelayAtCost
		}
		adj[i] = cctpr.FeeAdjustmentValue(a)
	}
	return map[string]any{
		"command":      "updateFeeAdjustments",
		"feeType":      c.FeeType,
		"mappingIndex": uint64(c.MappingIndex),
		"adjustments":  adj,
	}, nil
}

// SweepTokens moves tokens held by the contract to the fee recipient.
type SweepTokens struct {
	Token  common.Address
	Amount *big.Int
}

func (c SweepTokens) commandValue() (map[string]any, error) {
	return map[string]any{"command": "sweepTokens", "tokenAddress": c.Token, "amount": c.Amount}, nil
}

// UpdateRole reassigns a role. RolePendingOwner proposes an ownership transfer.
type UpdateRole struct {
	Role    Role
	Address common.Address
}

var roleCommands = map[Role]string{
	RoleFeeRecipient:   "updateFeeRecipient",
	RoleFeeAdjuster:    "updateFeeAdjuster",
	RoleOffChainQuoter: "updateOffChainQuoter",
	RolePendingOwner:   "proposeOwnershipTransfer",
}

func (c UpdateRole) commandValue() (map[string]any, error) {
	name, ok := roleCommands[c.Role]
	if !ok {
		return nil, fmt.Errorf("role %s cannot be set directly", c.Role)
	}
	return map[string]any{"command": name, "address": c.Address}, nil
}

type AcceptOwnershipTransfer struct{}

func (AcceptOwnershipTransfer) commandValue() (map[string]any, error) {
	return map[string]any{"command": "acceptOwnershipTransfer"}, nil
}

type CancelOwnershipTransfer struct{}

func (CancelOwnershipTransfer) commandValue() (map[string]any, error) {
	return map[string]any{"command": "cancelOwnershipTransfer"}, nil
}

// SetChainIDForDomain registers the wormhole chain id of a domain the
// contract does not know natively.
type SetChainIDForDomain struct {
	Domain  types.Domain
	ChainID uint16
}

func (c SetChainIDForDomain) commandValue() (map[string]any, error) {
	return map[string]any{"command": "setChainIdForDomain", "domain": c.Domain, "chainId": uint64(c.ChainID)}, nil
}

// ExecGovernance batches commands into one transaction from the owner or fee
// adjuster. The cached configuration of the contract is dropped.
func (c *CctpR) ExecGovernance(from common.Address, cmds ...GovernanceCommand) (TxRequest, error) {
	if len(cmds) == 0 {
		return TxRequest{}, fmt.Errorf("no governance commands")
	}
	values := make([]any, len(cmds))
	for i, cmd := range cmds {
		v, err := cmd.commandValue()
		if err != nil {
			return TxRequest{}, err
		}
		values[i] = v
	}
	payload, err := layout.Serialize(governanceCommandArrayLayout, values)
	if err != nil {
		return TxRequest{}, fmt.Errorf("encode governance commands: %w", err)
	}
	configCache.Invalidate(c.Address.Hex())
	logrus.WithFields(logrus.Fields{
		"domain":   c.Domain,
		"commands": len(cmds),
	}).Info("Built governance transaction")
	return c.execTx(from, nil, payload), nil
}

// ParseGovernance decodes the payload of a governance batch.
func ParseGovernance(data []byte) ([]any, error) {
	if len(data) < SelectorLength {
		return nil, fmt.Errorf("calldata too short")
	}
	v, err := layout.Deserialize(governanceCommandArrayLayout, data[SelectorLength:])
	if err != nil {
		return nil, err
	}
	return v.([]any), nil
}

func word(v uint64) []byte {
	return common.LeftPadBytes(new(big.Int).SetUint64(v).Bytes(), WordSize)
}

// mappingSlot is where Solidity stores mapping[key] for a mapping at slot.
func mappingSlot(slot, key uint64) common.Hash {
	return crypto.Keccak256Hash(word(key), word(slot))
}

func (c *CctpR) storage(ctx context.Context, slot common.Hash) ([]byte, error) {
	raw, err := c.client.StorageAt(ctx, c.Address, slot)
	if err != nil {
		return nil, fmt.Errorf("read storage %s of %s: %w", slot.Hex(), c.Domain, err)
	}
	if len(raw) != WordSize {
		return nil, fmt.Errorf("storage slot %s has %d bytes", slot.Hex(), len(raw))
	}
	return raw, nil
}

// Role reads the address currently holding role.
func (c *CctpR) Role(ctx context.Context, role Role) (common.Address, error) {
	idx := indexOf(storageRoles, role)
	if idx < 0 {
		return common.Address{}, fmt.Errorf("unknown role %q", role)
	}
	raw, err := c.storage(ctx, common.BigToHash(big.NewInt(int64(len(storageMappings)+idx))))
	if err != nil {
		return common.Address{}, err
	}
	return common.BytesToAddress(raw), nil
}

// FeeAdjustments reads one fee adjustment table, keyed by domain.
func (c *CctpR) FeeAdjustments(ctx context.Context, feeType string) (map[types.Domain]cctpr.FeeAdjustment, error) {
	slot := indexOf(storageMappings, feeType)
	if slot < 1 {
		return nil, fmt.Errorf("unknown fee adjustment type %q", feeType)
	}
	slots := (len(types.Domains) + FeeAdjustmentsPerSlot - 1) / FeeAdjustmentsPerSlot
	out := make(map[types.Domain]cctpr.FeeAdjustment, len(types.Domains))
	for i := 0; i < slots; i++ {
		raw, err := c.storage(ctx, mappingSlot(uint64(slot), uint64(i)))
		if err != nil {
			return nil, err
		}
		v, err := layout.Deserialize(feeAdjustmentsSlotItem, raw)
		if err != nil {
			return nil, fmt.Errorf("decode fee adjustments %d: %w", i, err)
		}
		for j, a := range v.([]any) {
			d := i*FeeAdjustmentsPerSlot + j
			if d >= len(types.Domains) {
				break
			}
			fa, err := cctpr.FeeAdjustmentOf(a)
			if err != nil {
				return nil, err
			}
			out[types.Domains[d]] = fa
		}
	}
	return out, nil
}

// OnChainConfig is the role configuration of a deployment.
type OnChainConfig struct {
	Roles map[Role]common.Address
}

var configCache = cctpr.NewConfigCache[OnChainConfig](cctpr.DefaultConfigTTL)

// Config reads every role concurrently. Results are cached per contract for
// cctpr.DefaultConfigTTL.
func (c *CctpR) Config(ctx context.Context) (OnChainConfig, error) {
	return configCache.Get(ctx, c.Address.Hex(), func(ctx context.Context) (OnChainConfig, error) {
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			errs []error
		)
		cfg := OnChainConfig{Roles: make(map[Role]common.Address, len(storageRoles))}
		for _, role := range storageRoles {
			wg.Add(1)
			go func(role Role) {
				defer wg.Done()
				addr, err := c.Role(ctx, role)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					errs = append(errs, err)
					return
				}
				cfg.Roles[role] = addr
			}(role)
		}
		wg.Wait()
		if len(errs) > 0 {
			return OnChainConfig{}, fmt.Errorf("read config of %s: %w", c.Domain, errs[0])
		}
		return cfg, nil
	})
}
