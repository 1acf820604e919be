package solana

import (
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/gagliardetto/solana-go"

	"github.com/yourorg/cctpr-engine/internal/types"
)

// OracleProgramID is the price oracle the CCTPR program reads SOL and
// destination gas prices from.
var OracleProgramID = solana.MustPublicKeyFromBase58("xpo8sHWHkfS6NpVsYwE2t5pTvvdTHSdWUdxh2RtsT1H")

// CCTP v1 programs. v2 addresses live in the types tables.
var (
	v1MessageTransmitter = solana.MustPublicKeyFromBase58("CCTPmbSD7gX1bxKPAmg77w8oFzNFpaQiQUWD43TKaecd")
	v1TokenMessenger     = solana.MustPublicKeyFromBase58("CCTPiPYPc6AsJuwueEnWgSgucamXDZwBd53dQ11YiKX3")
)

// Seeds.
var (
	seedConfig          = []byte("config")
	seedRent            = []byte("rent")
	seedChainConfig     = []byte("chain_config")
	seedPrices          = []byte("prices")
	seedEventAuthority  = []byte("__event_authority")
	seedDenylist        = []byte("denylist_account")
	seedRemoteMessenger = []byte("remote_token_messenger")
)

// oracleChainIDs are the wormhole-style chain ids the oracle keys its price
// accounts by. They follow the wormhole table except where the oracle was
// seeded before a chain got its final id.
var oracleChainIDs = map[types.Network]map[types.Domain]uint16{
	types.Mainnet: {
		types.Ethereum: 2, types.Avalanche: 6, types.Optimism: 24, types.Arbitrum: 23,
		types.Base: 30, types.Polygon: 5, types.Sui: 21, types.Aptos: 22,
		types.Unichain: 44, types.Linea: 38, types.Codex: 54, types.Sonic: 52,
		types.Worldchain: 45,
	},
	types.Testnet: {
		types.Ethereum: 10002, types.Avalanche: 6, types.Optimism: 10005, types.Arbitrum: 10003,
		types.Base: 10004, types.Polygon: 10007, types.Sui: 21, types.Aptos: 22,
		types.Unichain: 44, types.Linea: 38, types.Codex: 54, types.Sonic: 52,
		types.Worldchain: 45,
	},
}

// OracleChainID returns the oracle's id for d.
func OracleChainID(n types.Network, d types.Domain) (uint16, bool) {
	id, ok := oracleChainIDs[n][d]
	return id, ok
}

// findPDA panics only if no bump yields an off-curve address, which does not
// happen for the short seeds used here.
func findPDA(program solana.PublicKey, seeds ...[]byte) (solana.PublicKey, uint8) {
	addr, bump, err := solana.FindProgramAddress(seeds, program)
	if err != nil {
		panic(fmt.Sprintf("solana: derive PDA of %s: %v", program, err))
	}
	return addr, bump
}

func pda(program solana.PublicKey, seeds ...[]byte) solana.PublicKey {
	addr, _ := findPDA(program, seeds...)
	return addr
}

// ConfigAddress is the CCTPR config account.
func (c *CctpR) ConfigAddress() solana.PublicKey { return pda(c.ID, seedConfig) }

// RentCustodian pays for and receives back the rent of CCTP message accounts.
func (c *CctpR) RentCustodian() solana.PublicKey { return pda(c.ID, seedRent) }

// EventAuthority signs the program's self-CPI event emission.
func (c *CctpR) EventAuthority() solana.PublicKey { return pda(c.ID, seedEventAuthority) }

// OracleConfigAddress holds the SOL price.
func (c *CctpR) OracleConfigAddress() solana.PublicKey { return pda(c.Oracle, seedConfig) }

// ChainConfigAddress is the per-destination fee adjustment account.
func (c *CctpR) ChainConfigAddress(d types.Domain) (solana.PublicKey, error) {
	id, ok := d.ID()
	if !ok {
		return solana.PublicKey{}, fmt.Errorf("unknown domain %q", d)
	}
	return pda(c.ID, seedChainConfig, []byte{byte(id)}), nil
}

// PricesAddress is the oracle's price account for d.
func (c *CctpR) PricesAddress(d types.Domain) (solana.PublicKey, error) {
	id, ok := OracleChainID(c.Network, d)
	if !ok {
		return solana.PublicKey{}, fmt.Errorf("no oracle chain id for %s %s", c.Network, d)
	}
	var seed [2]byte
	binary.BigEndian.PutUint16(seed[:], id)
	return pda(c.Oracle, seedPrices, seed[:]), nil
}

// EventDataAddress is the account CCTP writes the burn message into. The seed
// makes it unique per user and transfer.
func (c *CctpR) EventDataAddress(user solana.PublicKey, seed []byte) (solana.PublicKey, uint8) {
	return findPDA(c.ID, user[:], seed)
}

// UsdcMint returns the network's USDC mint.
func UsdcMint(n types.Network) (solana.PublicKey, error) {
	addr, ok := types.UsdcContract(n, types.Solana)
	if !ok {
		return solana.PublicKey{}, fmt.Errorf("no USDC mint on %s", n)
	}
	return solana.PublicKeyFromBase58(addr)
}

// AssociatedTokenAddress returns owner's token account for mint.
func AssociatedTokenAddress(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive token account of %s: %w", owner, err)
	}
	return ata, nil
}

// CctpAccounts are the CCTP program accounts a depositForBurn CPI touches.
type CctpAccounts struct {
	Version                  int
	MessageTransmitter       solana.PublicKey
	TokenMessenger           solana.PublicKey
	MessageTransmitterConfig solana.PublicKey
	TokenMessengerConfig     solana.PublicKey
	TokenMinter              solana.PublicKey
	SenderAuthority          solana.PublicKey
	EventAuthority           solana.PublicKey
	LocalToken               solana.PublicKey
}

// NewCctpAccounts derives the accounts of CCTP version on n.
func NewCctpAccounts(n types.Network, version int) (CctpAccounts, error) {
	mint, err := UsdcMint(n)
	if err != nil {
		return CctpAccounts{}, err
	}
	a := CctpAccounts{Version: version}
	switch version {
	case types.CctpV1:
		a.MessageTransmitter, a.TokenMessenger = v1MessageTransmitter, v1TokenMessenger
	case types.CctpV2:
		v2, ok := types.CctpV2Contracts(n, types.Solana)
		if !ok {
			return CctpAccounts{}, fmt.Errorf("no CCTP v2 programs on %s", n)
		}
		if a.MessageTransmitter, err = solana.PublicKeyFromBase58(v2.MessageTransmitter); err != nil {
			return CctpAccounts{}, fmt.Errorf("message transmitter: %w", err)
		}
		if a.TokenMessenger, err = solana.PublicKeyFromBase58(v2.TokenMessenger); err != nil {
			return CctpAccounts{}, fmt.Errorf("token messenger: %w", err)
		}
	default:
		return CctpAccounts{}, fmt.Errorf("unknown CCTP version %d", version)
	}
	a.MessageTransmitterConfig = pda(a.MessageTransmitter, []byte("message_transmitter"))
	a.TokenMessengerConfig = pda(a.TokenMessenger, []byte("token_messenger"))
	a.TokenMinter = pda(a.TokenMessenger, []byte("token_minter"))
	a.SenderAuthority = pda(a.TokenMessenger, []byte("sender_authority"))
	a.EventAuthority = pda(a.TokenMessenger, seedEventAuthority)
	a.LocalToken = pda(a.TokenMessenger, []byte("local_token"), mint[:])
	return a, nil
}

// RemoteTokenMessenger is the registered token messenger of d. The domain id
// is seeded as its decimal string.
func (a CctpAccounts) RemoteTokenMessenger(d types.Domain) (solana.PublicKey, error) {
	id, ok := d.ID()
	if !ok {
		return solana.PublicKey{}, fmt.Errorf("unknown domain %q", d)
	}
	return pda(a.TokenMessenger, seedRemoteMessenger, []byte(strconv.FormatUint(uint64(id), 10))), nil
}

// Denylist is the v2 denylist marker of user. v1 has none.
func (a CctpAccounts) Denylist(user solana.PublicKey) (solana.PublicKey, bool) {
	if a.Version != types.CctpV2 {
		return solana.PublicKey{}, false
	}
	return pda(a.TokenMessenger, seedDenylist, user[:]), true
}
