package types

import (
	"sync"

	"github.com/yourorg/cctpr-engine/internal/amount"
)

type table[T any] map[Network]map[Domain]T

func (t table[T]) get(n Network, d Domain) (T, bool) {
	v, ok := t[n][d]
	return v, ok
}

// Chain ids as the chains themselves report them. EVM chains are decimal,
// Solana uses its genesis hash and Noble its cosmos chain id.
var chainIDs = table[string]{
	Mainnet: {
		Ethereum: "1", Avalanche: "43114", Optimism: "10", Arbitrum: "42161",
		Noble: "noble-1", Solana: "5eykt4UsFv8P8NJdTREpY1vzqKqZKvdpKuc147dw2N9d",
		Base: "8453", Polygon: "137", Unichain: "130", Linea: "59144",
		Codex: "81224", Sonic: "146", Worldchain: "480",
	},
	Testnet: {
		Ethereum: "11155111", Avalanche: "43113", Optimism: "11155420", Arbitrum: "421614",
		Noble: "grand-1", Solana: "EtWTRABZaYq6iMfeYKouRu166VU2xqa1wcaWoxPkrZBG",
		Base: "84532", Polygon: "80002", Unichain: "1301", Linea: "59141",
		Codex: "812242", Sonic: "57054", Worldchain: "4801",
	},
}

var wormholeIDs = table[uint16]{
	Mainnet: {
		Ethereum: 2, Avalanche: 6, Optimism: 24, Arbitrum: 23, Noble: 4009, Solana: 1,
		Base: 30, Polygon: 5, Sui: 21, Aptos: 22, Unichain: 44, Linea: 41, Codex: 54,
		Sonic: 52, Worldchain: 45,
	},
	Testnet: {
		Ethereum: 10002, Avalanche: 6, Optimism: 10005, Arbitrum: 10003, Noble: 4009,
		Solana: 1, Base: 10004, Polygon: 10007, Sui: 21, Aptos: 22, Unichain: 44,
		Linea: 38, Sonic: 52, Worldchain: 45,
	},
}

var usdcContracts = table[string]{
	Mainnet: {
		Ethereum:   "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		Avalanche:  "0xB97EF9Ef8734C71904D8002F8b6Bc66Dd9c48a6E",
		Optimism:   "0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85",
		Arbitrum:   "0xaf88d065e77c8cC2239327C5EDb3A432268e5831",
		Solana:     "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		Base:       "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		Polygon:    "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359",
		Unichain:   "0x078D782b760474a361dDA0AF3839290b0EF57AD6",
		Linea:      "0x176211869cA2b568f2A7D4EE941E073a821EE1ff",
		Codex:      "0xd996633a415985DBd7D6D12f4A4343E31f5037cf",
		Sonic:      "0x29219dd400f2Bf60E5a23d13Be72B486D4038894",
		Worldchain: "0x79A02482A880bCe3F13E09da970dC34dB4cD24D1",
	},
	Testnet: {
		Ethereum:   "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238",
		Avalanche:  "0x5425890298aed601595a70AB815c96711a31Bc65",
		Optimism:   "0x5fd84259d66Cd46123540766Be93DFE6D43130D7",
		Arbitrum:   "0x75faf114eafb1BDbe2F0316DF893fd58CE46AA4d",
		Solana:     "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU",
		Base:       "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		Polygon:    "0x41E94Eb019C0762f9Bfcf9Fb1E58725BfB0e7582",
		Unichain:   "0x31d0220469e10c4E71834a79b1f276d740d3768F",
		Linea:      "0xFEce4462D57bD51A6A552365A011b95f0E16d9B7",
		Codex:      "0x6d7f141b6819C2c9CC2f818e6ad549E7Ca090F8f",
		Sonic:      "0xA4879Fed32Ecbef99399e5cbC247E533421C4eC6",
		Worldchain: "0x66145f38cBAC35Ca6F1Dfb4914dF98F1614aeA88",
	},
}

const (
	testnetCctpr       = "0x6f15237908e4f284eaddaa5d10d94ea5988f2010"
	solanaCctprProgram = "CcTPR7jH6T3T5nWmi6bPfoUqd77sWakbTczBzvaLrksM"
)

var (
	contractsMu sync.RWMutex

	// CCTPR deployments. Mainnet EVM deployments are supplied through the
	// deployment config.
	cctprContracts = table[string]{
		Mainnet: {
			Solana: solanaCctprProgram,
		},
		Testnet: {
			Ethereum:  testnetCctpr,
			Avalanche: "0x00caba778ceb384e81fcb4914f958247caad9ef5",
			Optimism:  testnetCctpr,
			Arbitrum:  testnetCctpr,
			Base:      testnetCctpr,
			Polygon:   testnetCctpr,
			Unichain:  testnetCctpr,
			Solana:    solanaCctprProgram,
		},
	}

	avaxRouters = map[Network]string{
		Testnet: "0x6f097674abc0895f9ec2cff13c8312492cf09815",
	}
)

// ChainID returns the chain's own identifier on network n.
func ChainID(n Network, d Domain) (string, bool) { return chainIDs.get(n, d) }

// WormholeChainID returns the wormhole chain id of d on network n.
func WormholeChainID(n Network, d Domain) (uint16, bool) { return wormholeIDs.get(n, d) }

// UsdcContract returns the USDC token address (mint on Solana).
func UsdcContract(n Network, d Domain) (string, bool) { return usdcContracts.get(n, d) }

// CctprContract returns the CCTPR contract (program id on Solana), or false
// when CCTPR is not deployed on d.
func CctprContract(n Network, d Domain) (string, bool) {
	contractsMu.RLock()
	defer contractsMu.RUnlock()
	addr, ok := cctprContracts.get(n, d)
	return addr, ok && addr != ""
}

// AvaxRouter returns the Avalanche router used by the avaxHop corridor.
func AvaxRouter(n Network) (string, bool) {
	contractsMu.RLock()
	defer contractsMu.RUnlock()
	addr, ok := avaxRouters[n]
	return addr, ok && addr != ""
}

// OverrideContractAddress replaces (or adds) the CCTPR address of d on n.
// Deployment config loading calls this once at startup.
func OverrideContractAddress(n Network, d Domain, address string) {
	contractsMu.Lock()
	defer contractsMu.Unlock()
	if cctprContracts[n] == nil {
		cctprContracts[n] = map[Domain]string{}
	}
	cctprContracts[n][d] = address
}

// OverrideAvaxRouter replaces the avaxHop router address on n.
func OverrideAvaxRouter(n Network, address string) {
	contractsMu.Lock()
	defer contractsMu.Unlock()
	avaxRouters[n] = address
}

// SupportedDomains returns the domains with a CCTPR deployment on n, in
// Circle domain id order.
func SupportedDomains(n Network) []Domain {
	var out []Domain
	for _, d := range Domains {
		if _, ok := CctprContract(n, d); ok {
			out = append(out, d)
		}
	}
	return out
}

// IsSupported reports whether CCTPR is deployed on d.
func IsSupported(n Network, d Domain) bool {
	_, ok := CctprContract(n, d)
	return ok
}

// GasTokenKind returns the amount kind of d's native gas token.
func GasTokenKind(d Domain) *amount.Kind {
	switch d.Platform() {
	case PlatformEvm:
		return amount.EvmGasToken
	case PlatformSolana:
		return amount.Sol
	default:
		return amount.GenericGasToken
	}
}

var gasDropoffLimits = map[Network]map[Domain]string{
	Mainnet: {Ethereum: "0.001509", Solana: "0.1"},
	Testnet: {Ethereum: "0.01509", Solana: "0.1"},
}

const defaultGasDropoffLimit = "0.00151"

// GasDropoffLimit returns the most gas token a recipient on d may ask for, in
// the destination's gas token.
func GasDropoffLimit(n Network, d Domain) amount.Amount {
	limit, ok := gasDropoffLimits[n][d]
	if !ok {
		limit = defaultGasDropoffLimit
	}
	a, err := amount.Parse(GasTokenKind(d), limit, "human")
	if err != nil {
		panic(err)
	}
	return a
}

// RelayOverhead is the time the relayer needs on d after attestation.
func RelayOverhead(n Network, _ Domain) amount.Amount {
	if n == Testnet {
		return amount.Seconds(amount.R(6))
	}
	return amount.Seconds(amount.R(30))
}
