package types

import "github.com/yourorg/cctpr-engine/internal/amount"

// CCTP protocol versions.
const (
	CctpV1 = 1
	CctpV2 = 2
)

// Finality thresholds accepted by CCTP v2 depositForBurn.
const (
	FinalityTokenMessengerMin uint32 = 500
	FinalityConfirmed         uint32 = 1000
	FinalityFinalized         uint32 = 2000
)

var (
	v1Domains = []Domain{
		Ethereum, Avalanche, Optimism, Arbitrum, Noble, Solana, Base, Polygon,
		Sui, Aptos, Unichain,
	}
	v2Domains = []Domain{
		Ethereum, Avalanche, Arbitrum, Optimism, Polygon, Unichain, Base, Solana,
		Linea, Codex, Sonic, Worldchain,
	}
	v2FastDomains = []Domain{Avalanche}
)

func contains(ds []Domain, d Domain) bool {
	for _, x := range ds {
		if x == d {
			return true
		}
	}
	return false
}

// IsV1Domain reports whether d supports CCTP v1. Both networks share the set.
func IsV1Domain(_ Network, d Domain) bool { return contains(v1Domains, d) }

// IsV2Domain reports whether d supports CCTP v2.
func IsV2Domain(_ Network, d Domain) bool { return contains(v2Domains, d) }

// IsFastDomain reports whether v2 fast transfers from d are already final.
func IsFastDomain(_ Network, d Domain) bool { return contains(v2FastDomains, d) }

// V2Contracts are the CCTP v2 core contracts on a platform.
type V2Contracts struct {
	MessageTransmitter string
	TokenMessenger     string
}

var v2Contracts = map[Network]map[Platform]V2Contracts{
	Mainnet: {
		PlatformEvm: {
			MessageTransmitter: "0x81D40F21F12A8F0E3252Bccb954D722d4c464B64",
			TokenMessenger:     "0x28b5a0e9C621a5BadaA536219b3a228C8168cf5d",
		},
		PlatformSolana: {
			MessageTransmitter: "CCTPV2Sm4AdWt5296sk4P66VBZ7bEhcARwFaaS9YPbeC",
			TokenMessenger:     "CCTPV2vPZJS2u2BBsUoscuikbYjnpFmbFsvVuJdgUMQe",
		},
	},
	Testnet: {
		PlatformEvm: {
			MessageTransmitter: "0xE737e5cEBEEBa77EFE34D4aa090756590b1CE275",
			TokenMessenger:     "0x8FE6B999Dc680CcFDD5Bf7EB0974218be2542DAA",
		},
		PlatformSolana: {
			MessageTransmitter: "CCTPV2Sm4AdWt5296sk4P66VBZ7bEhcARwFaaS9YPbeC",
			TokenMessenger:     "CCTPV2vPZJS2u2BBsUoscuikbYjnpFmbFsvVuJdgUMQe",
		},
	},
}

// CctpV2Contracts returns the v2 core contracts of d, if d is a v2 domain.
func CctpV2Contracts(n Network, d Domain) (V2Contracts, bool) {
	if !IsV2Domain(n, d) {
		return V2Contracts{}, false
	}
	c, ok := v2Contracts[n][d.Platform()]
	return c, ok
}

// Attestation time estimates in seconds, measured at fast finality for v2.
var (
	v2Attestation = map[Network]map[Domain]amount.Rational{
		Mainnet: {
			Ethereum: amount.Frac(1325, 100), Avalanche: amount.R(100),
			Arbitrum: amount.Frac(471, 100), Base: amount.Frac(499, 100),
			Linea: amount.Frac(185, 100), Optimism: amount.Frac(329, 100),
			Unichain: amount.Frac(375, 100), Polygon: amount.Frac(3159, 100),
			Worldchain: amount.Frac(222, 100), Sonic: amount.Frac(332, 100),
			Codex: amount.R(10), Solana: amount.R(8),
		},
		Testnet: {
			Ethereum: amount.Frac(1676, 100), Avalanche: amount.Frac(819, 100),
			Arbitrum: amount.Frac(318, 100), Base: amount.Frac(143, 100),
			Linea: amount.R(8), Optimism: amount.Frac(85, 100),
			Unichain: amount.R(8), Polygon: amount.Frac(904, 100),
			Worldchain: amount.R(8), Sonic: amount.R(8),
			Codex: amount.R(8), Solana: amount.R(8),
		},
	}

	v1Attestation = map[Network]map[Domain]amount.Rational{
		Mainnet: {
			Ethereum: amount.R(1140), Optimism: amount.R(1140), Arbitrum: amount.R(1140),
			Base: amount.R(1140), Unichain: amount.R(1140), Avalanche: amount.R(20),
			Polygon: amount.R(480), Solana: amount.R(25), Noble: amount.R(20),
			Sui: amount.R(20), Aptos: amount.R(20),
		},
		Testnet: {
			Ethereum: amount.R(60), Solana: amount.R(25),
		},
	}
)

const defaultTestnetV1Attestation = 20

// AttestationTime estimates how long Circle takes to attest a burn on d.
func AttestationTime(n Network, version int, d Domain) (amount.Amount, bool) {
	var tbl map[Network]map[Domain]amount.Rational
	switch version {
	case CctpV1:
		if !IsV1Domain(n, d) {
			return amount.Amount{}, false
		}
		tbl = v1Attestation
	case CctpV2:
		if !IsV2Domain(n, d) {
			return amount.Amount{}, false
		}
		tbl = v2Attestation
	default:
		return amount.Amount{}, false
	}
	secs, ok := tbl[n][d]
	if !ok {
		if version != CctpV1 || n != Testnet {
			return amount.Amount{}, false
		}
		secs = amount.R(defaultTestnetV1Attestation)
	}
	return amount.Seconds(secs), true
}
