// Package types contains the static network, domain and platform tables shared
// across the relay engine.
package types

import (
	"fmt"
	"strings"
)

// Network selects which set of static tables applies.
type Network string

const (
	Mainnet Network = "Mainnet"
	Testnet Network = "Testnet"
)

// Networks lists every supported network.
var Networks = []Network{Mainnet, Testnet}

// ParseNetwork accepts any casing of "mainnet" or "testnet".
func ParseNetwork(s string) (Network, error) {
	for _, n := range Networks {
		if strings.EqualFold(string(n), s) {
			return n, nil
		}
	}
	return "", fmt.Errorf("unknown network %q", s)
}

// Platform is the VM family a domain belongs to.
type Platform string

const (
	PlatformEvm      Platform = "Evm"
	PlatformSolana   Platform = "Solana"
	PlatformCosmwasm Platform = "Cosmwasm"
	PlatformSui      Platform = "Sui"
	PlatformAptos    Platform = "Aptos"
)

// Domain is a logical chain, named as Circle names it.
type Domain string

// Domains in Circle domain id order.
const (
	Ethereum   Domain = "Ethereum"
	Avalanche  Domain = "Avalanche"
	Optimism   Domain = "Optimism"
	Arbitrum   Domain = "Arbitrum"
	Noble      Domain = "Noble"
	Solana     Domain = "Solana"
	Base       Domain = "Base"
	Polygon    Domain = "Polygon"
	Sui        Domain = "Sui"
	Aptos      Domain = "Aptos"
	Unichain   Domain = "Unichain"
	Linea      Domain = "Linea"
	Codex      Domain = "Codex"
	Sonic      Domain = "Sonic"
	Worldchain Domain = "Worldchain"
)

// Domains lists every domain; the index is the Circle domain id.
var Domains = []Domain{
	Ethereum, Avalanche, Optimism, Arbitrum, Noble, Solana, Base, Polygon,
	Sui, Aptos, Unichain, Linea, Codex, Sonic, Worldchain,
}

var domainPlatform = map[Domain]Platform{
	Noble:  PlatformCosmwasm,
	Solana: PlatformSolana,
	Sui:    PlatformSui,
	Aptos:  PlatformAptos,
}

// ID returns the Circle domain id, or false for an unknown domain.
func (d Domain) ID() (uint32, bool) {
	for i, x := range Domains {
		if x == d {
			return uint32(i), true
		}
	}
	return 0, false
}

// MustID is ID for domains known to be valid.
func (d Domain) MustID() uint32 {
	id, ok := d.ID()
	if !ok {
		panic(fmt.Sprintf("unknown domain %q", string(d)))
	}
	return id
}

// Platform returns the VM family of d. Unlisted domains are EVM chains.
func (d Domain) Platform() Platform {
	if p, ok := domainPlatform[d]; ok {
		return p
	}
	return PlatformEvm
}

// DomainOfID maps a Circle domain id back to its Domain.
func DomainOfID(id uint32) (Domain, bool) {
	if int(id) >= len(Domains) {
		return "", false
	}
	return Domains[id], true
}

// ParseDomain accepts a domain name in any casing.
func ParseDomain(s string) (Domain, error) {
	for _, d := range Domains {
		if strings.EqualFold(string(d), s) {
			return d, nil
		}
	}
	return "", fmt.Errorf("unknown domain %q", s)
}

// ChainConfig holds connection settings for a single domain
type ChainConfig struct {
	Enabled     bool   `json:"enabled"`
	RPCEndpoint string `json:"rpc_endpoint"`
}
