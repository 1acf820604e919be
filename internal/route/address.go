package route

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gagliardetto/solana-go"

	"github.com/yourorg/cctpr-engine/internal/cctpr"
	"github.com/yourorg/cctpr-engine/internal/types"
)

// UniversalAddress encodes addr, written in d's native format, as the 32-byte
// address CCTP uses on the wire.
func UniversalAddress(d types.Domain, addr string) ([]byte, error) {
	switch d.Platform() {
	case types.PlatformEvm:
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("invalid %s address %q", d, addr)
		}
		return common.LeftPadBytes(common.HexToAddress(addr).Bytes(), cctpr.UniversalAddressSize), nil
	case types.PlatformSolana:
		pk, err := solana.PublicKeyFromBase58(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid %s address %q: %w", d, addr, err)
		}
		return pk.Bytes(), nil
	}
	raw, err := hexutil.Decode(addr)
	if err != nil || len(raw) != cctpr.UniversalAddressSize {
		return nil, fmt.Errorf("invalid %s address %q: want 32 hex-encoded bytes", d, addr)
	}
	return raw, nil
}
