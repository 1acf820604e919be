package route

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/cctpr-engine/internal/types"
)

func TestUniversalAddress(t *testing.T) {
	nobleAddr := "0x" + "ab" + string(bytes.Repeat([]byte("00"), 31))

	tests := []struct {
		name    string
		domain  types.Domain
		addr    string
		want    []byte
		wantErr bool
	}{
		{
			name:   "evm left padded",
			domain: types.Arbitrum,
			addr:   testRecipient,
			want:   append(make([]byte, 12), bytes.Repeat([]byte{0x22}, 20)...),
		},
		{name: "evm invalid", domain: types.Ethereum, addr: "0x1234", wantErr: true},
		{name: "solana base58", domain: types.Solana, addr: "11111111111111111111111111111111", want: make([]byte, 32)},
		{name: "solana invalid", domain: types.Solana, addr: "0OIl", wantErr: true},
		{name: "other platforms take 32 bytes", domain: types.Noble, addr: nobleAddr, want: append([]byte{0xab}, make([]byte, 31)...)},
		{name: "other platforms reject short", domain: types.Noble, addr: "0xabcd", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := UniversalAddress(tt.domain, tt.addr)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
