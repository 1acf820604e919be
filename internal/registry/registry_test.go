package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/cctpr-engine/internal/types"
)

func TestRegistry(t *testing.T) {
	r := New[string]("test")

	_, err := r.Lookup(types.PlatformEvm)
	assert.ErrorIs(t, err, ErrNotRegistered)
	_, err = r.Lookup(types.PlatformSolana)
	assert.ErrorIs(t, err, ErrNotRegistered)

	r.Register(types.PlatformSolana, "sol")
	r.Register(types.PlatformEvm, "evm")

	got, err := r.Lookup(types.PlatformEvm)
	require.NoError(t, err)
	assert.Equal(t, "evm", got)
	assert.Equal(t, []types.Platform{types.PlatformEvm, types.PlatformSolana}, r.Platforms())
}

func TestDial(t *testing.T) {
	called := ""
	Clients.Register(types.PlatformSui, func(_ context.Context, _ types.Network, d types.Domain, url string) (any, error) {
		called = string(d) + "@" + url
		return 42, nil
	})
	c, err := Dial(context.Background(), types.Testnet, types.Sui, "http://sui")
	require.NoError(t, err)
	assert.Equal(t, 42, c)
	assert.Equal(t, "Sui@http://sui", called)

	_, err = Dial(context.Background(), types.Testnet, types.Aptos, "")
	assert.ErrorIs(t, err, ErrNotRegistered)
}
