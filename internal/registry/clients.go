package registry

import (
	"context"

	"github.com/yourorg/cctpr-engine/internal/types"
)

// ClientConstructor dials the chain client for one domain. The concrete return
// type is the platform package's client interface.
type ClientConstructor func(ctx context.Context, network types.Network, domain types.Domain, rpcURL string) (any, error)

// Clients is the process-wide client constructor registry.
var Clients = New[ClientConstructor]("clients")

// Dial looks up the constructor for domain's platform and calls it.
func Dial(ctx context.Context, network types.Network, domain types.Domain, rpcURL string) (any, error) {
	ctor, err := Clients.Lookup(domain.Platform())
	if err != nil {
		return nil, err
	}
	return ctor(ctx, network, domain, rpcURL)
}
