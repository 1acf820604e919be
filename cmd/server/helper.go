package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/cctpr-engine/internal/config"
	"github.com/yourorg/cctpr-engine/internal/evm"
	"github.com/yourorg/cctpr-engine/internal/fetch"
	"github.com/yourorg/cctpr-engine/internal/registry"
	"github.com/yourorg/cctpr-engine/internal/security"
	"github.com/yourorg/cctpr-engine/internal/solana"
	"github.com/yourorg/cctpr-engine/internal/types"
)

// clientCache dials each domain's chain client once, from the RPC_<DOMAIN>
// endpoints of the config.
type clientCache struct {
	cfg     config.Config
	mu      sync.Mutex
	clients map[types.Domain]any
}

func newClientCache(cfg config.Config) *clientCache {
	return &clientCache{cfg: cfg, clients: make(map[types.Domain]any)}
}

func (c *clientCache) get(ctx context.Context, n types.Network, d types.Domain) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if client, ok := c.clients[d]; ok {
		return client, nil
	}
	url, ok := c.cfg.RPC(d)
	if !ok {
		return nil, fmt.Errorf("no RPC endpoint for %s (set RPC_%s)", d, strings.ToUpper(string(d)))
	}
	client, err := registry.Dial(ctx, n, d, url)
	if err != nil {
		return nil, err
	}
	c.clients[d] = client
	logrus.WithField("domain", d).Debug("Dialed chain client")
	return client, nil
}

func (c *clientCache) evm(ctx context.Context, n types.Network, d types.Domain) (evm.Client, error) {
	client, err := c.get(ctx, n, d)
	if err != nil {
		return nil, err
	}
	ec, ok := client.(evm.Client)
	if !ok {
		return nil, fmt.Errorf("client of %s is %T, not an EVM client", d, client)
	}
	return ec, nil
}

func (c *clientCache) solana(ctx context.Context, n types.Network, d types.Domain) (solana.Client, error) {
	client, err := c.get(ctx, n, d)
	if err != nil {
		return nil, err
	}
	sc, ok := client.(solana.Client)
	if !ok {
		return nil, fmt.Errorf("client of %s is %T, not a Solana client", d, client)
	}
	return sc, nil
}

// Close releases the EVM connections.
func (c *clientCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, client := range c.clients {
		if closer, ok := client.(interface{ Close() }); ok {
			closer.Close()
		}
	}
}

// buildDeps wires the platform implementations and the external service
// clients for cfg.
func buildDeps(cfg config.Config) (Deps, func(), error) {
	if cfg.DeploymentConfig != "" {
		d, err := config.LoadDeployment(cfg.DeploymentConfig)
		if err != nil {
			return Deps{}, nil, err
		}
		if err := d.Apply(cfg.Network); err != nil {
			return Deps{}, nil, err
		}
	}

	clients := newClientCache(cfg)
	evm.Register(clients.evm)
	solana.Register(clients.solana)

	iris := fetch.NewIrisClient(fetch.IrisConfig{BaseURL: cfg.IrisURL, Network: cfg.Network, Timeout: cfg.RequestTimeout})
	deps := Deps{
		Fast:         iris,
		Attestations: iris,
		Receives:     fetch.NewExplorerClient(cfg.ExplorerURL),
	}

	if cfg.GaslessEnabled {
		gasless, err := fetch.NewGaslessClient(cfg.Network, cfg.GaslessURL)
		switch {
		case errors.Is(err, fetch.ErrGaslessUnavailable):
			logrus.WithField("network", cfg.Network).Info("No gasless relayer, gasless routes disabled")
		case err != nil:
			return Deps{}, nil, err
		default:
			deps.Gasless = gasless
		}
	}

	if cfg.QuoterPrivateKey != "" {
		signer, err := security.NewSigner(cfg.QuoterPrivateKey, cfg.QuoteValidity)
		if err != nil {
			return Deps{}, nil, err
		}
		deps.Signer = signer
	}

	logrus.WithFields(logrus.Fields{
		"network": cfg.Network,
		"chains":  len(cfg.Chains),
		"gasless": deps.Gasless != nil,
		"signer":  deps.Signer != nil,
	}).Info("Dependencies initialized")
	return deps, clients.Close, nil
}
