package config

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/yourorg/cctpr-engine/internal/types"
)

// Deployment is the persisted record of a CCTPR deployment. It replaces the
// built-in contract addresses of its network.
type Deployment struct {
	Network           string            `mapstructure:"network"`
	CctprProgram      string            `mapstructure:"cctpr_program"`
	CctprBuffer       string            `mapstructure:"cctpr_buffer"`
	CctprDeployer     string            `mapstructure:"cctpr_deployer"`
	CctprNewOwner     string            `mapstructure:"cctpr_new_owner"`
	CctprFeeRecipient string            `mapstructure:"cctpr_fee_recipient"`
	PrioritizationFee uint64            `mapstructure:"prioritization_fee"`
	EvmContracts      map[string]string `mapstructure:"evm_contracts"`
	AvaxRouter        string            `mapstructure:"avax_router"`
}

// LoadDeployment reads the deployment file at path. Any key can be overridden
// by a CCTPR_ prefixed environment variable (CCTPR_AVAX_ROUTER, ...).
func LoadDeployment(path string) (*Deployment, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if !strings.Contains(path, ".") {
		v.SetConfigType("json")
	}
	v.SetEnvPrefix("CCTPR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range []string{"network", "cctpr_program", "avax_router", "prioritization_fee"} {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading deployment config: %w", err)
	}
	var d Deployment
	if err := v.Unmarshal(&d); err != nil {
		return nil, fmt.Errorf("error unmarshaling deployment config: %w", err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"path":      path,
		"contracts": len(d.EvmContracts),
	}).Info("Loaded deployment config")
	return &d, nil
}

// Validate checks every address in d.
func (d *Deployment) Validate() error {
	if d.CctprProgram != "" {
		if _, err := solana.PublicKeyFromBase58(d.CctprProgram); err != nil {
			return fmt.Errorf("invalid cctpr_program %q: %w", d.CctprProgram, err)
		}
	}
	for name, addr := range d.EvmContracts {
		dom, err := types.ParseDomain(name)
		if err != nil {
			return fmt.Errorf("evm_contracts: %w", err)
		}
		if dom.Platform() != types.PlatformEvm {
			return fmt.Errorf("evm_contracts: %s is not an EVM domain", dom)
		}
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("evm_contracts: invalid address %q for %s", addr, dom)
		}
	}
	if d.AvaxRouter != "" && !common.IsHexAddress(d.AvaxRouter) {
		return fmt.Errorf("invalid avax_router %q", d.AvaxRouter)
	}
	return nil
}

// Apply installs the deployment's addresses in the static tables of n. The
// deployment's own network, when set, must match.
func (d *Deployment) Apply(n types.Network) error {
	if d.Network != "" {
		dn, err := types.ParseNetwork(d.Network)
		if err != nil {
			return err
		}
		if dn != n {
			return fmt.Errorf("deployment is for %s, not %s", dn, n)
		}
	}
	if d.CctprProgram != "" {
		types.OverrideContractAddress(n, types.Solana, d.CctprProgram)
	}
	for name, addr := range d.EvmContracts {
		dom, err := types.ParseDomain(name)
		if err != nil {
			return err
		}
		types.OverrideContractAddress(n, dom, common.HexToAddress(addr).Hex())
	}
	if d.AvaxRouter != "" {
		types.OverrideAvaxRouter(n, common.HexToAddress(d.AvaxRouter).Hex())
	}
	return nil
}
