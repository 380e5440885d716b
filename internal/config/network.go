package config

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NetworkID enumerates the chains the bot can deploy to. The set is closed:
// every switch over NetworkID must handle all three values.
type NetworkID int

const (
	NetworkBase NetworkID = iota + 1
	NetworkBaseSepolia
	NetworkAuroraTestnet
)

func (id NetworkID) String() string {
	switch id {
	case NetworkBase:
		return "base"
	case NetworkBaseSepolia:
		return "baseSepolia"
	case NetworkAuroraTestnet:
		return "aurora_testnet"
	default:
		return fmt.Sprintf("network(%d)", int(id))
	}
}

// placeholderAddress is used for every Aurora testnet contract until real
// deployments exist.
const placeholderAddress = "0x1234567890123456789012345678901234567890"

// Addresses is the contract address table of one network.
type Addresses struct {
	Streme            string `yaml:"streme"`
	StakingFactory    string `yaml:"staking_factory"`
	PostDeployFactory string `yaml:"post_deploy_factory"`
	LPFactory         string `yaml:"lp_factory"`
	SuperTokenFactory string `yaml:"super_token_factory"`
	TokenFactory      string `yaml:"token_factory"`
	LPLocker          string `yaml:"lp_locker"`
	UniswapV3Factory  string `yaml:"uniswap_v3_factory"`
	WETH              string `yaml:"weth"`
	GDAForwarder      string `yaml:"gda_forwarder"`
}

// merge returns a copy of a with every non-empty field of o applied on top.
func (a Addresses) merge(o Addresses) Addresses {
	pick := func(base, override string) string {
		if strings.TrimSpace(override) != "" {
			return strings.TrimSpace(override)
		}
		return base
	}
	return Addresses{
		Streme:            pick(a.Streme, o.Streme),
		StakingFactory:    pick(a.StakingFactory, o.StakingFactory),
		PostDeployFactory: pick(a.PostDeployFactory, o.PostDeployFactory),
		LPFactory:         pick(a.LPFactory, o.LPFactory),
		SuperTokenFactory: pick(a.SuperTokenFactory, o.SuperTokenFactory),
		TokenFactory:      pick(a.TokenFactory, o.TokenFactory),
		LPLocker:          pick(a.LPLocker, o.LPLocker),
		UniswapV3Factory:  pick(a.UniswapV3Factory, o.UniswapV3Factory),
		WETH:              pick(a.WETH, o.WETH),
		GDAForwarder:      pick(a.GDAForwarder, o.GDAForwarder),
	}
}

// validate checks that every address needed to deploy and read stats is set
// and well formed.
func (a Addresses) validate() error {
	fields := []struct {
		name  string
		value string
	}{
		{"streme", a.Streme},
		{"staking_factory", a.StakingFactory},
		{"post_deploy_factory", a.PostDeployFactory},
		{"lp_factory", a.LPFactory},
		{"token_factory", a.TokenFactory},
		{"uniswap_v3_factory", a.UniswapV3Factory},
		{"weth", a.WETH},
		{"gda_forwarder", a.GDAForwarder},
	}
	for _, f := range fields {
		if f.value == "" {
			return fmt.Errorf("address %s is required", f.name)
		}
		if !common.IsHexAddress(f.value) {
			return fmt.Errorf("address %s is not a hex address: %q", f.name, f.value)
		}
	}
	return nil
}

// Network is one fully resolved deployment target. Values are only produced by
// the constructors below and are never mutated after startup.
type Network struct {
	ID            NetworkID
	DisplayName   string
	ChainID       int64
	RPCURL        string
	WSURL         string
	ExplorerURL   string
	GasAdvisorURL string // empty when the chain has no gas advisory service
	Addresses     Addresses
}

// Name returns the selector string of the network.
func (n Network) Name() string { return n.ID.String() }

// Base is Base mainnet. Streme contract addresses must come from configuration.
func Base() Network {
	return Network{
		ID:            NetworkBase,
		DisplayName:   "Base",
		ChainID:       8453,
		RPCURL:        "https://mainnet.base.org",
		WSURL:         "wss://mainnet.base.org",
		ExplorerURL:   "https://basescan.org",
		GasAdvisorURL: "https://frm.lol/api/gas/base",
		Addresses: Addresses{
			UniswapV3Factory: "0x33128a8fC17869897dcE68Ed026d694621f6FDfD",
			WETH:             "0x4200000000000000000000000000000000000006",
			GDAForwarder:     "0x6DA13Bde224A05a288748d857b9e7DDEffd1dE08",
		},
	}
}

// BaseSepolia is the Base testnet.
func BaseSepolia() Network {
	return Network{
		ID:          NetworkBaseSepolia,
		DisplayName: "Base Sepolia",
		ChainID:     84532,
		RPCURL:      "https://sepolia.base.org",
		ExplorerURL: "https://sepolia.basescan.org",
		Addresses: Addresses{
			UniswapV3Factory: "0x4752ba5DBc23f44D87826276BF6Fd6b1C372aD24",
			WETH:             "0x4200000000000000000000000000000000000006",
			GDAForwarder:     "0x6DA13Bde224A05a288748d857b9e7DDEffd1dE08",
		},
	}
}

// AuroraTestnet is the Aurora testnet with placeholder contract addresses.
func AuroraTestnet() Network {
	return Network{
		ID:          NetworkAuroraTestnet,
		DisplayName: "Aurora Testnet",
		ChainID:     1313161555,
		RPCURL:      "https://testnet.aurora.dev",
		ExplorerURL: "https://explorer.testnet.aurora.dev",
		Addresses: Addresses{
			Streme:            placeholderAddress,
			StakingFactory:    placeholderAddress,
			PostDeployFactory: placeholderAddress,
			LPFactory:         placeholderAddress,
			SuperTokenFactory: placeholderAddress,
			TokenFactory:      placeholderAddress,
			LPLocker:          placeholderAddress,
			UniswapV3Factory:  placeholderAddress,
			WETH:              placeholderAddress,
			GDAForwarder:      placeholderAddress,
		},
	}
}

// NetworkByName maps a selector string onto its network.
func NetworkByName(name string) (Network, error) {
	switch strings.TrimSpace(name) {
	case NetworkBase.String():
		return Base(), nil
	case NetworkBaseSepolia.String(), "base_sepolia":
		return BaseSepolia(), nil
	case NetworkAuroraTestnet.String():
		return AuroraTestnet(), nil
	default:
		return Network{}, fmt.Errorf("unknown network %q", name)
	}
}
