// Package chain provides read and write access to the Streme contracts on an
// EVM network.
package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ---------------------------------------------------------------------------
// Client Interface
// ---------------------------------------------------------------------------

// Client is the interface for chain interactions.
// Implementations: EVMClient (live RPC), StubClient (testing).
type Client interface {
	// GenerateSalt asks the Streme contract for the salt and the address the
	// token will be deployed at.
	GenerateSalt(ctx context.Context, symbol string, requestor, tokenFactory, pairedToken common.Address) ([32]byte, common.Address, error)

	// DeployToken signs and submits deployToken with signer, then waits for
	// the receipt. Nonce conflicts are reported as ErrNonceExpired or
	// ErrReplacementUnderpriced.
	DeployToken(ctx context.Context, signer *Signer, req DeployRequest, gas GasOptions) (*Receipt, error)

	// GetPool returns the Uniswap v3 pool for a token pair and fee tier.
	GetPool(ctx context.Context, tokenA, tokenB common.Address, fee uint32) (common.Address, error)

	// PoolFromEvents scans PoolCreated logs in block for a pool containing token.
	PoolFromEvents(ctx context.Context, token common.Address, block uint64) (common.Address, error)

	// StakingData scans StakedTokenCreated logs in block for token.
	StakingData(ctx context.Context, token common.Address, block uint64) (StakingData, error)

	TotalSupply(ctx context.Context, token common.Address) (*big.Int, error)
	BalanceOf(ctx context.Context, token, holder common.Address) (*big.Int, error)
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)

	// PoolTotalUnits returns the total units of a distribution pool.
	PoolTotalUnits(ctx context.Context, pool common.Address) (*big.Int, error)

	// MemberStats reads the per-member figures of a distribution pool.
	MemberStats(ctx context.Context, pool, member common.Address) (*MemberStats, error)

	// IsMemberConnected reports whether member is connected to pool.
	IsMemberConnected(ctx context.Context, pool, member common.Address) (bool, error)

	// Health returns the RPC endpoint health.
	Health(ctx context.Context) error
}

// PoolConfig is the ABI shape of the liquidity pool settings.
type PoolConfig struct {
	Tick        *big.Int // int24
	PairedToken common.Address
	DevBuyFee   *big.Int // uint24
}

// TokenConfig is the ABI shape of the deployToken token configuration.
type TokenConfig struct {
	Name       string
	Symbol     string
	Supply     *big.Int // uint256
	Fee        *big.Int // uint24
	Salt       [32]byte
	Deployer   common.Address
	Fid        *big.Int // uint256
	Image      string
	CastHash   string
	PoolConfig PoolConfig
}

// DeployRequest holds the arguments of deployToken.
type DeployRequest struct {
	TokenFactory      common.Address
	PostDeployFactory common.Address
	LPFactory         common.Address
	PostLPHook        common.Address
	Config            TokenConfig
}

// GasOptions overrides fee fields of the submitted transaction. Zero values
// leave the field to the client.
type GasOptions struct {
	GasPrice             *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	GasLimit             uint64
}

// IsZero reports whether no override is set.
func (g GasOptions) IsZero() bool {
	return g.GasPrice == nil && g.MaxFeePerGas == nil && g.MaxPriorityFeePerGas == nil && g.GasLimit == 0
}

// Receipt is the confirmed outcome of a deployment transaction.
type Receipt struct {
	TxHash      string
	BlockNumber uint64
	// TokenAddress is the emitter of the first ERC-20 mint in the receipt,
	// or the zero address when none was observed.
	TokenAddress common.Address
}

// StakingData links a deposit token to its staked token and reward pool.
type StakingData struct {
	StakeToken common.Address
	Pool       common.Address
}

// Found reports whether a staking deployment was located.
func (s StakingData) Found() bool {
	return s.StakeToken != (common.Address{})
}

// MemberStats holds the raw per-member distribution pool values.
type MemberStats struct {
	Units     *big.Int // uint128
	FlowRate  *big.Int // int96, wei per second
	Claimable *big.Int // int256
	Received  *big.Int // uint256
}

// Signer is a private key and its address.
type Signer struct {
	Key     *ecdsa.PrivateKey
	Address common.Address
}

// NewSigner parses a hex private key with or without 0x prefix.
func NewSigner(hexKey string) (*Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("chain: parse signer key: %w", err)
	}
	return &Signer{Key: key, Address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

// LowerHex returns the lower-cased 0x form of addr.
func LowerHex(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}
