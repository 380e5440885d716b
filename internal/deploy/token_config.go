package deploy

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/streme-fun/streme-bot/internal/chain"
)

// Fixed deployment parameters shared by every Streme token.
const (
	SupplyWholeTokens = 100_000_000_000
	TokenFee          = 10000
	PoolTick          = -230400
	DevBuyFee         = 10000
)

// TokenSupply is the fixed supply in 18-decimal base units.
var TokenSupply = new(big.Int).Mul(big.NewInt(SupplyWholeTokens), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

// DefaultPoolConfig pairs the token with pairedToken at the launch tick.
func DefaultPoolConfig(pairedToken common.Address) chain.PoolConfig {
	return chain.PoolConfig{
		Tick:        big.NewInt(PoolTick),
		PairedToken: pairedToken,
		DevBuyFee:   big.NewInt(DevBuyFee),
	}
}

// NewTokenConfig assembles the deployToken configuration for a predicted salt.
func NewTokenConfig(name, symbol string, salt [32]byte, deployer common.Address, fid int64, image, castHash string, pool chain.PoolConfig) chain.TokenConfig {
	return chain.TokenConfig{
		Name:       name,
		Symbol:     symbol,
		Supply:     new(big.Int).Set(TokenSupply),
		Fee:        big.NewInt(TokenFee),
		Salt:       salt,
		Deployer:   deployer,
		Fid:        big.NewInt(fid),
		Image:      image,
		CastHash:   castHash,
		PoolConfig: pool,
	}
}
