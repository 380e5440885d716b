// Package stats computes the read-side staking and reward figures of a
// token, in aggregate and for a single holder.
package stats

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/streme-fun/streme-bot/internal/chain"
	"github.com/streme-fun/streme-bot/internal/config"
	"github.com/streme-fun/streme-bot/internal/storage"
)

// ErrStakingNotFound is returned when no staking deployment is known for a
// token.
var ErrStakingNotFound = errors.New("stats: staking data not found")

// Holdings splits the token supply across the tracked contracts.
type Holdings struct {
	LPPool  float64 `json:"lpPool"`
	Staked  float64 `json:"staked"`
	Rewards float64 `json:"rewards"`
	Others  float64 `json:"others"`
}

// TokenStats are the aggregate figures of a token.
type TokenStats struct {
	Staked     float64  `json:"staked"`
	FlowRate   float64  `json:"flowRate"`
	TotalUnits float64  `json:"totalUnits"`
	APR        float64  `json:"apr"`
	Holdings   Holdings `json:"holdings"`
}

// UserTokenStats are the figures of one holder. Display amounts are rounded
// to two decimals; StakingAllowanceWei keeps the raw allowance.
type UserTokenStats struct {
	Unstaked            float64 `json:"unstaked"`
	Staked              float64 `json:"staked"`
	StakingAllowanceWei string  `json:"stakingAllowanceWei"`
	Allowance           string  `json:"allowance"`
	FlowRate            string  `json:"flowRate"`
	MemberUnits         float64 `json:"memberUnits"`
	TotalUnits          float64 `json:"totalUnits"`
	Claimable           string  `json:"claimable"`
	Received            string  `json:"received"`
	Connected           bool    `json:"connected"`
	APR                 float64 `json:"apr"`
}

// Calculator reads token figures from the chain. Token records locate the
// deployment block used to discover pools.
type Calculator struct {
	client  chain.Client
	store   storage.TokenStore
	network config.Network
	index   *chain.StakingIndex
}

// NewCalculator creates a calculator. index may be nil; when set it is
// consulted before scanning logs and filled from scans.
func NewCalculator(client chain.Client, store storage.TokenStore, net config.Network, index *chain.StakingIndex) *Calculator {
	if index == nil {
		index = chain.NewStakingIndex()
	}
	return &Calculator{client: client, store: store, network: net, index: index}
}

// TokenStats returns the aggregate figures of tokenAddress. It returns
// storage.ErrNotFound for unknown tokens.
func (c *Calculator) TokenStats(ctx context.Context, tokenAddress string) (*TokenStats, error) {
	rec, err := c.store.GetByAddress(ctx, tokenAddress)
	if err != nil {
		return nil, fmt.Errorf("stats: load token: %w", err)
	}
	token := common.HexToAddress(rec.ContractAddress)

	staking, err := c.staking(ctx, token, rec.BlockNumber)
	if err != nil {
		return nil, err
	}
	pool, err := c.pool(ctx, rec)
	if err != nil {
		return nil, err
	}
	rewards := common.HexToAddress(rec.PostDeployHook)

	var stakedSupply, lp, staked, reward *big.Int
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		stakedSupply, err = c.client.TotalSupply(gctx, staking.StakeToken)
		return err
	})
	g.Go(func() (err error) {
		lp, err = c.balance(gctx, token, pool)
		return err
	})
	g.Go(func() (err error) {
		staked, err = c.client.BalanceOf(gctx, token, staking.StakeToken)
		return err
	})
	g.Go(func() (err error) {
		reward, err = c.balance(gctx, token, rewards)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("stats: read holdings of %s: %w", rec.ContractAddress, err)
	}

	lpD, stakedD, rewardD := FromWei(lp), FromWei(staked), FromWei(reward)
	totalStaked := FromWei(stakedSupply).InexactFloat64()
	return &TokenStats{
		Staked:     totalStaked,
		FlowRate:   RewardFlowRate,
		TotalUnits: totalStaked,
		APR:        APR(RewardFlowRate, totalStaked),
		Holdings: Holdings{
			LPPool:  lpD.InexactFloat64(),
			Staked:  stakedD.InexactFloat64(),
			Rewards: rewardD.InexactFloat64(),
			Others:  TotalSupplyWhole.Sub(lpD).Sub(stakedD).Sub(rewardD).InexactFloat64(),
		},
	}, nil
}

// HolderStats returns the figures of holder for tokenAddress. It returns
// storage.ErrNotFound for unknown tokens.
func (c *Calculator) HolderStats(ctx context.Context, tokenAddress, holder string) (*UserTokenStats, error) {
	if !common.IsHexAddress(holder) {
		return nil, fmt.Errorf("stats: holder %q: %w", holder, storage.ErrInvalidInput)
	}
	rec, err := c.store.GetByAddress(ctx, tokenAddress)
	if err != nil {
		return nil, fmt.Errorf("stats: load token: %w", err)
	}
	token := common.HexToAddress(rec.ContractAddress)
	member := common.HexToAddress(holder)

	staking, err := c.staking(ctx, token, rec.BlockNumber)
	if err != nil {
		return nil, err
	}

	var (
		unstaked, staked, allowance, totalUnits *big.Int
		ms                                      *chain.MemberStats
		connected                               bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		unstaked, err = c.client.BalanceOf(gctx, token, member)
		return err
	})
	g.Go(func() (err error) {
		staked, err = c.client.BalanceOf(gctx, staking.StakeToken, member)
		return err
	})
	g.Go(func() (err error) {
		allowance, err = c.client.Allowance(gctx, token, member, staking.StakeToken)
		return err
	})
	g.Go(func() (err error) {
		totalUnits, err = c.client.PoolTotalUnits(gctx, staking.Pool)
		return err
	})
	g.Go(func() (err error) {
		ms, err = c.client.MemberStats(gctx, staking.Pool, member)
		return err
	})
	g.Go(func() (err error) {
		connected, err = c.client.IsMemberConnected(gctx, staking.Pool, member)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("stats: read holder %s of %s: %w", holder, rec.ContractAddress, err)
	}

	// The APR follows the displayed two-decimal flow rate.
	flow := FromWei(ms.FlowRate).Round(2)
	units := bigFloat(ms.Units)
	return &UserTokenStats{
		Unstaked:            FromWei(unstaked).InexactFloat64(),
		Staked:              FromWei(staked).InexactFloat64(),
		StakingAllowanceWei: orZero(allowance).String(),
		Allowance:           FromWei(allowance).String(),
		FlowRate:            flow.StringFixed(2),
		MemberUnits:         units,
		TotalUnits:          bigFloat(totalUnits),
		Claimable:           FromWei(ms.Claimable).StringFixed(2),
		Received:            FromWei(ms.Received).StringFixed(2),
		Connected:           connected,
		APR:                 APR(flow.InexactFloat64(), units),
	}, nil
}

// staking resolves the staked token and reward pool of token, first from
// the live index and then from the deployment block's logs.
func (c *Calculator) staking(ctx context.Context, token common.Address, block uint64) (chain.StakingData, error) {
	if d, ok := c.index.Get(token); ok && d.Found() {
		return d, nil
	}
	d, err := c.client.StakingData(ctx, token, block)
	if err != nil {
		return chain.StakingData{}, fmt.Errorf("stats: staking data: %w", err)
	}
	if !d.Found() {
		return chain.StakingData{}, fmt.Errorf("%w for %s", ErrStakingNotFound, chain.LowerHex(token))
	}
	c.index.Put(token, d)
	return d, nil
}

// pool returns the liquidity pool of rec: the recorded address, the factory
// lookup, or the PoolCreated log of the deployment block, in that order.
// The zero address means no pool was found.
func (c *Calculator) pool(ctx context.Context, rec *storage.TokenRecord) (common.Address, error) {
	if rec.PoolAddress != "" {
		return common.HexToAddress(rec.PoolAddress), nil
	}
	token := common.HexToAddress(rec.ContractAddress)

	paired := rec.PoolConfig.PairedToken
	if paired == "" {
		paired = c.network.Addresses.WETH
	}
	fee := rec.PoolConfig.DevBuyFee
	if fee == 0 {
		fee = 10000
	}

	pool, err := c.client.GetPool(ctx, token, common.HexToAddress(paired), fee)
	if err != nil {
		return common.Address{}, fmt.Errorf("stats: get pool: %w", err)
	}
	if pool != (common.Address{}) {
		return pool, nil
	}

	pool, err = c.client.PoolFromEvents(ctx, token, rec.BlockNumber)
	if err != nil {
		return common.Address{}, fmt.Errorf("stats: pool from events: %w", err)
	}
	if pool == (common.Address{}) {
		log.Warn().Str("token", strings.ToLower(rec.ContractAddress)).Msg("stats: no liquidity pool found")
	}
	return pool, nil
}

// balance reads the token balance of holder, treating the zero address as
// an empty holder.
func (c *Calculator) balance(ctx context.Context, token, holder common.Address) (*big.Int, error) {
	if holder == (common.Address{}) {
		return new(big.Int), nil
	}
	return c.client.BalanceOf(ctx, token, holder)
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func bigFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
