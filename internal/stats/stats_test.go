package stats

import (
	"context"
	"errors"
	"math"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streme-fun/streme-bot/internal/chain"
	"github.com/streme-fun/streme-bot/internal/config"
	"github.com/streme-fun/streme-bot/internal/storage"
	"github.com/streme-fun/streme-bot/internal/storage/memory"
)

var (
	token      = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	stakeToken = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	rewardPool = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	lpPool     = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	hook       = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	holder     = common.HexToAddress("0x00000000000000000000000000000000000000f1")
)

// wei returns whole * 10^18.
func wei(whole int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(whole), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func seed(t *testing.T, poolAddress string) (*Calculator, *chain.StubClient, *chain.StakingIndex) {
	t.Helper()
	store := memory.NewStore()
	require.NoError(t, store.Insert(context.Background(), &storage.TokenRecord{
		ContractAddress: chain.LowerHex(token),
		Timestamp:       time.Now(),
		BlockNumber:     500,
		TxHash:          "0xtx",
		CastHash:        "0xcast",
		PoolAddress:     poolAddress,
		PostDeployHook:  chain.LowerHex(hook),
		PoolConfig:      storage.PoolConfig{Tick: -230400, PairedToken: "0x4200000000000000000000000000000000000006", DevBuyFee: 10000},
	}))

	client := chain.NewStubClient(common.Address{})
	index := chain.NewStakingIndex()
	return NewCalculator(client, store, config.BaseSepolia(), index), client, index
}

func TestAPR(t *testing.T) {
	flowRate, units := 634.1958449, 1000.0
	assert.Equal(t, flowRate*31536000/units*100, APR(flowRate, units))
}

func TestAPR_ZeroUnitsGuarded(t *testing.T) {
	assert.Equal(t, 0.0, APR(634.1958449, 0))
	assert.Equal(t, 0.0, APR(634.1958449, math.NaN()))
	assert.Equal(t, 0.0, APR(634.1958449, math.Inf(1)))
}

func TestFromWei(t *testing.T) {
	assert.Equal(t, "1.5", FromWei(new(big.Int).Div(wei(3), big.NewInt(2))).String())
	assert.True(t, FromWei(nil).IsZero())
}

func TestTokenStats(t *testing.T) {
	calc, client, _ := seed(t, "")
	client.SetStakingData(token, chain.StakingData{StakeToken: stakeToken, Pool: rewardPool})
	client.SetPool(token, lpPool)
	client.SetTotalSupply(stakeToken, wei(1000))
	client.SetBalance(token, lpPool, wei(60_000_000_000))
	client.SetBalance(token, stakeToken, wei(1000))
	client.SetBalance(token, hook, wei(20_000_000_000))

	s, err := calc.TokenStats(context.Background(), chain.LowerHex(token))
	require.NoError(t, err)

	assert.Equal(t, 1000.0, s.Staked)
	assert.Equal(t, 1000.0, s.TotalUnits)
	assert.Equal(t, RewardFlowRate, s.FlowRate)
	assert.Equal(t, APR(RewardFlowRate, 1000), s.APR)
	assert.Equal(t, Holdings{
		LPPool:  60_000_000_000,
		Staked:  1000,
		Rewards: 20_000_000_000,
		Others:  19_999_999_000,
	}, s.Holdings)
}

func TestTokenStats_PoolFromEventsFallback(t *testing.T) {
	calc, client, _ := seed(t, "")
	client.SetStakingData(token, chain.StakingData{StakeToken: stakeToken, Pool: rewardPool})
	client.SetEventPool(token, lpPool)
	client.SetBalance(token, lpPool, wei(5))

	s, err := calc.TokenStats(context.Background(), chain.LowerHex(token))
	require.NoError(t, err)
	assert.Equal(t, 5.0, s.Holdings.LPPool)
	assert.Equal(t, 0.0, s.APR, "no staked supply yields a zero APR")
}

func TestTokenStats_RecordedPoolWins(t *testing.T) {
	calc, client, _ := seed(t, chain.LowerHex(lpPool))
	client.SetStakingData(token, chain.StakingData{StakeToken: stakeToken, Pool: rewardPool})
	client.SetPool(token, common.HexToAddress("0x0000000000000000000000000000000000000999"))
	client.SetBalance(token, lpPool, wei(7))

	s, err := calc.TokenStats(context.Background(), chain.LowerHex(token))
	require.NoError(t, err)
	assert.Equal(t, 7.0, s.Holdings.LPPool)
}

func TestTokenStats_UnknownToken(t *testing.T) {
	calc, _, _ := seed(t, "")
	_, err := calc.TokenStats(context.Background(), "0x0000000000000000000000000000000000000bad")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTokenStats_NoStaking(t *testing.T) {
	calc, _, _ := seed(t, "")
	_, err := calc.TokenStats(context.Background(), chain.LowerHex(token))
	assert.ErrorIs(t, err, ErrStakingNotFound)
}

func TestTokenStats_IndexConsultedFirst(t *testing.T) {
	calc, client, index := seed(t, "")
	index.Put(token, chain.StakingData{StakeToken: stakeToken, Pool: rewardPool})
	client.SetTotalSupply(stakeToken, wei(10))

	s, err := calc.TokenStats(context.Background(), chain.LowerHex(token))
	require.NoError(t, err)
	assert.Equal(t, 10.0, s.Staked)
}

func TestTokenStats_LogScanFillsIndex(t *testing.T) {
	calc, client, index := seed(t, "")
	client.SetStakingData(token, chain.StakingData{StakeToken: stakeToken, Pool: rewardPool})

	_, err := calc.TokenStats(context.Background(), chain.LowerHex(token))
	require.NoError(t, err)

	d, ok := index.Get(token)
	require.True(t, ok)
	assert.Equal(t, stakeToken, d.StakeToken)
}

func TestHolderStats(t *testing.T) {
	calc, client, _ := seed(t, "")
	client.SetStakingData(token, chain.StakingData{StakeToken: stakeToken, Pool: rewardPool})
	client.SetBalance(token, holder, wei(250))
	client.SetBalance(stakeToken, holder, wei(100))
	client.SetAllowance(token, holder, stakeToken, new(big.Int).Div(wei(3), big.NewInt(2)))
	client.SetPoolTotalUnits(rewardPool, big.NewInt(4000))
	client.SetMemberStats(rewardPool, holder, &chain.MemberStats{
		Units:     big.NewInt(100),
		FlowRate:  new(big.Int).Div(wei(1), big.NewInt(4)), // 0.25 per second
		Claimable: new(big.Int).Div(wei(10), big.NewInt(3)),
		Received:  wei(42),
	}, true)

	s, err := calc.HolderStats(context.Background(), chain.LowerHex(token), holder.Hex())
	require.NoError(t, err)

	assert.Equal(t, 250.0, s.Unstaked)
	assert.Equal(t, 100.0, s.Staked)
	assert.Equal(t, "1500000000000000000", s.StakingAllowanceWei)
	assert.Equal(t, "1.5", s.Allowance)
	assert.Equal(t, "0.25", s.FlowRate)
	assert.Equal(t, 100.0, s.MemberUnits)
	assert.Equal(t, 4000.0, s.TotalUnits)
	assert.Equal(t, "3.33", s.Claimable)
	assert.Equal(t, "42.00", s.Received)
	assert.True(t, s.Connected)
	assert.Equal(t, APR(0.25, 100), s.APR)
}

func TestHolderStats_APRUsesDisplayedFlowRate(t *testing.T) {
	calc, client, _ := seed(t, "")
	client.SetStakingData(token, chain.StakingData{StakeToken: stakeToken, Pool: rewardPool})
	client.SetMemberStats(rewardPool, holder, &chain.MemberStats{
		Units:    big.NewInt(100),
		FlowRate: new(big.Int).Div(wei(1), big.NewInt(3)), // 0.333... per second
	}, true)

	s, err := calc.HolderStats(context.Background(), chain.LowerHex(token), holder.Hex())
	require.NoError(t, err)
	assert.Equal(t, "0.33", s.FlowRate)
	assert.Equal(t, APR(0.33, 100), s.APR)
}

func TestHolderStats_NoUnits(t *testing.T) {
	calc, client, _ := seed(t, "")
	client.SetStakingData(token, chain.StakingData{StakeToken: stakeToken, Pool: rewardPool})

	s, err := calc.HolderStats(context.Background(), chain.LowerHex(token), holder.Hex())
	require.NoError(t, err)
	assert.Equal(t, 0.0, s.APR)
	assert.Equal(t, "0", s.StakingAllowanceWei)
	assert.False(t, s.Connected)
}

func TestHolderStats_InvalidHolder(t *testing.T) {
	calc, _, _ := seed(t, "")
	_, err := calc.HolderStats(context.Background(), chain.LowerHex(token), "not-an-address")
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

type failingClient struct {
	*chain.StubClient
}

func (failingClient) BalanceOf(context.Context, common.Address, common.Address) (*big.Int, error) {
	return nil, errors.New("rpc timeout")
}

func TestTokenStats_ReadErrorPropagates(t *testing.T) {
	_, stub, _ := seed(t, "")
	stub.SetStakingData(token, chain.StakingData{StakeToken: stakeToken, Pool: rewardPool})
	stub.SetPool(token, lpPool)

	store := memory.NewStore()
	require.NoError(t, store.Insert(context.Background(), &storage.TokenRecord{
		ContractAddress: chain.LowerHex(token),
		TxHash:          "0xtx",
		CastHash:        "0xcast",
	}))
	calc := NewCalculator(failingClient{stub}, store, config.BaseSepolia(), nil)

	_, err := calc.TokenStats(context.Background(), chain.LowerHex(token))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rpc timeout")
}
