package pipeline

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"

	"github.com/streme-fun/streme-bot/internal/deploy"
	"github.com/streme-fun/streme-bot/internal/storage"
)

func TestBuildRecord(t *testing.T) {
	net := testNetwork()
	weth := common.HexToAddress(net.Addresses.WETH)
	m := testMention("0xcast")
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	res := &deploy.Result{
		TokenAddress: "0xabcdef0000000000000000000000000000001234",
		TxHash:       "0xtx",
		BlockNumber:  77,
		Image:        "https://img/flowers.png",
		Config:       deploy.NewTokenConfig("Yellow Flowers", "YELLOW", [32]byte{1}, common.HexToAddress(creator), 4242, "https://img/flowers.png", "0xcast", deploy.DefaultPoolConfig(weth)),
	}

	rec := BuildRecord(net, 1, m, res, now)

	assert.Equal(t, &storage.TokenRecord{
		ContractAddress:  "0xabcdef0000000000000000000000000000001234",
		Timestamp:        now,
		BlockNumber:      77,
		TxHash:           "0xtx",
		RequestorFID:     4242,
		Name:             "Yellow Flowers",
		Symbol:           "YELLOW",
		ImgURL:           "https://img/flowers.png",
		PoolAddress:      "",
		CastHash:         "0xcast",
		Type:             "streme_s1",
		Pair:             "WETH",
		ChainID:          84532,
		TokenFactory:     "0x0000000000000000000000000000000000000a02",
		PostDeployHook:   "0x0000000000000000000000000000000000000a05",
		LiquidityFactory: "0x0000000000000000000000000000000000000a04",
		PostLPHook:       "0x0000000000000000000000000000000000000000",
		PoolConfig: storage.PoolConfig{
			Tick:        -230400,
			PairedToken: "0x4200000000000000000000000000000000000006",
			DevBuyFee:   10000,
		},
		Channel: "streme",
	}, rec)
	assert.NoError(t, rec.Validate())
}

func TestBuildRecord_NoChannel(t *testing.T) {
	m := testMention("0xcast")
	m.Channel = nil
	res := &deploy.Result{
		TokenAddress: "0xABC",
		TxHash:       "0xtx",
		Config:       deploy.NewTokenConfig("n", "s", [32]byte{}, common.Address{}, 1, "", "0xcast", deploy.DefaultPoolConfig(common.Address{})),
	}

	rec := BuildRecord(testNetwork(), 3, m, res, time.Now())
	assert.Empty(t, rec.Channel)
	assert.Equal(t, "0xabc", rec.ContractAddress)
	assert.Equal(t, "streme_s3", rec.Type)
	assert.Equal(t, int32(-230400), rec.PoolConfig.Tick)
	assert.Zero(t, res.Config.Supply.Cmp(new(big.Int).Mul(big.NewInt(100_000_000_000), big.NewInt(1_000_000_000_000_000_000))))
}
