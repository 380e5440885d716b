package pipeline

import (
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/streme-fun/streme-bot/internal/chain"
	"github.com/streme-fun/streme-bot/internal/config"
	"github.com/streme-fun/streme-bot/internal/deploy"
	"github.com/streme-fun/streme-bot/internal/mention"
	"github.com/streme-fun/streme-bot/internal/storage"
)

// TypePrefix is combined with the reward season to tag token records.
const TypePrefix = "streme_s"

// PairWETH is the only pairing the bot deploys.
const PairWETH = "WETH"

// BuildRecord assembles the token record for a confirmed deployment.
func BuildRecord(net config.Network, season int, m *mention.Mention, res *deploy.Result, now time.Time) *storage.TokenRecord {
	pc := res.Config.PoolConfig
	addrs := net.Addresses
	return &storage.TokenRecord{
		ContractAddress:  strings.ToLower(res.TokenAddress),
		Timestamp:        now.UTC(),
		BlockNumber:      res.BlockNumber,
		TxHash:           res.TxHash,
		RequestorFID:     m.Author.FID,
		Name:             res.Config.Name,
		Symbol:           res.Config.Symbol,
		ImgURL:           res.Image,
		PoolAddress:      "",
		CastHash:         m.Hash,
		Type:             TypePrefix + strconv.Itoa(season),
		Pair:             PairWETH,
		ChainID:          net.ChainID,
		TokenFactory:     strings.ToLower(addrs.TokenFactory),
		PostDeployHook:   strings.ToLower(addrs.StakingFactory),
		LiquidityFactory: strings.ToLower(addrs.LPFactory),
		PostLPHook:       chain.LowerHex(common.Address{}),
		PoolConfig: storage.PoolConfig{
			Tick:        int32(pc.Tick.Int64()),
			PairedToken: chain.LowerHex(pc.PairedToken),
			DevBuyFee:   uint32(pc.DevBuyFee.Uint64()),
		},
		Channel: m.ChannelID(),
	}
}
