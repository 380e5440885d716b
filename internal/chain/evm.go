package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog/log"

	"github.com/streme-fun/streme-bot/internal/config"
)

// ---------------------------------------------------------------------------
// EVM Client: go-ethereum JSON-RPC with read retries and receipt polling
// ---------------------------------------------------------------------------

// backend is the subset of ethclient.Client the EVM client uses.
type backend interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// EVMOptions tunes the EVM client.
type EVMOptions struct {
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
	MaxReadRetries int
}

// EVMClient talks to the Streme contracts of one network.
type EVMClient struct {
	backend backend
	closer  func()
	opts    EVMOptions

	chainID          *big.Int
	streme           common.Address
	stakingFactory   common.Address
	uniswapV3Factory common.Address
	gdaForwarder     common.Address

	// Stats.
	callCount    atomic.Int64
	errorCount   atomic.Int64
	sentCount    atomic.Int64
	latencySumUs atomic.Int64
}

// Compile-time interface check.
var _ Client = (*EVMClient)(nil)

// DialEVM connects to the network's RPC endpoint.
func DialEVM(ctx context.Context, net config.Network, opts EVMOptions) (*EVMClient, error) {
	ec, err := ethclient.DialContext(ctx, net.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", net.Name(), err)
	}
	c := newEVMClient(ec, net, opts)
	c.closer = ec.Close
	return c, nil
}

func newEVMClient(b backend, net config.Network, opts EVMOptions) *EVMClient {
	if opts.ConfirmTimeout == 0 {
		opts.ConfirmTimeout = 2 * time.Minute
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.MaxReadRetries == 0 {
		opts.MaxReadRetries = 2
	}
	return &EVMClient{
		backend:          b,
		opts:             opts,
		chainID:          big.NewInt(net.ChainID),
		streme:           common.HexToAddress(net.Addresses.Streme),
		stakingFactory:   common.HexToAddress(net.Addresses.StakingFactory),
		uniswapV3Factory: common.HexToAddress(net.Addresses.UniswapV3Factory),
		gdaForwarder:     common.HexToAddress(net.Addresses.GDAForwarder),
	}
}

// Close releases the RPC connection.
func (c *EVMClient) Close() {
	if c.closer != nil {
		c.closer()
	}
}

// call packs method, runs eth_call against to and unpacks the outputs. Reads
// are retried with a short backoff.
func (c *EVMClient) call(ctx context.Context, contract abi.ABI, to common.Address, method string, args ...any) ([]any, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("chain: pack %s: %w", method, err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.opts.MaxReadRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * 250 * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		start := time.Now()
		out, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
		c.callCount.Add(1)
		c.latencySumUs.Add(time.Since(start).Microseconds())
		if err != nil {
			c.errorCount.Add(1)
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}

		vals, err := contract.Unpack(method, out)
		if err != nil {
			return nil, fmt.Errorf("chain: unpack %s: %w", method, err)
		}
		return vals, nil
	}
	return nil, fmt.Errorf("chain: call %s on %s: %w", method, to.Hex(), lastErr)
}

func (c *EVMClient) callBigInt(ctx context.Context, contract abi.ABI, to common.Address, method string, args ...any) (*big.Int, error) {
	vals, err := c.call(ctx, contract, to, method, args...)
	if err != nil {
		return nil, err
	}
	v, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("chain: %s returned %T", method, vals[0])
	}
	return v, nil
}

func (c *EVMClient) callAddress(ctx context.Context, contract abi.ABI, to common.Address, method string, args ...any) (common.Address, error) {
	vals, err := c.call(ctx, contract, to, method, args...)
	if err != nil {
		return common.Address{}, err
	}
	v, ok := vals[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("chain: %s returned %T", method, vals[0])
	}
	return v, nil
}

// GenerateSalt calls Streme.generateSalt.
func (c *EVMClient) GenerateSalt(ctx context.Context, symbol string, requestor, tokenFactory, pairedToken common.Address) ([32]byte, common.Address, error) {
	vals, err := c.call(ctx, stremeABI, c.streme, "generateSalt", symbol, requestor, tokenFactory, pairedToken)
	if err != nil {
		return [32]byte{}, common.Address{}, err
	}
	salt, ok := vals[0].([32]byte)
	if !ok {
		return [32]byte{}, common.Address{}, fmt.Errorf("chain: generateSalt salt is %T", vals[0])
	}
	token, ok := vals[1].(common.Address)
	if !ok {
		return [32]byte{}, common.Address{}, fmt.Errorf("chain: generateSalt token is %T", vals[1])
	}
	return salt, token, nil
}

// DeployToken builds, signs and sends deployToken, then polls for the receipt.
// Once the transaction is broadcast, a wait that ends without a receipt
// returns a *TxPendingError.
func (c *EVMClient) DeployToken(ctx context.Context, signer *Signer, req DeployRequest, gas GasOptions) (*Receipt, error) {
	data, err := stremeABI.Pack("deployToken",
		req.TokenFactory, req.PostDeployFactory, req.LPFactory, req.PostLPHook, req.Config)
	if err != nil {
		return nil, fmt.Errorf("chain: pack deployToken: %w", err)
	}

	nonce, err := c.backend.PendingNonceAt(ctx, signer.Address)
	if err != nil {
		return nil, fmt.Errorf("chain: pending nonce: %w", err)
	}

	gasLimit := gas.GasLimit
	if gasLimit == 0 {
		gasLimit, err = c.backend.EstimateGas(ctx, ethereum.CallMsg{From: signer.Address, To: &c.streme, Data: data})
		if err != nil {
			return nil, Classify(fmt.Errorf("chain: estimate gas: %w", err))
		}
		gasLimit = gasLimit * 12 / 10
	}

	tx, err := c.buildTx(ctx, nonce, gasLimit, data, gas)
	if err != nil {
		return nil, err
	}

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), signer.Key)
	if err != nil {
		return nil, fmt.Errorf("chain: sign deployToken: %w", err)
	}

	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		c.errorCount.Add(1)
		return nil, Classify(fmt.Errorf("chain: send deployToken: %w", err))
	}
	c.sentCount.Add(1)

	log.Info().
		Str("tx_hash", signed.Hash().Hex()).
		Str("signer", signer.Address.Hex()).
		Uint64("nonce", nonce).
		Msg("chain: deployToken sent")

	receipt, err := c.waitMined(ctx, signed.Hash())
	if err != nil {
		return nil, &TxPendingError{TxHash: signed.Hash().Hex(), Err: err}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%w: %s", ErrTxReverted, signed.Hash().Hex())
	}

	return &Receipt{
		TxHash:       receipt.TxHash.Hex(),
		BlockNumber:  receipt.BlockNumber.Uint64(),
		TokenAddress: mintedToken(receipt.Logs),
	}, nil
}

// buildTx produces a legacy transaction when a gas price is forced and a
// dynamic fee transaction otherwise.
func (c *EVMClient) buildTx(ctx context.Context, nonce, gasLimit uint64, data []byte, gas GasOptions) (*types.Transaction, error) {
	if gas.GasPrice != nil && gas.MaxFeePerGas == nil {
		return types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			To:       &c.streme,
			Gas:      gasLimit,
			GasPrice: gas.GasPrice,
			Data:     data,
		}), nil
	}

	tip := gas.MaxPriorityFeePerGas
	if tip == nil {
		suggested, err := c.backend.SuggestGasTipCap(ctx)
		if err != nil {
			return nil, fmt.Errorf("chain: suggest tip: %w", err)
		}
		tip = suggested
	}

	feeCap := gas.MaxFeePerGas
	if feeCap == nil {
		head, err := c.backend.HeaderByNumber(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("chain: latest header: %w", err)
		}
		baseFee := head.BaseFee
		if baseFee == nil {
			baseFee = new(big.Int)
		}
		feeCap = new(big.Int).Add(tip, new(big.Int).Mul(baseFee, big.NewInt(2)))
	}

	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &c.streme,
		Data:      data,
	}), nil
}

// waitMined polls for the receipt until it exists, ctx ends or the confirm
// timeout passes.
func (c *EVMClient) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.ConfirmTimeout)
	defer cancel()

	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			log.Debug().Err(err).Str("tx_hash", hash.Hex()).Msg("chain: receipt poll failed")
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("chain: wait for %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// mintedToken returns the emitter of the first ERC-20 Transfer from the zero
// address. ERC-721 transfers carry a fourth topic and are skipped.
func mintedToken(logs []*types.Log) common.Address {
	for _, l := range logs {
		if len(l.Topics) != 3 || l.Topics[0] != transferTopic {
			continue
		}
		if common.BytesToAddress(l.Topics[1].Bytes()) == (common.Address{}) {
			return l.Address
		}
	}
	return common.Address{}
}

// GetPool calls UniswapV3Factory.getPool.
func (c *EVMClient) GetPool(ctx context.Context, tokenA, tokenB common.Address, fee uint32) (common.Address, error) {
	return c.callAddress(ctx, uniswapV3FactoryABI, c.uniswapV3Factory, "getPool", tokenA, tokenB, new(big.Int).SetUint64(uint64(fee)))
}

func (c *EVMClient) filterBlock(ctx context.Context, contract common.Address, topic common.Hash, block uint64) ([]types.Log, error) {
	b := new(big.Int).SetUint64(block)
	logs, err := c.backend.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: b,
		ToBlock:   b,
		Addresses: []common.Address{contract},
		Topics:    [][]common.Hash{{topic}},
	})
	c.callCount.Add(1)
	if err != nil {
		c.errorCount.Add(1)
		return nil, fmt.Errorf("chain: filter logs at %d: %w", block, err)
	}
	return logs, nil
}

// PoolFromEvents returns the last pool created in block that pairs token.
func (c *EVMClient) PoolFromEvents(ctx context.Context, token common.Address, block uint64) (common.Address, error) {
	logs, err := c.filterBlock(ctx, c.uniswapV3Factory, PoolCreatedTopic, block)
	if err != nil {
		return common.Address{}, err
	}

	var pool common.Address
	for _, l := range logs {
		if len(l.Topics) < 3 {
			continue
		}
		token0 := common.BytesToAddress(l.Topics[1].Bytes())
		token1 := common.BytesToAddress(l.Topics[2].Bytes())
		if token0 != token && token1 != token {
			continue
		}
		vals, err := uniswapV3FactoryABI.Unpack("PoolCreated", l.Data)
		if err != nil {
			return common.Address{}, fmt.Errorf("chain: decode PoolCreated: %w", err)
		}
		pool = vals[1].(common.Address)
	}
	return pool, nil
}

// StakingData returns the staked token and pool created for token in block.
func (c *EVMClient) StakingData(ctx context.Context, token common.Address, block uint64) (StakingData, error) {
	logs, err := c.filterBlock(ctx, c.stakingFactory, StakedTokenCreatedTopic, block)
	if err != nil {
		return StakingData{}, err
	}

	var out StakingData
	for _, l := range logs {
		ev, err := decodeStakedTokenCreated(l.Data)
		if err != nil {
			return StakingData{}, err
		}
		if ev.depositToken == token {
			out = StakingData{StakeToken: ev.stakeToken, Pool: ev.pool}
		}
	}
	return out, nil
}

type stakedTokenCreated struct {
	stakeToken   common.Address
	depositToken common.Address
	pool         common.Address
}

func decodeStakedTokenCreated(data []byte) (stakedTokenCreated, error) {
	vals, err := stakingFactoryABI.Unpack("StakedTokenCreated", data)
	if err != nil {
		return stakedTokenCreated{}, fmt.Errorf("chain: decode StakedTokenCreated: %w", err)
	}
	return stakedTokenCreated{
		stakeToken:   vals[0].(common.Address),
		depositToken: vals[1].(common.Address),
		pool:         vals[2].(common.Address),
	}, nil
}

func (c *EVMClient) TotalSupply(ctx context.Context, token common.Address) (*big.Int, error) {
	return c.callBigInt(ctx, erc20ABI, token, "totalSupply")
}

func (c *EVMClient) BalanceOf(ctx context.Context, token, holder common.Address) (*big.Int, error) {
	return c.callBigInt(ctx, erc20ABI, token, "balanceOf", holder)
}

func (c *EVMClient) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	return c.callBigInt(ctx, erc20ABI, token, "allowance", owner, spender)
}

func (c *EVMClient) PoolTotalUnits(ctx context.Context, pool common.Address) (*big.Int, error) {
	return c.callBigInt(ctx, gdaPoolABI, pool, "getTotalUnits")
}

// MemberStats reads units, flow rate, claimable and received for member.
func (c *EVMClient) MemberStats(ctx context.Context, pool, member common.Address) (*MemberStats, error) {
	units, err := c.callBigInt(ctx, gdaPoolABI, pool, "getUnits", member)
	if err != nil {
		return nil, err
	}
	received, err := c.callBigInt(ctx, gdaPoolABI, pool, "getTotalAmountReceivedByMember", member)
	if err != nil {
		return nil, err
	}
	flowRate, err := c.callBigInt(ctx, gdaPoolABI, pool, "getMemberFlowRate", member)
	if err != nil {
		return nil, err
	}
	claimable, err := c.callBigInt(ctx, gdaPoolABI, pool, "getClaimableNow", member)
	if err != nil {
		return nil, err
	}
	return &MemberStats{Units: units, FlowRate: flowRate, Claimable: claimable, Received: received}, nil
}

func (c *EVMClient) IsMemberConnected(ctx context.Context, pool, member common.Address) (bool, error) {
	vals, err := c.call(ctx, gdaForwarderABI, c.gdaForwarder, "isMemberConnected", pool, member)
	if err != nil {
		return false, err
	}
	connected, ok := vals[0].(bool)
	if !ok {
		return false, fmt.Errorf("chain: isMemberConnected returned %T", vals[0])
	}
	return connected, nil
}

// Health checks that the endpoint answers eth_blockNumber.
func (c *EVMClient) Health(ctx context.Context) error {
	if _, err := c.backend.BlockNumber(ctx); err != nil {
		return fmt.Errorf("chain: health: %w", err)
	}
	return nil
}

// EVMStats holds client statistics.
type EVMStats struct {
	Calls        int64   `json:"calls"`
	Errors       int64   `json:"errors"`
	TxSent       int64   `json:"tx_sent"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}

func (c *EVMClient) Stats() EVMStats {
	calls := c.callCount.Load()
	var avg float64
	if calls > 0 {
		avg = float64(c.latencySumUs.Load()) / float64(calls) / 1000
	}
	return EVMStats{
		Calls:        calls,
		Errors:       c.errorCount.Load(),
		TxSent:       c.sentCount.Load(),
		AvgLatencyMs: avg,
	}
}
