// Package deploy drives a token deployment from address prediction to a
// confirmed receipt.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"

	"github.com/streme-fun/streme-bot/internal/chain"
	"github.com/streme-fun/streme-bot/internal/config"
	"github.com/streme-fun/streme-bot/internal/mention"
	"github.com/streme-fun/streme-bot/internal/observability"
)

// ErrAddressMismatch is returned when the receipt shows a token minted at an
// address other than the predicted one. The transaction was mined.
var ErrAddressMismatch = errors.New("deploy: minted token differs from predicted address")

// ErrUnconfirmed is returned with a result when the transaction was broadcast
// but its receipt was not seen. The result names the predicted token and the
// pending transaction hash.
var ErrUnconfirmed = errors.New("deploy: transaction broadcast but not confirmed")

// Request describes one token to deploy.
type Request struct {
	Name     string
	Symbol   string
	Deployer common.Address
	Mention  *mention.Mention
}

// Result is a deployment whose transaction reached the chain. Unconfirmed is
// set when the receipt was not seen.
type Result struct {
	TokenAddress string // lower-case
	TxHash       string
	BlockNumber  uint64
	Image        string
	Attempts     int
	Unconfirmed  bool
	Signer       common.Address
	Config       chain.TokenConfig
	Request      chain.DeployRequest
}

// Options configures an Orchestrator. Zero values are replaced by defaults.
type Options struct {
	Retry   RetryPolicy
	Gas     *GasAdvisor
	Images  *ImageResolver
	Metrics *observability.Metrics
}

// Orchestrator predicts, submits and confirms deployments.
type Orchestrator struct {
	client  chain.Client
	network config.Network
	signers *SignerQueue
	retry   RetryPolicy
	gas     *GasAdvisor
	images  *ImageResolver
	metrics *observability.Metrics
}

// NewOrchestrator creates an orchestrator deploying on net with keys leased
// from signers.
func NewOrchestrator(client chain.Client, net config.Network, signers *SignerQueue, opts Options) *Orchestrator {
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = DefaultRetryPolicy()
	}
	if opts.Images == nil {
		opts.Images = NewImageResolver(5 * time.Second)
	}
	return &Orchestrator{
		client:  client,
		network: net,
		signers: signers,
		retry:   opts.Retry,
		gas:     opts.Gas,
		images:  opts.Images,
		metrics: opts.Metrics,
	}
}

// Deploy runs one deployment to a terminal state. Nonce conflicts are retried
// under the retry policy and never surface unless retries are exhausted.
// On ErrAddressMismatch the returned result describes the mined transaction,
// and on ErrUnconfirmed the broadcast one.
func (o *Orchestrator) Deploy(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	d := NewDeployment(req.Mention.Hash, req.Symbol)
	addrs := o.network.Addresses
	weth := common.HexToAddress(addrs.WETH)
	tokenFactory := common.HexToAddress(addrs.TokenFactory)

	salt, predicted, err := o.client.GenerateSalt(ctx, req.Symbol, req.Deployer, tokenFactory, weth)
	if err != nil {
		o.fail(d, "salt")
		return nil, fmt.Errorf("deploy: generate salt: %w", err)
	}
	d.Predicted = chain.LowerHex(predicted)
	if err := d.Transition(EventPredicted); err != nil {
		return nil, err
	}

	image := o.images.Resolve(ctx, req.Mention.Embeds)
	cfg := NewTokenConfig(req.Name, req.Symbol, salt, req.Deployer, req.Mention.Author.FID, image, req.Mention.Hash, DefaultPoolConfig(weth))
	dreq := chain.DeployRequest{
		TokenFactory:      tokenFactory,
		PostDeployFactory: common.HexToAddress(addrs.PostDeployFactory),
		LPFactory:         common.HexToAddress(addrs.LPFactory),
		PostLPHook:        common.Address{},
		Config:            cfg,
	}

	signer, err := o.signers.Acquire(ctx)
	if err != nil {
		o.fail(d, "signer")
		return nil, err
	}
	o.signersGauge()
	defer func() {
		o.signers.Release(signer)
		o.signersGauge()
	}()

	log.Info().
		Str("cast_hash", d.CastHash).
		Str("symbol", req.Symbol).
		Str("predicted", d.Predicted).
		Str("signer", signer.Address.Hex()).
		Str("image", image).
		Msg("deploy: submitting")

	receipt, err := o.submit(ctx, d, signer, dreq)
	var pending *chain.TxPendingError
	if errors.As(err, &pending) {
		d.TxHash = pending.TxHash
		log.Error().
			Err(err).
			Str("cast_hash", d.CastHash).
			Str("predicted", d.Predicted).
			Str("tx_hash", pending.TxHash).
			Msg("deploy: transaction not confirmed")
		return &Result{
			TokenAddress: d.Predicted,
			TxHash:       pending.TxHash,
			Image:        image,
			Attempts:     d.GetAttempts(),
			Unconfirmed:  true,
			Signer:       signer.Address,
			Config:       cfg,
			Request:      dreq,
		}, fmt.Errorf("%w: %w", ErrUnconfirmed, err)
	}
	if err != nil {
		return nil, err
	}

	res := &Result{
		TokenAddress: d.Predicted,
		TxHash:       receipt.TxHash,
		BlockNumber:  receipt.BlockNumber,
		Image:        image,
		Attempts:     d.GetAttempts(),
		Signer:       signer.Address,
		Config:       cfg,
		Request:      dreq,
	}

	if minted := receipt.TokenAddress; minted != (common.Address{}) && minted != predicted {
		o.fail(d, "address_mismatch")
		res.TokenAddress = chain.LowerHex(minted)
		return res, fmt.Errorf("%w: predicted %s, minted %s in %s", ErrAddressMismatch, d.Predicted, res.TokenAddress, receipt.TxHash)
	}

	if err := d.Transition(EventConfirmed); err != nil {
		return nil, err
	}
	d.TxHash, d.BlockNumber = receipt.TxHash, receipt.BlockNumber
	if o.metrics != nil {
		o.metrics.DeploysSucceeded.Inc()
		o.metrics.DeployDuration.Observe(time.Since(start).Seconds())
	}

	log.Info().
		Str("cast_hash", d.CastHash).
		Str("token", res.TokenAddress).
		Str("tx_hash", res.TxHash).
		Uint64("block", res.BlockNumber).
		Int("attempts", res.Attempts).
		Dur("elapsed", time.Since(start)).
		Msg("deploy: token deployed")
	return res, nil
}

// submit sends the transaction until it is confirmed or fails fatally.
func (o *Orchestrator) submit(ctx context.Context, d *Deployment, signer *chain.Signer, dreq chain.DeployRequest) (*chain.Receipt, error) {
	if err := d.Transition(EventSubmit); err != nil {
		return nil, err
	}

	for {
		gas := o.gas.Options(ctx)
		if o.metrics != nil {
			o.metrics.DeployAttempts.Inc()
		}

		receipt, err := o.client.DeployToken(ctx, signer, dreq, gas)
		if err == nil {
			return receipt, nil
		}

		if errors.Is(err, chain.ErrTxPending) {
			if terr := d.Transition(EventUnconfirmed); terr != nil {
				return nil, terr
			}
			if o.metrics != nil {
				o.metrics.DeploysFailed.WithLabelValues("unconfirmed").Inc()
			}
			return nil, err
		}

		if !chain.IsNonceConflict(err) {
			o.fail(d, "chain")
			return nil, fmt.Errorf("deploy: submit: %w", err)
		}

		if err := d.Transition(EventNonceConflict); err != nil {
			return nil, err
		}
		if o.metrics != nil {
			o.metrics.NonceConflicts.Inc()
		}

		attempts := d.GetAttempts()
		if !o.retry.CanRetry(attempts) {
			o.fail(d, "retries_exhausted")
			return nil, fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, attempts, err)
		}

		delay := o.retry.NextDelay()
		log.Warn().
			Err(err).
			Str("cast_hash", d.CastHash).
			Int("attempt", attempts).
			Dur("delay", delay).
			Msg("deploy: nonce conflict, retrying")

		if err := o.retry.Wait(ctx, delay); err != nil {
			o.fail(d, "cancelled")
			return nil, err
		}
		if err := d.Transition(EventRetry); err != nil {
			return nil, err
		}
	}
}

func (o *Orchestrator) fail(d *Deployment, cause string) {
	if err := d.Transition(EventFail); err != nil {
		log.Error().Err(err).Str("cast_hash", d.CastHash).Msg("deploy: fail transition")
	}
	if o.metrics != nil {
		o.metrics.DeploysFailed.WithLabelValues(cause).Inc()
	}
}

func (o *Orchestrator) signersGauge() {
	if o.metrics != nil {
		o.metrics.SignersAvailable.Set(float64(o.signers.Available()))
	}
}
