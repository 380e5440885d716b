package deploy

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/streme-fun/streme-bot/internal/chain"
)

// GasAdvisor fetches fee suggestions from an external gas price service.
// Values in the response are wei, as JSON numbers or decimal strings.
type GasAdvisor struct {
	url    string
	client *http.Client
}

type gasAdvice struct {
	GasPrice             *decimal.Decimal `json:"gasPrice"`
	MaxFeePerGas         *decimal.Decimal `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *decimal.Decimal `json:"maxPriorityFeePerGas"`
	GasLimit             *decimal.Decimal `json:"gasLimit"`
}

// NewGasAdvisor returns nil when url is empty; a nil advisor yields empty
// options.
func NewGasAdvisor(url string, timeout time.Duration) *GasAdvisor {
	if url == "" {
		return nil
	}
	return &GasAdvisor{url: url, client: &http.Client{Timeout: timeout}}
}

// Options returns the advised gas options. Failures are logged and produce
// empty options so the client picks its own fees.
func (a *GasAdvisor) Options(ctx context.Context) chain.GasOptions {
	if a == nil {
		return chain.GasOptions{}
	}
	opts, err := a.fetch(ctx)
	if err != nil {
		log.Warn().Err(err).Str("url", a.url).Msg("gas: advisor unavailable, using client fees")
		return chain.GasOptions{}
	}
	return opts
}

func (a *GasAdvisor) fetch(ctx context.Context) (chain.GasOptions, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.url, nil)
	if err != nil {
		return chain.GasOptions{}, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return chain.GasOptions{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return chain.GasOptions{}, fmt.Errorf("status %d", resp.StatusCode)
	}

	var adv gasAdvice
	if err := json.NewDecoder(resp.Body).Decode(&adv); err != nil {
		return chain.GasOptions{}, fmt.Errorf("decode: %w", err)
	}

	opts := chain.GasOptions{
		GasPrice:             weiOrNil(adv.GasPrice),
		MaxFeePerGas:         weiOrNil(adv.MaxFeePerGas),
		MaxPriorityFeePerGas: weiOrNil(adv.MaxPriorityFeePerGas),
	}
	if lim := weiOrNil(adv.GasLimit); lim != nil && lim.IsUint64() {
		opts.GasLimit = lim.Uint64()
	}
	log.Debug().
		Str("gas_price", bigString(opts.GasPrice)).
		Str("max_fee", bigString(opts.MaxFeePerGas)).
		Str("max_priority_fee", bigString(opts.MaxPriorityFeePerGas)).
		Msg("gas: advised options")
	return opts, nil
}

func weiOrNil(d *decimal.Decimal) *big.Int {
	if d == nil || !d.IsPositive() {
		return nil
	}
	return d.Truncate(0).BigInt()
}

func bigString(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}
