// Package storage defines the durable token record and the store contracts
// the pipeline and the read API depend on.
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// PoolConfig is the liquidity pool configuration used at deployment.
type PoolConfig struct {
	Tick        int32  `json:"tick"`
	PairedToken string `json:"pairedToken"`
	DevBuyFee   uint32 `json:"devBuyFee"`
}

// TokenRecord is the persisted result of one deployment, keyed by the
// lower-cased contract address and unique on CastHash.
type TokenRecord struct {
	ContractAddress  string     `json:"contract_address"`
	Timestamp        time.Time  `json:"timestamp"`
	BlockNumber      uint64     `json:"block_number"`
	TxHash           string     `json:"tx_hash"`
	RequestorFID     int64      `json:"requestor_fid"`
	Name             string     `json:"name"`
	Symbol           string     `json:"symbol"`
	ImgURL           string     `json:"img_url"`
	PoolAddress      string     `json:"pool_address"`
	CastHash         string     `json:"cast_hash"`
	Type             string     `json:"type"`
	Pair             string     `json:"pair"`
	ChainID          int64      `json:"chain_id"`
	TokenFactory     string     `json:"tokenFactory"`
	PostDeployHook   string     `json:"postDeployHook"`
	LiquidityFactory string     `json:"liquidityFactory"`
	PostLPHook       string     `json:"postLpHook"`
	PoolConfig       PoolConfig `json:"poolConfig"`
	Channel          string     `json:"channel,omitempty"`
}

// Validate checks the fields every store requires.
func (r *TokenRecord) Validate() error {
	switch {
	case r == nil:
		return fmt.Errorf("%w: nil record", ErrInvalidInput)
	case r.ContractAddress == "":
		return fmt.Errorf("%w: contract_address is required", ErrInvalidInput)
	case r.ContractAddress != strings.ToLower(r.ContractAddress):
		return fmt.Errorf("%w: contract_address must be lower-case", ErrInvalidInput)
	case r.CastHash == "":
		return fmt.Errorf("%w: cast_hash is required", ErrInvalidInput)
	case r.TxHash == "":
		return fmt.Errorf("%w: tx_hash is required", ErrInvalidInput)
	}
	return nil
}

// TokenStore persists token records.
type TokenStore interface {
	// Insert writes a new record. Returns ErrDuplicateKey if the contract
	// address or cast hash is already recorded.
	Insert(ctx context.Context, r *TokenRecord) error
	// GetByAddress returns the record for a contract address (any case).
	// Returns ErrNotFound if absent.
	GetByAddress(ctx context.Context, address string) (*TokenRecord, error)
	// GetByCastHash returns the record created for a cast. Returns ErrNotFound
	// if absent.
	GetByCastHash(ctx context.Context, castHash string) (*TokenRecord, error)
	// List returns up to limit records, newest first.
	List(ctx context.Context, limit int) ([]*TokenRecord, error)
}

// ClaimStore reserves cast hashes so at most one pipeline invocation can
// deploy for a given mention.
type ClaimStore interface {
	// Claim atomically reserves castHash. Returns ErrDuplicateKey if it is
	// already reserved.
	Claim(ctx context.Context, castHash string) error
	// Release drops a reservation for a mention that ended without a
	// deployment. Releasing an unknown hash is not an error.
	Release(ctx context.Context, castHash string) error
}

// Store is the full durable store.
type Store interface {
	TokenStore
	ClaimStore
}
