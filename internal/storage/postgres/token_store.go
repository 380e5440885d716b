// Package postgres implements storage.Store on PostgreSQL via pgx.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/streme-fun/streme-bot/internal/storage"
)

// TokenStore implements storage.Store. Duplicate suppression relies on the
// tokens_cast_hash_key constraint and the mention_claims primary key, so both
// Insert and Claim are atomic conditional inserts.
type TokenStore struct {
	pool *Pool
}

// NewTokenStore creates a new TokenStore.
func NewTokenStore(pool *Pool) *TokenStore {
	return &TokenStore{pool: pool}
}

// Compile-time interface check.
var _ storage.Store = (*TokenStore)(nil)

const tokenColumns = `contract_address, ts, block_number, tx_hash, requestor_fid, name, symbol,
	img_url, pool_address, cast_hash, type, pair, chain_id, token_factory,
	post_deploy_hook, liquidity_factory, post_lp_hook, pool_config, channel`

// Insert adds a new record. Returns ErrDuplicateKey if the address or cast
// hash exists.
func (s *TokenStore) Insert(ctx context.Context, r *storage.TokenRecord) error {
	if err := r.Validate(); err != nil {
		return err
	}

	poolConfig, err := json.Marshal(r.PoolConfig)
	if err != nil {
		return fmt.Errorf("marshal pool config: %w", err)
	}

	var channel *string
	if r.Channel != "" {
		channel = &r.Channel
	}

	query := `INSERT INTO tokens (` + tokenColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

	_, err = s.pool.Exec(ctx, query,
		r.ContractAddress,
		r.Timestamp,
		int64(r.BlockNumber),
		r.TxHash,
		r.RequestorFID,
		r.Name,
		r.Symbol,
		r.ImgURL,
		r.PoolAddress,
		r.CastHash,
		r.Type,
		r.Pair,
		r.ChainID,
		r.TokenFactory,
		r.PostDeployHook,
		r.LiquidityFactory,
		r.PostLPHook,
		poolConfig,
		channel,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

// GetByAddress retrieves a record by contract address. Returns ErrNotFound if absent.
func (s *TokenStore) GetByAddress(ctx context.Context, address string) (*storage.TokenRecord, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens WHERE contract_address = $1`

	r, err := scanToken(s.pool.QueryRow(ctx, query, strings.ToLower(address)))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get token by address: %w", err)
	}
	return r, nil
}

// GetByCastHash retrieves the record created for a cast. Returns ErrNotFound if absent.
func (s *TokenStore) GetByCastHash(ctx context.Context, castHash string) (*storage.TokenRecord, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens WHERE cast_hash = $1`

	r, err := scanToken(s.pool.QueryRow(ctx, query, castHash))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get token by cast hash: %w", err)
	}
	return r, nil
}

// List returns up to limit records, newest first. A limit <= 0 returns all.
func (s *TokenStore) List(ctx context.Context, limit int) ([]*storage.TokenRecord, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens ORDER BY ts DESC, created_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	defer rows.Close()

	var out []*storage.TokenRecord
	for rows.Next() {
		r, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tokens: %w", err)
	}
	return out, nil
}

// Claim reserves castHash. The reservation fails when another claim holds it
// or a token was already recorded for it.
func (s *TokenStore) Claim(ctx context.Context, castHash string) error {
	if castHash == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO mention_claims (cast_hash)
		SELECT $1::text
		WHERE NOT EXISTS (SELECT 1 FROM tokens WHERE cast_hash = $1::text)
		ON CONFLICT (cast_hash) DO NOTHING
	`
	tag, err := s.pool.Exec(ctx, query, castHash)
	if err != nil {
		return fmt.Errorf("claim cast: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrDuplicateKey
	}
	return nil
}

// Release drops the reservation for castHash.
func (s *TokenStore) Release(ctx context.Context, castHash string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM mention_claims WHERE cast_hash = $1`, castHash); err != nil {
		return fmt.Errorf("release cast: %w", err)
	}
	return nil
}

func scanToken(row pgx.Row) (*storage.TokenRecord, error) {
	var (
		r           storage.TokenRecord
		blockNumber int64
		poolConfig  []byte
		channel     *string
	)
	err := row.Scan(
		&r.ContractAddress,
		&r.Timestamp,
		&blockNumber,
		&r.TxHash,
		&r.RequestorFID,
		&r.Name,
		&r.Symbol,
		&r.ImgURL,
		&r.PoolAddress,
		&r.CastHash,
		&r.Type,
		&r.Pair,
		&r.ChainID,
		&r.TokenFactory,
		&r.PostDeployHook,
		&r.LiquidityFactory,
		&r.PostLPHook,
		&poolConfig,
		&channel,
	)
	if err != nil {
		return nil, err
	}

	r.BlockNumber = uint64(blockNumber)
	if channel != nil {
		r.Channel = *channel
	}
	if err := json.Unmarshal(poolConfig, &r.PoolConfig); err != nil {
		return nil, fmt.Errorf("decode pool config: %w", err)
	}
	return &r, nil
}
