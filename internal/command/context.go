package command

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/streme-fun/streme-bot/internal/chain"
	"github.com/streme-fun/streme-bot/internal/config"
	"github.com/streme-fun/streme-bot/internal/storage"
	"github.com/streme-fun/streme-bot/internal/storage/memory"
	"github.com/streme-fun/streme-bot/internal/storage/postgres"
)

// stubPredicted is the token address the stub chain deploys to.
var stubPredicted = common.HexToAddress("0x000000000000000000000000000000000000dEaD")

// CommandContext carries the configuration and the lazily opened backends of
// one invocation.
type CommandContext struct {
	Config  *config.Config
	Network config.Network
	Stub    bool

	closers []func()
}

// GetContext loads and validates the configuration named by --config.
func GetContext(cmd *cobra.Command) (*CommandContext, error) {
	path, _ := cmd.Flags().GetString("config")
	stub, _ := cmd.Flags().GetBool("stub")

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if stub {
		cfg.General.DryRun = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	net, err := cfg.ResolveNetwork()
	if err != nil {
		return nil, err
	}
	return &CommandContext{Config: cfg, Network: net, Stub: stub}, nil
}

// Close releases every backend opened through the context.
func (c *CommandContext) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

// Store opens the token store: Postgres, or an empty in-memory store in stub
// mode.
func (c *CommandContext) Store(ctx context.Context) (storage.Store, error) {
	if c.Stub {
		return memory.NewStore(), nil
	}
	pool, err := c.pool(ctx)
	if err != nil {
		return nil, err
	}
	return postgres.NewTokenStore(pool), nil
}

func (c *CommandContext) pool(ctx context.Context) (*postgres.Pool, error) {
	pool, err := postgres.NewPool(ctx, c.Config.Postgres.DSN)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, pool.Close)
	return pool, nil
}

// Chain dials the configured RPC endpoint, or returns a stub in stub mode.
func (c *CommandContext) Chain(ctx context.Context) (chain.Client, error) {
	if c.Stub {
		return chain.NewStubClient(stubPredicted), nil
	}
	client, err := chain.DialEVM(ctx, c.Network, chain.EVMOptions{
		ConfirmTimeout: time.Duration(c.Config.Deploy.ConfirmTimeoutMs) * time.Millisecond,
		PollInterval:   2 * time.Second,
		MaxReadRetries: 3,
	})
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, client.Close)
	return client, nil
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeCommandError(cmd *cobra.Command, err error) error {
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err.Error())
	return err
}

// setupLogging sends human-readable logs to stderr so stdout stays JSON.
func setupLogging(cmd *cobra.Command, verbose bool) {
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: time.TimeOnly}).
		With().Timestamp().Str("service", AppName).Logger()
}
