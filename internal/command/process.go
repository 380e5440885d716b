package command

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"github.com/streme-fun/streme-bot/internal/bus"
	"github.com/streme-fun/streme-bot/internal/chain"
	"github.com/streme-fun/streme-bot/internal/deploy"
	"github.com/streme-fun/streme-bot/internal/gate"
	"github.com/streme-fun/streme-bot/internal/intent"
	"github.com/streme-fun/streme-bot/internal/mention"
	"github.com/streme-fun/streme-bot/internal/notify"
	"github.com/streme-fun/streme-bot/internal/pipeline"
)

// NewProcessCmd creates the process command.
func NewProcessCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process <mention.json>",
		Short: "Run one mention through the pipeline",
		Long: `Run one mention webhook payload through gate, intent, deploy, record and reply.

Use "-" to read the payload from stdin. The pipeline result is printed as JSON.
In --stub mode the AI answers with --ai-reply and the chain is simulated.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer cc.Close()

			data, err := readPayload(cmd, args[0])
			if err != nil {
				return writeCommandError(cmd, err)
			}
			m, err := mention.Decode(data)
			if err != nil {
				return writeCommandError(cmd, err)
			}

			noReply, _ := cmd.Flags().GetBool("no-reply")
			aiReply, _ := cmd.Flags().GetString("ai-reply")
			proc, err := buildProcessor(cmd, cc, noReply, aiReply)
			if err != nil {
				return writeCommandError(cmd, err)
			}

			res, procErr := proc.Process(cmd.Context(), m)
			if err := writeJSON(cmd, res); err != nil {
				return err
			}
			if procErr != nil {
				return writeCommandError(cmd, procErr)
			}
			return nil
		},
	}

	cmd.Flags().Bool("no-reply", false, "compose but do not post the Farcaster reply")
	cmd.Flags().String("ai-reply", `{"name":"Stub Coin","symbol":"STUB","response":"Planting STUB now"}`, "AI reply used in --stub mode")
	return cmd
}

func readPayload(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mention: %w", err)
	}
	return data, nil
}

func buildProcessor(cmd *cobra.Command, cc *CommandContext, noReply bool, aiReply string) (*pipeline.Processor, error) {
	ctx := cmd.Context()
	cfg := cc.Config

	store, err := cc.Store(ctx)
	if err != nil {
		return nil, err
	}
	client, err := cc.Chain(ctx)
	if err != nil {
		return nil, err
	}
	if cfg.General.DryRun && !cc.Stub {
		client = chain.NewStubClient(stubPredicted)
	}

	keys := cfg.Signers.Keys
	if len(keys) == 0 {
		k, err := crypto.GenerateKey()
		if err != nil {
			return nil, err
		}
		keys = []string{hexutil.Encode(crypto.FromECDSA(k))}
	}
	signers, err := deploy.NewSignerQueue(keys)
	if err != nil {
		return nil, err
	}
	var gas *deploy.GasAdvisor
	if cfg.Deploy.GasAdvisor && cc.Network.GasAdvisorURL != "" {
		gas = deploy.NewGasAdvisor(cc.Network.GasAdvisorURL, 5*time.Second)
	}
	orch := deploy.NewOrchestrator(client, cc.Network, signers, deploy.Options{
		Retry:  deploy.NewRetryPolicy(cfg.Retry),
		Gas:    gas,
		Images: deploy.NewImageResolver(time.Duration(cfg.Deploy.ImageProbeTimeoutMs) * time.Millisecond),
	})

	var provider intent.Provider
	if cc.Stub {
		provider = intent.NewStubProvider("stub", aiReply)
	} else {
		provider = intent.NewAutonomeProvider(intent.AutonomeConfig{
			Endpoint:  cfg.AI.Endpoint,
			BasicAuth: cfg.AI.BasicAuth,
			Timeout:   time.Duration(cfg.AI.TimeoutMs) * time.Millisecond,
		})
	}

	var poster notify.Poster
	if !noReply && !cc.Stub && !cfg.Neynar.Disabled {
		poster = notify.NewNeynarClient(notify.NeynarConfig{
			BaseURL:      cfg.Neynar.BaseURL,
			APIKey:       cfg.Neynar.APIKey,
			RateLimitRPS: cfg.Neynar.RateLimitRPS,
			Timeout:      time.Duration(cfg.Neynar.TimeoutMs) * time.Millisecond,
		})
	}

	return pipeline.NewProcessor(cc.Network, cfg.Deploy.Season, AppName, pipeline.Deps{
		Gate: gate.New(gate.Config{
			AllowFIDs:      cfg.Gate.AllowFIDs,
			BanFIDs:        cfg.Gate.BanFIDs,
			MinSocialScore: cfg.Gate.MinSocialScore,
		}, store),
		Extractor: intent.NewExtractor(provider, cc.Network.DisplayName),
		Deployer:  orch,
		Store:     store,
		Notifier:  notify.NewEmitter(poster, cfg.Neynar.SignerUUID, cfg.Neynar.FrameBaseURL, nil),
		Events:    bus.NewStubProducer(),
	}), nil
}
