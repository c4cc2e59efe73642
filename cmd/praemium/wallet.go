package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/core-coin/praemium/internal/auth"
	"github.com/core-coin/praemium/internal/blockchain"
	"github.com/core-coin/praemium/internal/client"
	"github.com/core-coin/praemium/internal/ledger"
	"github.com/core-coin/praemium/internal/models"
	"github.com/core-coin/praemium/internal/notificator"
	"github.com/core-coin/praemium/internal/pipeline"
	"github.com/core-coin/praemium/internal/wallet"
	"github.com/core-coin/praemium/pkg/logger"
)

// session is a signed-in wallet talking to the staking API.
type session struct {
	log       *logger.Logger
	cfg       pipeline.Config
	owner     *wallet.Keypair
	authority *wallet.Keypair
	client    *client.Client
	gate      *auth.Gate
	network   *blockchain.Solana
	close     func()
}

func openSession(c *cli.Context) (*session, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateClient(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	log, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	owner, err := wallet.Load(cfg.WalletKeypairPath)
	if err != nil {
		return nil, err
	}
	authority, err := wallet.FromBase58(cfg.AuthorityPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("invalid authority key: %v", err)
	}
	network := blockchain.NewSolana(cfg.RPCURL, cfg.ConfirmTimeout, log.Named("solana"))
	if err := network.Run(); err != nil {
		return nil, fmt.Errorf("failed to connect to ledger network: %v", err)
	}

	api := client.NewClient(cfg.APIURL, log.Named("client"))
	s := &session{
		log:       log,
		cfg:       pipeline.Config{MaxRetries: cfg.MaxRetries, Cluster: cfg.Cluster},
		owner:     owner,
		authority: authority,
		client:    api,
		gate:      auth.NewGate(api, owner, cfg.SignInDomain, cfg.SignInStatement, log.Named("auth")),
		network:   network,
	}
	s.close = func() {
		_ = network.Close()
		log.Sync()
	}
	if err := s.gate.Reauthenticate(c.Context); err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func login(c *cli.Context) error {
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.close()

	portfolio, err := s.client.Login(c.Context)
	if err != nil {
		return err
	}
	return printJSON(portfolio)
}

func assets(c *cli.Context) error {
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.close()

	portfolio, err := s.client.Assets(c.Context)
	if err != nil {
		return err
	}
	return printJSON(portfolio)
}

func balance(c *cli.Context) error {
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.close()

	view, err := s.client.Balance(c.Context)
	if err != nil {
		return err
	}
	watch := c.Duration("watch")
	if watch <= 0 {
		return printJSON(view)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, watch)
	defer cancel()

	projection := ledger.NewProjection(view)
	fmt.Printf("%s (+%s/s)\n", projection.At(time.Now()).StringFixed(6), projection.PerSecond().String())
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			// Reconcile with a fresh checkpoint before exiting
			view, err := s.client.Balance(context.Background())
			if err != nil {
				return err
			}
			projection.Reconcile(view)
			fmt.Println(view.Balance.StringFixed(6))
			return nil
		case now := <-ticker.C:
			fmt.Println(projection.At(now).StringFixed(6))
		}
	}
}

func stake(c *cli.Context) error {
	return submit(c, models.ActionStake, c.StringSlice("mint"))
}

func unstake(c *cli.Context) error {
	return submit(c, models.ActionUnstake, c.StringSlice("mint"))
}

func claim(c *cli.Context) error {
	return submit(c, models.ActionClaim, nil)
}

func submit(c *cli.Context, action models.Action, mints []string) error {
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.close()

	p := pipeline.NewPipeline(
		s.cfg,
		s.client,
		s.network,
		s.owner,
		s.authority,
		s.gate,
		notificator.NewNotificator(s.log.Named("notificator")),
		s.log.Named("pipeline"),
		pipeline.WithStateHook(func(state pipeline.State) {
			s.log.Debugw("Pipeline state", "state", state)
		}),
	)
	receipt, err := p.Run(c.Context, pipeline.Request{Action: action, Mints: mints})
	if err != nil {
		return fmt.Errorf("%s failed: %s", action, models.UserMessage(err))
	}
	return printJSON(receipt)
}
