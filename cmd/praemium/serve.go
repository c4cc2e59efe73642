package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gagliardetto/solana-go"
	"github.com/urfave/cli/v2"

	"github.com/core-coin/praemium/internal/auth"
	"github.com/core-coin/praemium/internal/blockchain"
	"github.com/core-coin/praemium/internal/config"
	"github.com/core-coin/praemium/internal/http_api"
	"github.com/core-coin/praemium/internal/metadata"
	"github.com/core-coin/praemium/internal/metrics"
	"github.com/core-coin/praemium/internal/notificator"
	"github.com/core-coin/praemium/internal/praemium"
	"github.com/core-coin/praemium/internal/repository"
	"github.com/core-coin/praemium/internal/txbuilder"
	"github.com/core-coin/praemium/internal/wallet"
	"github.com/core-coin/praemium/pkg/logger"
)

func serve(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := cfg.ValidateServer(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := openDatabase(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %v", err)
	}
	defer db.Close()

	// Initialize ledger network
	network := blockchain.NewSolana(cfg.RPCURL, cfg.ConfirmTimeout, log.Named("solana"))
	if err := network.Run(); err != nil {
		return fmt.Errorf("failed to connect to ledger network: %v", err)
	}
	defer network.Close()

	authority, err := wallet.FromBase58(cfg.AuthorityPrivateKey)
	if err != nil {
		return fmt.Errorf("invalid authority key: %v", err)
	}
	rewardMint, err := solana.PublicKeyFromBase58(cfg.RewardMint)
	if err != nil {
		return fmt.Errorf("invalid reward mint: %v", err)
	}
	builder := txbuilder.NewBuilder(network, authority, rewardMint, cfg.RewardDecimals, log.Named("txbuilder"))

	// Initialize notificator
	var senders []notificator.Sender
	if cfg.TelegramBotToken != "" {
		telegram, err := notificator.NewTelegramNotificator(ctx, cfg.TelegramBotToken, cfg.TelegramChatID, log.Named("telegram"))
		if err != nil {
			return err
		}
		senders = append(senders, telegram)
	}
	notifier := notificator.NewNotificator(log.Named("notificator"), senders...)

	collectors := metrics.New()
	app := praemium.NewPraemium(
		praemium.Config{ReconcileInterval: cfg.ReconcileInterval},
		db,
		network,
		metadata.NewService(cfg.DASURL, cfg.CollectionAddress, log.Named("metadata")),
		builder,
		notifier,
		cfg.RewardRatePerAsset,
		log.Named("praemium"),
		praemium.WithRecorder(collectors),
	)

	sessions, err := auth.NewSessionManager(auth.SessionConfig{
		Secret:         cfg.SessionSecret,
		TTL:            cfg.SessionTTL,
		Domain:         cfg.SignInDomain,
		Statement:      cfg.SignInStatement,
		NonceCacheSize: cfg.NonceCacheSize,
	}, log.Named("auth"))
	if err != nil {
		return err
	}

	apiServer := http_api.NewHTTPServer(app, sessions, collectors, http_api.Config{
		Port:             cfg.APIPort,
		AuthRateLimitRPM: cfg.AuthRateLimitRPM,
		Development:      cfg.Development,
	}, log.Named("api"))

	if err := app.Start(); err != nil {
		return err
	}
	go apiServer.Start()

	log.Info("Praemium started, authority ", authority.PublicKey())
	<-ctx.Done()

	if err := apiServer.Shutdown(); err != nil {
		log.Error(err)
	}
	return app.Stop()
}

func openDatabase(cfg *config.Config, log *logger.Logger) (*repository.GormDB, error) {
	if cfg.DatabaseDriver == "sqlite" {
		return repository.NewSQLiteDB(cfg.SQLitePath, log.Named("repository"))
	}
	return repository.NewPostgresDB(cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDB, cfg.PostgresHost, cfg.PostgresPort, log.Named("repository"))
}
