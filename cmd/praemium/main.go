package main

import (
	"fmt"
	"log"
	"os"

	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	"github.com/core-coin/praemium/internal/config"
	"github.com/core-coin/praemium/pkg/logger"
)

func main() {
	app := &cli.App{
		Name:  "praemium",
		Usage: "Praemium stakes collection assets in place and pays rewards for them",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "rpc-url", Aliases: []string{"r"}, Usage: "Ledger network RPC URL"},
			&cli.StringFlag{Name: "cluster", Usage: "Cluster name used for explorer links"},
			&cli.StringFlag{Name: "reward-mint", Usage: "Reward token mint address"},
			&cli.StringFlag{Name: "reward-rate", Usage: "Reward per staked asset and second"},
			&cli.IntFlag{Name: "max-retries", Usage: "Attempts per submission"},
			&cli.BoolFlag{Name: "development", Aliases: []string{"D"}, Usage: "Development mode"},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Run the staking API",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "port", Usage: "API port"},
					&cli.StringFlag{Name: "database-driver", Usage: "postgres or sqlite"},
					&cli.StringFlag{Name: "sqlite-path", Usage: "SQLite database file"},
					&cli.StringFlag{Name: "postgres-user", Aliases: []string{"u"}, Usage: "Postgres user"},
					&cli.StringFlag{Name: "postgres-password", Aliases: []string{"p"}, Usage: "Postgres password"},
					&cli.StringFlag{Name: "postgres-host", Aliases: []string{"t"}, Usage: "Postgres host"},
					&cli.IntFlag{Name: "postgres-port", Aliases: []string{"P"}, Usage: "Postgres port"},
					&cli.StringFlag{Name: "postgres-db", Aliases: []string{"d"}, Usage: "Postgres database name"},
					&cli.StringFlag{Name: "das-url", Usage: "Digital asset API URL"},
					&cli.StringFlag{Name: "collection", Usage: "Collection address of stakeable assets"},
				},
				Action: serve,
			},
			{
				Name:   "login",
				Usage:  "Sign in and sync the wallet's assets",
				Flags:  walletFlags(),
				Action: login,
			},
			{
				Name:   "assets",
				Usage:  "List the wallet's staked and unstaked assets",
				Flags:  walletFlags(),
				Action: assets,
			},
			{
				Name:  "balance",
				Usage: "Show the reward balance",
				Flags: append(walletFlags(),
					&cli.DurationFlag{Name: "watch", Usage: "Keep printing the projected balance for this long"},
				),
				Action: balance,
			},
			{
				Name:   "stake",
				Usage:  "Stake assets",
				Flags:  append(walletFlags(), mintFlag()),
				Action: stake,
			},
			{
				Name:   "unstake",
				Usage:  "Unstake assets",
				Flags:  append(walletFlags(), mintFlag()),
				Action: unstake,
			},
			{
				Name:   "claim",
				Usage:  "Claim the reward balance",
				Flags:  walletFlags(),
				Action: claim,
			},
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

func walletFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "api-url", Aliases: []string{"a"}, Usage: "Staking API URL"},
		&cli.StringFlag{Name: "keypair", Aliases: []string{"k"}, Usage: "Wallet keypair file"},
	}
}

func mintFlag() cli.Flag {
	return &cli.StringSliceFlag{Name: "mint", Aliases: []string{"m"}, Usage: "Asset mint address, repeatable", Required: true}
}

// loadConfig loads the configuration from the environment, overridden by any flag set.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %v", err)
	}

	if c.IsSet("rpc-url") {
		cfg.RPCURL = c.String("rpc-url")
	}
	if c.IsSet("cluster") {
		cfg.Cluster = c.String("cluster")
	}
	if c.IsSet("reward-mint") {
		cfg.RewardMint = c.String("reward-mint")
	}
	if c.IsSet("reward-rate") {
		rate, err := decimal.NewFromString(c.String("reward-rate"))
		if err != nil {
			return nil, fmt.Errorf("invalid reward rate: %v", err)
		}
		cfg.RewardRatePerAsset = rate
	}
	if c.IsSet("max-retries") {
		cfg.MaxRetries = c.Int("max-retries")
	}
	if c.IsSet("development") {
		cfg.Development = c.Bool("development")
	}

	if c.IsSet("port") {
		cfg.APIPort = c.Int("port")
	}
	if c.IsSet("database-driver") {
		cfg.DatabaseDriver = c.String("database-driver")
	}
	if c.IsSet("sqlite-path") {
		cfg.SQLitePath = c.String("sqlite-path")
	}
	if c.IsSet("postgres-user") {
		cfg.PostgresUser = c.String("postgres-user")
	}
	if c.IsSet("postgres-password") {
		cfg.PostgresPassword = c.String("postgres-password")
	}
	if c.IsSet("postgres-host") {
		cfg.PostgresHost = c.String("postgres-host")
	}
	if c.IsSet("postgres-port") {
		cfg.PostgresPort = c.Int("postgres-port")
	}
	if c.IsSet("postgres-db") {
		cfg.PostgresDB = c.String("postgres-db")
	}
	if c.IsSet("das-url") {
		cfg.DASURL = c.String("das-url")
	}
	if c.IsSet("collection") {
		cfg.CollectionAddress = c.String("collection")
	}

	if c.IsSet("api-url") {
		cfg.APIURL = c.String("api-url")
	}
	if c.IsSet("keypair") {
		cfg.WalletKeypairPath = c.String("keypair")
	}

	return cfg, nil
}

func newLogger(cfg *config.Config) (*logger.Logger, error) {
	log, err := logger.NewLogger(cfg.Development)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %v", err)
	}
	return log, nil
}
