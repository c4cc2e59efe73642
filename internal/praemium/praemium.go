package praemium

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/go-co-op/gocron/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/core-coin/praemium/internal/ledger"
	"github.com/core-coin/praemium/internal/models"
	"github.com/core-coin/praemium/internal/ownership"
	"github.com/core-coin/praemium/internal/txbuilder"
	"github.com/core-coin/praemium/pkg/logger"
	"github.com/core-coin/praemium/pkg/validation"
)

// Recorder observes application events. *metrics.Collectors implements it.
type Recorder interface {
	ObserveLogin()
	ObserveSync(created, reassigned, removed int)
	ObserveBuild(action string, err error)
	ObserveTransition(action string, changed int64)
	ObserveDrift(n int)
}

type Config struct {
	// ReconcileInterval is the period of the background re-sync job. Zero disables it.
	ReconcileInterval time.Duration
}

// Praemium is the main struct for the staking application.
// It owns the record store, the ledger and the ownership synchronizer and
// serves all server-side business logic.
type Praemium struct {
	logger *logger.Logger
	config Config

	repo        models.Repository
	network     models.LedgerNetwork
	metadata    models.MetadataService
	notificator models.NotificationService
	ledger      *ledger.Ledger
	sync        *ownership.Synchronizer
	builder     *txbuilder.Builder
	recorder    Recorder

	scheduler gocron.Scheduler
	now       func() time.Time
}

type Option func(*Praemium)

// WithRecorder reports application events to r.
func WithRecorder(r Recorder) Option {
	return func(p *Praemium) {
		p.recorder = r
	}
}

// WithClock overrides the time source of the ledger and the synchronizer.
func WithClock(now func() time.Time) Option {
	return func(p *Praemium) {
		p.now = now
	}
}

// NewPraemium creates a new Praemium instance
func NewPraemium(
	config Config,
	repo models.Repository,
	network models.LedgerNetwork,
	metadata models.MetadataService,
	builder *txbuilder.Builder,
	notificator models.NotificationService,
	rate decimal.Decimal,
	logger *logger.Logger,
	opts ...Option,
) *Praemium {
	p := &Praemium{
		logger:      logger,
		config:      config,
		repo:        repo,
		network:     network,
		metadata:    metadata,
		notificator: notificator,
		builder:     builder,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.ledger = ledger.NewLedger(repo, rate, logger.Named("ledger"), ledger.WithClock(p.now))
	p.sync = ownership.NewSynchronizer(repo, logger.Named("ownership"), ownership.WithClock(p.now))
	return p
}

var _ models.PraemiumI = (*Praemium)(nil)

// Start starts the periodic reconciliation job
func (p *Praemium) Start() error {
	if p.config.ReconcileInterval <= 0 {
		p.logger.Info("Reconciliation job disabled")
		return nil
	}
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(p.config.ReconcileInterval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), p.config.ReconcileInterval)
			defer cancel()
			if err := p.Reconcile(ctx); err != nil {
				p.logger.Error("Reconciliation failed: ", err)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule reconciliation: %w", err)
	}
	sched.Start()
	p.scheduler = sched
	p.logger.Info("Reconciliation job started, interval ", p.config.ReconcileInterval)
	return nil
}

func (p *Praemium) Stop() error {
	if p.scheduler == nil {
		return nil
	}
	if err := p.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("failed to stop scheduler: %w", err)
	}
	p.scheduler = nil
	return nil
}

// Login checkpoints the rewards of owner, then syncs the assets the wallet holds
// on chain. The account is created on first login.
func (p *Praemium) Login(ctx context.Context, owner string) (*models.Portfolio, error) {
	if err := validateOwner(owner); err != nil {
		return nil, err
	}
	observedAt := p.now()

	var onChain []*models.OnChainAsset
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := p.ledger.Checkpoint(gctx, owner)
		return err
	})
	g.Go(func() error {
		assets, err := p.metadata.FetchOwnedAssets(gctx, owner)
		if err != nil {
			return err
		}
		onChain = assets
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to log in %s: %w", owner, err)
	}

	if err := p.rebaseIncoming(ctx, owner, onChain); err != nil {
		return nil, err
	}
	result, err := p.sync.SyncObserved(ctx, owner, onChain, observedAt)
	if err != nil {
		return nil, err
	}
	if p.recorder != nil {
		p.recorder.ObserveLogin()
		p.recorder.ObserveSync(result.Created, result.Reassigned, result.Removed)
	}
	p.logger.Infow("Login", "account", owner, "assets", len(onChain), "created", result.Created, "removed", result.Removed)

	return p.GetPortfolio(ctx, owner)
}

// rebaseIncoming rebases the ledgers of owner and of the previous holders before
// staked assets change hands, so each side is charged its own staked count up to now.
func (p *Praemium) rebaseIncoming(ctx context.Context, owner string, onChain []*models.OnChainAsset) error {
	if len(onChain) == 0 {
		return nil
	}
	mints := make([]string, 0, len(onChain))
	for _, asset := range onChain {
		mints = append(mints, asset.Mint)
	}
	known, err := p.repo.GetAssetsByMints(ctx, mints)
	if err != nil {
		return fmt.Errorf("failed to load assets: %w", err)
	}
	owners := map[string]struct{}{}
	for _, asset := range known {
		if asset.IsStaked && asset.OwnerPublicKey != owner {
			owners[asset.OwnerPublicKey] = struct{}{}
		}
	}
	if len(owners) == 0 {
		return nil
	}
	owners[owner] = struct{}{}
	for account := range owners {
		if _, err := p.ledger.Rebase(ctx, account); err != nil {
			return err
		}
	}
	return nil
}

// GetPortfolio returns the persisted account and its assets split by status.
func (p *Praemium) GetPortfolio(ctx context.Context, owner string) (*models.Portfolio, error) {
	if err := validateOwner(owner); err != nil {
		return nil, err
	}
	account, err := p.repo.GetAccount(ctx, owner)
	if err != nil {
		return nil, err
	}
	assets, err := p.repo.GetAssetsByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	staked, unstaked := models.SplitByStake(assets)
	return &models.Portfolio{Account: account, Staked: staked, Unstaked: unstaked}, nil
}

// GetBalance checkpoints and returns the balance with the data needed to project it.
func (p *Praemium) GetBalance(ctx context.Context, owner string) (*models.BalanceView, error) {
	if err := validateOwner(owner); err != nil {
		return nil, err
	}
	return p.ledger.Balance(ctx, owner)
}

// BuildTransaction builds the transaction for action. Stake and unstake sync the
// owner's holdings, then only accept assets the owner holds in the opposite status. The claim amount is the
// checkpointed balance.
func (p *Praemium) BuildTransaction(ctx context.Context, action models.Action, owner string, mints []string) (*models.PendingTransaction, error) {
	pending, err := p.buildTransaction(ctx, action, owner, mints)
	if p.recorder != nil {
		p.recorder.ObserveBuild(string(action), err)
	}
	if err != nil {
		return nil, err
	}
	return pending, nil
}

func (p *Praemium) buildTransaction(ctx context.Context, action models.Action, owner string, mints []string) (*models.PendingTransaction, error) {
	if err := validateOwner(owner); err != nil {
		return nil, err
	}
	switch action {
	case models.ActionStake, models.ActionUnstake:
		// Holdings may have moved since the last login
		if _, err := p.syncHoldings(ctx, owner); err != nil {
			return nil, err
		}
		if err := p.checkAssets(ctx, action, owner, mints); err != nil {
			return nil, err
		}
		if action == models.ActionStake {
			return p.builder.BuildStakeTransaction(ctx, owner, mints)
		}
		return p.builder.BuildUnstakeTransaction(ctx, owner, mints)
	case models.ActionClaim:
		view, err := p.ledger.Balance(ctx, owner)
		if err != nil {
			return nil, err
		}
		return p.builder.BuildClaimTransaction(ctx, owner, view.Balance)
	}
	return nil, models.NewError(models.KindInvalidRequest, fmt.Sprintf("unknown action %q", action), nil)
}

func (p *Praemium) checkAssets(ctx context.Context, action models.Action, owner string, mints []string) error {
	if len(mints) == 0 {
		return models.NewError(models.KindInvalidRequest, "no assets selected", nil)
	}
	if err := validation.ValidateAddresses(mints); err != nil {
		return models.NewError(models.KindInvalidRequest, err.Error(), err)
	}
	assets, err := p.repo.GetAssetsByMints(ctx, mints)
	if err != nil {
		return err
	}
	byMint := make(map[string]*models.Asset, len(assets))
	for _, asset := range assets {
		byMint[asset.Mint] = asset
	}
	for _, mint := range mints {
		asset, ok := byMint[mint]
		if !ok || asset.OwnerPublicKey != owner {
			return models.NewError(models.KindInvalidRequest, fmt.Sprintf("asset %s is not owned by %s", mint, owner), nil)
		}
		if asset.IsStaked == action.TargetStaked() {
			return models.NewError(models.KindInvalidRequest, fmt.Sprintf("asset %s is already %sd", mint, action), nil)
		}
	}
	return nil
}

func validateOwner(owner string) error {
	if err := validation.ValidateAddress(owner); err != nil {
		return models.NewError(models.KindInvalidRequest, "invalid owner public key", err)
	}
	return nil
}

// signatureOf parses a base58 transaction signature.
func signatureOf(s string) (solana.Signature, error) {
	if s == "" {
		return solana.Signature{}, models.NewError(models.KindInvalidRequest, "transaction signature is required", nil)
	}
	sig, err := solana.SignatureFromBase58(s)
	if err != nil {
		return solana.Signature{}, models.NewError(models.KindInvalidRequest, "invalid transaction signature", err)
	}
	return sig, nil
}
