// Package pipeline drives a built transaction from the owner's signature to the
// committed state transition.
//
// Each attempt rebuilds the transaction, recompiles it against a fresh blockhash,
// simulates, has the wallet sign, sends, confirms and finally persists the state
// transition. Build and simulation failures and rejected sessions use up an
// attempt and start over. A transaction that was sent is never sent again: send
// and confirmation failures end the run, and a failed persist is retried on its
// own with the attempts that remain.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/core-coin/praemium/internal/blockchain"
	"github.com/core-coin/praemium/internal/models"
	"github.com/core-coin/praemium/pkg/logger"
)

const DefaultMaxRetries = 3

type State string

const (
	StateBuilding          State = "building"
	StateAwaitingSignature State = "awaiting_signature"
	StateSimulating        State = "simulating"
	StateSubmitted         State = "submitted"
	StateConfirming        State = "confirming"
	StateCommitted         State = "committed"
	StateFailed            State = "failed"
	StateUnauthorized      State = "unauthorized"
)

// Backend builds transactions and persists their state transitions. Calls fail
// with a models.KindUnauthorized error when the session is not valid.
type Backend interface {
	BuildTransaction(ctx context.Context, action models.Action, mints []string) (*models.PendingTransaction, error)
	PersistStateTransition(ctx context.Context, transition models.StateTransition) (*models.TransitionResult, error)
}

// Reauthenticator restores the backend session of the connected wallet.
type Reauthenticator interface {
	Reauthenticate(ctx context.Context) error
}

// Recorder observes finished runs.
type Recorder interface {
	ObservePipelineRun(action, outcome string, attempts int)
}

type Request struct {
	Action models.Action
	// Mints is required for stake and unstake and ignored for claim.
	Mints []string
}

// Receipt describes a committed action.
type Receipt struct {
	Action      models.Action            `json:"action"`
	Mints       []string                 `json:"mints,omitempty"`
	Amount      decimal.Decimal          `json:"amount"`
	Signature   string                   `json:"signature"`
	ExplorerURL string                   `json:"explorer_url"`
	Attempts    int                      `json:"attempts"`
	Result      *models.TransitionResult `json:"result"`
}

type Config struct {
	MaxRetries int
	Cluster    string
}

type Option func(*Pipeline)

// WithRecorder reports every finished run to r.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) {
		p.recorder = r
	}
}

// WithOnCommitted registers a hook run after a successful commit, e.g. to refresh
// the asset lists.
func WithOnCommitted(fn func(*Receipt)) Option {
	return func(p *Pipeline) {
		p.onCommitted = fn
	}
}

// WithStateHook registers a hook called on every state change.
func WithStateHook(fn func(State)) Option {
	return func(p *Pipeline) {
		p.onState = fn
	}
}

type Pipeline struct {
	logger    *logger.Logger
	cfg       Config
	backend   Backend
	network   models.LedgerNetwork
	wallet    models.Wallet
	authority models.Signer
	gate      Reauthenticator
	notifier  models.NotificationService

	recorder    Recorder
	onCommitted func(*Receipt)
	onState     func(State)
}

// NewPipeline wires a pipeline. gate and notifier may be nil.
func NewPipeline(
	cfg Config,
	backend Backend,
	network models.LedgerNetwork,
	wallet models.Wallet,
	authority models.Signer,
	gate Reauthenticator,
	notifier models.NotificationService,
	logger *logger.Logger,
	opts ...Option,
) *Pipeline {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	p := &Pipeline{
		logger:    logger,
		cfg:       cfg,
		backend:   backend,
		network:   network,
		wallet:    wallet,
		authority: authority,
		gate:      gate,
		notifier:  notifier,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// run holds the state of one Run call.
type run struct {
	id       string
	req      Request
	attempts int
	log      *logger.Logger
}

// Run carries out the action. Every failure is returned as a *models.Error and
// reported to the notifier; nothing else escapes.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Receipt, error) {
	r := &run{
		id:  uuid.NewString(),
		req: req,
	}
	r.log = p.logger.With("run", r.id, "action", req.Action)

	receipt, err := p.execute(ctx, r)
	if err != nil {
		p.setState(r, StateFailed)
		p.notifyError(r.id, models.UserMessage(err))
		r.log.Errorw("Transaction failed", "attempts", r.attempts, "kind", models.KindOf(err), "error", err)
		p.record(req.Action, string(models.KindOf(err)), r.attempts)
		return nil, err
	}

	p.setState(r, StateCommitted)
	p.notifySuccess(r.id, successMessage(req.Action, receipt.ExplorerURL))
	r.log.Infow("Transaction committed", "signature", receipt.Signature, "attempts", r.attempts)
	p.record(req.Action, string(StateCommitted), r.attempts)
	if p.onCommitted != nil {
		p.onCommitted(receipt)
	}
	return receipt, nil
}

func (p *Pipeline) execute(ctx context.Context, r *run) (*Receipt, error) {
	if err := validateRequest(r.req); err != nil {
		return nil, err
	}
	p.notifyLoading(r.id, loadingMessage(r.req.Action))

	var lastErr error
	for r.attempts < p.cfg.MaxRetries {
		if err := ctx.Err(); err != nil {
			return nil, models.NewError(models.KindInternal, "", err)
		}
		r.attempts++

		p.setState(r, StateBuilding)
		pending, err := p.backend.BuildTransaction(ctx, r.req.Action, r.req.Mints)
		if err != nil {
			switch models.KindOf(err) {
			case models.KindUnauthorized:
				if err := p.reauthenticate(ctx, r, err); err != nil {
					return nil, err
				}
				lastErr = err
				continue
			case models.KindInvalidRequest, models.KindNotFound:
				return nil, err
			}
			return nil, models.NewError(models.KindBuildFailed, "", err)
		}

		tx, ref, err := p.prepare(ctx, r, pending)
		if err != nil {
			if errors.Is(err, models.ErrBuildFailed) {
				return nil, err
			}
			r.log.Warnw("Retrying with a fresh blockhash", "attempt", r.attempts, "error", err)
			lastErr = err
			continue
		}

		p.setState(r, StateSimulating)
		if err := p.simulate(ctx, tx); err != nil {
			r.log.Warnw("Simulation failed, rebuilding", "attempt", r.attempts, "error", err)
			lastErr = err
			continue
		}

		p.setState(r, StateSubmitted)
		sig, err := p.submit(ctx, tx)
		if err != nil {
			return nil, err
		}
		r.log.Infow("Transaction sent", "signature", sig.String())

		p.setState(r, StateConfirming)
		p.notifyLoading(r.id, "Confirming transaction")
		if err := p.confirm(ctx, sig, ref); err != nil {
			return nil, err
		}

		transition := models.StateTransition{
			Owner:     p.wallet.PublicKey().String(),
			Action:    r.req.Action,
			Mints:     pending.Mints,
			Signature: sig.String(),
		}
		result, err := p.persist(ctx, r, transition)
		if err != nil {
			return nil, err
		}
		return &Receipt{
			Action:      r.req.Action,
			Mints:       pending.Mints,
			Amount:      pending.Amount,
			Signature:   sig.String(),
			ExplorerURL: blockchain.ExplorerURL(sig.String(), p.cfg.Cluster),
			Attempts:    r.attempts,
			Result:      result,
		}, nil
	}

	return nil, models.NewError(models.KindRetriesExhausted, "", lastErr)
}

func validateRequest(req Request) error {
	switch req.Action {
	case models.ActionStake, models.ActionUnstake:
		if len(req.Mints) == 0 {
			return models.NewError(models.KindInvalidRequest, "no assets selected", nil)
		}
	case models.ActionClaim:
	default:
		return models.NewError(models.KindInvalidRequest, fmt.Sprintf("unknown action %q", req.Action), nil)
	}
	return nil
}

// prepare decodes the built transaction, checks it pays from the connected
// wallet and recompiles it against a fresh blockhash, co-signed by the authority.
func (p *Pipeline) prepare(ctx context.Context, r *run, pending *models.PendingTransaction) (*solana.Transaction, *models.BlockReference, error) {
	built, err := blockchain.DeserializeTransaction(pending.Transaction)
	if err != nil {
		return nil, nil, models.NewError(models.KindBuildFailed, "", err)
	}
	summary, err := blockchain.Inspect(built)
	if err != nil {
		return nil, nil, models.NewError(models.KindBuildFailed, "", err)
	}
	owner := p.wallet.PublicKey()
	if !summary.FeePayer.Equals(owner) {
		return nil, nil, models.NewError(models.KindBuildFailed, "",
			fmt.Errorf("transaction fee payer %s is not the connected wallet %s", summary.FeePayer, owner))
	}
	if r.req.Action != models.ActionClaim && summary.Freeze+summary.Thaw != len(r.req.Mints) {
		return nil, nil, models.NewError(models.KindBuildFailed, "",
			fmt.Errorf("transaction touches %d assets, %d requested", summary.Freeze+summary.Thaw, len(r.req.Mints)))
	}

	ref, err := p.network.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, nil, models.NewError(models.KindSimulationFailed, "", err)
	}
	tx, err := blockchain.CompileV0(built, ref, owner)
	if err != nil {
		return nil, nil, models.NewError(models.KindBuildFailed, "", err)
	}
	p.setState(r, StateAwaitingSignature)
	if err := blockchain.PartialSign(tx, p.authority); err != nil {
		return nil, nil, models.NewError(models.KindBuildFailed, "", err)
	}
	return tx, ref, nil
}

func (p *Pipeline) simulate(ctx context.Context, tx *solana.Transaction) error {
	sim, err := p.network.SimulateTransaction(ctx, tx)
	if err != nil {
		return models.NewError(models.KindSimulationFailed, "", err)
	}
	if sim.Err != "" {
		for _, line := range sim.Logs {
			p.logger.Debugw("Simulation log", "line", line)
		}
		return models.NewError(models.KindSimulationFailed, "", errors.New(sim.Err))
	}
	return nil
}

func (p *Pipeline) submit(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	if err := p.wallet.SignTransaction(ctx, tx); err != nil {
		return solana.Signature{}, models.NewError(models.KindSubmissionFailed, "Transaction was not signed", err)
	}
	if missing := blockchain.MissingSignatures(tx); len(missing) > 0 {
		return solana.Signature{}, models.NewError(models.KindSubmissionFailed, "",
			fmt.Errorf("missing signatures from %v", missing))
	}
	sig, err := p.network.SendTransaction(ctx, tx)
	if err != nil {
		return solana.Signature{}, models.NewError(models.KindSubmissionFailed, "", err)
	}
	return sig, nil
}

func (p *Pipeline) confirm(ctx context.Context, sig solana.Signature, ref *models.BlockReference) error {
	result, err := p.network.ConfirmTransaction(ctx, sig, ref)
	if err != nil {
		return models.NewError(models.KindConfirmationFailed, "", err)
	}
	if result.Err != "" {
		return models.NewError(models.KindConfirmationFailed, "", errors.New(result.Err))
	}
	return nil
}

// persist commits the transition. The transaction is confirmed at this point, so
// failures retry the write only, within the attempts left.
func (p *Pipeline) persist(ctx context.Context, r *run, transition models.StateTransition) (*models.TransitionResult, error) {
	var lastErr error
	for {
		result, err := p.backend.PersistStateTransition(ctx, transition)
		if err == nil {
			return result, nil
		}
		if models.KindOf(err) == models.KindUnauthorized {
			if err := p.reauthenticate(ctx, r, err); err != nil {
				return nil, err
			}
		} else {
			r.log.Warnw("Persisting state transition failed", "signature", transition.Signature, "attempt", r.attempts, "error", err)
		}
		lastErr = models.NewError(models.KindPersistenceFailed, "", err)

		if r.attempts >= p.cfg.MaxRetries {
			break
		}
		if err := ctx.Err(); err != nil {
			break
		}
		r.attempts++
	}
	r.log.Errorw("State transition not persisted", "signature", transition.Signature, "error", lastErr)
	return nil, models.NewError(models.KindRetriesExhausted, "", lastErr)
}

func (p *Pipeline) reauthenticate(ctx context.Context, r *run, cause error) error {
	p.setState(r, StateUnauthorized)
	if p.gate == nil {
		return models.NewError(models.KindUnauthorized, "", cause)
	}
	r.log.Infow("Session rejected, signing in again", "attempt", r.attempts)
	if err := p.gate.Reauthenticate(ctx); err != nil {
		return models.NewError(models.KindUnauthorized, "", err)
	}
	return nil
}

func (p *Pipeline) setState(r *run, state State) {
	r.log.Debugw("State", "state", state, "attempt", r.attempts)
	if p.onState != nil {
		p.onState(state)
	}
}

func (p *Pipeline) record(action models.Action, outcome string, attempts int) {
	if p.recorder != nil {
		p.recorder.ObservePipelineRun(string(action), outcome, attempts)
	}
}

func (p *Pipeline) notifyLoading(id, msg string) {
	if p.notifier != nil {
		p.notifier.Loading(id, msg)
	}
}

func (p *Pipeline) notifySuccess(id, msg string) {
	if p.notifier != nil {
		p.notifier.Success(id, msg)
	}
}

func (p *Pipeline) notifyError(id, msg string) {
	if p.notifier != nil {
		p.notifier.Error(id, msg)
	}
}

func loadingMessage(action models.Action) string {
	switch action {
	case models.ActionStake:
		return "Staking assets"
	case models.ActionUnstake:
		return "Unstaking assets"
	}
	return "Claiming rewards"
}

func successMessage(action models.Action, explorerURL string) string {
	var msg string
	switch action {
	case models.ActionStake:
		msg = "Assets staked successfully"
	case models.ActionUnstake:
		msg = "Assets unstaked successfully"
	default:
		msg = "Rewards claimed successfully"
	}
	return msg + ". " + explorerURL
}
