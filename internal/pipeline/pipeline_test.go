package pipeline_test

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/core-coin/praemium/internal/blockchain/blockchaintest"
	"github.com/core-coin/praemium/internal/models"
	"github.com/core-coin/praemium/internal/pipeline"
	"github.com/core-coin/praemium/internal/txbuilder"
	"github.com/core-coin/praemium/internal/wallet"
	"github.com/core-coin/praemium/pkg/logger"
)

var errUnauthorized = models.NewError(models.KindUnauthorized, "", errors.New("401"))

// backendStub builds real transactions and scripts failures per call.
type backendStub struct {
	builder     *txbuilder.Builder
	owner       string
	buildErrs   []error
	persistErrs []error

	builds      int
	persists    int
	transitions []models.StateTransition
}

func (b *backendStub) BuildTransaction(ctx context.Context, action models.Action, mints []string) (*models.PendingTransaction, error) {
	b.builds++
	if len(b.buildErrs) > 0 {
		err := b.buildErrs[0]
		b.buildErrs = b.buildErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	switch action {
	case models.ActionStake:
		return b.builder.BuildStakeTransaction(ctx, b.owner, mints)
	case models.ActionUnstake:
		return b.builder.BuildUnstakeTransaction(ctx, b.owner, mints)
	}
	return b.builder.BuildClaimTransaction(ctx, b.owner, decimal.RequireFromString("1.5"))
}

func (b *backendStub) PersistStateTransition(_ context.Context, transition models.StateTransition) (*models.TransitionResult, error) {
	b.persists++
	if len(b.persistErrs) > 0 {
		err := b.persistErrs[0]
		b.persistErrs = b.persistErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	b.transitions = append(b.transitions, transition)
	return &models.TransitionResult{Changed: int64(len(transition.Mints))}, nil
}

type gateStub struct {
	calls int
	err   error
}

func (g *gateStub) Reauthenticate(context.Context) error {
	g.calls++
	return g.err
}

type event struct {
	kind, id, msg string
}

type notifierStub struct {
	events []event
}

func (n *notifierStub) Loading(id, msg string) { n.events = append(n.events, event{"loading", id, msg}) }
func (n *notifierStub) Success(id, msg string) { n.events = append(n.events, event{"success", id, msg}) }
func (n *notifierStub) Error(id, msg string)   { n.events = append(n.events, event{"error", id, msg}) }

func (n *notifierStub) last() event {
	return n.events[len(n.events)-1]
}

type recorderStub struct {
	outcomes []string
}

func (r *recorderStub) ObservePipelineRun(_, outcome string, _ int) {
	r.outcomes = append(r.outcomes, outcome)
}

// decliningWallet refuses to sign transactions.
type decliningWallet struct {
	*wallet.Keypair
}

func (decliningWallet) SignTransaction(context.Context, *solana.Transaction) error {
	return errors.New("user rejected the request")
}

type fixture struct {
	network  *blockchaintest.Network
	backend  *backendStub
	gate     *gateStub
	notifier *notifierStub
	recorder *recorderStub
	owner    *wallet.Keypair
	states   []pipeline.State
	receipts []*pipeline.Receipt
	pipeline *pipeline.Pipeline
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	owner, err := wallet.Generate()
	require.NoError(t, err)
	authority, err := wallet.Generate()
	require.NoError(t, err)

	f := &fixture{
		network:  blockchaintest.NewNetwork(),
		gate:     &gateStub{},
		notifier: &notifierStub{},
		recorder: &recorderStub{},
		owner:    owner,
	}
	f.backend = &backendStub{
		builder: txbuilder.NewBuilder(f.network, authority, solana.NewWallet().PublicKey(), 6, logger.NewNop()),
		owner:   owner.PublicKey().String(),
	}
	f.pipeline = f.newPipeline(owner, authority)
	return f
}

func (f *fixture) newPipeline(w models.Wallet, authority models.Signer) *pipeline.Pipeline {
	return pipeline.NewPipeline(
		pipeline.Config{MaxRetries: 3, Cluster: "devnet"},
		f.backend, f.network, w, authority, f.gate, f.notifier, logger.NewNop(),
		pipeline.WithStateHook(func(s pipeline.State) { f.states = append(f.states, s) }),
		pipeline.WithOnCommitted(func(r *pipeline.Receipt) { f.receipts = append(f.receipts, r) }),
		pipeline.WithRecorder(f.recorder),
	)
}

func mints(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = solana.NewWallet().PublicKey().String()
	}
	return out
}

func TestRunStakeCommits(t *testing.T) {
	f := newFixture(t)
	assets := mints(2)

	receipt, err := f.pipeline.Run(context.Background(), pipeline.Request{Action: models.ActionStake, Mints: assets})
	require.NoError(t, err)
	require.Equal(t, 1, receipt.Attempts)
	require.Equal(t, assets, receipt.Mints)
	require.Contains(t, receipt.ExplorerURL, receipt.Signature)

	require.Equal(t, []pipeline.State{
		pipeline.StateBuilding,
		pipeline.StateAwaitingSignature,
		pipeline.StateSimulating,
		pipeline.StateSubmitted,
		pipeline.StateConfirming,
		pipeline.StateCommitted,
	}, f.states)

	require.Len(t, f.network.Sent, 1)
	require.NoError(t, f.network.Sent[0].VerifySignatures())
	require.Equal(t, solana.MessageVersionV0, f.network.Sent[0].Message.GetVersion())

	require.Len(t, f.backend.transitions, 1)
	transition := f.backend.transitions[0]
	require.Equal(t, f.owner.PublicKey().String(), transition.Owner)
	require.Equal(t, models.ActionStake, transition.Action)
	require.Equal(t, receipt.Signature, transition.Signature)

	require.Len(t, f.receipts, 1)
	require.Equal(t, "loading", f.notifier.events[0].kind)
	require.Equal(t, "success", f.notifier.last().kind)
	require.Equal(t, f.notifier.events[0].id, f.notifier.last().id)
	require.Equal(t, []string{"committed"}, f.recorder.outcomes)
}

func TestRunSimulationFailureRebuildsWithFreshBlockhash(t *testing.T) {
	f := newFixture(t)
	f.network.Simulate = func(call int, _ *solana.Transaction) *models.SimulationResult {
		if call == 1 {
			return &models.SimulationResult{Err: "BlockhashNotFound"}
		}
		return &models.SimulationResult{}
	}

	receipt, err := f.pipeline.Run(context.Background(), pipeline.Request{Action: models.ActionUnstake, Mints: mints(1)})
	require.NoError(t, err)
	require.Equal(t, 2, receipt.Attempts)
	require.Equal(t, 2, f.backend.builds)
	require.Len(t, f.network.Simulated, 2)
	require.NotEqual(t, f.network.Simulated[0].Message.RecentBlockhash, f.network.Simulated[1].Message.RecentBlockhash)
	require.Equal(t, 1, f.network.Count("SendTransaction"))
}

func TestRunSimulationFailureExhaustsRetries(t *testing.T) {
	f := newFixture(t)
	f.network.Simulate = func(int, *solana.Transaction) *models.SimulationResult {
		return &models.SimulationResult{Err: "custom program error: 0x11"}
	}

	_, err := f.pipeline.Run(context.Background(), pipeline.Request{Action: models.ActionStake, Mints: mints(1)})
	require.ErrorIs(t, err, models.ErrRetriesExhausted)
	require.ErrorIs(t, err, models.ErrSimulationFailed)
	require.Equal(t, "Something went wrong. Please retry", models.UserMessage(err))
	require.Equal(t, 3, f.backend.builds)
	require.Zero(t, f.network.Count("SendTransaction"))
	require.Equal(t, "error", f.notifier.last().kind)
	require.Empty(t, f.receipts)
}

func TestRunConfirmationFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	f.network.Confirm = func(int, solana.Signature) (*models.ConfirmationResult, error) {
		return &models.ConfirmationResult{Err: "InstructionError"}, nil
	}

	_, err := f.pipeline.Run(context.Background(), pipeline.Request{Action: models.ActionStake, Mints: mints(2)})
	require.ErrorIs(t, err, models.ErrConfirmationFailed)
	require.Equal(t, 1, f.backend.builds)
	require.Equal(t, 1, f.network.Count("SendTransaction"))
	require.Zero(t, f.backend.persists)
	require.Equal(t, pipeline.StateFailed, f.states[len(f.states)-1])
}

func TestRunUnauthorizedReauthenticatesAndRetries(t *testing.T) {
	f := newFixture(t)
	f.backend.buildErrs = []error{errUnauthorized}

	receipt, err := f.pipeline.Run(context.Background(), pipeline.Request{Action: models.ActionClaim})
	require.NoError(t, err)
	require.Equal(t, 1, f.gate.calls)
	require.Equal(t, 2, f.backend.builds)
	require.Equal(t, 2, receipt.Attempts)
	require.Contains(t, f.states, pipeline.StateUnauthorized)
	require.True(t, receipt.Amount.Equal(decimal.RequireFromString("1.5")))
}

func TestRunUnauthorizedUsesAttemptBudget(t *testing.T) {
	f := newFixture(t)
	f.backend.buildErrs = []error{errUnauthorized, errUnauthorized, errUnauthorized}

	_, err := f.pipeline.Run(context.Background(), pipeline.Request{Action: models.ActionClaim})
	require.ErrorIs(t, err, models.ErrRetriesExhausted)
	require.Equal(t, 3, f.gate.calls)
	require.Equal(t, 3, f.backend.builds)
}

func TestRunReauthenticationFailureAborts(t *testing.T) {
	f := newFixture(t)
	f.backend.buildErrs = []error{errUnauthorized}
	f.gate.err = errors.New("wallet declined")

	_, err := f.pipeline.Run(context.Background(), pipeline.Request{Action: models.ActionStake, Mints: mints(1)})
	require.ErrorIs(t, err, models.ErrUnauthorized)
	require.Equal(t, 1, f.backend.builds)
	require.Equal(t, 1, f.gate.calls)
}

func TestRunPersistenceFailureRetriesWriteOnly(t *testing.T) {
	f := newFixture(t)
	dbErr := errors.New("database is locked")
	f.backend.persistErrs = []error{dbErr, dbErr}

	receipt, err := f.pipeline.Run(context.Background(), pipeline.Request{Action: models.ActionStake, Mints: mints(1)})
	require.NoError(t, err)
	require.Equal(t, 3, f.backend.persists)
	require.Equal(t, 1, f.backend.builds)
	require.Equal(t, 1, f.network.Count("SendTransaction"))
	require.Equal(t, 3, receipt.Attempts)
}

func TestRunPersistenceFailureExhausts(t *testing.T) {
	f := newFixture(t)
	dbErr := errors.New("database is locked")
	f.backend.persistErrs = []error{dbErr, dbErr, dbErr, dbErr}

	_, err := f.pipeline.Run(context.Background(), pipeline.Request{Action: models.ActionStake, Mints: mints(1)})
	require.ErrorIs(t, err, models.ErrRetriesExhausted)
	require.ErrorIs(t, err, models.ErrPersistenceFailed)
	require.Equal(t, 3, f.backend.persists)
	require.Equal(t, 1, f.network.Count("SendTransaction"))
}

func TestRunPersistUnauthorizedReauthenticates(t *testing.T) {
	f := newFixture(t)
	f.backend.persistErrs = []error{errUnauthorized}

	_, err := f.pipeline.Run(context.Background(), pipeline.Request{Action: models.ActionStake, Mints: mints(1)})
	require.NoError(t, err)
	require.Equal(t, 1, f.gate.calls)
	require.Equal(t, 2, f.backend.persists)
	require.Equal(t, 1, f.network.Count("SendTransaction"))
}

func TestRunInvalidRequestFailsFast(t *testing.T) {
	f := newFixture(t)

	_, err := f.pipeline.Run(context.Background(), pipeline.Request{Action: models.ActionStake})
	require.ErrorIs(t, err, models.ErrInvalidRequest)
	_, err = f.pipeline.Run(context.Background(), pipeline.Request{Action: "burn", Mints: mints(1)})
	require.ErrorIs(t, err, models.ErrInvalidRequest)

	require.Zero(t, f.backend.builds)
	require.Zero(t, f.network.TotalCalls())
}

func TestRunWalletDeclines(t *testing.T) {
	f := newFixture(t)
	authority, err := wallet.Generate()
	require.NoError(t, err)
	f.backend.builder = txbuilder.NewBuilder(f.network, authority, solana.NewWallet().PublicKey(), 6, logger.NewNop())
	p := f.newPipeline(decliningWallet{f.owner}, authority)

	_, err = p.Run(context.Background(), pipeline.Request{Action: models.ActionStake, Mints: mints(1)})
	require.ErrorIs(t, err, models.ErrSubmissionFailed)
	require.Equal(t, 1, f.backend.builds)
	require.Zero(t, f.network.Count("SendTransaction"))
}

func TestRunRejectsForeignFeePayer(t *testing.T) {
	f := newFixture(t)
	stranger, err := wallet.Generate()
	require.NoError(t, err)
	f.backend.owner = stranger.PublicKey().String()

	_, err = f.pipeline.Run(context.Background(), pipeline.Request{Action: models.ActionStake, Mints: mints(1)})
	require.ErrorIs(t, err, models.ErrBuildFailed)
	require.Zero(t, f.network.Count("SimulateTransaction"))
}
