package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/core-coin/praemium/internal/models"
)

// Projection is a read-only client view of a balance between checkpoints.
// It is never authoritative: Reconcile replaces it with every server response.
type Projection struct {
	balance     decimal.Decimal
	stakedCount int64
	rate        decimal.Decimal
	asOf        time.Time
}

func NewProjection(view *models.BalanceView) *Projection {
	p := &Projection{}
	p.Reconcile(view)
	return p
}

// Reconcile resets the projection to a checkpointed server view.
func (p *Projection) Reconcile(view *models.BalanceView) {
	p.balance = view.Balance
	p.stakedCount = view.StakedCount
	p.rate = view.RatePerSec
	p.asOf = view.AsOf
}

// At returns the balance projected to t.
func (p *Projection) At(t time.Time) decimal.Decimal {
	return p.balance.Add(ComputeAccrued(p.rate, p.stakedCount, Seconds(t.Sub(p.asOf))))
}

// PerSecond returns the current accrual per second.
func (p *Projection) PerSecond() decimal.Decimal {
	return ComputeAccrued(p.rate, p.stakedCount, decimal.NewFromInt(1))
}
