package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/core-coin/praemium/internal/models"
	"github.com/core-coin/praemium/pkg/logger"
	"github.com/core-coin/praemium/pkg/validation"
)

// Gate re-authenticates the connected wallet after the backend rejected its
// session. It signs exactly once per call; the caller owns any retry.
type Gate struct {
	logger    *logger.Logger
	sessions  models.SessionProvider
	wallet    models.Wallet
	domain    string
	statement string
	now       func() time.Time
}

func NewGate(sessions models.SessionProvider, wallet models.Wallet, domain, statement string, logger *logger.Logger) *Gate {
	return &Gate{
		logger:    logger,
		sessions:  sessions,
		wallet:    wallet,
		domain:    domain,
		statement: statement,
		now:       time.Now,
	}
}

// Reauthenticate requests a nonce, has the wallet sign a sign-in message and
// submits it for verification.
func (g *Gate) Reauthenticate(ctx context.Context) error {
	nonce, err := g.sessions.RequestNonce(ctx)
	if err != nil {
		return fmt.Errorf("failed to request sign-in nonce: %w", err)
	}

	msg := &SignInMessage{
		Domain:    g.domain,
		Address:   g.wallet.PublicKey().String(),
		Statement: g.statement,
		Nonce:     nonce,
		IssuedAt:  g.now().UTC().Truncate(time.Second),
	}
	text := msg.String()

	sig, err := g.wallet.SignMessage(ctx, []byte(text))
	if err != nil {
		return models.NewError(models.KindUnauthorized, "Wallet declined to sign in", err)
	}
	if err := g.sessions.VerifySignIn(ctx, text, validation.EncodeSignature(sig)); err != nil {
		return fmt.Errorf("failed to verify sign-in: %w", err)
	}

	g.logger.Infow("Re-authenticated", "account", msg.Address)
	return nil
}
