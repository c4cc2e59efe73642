// Package auth implements wallet sign-in. The server side issues single-use
// nonces and session tokens; the client side re-authenticates a wallet when the
// server rejects its session.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/decred/dcrd/lru"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/core-coin/praemium/internal/models"
	"github.com/core-coin/praemium/pkg/logger"
)

const (
	defaultNonceCacheSize = 10000
	// maxMessageAge bounds how old the issued-at time of a sign-in may be
	maxMessageAge = 10 * time.Minute
	clockSkew     = time.Minute
	issuer        = "praemium"
)

type SessionConfig struct {
	Secret         string
	TTL            time.Duration
	Domain         string
	Statement      string
	NonceCacheSize uint
}

type SessionOption func(*SessionManager)

// WithSessionClock overrides the time source.
func WithSessionClock(now func() time.Time) SessionOption {
	return func(m *SessionManager) {
		m.now = now
	}
}

// SessionManager issues sign-in nonces and verifies signed sign-in messages.
// Nonces are kept in a bounded LRU set and consumed on first use.
type SessionManager struct {
	logger *logger.Logger
	cfg    SessionConfig
	secret []byte
	now    func() time.Time

	mu     sync.Mutex
	nonces lru.Cache
}

func NewSessionManager(cfg SessionConfig, logger *logger.Logger, opts ...SessionOption) (*SessionManager, error) {
	secret := []byte(strings.TrimSpace(cfg.Secret))
	if len(secret) == 0 {
		return nil, fmt.Errorf("session secret is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.NonceCacheSize == 0 {
		cfg.NonceCacheSize = defaultNonceCacheSize
	}
	m := &SessionManager{
		logger: logger,
		cfg:    cfg,
		secret: secret,
		now:    time.Now,
		nonces: lru.NewCache(cfg.NonceCacheSize),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Domain returns the domain sign-in messages must name.
func (m *SessionManager) Domain() string {
	return m.cfg.Domain
}

// Statement returns the statement sign-in messages carry.
func (m *SessionManager) Statement() string {
	return m.cfg.Statement
}

// IssueNonce returns a fresh anti-replay nonce.
func (m *SessionManager) IssueNonce() string {
	nonce := strings.ReplaceAll(uuid.NewString(), "-", "")
	m.mu.Lock()
	m.nonces.Add(nonce)
	m.mu.Unlock()
	return nonce
}

func (m *SessionManager) consumeNonce(nonce string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.nonces.Contains(nonce) {
		return false
	}
	m.nonces.Delete(nonce)
	return true
}

// VerifySignIn checks a signed sign-in message and returns a session token for
// its address. The nonce is consumed even when the signature is invalid.
func (m *SessionManager) VerifySignIn(message, signature string) (token string, owner string, err error) {
	msg, err := ParseSignInMessage(message)
	if err != nil {
		return "", "", models.NewError(models.KindUnauthorized, "Invalid sign-in message", err)
	}
	if m.cfg.Domain != "" && msg.Domain != m.cfg.Domain {
		return "", "", models.NewError(models.KindUnauthorized, "Sign-in domain mismatch", nil)
	}
	now := m.now()
	if msg.IssuedAt.After(now.Add(clockSkew)) || now.Sub(msg.IssuedAt) > maxMessageAge {
		return "", "", models.NewError(models.KindUnauthorized, "Sign-in message expired", nil)
	}
	if !m.consumeNonce(msg.Nonce) {
		return "", "", models.NewError(models.KindUnauthorized, "Unknown or used nonce", nil)
	}
	if err := msg.Verify(signature); err != nil {
		return "", "", models.NewError(models.KindUnauthorized, "Invalid signature", err)
	}

	token, err = m.issueToken(msg.Address, now)
	if err != nil {
		return "", "", err
	}
	m.logger.Infow("Wallet signed in", "account", msg.Address)
	return token, msg.Address, nil
}

func (m *SessionManager) issueToken(owner string, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   owner,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.cfg.TTL)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// ParseToken validates a session token and returns the account it belongs to.
func (m *SessionManager) ParseToken(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	},
		jwt.WithLeeway(clockSkew),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return "", models.NewError(models.KindUnauthorized, "", err)
	}
	if !token.Valid || claims.Subject == "" {
		return "", models.NewError(models.KindUnauthorized, "", errors.New("token invalid"))
	}
	return claims.Subject, nil
}
