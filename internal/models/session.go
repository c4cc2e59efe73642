package models

import "context"

// SessionProvider verifies wallet sign-ins and holds the resulting session.
type SessionProvider interface {
	RequestNonce(ctx context.Context) (string, error)
	// VerifySignIn submits the sign-in message text and its base58 signature.
	VerifySignIn(ctx context.Context, message, signature string) error
}
