package auth

import (
	"crypto/ed25519"
	"fmt"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil/base58"

	"github.com/core-coin/praemium/pkg/validation"
)

const (
	messageHeaderSuffix = " wants you to sign in with your wallet:"
	nonceLinePrefix     = "Nonce: "
	issuedAtLinePrefix  = "Issued At: "
)

// SignInMessage is the structured text a wallet signs to prove it controls Address.
type SignInMessage struct {
	Domain    string
	Address   string
	Statement string
	Nonce     string
	IssuedAt  time.Time
}

// String renders the message in the form that is signed.
func (m *SignInMessage) String() string {
	var b strings.Builder
	b.WriteString(m.Domain)
	b.WriteString(messageHeaderSuffix)
	b.WriteString("\n")
	b.WriteString(m.Address)
	b.WriteString("\n\n")
	if m.Statement != "" {
		b.WriteString(m.Statement)
		b.WriteString("\n\n")
	}
	b.WriteString(nonceLinePrefix)
	b.WriteString(m.Nonce)
	b.WriteString("\n")
	b.WriteString(issuedAtLinePrefix)
	b.WriteString(m.IssuedAt.UTC().Format(time.RFC3339))
	return b.String()
}

// ParseSignInMessage parses the output of SignInMessage.String.
func ParseSignInMessage(text string) (*SignInMessage, error) {
	lines := strings.Split(text, "\n")
	if len(lines) < 5 {
		return nil, fmt.Errorf("sign-in message is too short")
	}
	if !strings.HasSuffix(lines[0], messageHeaderSuffix) {
		return nil, fmt.Errorf("invalid sign-in message header")
	}
	msg := &SignInMessage{
		Domain:  strings.TrimSuffix(lines[0], messageHeaderSuffix),
		Address: lines[1],
	}
	if err := validation.ValidateAddress(msg.Address); err != nil {
		return nil, fmt.Errorf("invalid sign-in address: %w", err)
	}
	if lines[2] != "" {
		return nil, fmt.Errorf("malformed sign-in message")
	}

	rest := lines[3:]
	if !strings.HasPrefix(rest[0], nonceLinePrefix) {
		if len(rest) < 4 || rest[1] != "" {
			return nil, fmt.Errorf("malformed sign-in statement")
		}
		msg.Statement = rest[0]
		rest = rest[2:]
	}
	if len(rest) != 2 || !strings.HasPrefix(rest[0], nonceLinePrefix) || !strings.HasPrefix(rest[1], issuedAtLinePrefix) {
		return nil, fmt.Errorf("malformed sign-in message fields")
	}
	msg.Nonce = strings.TrimPrefix(rest[0], nonceLinePrefix)
	issuedAt, err := time.Parse(time.RFC3339, strings.TrimPrefix(rest[1], issuedAtLinePrefix))
	if err != nil {
		return nil, fmt.Errorf("invalid issued-at time: %w", err)
	}
	msg.IssuedAt = issuedAt
	if msg.Nonce == "" {
		return nil, fmt.Errorf("sign-in nonce is empty")
	}
	return msg, nil
}

// Verify checks the base58 ed25519 signature of the message against its address.
func (m *SignInMessage) Verify(signature string) error {
	sig, err := validation.DecodeSignature(signature)
	if err != nil {
		return err
	}
	pub := base58.Decode(m.Address)
	if len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("invalid public key length %d", len(pub))
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), []byte(m.String()), sig) {
		return fmt.Errorf("signature does not match address %s", m.Address)
	}
	return nil
}
