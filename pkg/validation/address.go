package validation

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/base58"
)

// PublicKeyLength is the size of an ed25519 public key in bytes.
const PublicKeyLength = 32

// ValidateAddress validates a base58 encoded wallet or mint address.
func ValidateAddress(addr string) error {
	if addr == "" {
		return fmt.Errorf("address cannot be empty")
	}
	if strings.TrimSpace(addr) != addr {
		return fmt.Errorf("address must not contain surrounding whitespace")
	}

	// base58.Decode returns an empty slice for invalid characters
	decoded := base58.Decode(addr)
	if len(decoded) == 0 {
		return fmt.Errorf("invalid base58 address: %q", addr)
	}

	if len(decoded) != PublicKeyLength {
		return fmt.Errorf("invalid address length: expected %d bytes, got %d", PublicKeyLength, len(decoded))
	}

	return nil
}

// ValidateAddresses validates every address and rejects duplicates.
func ValidateAddresses(addrs []string) error {
	seen := make(map[string]struct{}, len(addrs))
	for _, addr := range addrs {
		if err := ValidateAddress(addr); err != nil {
			return err
		}
		if _, ok := seen[addr]; ok {
			return fmt.Errorf("duplicate address: %s", addr)
		}
		seen[addr] = struct{}{}
	}
	return nil
}

// DecodeSignature decodes a base58 encoded ed25519 signature.
func DecodeSignature(sig string) ([]byte, error) {
	decoded := base58.Decode(sig)
	if len(decoded) != 64 {
		return nil, fmt.Errorf("invalid signature length: expected 64 bytes, got %d", len(decoded))
	}
	return decoded, nil
}

// EncodeSignature encodes raw signature bytes as base58.
func EncodeSignature(sig []byte) string {
	return base58.Encode(sig)
}
