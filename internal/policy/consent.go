package policy

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/xela07ax/openfinance-gateway/internal/domain"
)

// DefaultConsentPrefix marks consent tokens issued by this gateway.
const DefaultConsentPrefix = "consent_tkn_"

// ConsentIssuer hands out opaque consent identifiers, one per approval.
// Identifiers must never repeat and must not be guessable.
type ConsentIssuer interface {
	Issue() (string, error)
}

// UUIDIssuer issues random (v4) UUIDs from crypto/rand, 122 bits of entropy each.
type UUIDIssuer struct {
	Prefix string
}

func NewUUIDIssuer(prefix string) UUIDIssuer {
	return UUIDIssuer{Prefix: prefix}
}

func (i UUIDIssuer) Issue() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrConsentIssuance, err)
	}
	return i.Prefix + strings.ReplaceAll(id.String(), "-", ""), nil
}
