package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuthScheme identifies how a principal was authenticated.
type AuthScheme string

const (
	AuthSchemeServiceKey AuthScheme = "service_key"
	AuthSchemeSession    AuthScheme = "session"
)

// Principal is the authenticated user a request acts on behalf of.
// It is only ever produced by the credential gate, never read from a body.
type Principal struct {
	UserID       uuid.UUID  `json:"user_id"`
	Scheme       AuthScheme `json:"scheme"`
	CredentialID *uuid.UUID `json:"credential_id,omitempty"`
}

// IsService returns true if the principal presented a service credential.
func (p Principal) IsService() bool {
	return p.Scheme == AuthSchemeServiceKey
}

// User is the minimal account view the core needs to resolve counterparties.
type User struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
}

// ServiceCredential is a long-lived API key bound to exactly one user.
// Only the HMAC fingerprint of the key is persisted.
type ServiceCredential struct {
	ID          uuid.UUID  `json:"id"`
	UserID      uuid.UUID  `json:"user_id"`
	Name        string     `json:"name"`
	Fingerprint string     `json:"-"`
	IsActive    bool       `json:"is_active"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
