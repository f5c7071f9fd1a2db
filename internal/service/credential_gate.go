package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
	"time"

	"wallet-gateway/internal/core/domain"
	"wallet-gateway/internal/core/ports"
	"wallet-gateway/pkg/apperror"
	"wallet-gateway/pkg/logger"

	"github.com/rs/zerolog"
)

// APIKeyPrefix is the scheme marker every service credential starts with.
const APIKeyPrefix = "ak_"

var apiKeyPattern = regexp.MustCompile(`^ak_[A-Za-z0-9_-]{24,}$`)

// CredentialGateImpl implements ports.CredentialGate.
type CredentialGateImpl struct {
	credRepo ports.CredentialRepository
	sessions ports.SessionVerifier
	sigSvc   ports.SignatureService
	pepper   string
	now      func() time.Time
	log      zerolog.Logger
}

// NewCredentialGate creates a gate resolving service keys and session tokens.
func NewCredentialGate(
	credRepo ports.CredentialRepository,
	sessions ports.SessionVerifier,
	sigSvc ports.SignatureService,
	pepper string,
	log zerolog.Logger,
) *CredentialGateImpl {
	return &CredentialGateImpl{
		credRepo: credRepo,
		sessions: sessions,
		sigSvc:   sigSvc,
		pepper:   pepper,
		now:      time.Now,
		log:      log.With().Str("component", "credential_gate").Logger(),
	}
}

// Resolve turns the x-api-key or Authorization header into a principal.
// Exactly one of them must be set.
func (g *CredentialGateImpl) Resolve(ctx context.Context, apiKey, authorization string) (*domain.Principal, error) {
	apiKey = strings.TrimSpace(apiKey)
	authorization = strings.TrimSpace(authorization)

	switch {
	case apiKey != "" && authorization != "":
		return nil, apperror.ErrAuthRequired()
	case apiKey != "":
		return g.resolveServiceKey(ctx, apiKey)
	case authorization != "":
		return g.resolveSession(authorization)
	default:
		return nil, apperror.ErrAuthRequired()
	}
}

func (g *CredentialGateImpl) resolveServiceKey(ctx context.Context, apiKey string) (*domain.Principal, error) {
	if !apiKeyPattern.MatchString(apiKey) {
		return nil, apperror.ErrInvalidCredentialFormat()
	}

	cred, err := g.credRepo.GetByFingerprint(ctx, CredentialFingerprint(g.sigSvc, g.pepper, apiKey))
	if err != nil {
		return nil, apperror.ErrStoreUnavailable(fmt.Errorf("lookup credential: %w", err))
	}
	if cred == nil || !cred.IsActive {
		g.log.Warn().Str("api_key", logger.MaskKey(apiKey)).Msg("unknown or inactive service credential")
		return nil, apperror.ErrInvalidCredential()
	}

	if err := g.credRepo.TouchLastUsed(ctx, cred.ID, g.now().UTC()); err != nil {
		g.log.Warn().Err(err).Str("credential_id", cred.ID.String()).Msg("failed to stamp credential last_used_at")
	}

	credID := cred.ID
	return &domain.Principal{
		UserID:       cred.UserID,
		Scheme:       domain.AuthSchemeServiceKey,
		CredentialID: &credID,
	}, nil
}

func (g *CredentialGateImpl) resolveSession(authorization string) (*domain.Principal, error) {
	scheme, token, ok := strings.Cut(authorization, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return nil, apperror.ErrInvalidSession()
	}

	claims, err := g.sessions.Verify(strings.TrimSpace(token))
	if err != nil {
		g.log.Debug().Err(err).Msg("session token rejected")
		return nil, apperror.ErrInvalidSession()
	}

	return &domain.Principal{
		UserID: claims.UserID,
		Scheme: domain.AuthSchemeSession,
	}, nil
}

// CredentialFingerprint is the only form of an API key that is ever persisted.
func CredentialFingerprint(sigSvc ports.SignatureService, pepper, apiKey string) string {
	return sigSvc.Sign(pepper, apiKey)
}

// GenerateAPIKey returns a fresh service credential: ak_ + 43 url-safe characters.
func GenerateAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating api key: %w", err)
	}
	return APIKeyPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}
