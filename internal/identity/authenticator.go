package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Authenticator verifies bearer credentials against the identity store.
//
// Authenticate performs exactly one store lookup per call and has no other
// side effects, so the same instance serves both persistent connections
// (once at handshake) and one-shot HTTP requests (once per request).
type Authenticator struct {
	repo   Repository
	secret string
}

// NewAuthenticator creates an Authenticator backed by the given repository.
func NewAuthenticator(repo Repository, secret string) *Authenticator {
	return &Authenticator{repo: repo, secret: secret}
}

// Authenticate resolves a bearer credential to an Identity.
//
// Failures map to the three sentinel errors:
//   - ErrCredentialMissing: empty credential
//   - ErrCredentialInvalid: signature, expiry, or claim failures
//   - ErrSubjectNotFound: token subject has no account in the store
func (a *Authenticator) Authenticate(ctx context.Context, credential string) (*Identity, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, ErrCredentialMissing
	}

	claims, err := ParseToken(credential, a.secret)
	if err != nil {
		return nil, err
	}

	user, err := a.repo.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSubjectNotFound, claims.Subject)
		}
		return nil, fmt.Errorf("looking up subject: %w", err)
	}

	id := user.Identity()
	return &id, nil
}

// BearerFromHeader extracts the token from an "Authorization: Bearer <token>"
// header value. Returns an empty string when the header doesn't carry one.
func BearerFromHeader(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
