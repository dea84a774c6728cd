package auth

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	domainaccess "github.com/r3e-network/warehouse-core/domain/access"
	"github.com/r3e-network/warehouse-core/infrastructure/errors"
)

// bearerClaims is the payload of a signed bearer token: an alternate,
// stateless representation of an already-issued session, for API
// consumers that cannot hold the opaque session token as server-side
// state. The session id travels as the JWT id (jti) so a bearer token
// still resolves back to the same session record — and is still
// revoked the moment that session is, rather than living on as an
// independently-trusted credential after Logout.
type bearerClaims struct {
	jwt.RegisteredClaims
	Role  domainaccess.RoleTier `json:"role"`
	Roles []string              `json:"roles,omitempty"`
}

// IssueBearerToken signs an HS256 JWT mirroring an already-issued
// session: decoding it locally tells a caller the session's role
// without a round trip, but presenting it back still requires the
// session to be live in this Authenticator's store.
func IssueBearerToken(secret []byte, session *domainaccess.Session) (string, error) {
	if len(secret) == 0 {
		return "", errors.InvalidConfiguration("bearer_token_secret", "required")
	}
	if session == nil {
		return "", errors.InvalidArgument("session", "required")
	}
	claims := bearerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   session.UserID,
			ID:        session.ID,
			IssuedAt:  jwt.NewNumericDate(session.CreatedAt),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		},
		Role:  session.RoleID,
		Roles: session.Roles,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", errors.Internal("bearer token signing failed", err)
	}
	return signed, nil
}

// ValidateBearerToken verifies a bearer token's signature and
// expiration, then resolves its embedded session id against the live
// session store — exactly like ValidateSession, so Logout/expiry
// revoke a bearer token precisely as they would the opaque token it
// mirrors. A token whose signature checks out but whose session has
// since been logged out is rejected here, not merely by signature
// expiry, satisfying "still validated against the revocation list."
func (a *Authenticator) ValidateBearerToken(ctx context.Context, secret []byte, tokenString string) (*domainaccess.Session, error) {
	if len(secret) == 0 {
		return nil, errors.InvalidConfiguration("bearer_token_secret", "required")
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &bearerClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, errors.Unauthenticated("invalid bearer token")
	}
	claims, ok := parsed.Claims.(*bearerClaims)
	if !ok || !parsed.Valid || claims.ID == "" {
		return nil, errors.Unauthenticated("invalid bearer token")
	}

	return a.ValidateSession(ctx, claims.ID)
}
