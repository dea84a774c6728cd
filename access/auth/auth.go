// Package auth implements the authenticator and session store (C8):
// PBKDF2 password storage, session issuance, API keys, and the two-layer
// role-tier/ACL authorize() entry point.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"

	"github.com/r3e-network/warehouse-core/access/acl"
	domainaccess "github.com/r3e-network/warehouse-core/domain/access"
	domainstorage "github.com/r3e-network/warehouse-core/domain/storage"
	"github.com/r3e-network/warehouse-core/infrastructure/errors"
	"github.com/r3e-network/warehouse-core/infrastructure/hex"
	"github.com/r3e-network/warehouse-core/infrastructure/ratelimit"
)

const (
	pbkdf2Algorithm  = "pbkdf2-sha256"
	pbkdf2Iterations = 100_000
	pbkdf2KeyLength  = 32
	saltLength       = 32
	maxFailedLogins  = 5

	// loginAttemptsPerMinute bounds how often any single username may
	// attempt to authenticate, independent of the 5-consecutive-failure
	// lockout: lockout punishes wrong passwords, this bounds attempt
	// rate regardless of correctness (a credential-stuffing defense).
	loginAttemptsPerMinute = 10.0
)

func newLoginLimiter() *ratelimit.RateLimiter {
	return ratelimit.New(ratelimit.RateLimitConfig{
		RequestsPerSecond: loginAttemptsPerMinute / 60,
		Burst:             int(loginAttemptsPerMinute),
	})
}

// credential is the stored password record for one user.
type credential struct {
	username       string
	userID         string
	role           domainaccess.RoleTier
	roles          []string
	algorithm      string
	salt           []byte
	hash           []byte
	failedAttempts int
	locked         bool
}

// Authenticator is the authenticator and session store.
type Authenticator struct {
	mu          sync.Mutex
	credentials map[string]*credential       // keyed by lowercased username
	sessions    map[string]*domainaccess.Session // keyed by session id
	apiKeys     map[string]*domainaccess.APIKey  // keyed by raw secret
	loginLimits map[string]*ratelimit.RateLimiter // keyed by lowercased username

	sessionTTL time.Duration
}

// New constructs an empty Authenticator with the default session TTL.
func New() *Authenticator {
	return &Authenticator{
		credentials: make(map[string]*credential),
		sessions:    make(map[string]*domainaccess.Session),
		apiKeys:     make(map[string]*domainaccess.APIKey),
		loginLimits: make(map[string]*ratelimit.RateLimiter),
		sessionTTL:  domainaccess.DefaultSessionTTL,
	}
}

// loginLimiterFor returns the per-username rate limiter, creating it on
// first use.
func (a *Authenticator) loginLimiterFor(username string) *ratelimit.RateLimiter {
	key := strings.ToLower(username)
	a.mu.Lock()
	defer a.mu.Unlock()
	limiter, ok := a.loginLimits[key]
	if !ok {
		limiter = newLoginLimiter()
		a.loginLimits[key] = limiter
	}
	return limiter
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, errors.Internal("random generation failed", err)
	}
	return b, nil
}

func derivePassword(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, pbkdf2KeyLength, sha256.New)
}

// CreateUser registers a new password-authenticated identity.
func (a *Authenticator) CreateUser(userID, username, password string, role domainaccess.RoleTier, roles []string) error {
	salt, err := randomBytes(saltLength)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	key := strings.ToLower(username)
	if _, exists := a.credentials[key]; exists {
		return errors.Conflict("username already registered: " + username)
	}
	a.credentials[key] = &credential{
		username:  username,
		userID:    userID,
		role:      role,
		roles:     roles,
		algorithm: pbkdf2Algorithm,
		salt:      salt,
		hash:      derivePassword(password, salt),
	}
	return nil
}

// Authenticate validates a username/password pair, locking the account
// after 5 consecutive failures, and issues a session on success.
func (a *Authenticator) Authenticate(ctx context.Context, username, password string) (*domainaccess.Session, error) {
	if a.loginLimiterFor(username).LimitExceeded() {
		return nil, errors.Throttled("too many login attempts for " + username)
	}

	a.mu.Lock()
	cred, ok := a.credentials[strings.ToLower(username)]
	if !ok {
		a.mu.Unlock()
		return nil, errors.Unauthenticated("invalid credentials")
	}
	if cred.locked {
		a.mu.Unlock()
		return nil, errors.Unauthenticated("account locked after repeated failed logins")
	}

	candidate := derivePassword(password, cred.salt)
	if subtle.ConstantTimeCompare(candidate, cred.hash) != 1 {
		cred.failedAttempts++
		if cred.failedAttempts >= maxFailedLogins {
			cred.locked = true
		}
		a.mu.Unlock()
		return nil, errors.Unauthenticated("invalid credentials")
	}
	cred.failedAttempts = 0
	username = cred.username
	userID := cred.userID
	role := cred.role
	roles := cred.roles
	a.mu.Unlock()

	return a.issueSession(userID, username, role, roles, "password")
}

func (a *Authenticator) issueSession(userID, username string, role domainaccess.RoleTier, roles []string, method string) (*domainaccess.Session, error) {
	tokenBytes, err := randomBytes(16) // 128 bits
	if err != nil {
		return nil, err
	}
	now := time.Now()
	session := &domainaccess.Session{
		ID:           hex.EncodeToString(tokenBytes),
		UserID:       userID,
		Username:     username,
		RoleID:       role,
		Roles:        roles,
		CreatedAt:    now,
		ExpiresAt:    now.Add(a.sessionTTL),
		LastActivity: now,
		AuthMethod:   method,
	}
	a.mu.Lock()
	a.sessions[session.ID] = session
	a.mu.Unlock()
	return session, nil
}

// ValidateSession rejects and removes expired sessions, otherwise bumps
// last-activity and returns the session.
func (a *Authenticator) ValidateSession(ctx context.Context, token string) (*domainaccess.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	session, ok := a.sessions[token]
	if !ok {
		return nil, errors.Unauthenticated("session not found")
	}
	if time.Now().After(session.ExpiresAt) {
		delete(a.sessions, token)
		return nil, errors.Unauthenticated("session expired")
	}
	session.LastActivity = time.Now()
	return session, nil
}

// Logout removes a session immediately.
func (a *Authenticator) Logout(token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.sessions, token)
}

// Unlock clears a locked account's failure counter (administrator action).
func (a *Authenticator) Unlock(username string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	cred, ok := a.credentials[strings.ToLower(username)]
	if !ok {
		return errors.NotFound("user", username)
	}
	cred.locked = false
	cred.failedAttempts = 0
	return nil
}

// CreateAPIKey issues a new API key for ownerID, stores it, and returns the
// stored record. Its Secret field holds the raw secret a caller must
// present to authenticate; Secret is left out of the record's JSON form.
func (a *Authenticator) CreateAPIKey(ownerID string, role domainaccess.RoleTier, ttl *time.Duration) (*domainaccess.APIKey, error) {
	raw, err := randomBytes(32)
	if err != nil {
		return nil, err
	}
	secret := domainaccess.APIKeyPrefix + base64.RawURLEncoding.EncodeToString(raw)

	idBytes, err := randomBytes(8)
	if err != nil {
		return nil, err
	}
	key := &domainaccess.APIKey{
		ID:        hex.EncodeToString(idBytes),
		Secret:    secret,
		OwnerID:   ownerID,
		RoleID:    role,
		CreatedAt: time.Now(),
		Active:    true,
	}
	if ttl != nil {
		exp := time.Now().Add(*ttl)
		key.ExpiresAt = &exp
	}

	a.mu.Lock()
	a.apiKeys[secret] = key
	a.mu.Unlock()
	return key, nil
}

// RevokeAPIKey immediately marks an API key inactive. Sessions already
// issued from it are not retroactively revoked — a known trade-off.
func (a *Authenticator) RevokeAPIKey(id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, key := range a.apiKeys {
		if key.ID == id {
			now := time.Now()
			key.Active = false
			key.RevokedAt = &now
			return nil
		}
	}
	return errors.NotFound("api_key", id)
}

// AuthenticateAPIKey validates a raw API key secret and issues a session
// under the synthetic username api:<name>. The key's id is used as its
// name: this package does not model a separate human-assigned label.
func (a *Authenticator) AuthenticateAPIKey(ctx context.Context, rawSecret string) (*domainaccess.Session, error) {
	a.mu.Lock()
	key, ok := a.apiKeys[rawSecret]
	if !ok || !key.Active {
		a.mu.Unlock()
		return nil, errors.Unauthenticated("invalid or revoked api key")
	}
	if key.ExpiresAt != nil && time.Now().After(*key.ExpiresAt) {
		a.mu.Unlock()
		return nil, errors.Unauthenticated("api key expired")
	}
	key.UsageCount++
	ownerID := key.OwnerID
	role := key.RoleID
	name := key.ID
	a.mu.Unlock()

	return a.issueSession(ownerID, domainaccess.APIKeySessionUsername(name), role, nil, "api_key")
}

// roleTierAllows is the coarse role-tier gate: the permissions a session's
// RoleID may ever request, independent of any container ACL.
func roleTierAllows(tier domainaccess.RoleTier, requested domainstorage.Permission) bool {
	switch tier {
	case domainaccess.RoleAdmin:
		return true
	case domainaccess.RolePowerUser:
		return requested == domainstorage.PermissionRead || requested == domainstorage.PermissionWrite || requested == domainstorage.PermissionDelete
	case domainaccess.RoleUser:
		return requested == domainstorage.PermissionRead || requested == domainstorage.PermissionWrite
	case domainaccess.RoleReadOnly:
		return requested == domainstorage.PermissionRead
	default:
		return false
	}
}

// Authorize is the authoritative entry point: it enforces the role-tier
// gate first (denying without ever consulting an ACL when the tier
// itself disallows the permission), then — when an ACL engine and
// container id are supplied — the finer per-container ACL gate.
func Authorize(ctx context.Context, session *domainaccess.Session, containerID string, requested domainstorage.Permission, aclEngine *acl.Engine) error {
	if session == nil {
		return errors.Unauthenticated("no session")
	}
	if !roleTierAllows(session.RoleID, requested) {
		return errors.Denied(fmt.Sprintf("role tier %s does not permit %s", session.RoleID, requested))
	}
	if aclEngine == nil || containerID == "" {
		return nil
	}
	return aclEngine.Authorize(ctx, acl.Caller{
		UserID:      session.UserID,
		Roles:       session.Roles,
		SystemAdmin: session.RoleID == domainaccess.RoleAdmin,
	}, containerID, requested)
}

// AuthorizeLegacy checks session.Permissions, a flat string list
// preserved for back-compat. Deprecated: use Authorize for new call
// sites — it does not express the role-tier/ACL distinction this
// preserves only for existing integrations.
func AuthorizeLegacy(session *domainaccess.Session, permission string) bool {
	if session == nil {
		return false
	}
	for _, p := range session.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}
