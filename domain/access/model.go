// Package access defines the authentication and audit data model: sessions,
// API keys, role tiers, and audit events.
package access

import "time"

// RoleTier is the coarse ordered category gating which permissions an
// authenticated identity may request at all, independent of any
// per-container ACL.
type RoleTier int

const (
	RoleReadOnly RoleTier = iota
	RoleUser
	RolePowerUser
	RoleAdmin
)

func (r RoleTier) String() string {
	switch r {
	case RoleReadOnly:
		return "ReadOnly"
	case RoleUser:
		return "User"
	case RolePowerUser:
		return "PowerUser"
	case RoleAdmin:
		return "Admin"
	default:
		return "Unknown"
	}
}

// Session is proof of authenticated identity. Invariant: now <= Expiry for
// the session to be considered valid.
type Session struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Username     string    `json:"username"`
	RoleID       RoleTier  `json:"role_id"`
	Roles        []string  `json:"roles,omitempty"`
	Permissions  []string  `json:"permissions"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	LastActivity time.Time `json:"last_activity"`
	AuthMethod   string    `json:"auth_method"`
}

// DefaultSessionTTL is the session expiry applied when the authenticator is
// not given an explicit lifetime.
const DefaultSessionTTL = 24 * time.Hour

// APIKeyPrefix identifies the opaque secrets this package renders as
// recognizable, URL-safe credentials.
const APIKeyPrefix = "whk_"

// APIKey is an out-of-band credential. Invariant: once RevokedAt is set
// (and Active cleared), the key never authenticates again.
type APIKey struct {
	ID         string     `json:"id"`
	Secret     string     `json:"-"`
	OwnerID    string     `json:"owner_id"`
	RoleID     RoleTier   `json:"role_id"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	Active     bool       `json:"active"`
	UsageCount int64      `json:"usage_count"`
}

// APIKeySessionUsername is the synthetic username assigned to a session
// derived from an API key named name.
func APIKeySessionUsername(name string) string {
	return "api:" + name
}

// AuditCategory groups audit events by subsystem.
type AuditCategory string

const (
	AuditCategoryAuth    AuditCategory = "auth"
	AuditCategoryACL     AuditCategory = "acl"
	AuditCategoryStorage AuditCategory = "storage"
	AuditCategoryRaid    AuditCategory = "raid"
	AuditCategorySnapshot AuditCategory = "snapshot"
	AuditCategoryRestore AuditCategory = "restore"
	AuditCategoryBackup  AuditCategory = "backup"
	AuditCategorySystem  AuditCategory = "system"
)

// AuditSeverity is the severity label attached to an audit event.
type AuditSeverity string

const (
	SeverityInfo    AuditSeverity = "info"
	SeverityWarning AuditSeverity = "warning"
	SeverityError   AuditSeverity = "error"
)

// AuditEvent is an append-only record, immutable after enqueue.
type AuditEvent struct {
	ID           string                 `json:"id"`
	Timestamp    time.Time              `json:"timestamp"`
	Category     AuditCategory          `json:"category"`
	Action       string                 `json:"action"`
	ActorID      string                 `json:"actor_id"`
	ActorName    string                 `json:"actor_name"`
	ResourceType string                 `json:"resource_type"`
	ResourceID   string                 `json:"resource_id"`
	Success      bool                   `json:"success"`
	Severity     AuditSeverity          `json:"severity"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}
