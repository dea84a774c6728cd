// Package storage holds the content-addressed data model: manifests (the
// unit of stored content) and containers (named ACL-bearing groupings).
package storage

import "time"

// Manifest is the metadata record for one stored blob. Content hash is the
// blob's identity; rewriting identical bytes produces the same hash and the
// same manifest content, which is what makes the index deduplication-friendly.
type Manifest struct {
	ID           string    `json:"id"`
	ContainerID  string    `json:"container_id"`
	PoolID       string    `json:"pool_id"`
	RelativePath string    `json:"relative_path"`
	ContentHash  string    `json:"content_hash"`
	Size         int64     `json:"size"`
	CreatedAt    time.Time `json:"created_at"`
	ModifiedAt   time.Time `json:"modified_at"`
	LastAccess   time.Time `json:"last_access"`
}

// Permission is the total order None < Read < Write < Delete < FullControl.
type Permission int

const (
	PermissionNone Permission = iota
	PermissionRead
	PermissionWrite
	PermissionDelete
	PermissionFullControl
)

func (p Permission) String() string {
	switch p {
	case PermissionNone:
		return "None"
	case PermissionRead:
		return "Read"
	case PermissionWrite:
		return "Write"
	case PermissionDelete:
		return "Delete"
	case PermissionFullControl:
		return "FullControl"
	default:
		return "Unknown"
	}
}

// RoleEveryoneSubject is the well-known ACL subject matching every caller's
// roles, regardless of their explicit role set.
const RoleEveryoneSubject = "Role:Everyone"

// RoleSubjectPrefix prefixes a role name to form its ACL subject key.
const RoleSubjectPrefix = "Role:"

// PublicContainerID is the identifier of the default public container
// created at bootstrap with Role:Everyone -> Read.
const PublicContainerID = "public"

// Container is a named logical grouping of manifests with a per-subject ACL.
// NewContainer grants the owner FullControl. The access-control engine
// stores a container's ACL as given and does not check that any entry
// grants FullControl; the bootstrap public container has only
// Role:Everyone -> Read.
type Container struct {
	ID          string                `json:"id"`
	OwnerID     string                `json:"owner_id"`
	Encryption  bool                  `json:"encryption"`
	Compression bool                  `json:"compression"`
	ACL         map[string]Permission `json:"acl"`
	CreatedAt   time.Time             `json:"created_at"`
}

// NewContainer constructs a container owned by ownerID with FullControl
// granted to the owner.
func NewContainer(id, ownerID string) *Container {
	return &Container{
		ID:        id,
		OwnerID:   ownerID,
		ACL:       map[string]Permission{ownerID: PermissionFullControl},
		CreatedAt: time.Now(),
	}
}
