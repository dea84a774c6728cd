// Package acl implements the per-container access-control manager (C7).
package acl

import (
	"context"
	"sync"

	domainstorage "github.com/r3e-network/warehouse-core/domain/storage"
	"github.com/r3e-network/warehouse-core/infrastructure/errors"
)

// Engine evaluates per-container ACLs. A default public container with
// Role:Everyone -> Read exists from construction.
type Engine struct {
	mu         sync.RWMutex
	containers map[string]*domainstorage.Container
}

// New constructs an Engine with the bootstrap public container.
func New() *Engine {
	e := &Engine{containers: make(map[string]*domainstorage.Container)}
	public := &domainstorage.Container{
		ID:  domainstorage.PublicContainerID,
		ACL: map[string]domainstorage.Permission{domainstorage.RoleEveryoneSubject: domainstorage.PermissionRead},
	}
	e.containers[public.ID] = public
	return e
}

// Put registers or replaces a container's ACL record.
func (e *Engine) Put(c *domainstorage.Container) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.containers[c.ID] = c
}

// Get returns a container by id.
func (e *Engine) Get(id string) (*domainstorage.Container, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	c, ok := e.containers[id]
	if !ok {
		return nil, errors.NotFound("container", id)
	}
	return c, nil
}

// Caller is the subject an Authorize call checks: a user id, its roles
// (unprefixed, e.g. "editor"), and whether it carries the SystemAdmin flag.
type Caller struct {
	UserID      string
	Roles       []string
	SystemAdmin bool
}

// Authorize implements the normative 8-step per-container ACL algorithm.
// A missing container raises NotFound; an existing container whose ACL
// does not grant the required permission raises Denied.
func (e *Engine) Authorize(ctx context.Context, caller Caller, containerID string, required domainstorage.Permission) error {
	if caller.SystemAdmin {
		return nil
	}

	c, err := e.Get(containerID)
	if err != nil {
		return err
	}

	e.mu.RLock()
	acl := c.ACL
	e.mu.RUnlock()

	effective := domainstorage.PermissionNone

	if userVal, ok := acl[caller.UserID]; ok {
		if userVal == domainstorage.PermissionNone {
			return errors.Denied("explicit deny entry for user on container " + containerID)
		}
		effective = userVal
	}
	if effective >= required {
		return nil
	}

	for _, role := range caller.Roles {
		if roleVal, ok := acl[domainstorage.RoleSubjectPrefix+role]; ok {
			effective = maxPermission(effective, roleVal)
			if effective >= required {
				return nil
			}
		}
	}

	if everyoneVal, ok := acl[domainstorage.RoleEveryoneSubject]; ok {
		effective = maxPermission(effective, everyoneVal)
	}

	if effective >= required {
		return nil
	}
	return errors.Denied("insufficient permission on container " + containerID + ": have " + effective.String() + ", need " + required.String())
}

func maxPermission(a, b domainstorage.Permission) domainstorage.Permission {
	if a > b {
		return a
	}
	return b
}
