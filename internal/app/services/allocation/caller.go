package allocation

import (
	"strings"

	"github.com/mintline/edition_layer/internal/app/domain/collection"
	apperrors "github.com/mintline/edition_layer/internal/errors"
)

// Role is the caller's coarse permission level.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleOwner Role = "owner"
	RoleUser  Role = "user"
)

// ParseRole maps a token claim to a role. Unknown values become RoleUser.
func ParseRole(raw string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleAdmin:
		return RoleAdmin
	case RoleOwner:
		return RoleOwner
	}
	return RoleUser
}

// Caller identifies who is invoking an operation.
type Caller struct {
	ID   string
	Role Role
}

func (c Caller) IsAdmin() bool { return c.Role == RoleAdmin }

func (c Caller) validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return apperrors.Unauthenticated("")
	}
	return nil
}

// canManage reports whether the caller may administer the collection.
func (c Caller) canManage(col collection.Collection) bool {
	if c.IsAdmin() {
		return true
	}
	return c.Role == RoleOwner && col.Owner == c.ID
}

func (c Caller) authorizeCollection(col collection.Collection) error {
	if !c.canManage(col) {
		return apperrors.Unauthorized("caller does not manage this collection")
	}
	return nil
}
