package models

import "github.com/golang-jwt/jwt/v5"

// UserRole represents the roles recognised by the RBAC layer.
type UserRole string

const (
	RoleFarmer        UserRole = "farmer"
	RoleLabTechnician UserRole = "lab_technician"
	RoleProcessor     UserRole = "processor"
	RoleSupplyManager UserRole = "supply_manager"
	RoleAdmin         UserRole = "admin"
)

// Stage returns the workflow stage owned by the role.
func (r UserRole) Stage() (Stage, bool) {
	switch r {
	case RoleFarmer:
		return StageFarmer, true
	case RoleLabTechnician:
		return StageLabTechnician, true
	case RoleProcessor:
		return StageProcessor, true
	case RoleSupplyManager:
		return StageManager, true
	}
	return "", false
}

// JWTClaims is the payload of access tokens minted by the identity provider.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email,omitempty"`
	FullName string   `json:"full_name,omitempty"`
	jwt.RegisteredClaims
}

// Actor is the verified caller of a mutation. It is passed explicitly into every service
// operation.
type Actor struct {
	UserID string
	Role   UserRole
	Name   string
}

// Actor projects the claims onto an Actor.
func (c *JWTClaims) Actor() Actor {
	if c == nil {
		return Actor{}
	}
	return Actor{UserID: c.UserID, Role: c.Role, Name: c.FullName}
}
