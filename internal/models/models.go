package models

import (
	"slices"
	"strings"
	"time"
)

type Role string

const (
	RoleUser          Role = "user"
	RoleScenarioOwner Role = "scenario_owner"
	RoleAdmin         Role = "admin"
)

var Roles = []Role{RoleUser, RoleScenarioOwner, RoleAdmin}

func (r Role) Valid() bool {
	return slices.Contains(Roles, r)
}

type User struct {
	ID               string     `gorm:"primaryKey;size:36"     bson:"_id"                        json:"id"`
	Email            string     `gorm:"uniqueIndex;not null"   bson:"email"                      json:"email"`
	PasswordHash     string     `gorm:"not null"               bson:"passwordHash"               json:"-"`
	FirstName        string     `bson:"firstName"                  json:"firstName"`
	LastName         string     `bson:"lastName"                   json:"lastName"`
	Role             Role       `gorm:"not null;default:user"  bson:"role"                       json:"role"`
	RefreshTokenHash *string    `bson:"refreshTokenHash,omitempty" json:"-"`
	LastLoginAt      *time.Time `bson:"lastLoginAt,omitempty"      json:"lastLoginAt,omitempty"`
	CreatedAt        time.Time  `bson:"createdAt"                  json:"createdAt"`
	UpdatedAt        time.Time  `bson:"updatedAt"                  json:"updatedAt"`
}

// NormalizeEmail is applied on every write and lookup so uniqueness is case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
