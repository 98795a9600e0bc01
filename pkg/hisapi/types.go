// Package hisapi holds the wire types shared by the HIS server and the
// console: identity, login, navigation and the typed resource payloads.
package hisapi

import (
	"time"

	"github.com/his/his/pkg/access"
)

// User is the identity carried in a session.
type User struct {
	ID     string      `json:"id" yaml:"id"`
	Name   string      `json:"name" yaml:"name"`
	Email  string      `json:"email" yaml:"email"`
	Role   access.Role `json:"role" yaml:"role"`
	Avatar string      `json:"avatar,omitempty" yaml:"avatar,omitempty"`
}

func (u User) GetID() string { return u.ID }

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}

// ErrorResponse is the body of every non-2xx server response.
type ErrorResponse struct {
	Message string `json:"message"`
}

// ModuleRef is a menu entry as sent to clients.
type ModuleRef struct {
	ID    access.ModuleID `json:"id"`
	Label string          `json:"label"`
}

// Navigation describes what the caller's role can open.
type Navigation struct {
	Role    access.Role     `json:"role"`
	Modules []ModuleRef     `json:"modules"`
	Default access.ModuleID `json:"default,omitempty"`
}

// DashboardSummary holds record counts for the collections the caller can see.
type DashboardSummary struct {
	Modules []ModuleRef    `json:"modules"`
	Counts  map[string]int `json:"counts"`
}

// InviteRequest creates a user account.
type InviteRequest struct {
	Username string      `json:"username" validate:"required,min=3,max=64"`
	Password string      `json:"password" validate:"required,min=8"`
	Name     string      `json:"name" validate:"required"`
	Email    string      `json:"email" validate:"required,email"`
	Role     access.Role `json:"role" validate:"required,role"`
	Avatar   string      `json:"avatar,omitempty" validate:"omitempty,url"`
}

// RoleChangeRequest is the body of the explicit role-change action.
type RoleChangeRequest struct {
	Role access.Role `json:"role" validate:"required,role"`
}

// Meta carries the server-assigned fields of a stored record. It is embedded
// in every resource payload and ignored on input.
type Meta struct {
	ID        string     `json:"id,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	Version   int        `json:"version,omitempty"`
}

// GetID returns the record identifier.
func (m Meta) GetID() string { return m.ID }

// Identified is satisfied by every resource payload.
type Identified interface {
	GetID() string
}

// MetaKeys are the JSON keys owned by Meta.
var MetaKeys = map[string]bool{
	"id":         true,
	"created_at": true,
	"updated_at": true,
	"version":    true,
}
