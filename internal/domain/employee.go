package domain

import (
	"context"
	"strings"
	"time"
)

// Employee is a person in the organisation directory. ManagerPhone is a parent
// pointer into the same directory; an employee whose ManagerPhone equals its own
// Phone (or is empty) is a hierarchy root.
type Employee struct {
	Name         string    `json:"name"`
	Phone        string    `json:"phone"`
	Email        string    `json:"email,omitempty"`
	ManagerPhone string    `json:"manager_phone,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IsRoot reports whether the employee has no manager above them.
func (e *Employee) IsRoot() bool {
	return e.ManagerPhone == "" || e.ManagerPhone == e.Phone
}

// Label renders the employee the way candidate lists show it to users.
func (e *Employee) Label() string {
	if e.Phone == "" {
		return e.Name
	}
	return e.Name + " (" + e.Phone + ")"
}

// MatchesName reports whether fragment is a case-insensitive substring of the name.
func (e *Employee) MatchesName(fragment string) bool {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return false
	}
	return strings.Contains(strings.ToLower(e.Name), strings.ToLower(fragment))
}

// DirectoryReader is the read side of the directory used by the conversation core.
type DirectoryReader interface {
	// FindByPhoneOrEmail returns the employee whose phone or email equals key.
	FindByPhoneOrEmail(ctx context.Context, key string) (*Employee, error)
	// FindDirectReports returns the employees whose manager is phone.
	FindDirectReports(ctx context.Context, phone string) ([]*Employee, error)
	// SearchByName returns employees whose name contains fragment
	// (case-insensitive) in stable store order.
	SearchByName(ctx context.Context, fragment string) ([]*Employee, error)
}

// DirectoryRepository is the full directory store, including mutations performed
// by action handlers.
type DirectoryRepository interface {
	DirectoryReader
	Create(ctx context.Context, e *Employee) error
	Update(ctx context.Context, e *Employee) error
	Delete(ctx context.Context, phone string) error
}
