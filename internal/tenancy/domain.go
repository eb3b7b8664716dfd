package tenancy

import (
	"errors"
	"fmt"
	"time"
)

// Tenant is one partition of the system. Slug is the stable external handle
// used by the resolution middleware.
type Tenant struct {
	ID        int64     `json:"id"`
	Slug      string    `json:"slug"`
	Name      string    `json:"name"`
	Contact   string    `json:"contact,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// DirectoryEntry is free-form tenant metadata kept inside the partition.
type DirectoryEntry struct {
	ID       int64  `json:"id"`
	TenantID int64  `json:"-"`
	Name     string `json:"name"`
	Contact  string `json:"contact,omitempty"`
}

// SharedEntry is a directory entry mirrored into the shared partition.
// SourceID points back at the partition-local entry, which keeps the
// reconciliation idempotent.
type SharedEntry struct {
	ID       int64     `json:"id"`
	TenantID int64     `json:"tenant_id"`
	SourceID int64     `json:"source_id"`
	Name     string    `json:"name"`
	Contact  string    `json:"contact,omitempty"`
	SyncedAt time.Time `json:"synced_at"`
}

// TenantInput describes a tenant to create or update.
type TenantInput struct {
	Slug    string
	Name    string
	Contact string
}

var (
	// ErrTenantNotFound indicates an unknown tenant id or slug.
	ErrTenantNotFound = errors.New("tenancy: tenant not found")
	// ErrSlugRequired indicates a blank slug.
	ErrSlugRequired = errors.New("tenancy: slug required")
	// ErrNameRequired indicates a blank display name.
	ErrNameRequired = errors.New("tenancy: name required")
)

// DuplicateSlugError reports a slug collision.
type DuplicateSlugError struct {
	Slug string
}

func (e *DuplicateSlugError) Error() string {
	return fmt.Sprintf("tenancy: slug %q already exists", e.Slug)
}
