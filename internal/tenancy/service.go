package tenancy

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stockyard-erp/stockyard/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	CreateTenant(ctx context.Context, in TenantInput) (Tenant, error)
	GetTenant(ctx context.Context, id int64) (Tenant, error)
	GetTenantBySlug(ctx context.Context, slug string) (Tenant, error)
	ListTenants(ctx context.Context) ([]Tenant, error)
	UpdateTenant(ctx context.Context, id int64, in TenantInput) (Tenant, error)
	AddDirectoryEntry(ctx context.Context, e DirectoryEntry) (DirectoryEntry, error)
	ListDirectoryEntries(ctx context.Context, tenantID int64) ([]DirectoryEntry, error)
	UpsertSharedEntries(ctx context.Context, tenantID int64, entries []DirectoryEntry) (int, error)
	ListSharedEntries(ctx context.Context, tenantID int64) ([]SharedEntry, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages the tenant directory and resolves partition keys for the
// middleware. Lookups are cached in redis so resolution does not touch
// Postgres on every request; a nil client disables the cache.
type Service struct {
	repo     RepositoryPort
	client   *redis.Client
	audit    AuditPort
	cacheTTL time.Duration
}

// NewService constructs the tenancy service.
func NewService(repo RepositoryPort, client *redis.Client, audit AuditPort, cacheTTL time.Duration) *Service {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &Service{repo: repo, client: client, audit: audit, cacheTTL: cacheTTL}
}

// Create registers a new tenant. The slug is case-folded so lookups are
// case-insensitive.
func (s *Service) Create(ctx context.Context, in TenantInput) (Tenant, error) {
	in.Slug = shared.Fold(in.Slug)
	in.Name = strings.TrimSpace(in.Name)
	if in.Slug == "" {
		return Tenant{}, ErrSlugRequired
	}
	if in.Name == "" {
		return Tenant{}, ErrNameRequired
	}
	t, err := s.repo.CreateTenant(ctx, in)
	if err != nil {
		return Tenant{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			TenantID: t.ID,
			Action:   "tenancy:create",
			Entity:   "tenant",
			EntityID: t.Slug,
		})
	}
	return t, nil
}

// Get returns one tenant by id.
func (s *Service) Get(ctx context.Context, id int64) (Tenant, error) {
	return s.repo.GetTenant(ctx, id)
}

// List returns every tenant, ordered by slug.
func (s *Service) List(ctx context.Context) ([]Tenant, error) {
	return s.repo.ListTenants(ctx)
}

// Update changes name and contact; the slug is immutable.
func (s *Service) Update(ctx context.Context, id int64, in TenantInput) (Tenant, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return Tenant{}, ErrNameRequired
	}
	t, err := s.repo.UpdateTenant(ctx, id, in)
	if err != nil {
		return Tenant{}, err
	}
	s.dropCached(ctx, t)
	return t, nil
}

// ResolveByID turns a tenant id into a verified partition key.
func (s *Service) ResolveByID(ctx context.Context, id int64) (Tenant, error) {
	key := "tenant:id:" + strconv.FormatInt(id, 10)
	if t, ok := s.cached(ctx, key); ok {
		return t, nil
	}
	t, err := s.repo.GetTenant(ctx, id)
	if err != nil {
		return Tenant{}, err
	}
	s.cache(ctx, t)
	return t, nil
}

// ResolveBySlug turns a slug into a verified partition key.
func (s *Service) ResolveBySlug(ctx context.Context, slug string) (Tenant, error) {
	slug = shared.Fold(slug)
	if slug == "" {
		return Tenant{}, ErrTenantNotFound
	}
	if t, ok := s.cached(ctx, "tenant:slug:"+slug); ok {
		return t, nil
	}
	t, err := s.repo.GetTenantBySlug(ctx, slug)
	if err != nil {
		return Tenant{}, err
	}
	s.cache(ctx, t)
	return t, nil
}

// AddEntry stores one directory entry inside the tenant's partition.
func (s *Service) AddEntry(ctx context.Context, tenantID int64, name, contact string) (DirectoryEntry, error) {
	if tenantID <= 0 {
		return DirectoryEntry{}, shared.ErrTenantRequired
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return DirectoryEntry{}, ErrNameRequired
	}
	return s.repo.AddDirectoryEntry(ctx, DirectoryEntry{TenantID: tenantID, Name: name, Contact: contact})
}

// ListEntries returns the tenant's directory.
func (s *Service) ListEntries(ctx context.Context, tenantID int64) ([]DirectoryEntry, error) {
	if tenantID <= 0 {
		return nil, shared.ErrTenantRequired
	}
	return s.repo.ListDirectoryEntries(ctx, tenantID)
}

// Reconcile mirrors the tenant's directory into the shared partition. It is
// an explicit step rather than a save hook, and re-running it is harmless:
// existing copies are overwritten in place, never duplicated.
func (s *Service) Reconcile(ctx context.Context, tenantID int64) (int, error) {
	if _, err := s.repo.GetTenant(ctx, tenantID); err != nil {
		return 0, err
	}
	entries, err := s.repo.ListDirectoryEntries(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	synced, err := s.repo.UpsertSharedEntries(ctx, tenantID, entries)
	if err != nil {
		return synced, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			TenantID: tenantID,
			Action:   "tenancy:reconcile",
			Entity:   "shared_directory",
			EntityID: strconv.FormatInt(tenantID, 10),
			Meta:     map[string]any{"synced": synced},
		})
	}
	return synced, nil
}

// SharedEntries returns the tenant's mirrored rows in the shared partition,
// as the last reconcile left them.
func (s *Service) SharedEntries(ctx context.Context, tenantID int64) ([]SharedEntry, error) {
	if tenantID <= 0 {
		return nil, shared.ErrTenantRequired
	}
	if _, err := s.repo.GetTenant(ctx, tenantID); err != nil {
		return nil, err
	}
	return s.repo.ListSharedEntries(ctx, tenantID)
}

func (s *Service) cached(ctx context.Context, key string) (Tenant, bool) {
	if s.client == nil {
		return Tenant{}, false
	}
	payload, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		return Tenant{}, false
	}
	var t Tenant
	if err := json.Unmarshal(payload, &t); err != nil {
		return Tenant{}, false
	}
	return t, true
}

func (s *Service) cache(ctx context.Context, t Tenant) {
	if s.client == nil {
		return
	}
	payload, err := json.Marshal(t)
	if err != nil {
		return
	}
	_ = s.client.Set(ctx, "tenant:id:"+strconv.FormatInt(t.ID, 10), payload, s.cacheTTL).Err()
	_ = s.client.Set(ctx, "tenant:slug:"+t.Slug, payload, s.cacheTTL).Err()
}

func (s *Service) dropCached(ctx context.Context, t Tenant) {
	if s.client == nil {
		return
	}
	_ = s.client.Del(ctx, "tenant:id:"+strconv.FormatInt(t.ID, 10), "tenant:slug:"+t.Slug).Err()
}
