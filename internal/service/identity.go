package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/screenlens/demo-gateway/internal/models"
	"github.com/screenlens/demo-gateway/internal/repository"
)

// IdentityService is the administrative surface over identity records. The
// gateway itself never deletes or re-tiers an identity; operators do.
type IdentityService struct {
	identities repository.IdentityRepository
	roles      repository.RoleRepository
	usage      repository.UsageRepository
	quota      *QuotaService
}

func NewIdentityService(
	identities repository.IdentityRepository,
	roles repository.RoleRepository,
	usage repository.UsageRepository,
	quota *QuotaService,
) *IdentityService {
	return &IdentityService{
		identities: identities,
		roles:      roles,
		usage:      usage,
		quota:      quota,
	}
}

func (s *IdentityService) List(ctx context.Context, limit, offset int) ([]models.Identity, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.identities.List(ctx, limit, offset)
}

func (s *IdentityService) Get(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	return s.identities.FindByID(ctx, id)
}

// SetRole moves an identity to a named tier. banReason only applies when the
// target tier is banned.
func (s *IdentityService) SetRole(ctx context.Context, id uuid.UUID, roleName string, banReason *string) error {
	identity, err := s.identities.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if identity == nil {
		return errors.New("identity not found")
	}

	role, err := s.roles.FindByName(ctx, roleName)
	if err != nil {
		return err
	}
	if role == nil {
		return fmt.Errorf("unknown role %q", roleName)
	}

	if role.Name != models.RoleBanned {
		banReason = nil
	}

	if err := s.identities.UpdateRole(ctx, id, role.ID, banReason); err != nil {
		return err
	}

	// Without invalidation the old tier would linger for the cache TTL.
	s.quota.InvalidateIdentity(ctx, identity.ClientToken)

	return nil
}

// Ban is SetRole(banned) with a recorded reason.
func (s *IdentityService) Ban(ctx context.Context, id uuid.UUID, reason string) error {
	return s.SetRole(ctx, id, models.RoleBanned, &reason)
}

// Usage returns the identity's consumption for the given day (today when
// date is empty).
func (s *IdentityService) Usage(ctx context.Context, id uuid.UUID, date string) (int64, error) {
	if date == "" {
		date = models.UsageDay(time.Now())
	}
	return s.usage.Get(ctx, id, date)
}
