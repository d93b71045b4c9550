// Package testutil provides an in-memory stand-in for the relational store
// so service and handler tests can run without Postgres.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/screenlens/demo-gateway/internal/models"
)

// FakeStore implements IdentityRepository, UsageRepository and
// RoleRepository over maps. The usage mutations are mutex-atomic, matching
// the single-statement guarantee of the real store, which is what the
// concurrency tests lean on.
type FakeStore struct {
	mu sync.Mutex

	identitiesByToken map[string]*models.Identity
	identitiesByID    map[uuid.UUID]*models.Identity
	rolesByName       map[string]*models.Role
	rolesByID         map[uint]*models.Role
	usage             map[string]int64

	// Err, when set, is returned by every store operation.
	Err error
}

func NewFakeStore(guestDailyLimit, guestVelocityLimit int64) *FakeStore {
	s := &FakeStore{
		identitiesByToken: make(map[string]*models.Identity),
		identitiesByID:    make(map[uuid.UUID]*models.Identity),
		rolesByName:       make(map[string]*models.Role),
		rolesByID:         make(map[uint]*models.Role),
		usage:             make(map[string]int64),
	}

	s.addRole(&models.Role{ID: 1, Name: models.RoleBanned, DailyLimit: 0, VelocityLimit: 0})
	s.addRole(&models.Role{ID: 2, Name: models.RoleGuest, DailyLimit: guestDailyLimit, VelocityLimit: guestVelocityLimit})
	s.addRole(&models.Role{ID: 3, Name: models.RoleAdmin, DailyLimit: models.UnlimitedQuota, VelocityLimit: models.UnlimitedQuota})

	return s
}

func (s *FakeStore) addRole(role *models.Role) {
	s.rolesByName[role.Name] = role
	s.rolesByID[role.ID] = role
}

func usageKey(id uuid.UUID, date string) string {
	return id.String() + "|" + date
}

// AddIdentity registers an identity bound to the given signature and role
// name, returning it for use in assertions.
func (s *FakeStore) AddIdentity(clientToken, deviceSignature, roleName string) *models.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()

	role := s.rolesByName[roleName]
	identity := &models.Identity{
		ID:              uuid.New(),
		ClientToken:     clientToken,
		DeviceSignature: deviceSignature,
		RoleID:          role.ID,
		Role:            role,
		CreatedAt:       time.Now().UTC(),
		LastSeenAt:      time.Now().UTC(),
	}
	s.identitiesByToken[clientToken] = identity
	s.identitiesByID[identity.ID] = identity

	return identity
}

// SetUsage pins an identity's counter for a day.
func (s *FakeStore) SetUsage(id uuid.UUID, date string, count int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage[usageKey(id, date)] = count
}

// IdentityCount reports how many identities exist.
func (s *FakeStore) IdentityCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.identitiesByToken)
}

// --- IdentityRepository ---

func (s *FakeStore) FindByClientToken(ctx context.Context, clientToken string) (*models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}

	identity, ok := s.identitiesByToken[clientToken]
	if !ok {
		return nil, nil
	}
	copied := *identity
	return &copied, nil
}

func (s *FakeStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}

	identity, ok := s.identitiesByID[id]
	if !ok {
		return nil, nil
	}
	copied := *identity
	return &copied, nil
}

func (s *FakeStore) Create(ctx context.Context, identity *models.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return s.Err
	}

	if identity.ID == uuid.Nil {
		identity.ID = uuid.New()
	}
	identity.CreatedAt = time.Now().UTC()

	copied := *identity
	s.identitiesByToken[identity.ClientToken] = &copied
	s.identitiesByID[identity.ID] = &copied

	return nil
}

func (s *FakeStore) UpdateLastSeen(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return s.Err
	}

	if identity, ok := s.identitiesByID[id]; ok {
		identity.LastSeenAt = time.Now().UTC()
	}
	return nil
}

func (s *FakeStore) UpdateRole(ctx context.Context, id uuid.UUID, roleID uint, banReason *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return s.Err
	}

	if identity, ok := s.identitiesByID[id]; ok {
		identity.RoleID = roleID
		identity.Role = s.rolesByID[roleID]
		identity.BanReason = banReason
	}
	return nil
}

func (s *FakeStore) List(ctx context.Context, limit, offset int) ([]models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}

	identities := make([]models.Identity, 0, len(s.identitiesByToken))
	for _, identity := range s.identitiesByToken {
		identities = append(identities, *identity)
	}
	return identities, nil
}

func (s *FakeStore) CountByRole(ctx context.Context, roleID uint) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return 0, s.Err
	}

	var count int64
	for _, identity := range s.identitiesByToken {
		if identity.RoleID == roleID {
			count++
		}
	}
	return count, nil
}

// --- UsageRepository ---

func (s *FakeStore) Get(ctx context.Context, identityID uuid.UUID, date string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return 0, s.Err
	}

	return s.usage[usageKey(identityID, date)], nil
}

func (s *FakeStore) DeviceTotal(ctx context.Context, deviceSignature, date string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return 0, s.Err
	}

	var total int64
	for _, identity := range s.identitiesByToken {
		if identity.DeviceSignature == deviceSignature {
			total += s.usage[usageKey(identity.ID, date)]
		}
	}
	return total, nil
}

func (s *FakeStore) IncrementWithin(ctx context.Context, identityID uuid.UUID, date string, n, limit int64) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return 0, false, s.Err
	}

	key := usageKey(identityID, date)
	current := s.usage[key]
	if current+n > limit {
		return current, false, nil
	}

	s.usage[key] = current + n
	return current + n, true, nil
}

func (s *FakeStore) Increment(ctx context.Context, identityID uuid.UUID, date string, n int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return 0, s.Err
	}

	key := usageKey(identityID, date)
	s.usage[key] += n
	return s.usage[key], nil
}

// --- RoleRepository ---

// FakeRoles exposes the store's tiers through the role repository interface.
// It is a separate type because the identity and role lookups share a method
// name with different signatures.
type FakeRoles struct {
	store *FakeStore
}

// Roles returns a RoleRepository view over the same state.
func (s *FakeStore) Roles() *FakeRoles {
	return &FakeRoles{store: s}
}

func (r *FakeRoles) FindByID(ctx context.Context, id uint) (*models.Role, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if r.store.Err != nil {
		return nil, r.store.Err
	}

	role, ok := r.store.rolesByID[id]
	if !ok {
		return nil, nil
	}
	return role, nil
}

func (r *FakeRoles) FindByName(ctx context.Context, name string) (*models.Role, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if r.store.Err != nil {
		return nil, r.store.Err
	}

	role, ok := r.store.rolesByName[name]
	if !ok {
		return nil, nil
	}
	return role, nil
}

func (r *FakeRoles) Seed(ctx context.Context, guestDailyLimit, guestVelocityLimit int64) error {
	return nil
}
