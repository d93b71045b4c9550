package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/screenlens/demo-gateway/internal/models"
	"github.com/screenlens/demo-gateway/internal/repository"
	"github.com/screenlens/demo-gateway/internal/storage"
	"github.com/screenlens/demo-gateway/internal/velocity"
)

// Policy is the resolved limit pair for one identity.
type Policy struct {
	DailyLimit    int64 `json:"daily_limit"`
	VelocityLimit int64 `json:"velocity_limit"`
}

// Decision is the outcome of a successful Reserve: the resolved identity, its
// policy, the usage observed at check time and the units Commit will add once
// the upstream call succeeds.
type Decision struct {
	Identity *models.Identity
	Policy   Policy
	Units    int64
	Usage    int64
	Date     string
}

// QuotaService resolves a probabilistic identity from the two client-supplied
// signals and enforces the daily allowance against the relational store. The
// store is the only shared mutable state; nothing is counted in process
// memory.
type QuotaService struct {
	identities repository.IdentityRepository
	usage      repository.UsageRepository
	roles      repository.RoleRepository
	cache      *storage.RedisClient
	guest      Policy

	velocityAlgorithm string
	velocityWindow    time.Duration

	// limiterFor is swappable in tests.
	limiterFor func(limit int64) velocity.Limiter
}

func NewQuotaService(
	identities repository.IdentityRepository,
	usage repository.UsageRepository,
	roles repository.RoleRepository,
	cache *storage.RedisClient,
	guest Policy,
	velocityAlgorithm string,
	velocityWindow time.Duration,
) *QuotaService {
	s := &QuotaService{
		identities:        identities,
		usage:             usage,
		roles:             roles,
		cache:             cache,
		guest:             guest,
		velocityAlgorithm: velocityAlgorithm,
		velocityWindow:    velocityWindow,
	}

	s.limiterFor = func(limit int64) velocity.Limiter {
		if cache == nil {
			return nil
		}
		return velocity.NewLimiter(cache, velocityAlgorithm, int(limit), velocityWindow)
	}

	return s
}

// Reserve runs identity resolution and the quota checks for one inbound call.
// unitCount <= 0 consumes nothing but still passes every check with weight 1.
//
// For an existing identity the stored signature is authoritative; the wire
// signature is only trusted, and only for a read, when no identity exists yet
// - that read is the device-level cap that stops a saturated device from
// minting fresh identities.
func (s *QuotaService) Reserve(ctx context.Context, clientToken, deviceSignature string, unitCount int64) (*Decision, error) {
	date := models.UsageDay(time.Now())
	required := unitCount
	if required < 1 {
		required = 1
	}

	identity, err := s.resolveIdentity(ctx, clientToken)
	if err != nil {
		return nil, err
	}

	if identity == nil {
		identity, err = s.register(ctx, clientToken, deviceSignature, date, required)
		if err != nil {
			return nil, err
		}
	} else {
		seenCtx := context.WithoutCancel(ctx)
		go func() {
			if err := s.identities.UpdateLastSeen(seenCtx, identity.ID); err != nil {
				log.Printf("WARN: failed to update last_seen for %s: %v", identity.ID, err)
			}
		}()
	}

	policy, err := s.resolvePolicy(ctx, identity)
	if err != nil {
		return nil, err
	}

	if err := s.checkVelocity(ctx, identity, policy); err != nil {
		return nil, err
	}

	current, err := s.usage.Get(ctx, identity.ID, date)
	if err != nil {
		return nil, err
	}

	if policy.DailyLimit != models.UnlimitedQuota && current+required > policy.DailyLimit {
		return nil, &LimitError{Code: CodeLimitExceeded, Usage: current, Limit: policy.DailyLimit}
	}

	units := unitCount
	if units < 0 {
		units = 0
	}

	return &Decision{
		Identity: identity,
		Policy:   policy,
		Units:    units,
		Usage:    current,
		Date:     date,
	}, nil
}

// Commit records the decision's units after a confirmed upstream success and
// returns the updated count. The limit check and the increment are one atomic
// statement, so two racing requests cannot both land the final unit; the
// loser gets a LimitError even though its upstream call went through.
func (s *QuotaService) Commit(ctx context.Context, d *Decision) (int64, error) {
	if d.Units <= 0 {
		return d.Usage, nil
	}

	if d.Policy.DailyLimit == models.UnlimitedQuota {
		return s.usage.Increment(ctx, d.Identity.ID, d.Date, d.Units)
	}

	count, applied, err := s.usage.IncrementWithin(ctx, d.Identity.ID, d.Date, d.Units, d.Policy.DailyLimit)
	if err != nil {
		return 0, err
	}
	if !applied {
		return count, &LimitError{Code: CodeLimitExceeded, Usage: count, Limit: d.Policy.DailyLimit}
	}

	return count, nil
}

// register creates the identity row for a previously-unseen client token,
// binding it to the wire signature permanently. The device-level read happens
// first so a saturated device is rejected before any record exists.
func (s *QuotaService) register(ctx context.Context, clientToken, deviceSignature, date string, required int64) (*models.Identity, error) {
	deviceUsage, err := s.usage.DeviceTotal(ctx, deviceSignature, date)
	if err != nil {
		return nil, err
	}

	if s.guest.DailyLimit != models.UnlimitedQuota && deviceUsage+required > s.guest.DailyLimit {
		return nil, &LimitError{Code: CodeDeviceLimitExceeded, Usage: deviceUsage, Limit: s.guest.DailyLimit}
	}

	guestRole, err := s.roles.FindByName(ctx, models.RoleGuest)
	if err != nil {
		return nil, err
	}
	if guestRole == nil {
		return nil, fmt.Errorf("guest role is not seeded")
	}

	identity := &models.Identity{
		ClientToken:     clientToken,
		DeviceSignature: deviceSignature,
		RoleID:          guestRole.ID,
		Role:            guestRole,
		LastSeenAt:      time.Now().UTC(),
	}
	if err := s.identities.Create(ctx, identity); err != nil {
		return nil, err
	}

	log.Printf("Registered identity %s (device %s)", identity.ID, truncateSignature(deviceSignature))

	return identity, nil
}

func (s *QuotaService) resolvePolicy(ctx context.Context, identity *models.Identity) (Policy, error) {
	role := identity.Role
	if role == nil {
		var err error
		role, err = s.roles.FindByID(ctx, identity.RoleID)
		if err != nil {
			return Policy{}, err
		}
	}

	// The flat-config limit is the guest tier's default; an identity with no
	// resolvable role gets the same treatment.
	if role == nil {
		return s.guest, nil
	}

	return Policy{DailyLimit: role.DailyLimit, VelocityLimit: role.VelocityLimit}, nil
}

// checkVelocity is a burst heuristic: it fails open when the limiter backend
// is unavailable, unlike the quota path which fails closed.
func (s *QuotaService) checkVelocity(ctx context.Context, identity *models.Identity, policy Policy) error {
	if policy.VelocityLimit == models.UnlimitedQuota || policy.VelocityLimit == 0 {
		return nil
	}

	limiter := s.limiterFor(policy.VelocityLimit)
	if limiter == nil {
		return nil
	}

	allowed, err := limiter.Allow(ctx, identity.ID.String())
	if err != nil {
		log.Printf("WARN: velocity limiter unavailable, allowing request: %v", err)
		return nil
	}

	if !allowed {
		return &LimitError{Code: CodeVelocityExceeded, Usage: policy.VelocityLimit, Limit: policy.VelocityLimit}
	}

	return nil
}

// resolveIdentity checks the redis cache first; a miss falls through to the
// store and primes the cache for 5 minutes.
func (s *QuotaService) resolveIdentity(ctx context.Context, clientToken string) (*models.Identity, error) {
	cacheKey := identityCacheKey(clientToken)

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey); err == nil && cached != "" {
			var identity models.Identity
			if err := json.Unmarshal([]byte(cached), &identity); err == nil {
				return &identity, nil
			}
		}
	}

	identity, err := s.identities.FindByClientToken(ctx, clientToken)
	if err != nil {
		return nil, err
	}
	if identity == nil {
		return nil, nil
	}

	if s.cache != nil {
		if identityJSON, err := json.Marshal(identity); err == nil {
			s.cache.Set(ctx, cacheKey, identityJSON, 5*time.Minute)
		}
	}

	return identity, nil
}

// InvalidateIdentity drops the cached lookup for a client token. Called after
// role changes and bans so they take effect within a request, not a TTL.
func (s *QuotaService) InvalidateIdentity(ctx context.Context, clientToken string) {
	if s.cache == nil {
		return
	}
	s.cache.Del(ctx, identityCacheKey(clientToken))
}

func identityCacheKey(clientToken string) string {
	return fmt.Sprintf("identity:cache:%s", clientToken)
}

// truncateSignature keeps log lines free of the full correlatable value.
func truncateSignature(signature string) string {
	if len(signature) <= 4 {
		return signature
	}
	return signature[:4] + "…"
}
