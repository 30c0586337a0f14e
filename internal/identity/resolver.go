package identity

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"vmnotify/internal/retry"
	"vmnotify/internal/types"
)

// Strategy selects how an event owner maps to recipients.
type Strategy string

const (
	// StrategyUser fetches the owning user's record and uses its email
	// attribute.
	StrategyUser Strategy = "user"

	// StrategyTenantAdmin enumerates all directory users and collects the
	// emails of those holding an admin role on the owning tenant.
	StrategyTenantAdmin Strategy = "tenant-admin"
)

// adminRoleName is the role that marks a user as a tenant administrator.
// Matched case-insensitively.
const adminRoleName = "admin"

// Resolver maps a classified event to the set of mailbox addresses that
// should be notified. Resolution never fails the pipeline: after exhausting
// retries it returns an empty set and the caller substitutes the configured
// default recipients.
type Resolver struct {
	client   Client
	strategy Strategy
	runner   *retry.Runner
	logger   types.Logger

	// cache holds ownerID -> resolved addresses for the life of the
	// process. Only successful non-empty resolutions are cached.
	cacheEnabled bool
	mu           sync.Mutex
	cache        map[string][]string
}

// ResolverConfig holds the Resolver dependencies and tuning.
type ResolverConfig struct {
	Client   Client
	Strategy Strategy
	Runner   *retry.Runner
	Cache    bool
	Logger   types.Logger
}

// NewResolver creates a Resolver.
func NewResolver(cfg ResolverConfig) *Resolver {
	logger := cfg.Logger
	if logger == nil {
		logger = types.NopLogger{}
	}

	return &Resolver{
		client:       cfg.Client,
		strategy:     cfg.Strategy,
		runner:       cfg.Runner,
		logger:       logger,
		cacheEnabled: cfg.Cache,
		cache:        make(map[string][]string),
	}
}

// Resolve returns the recipient addresses for an event. The owner identifier
// consulted depends on the strategy: the user id for StrategyUser, the
// tenant id for StrategyTenantAdmin. An empty result means the caller should
// fall back to the default recipients.
func (r *Resolver) Resolve(ctx context.Context, ev types.Event) []string {
	ownerID := r.ownerID(ev)
	if ownerID == "" {
		r.logger.Warn("event carries no owner identifier, using default recipients",
			"strategy", string(r.strategy),
			"subject_id", ev.SubjectID,
		)
		return nil
	}

	if addrs, ok := r.cached(ownerID); ok {
		return addrs
	}

	var addrs []string
	err := r.runner.Do(ctx, func(ctx context.Context) error {
		var lookupErr error
		addrs, lookupErr = r.lookup(ctx, ownerID)
		return lookupErr
	}, func(attempt int, err error) {
		r.logger.Warn("identity lookup failed",
			"owner_id", ownerID,
			"attempt", attempt,
			"max_attempts", r.runner.Policy().MaxAttempts,
			"error", err.Error(),
		)
	})
	if err != nil {
		r.logger.Error("identity lookup exhausted retries",
			"owner_id", ownerID,
			"attempts", r.runner.Policy().MaxAttempts,
			"error", err.Error(),
		)
		return nil
	}

	r.store(ownerID, addrs)
	return addrs
}

// ownerID picks the identifier matching the strategy.
func (r *Resolver) ownerID(ev types.Event) string {
	if r.strategy == StrategyTenantAdmin {
		return ev.OwnerTenantID
	}
	return ev.OwnerUserID
}

// lookup runs one full authenticate-and-query sequence.
func (r *Resolver) lookup(ctx context.Context, ownerID string) ([]string, error) {
	token, err := r.client.Authenticate(ctx)
	if err != nil {
		return nil, fmt.Errorf("authenticate: %w", err)
	}

	switch r.strategy {
	case StrategyTenantAdmin:
		return r.tenantAdminEmails(ctx, token, ownerID)
	default:
		return r.userEmail(ctx, token, ownerID)
	}
}

// userEmail fetches one user record and returns its email attribute, if any.
func (r *Resolver) userEmail(ctx context.Context, token, userID string) ([]string, error) {
	user, err := r.client.GetUser(ctx, token, userID)
	if err != nil {
		return nil, fmt.Errorf("fetch user %s: %w", userID, err)
	}
	if user.Email == "" {
		r.logger.Warn("user record has no email attribute", "user_id", userID)
		return nil, nil
	}
	return []string{user.Email}, nil
}

// tenantAdminEmails enumerates every directory user and collects the emails
// of those holding an admin role on the tenant. This is O(users x roles) per
// event; acceptable because the directory is small and results are cached.
func (r *Resolver) tenantAdminEmails(ctx context.Context, token, tenantID string) ([]string, error) {
	users, err := r.client.ListUsers(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	var admins []string
	for _, user := range users {
		roles, err := r.client.ListUserRolesOnProject(ctx, token, tenantID, user.ID)
		if err != nil {
			return nil, fmt.Errorf("list roles for user %s on project %s: %w", user.ID, tenantID, err)
		}

		for _, role := range roles {
			if strings.EqualFold(role.Name, adminRoleName) {
				if user.Email != "" {
					admins = append(admins, user.Email)
				}
				break
			}
		}
	}
	return admins, nil
}

func (r *Resolver) cached(ownerID string) ([]string, bool) {
	if !r.cacheEnabled {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	addrs, ok := r.cache[ownerID]
	return addrs, ok
}

func (r *Resolver) store(ownerID string, addrs []string) {
	if !r.cacheEnabled || len(addrs) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[ownerID] = addrs
}
