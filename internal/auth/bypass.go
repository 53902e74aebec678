package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/authvault/internal/shared"
	"github.com/upb/authvault/models"
)

// Well-known identities used only in bypass mode.
const (
	BypassAdminID          = "00000000-0000-0000-0000-000000000001"
	BypassPlaceholderID    = "00000000-0000-0000-0000-000000000002"
	BypassPlaceholderEmail = "dev-user@localhost"
)

// UserStore is the backing store consulted by bypass strategies.
// Lookups that find nothing return an error matching shared.ErrUserNotFound.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetLatestByRole(ctx context.Context, role models.Role) (*models.User, error)
	CountMemberships(ctx context.Context, userID uuid.UUID) (int, error)
	GetLatestAssignedMember(ctx context.Context) (*models.User, error)
}

// BypassStrategy resolves an identity from trusted headers. A nil identity
// with a nil error means no match and the next strategy is tried.
type BypassStrategy interface {
	Name() string
	Resolve(ctx context.Context, creds Credentials) (*models.Identity, error)
}

// DefaultBypassChain returns the strategies in their contractual order.
// Without a store only the admin allow-list can match.
func DefaultBypassChain(adminEmails []string, store UserStore) []BypassStrategy {
	chain := []BypassStrategy{NewAdminEmailStrategy(adminEmails)}
	if store == nil {
		return chain
	}
	return append(chain,
		&UserIDStrategy{store: store},
		&UserEmailStrategy{store: store},
		&LatestUserStrategy{store: store},
	)
}

// AdminEmailStrategy matches an allow-listed x-admin-email header
type AdminEmailStrategy struct {
	allowed map[string]struct{}
}

// NewAdminEmailStrategy builds the allow-list; comparison is case-insensitive
func NewAdminEmailStrategy(emails []string) *AdminEmailStrategy {
	allowed := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		if e = normalizeEmail(e); e != "" {
			allowed[e] = struct{}{}
		}
	}
	return &AdminEmailStrategy{allowed: allowed}
}

func (s *AdminEmailStrategy) Name() string { return "admin_email" }

func (s *AdminEmailStrategy) Resolve(_ context.Context, creds Credentials) (*models.Identity, error) {
	email := normalizeEmail(creds.AdminEmail)
	if email == "" {
		return nil, nil
	}
	if _, ok := s.allowed[email]; !ok {
		return nil, nil
	}
	return &models.Identity{ID: BypassAdminID, Email: email, Role: models.RoleAdmin}, nil
}

// UserIDStrategy acts as the user named by x-user-id
type UserIDStrategy struct {
	store UserStore
}

func (s *UserIDStrategy) Name() string { return "user_id" }

func (s *UserIDStrategy) Resolve(ctx context.Context, creds Credentials) (*models.Identity, error) {
	raw := strings.TrimSpace(creds.UserID)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, nil
	}
	return fromStore(s.store.GetByID(ctx, id))
}

// UserEmailStrategy acts as the user named by x-user-email
type UserEmailStrategy struct {
	store UserStore
}

func (s *UserEmailStrategy) Name() string { return "user_email" }

func (s *UserEmailStrategy) Resolve(ctx context.Context, creds Credentials) (*models.Identity, error) {
	email := normalizeEmail(creds.UserEmail)
	if email == "" {
		return nil, nil
	}
	return fromStore(s.store.GetByEmail(ctx, email))
}

// LatestUserStrategy falls back to the most recently created user-role account
type LatestUserStrategy struct {
	store UserStore
}

func (s *LatestUserStrategy) Name() string { return "latest_user" }

func (s *LatestUserStrategy) Resolve(ctx context.Context, _ Credentials) (*models.Identity, error) {
	return fromStore(s.store.GetLatestByRole(ctx, models.RoleUser))
}

// MembershipAdjustment swaps a store-resolved identity that belongs to no
// workspace for the most recently assigned workspace member.
type MembershipAdjustment struct {
	store  UserStore
	logger *zap.Logger
}

// Adjust never fails; store errors keep the original identity.
func (a *MembershipAdjustment) Adjust(ctx context.Context, identity *models.Identity) *models.Identity {
	userID, err := uuid.Parse(identity.ID)
	if err != nil {
		return identity
	}

	count, err := a.store.CountMemberships(ctx, userID)
	if err != nil {
		a.logger.Warn("membership count failed, keeping resolved identity",
			zap.String("user_id", identity.ID),
			zap.Error(err))
		return identity
	}
	if count > 0 {
		return identity
	}

	member, err := fromStore(a.store.GetLatestAssignedMember(ctx))
	if err != nil {
		a.logger.Warn("latest member lookup failed, keeping resolved identity",
			zap.String("user_id", identity.ID),
			zap.Error(err))
		return identity
	}
	if member == nil {
		return identity
	}

	a.logger.Debug("bypass identity replaced by workspace member",
		zap.String("from", identity.ID),
		zap.String("to", member.ID))
	return member
}

// placeholderIdentity is used when the store holds no users at all
func placeholderIdentity() *models.Identity {
	return &models.Identity{
		ID:    BypassPlaceholderID,
		Email: BypassPlaceholderEmail,
		Role:  models.RoleUser,
	}
}

// fromStore turns a store lookup into a strategy result. Not-found is no match;
// rows with an unknown role are rejected as no match too.
func fromStore(user *models.User, err error) (*models.Identity, error) {
	if err != nil {
		if errors.Is(err, shared.ErrUserNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if user == nil {
		return nil, nil
	}
	if _, err := models.ParseRole(string(user.Role)); err != nil {
		return nil, nil
	}
	return user.Identity(), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
