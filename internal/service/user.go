package service

import (
	"context"
	"log"
	"strings"

	"debtster/internal/domain"
	"debtster/internal/repository"

	"golang.org/x/crypto/bcrypt"
)

type UserStore interface {
	ByID(ctx context.Context, id int64) (*domain.User, error)
	ByUsername(ctx context.Context, username string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	UpdateProfile(ctx context.Context, id int64, fullName string, email, summary *string) error
	List(ctx context.Context, f repository.UsersFilter) ([]domain.User, error)
}

type TokenStore interface {
	Issue(ctx context.Context, userID int64, name string) (string, *domain.PersonalAccessToken, error)
	Revoke(ctx context.Context, id int64) error
}

type StatsProvider interface {
	StatsForUser(ctx context.Context, userID int64) (*repository.UserStats, error)
}

// UserService covers accounts: registration, login/logout and profiles.
type UserService struct {
	users     UserStore
	tokens    TokenStore
	stats     StatsProvider
	tokenName string
}

func NewUserService(users UserStore, tokens TokenStore, stats StatsProvider, tokenName string) *UserService {
	if tokenName == "" {
		tokenName = "api"
	}
	return &UserService{users: users, tokens: tokens, stats: stats, tokenName: tokenName}
}

type RegisterInput struct {
	Username string
	Password string
	FullName string
	Email    *string
	Role     domain.Role
}

// Register creates an account. Only creditor and debtor accounts can be
// self-registered; the role is fixed from then on.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	username := strings.TrimSpace(in.Username)
	switch {
	case username == "":
		return nil, domain.Validation("username", "username is required")
	case len(username) > 150:
		return nil, domain.Validation("username", "username must be at most 150 characters")
	}
	if len(in.Password) < 8 {
		return nil, domain.Validation("password", "password must be at least 8 characters")
	}
	if in.Role != domain.RoleCreditor && in.Role != domain.RoleDebtor {
		return nil, domain.Validation("role", "role must be creditor or debtor")
	}

	existing, err := s.users.ByUsername(ctx, username)
	if err != nil {
		return nil, domain.Persistence("check username", err)
	}
	if existing != nil {
		return nil, domain.Validation("username", "username is already taken")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, domain.Persistence("hash password", err)
	}

	user := domain.User{
		Username:     username,
		PasswordHash: string(hash),
		FullName:     strings.TrimSpace(in.FullName),
		Email:        in.Email,
		Role:         in.Role,
		IsActive:     true,
	}
	if err := s.users.Create(ctx, &user); err != nil {
		return nil, domain.Persistence("create user", err)
	}

	log.Printf("[USER] registered %s (%s)", user.Username, user.Role)
	return &user, nil
}

// Login verifies credentials and issues a personal access token. The
// plaintext token is returned once and never stored.
func (s *UserService) Login(ctx context.Context, username, password string) (*domain.User, string, error) {
	user, err := s.users.ByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, "", domain.Persistence("load user", err)
	}
	if user == nil || !user.IsActive {
		return nil, "", domain.Validation("username", "invalid username or password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, "", domain.Validation("username", "invalid username or password")
	}

	plain, _, err := s.tokens.Issue(ctx, user.ID, s.tokenName)
	if err != nil {
		return nil, "", domain.Persistence("issue token", err)
	}

	return user, plain, nil
}

// Logout revokes the token the request authenticated with.
func (s *UserService) Logout(ctx context.Context, tokenID int64) error {
	if err := s.tokens.Revoke(ctx, tokenID); err != nil {
		return domain.Persistence("revoke token", err)
	}
	return nil
}

type Profile struct {
	User  *domain.User
	Stats *repository.UserStats
}

// Profile returns the account and its debt figures.
func (s *UserService) Profile(ctx context.Context, userID int64) (*Profile, error) {
	user, err := loadActiveUser(ctx, s.users, userID)
	if err != nil {
		return nil, err
	}

	stats, err := s.stats.StatsForUser(ctx, userID)
	if err != nil {
		return nil, domain.Persistence("user stats", err)
	}

	return &Profile{User: user, Stats: stats}, nil
}

type UpdateProfileInput struct {
	FullName string
	Email    *string
	Summary  *string
}

func (s *UserService) UpdateProfile(ctx context.Context, userID int64, in UpdateProfileInput) (*domain.User, error) {
	user, err := loadActiveUser(ctx, s.users, userID)
	if err != nil {
		return nil, err
	}

	fullName := strings.TrimSpace(in.FullName)
	if fullName == "" {
		return nil, domain.Validation("full_name", "full name is required")
	}

	if err := s.users.UpdateProfile(ctx, user.ID, fullName, in.Email, in.Summary); err != nil {
		return nil, domain.Persistence("update profile", err)
	}

	user.FullName = fullName
	user.Email = in.Email
	user.ProfileSummary = in.Summary
	return user, nil
}

// ListUsers is the admin view, including lifetime loaned/owed totals.
func (s *UserService) ListUsers(ctx context.Context, actorID int64, f repository.UsersFilter) ([]domain.User, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}

	users, err := s.users.List(ctx, f)
	if err != nil {
		return nil, domain.Persistence("list users", err)
	}
	return users, nil
}

// UserDetail is the admin view of one account with its debt figures.
func (s *UserService) UserDetail(ctx context.Context, actorID, userID int64) (*Profile, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}

	user, err := s.users.ByID(ctx, userID)
	if err != nil {
		return nil, domain.Persistence("load user", err)
	}
	if user == nil {
		return nil, domain.NotFound("user")
	}

	stats, err := s.stats.StatsForUser(ctx, userID)
	if err != nil {
		return nil, domain.Persistence("user stats", err)
	}

	return &Profile{User: user, Stats: stats}, nil
}

func (s *UserService) requireAdmin(ctx context.Context, actorID int64) error {
	actor, err := loadActiveUser(ctx, s.users, actorID)
	if err != nil {
		return err
	}
	if actor.Role != domain.RoleAdmin {
		return domain.Forbidden("admin access required")
	}
	return nil
}
