package service

import (
	"context"
	"strings"
	"testing"

	"debtster/internal/domain"
	"debtster/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeUserStore struct {
	fakeUsers
	created []*domain.User
	listed  repository.UsersFilter
}

func (f *fakeUserStore) Create(_ context.Context, u *domain.User) error {
	u.ID = int64(len(f.rows) + 1)
	cp := *u
	f.rows[u.ID] = &cp
	f.created = append(f.created, &cp)
	return nil
}

func (f *fakeUserStore) UpdateProfile(_ context.Context, id int64, fullName string, email, summary *string) error {
	u := f.rows[id]
	u.FullName = fullName
	u.Email = email
	u.ProfileSummary = summary
	return nil
}

func (f *fakeUserStore) List(_ context.Context, filter repository.UsersFilter) ([]domain.User, error) {
	f.listed = filter
	out := make([]domain.User, 0, len(f.rows))
	for _, u := range f.rows {
		out = append(out, *u)
	}
	return out, nil
}

type fakeTokens struct {
	issued  []string
	revoked []int64
}

func (f *fakeTokens) Issue(_ context.Context, userID int64, name string) (string, *domain.PersonalAccessToken, error) {
	plain := "token-for-" + name
	f.issued = append(f.issued, plain)
	return plain, &domain.PersonalAccessToken{ID: int64(len(f.issued)), UserID: userID, Name: name}, nil
}

func (f *fakeTokens) Revoke(_ context.Context, id int64) error {
	f.revoked = append(f.revoked, id)
	return nil
}

type fakeStats struct {
	stats repository.UserStats
}

func (f *fakeStats) StatsForUser(_ context.Context, _ int64) (*repository.UserStats, error) {
	cp := f.stats
	return &cp, nil
}

func hashOf(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func newUserEnv(t *testing.T) (*UserService, *fakeUserStore, *fakeTokens) {
	t.Helper()
	store := &fakeUserStore{fakeUsers: fakeUsers{rows: map[int64]*domain.User{
		1: {ID: 1, Username: "maria", PasswordHash: hashOf(t, "secret-pass"), Role: domain.RoleCreditor, IsActive: true},
		2: {ID: 2, Username: "juan", PasswordHash: hashOf(t, "secret-pass"), Role: domain.RoleDebtor, IsActive: true},
		3: {ID: 3, Username: "root", PasswordHash: hashOf(t, "secret-pass"), Role: domain.RoleAdmin, IsActive: true},
		4: {ID: 4, Username: "ghost", PasswordHash: hashOf(t, "secret-pass"), Role: domain.RoleDebtor, IsActive: false},
	}}}
	tokens := &fakeTokens{}
	return NewUserService(store, tokens, &fakeStats{}, "api"), store, tokens
}

func TestRegister(t *testing.T) {
	svc, store, _ := newUserEnv(t)

	email := "new@example.com"
	user, err := svc.Register(context.Background(), RegisterInput{
		Username: "  newcomer  ",
		Password: "long-enough",
		FullName: "New Comer",
		Email:    &email,
		Role:     domain.RoleDebtor,
	})
	require.NoError(t, err)

	assert.Equal(t, "newcomer", user.Username)
	assert.True(t, user.IsActive)
	assert.NotEqual(t, "long-enough", user.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("long-enough")))
	require.Len(t, store.created, 1)
}

func TestRegister_Validation(t *testing.T) {
	svc, _, _ := newUserEnv(t)
	ctx := context.Background()

	cases := []struct {
		name string
		in   RegisterInput
	}{
		{"blank username", RegisterInput{Password: "long-enough", Role: domain.RoleDebtor}},
		{"username too long", RegisterInput{Username: strings.Repeat("x", 151), Password: "long-enough", Role: domain.RoleDebtor}},
		{"short password", RegisterInput{Username: "ok", Password: "short", Role: domain.RoleDebtor}},
		{"admin role not self-served", RegisterInput{Username: "ok", Password: "long-enough", Role: domain.RoleAdmin}},
		{"taken username", RegisterInput{Username: "maria", Password: "long-enough", Role: domain.RoleDebtor}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tc.in)
			assert.True(t, domain.IsKind(err, domain.KindValidation), "got %v", err)
		})
	}
}

func TestLogin(t *testing.T) {
	svc, _, tokens := newUserEnv(t)

	user, plain, err := svc.Login(context.Background(), "maria", "secret-pass")
	require.NoError(t, err)
	assert.Equal(t, int64(1), user.ID)
	assert.NotEmpty(t, plain)
	assert.Equal(t, []string{plain}, tokens.issued)
}

func TestLogin_Rejections(t *testing.T) {
	svc, _, tokens := newUserEnv(t)
	ctx := context.Background()

	cases := []struct {
		name     string
		username string
		password string
	}{
		{"wrong password", "maria", "not-the-pass"},
		{"unknown user", "nobody", "secret-pass"},
		{"deactivated account", "ghost", "secret-pass"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := svc.Login(ctx, tc.username, tc.password)
			// the same message for every failure mode, no account probing
			assert.True(t, domain.IsKind(err, domain.KindValidation), "got %v", err)
			assert.Contains(t, err.Error(), "invalid username or password")
		})
	}
	assert.Empty(t, tokens.issued)
}

func TestLogout(t *testing.T) {
	svc, _, tokens := newUserEnv(t)

	require.NoError(t, svc.Logout(context.Background(), 42))
	assert.Equal(t, []int64{42}, tokens.revoked)
}

func TestProfile(t *testing.T) {
	store := &fakeUserStore{fakeUsers: fakeUsers{rows: map[int64]*domain.User{
		1: {ID: 1, Username: "maria", Role: domain.RoleCreditor, IsActive: true},
	}}}
	stats := &fakeStats{stats: repository.UserStats{
		TotalDebts:  3,
		PaidDebts:   1,
		OpenDebts:   2,
		Outstanding: decimal.RequireFromString("1500.50"),
	}}
	svc := NewUserService(store, &fakeTokens{}, stats, "api")

	profile, err := svc.Profile(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "maria", profile.User.Username)
	assert.Equal(t, int64(2), profile.Stats.OpenDebts)
	assert.True(t, profile.Stats.Outstanding.Equal(decimal.RequireFromString("1500.50")))

	_, err = svc.Profile(context.Background(), 99)
	assert.True(t, domain.IsKind(err, domain.KindNotFound), "got %v", err)
}

func TestUpdateProfile(t *testing.T) {
	svc, store, _ := newUserEnv(t)

	summary := "pays on time"
	user, err := svc.UpdateProfile(context.Background(), 2, UpdateProfileInput{
		FullName: "  Juan dela Cruz  ",
		Summary:  &summary,
	})
	require.NoError(t, err)
	assert.Equal(t, "Juan dela Cruz", user.FullName)
	assert.Equal(t, "Juan dela Cruz", store.rows[2].FullName)
	require.NotNil(t, user.ProfileSummary)

	_, err = svc.UpdateProfile(context.Background(), 2, UpdateProfileInput{FullName: "   "})
	assert.True(t, domain.IsKind(err, domain.KindValidation), "got %v", err)
}

func TestListUsers_AdminOnly(t *testing.T) {
	svc, store, _ := newUserEnv(t)
	ctx := context.Background()

	role := domain.RoleDebtor
	users, err := svc.ListUsers(ctx, 3, repository.UsersFilter{Role: &role})
	require.NoError(t, err)
	assert.NotEmpty(t, users)
	require.NotNil(t, store.listed.Role)
	assert.Equal(t, domain.RoleDebtor, *store.listed.Role)

	_, err = svc.ListUsers(ctx, 1, repository.UsersFilter{})
	assert.True(t, domain.IsKind(err, domain.KindForbidden), "got %v", err)
}

func TestUserDetail(t *testing.T) {
	svc, _, _ := newUserEnv(t)
	ctx := context.Background()

	profile, err := svc.UserDetail(ctx, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, "juan", profile.User.Username)

	_, err = svc.UserDetail(ctx, 3, 99)
	assert.True(t, domain.IsKind(err, domain.KindNotFound), "got %v", err)

	_, err = svc.UserDetail(ctx, 2, 1)
	assert.True(t, domain.IsKind(err, domain.KindForbidden), "got %v", err)
}
