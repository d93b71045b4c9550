package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/screenlens/demo-gateway/internal/models"
)

type fakeAdminUsers struct {
	byEmail map[string]*models.AdminUser
}

func newFakeAdminUsers() *fakeAdminUsers {
	return &fakeAdminUsers{byEmail: make(map[string]*models.AdminUser)}
}

func (f *fakeAdminUsers) Create(ctx context.Context, user *models.AdminUser) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	f.byEmail[user.Email] = user
	return nil
}

func (f *fakeAdminUsers) FindByEmail(ctx context.Context, email string) (*models.AdminUser, error) {
	return f.byEmail[email], nil
}

func (f *fakeAdminUsers) FindByID(ctx context.Context, id string) (*models.AdminUser, error) {
	for _, user := range f.byEmail {
		if user.ID.String() == id {
			return user, nil
		}
	}
	return nil, nil
}

func TestRegisterAndLogin(t *testing.T) {
	svc := NewAuthService(newFakeAdminUsers(), "test-secret", time.Hour)

	require.NoError(t, svc.Register(context.Background(), "ops@example.com", "hunter22", "Ops"))

	token, err := svc.Login(context.Background(), "ops@example.com", "hunter22")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", claims["email"])
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc := NewAuthService(newFakeAdminUsers(), "test-secret", time.Hour)

	require.NoError(t, svc.Register(context.Background(), "ops@example.com", "hunter22", "Ops"))
	assert.Error(t, svc.Register(context.Background(), "ops@example.com", "other", "Ops"))
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc := NewAuthService(newFakeAdminUsers(), "test-secret", time.Hour)
	require.NoError(t, svc.Register(context.Background(), "ops@example.com", "hunter22", "Ops"))

	_, err := svc.Login(context.Background(), "ops@example.com", "wrong")
	assert.EqualError(t, err, "invalid credentials")

	_, err = svc.Login(context.Background(), "nobody@example.com", "hunter22")
	assert.EqualError(t, err, "invalid credentials")
}

func TestValidateTokenRejectsForeignSecret(t *testing.T) {
	users := newFakeAdminUsers()
	issuer := NewAuthService(users, "secret-a", time.Hour)
	verifier := NewAuthService(users, "secret-b", time.Hour)

	require.NoError(t, issuer.Register(context.Background(), "ops@example.com", "hunter22", "Ops"))
	token, err := issuer.Login(context.Background(), "ops@example.com", "hunter22")
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	svc := NewAuthService(newFakeAdminUsers(), "test-secret", -time.Hour)
	require.NoError(t, svc.Register(context.Background(), "ops@example.com", "hunter22", "Ops"))

	token, err := svc.Login(context.Background(), "ops@example.com", "hunter22")
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.Error(t, err)
}
