package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"studyroom-backend/internal/middleware"
	"studyroom-backend/internal/models"
	"studyroom-backend/internal/repository"
)

type stubUsers struct {
	byEmail map[string]*models.User
}

func (s *stubUsers) Create(_ context.Context, u *models.User) error {
	u.ID = uuid.New()
	u.CreatedAt = time.Now()
	s.byEmail[u.Email] = u
	return nil
}

func (s *stubUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	u, ok := s.byEmail[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return u, nil
}

func (s *stubUsers) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	for _, u := range s.byEmail {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func newTestAuthService() (*AuthService, *middleware.JWTAuth) {
	jwt := middleware.NewJWTAuth("test-secret", 15*time.Minute)
	svc := NewAuthService(&stubUsers{byEmail: map[string]*models.User{}}, jwt)
	svc.bcryptCost = bcrypt.MinCost
	return svc, jwt
}

func TestAuthService_RegisterAndLogin(t *testing.T) {
	svc, jwt := newTestAuthService()
	ctx := context.Background()

	tokens, err := svc.Register(ctx, models.RegisterRequest{
		Name: "Ada", Email: "  Ada@Example.com ", Password: "secret123", Role: "Teacher",
	})
	require.NoError(t, err)
	assert.Equal(t, "bearer", tokens.TokenType)
	assert.Equal(t, 900, tokens.ExpiresIn)
	assert.Equal(t, "ada@example.com", tokens.User.Email)
	assert.Equal(t, models.RoleTeacher, tokens.User.Role)

	identity, err := jwt.VerifyIdentity(tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, tokens.User.ID, identity.UserID)
	assert.Equal(t, models.RoleTeacher, identity.Role)

	_, err = svc.Login(ctx, models.LoginRequest{Email: "ada@example.com", Password: "secret123"})
	assert.NoError(t, err)

	var unauthorized *UnauthorizedError
	_, err = svc.Login(ctx, models.LoginRequest{Email: "ada@example.com", Password: "wrong1234"})
	assert.ErrorAs(t, err, &unauthorized)
	_, err = svc.Login(ctx, models.LoginRequest{Email: "nobody@example.com", Password: "secret123"})
	assert.ErrorAs(t, err, &unauthorized)

	var conflict *ConflictError
	_, err = svc.Register(ctx, models.RegisterRequest{Name: "Ada", Email: "ada@example.com", Password: "secret123", Role: "student"})
	assert.ErrorAs(t, err, &conflict)
}

func TestAuthService_RegisterValidation(t *testing.T) {
	svc, _ := newTestAuthService()

	_, err := svc.Register(context.Background(), models.RegisterRequest{
		Name: " ", Email: "not-an-email", Password: "short", Role: "admin",
	})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "name")
	assert.Contains(t, verr.Fields, "email")
	assert.Contains(t, verr.Fields, "password")
	assert.Contains(t, verr.Fields, "role")
}

func TestAuthService_GetUser(t *testing.T) {
	svc, _ := newTestAuthService()
	ctx := context.Background()

	tokens, err := svc.Register(ctx, models.RegisterRequest{Name: "Bo", Email: "bo@example.com", Password: "secret123", Role: "student"})
	require.NoError(t, err)

	u, err := svc.GetUser(ctx, tokens.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bo", u.Name)

	var notFound *NotFoundError
	_, err = svc.GetUser(ctx, uuid.New())
	assert.ErrorAs(t, err, &notFound)
}

func TestValidatePassword(t *testing.T) {
	assert.Error(t, validatePassword("abc1"))
	assert.Error(t, validatePassword("abcdefghij"))
	assert.NoError(t, validatePassword("abcdefgh1"))
}
