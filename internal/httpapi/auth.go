package httpapi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"storekeep/backend/internal/domain"
	"storekeep/backend/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInactiveAccount    = errors.New("account is inactive")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

// passwordCost is lowered by tests.
var passwordCost = bcrypt.DefaultCost

type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
	users    store.UserStore
}

type storekeepClaims struct {
	jwtlib.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, users store.UserStore) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	return &AuthManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		users:    users,
	}
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	user, err := a.users.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.LoginResponse{}, ErrInvalidCredentials
		}
		return domain.LoginResponse{}, err
	}
	if !verifyPassword(user.PasswordHash, req.Password) {
		return domain.LoginResponse{}, ErrInvalidCredentials
	}
	if !user.Active {
		return domain.LoginResponse{}, ErrInactiveAccount
	}

	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	token, err := a.sign(*user, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	return domain.LoginResponse{
		AccessToken: token,
		Role:        user.Role,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

// ParseToken verifies tokenStr and returns the identity it carries. Tokens
// naming a role outside the known set are rejected.
func (a *AuthManager) ParseToken(tokenStr string) (domain.Identity, error) {
	claims := &storekeepClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return domain.Identity{}, ErrInvalidToken
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Identity{}, ErrInvalidToken
	}
	role, ok := domain.ParseRole(claims.Role)
	if !ok {
		return domain.Identity{}, ErrInvalidToken
	}
	return domain.Identity{UserID: sub, Email: claims.Email, Role: role}, nil
}

func (a *AuthManager) sign(user domain.UserAccount, expiresAt time.Time) (string, error) {
	claims := storekeepClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "storekeep",
		},
		Email: user.Email,
		Role:  string(user.Role),
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *AuthManager) Me(ctx context.Context, identity domain.Identity) (domain.UserAccount, error) {
	user, err := a.users.GetUserByID(ctx, identity.UserID)
	if err != nil {
		return domain.UserAccount{}, err
	}
	return *user, nil
}

func (a *AuthManager) ChangePassword(ctx context.Context, identity domain.Identity, req domain.PasswordChangeRequest) error {
	user, err := a.users.GetUserByID(ctx, identity.UserID)
	if err != nil {
		return err
	}
	if !verifyPassword(user.PasswordHash, req.CurrentPassword) {
		return ErrInvalidCredentials
	}
	hash, err := hashPassword(req.NewPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	user.PasswordHash = hash
	_, err = a.users.UpdateUser(ctx, *user)
	return err
}

func (a *AuthManager) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	return a.users.ListUsers(ctx)
}

func (a *AuthManager) CreateUser(ctx context.Context, req domain.UserCreateRequest) (domain.UserAccount, error) {
	role, ok := domain.ParseRole(req.Role)
	if !ok {
		return domain.UserAccount{}, fmt.Errorf("%w: unknown role %q", store.ErrInvalidInput, req.Role)
	}
	if len(req.Password) < 8 {
		return domain.UserAccount{}, fmt.Errorf("%w: password must be at least 8 characters", store.ErrInvalidInput)
	}
	hash, err := hashPassword(req.Password)
	if err != nil {
		return domain.UserAccount{}, fmt.Errorf("hash password: %w", err)
	}

	created, err := a.users.CreateUser(ctx, domain.UserAccount{
		Name:         strings.TrimSpace(req.Name),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: hash,
		Role:         role,
		Active:       true,
	})
	if err != nil {
		return domain.UserAccount{}, err
	}
	return *created, nil
}

func (a *AuthManager) UpdateUser(ctx context.Context, req domain.UserUpdateRequest) (domain.UserAccount, error) {
	user, err := a.users.GetUserByID(ctx, strings.TrimSpace(req.ID))
	if err != nil {
		return domain.UserAccount{}, err
	}
	if req.Name != nil {
		user.Name = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		user.Email = strings.ToLower(strings.TrimSpace(*req.Email))
	}
	if req.Role != nil {
		role, ok := domain.ParseRole(*req.Role)
		if !ok {
			return domain.UserAccount{}, fmt.Errorf("%w: unknown role %q", store.ErrInvalidInput, *req.Role)
		}
		user.Role = role
	}
	if req.Active != nil {
		user.Active = *req.Active
	}
	if req.Password != nil {
		hash, err := hashPassword(*req.Password)
		if err != nil {
			return domain.UserAccount{}, fmt.Errorf("hash password: %w", err)
		}
		user.PasswordHash = hash
	}

	updated, err := a.users.UpdateUser(ctx, *user)
	if err != nil {
		return domain.UserAccount{}, err
	}
	return *updated, nil
}

// DeleteUser removes an account. Callers cannot delete themselves.
func (a *AuthManager) DeleteUser(ctx context.Context, actor domain.Identity, id string) error {
	id = strings.TrimSpace(id)
	if id == actor.UserID {
		return fmt.Errorf("%w: cannot delete the signed-in account", store.ErrInvalidInput)
	}
	return a.users.DeleteUser(ctx, id)
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), passwordCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
