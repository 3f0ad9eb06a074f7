package httpapi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"viandas/backend/internal/domain"
	"viandas/backend/internal/store"
)

type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
	users    UserStore
}

type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error)
}

type saleClaims struct {
	jwtlib.RegisteredClaims
	Role   string `json:"role"`
	UserID int64  `json:"uid"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, users UserStore) *AuthManager {
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
	email := strings.ToLower(strings.TrimSpace(req.Email))
	user, err := a.users.GetUserByEmail(ctx, email)
	if err != nil {
		// Same message for unknown email and wrong password.
		return domain.LoginResponse{}, errors.New("invalid credentials")
	}

	if bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(req.Password)) != nil {
		return domain.LoginResponse{}, errors.New("invalid credentials")
	}
	if !user.IsActive {
		return domain.LoginResponse{}, errors.New("account is inactive")
	}

	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	token, err := a.sign(user, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	return domain.LoginResponse{
		AccessToken: token,
		TokenType:   "bearer",
		Role:        user.Role,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) Register(ctx context.Context, req domain.RegisterRequest) (domain.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return domain.User{}, fmt.Errorf("email inválido")
	}
	if strings.TrimSpace(req.Name) == "" {
		return domain.User{}, fmt.Errorf("el nombre es obligatorio")
	}
	if len(strings.TrimSpace(req.Password)) < 6 {
		return domain.User{}, fmt.Errorf("la contraseña debe tener al menos 6 caracteres")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, fmt.Errorf("failed to hash password")
	}

	created, err := a.users.CreateUser(ctx, domain.UserAccount{
		Name:           strings.TrimSpace(req.Name),
		Apellido:       strings.TrimSpace(req.Apellido),
		Email:          email,
		Celular:        strings.TrimSpace(req.Celular),
		HashedPassword: string(hash),
		IsActive:       true,
		Role:           domain.RoleUser,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return domain.User{}, fmt.Errorf("el email ya está registrado")
		}
		return domain.User{}, err
	}

	return created.Public(), nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &saleClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" || claims.UserID == 0 {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	return domain.Actor{UserID: claims.UserID, Email: sub, Role: claims.Role}, nil
}

func (a *AuthManager) sign(user *domain.UserAccount, expiresAt time.Time) (string, error) {
	claims := saleClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   user.Email,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "viandas",
		},
		Role:   user.Role,
		UserID: user.ID,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}
