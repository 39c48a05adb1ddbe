// Package auth issues and verifies session tokens and carries the
// authenticated caller through request contexts.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront-svc/models"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Caller is the authenticated identity performing an operation.
type Caller struct {
	ID    int64       `json:"id"`
	Email string      `json:"email"`
	Role  models.Role `json:"role"`
}

func (c Caller) IsStaff() bool {
	return c.Role.IsStaff()
}

// System is the caller used for transitions driven by background consumers.
var System = Caller{ID: 0, Email: "system", Role: models.RoleAdmin}

type callerKey struct{}

func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

func CallerFrom(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok
}

type Claims struct {
	UserID int64       `json:"user_id"`
	Email  string      `json:"email"`
	Role   models.Role `json:"role"`
	jwt.RegisteredClaims
}

type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl}
}

func (i *TokenIssuer) Issue(u *models.User) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: u.ID,
		Email:  u.Email,
		Role:   u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	})
	return token.SignedString(i.secret)
}

// Parse verifies the token signature and expiry and returns its caller.
func (i *TokenIssuer) Parse(tokenString string) (Caller, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Caller{}, fmt.Errorf("%w: %v", models.ErrUnauthorized, err)
	}
	if !token.Valid || !claims.Role.Valid() {
		return Caller{}, models.ErrUnauthorized
	}
	return Caller{ID: claims.UserID, Email: claims.Email, Role: claims.Role}, nil
}

func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// RequireStaff fails with ErrForbidden unless the caller is an admin or moderator.
func RequireStaff(c Caller) error {
	if !c.IsStaff() {
		return errors.Join(models.ErrForbidden, fmt.Errorf("role %q may not manage orders", c.Role))
	}
	return nil
}
