package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ukydev/fleet-dashboard/internal/models"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Claims is the subset of token claims the dashboard cares about.
type Claims struct {
	Username    string
	Role        models.Role
	IsSuperUser bool
	// ExpiresAt is zero when the token carries no exp claim.
	ExpiresAt time.Time
}

// Expired reports whether the token has an expiry that is not after now.
func (c Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// Issuer signs and verifies HS256 tokens.
type Issuer struct {
	secret   []byte
	tokenExp time.Duration
	now      func() time.Time
}

// NewIssuer creates an issuer. A zero expiry defaults to 24 hours.
func NewIssuer(secret string, exp time.Duration) *Issuer {
	if exp <= 0 {
		exp = 24 * time.Hour
	}
	return &Issuer{secret: []byte(secret), tokenExp: exp, now: time.Now}
}

// GenerateToken generates a JWT token for a user
func (s *Issuer) GenerateToken(user models.User) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"username":      user.Username,
		"role":          string(user.Role),
		"is_super_user": user.IsSuperUser,
		"exp":           now.Add(s.tokenExp).Unix(),
		"iat":           now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ValidateToken validates a JWT token and returns the claims
func (s *Issuer) ValidateToken(tokenString string) (*Claims, error) {
	tokenString = strings.TrimPrefix(tokenString, "Bearer ")

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	return claimsFrom(claims)
}

// Inspect decodes a token's claims without verifying its signature. The dashboard
// never holds the signing key; the remote service is the one that verifies.
func Inspect(tokenString string) (*Claims, error) {
	tokenString = strings.TrimPrefix(tokenString, "Bearer ")
	token, _, err := jwt.NewParser().ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	return claimsFrom(claims)
}

func claimsFrom(claims jwt.MapClaims) (*Claims, error) {
	username, ok := claims["username"].(string)
	if !ok {
		return nil, ErrInvalidToken
	}
	out := &Claims{Username: username}
	if role, ok := claims["role"].(string); ok {
		out.Role = models.Role(role)
	}
	if super, ok := claims["is_super_user"].(bool); ok {
		out.IsSuperUser = super
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return nil, ErrInvalidToken
	}
	if exp != nil {
		out.ExpiresAt = exp.Time
	}
	return out, nil
}

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(bytes), nil
}

// CheckPassword checks if a password matches a hash
func CheckPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// ValidatePassword validates password strength
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return errors.New("password must be at least 8 characters long")
	}
	return nil
}

// ValidateUsername validates username format
func ValidateUsername(username string) error {
	username = strings.TrimSpace(username)
	if len(username) < 3 {
		return errors.New("username must be at least 3 characters long")
	}
	if len(username) > 50 {
		return errors.New("username must be less than 50 characters")
	}
	if strings.ContainsAny(username, " /?#") {
		return errors.New("username must not contain spaces or URL delimiters")
	}
	return nil
}
