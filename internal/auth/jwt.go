package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Claims is the session payload. It caches the active tenant and its
// permissions for clients but is never authoritative on its own.
type Claims struct {
	UserID         uuid.UUID  `json:"user_id"`
	Username       string     `json:"username"`
	Email          string     `json:"email,omitempty"`
	OrganizationID *uuid.UUID `json:"organization_id,omitempty"`
	RoleID         *uuid.UUID `json:"role_id,omitempty"`
	Permissions    []string   `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}

// TokenSubject is what a session token is issued for.
type TokenSubject struct {
	UserID         uuid.UUID
	Username       string
	Email          string
	OrganizationID *uuid.UUID
	RoleID         *uuid.UUID
	Permissions    []string
}

type JWTService struct {
	secret []byte
	expiry time.Duration
	issuer string
	method jwt.SigningMethod
	leeway time.Duration
	now    func() time.Time
}

type JWTOption func(*JWTService)

func WithIssuer(issuer string) JWTOption {
	return func(s *JWTService) { s.issuer = issuer }
}

// WithSigningMethod selects the HMAC algorithm by name (HS256, HS384, HS512).
// Unknown names keep the default.
func WithSigningMethod(alg string) JWTOption {
	return func(s *JWTService) {
		if m, ok := jwt.GetSigningMethod(alg).(*jwt.SigningMethodHMAC); ok {
			s.method = m
		}
	}
}

// WithLeeway tolerates clock skew when checking exp and nbf.
func WithLeeway(d time.Duration) JWTOption {
	return func(s *JWTService) { s.leeway = d }
}

func WithClock(now func() time.Time) JWTOption {
	return func(s *JWTService) { s.now = now }
}

func NewJWTService(secret string, expiry time.Duration, opts ...JWTOption) *JWTService {
	s := &JWTService{
		secret: []byte(secret),
		expiry: expiry,
		issuer: "orgauth",
		method: jwt.SigningMethodHS256,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GenerateToken signs a token for the subject and returns it with its expiry.
func (s *JWTService) GenerateToken(sub TokenSubject) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.expiry)
	claims := Claims{
		UserID:         sub.UserID,
		Username:       sub.Username,
		Email:          sub.Email,
		OrganizationID: sub.OrganizationID,
		RoleID:         sub.RoleID,
		Permissions:    sub.Permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Subject:   sub.UserID.String(),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(s.method, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ValidateToken verifies signature, algorithm, issuer and expiry. It has no
// side effects.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(s.leeway),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, opts...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// Expiry is the lifetime of issued tokens.
func (s *JWTService) Expiry() time.Duration {
	return s.expiry
}
