package service

import (
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/indeavr/znainik/internal/config"
	"github.com/indeavr/znainik/internal/crypto"
)

var (
	ErrInvalidPassword = errors.New("invalid password")
	ErrAuthNotReady    = errors.New("admin password is not configured")
	ErrInvalidToken    = errors.New("invalid or expired token")
)

// Authorizer decides whether a bearer token may use the admin endpoints.
type Authorizer interface {
	Authorize(token string) bool
}

var _ Authorizer = (*AuthService)(nil)

// AuthService handles admin authentication and JWT issuance.
type AuthService struct {
	enabled  bool
	password string
	secret   []byte
	ttl      time.Duration
	now      func() time.Time
}

// Claims represents JWT payload.
type Claims struct {
	Authorized bool `json:"authorized"`
	jwt.RegisteredClaims
}

// NewAuthService builds AuthService from config. An empty or placeholder
// jwt_secret is replaced by a random per-process secret, so issued tokens
// do not survive a restart.
func NewAuthService(cfg *config.Config) *AuthService {
	authCfg := cfg.Auth
	secret := strings.TrimSpace(authCfg.JWTSecret)
	if secret == "" || secret == config.DefaultJWTSecret {
		// on failure secret stays empty and every token is rejected
		secret, _ = crypto.GenerateString(48)
	}
	ttl := authCfg.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &AuthService{
		enabled:  authCfg.Enabled,
		password: strings.TrimSpace(authCfg.Password),
		secret:   []byte(secret),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Enabled reports whether authentication is enforced.
func (a *AuthService) Enabled() bool {
	return a != nil && a.enabled
}

// Authenticate checks the admin password and returns a signed token.
func (a *AuthService) Authenticate(password string) (string, error) {
	if !a.Enabled() {
		return "", nil
	}
	if a.password == "" {
		return "", ErrAuthNotReady
	}
	if !a.matchPassword(password) {
		return "", ErrInvalidPassword
	}
	now := a.now()
	claims := Claims{
		Authorized: true,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// Validate parses a token and returns its claims if valid.
func (a *AuthService) Validate(token string) (*Claims, error) {
	if !a.Enabled() {
		return &Claims{Authorized: true}, nil
	}
	if a.password == "" {
		return nil, ErrAuthNotReady
	}
	if len(a.secret) == 0 {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil {
		return nil, err
	}
	if claims, ok := parsed.Claims.(*Claims); ok && parsed.Valid && claims.Authorized {
		return claims, nil
	}
	return nil, ErrInvalidToken
}

// Authorize reports whether token is a valid admin token.
func (a *AuthService) Authorize(token string) bool {
	if !a.Enabled() {
		return true
	}
	if a.password == "" || strings.TrimSpace(token) == "" {
		return false
	}
	_, err := a.Validate(token)
	return err == nil
}

func (a *AuthService) matchPassword(input string) bool {
	if strings.HasPrefix(a.password, "$2a$") || strings.HasPrefix(a.password, "$2b$") || strings.HasPrefix(a.password, "$2y$") {
		return bcrypt.CompareHashAndPassword([]byte(a.password), []byte(input)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(input), []byte(a.password)) == 1
}
