// Package identity resolves the caller's identity from a request and
// answers admin checks. Identity is a verified bearer token carrying an
// email claim; a plain header fallback exists for deployments that sit
// behind an authenticating proxy, and it is off unless configured.
package identity

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/beisanytime/shiurhub"
)

const emailHeader = "X-User-Email"
const adminKeyHeader = "X-Admin-Key"

// Config controls identity resolution.
type Config struct {
	// TokenSecret signs and verifies bearer tokens. Empty disables token
	// auth entirely.
	TokenSecret string `mapstructure:"token_secret"`
	// AllowHeaderFallback accepts X-User-Email verbatim when no bearer
	// token is present. Only safe behind a proxy that sets the header.
	AllowHeaderFallback bool `mapstructure:"allow_header_fallback"`
	// AdminEmail grants admin to a single identity.
	AdminEmail string `mapstructure:"admin_email"`
	// AdminKey grants admin to requests carrying it in X-Admin-Key.
	AdminKey string `mapstructure:"admin_key"`
}

type claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Verifier resolves identities per a fixed Config.
type Verifier struct {
	cfg Config
	now func() time.Time
}

func NewVerifier(cfg Config) *Verifier {
	return &Verifier{cfg: cfg, now: time.Now}
}

// FromRequest returns the caller's email, or "" for anonymous requests.
// A bearer token that fails verification is an error; absence of
// credentials is not.
func (v *Verifier) FromRequest(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		if v.cfg.TokenSecret == "" {
			return "", fmt.Errorf("identity: bearer token with no secret configured: %w", shiurhub.ErrUnauthorized)
		}
		email, err := v.verifyToken(token)
		if err != nil {
			return "", err
		}
		return email, nil
	}

	if v.cfg.AllowHeaderFallback {
		return r.Header.Get(emailHeader), nil
	}
	return "", nil
}

func (v *Verifier) verifyToken(token string) (string, error) {
	var c claims
	_, err := jwt.ParseWithClaims(token, &c,
		func(t *jwt.Token) (any, error) { return []byte(v.cfg.TokenSecret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return "", fmt.Errorf("identity: verify token: %w: %w", err, shiurhub.ErrUnauthorized)
	}
	if c.Email == "" {
		return "", fmt.Errorf("identity: token has no email claim: %w", shiurhub.ErrUnauthorized)
	}
	return c.Email, nil
}

// IsAdmin reports whether the request is from an administrator: either
// the resolved email matches AdminEmail, or the request carries the
// configured admin key.
func (v *Verifier) IsAdmin(r *http.Request, email string) bool {
	if v.cfg.AdminEmail != "" && email != "" && strings.EqualFold(email, v.cfg.AdminEmail) {
		return true
	}
	if v.cfg.AdminKey != "" && r.Header.Get(adminKeyHeader) == v.cfg.AdminKey {
		return true
	}
	return false
}

// GenerateToken mints a bearer token for email, valid for ttl.
func (v *Verifier) GenerateToken(email string, ttl time.Duration) (string, error) {
	if v.cfg.TokenSecret == "" {
		return "", fmt.Errorf("identity: no token secret configured: %w", shiurhub.ErrConfiguration)
	}
	if email == "" {
		return "", fmt.Errorf("identity: empty email: %w", shiurhub.ErrInvalidInput)
	}

	now := v.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	signed, err := token.SignedString([]byte(v.cfg.TokenSecret))
	if err != nil {
		return "", fmt.Errorf("identity: sign token: %w", err)
	}
	return signed, nil
}
