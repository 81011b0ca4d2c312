// Package auth extracts the sync identity (user and family) from a backend
// session token. The backend issues HS256 JWTs; when the signing secret is
// configured the signature is verified, otherwise the claims are decoded
// unverified with only the expiry enforced. The daemon trusts its own
// configuration either way, the token is an identity carrier, not a
// capability check.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingSessionToken = errors.New("auth: session token required")
	ErrInvalidSessionToken = errors.New("auth: invalid session token")
	ErrExpiredSessionToken = errors.New("auth: session token expired")
	ErrMissingIdentity     = errors.New("auth: token carries no user identity")
)

// SessionClaims mirrors the JWT payload emitted by the backend.
type SessionClaims struct {
	UserID    string `json:"userId"`
	FamilyID  string `json:"familyId"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// Identity is the scope a sync session runs under.
type Identity struct {
	UserID   string
	FamilyID string
}

// SessionParserConfig describes how session tokens are decoded.
type SessionParserConfig struct {
	// SigningSecret enables HS256 signature verification when non-empty.
	SigningSecret []byte
	Clock         func() time.Time
}

// SessionParser decodes backend session tokens into sync identities.
type SessionParser struct {
	signingSecret []byte
	clock         func() time.Time
}

// NewSessionParser constructs a parser with the provided configuration.
func NewSessionParser(cfg SessionParserConfig) *SessionParser {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &SessionParser{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		clock:         clock,
	}
}

// Parse decodes the token and returns its claims.
func (p *SessionParser) Parse(tokenString string) (SessionClaims, error) {
	token := strings.TrimSpace(tokenString)
	if token == "" {
		return SessionClaims{}, ErrMissingSessionToken
	}
	if len(p.signingSecret) > 0 {
		return p.parseVerified(token)
	}
	return p.parseUnverified(token)
}

// Identity decodes the token and returns the user and family scope.
func (p *SessionParser) Identity(tokenString string) (Identity, error) {
	claims, err := p.Parse(tokenString)
	if err != nil {
		return Identity{}, err
	}
	return Identity{UserID: claims.UserID, FamilyID: claims.FamilyID}, nil
}

func (p *SessionParser) parseVerified(token string) (SessionClaims, error) {
	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("%w: unexpected signing algorithm %s", ErrInvalidSessionToken, t.Method.Alg())
			}
			return p.signingSecret, nil
		},
		jwt.WithTimeFunc(p.clock),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return SessionClaims{}, ErrExpiredSessionToken
		}
		return SessionClaims{}, fmt.Errorf("%w: %v", ErrInvalidSessionToken, err)
	}
	if parsed == nil || !parsed.Valid {
		return SessionClaims{}, ErrInvalidSessionToken
	}
	return p.checkIdentity(*claims)
}

func (p *SessionParser) parseUnverified(token string) (SessionClaims, error) {
	claims := &SessionClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return SessionClaims{}, fmt.Errorf("%w: %v", ErrInvalidSessionToken, err)
	}
	if claims.ExpiresAt != nil && !p.clock().Before(claims.ExpiresAt.Time) {
		return SessionClaims{}, ErrExpiredSessionToken
	}
	return p.checkIdentity(*claims)
}

func (p *SessionParser) checkIdentity(claims SessionClaims) (SessionClaims, error) {
	if strings.TrimSpace(claims.UserID) == "" {
		// Some backend builds put the user id in the registered subject.
		claims.UserID = strings.TrimSpace(claims.Subject)
	}
	if claims.UserID == "" {
		return SessionClaims{}, ErrMissingIdentity
	}
	return claims, nil
}
