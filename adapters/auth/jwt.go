// Package auth verifies session cookies issued by the web front end.
// Sessions are stateless HS256 JWTs; any instance holding the shared
// secret can verify them.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/artpar/filinggate/ports"
	"github.com/golang-jwt/jwt/v5"
)

// Errors returned by Verify.
var (
	ErrInvalidSession = errors.New("invalid session token")
	ErrNoSubject      = errors.New("session token has no user")
)

// Claims are the session token claims. The subject is the numeric user ID.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// TokenService signs and verifies session tokens.
// Safe for concurrent use.
type TokenService struct {
	secret     []byte
	issuer     string
	expiration time.Duration
	clock      ports.Clock
}

// NewTokenService creates a session token service.
// If secret is empty, a random secret is generated, which means only
// tokens issued by this process verify.
func NewTokenService(secret, issuer string, expiration time.Duration, clk ports.Clock) *TokenService {
	key := []byte(secret)
	if secret == "" {
		key = make([]byte, 32)
		rand.Read(key)
	}
	if expiration <= 0 {
		expiration = 24 * time.Hour
	}
	return &TokenService{secret: key, issuer: issuer, expiration: expiration, clock: clk}
}

// Issue signs a session token for a user. The HTTP surface never issues
// sessions; this is used by the CLI and tests.
func (s *TokenService) Issue(userID int64, email string) (string, time.Time, error) {
	now := s.clock.Now().UTC()
	expiresAt := now.Add(s.expiration)

	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify checks a session token and returns the session it carries.
func (s *TokenService) Verify(token string) (ports.Session, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.clock.Now),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		return ports.Session{}, errors.Join(ErrInvalidSession, err)
	}
	if !parsed.Valid {
		return ports.Session{}, ErrInvalidSession
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return ports.Session{}, ErrNoSubject
	}
	return ports.Session{UserID: userID, Email: claims.Email}, nil
}

// GenerateSecret returns a random hex secret suitable for signing.
func GenerateSecret() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}

var _ ports.SessionVerifier = (*TokenService)(nil)
