package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultTokenTTL = 12 * time.Hour

var (
	ErrMissingSigningSecret = errors.New("auth: signing secret must be provided")
	ErrMissingUserID        = errors.New("auth: user id claim must be provided")
	ErrMissingClientID      = errors.New("auth: client id claim must be provided")
)

// SyncClaims is the JWT payload binding a session to one user and one sync
// client (device). The sync core trusts both values as given; how the user
// proved their identity is the concern of the upstream identity layer.
type SyncClaims struct {
	ClientID string `json:"client_id"`
	jwt.RegisteredClaims
}

// TokenManagerConfig configures the HS256 sync token manager.
type TokenManagerConfig struct {
	SigningSecret []byte
	Issuer        string
	Audience      string
	TokenTTL      time.Duration
	Clock         func() time.Time
}

// TokenManager issues and validates the bearer tokens carried on sync
// requests.
type TokenManager struct {
	config TokenManagerConfig
	clock  func() time.Time
}

// NewTokenManager constructs a TokenManager with sane defaults.
func NewTokenManager(cfg TokenManagerConfig) *TokenManager {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TokenManager{
		config: TokenManagerConfig{
			SigningSecret: cfg.SigningSecret,
			Issuer:        cfg.Issuer,
			Audience:      cfg.Audience,
			TokenTTL:      ttl,
			Clock:         clock,
		},
		clock: clock,
	}
}

// IssueToken produces a signed JWT for the user/client pair plus its expiry
// in seconds.
func (m *TokenManager) IssueToken(userID, clientID string) (string, int64, error) {
	if len(m.config.SigningSecret) == 0 {
		return "", 0, ErrMissingSigningSecret
	}
	if userID == "" {
		return "", 0, ErrMissingUserID
	}
	if clientID == "" {
		return "", 0, ErrMissingClientID
	}

	now := m.clock().UTC()
	expiresAt := now.Add(m.config.TokenTTL).UTC()

	claims := SyncClaims{
		ClientID: clientID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    m.config.Issuer,
			Audience:  []string{m.config.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.config.SigningSecret)
	if err != nil {
		return "", 0, err
	}
	return signed, int64(expiresAt.Sub(now).Seconds()), nil
}

// ValidateToken ensures the token is well formed and returns the
// authenticated user id and client id.
func (m *TokenManager) ValidateToken(tokenString string) (string, string, error) {
	if len(m.config.SigningSecret) == 0 {
		return "", "", ErrMissingSigningSecret
	}

	claims := &SyncClaims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("unexpected signing algorithm: %s", token.Method.Alg())
			}
			return m.config.SigningSecret, nil
		},
		jwt.WithAudience(m.config.Audience),
		jwt.WithIssuer(m.config.Issuer),
		jwt.WithTimeFunc(m.clock),
	)
	if err != nil {
		return "", "", err
	}
	if claims.Subject == "" {
		return "", "", ErrMissingUserID
	}
	if claims.ClientID == "" {
		return "", "", ErrMissingClientID
	}
	return claims.Subject, claims.ClientID, nil
}
