package httpapi

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/louisbranch/duet/internal/platform/errors"
)

const (
	defaultTokenIssuer = "duet"
	defaultTokenTTL    = 12 * time.Hour
)

// Identity is the participant a bearer token speaks for.
type Identity struct {
	SessionID     string
	ParticipantID string
	ExpiresAt     time.Time
}

type participantClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`
}

// Tokens issues and verifies HS256 participant tokens.
type Tokens struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokens builds a token codec. The secret must not be empty.
func NewTokens(secret string, ttl time.Duration, now func() time.Time) (*Tokens, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("token secret is required")
	}
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Tokens{secret: []byte(secret), issuer: defaultTokenIssuer, ttl: ttl, now: now}, nil
}

// Issue signs a token for participantID in sessionID.
func (t *Tokens) Issue(sessionID, participantID string) (string, error) {
	now := t.now().UTC()
	claims := participantClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   participantID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
		SessionID: sessionID,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign participant token: %w", err)
	}
	return signed, nil
}

// Verify checks a token and returns its identity.
func (t *Tokens) Verify(token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, apperrors.New(apperrors.CodeUnauthenticated, "participant token is required")
	}
	var claims participantClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return Identity{}, apperrors.Wrap(apperrors.CodeUnauthenticated, "participant token is invalid", err)
	}
	if claims.Subject == "" || claims.SessionID == "" {
		return Identity{}, apperrors.New(apperrors.CodeUnauthenticated, "participant token has no identity")
	}
	identity := Identity{SessionID: claims.SessionID, ParticipantID: claims.Subject}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time
	}
	return identity, nil
}
