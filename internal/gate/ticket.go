package gate

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TicketIssuer issues and verifies HS256 session tickets.
type TicketIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	leeway time.Duration
	now    func() time.Time
}

// NewTicketIssuer returns an issuer signing with secret. now may be nil.
func NewTicketIssuer(secret, issuer string, ttl, leeway time.Duration, now func() time.Time) *TicketIssuer {
	if now == nil {
		now = time.Now
	}
	return &TicketIssuer{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		leeway: leeway,
		now:    now,
	}
}

// Issue returns a signed ticket and its expiry.
func (t *TicketIssuer) Issue() (string, time.Time, error) {
	now := t.now().UTC().Truncate(time.Second)
	expiresAt := now.Add(t.ttl)
	claims := jwt.RegisteredClaims{
		Issuer:    t.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		ID:        uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign ticket: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks signature, algorithm, issuer and expiry of token.
func (t *TicketIssuer) Verify(token string) error {
	if token == "" {
		return unauthorized("Authorization ticket missing.", nil)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(t.leeway),
		jwt.WithTimeFunc(t.now),
	)
	claims := &jwt.RegisteredClaims{}
	_, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	})
	if err != nil {
		return unauthorized("Invalid or expired ticket.", err)
	}
	if claims.ExpiresAt == nil {
		return unauthorized("Invalid or expired ticket.", errors.New("ticket has no expiry"))
	}
	return nil
}
