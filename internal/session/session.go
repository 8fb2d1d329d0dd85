// Package session reads the signed-in identity from the backend access
// token the agent was started with.
package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperr "github.com/yungbote/classsync/internal/pkg/errors"
)

var (
	ErrMissingToken = errors.New("session access token is empty")
	ErrExpired      = errors.New("session access token expired")
)

// Claims is what the backend puts in its access tokens.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type Session struct {
	UserID    string
	Email     string
	ExpiresAt time.Time
	Token     string
}

// Expired reports whether the token is past its expiry at now. Tokens
// without exp never expire.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// Parser decodes access tokens. With a secret the HS256 signature is
// checked; without one the claims are trusted and the backend remains the
// authority on every request.
type Parser struct {
	secret []byte
	leeway time.Duration
	now    func() time.Time
}

func NewParser(secret string, leeway time.Duration) *Parser {
	return &Parser{secret: []byte(strings.TrimSpace(secret)), leeway: leeway, now: time.Now}
}

func (p *Parser) Parse(token string) (Session, error) {
	const op = "session.parse"
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return Session{}, apperr.Wrap(apperr.CodeFatal, op, ErrMissingToken)
	}

	claims := &Claims{}
	var err error
	if len(p.secret) > 0 {
		parser := jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithLeeway(p.leeway),
			jwt.WithTimeFunc(p.now),
		)
		_, err = parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) { return p.secret, nil })
	} else {
		_, _, err = jwt.NewParser().ParseUnverified(token, claims)
	}
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			err = ErrExpired
		}
		return Session{}, apperr.Wrap(apperr.CodeFatal, op, fmt.Errorf("%w: %w", apperr.ErrUnauthorized, err))
	}

	sub := strings.TrimSpace(claims.Subject)
	if sub == "" {
		return Session{}, apperr.Wrap(apperr.CodeFatal, op, fmt.Errorf("%w: missing sub", apperr.ErrUnauthorized))
	}
	s := Session{UserID: sub, Email: claims.Email, Token: token}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
	}
	if len(p.secret) == 0 && s.Expired(p.now().Add(-p.leeway)) {
		return Session{}, apperr.Wrap(apperr.CodeFatal, op, fmt.Errorf("%w: %w", apperr.ErrUnauthorized, ErrExpired))
	}
	return s, nil
}
