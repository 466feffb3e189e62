// Package auth resolves the acting user of a request.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/freekieb7/playlog/internal/apperr"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoAuthorizationHeader = errors.New("authorization header is missing")
	ErrMalformedAuthHeader   = errors.New("authorization header must use the Bearer scheme")
	ErrNoTokenInAuthHeader   = errors.New("authorization header carries no token")
	ErrTokenSigningMethod    = errors.New("unexpected token signing method")
	ErrInvalidToken          = errors.New("invalid token")
	ErrTokenWithNoSubject    = errors.New("token has no subject")
)

// CurrentUser answers who is acting in the current unit of work.
type CurrentUser interface {
	CurrentUserID() (string, bool)
	IsAuthenticated() bool
}

type contextKey string

const userIDKey contextKey = "user_id"

// WithUserID returns a context carrying the authenticated user id.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// FromContext returns the CurrentUser stored in ctx. The result is
// unauthenticated when no id has been attached.
func FromContext(ctx context.Context) CurrentUser {
	id, _ := ctx.Value(userIDKey).(string)
	return contextUser(id)
}

// RequireUser returns the acting user id, or an Unauthenticated failure when
// nobody is signed in.
func RequireUser(ctx context.Context) (string, error) {
	id, ok := FromContext(ctx).CurrentUserID()
	if !ok {
		return "", apperr.Unauthenticated()
	}
	return id, nil
}

type contextUser string

func (u contextUser) CurrentUserID() (string, bool) {
	return string(u), u != ""
}

func (u contextUser) IsAuthenticated() bool {
	return u != ""
}

// TokenValidator checks HMAC signed bearer tokens and extracts the subject.
type TokenValidator struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewTokenValidator(secret, issuer string) TokenValidator {
	return TokenValidator{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// Validate returns the user id carried by tokenString.
func (v TokenValidator) Validate(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}

	opts := []jwt.ParserOption{jwt.WithTimeFunc(v.now), jwt.WithExpirationRequired()}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenSigningMethod
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", ErrInvalidToken
	}
	if claims.Subject == "" {
		return "", ErrTokenWithNoSubject
	}

	return claims.Subject, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrNoAuthorizationHeader
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return "", ErrMalformedAuthHeader
	}

	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return "", ErrNoTokenInAuthHeader
	}
	return token, nil
}
