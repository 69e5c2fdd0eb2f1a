// Package auth validates bearer credentials issued by the hosted auth platform.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

const bearerPrefix = "Bearer "

var (
	ErrMissingCredential     = errors.New("auth: missing bearer credential")
	ErrInvalidCredential     = errors.New("auth: invalid bearer credential")
	ErrMissingSubject        = errors.New("auth: credential has no subject")
	ErrVerifierNotConfigured = errors.New("auth: no jwt secret or jwks url configured")
)

// Caller identifies the account behind a request.
type Caller struct {
	UserID string
	Email  string
}

// Claims mirrors the access token issued by the auth platform.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// Verifier resolves a raw bearer token into a Caller.
type Verifier interface {
	Verify(ctx context.Context, rawToken string) (Caller, error)
}

// Config selects the verification keys.
type Config struct {
	JWTSecret string
	JWKSURL   string
	Leeway    time.Duration
}

// TokenVerifier checks HS256 tokens against a shared secret and asymmetric tokens against a JWKS endpoint.
type TokenVerifier struct {
	secret []byte
	jwks   keyfunc.Keyfunc
	parser *jwt.Parser
}

// NewTokenVerifier builds a TokenVerifier. The JWKS endpoint, when configured, is fetched once at startup
// and refreshed in the background by keyfunc.
func NewTokenVerifier(ctx context.Context, configuration Config) (*TokenVerifier, error) {
	secret := strings.TrimSpace(configuration.JWTSecret)
	jwksURL := strings.TrimSpace(configuration.JWKSURL)
	if secret == "" && jwksURL == "" {
		return nil, ErrVerifierNotConfigured
	}

	verifier := &TokenVerifier{}
	validMethods := make([]string, 0, 4)
	if secret != "" {
		verifier.secret = []byte(secret)
		validMethods = append(validMethods, jwt.SigningMethodHS256.Alg())
	}
	if jwksURL != "" {
		jwks, jwksErr := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
		if jwksErr != nil {
			return nil, fmt.Errorf("auth: load jwks %s: %w", jwksURL, jwksErr)
		}
		verifier.jwks = jwks
		validMethods = append(validMethods, jwt.SigningMethodRS256.Alg(), jwt.SigningMethodES256.Alg())
	}

	leeway := configuration.Leeway
	if leeway <= 0 {
		leeway = 30 * time.Second
	}
	verifier.parser = jwt.NewParser(
		jwt.WithValidMethods(validMethods),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(leeway),
	)
	return verifier, nil
}

// Verify validates the token signature and expiry and returns the subject as the caller.
func (verifier *TokenVerifier) Verify(ctx context.Context, rawToken string) (Caller, error) {
	trimmedToken := strings.TrimSpace(rawToken)
	if trimmedToken == "" {
		return Caller{}, ErrMissingCredential
	}

	claims := &Claims{}
	_, parseErr := verifier.parser.ParseWithClaims(trimmedToken, claims, func(token *jwt.Token) (interface{}, error) {
		if _, isHMAC := token.Method.(*jwt.SigningMethodHMAC); isHMAC {
			if len(verifier.secret) == 0 {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return verifier.secret, nil
		}
		if verifier.jwks == nil {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return verifier.jwks.KeyfuncCtx(ctx)(token)
	})
	if parseErr != nil {
		return Caller{}, fmt.Errorf("%w: %v", ErrInvalidCredential, parseErr)
	}

	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return Caller{}, ErrMissingSubject
	}
	return Caller{
		UserID: subject,
		Email:  strings.ToLower(strings.TrimSpace(claims.Email)),
	}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(authorizationHeader string) (string, error) {
	trimmedHeader := strings.TrimSpace(authorizationHeader)
	if len(trimmedHeader) < len(bearerPrefix) || !strings.EqualFold(trimmedHeader[:len(bearerPrefix)], bearerPrefix) {
		return "", ErrMissingCredential
	}
	token := strings.TrimSpace(trimmedHeader[len(bearerPrefix):])
	if token == "" {
		return "", ErrMissingCredential
	}
	return token, nil
}

var _ Verifier = (*TokenVerifier)(nil)
