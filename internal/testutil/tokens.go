package testutil

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TestJWTSecret signs every token minted in tests.
const TestJWTSecret = "sitebuilder-test-secret"

// MintToken signs an HS256 access token for the given user.
func MintToken(testingT *testing.T, userID string, email string) string {
	testingT.Helper()
	return MintTokenWithExpiry(testingT, userID, email, time.Now().Add(time.Hour))
}

// MintTokenWithExpiry signs an HS256 access token that expires at the provided time.
func MintTokenWithExpiry(testingT *testing.T, userID string, email string, expiresAt time.Time) string {
	testingT.Helper()
	claims := jwt.MapClaims{
		"sub":   userID,
		"email": email,
		"role":  "authenticated",
		"exp":   expiresAt.Unix(),
		"iat":   time.Now().Add(-time.Minute).Unix(),
	}
	signed, signErr := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(TestJWTSecret))
	if signErr != nil {
		testingT.Fatalf("sign test token: %v", signErr)
	}
	return signed
}

// BearerHeader formats an Authorization header value.
func BearerHeader(token string) string {
	return "Bearer " + token
}
