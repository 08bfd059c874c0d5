// Package auth implements the session token shared by the auth gateway and
// the launcher.
//
// The token is a JWT signed with HMAC-SHA256 using a process-wide symmetric
// secret (JWT_KEY). Its verified payload carries a single claim: the
// username (FedID) of the authenticated user. The gateway mints tokens after
// a successful SSO ticket validation and sets them as the "token" cookie;
// both services verify them on subsequent requests.
//
// SECURITY: the keyfunc rejects any token whose signing method is not HMAC.
// This prevents "alg": "none" tokens and asymmetric algorithm substitution
// from being accepted. The token deliberately carries no expiry claim; the
// SSO ticket exchange is the only credential with a lifetime.
package auth

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// CookieName is the browser cookie that carries the session token.
const CookieName = "token"

// ErrNoUsername is returned when a token verifies but its payload carries no
// username claim. Callers treat this differently from a verification failure:
// the requestor presented a valid signature but cannot be identified.
var ErrNoUsername = errors.New("token payload has no username")

// Claims is the verified payload of a session token.
type Claims struct {
	// Username is the FedID of the authenticated user.
	Username string `json:"username,omitempty"`

	jwt.RegisteredClaims
}

// TokenManager mints and verifies session tokens.
type TokenManager struct {
	key []byte
}

// NewTokenManager creates a token manager signing with the given symmetric
// key. The algorithm is fixed at construction: HMAC-SHA256.
func NewTokenManager(key string) *TokenManager {
	return &TokenManager{key: []byte(key)}
}

// Mint creates a signed token whose payload carries the given username.
func (m *TokenManager) Mint(username string) (string, error) {
	claims := &Claims{Username: username}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.key)
	if err != nil {
		return "", err
	}
	return signed, nil
}

// Verify checks the signature of a token and returns the username it
// carries. A malformed or tampered token returns an error; a valid token
// without a username returns ErrNoUsername.
func (m *TokenManager) Verify(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Reject "none" and asymmetric algorithms outright.
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return m.key, nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return "", errors.New("invalid token")
	}
	if claims.Username == "" {
		return "", ErrNoUsername
	}
	return claims.Username, nil
}
