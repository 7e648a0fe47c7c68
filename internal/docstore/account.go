package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/VedantVallal/chatapplication-63/internal/backend"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrNoSession    = errors.New("user (role: guests) missing scope (account)")
)

// Claims are the session token claims.
type Claims struct {
	UserID   string `json:"sub"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Authenticator issues and validates HS256 session tokens.
type Authenticator struct {
	secretKey []byte
	issuer    string
	validity  time.Duration
}

// NewAuthenticator creates a new Authenticator.
func NewAuthenticator(secretKey string, issuer string, validity time.Duration) *Authenticator {
	return &Authenticator{
		secretKey: []byte(secretKey),
		issuer:    issuer,
		validity:  validity,
	}
}

// IssueToken creates a signed session token for a user.
func (a *Authenticator) IssueToken(userID, username string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(a.validity)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    a.issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secretKey)
}

// Validate parses and validates a session token.
func (a *Authenticator) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return a.secretKey, nil
	}, jwt.WithIssuer(a.issuer))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Account is the identity probe for one session token.
type Account struct {
	auth  *Authenticator
	token string
}

var _ backend.Account = (*Account)(nil)

// NewAccount binds a session token to an authenticator. An empty token is a
// guest session.
func NewAccount(auth *Authenticator, token string) *Account {
	return &Account{auth: auth, token: token}
}

// Get returns the session holder. Guest sessions fail with ErrNoSession and
// bad tokens with an "unauthorized" error.
func (a *Account) Get(_ context.Context) (*backend.Identity, error) {
	if a.token == "" {
		return nil, ErrNoSession
	}
	claims, err := a.auth.Validate(a.token)
	if err != nil {
		return nil, fmt.Errorf("unauthorized: %w", err)
	}
	return &backend.Identity{ID: claims.UserID, Name: claims.Username}, nil
}
