package e2etesting

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

var (
	ErrInvalidToken   = errors.New("invalid JWT token")
	ErrExpiredToken   = errors.New("JWT token has expired")
	ErrTokenRevoked   = errors.New("JWT token has been revoked")
	ErrWrongTokenType = errors.New("JWT token has the wrong type")
)

type Claims struct {
	TokenType string `json:"token_type,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) UserID() uint {
	id, _ := strconv.ParseUint(c.Subject, 10, 64)
	return uint(id)
}

// Issuer signs and checks the backend's HS256 tokens. Access tokens minted
// elsewhere with the same secret and no token_type are accepted too.
type Issuer struct {
	secret        []byte
	accessExpiry  time.Duration
	refreshExpiry time.Duration

	mu      sync.Mutex
	revoked map[string]bool
}

func NewIssuer(secret string, accessExpiry, refreshExpiry time.Duration) *Issuer {
	return &Issuer{
		secret:        []byte(secret),
		accessExpiry:  accessExpiry,
		refreshExpiry: refreshExpiry,
		revoked:       make(map[string]bool),
	}
}

func (i *Issuer) AccessToken(userID uint) (string, error) {
	return i.sign(userID, tokenTypeAccess, i.accessExpiry)
}

func (i *Issuer) RefreshToken(userID uint) (string, error) {
	return i.sign(userID, tokenTypeRefresh, i.refreshExpiry)
}

func (i *Issuer) sign(userID uint, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatUint(uint64(userID), 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to generate %s token: %w", tokenType, err)
	}
	return signed, nil
}

func (i *Issuer) Validate(tokenString, tokenType string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected algorithm: %v", token.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	actual := claims.TokenType
	if actual == "" {
		actual = tokenTypeAccess
	}
	if actual != tokenType {
		return nil, ErrWrongTokenType
	}

	i.mu.Lock()
	revoked := i.revoked[tokenString]
	i.mu.Unlock()
	if revoked {
		return nil, ErrTokenRevoked
	}

	return claims, nil
}

func (i *Issuer) Revoke(tokenString string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.revoked[tokenString] = true
}
