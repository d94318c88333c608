package auth

import (
	"fmt"
	"net/http"
	"room-sync/errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "room-sync"

// Identity is the authenticated actor behind a connection.
type Identity struct {
	UserID string
}

// CustomClaims defines the structure of the data stored inside the JWT.
type CustomClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Issuer signs and validates HS256 identity tokens with an explicit secret.
type Issuer struct {
	secret   []byte
	duration time.Duration
	now      func() time.Time
}

func NewIssuer(secret string, duration time.Duration) (*Issuer, error) {
	if secret == "" {
		return nil, fmt.Errorf("empty jwt secret: %w", errors.ErrInvalidToken)
	}
	return &Issuer{secret: []byte(secret), duration: duration, now: time.Now}, nil
}

// GenerateToken creates a signed JWT for a specific user.
func (i *Issuer) GenerateToken(userID string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", fmt.Errorf("empty user id: %w", errors.ErrInvalidToken)
	}
	now := i.now()
	claims := &CustomClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(i.duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// ValidateToken checks signature, algorithm, issuer and expiry.
func (i *Issuer) ValidateToken(tokenString string) (Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{},
		func(token *jwt.Token) (interface{}, error) {
			return i.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%v: %w", err, errors.ErrInvalidToken)
	}
	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return Identity{}, errors.ErrInvalidToken
	}
	return Identity{UserID: claims.UserID}, nil
}

// FromRequest extracts a token from the Authorization bearer header, falling
// back to the "token" query parameter that browsers use for WebSockets.
func FromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get("token")
}

// PeekIdentity reads the user id of a token without checking its signature.
// Clients use it to learn who they are; only the server verifies tokens.
func PeekIdentity(tokenString string) (Identity, error) {
	claims := &CustomClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return Identity{}, fmt.Errorf("%v: %w", err, errors.ErrInvalidToken)
	}
	if claims.UserID == "" {
		return Identity{}, errors.ErrInvalidToken
	}
	return Identity{UserID: claims.UserID}, nil
}
