package api

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Handshake parameters.
const (
	PlayerIDParam = "player_id"
	TokenParam    = "token"
	CodecParam    = "codec"
)

var (
	errMissingIdentity = errors.New("missing player identity")
	errInvalidPlayerID = errors.New("invalid player id")
	errInvalidToken    = errors.New("invalid token")
)

var playerIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.\-]{1,64}$`)

// ValidPlayerID reports whether id is an acceptable player identifier.
func ValidPlayerID(id string) bool {
	return playerIDPattern.MatchString(id)
}

// Authenticator binds a player id to a WebSocket handshake.
//
// Without a secret the player_id query parameter is trusted. With one, the
// handshake must carry an HS256 token (query "token" or a Bearer header)
// whose subject is the player id.
type Authenticator struct {
	secret []byte
}

// NewAuthenticator creates an authenticator. An empty secret disables
// token verification.
func NewAuthenticator(secret string) *Authenticator {
	a := &Authenticator{}
	if secret != "" {
		a.secret = []byte(secret)
	}
	return a
}

// RequiresToken reports whether handshakes must carry a token.
func (a *Authenticator) RequiresToken() bool {
	return a != nil && len(a.secret) > 0
}

// Identify returns the player id for a handshake request.
func (a *Authenticator) Identify(r *http.Request) (string, error) {
	if !a.RequiresToken() {
		id := r.URL.Query().Get(PlayerIDParam)
		if id == "" {
			return "", errMissingIdentity
		}
		if !ValidPlayerID(id) {
			return "", errInvalidPlayerID
		}
		return id, nil
	}

	raw := r.URL.Query().Get(TokenParam)
	if raw == "" {
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			raw = strings.TrimPrefix(h, "Bearer ")
		}
	}
	if raw == "" {
		return "", errMissingIdentity
	}
	return a.Verify(raw)
}

// Verify checks a token and returns its subject.
func (a *Authenticator) Verify(raw string) (string, error) {
	token, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", errInvalidToken, err)
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid {
		return "", errInvalidToken
	}
	if !ValidPlayerID(claims.Subject) {
		return "", errInvalidPlayerID
	}
	return claims.Subject, nil
}
