package review

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// devUserHeader names the acting user when no authentication is configured
const devUserHeader = "X-User-ID"

// BasicAuth holds basic authentication credentials for a single reviewer
type BasicAuth struct {
	Username string
	Password string
}

// Auth configures how the HTTP layer identifies the acting user
type Auth struct {
	Basic     BasicAuth
	JWTSecret []byte
}

// enabled reports whether any scheme can authenticate a request. A password
// without a username configures nothing.
func (a Auth) enabled() bool {
	return a.Basic.Username != "" || len(a.JWTSecret) > 0
}

// authenticate resolves the acting user id from the request
func (a Auth) authenticate(r *http.Request) (string, bool) {
	if !a.enabled() {
		id := strings.TrimSpace(r.Header.Get(devUserHeader))
		return id, id != ""
	}

	header := r.Header.Get("Authorization")
	switch {
	case strings.HasPrefix(header, "Bearer ") && len(a.JWTSecret) > 0:
		sub, err := a.subjectFromToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			return "", false
		}
		return sub, true
	case strings.HasPrefix(header, "Basic ") && a.Basic.Username != "":
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(header, "Basic "))
		if err != nil {
			return "", false
		}
		credentials := strings.SplitN(string(decoded), ":", 2)
		if len(credentials) != 2 {
			return "", false
		}
		if credentials[0] != a.Basic.Username || credentials[1] != a.Basic.Password {
			return "", false
		}
		return credentials[0], true
	}
	return "", false
}

// subjectFromToken verifies an HS256 token and returns its sub claim
func (a Auth) subjectFromToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrInvalidKeyType
		}
		return a.JWTSecret, nil
	})
	if err != nil {
		return "", fmt.Errorf("parsing token: %w", err)
	}
	if !token.Valid {
		return "", errors.New("invalid token")
	}
	sub, err := token.Claims.GetSubject()
	if err != nil {
		return "", fmt.Errorf("reading subject: %w", err)
	}
	if sub == "" {
		return "", errors.New("token has no subject")
	}
	return sub, nil
}
