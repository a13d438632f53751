package middleware

import (
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// The website issues the tokens; this server only validates them with the
// shared signing key.
func jwtKey() []byte {
	return []byte(os.Getenv("JWT_SECRET"))
}

// decodeJWT validates a bearer token and returns the email claim.
func decodeJWT(token string) (string, error) {
	token = strings.TrimPrefix(token, "Bearer ")

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return jwtKey(), nil
	})
	if err != nil {
		return "", fmt.Errorf("invalid JWT: %v", err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return "", fmt.Errorf("invalid JWT claims")
	}

	email, ok := claims["email"].(string)
	if !ok || email == "" {
		return "", fmt.Errorf("JWT missing email claim")
	}
	return email, nil
}

// Socketio_JWT_decoder extracts and validates the JWT from a socket.io
// handshake's auth data, returning the user's email.
func Socketio_JWT_decoder(authData map[string]interface{}) (string, error) {
	token, exists := authData["authorization"].(string)
	if !exists {
		return "", fmt.Errorf("missing authorization token")
	}
	return decodeJWT(token)
}
