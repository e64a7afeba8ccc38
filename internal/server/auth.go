package server

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"github.com/aristath/yieldfund/internal/server/respond"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

// validateJWT parses an HS256 token signed with secret.
func validateJWT(tokenString string, secret []byte) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// requireCredential protects batch and admin routes. The bearer token is
// either the shared secret itself or a JWT signed with it. With an empty
// secret (dev mode only) every request passes.
func requireCredential(secret string, log zerolog.Logger) func(http.Handler) http.Handler {
	key := []byte(secret)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(key) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				writeBearerChallenge(w, log, "missing bearer token")
				return
			}
			token := strings.TrimPrefix(authHeader, "Bearer ")

			if subtle.ConstantTimeCompare([]byte(token), key) == 1 {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := validateJWT(token, key)
			if err != nil {
				log.Warn().Err(err).Str("path", r.URL.Path).Msg("Rejected batch credential")
				writeBearerChallenge(w, log, "invalid or expired token")
				return
			}

			sub, _ := claims["sub"].(string)
			log.Debug().Str("sub", sub).Str("path", r.URL.Path).Msg("Authenticated batch request")
			next.ServeHTTP(w, r)
		})
	}
}

func writeBearerChallenge(w http.ResponseWriter, log zerolog.Logger, description string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	respond.JSON(w, log, http.StatusUnauthorized, map[string]string{"error": description})
}
