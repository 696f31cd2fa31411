package middleware

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
	"github.com/udyogsetu/backend/internal/models"
)

var (
	authDB    *sql.DB
	authRedis *redis.Client
)

// InitAuthMiddleware wires the store handles the middleware needs: Redis for
// the token blacklist, Postgres for the per-request role/approval lookup.
func InitAuthMiddleware(db *sql.DB, redisClient *redis.Client) {
	authDB = db
	authRedis = redisClient
}

// AuthMiddleware validates the bearer token and rejects revoked sessions.
// The raw token is kept in the request context so the trust gate can revoke
// it on a policy violation.
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
			return
		}

		token := parts[1]

		if authRedis != nil {
			key := fmt.Sprintf("blacklist:%s", token)
			if exists, err := authRedis.Exists(r.Context(), key).Result(); err == nil && exists > 0 {
				http.Error(w, "Session terminated", http.StatusUnauthorized)
				return
			}
		}

		userID, role, err := validateToken(token)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), "userID", userID)
		ctx = context.WithValue(ctx, "role", role)
		ctx = context.WithValue(ctx, "token", token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRoles gates a route group on {approved, role in allowed set}. The
// lookup hits the database on every request rather than caching an earlier
// admit, since an admin can revoke approval mid-session. Every denial path
// returns the same message; the caller never learns which condition failed.
// An empty allowed set admits any authenticated, approved account.
func RequireRoles(allowed ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := r.Context().Value("userID").(string)
			if !ok || userID == "" {
				denyAccess(w)
				return
			}

			var role string
			var approved bool
			err := authDB.QueryRowContext(r.Context(),
				"SELECT role, approved FROM accounts WHERE id = $1", userID).Scan(&role, &approved)
			if err != nil {
				// Missing account and store failure deny alike.
				log.Printf("[GUARD] Account lookup failed for %s: %v", userID, err)
				denyAccess(w)
				return
			}

			if !approved {
				log.Printf("[GUARD] Account %s denied: not approved", userID)
				denyAccess(w)
				return
			}

			if len(allowed) > 0 && !roleAllowed(models.Role(role), allowed) {
				log.Printf("[GUARD] Account %s denied: role %s not in allowed set", userID, role)
				denyAccess(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func roleAllowed(role models.Role, allowed []models.Role) bool {
	for _, a := range allowed {
		if role == a {
			return true
		}
	}
	return false
}

func denyAccess(w http.ResponseWriter) {
	http.Error(w, "Access denied", http.StatusForbidden)
}

func validateToken(tokenString string) (string, string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(viper.GetString("jwt.secret_key")), nil
	})

	if err != nil || !token.Valid {
		return "", "", fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", fmt.Errorf("invalid claims")
	}

	userID, _ := claims["user_id"].(string)
	role, _ := claims["role"].(string)
	if userID == "" {
		return "", "", fmt.Errorf("missing user_id claim")
	}
	return userID, role, nil
}
