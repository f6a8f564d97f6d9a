// internal/middleware/jwt.go
package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"crewdesk/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// Development fallback; production deployments override it through
	// Configure with the JWT_SECRET environment variable.
	defaultSecret = "crewdesk_secret_key_should_be_loaded_from_env"

	// Token expiration time - 24 hours
	tokenExpiration = 24 * time.Hour
)

var jwtSecret = []byte(defaultSecret)

// Configure replaces the signing secret. Call once at startup.
func Configure(secret string) {
	if secret != "" {
		jwtSecret = []byte(secret)
	}
}

// Claims carries the trusted identity this core consumes: who the caller
// is and what role they hold. Issuing these tokens (login, registration,
// session renewal) belongs to the auth collaborator, not this service.
type Claims struct {
	UserID uuid.UUID   `json:"user_id"`
	Role   models.Role `json:"role"`
	jwt.RegisteredClaims
}

// GenerateToken creates a signed identity token. Used by tooling and
// tests; the auth collaborator owns real issuance.
func GenerateToken(userID uuid.UUID, role models.Role) (string, error) {
	expirationTime := time.Now().Add(tokenExpiration)

	claims := &Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    "crewdesk-api",
			Subject:   userID.String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret)
}

// ValidateToken validates the provided JWT token and returns its claims.
func ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return jwtSecret, nil
		},
	)
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		if !models.ValidRole(claims.Role) {
			return nil, errors.New("unknown role in token claims")
		}
		return claims, nil
	}

	return nil, errors.New("invalid token")
}

// ApplyJWTMiddleware wraps a handler function with identity extraction.
func ApplyJWTMiddleware(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			http.Error(w, "Invalid authorization format", http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")

		claims, err := ValidateToken(tokenString)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		if claims.ExpiresAt != nil && time.Now().After(claims.ExpiresAt.Time) {
			http.Error(w, "Token expired", http.StatusUnauthorized)
			return
		}

		ctx := SetIdentityInContext(r.Context(), claims.UserID, claims.Role)
		handler(w, r.WithContext(ctx))
	}
}

// Define a custom context key type to avoid collisions
type contextKey string

const (
	userIDKey contextKey = "user_id"
	roleKey   contextKey = "role"
)

// SetIdentityInContext saves the caller's identity in the request context.
func SetIdentityInContext(ctx context.Context, userID uuid.UUID, role models.Role) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, roleKey, role)
}

// IdentityFromContext retrieves the caller's identity from the context.
func IdentityFromContext(ctx context.Context) (uuid.UUID, models.Role, bool) {
	userID, ok := ctx.Value(userIDKey).(uuid.UUID)
	if !ok {
		return uuid.Nil, "", false
	}
	role, ok := ctx.Value(roleKey).(models.Role)
	if !ok {
		return uuid.Nil, "", false
	}
	return userID, role, true
}
