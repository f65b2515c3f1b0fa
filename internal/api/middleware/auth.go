package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ayo6706/transaction-stream-processor/internal/api/problem"
	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const (
	userContextKey  contextKey = "user_id"
	traceContextKey contextKey = "trace_id"
)

var (
	jwtSecret   []byte
	jwtIssuer   string
	jwtAudience string
)

var (
	errMissingAuthorization = errors.New("authorization header required")
	errNotBearer            = errors.New("invalid token format")
	errInvalidToken         = errors.New("invalid token")
	errInvalidClaims        = errors.New("invalid token claims")
)

type callerClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

func SetJWTSecret(secret string) {
	if secret == "" {
		return
	}
	jwtSecret = []byte(secret)
}

// SetJWTValidation enables iss and aud checks. Empty values skip the check.
func SetJWTValidation(issuer, audience string) {
	jwtIssuer = strings.TrimSpace(issuer)
	jwtAudience = strings.TrimSpace(audience)
}

func JWTSecret() []byte {
	return append([]byte(nil), jwtSecret...)
}

// AuthMiddleware requires an HS256 bearer token carrying a user_id claim and
// puts the caller id on the request context.
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(jwtSecret) == 0 {
			problem.Write(w, r, http.StatusInternalServerError, problem.Type("auth/misconfigured"), "", "auth is not configured")
			return
		}
		callerID, err := authenticate(r.Header.Get("Authorization"))
		if err != nil {
			problem.Write(w, r, http.StatusUnauthorized, problem.Type(authProblemSlug(err)), "", err.Error())
			return
		}
		if info := requestInfoFromContext(r.Context()); info != nil {
			info.callerID = callerID
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userContextKey, callerID)))
	})
}

func authenticate(header string) (string, error) {
	if header == "" {
		return "", errMissingAuthorization
	}
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return "", errNotBearer
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if jwtIssuer != "" {
		opts = append(opts, jwt.WithIssuer(jwtIssuer))
	}
	if jwtAudience != "" {
		opts = append(opts, jwt.WithAudience(jwtAudience))
	}
	claims := &callerClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
		}
		return jwtSecret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return "", errInvalidToken
	}
	// sub is optional but must agree with user_id when present.
	if claims.UserID == "" || (claims.Subject != "" && claims.Subject != claims.UserID) {
		return "", errInvalidClaims
	}
	return claims.UserID, nil
}

func authProblemSlug(err error) string {
	switch {
	case errors.Is(err, errMissingAuthorization):
		return "auth/authorization-header-required"
	case errors.Is(err, errNotBearer):
		return "auth/invalid-token-format"
	case errors.Is(err, errInvalidClaims):
		return "auth/invalid-token-claims"
	default:
		return "auth/invalid-token"
	}
}

// UserIDFromContext returns the authenticated caller id, or "".
func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(userContextKey).(string)
	return v
}
