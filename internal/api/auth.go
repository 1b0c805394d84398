package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BTreeMap/ovnchat/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

const (
	adminTokenHeader = "X-Admin-Token"
	adminRole        = "admin"
)

var errUnauthorized = errors.New("unauthorized")

type adminKey struct{}

// adminIDFrom returns the operator identified by the request's credentials, if any.
func adminIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(adminKey{}).(string)
	return id
}

// IssueAdminToken signs an HS256 token granting admin access to adminID for ttl.
func IssueAdminToken(secret, adminID string, ttl time.Duration, now time.Time) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("empty jwt secret: %w", models.ErrValidation)
	}
	claims := jwt.MapClaims{
		"sub":  adminID,
		"role": adminRole,
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// validateAdminJWT checks the signature, expiry and role of tokenString and returns its subject.
func validateAdminJWT(tokenString, secret string, now func() time.Time) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(now))
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", errUnauthorized
	}
	if role, _ := claims["role"].(string); role != adminRole {
		return "", fmt.Errorf("role %q: %w", role, errUnauthorized)
	}
	sub, _ := claims.GetSubject()
	return sub, nil
}

// authenticate returns the admin id of a request carrying valid credentials. Shared-token
// requests have an empty id.
func (s *Server) authenticate(r *http.Request) (string, error) {
	if s.opts.AdminToken != "" {
		token := r.Header.Get(adminTokenHeader)
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if token != "" && subtle.ConstantTimeCompare([]byte(token), []byte(s.opts.AdminToken)) == 1 {
			return "", nil
		}
	}
	if s.opts.JWTSecret != "" {
		if bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
			return validateAdminJWT(strings.TrimSpace(bearer), s.opts.JWTSecret, s.opts.Now)
		}
	}
	return "", errUnauthorized
}

// requireAdmin rejects requests without admin credentials.
func (s *Server) requireAdmin(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		adminID, err := s.authenticate(r)
		if err != nil {
			slog.Warn("Server.requireAdmin: rejected", "path", r.URL.Path, "error", err)
			writeJSONResponse(w, http.StatusUnauthorized, models.Error("Unauthorized"))
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), adminKey{}, adminID)))
	})
}
