package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/Golden-Age-Club/server/internal/apperr"
	"github.com/golang-jwt/jwt/v5"
)

const (
	roleAdmin           = "admin"
	internalTokenHeader = "X-Internal-Token"
)

// AccessClaims are issued by the auth service; sub holds the account id.
type AccessClaims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type ctxKey int

const (
	ctxAccountID ctxKey = iota
	ctxRole
	ctxSubject
)

func (h *HandlerProvider) parseAccessToken(raw string) (*AccessClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if h.auth.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(h.auth.Issuer))
	}

	claims := &AccessClaims{}

	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(h.auth.JWTSecret), nil
	}, opts...)
	if err != nil {
		return nil, err
	}

	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}

	return claims, nil
}

// authenticate requires a valid bearer token and stores its subject.
func (h *HandlerProvider) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get("Authorization"))
		if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
			raw = strings.TrimSpace(raw[7:])
		} else {
			raw = ""
		}

		if raw == "" {
			writeError(r.Context(), h.logg, w, apperr.New(apperr.CodeUnauthorized, "missing bearer token"))
			return
		}

		claims, err := h.parseAccessToken(raw)
		if err != nil {
			writeError(r.Context(), h.logg, w, apperr.Wrap(apperr.CodeUnauthorized, err, "invalid token"))
			return
		}

		ctx := context.WithValue(r.Context(), ctxSubject, claims.Subject)
		ctx = context.WithValue(ctx, ctxRole, claims.Role)

		id, err := strconv.ParseUint(claims.Subject, 10, 64)
		if err == nil && id > 0 {
			ctx = context.WithValue(ctx, ctxAccountID, id)
			ctx = h.logg.WithAccountID(ctx, id)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *HandlerProvider) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role, _ := r.Context().Value(ctxRole).(string)
		if role != roleAdmin {
			writeError(r.Context(), h.logg, w, apperr.New(apperr.CodeForbidden, "admin role required"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requireInternalToken guards service-to-service hooks. With no token
// configured the hook is closed.
func (h *HandlerProvider) requireInternalToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		want := h.auth.InternalToken
		got := r.Header.Get(internalTokenHeader)

		if want == "" || subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			writeError(r.Context(), h.logg, w, apperr.New(apperr.CodeUnauthorized, "invalid internal token"))
			return
		}

		next(w, r)
	}
}

func accountFrom(ctx context.Context) (uint64, error) {
	id, ok := ctx.Value(ctxAccountID).(uint64)
	if !ok {
		return 0, apperr.New(apperr.CodeUnauthorized, "token subject is not an account")
	}

	return id, nil
}

func subjectFrom(ctx context.Context) string {
	s, _ := ctx.Value(ctxSubject).(string)
	return s
}
