package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/praylist/internal/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type ctxKey string

const accountKey ctxKey = "account"

// accountFromContext returns the account authenticated by requireSession.
func accountFromContext(ctx context.Context) string {
	v, _ := ctx.Value(accountKey).(string)
	return v
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get(common.AuthorizationHeaderName)
	if !strings.HasPrefix(h, common.BearerPrefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, common.BearerPrefix))
}

// requireSession rejects requests whose token is missing (401), invalid,
// expired or issued for another account (403).
func (s *HTTPServer) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		token := bearerToken(r)
		if token == "" {
			fail(w, http.StatusUnauthorized, "missing token")
			return
		}

		account, err := s.accounts.Authenticate(ctx, token)
		if err != nil {
			s.logger.Debug(ctx, "session rejected", "error", err)
			failErr(w, err)
			return
		}
		if account != chi.URLParam(r, "account") {
			s.logger.Warn(ctx, "session used for foreign account", "account", account)
			fail(w, http.StatusForbidden, common.ErrInvalidToken.Error())
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, accountKey, account)))
	})
}

func (s *HTTPServer) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Info(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
