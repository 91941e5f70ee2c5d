package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/order-desk/internal/auth"
)

type subjectKey struct{}

// subjectFrom returns the authenticated caller stored by requireUser.
func subjectFrom(ctx context.Context) (auth.Subject, bool) {
	sub, ok := ctx.Value(subjectKey{}).(auth.Subject)
	return sub, ok
}

// requireUser rejects requests without a valid access token in the
// Authorization header and stores the token subject in the context.
func (h *Handler) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
			writeError(w, r, http.StatusUnauthorized, kindUnauthorized,
				"authentication credentials were not provided")
			return
		}

		sub, err := h.tokens.Parse(strings.TrimSpace(token), auth.TokenAccess)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="api", error="invalid_token"`)
			fail(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), subjectKey{}, sub)
		ctx = zctx.With(ctx, zap.String("user_id", sub.UserID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
