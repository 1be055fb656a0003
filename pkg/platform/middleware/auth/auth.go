package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"attest/pkg/requestcontext"
)

// Validator validates a bearer token.
type Validator interface {
	ValidateToken(tokenString string) (*Claims, error)
}

// Claims is what the middleware needs from a validated token.
type Claims struct {
	WalletID string
	TokenID  string
}

// FailureFunc observes rejected requests, e.g. to audit them.
type FailureFunc func(ctx context.Context, reason string)

func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

// RequireWallet rejects requests without a valid bearer token and stores the
// token's wallet in the request context.
func RequireWallet(validator Validator, logger *slog.Logger, onFailure FailureFunc) func(http.Handler) http.Handler {
	reject := func(w http.ResponseWriter, r *http.Request, reason, desc string, err error) {
		ctx := r.Context()
		logger.WarnContext(ctx, "unauthorized access - "+reason,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		if onFailure != nil {
			onFailure(ctx, reason)
		}
		writeJSONError(w, http.StatusUnauthorized, "unauthorized", desc)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				reject(w, r, "missing token", "Missing or invalid Authorization header", nil)
				return
			}
			claims, err := validator.ValidateToken(token)
			if err != nil {
				reject(w, r, "invalid token", "Invalid or expired token", err)
				return
			}
			ctx := requestcontext.WithWalletID(r.Context(), claims.WalletID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
