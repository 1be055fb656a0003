package testutil

import (
	"net/http"

	"attest/pkg/requestcontext"
)

// WithWallet marks req as authenticated for walletID, as the auth
// middleware would.
func WithWallet(req *http.Request, walletID string) *http.Request {
	return req.WithContext(requestcontext.WithWalletID(req.Context(), walletID))
}
