package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"attest/internal/proof/models"
	"attest/internal/proof/ports"
)

var _ ports.Ledger = (*HTTPLedger)(nil)

// HTTPLedger queries a ledger gateway. Global contexts never change for a
// network, so the first successful fetch is kept for the process lifetime.
type HTTPLedger struct {
	client jsonClient
	logger *slog.Logger

	group  singleflight.Group
	mu     sync.RWMutex
	global map[models.Network]models.GlobalContext
}

// LedgerOption configures the HTTPLedger.
type LedgerOption func(*HTTPLedger)

// WithLedgerDoer replaces the HTTP client.
func WithLedgerDoer(doer HTTPDoer) LedgerOption {
	return func(l *HTTPLedger) { l.client.doer = doer }
}

// WithLedgerLogger sets the logger.
func WithLedgerLogger(logger *slog.Logger) LedgerOption {
	return func(l *HTTPLedger) { l.logger = logger }
}

func NewHTTPLedger(baseURL string, timeout time.Duration, opts ...LedgerOption) *HTTPLedger {
	l := &HTTPLedger{
		client: newJSONClient("ledger", baseURL, timeout, nil),
		logger: slog.Default(),
		global: make(map[models.Network]models.GlobalContext),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type statusRequest struct {
	IDs []string `json:"ids"`
}

type statusResponse struct {
	Statuses map[string]models.CredentialStatus `json:"statuses"`
}

// StatusOf fetches statuses in one batch. Unknown status strings are dropped,
// which leaves the credential unusable.
func (l *HTTPLedger) StatusOf(ctx context.Context, ids []string) (map[string]models.CredentialStatus, error) {
	out := make(map[string]models.CredentialStatus, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var resp statusResponse
	if err := l.client.call(ctx, http.MethodPost, "/v1/credential-statuses", statusRequest{IDs: ids}, &resp); err != nil {
		return nil, err
	}
	for id, status := range resp.Statuses {
		if !status.IsValid() {
			l.logger.WarnContext(ctx, "ledger returned unknown credential status", "credential_id", id, "status", status)
			continue
		}
		out[id] = status
	}
	return out, nil
}

type globalResponse struct {
	Value json.RawMessage `json:"value"`
}

// GlobalContext returns the network's cryptographic parameters, fetching them
// at most once concurrently.
func (l *HTTPLedger) GlobalContext(ctx context.Context, network models.Network) (models.GlobalContext, error) {
	l.mu.RLock()
	cached, ok := l.global[network]
	l.mu.RUnlock()
	if ok {
		return cached, nil
	}

	v, err, _ := l.group.Do(string(network), func() (any, error) {
		var resp globalResponse
		path := "/v1/global-context?network=" + url.QueryEscape(string(network))
		if err := l.client.call(ctx, http.MethodGet, path, nil, &resp); err != nil {
			return nil, err
		}
		if len(resp.Value) == 0 {
			return nil, fmt.Errorf("ledger returned an empty global context for %s", network)
		}
		gc := models.GlobalContext{Network: network, Value: resp.Value}
		l.mu.Lock()
		l.global[network] = gc
		l.mu.Unlock()
		return gc, nil
	})
	if err != nil {
		return models.GlobalContext{}, err
	}
	return v.(models.GlobalContext), nil
}
