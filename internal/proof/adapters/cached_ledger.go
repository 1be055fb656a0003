package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"attest/internal/proof/models"
	"attest/internal/proof/ports"
)

var _ ports.Ledger = (*CachedLedger)(nil)

const globalContextKeyPrefix = "attest:global-context:"

// CachedLedger shares global contexts across instances through Redis.
// Credential statuses always go to the ledger.
type CachedLedger struct {
	next   ports.Ledger
	client redis.Cmdable
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedLedger(next ports.Ledger, client redis.Cmdable, ttl time.Duration, logger *slog.Logger) *CachedLedger {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedLedger{next: next, client: client, ttl: ttl, logger: logger}
}

func (c *CachedLedger) StatusOf(ctx context.Context, ids []string) (map[string]models.CredentialStatus, error) {
	return c.next.StatusOf(ctx, ids)
}

// GlobalContext serves from Redis when possible. Cache failures degrade to a
// direct ledger call.
func (c *CachedLedger) GlobalContext(ctx context.Context, network models.Network) (models.GlobalContext, error) {
	key := globalContextKeyPrefix + string(network)
	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var gc models.GlobalContext
		if jerr := json.Unmarshal(raw, &gc); jerr == nil && gc.Network == network {
			return gc, nil
		}
		c.logger.WarnContext(ctx, "discarding corrupt cached global context", "network", network)
	case !errors.Is(err, redis.Nil):
		c.logger.WarnContext(ctx, "global context cache read failed", "network", network, "error", err)
	}

	gc, err := c.next.GlobalContext(ctx, network)
	if err != nil {
		return models.GlobalContext{}, err
	}
	if raw, err := json.Marshal(gc); err == nil {
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			c.logger.WarnContext(ctx, "global context cache write failed", "network", network, "error", err)
		}
	}
	return gc, nil
}
