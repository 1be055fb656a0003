package adapters

import (
	"context"
	"log/slog"

	"attest/internal/proof/models"
	"attest/internal/proof/ports"
	"attest/pkg/platform/circuit"
	"attest/pkg/platform/sentinel"
)

var _ ports.Ledger = (*GuardedLedger)(nil)

// GuardedLedger fails fast while the ledger is down instead of holding every
// session start for the full collaborator timeout.
type GuardedLedger struct {
	next    ports.Ledger
	breaker *circuit.Breaker
	logger  *slog.Logger
}

func NewGuardedLedger(next ports.Ledger, breaker *circuit.Breaker, logger *slog.Logger) *GuardedLedger {
	if logger == nil {
		logger = slog.Default()
	}
	return &GuardedLedger{next: next, breaker: breaker, logger: logger}
}

func (g *GuardedLedger) StatusOf(ctx context.Context, ids []string) (map[string]models.CredentialStatus, error) {
	if !g.breaker.Allow() {
		return nil, g.rejected()
	}
	statuses, err := g.next.StatusOf(ctx, ids)
	g.record(ctx, err)
	return statuses, err
}

func (g *GuardedLedger) GlobalContext(ctx context.Context, network models.Network) (models.GlobalContext, error) {
	if !g.breaker.Allow() {
		return models.GlobalContext{}, g.rejected()
	}
	gc, err := g.next.GlobalContext(ctx, network)
	g.record(ctx, err)
	return gc, err
}

func (g *GuardedLedger) rejected() error {
	return &CollaboratorError{
		Service: "ledger",
		Message: "ledger unavailable: circuit open",
		Err:     sentinel.ErrUnavailable,
	}
}

// record ignores failures caused by the caller giving up.
func (g *GuardedLedger) record(ctx context.Context, err error) {
	if err == nil {
		if _, change := g.breaker.RecordSuccess(); change.Closed {
			g.logger.InfoContext(ctx, "ledger circuit closed", "breaker", g.breaker.Name())
		}
		return
	}
	if ctx.Err() != nil {
		return
	}
	if _, change := g.breaker.RecordFailure(); change.Opened {
		g.logger.WarnContext(ctx, "ledger circuit opened", "breaker", g.breaker.Name(), "error", err)
	}
}
