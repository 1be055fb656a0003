// Package ports declares the external collaborators of the proof module.
// Adapters live in internal/proof/adapters; tests use the gomock doubles in mocks.
package ports

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"attest/internal/proof/models"
	"attest/pkg/platform/audit"
)

// InventoryReader reads the wallet's identities and credentials. Identity
// attribute lists (AttributeListOf) are part of the returned inventory.
type InventoryReader interface {
	Inventory(ctx context.Context, walletID string) (models.Inventory, error)
}

// Ledger is the chain query surface.
type Ledger interface {
	// StatusOf returns the status of every requested verifiable credential id.
	// Ids the ledger does not know are absent from the result.
	StatusOf(ctx context.Context, ids []string) (map[string]models.CredentialStatus, error)
	GlobalContext(ctx context.Context, network models.Network) (models.GlobalContext, error)
}

// KeyDerivation derives commitment inputs from wallet keys. It never returns
// a partial input: bad parameters fail the call.
type KeyDerivation interface {
	DeriveCommitmentInput(ctx context.Context, params models.DerivationParams) (models.CommitmentInput, error)
}

// Prover runs the proving routine. Its error message is shown to the user.
type Prover interface {
	Prove(ctx context.Context, req models.ProofRequest, inputs []models.CommitmentInput, global models.GlobalContext) (string, error)
}

// ResultSink is the host's onSubmit/onReject surface. It is invoked exactly
// once per session.
type ResultSink interface {
	Deliver(ctx context.Context, outcome models.Outcome) error
}

// AuditPort emits audit events.
type AuditPort interface {
	Emit(ctx context.Context, event audit.Event) error
}
