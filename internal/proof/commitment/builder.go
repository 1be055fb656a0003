// Package commitment turns the chosen credentials of a session into the
// commitment inputs and request statements the prover expects.
//
// Selections are long-lived and the wallet can change under them, so every
// selection is re-resolved against a fresh inventory read and re-checked for
// issuer eligibility, status and predicate satisfaction before anything is
// derived. The builder does no cryptography itself.
package commitment

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/blake2b"

	dErrors "attest/pkg/domain-errors"

	"attest/internal/proof/domain/identifier"
	"attest/internal/proof/domain/matcher"
	"attest/internal/proof/domain/statement"
	"attest/internal/proof/models"
	"attest/internal/proof/ports"
	"attest/internal/proof/tracer"
)

// MsgIdentityNotFound is the failure message used when an account credential's
// identity is missing or not confirmed at build time.
const MsgIdentityNotFound = "identity not found for credential"

// Builder derives commitment inputs through the key-derivation service.
type Builder struct {
	keys   ports.KeyDerivation
	tracer tracer.Tracer
	logger *slog.Logger
}

// Option configures the Builder.
type Option func(*Builder)

func WithTracer(t tracer.Tracer) Option {
	return func(b *Builder) {
		b.tracer = t
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) {
		b.logger = logger
	}
}

// New creates a Builder.
func New(keys ports.KeyDerivation, opts ...Option) *Builder {
	b := &Builder{keys: keys, tracer: tracer.NewNoop()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Built is the per-group result of Build.
type Built struct {
	Input       models.CommitmentInput
	Statement   models.RequestStatement
	Fingerprint string
}

// Request is everything needed to build one session's inputs.
type Request struct {
	Network    models.Network
	Challenge  string
	Statements models.CredentialStatements
	Selections []string
	// Fresh is a new read of the wallet inventory, not the session snapshot.
	Fresh models.Snapshot
	// Statuses are the ledger statuses fetched once for the session.
	Statuses matcher.Statuses
}

// Build produces one input per group, in group order, and the assembled proof
// request. Stale selections fail with CodeStaleSelection and key-derivation
// failures with CodeProvingFailed carrying the underlying message.
func (b *Builder) Build(ctx context.Context, req Request) (models.ProofRequest, []Built, error) {
	if len(req.Selections) != len(req.Statements) {
		return models.ProofRequest{}, nil, dErrors.New(dErrors.CodeInvariantViolation, "one selection per credential statement is required")
	}
	ctx, span := b.tracer.Start(ctx, tracer.SpanCommitmentBuild, tracer.Int(tracer.AttrGroups, len(req.Statements)))
	var err error
	defer func() { span.End(err) }()

	built := make([]Built, len(req.Statements))
	proofReq := models.ProofRequest{
		Challenge:            req.Challenge,
		CredentialStatements: make([]models.RequestStatement, len(req.Statements)),
	}
	for i, group := range req.Statements {
		var one Built
		one, err = b.BuildInput(ctx, req.Network, group, req.Selections[i], req.Fresh, req.Statuses)
		if err != nil {
			return models.ProofRequest{}, nil, err
		}
		built[i] = one
		proofReq.CredentialStatements[i] = one.Statement
	}
	return proofReq, built, nil
}

// BuildInput builds the commitment input for one group and its chosen credential.
// A selection that does not parse fails with CodeInvariantViolation.
func (b *Builder) BuildInput(ctx context.Context, network models.Network, group models.CredentialStatement, selection string, fresh models.Snapshot, statuses matcher.Statuses) (Built, error) {
	if selection == "" {
		return Built{}, dErrors.New(dErrors.CodeValidation, "no credential selected")
	}
	var (
		params models.DerivationParams
		types  []string
		err    error
	)
	if group.IsAccount() {
		params, err = accountParams(network, group, selection, fresh)
	} else {
		params, types, err = web3Params(network, group, selection, fresh, statuses)
	}
	if err != nil {
		return Built{}, err
	}

	input, err := b.keys.DeriveCommitmentInput(ctx, params)
	if err != nil {
		if b.logger != nil {
			b.logger.WarnContext(ctx, "key derivation failed", "kind", params.Kind, "error", err)
		}
		return Built{}, dErrors.Wrap(err, dErrors.CodeProvingFailed, err.Error())
	}
	if input.Type == "" {
		input.Type = params.Kind
	}
	return Built{
		Input: input,
		Statement: models.RequestStatement{
			Statement: group.Statement,
			ID:        selection,
			Type:      types,
		},
		Fingerprint: Fingerprint(input),
	}, nil
}

func stale(format string, args ...any) error {
	return dErrors.New(dErrors.CodeStaleSelection, fmt.Sprintf(format, args...))
}

func accountParams(network models.Network, group models.CredentialStatement, selection string, fresh models.Snapshot) (models.DerivationParams, error) {
	ref, err := identifier.ParseAccount(selection)
	if err != nil {
		return models.DerivationParams{}, dErrors.Wrap(err, dErrors.CodeInvariantViolation, err.Error())
	}
	if ref.Network != network {
		return models.DerivationParams{}, stale("selected credential belongs to %s", ref.Network)
	}
	cred, ok := fresh.Credential(ref.CredID)
	if !ok {
		return models.DerivationParams{}, stale("selected credential is no longer in the wallet")
	}
	if !group.IDQualifier.AllowsProvider(cred.ProviderIndex) {
		return models.DerivationParams{}, stale("selected credential is not from an allowed identity provider")
	}
	identity, ok := fresh.Identity(cred.ProviderIndex, cred.IdentityIndex)
	if !ok || identity.Status != models.IdentityConfirmed {
		return models.DerivationParams{}, dErrors.New(dErrors.CodeStaleSelection, MsgIdentityNotFound)
	}
	satisfied, err := statement.SatisfiesAll(group.Statement, identity.Attributes)
	if err != nil {
		return models.DerivationParams{}, dErrors.Wrap(err, dErrors.CodeInvariantViolation, err.Error())
	}
	if !satisfied {
		return models.DerivationParams{}, stale("selected credential no longer satisfies the statement")
	}
	return models.DerivationParams{
		Kind: models.CommitmentAccount,
		Account: &models.AccountInputParams{
			ProviderIndex: cred.ProviderIndex,
			IdentityIndex: cred.IdentityIndex,
			CredNumber:    cred.CredNumber,
			Attributes:    identity.Attributes,
			Statements:    group.Statement,
		},
	}, nil
}

func web3Params(network models.Network, group models.CredentialStatement, selection string, fresh models.Snapshot, statuses matcher.Statuses) (models.DerivationParams, []string, error) {
	ref, err := identifier.ParseEntry(selection)
	if err != nil {
		return models.DerivationParams{}, nil, dErrors.Wrap(err, dErrors.CodeInvariantViolation, err.Error())
	}
	if ref.Network != network {
		return models.DerivationParams{}, nil, stale("selected credential belongs to %s", ref.Network)
	}
	if !group.IDQualifier.AllowsIssuer(ref.Contract) {
		return models.DerivationParams{}, nil, stale("selected credential is not from an allowed issuer")
	}
	var (
		vc    models.VerifiableCredential
		found bool
	)
	for _, candidate := range fresh.VerifiableCredentials() {
		id, err := identifier.OfVerifiableCredential(candidate)
		if err == nil && id == selection {
			vc, found = candidate, true
			break
		}
	}
	if !found {
		return models.DerivationParams{}, nil, stale("selected credential is no longer in the wallet")
	}
	if statuses[vc.ID] != models.CredentialActive {
		return models.DerivationParams{}, nil, stale("selected credential is not active")
	}
	satisfied, err := statement.SatisfiesAll(group.Statement, vc.CredentialSubject.Attributes)
	if err != nil {
		return models.DerivationParams{}, nil, dErrors.Wrap(err, dErrors.CodeInvariantViolation, err.Error())
	}
	if !satisfied {
		return models.DerivationParams{}, nil, stale("selected credential no longer satisfies the statement")
	}
	return models.DerivationParams{
		Kind: models.CommitmentWeb3Issuer,
		Web3: &models.Web3InputParams{
			Issuer:     ref.Contract,
			Index:      vc.Index,
			Subject:    vc.CredentialSubject,
			Randomness: vc.Randomness,
			Signature:  vc.Signature,
		},
	}, vc.Types, nil
}

// Fingerprint is the hex blake2b-256 digest of an input's kind and payload.
// Equal inputs always have equal fingerprints.
func Fingerprint(input models.CommitmentInput) string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(input.Type))
	h.Write([]byte{0})
	h.Write(input.Payload)
	return hex.EncodeToString(h.Sum(nil))
}
