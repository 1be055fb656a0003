package inventory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"attest/internal/proof/models"
	"attest/internal/proof/ports"
	"attest/pkg/platform/tx"
)

var _ ports.InventoryReader = (*Postgres)(nil)

// Postgres reads inventories from the tables in migrations/.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Inventory reads the three tables in one read-only transaction so the
// result is a consistent view.
func (p *Postgres) Inventory(ctx context.Context, walletID string) (models.Inventory, error) {
	var inv models.Inventory
	opts := &sql.TxOptions{ReadOnly: true, Isolation: sql.LevelRepeatableRead}
	err := tx.Run(ctx, p.db, opts, func(ctx context.Context, t *sql.Tx) error {
		var err error
		if inv.Identities, err = readIdentities(ctx, t, walletID); err != nil {
			return err
		}
		if inv.Credentials, err = readCredentials(ctx, t, walletID); err != nil {
			return err
		}
		inv.VerifiableCredentials, err = readVerifiableCredentials(ctx, t, walletID)
		return err
	})
	if err != nil {
		return models.Inventory{}, err
	}
	return inv, nil
}

// Atomically runs fn in one transaction. Put and Inventory calls made with
// the context passed to fn join it.
func (p *Postgres) Atomically(ctx context.Context, fn func(ctx context.Context) error) error {
	return tx.Run(ctx, p.db, nil, func(ctx context.Context, _ *sql.Tx) error {
		return fn(ctx)
	})
}

func readIdentities(ctx context.Context, q *sql.Tx, walletID string) ([]models.ConfirmedIdentity, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT provider_index, identity_index, status, attributes
		FROM identities
		WHERE wallet_id = $1
		ORDER BY provider_index, identity_index
	`, walletID)
	if err != nil {
		return nil, fmt.Errorf("query identities: %w", err)
	}
	defer rows.Close()

	var out []models.ConfirmedIdentity
	for rows.Next() {
		var (
			id    models.ConfirmedIdentity
			attrs []byte
		)
		if err := rows.Scan(&id.ProviderIndex, &id.Index, &id.Status, &attrs); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		if err := json.Unmarshal(attrs, &id.Attributes); err != nil {
			return nil, fmt.Errorf("decode attributes of identity %d/%d: %w", id.ProviderIndex, id.Index, err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func readCredentials(ctx context.Context, q *sql.Tx, walletID string) ([]models.WalletCredential, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT cred_id, address, provider_index, identity_index, cred_number
		FROM account_credentials
		WHERE wallet_id = $1
		ORDER BY cred_id
	`, walletID)
	if err != nil {
		return nil, fmt.Errorf("query account credentials: %w", err)
	}
	defer rows.Close()

	var out []models.WalletCredential
	for rows.Next() {
		var c models.WalletCredential
		if err := rows.Scan(&c.CredID, &c.Address, &c.ProviderIndex, &c.IdentityIndex, &c.CredNumber); err != nil {
			return nil, fmt.Errorf("scan account credential: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func readVerifiableCredentials(ctx context.Context, q *sql.Tx, walletID string) ([]models.VerifiableCredential, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, issuer, cred_index, types, subject, randomness, signature, status
		FROM verifiable_credentials
		WHERE wallet_id = $1
		ORDER BY id
	`, walletID)
	if err != nil {
		return nil, fmt.Errorf("query verifiable credentials: %w", err)
	}
	defer rows.Close()

	var out []models.VerifiableCredential
	for rows.Next() {
		var (
			vc                  models.VerifiableCredential
			types               pq.StringArray
			subject, randomness []byte
		)
		if err := rows.Scan(&vc.ID, &vc.Issuer, &vc.Index, &types, &subject, &randomness, &vc.Signature, &vc.Status); err != nil {
			return nil, fmt.Errorf("scan verifiable credential: %w", err)
		}
		vc.Types = types
		if err := json.Unmarshal(subject, &vc.CredentialSubject); err != nil {
			return nil, fmt.Errorf("decode subject of %s: %w", vc.ID, err)
		}
		if err := json.Unmarshal(randomness, &vc.Randomness); err != nil {
			return nil, fmt.Errorf("decode randomness of %s: %w", vc.ID, err)
		}
		out = append(out, vc)
	}
	return out, rows.Err()
}

// Put replaces a wallet's inventory in one transaction, with the same
// credential id rules as InMemory.Put.
func (p *Postgres) Put(ctx context.Context, walletID string, inv models.Inventory) error {
	inv, err := normalize(inv)
	if err != nil {
		return err
	}
	return tx.Run(ctx, p.db, nil, func(ctx context.Context, t *sql.Tx) error {
		return replace(ctx, t, walletID, inv)
	})
}

func replace(ctx context.Context, q *sql.Tx, walletID string, inv models.Inventory) error {
	for _, table := range []string{"identities", "account_credentials", "verifiable_credentials"} {
		if _, err := q.ExecContext(ctx, "DELETE FROM "+table+" WHERE wallet_id = $1", walletID); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for _, id := range inv.Identities {
		attrs, err := json.Marshal(id.Attributes)
		if err != nil {
			return fmt.Errorf("encode identity attributes: %w", err)
		}
		if _, err := q.ExecContext(ctx, `
			INSERT INTO identities (wallet_id, provider_index, identity_index, status, attributes)
			VALUES ($1, $2, $3, $4, $5::jsonb)
		`, walletID, id.ProviderIndex, id.Index, id.Status, string(attrs)); err != nil {
			return fmt.Errorf("insert identity: %w", err)
		}
	}

	for _, c := range inv.Credentials {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO account_credentials (wallet_id, cred_id, address, provider_index, identity_index, cred_number)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, walletID, c.CredID, c.Address, c.ProviderIndex, c.IdentityIndex, c.CredNumber); err != nil {
			return fmt.Errorf("insert account credential: %w", err)
		}
	}

	for _, vc := range inv.VerifiableCredentials {
		subject, err := json.Marshal(vc.CredentialSubject)
		if err != nil {
			return fmt.Errorf("encode subject of %s: %w", vc.ID, err)
		}
		randomness, err := json.Marshal(vc.Randomness)
		if err != nil {
			return fmt.Errorf("encode randomness of %s: %w", vc.ID, err)
		}
		types := vc.Types
		if types == nil {
			types = []string{}
		}
		if _, err := q.ExecContext(ctx, `
			INSERT INTO verifiable_credentials (wallet_id, id, issuer, cred_index, types, subject, randomness, signature, status)
			VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7::jsonb, $8, $9)
		`, walletID, vc.ID, vc.Issuer, vc.Index, pq.Array(types), string(subject), string(randomness), vc.Signature, vc.Status); err != nil {
			return fmt.Errorf("insert verifiable credential %s: %w", vc.ID, err)
		}
	}

	return nil
}
