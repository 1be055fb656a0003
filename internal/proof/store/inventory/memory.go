// Package inventory stores wallet inventories: identities with their
// attribute lists, account credentials and verifiable credentials.
package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"sync"

	"attest/internal/proof/models"
	"attest/internal/proof/ports"
)

var _ ports.InventoryReader = (*InMemory)(nil)

// InMemory keeps inventories in process. An unknown wallet has an empty
// inventory.
type InMemory struct {
	mu      sync.RWMutex
	wallets map[string]models.Inventory
}

func NewInMemory() *InMemory {
	return &InMemory{wallets: make(map[string]models.Inventory)}
}

// Seed is the on-disk seed format: inventories keyed by wallet id.
type Seed struct {
	Wallets map[string]models.Inventory `json:"wallets"`
}

// ReadSeedFile decodes a seed file.
func ReadSeedFile(path string) (Seed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("read inventory seed: %w", err)
	}
	var seed Seed
	if err := json.Unmarshal(raw, &seed); err != nil {
		return Seed{}, fmt.Errorf("decode inventory seed %s: %w", path, err)
	}
	for walletID, inv := range seed.Wallets {
		if seed.Wallets[walletID], err = normalize(inv); err != nil {
			return Seed{}, fmt.Errorf("inventory seed %s, wallet %s: %w", path, walletID, err)
		}
	}
	return seed, nil
}

// Put replaces a wallet's inventory. Account credential ids are stored
// lowercased; one that is not hex rejects the whole inventory.
func (s *InMemory) Put(_ context.Context, walletID string, inv models.Inventory) error {
	inv, err := normalize(inv)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallets[walletID] = inv
	return nil
}

func (s *InMemory) Inventory(_ context.Context, walletID string) (models.Inventory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.wallets[walletID]), nil
}

func clone(inv models.Inventory) models.Inventory {
	return models.Inventory{
		Identities:            slices.Clone(inv.Identities),
		Credentials:           slices.Clone(inv.Credentials),
		VerifiableCredentials: slices.Clone(inv.VerifiableCredentials),
	}
}
