package main

import (
	"context"
	"sort"
	"time"

	"attest/internal/proof/models"
	"attest/internal/proof/store/inventory"
	dErrors "attest/pkg/domain-errors"
)

const defaultSeedTimeout = 30 * time.Second

type inventoryWriter interface {
	Put(ctx context.Context, walletID string, inv models.Inventory) error
}

// atomicWriter is implemented by stores that can group writes in one
// transaction.
type atomicWriter interface {
	Atomically(ctx context.Context, fn func(ctx context.Context) error) error
}

// seedInventory writes every wallet of the seed file into store, in wallet id
// order, under a bounded context. Stores that support it take the whole seed
// in one transaction. It returns the number of wallets written.
func seedInventory(ctx context.Context, store inventoryWriter, path string, timeout time.Duration) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeTimeout, "inventory seeding aborted: context cancelled")
	}

	if timeout == 0 {
		timeout = defaultSeedTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	seed, err := inventory.ReadSeedFile(path)
	if err != nil {
		return 0, err
	}
	ids := make([]string, 0, len(seed.Wallets))
	for id := range seed.Wallets {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	write := func(ctx context.Context) error {
		for _, id := range ids {
			if err := store.Put(ctx, id, seed.Wallets[id]); err != nil {
				return err
			}
		}
		return nil
	}
	if atomic, ok := store.(atomicWriter); ok {
		err = atomic.Atomically(ctx, write)
	} else {
		err = write(ctx)
	}
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}
