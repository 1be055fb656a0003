package inventory

import (
	"fmt"

	"attest/internal/proof/domain/identifier"
	"attest/internal/proof/models"
)

// normalize lowercases account credential ids and rejects an inventory holding
// one that could not be resolved to an identifier and back.
func normalize(inv models.Inventory) (models.Inventory, error) {
	out := clone(inv)
	for i, c := range out.Credentials {
		credID, err := identifier.NormalizeCredID(c.CredID)
		if err != nil {
			return models.Inventory{}, fmt.Errorf("account credential %d: %w", i, err)
		}
		out.Credentials[i].CredID = credID
	}
	return out, nil
}
