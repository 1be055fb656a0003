package adapters

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"attest/internal/proof/models"
	"attest/internal/proof/ports"
)

var _ ports.KeyDerivation = (*HTTPKeyDerivation)(nil)

// HTTPKeyDerivation calls the wallet's key service.
type HTTPKeyDerivation struct {
	client jsonClient
}

func NewHTTPKeyDerivation(baseURL string, timeout time.Duration, doer HTTPDoer) *HTTPKeyDerivation {
	return &HTTPKeyDerivation{client: newJSONClient("key derivation", baseURL, timeout, doer)}
}

// DeriveCommitmentInput returns the service's input. A response whose kind
// differs from the request is rejected rather than passed on.
func (k *HTTPKeyDerivation) DeriveCommitmentInput(ctx context.Context, params models.DerivationParams) (models.CommitmentInput, error) {
	var input models.CommitmentInput
	if err := k.client.call(ctx, http.MethodPost, "/v1/commitment-inputs", params, &input); err != nil {
		return models.CommitmentInput{}, err
	}
	if input.Type != params.Kind || len(input.Payload) == 0 {
		return models.CommitmentInput{}, &CollaboratorError{
			Service: k.client.service,
			Status:  http.StatusOK,
			Err:     fmt.Errorf("incomplete commitment input of type %q", input.Type),
		}
	}
	return input, nil
}
