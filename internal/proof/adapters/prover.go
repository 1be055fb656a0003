package adapters

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"attest/internal/proof/models"
	"attest/internal/proof/ports"
)

var _ ports.Prover = (*HTTPProver)(nil)

// HTTPProver submits proof requests to the proving service.
type HTTPProver struct {
	client jsonClient
}

func NewHTTPProver(baseURL string, timeout time.Duration, doer HTTPDoer) *HTTPProver {
	return &HTTPProver{client: newJSONClient("prover", baseURL, timeout, doer)}
}

type proveRequest struct {
	Request models.ProofRequest      `json:"request"`
	Inputs  []models.CommitmentInput `json:"inputs"`
	Global  models.GlobalContext     `json:"globalContext"`
}

type proveResponse struct {
	Proof string `json:"proof"`
}

func (p *HTTPProver) Prove(ctx context.Context, req models.ProofRequest, inputs []models.CommitmentInput, global models.GlobalContext) (string, error) {
	var resp proveResponse
	body := proveRequest{Request: req, Inputs: inputs, Global: global}
	if err := p.client.call(ctx, http.MethodPost, "/v1/proofs", body, &resp); err != nil {
		return "", err
	}
	if resp.Proof == "" {
		return "", &CollaboratorError{Service: p.client.service, Status: http.StatusOK, Err: fmt.Errorf("empty proof")}
	}
	return resp.Proof, nil
}
