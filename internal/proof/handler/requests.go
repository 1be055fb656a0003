package handler

import (
	"strings"

	"attest/internal/proof/models"
	"attest/internal/proof/service"
	dErrors "attest/pkg/domain-errors"
)

const (
	maxChallengeLength = 1024
	maxURLLength       = 2048
	maxReasonLength    = 256
	maxIDLength        = 512
)

// StartSessionRequest is the body of POST /v1/proof-sessions.
type StartSessionRequest struct {
	Challenge  string                      `json:"challenge"`
	Statements models.CredentialStatements `json:"statements"`
	URL        string                      `json:"url"`
}

func (r *StartSessionRequest) Normalize() {
	r.Challenge = strings.TrimSpace(r.Challenge)
	r.URL = strings.TrimSpace(r.URL)
}

// Validate checks the envelope only. Statement groups are validated by the
// service, which reports every problem at once.
func (r *StartSessionRequest) Validate() error {
	if r.Challenge == "" {
		return dErrors.New(dErrors.CodeValidation, "challenge is required")
	}
	if len(r.Challenge) > maxChallengeLength {
		return dErrors.New(dErrors.CodeValidation, "challenge is too long")
	}
	if len(r.URL) > maxURLLength {
		return dErrors.New(dErrors.CodeValidation, "url is too long")
	}
	if len(r.Statements) == 0 {
		return dErrors.New(dErrors.CodeValidation, "statements are required")
	}
	return nil
}

func (r *StartSessionRequest) toService() service.StartRequest {
	return service.StartRequest{
		Challenge:  r.Challenge,
		Statements: r.Statements,
		URL:        r.URL,
	}
}

// SelectRequest is the body of PUT /v1/proof-sessions/{id}/groups/{group}/selection.
type SelectRequest struct {
	ID string `json:"id"`
}

func (r *SelectRequest) Normalize() {
	r.ID = strings.TrimSpace(r.ID)
}

func (r *SelectRequest) Validate() error {
	if r.ID == "" {
		return dErrors.New(dErrors.CodeValidation, "id is required")
	}
	if len(r.ID) > maxIDLength {
		return dErrors.New(dErrors.CodeValidation, "id is too long")
	}
	return nil
}

// RejectRequest is the optional body of POST /v1/proof-sessions/{id}/reject.
type RejectRequest struct {
	Reason string `json:"reason"`
}

func (r *RejectRequest) Normalize() {
	r.Reason = strings.TrimSpace(r.Reason)
}

func (r *RejectRequest) Validate() error {
	if len(r.Reason) > maxReasonLength {
		return dErrors.New(dErrors.CodeValidation, "reason is too long")
	}
	return nil
}
