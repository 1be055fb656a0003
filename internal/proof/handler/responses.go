package handler

import (
	"time"

	"attest/internal/proof/domain/attribute"
	"attest/internal/proof/domain/session"
	"attest/internal/proof/domain/statement"
	"attest/internal/proof/models"
)

// SessionResponse is the host's view of a proof session.
type SessionResponse struct {
	ID        string           `json:"id"`
	State     string           `json:"state"`
	Network   string           `json:"network"`
	Challenge string           `json:"challenge"`
	Host      HostResponse     `json:"host"`
	Active    int              `json:"active_group"`
	Groups    []GroupResponse  `json:"groups"`
	Attempt   int              `json:"attempt"`
	Proof     string           `json:"proof,omitempty"`
	Failure   *FailureResponse `json:"failure,omitempty"`
	ExpiresAt time.Time        `json:"expires_at"`
}

// HostResponse describes the requesting site.
type HostResponse struct {
	URL      string `json:"url"`
	Browser  string `json:"browser,omitempty"`
	Platform string `json:"platform,omitempty"`
}

// GroupResponse is one statement group with its candidates. Revealed lists
// the attribute tags disclosed in clear; Secret holds the statements proven
// without disclosure.
type GroupResponse struct {
	Kind        string                  `json:"kind"`
	Revealed    []string                `json:"revealed"`
	Secret      models.AtomicStatements `json:"secret"`
	Candidates  []CandidateResponse     `json:"candidates"`
	Selection   string                  `json:"selection,omitempty"`
	Diagnostics DiagnosticsResponse     `json:"diagnostics"`
}

// CandidateResponse is a viable credential.
type CandidateResponse struct {
	ID       string        `json:"id"`
	Kind     string        `json:"kind"`
	Issuer   string        `json:"issuer,omitempty"`
	Revealed attribute.Map `json:"revealed,omitempty"`
}

// DiagnosticsResponse tells "no credential from the issuer" apart from
// "credentials exist but none satisfies the statements".
type DiagnosticsResponse struct {
	HasIssuerEligible bool `json:"has_issuer_eligible"`
	HasSatisfying     bool `json:"has_satisfying"`
}

// FailureResponse carries the failure of the last proving attempt or the
// reject reason.
type FailureResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// FromSession converts a session to its HTTP view.
func FromSession(sess *session.Session) *SessionResponse {
	resp := &SessionResponse{
		ID:        sess.ID,
		State:     string(sess.State),
		Network:   sess.Network.String(),
		Challenge: sess.Challenge,
		Host: HostResponse{
			URL:      sess.Host.URL,
			Browser:  sess.Host.Browser,
			Platform: sess.Host.Platform,
		},
		Active:    sess.Active,
		Groups:    make([]GroupResponse, len(sess.Groups)),
		Attempt:   sess.Attempt,
		Proof:     sess.Proof,
		ExpiresAt: sess.ExpiresAt,
	}
	if sess.FailureCode != "" {
		resp.Failure = &FailureResponse{Code: sess.FailureCode, Message: sess.Failure}
	}
	for i, g := range sess.Groups {
		stmts := sess.Statements[i].Statement
		_, secret := statement.Split(stmts)
		group := GroupResponse{
			Kind:       string(sess.Statements[i].IDQualifier.Kind),
			Revealed:   statement.RevealedTags(stmts),
			Secret:     secret,
			Candidates: make([]CandidateResponse, len(g.Candidates)),
			Selection:  g.Selection,
			Diagnostics: DiagnosticsResponse{
				HasIssuerEligible: g.Diagnostics.HasIssuerEligible(),
				HasSatisfying:     g.Diagnostics.HasSatisfying(),
			},
		}
		for j, c := range g.Candidates {
			group.Candidates[j] = CandidateResponse{
				ID:       c.ID,
				Kind:     string(c.Kind),
				Issuer:   c.Issuer,
				Revealed: c.Revealed,
			}
		}
		resp.Groups[i] = group
	}
	return resp
}
