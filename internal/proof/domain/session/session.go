// Package session is the proof request state machine. A Session is an
// explicit value: it is created per request, mutated only through its
// methods, persisted between host actions, and discarded on submit, reject
// or disposal.
//
//	loading ──► unsatisfiable ──► rejected
//	   │
//	   └──► selecting(0..N-1) ──► proving ──► submitted
//	              ▲    │             │
//	              │    └─► rejected  ▼
//	              └────────────── failed ──► proving (retry) | rejected
package session

import (
	"slices"
	"time"

	dErrors "attest/pkg/domain-errors"

	"attest/internal/proof/domain/attribute"
	"attest/internal/proof/domain/matcher"
	"attest/internal/proof/domain/statement"
	"attest/internal/proof/models"
)

// State is the orchestrator state.
type State string

const (
	StateLoading       State = "loading"
	StateUnsatisfiable State = "unsatisfiable"
	StateSelecting     State = "selecting"
	StateProving       State = "proving"
	StateFailed        State = "failed"
	StateSubmitted     State = "submitted"
	StateRejected      State = "rejected"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateSubmitted || s == StateRejected
}

// Step tells the caller what Continue did.
type Step int

const (
	// StepAdvanced moved to the next group.
	StepAdvanced Step = iota + 1
	// StepApprove means the last group was confirmed and proving should start.
	StepApprove
)

// Candidate is a viable credential as shown to the host.
type Candidate struct {
	ID       string               `json:"id"`
	Kind     models.QualifierKind `json:"kind"`
	Issuer   string               `json:"issuer"`
	Revealed attribute.Map        `json:"revealed,omitempty"`
}

// Group is the per-statement selection state.
type Group struct {
	Candidates  []Candidate         `json:"candidates"`
	Selection   string              `json:"selection"`
	Diagnostics matcher.Diagnostics `json:"diagnostics"`
}

// Host describes the requesting surface, for display and audit only.
type Host struct {
	URL      string `json:"url"`
	Browser  string `json:"browser,omitempty"`
	Platform string `json:"platform,omitempty"`
}

// Session is one proof request being answered.
type Session struct {
	ID         string                      `json:"id"`
	WalletID   string                      `json:"walletId"`
	Network    models.Network              `json:"network"`
	Challenge  string                      `json:"challenge"`
	Statements models.CredentialStatements `json:"statements"`
	Host       Host                        `json:"host"`

	State    State            `json:"state"`
	Active   int              `json:"active"`
	Groups   []Group          `json:"groups"`
	Statuses matcher.Statuses `json:"statuses,omitempty"`

	// Global is the network context fetched when the session was loaded.
	Global models.GlobalContext `json:"globalContext"`

	// Attempt increments each time proving starts; a proving result carrying
	// an older attempt is discarded.
	Attempt     int    `json:"attempt"`
	Proof       string `json:"proof,omitempty"`
	FailureCode string `json:"failureCode,omitempty"`
	Failure     string `json:"failure,omitempty"`
	// Notified is set once the result sink has been told the outcome.
	Notified bool `json:"notified"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Params are the inputs of a new session.
type Params struct {
	ID         string
	WalletID   string
	Network    models.Network
	Challenge  string
	Statements models.CredentialStatements
	Host       Host
	Now        time.Time
	TTL        time.Duration
}

// New creates a session in the loading state.
func New(p Params) *Session {
	return &Session{
		ID:         p.ID,
		WalletID:   p.WalletID,
		Network:    p.Network,
		Challenge:  p.Challenge,
		Statements: p.Statements,
		Host:       p.Host,
		State:      StateLoading,
		CreatedAt:  p.Now,
		UpdatedAt:  p.Now,
		ExpiresAt:  p.Now.Add(p.TTL),
	}
}

func invalidState(msg string) error {
	return dErrors.New(dErrors.CodeInvalidState, msg)
}

// IsExpired reports whether the session outlived its TTL at now.
func (s *Session) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Load leaves the loading state with the per-group matching results.
// Any group without a viable credential makes the session unsatisfiable;
// otherwise every group defaults to its first candidate.
func (s *Session) Load(results []matcher.Result, statuses matcher.Statuses, now time.Time) error {
	if s.State != StateLoading {
		return invalidState("session already loaded")
	}
	if len(results) != len(s.Statements) {
		return dErrors.New(dErrors.CodeInvariantViolation, "one matching result per credential statement is required")
	}
	s.Groups = make([]Group, len(results))
	satisfiable := true
	for i, r := range results {
		g := Group{Diagnostics: r.Diagnostics}
		revealed := statement.RevealedTags(s.Statements[i].Statement)
		for _, c := range r.Candidates {
			g.Candidates = append(g.Candidates, Candidate{
				ID:       c.ID,
				Kind:     c.Kind,
				Issuer:   c.Issuer,
				Revealed: pick(c.Attributes, revealed),
			})
		}
		if len(g.Candidates) == 0 {
			satisfiable = false
		} else {
			g.Selection = g.Candidates[0].ID
		}
		s.Groups[i] = g
	}
	s.Statuses = statuses
	s.Active = 0
	if satisfiable {
		s.State = StateSelecting
	} else {
		s.State = StateUnsatisfiable
	}
	s.UpdatedAt = now
	return nil
}

func pick(attrs attribute.Map, tags []string) attribute.Map {
	if len(tags) == 0 {
		return nil
	}
	out := make(attribute.Map, len(tags))
	for _, tag := range tags {
		if v, ok := attrs.Get(tag); ok {
			out[tag] = v
		}
	}
	return out
}

// Select chooses a credential for a group. Only identifiers offered as
// candidates are accepted. Selecting after a failed proving attempt returns
// the session to selecting, so approval re-validates the new choice.
func (s *Session) Select(group int, id string, now time.Time) error {
	if s.State != StateSelecting && s.State != StateFailed {
		return invalidState("selection is not possible in state " + string(s.State))
	}
	if group < 0 || group >= len(s.Groups) {
		return dErrors.New(dErrors.CodeNotFound, "credential statement not found")
	}
	if !slices.ContainsFunc(s.Groups[group].Candidates, func(c Candidate) bool { return c.ID == id }) {
		return dErrors.New(dErrors.CodeValidation, "credential is not viable for this statement")
	}
	s.Groups[group].Selection = id
	if s.State == StateFailed {
		s.State = StateSelecting
	}
	s.UpdatedAt = now
	return nil
}

// Continue confirms the active group. On the last group it reports StepApprove
// and the caller starts proving.
func (s *Session) Continue(now time.Time) (Step, error) {
	if s.State != StateSelecting && s.State != StateFailed {
		return 0, invalidState("continue is not possible in state " + string(s.State))
	}
	if s.Groups[s.Active].Selection == "" {
		return 0, dErrors.New(dErrors.CodeValidation, "no credential selected")
	}
	if s.Active == len(s.Groups)-1 {
		return StepApprove, nil
	}
	s.Active++
	s.State = StateSelecting
	s.UpdatedAt = now
	return StepAdvanced, nil
}

// Back returns to the previous group. Selections are kept.
func (s *Session) Back(now time.Time) error {
	if s.State != StateSelecting && s.State != StateFailed {
		return invalidState("back is not possible in state " + string(s.State))
	}
	if s.Active == 0 {
		return invalidState("already at the first credential statement")
	}
	s.Active--
	s.State = StateSelecting
	s.UpdatedAt = now
	return nil
}

// Selections returns the chosen identifier per group.
func (s *Session) Selections() []string {
	out := make([]string, len(s.Groups))
	for i, g := range s.Groups {
		out[i] = g.Selection
	}
	return out
}

// BeginProving moves to proving and returns the attempt number the result
// must carry. Only one proving call may be outstanding per session.
func (s *Session) BeginProving(now time.Time) (int, error) {
	switch s.State {
	case StateProving:
		return 0, dErrors.New(dErrors.CodeConflict, "proving already in progress")
	case StateSelecting, StateFailed:
	default:
		return 0, invalidState("approve is not possible in state " + string(s.State))
	}
	if s.Active != len(s.Groups)-1 {
		return 0, invalidState("approve is only possible on the last credential statement")
	}
	for _, g := range s.Groups {
		if g.Selection == "" {
			return 0, dErrors.New(dErrors.CodeValidation, "every credential statement needs a selected credential")
		}
	}
	s.State = StateProving
	s.Attempt++
	s.FailureCode, s.Failure = "", ""
	s.UpdatedAt = now
	return s.Attempt, nil
}

// current reports whether a proving result for attempt may still be applied.
func (s *Session) current(attempt int) error {
	if s.State != StateProving || attempt != s.Attempt {
		return dErrors.New(dErrors.CodeConflict, "proving result is no longer current")
	}
	return nil
}

// Succeed records the proof for attempt.
func (s *Session) Succeed(attempt int, proof string, now time.Time) error {
	if err := s.current(attempt); err != nil {
		return err
	}
	s.State = StateSubmitted
	s.Proof = proof
	s.UpdatedAt = now
	return nil
}

// Fail records a failed proving attempt. The message is kept verbatim and
// the session stays open for another approval.
func (s *Session) Fail(attempt int, code dErrors.Code, msg string, now time.Time) error {
	if err := s.current(attempt); err != nil {
		return err
	}
	s.State = StateFailed
	s.FailureCode = string(code)
	s.Failure = msg
	s.UpdatedAt = now
	return nil
}

// Reject ends the session on the user's request. Any in-flight proving
// result is discarded because the attempt no longer matches.
func (s *Session) Reject(reason string, now time.Time) error {
	if s.State.Terminal() {
		return invalidState("session already " + string(s.State))
	}
	s.State = StateRejected
	s.Attempt++
	s.FailureCode = "rejected"
	s.Failure = reason
	s.UpdatedAt = now
	return nil
}

// MarkNotified records that the outcome was delivered. It returns false if
// the session is not terminal or was already notified.
func (s *Session) MarkNotified() bool {
	if !s.State.Terminal() || s.Notified {
		return false
	}
	s.Notified = true
	return true
}
