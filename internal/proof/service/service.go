// Package service runs proof sessions: it loads the wallet inventory and
// ledger state, drives the session state machine through host actions,
// launches proving and reports each session's outcome exactly once.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mssola/useragent"
	"golang.org/x/sync/errgroup"

	"attest/internal/proof/commitment"
	"attest/internal/proof/domain/matcher"
	"attest/internal/proof/domain/session"
	"attest/internal/proof/domain/statement"
	"attest/internal/proof/metrics"
	"attest/internal/proof/models"
	"attest/internal/proof/ports"
	"attest/internal/proof/tracer"
	dErrors "attest/pkg/domain-errors"
	"attest/pkg/platform/audit"
	"attest/pkg/platform/sentinel"
	psync "attest/pkg/platform/sync"
	"attest/pkg/requestcontext"
)

// Reject reasons set by the service itself.
const (
	ReasonRejected = "rejected"
	ReasonClosed   = "closed"
	ReasonExpired  = "expired"
)

const (
	defaultSessionTTL   = 15 * time.Minute
	defaultProveTimeout = 2 * time.Minute
)

// Store persists sessions between host actions. Update applies fn atomically
// and writes nothing when fn fails; fn may run more than once.
type Store interface {
	Create(ctx context.Context, sess *session.Session) error
	Get(ctx context.Context, id string) (*session.Session, error)
	Update(ctx context.Context, id string, fn func(*session.Session) error) (*session.Session, error)
	Delete(ctx context.Context, id string) error
	Expired(ctx context.Context, now time.Time) ([]string, error)
}

// Service orchestrates proof sessions.
type Service struct {
	store     Store
	inventory ports.InventoryReader
	ledger    ports.Ledger
	builder   *commitment.Builder
	prover    ports.Prover
	sink      ports.ResultSink
	auditor   ports.AuditPort
	network   models.Network

	ttl          time.Duration
	proveTimeout time.Duration
	clock        func() time.Time

	locks   *psync.ShardedMutex
	metrics *metrics.Metrics
	tracer  tracer.Tracer
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// Option configures the Service.
type Option func(*Service)

func WithAuditor(auditor ports.AuditPort) Option {
	return func(s *Service) {
		s.auditor = auditor
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithSessionTTL sets how long a session stays open.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithProveTimeout bounds one proving attempt, commitment building included.
func WithProveTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.proveTimeout = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

// Deps are the collaborators every Service needs.
type Deps struct {
	Store     Store
	Inventory ports.InventoryReader
	Ledger    ports.Ledger
	Builder   *commitment.Builder
	Prover    ports.Prover
	Sink      ports.ResultSink
}

// New creates a Service answering proof requests on network.
func New(deps Deps, network models.Network, opts ...Option) *Service {
	s := &Service{
		store:        deps.Store,
		inventory:    deps.Inventory,
		ledger:       deps.Ledger,
		builder:      deps.Builder,
		prover:       deps.Prover,
		sink:         deps.Sink,
		network:      network,
		ttl:          defaultSessionTTL,
		proveTimeout: defaultProveTimeout,
		clock:        time.Now,
		locks:        psync.NewShardedMutex(),
		tracer:       tracer.NewNoop(),
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartRequest is the host's proof request.
type StartRequest struct {
	Challenge  string
	Statements models.CredentialStatements
	// URL identifies the requesting site. It is only displayed and audited.
	URL string
}

// Start validates the request, reads the wallet inventory, fetches the
// ledger state the session needs and creates the session in selecting or
// unsatisfiable state.
func (s *Service) Start(ctx context.Context, req StartRequest) (sess *session.Session, err error) {
	walletID := requestcontext.WalletID(ctx)
	if walletID == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "wallet not authenticated")
	}
	if strings.TrimSpace(req.Challenge) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "challenge is required")
	}
	if err := statement.Validate(req.Statements); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, err.Error())
	}
	if req.URL != "" {
		if _, err := url.Parse(req.URL); err != nil {
			return nil, dErrors.New(dErrors.CodeValidation, "url is invalid")
		}
	}

	ctx, span := s.tracer.Start(ctx, tracer.SpanSessionStart,
		tracer.String(tracer.AttrNetwork, s.network.String()),
		tracer.Int(tracer.AttrGroups, len(req.Statements)),
	)
	defer func() { span.End(err) }()

	inv, err := s.inventory.Inventory(ctx, walletID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read wallet inventory")
	}
	snap := models.NewSnapshot(inv)

	statuses, global, err := s.loadLedgerState(ctx, req.Statements, snap)
	if err != nil {
		return nil, err
	}

	results, err := matcher.Match(s.network, req.Statements, snap, statuses)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvariantViolation, err.Error())
	}
	for i, r := range results {
		s.metrics.ObserveCandidates(string(req.Statements[i].IDQualifier.Kind), len(r.Candidates))
		if len(r.Malformed) > 0 {
			s.logger.WarnContext(ctx, "skipped wallet credentials with malformed identifiers",
				"wallet_id", walletID,
				"group", i,
				"credentials", r.Malformed,
			)
		}
	}

	now := s.clock()
	sess = session.New(session.Params{
		ID:         uuid.NewString(),
		WalletID:   walletID,
		Network:    s.network,
		Challenge:  req.Challenge,
		Statements: req.Statements,
		Host:       hostOf(req.URL, requestcontext.UserAgent(ctx)),
		Now:        now,
		TTL:        s.ttl,
	})
	sess.Global = global
	if err = sess.Load(results, statuses, now); err != nil {
		return nil, err
	}
	if err = s.store.Create(ctx, sess); err != nil {
		return nil, translate(err)
	}
	span.SetAttributes(
		tracer.String(tracer.AttrSessionID, sess.ID),
		tracer.String(tracer.AttrState, string(sess.State)),
	)
	s.metrics.IncrementLoaded(string(sess.State))

	action := audit.EventSessionStarted
	if sess.State == session.StateUnsatisfiable {
		action = audit.EventSessionUnsatisfiable
	}
	s.emit(ctx, eventFor(ctx, sess, action))
	s.logger.InfoContext(ctx, "proof session started",
		"session_id", sess.ID,
		"wallet_id", walletID,
		"state", sess.State,
		"groups", len(sess.Groups),
	)
	return sess, nil
}

// loadLedgerState fetches, in parallel, the status of every referenced
// verifiable credential in one batch and the network's global context.
func (s *Service) loadLedgerState(ctx context.Context, groups models.CredentialStatements, snap models.Snapshot) (matcher.Statuses, models.GlobalContext, error) {
	ids := matcher.ReferencedCredentials(s.network, groups, snap)

	var (
		statuses matcher.Statuses
		global   models.GlobalContext
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if len(ids) == 0 {
			return nil
		}
		var err error
		statuses, err = s.fetchStatuses(gctx, ids)
		return err
	})
	g.Go(func() error {
		var err error
		global, err = s.ledger.GlobalContext(gctx, s.network)
		if err != nil {
			return collaboratorFailure(err, "failed to fetch global context")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, models.GlobalContext{}, err
	}
	return statuses, global, nil
}

func (s *Service) fetchStatuses(ctx context.Context, ids []string) (statuses matcher.Statuses, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanStatusBatch, tracer.Int(tracer.AttrBatchSize, len(ids)))
	defer func() { span.End(err) }()

	s.metrics.ObserveStatusBatch(len(ids))
	found, err := s.ledger.StatusOf(ctx, ids)
	if err != nil {
		return nil, collaboratorFailure(err, "failed to fetch credential statuses")
	}
	return matcher.Statuses(found), nil
}

// Get returns the caller's session.
func (s *Service) Get(ctx context.Context, id string) (*session.Session, error) {
	s.locks.Lock(id)
	defer s.locks.Unlock(id)
	return s.current(ctx, id)
}

// current loads the caller's session and expires it when its TTL has passed.
// Callers hold the session lock.
func (s *Service) current(ctx context.Context, id string) (*session.Session, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	if sess.WalletID != requestcontext.WalletID(ctx) {
		return nil, errSessionNotFound()
	}
	if sess.IsExpired(s.clock()) {
		s.expireLocked(ctx, id)
		return nil, dErrors.New(dErrors.CodeNotFound, "proof session expired")
	}
	return sess, nil
}

// mutate applies a host action to the caller's session.
func (s *Service) mutate(ctx context.Context, id string, fn func(*session.Session, time.Time) error) (*session.Session, error) {
	s.locks.Lock(id)
	defer s.locks.Unlock(id)
	if _, err := s.current(ctx, id); err != nil {
		return nil, err
	}
	now := s.clock()
	sess, err := s.store.Update(ctx, id, func(sess *session.Session) error {
		return fn(sess, now)
	})
	if err != nil {
		return nil, translate(err)
	}
	return sess, nil
}

// Select chooses the credential answering group.
func (s *Service) Select(ctx context.Context, id string, group int, credentialID string) (*session.Session, error) {
	return s.mutate(ctx, id, func(sess *session.Session, now time.Time) error {
		return sess.Select(group, credentialID, now)
	})
}

// Continue confirms the active group. Confirming the last group approves.
func (s *Service) Continue(ctx context.Context, id string) (*session.Session, error) {
	var step session.Step
	sess, err := s.mutate(ctx, id, func(sess *session.Session, now time.Time) error {
		var err error
		step, err = sess.Continue(now)
		return err
	})
	if err != nil {
		return nil, err
	}
	if step == session.StepApprove {
		return s.Approve(ctx, id)
	}
	return sess, nil
}

// Back returns to the previous group.
func (s *Service) Back(ctx context.Context, id string) (*session.Session, error) {
	return s.mutate(ctx, id, func(sess *session.Session, now time.Time) error {
		return sess.Back(now)
	})
}

// Approve starts proving and waits for its result while ctx allows. When ctx
// ends first the session is returned in the proving state and the attempt
// keeps running; its result is applied only if the session is still current.
func (s *Service) Approve(ctx context.Context, id string) (*session.Session, error) {
	var attempt int
	sess, err := s.mutate(ctx, id, func(sess *session.Session, now time.Time) error {
		var err error
		attempt, err = sess.BeginProving(now)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "proving started", "session_id", id, "attempt", attempt)

	done := make(chan struct{})
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(done)
		detached := context.WithoutCancel(ctx)
		defer s.recoverProving(detached, sess, attempt)
		s.prove(detached, sess, attempt)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return sess, nil
	}
	return s.Get(ctx, id)
}

// prove builds the commitment inputs against a fresh inventory read, calls
// the prover and applies the result to the session if attempt is current.
func (s *Service) prove(ctx context.Context, sess *session.Session, attempt int) {
	started := s.clock()
	ctx, span := s.tracer.Start(ctx, tracer.SpanProve,
		tracer.String(tracer.AttrSessionID, sess.ID),
		tracer.Int(tracer.AttrAttempt, attempt),
	)
	proveCtx, cancel := context.WithTimeout(ctx, s.proveTimeout)
	defer cancel()
	proof, built, err := s.produce(proveCtx, sess)
	if err != nil {
		discarded := s.recordFailure(ctx, sess, attempt, err)
		span.SetAttributes(tracer.Bool(tracer.AttrDiscarded, discarded))
		span.End(err)
		return
	}
	discarded := s.recordProof(ctx, sess, attempt, proof, built)
	span.SetAttributes(tracer.Bool(tracer.AttrDiscarded, discarded))
	span.End(nil)
	s.metrics.ObserveProvingLatency(s.clock().Sub(started))
}

// recoverProving turns a panic in a proving attempt into a failed attempt so
// the session can be retried and the process keeps serving.
func (s *Service) recoverProving(ctx context.Context, sess *session.Session, attempt int) {
	r := recover()
	if r == nil {
		return
	}
	s.logger.ErrorContext(ctx, "proving attempt panicked",
		"session_id", sess.ID,
		"attempt", attempt,
		"panic", r,
		"stack", string(debug.Stack()),
	)
	s.recordFailure(ctx, sess, attempt, dErrors.New(dErrors.CodeInternal, fmt.Sprintf("proving aborted: %v", r)))
}

func (s *Service) produce(ctx context.Context, sess *session.Session) (string, []commitment.Built, error) {
	inv, err := s.inventory.Inventory(ctx, sess.WalletID)
	if err != nil {
		return "", nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read wallet inventory")
	}
	req, built, err := s.builder.Build(ctx, commitment.Request{
		Network:    sess.Network,
		Challenge:  sess.Challenge,
		Statements: sess.Statements,
		Selections: sess.Selections(),
		Fresh:      models.NewSnapshot(inv),
		Statuses:   sess.Statuses,
	})
	if err != nil {
		return "", nil, err
	}
	inputs := make([]models.CommitmentInput, len(built))
	for i, b := range built {
		inputs[i] = b.Input
	}
	proof, err := s.prover.Prove(ctx, req, inputs, sess.Global)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", nil, dErrors.Wrap(err, dErrors.CodeTimeout, "proving timed out")
		}
		return "", nil, dErrors.Wrap(err, dErrors.CodeProvingFailed, err.Error())
	}
	return proof, built, nil
}

// recordProof submits the session. It reports whether the result was discarded.
func (s *Service) recordProof(ctx context.Context, sess *session.Session, attempt int, proof string, built []commitment.Built) bool {
	s.locks.Lock(sess.ID)
	defer s.locks.Unlock(sess.ID)

	now := s.clock()
	final, claimed, err := s.finish(ctx, sess.ID, func(sess *session.Session) error {
		return sess.Succeed(attempt, proof, now)
	})
	if err != nil {
		s.discard(ctx, sess.ID, attempt, err)
		return true
	}
	s.metrics.IncrementOutcome(string(session.StateSubmitted))

	event := eventFor(ctx, final, audit.EventProofSubmitted)
	event.Decision = string(session.StateSubmitted)
	for _, b := range built {
		event.Fingerprints = append(event.Fingerprints, b.Fingerprint)
	}
	s.emit(ctx, event)
	s.logger.InfoContext(ctx, "proof submitted", "session_id", sess.ID, "attempt", attempt)
	if claimed {
		s.deliver(ctx, final)
	}
	return false
}

// recordFailure keeps the session open for another approval. It reports
// whether the result was discarded.
func (s *Service) recordFailure(ctx context.Context, sess *session.Session, attempt int, cause error) bool {
	s.locks.Lock(sess.ID)
	defer s.locks.Unlock(sess.ID)

	code, msg := dErrors.CodeOf(cause), cause.Error()
	now := s.clock()
	_, err := s.store.Update(ctx, sess.ID, func(sess *session.Session) error {
		return sess.Fail(attempt, code, msg, now)
	})
	if err != nil {
		s.discard(ctx, sess.ID, attempt, err)
		return true
	}
	s.metrics.IncrementOutcome(string(session.StateFailed))

	event := eventFor(ctx, sess, audit.EventProvingFailed)
	event.Decision = string(session.StateFailed)
	event.Reason = string(code)
	s.emit(ctx, event)
	s.logger.WarnContext(ctx, "proving failed",
		"session_id", sess.ID,
		"attempt", attempt,
		"code", code,
		"error", cause,
	)
	return false
}

func (s *Service) discard(ctx context.Context, id string, attempt int, err error) {
	s.metrics.IncrementOutcome("discarded")
	s.logger.InfoContext(ctx, "proving result discarded",
		"session_id", id,
		"attempt", attempt,
		"error", err,
	)
}

// Reject ends the session on the user's request.
func (s *Service) Reject(ctx context.Context, id, reason string) (*session.Session, error) {
	if reason == "" {
		reason = ReasonRejected
	}
	s.locks.Lock(id)
	defer s.locks.Unlock(id)
	if _, err := s.current(ctx, id); err != nil {
		return nil, err
	}
	return s.rejectLocked(ctx, id, reason)
}

func (s *Service) rejectLocked(ctx context.Context, id, reason string) (*session.Session, error) {
	now := s.clock()
	sess, claimed, err := s.finish(ctx, id, func(sess *session.Session) error {
		return sess.Reject(reason, now)
	})
	if err != nil {
		return nil, translate(err)
	}
	s.metrics.IncrementOutcome(string(session.StateRejected))

	event := eventFor(ctx, sess, audit.EventProofRejected)
	event.Decision = string(session.StateRejected)
	event.Reason = reason
	s.emit(ctx, event)
	s.logger.InfoContext(ctx, "proof session rejected", "session_id", id, "reason", reason)
	if claimed {
		s.deliver(ctx, sess)
	}
	return sess, nil
}

// Dispose tears the session down because the host surface was closed. An
// open session is rejected first; a proving attempt still in flight is
// discarded when it completes.
func (s *Service) Dispose(ctx context.Context, id string) error {
	s.locks.Lock(id)
	defer s.locks.Unlock(id)

	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return translate(err)
	}
	if sess.WalletID != requestcontext.WalletID(ctx) {
		return errSessionNotFound()
	}
	if !sess.State.Terminal() {
		if sess, err = s.rejectLocked(ctx, id, ReasonClosed); err != nil {
			return err
		}
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return translate(err)
	}
	s.emit(ctx, eventFor(ctx, sess, audit.EventSessionDisposed))
	return nil
}

// SweepExpired rejects and removes every session whose TTL has passed. It
// returns the number of sessions removed.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	ids, err := s.store.Expired(ctx, s.clock())
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		s.locks.Lock(id)
		s.expireLocked(ctx, id)
		s.locks.Unlock(id)
	}
	if len(ids) > 0 {
		s.logger.InfoContext(ctx, "expired proof sessions swept", "count", len(ids))
	}
	return len(ids), nil
}

// expireLocked rejects an expired open session with ReasonExpired and deletes
// it. Failures are logged; a later sweep retries.
func (s *Service) expireLocked(ctx context.Context, id string) {
	now := s.clock()
	sess, claimed, err := s.finish(ctx, id, func(sess *session.Session) error {
		if sess.State.Terminal() {
			return nil
		}
		return sess.Reject(ReasonExpired, now)
	})
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		// The record is gone but its expiry index entry may not be.
	case err != nil:
		s.logger.ErrorContext(ctx, "failed to expire proof session", "session_id", id, "error", err)
		return
	}
	if err == nil && claimed {
		s.metrics.IncrementOutcome(string(session.StateRejected))
		event := eventFor(ctx, sess, audit.EventProofRejected)
		event.Decision = string(session.StateRejected)
		event.Reason = ReasonExpired
		s.emit(ctx, event)
		s.deliver(ctx, sess)
	}
	if err := s.store.Delete(ctx, id); err != nil {
		s.logger.ErrorContext(ctx, "failed to delete expired proof session", "session_id", id, "error", err)
	}
}

// finish applies a terminal transition and claims the outcome delivery in the
// same write, so exactly one caller ever delivers it.
func (s *Service) finish(ctx context.Context, id string, fn func(*session.Session) error) (*session.Session, bool, error) {
	var claimed bool
	sess, err := s.store.Update(ctx, id, func(sess *session.Session) error {
		claimed = false
		if err := fn(sess); err != nil {
			return err
		}
		claimed = sess.MarkNotified()
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return sess, claimed, nil
}

func (s *Service) deliver(ctx context.Context, sess *session.Session) {
	outcome := models.Outcome{
		SessionID: sess.ID,
		WalletID:  sess.WalletID,
		Submitted: sess.State == session.StateSubmitted,
		Proof:     sess.Proof,
	}
	if !outcome.Submitted {
		outcome.Reason = sess.Failure
	}
	if err := s.sink.Deliver(ctx, outcome); err != nil {
		s.logger.ErrorContext(ctx, "failed to deliver proof session outcome",
			"session_id", sess.ID,
			"submitted", outcome.Submitted,
			"error", err,
		)
	}
}

// Drain waits for in-flight proving attempts to finish or ctx to end.
func (s *Service) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"action", event.Action,
			"session_id", event.SessionID,
			"error", err,
		)
	}
}

func eventFor(ctx context.Context, sess *session.Session, action audit.AuditEvent) audit.Event {
	return audit.Event{
		Action:          action,
		WalletID:        sess.WalletID,
		SessionID:       sess.ID,
		RequestID:       requestcontext.RequestID(ctx),
		RequestingParty: requestingParty(sess.Host.URL),
		GroupCount:      len(sess.Statements),
	}
}

func requestingParty(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func hostOf(rawURL, userAgent string) session.Host {
	host := session.Host{URL: rawURL}
	if userAgent == "" {
		return host
	}
	ua := useragent.New(userAgent)
	name, version := ua.Browser()
	host.Browser = strings.TrimSpace(name + " " + version)
	host.Platform = ua.OS()
	return host
}

func errSessionNotFound() error {
	return dErrors.New(dErrors.CodeNotFound, "proof session not found")
}

// translate maps store sentinels to domain errors. Domain errors pass through.
func translate(err error) error {
	var dErr *dErrors.Error
	switch {
	case errors.As(err, &dErr):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return errSessionNotFound()
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, "proof session was changed concurrently")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "proof session store failure")
	}
}

// collaboratorFailure keeps timeouts distinguishable from other outages.
func collaboratorFailure(err error, msg string) error {
	var t interface{ Timeout() bool }
	if errors.As(err, &t) && t.Timeout() {
		return dErrors.Wrap(err, dErrors.CodeTimeout, msg)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return dErrors.Wrap(err, dErrors.CodeTimeout, msg)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}
