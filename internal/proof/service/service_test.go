package service

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"attest/internal/proof/commitment"
	"attest/internal/proof/domain/attribute"
	"attest/internal/proof/domain/identifier"
	"attest/internal/proof/domain/session"
	"attest/internal/proof/models"
	"attest/internal/proof/ports/mocks"
	"attest/internal/proof/store/sessions"
	dErrors "attest/pkg/domain-errors"
	"attest/pkg/platform/audit"
	"attest/pkg/platform/sentinel"
	"attest/pkg/requestcontext"
)

const (
	walletID = "wallet-1"
	network  = models.NetworkTestnet
	holder   = "0a0b"
)

var (
	registry = models.ContractAddress{Index: 5463}
	unknown  = models.ContractAddress{Index: 7}
	t0       = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	global   = models.GlobalContext{Network: network, Value: json.RawMessage(`{"onChainCommitmentKey":"aa"}`)}
)

type ServiceSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	inventory *mocks.MockInventoryReader
	ledger    *mocks.MockLedger
	keys      *mocks.MockKeyDerivation
	prover    *mocks.MockProver
	sink      *mocks.MockResultSink
	recorder  *audit.Recorder
	store     *sessions.InMemory
	service   *Service

	mu  sync.Mutex
	now time.Time
	ctx context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.inventory = mocks.NewMockInventoryReader(s.ctrl)
	s.ledger = mocks.NewMockLedger(s.ctrl)
	s.keys = mocks.NewMockKeyDerivation(s.ctrl)
	s.prover = mocks.NewMockProver(s.ctrl)
	s.sink = mocks.NewMockResultSink(s.ctrl)
	s.recorder = audit.NewRecorder()
	s.store = sessions.NewInMemory()
	s.now = t0
	s.ctx = requestcontext.WithWalletID(context.Background(), walletID)

	s.service = New(Deps{
		Store:     s.store,
		Inventory: s.inventory,
		Ledger:    s.ledger,
		Builder:   commitment.New(s.keys),
		Prover:    s.prover,
		Sink:      s.sink,
	}, network,
		WithAuditor(s.recorder),
		WithSessionTTL(time.Minute),
		WithClock(s.clock),
	)
}

func (s *ServiceSuite) SetupSubTest() {
	s.SetupTest()
}

func (s *ServiceSuite) TearDownTest() {
	s.Require().NoError(s.service.Drain(context.Background()))
	s.ctrl.Finish()
}

func (s *ServiceSuite) clock() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *ServiceSuite) advance(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = s.now.Add(d)
}

func vcID() string { return identifier.ForEntry(network, registry, holder) }

func account(credID string) string { return identifier.ForAccount(network, credID) }

func wallet(dob string) models.Inventory {
	return models.Inventory{
		Identities: []models.ConfirmedIdentity{{
			ProviderIndex: 0, Index: 3, Status: models.IdentityConfirmed,
			Attributes: attribute.Strings(map[string]string{"firstName": "John", "dob": dob}),
		}},
		Credentials: []models.WalletCredential{
			{Address: "addr-2", ProviderIndex: 0, IdentityIndex: 3, CredID: "d00d", CredNumber: 1},
			{Address: "addr-1", ProviderIndex: 0, IdentityIndex: 3, CredID: "c0ffee", CredNumber: 0},
		},
		VerifiableCredentials: []models.VerifiableCredential{{
			ID:     vcID(),
			Issuer: identifier.ForIssuer(network, registry),
			Index:  11,
			Types:  []string{"VerifiableCredential", "ConcordiumVerifiableCredential"},
			CredentialSubject: models.CredentialSubject{
				ID:         identifier.ForSubject(network, holder),
				Attributes: attribute.Map{"degree": attribute.Int64(1)},
			},
			Randomness: map[string]string{"degree": "r"},
			Signature:  "sig",
		}},
	}
}

func accountGroup(stmts ...models.AtomicStatement) models.CredentialStatement {
	return models.CredentialStatement{
		IDQualifier: models.IDQualifier{Kind: models.QualifierCred, Providers: []uint32{0}},
		Statement:   stmts,
	}
}

func web3Group(issuer models.ContractAddress) models.CredentialStatement {
	return models.CredentialStatement{
		IDQualifier: models.IDQualifier{Kind: models.QualifierSCI, Issuers: []models.ContractAddress{issuer}},
		Statement: models.AtomicStatements{
			models.AttributeInSet{AttributeTag: "degree", Set: []attribute.Value{attribute.String("1")}},
		},
	}
}

func revealFirstName() models.AtomicStatement {
	return models.RevealAttribute{AttributeTag: "firstName"}
}

func dobBetween() models.AtomicStatement {
	return models.AttributeInRange{
		AttributeTag: "dob",
		Lower:        attribute.String("19800101"),
		Upper:        attribute.String("20061231"),
	}
}

func request(groups ...models.CredentialStatement) StartRequest {
	return StartRequest{Challenge: "challenge", Statements: groups, URL: "https://shop.example.com/checkout?step=2"}
}

func (s *ServiceSuite) expectInventory(inv models.Inventory) {
	s.inventory.EXPECT().Inventory(gomock.Any(), walletID).Return(inv, nil).AnyTimes()
}

func (s *ServiceSuite) expectGlobal() {
	s.ledger.EXPECT().GlobalContext(gomock.Any(), network).Return(global, nil).AnyTimes()
}

// expectDerivation echoes the derivation parameters back as the input payload.
func (s *ServiceSuite) expectDerivation() {
	s.keys.EXPECT().DeriveCommitmentInput(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, p models.DerivationParams) (models.CommitmentInput, error) {
			raw, err := json.Marshal(p)
			s.Require().NoError(err)
			return models.CommitmentInput{Type: p.Kind, Payload: raw}, nil
		}).AnyTimes()
}

func (s *ServiceSuite) start(req StartRequest) *session.Session {
	sess, err := s.service.Start(s.ctx, req)
	s.Require().NoError(err)
	return sess
}

func (s *ServiceSuite) requireCode(err error, code dErrors.Code) {
	s.Require().Error(err)
	s.Equal(code, dErrors.CodeOf(err), err.Error())
}

func (s *ServiceSuite) TestStart() {
	s.Run("single reveal group defaults to the first eligible credential", func() {
		s.expectInventory(wallet("19990101"))
		s.expectGlobal()

		sess := s.start(request(accountGroup(revealFirstName())))

		s.Equal(session.StateSelecting, sess.State)
		s.Equal(account("c0ffee"), sess.Groups[0].Selection)
		s.Len(sess.Groups[0].Candidates, 2)
		s.Equal("John", sess.Groups[0].Candidates[0].Revealed["firstName"].String())
		s.Equal(global, sess.Global)
		s.Equal(t0.Add(time.Minute), sess.ExpiresAt)

		events := s.recorder.Events()
		s.Require().Len(events, 1)
		s.Equal(audit.EventSessionStarted, events[0].Action)
		s.Equal("shop.example.com", events[0].RequestingParty)
		s.Equal(1, events[0].GroupCount)
	})

	s.Run("fetches statuses once for credentials shared by groups", func() {
		s.expectInventory(wallet("19990101"))
		s.expectGlobal()
		s.ledger.EXPECT().StatusOf(gomock.Any(), []string{vcID()}).
			Return(map[string]models.CredentialStatus{vcID(): models.CredentialActive}, nil).
			Times(1)

		sess := s.start(request(web3Group(registry), web3Group(registry)))

		s.Equal(session.StateSelecting, sess.State)
		s.Equal([]string{vcID(), vcID()}, sess.Selections())
		s.Equal(models.CredentialActive, sess.Statuses[vcID()])
	})

	s.Run("revoked credentials are never offered", func() {
		s.expectInventory(wallet("19990101"))
		s.expectGlobal()
		s.ledger.EXPECT().StatusOf(gomock.Any(), gomock.Any()).
			Return(map[string]models.CredentialStatus{vcID(): models.CredentialRevoked}, nil)

		sess := s.start(request(web3Group(registry)))

		s.Equal(session.StateUnsatisfiable, sess.State)
		s.False(sess.Groups[0].Diagnostics.HasIssuerEligible())
		s.Empty(sess.Groups[0].Candidates)
	})

	s.Run("credentials issued on another network are not offered", func() {
		inv := wallet("19990101")
		foreign := inv.VerifiableCredentials[0]
		foreign.ID = identifier.ForEntry(models.NetworkMainnet, registry, holder)
		foreign.Issuer = identifier.ForIssuer(models.NetworkMainnet, registry)
		foreign.CredentialSubject.ID = identifier.ForSubject(models.NetworkMainnet, holder)
		inv.VerifiableCredentials = []models.VerifiableCredential{foreign}
		s.expectInventory(inv)
		s.expectGlobal()

		sess := s.start(request(web3Group(registry)))

		s.Equal(session.StateUnsatisfiable, sess.State)
		s.Empty(sess.Groups[0].Candidates)
		s.Empty(sess.Selections()[0])
	})

	s.Run("wallet records with malformed identifiers are skipped", func() {
		inv := wallet("19990101")
		inv.Credentials = append(inv.Credentials, models.WalletCredential{ProviderIndex: 0, IdentityIndex: 3, CredID: "D00D"})
		inv.VerifiableCredentials = append(inv.VerifiableCredentials, models.VerifiableCredential{
			ID: "broken", Issuer: "did:ccd:testnet:idp:0",
		})
		s.expectInventory(inv)
		s.expectGlobal()
		s.expectDerivation()
		s.ledger.EXPECT().StatusOf(gomock.Any(), []string{vcID()}).
			Return(map[string]models.CredentialStatus{vcID(): models.CredentialActive}, nil)

		sess := s.start(request(accountGroup(revealFirstName()), web3Group(registry)))
		s.Equal(session.StateSelecting, sess.State)
		s.Equal([]string{account("c0ffee"), vcID()}, sess.Selections())
		s.Len(sess.Groups[0].Candidates, 2)

		s.prover.EXPECT().Prove(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return("proof", nil)
		s.sink.EXPECT().Deliver(gomock.Any(), gomock.Any()).Return(nil).Times(1)
		_, err := s.service.Continue(s.ctx, sess.ID)
		s.Require().NoError(err)
		done, err := s.service.Continue(s.ctx, sess.ID)
		s.Require().NoError(err)
		s.Equal(session.StateSubmitted, done.State)
	})

	s.Run("records the host browser and platform", func() {
		s.expectInventory(wallet("19990101"))
		s.expectGlobal()
		ctx := requestcontext.WithClientMetadata(s.ctx, "10.0.0.1",
			"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")

		sess, err := s.service.Start(ctx, request(accountGroup(revealFirstName())))
		s.Require().NoError(err)
		s.Equal("https://shop.example.com/checkout?step=2", sess.Host.URL)
		s.Contains(sess.Host.Browser, "Chrome")
		s.NotEmpty(sess.Host.Platform)
	})

	s.Run("rejects invalid requests before reading the wallet", func() {
		_, err := s.service.Start(s.ctx, StartRequest{Statements: models.CredentialStatements{accountGroup(revealFirstName())}})
		s.requireCode(err, dErrors.CodeValidation)

		_, err = s.service.Start(s.ctx, StartRequest{Challenge: "c"})
		s.requireCode(err, dErrors.CodeValidation)

		_, err = s.service.Start(s.ctx, request(accountGroup()))
		s.requireCode(err, dErrors.CodeValidation)
	})

	s.Run("requires an authenticated wallet", func() {
		_, err := s.service.Start(context.Background(), request(accountGroup(revealFirstName())))
		s.requireCode(err, dErrors.CodeUnauthorized)
	})

	s.Run("ledger outage fails the start", func() {
		s.expectInventory(wallet("19990101"))
		s.ledger.EXPECT().GlobalContext(gomock.Any(), network).Return(models.GlobalContext{}, errors.New("connection refused"))

		_, err := s.service.Start(s.ctx, request(accountGroup(revealFirstName())))
		s.requireCode(err, dErrors.CodeInternal)
	})

	s.Run("ledger timeout is reported as such", func() {
		s.expectInventory(wallet("19990101"))
		s.ledger.EXPECT().GlobalContext(gomock.Any(), network).Return(models.GlobalContext{}, context.DeadlineExceeded)

		_, err := s.service.Start(s.ctx, request(accountGroup(revealFirstName())))
		s.requireCode(err, dErrors.CodeTimeout)
	})
}

func (s *ServiceSuite) TestRangeStatement() {
	s.Run("birth date inside the range is viable", func() {
		s.expectInventory(wallet("19990101"))
		s.expectGlobal()

		sess := s.start(request(accountGroup(dobBetween())))
		s.Equal(session.StateSelecting, sess.State)
	})

	s.Run("birth date outside the range excludes the credential", func() {
		s.expectInventory(wallet("20100101"))
		s.expectGlobal()

		sess := s.start(request(accountGroup(dobBetween())))
		s.Equal(session.StateUnsatisfiable, sess.State)
		s.True(sess.Groups[0].Diagnostics.HasIssuerEligible())
		s.False(sess.Groups[0].Diagnostics.HasSatisfying())
	})
}

func (s *ServiceSuite) TestUnsatisfiable() {
	s.expectInventory(wallet("19990101"))
	s.expectGlobal()
	sess := s.start(request(accountGroup(revealFirstName()), web3Group(unknown)))

	s.Equal(session.StateUnsatisfiable, sess.State)
	s.False(sess.Groups[1].Diagnostics.HasIssuerEligible())

	_, err := s.service.Approve(s.ctx, sess.ID)
	s.requireCode(err, dErrors.CodeInvalidState)
	_, err = s.service.Continue(s.ctx, sess.ID)
	s.requireCode(err, dErrors.CodeInvalidState)

	s.sink.EXPECT().Deliver(gomock.Any(), models.Outcome{
		SessionID: sess.ID,
		WalletID:  walletID,
		Reason:    ReasonRejected,
	}).Return(nil).Times(1)

	rejected, err := s.service.Reject(s.ctx, sess.ID, "")
	s.Require().NoError(err)
	s.Equal(session.StateRejected, rejected.State)

	_, err = s.service.Reject(s.ctx, sess.ID, "")
	s.requireCode(err, dErrors.CodeInvalidState)

	s.Equal([]audit.AuditEvent{audit.EventSessionUnsatisfiable, audit.EventProofRejected}, s.recorder.Actions())
}

func (s *ServiceSuite) TestApprove() {
	s.Run("single group continues straight to proving and submits", func() {
		s.expectInventory(wallet("19990101"))
		s.expectGlobal()
		s.expectDerivation()
		sess := s.start(request(accountGroup(revealFirstName())))

		s.prover.EXPECT().Prove(gomock.Any(), gomock.Any(), gomock.Any(), global).DoAndReturn(
			func(_ context.Context, req models.ProofRequest, inputs []models.CommitmentInput, _ models.GlobalContext) (string, error) {
				s.Equal("challenge", req.Challenge)
				s.Require().Len(req.CredentialStatements, 1)
				s.Equal(account("c0ffee"), req.CredentialStatements[0].ID)
				s.Require().Len(inputs, 1)
				s.Equal(models.CommitmentAccount, inputs[0].Type)
				return "proof-1", nil
			})
		s.sink.EXPECT().Deliver(gomock.Any(), models.Outcome{
			SessionID: sess.ID,
			WalletID:  walletID,
			Submitted: true,
			Proof:     "proof-1",
		}).Return(nil).Times(1)

		done, err := s.service.Continue(s.ctx, sess.ID)
		s.Require().NoError(err)
		s.Equal(session.StateSubmitted, done.State)
		s.Equal("proof-1", done.Proof)

		events := s.recorder.Events()
		s.Require().Len(events, 2)
		s.Equal(audit.EventProofSubmitted, events[1].Action)
		s.Len(events[1].Fingerprints, 1)
	})

	s.Run("prover failure keeps the message and allows a retry", func() {
		s.expectInventory(wallet("19990101"))
		s.expectGlobal()
		s.expectDerivation()
		sess := s.start(request(accountGroup(revealFirstName())))

		gomock.InOrder(
			s.prover.EXPECT().Prove(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
				Return("", errors.New("commitment key mismatch")),
			s.prover.EXPECT().Prove(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
				Return("proof-2", nil),
		)

		failed, err := s.service.Approve(s.ctx, sess.ID)
		s.Require().NoError(err)
		s.Equal(session.StateFailed, failed.State)
		s.Equal("commitment key mismatch", failed.Failure)
		s.Equal(string(dErrors.CodeProvingFailed), failed.FailureCode)

		s.sink.EXPECT().Deliver(gomock.Any(), gomock.Any()).Return(nil).Times(1)
		done, err := s.service.Approve(s.ctx, sess.ID)
		s.Require().NoError(err)
		s.Equal(session.StateSubmitted, done.State)
		s.Equal(2, done.Attempt)
		s.Contains(s.recorder.Actions(), audit.EventProvingFailed)
	})

	s.Run("stale selection fails without deriving keys", func() {
		s.expectGlobal()
		gomock.InOrder(
			s.inventory.EXPECT().Inventory(gomock.Any(), walletID).Return(wallet("19990101"), nil),
			s.inventory.EXPECT().Inventory(gomock.Any(), walletID).Return(models.Inventory{}, nil),
		)
		sess := s.start(request(accountGroup(revealFirstName())))

		failed, err := s.service.Approve(s.ctx, sess.ID)
		s.Require().NoError(err)
		s.Equal(session.StateFailed, failed.State)
		s.Equal(string(dErrors.CodeStaleSelection), failed.FailureCode)
		s.NotEmpty(failed.Failure)
	})

	s.Run("key derivation failure surfaces its message", func() {
		s.expectInventory(wallet("19990101"))
		s.expectGlobal()
		s.keys.EXPECT().DeriveCommitmentInput(gomock.Any(), gomock.Any()).
			Return(models.CommitmentInput{}, errors.New("seed phrase locked"))
		sess := s.start(request(accountGroup(revealFirstName())))

		failed, err := s.service.Approve(s.ctx, sess.ID)
		s.Require().NoError(err)
		s.Equal(session.StateFailed, failed.State)
		s.Equal("seed phrase locked", failed.Failure)
	})

	s.Run("a panicking attempt fails instead of taking the process down", func() {
		s.expectInventory(wallet("19990101"))
		s.expectGlobal()
		s.expectDerivation()
		sess := s.start(request(accountGroup(revealFirstName())))
		s.prover.EXPECT().Prove(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
			func(context.Context, models.ProofRequest, []models.CommitmentInput, models.GlobalContext) (string, error) {
				panic("prover state corrupt")
			})

		failed, err := s.service.Approve(s.ctx, sess.ID)
		s.Require().NoError(err)
		s.Equal(session.StateFailed, failed.State)
		s.Equal(string(dErrors.CodeInternal), failed.FailureCode)
		s.Contains(failed.Failure, "prover state corrupt")
		s.Contains(s.recorder.Actions(), audit.EventProvingFailed)
	})

	s.Run("approve is only possible on the last group", func() {
		s.expectInventory(wallet("19990101"))
		s.expectGlobal()
		sess := s.start(request(accountGroup(revealFirstName()), accountGroup(dobBetween())))

		_, err := s.service.Approve(s.ctx, sess.ID)
		s.requireCode(err, dErrors.CodeInvalidState)
	})
}

// blockProver makes the next Prove call wait until the returned channel is closed.
func (s *ServiceSuite) blockProver(proof string) (started <-chan struct{}, release chan<- struct{}) {
	startedCh := make(chan struct{})
	releaseCh := make(chan struct{})
	s.prover.EXPECT().Prove(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, models.ProofRequest, []models.CommitmentInput, models.GlobalContext) (string, error) {
			close(startedCh)
			<-releaseCh
			return proof, nil
		})
	return startedCh, releaseCh
}

// approveDetached approves with a request context that is already gone, so
// the call returns while proving is still in flight.
func (s *ServiceSuite) approveDetached(id string) *session.Session {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	sess, err := s.service.Approve(ctx, id)
	s.Require().NoError(err)
	return sess
}

func (s *ServiceSuite) TestInFlightProving() {
	s.Run("second approval while proving is refused", func() {
		s.expectInventory(wallet("19990101"))
		s.expectGlobal()
		s.expectDerivation()
		sess := s.start(request(accountGroup(revealFirstName())))
		started, release := s.blockProver("proof-1")
		s.sink.EXPECT().Deliver(gomock.Any(), gomock.Any()).Return(nil).Times(1)

		proving := s.approveDetached(sess.ID)
		s.Equal(session.StateProving, proving.State)
		<-started

		_, err := s.service.Approve(s.ctx, sess.ID)
		s.requireCode(err, dErrors.CodeConflict)

		close(release)
		s.Require().NoError(s.service.Drain(context.Background()))
		done, err := s.service.Get(s.ctx, sess.ID)
		s.Require().NoError(err)
		s.Equal(session.StateSubmitted, done.State)
	})

	s.Run("rejecting while proving discards the proof", func() {
		s.expectInventory(wallet("19990101"))
		s.expectGlobal()
		s.expectDerivation()
		sess := s.start(request(accountGroup(revealFirstName())))
		started, release := s.blockProver("late-proof")
		s.sink.EXPECT().Deliver(gomock.Any(), models.Outcome{
			SessionID: sess.ID,
			WalletID:  walletID,
			Reason:    "user cancelled",
		}).Return(nil).Times(1)

		s.approveDetached(sess.ID)
		<-started
		rejected, err := s.service.Reject(s.ctx, sess.ID, "user cancelled")
		s.Require().NoError(err)
		s.Equal(session.StateRejected, rejected.State)

		close(release)
		s.Require().NoError(s.service.Drain(context.Background()))
		after, err := s.service.Get(s.ctx, sess.ID)
		s.Require().NoError(err)
		s.Equal(session.StateRejected, after.State)
		s.Empty(after.Proof)
		s.NotContains(s.recorder.Actions(), audit.EventProofSubmitted)
	})

	s.Run("disposing while proving drops the result", func() {
		s.expectInventory(wallet("19990101"))
		s.expectGlobal()
		s.expectDerivation()
		sess := s.start(request(accountGroup(revealFirstName())))
		started, release := s.blockProver("late-proof")
		s.sink.EXPECT().Deliver(gomock.Any(), models.Outcome{
			SessionID: sess.ID,
			WalletID:  walletID,
			Reason:    ReasonClosed,
		}).Return(nil).Times(1)

		s.approveDetached(sess.ID)
		<-started
		s.Require().NoError(s.service.Dispose(s.ctx, sess.ID))

		close(release)
		s.Require().NoError(s.service.Drain(context.Background()))
		_, err := s.service.Get(s.ctx, sess.ID)
		s.requireCode(err, dErrors.CodeNotFound)
		s.Contains(s.recorder.Actions(), audit.EventSessionDisposed)
	})
}

func (s *ServiceSuite) TestNavigation() {
	s.Run("continue and back keep every selection", func() {
		s.expectInventory(wallet("19990101"))
		s.expectGlobal()
		sess := s.start(request(accountGroup(revealFirstName()), accountGroup(dobBetween())))

		_, err := s.service.Back(s.ctx, sess.ID)
		s.requireCode(err, dErrors.CodeInvalidState)

		selected, err := s.service.Select(s.ctx, sess.ID, 0, account("d00d"))
		s.Require().NoError(err)
		s.Equal(account("d00d"), selected.Groups[0].Selection)

		next, err := s.service.Continue(s.ctx, sess.ID)
		s.Require().NoError(err)
		s.Equal(1, next.Active)

		back, err := s.service.Back(s.ctx, sess.ID)
		s.Require().NoError(err)
		s.Equal(0, back.Active)
		s.Equal([]string{account("d00d"), account("c0ffee")}, back.Selections())
	})

	s.Run("only offered credentials can be selected", func() {
		s.expectInventory(wallet("19990101"))
		s.expectGlobal()
		sess := s.start(request(accountGroup(revealFirstName())))

		_, err := s.service.Select(s.ctx, sess.ID, 0, account("beef"))
		s.requireCode(err, dErrors.CodeValidation)
		_, err = s.service.Select(s.ctx, sess.ID, 4, account("c0ffee"))
		s.requireCode(err, dErrors.CodeNotFound)
	})

	s.Run("navigating back and forth builds the same commitment inputs", func() {
		s.expectInventory(wallet("19990101"))
		s.expectGlobal()
		s.expectDerivation()
		s.sink.EXPECT().Deliver(gomock.Any(), gomock.Any()).Return(nil).Times(2)

		var inputs [][]models.CommitmentInput
		s.prover.EXPECT().Prove(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, _ models.ProofRequest, in []models.CommitmentInput, _ models.GlobalContext) (string, error) {
				inputs = append(inputs, in)
				return "proof", nil
			}).Times(2)

		groups := []models.CredentialStatement{accountGroup(revealFirstName()), accountGroup(dobBetween())}

		direct := s.start(request(groups...))
		_, err := s.service.Select(s.ctx, direct.ID, 0, account("d00d"))
		s.Require().NoError(err)
		_, err = s.service.Continue(s.ctx, direct.ID)
		s.Require().NoError(err)
		_, err = s.service.Continue(s.ctx, direct.ID)
		s.Require().NoError(err)

		wandering := s.start(request(groups...))
		_, err = s.service.Select(s.ctx, wandering.ID, 0, account("d00d"))
		s.Require().NoError(err)
		_, err = s.service.Continue(s.ctx, wandering.ID)
		s.Require().NoError(err)
		_, err = s.service.Back(s.ctx, wandering.ID)
		s.Require().NoError(err)
		_, err = s.service.Continue(s.ctx, wandering.ID)
		s.Require().NoError(err)
		_, err = s.service.Continue(s.ctx, wandering.ID)
		s.Require().NoError(err)

		s.Require().Len(inputs, 2)
		s.Equal(inputs[0], inputs[1])

		var fingerprints [][]string
		for _, e := range s.recorder.Events() {
			if e.Action == audit.EventProofSubmitted {
				fingerprints = append(fingerprints, e.Fingerprints)
			}
		}
		s.Require().Len(fingerprints, 2)
		s.Equal(fingerprints[0], fingerprints[1])
	})
}

func (s *ServiceSuite) TestOwnership() {
	s.expectInventory(wallet("19990101"))
	s.expectGlobal()
	sess := s.start(request(accountGroup(revealFirstName())))

	other := requestcontext.WithWalletID(context.Background(), "wallet-2")
	_, err := s.service.Get(other, sess.ID)
	s.requireCode(err, dErrors.CodeNotFound)
	_, err = s.service.Reject(other, sess.ID, "")
	s.requireCode(err, dErrors.CodeNotFound)
	s.requireCode(s.service.Dispose(other, sess.ID), dErrors.CodeNotFound)

	_, err = s.service.Get(s.ctx, "missing")
	s.requireCode(err, dErrors.CodeNotFound)
}

func (s *ServiceSuite) TestExpiry() {
	s.Run("an expired session is rejected once when accessed", func() {
		s.expectInventory(wallet("19990101"))
		s.expectGlobal()
		sess := s.start(request(accountGroup(revealFirstName())))
		s.sink.EXPECT().Deliver(gomock.Any(), models.Outcome{
			SessionID: sess.ID,
			WalletID:  walletID,
			Reason:    ReasonExpired,
		}).Return(nil).Times(1)

		s.advance(2 * time.Minute)
		_, err := s.service.Get(s.ctx, sess.ID)
		s.requireCode(err, dErrors.CodeNotFound)

		_, err = s.service.Get(s.ctx, sess.ID)
		s.requireCode(err, dErrors.CodeNotFound)
		n, err := s.service.SweepExpired(context.Background())
		s.Require().NoError(err)
		s.Zero(n)
	})

	s.Run("the sweeper rejects and removes expired sessions", func() {
		s.expectInventory(wallet("19990101"))
		s.expectGlobal()
		first := s.start(request(accountGroup(revealFirstName())))
		s.advance(30 * time.Second)
		second := s.start(request(accountGroup(revealFirstName())))
		s.sink.EXPECT().Deliver(gomock.Any(), gomock.Any()).Return(nil).Times(1)

		s.advance(45 * time.Second)
		n, err := s.service.SweepExpired(context.Background())
		s.Require().NoError(err)
		s.Equal(1, n)

		_, err = s.store.Get(context.Background(), first.ID)
		s.Error(err)
		live, err := s.service.Get(s.ctx, second.ID)
		s.Require().NoError(err)
		s.Equal(session.StateSelecting, live.State)
	})

	s.Run("index entries of sessions the store already dropped are cleared", func() {
		store := &droppedSessionStore{Store: s.store, ids: []string{"gone"}}
		svc := New(Deps{Store: store, Sink: s.sink}, network, WithClock(s.clock))

		n, err := svc.SweepExpired(context.Background())
		s.Require().NoError(err)
		s.Equal(1, n)
		s.Equal([]string{"gone"}, store.deleted)

		n, err = svc.SweepExpired(context.Background())
		s.Require().NoError(err)
		s.Zero(n)
	})

	s.Run("a submitted session is removed without a second outcome", func() {
		s.expectInventory(wallet("19990101"))
		s.expectGlobal()
		s.expectDerivation()
		s.prover.EXPECT().Prove(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return("proof", nil)
		s.sink.EXPECT().Deliver(gomock.Any(), gomock.Any()).Return(nil).Times(1)
		sess := s.start(request(accountGroup(revealFirstName())))
		_, err := s.service.Approve(s.ctx, sess.ID)
		s.Require().NoError(err)

		s.advance(2 * time.Minute)
		n, err := s.service.SweepExpired(context.Background())
		s.Require().NoError(err)
		s.Equal(1, n)
	})
}

// droppedSessionStore lists expired ids whose records have already been
// evicted, as Redis does once a key's TTL passes.
type droppedSessionStore struct {
	Store
	ids     []string
	deleted []string
}

func (d *droppedSessionStore) Expired(context.Context, time.Time) ([]string, error) {
	return slices.Clone(d.ids), nil
}

func (d *droppedSessionStore) Update(context.Context, string, func(*session.Session) error) (*session.Session, error) {
	return nil, sentinel.ErrNotFound
}

func (d *droppedSessionStore) Delete(_ context.Context, id string) error {
	d.deleted = append(d.deleted, id)
	d.ids = slices.DeleteFunc(d.ids, func(v string) bool { return v == id })
	return nil
}
