/*
Copyright Attestra Labs. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package experiment drives credential authentication benchmarks. A runner
// provisions synthetic subjects across every configured authenticator, executes
// the subject-by-authenticator attempt matrix through a bounded worker pool, and
// aggregates the outcomes into a report of success rates, latency percentiles and
// failure classes.
package experiment

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/attestra/authbench/pkg/authenticator"
	"github.com/attestra/authbench/pkg/authenticator/assertion"
	"github.com/attestra/authbench/pkg/authenticator/disclosure"
	"github.com/attestra/authbench/pkg/authenticator/password"
	"github.com/attestra/authbench/pkg/authenticator/possession"
	"github.com/attestra/authbench/pkg/common/log"
	"github.com/attestra/authbench/pkg/credential"
	"github.com/attestra/authbench/pkg/crypto"
	"github.com/attestra/authbench/pkg/identity"
	"github.com/attestra/authbench/pkg/proof"
	spikms "github.com/attestra/authbench/spi/kms"
)

var logger = log.New("authbench/experiment")

// DefaultMaxConcurrency bounds the worker pool when no override is given.
const DefaultMaxConcurrency = 4

// Provider supplies the runner's dependencies.
type Provider interface {
	KMS() spikms.KeyManager
	Crypto() crypto.Crypto
	IdentityRegistry() *identity.Registry
	CredentialStore() *credential.Store
	ProofEngine() *proof.Engine
	AuthenticatorRegistry() *authenticator.Registry
	IssuerDID() string
}

// Subject is one synthetic benchmark subject.
type Subject struct {
	ID         string                 `json:"id"`
	Attributes map[string]interface{} `json:"attributes"`
	Secret     string                 `json:"secret"`
}

// Outcome is the recorded result of one authentication attempt. Failure carries
// the classified failure kind when the attempt did not verify.
type Outcome struct {
	SubjectID           string             `json:"subjectId"`
	Kind                authenticator.Kind `json:"kind"`
	SessionID           string             `json:"sessionId,omitempty"`
	Success             bool               `json:"success"`
	Latency             time.Duration      `json:"latency"`
	DisclosedAttributes int                `json:"disclosedAttributes,omitempty"`
	TotalAttributes     int                `json:"totalAttributes,omitempty"`
	Failure             string             `json:"failure,omitempty"`

	// Err is the raw attempt error. Failure is derived from it when the outcome
	// enters a collector.
	Err error `json:"-"`
}

// Runner executes the benchmark matrix.
type Runner struct {
	identities     *identity.Registry
	credentials    *credential.Store
	engine         *proof.Engine
	registry       *authenticator.Registry
	keyManager     spikms.KeyManager
	cryptoService  crypto.Crypto
	issuerDID      string
	maxConcurrency int
}

// Option configures the runner.
type Option func(*Runner)

// WithMaxConcurrency bounds how many attempts run in parallel.
func WithMaxConcurrency(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.maxConcurrency = n
		}
	}
}

// NewRunner returns a runner over the provider's framework services.
func NewRunner(ctx Provider, opts ...Option) *Runner {
	r := &Runner{
		identities:     ctx.IdentityRegistry(),
		credentials:    ctx.CredentialStore(),
		engine:         ctx.ProofEngine(),
		registry:       ctx.AuthenticatorRegistry(),
		keyManager:     ctx.KMS(),
		cryptoService:  ctx.Crypto(),
		issuerDID:      ctx.IssuerDID(),
		maxConcurrency: DefaultMaxConcurrency,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// agent holds the subject-side material of one provisioned subject: its signing
// agent, credential, possession token seed and witness. The runner plays both
// sides of every attempt, but only agent state crosses the subject/verifier line.
type agent struct {
	subject      Subject
	identity     *identity.Identity
	cred         *credential.Credential
	asserter     *assertion.Agent
	bbsPublicKey []byte
	tokenID      string
	tokenSeed    []byte
	witness      *proof.Witness
}

// Run provisions the subjects and executes one attempt per subject per registered
// authenticator. Cancelling the context stops scheduling new attempts; attempts
// already running complete and the partial report is returned along with the
// context's error.
func (r *Runner) Run(ctx context.Context, subjects []Subject) (*Report, error) {
	if len(subjects) == 0 {
		return nil, errors.New("no subjects to run")
	}

	kinds := r.registry.Kinds()
	if len(kinds) == 0 {
		return nil, errors.New("no authenticators registered")
	}

	logger.Infof("running experiment: %d subjects x %d authenticators, concurrency %d",
		len(subjects), len(kinds), r.maxConcurrency)

	agents, provisionErrs := r.provisionAll(ctx, subjects)

	collector := NewCollector()

	// A subject that failed provisioning fails every attempt it would have made,
	// classified by the provisioning cause. Subjects skipped by cancellation are
	// simply absent from the report.
	for i, provisionErr := range provisionErrs {
		if provisionErr == nil || errors.Is(provisionErr, context.Canceled) ||
			errors.Is(provisionErr, context.DeadlineExceeded) {
			continue
		}

		for _, kind := range kinds {
			if err := collector.Add(Outcome{
				SubjectID:       subjects[i].ID,
				Kind:            kind,
				TotalAttributes: len(subjects[i].Attributes),
				Err:             provisionErr,
			}); err != nil {
				return nil, err
			}
		}
	}

	type task struct {
		agentIndex int
		kind       authenticator.Kind
	}

	tasks := make(chan task)
	outcomes := make(chan Outcome)

	var workers sync.WaitGroup

	for w := 0; w < r.maxConcurrency; w++ {
		workers.Add(1)

		go func() {
			defer workers.Done()

			for tk := range tasks {
				if ctx.Err() != nil {
					continue
				}

				outcomes <- r.attempt(ctx, agents[tk.agentIndex], tk.kind)
			}
		}()
	}

	go func() {
		defer close(tasks)

		for i := range agents {
			if agents[i] == nil {
				continue
			}

			for _, kind := range kinds {
				select {
				case <-ctx.Done():
					return
				case tasks <- task{agentIndex: i, kind: kind}:
				}
			}
		}
	}()

	go func() {
		workers.Wait()
		close(outcomes)
	}()

	var addErr error

	for outcome := range outcomes {
		if err := collector.Add(outcome); err != nil && addErr == nil {
			addErr = err
		}
	}

	if addErr != nil {
		return nil, addErr
	}

	report := collector.Report()

	if err := ctx.Err(); err != nil {
		logger.Warnf("experiment cancelled after %d outcomes: %s", len(report.Outcomes), err)

		return report, err
	}

	return report, nil
}

// provisionAll registers and enrolls the subjects through the same worker pool
// bound as the attempt phase.
func (r *Runner) provisionAll(ctx context.Context, subjects []Subject) ([]*agent, []error) {
	agents := make([]*agent, len(subjects))
	errs := make([]error, len(subjects))

	indexes := make(chan int)

	var wg sync.WaitGroup

	for w := 0; w < r.maxConcurrency; w++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for i := range indexes {
				if err := ctx.Err(); err != nil {
					errs[i] = err
					continue
				}

				agents[i], errs[i] = r.provision(subjects[i])

				if errs[i] != nil {
					logger.Warnf("provision subject %s: %s", subjects[i].ID, errs[i])
				}
			}
		}()
	}

	for i := range subjects {
		indexes <- i
	}

	close(indexes)
	wg.Wait()

	return agents, errs
}

// provision registers the subject's identity, issues its credential and enrolls it
// with every registered authenticator.
func (r *Runner) provision(subject Subject) (*agent, error) {
	if subject.ID == "" {
		return nil, errors.New("subject ID cannot be empty")
	}

	ident, err := r.identities.Create(subject.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "register identity for subject %s", subject.ID)
	}

	cred, err := r.credentials.Issue(ident.DID, subject.Attributes, r.issuerDID)
	if err != nil {
		return nil, errors.Wrapf(err, "issue credential for subject %s", subject.ID)
	}

	ag := &agent{subject: subject, identity: ident, cred: cred}

	for _, kind := range r.registry.Kinds() {
		backend, err := r.registry.Get(kind)
		if err != nil {
			return nil, err
		}

		if err := r.enroll(ag, backend); err != nil {
			return nil, errors.Wrapf(err, "enroll subject %s with %s", subject.ID, kind)
		}
	}

	return ag, nil
}

func (r *Runner) enroll(ag *agent, backend authenticator.Authenticator) error {
	switch b := backend.(type) {
	case *password.Authenticator:
		return b.Enroll(ag.subject.ID, []byte(ag.subject.Secret))

	case *assertion.Authenticator:
		keyHandle, err := r.keyManager.Get(ag.identity.KeyID)
		if err != nil {
			return errors.Wrap(err, "get subject signing key")
		}

		asserter, err := assertion.NewAgent(ag.identity, keyHandle, r.cryptoService)
		if err != nil {
			return err
		}

		ag.asserter = asserter

		return nil

	case *possession.Authenticator:
		seed := []byte(ag.subject.Secret)

		commitment, witness, err := r.engine.Commit(seed)
		if err != nil {
			return errors.Wrap(err, "commit token seed")
		}

		token, err := b.Enroll(ag.subject.ID, ag.subject.Attributes, commitment)
		if err != nil {
			return err
		}

		ag.tokenID = token.ID
		ag.tokenSeed = seed
		ag.witness = witness

		return nil

	case *disclosure.Authenticator:
		if err := b.Enroll(ag.subject.ID, ag.cred); err != nil {
			return err
		}

		issuer, err := r.credentials.Issuer(r.issuerDID)
		if err != nil {
			return err
		}

		ag.bbsPublicKey = issuer.BBSPublicKey

		return nil

	default:
		return errors.Errorf("no provisioning path for authenticator kind %q", backend.Kind())
	}
}

// attempt runs one full authentication round trip and times it.
func (r *Runner) attempt(ctx context.Context, ag *agent, kind authenticator.Kind) Outcome {
	outcome := Outcome{
		SubjectID:       ag.subject.ID,
		Kind:            kind,
		TotalAttributes: len(ag.subject.Attributes),
	}

	start := time.Now()
	result, sessionID, err := r.runAttempt(ctx, ag, kind)
	outcome.Latency = time.Since(start)
	outcome.SessionID = sessionID

	if err != nil {
		outcome.Err = err

		return outcome
	}

	outcome.Success = result.Verified
	outcome.DisclosedAttributes = result.DisclosedAttributes

	return outcome
}

func (r *Runner) runAttempt(ctx context.Context, ag *agent,
	kind authenticator.Kind) (*authenticator.Result, string, error) {
	backend, err := r.registry.Get(kind)
	if err != nil {
		return nil, "", err
	}

	sess, err := backend.BeginSession(ctx, ag.subject.ID)
	if err != nil {
		return nil, "", errors.Wrap(err, "begin session")
	}

	challenge, err := backend.IssueChallenge(ctx, sess.ID)
	if err != nil {
		return nil, sess.ID, errors.Wrap(err, "issue challenge")
	}

	response, err := r.respond(ag, kind, challenge)
	if err != nil {
		return nil, sess.ID, errors.Wrap(err, "answer challenge")
	}

	result, err := backend.CompleteSession(ctx, sess.ID, response)
	if err != nil {
		return nil, sess.ID, errors.Wrap(err, "complete session")
	}

	return result, sess.ID, nil
}

// respond plays the subject's side of the challenge.
func (r *Runner) respond(ag *agent, kind authenticator.Kind,
	challenge *authenticator.Challenge) (*authenticator.Response, error) {
	switch kind {
	case authenticator.KindPassword:
		return &authenticator.Response{Secret: ag.subject.Secret}, nil

	case authenticator.KindAssertion:
		signed, err := ag.asserter.Assert(challenge)
		if err != nil {
			return nil, err
		}

		return &authenticator.Response{Assertion: signed}, nil

	case authenticator.KindPossession:
		pok, err := r.engine.Prove(ag.tokenSeed, ag.witness, &proof.Challenge{
			ID:        challenge.ID,
			Nonce:     challenge.Nonce,
			ExpiresAt: challenge.ExpiresAt,
		})
		if err != nil {
			return nil, err
		}

		return &authenticator.Response{TokenID: ag.tokenID, Proof: pok.PoK}, nil

	case authenticator.KindDisclosure:
		presentation, revealed, err := disclosure.DerivePresentation(ag.cred, ag.bbsPublicKey, challenge)
		if err != nil {
			return nil, err
		}

		return &authenticator.Response{Presentation: presentation, Revealed: revealed}, nil

	default:
		return nil, errors.Errorf("no response path for authenticator kind %q", kind)
	}
}
