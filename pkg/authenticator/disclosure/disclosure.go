/*
Copyright Attestra Labs. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package disclosure implements the selective-disclosure authenticator. Subjects
// enroll a BBS+-signed credential, the verifier requests a subset of its
// attributes, and completion verifies a derived proof that reveals exactly that
// subset bound to the session nonce. The unrevealed attributes stay hidden from
// the verifier.
package disclosure

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/PaesslerAG/gval"
	"github.com/PaesslerAG/jsonpath"
	"github.com/google/uuid"
	"github.com/multiformats/go-multibase"

	"github.com/attestra/authbench/pkg/authenticator"
	"github.com/attestra/authbench/pkg/common/log"
	"github.com/attestra/authbench/pkg/credential"
	"github.com/attestra/authbench/pkg/crypto/primitive/bbs12381g2pub"
	"github.com/attestra/authbench/spi/storage"
)

var logger = log.New("authbench/disclosure")

const (
	disclosureStoreName = "disclosure"

	enrollKeyPrefix  = "enroll_"
	requestKeyPrefix = "request_"

	nonceSize = 32
)

// Provider supplies this authenticator's dependencies.
type Provider interface {
	StorageProvider() storage.Provider
	Sessions() *authenticator.Sessions
	CredentialStore() *credential.Store
}

// Constraint is a predicate the revealed attributes must satisfy. Path is a JSON
// path that must resolve against the revealed set; Predicate, when set, is an
// expression over the revealed attributes that must evaluate to true.
type Constraint struct {
	Path      string `json:"path"`
	Predicate string `json:"predicate,omitempty"`
}

// Authenticator verifies selective-disclosure presentations.
type Authenticator struct {
	store       storage.Store
	sessions    *authenticator.Sessions
	credentials *credential.Store
	requested   []string
	constraints []Constraint
	bbs         *bbs12381g2pub.BBSG2Pub
}

// Option configures the authenticator.
type Option func(*Authenticator)

// WithRequestedAttributes fixes the attribute names every challenge requests.
// Without it the verifier requests the first attribute in sorted name order.
func WithRequestedAttributes(names ...string) Option {
	return func(a *Authenticator) {
		a.requested = names
	}
}

// WithConstraints adds predicates the revealed attributes must satisfy on top of
// the cryptographic verification.
func WithConstraints(constraints ...Constraint) Option {
	return func(a *Authenticator) {
		a.constraints = constraints
	}
}

type enrollment struct {
	SubjectID      string    `json:"subjectId"`
	IssuerDID      string    `json:"issuerDid"`
	CredentialID   string    `json:"credentialId"`
	AttributeNames []string  `json:"attributeNames"`
	CreatedAt      time.Time `json:"createdAt"`
}

// request records what a session's challenge asked for, so completion checks the
// response against what was actually requested rather than what the subject chose
// to send.
type request struct {
	SessionID string   `json:"sessionId"`
	Requested []string `json:"requested"`
	Nonce     []byte   `json:"nonce"`
}

// New returns a disclosure authenticator backed by the provider's storage, session
// manager and credential store.
func New(ctx Provider, opts ...Option) (*Authenticator, error) {
	store, err := ctx.StorageProvider().OpenStore(disclosureStoreName)
	if err != nil {
		return nil, fmt.Errorf("open disclosure store: %w", err)
	}

	a := &Authenticator{
		store:       store,
		sessions:    ctx.Sessions(),
		credentials: ctx.CredentialStore(),
		bbs:         bbs12381g2pub.New(),
	}

	for _, opt := range opts {
		opt(a)
	}

	sort.Strings(a.requested)

	return a, nil
}

// Kind returns authenticator.KindDisclosure.
func (a *Authenticator) Kind() authenticator.Kind {
	return authenticator.KindDisclosure
}

// Enroll registers the subject's credential for disclosure. The credential is
// verified against its issuer before it is accepted, and it must carry a BBS+
// signature or no proof can ever be derived from it.
func (a *Authenticator) Enroll(subjectID string, cred *credential.Credential) error {
	if subjectID == "" {
		return errors.New("subject ID cannot be empty")
	}

	if cred == nil {
		return errors.New("credential cannot be nil")
	}

	if len(cred.BBSSignature) == 0 {
		return errors.New("credential carries no BBS+ signature")
	}

	if len(cred.Attributes) == 0 {
		return errors.New("credential has no attributes to disclose")
	}

	issuer, err := a.credentials.Issuer(cred.Issuer)
	if err != nil {
		return fmt.Errorf("resolve credential issuer: %w", err)
	}

	if len(issuer.BBSPublicKey) == 0 {
		return fmt.Errorf("issuer %s has no BBS+ key", cred.Issuer)
	}

	if _, err := a.credentials.Verify(cred, issuer.PublicKey); err != nil {
		return fmt.Errorf("verify credential: %w", err)
	}

	messages := credential.AttributeMessages(cred.Attributes)

	if err := a.bbs.Verify(messages, cred.BBSSignature, issuer.BBSPublicKey); err != nil {
		return fmt.Errorf("verify credential BBS+ signature: %w", err)
	}

	record, err := json.Marshal(&enrollment{
		SubjectID:      subjectID,
		IssuerDID:      cred.Issuer,
		CredentialID:   cred.ID,
		AttributeNames: credential.AttributeNames(cred.Attributes),
		CreatedAt:      time.Now(),
	})
	if err != nil {
		return fmt.Errorf("marshal disclosure enrollment: %w", err)
	}

	if err := a.store.PutIfAbsent(enrollKeyPrefix+subjectID, record); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return fmt.Errorf("subject %s is already enrolled", subjectID)
		}

		return fmt.Errorf("store disclosure enrollment: %w", err)
	}

	return nil
}

// BeginSession opens a session for the subject.
func (a *Authenticator) BeginSession(ctx context.Context, subjectID string) (*authenticator.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return a.sessions.Begin(a.Kind(), subjectID)
}

// IssueChallenge arms the session with a nonce and the names of the attributes the
// subject must reveal. The request is recorded server-side so completion cannot be
// satisfied by revealing a different subset.
func (a *Authenticator) IssueChallenge(ctx context.Context, sessionID string) (*authenticator.Challenge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sess, err := a.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}

	enrolled, err := a.enrollment(sess.SubjectID)
	if err != nil {
		return nil, err
	}

	requested, err := a.requestedFor(enrolled)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate disclosure nonce: %w", err)
	}

	challengeID := uuid.New().String()

	armed, err := a.sessions.Arm(sessionID, challengeID)
	if err != nil {
		return nil, err
	}

	record, err := json.Marshal(&request{
		SessionID: sess.ID,
		Requested: requested,
		Nonce:     nonce,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal disclosure request: %w", err)
	}

	if err := a.store.PutIfAbsent(requestKeyPrefix+sess.ID, record); err != nil {
		return nil, fmt.Errorf("store disclosure request: %w", err)
	}

	return &authenticator.Challenge{
		SessionID: armed.ID,
		ID:        challengeID,
		Nonce:     nonce,
		ExpiresAt: armed.ExpiresAt,
		Requested: requested,
	}, nil
}

// CompleteSession settles the session by verifying the derived proof. The revealed
// set must equal the requested set exactly, the proof must verify under the
// issuer's BBS+ key against the session nonce, and every configured constraint
// must hold over the revealed attributes.
func (a *Authenticator) CompleteSession(ctx context.Context, sessionID string,
	response *authenticator.Response) (*authenticator.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if response == nil {
		return nil, errors.New("response cannot be nil")
	}

	sess, err := a.sessions.Active(sessionID, a.Kind())
	if err != nil {
		return nil, err
	}

	if sess.ChallengeID == "" {
		return nil, a.fail(sess.ID, fmt.Errorf("session %s has no armed challenge: %w",
			sess.ID, authenticator.ErrVerificationFailed))
	}

	if err := a.verifyPresentation(sess, response); err != nil {
		return nil, a.fail(sess.ID, err)
	}

	if _, err := a.sessions.Settle(sess.ID, true); err != nil {
		return nil, err
	}

	return &authenticator.Result{
		SessionID:           sess.ID,
		SubjectID:           sess.SubjectID,
		Kind:                a.Kind(),
		Verified:            true,
		DisclosedAttributes: len(response.Revealed),
	}, nil
}

func (a *Authenticator) verifyPresentation(sess *authenticator.Session, response *authenticator.Response) error {
	if response.Presentation == "" || len(response.Revealed) == 0 {
		return fmt.Errorf("disclosure response is incomplete: %w", authenticator.ErrVerificationFailed)
	}

	req, err := a.request(sess.ID)
	if err != nil {
		return err
	}

	revealedNames := credential.AttributeNames(response.Revealed)

	if !equalNames(revealedNames, req.Requested) {
		return fmt.Errorf("revealed attributes %v do not match requested %v: %w",
			revealedNames, req.Requested, authenticator.ErrVerificationFailed)
	}

	enrolled, err := a.enrollment(sess.SubjectID)
	if err != nil {
		return fmt.Errorf("subject %s has no disclosure enrollment: %w",
			sess.SubjectID, authenticator.ErrVerificationFailed)
	}

	issuer, err := a.credentials.Issuer(enrolled.IssuerDID)
	if err != nil {
		return fmt.Errorf("resolve issuer for disclosure verification: %w", err)
	}

	// Revocation is consulted at completion time, not just at enrollment, so a
	// credential revoked after enrollment stops verifying.
	cred, err := a.credentials.Credential(enrolled.CredentialID)
	if err != nil {
		return fmt.Errorf("load enrolled credential: %w", err)
	}

	if _, err := a.credentials.Verify(cred, issuer.PublicKey); err != nil {
		return fmt.Errorf("enrolled credential no longer verifies: %w", err)
	}

	_, proofBytes, err := multibase.Decode(response.Presentation)
	if err != nil {
		return fmt.Errorf("decode presentation: %w", authenticator.ErrVerificationFailed)
	}

	messages := credential.AttributeMessages(response.Revealed)

	if err := a.bbs.VerifyProof(messages, proofBytes, req.Nonce, issuer.BBSPublicKey); err != nil {
		return fmt.Errorf("derived proof does not verify: %w", authenticator.ErrVerificationFailed)
	}

	if err := a.checkConstraints(response.Revealed); err != nil {
		return err
	}

	return nil
}

// checkConstraints evaluates the configured predicates over the revealed
// attributes. Constraints run after the cryptographic check, so they only ever see
// attribute values the issuer actually signed.
func (a *Authenticator) checkConstraints(revealed map[string]interface{}) error {
	for _, c := range a.constraints {
		if c.Path != "" {
			if _, err := jsonpath.Get(c.Path, revealed); err != nil {
				return fmt.Errorf("constraint path %q: %s: %w",
					c.Path, err, authenticator.ErrVerificationFailed)
			}
		}

		if c.Predicate == "" {
			continue
		}

		value, err := gval.Evaluate(c.Predicate, revealed)
		if err != nil {
			return fmt.Errorf("constraint predicate %q: %s: %w",
				c.Predicate, err, authenticator.ErrVerificationFailed)
		}

		hold, ok := value.(bool)
		if !ok || !hold {
			return fmt.Errorf("constraint predicate %q does not hold: %w",
				c.Predicate, authenticator.ErrVerificationFailed)
		}
	}

	return nil
}

// requestedFor resolves the attribute names a challenge will request from the
// enrollment. A fixed request list must be covered by the subject's credential.
func (a *Authenticator) requestedFor(enrolled *enrollment) ([]string, error) {
	if len(a.requested) == 0 {
		return enrolled.AttributeNames[:1], nil
	}

	for _, name := range a.requested {
		if !containsName(enrolled.AttributeNames, name) {
			return nil, fmt.Errorf("requested attribute %q is not in subject %s's credential",
				name, enrolled.SubjectID)
		}
	}

	return a.requested, nil
}

func (a *Authenticator) enrollment(subjectID string) (*enrollment, error) {
	record, err := a.store.Get(enrollKeyPrefix + subjectID)
	if err != nil {
		if errors.Is(err, storage.ErrDataNotFound) {
			return nil, fmt.Errorf("subject %s is not enrolled for disclosure", subjectID)
		}

		return nil, fmt.Errorf("get disclosure enrollment: %w", err)
	}

	enrolled := &enrollment{}
	if err := json.Unmarshal(record, enrolled); err != nil {
		return nil, fmt.Errorf("unmarshal disclosure enrollment: %w", err)
	}

	return enrolled, nil
}

func (a *Authenticator) request(sessionID string) (*request, error) {
	record, err := a.store.Get(requestKeyPrefix + sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrDataNotFound) {
			return nil, fmt.Errorf("session %s has no disclosure request: %w",
				sessionID, authenticator.ErrVerificationFailed)
		}

		return nil, fmt.Errorf("get disclosure request: %w", err)
	}

	req := &request{}
	if err := json.Unmarshal(record, req); err != nil {
		return nil, fmt.Errorf("unmarshal disclosure request: %w", err)
	}

	return req, nil
}

func (a *Authenticator) fail(sessionID string, cause error) error {
	if _, err := a.sessions.Settle(sessionID, false); err != nil {
		logger.Warnf("settle session %s as failed: %s", sessionID, err)
	}

	return cause
}

// DerivePresentation answers a disclosure challenge on the subject's side. It
// derives a proof revealing exactly the challenge's requested attributes from the
// credential's BBS+ signature, bound to the challenge nonce, and returns the
// multibase-encoded proof together with the revealed attribute values.
func DerivePresentation(cred *credential.Credential, issuerBBSPublicKey []byte,
	challenge *authenticator.Challenge) (string, map[string]interface{}, error) {
	if cred == nil || len(cred.BBSSignature) == 0 {
		return "", nil, errors.New("credential carries no BBS+ signature")
	}

	if challenge == nil || len(challenge.Requested) == 0 {
		return "", nil, errors.New("challenge requests no attributes")
	}

	if len(issuerBBSPublicKey) == 0 {
		return "", nil, errors.New("issuer BBS+ public key cannot be empty")
	}

	names := credential.AttributeNames(cred.Attributes)

	revealedIndexes := make([]int, 0, len(challenge.Requested))
	revealed := make(map[string]interface{}, len(challenge.Requested))

	for _, name := range challenge.Requested {
		index := indexOfName(names, name)
		if index < 0 {
			return "", nil, fmt.Errorf("requested attribute %q is not in the credential", name)
		}

		revealedIndexes = append(revealedIndexes, index)
		revealed[name] = cred.Attributes[name]
	}

	sort.Ints(revealedIndexes)

	messages := credential.AttributeMessages(cred.Attributes)

	proofBytes, err := bbs12381g2pub.New().DeriveProof(messages, cred.BBSSignature,
		challenge.Nonce, issuerBBSPublicKey, revealedIndexes)
	if err != nil {
		return "", nil, fmt.Errorf("derive disclosure proof: %w", err)
	}

	presentation, err := multibase.Encode(multibase.Base58BTC, proofBytes)
	if err != nil {
		return "", nil, fmt.Errorf("encode presentation: %w", err)
	}

	return presentation, revealed, nil
}

func equalNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}

func containsName(names []string, name string) bool {
	return indexOfName(names, name) >= 0
}

func indexOfName(names []string, name string) int {
	for i, candidate := range names {
		if candidate == name {
			return i
		}
	}

	return -1
}
