/*
Copyright Attestra Labs. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package assertion implements the signed-JWT assertion authenticator. The verifier
// issues a nonce, the subject's agent answers with a compact EdDSA JWT whose jti is
// that nonce, and the verifier checks the signature against the subject's
// registered identity key. Each jti is accepted at most once.
package assertion

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	jose "github.com/go-jose/go-jose/v3"
	"github.com/go-jose/go-jose/v3/jwt"

	"github.com/attestra/authbench/pkg/authenticator"
	"github.com/attestra/authbench/pkg/common/log"
	"github.com/attestra/authbench/pkg/crypto"
	"github.com/attestra/authbench/pkg/identity"
	"github.com/attestra/authbench/pkg/proof"
	"github.com/attestra/authbench/spi/storage"
)

var logger = log.New("authbench/assertion")

const (
	claimStoreName = "assertionclaims"

	nonceSize = 32
)

// Provider supplies this authenticator's dependencies.
type Provider interface {
	StorageProvider() storage.Provider
	Sessions() *authenticator.Sessions
	IdentityRegistry() *identity.Registry
}

// Authenticator verifies signed JWT assertions against registered identity keys.
type Authenticator struct {
	store      storage.Store
	sessions   *authenticator.Sessions
	identities *identity.Registry
}

// New returns an assertion authenticator backed by the provider's storage, session
// manager and identity registry.
func New(ctx Provider) (*Authenticator, error) {
	store, err := ctx.StorageProvider().OpenStore(claimStoreName)
	if err != nil {
		return nil, fmt.Errorf("open assertion claim store: %w", err)
	}

	return &Authenticator{
		store:      store,
		sessions:   ctx.Sessions(),
		identities: ctx.IdentityRegistry(),
	}, nil
}

// Kind returns authenticator.KindAssertion.
func (a *Authenticator) Kind() authenticator.Kind {
	return authenticator.KindAssertion
}

// BeginSession opens a session for the subject.
func (a *Authenticator) BeginSession(ctx context.Context, subjectID string) (*authenticator.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return a.sessions.Begin(a.Kind(), subjectID)
}

// IssueChallenge arms the session with a fresh nonce. The nonce's base64url form is
// the jti the subject's assertion must carry.
func (a *Authenticator) IssueChallenge(ctx context.Context, sessionID string) (*authenticator.Challenge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate assertion nonce: %w", err)
	}

	jti := base64.RawURLEncoding.EncodeToString(nonce)

	sess, err := a.sessions.Arm(sessionID, jti)
	if err != nil {
		return nil, err
	}

	return &authenticator.Challenge{
		SessionID: sess.ID,
		ID:        jti,
		Nonce:     nonce,
		ExpiresAt: sess.ExpiresAt,
	}, nil
}

// CompleteSession settles the session by verifying the response assertion. The jti
// is claimed before verification, so a replayed assertion fails with
// proof.ErrReplayDetected even when its signature is sound.
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

	if err := a.claim(sess.ChallengeID); err != nil {
		return nil, a.fail(sess.ID, err)
	}

	if err := a.verifyAssertion(sess, response.Assertion); err != nil {
		return nil, a.fail(sess.ID, err)
	}

	if _, err := a.sessions.Settle(sess.ID, true); err != nil {
		return nil, err
	}

	return &authenticator.Result{
		SessionID: sess.ID,
		SubjectID: sess.SubjectID,
		Kind:      a.Kind(),
		Verified:  true,
	}, nil
}

// claim marks the jti used. The atomic insert makes each assertion nonce
// single-use across every path that could present it.
func (a *Authenticator) claim(jti string) error {
	err := a.store.PutIfAbsent(jti, []byte(time.Now().Format(time.RFC3339Nano)))
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return fmt.Errorf("assertion nonce %s already presented: %w", jti, proof.ErrReplayDetected)
		}

		return fmt.Errorf("claim assertion nonce: %w", err)
	}

	return nil
}

func (a *Authenticator) verifyAssertion(sess *authenticator.Session, assertion string) error {
	if assertion == "" {
		return fmt.Errorf("empty assertion: %w", authenticator.ErrVerificationFailed)
	}

	ident, err := a.identities.Resolve(sess.SubjectID)
	if err != nil {
		return fmt.Errorf("no registered identity for subject %s: %w",
			sess.SubjectID, authenticator.ErrVerificationFailed)
	}

	token, err := jwt.ParseSigned(assertion)
	if err != nil {
		return fmt.Errorf("parse assertion: %w", authenticator.ErrVerificationFailed)
	}

	claims := &jwt.Claims{}

	if err := token.Claims(ed25519.PublicKey(ident.PublicKey), claims); err != nil {
		return fmt.Errorf("assertion signature: %w", authenticator.ErrVerificationFailed)
	}

	err = claims.Validate(jwt.Expected{
		Subject: ident.DID,
		ID:      sess.ChallengeID,
		Time:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("assertion claims (%s): %w", err, authenticator.ErrVerificationFailed)
	}

	return nil
}

func (a *Authenticator) fail(sessionID string, cause error) error {
	if _, err := a.sessions.Settle(sessionID, false); err != nil {
		logger.Warnf("settle session %s as failed: %s", sessionID, err)
	}

	return cause
}

// Agent holds a subject's signing side of the assertion scheme. The private key
// stays inside the KMS: the agent signs through an opaque signer that delegates the
// JWS signing input to the crypto service.
type Agent struct {
	did    string
	signer jose.Signer
}

// NewAgent returns an agent asserting as the given identity. keyHandle must be the
// KMS handle for the identity's signing key.
func NewAgent(ident *identity.Identity, keyHandle interface{}, signer crypto.Crypto) (*Agent, error) {
	if ident == nil {
		return nil, errors.New("identity cannot be nil")
	}

	if keyHandle == nil {
		return nil, errors.New("key handle cannot be nil")
	}

	if signer == nil {
		return nil, errors.New("crypto cannot be nil")
	}

	opaque := &kmsOpaqueSigner{
		keyID:     ident.KeyID,
		publicKey: ed25519.PublicKey(ident.PublicKey),
		keyHandle: keyHandle,
		signer:    signer,
	}

	joseSigner, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.EdDSA, Key: opaque},
		(&jose.SignerOptions{}).WithType("JWT"))
	if err != nil {
		return nil, fmt.Errorf("create assertion signer: %w", err)
	}

	return &Agent{did: ident.DID, signer: joseSigner}, nil
}

// Assert answers the challenge with a compact signed JWT whose jti is the challenge
// nonce.
func (ag *Agent) Assert(challenge *authenticator.Challenge) (string, error) {
	if challenge == nil {
		return "", errors.New("challenge cannot be nil")
	}

	now := time.Now()

	claims := jwt.Claims{
		Issuer:   ag.did,
		Subject:  ag.did,
		ID:       challenge.ID,
		IssuedAt: jwt.NewNumericDate(now),
		Expiry:   jwt.NewNumericDate(challenge.ExpiresAt),
	}

	assertion, err := jwt.Signed(ag.signer).Claims(claims).CompactSerialize()
	if err != nil {
		return "", fmt.Errorf("sign assertion: %w", err)
	}

	return assertion, nil
}

// kmsOpaqueSigner adapts the KMS-held signing key to jose's opaque signer so JWT
// signing never touches raw private key bytes.
type kmsOpaqueSigner struct {
	keyID     string
	publicKey ed25519.PublicKey
	keyHandle interface{}
	signer    crypto.Crypto
}

func (s *kmsOpaqueSigner) Public() *jose.JSONWebKey {
	return &jose.JSONWebKey{
		Key:       s.publicKey,
		KeyID:     s.keyID,
		Algorithm: string(jose.EdDSA),
		Use:       "sig",
	}
}

func (s *kmsOpaqueSigner) Algs() []jose.SignatureAlgorithm {
	return []jose.SignatureAlgorithm{jose.EdDSA}
}

func (s *kmsOpaqueSigner) SignPayload(payload []byte, alg jose.SignatureAlgorithm) ([]byte, error) {
	if alg != jose.EdDSA {
		return nil, fmt.Errorf("alg %q not supported by this signer", alg)
	}

	return s.signer.Sign(payload, s.keyHandle)
}
