/*
Copyright Attestra Labs. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package possession implements the token proof-of-possession authenticator. A
// subject enrolls a token whose seed is bound to a commitment, and completion
// demands a fresh proof-of-knowledge of that seed against the session's challenge.
// The token itself never carries the seed, so presenting a stolen token record
// without the seed proves nothing.
package possession

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/attestra/authbench/pkg/authenticator"
	"github.com/attestra/authbench/pkg/common/log"
	"github.com/attestra/authbench/pkg/proof"
	"github.com/attestra/authbench/spi/storage"
)

var logger = log.New("authbench/possession")

const tokenStoreName = "posstoken"

// Provider supplies this authenticator's dependencies.
type Provider interface {
	StorageProvider() storage.Provider
	Sessions() *authenticator.Sessions
	ProofEngine() *proof.Engine
}

// Authenticator verifies proof-of-possession of enrolled token seeds.
type Authenticator struct {
	store    storage.Store
	sessions *authenticator.Sessions
	engine   *proof.Engine
}

// Token is an enrolled possession credential. Commitment binds the token to its
// seed without storing the seed.
type Token struct {
	ID              string    `json:"id"`
	SubjectID       string    `json:"subjectId"`
	AttributeDigest []byte    `json:"attributeDigest,omitempty"`
	Commitment      []byte    `json:"commitment"`
	IssuedAt        time.Time `json:"issuedAt"`
}

// New returns a possession authenticator backed by the provider's storage, session
// manager and proof engine.
func New(ctx Provider) (*Authenticator, error) {
	store, err := ctx.StorageProvider().OpenStore(tokenStoreName)
	if err != nil {
		return nil, fmt.Errorf("open possession token store: %w", err)
	}

	return &Authenticator{
		store:    store,
		sessions: ctx.Sessions(),
		engine:   ctx.ProofEngine(),
	}, nil
}

// Kind returns authenticator.KindPossession.
func (a *Authenticator) Kind() authenticator.Kind {
	return authenticator.KindPossession
}

// Enroll registers a token for the subject, bound to the given seed commitment.
// Attributes are digested into the token record so a verifier can later tie the
// token to the subject's credential data. A subject may hold several tokens.
func (a *Authenticator) Enroll(subjectID string, attributes map[string]interface{},
	commitment *proof.Commitment) (*Token, error) {
	if subjectID == "" {
		return nil, errors.New("subject ID cannot be empty")
	}

	if commitment == nil || len(commitment.C) == 0 {
		return nil, errors.New("commitment cannot be empty")
	}

	token := &Token{
		ID:         uuid.New().String(),
		SubjectID:  subjectID,
		Commitment: commitment.C,
		IssuedAt:   time.Now(),
	}

	if len(attributes) > 0 {
		digest, err := attributeDigest(attributes)
		if err != nil {
			return nil, err
		}

		token.AttributeDigest = digest
	}

	record, err := json.Marshal(token)
	if err != nil {
		return nil, fmt.Errorf("marshal token: %w", err)
	}

	if err := a.store.PutIfAbsent(token.ID, record); err != nil {
		return nil, fmt.Errorf("store token: %w", err)
	}

	return token, nil
}

// BeginSession opens a session for the subject.
func (a *Authenticator) BeginSession(ctx context.Context, subjectID string) (*authenticator.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return a.sessions.Begin(a.Kind(), subjectID)
}

// IssueChallenge arms the session with a proof engine challenge. The proof the
// subject sends back must be bound to exactly this challenge.
func (a *Authenticator) IssueChallenge(ctx context.Context, sessionID string) (*authenticator.Challenge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	challenge, err := a.engine.NewChallenge(ctx)
	if err != nil {
		return nil, fmt.Errorf("new possession challenge: %w", err)
	}

	sess, err := a.sessions.Arm(sessionID, challenge.ID)
	if err != nil {
		return nil, err
	}

	return &authenticator.Challenge{
		SessionID: sess.ID,
		ID:        challenge.ID,
		Nonce:     challenge.Nonce,
		ExpiresAt: challenge.ExpiresAt,
	}, nil
}

// CompleteSession settles the session by verifying the response proof against the
// enrolled token's commitment. The engine claims the challenge on first use, so a
// replayed proof fails with proof.ErrReplayDetected.
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

	if err := a.verifyPossession(sess, response); err != nil {
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

func (a *Authenticator) verifyPossession(sess *authenticator.Session, response *authenticator.Response) error {
	if response.TokenID == "" || len(response.Proof) == 0 {
		return fmt.Errorf("possession response is incomplete: %w", authenticator.ErrVerificationFailed)
	}

	token, err := a.token(response.TokenID)
	if err != nil {
		return err
	}

	if token.SubjectID != sess.SubjectID {
		return fmt.Errorf("token %s does not belong to subject %s: %w",
			token.ID, sess.SubjectID, authenticator.ErrVerificationFailed)
	}

	pok := &proof.Proof{ChallengeID: sess.ChallengeID, PoK: response.Proof}

	err = a.engine.VerifyDetail(&proof.Commitment{C: token.Commitment}, sess.ChallengeID, pok)
	if err != nil {
		return fmt.Errorf("verify possession proof: %w", err)
	}

	return nil
}

// token fails closed: an unknown token ID is indistinguishable from a wrong proof.
func (a *Authenticator) token(tokenID string) (*Token, error) {
	record, err := a.store.Get(tokenID)
	if err != nil {
		if errors.Is(err, storage.ErrDataNotFound) {
			return nil, fmt.Errorf("token %s is not enrolled: %w",
				tokenID, authenticator.ErrVerificationFailed)
		}

		return nil, fmt.Errorf("get token: %w", err)
	}

	token := &Token{}
	if err := json.Unmarshal(record, token); err != nil {
		return nil, fmt.Errorf("unmarshal token: %w", err)
	}

	return token, nil
}

func (a *Authenticator) fail(sessionID string, cause error) error {
	if _, err := a.sessions.Settle(sessionID, false); err != nil {
		logger.Warnf("settle session %s as failed: %s", sessionID, err)
	}

	return cause
}

// attributeDigest hashes the canonical JSON form of the attributes. Map keys
// marshal in sorted order, so equal attribute sets digest identically.
func attributeDigest(attributes map[string]interface{}) ([]byte, error) {
	canonical, err := json.Marshal(attributes)
	if err != nil {
		return nil, fmt.Errorf("marshal attributes: %w", err)
	}

	digest := sha256.Sum256(canonical)

	return digest[:], nil
}
