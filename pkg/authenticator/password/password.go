/*
Copyright Attestra Labs. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package password implements the single-step salted-hash authenticator. Secrets
// are stretched with PBKDF2-SHA512 at enrollment and completion compares digests in
// constant time, so neither the stored record nor the comparison leaks the secret.
package password

import (
	"context"
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/pbkdf2"

	"github.com/attestra/authbench/pkg/authenticator"
	"github.com/attestra/authbench/pkg/common/log"
	"github.com/attestra/authbench/spi/storage"
)

var logger = log.New("authbench/password")

const (
	enrollmentStoreName = "pwenrollment"

	iterations = 100000
	keyLength  = 32
	saltLength = 32
)

// Provider supplies this authenticator's dependencies.
type Provider interface {
	StorageProvider() storage.Provider
	Sessions() *authenticator.Sessions
}

// Authenticator verifies subjects against their enrolled password digest.
type Authenticator struct {
	store    storage.Store
	sessions *authenticator.Sessions
}

type enrollment struct {
	SubjectID  string    `json:"subjectId"`
	Salt       []byte    `json:"salt"`
	Hash       []byte    `json:"hash"`
	Iterations int       `json:"iterations"`
	CreatedAt  time.Time `json:"createdAt"`
}

// New returns a password authenticator backed by the provider's storage and
// session manager.
func New(ctx Provider) (*Authenticator, error) {
	store, err := ctx.StorageProvider().OpenStore(enrollmentStoreName)
	if err != nil {
		return nil, fmt.Errorf("open password enrollment store: %w", err)
	}

	return &Authenticator{
		store:    store,
		sessions: ctx.Sessions(),
	}, nil
}

// Kind returns authenticator.KindPassword.
func (a *Authenticator) Kind() authenticator.Kind {
	return authenticator.KindPassword
}

// Enroll stores the subject's stretched secret. A subject enrolls at most once.
func (a *Authenticator) Enroll(subjectID string, secret []byte) error {
	if subjectID == "" {
		return errors.New("subject ID cannot be empty")
	}

	if len(secret) == 0 {
		return errors.New("secret cannot be empty")
	}

	salt := make([]byte, saltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return fmt.Errorf("generate salt: %w", err)
	}

	record, err := json.Marshal(&enrollment{
		SubjectID:  subjectID,
		Salt:       salt,
		Hash:       pbkdf2.Key(secret, salt, iterations, keyLength, sha512.New),
		Iterations: iterations,
		CreatedAt:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("marshal password enrollment: %w", err)
	}

	if err := a.store.PutIfAbsent(subjectID, record); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return fmt.Errorf("subject %s is already enrolled", subjectID)
		}

		return fmt.Errorf("store password enrollment: %w", err)
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

// IssueChallenge arms the session. The password scheme is single-step, so the
// challenge carries nothing to answer and only marks the session ready to settle.
func (a *Authenticator) IssueChallenge(ctx context.Context, sessionID string) (*authenticator.Challenge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	challengeID := uuid.New().String()

	sess, err := a.sessions.Arm(sessionID, challengeID)
	if err != nil {
		return nil, err
	}

	return &authenticator.Challenge{
		SessionID: sess.ID,
		ID:        challengeID,
		ExpiresAt: sess.ExpiresAt,
		None:      true,
	}, nil
}

// CompleteSession settles the session by comparing the response secret against the
// subject's enrollment.
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

	if err := a.verify(sess.SubjectID, response.Secret); err != nil {
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

// verify fails closed: a subject without an enrollment is indistinguishable from
// one presenting the wrong secret.
func (a *Authenticator) verify(subjectID, secret string) error {
	record, err := a.store.Get(subjectID)
	if err != nil {
		if errors.Is(err, storage.ErrDataNotFound) {
			return fmt.Errorf("subject %s has no password enrollment: %w",
				subjectID, authenticator.ErrVerificationFailed)
		}

		return fmt.Errorf("get password enrollment: %w", err)
	}

	enrolled := &enrollment{}
	if err := json.Unmarshal(record, enrolled); err != nil {
		return fmt.Errorf("unmarshal password enrollment: %w", err)
	}

	derived := pbkdf2.Key([]byte(secret), enrolled.Salt, enrolled.Iterations, keyLength, sha512.New)

	if subtle.ConstantTimeCompare(derived, enrolled.Hash) != 1 {
		return fmt.Errorf("secret mismatch for subject %s: %w",
			subjectID, authenticator.ErrVerificationFailed)
	}

	return nil
}

func (a *Authenticator) fail(sessionID string, cause error) error {
	if _, err := a.sessions.Settle(sessionID, false); err != nil {
		logger.Warnf("settle session %s as failed: %s", sessionID, err)
	}

	return cause
}
