/*
Copyright Attestra Labs. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package proof implements a commitment-based proof-of-knowledge engine. A prover
// commits to a secret, later proves knowledge of the committed secret against a
// single-use, time-limited challenge, and a verifier checks the proof without ever
// seeing the secret.
package proof

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/attestra/authbench/pkg/common/log"
	"github.com/attestra/authbench/pkg/crypto/primitive/pedersen"
	"github.com/attestra/authbench/spi/storage"
)

var logger = log.New("authbench/proof")

const (
	challengeStoreName = "proofchallenge"
	challengeTagName   = "proofChallenge"
	claimKeyPrefix     = "claim_"

	nonceSize = 32

	// DefaultChallengeTTL bounds the lifetime of an issued challenge.
	DefaultChallengeTTL = 5000 * time.Millisecond
)

var (
	// ErrInvalidSecret is returned when the secret to commit to or prove is empty.
	ErrInvalidSecret = errors.New("invalid secret")

	// ErrReplayDetected is returned when a challenge is presented a second time, or
	// when the presented challenge was never issued by this engine.
	ErrReplayDetected = errors.New("replay detected")

	// ErrChallengeExpired is returned when a challenge is presented after its TTL.
	ErrChallengeExpired = errors.New("challenge expired")

	// ErrVerificationFailed is returned when a proof does not verify against the
	// commitment and challenge it is presented with.
	ErrVerificationFailed = errors.New("proof verification failed")
)

// Commitment is a binding, hiding commitment to a secret.
type Commitment struct {
	C []byte `json:"c"`
}

// Witness opens a commitment. It stays with the prover and is never persisted by the
// engine.
type Witness struct {
	R []byte `json:"r"`
}

// Challenge is a single-use nonce handed to a prover. It expires after the engine's
// challenge TTL.
type Challenge struct {
	ID        string    `json:"id"`
	Nonce     []byte    `json:"nonce"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Proof demonstrates knowledge of a committed secret for one challenge.
type Proof struct {
	ChallengeID string `json:"challengeId"`
	PoK         []byte `json:"pok"`
}

// Provider contains dependencies for the proof Engine.
type Provider interface {
	StorageProvider() storage.Provider
}

// Engine issues challenges and verifies proofs of knowledge of committed secrets.
// Challenges are claimed atomically on first use, so a proof replayed against the
// same challenge is rejected even under concurrent verification.
type Engine struct {
	committer *pedersen.Committer
	store     storage.Store
	ttl       time.Duration
	sweepEach time.Duration
	done      chan struct{}
	closeOnce sync.Once
}

// Option configures the Engine.
type Option func(*Engine)

// WithChallengeTTL sets how long an issued challenge stays valid.
func WithChallengeTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		if ttl > 0 {
			e.ttl = ttl
		}
	}
}

// WithSweepInterval sets how often expired challenges are swept from the store.
// Expiry is also enforced lazily on access, so the sweep only reclaims storage.
func WithSweepInterval(interval time.Duration) Option {
	return func(e *Engine) {
		if interval > 0 {
			e.sweepEach = interval
		}
	}
}

// New returns a proof Engine backed by the provider's storage.
func New(ctx Provider, opts ...Option) (*Engine, error) {
	store, err := ctx.StorageProvider().OpenStore(challengeStoreName)
	if err != nil {
		return nil, fmt.Errorf("open challenge store: %w", err)
	}

	e := &Engine{
		committer: pedersen.New([]byte("authbench-proof-engine")),
		store:     store,
		ttl:       DefaultChallengeTTL,
		done:      make(chan struct{}),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.sweepEach == 0 {
		e.sweepEach = e.ttl
	}

	go e.sweepLoop()

	return e, nil
}

// Close stops the background challenge sweeper. Calling Close more than once is safe.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		close(e.done)
	})
}

// Commit commits to the secret. The returned commitment can be shared with a verifier;
// the witness stays with the prover.
func (e *Engine) Commit(secret []byte) (*Commitment, *Witness, error) {
	if len(secret) == 0 {
		return nil, nil, fmt.Errorf("commit: %w", ErrInvalidSecret)
	}

	commitment, witness, err := e.committer.Commit(secret)
	if err != nil {
		return nil, nil, fmt.Errorf("commit: %w", err)
	}

	return &Commitment{C: commitment.ToBytes()}, &Witness{R: witness.ToBytes()}, nil
}

// NewChallenge issues a fresh single-use challenge with the engine's TTL.
func (e *Engine) NewChallenge(ctx context.Context) (*Challenge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceSize)

	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate challenge nonce: %w", err)
	}

	challenge := &Challenge{
		ID:        uuid.New().String(),
		Nonce:     nonce,
		ExpiresAt: time.Now().Add(e.ttl),
	}

	record, err := json.Marshal(challenge)
	if err != nil {
		return nil, fmt.Errorf("marshal challenge record: %w", err)
	}

	err = e.store.PutIfAbsent(challenge.ID, record, storage.Tag{Name: challengeTagName})
	if err != nil {
		return nil, fmt.Errorf("save challenge record: %w", err)
	}

	return challenge, nil
}

// Prove creates a proof of knowledge of the committed secret, bound to the challenge.
func (e *Engine) Prove(secret []byte, witness *Witness, challenge *Challenge) (*Proof, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("prove: %w", ErrInvalidSecret)
	}

	if witness == nil || challenge == nil {
		return nil, errors.New("prove: witness and challenge must be provided")
	}

	w, err := pedersen.ParseWitness(witness.R)
	if err != nil {
		return nil, fmt.Errorf("parse witness: %w", err)
	}

	pok, err := e.committer.Prove(secret, w, challenge.Nonce)
	if err != nil {
		return nil, fmt.Errorf("prove: %w", err)
	}

	return &Proof{ChallengeID: challenge.ID, PoK: pok}, nil
}

// Verify reports whether the proof demonstrates knowledge of the secret committed to
// by the commitment, for the given challenge. It fails closed: any malformed input
// yields false.
func (e *Engine) Verify(commitment *Commitment, challengeID string, proof *Proof) bool {
	return e.VerifyDetail(commitment, challengeID, proof) == nil
}

// VerifyDetail verifies like Verify but returns the classified failure: replay,
// expiry, or verification failure. The challenge is claimed atomically before any
// algebra runs, so the first caller consumes it whatever the proof's validity.
func (e *Engine) VerifyDetail(commitment *Commitment, challengeID string, proof *Proof) error {
	if commitment == nil || proof == nil || challengeID == "" {
		return fmt.Errorf("malformed verification input: %w", ErrVerificationFailed)
	}

	if proof.ChallengeID != challengeID {
		return fmt.Errorf("proof is bound to another challenge: %w", ErrVerificationFailed)
	}

	challenge, err := e.claimChallenge(challengeID)
	if err != nil {
		return err
	}

	if err := e.committer.VerifyProof(commitment.C, proof.PoK, challenge.Nonce); err != nil {
		return fmt.Errorf("%w: %s", ErrVerificationFailed, err.Error())
	}

	return nil
}

// claimChallenge consumes the challenge. The claim marker insert is atomic at the
// storage level, so concurrent claims of the same challenge admit exactly one caller.
func (e *Engine) claimChallenge(challengeID string) (*Challenge, error) {
	record, err := e.store.Get(challengeID)
	if err != nil {
		if errors.Is(err, storage.ErrDataNotFound) {
			return nil, fmt.Errorf("challenge %q is unknown or already consumed: %w",
				challengeID, ErrReplayDetected)
		}

		return nil, fmt.Errorf("get challenge record: %w", err)
	}

	challenge := &Challenge{}
	if err := json.Unmarshal(record, challenge); err != nil {
		return nil, fmt.Errorf("unmarshal challenge record: %w", err)
	}

	err = e.store.PutIfAbsent(claimKeyPrefix+challengeID, []byte("claimed"))
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil, fmt.Errorf("challenge %q already consumed: %w",
				challengeID, ErrReplayDetected)
		}

		return nil, fmt.Errorf("claim challenge: %w", err)
	}

	if time.Now().After(challenge.ExpiresAt) {
		return nil, fmt.Errorf("challenge %q: %w", challengeID, ErrChallengeExpired)
	}

	return challenge, nil
}
