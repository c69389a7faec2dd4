/*
Copyright Attestra Labs. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package authenticator

import (
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/attestra/authbench/pkg/common/log"
	"github.com/attestra/authbench/spi/storage"
)

var logger = log.New("authbench/authenticator")

const (
	sessionStoreName = "authsession"
	sessionTagName   = "authSession"

	lockStripes = 64

	// DefaultSessionTTL bounds how long a session may stay unsettled before it
	// expires.
	DefaultSessionTTL = 5000 * time.Millisecond
)

var (
	// ErrSessionNotFound is returned when the referenced session does not exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExpired is returned when the session TTL lapsed before settlement.
	ErrSessionExpired = errors.New("session expired")

	// ErrSessionAborted is returned when the session was explicitly aborted before
	// settlement.
	ErrSessionAborted = errors.New("session aborted")

	// ErrInvalidTransition is returned when an operation would move a session along
	// an edge the state machine does not have, e.g. settling a session twice.
	ErrInvalidTransition = errors.New("invalid session transition")

	// ErrChallengeClaimed is returned when a second challenge is requested for a
	// session that already holds one. Challenges are single-use and a session arms
	// at most once.
	ErrChallengeClaimed = errors.New("challenge already claimed for session")
)

// Session is one authentication attempt for one subject against one backend. It is
// the shared mutable record every backend drives through the state machine.
type Session struct {
	ID          string    `json:"id"`
	SubjectID   string    `json:"subjectId"`
	Kind        Kind      `json:"kind"`
	State       State     `json:"state"`
	ChallengeID string    `json:"challengeId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	ExpiresAt   time.Time `json:"expiresAt"`

	// Aborted marks a session settled by Abort rather than by a completion
	// response.
	Aborted bool `json:"aborted,omitempty"`
}

// SessionsProvider supplies the session manager's dependencies.
type SessionsProvider interface {
	StorageProvider() storage.Provider
}

// Sessions manages the shared session records. All transitions happen under a
// per-session lock and consult State.CanTransitionTo, so concurrent completions of
// the same session settle it exactly once.
type Sessions struct {
	store     storage.Store
	ttl       time.Duration
	sweepEach time.Duration
	locks     [lockStripes]sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

// SessionsOption configures the session manager.
type SessionsOption func(*Sessions)

// WithSessionTTL overrides DefaultSessionTTL for all sessions the manager begins.
func WithSessionTTL(ttl time.Duration) SessionsOption {
	return func(s *Sessions) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithSweepInterval overrides how often the background sweeper marks overdue
// sessions expired. Expiry is also enforced lazily on access, so the sweep only
// keeps the stored records honest.
func WithSweepInterval(interval time.Duration) SessionsOption {
	return func(s *Sessions) {
		if interval > 0 {
			s.sweepEach = interval
		}
	}
}

// NewSessions returns a session manager backed by the provider's storage.
func NewSessions(ctx SessionsProvider, opts ...SessionsOption) (*Sessions, error) {
	store, err := ctx.StorageProvider().OpenStore(sessionStoreName)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	s := &Sessions{
		store: store,
		ttl:   DefaultSessionTTL,
		done:  make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.sweepEach == 0 {
		s.sweepEach = s.ttl
	}

	go s.sweepLoop()

	return s, nil
}

// Close stops the background session sweeper. Calling Close more than once is safe.
func (s *Sessions) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

// Begin creates a session in StateInitiated for the subject and kind.
func (s *Sessions) Begin(kind Kind, subjectID string) (*Session, error) {
	if subjectID == "" {
		return nil, errors.New("subject ID cannot be empty")
	}

	now := time.Now()

	sess := &Session{
		ID:        uuid.New().String(),
		SubjectID: subjectID,
		Kind:      kind,
		State:     StateInitiated,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	record, err := json.Marshal(sess)
	if err != nil {
		return nil, fmt.Errorf("marshal session: %w", err)
	}

	err = s.store.PutIfAbsent(sess.ID, record, storage.Tag{Name: sessionTagName})
	if err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}

	return sess, nil
}

// Get returns the session, expiring it first if its TTL already lapsed.
func (s *Sessions) Get(sessionID string) (*Session, error) {
	lock := s.lock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	return s.getExpiring(sessionID)
}

// Arm transitions the session to StateChallengeIssued and binds the challenge to
// it. A session arms at most once: a second Arm fails with ErrChallengeClaimed.
func (s *Sessions) Arm(sessionID, challengeID string) (*Session, error) {
	lock := s.lock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, err := s.getExpiring(sessionID)
	if err != nil {
		return nil, err
	}

	if err := checkSettleable(sess); err != nil {
		return nil, err
	}

	if sess.State == StateChallengeIssued {
		return nil, ErrChallengeClaimed
	}

	if !sess.State.CanTransitionTo(StateChallengeIssued) {
		return nil, fmt.Errorf("arm session in state %q: %w", sess.State, ErrInvalidTransition)
	}

	sess.State = StateChallengeIssued
	sess.ChallengeID = challengeID

	if err := s.save(sess); err != nil {
		return nil, err
	}

	return sess, nil
}

// Settle moves the session to StateVerified or StateFailed. Exactly one Settle
// succeeds per session; later calls fail with ErrInvalidTransition.
func (s *Sessions) Settle(sessionID string, verified bool) (*Session, error) {
	lock := s.lock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, err := s.getExpiring(sessionID)
	if err != nil {
		return nil, err
	}

	if err := checkSettleable(sess); err != nil {
		return nil, err
	}

	target := StateFailed
	if verified {
		target = StateVerified
	}

	if !sess.State.CanTransitionTo(target) {
		return nil, fmt.Errorf("settle session in state %q: %w", sess.State, ErrInvalidTransition)
	}

	sess.State = target

	if err := s.save(sess); err != nil {
		return nil, err
	}

	return sess, nil
}

// Abort settles an in-flight session as failed regardless of any pending challenge
// response. Aborting a session that already reached a terminal state fails with
// ErrInvalidTransition.
func (s *Sessions) Abort(sessionID string) (*Session, error) {
	lock := s.lock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, err := s.getExpiring(sessionID)
	if err != nil {
		return nil, err
	}

	if sess.State == StateExpired {
		return nil, ErrSessionExpired
	}

	if !sess.State.CanTransitionTo(StateFailed) {
		return nil, fmt.Errorf("abort session in state %q: %w", sess.State, ErrInvalidTransition)
	}

	sess.State = StateFailed
	sess.Aborted = true

	if err := s.save(sess); err != nil {
		return nil, err
	}

	return sess, nil
}

// Active returns the session if it belongs to kind and can still be settled. It is
// the completion-path prologue shared by all backends.
func (s *Sessions) Active(sessionID string, kind Kind) (*Session, error) {
	sess, err := s.Get(sessionID)
	if err != nil {
		return nil, err
	}

	if sess.Kind != kind {
		return nil, fmt.Errorf("session %s belongs to authenticator %q, not %q",
			sessionID, sess.Kind, kind)
	}

	if err := checkSettleable(sess); err != nil {
		return nil, err
	}

	return sess, nil
}

// getExpiring loads the session and lazily expires it when overdue. Callers hold
// the session's stripe lock.
func (s *Sessions) getExpiring(sessionID string) (*Session, error) {
	record, err := s.store.Get(sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrDataNotFound) {
			return nil, fmt.Errorf("session %s: %w", sessionID, ErrSessionNotFound)
		}

		return nil, fmt.Errorf("get session %s: %w", sessionID, err)
	}

	sess := &Session{}
	if err := json.Unmarshal(record, sess); err != nil {
		return nil, fmt.Errorf("unmarshal session %s: %w", sessionID, err)
	}

	if !sess.State.Terminal() && time.Now().After(sess.ExpiresAt) {
		sess.State = StateExpired

		if err := s.save(sess); err != nil {
			return nil, err
		}
	}

	return sess, nil
}

func (s *Sessions) save(sess *Session) error {
	record, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	if err := s.store.Put(sess.ID, record, storage.Tag{Name: sessionTagName}); err != nil {
		return fmt.Errorf("store session: %w", err)
	}

	return nil
}

func (s *Sessions) lock(sessionID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))

	return &s.locks[h.Sum32()%lockStripes]
}

// checkSettleable rejects sessions that can no longer settle, mapping each terminal
// cause to its sentinel.
func checkSettleable(sess *Session) error {
	if sess.Aborted {
		return fmt.Errorf("session %s: %w", sess.ID, ErrSessionAborted)
	}

	switch sess.State {
	case StateExpired:
		return fmt.Errorf("session %s: %w", sess.ID, ErrSessionExpired)
	case StateVerified, StateFailed:
		return fmt.Errorf("session %s already settled as %q: %w", sess.ID, sess.State, ErrInvalidTransition)
	}

	return nil
}
