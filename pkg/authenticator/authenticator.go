/*
Copyright Attestra Labs. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package authenticator defines the authentication backend contract shared by every
// scheme in the framework, the registry the runner selects backends from, and the
// session state machine the backends drive.
package authenticator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Kind identifies an authentication scheme.
type Kind string

const (
	// KindPassword is the single-step salted-hash scheme.
	KindPassword Kind = "password"

	// KindAssertion is the signed-JWT assertion scheme.
	KindAssertion Kind = "assertion"

	// KindPossession is the token proof-of-possession scheme.
	KindPossession Kind = "possession"

	// KindDisclosure is the selective-disclosure presentation scheme.
	KindDisclosure Kind = "disclosure"
)

// ErrVerificationFailed is returned when a completion response does not authenticate
// the subject. Completion fails closed: malformed responses classify here as well.
var ErrVerificationFailed = errors.New("authentication verification failed")

// Authenticator is one authentication scheme. Implementations share the session
// machine: BeginSession opens a session, IssueChallenge arms it, CompleteSession
// settles it exactly once.
type Authenticator interface {
	// Kind identifies the scheme.
	Kind() Kind

	// BeginSession opens an authentication session for the subject.
	BeginSession(ctx context.Context, subjectID string) (*Session, error)

	// IssueChallenge arms the session with a single-use challenge. Single-step
	// schemes return a challenge with None set instead of a nonce.
	IssueChallenge(ctx context.Context, sessionID string) (*Challenge, error)

	// CompleteSession settles the session with the subject's response. On success it
	// returns the result; on any failure the session moves to Failed and the error
	// classifies the cause.
	CompleteSession(ctx context.Context, sessionID string, response *Response) (*Result, error)
}

// Challenge is the verifier's single-use challenge for one session.
type Challenge struct {
	SessionID string    `json:"sessionId"`
	ID        string    `json:"id"`
	Nonce     []byte    `json:"nonce,omitempty"`
	ExpiresAt time.Time `json:"expiresAt"`

	// Requested names the credential attributes the verifier expects the subject
	// to reveal. Only selective-disclosure challenges set it.
	Requested []string `json:"requested,omitempty"`

	// None marks a challenge from a single-step scheme that has nothing for the
	// subject to answer beyond its enrolled factor.
	None bool `json:"none,omitempty"`
}

// Response is a subject agent's answer to a challenge. The field matching the
// authenticator kind is set; the rest stay empty.
type Response struct {
	// Secret answers a password challenge.
	Secret string `json:"secret,omitempty"`

	// Assertion answers an assertion challenge with a compact signed JWT.
	Assertion string `json:"assertion,omitempty"`

	// TokenID and Proof answer a possession challenge.
	TokenID string `json:"tokenId,omitempty"`
	Proof   []byte `json:"proof,omitempty"`

	// Presentation and Revealed answer a disclosure challenge. Presentation is a
	// multibase-encoded derived proof over the revealed attributes.
	Presentation string                 `json:"presentation,omitempty"`
	Revealed     map[string]interface{} `json:"revealed,omitempty"`
}

// Result is the settled outcome of a completed session.
type Result struct {
	SessionID string `json:"sessionId"`
	SubjectID string `json:"subjectId"`
	Kind      Kind   `json:"kind"`
	Verified  bool   `json:"verified"`

	// DisclosedAttributes counts the attributes revealed to the verifier during this
	// authentication. Zero for schemes that disclose nothing.
	DisclosedAttributes int `json:"disclosedAttributes,omitempty"`
}

// Registry holds the configured authenticators keyed by kind.
type Registry struct {
	mu       sync.RWMutex
	backends map[Kind]Authenticator
}

// NewRegistry returns an empty authenticator registry.
func NewRegistry() *Registry {
	return &Registry{backends: map[Kind]Authenticator{}}
}

// Register adds an authenticator. Registering a kind twice is rejected.
func (r *Registry) Register(a Authenticator) error {
	if a == nil {
		return errors.New("authenticator cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.backends[a.Kind()]; ok {
		return fmt.Errorf("authenticator kind %q already registered", a.Kind())
	}

	r.backends[a.Kind()] = a

	return nil
}

// Get returns the authenticator registered for the kind.
func (r *Registry) Get(kind Kind) (Authenticator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.backends[kind]
	if !ok {
		return nil, fmt.Errorf("no authenticator registered for kind %q", kind)
	}

	return a, nil
}

// Kinds lists the registered kinds in lexical order.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]Kind, 0, len(r.backends))

	for kind := range r.backends {
		kinds = append(kinds, kind)
	}

	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	return kinds
}

// AllKinds returns every built-in kind in lexical order.
func AllKinds() []Kind {
	return []Kind{KindAssertion, KindDisclosure, KindPassword, KindPossession}
}

// ParseKind resolves a configured kind name.
func ParseKind(name string) (Kind, error) {
	kind := Kind(strings.ToLower(strings.TrimSpace(name)))

	switch kind {
	case KindPassword, KindAssertion, KindPossession, KindDisclosure:
		return kind, nil
	default:
		return "", fmt.Errorf("unknown authenticator kind %q", name)
	}
}
