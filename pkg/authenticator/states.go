/*
Copyright Attestra Labs. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package authenticator

// State is a step in the session lifecycle. Every session walks the same machine
// regardless of which authenticator kind drives it:
//
//	Initiated -> ChallengeIssued -> Verified | Failed
//
// with Expired reachable from either non-terminal state once the session TTL lapses.
// Single-step schemes may settle straight from Initiated.
type State string

const (
	// StateInitiated is the entry state: the session exists but no challenge has
	// been armed yet.
	StateInitiated State = "initiated"

	// StateChallengeIssued means a single-use challenge is armed and the session is
	// waiting for the subject's response.
	StateChallengeIssued State = "challenge-issued"

	// StateVerified is the terminal success state.
	StateVerified State = "verified"

	// StateFailed is the terminal failure state. Aborted sessions settle here too.
	StateFailed State = "failed"

	// StateExpired is the terminal state for sessions whose TTL lapsed before they
	// settled.
	StateExpired State = "expired"
)

// Terminal reports whether no further transition is possible from s.
func (s State) Terminal() bool {
	switch s {
	case StateVerified, StateFailed, StateExpired:
		return true
	}

	return false
}

// CanTransitionTo reports whether the machine permits moving from s to next. All
// session mutations go through this check, so an illegal hop surfaces as
// ErrInvalidTransition instead of silently overwriting a settled session.
func (s State) CanTransitionTo(next State) bool {
	switch s {
	case StateInitiated:
		return next == StateChallengeIssued || next == StateVerified ||
			next == StateFailed || next == StateExpired
	case StateChallengeIssued:
		return next == StateVerified || next == StateFailed || next == StateExpired
	}

	return false
}
