/*
Copyright Attestra Labs. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package authenticator_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/attestra/authbench/pkg/authenticator"
)

type fakeAuthenticator struct {
	kind authenticator.Kind
}

func (f *fakeAuthenticator) Kind() authenticator.Kind {
	return f.kind
}

func (f *fakeAuthenticator) BeginSession(context.Context, string) (*authenticator.Session, error) {
	return nil, nil
}

func (f *fakeAuthenticator) IssueChallenge(context.Context, string) (*authenticator.Challenge, error) {
	return nil, nil
}

func (f *fakeAuthenticator) CompleteSession(context.Context, string,
	*authenticator.Response) (*authenticator.Result, error) {
	return nil, nil
}

func TestRegistry(t *testing.T) {
	t.Run("register and get", func(t *testing.T) {
		registry := authenticator.NewRegistry()

		backend := &fakeAuthenticator{kind: authenticator.KindPassword}
		require.NoError(t, registry.Register(backend))

		got, err := registry.Get(authenticator.KindPassword)
		require.NoError(t, err)
		require.Equal(t, backend, got)
	})

	t.Run("duplicate kind rejected", func(t *testing.T) {
		registry := authenticator.NewRegistry()

		require.NoError(t, registry.Register(&fakeAuthenticator{kind: authenticator.KindPassword}))

		err := registry.Register(&fakeAuthenticator{kind: authenticator.KindPassword})
		require.Error(t, err)
		require.Contains(t, err.Error(), "already registered")
	})

	t.Run("nil authenticator rejected", func(t *testing.T) {
		require.Error(t, authenticator.NewRegistry().Register(nil))
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := authenticator.NewRegistry().Get(authenticator.KindAssertion)
		require.Error(t, err)
	})

	t.Run("kinds are sorted", func(t *testing.T) {
		registry := authenticator.NewRegistry()

		for _, kind := range []authenticator.Kind{
			authenticator.KindPossession,
			authenticator.KindAssertion,
			authenticator.KindPassword,
		} {
			require.NoError(t, registry.Register(&fakeAuthenticator{kind: kind}))
		}

		require.Equal(t, []authenticator.Kind{
			authenticator.KindAssertion,
			authenticator.KindPassword,
			authenticator.KindPossession,
		}, registry.Kinds())
	})
}

func TestAllKinds(t *testing.T) {
	kinds := authenticator.AllKinds()

	require.Len(t, kinds, 4)
	require.Equal(t, []authenticator.Kind{
		authenticator.KindAssertion,
		authenticator.KindDisclosure,
		authenticator.KindPassword,
		authenticator.KindPossession,
	}, kinds)
}

func TestParseKind(t *testing.T) {
	for _, name := range []string{"password", "Password", " possession ", "ASSERTION", "disclosure"} {
		kind, err := authenticator.ParseKind(name)
		require.NoError(t, err)
		require.NotEmpty(t, kind)
	}

	_, err := authenticator.ParseKind("retina-scan")
	require.Error(t, err)
}

func TestStateMachine(t *testing.T) {
	t.Run("terminal states", func(t *testing.T) {
		require.False(t, authenticator.StateInitiated.Terminal())
		require.False(t, authenticator.StateChallengeIssued.Terminal())
		require.True(t, authenticator.StateVerified.Terminal())
		require.True(t, authenticator.StateFailed.Terminal())
		require.True(t, authenticator.StateExpired.Terminal())
	})

	t.Run("transitions", func(t *testing.T) {
		require.True(t, authenticator.StateInitiated.CanTransitionTo(authenticator.StateChallengeIssued))
		require.True(t, authenticator.StateInitiated.CanTransitionTo(authenticator.StateVerified))
		require.True(t, authenticator.StateInitiated.CanTransitionTo(authenticator.StateFailed))
		require.True(t, authenticator.StateInitiated.CanTransitionTo(authenticator.StateExpired))

		require.True(t, authenticator.StateChallengeIssued.CanTransitionTo(authenticator.StateVerified))
		require.True(t, authenticator.StateChallengeIssued.CanTransitionTo(authenticator.StateFailed))
		require.True(t, authenticator.StateChallengeIssued.CanTransitionTo(authenticator.StateExpired))
		require.False(t, authenticator.StateChallengeIssued.CanTransitionTo(authenticator.StateInitiated))

		for _, terminal := range []authenticator.State{
			authenticator.StateVerified,
			authenticator.StateFailed,
			authenticator.StateExpired,
		} {
			for _, next := range []authenticator.State{
				authenticator.StateInitiated,
				authenticator.StateChallengeIssued,
				authenticator.StateVerified,
				authenticator.StateFailed,
				authenticator.StateExpired,
			} {
				require.False(t, terminal.CanTransitionTo(next))
			}
		}
	})
}
