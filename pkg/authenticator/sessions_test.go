/*
Copyright Attestra Labs. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package authenticator_test

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/attestra/authbench/pkg/authenticator"
	mockstorage "github.com/attestra/authbench/pkg/mock/storage"
	"github.com/attestra/authbench/pkg/storage/mem"
	spi "github.com/attestra/authbench/spi/storage"
)

type testProvider struct {
	storageProvider spi.Provider
}

func (p *testProvider) StorageProvider() spi.Provider {
	return p.storageProvider
}

func memProvider() *testProvider {
	return &testProvider{storageProvider: mem.NewProvider()}
}

func TestNewSessions(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		sessions, err := authenticator.NewSessions(memProvider())
		require.NoError(t, err)
		require.NotNil(t, sessions)

		sessions.Close()
	})

	t.Run("open store error", func(t *testing.T) {
		provider := mockstorage.NewMockStoreProvider()
		provider.ErrOpenStoreHandle = errors.New("open store error")

		sessions, err := authenticator.NewSessions(&testProvider{storageProvider: provider})
		require.Error(t, err)
		require.Contains(t, err.Error(), "open session store")
		require.Nil(t, sessions)
	})
}

func TestSessions_Begin(t *testing.T) {
	sessions, err := authenticator.NewSessions(memProvider())
	require.NoError(t, err)

	defer sessions.Close()

	t.Run("success", func(t *testing.T) {
		sess, err := sessions.Begin(authenticator.KindPassword, "subject-1")
		require.NoError(t, err)
		require.NotEmpty(t, sess.ID)
		require.Equal(t, "subject-1", sess.SubjectID)
		require.Equal(t, authenticator.KindPassword, sess.Kind)
		require.Equal(t, authenticator.StateInitiated, sess.State)
		require.True(t, sess.ExpiresAt.After(sess.CreatedAt))
	})

	t.Run("empty subject", func(t *testing.T) {
		sess, err := sessions.Begin(authenticator.KindPassword, "")
		require.Error(t, err)
		require.Nil(t, sess)
	})

	t.Run("distinct IDs", func(t *testing.T) {
		first, err := sessions.Begin(authenticator.KindAssertion, "subject-1")
		require.NoError(t, err)

		second, err := sessions.Begin(authenticator.KindAssertion, "subject-1")
		require.NoError(t, err)

		require.NotEqual(t, first.ID, second.ID)
	})
}

func TestSessions_Get(t *testing.T) {
	sessions, err := authenticator.NewSessions(memProvider())
	require.NoError(t, err)

	defer sessions.Close()

	t.Run("round trip", func(t *testing.T) {
		begun, err := sessions.Begin(authenticator.KindPossession, "subject-1")
		require.NoError(t, err)

		got, err := sessions.Get(begun.ID)
		require.NoError(t, err)
		require.Equal(t, begun.ID, got.ID)
		require.Equal(t, authenticator.StateInitiated, got.State)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := sessions.Get("no-such-session")
		require.ErrorIs(t, err, authenticator.ErrSessionNotFound)
	})
}

func TestSessions_Arm(t *testing.T) {
	sessions, err := authenticator.NewSessions(memProvider())
	require.NoError(t, err)

	defer sessions.Close()

	t.Run("success", func(t *testing.T) {
		sess, err := sessions.Begin(authenticator.KindAssertion, "subject-1")
		require.NoError(t, err)

		armed, err := sessions.Arm(sess.ID, "challenge-1")
		require.NoError(t, err)
		require.Equal(t, authenticator.StateChallengeIssued, armed.State)
		require.Equal(t, "challenge-1", armed.ChallengeID)
	})

	t.Run("challenge is single-use per session", func(t *testing.T) {
		sess, err := sessions.Begin(authenticator.KindAssertion, "subject-1")
		require.NoError(t, err)

		_, err = sessions.Arm(sess.ID, "challenge-1")
		require.NoError(t, err)

		_, err = sessions.Arm(sess.ID, "challenge-2")
		require.ErrorIs(t, err, authenticator.ErrChallengeClaimed)
	})

	t.Run("settled session cannot arm", func(t *testing.T) {
		sess, err := sessions.Begin(authenticator.KindAssertion, "subject-1")
		require.NoError(t, err)

		_, err = sessions.Settle(sess.ID, false)
		require.NoError(t, err)

		_, err = sessions.Arm(sess.ID, "challenge-1")
		require.ErrorIs(t, err, authenticator.ErrInvalidTransition)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := sessions.Arm("no-such-session", "challenge-1")
		require.ErrorIs(t, err, authenticator.ErrSessionNotFound)
	})
}

func TestSessions_Settle(t *testing.T) {
	sessions, err := authenticator.NewSessions(memProvider())
	require.NoError(t, err)

	defer sessions.Close()

	t.Run("verified", func(t *testing.T) {
		sess, err := sessions.Begin(authenticator.KindPassword, "subject-1")
		require.NoError(t, err)

		_, err = sessions.Arm(sess.ID, "challenge-1")
		require.NoError(t, err)

		settled, err := sessions.Settle(sess.ID, true)
		require.NoError(t, err)
		require.Equal(t, authenticator.StateVerified, settled.State)
	})

	t.Run("failed", func(t *testing.T) {
		sess, err := sessions.Begin(authenticator.KindPassword, "subject-1")
		require.NoError(t, err)

		settled, err := sessions.Settle(sess.ID, false)
		require.NoError(t, err)
		require.Equal(t, authenticator.StateFailed, settled.State)
		require.False(t, settled.Aborted)
	})

	t.Run("settling twice fails", func(t *testing.T) {
		sess, err := sessions.Begin(authenticator.KindPassword, "subject-1")
		require.NoError(t, err)

		_, err = sessions.Settle(sess.ID, true)
		require.NoError(t, err)

		_, err = sessions.Settle(sess.ID, true)
		require.ErrorIs(t, err, authenticator.ErrInvalidTransition)
	})
}

func TestSessions_Abort(t *testing.T) {
	sessions, err := authenticator.NewSessions(memProvider())
	require.NoError(t, err)

	defer sessions.Close()

	t.Run("in-flight session settles failed", func(t *testing.T) {
		sess, err := sessions.Begin(authenticator.KindDisclosure, "subject-1")
		require.NoError(t, err)

		_, err = sessions.Arm(sess.ID, "challenge-1")
		require.NoError(t, err)

		aborted, err := sessions.Abort(sess.ID)
		require.NoError(t, err)
		require.Equal(t, authenticator.StateFailed, aborted.State)
		require.True(t, aborted.Aborted)

		// A completion arriving after the abort is turned away.
		_, err = sessions.Active(sess.ID, authenticator.KindDisclosure)
		require.ErrorIs(t, err, authenticator.ErrSessionAborted)
	})

	t.Run("settled session cannot abort", func(t *testing.T) {
		sess, err := sessions.Begin(authenticator.KindDisclosure, "subject-1")
		require.NoError(t, err)

		_, err = sessions.Settle(sess.ID, true)
		require.NoError(t, err)

		_, err = sessions.Abort(sess.ID)
		require.ErrorIs(t, err, authenticator.ErrInvalidTransition)
	})
}

func TestSessions_Active(t *testing.T) {
	sessions, err := authenticator.NewSessions(memProvider())
	require.NoError(t, err)

	defer sessions.Close()

	t.Run("success", func(t *testing.T) {
		sess, err := sessions.Begin(authenticator.KindPassword, "subject-1")
		require.NoError(t, err)

		active, err := sessions.Active(sess.ID, authenticator.KindPassword)
		require.NoError(t, err)
		require.Equal(t, sess.ID, active.ID)
	})

	t.Run("kind mismatch", func(t *testing.T) {
		sess, err := sessions.Begin(authenticator.KindPassword, "subject-1")
		require.NoError(t, err)

		_, err = sessions.Active(sess.ID, authenticator.KindAssertion)
		require.Error(t, err)
		require.Contains(t, err.Error(), "belongs to")
	})
}

func TestSessions_Expiry(t *testing.T) {
	sessions, err := authenticator.NewSessions(memProvider(),
		authenticator.WithSessionTTL(10*time.Millisecond),
		authenticator.WithSweepInterval(time.Hour))
	require.NoError(t, err)

	defer sessions.Close()

	sess, err := sessions.Begin(authenticator.KindPassword, "subject-1")
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	got, err := sessions.Get(sess.ID)
	require.NoError(t, err)
	require.Equal(t, authenticator.StateExpired, got.State)

	_, err = sessions.Settle(sess.ID, true)
	require.ErrorIs(t, err, authenticator.ErrSessionExpired)

	_, err = sessions.Abort(sess.ID)
	require.ErrorIs(t, err, authenticator.ErrSessionExpired)
}

func TestSessions_Sweep(t *testing.T) {
	provider := memProvider()

	sessions, err := authenticator.NewSessions(provider,
		authenticator.WithSessionTTL(10*time.Millisecond),
		authenticator.WithSweepInterval(20*time.Millisecond))
	require.NoError(t, err)

	defer sessions.Close()

	sess, err := sessions.Begin(authenticator.KindPassword, "subject-1")
	require.NoError(t, err)

	// The sweeper marks the overdue record expired without any access through the
	// manager.
	store, err := provider.StorageProvider().OpenStore("authsession")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		record, err := store.Get(sess.ID)
		if err != nil {
			return false
		}

		return string(record) != "" &&
			strings.Contains(string(record), string(authenticator.StateExpired))
	}, time.Second, 10*time.Millisecond)
}

func TestSessions_ConcurrentSettle(t *testing.T) {
	sessions, err := authenticator.NewSessions(memProvider())
	require.NoError(t, err)

	defer sessions.Close()

	sess, err := sessions.Begin(authenticator.KindPossession, "subject-1")
	require.NoError(t, err)

	_, err = sessions.Arm(sess.ID, "challenge-1")
	require.NoError(t, err)

	const workers = 16

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		settled  int
		rejected int
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := sessions.Settle(sess.ID, true)

			mu.Lock()
			defer mu.Unlock()

			switch {
			case err == nil:
				settled++
			case errors.Is(err, authenticator.ErrInvalidTransition):
				rejected++
			default:
				t.Errorf("unexpected settle error: %s", err)
			}
		}()
	}

	wg.Wait()

	require.Equal(t, 1, settled)
	require.Equal(t, workers-1, rejected)
}

func TestSessions_Close(t *testing.T) {
	sessions, err := authenticator.NewSessions(memProvider())
	require.NoError(t, err)

	sessions.Close()
	sessions.Close()
}
