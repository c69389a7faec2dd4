/*
Copyright Attestra Labs. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package proof_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	mockstorage "github.com/attestra/authbench/pkg/mock/storage"
	"github.com/attestra/authbench/pkg/proof"
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

func TestNew(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		engine, err := proof.New(memProvider())
		require.NoError(t, err)
		require.NotNil(t, engine)

		engine.Close()
	})

	t.Run("open store error", func(t *testing.T) {
		provider := mockstorage.NewMockStoreProvider()
		provider.ErrOpenStoreHandle = errors.New("open store error")

		engine, err := proof.New(&testProvider{storageProvider: provider})
		require.Error(t, err)
		require.Contains(t, err.Error(), "open challenge store")
		require.Nil(t, engine)
	})
}

func TestEngine_Commit(t *testing.T) {
	engine, err := proof.New(memProvider())
	require.NoError(t, err)

	defer engine.Close()

	commitment, witness, err := engine.Commit([]byte("s3cr3t"))
	require.NoError(t, err)
	require.NotNil(t, commitment)
	require.NotNil(t, witness)
	require.Len(t, commitment.C, 48)
	require.Len(t, witness.R, 32)

	t.Run("empty secret", func(t *testing.T) {
		commitment, witness, err := engine.Commit(nil)
		require.ErrorIs(t, err, proof.ErrInvalidSecret)
		require.Nil(t, commitment)
		require.Nil(t, witness)
	})
}

func TestEngine_NewChallenge(t *testing.T) {
	engine, err := proof.New(memProvider())
	require.NoError(t, err)

	defer engine.Close()

	challenge, err := engine.NewChallenge(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, challenge.ID)
	require.Len(t, challenge.Nonce, 32)
	require.True(t, challenge.ExpiresAt.After(time.Now()))

	t.Run("fresh nonce and ID on every challenge", func(t *testing.T) {
		other, err := engine.NewChallenge(context.Background())
		require.NoError(t, err)
		require.NotEqual(t, challenge.ID, other.ID)
		require.NotEqual(t, challenge.Nonce, other.Nonce)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		challenge, err := engine.NewChallenge(ctx)
		require.ErrorIs(t, err, context.Canceled)
		require.Nil(t, challenge)
	})

	t.Run("store error", func(t *testing.T) {
		provider := mockstorage.NewMockStoreProvider()
		provider.Store.ErrPutIfAbsent = errors.New("put error")

		failingEngine, err := proof.New(&testProvider{storageProvider: provider})
		require.NoError(t, err)

		defer failingEngine.Close()

		challenge, err := failingEngine.NewChallenge(context.Background())
		require.Error(t, err)
		require.Contains(t, err.Error(), "save challenge record")
		require.Nil(t, challenge)
	})
}

func TestEngine_Prove(t *testing.T) {
	engine, err := proof.New(memProvider())
	require.NoError(t, err)

	defer engine.Close()

	secret := []byte("s3cr3t")

	_, witness, err := engine.Commit(secret)
	require.NoError(t, err)

	challenge, err := engine.NewChallenge(context.Background())
	require.NoError(t, err)

	pr, err := engine.Prove(secret, witness, challenge)
	require.NoError(t, err)
	require.Equal(t, challenge.ID, pr.ChallengeID)
	require.NotEmpty(t, pr.PoK)

	t.Run("empty secret", func(t *testing.T) {
		pr, err := engine.Prove(nil, witness, challenge)
		require.ErrorIs(t, err, proof.ErrInvalidSecret)
		require.Nil(t, pr)
	})

	t.Run("missing witness", func(t *testing.T) {
		pr, err := engine.Prove(secret, nil, challenge)
		require.EqualError(t, err, "prove: witness and challenge must be provided")
		require.Nil(t, pr)
	})

	t.Run("missing challenge", func(t *testing.T) {
		pr, err := engine.Prove(secret, witness, nil)
		require.EqualError(t, err, "prove: witness and challenge must be provided")
		require.Nil(t, pr)
	})

	t.Run("malformed witness", func(t *testing.T) {
		pr, err := engine.Prove(secret, &proof.Witness{R: []byte("invalid")}, challenge)
		require.Error(t, err)
		require.Contains(t, err.Error(), "parse witness")
		require.Nil(t, pr)
	})
}

func TestEngine_Verify(t *testing.T) {
	engine, err := proof.New(memProvider())
	require.NoError(t, err)

	defer engine.Close()

	secret := []byte("s3cr3t")

	commitment, witness, err := engine.Commit(secret)
	require.NoError(t, err)

	newProof := func(t *testing.T) (*proof.Challenge, *proof.Proof) {
		t.Helper()

		challenge, err := engine.NewChallenge(context.Background())
		require.NoError(t, err)

		pr, err := engine.Prove(secret, witness, challenge)
		require.NoError(t, err)

		return challenge, pr
	}

	t.Run("valid proof verifies once", func(t *testing.T) {
		challenge, pr := newProof(t)

		require.NoError(t, engine.VerifyDetail(commitment, challenge.ID, pr))

		err := engine.VerifyDetail(commitment, challenge.ID, pr)
		require.ErrorIs(t, err, proof.ErrReplayDetected)
		require.False(t, engine.Verify(commitment, challenge.ID, pr))
	})

	t.Run("Verify delegates to VerifyDetail", func(t *testing.T) {
		challenge, pr := newProof(t)

		require.True(t, engine.Verify(commitment, challenge.ID, pr))
	})

	t.Run("unknown challenge", func(t *testing.T) {
		_, pr := newProof(t)
		pr.ChallengeID = "unknown-challenge"

		err := engine.VerifyDetail(commitment, "unknown-challenge", pr)
		require.ErrorIs(t, err, proof.ErrReplayDetected)
	})

	t.Run("proof bound to another challenge", func(t *testing.T) {
		challenge, pr := newProof(t)
		other, _ := newProof(t)

		err := engine.VerifyDetail(commitment, other.ID, pr)
		require.ErrorIs(t, err, proof.ErrVerificationFailed)

		require.NoError(t, engine.VerifyDetail(commitment, challenge.ID, pr))
	})

	t.Run("wrong secret", func(t *testing.T) {
		challenge, err := engine.NewChallenge(context.Background())
		require.NoError(t, err)

		pr, err := engine.Prove([]byte("not the secret"), witness, challenge)
		require.NoError(t, err)

		err = engine.VerifyDetail(commitment, challenge.ID, pr)
		require.ErrorIs(t, err, proof.ErrVerificationFailed)
	})

	t.Run("wrong commitment", func(t *testing.T) {
		otherCommitment, _, err := engine.Commit([]byte("other secret"))
		require.NoError(t, err)

		challenge, pr := newProof(t)

		err = engine.VerifyDetail(otherCommitment, challenge.ID, pr)
		require.ErrorIs(t, err, proof.ErrVerificationFailed)
	})

	t.Run("tampered proof", func(t *testing.T) {
		challenge, pr := newProof(t)
		pr.PoK[len(pr.PoK)-1] ^= 0xFF

		err := engine.VerifyDetail(commitment, challenge.ID, pr)
		require.ErrorIs(t, err, proof.ErrVerificationFailed)
	})

	t.Run("malformed input", func(t *testing.T) {
		challenge, pr := newProof(t)

		require.ErrorIs(t, engine.VerifyDetail(nil, challenge.ID, pr), proof.ErrVerificationFailed)
		require.ErrorIs(t, engine.VerifyDetail(commitment, "", pr), proof.ErrVerificationFailed)
		require.ErrorIs(t, engine.VerifyDetail(commitment, challenge.ID, nil), proof.ErrVerificationFailed)
	})

	t.Run("concurrent verification claims the challenge once", func(t *testing.T) {
		challenge, pr := newProof(t)

		const verifiers = 8

		results := make(chan error, verifiers)

		var wg sync.WaitGroup

		for i := 0; i < verifiers; i++ {
			wg.Add(1)

			go func() {
				defer wg.Done()

				results <- engine.VerifyDetail(commitment, challenge.ID, pr)
			}()
		}

		wg.Wait()
		close(results)

		var succeeded, replayed int

		for err := range results {
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, proof.ErrReplayDetected):
				replayed++
			default:
				t.Fatalf("unexpected verification error: %s", err)
			}
		}

		require.Equal(t, 1, succeeded)
		require.Equal(t, verifiers-1, replayed)
	})

	t.Run("challenge record get error", func(t *testing.T) {
		provider := mockstorage.NewMockStoreProvider()

		failingEngine, err := proof.New(&testProvider{storageProvider: provider})
		require.NoError(t, err)

		defer failingEngine.Close()

		challenge, err := failingEngine.NewChallenge(context.Background())
		require.NoError(t, err)

		pr, err := failingEngine.Prove(secret, witness, challenge)
		require.NoError(t, err)

		provider.Store.ErrGet = errors.New("get error")

		err = failingEngine.VerifyDetail(commitment, challenge.ID, pr)
		require.Error(t, err)
		require.Contains(t, err.Error(), "get challenge record")
	})
}

func TestEngine_ChallengeExpiry(t *testing.T) {
	engine, err := proof.New(memProvider(),
		proof.WithChallengeTTL(10*time.Millisecond),
		proof.WithSweepInterval(time.Hour))
	require.NoError(t, err)

	defer engine.Close()

	secret := []byte("s3cr3t")

	commitment, witness, err := engine.Commit(secret)
	require.NoError(t, err)

	challenge, err := engine.NewChallenge(context.Background())
	require.NoError(t, err)

	pr, err := engine.Prove(secret, witness, challenge)
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	err = engine.VerifyDetail(commitment, challenge.ID, pr)
	require.ErrorIs(t, err, proof.ErrChallengeExpired)
}

func TestEngine_Sweep(t *testing.T) {
	engine, err := proof.New(memProvider(),
		proof.WithChallengeTTL(10*time.Millisecond),
		proof.WithSweepInterval(20*time.Millisecond))
	require.NoError(t, err)

	defer engine.Close()

	secret := []byte("s3cr3t")

	commitment, witness, err := engine.Commit(secret)
	require.NoError(t, err)

	challenge, err := engine.NewChallenge(context.Background())
	require.NoError(t, err)

	pr, err := engine.Prove(secret, witness, challenge)
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)

	// The record was swept, so the engine no longer distinguishes the expired
	// challenge from one it never issued.
	err = engine.VerifyDetail(commitment, challenge.ID, pr)
	require.ErrorIs(t, err, proof.ErrReplayDetected)
}

func TestEngine_Close(t *testing.T) {
	engine, err := proof.New(memProvider())
	require.NoError(t, err)

	engine.Close()
	engine.Close()
}
