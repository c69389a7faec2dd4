/*
Copyright Attestra Labs. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package identity_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/attestra/authbench/pkg/identity"
	"github.com/attestra/authbench/pkg/kms"
	"github.com/attestra/authbench/pkg/kms/localkms"
	mockstorage "github.com/attestra/authbench/pkg/mock/storage"
	"github.com/attestra/authbench/pkg/storage/mem"
	"github.com/attestra/authbench/pkg/vdr/fingerprint"
	spikms "github.com/attestra/authbench/spi/kms"
	"github.com/attestra/authbench/spi/storage"
)

type testProvider struct {
	storageProvider storage.Provider
	keyManager      spikms.KeyManager
}

func (p *testProvider) StorageProvider() storage.Provider {
	return p.storageProvider
}

func (p *testProvider) KMS() spikms.KeyManager {
	return p.keyManager
}

type kmsProvider struct {
	store spikms.Store
}

func (k *kmsProvider) StorageProvider() spikms.Store {
	return k.store
}

func newTestProvider(t *testing.T) *testProvider {
	t.Helper()

	storageProvider := mem.NewProvider()

	kmsStore, err := kms.NewStoreWrapper(storageProvider)
	require.NoError(t, err)

	keyManager, err := localkms.New(&kmsProvider{store: kmsStore})
	require.NoError(t, err)

	return &testProvider{storageProvider: storageProvider, keyManager: keyManager}
}

func TestNew(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		registry, err := identity.New(newTestProvider(t))
		require.NoError(t, err)
		require.NotNil(t, registry)
	})

	t.Run("open store error", func(t *testing.T) {
		provider := newTestProvider(t)

		mockProvider := mockstorage.NewMockStoreProvider()
		mockProvider.ErrOpenStoreHandle = errors.New("open store error")
		provider.storageProvider = mockProvider

		registry, err := identity.New(provider)
		require.Error(t, err)
		require.Contains(t, err.Error(), "open identity store")
		require.Nil(t, registry)
	})
}

func TestRegistry_Create(t *testing.T) {
	registry, err := identity.New(newTestProvider(t))
	require.NoError(t, err)

	created, err := registry.Create("u1")
	require.NoError(t, err)
	require.Equal(t, "u1", created.SubjectID)
	require.NotEmpty(t, created.KeyID)
	require.Len(t, created.PublicKey, 32)
	require.WithinDuration(t, time.Now(), created.CreatedAt, time.Second)

	t.Run("did derives deterministically from the public key", func(t *testing.T) {
		didKey, _ := fingerprint.CreateDIDKey(created.PublicKey)
		require.Equal(t, didKey, created.DID)
	})

	t.Run("duplicate subject", func(t *testing.T) {
		duplicate, err := registry.Create("u1")
		require.ErrorIs(t, err, identity.ErrDuplicateSubject)
		require.Nil(t, duplicate)
	})

	t.Run("empty subject ID", func(t *testing.T) {
		created, err := registry.Create("")
		require.EqualError(t, err, "subject ID cannot be empty")
		require.Nil(t, created)
	})

	t.Run("concurrent registration admits one winner", func(t *testing.T) {
		const attempts = 8

		results := make(chan error, attempts)

		var wg sync.WaitGroup

		for i := 0; i < attempts; i++ {
			wg.Add(1)

			go func() {
				defer wg.Done()

				_, err := registry.Create("contended-subject")
				results <- err
			}()
		}

		wg.Wait()
		close(results)

		var created, duplicates int

		for err := range results {
			switch {
			case err == nil:
				created++
			case errors.Is(err, identity.ErrDuplicateSubject):
				duplicates++
			default:
				t.Fatalf("unexpected creation error: %s", err)
			}
		}

		require.Equal(t, 1, created)
		require.Equal(t, attempts-1, duplicates)
	})

	t.Run("kms failure", func(t *testing.T) {
		provider := newTestProvider(t)

		keyManager, err := localkms.New(&kmsProvider{store: &failingKMSStore{
			err: errors.New("store is down"),
		}})
		require.NoError(t, err)

		provider.keyManager = keyManager

		failing, err := identity.New(provider)
		require.NoError(t, err)

		created, err := failing.Create("u1")
		require.Error(t, err)
		require.Contains(t, err.Error(), "create signing key")
		require.Nil(t, created)
	})

	t.Run("save failure", func(t *testing.T) {
		provider := newTestProvider(t)

		mockProvider := mockstorage.NewMockStoreProvider()
		mockProvider.Store.ErrPutIfAbsent = errors.New("put error")
		provider.storageProvider = mockProvider

		failing, err := identity.New(provider)
		require.NoError(t, err)

		created, err := failing.Create("u1")
		require.Error(t, err)
		require.Contains(t, err.Error(), "save identity record")
		require.Nil(t, created)
	})
}

func TestRegistry_Resolve(t *testing.T) {
	provider := newTestProvider(t)

	registry, err := identity.New(provider)
	require.NoError(t, err)

	created, err := registry.Create("u1")
	require.NoError(t, err)

	resolved, err := registry.Resolve("u1")
	require.NoError(t, err)
	require.Equal(t, created.SubjectID, resolved.SubjectID)
	require.Equal(t, created.DID, resolved.DID)
	require.Equal(t, created.KeyID, resolved.KeyID)
	require.Equal(t, created.PublicKey, resolved.PublicKey)
	require.WithinDuration(t, created.CreatedAt, resolved.CreatedAt, time.Second)

	t.Run("resolved identities are served from cache", func(t *testing.T) {
		store, err := provider.StorageProvider().OpenStore("identity")
		require.NoError(t, err)
		require.NoError(t, store.Delete("u1"))

		resolved, err := registry.Resolve("u1")
		require.NoError(t, err)
		require.Equal(t, created.DID, resolved.DID)
	})

	t.Run("unknown subject", func(t *testing.T) {
		resolved, err := registry.Resolve("unknown-subject")
		require.ErrorIs(t, err, identity.ErrNotFound)
		require.Nil(t, resolved)
	})

	t.Run("corrupted record", func(t *testing.T) {
		store, err := provider.StorageProvider().OpenStore("identity")
		require.NoError(t, err)
		require.NoError(t, store.Put("corrupted", []byte("not json")))

		resolved, err := registry.Resolve("corrupted")
		require.Error(t, err)
		require.Contains(t, err.Error(), "unmarshal identity record")
		require.Nil(t, resolved)
	})
}

func TestRegistry_ResolveDID(t *testing.T) {
	registry, err := identity.New(newTestProvider(t))
	require.NoError(t, err)

	first, err := registry.Create("u1")
	require.NoError(t, err)

	second, err := registry.Create("u2")
	require.NoError(t, err)

	resolved, err := registry.ResolveDID(first.DID)
	require.NoError(t, err)
	require.Equal(t, "u1", resolved.SubjectID)

	resolved, err = registry.ResolveDID(second.DID)
	require.NoError(t, err)
	require.Equal(t, "u2", resolved.SubjectID)

	t.Run("unknown did", func(t *testing.T) {
		otherRegistry, err := identity.New(newTestProvider(t))
		require.NoError(t, err)

		foreign, err := otherRegistry.Create("u3")
		require.NoError(t, err)

		resolved, err := registry.ResolveDID(foreign.DID)
		require.ErrorIs(t, err, identity.ErrNotFound)
		require.Nil(t, resolved)
	})

	t.Run("malformed did", func(t *testing.T) {
		resolved, err := registry.ResolveDID("not-a-did")
		require.Error(t, err)
		require.Contains(t, err.Error(), "extract did fingerprint")
		require.Nil(t, resolved)
	})
}

type failingKMSStore struct {
	err error
}

func (f *failingKMSStore) Put(string, []byte) error {
	return f.err
}

func (f *failingKMSStore) Get(string) ([]byte, error) {
	return nil, f.err
}

func (f *failingKMSStore) Delete(string) error {
	return f.err
}
