/*
Copyright Attestra Labs. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package context_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/attestra/authbench/pkg/authenticator"
	"github.com/attestra/authbench/pkg/credential"
	"github.com/attestra/authbench/pkg/framework/context"
	"github.com/attestra/authbench/pkg/identity"
	"github.com/attestra/authbench/pkg/kms"
	"github.com/attestra/authbench/pkg/kms/localkms"
	"github.com/attestra/authbench/pkg/proof"
	"github.com/attestra/authbench/pkg/storage/mem"
	spikms "github.com/attestra/authbench/spi/kms"
)

type kmsProvider struct {
	store spikms.Store
}

func (k *kmsProvider) StorageProvider() spikms.Store {
	return k.store
}

func TestNew(t *testing.T) {
	t.Run("empty context", func(t *testing.T) {
		prov, err := context.New()
		require.NoError(t, err)
		require.Nil(t, prov.StorageProvider())
		require.Nil(t, prov.KMS())
		require.Nil(t, prov.AuthenticatorRegistry())
		require.Empty(t, prov.IssuerDID())
	})

	t.Run("injected services round-trip through the accessors", func(t *testing.T) {
		storageProvider := mem.NewProvider()

		kmsStore, err := kms.NewStoreWrapper(storageProvider)
		require.NoError(t, err)

		keyManager, err := localkms.New(&kmsProvider{store: kmsStore})
		require.NoError(t, err)

		baseCtx, err := context.New(
			context.WithStorageProvider(storageProvider),
			context.WithKMS(keyManager),
		)
		require.NoError(t, err)

		identities, err := identity.New(baseCtx)
		require.NoError(t, err)

		engine, err := proof.New(baseCtx)
		require.NoError(t, err)

		t.Cleanup(engine.Close)

		sessions, err := authenticator.NewSessions(baseCtx)
		require.NoError(t, err)

		t.Cleanup(sessions.Close)

		registry := authenticator.NewRegistry()

		prov, err := context.New(
			context.WithStorageProvider(storageProvider),
			context.WithKMS(keyManager),
			context.WithIdentityRegistry(identities),
			context.WithCredentialStore(&credential.Store{}),
			context.WithProofEngine(engine),
			context.WithSessions(sessions),
			context.WithAuthenticatorRegistry(registry),
			context.WithIssuerDID("did:key:zIssuer"),
		)
		require.NoError(t, err)

		require.Equal(t, storageProvider, prov.StorageProvider())
		require.Equal(t, keyManager, prov.KMS())
		require.Nil(t, prov.Crypto())
		require.Equal(t, identities, prov.IdentityRegistry())
		require.NotNil(t, prov.CredentialStore())
		require.Equal(t, engine, prov.ProofEngine())
		require.Equal(t, sessions, prov.Sessions())
		require.Equal(t, registry, prov.AuthenticatorRegistry())
		require.Equal(t, "did:key:zIssuer", prov.IssuerDID())
	})
}
