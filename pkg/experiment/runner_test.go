/*
Copyright Attestra Labs. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package experiment_test

import (
	"context"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/attestra/authbench/pkg/authenticator"
	"github.com/attestra/authbench/pkg/authenticator/assertion"
	"github.com/attestra/authbench/pkg/authenticator/disclosure"
	"github.com/attestra/authbench/pkg/authenticator/password"
	"github.com/attestra/authbench/pkg/authenticator/possession"
	"github.com/attestra/authbench/pkg/credential"
	"github.com/attestra/authbench/pkg/crypto"
	"github.com/attestra/authbench/pkg/crypto/primitive/bbs12381g2pub"
	"github.com/attestra/authbench/pkg/crypto/tinkcrypto"
	"github.com/attestra/authbench/pkg/experiment"
	"github.com/attestra/authbench/pkg/identity"
	"github.com/attestra/authbench/pkg/kms"
	"github.com/attestra/authbench/pkg/kms/localkms"
	"github.com/attestra/authbench/pkg/proof"
	"github.com/attestra/authbench/pkg/storage/mem"
	"github.com/attestra/authbench/pkg/vdr/fingerprint"
	spikms "github.com/attestra/authbench/spi/kms"
	spi "github.com/attestra/authbench/spi/storage"
)

type testProvider struct {
	storageProvider spi.Provider
	keyManager      spikms.KeyManager
	cryptoService   crypto.Crypto
	sessions        *authenticator.Sessions
	identities      *identity.Registry
	credentials     *credential.Store
	engine          *proof.Engine
	registry        *authenticator.Registry
	issuerDID       string
}

func (p *testProvider) StorageProvider() spi.Provider {
	return p.storageProvider
}

func (p *testProvider) KMS() spikms.KeyManager {
	return p.keyManager
}

func (p *testProvider) Crypto() crypto.Crypto {
	return p.cryptoService
}

func (p *testProvider) Sessions() *authenticator.Sessions {
	return p.sessions
}

func (p *testProvider) IdentityRegistry() *identity.Registry {
	return p.identities
}

func (p *testProvider) CredentialStore() *credential.Store {
	return p.credentials
}

func (p *testProvider) ProofEngine() *proof.Engine {
	return p.engine
}

func (p *testProvider) AuthenticatorRegistry() *authenticator.Registry {
	return p.registry
}

func (p *testProvider) IssuerDID() string {
	return p.issuerDID
}

type kmsProvider struct {
	store spikms.Store
}

func (k *kmsProvider) StorageProvider() spikms.Store {
	return k.store
}

// newTestProvider wires the full in-memory framework stack and registers the given
// authenticator kinds, defaulting to all of them.
func newTestProvider(t *testing.T, kinds ...authenticator.Kind) *testProvider {
	t.Helper()

	if len(kinds) == 0 {
		kinds = authenticator.AllKinds()
	}

	storageProvider := mem.NewProvider()

	kmsStore, err := kms.NewStoreWrapper(storageProvider)
	require.NoError(t, err)

	keyManager, err := localkms.New(&kmsProvider{store: kmsStore})
	require.NoError(t, err)

	cryptoService, err := tinkcrypto.New()
	require.NoError(t, err)

	provider := &testProvider{
		storageProvider: storageProvider,
		keyManager:      keyManager,
		cryptoService:   cryptoService,
	}

	sessions, err := authenticator.NewSessions(provider)
	require.NoError(t, err)

	t.Cleanup(sessions.Close)

	provider.sessions = sessions

	identities, err := identity.New(provider)
	require.NoError(t, err)

	provider.identities = identities

	credentials, err := credential.New(provider)
	require.NoError(t, err)

	provider.credentials = credentials

	engine, err := proof.New(provider)
	require.NoError(t, err)

	t.Cleanup(engine.Close)

	provider.engine = engine

	keyID, pubKeyBytes, err := keyManager.CreateAndExportPubKeyBytes(spikms.ED25519Type)
	require.NoError(t, err)

	issuerDID, _ := fingerprint.CreateDIDKey(pubKeyBytes)

	bbsPub, bbsPriv, err := bbs12381g2pub.GenerateKeyPair(sha256.New, nil)
	require.NoError(t, err)

	bbsPubBytes, err := bbsPub.Marshal()
	require.NoError(t, err)

	bbsPrivBytes, err := bbsPriv.Marshal()
	require.NoError(t, err)

	require.NoError(t, credentials.AddIssuer(issuerDID, keyID,
		credential.WithBBSKeyPair(bbsPubBytes, bbsPrivBytes)))

	provider.issuerDID = issuerDID

	registry := authenticator.NewRegistry()

	for _, kind := range kinds {
		var backend authenticator.Authenticator

		switch kind {
		case authenticator.KindPassword:
			backend, err = password.New(provider)
		case authenticator.KindAssertion:
			backend, err = assertion.New(provider)
		case authenticator.KindPossession:
			backend, err = possession.New(provider)
		case authenticator.KindDisclosure:
			backend, err = disclosure.New(provider)
		default:
			t.Fatalf("no backend for kind %q", kind)
		}

		require.NoError(t, err)
		require.NoError(t, registry.Register(backend))
	}

	provider.registry = registry

	return provider
}

func TestRunner_Run(t *testing.T) {
	provider := newTestProvider(t)
	runner := experiment.NewRunner(provider)

	subjects := []experiment.Subject{
		{ID: "u1", Attributes: map[string]interface{}{"age": 30}, Secret: "s3cr3t"},
		{ID: "u2", Attributes: map[string]interface{}{"age": 41, "tier": "gold"}, Secret: "hunter2"},
		{ID: "u3", Attributes: map[string]interface{}{"age": 19, "country": "JP"}, Secret: "correct horse"},
	}

	report, err := runner.Run(context.Background(), subjects)
	require.NoError(t, err)
	require.Len(t, report.Outcomes, len(subjects)*len(authenticator.AllKinds()))

	sessions := map[string]struct{}{}

	for _, outcome := range report.Outcomes {
		require.Truef(t, outcome.Success, "subject %s via %s: %v",
			outcome.SubjectID, outcome.Kind, outcome.Err)
		require.NotEmpty(t, outcome.SessionID)
		require.Empty(t, outcome.Failure)

		sessions[outcome.SessionID] = struct{}{}
	}

	// Every attempt ran in its own session.
	require.Len(t, sessions, len(report.Outcomes))

	require.Len(t, report.Stats, len(authenticator.AllKinds()))

	byKind := map[authenticator.Kind]experiment.KindStats{}

	for i, stats := range report.Stats {
		require.Equal(t, authenticator.AllKinds()[i], stats.Kind)
		require.Equal(t, len(subjects), stats.Attempts)
		require.Equal(t, len(subjects), stats.Successes)
		require.Equal(t, 1.0, stats.SuccessRate)
		require.Empty(t, stats.Failures)
		require.Positive(t, int64(stats.MeanLatency))

		byKind[stats.Kind] = stats
	}

	// Disclosure reveals one attribute per attempt against totals of 1, 2 and 2.
	require.InDelta(t, 0.6, byKind[authenticator.KindDisclosure].DisclosureRatio, 1e-9)
	require.Zero(t, byKind[authenticator.KindPassword].DisclosureRatio)

	results := report.Results()
	require.Len(t, results, len(authenticator.AllKinds()))
	require.True(t, results[authenticator.KindAssertion]["u1"].Success)
	require.Equal(t, 1, results[authenticator.KindDisclosure]["u2"].DisclosedAttributeCount)
}

func TestRunner_Run_SingleAuthenticator(t *testing.T) {
	provider := newTestProvider(t, authenticator.KindPassword)
	runner := experiment.NewRunner(provider, experiment.WithMaxConcurrency(1))

	subjects := []experiment.Subject{
		{ID: "u1", Attributes: map[string]interface{}{"age": 30}, Secret: "one"},
		{ID: "u2", Attributes: map[string]interface{}{"age": 31}, Secret: "two"},
	}

	report, err := runner.Run(context.Background(), subjects)
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 2)
	require.Len(t, report.Stats, 1)
	require.Equal(t, authenticator.KindPassword, report.Stats[0].Kind)
	require.Equal(t, 2, report.Stats[0].Successes)
}

func TestRunner_Run_DuplicateSubjectIsolated(t *testing.T) {
	provider := newTestProvider(t)
	runner := experiment.NewRunner(provider)

	// Two rows share an ID. Exactly one wins registration; the loser's attempts
	// all fail as DuplicateSubject without touching the other subjects.
	subjects := []experiment.Subject{
		{ID: "u1", Attributes: map[string]interface{}{"age": 30}, Secret: "first"},
		{ID: "u1", Attributes: map[string]interface{}{"age": 30}, Secret: "second"},
		{ID: "u2", Attributes: map[string]interface{}{"age": 44}, Secret: "third"},
	}

	report, err := runner.Run(context.Background(), subjects)
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 3*len(authenticator.AllKinds()))

	for _, stats := range report.Stats {
		require.Equal(t, 3, stats.Attempts)
		require.Equal(t, 2, stats.Successes)
		require.Equal(t, map[string]int{"DuplicateSubject": 1}, stats.Failures)
	}
}

func TestRunner_Run_EmptySecretClassified(t *testing.T) {
	provider := newTestProvider(t, authenticator.KindPossession)
	runner := experiment.NewRunner(provider)

	subjects := []experiment.Subject{
		{ID: "u1", Attributes: map[string]interface{}{"age": 30}},
		{ID: "u2", Attributes: map[string]interface{}{"age": 31}, Secret: "seed"},
	}

	report, err := runner.Run(context.Background(), subjects)
	require.NoError(t, err)

	results := report.Results()[authenticator.KindPossession]
	require.False(t, results["u1"].Success)
	require.Equal(t, "InvalidSecret", results["u1"].Failure)
	require.True(t, results["u2"].Success)
}

func TestRunner_Run_Cancelled(t *testing.T) {
	provider := newTestProvider(t)
	runner := experiment.NewRunner(provider)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := runner.Run(ctx, []experiment.Subject{
		{ID: "u1", Attributes: map[string]interface{}{"age": 30}, Secret: "s3cr3t"},
	})
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	require.Empty(t, report.Outcomes)
}

func TestRunner_Run_Validation(t *testing.T) {
	provider := newTestProvider(t)
	runner := experiment.NewRunner(provider)

	t.Run("no subjects", func(t *testing.T) {
		report, err := runner.Run(context.Background(), nil)
		require.EqualError(t, err, "no subjects to run")
		require.Nil(t, report)
	})

	t.Run("no authenticators", func(t *testing.T) {
		provider.registry = authenticator.NewRegistry()
		empty := experiment.NewRunner(provider)

		report, err := empty.Run(context.Background(), []experiment.Subject{{ID: "u1"}})
		require.EqualError(t, err, "no authenticators registered")
		require.Nil(t, report)
	})
}
