/*
Copyright Attestra Labs. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package authbench assembles the benchmark framework: storage, KMS, crypto, the
// identity and credential registries, the proof engine, the session manager and
// the configured authenticator backends. The assembled framework hands out a
// context for building clients and an experiment runner for driving batches.
package authbench

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/attestra/authbench/pkg/authenticator"
	"github.com/attestra/authbench/pkg/authenticator/assertion"
	"github.com/attestra/authbench/pkg/authenticator/disclosure"
	"github.com/attestra/authbench/pkg/authenticator/password"
	"github.com/attestra/authbench/pkg/authenticator/possession"
	"github.com/attestra/authbench/pkg/common/log"
	"github.com/attestra/authbench/pkg/credential"
	"github.com/attestra/authbench/pkg/crypto"
	"github.com/attestra/authbench/pkg/crypto/primitive/bbs12381g2pub"
	"github.com/attestra/authbench/pkg/crypto/tinkcrypto"
	"github.com/attestra/authbench/pkg/experiment"
	"github.com/attestra/authbench/pkg/framework/context"
	"github.com/attestra/authbench/pkg/identity"
	"github.com/attestra/authbench/pkg/kms"
	"github.com/attestra/authbench/pkg/kms/localkms"
	"github.com/attestra/authbench/pkg/proof"
	"github.com/attestra/authbench/pkg/vdr/fingerprint"
	spikms "github.com/attestra/authbench/spi/kms"
	"github.com/attestra/authbench/spi/storage"
)

var logger = log.New("authbench/framework")

// Authbench provides access to the benchmark framework being managed. The context
// it hands out can be used to create clients against the framework services.
type Authbench struct {
	storeProvider  storage.Provider
	keyManager     spikms.KeyManager
	cryptoService  crypto.Crypto
	identities     *identity.Registry
	credentials    *credential.Store
	engine         *proof.Engine
	sessions       *authenticator.Sessions
	registry       *authenticator.Registry
	issuerDID      string
	kinds          []authenticator.Kind
	challengeTTL   time.Duration
	sessionTTL     time.Duration
	maxConcurrency int
}

// Option configures the framework.
type Option func(opts *Authbench) error

// New initializes the framework based on the set of options provided.
func New(opts ...Option) (*Authbench, error) {
	frameworkOpts := &Authbench{}

	for _, option := range opts {
		if err := option(frameworkOpts); err != nil {
			return nil, fmt.Errorf("option failed: %w", err)
		}
	}

	if err := defFrameworkOpts(frameworkOpts); err != nil {
		return nil, fmt.Errorf("default option initialization failed: %w", err)
	}

	return initializeServices(frameworkOpts)
}

func initializeServices(frameworkOpts *Authbench) (*Authbench, error) {
	// Order of initializing services is important: the KMS backs the identity and
	// credential registries, the session manager must exist before any backend,
	// and the issuer must be registered before backends verify credentials.
	if err := createKMS(frameworkOpts); err != nil {
		return nil, err
	}

	if err := createCrypto(frameworkOpts); err != nil {
		return nil, err
	}

	if err := createIdentityRegistry(frameworkOpts); err != nil {
		return nil, err
	}

	if err := createCredentialStore(frameworkOpts); err != nil {
		return nil, err
	}

	if err := createProofEngine(frameworkOpts); err != nil {
		return nil, err
	}

	if err := createSessions(frameworkOpts); err != nil {
		return nil, err
	}

	if err := createIssuer(frameworkOpts); err != nil {
		return nil, err
	}

	if err := createAuthenticators(frameworkOpts); err != nil {
		return nil, err
	}

	logger.Infof("framework ready: issuer %s, authenticators %v",
		frameworkOpts.issuerDID, frameworkOpts.registry.Kinds())

	return frameworkOpts, nil
}

// WithStorageProvider injects a storage provider into the framework.
func WithStorageProvider(prov storage.Provider) Option {
	return func(opts *Authbench) error {
		opts.storeProvider = prov
		return nil
	}
}

// WithChallengeTTL overrides the proof-of-knowledge challenge lifetime.
func WithChallengeTTL(ttl time.Duration) Option {
	return func(opts *Authbench) error {
		if ttl <= 0 {
			return fmt.Errorf("challenge TTL must be positive, got %s", ttl)
		}

		opts.challengeTTL = ttl

		return nil
	}
}

// WithSessionTTL overrides the authentication session lifetime.
func WithSessionTTL(ttl time.Duration) Option {
	return func(opts *Authbench) error {
		if ttl <= 0 {
			return fmt.Errorf("session TTL must be positive, got %s", ttl)
		}

		opts.sessionTTL = ttl

		return nil
	}
}

// WithAuthenticators selects which authenticator backends the framework registers.
// All four are registered when the option is omitted.
func WithAuthenticators(kinds ...authenticator.Kind) Option {
	return func(opts *Authbench) error {
		if len(kinds) == 0 {
			return fmt.Errorf("at least one authenticator kind is required")
		}

		for _, kind := range kinds {
			if _, err := authenticator.ParseKind(string(kind)); err != nil {
				return err
			}
		}

		opts.kinds = kinds

		return nil
	}
}

// WithMaxConcurrency bounds the experiment runner's worker pool.
func WithMaxConcurrency(n int) Option {
	return func(opts *Authbench) error {
		if n <= 0 {
			return fmt.Errorf("max concurrency must be positive, got %d", n)
		}

		opts.maxConcurrency = n

		return nil
	}
}

// WithLogLevel sets the log level for all framework modules.
func WithLogLevel(logLevel string) Option {
	return func(opts *Authbench) error {
		level, err := log.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("failed to parse log level %q: %w", logLevel, err)
		}

		log.SetLevel("", level)

		return nil
	}
}

// Context provides a handle to the framework context.
func (a *Authbench) Context() (*context.Provider, error) {
	return context.New(
		context.WithStorageProvider(a.storeProvider),
		context.WithKMS(a.keyManager),
		context.WithCrypto(a.cryptoService),
		context.WithIdentityRegistry(a.identities),
		context.WithCredentialStore(a.credentials),
		context.WithProofEngine(a.engine),
		context.WithSessions(a.sessions),
		context.WithAuthenticatorRegistry(a.registry),
		context.WithIssuerDID(a.issuerDID),
	)
}

// Runner builds an experiment runner over the framework services.
func (a *Authbench) Runner() (*experiment.Runner, error) {
	ctx, err := a.Context()
	if err != nil {
		return nil, err
	}

	return experiment.NewRunner(ctx, experiment.WithMaxConcurrency(a.maxConcurrency)), nil
}

// IssuerDID returns the DID of the issuer bootstrapped at construction.
func (a *Authbench) IssuerDID() string {
	return a.issuerDID
}

// Close frees resources being maintained by the framework.
func (a *Authbench) Close() error {
	if a.sessions != nil {
		a.sessions.Close()
	}

	if a.engine != nil {
		a.engine.Close()
	}

	if a.storeProvider != nil {
		if err := a.storeProvider.Close(); err != nil {
			return fmt.Errorf("failed to close the store: %w", err)
		}
	}

	return nil
}

type kmsProvider struct {
	store spikms.Store
}

func (k *kmsProvider) StorageProvider() spikms.Store {
	return k.store
}

func createKMS(frameworkOpts *Authbench) error {
	store, err := kms.NewStoreWrapper(frameworkOpts.storeProvider)
	if err != nil {
		return fmt.Errorf("create kms store failed: %w", err)
	}

	frameworkOpts.keyManager, err = localkms.New(&kmsProvider{store: store})
	if err != nil {
		return fmt.Errorf("create KMS failed: %w", err)
	}

	return nil
}

func createCrypto(frameworkOpts *Authbench) error {
	cryptoService, err := tinkcrypto.New()
	if err != nil {
		return fmt.Errorf("create crypto failed: %w", err)
	}

	frameworkOpts.cryptoService = cryptoService

	return nil
}

func createIdentityRegistry(frameworkOpts *Authbench) error {
	ctx, err := context.New(
		context.WithStorageProvider(frameworkOpts.storeProvider),
		context.WithKMS(frameworkOpts.keyManager),
	)
	if err != nil {
		return fmt.Errorf("create context failed: %w", err)
	}

	frameworkOpts.identities, err = identity.New(ctx)
	if err != nil {
		return fmt.Errorf("create identity registry failed: %w", err)
	}

	return nil
}

func createCredentialStore(frameworkOpts *Authbench) error {
	ctx, err := context.New(
		context.WithStorageProvider(frameworkOpts.storeProvider),
		context.WithKMS(frameworkOpts.keyManager),
		context.WithCrypto(frameworkOpts.cryptoService),
	)
	if err != nil {
		return fmt.Errorf("create context failed: %w", err)
	}

	frameworkOpts.credentials, err = credential.New(ctx)
	if err != nil {
		return fmt.Errorf("create credential store failed: %w", err)
	}

	return nil
}

func createProofEngine(frameworkOpts *Authbench) error {
	ctx, err := context.New(
		context.WithStorageProvider(frameworkOpts.storeProvider),
	)
	if err != nil {
		return fmt.Errorf("create context failed: %w", err)
	}

	frameworkOpts.engine, err = proof.New(ctx, proof.WithChallengeTTL(frameworkOpts.challengeTTL))
	if err != nil {
		return fmt.Errorf("create proof engine failed: %w", err)
	}

	return nil
}

func createSessions(frameworkOpts *Authbench) error {
	ctx, err := context.New(
		context.WithStorageProvider(frameworkOpts.storeProvider),
	)
	if err != nil {
		return fmt.Errorf("create context failed: %w", err)
	}

	frameworkOpts.sessions, err = authenticator.NewSessions(ctx,
		authenticator.WithSessionTTL(frameworkOpts.sessionTTL))
	if err != nil {
		return fmt.Errorf("create session manager failed: %w", err)
	}

	return nil
}

// createIssuer bootstraps the benchmark issuer: an Ed25519 signing key in the KMS,
// a did:key derived from it and a BBS+ keypair for selective disclosure.
func createIssuer(frameworkOpts *Authbench) error {
	keyID, pubKeyBytes, err := frameworkOpts.keyManager.CreateAndExportPubKeyBytes(spikms.ED25519Type)
	if err != nil {
		return fmt.Errorf("create issuer signing key failed: %w", err)
	}

	issuerDID, _ := fingerprint.CreateDIDKey(pubKeyBytes)

	bbsPub, bbsPriv, err := bbs12381g2pub.GenerateKeyPair(sha256.New, nil)
	if err != nil {
		return fmt.Errorf("generate issuer BBS+ keypair failed: %w", err)
	}

	bbsPubBytes, err := bbsPub.Marshal()
	if err != nil {
		return fmt.Errorf("marshal issuer BBS+ public key failed: %w", err)
	}

	bbsPrivBytes, err := bbsPriv.Marshal()
	if err != nil {
		return fmt.Errorf("marshal issuer BBS+ private key failed: %w", err)
	}

	err = frameworkOpts.credentials.AddIssuer(issuerDID, keyID,
		credential.WithBBSKeyPair(bbsPubBytes, bbsPrivBytes))
	if err != nil {
		return fmt.Errorf("register benchmark issuer failed: %w", err)
	}

	frameworkOpts.issuerDID = issuerDID

	return nil
}

func createAuthenticators(frameworkOpts *Authbench) error {
	ctx, err := frameworkOpts.Context()
	if err != nil {
		return fmt.Errorf("create context failed: %w", err)
	}

	registry := authenticator.NewRegistry()

	for _, kind := range frameworkOpts.kinds {
		var backend authenticator.Authenticator

		switch kind {
		case authenticator.KindPassword:
			backend, err = password.New(ctx)
		case authenticator.KindAssertion:
			backend, err = assertion.New(ctx)
		case authenticator.KindPossession:
			backend, err = possession.New(ctx)
		case authenticator.KindDisclosure:
			backend, err = disclosure.New(ctx)
		default:
			return fmt.Errorf("no constructor for authenticator kind %q", kind)
		}

		if err != nil {
			return fmt.Errorf("create %s authenticator failed: %w", kind, err)
		}

		if err := registry.Register(backend); err != nil {
			return fmt.Errorf("register %s authenticator failed: %w", kind, err)
		}
	}

	frameworkOpts.registry = registry

	return nil
}
