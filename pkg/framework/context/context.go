/*
Copyright Attestra Labs. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package context creates a framework Provider context that supplies the assembled
// framework services through simple accessor methods. The same Provider satisfies
// the provider interfaces of every registry, engine and authenticator backend, so
// one context wires the whole stack.
package context

import (
	"fmt"

	"github.com/attestra/authbench/pkg/authenticator"
	"github.com/attestra/authbench/pkg/credential"
	"github.com/attestra/authbench/pkg/crypto"
	"github.com/attestra/authbench/pkg/identity"
	"github.com/attestra/authbench/pkg/proof"
	spikms "github.com/attestra/authbench/spi/kms"
	"github.com/attestra/authbench/spi/storage"
)

// Provider supplies the framework configuration to client objects.
type Provider struct {
	storeProvider storage.Provider
	keyManager    spikms.KeyManager
	cryptoService crypto.Crypto
	identities    *identity.Registry
	credentials   *credential.Store
	engine        *proof.Engine
	sessions      *authenticator.Sessions
	registry      *authenticator.Registry
	issuerDID     string
}

// New instantiates a new context provider.
func New(opts ...ProviderOption) (*Provider, error) {
	ctxProvider := Provider{}

	for _, opt := range opts {
		if err := opt(&ctxProvider); err != nil {
			return nil, fmt.Errorf("option failed: %w", err)
		}
	}

	return &ctxProvider, nil
}

// StorageProvider returns the storage provider.
func (p *Provider) StorageProvider() storage.Provider {
	return p.storeProvider
}

// KMS returns the key management service.
func (p *Provider) KMS() spikms.KeyManager {
	return p.keyManager
}

// Crypto returns the crypto service.
func (p *Provider) Crypto() crypto.Crypto {
	return p.cryptoService
}

// IdentityRegistry returns the subject identity registry.
func (p *Provider) IdentityRegistry() *identity.Registry {
	return p.identities
}

// CredentialStore returns the credential store.
func (p *Provider) CredentialStore() *credential.Store {
	return p.credentials
}

// ProofEngine returns the proof-of-knowledge engine.
func (p *Provider) ProofEngine() *proof.Engine {
	return p.engine
}

// Sessions returns the shared authentication session manager.
func (p *Provider) Sessions() *authenticator.Sessions {
	return p.sessions
}

// AuthenticatorRegistry returns the registry of authenticator backends.
func (p *Provider) AuthenticatorRegistry() *authenticator.Registry {
	return p.registry
}

// IssuerDID returns the DID of the benchmark issuer.
func (p *Provider) IssuerDID() string {
	return p.issuerDID
}

// ProviderOption configures the context provider.
type ProviderOption func(opts *Provider) error

// WithStorageProvider injects a storage provider into the context.
func WithStorageProvider(s storage.Provider) ProviderOption {
	return func(opts *Provider) error {
		opts.storeProvider = s
		return nil
	}
}

// WithKMS injects a kms service into the context.
func WithKMS(k spikms.KeyManager) ProviderOption {
	return func(opts *Provider) error {
		opts.keyManager = k
		return nil
	}
}

// WithCrypto injects a crypto service into the context.
func WithCrypto(c crypto.Crypto) ProviderOption {
	return func(opts *Provider) error {
		opts.cryptoService = c
		return nil
	}
}

// WithIdentityRegistry injects an identity registry into the context.
func WithIdentityRegistry(r *identity.Registry) ProviderOption {
	return func(opts *Provider) error {
		opts.identities = r
		return nil
	}
}

// WithCredentialStore injects a credential store into the context.
func WithCredentialStore(s *credential.Store) ProviderOption {
	return func(opts *Provider) error {
		opts.credentials = s
		return nil
	}
}

// WithProofEngine injects a proof engine into the context.
func WithProofEngine(e *proof.Engine) ProviderOption {
	return func(opts *Provider) error {
		opts.engine = e
		return nil
	}
}

// WithSessions injects a session manager into the context.
func WithSessions(s *authenticator.Sessions) ProviderOption {
	return func(opts *Provider) error {
		opts.sessions = s
		return nil
	}
}

// WithAuthenticatorRegistry injects an authenticator registry into the context.
func WithAuthenticatorRegistry(r *authenticator.Registry) ProviderOption {
	return func(opts *Provider) error {
		opts.registry = r
		return nil
	}
}

// WithIssuerDID injects the benchmark issuer DID into the context.
func WithIssuerDID(did string) ProviderOption {
	return func(opts *Provider) error {
		opts.issuerDID = did
		return nil
	}
}
