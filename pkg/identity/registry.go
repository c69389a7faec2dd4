/*
Copyright Attestra Labs. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package identity maintains the registry of benchmark subjects. Each subject owns an
// Ed25519 keyset held by the KMS and a did:key identifier derived deterministically
// from the public key, so resolution is reproducible from the key material alone.
package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bluele/gcache"

	"github.com/attestra/authbench/pkg/vdr/fingerprint"
	spikms "github.com/attestra/authbench/spi/kms"
	"github.com/attestra/authbench/spi/storage"
)

const (
	storeName = "identity"

	// fingerprintTagName tags records with the did:key method-specific ID so a DID
	// alone recovers the identity. The raw DID cannot be a tag value because tag
	// values must not contain ':'.
	fingerprintTagName = "didFingerprint"

	resolveCacheSize = 1024
)

var (
	// ErrDuplicateSubject is returned by Create when the subject ID is already
	// registered.
	ErrDuplicateSubject = errors.New("subject already registered")

	// ErrNotFound is returned when no identity exists for the given subject or DID.
	ErrNotFound = errors.New("identity not found")
)

// Identity is a registered subject.
type Identity struct {
	SubjectID string    `json:"subjectId"`
	DID       string    `json:"did"`
	KeyID     string    `json:"keyId"`
	PublicKey []byte    `json:"publicKey"`
	CreatedAt time.Time `json:"createdAt"`
}

// Provider contains dependencies for the identity Registry.
type Provider interface {
	StorageProvider() storage.Provider
	KMS() spikms.KeyManager
}

// Registry creates and resolves subject identities. Identities are immutable once
// created, so resolved records are cached without invalidation.
type Registry struct {
	store storage.Store
	kms   spikms.KeyManager
	cache gcache.Cache
}

// New returns an identity Registry backed by the provider's storage and KMS.
func New(ctx Provider) (*Registry, error) {
	store, err := ctx.StorageProvider().OpenStore(storeName)
	if err != nil {
		return nil, fmt.Errorf("open identity store: %w", err)
	}

	return &Registry{
		store: store,
		kms:   ctx.KMS(),
		cache: gcache.New(resolveCacheSize).LRU().Build(),
	}, nil
}

// Create registers the subject: it creates an Ed25519 keyset in the KMS, derives the
// subject's did:key from the exported public key and stores the identity record. The
// existence check and the insert are atomic, so concurrent Create calls for the same
// subject admit exactly one winner; the others fail with ErrDuplicateSubject.
func (r *Registry) Create(subjectID string) (*Identity, error) {
	if subjectID == "" {
		return nil, errors.New("subject ID cannot be empty")
	}

	keyID, pubKeyBytes, err := r.kms.CreateAndExportPubKeyBytes(spikms.ED25519Type)
	if err != nil {
		return nil, fmt.Errorf("create signing key: %w", err)
	}

	didKey, _ := fingerprint.CreateDIDKey(pubKeyBytes)

	identity := &Identity{
		SubjectID: subjectID,
		DID:       didKey,
		KeyID:     keyID,
		PublicKey: pubKeyBytes,
		CreatedAt: time.Now(),
	}

	record, err := json.Marshal(identity)
	if err != nil {
		return nil, fmt.Errorf("marshal identity record: %w", err)
	}

	methodID, err := fingerprint.MethodIDFromDIDKey(didKey)
	if err != nil {
		return nil, fmt.Errorf("extract did fingerprint: %w", err)
	}

	err = r.store.PutIfAbsent(subjectID, record,
		storage.Tag{Name: fingerprintTagName, Value: methodID})
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil, fmt.Errorf("subject %q: %w", subjectID, ErrDuplicateSubject)
		}

		return nil, fmt.Errorf("save identity record: %w", err)
	}

	return identity, nil
}

// Resolve returns the identity registered for the subject ID.
func (r *Registry) Resolve(subjectID string) (*Identity, error) {
	if cached, err := r.cache.Get(subjectID); err == nil {
		if identity, ok := cached.(*Identity); ok {
			return identity, nil
		}
	}

	record, err := r.store.Get(subjectID)
	if err != nil {
		if errors.Is(err, storage.ErrDataNotFound) {
			return nil, fmt.Errorf("subject %q: %w", subjectID, ErrNotFound)
		}

		return nil, fmt.Errorf("get identity record: %w", err)
	}

	identity := &Identity{}
	if err := json.Unmarshal(record, identity); err != nil {
		return nil, fmt.Errorf("unmarshal identity record: %w", err)
	}

	_ = r.cache.Set(subjectID, identity) //nolint:errcheck

	return identity, nil
}

// ResolveDID performs the reverse lookup: it returns the identity that owns the DID.
func (r *Registry) ResolveDID(did string) (*Identity, error) {
	methodID, err := fingerprint.MethodIDFromDIDKey(did)
	if err != nil {
		return nil, fmt.Errorf("extract did fingerprint: %w", err)
	}

	iterator, err := r.store.Query(fingerprintTagName + ":" + methodID)
	if err != nil {
		return nil, fmt.Errorf("query identity records: %w", err)
	}

	defer func() {
		_ = iterator.Close() //nolint:errcheck
	}()

	more, err := iterator.Next()
	if err != nil {
		return nil, fmt.Errorf("iterate identity records: %w", err)
	}

	if !more {
		return nil, fmt.Errorf("did %q: %w", did, ErrNotFound)
	}

	record, err := iterator.Value()
	if err != nil {
		return nil, fmt.Errorf("read identity record: %w", err)
	}

	identity := &Identity{}
	if err := json.Unmarshal(record, identity); err != nil {
		return nil, fmt.Errorf("unmarshal identity record: %w", err)
	}

	return identity, nil
}
