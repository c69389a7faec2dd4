/*
Copyright Attestra Labs. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package credential

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bluele/gcache"

	"github.com/attestra/authbench/pkg/crypto"
	"github.com/attestra/authbench/pkg/crypto/primitive/bbs12381g2pub"
	"github.com/attestra/authbench/pkg/kms/localkms"
	spikms "github.com/attestra/authbench/spi/kms"
	"github.com/attestra/authbench/spi/storage"
)

const (
	storeName = "credential"

	issuerKeyPrefix  = "issuer_"
	credKeyPrefix    = "cred_"
	revokedKeyPrefix = "revoked_"

	issuerCacheSize = 256
)

var (
	// ErrUnknownIssuer is returned by Issue when the issuer DID was never registered.
	ErrUnknownIssuer = errors.New("unknown issuer")

	// ErrRevoked is returned by Verify when the subject's credentials were revoked.
	ErrRevoked = errors.New("credential revoked")

	// ErrVerificationFailed is returned by Verify together with a false result when
	// the credential does not validate against the issuer key.
	ErrVerificationFailed = errors.New("credential verification failed")

	// ErrNotFound is returned by Credential when no credential exists under the ID.
	ErrNotFound = errors.New("credential not found")
)

// IssuerInfo is the public view of a registered issuer.
type IssuerInfo struct {
	DID          string `json:"did"`
	KeyID        string `json:"keyId"`
	PublicKey    []byte `json:"publicKey"`
	BBSPublicKey []byte `json:"bbsPublicKey,omitempty"`
}

// issuerRecord extends the public view with the BBS+ signing key. Ed25519 private
// keys stay in the KMS; BBS+ keys are held here since the KMS does not manage the
// BLS12-381 key type.
type issuerRecord struct {
	IssuerInfo
	BBSPrivateKey []byte `json:"bbsPrivateKey,omitempty"`
}

// Provider contains dependencies for the credential Store.
type Provider interface {
	StorageProvider() storage.Provider
	KMS() spikms.KeyManager
	Crypto() crypto.Crypto
}

// Store issues, verifies and revokes credentials for registered issuers.
type Store struct {
	store  storage.Store
	kms    spikms.KeyManager
	crypto crypto.Crypto
	bbs    *bbs12381g2pub.BBSG2Pub
	cache  gcache.Cache
}

// New returns a credential Store backed by the provider's storage, KMS and crypto.
func New(ctx Provider) (*Store, error) {
	store, err := ctx.StorageProvider().OpenStore(storeName)
	if err != nil {
		return nil, fmt.Errorf("open credential store: %w", err)
	}

	return &Store{
		store:  store,
		kms:    ctx.KMS(),
		crypto: ctx.Crypto(),
		bbs:    bbs12381g2pub.New(),
		cache:  gcache.New(issuerCacheSize).LRU().Build(),
	}, nil
}

// IssuerOption configures issuer registration.
type IssuerOption func(*issuerRecord)

// WithBBSKeyPair registers the issuer with a BBS+ keypair so issued credentials also
// carry a BBS+ signature over the attribute messages.
func WithBBSKeyPair(publicKey, privateKey []byte) IssuerOption {
	return func(r *issuerRecord) {
		r.BBSPublicKey = publicKey
		r.BBSPrivateKey = privateKey
	}
}

// AddIssuer registers an issuer DID with the KMS key it signs under. The key must
// already exist in the KMS.
func (s *Store) AddIssuer(did, keyID string, opts ...IssuerOption) error {
	if did == "" || keyID == "" {
		return errors.New("issuer DID and key ID cannot be empty")
	}

	pubKeyBytes, _, err := s.kms.ExportPubKeyBytes(keyID)
	if err != nil {
		return fmt.Errorf("export issuer public key: %w", err)
	}

	record := &issuerRecord{
		IssuerInfo: IssuerInfo{
			DID:       did,
			KeyID:     keyID,
			PublicKey: pubKeyBytes,
		},
	}

	for _, opt := range opts {
		opt(record)
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal issuer record: %w", err)
	}

	if err := s.store.PutIfAbsent(issuerKeyPrefix+did, data); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return fmt.Errorf("issuer %q already registered", did)
		}

		return fmt.Errorf("save issuer record: %w", err)
	}

	return nil
}

// Issuer returns the public view of the registered issuer.
func (s *Store) Issuer(did string) (*IssuerInfo, error) {
	record, err := s.issuer(did)
	if err != nil {
		return nil, err
	}

	return &record.IssuerInfo, nil
}

func (s *Store) issuer(did string) (*issuerRecord, error) {
	if cached, err := s.cache.Get(did); err == nil {
		if record, ok := cached.(*issuerRecord); ok {
			return record, nil
		}
	}

	data, err := s.store.Get(issuerKeyPrefix + did)
	if err != nil {
		if errors.Is(err, storage.ErrDataNotFound) {
			return nil, fmt.Errorf("issuer %q: %w", did, ErrUnknownIssuer)
		}

		return nil, fmt.Errorf("get issuer record: %w", err)
	}

	record := &issuerRecord{}
	if err := json.Unmarshal(data, record); err != nil {
		return nil, fmt.Errorf("unmarshal issuer record: %w", err)
	}

	_ = s.cache.Set(did, record) //nolint:errcheck

	return record, nil
}

// Issue creates a credential binding the subject DID to the attributes, signed with
// the issuer's KMS-held Ed25519 key. Issuers registered with a BBS+ keypair also sign
// the attribute messages for later selective disclosure.
func (s *Store) Issue(subjectDID string, attributes map[string]interface{},
	issuerDID string) (*Credential, error) {
	if subjectDID == "" {
		return nil, errors.New("subject DID cannot be empty")
	}

	issuer, err := s.issuer(issuerDID)
	if err != nil {
		return nil, err
	}

	issuedAt := time.Now().UTC()

	digest, err := Digest(subjectDID, attributes, issuerDID, issuedAt)
	if err != nil {
		return nil, err
	}

	kh, err := s.kms.Get(issuer.KeyID)
	if err != nil {
		return nil, fmt.Errorf("get issuer key: %w", err)
	}

	signature, err := s.crypto.Sign(digest, kh)
	if err != nil {
		return nil, fmt.Errorf("sign credential digest: %w", err)
	}

	cred := &Credential{
		ID:         credentialID(digest),
		SubjectDID: subjectDID,
		Issuer:     issuerDID,
		Attributes: attributes,
		IssuedAt:   issuedAt,
		Signature:  signature,
	}

	if len(issuer.BBSPrivateKey) > 0 && len(attributes) > 0 {
		bbsSignature, err := s.bbs.Sign(AttributeMessages(attributes), issuer.BBSPrivateKey)
		if err != nil {
			return nil, fmt.Errorf("bbs sign attribute messages: %w", err)
		}

		cred.BBSSignature = bbsSignature
	}

	record, err := json.Marshal(cred)
	if err != nil {
		return nil, fmt.Errorf("marshal credential record: %w", err)
	}

	if err := s.store.Put(credKeyPrefix+cred.ID, record); err != nil {
		return nil, fmt.Errorf("save credential record: %w", err)
	}

	return cred, nil
}

// Credential returns the stored credential under the given ID.
func (s *Store) Credential(id string) (*Credential, error) {
	data, err := s.store.Get(credKeyPrefix + id)
	if err != nil {
		if errors.Is(err, storage.ErrDataNotFound) {
			return nil, fmt.Errorf("credential %q: %w", id, ErrNotFound)
		}

		return nil, fmt.Errorf("get credential record: %w", err)
	}

	cred := &Credential{}
	if err := json.Unmarshal(data, cred); err != nil {
		return nil, fmt.Errorf("unmarshal credential record: %w", err)
	}

	return cred, nil
}

// Verify reports whether the credential validates against the issuer public key. The
// content digest is recomputed from the credential's attributes, so any post-signing
// mutation fails the check. The revocation index is consulted before the signature.
// Verify fails closed: malformed input yields false, never a panic.
func (s *Store) Verify(cred *Credential, issuerPublicKey []byte) (bool, error) {
	if cred == nil || len(cred.Signature) == 0 || len(issuerPublicKey) == 0 {
		return false, fmt.Errorf("malformed verification input: %w", ErrVerificationFailed)
	}

	revoked, err := s.isRevoked(cred.SubjectDID)
	if err != nil {
		return false, err
	}

	if revoked {
		return false, fmt.Errorf("credentials of %q: %w", cred.SubjectDID, ErrRevoked)
	}

	digest, err := Digest(cred.SubjectDID, cred.Attributes, cred.Issuer, cred.IssuedAt)
	if err != nil {
		return false, fmt.Errorf("%w: %s", ErrVerificationFailed, err.Error())
	}

	pubKH, err := localkms.PublicKeyBytesToHandle(issuerPublicKey, spikms.ED25519Type)
	if err != nil {
		return false, fmt.Errorf("%w: %s", ErrVerificationFailed, err.Error())
	}

	if err := s.crypto.Verify(cred.Signature, digest, pubKH); err != nil {
		return false, fmt.Errorf("%w: %s", ErrVerificationFailed, err.Error())
	}

	return true, nil
}

type revocationRecord struct {
	RevokedAt time.Time `json:"revokedAt"`
}

// Revoke marks all credentials of the subject DID inactive. Revoking an already
// revoked subject is a no-op.
func (s *Store) Revoke(subjectDID string) error {
	if subjectDID == "" {
		return errors.New("subject DID cannot be empty")
	}

	record, err := json.Marshal(&revocationRecord{RevokedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal revocation record: %w", err)
	}

	if err := s.store.Put(revokedKeyPrefix+subjectDID, record); err != nil {
		return fmt.Errorf("save revocation record: %w", err)
	}

	return nil
}

func (s *Store) isRevoked(subjectDID string) (bool, error) {
	_, err := s.store.Get(revokedKeyPrefix + subjectDID)
	if err != nil {
		if errors.Is(err, storage.ErrDataNotFound) {
			return false, nil
		}

		return false, fmt.Errorf("check revocation index: %w", err)
	}

	return true, nil
}
