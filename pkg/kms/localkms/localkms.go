/*
Copyright Attestra Labs. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package localkms is the default KMS service implementation of kms.KeyManager. It
// uses Tink keys and stores them in the format understood by Tink. Keysets are stored
// cleartext since protecting key material at rest is out of scope for this framework.
package localkms

import (
	"bytes"
	"crypto/ed25519"
	"fmt"

	"github.com/google/tink/go/insecurecleartextkeyset"
	"github.com/google/tink/go/keyset"

	kmsapi "github.com/attestra/authbench/spi/kms"
)

// Namespace is the keystore's DB storage namespace.
const Namespace = "kmsdb"

// LocalKMS implements kmsapi.KeyManager to provide key management capabilities using
// a local db.
type LocalKMS struct {
	store kmsapi.Store
}

// New will create a new (local) KMS service.
func New(p kmsapi.Provider) (*LocalKMS, error) {
	store := p.StorageProvider()
	if store == nil {
		return nil, fmt.Errorf("new: provider does not have a storage provider")
	}

	return &LocalKMS{store: store}, nil
}

// Create a new key/keyset/key handle for the type kt.
// Returns:
//   - keyID of the handle
//   - handle instance (to private key)
//   - error if failure
func (l *LocalKMS) Create(kt kmsapi.KeyType) (string, interface{}, error) {
	if kt == "" {
		return "", nil, fmt.Errorf("failed to create new key, missing key type")
	}

	keyTemplate, err := getKeyTemplate(kt)
	if err != nil {
		return "", nil, fmt.Errorf("failed to getKeyTemplate: %w", err)
	}

	kh, err := keyset.NewHandle(keyTemplate)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create new keyset handle: %w", err)
	}

	keyID, err := l.storeKeySet(kh)
	if err != nil {
		return "", nil, fmt.Errorf("failed to store keyset: %w", err)
	}

	return keyID, kh, nil
}

// Get key handle for the given keyID.
// Returns:
//   - handle instance (to private key)
//   - error if failure
func (l *LocalKMS) Get(keyID string) (interface{}, error) {
	return l.getKeySet(keyID)
}

// ExportPubKeyBytes will fetch a key referenced by id then gets its public key in raw
// bytes and returns it. The key must be an asymmetric key.
// Returns:
//   - marshalled public key []byte
//   - the key type
//   - error if it fails to export the public key bytes
func (l *LocalKMS) ExportPubKeyBytes(id string) ([]byte, kmsapi.KeyType, error) {
	kh, err := l.getKeySet(id)
	if err != nil {
		return nil, "", fmt.Errorf("exportPubKeyBytes: failed to get keyset handle: %w", err)
	}

	marshalledKey, kt, err := l.exportPubKeyBytes(kh)
	if err != nil {
		return nil, "", fmt.Errorf("exportPubKeyBytes: failed to export marshalled key: %w", err)
	}

	return marshalledKey, kt, nil
}

func (l *LocalKMS) exportPubKeyBytes(kh *keyset.Handle) ([]byte, kmsapi.KeyType, error) {
	// kh must be a private asymmetric key in order to extract its public key
	pubKH, err := kh.Public()
	if err != nil {
		return nil, "", fmt.Errorf("exportPubKeyBytes: failed to get public keyset handle: %w", err)
	}

	buf := new(bytes.Buffer)
	pubKeyWriter := NewWriter(buf)

	err = pubKH.WriteWithNoSecrets(pubKeyWriter)
	if err != nil {
		return nil, "", fmt.Errorf("exportPubKeyBytes: failed to create public key bytes: %w", err)
	}

	return buf.Bytes(), pubKeyWriter.KeyType, nil
}

// CreateAndExportPubKeyBytes will create a key of type kt and export its public key in
// raw bytes and returns it.
// Returns:
//   - keyID of the new handle created
//   - marshalled public key []byte
//   - error if it fails to export the public key bytes
func (l *LocalKMS) CreateAndExportPubKeyBytes(kt kmsapi.KeyType) (string, []byte, error) {
	kid, _, err := l.Create(kt)
	if err != nil {
		return "", nil, fmt.Errorf("createAndExportPubKeyBytes: failed to create new key: %w", err)
	}

	pubKeyBytes, _, err := l.ExportPubKeyBytes(kid)
	if err != nil {
		return "", nil, fmt.Errorf("createAndExportPubKeyBytes: failed to export new public key bytes: %w", err)
	}

	return kid, pubKeyBytes, nil
}

// ImportPrivateKey will import privKey into the KMS storage for the given keyType then
// return the new key id and the newly persisted Handle.
// 'privKey' possible types are: ed25519.PrivateKey
// Returns:
//   - keyID of the handle
//   - handle instance (to private key)
//   - error if import failure (key empty, invalid, doesn't match keyType)
func (l *LocalKMS) ImportPrivateKey(privKey interface{}, kt kmsapi.KeyType) (string, interface{}, error) {
	switch pk := privKey.(type) {
	case ed25519.PrivateKey:
		return l.importEd25519Key(pk, kt)
	default:
		return "", nil, fmt.Errorf("import private key does not support this key type or key is empty")
	}
}

func (l *LocalKMS) storeKeySet(kh *keyset.Handle) (string, error) {
	buf := new(bytes.Buffer)

	err := insecurecleartextkeyset.Write(kh, keyset.NewBinaryWriter(buf))
	if err != nil {
		return "", fmt.Errorf("storeKeySet: failed to write keyset: %w", err)
	}

	return writeToStore(l.store, buf)
}

func writeToStore(store kmsapi.Store, buf *bytes.Buffer) (string, error) {
	w := newWriter(store)

	// write buffer to localstorage
	_, err := w.Write(buf.Bytes())
	if err != nil {
		return "", fmt.Errorf("writeToStore: failed to write buffer to store: %w", err)
	}

	return w.KeysetID, nil
}

func (l *LocalKMS) getKeySet(id string) (*keyset.Handle, error) {
	localDBReader := newReader(l.store, id)

	kh, err := insecurecleartextkeyset.Read(keyset.NewBinaryReader(localDBReader))
	if err != nil {
		return nil, fmt.Errorf("getKeySet: failed to read keyset from reader: %w", err)
	}

	return kh, nil
}
