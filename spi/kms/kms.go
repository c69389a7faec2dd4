/*
Copyright Attestra Labs. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package kms provides the KMS interface of the framework: the provider interface
// necessary for building KMS instances and the list of key types supported by the
// service. Private keys never cross this boundary; callers work with opaque handles
// and key IDs.
package kms

import "errors"

// ErrKeyNotFound is an error type that a KMS expects from the Store.Get method if no
// key stored under the given key ID could be found.
var ErrKeyNotFound = errors.New("key not found")

// KeyManager manages keys and their storage for the framework.
type KeyManager interface {
	// Create a new key/keyset/key handle for the type kt.
	// Returns:
	//  - keyID of the handle
	//  - handle instance (to private key)
	//  - error if failure
	Create(kt KeyType) (string, interface{}, error)
	// Get key handle for the given keyID.
	// Returns:
	//  - handle instance (to private key)
	//  - error if failure
	Get(keyID string) (interface{}, error)
	// ExportPubKeyBytes fetches a key referenced by id then gets its public key in raw
	// bytes and returns it. The key must be an asymmetric key.
	// Returns:
	//  - marshalled public key []byte
	//  - the key type
	//  - error if it fails to export the public key bytes
	ExportPubKeyBytes(keyID string) ([]byte, KeyType, error)
	// CreateAndExportPubKeyBytes creates a key of type kt and exports its public key
	// in raw bytes.
	// Returns:
	//  - keyID of the new handle created
	//  - marshalled public key []byte
	//  - error if it fails to export the public key bytes
	CreateAndExportPubKeyBytes(kt KeyType) (string, []byte, error)
	// ImportPrivateKey imports privKey into the KMS storage for the given keyType then
	// returns the new key id and the newly persisted handle.
	// 'privKey' possible types are: ed25519.PrivateKey
	// Returns:
	//  - keyID of the handle
	//  - handle instance (to private key)
	//  - error if import failure (key empty, invalid, doesn't match keyType)
	ImportPrivateKey(privKey interface{}, kt KeyType) (string, interface{}, error)
}

// Store defines the storage capability required by a KeyManager Provider.
type Store interface {
	// Put stores the given key under the given keysetID.
	Put(keysetID string, key []byte) error
	// Get retrieves the key stored under the given keysetID. If no key is found, the
	// returned error is expected to wrap ErrKeyNotFound.
	Get(keysetID string) (key []byte, err error)
	// Delete deletes the key stored under the given keysetID. A KeyManager will assume
	// that attempting to delete a non-existent key will not return an error.
	Delete(keysetID string) error
}

// Provider for KeyManager builder/constructor.
type Provider interface {
	StorageProvider() Store
}

// KeyType represents a key type supported by the KMS.
type KeyType string

const (
	// ED25519 key type value.
	ED25519 = "ED25519"

	// ED25519Type key type value.
	ED25519Type = KeyType(ED25519)
)
