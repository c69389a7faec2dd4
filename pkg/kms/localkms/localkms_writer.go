/*
Copyright Attestra Labs. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package localkms

import (
	"encoding/base64"
	"errors"

	"github.com/google/tink/go/subtle/random"

	kmsapi "github.com/attestra/authbench/spi/kms"
)

const maxKeyIDLen = 50

// newWriter creates a new instance of local storage key storeWriter in the given store.
func newWriter(kmsStore kmsapi.Store) *storeWriter {
	return &storeWriter{
		storage: kmsStore,
	}
}

// storeWriter struct to store a keyset in a local store.
type storeWriter struct {
	storage kmsapi.Store
	// KeysetID is set when Write() is called
	KeysetID string
}

// Write a marshaled keyset p in localstore under a randomly generated KeysetID.
func (l *storeWriter) Write(p []byte) (int, error) {
	ksID, err := l.newKeysetID()
	if err != nil {
		return 0, err
	}

	err = l.storage.Put(ksID, p)
	if err != nil {
		return 0, err
	}

	l.KeysetID = ksID

	return len(p), nil
}

func (l *storeWriter) newKeysetID() (string, error) {
	keySetIDLength := base64.RawURLEncoding.DecodedLen(maxKeyIDLen)

	var ksID string

	for {
		// generate random ID
		ksID = base64.RawURLEncoding.EncodeToString(random.GetRandomBytes(uint32(keySetIDLength)))

		// ensure ksID is not already used
		_, err := l.storage.Get(ksID)
		if err != nil {
			if errors.Is(err, kmsapi.ErrKeyNotFound) {
				break
			}

			return "", err
		}
	}

	return ksID, nil
}
