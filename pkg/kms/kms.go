/*
Copyright Attestra Labs. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package kms contains storage adapters for KeyManager implementations.
package kms

import (
	"errors"
	"fmt"

	spikms "github.com/attestra/authbench/spi/kms"
	"github.com/attestra/authbench/spi/storage"
)

// WrapperStoreName is the store name used when creating a KMS store using NewStoreWrapper.
const WrapperStoreName = "kmsdb"

type providerKMSStoreWrapper struct {
	store storage.Store
}

func (p *providerKMSStoreWrapper) Put(keysetID string, key []byte) error {
	return p.store.Put(keysetID, key)
}

func (p *providerKMSStoreWrapper) Get(keysetID string) ([]byte, error) {
	key, err := p.store.Get(keysetID)
	if err != nil {
		if errors.Is(err, storage.ErrDataNotFound) {
			return nil, fmt.Errorf("%w. Underlying error: %s",
				spikms.ErrKeyNotFound, err.Error())
		}

		return nil, err
	}

	return key, nil
}

func (p *providerKMSStoreWrapper) Delete(keysetID string) error {
	return p.store.Delete(keysetID)
}

// NewStoreWrapper returns an implementation of the kms.Store interface backed by a
// framework storage provider, allowing it to be used with a KMS.
func NewStoreWrapper(provider storage.Provider) (spikms.Store, error) {
	store, err := provider.OpenStore(WrapperStoreName)
	if err != nil {
		return nil, err
	}

	storeWrapper := providerKMSStoreWrapper{store: store}

	return &storeWrapper, nil
}
