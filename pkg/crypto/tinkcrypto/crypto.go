/*
Copyright Attestra Labs. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package tinkcrypto provides the default implementation of the pkg/crypto.Crypto
// interface. It uses github.com/google/tink/go crypto primitives. `kh interface{}`
// arguments in this implementation represent Tink's `*keyset.Handle`, using this type
// provides easy integration with Tink and the default KMS service.
package tinkcrypto

import (
	"errors"
	"fmt"

	"github.com/google/tink/go/keyset"
	"github.com/google/tink/go/signature"
)

var errBadKeyHandleFormat = errors.New("bad key handle format")

// Crypto is the default Crypto SPI implementation using Tink.
type Crypto struct{}

// New creates a new Crypto instance.
func New() (*Crypto, error) {
	return &Crypto{}, nil
}

// Sign will sign msg using the implementation's corresponding signing key referenced by kh of a private key.
func (t *Crypto) Sign(msg []byte, kh interface{}) ([]byte, error) {
	keyHandle, ok := kh.(*keyset.Handle)
	if !ok {
		return nil, errBadKeyHandleFormat
	}

	signer, err := signature.NewSigner(keyHandle)
	if err != nil {
		return nil, fmt.Errorf("create new signer: %w", err)
	}

	s, err := signer.Sign(msg)
	if err != nil {
		return nil, fmt.Errorf("sign msg: %w", err)
	}

	return s, nil
}

// Verify will verify sig signature of msg using the implementation's corresponding signing key referenced by kh of
// a public key.
func (t *Crypto) Verify(sig, msg []byte, kh interface{}) error {
	keyHandle, ok := kh.(*keyset.Handle)
	if !ok {
		return errBadKeyHandleFormat
	}

	verifier, err := signature.NewVerifier(keyHandle)
	if err != nil {
		return fmt.Errorf("create new verifier: %w", err)
	}

	err = verifier.Verify(sig, msg)
	if err != nil {
		err = fmt.Errorf("verify msg: %w", err)
	}

	return err
}
