/*
Copyright Attestra Labs. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package localkms

import (
	"bytes"
	"crypto/ed25519"
	"fmt"

	"github.com/golang/protobuf/proto"
	"github.com/google/tink/go/insecurecleartextkeyset"
	"github.com/google/tink/go/keyset"
	ed25519pb "github.com/google/tink/go/proto/ed25519_go_proto"
	tinkpb "github.com/google/tink/go/proto/tink_go_proto"

	kmsapi "github.com/attestra/authbench/spi/kms"
)

// PublicKeyBytesToHandle converts raw public key bytes, as exported by
// ExportPubKeyBytes, into a verification keyset handle usable with the Crypto
// service's Verify. The handle is not persisted.
func PublicKeyBytesToHandle(pubKey []byte, kt kmsapi.KeyType) (*keyset.Handle, error) {
	if len(pubKey) == 0 {
		return nil, fmt.Errorf("public key is empty")
	}

	if kt != kmsapi.ED25519Type {
		return nil, fmt.Errorf("key type %q is not supported", kt)
	}

	if len(pubKey) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid public key size %d", len(pubKey))
	}

	pubKeyProto := &ed25519pb.Ed25519PublicKey{
		Version:  0,
		KeyValue: pubKey,
	}

	marshalledKey, err := proto.Marshal(pubKeyProto)
	if err != nil {
		return nil, fmt.Errorf("marshal public key proto: %w", err)
	}

	ks := newKeySet(ed25519VerifierTypeURL, marshalledKey, tinkpb.KeyData_ASYMMETRIC_PUBLIC)

	serializedKS, err := proto.Marshal(ks)
	if err != nil {
		return nil, fmt.Errorf("marshal keyset: %w", err)
	}

	kh, err := insecurecleartextkeyset.Read(keyset.NewBinaryReader(bytes.NewReader(serializedKS)))
	if err != nil {
		return nil, fmt.Errorf("read keyset: %w", err)
	}

	return kh, nil
}
