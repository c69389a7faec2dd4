/*
Copyright Attestra Labs. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package localkms

import (
	"errors"
	"fmt"
	"io"

	"github.com/golang/protobuf/proto"
	ed25519pb "github.com/google/tink/go/proto/ed25519_go_proto"
	tinkpb "github.com/google/tink/go/proto/tink_go_proto"

	kmsapi "github.com/attestra/authbench/spi/kms"
)

const ed25519VerifierTypeURL = "type.googleapis.com/google.crypto.tink.Ed25519PublicKey"

// PubKeyWriter will write the raw bytes of a public keyset handle's primary key to the
// underlying writer.
type PubKeyWriter struct {
	// KeyType is Key Type of the written key. It's needed as Write() is an interface
	// function and can't return it.
	KeyType kmsapi.KeyType
	w       io.Writer
}

// NewWriter creates a new PubKeyWriter instance.
func NewWriter(w io.Writer) *PubKeyWriter {
	return &PubKeyWriter{
		w: w,
	}
}

// Write writes the public keyset to the underlying w writer as raw key bytes.
func (p *PubKeyWriter) Write(ks *tinkpb.Keyset) error {
	return p.write(ks)
}

// WriteEncrypted writes the encrypted keyset to the underlying w writer. It's not
// supported as a public key is never encrypted.
func (p *PubKeyWriter) WriteEncrypted(_ *tinkpb.EncryptedKeyset) error {
	return errors.New("write encrypted function not supported")
}

func (p *PubKeyWriter) write(msg *tinkpb.Keyset) error {
	ks := msg.Key
	primaryKID := msg.PrimaryKeyId
	created := false

	for _, key := range ks {
		if key.KeyId == primaryKID && key.Status == tinkpb.KeyStatusType_ENABLED {
			switch key.KeyData.TypeUrl {
			case ed25519VerifierTypeURL:
				pubKeyProto := new(ed25519pb.Ed25519PublicKey)

				err := proto.Unmarshal(key.KeyData.Value, pubKeyProto)
				if err != nil {
					return err
				}

				_, err = p.w.Write(pubKeyProto.KeyValue)
				if err != nil {
					return err
				}

				p.KeyType = kmsapi.ED25519Type

				created = true
			default:
				return fmt.Errorf("key type not supported for writing raw key bytes: %s", key.KeyData.TypeUrl)
			}

			break
		}
	}

	if !created {
		return errors.New("key not written")
	}

	return nil
}
