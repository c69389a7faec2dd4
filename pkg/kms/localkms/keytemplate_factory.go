/*
Copyright Attestra Labs. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package localkms

import (
	"fmt"

	tinkpb "github.com/google/tink/go/proto/tink_go_proto"
	"github.com/google/tink/go/signature"

	kmsapi "github.com/attestra/authbench/spi/kms"
)

// getKeyTemplate returns tink KeyTemplate associated with the provided keyType.
func getKeyTemplate(keyType kmsapi.KeyType) (*tinkpb.KeyTemplate, error) {
	switch keyType {
	case kmsapi.ED25519Type:
		// without-prefix templates produce raw signatures compatible with crypto/ed25519
		return signature.ED25519KeyWithoutPrefixTemplate(), nil
	default:
		return nil, fmt.Errorf("getKeyTemplate: key type '%s' unrecognized", keyType)
	}
}
