/*
Copyright Attestra Labs. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package credential issues, verifies and revokes signed attribute credentials.
// A credential binds a subject DID to a set of attributes under an issuer's Ed25519
// signature of the canonical content digest. Issuers registered with a BBS+ keypair
// additionally sign the attribute messages, enabling selective disclosure proofs.
package credential

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/btcsuite/btcutil/base58"
)

// Credential binds a subject DID to attributes signed by an issuer.
type Credential struct {
	ID           string                 `json:"id"`
	SubjectDID   string                 `json:"subjectDid"`
	Issuer       string                 `json:"issuer"`
	Attributes   map[string]interface{} `json:"attributes"`
	IssuedAt     time.Time              `json:"issuedAt"`
	Signature    []byte                 `json:"signature"`
	BBSSignature []byte                 `json:"bbsSignature,omitempty"`
}

// canonicalCredential is the digest input. Its field names sort lexicographically and
// encoding/json emits map keys in sorted order, so the serialization is canonical.
type canonicalCredential struct {
	Attributes map[string]interface{} `json:"attributes"`
	IssuedAt   time.Time              `json:"issuedAt"`
	Issuer     string                 `json:"issuer"`
	SubjectDID string                 `json:"subjectDid"`
}

// Digest computes the canonical SHA-256 digest of the credential content. Callers
// always recompute the digest from the attributes; a stored digest is never trusted.
func Digest(subjectDID string, attributes map[string]interface{}, issuer string,
	issuedAt time.Time) ([]byte, error) {
	canonical, err := json.Marshal(&canonicalCredential{
		Attributes: attributes,
		IssuedAt:   issuedAt,
		Issuer:     issuer,
		SubjectDID: subjectDID,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal canonical credential: %w", err)
	}

	digest := sha256.Sum256(canonical)

	return digest[:], nil
}

// AttributeMessages renders the attributes as name:value lines in sorted name order.
// The rendering is shared by BBS+ signing and selective disclosure so both sides agree
// on message indexes.
func AttributeMessages(attributes map[string]interface{}) [][]byte {
	names := make([]string, 0, len(attributes))

	for name := range attributes {
		names = append(names, name)
	}

	sort.Strings(names)

	messages := make([][]byte, 0, len(names))

	for _, name := range names {
		messages = append(messages, []byte(fmt.Sprintf("%s:%v", name, attributes[name])))
	}

	return messages
}

// AttributeNames returns the attribute names in the same sorted order used by
// AttributeMessages.
func AttributeNames(attributes map[string]interface{}) []string {
	names := make([]string, 0, len(attributes))

	for name := range attributes {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

const idPrefixLen = 16

// credentialID derives a stable, log-friendly credential ID from the content digest.
func credentialID(digest []byte) string {
	return base58.Encode(digest[:idPrefixLen])
}
