/*
Copyright Attestra Labs. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package pedersen contains a Pedersen commitment scheme over BLS12-381 G1 with
// Schnorr proofs of knowledge of the commitment opening. Commitments are hiding and
// binding: the message base and the blinding base are derived with hash-to-curve, so
// their relative discrete logarithm is unknown to all parties.
package pedersen

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"

	ml "github.com/IBM/mathlib"
)

// nolint:gochecknoglobals
var curve = ml.Curves[ml.BLS12_381_BBS]

// Number of bytes in scalar compressed form.
const frCompressedSize = 32

var (
	// nolint:gochecknoglobals
	// Number of bytes in G1 X coordinate.
	g1CompressedSize = curve.CompressedG1ByteSize

	// nolint:gochecknoglobals
	// Commitment length.
	commitmentLen = curve.CompressedG1ByteSize

	// nolint:gochecknoglobals
	// Witness length.
	witnessLen = frCompressedSize

	// nolint:gochecknoglobals
	// Proof length: one G1 point and two scalar responses.
	proofLen = curve.CompressedG1ByteSize + 2*frCompressedSize
)

// Committer defines a Pedersen commitment scheme with a fixed pair of bases.
type Committer struct {
	h0 *ml.G1
	h1 *ml.G1
}

// New creates a Committer with the blinding base h0 and the message base h1 derived
// from the domain label. The same label always yields the same bases.
func New(label []byte) *Committer {
	offset := len(label) + 1

	data := calcData(label, 1)

	h0 := hashToG1(data)

	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)

	iBytes := uint32ToBytes(1)

	for j := 0; j < len(iBytes); j++ {
		dataCopy[j+offset] = iBytes[j]
	}

	h1 := hashToG1(dataCopy)

	return &Committer{
		h0: h0,
		h1: h1,
	}
}

func calcData(label []byte, basesCount int) []byte {
	data := make([]byte, len(label))
	copy(data, label)

	data = append(data, 0, 0, 0, 0, 0, 0)

	data = append(data, uint32ToBytes(uint32(basesCount))...)

	return data
}

func hashToG1(data []byte) *ml.G1 {
	dstG1 := []byte("BLS12381G1_XOF:BLAKE2B_SSWU_RO_PEDERSEN_COMMITMENTS:1_0_0")

	return curve.HashToG1WithDomain(data, dstG1)
}

// Commitment is a Pedersen commitment to a secret.
type Commitment struct {
	point *ml.G1
}

// Witness is the blinding factor opening a commitment. The committer keeps it private;
// a verifier never sees it.
type Witness struct {
	blinding *ml.Zr
}

// Commit commits to the secret with a fresh blinding factor.
func (c *Committer) Commit(secret []byte) (*Commitment, *Witness, error) {
	if len(secret) == 0 {
		return nil, nil, errors.New("secret is not defined")
	}

	msg := frFromOKM(secret)
	blinding := createRandFr()

	point := sumOfG1Products([]*ml.G1{c.h1, c.h0}, []*ml.Zr{msg, blinding})

	return &Commitment{point: point}, &Witness{blinding: blinding}, nil
}

// ToBytes converts Commitment to bytes using compression of the G1 point.
func (c *Commitment) ToBytes() []byte {
	return c.point.Compressed()
}

// ParseCommitment parses a Commitment from bytes.
func ParseCommitment(bytes []byte) (*Commitment, error) {
	if len(bytes) != commitmentLen {
		return nil, errors.New("invalid size of commitment")
	}

	point, err := curve.NewG1FromCompressed(bytes)
	if err != nil {
		return nil, fmt.Errorf("deserialize G1 compressed commitment: %w", err)
	}

	return &Commitment{point: point}, nil
}

// ToBytes converts Witness to bytes.
func (w *Witness) ToBytes() []byte {
	return frToRepr(w.blinding).Bytes()
}

// ParseWitness parses a Witness from bytes.
func ParseWitness(bytes []byte) (*Witness, error) {
	if len(bytes) != witnessLen {
		return nil, errors.New("invalid size of witness")
	}

	return &Witness{blinding: parseFr(bytes)}, nil
}

func sumOfG1Products(bases []*ml.G1, scalars []*ml.Zr) *ml.G1 {
	var res *ml.G1

	for i := 0; i < len(bases); i++ {
		b := bases[i]
		s := scalars[i]

		g := b.Mul(frToRepr(s))
		if res == nil {
			res = g
		} else {
			res.Add(g)
		}
	}

	return res
}

func uint32ToBytes(value uint32) []byte {
	bytes := make([]byte, 4)

	binary.BigEndian.PutUint32(bytes, value)

	return bytes
}

func createRandFr() *ml.Zr {
	return curve.NewRandomZr(rand.Reader)
}
