/*
Copyright Attestra Labs. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package bbs12381g2pub

import (
	"errors"
	"fmt"

	ml "github.com/IBM/mathlib"
)

// ProofG1 is a proof of knowledge of messages in a vector commitment.
type ProofG1 struct {
	commitment *ml.G1
	responses  []*ml.Zr
}

// NewProofG1 creates a new ProofG1.
func NewProofG1(commitment *ml.G1, responses []*ml.Zr) *ProofG1 {
	return &ProofG1{
		commitment: commitment,
		responses:  responses,
	}
}

// Verify verifies the ProofG1.
func (pg1 *ProofG1) Verify(challenge *ml.Zr, bases []*ml.G1, commitment *ml.G1) error {
	contribution := pg1.getChallengeContribution(challenge, bases, commitment)
	contribution.Sub(pg1.commitment)

	if !contribution.IsInfinity() {
		return errors.New("contribution is not zero")
	}

	return nil
}

// getChallengeContribution returns the contribution of this proof to the challenge.
func (pg1 *ProofG1) getChallengeContribution(challenge *ml.Zr, bases []*ml.G1,
	commitment *ml.G1) *ml.G1 {
	points := append(bases, commitment)
	scalars := append(pg1.responses, challenge)

	return sumOfG1Products(points, scalars)
}

// ToBytes converts ProofG1 to bytes.
func (pg1 *ProofG1) ToBytes() []byte {
	bytes := make([]byte, 0)

	commitmentBytes := pg1.commitment.Compressed()
	bytes = append(bytes, commitmentBytes...)

	lenBytes := uint32ToBytes(uint32(len(pg1.responses)))
	bytes = append(bytes, lenBytes...)

	for i := range pg1.responses {
		responseBytes := frToRepr(pg1.responses[i]).Bytes()
		bytes = append(bytes, responseBytes...)
	}

	return bytes
}

// ParseProofG1 parses ProofG1 from bytes.
func ParseProofG1(bytes []byte) (*ProofG1, error) {
	if len(bytes) < g1CompressedSize+4 {
		return nil, errors.New("invalid size of G1 signature proof")
	}

	offset := 0

	commitment, err := curve.NewG1FromCompressed(bytes[:g1CompressedSize])
	if err != nil {
		return nil, fmt.Errorf("parse G1 point: %w", err)
	}

	offset += g1CompressedSize
	length := int(uint32FromBytes(bytes[offset : offset+4]))
	offset += 4

	if len(bytes) < g1CompressedSize+4+length*frCompressedSize {
		return nil, errors.New("invalid size of G1 signature proof")
	}

	responses := make([]*ml.Zr, length)
	for i := 0; i < length; i++ {
		responses[i] = parseFr(bytes[offset : offset+frCompressedSize])
		offset += frCompressedSize
	}

	return NewProofG1(commitment, responses), nil
}

// ProverCommittedG1 helps to generate a ProofG1.
type ProverCommittedG1 struct {
	bases           []*ml.G1
	blindingFactors []*ml.Zr
	commitment      *ml.G1
}

// ToBytes converts ProverCommittedG1 to bytes.
func (g *ProverCommittedG1) ToBytes() []byte {
	bytes := make([]byte, 0)

	for _, base := range g.bases {
		bytes = append(bytes, base.Bytes()...)
	}

	return append(bytes, g.commitment.Bytes()...)
}

// GenerateProof generates proof ProofG1 for all secrets.
func (g *ProverCommittedG1) GenerateProof(challenge *ml.Zr, secrets []*ml.Zr) *ProofG1 {
	responses := make([]*ml.Zr, len(g.bases))

	for i := range g.blindingFactors {
		c := challenge.Mul(secrets[i])

		s := g.blindingFactors[i].Minus(c)
		s.Mod(curve.GroupOrder)
		responses[i] = s
	}

	return &ProofG1{
		commitment: g.commitment,
		responses:  responses,
	}
}

// ProverCommittingG1 is a proof of knowledge of messages in a vector commitment.
type ProverCommittingG1 struct {
	bases           []*ml.G1
	blindingFactors []*ml.Zr
}

// NewProverCommittingG1 creates a new ProverCommittingG1.
func NewProverCommittingG1() *ProverCommittingG1 {
	return &ProverCommittingG1{
		bases:           make([]*ml.G1, 0),
		blindingFactors: make([]*ml.Zr, 0),
	}
}

// Commit append a base point and a randomly generated blinding factor.
func (pc *ProverCommittingG1) Commit(base *ml.G1) {
	pc.bases = append(pc.bases, base)
	r := createRandSignatureFr()
	pc.blindingFactors = append(pc.blindingFactors, r)
}

// Finish helps to generate ProverCommittedG1 after commitment of all base points.
func (pc *ProverCommittingG1) Finish() *ProverCommittedG1 {
	commitment := sumOfG1Products(pc.bases, pc.blindingFactors)

	return &ProverCommittedG1{
		bases:           pc.bases,
		blindingFactors: pc.blindingFactors,
		commitment:      commitment,
	}
}
