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

// PoKOfSignature is Proof of Knowledge of a Signature that is used by the prover to construct PoKOfSignatureProof.
type PoKOfSignature struct {
	aPrime *ml.G1
	aBar   *ml.G1
	d      *ml.G1

	pokVC1   *ProverCommittedG1
	secrets1 []*ml.Zr

	pokVC2   *ProverCommittedG1
	secrets2 []*ml.Zr

	revealedMessages map[int]*SignatureMessage
}

// NewPoKOfSignature creates a new PoKOfSignature.
func NewPoKOfSignature(signature *Signature, messages []*SignatureMessage, revealedIndexes []int,
	pubKey *PublicKeyWithGenerators) (*PoKOfSignature, error) {
	err := signature.Verify(messages, pubKey)
	if err != nil {
		return nil, fmt.Errorf("verify input signature: %w", err)
	}

	if len(revealedIndexes) > len(messages) {
		return nil, fmt.Errorf("invalid size: %d revealed indexes is larger than %d messages", len(revealedIndexes),
			len(messages))
	}

	r1, r2 := createRandSignatureFr(), createRandSignatureFr()

	b := computeB(signature.S, messages, pubKey)

	aPrime := signature.A.Mul(frToRepr(r1))

	aBarDenom := aPrime.Mul(frToRepr(signature.E))

	aBar := b.Mul(frToRepr(r1))
	aBar.Sub(aBarDenom)

	r2D := curve.NewZrFromInt(0)
	r2D = r2D.Minus(r2)
	r2D.Mod(curve.GroupOrder)

	commitmentBasesCount := 2
	cb := newCommitmentBuilder(commitmentBasesCount)
	cb.add(b, r1)
	cb.add(pubKey.h0, r2D)

	d := cb.build()

	r3 := r1.Copy()
	r3.InvModP(curve.GroupOrder)

	sPrime := signature.S.Copy()
	sPrime = sPrime.Minus(r2.Mul(r3))
	sPrime.Mod(curve.GroupOrder)

	pokVC1, secrets1 := newVC1Signature(aPrime, pubKey.h0, signature.E, r2)

	revealedMessages := make(map[int]*SignatureMessage, len(revealedIndexes))

	for _, ind := range revealedIndexes {
		if ind >= len(messages) {
			return nil, fmt.Errorf("%d is out of range", ind)
		}

		revealedMessages[ind] = messages[ind]
	}

	pokVC2, secrets2 := newVC2Signature(d, r3, pubKey, sPrime, messages, revealedMessages)

	return &PoKOfSignature{
		aPrime:           aPrime,
		aBar:             aBar,
		d:                d,
		pokVC1:           pokVC1,
		secrets1:         secrets1,
		pokVC2:           pokVC2,
		secrets2:         secrets2,
		revealedMessages: revealedMessages,
	}, nil
}

func newVC1Signature(aPrime *ml.G1, h0 *ml.G1,
	e, r2 *ml.Zr) (*ProverCommittedG1, []*ml.Zr) {
	committing1 := NewProverCommittingG1()
	secrets1 := make([]*ml.Zr, 2)

	committing1.Commit(aPrime)

	sigE := curve.NewZrFromInt(0)
	sigE = sigE.Minus(e)
	sigE.Mod(curve.GroupOrder)
	secrets1[0] = sigE

	committing1.Commit(h0)

	secrets1[1] = r2
	pokVC1 := committing1.Finish()

	return pokVC1, secrets1
}

func newVC2Signature(d *ml.G1, r3 *ml.Zr, pubKey *PublicKeyWithGenerators, sPrime *ml.Zr,
	messages []*SignatureMessage, revealedMessages map[int]*SignatureMessage) (*ProverCommittedG1, []*ml.Zr) {
	messagesCount := len(messages)
	committing2 := NewProverCommittingG1()
	baseSecretsCount := 2
	secrets2 := make([]*ml.Zr, 0, baseSecretsCount+messagesCount)

	committing2.Commit(d)

	r3D := curve.NewZrFromInt(0)
	r3D = r3D.Minus(r3)
	r3D.Mod(curve.GroupOrder)

	secrets2 = append(secrets2, r3D)

	committing2.Commit(pubKey.h0)

	secrets2 = append(secrets2, sPrime)

	for i := 0; i < messagesCount; i++ {
		if _, ok := revealedMessages[i]; ok {
			continue
		}

		committing2.Commit(pubKey.h[i])

		sourceFR := messages[i].FR
		hiddenFRCopy := sourceFR.Copy()

		secrets2 = append(secrets2, hiddenFRCopy)
	}

	pokVC2 := committing2.Finish()

	return pokVC2, secrets2
}

// ToBytes converts PoKOfSignature to bytes.
func (pos *PoKOfSignature) ToBytes() []byte {
	challengeBytes := pos.aBar.Bytes()
	challengeBytes = append(challengeBytes, pos.pokVC1.ToBytes()...)
	challengeBytes = append(challengeBytes, pos.pokVC2.ToBytes()...)

	return challengeBytes
}

// GenerateProof generates PoKOfSignatureProof proof from PoKOfSignature signature.
func (pos *PoKOfSignature) GenerateProof(challengeHash *ml.Zr) *PoKOfSignatureProof {
	return &PoKOfSignatureProof{
		aPrime:   pos.aPrime,
		aBar:     pos.aBar,
		d:        pos.d,
		proofVC1: pos.pokVC1.GenerateProof(challengeHash, pos.secrets1),
		proofVC2: pos.pokVC2.GenerateProof(challengeHash, pos.secrets2),
	}
}

// PoKOfSignatureProof defines BLS signature proof.
// It is the actual proof that is sent from prover to verifier.
type PoKOfSignatureProof struct {
	aPrime *ml.G1
	aBar   *ml.G1
	d      *ml.G1

	proofVC1 *ProofG1
	proofVC2 *ProofG1
}

// GetBytesForChallenge creates bytes for proof challenge.
func (sp *PoKOfSignatureProof) GetBytesForChallenge(revealedMessages map[int]*SignatureMessage,
	pubKey *PublicKeyWithGenerators) []byte {
	hiddenCount := pubKey.messagesCount - len(revealedMessages)

	bytesLen := (7 + hiddenCount) * g1UncompressedSize //nolint:gomnd
	bytes := make([]byte, 0, bytesLen)

	bytes = append(bytes, sp.aBar.Bytes()...)
	bytes = append(bytes, sp.aPrime.Bytes()...)
	bytes = append(bytes, pubKey.h0.Bytes()...)
	bytes = append(bytes, sp.proofVC1.commitment.Bytes()...)
	bytes = append(bytes, sp.d.Bytes()...)
	bytes = append(bytes, pubKey.h0.Bytes()...)

	for i := range pubKey.h {
		if _, ok := revealedMessages[i]; !ok {
			bytes = append(bytes, pubKey.h[i].Bytes()...)
		}
	}

	bytes = append(bytes, sp.proofVC2.commitment.Bytes()...)

	return bytes
}

// Verify verifies PoKOfSignatureProof.
func (sp *PoKOfSignatureProof) Verify(challenge *ml.Zr, pubKey *PublicKeyWithGenerators,
	revealedMessages map[int]*SignatureMessage, messages []*SignatureMessage) error {
	aBar := negateG1(sp.aBar)

	ok := compareTwoPairings(sp.aPrime, pubKey.w, aBar, curve.GenG2)
	if !ok {
		return errors.New("bad signature")
	}

	err := sp.verifyVC1Proof(challenge, pubKey)
	if err != nil {
		return err
	}

	return sp.verifyVC2Proof(challenge, pubKey, revealedMessages, messages)
}

func (sp *PoKOfSignatureProof) verifyVC1Proof(challenge *ml.Zr, pubKey *PublicKeyWithGenerators) error {
	basesVC1 := []*ml.G1{sp.aPrime, pubKey.h0}

	aBarD := sp.aBar.Copy()
	aBarD.Sub(sp.d)

	err := sp.proofVC1.Verify(challenge, basesVC1, aBarD)
	if err != nil {
		return errors.New("bad signature proof vc1")
	}

	return nil
}

func (sp *PoKOfSignatureProof) verifyVC2Proof(challenge *ml.Zr, pubKey *PublicKeyWithGenerators,
	revealedMessages map[int]*SignatureMessage, messages []*SignatureMessage) error {
	revealedMessagesCount := len(revealedMessages)

	basesVC2 := make([]*ml.G1, 0, 2+pubKey.messagesCount-revealedMessagesCount) //nolint:gomnd
	basesVC2 = append(basesVC2, sp.d, pubKey.h0)

	basesDisclosed := make([]*ml.G1, 0, 1+revealedMessagesCount)
	exponents := make([]*ml.Zr, 0, 1+revealedMessagesCount)

	basesDisclosed = append(basesDisclosed, curve.GenG1)
	exponents = append(exponents, curve.NewZrFromInt(1))

	revealedMessagesInd := 0

	for i := range pubKey.h {
		if _, ok := revealedMessages[i]; ok {
			basesDisclosed = append(basesDisclosed, pubKey.h[i])
			exponents = append(exponents, messages[revealedMessagesInd].FR)
			revealedMessagesInd++
		} else {
			basesVC2 = append(basesVC2, pubKey.h[i])
		}
	}

	pr := negateG1(sumOfG1Products(basesDisclosed, exponents))

	err := sp.proofVC2.Verify(challenge, basesVC2, pr)
	if err != nil {
		return errors.New("bad signature proof vc2")
	}

	return nil
}

// ToBytes converts PoKOfSignatureProof to bytes.
func (sp *PoKOfSignatureProof) ToBytes() []byte {
	bytes := make([]byte, 0)

	bytes = append(bytes, sp.aPrime.Compressed()...)
	bytes = append(bytes, sp.aBar.Compressed()...)
	bytes = append(bytes, sp.d.Compressed()...)

	proof1Bytes := sp.proofVC1.ToBytes()

	lenBytes := uint32ToBytes(uint32(len(proof1Bytes)))
	bytes = append(bytes, lenBytes...)
	bytes = append(bytes, proof1Bytes...)

	bytes = append(bytes, sp.proofVC2.ToBytes()...)

	return bytes
}

// ParseSignatureProof parses a signature proof.
func ParseSignatureProof(sigProofBytes []byte) (*PoKOfSignatureProof, error) {
	if len(sigProofBytes) < g1CompressedSize*3 {
		return nil, errors.New("invalid size of signature proof")
	}

	g1Points := make([]*ml.G1, 3)
	offset := 0

	for i := range g1Points {
		g1Point, err := curve.NewG1FromCompressed(sigProofBytes[offset : offset+g1CompressedSize])
		if err != nil {
			return nil, fmt.Errorf("parse G1 point: %w", err)
		}

		g1Points[i] = g1Point
		offset += g1CompressedSize
	}

	proof1BytesLen := int(uint32FromBytes(sigProofBytes[offset : offset+4]))
	offset += 4

	proofVc1, err := ParseProofG1(sigProofBytes[offset : offset+proof1BytesLen])
	if err != nil {
		return nil, fmt.Errorf("parse G1 proof: %w", err)
	}

	offset += proof1BytesLen

	proofVc2, err := ParseProofG1(sigProofBytes[offset:])
	if err != nil {
		return nil, fmt.Errorf("parse G1 proof: %w", err)
	}

	return &PoKOfSignatureProof{
		aPrime:   g1Points[0],
		aBar:     g1Points[1],
		d:        g1Points[2],
		proofVC1: proofVc1,
		proofVC2: proofVc2,
	}, nil
}
