/*
Copyright Attestra Labs. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package pedersen

import (
	"errors"
	"fmt"

	ml "github.com/IBM/mathlib"
)

// Prove creates a proof of knowledge of the opening of the commitment to the secret.
// The proof is bound to the nonce: verification succeeds only against the same nonce.
func (c *Committer) Prove(secret []byte, witness *Witness, nonce []byte) ([]byte, error) {
	if len(secret) == 0 {
		return nil, errors.New("secret is not defined")
	}

	msg := frFromOKM(secret)

	commitment := sumOfG1Products([]*ml.G1{c.h1, c.h0}, []*ml.Zr{msg, witness.blinding})

	msgBlinding := createRandFr()
	witnessBlinding := createRandFr()

	u := sumOfG1Products([]*ml.G1{c.h1, c.h0}, []*ml.Zr{msgBlinding, witnessBlinding})

	challenge := c.challengeFor(commitment, u, nonce)

	msgResp := responseFor(msgBlinding, challenge, msg)
	witnessResp := responseFor(witnessBlinding, challenge, witness.blinding)

	bytes := make([]byte, 0, proofLen)
	bytes = append(bytes, u.Compressed()...)
	bytes = append(bytes, frToRepr(msgResp).Bytes()...)
	bytes = append(bytes, frToRepr(witnessResp).Bytes()...)

	return bytes, nil
}

// VerifyProof verifies a proof of knowledge of the opening of the commitment against
// the nonce the proof was created for.
func (c *Committer) VerifyProof(commitment, proof, nonce []byte) error {
	cmt, err := ParseCommitment(commitment)
	if err != nil {
		return fmt.Errorf("parse commitment: %w", err)
	}

	pok, err := parseProofOfKnowledge(proof)
	if err != nil {
		return fmt.Errorf("parse proof of knowledge: %w", err)
	}

	challenge := c.challengeFor(cmt.point, pok.u, nonce)

	contribution := sumOfG1Products(
		[]*ml.G1{c.h1, c.h0, cmt.point},
		[]*ml.Zr{pok.msgResp, pok.witnessResp, challenge})
	contribution.Sub(pok.u)

	if !contribution.IsInfinity() {
		return errors.New("invalid proof of knowledge")
	}

	return nil
}

// challengeFor derives the proof challenge from the full transcript: the statement,
// the bases, the prover commitment and the nonce.
func (c *Committer) challengeFor(commitment, u *ml.G1, nonce []byte) *ml.Zr {
	challengeBytes := commitment.Bytes()
	challengeBytes = append(challengeBytes, c.h1.Bytes()...)
	challengeBytes = append(challengeBytes, c.h0.Bytes()...)
	challengeBytes = append(challengeBytes, u.Bytes()...)
	challengeBytes = append(challengeBytes, nonce...)

	return frFromOKM(challengeBytes)
}

func responseFor(blinding, challenge, secret *ml.Zr) *ml.Zr {
	cs := challenge.Mul(secret)

	resp := blinding.Minus(cs)
	resp.Mod(curve.GroupOrder)

	return resp
}

type proofOfKnowledge struct {
	u           *ml.G1
	msgResp     *ml.Zr
	witnessResp *ml.Zr
}

func parseProofOfKnowledge(bytes []byte) (*proofOfKnowledge, error) {
	if len(bytes) != proofLen {
		return nil, errors.New("invalid size of proof of knowledge")
	}

	u, err := curve.NewG1FromCompressed(bytes[:g1CompressedSize])
	if err != nil {
		return nil, fmt.Errorf("parse G1 point: %w", err)
	}

	return &proofOfKnowledge{
		u:           u,
		msgResp:     parseFr(bytes[g1CompressedSize : g1CompressedSize+frCompressedSize]),
		witnessResp: parseFr(bytes[g1CompressedSize+frCompressedSize:]),
	}, nil
}
