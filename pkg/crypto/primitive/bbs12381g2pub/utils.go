/*
Copyright Attestra Labs. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package bbs12381g2pub

import (
	"encoding/binary"
	"errors"
)

func uint16FromBytes(bytes []byte) uint16 {
	return binary.BigEndian.Uint16(bytes)
}

func uint16ToBytes(value uint16) []byte {
	bytes := make([]byte, 2)

	binary.BigEndian.PutUint16(bytes, value)

	return bytes
}

func uint32ToBytes(value uint32) []byte {
	bytes := make([]byte, 4)

	binary.BigEndian.PutUint32(bytes, value)

	return bytes
}

func uint32FromBytes(bytes []byte) uint32 {
	return binary.BigEndian.Uint32(bytes)
}

func bitvectorToIndexes(data []byte) []int {
	revealedIndexes := make([]int, 0)
	scalar := 0

	for _, v := range data {
		remaining := 8

		for v > 0 {
			revealed := v & 1
			if revealed == 1 {
				revealedIndexes = append(revealedIndexes, scalar)
			}

			v >>= 1
			scalar++
			remaining--
		}

		scalar += remaining
	}

	return revealedIndexes
}

type pokPayload struct {
	messagesCount int
	revealed      []int
}

// newPoKPayload creates a new pokPayload.
func newPoKPayload(messagesCount int, revealed []int) *pokPayload {
	return &pokPayload{
		messagesCount: messagesCount,
		revealed:      revealed,
	}
}

func parsePoKPayload(bytes []byte) (*pokPayload, error) {
	if len(bytes) < 2 { //nolint:gomnd
		return nil, errors.New("invalid size of PoK payload")
	}

	messagesCount := int(uint16FromBytes(bytes[0:2]))
	payload := newPoKPayload(messagesCount, nil)

	if len(bytes) < payload.lenInBytes() {
		return nil, errors.New("invalid size of PoK payload")
	}

	bitvector := bytes[2:payload.lenInBytes()]
	payload.revealed = bitvectorToIndexes(reverseBytes(bitvector))

	return payload, nil
}

func (p *pokPayload) toBytes() ([]byte, error) {
	bytes := make([]byte, p.lenInBytes())

	copy(bytes, uint16ToBytes(uint16(p.messagesCount)))

	bitvector := bytes[2:]

	for _, r := range p.revealed {
		idx := r / 8 //nolint:gomnd
		bit := r % 8 //nolint:gomnd

		if len(bitvector) <= idx {
			return nil, errors.New("invalid size of PoK payload")
		}

		bitvector[len(bitvector)-1-idx] |= 1 << bit
	}

	return bytes, nil
}

func (p *pokPayload) lenInBytes() int {
	return 2 + (p.messagesCount / 8) + 1 //nolint:gomnd
}

func reverseBytes(s []byte) []byte {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}

	return s
}
