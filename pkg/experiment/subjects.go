/*
Copyright Attestra Labs. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package experiment

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// LoadSubjects parses a JSON array of subjects, e.g.
//
//	[{"id": "u1", "attributes": {"age": 30}, "secret": "s3cr3t"}]
func LoadSubjects(r io.Reader) ([]Subject, error) {
	var subjects []Subject

	if err := json.NewDecoder(r).Decode(&subjects); err != nil {
		return nil, errors.Wrap(err, "decode subjects")
	}

	if len(subjects) == 0 {
		return nil, errors.New("subject list is empty")
	}

	for i := range subjects {
		if subjects[i].ID == "" {
			return nil, errors.Errorf("subject at index %d has no ID", i)
		}
	}

	return subjects, nil
}

// SynthesizeSubjects fabricates count subjects with distinct IDs, random secrets
// and a small credential attribute set.
func SynthesizeSubjects(count int) ([]Subject, error) {
	if count <= 0 {
		return nil, errors.New("subject count must be positive")
	}

	tiers := []string{"bronze", "silver", "gold"}
	countries := []string{"FI", "DE", "JP", "BR"}

	subjects := make([]Subject, count)

	for i := range subjects {
		secret := make([]byte, 16)
		if _, err := io.ReadFull(rand.Reader, secret); err != nil {
			return nil, errors.Wrap(err, "generate subject secret")
		}

		subjects[i] = Subject{
			ID:     fmt.Sprintf("subject-%04d", i+1),
			Secret: base64.RawURLEncoding.EncodeToString(secret),
			Attributes: map[string]interface{}{
				"age":     21 + i%50,
				"tier":    tiers[i%len(tiers)],
				"country": countries[i%len(countries)],
			},
		}
	}

	return subjects, nil
}
