/*
Copyright Attestra Labs. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package proof

import (
	"encoding/json"
	"time"
)

// sweepLoop deletes expired challenge records and their claim markers until the
// engine is closed.
func (e *Engine) sweepLoop() {
	ticker := time.NewTicker(e.sweepEach)
	defer ticker.Stop()

	for {
		select {
		case <-e.done:
			return
		case <-ticker.C:
			e.sweepExpired()
		}
	}
}

func (e *Engine) sweepExpired() {
	iterator, err := e.store.Query(challengeTagName)
	if err != nil {
		logger.Warnf("query challenge records for sweep: %s", err)

		return
	}

	defer func() {
		if errClose := iterator.Close(); errClose != nil {
			logger.Warnf("close challenge sweep iterator: %s", errClose)
		}
	}()

	now := time.Now()

	var expired []string

	for {
		more, err := iterator.Next()
		if err != nil {
			logger.Warnf("iterate challenge records: %s", err)

			return
		}

		if !more {
			break
		}

		record, err := iterator.Value()
		if err != nil {
			logger.Warnf("read challenge record: %s", err)

			continue
		}

		challenge := &Challenge{}
		if err := json.Unmarshal(record, challenge); err != nil {
			logger.Warnf("unmarshal challenge record during sweep: %s", err)

			continue
		}

		if now.After(challenge.ExpiresAt) {
			expired = append(expired, challenge.ID)
		}
	}

	for _, id := range expired {
		if err := e.store.Delete(id); err != nil {
			logger.Warnf("delete expired challenge %q: %s", id, err)
		}

		if err := e.store.Delete(claimKeyPrefix + id); err != nil {
			logger.Warnf("delete claim marker for challenge %q: %s", id, err)
		}
	}

	if len(expired) > 0 {
		logger.Debugf("swept %d expired challenge(s)", len(expired))
	}
}
