/*
Copyright Attestra Labs. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package authenticator

import (
	"encoding/json"
	"time"
)

// sweepLoop marks overdue sessions expired until the manager is closed. Expired
// sessions stay in the store so late completions still classify as expired.
func (s *Sessions) sweepLoop() {
	ticker := time.NewTicker(s.sweepEach)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweepExpired()
		}
	}
}

func (s *Sessions) sweepExpired() {
	iterator, err := s.store.Query(sessionTagName)
	if err != nil {
		logger.Warnf("query session records for sweep: %s", err)

		return
	}

	defer func() {
		if errClose := iterator.Close(); errClose != nil {
			logger.Warnf("close session sweep iterator: %s", errClose)
		}
	}()

	now := time.Now()

	var overdue []string

	for {
		more, err := iterator.Next()
		if err != nil {
			logger.Warnf("iterate session records: %s", err)

			return
		}

		if !more {
			break
		}

		record, err := iterator.Value()
		if err != nil {
			logger.Warnf("read session record: %s", err)

			continue
		}

		sess := &Session{}
		if err := json.Unmarshal(record, sess); err != nil {
			logger.Warnf("unmarshal session record during sweep: %s", err)

			continue
		}

		if !sess.State.Terminal() && now.After(sess.ExpiresAt) {
			overdue = append(overdue, sess.ID)
		}
	}

	for _, id := range overdue {
		// getExpiring re-checks under the stripe lock, so a session settled
		// between the scan and here is left alone.
		lock := s.lock(id)
		lock.Lock()

		if _, err := s.getExpiring(id); err != nil {
			logger.Warnf("expire session %s during sweep: %s", id, err)
		}

		lock.Unlock()
	}
}
