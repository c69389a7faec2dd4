/*
Copyright Attestra Labs. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package experiment

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/attestra/authbench/pkg/authenticator"
	"github.com/attestra/authbench/pkg/credential"
	"github.com/attestra/authbench/pkg/identity"
	"github.com/attestra/authbench/pkg/proof"
)

// Collector accumulates attempt outcomes and aggregates them per authenticator
// kind. It is safe for concurrent Add calls.
type Collector struct {
	mu       sync.Mutex
	outcomes []Outcome
}

// NewCollector returns an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Add records an outcome. Outcomes must keep referential integrity with the
// session store: a success that references no session means the runner and the
// backends disagree about what happened, which is a defect, not a data point.
func (c *Collector) Add(outcome Outcome) error {
	if outcome.SubjectID == "" || outcome.Kind == "" {
		return errors.New("outcome is missing its subject or kind")
	}

	if outcome.Success && outcome.SessionID == "" {
		return fmt.Errorf("successful outcome for subject %s (%s) references no session",
			outcome.SubjectID, outcome.Kind)
	}

	if outcome.Err != nil {
		outcome.Failure = Classify(outcome.Err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.outcomes = append(c.outcomes, outcome)

	return nil
}

// Len returns how many outcomes have been recorded.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.outcomes)
}

// KindStats aggregates the outcomes of one authenticator kind.
type KindStats struct {
	Kind            authenticator.Kind `json:"kind"`
	Attempts        int                `json:"attempts"`
	Successes       int                `json:"successes"`
	SuccessRate     float64            `json:"successRate"`
	MeanLatency     time.Duration      `json:"meanLatency"`
	P50Latency      time.Duration      `json:"p50Latency"`
	P95Latency      time.Duration      `json:"p95Latency"`
	P99Latency      time.Duration      `json:"p99Latency"`
	DisclosureRatio float64            `json:"disclosureRatio"`
	Failures        map[string]int     `json:"failures,omitempty"`
}

// Report aggregates the collected outcomes. The collector stays usable afterwards;
// the report snapshots the outcomes recorded so far.
func (c *Collector) Report() *Report {
	c.mu.Lock()
	outcomes := make([]Outcome, len(c.outcomes))
	copy(outcomes, c.outcomes)
	c.mu.Unlock()

	grouped := map[authenticator.Kind][]Outcome{}

	for _, outcome := range outcomes {
		grouped[outcome.Kind] = append(grouped[outcome.Kind], outcome)
	}

	kinds := make([]authenticator.Kind, 0, len(grouped))
	for kind := range grouped {
		kinds = append(kinds, kind)
	}

	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	stats := make([]KindStats, 0, len(kinds))

	for _, kind := range kinds {
		stats = append(stats, aggregate(kind, grouped[kind]))
	}

	return &Report{
		GeneratedAt: time.Now(),
		Outcomes:    outcomes,
		Stats:       stats,
	}
}

func aggregate(kind authenticator.Kind, outcomes []Outcome) KindStats {
	stats := KindStats{Kind: kind, Attempts: len(outcomes)}

	latencies := make([]time.Duration, 0, len(outcomes))

	var (
		totalLatency   time.Duration
		disclosedSum   int
		disclosableSum int
	)

	for _, outcome := range outcomes {
		latencies = append(latencies, outcome.Latency)
		totalLatency += outcome.Latency

		if outcome.Success {
			stats.Successes++
			disclosedSum += outcome.DisclosedAttributes
			disclosableSum += outcome.TotalAttributes
		}

		if outcome.Failure != "" {
			if stats.Failures == nil {
				stats.Failures = map[string]int{}
			}

			stats.Failures[outcome.Failure]++
		}
	}

	if stats.Attempts > 0 {
		stats.SuccessRate = float64(stats.Successes) / float64(stats.Attempts)
		stats.MeanLatency = totalLatency / time.Duration(stats.Attempts)
	}

	if disclosableSum > 0 {
		stats.DisclosureRatio = float64(disclosedSum) / float64(disclosableSum)
	}

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	stats.P50Latency = percentile(latencies, 50)
	stats.P95Latency = percentile(latencies, 95)
	stats.P99Latency = percentile(latencies, 99)

	return stats
}

// percentile returns the nearest-rank percentile of the sorted latencies.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	rank := int(math.Ceil(p / 100 * float64(len(sorted))))

	if rank < 1 {
		rank = 1
	}

	if rank > len(sorted) {
		rank = len(sorted)
	}

	return sorted[rank-1]
}

// Classify maps an attempt error to its failure class. Unrecognized errors,
// storage faults included, classify as Internal.
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, proof.ErrInvalidSecret):
		return "InvalidSecret"
	case errors.Is(err, proof.ErrReplayDetected):
		return "ReplayDetected"
	case errors.Is(err, proof.ErrChallengeExpired):
		return "ChallengeExpired"
	case errors.Is(err, credential.ErrUnknownIssuer):
		return "UnknownIssuer"
	case errors.Is(err, credential.ErrRevoked):
		return "Revoked"
	case errors.Is(err, identity.ErrDuplicateSubject):
		return "DuplicateSubject"
	case errors.Is(err, identity.ErrNotFound),
		errors.Is(err, credential.ErrNotFound):
		return "NotFound"
	case errors.Is(err, authenticator.ErrSessionExpired):
		return "SessionExpired"
	case errors.Is(err, authenticator.ErrSessionAborted):
		return "SessionAborted"
	case errors.Is(err, authenticator.ErrSessionNotFound):
		return "SessionNotFound"
	case errors.Is(err, authenticator.ErrChallengeClaimed):
		return "ChallengeClaimed"
	case errors.Is(err, authenticator.ErrInvalidTransition):
		return "InvalidTransition"
	case errors.Is(err, authenticator.ErrVerificationFailed),
		errors.Is(err, proof.ErrVerificationFailed),
		errors.Is(err, credential.ErrVerificationFailed):
		return "VerificationFailed"
	default:
		return "Internal"
	}
}
