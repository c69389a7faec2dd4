/*
Copyright Attestra Labs. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package experiment

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/attestra/authbench/pkg/authenticator"
)

// Report is the aggregated outcome of one experiment run.
type Report struct {
	GeneratedAt time.Time   `json:"generatedAt"`
	Outcomes    []Outcome   `json:"outcomes"`
	Stats       []KindStats `json:"stats"`
}

// SubjectResult is the per-subject view of one authenticator's outcome.
type SubjectResult struct {
	Success                 bool   `json:"success"`
	LatencyMS               int64  `json:"latencyMs"`
	DisclosedAttributeCount int    `json:"disclosedAttributeCount"`
	Failure                 string `json:"failure,omitempty"`
}

// Results maps each authenticator kind to its per-subject results.
func (r *Report) Results() map[authenticator.Kind]map[string]SubjectResult {
	results := map[authenticator.Kind]map[string]SubjectResult{}

	for _, outcome := range r.Outcomes {
		bySubject, ok := results[outcome.Kind]
		if !ok {
			bySubject = map[string]SubjectResult{}
			results[outcome.Kind] = bySubject
		}

		bySubject[outcome.SubjectID] = SubjectResult{
			Success:                 outcome.Success,
			LatencyMS:               outcome.Latency.Milliseconds(),
			DisclosedAttributeCount: outcome.DisclosedAttributes,
			Failure:                 outcome.Failure,
		}
	}

	return results
}

// Render writes the per-kind statistics as an aligned table, followed by the
// failure breakdown of any kind that recorded failures.
func (r *Report) Render(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 1, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "AUTHENTICATOR\tATTEMPTS\tSUCCESSES\tRATE\tMEAN\tP50\tP95\tP99\tDISCLOSURE")

	for _, stats := range r.Stats {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.1f%%\t%s\t%s\t%s\t%s\t%.2f\n",
			stats.Kind,
			stats.Attempts,
			stats.Successes,
			stats.SuccessRate*100,
			renderLatency(stats.MeanLatency),
			renderLatency(stats.P50Latency),
			renderLatency(stats.P95Latency),
			renderLatency(stats.P99Latency),
			stats.DisclosureRatio)
	}

	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush report table: %w", err)
	}

	for _, stats := range r.Stats {
		if len(stats.Failures) == 0 {
			continue
		}

		classes := make([]string, 0, len(stats.Failures))
		for class := range stats.Failures {
			classes = append(classes, class)
		}

		sort.Strings(classes)

		if _, err := fmt.Fprintf(w, "%s failures:", stats.Kind); err != nil {
			return err
		}

		for _, class := range classes {
			if _, err := fmt.Fprintf(w, " %s=%d", class, stats.Failures[class]); err != nil {
				return err
			}
		}

		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}

	return nil
}

func renderLatency(d time.Duration) string {
	return d.Round(time.Microsecond).String()
}
