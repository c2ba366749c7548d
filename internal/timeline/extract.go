/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */

// Package timeline turns an issue changelog into the periods the issue spent in each status.
package timeline

import (
	"sort"
	"time"

	"github.com/HamedShams/sprint-pulse/internal/domain"
)

// StatusChanges flattens the history into status transitions ordered by time.
// Transitions sharing a timestamp keep their history order.
func StatusChanges(history []domain.HistoryEntry) []domain.ChangeEvent {
	var out []domain.ChangeEvent
	for _, h := range history {
		for _, it := range h.Items {
			if it.Field != domain.StatusField {
				continue
			}
			out = append(out, domain.ChangeEvent{From: it.From, To: it.To, At: h.At})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out
}

// cursor is the scan state: the status the issue is in and since when.
type cursor struct {
	status string
	since  time.Time
}

func (c cursor) closeAt(end time.Time, acc []domain.StatusInterval) []domain.StatusInterval {
	if c.status == domain.StatusClosed {
		return acc
	}
	return append(acc, domain.StatusInterval{Status: c.status, Start: c.since, End: end})
}

// Extract returns the ordered status intervals of issue. The last status stays open until now.
// Stretches spent in the closed status are dropped, so a close-and-reopen leaves a gap.
func Extract(issue domain.Issue, now time.Time) []domain.StatusInterval {
	changes := StatusChanges(issue.History)

	cur := cursor{status: issue.Status, since: issue.Created}
	if len(changes) > 0 && changes[0].From != "" {
		cur.status = changes[0].From
	}

	var out []domain.StatusInterval
	for _, ch := range changes {
		out = cur.closeAt(ch.At, out)
		cur = cursor{status: ch.To, since: ch.At}
	}
	return cur.closeAt(now, out)
}
