/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */

// Package summary computes the per-sprint average time spent in each status.
package summary

import (
	"sort"

	"github.com/HamedShams/sprint-pulse/internal/domain"
)

type sprintGroup struct {
	name     string
	byStatus map[string][]float64
}

// Compute rebuilds the summary from the whole cumulative record table.
// Columns are the observed statuses present in tracked, alphabetically.
// The total of a row sums the averages of every observed status, tracked or not.
func Compute(records []domain.SprintRecord, tracked []string) domain.SummaryTable {
	var groups []*sprintGroup
	index := map[string]*sprintGroup{}
	seen := map[string]struct{}{}
	var statuses []string

	for _, r := range records {
		if r.SprintName == "" || r.Status == "" {
			continue
		}
		g, ok := index[r.SprintName]
		if !ok {
			g = &sprintGroup{name: r.SprintName, byStatus: map[string][]float64{}}
			index[r.SprintName] = g
			groups = append(groups, g)
		}
		g.byStatus[r.Status] = append(g.byStatus[r.Status], r.DurationHours)
		if _, ok := seen[r.Status]; !ok {
			seen[r.Status] = struct{}{}
			statuses = append(statuses, r.Status)
		}
	}
	sort.Strings(statuses)

	allowed := make(map[string]struct{}, len(tracked))
	for _, s := range tracked {
		allowed[s] = struct{}{}
	}

	table := domain.SummaryTable{}
	for _, s := range statuses {
		if _, ok := allowed[s]; ok {
			table.Columns = append(table.Columns, s)
		}
	}

	for _, g := range groups {
		row := domain.SummaryRow{SprintName: g.name, Averages: make([]float64, 0, len(table.Columns))}
		total := 0.0
		for _, s := range statuses {
			avg := mean(g.byStatus[s])
			total += avg
			if _, ok := allowed[s]; ok {
				row.Averages = append(row.Averages, domain.Round2(avg))
			}
		}
		row.Total = domain.Round2(total)
		table.Rows = append(table.Rows, row)
	}
	return table
}

func mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}
