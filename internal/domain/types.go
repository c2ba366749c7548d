/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package domain

import (
	"math"
	"time"
)

const (
	// StatusField is the changelog field name carrying workflow transitions.
	StatusField = "status"
	// StatusClosed is the terminal status; time spent in it is never reported.
	StatusClosed = "Closed"
	// ISOTime matches the millisecond UTC layout used in the exported sheets.
	ISOTime = "2006-01-02T15:04:05.000Z"
)

type Sprint struct {
	ID    string
	Name  string
	State string
}

type FieldChange struct {
	Field string
	From  string
	To    string
}

type HistoryEntry struct {
	At    time.Time
	Items []FieldChange
}

type Issue struct {
	Key     string
	Summary string
	Type    string
	Status  string
	Created time.Time
	History []HistoryEntry
}

type ChangeEvent struct {
	From string
	To   string
	At   time.Time
}

type StatusInterval struct {
	Status string
	Start  time.Time
	End    time.Time
}

func (i StatusInterval) Duration() time.Duration { return i.End.Sub(i.Start) }

// SprintRecord is one exported row: a single interval of a single issue within a sprint.
type SprintRecord struct {
	SprintID      string
	SprintName    string
	IssueKey      string
	IssueSummary  string
	Status        string
	Start         time.Time
	End           time.Time
	DurationHours float64
}

type SummaryRow struct {
	SprintName string
	Averages   []float64
	Total      float64
}

// SummaryTable holds per-sprint averages; Averages of each row align with Columns.
type SummaryTable struct {
	Columns []string
	Rows    []SummaryRow
}

type JobRun struct {
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at"`
	Sprints        string     `json:"sprints"`
	IssuesScanned  int        `json:"issues_scanned"`
	RecordsWritten int        `json:"records_written"`
	Success        bool       `json:"success"`
	Error          string     `json:"error"`
}

// HoursBetween returns end-start in hours rounded to two decimals.
func HoursBetween(start, end time.Time) float64 {
	return Round2(float64(end.Sub(start).Milliseconds()) / 3600000)
}

func Round2(v float64) float64 { return math.Round(v*100) / 100 }
