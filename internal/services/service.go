/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/HamedShams/sprint-pulse/internal/config"
	"github.com/HamedShams/sprint-pulse/internal/domain"
	"github.com/HamedShams/sprint-pulse/internal/summary"
	"github.com/HamedShams/sprint-pulse/internal/timeline"
	"github.com/rs/zerolog"
)

type JiraClient interface {
	ActiveSprint(ctx context.Context, boardID int64) (domain.Sprint, error)
	Sprint(ctx context.Context, id int64) (domain.Sprint, error)
	BoardSprints(ctx context.Context, boardID int64) ([]domain.Sprint, error)
	SprintIssues(ctx context.Context, sprintID string) ([]domain.Issue, error)
}

// RecordStore owns the cumulative record table and the summary derived from it.
type RecordStore interface {
	AppendRecords(ctx context.Context, records []domain.SprintRecord) error
	Records(ctx context.Context) ([]domain.SprintRecord, error)
	ReplaceSummary(ctx context.Context, table domain.SummaryTable) error
}

type RunLog interface {
	StartJobRun(ctx context.Context, sprints string) (int64, error)
	FinishJobRun(ctx context.Context, id int64, issuesScanned, recordsWritten int, success bool, errStr string) error
	GetLastRun(ctx context.Context) (*domain.JobRun, error)
}

type Notifier interface {
	SendMessagePlain(ctx context.Context, chatID int64, text string) error
	SendMarkdownV2(ctx context.Context, chatID int64, text string) error
}

type Commentator interface {
	Commentary(ctx context.Context, digest string, slowest []string) (string, error)
}

// ExportLockKey guards every export so only one writer touches the record store at a time.
const ExportLockKey int64 = 424242

// Locker is satisfied by the Postgres repository and by the lock package.
type Locker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (bool, error)
	AdvisoryUnlock(ctx context.Context, key int64) error
}

type Service struct {
	cfg   config.Config
	log   zerolog.Logger
	jira  JiraClient
	store RecordStore
	runs  RunLog
	tg    Notifier
	llm   Commentator
	lock  Locker
	now   func() time.Time
}

// New wires the service. tg and llm may be nil when Telegram or OpenAI are not configured.
func New(cfg config.Config, log zerolog.Logger, jira JiraClient, store RecordStore, runs RunLog, tg Notifier, llm Commentator) *Service {
	if runs == nil {
		runs = NewMemoryRunLog()
	}
	return &Service{cfg: cfg, log: log, jira: jira, store: store, runs: runs, tg: tg, llm: llm, now: time.Now}
}

// SetClock replaces the time source used to close still-open intervals.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// SetLocker makes exports started from chat commands take ExportLockKey first.
func (s *Service) SetLocker(l Locker) { s.lock = l }

type SprintExport struct {
	Sprint  domain.Sprint
	Issues  int
	Skipped int
	Records []domain.SprintRecord
}

type RunResult struct {
	Exports []SprintExport
	Summary domain.SummaryTable
}

func (r RunResult) RecordCount() int {
	n := 0
	for _, e := range r.Exports {
		n += len(e.Records)
	}
	return n
}

// Run exports the given sprints in order. With no ids the configured SPRINT_IDS are used, and with
// none configured the active sprint of the board is exported. A failing sprint does not stop the
// others; all failures are returned joined.
func (s *Service) Run(ctx context.Context, sprintIDs []int64) (RunResult, error) {
	if len(sprintIDs) == 0 {
		sprintIDs = s.cfg.SprintIDs
	}
	return s.run(ctx, sprintIDs)
}

// RunActive exports the board's active sprint regardless of SPRINT_IDS.
func (s *Service) RunActive(ctx context.Context) (RunResult, error) {
	return s.run(ctx, nil)
}

func (s *Service) run(ctx context.Context, sprintIDs []int64) (RunResult, error) {
	label := "active"
	if len(sprintIDs) > 0 {
		parts := make([]string, len(sprintIDs))
		for i, id := range sprintIDs {
			parts[i] = strconv.FormatInt(id, 10)
		}
		label = strings.Join(parts, ",")
	}

	runID, err := s.runs.StartJobRun(ctx, label)
	if err != nil {
		s.log.Error().Err(err).Msg("start job run failed")
	}
	s.log.Info().Str("sprints", label).Msg("export: start")

	var (
		res     RunResult
		runErrs []error
		scanned int
	)
	defer func() {
		if runID == 0 {
			return
		}
		errStr := ""
		if joined := errors.Join(runErrs...); joined != nil {
			errStr = joined.Error()
		}
		if err := s.runs.FinishJobRun(context.WithoutCancel(ctx), runID, scanned, res.RecordCount(), len(runErrs) == 0, errStr); err != nil {
			s.log.Error().Err(err).Msg("finish job run failed")
		}
	}()

	var sprints []domain.Sprint
	if len(sprintIDs) == 0 {
		sp, err := s.jira.ActiveSprint(ctx, s.cfg.JiraBoardID)
		if err != nil {
			runErrs = append(runErrs, fmt.Errorf("resolve active sprint: %w", err))
			return res, errors.Join(runErrs...)
		}
		sprints = append(sprints, sp)
	} else {
		for _, id := range sprintIDs {
			sp, err := s.jira.Sprint(ctx, id)
			if err != nil {
				s.log.Error().Err(err).Int64("sprint", id).Msg("resolve sprint failed")
				runErrs = append(runErrs, fmt.Errorf("resolve sprint %d: %w", id, err))
				continue
			}
			sprints = append(sprints, sp)
		}
	}

	for _, sp := range sprints {
		exp, table, err := s.ExportSprint(ctx, sp)
		scanned += exp.Issues
		if err != nil {
			s.log.Error().Err(err).Str("sprint", sp.Name).Msg("export failed")
			runErrs = append(runErrs, fmt.Errorf("export sprint %s: %w", sp.ID, err))
			continue
		}
		res.Exports = append(res.Exports, exp)
		res.Summary = table
	}

	if len(res.Exports) > 0 {
		s.deliverDigest(ctx, res)
	}
	s.log.Info().Int("sprints", len(res.Exports)).Int("records", res.RecordCount()).Int("errors", len(runErrs)).Msg("export: done")
	return res, errors.Join(runErrs...)
}

// ExportSprint fetches the sprint's issues, appends their intervals to the store and refreshes
// the summary over the whole store.
func (s *Service) ExportSprint(ctx context.Context, sprint domain.Sprint) (SprintExport, domain.SummaryTable, error) {
	exp := SprintExport{Sprint: sprint}
	issues, err := s.jira.SprintIssues(ctx, sprint.ID)
	if err != nil {
		return exp, domain.SummaryTable{}, fmt.Errorf("fetch issues: %w", err)
	}
	exp.Issues = len(issues)

	for _, iss := range issues {
		if s.cfg.ExcludedIssueType != "" && iss.Type == s.cfg.ExcludedIssueType {
			exp.Skipped++
			continue
		}
		intervals := timeline.Extract(iss, s.now())
		exp.Records = append(exp.Records, Flatten(sprint, iss, intervals)...)
	}
	s.log.Info().Str("sprint", sprint.Name).Int("issues", exp.Issues).Int("skipped", exp.Skipped).Int("records", len(exp.Records)).Msg("sprint intervals extracted")

	if err := s.store.AppendRecords(ctx, exp.Records); err != nil {
		return exp, domain.SummaryTable{}, fmt.Errorf("append records: %w", err)
	}
	table, err := s.RefreshSummary(ctx)
	if err != nil {
		return exp, domain.SummaryTable{}, err
	}
	return exp, table, nil
}

// RefreshSummary recomputes the summary from every stored record and persists it.
func (s *Service) RefreshSummary(ctx context.Context) (domain.SummaryTable, error) {
	table, err := s.Summary(ctx)
	if err != nil {
		return table, err
	}
	if err := s.store.ReplaceSummary(ctx, table); err != nil {
		return table, fmt.Errorf("replace summary: %w", err)
	}
	return table, nil
}

// Summary recomputes the summary table without persisting it.
func (s *Service) Summary(ctx context.Context) (domain.SummaryTable, error) {
	records, err := s.store.Records(ctx)
	if err != nil {
		return domain.SummaryTable{}, fmt.Errorf("read records: %w", err)
	}
	return summary.Compute(records, s.cfg.TrackedStatuses), nil
}

func (s *Service) ListSprints(ctx context.Context) ([]domain.Sprint, error) {
	return s.jira.BoardSprints(ctx, s.cfg.JiraBoardID)
}

func (s *Service) GetLastRun(ctx context.Context) (*domain.JobRun, error) {
	return s.runs.GetLastRun(ctx)
}

// Flatten turns an issue's intervals into sprint records.
func Flatten(sprint domain.Sprint, issue domain.Issue, intervals []domain.StatusInterval) []domain.SprintRecord {
	out := make([]domain.SprintRecord, 0, len(intervals))
	for _, iv := range intervals {
		out = append(out, domain.SprintRecord{
			SprintID:      sprint.ID,
			SprintName:    sprint.Name,
			IssueKey:      issue.Key,
			IssueSummary:  issue.Summary,
			Status:        iv.Status,
			Start:         iv.Start,
			End:           iv.End,
			DurationHours: domain.HoursBetween(iv.Start, iv.End),
		})
	}
	return out
}
