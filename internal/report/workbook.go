/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package report

import (
	"context"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/HamedShams/sprint-pulse/internal/domain"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const (
	DataSheet    = "Data"
	SummarySheet = "Summary"

	defaultSheet = "Sheet1"
)

var dataHeader = []string{"Sprint ID", "Sprint Name", "Issue Key", "Summary", "Status", "Start", "End", "Duration (h)"}

// Workbook is the cumulative store kept in a single xlsx file.
type Workbook struct {
	path string
	log  zerolog.Logger
	mu   sync.Mutex
}

func NewWorkbook(path string, log zerolog.Logger) *Workbook {
	return &Workbook{path: path, log: log}
}

func (w *Workbook) Path() string { return w.path }

func (w *Workbook) open() (*excelize.File, bool, error) {
	if _, err := os.Stat(w.path); err != nil {
		if os.IsNotExist(err) {
			return excelize.NewFile(), true, nil
		}
		return nil, false, errors.Wrapf(err, "failed to stat workbook %s", w.path)
	}
	f, err := excelize.OpenFile(w.path)
	if err != nil {
		return nil, false, errors.Wrapf(err, "failed to open workbook %s", w.path)
	}
	return f, false, nil
}

func (w *Workbook) save(f *excelize.File, created bool) error {
	if created {
		if idx, _ := f.GetSheetIndex(defaultSheet); idx != -1 && f.SheetCount > 1 {
			if err := f.DeleteSheet(defaultSheet); err != nil {
				return errors.Wrap(err, "failed to drop default sheet")
			}
		}
	}
	if err := f.SaveAs(w.path); err != nil {
		return errors.Wrapf(err, "failed to save workbook %s", w.path)
	}
	return nil
}

// AppendRecords adds rows after the existing ones, writing the header first on an empty sheet.
func (w *Workbook) AppendRecords(_ context.Context, records []domain.SprintRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, created, err := w.open()
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.NewSheet(DataSheet); err != nil {
		return errors.Wrap(err, "failed to create data sheet")
	}
	rows, err := f.GetRows(DataSheet)
	if err != nil {
		return errors.Wrap(err, "failed to read data sheet")
	}
	next := len(rows) + 1
	if len(rows) == 0 {
		if err := setRow(f, DataSheet, 1, toCells(dataHeader)); err != nil {
			return err
		}
		next = 2
	}
	for i, r := range records {
		row := []interface{}{
			r.SprintID, r.SprintName, r.IssueKey, r.IssueSummary, r.Status,
			r.Start.UTC().Format(domain.ISOTime), r.End.UTC().Format(domain.ISOTime),
			domain.Round2(r.DurationHours),
		}
		if err := setRow(f, DataSheet, next+i, row); err != nil {
			return err
		}
	}
	if err := w.save(f, created); err != nil {
		return err
	}
	w.log.Debug().Int("records", len(records)).Str("file", w.path).Msg("workbook data appended")
	return nil
}

// Records reads every data row of the workbook. Blank rows are skipped.
func (w *Workbook) Records(_ context.Context) ([]domain.SprintRecord, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, created, err := w.open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if created {
		return nil, nil
	}
	if idx, _ := f.GetSheetIndex(DataSheet); idx == -1 {
		return nil, nil
	}
	rows, err := f.GetRows(DataSheet)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read data sheet")
	}
	out := make([]domain.SprintRecord, 0, len(rows))
	for i, row := range rows {
		if i == 0 && len(row) > 0 && row[0] == dataHeader[0] {
			continue
		}
		if blank(row) {
			continue
		}
		out = append(out, parseRow(pad(row, len(dataHeader))))
	}
	return out, nil
}

// ReplaceSummary clears the summary sheet in place and writes the table. The sheet itself is kept
// because charts in the workbook may point at it.
func (w *Workbook) ReplaceSummary(_ context.Context, table domain.SummaryTable) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, created, err := w.open()
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.NewSheet(SummarySheet); err != nil {
		return errors.Wrap(err, "failed to create summary sheet")
	}
	old, err := f.GetRows(SummarySheet)
	if err != nil {
		return errors.Wrap(err, "failed to read summary sheet")
	}
	for r, row := range old {
		for c := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return errors.Wrap(err, "bad summary coordinates")
			}
			if err := f.SetCellValue(SummarySheet, cell, nil); err != nil {
				return errors.Wrap(err, "failed to clear summary cell")
			}
		}
	}

	header := append([]string{"Sprint Name"}, table.Columns...)
	header = append(header, "AvgDuration")
	if err := setRow(f, SummarySheet, 1, toCells(header)); err != nil {
		return err
	}
	for i, r := range table.Rows {
		row := make([]interface{}, 0, len(r.Averages)+2)
		row = append(row, r.SprintName)
		for _, v := range r.Averages {
			row = append(row, v)
		}
		row = append(row, r.Total)
		if err := setRow(f, SummarySheet, i+2, row); err != nil {
			return err
		}
	}
	return w.save(f, created)
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return errors.Wrap(err, "bad row coordinates")
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return errors.Wrapf(err, "failed to write %s row %d", sheet, row)
	}
	return nil
}

func toCells(in []string) []interface{} {
	out := make([]interface{}, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func pad(row []string, n int) []string {
	for len(row) < n {
		row = append(row, "")
	}
	return row
}

func parseRow(row []string) domain.SprintRecord {
	rec := domain.SprintRecord{
		SprintID:     row[0],
		SprintName:   row[1],
		IssueKey:     row[2],
		IssueSummary: row[3],
		Status:       row[4],
	}
	rec.Start, _ = time.Parse(time.RFC3339Nano, row[5])
	rec.End, _ = time.Parse(time.RFC3339Nano, row[6])
	rec.DurationHours, _ = strconv.ParseFloat(strings.TrimSpace(row[7]), 64)
	return rec
}
