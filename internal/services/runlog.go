package services

import (
	"context"
	"sync"
	"time"

	"github.com/HamedShams/sprint-pulse/internal/domain"
)

// MemoryRunLog keeps job runs in process memory. It backs the run log when the store is a workbook.
type MemoryRunLog struct {
	mu   sync.Mutex
	runs []domain.JobRun
}

func NewMemoryRunLog() *MemoryRunLog { return &MemoryRunLog{} }

func (m *MemoryRunLog) StartJobRun(_ context.Context, sprints string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, domain.JobRun{StartedAt: time.Now().UTC(), Sprints: sprints})
	return int64(len(m.runs)), nil
}

func (m *MemoryRunLog) FinishJobRun(_ context.Context, id int64, issuesScanned, recordsWritten int, success bool, errStr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id <= 0 || int(id) > len(m.runs) {
		return nil
	}
	now := time.Now().UTC()
	r := &m.runs[id-1]
	r.FinishedAt = &now
	r.IssuesScanned = issuesScanned
	r.RecordsWritten = recordsWritten
	r.Success = success
	r.Error = errStr
	return nil
}

func (m *MemoryRunLog) GetLastRun(_ context.Context) (*domain.JobRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.runs) == 0 {
		return nil, nil
	}
	r := m.runs[len(m.runs)-1]
	return &r, nil
}
