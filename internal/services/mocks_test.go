package services_test

import (
	"context"
	"sync"

	"github.com/HamedShams/sprint-pulse/internal/domain"
)

type mockJira struct {
	activeFn       func(ctx context.Context, boardID int64) (domain.Sprint, error)
	sprintFn       func(ctx context.Context, id int64) (domain.Sprint, error)
	boardSprintsFn func(ctx context.Context, boardID int64) ([]domain.Sprint, error)
	issuesFn       func(ctx context.Context, sprintID string) ([]domain.Issue, error)
}

func (m *mockJira) ActiveSprint(ctx context.Context, boardID int64) (domain.Sprint, error) {
	if m.activeFn != nil {
		return m.activeFn(ctx, boardID)
	}
	return domain.Sprint{}, nil
}

func (m *mockJira) Sprint(ctx context.Context, id int64) (domain.Sprint, error) {
	if m.sprintFn != nil {
		return m.sprintFn(ctx, id)
	}
	return domain.Sprint{}, nil
}

func (m *mockJira) BoardSprints(ctx context.Context, boardID int64) ([]domain.Sprint, error) {
	if m.boardSprintsFn != nil {
		return m.boardSprintsFn(ctx, boardID)
	}
	return nil, nil
}

func (m *mockJira) SprintIssues(ctx context.Context, sprintID string) ([]domain.Issue, error) {
	if m.issuesFn != nil {
		return m.issuesFn(ctx, sprintID)
	}
	return nil, nil
}

// memStore is an in-memory cumulative store.
type memStore struct {
	mu        sync.Mutex
	records   []domain.SprintRecord
	summary   domain.SummaryTable
	replaced  int
	appendErr error
}

func (m *memStore) AppendRecords(_ context.Context, records []domain.SprintRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	m.records = append(m.records, records...)
	return nil
}

func (m *memStore) Records(_ context.Context) ([]domain.SprintRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.SprintRecord(nil), m.records...), nil
}

func (m *memStore) ReplaceSummary(_ context.Context, table domain.SummaryTable) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summary = table
	m.replaced++
	return nil
}

type sentMessage struct {
	chatID   int64
	text     string
	markdown bool
}

type mockNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (m *mockNotifier) SendMessagePlain(_ context.Context, chatID int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMessage{chatID: chatID, text: text})
	return nil
}

func (m *mockNotifier) SendMarkdownV2(_ context.Context, chatID int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMessage{chatID: chatID, text: text, markdown: true})
	return nil
}

type mockCommentator struct {
	commentaryFn func(ctx context.Context, digest string, slowest []string) (string, error)
}

func (m *mockCommentator) Commentary(ctx context.Context, digest string, slowest []string) (string, error) {
	if m.commentaryFn != nil {
		return m.commentaryFn(ctx, digest, slowest)
	}
	return "", nil
}
