package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/HamedShams/sprint-pulse/internal/config"
	"github.com/HamedShams/sprint-pulse/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	mu       sync.Mutex
	lastRun  *domain.JobRun
	table    domain.SummaryTable
	err      error
	commands []string
	done     chan struct{}
}

func (f *fakeService) GetLastRun(context.Context) (*domain.JobRun, error) { return f.lastRun, f.err }

func (f *fakeService) Summary(context.Context) (domain.SummaryTable, error) { return f.table, f.err }

func (f *fakeService) HandleChatCommand(_ context.Context, chatID int64, text string) error {
	f.mu.Lock()
	f.commands = append(f.commands, text)
	f.mu.Unlock()
	if f.done != nil {
		f.done <- struct{}{}
	}
	return nil
}

type fakeRunner struct {
	busy bool
	got  [][]int64
}

func (f *fakeRunner) Trigger(ids []int64) bool {
	f.got = append(f.got, ids)
	return !f.busy
}

func newRouter(cfg config.Config, svc *fakeService, run *fakeRunner) http.Handler {
	cfg.AppEnv = "test"
	return NewRouter(cfg, zerolog.Nop(), svc, run)
}

func do(h http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	w := do(newRouter(config.Config{}, &fakeService{}, &fakeRunner{}), http.MethodGet, "/healthz", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())
}

func TestLastRun(t *testing.T) {
	svc := &fakeService{lastRun: &domain.JobRun{Sprints: "55", Success: true, RecordsWritten: 3}}
	w := do(newRouter(config.Config{}, svc, &fakeRunner{}), http.MethodGet, "/admin/last-run", "", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var got domain.JobRun
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "55", got.Sprints)
	assert.Equal(t, 3, got.RecordsWritten)

	w = do(newRouter(config.Config{}, &fakeService{}, &fakeRunner{}), http.MethodGet, "/admin/last-run", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRunNow(t *testing.T) {
	run := &fakeRunner{}
	h := newRouter(config.Config{}, &fakeService{}, run)

	w := do(h, http.MethodPost, "/admin/run?sprint=10,11", "", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, run.got, 1)
	assert.Equal(t, []int64{10, 11}, run.got[0])

	w = do(h, http.MethodPost, "/admin/run", "", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Nil(t, run.got[1])

	w = do(h, http.MethodPost, "/admin/run?sprint=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Len(t, run.got, 2)

	run.busy = true
	w = do(h, http.MethodPost, "/admin/run", "", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSummary(t *testing.T) {
	svc := &fakeService{table: domain.SummaryTable{
		Columns: []string{"In Progress", "Review"},
		Rows:    []domain.SummaryRow{{SprintName: "Sprint 1", Averages: []float64{24, 1.5}, Total: 30}},
	}}
	w := do(newRouter(config.Config{}, svc, &fakeRunner{}), http.MethodGet, "/summary", "", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"columns":["In Progress","Review"],"rows":[{"sprint_name":"Sprint 1","averages":{"In Progress":24,"Review":1.5},"avg_duration":30}]}`, w.Body.String())
}

func TestSummary_Error(t *testing.T) {
	w := do(newRouter(config.Config{}, &fakeService{err: errors.New("boom")}, &fakeRunner{}), http.MethodGet, "/summary", "", nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestTelegramWebhook_RejectsBadSecret(t *testing.T) {
	h := newRouter(config.Config{TelegramWebhookSecret: "s3cret"}, &fakeService{}, &fakeRunner{})

	w := do(h, http.MethodPost, "/telegram/webhook", `{}`, map[string]string{"X-Telegram-Bot-Api-Secret-Token": "nope"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(newRouter(config.Config{}, &fakeService{}, &fakeRunner{}), http.MethodPost, "/telegram/webhook", `{}`, nil)
	assert.Equal(t, http.StatusForbidden, w.Code, "webhook stays closed without a configured secret")
}

func TestTelegramWebhook_DispatchesCommands(t *testing.T) {
	svc := &fakeService{done: make(chan struct{}, 1)}
	h := newRouter(config.Config{TelegramWebhookSecret: "s3cret", TelegramChatIDs: []int64{42}}, svc, &fakeRunner{})

	w := do(h, http.MethodPost, "/telegram/webhook/s3cret", `{"update_id":1,"message":{"message_id":2,"text":"/summary","chat":{"id":42}}}`, nil)
	require.Equal(t, http.StatusOK, w.Code)

	select {
	case <-svc.done:
	case <-time.After(2 * time.Second):
		t.Fatal("command was not dispatched")
	}
	svc.mu.Lock()
	assert.Equal(t, []string{"/summary"}, svc.commands)
	svc.mu.Unlock()
}

func TestTelegramWebhook_IgnoresUnknownChats(t *testing.T) {
	svc := &fakeService{}
	h := newRouter(config.Config{TelegramWebhookSecret: "s3cret", TelegramChatIDs: []int64{42}}, svc, &fakeRunner{})

	w := do(h, http.MethodPost, "/telegram/webhook", `{"message":{"text":"/export","chat":{"id":7}}}`,
		map[string]string{"X-Telegram-Bot-Api-Secret-Token": "s3cret"})

	assert.Equal(t, http.StatusOK, w.Code)
	time.Sleep(20 * time.Millisecond)
	svc.mu.Lock()
	assert.Empty(t, svc.commands)
	svc.mu.Unlock()
}
