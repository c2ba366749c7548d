/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/HamedShams/sprint-pulse/internal/adapters/telegram"
	"github.com/HamedShams/sprint-pulse/internal/config"
	"github.com/HamedShams/sprint-pulse/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// chatCommandTimeout bounds a command run off the webhook request, /export included.
const chatCommandTimeout = 15 * time.Minute

type service interface {
	GetLastRun(ctx context.Context) (*domain.JobRun, error)
	Summary(ctx context.Context) (domain.SummaryTable, error)
	HandleChatCommand(ctx context.Context, chatID int64, text string) error
}

// runner starts an export in the background; it reports false when one is already running.
type runner interface {
	Trigger(sprintIDs []int64) bool
}

type Handlers struct {
	cfg    config.Config
	log    zerolog.Logger
	svc    service
	runner runner
}

func NewHandlers(cfg config.Config, log zerolog.Logger, svc service, runner runner) *Handlers {
	return &Handlers{cfg: cfg, log: log, svc: svc, runner: runner}
}

func (h *Handlers) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handlers) LastRun(c *gin.Context) {
	lr, err := h.svc.GetLastRun(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if lr == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no runs yet"})
		return
	}
	c.JSON(http.StatusOK, lr)
}

// RunNow queues an export. ?sprint=1,2 exports those sprints, otherwise the configured ones.
func (h *Handlers) RunNow(c *gin.Context) {
	var ids []int64
	if raw := strings.TrimSpace(c.Query("sprint")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil || id <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sprint id " + strconv.Quote(part)})
				return
			}
			ids = append(ids, id)
		}
	}
	if !h.runner.Trigger(ids) {
		c.JSON(http.StatusConflict, gin.H{"status": "already running"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

type summaryRow struct {
	SprintName  string             `json:"sprint_name"`
	Averages    map[string]float64 `json:"averages"`
	AvgDuration float64            `json:"avg_duration"`
}

func (h *Handlers) Summary(c *gin.Context) {
	table, err := h.svc.Summary(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	rows := make([]summaryRow, 0, len(table.Rows))
	for _, r := range table.Rows {
		avg := make(map[string]float64, len(table.Columns))
		for i, col := range table.Columns {
			if i < len(r.Averages) {
				avg[col] = r.Averages[i]
			}
		}
		rows = append(rows, summaryRow{SprintName: r.SprintName, Averages: avg, AvgDuration: r.Total})
	}
	columns := table.Columns
	if columns == nil {
		columns = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"columns": columns, "rows": rows})
}

func (h *Handlers) TelegramWebhook(c *gin.Context) {
	headerSecret := c.GetHeader("X-Telegram-Bot-Api-Secret-Token")
	pathSecret := c.Param("secret")
	// Accept either header secret (preferred) or path secret
	if h.cfg.TelegramWebhookSecret == "" || (headerSecret != h.cfg.TelegramWebhookSecret && pathSecret != h.cfg.TelegramWebhookSecret) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	h.log.Info().Str("ip", c.ClientIP()).Msg("telegram webhook received")

	var upd telegram.Update
	if err := c.ShouldBindJSON(&upd); err == nil && upd.Message != nil {
		chatID := upd.Message.Chat.ID
		text := upd.Message.Text
		// accept only configured chats if provided
		allowed := len(h.cfg.TelegramChatIDs) == 0
		for _, id := range h.cfg.TelegramChatIDs {
			if id == chatID {
				allowed = true
				break
			}
		}
		if allowed {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), chatCommandTimeout)
				defer cancel()
				if err := h.svc.HandleChatCommand(ctx, chatID, text); err != nil {
					h.log.Error().Err(err).Int64("chat", chatID).Msg("chat command failed")
				}
			}()
		}
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}
