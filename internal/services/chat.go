package services

import (
	"context"
	"fmt"
	"strings"
)

// HandleChatCommand answers a bot command sent from chatID. Unknown text is ignored.
func (s *Service) HandleChatCommand(ctx context.Context, chatID int64, text string) error {
	if chatID == 0 || s.tg == nil {
		return nil
	}
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil
	}
	cmd := strings.ToLower(fields[0])
	if at := strings.Index(cmd, "@"); at > 0 {
		cmd = cmd[:at]
	}

	switch cmd {
	case "/start", "/help":
		return s.SendHelp(ctx, chatID)
	case "/summary":
		table, err := s.Summary(ctx)
		if err != nil {
			_ = s.tg.SendMessagePlain(ctx, chatID, "Could not compute the summary: "+err.Error())
			return err
		}
		s.sendChunked(ctx, chatID, renderSummary(table))
		return nil
	case "/export":
		return s.chatExport(ctx, chatID)
	default:
		return nil
	}
}

func (s *Service) chatExport(ctx context.Context, chatID int64) error {
	if s.lock != nil {
		ok, err := s.lock.TryAdvisoryLock(ctx, ExportLockKey)
		if err != nil {
			_ = s.tg.SendMessagePlain(ctx, chatID, "Export failed: "+err.Error())
			return err
		}
		if !ok {
			return s.tg.SendMessagePlain(ctx, chatID, "An export is already running, try again later.")
		}
		defer func() {
			if err := s.lock.AdvisoryUnlock(context.Background(), ExportLockKey); err != nil {
				s.log.Error().Err(err).Msg("unlock failed")
			}
		}()
	}
	res, err := s.RunActive(ctx)
	msg := fmt.Sprintf("Export finished: %d sprint(s), %d record(s).", len(res.Exports), res.RecordCount())
	if err != nil {
		msg = "Export failed: " + err.Error()
	}
	return s.tg.SendMessagePlain(ctx, chatID, msg)
}

func (s *Service) SendHelp(ctx context.Context, chatID int64) error {
	help := esc("Sprint Pulse Bot") + "\n" +
		esc("Time spent per workflow status, averaged per sprint.") + "\n\n" +
		esc("Commands:") + "\n" +
		esc("/summary - current per-sprint averages") + "\n" +
		esc("/export - export the active sprint and refresh the summary") + "\n" +
		esc("/help - this message")
	return s.tg.SendMarkdownV2(ctx, chatID, help)
}
