package services

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/HamedShams/sprint-pulse/internal/domain"
)

const (
	telegramChunk = 3800
	slowestLimit  = 5
)

var (
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+`)
	phoneRe = regexp.MustCompile(`\b\+?\d[\d\-\s]{7,}\b`)
	urlRe   = regexp.MustCompile(`https?://[^\s]+`)
	tokenRe = regexp.MustCompile(`(?i)\b(?:token|secret|password|apikey|api_key|bearer)[:=\s]+[A-Za-z0-9\-\._~+/]{8,}\b`)
)

// redact removes obvious PII and secrets from free text before it leaves for the LLM.
func redact(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = emailRe.ReplaceAllString(s, "<email>")
	s = urlRe.ReplaceAllString(s, "<url>")
	s = phoneRe.ReplaceAllString(s, "<phone>")
	s = tokenRe.ReplaceAllString(s, "<secret>")
	return s
}

var mdV2 = strings.NewReplacer(
	"_", "\\_", "*", "\\*", "[", "\\[", "]", "\\]", "(", "\\(", ")", "\\)", "~", "\\~", "`", "\\`",
	">", "\\>", "#", "\\#", "+", "\\+", "-", "\\-", "=", "\\=", "|", "\\|", "{", "\\{", "}", "\\}",
	".", "\\.", "!", "\\!", "\\", "\\\\",
)

func esc(s string) string { return mdV2.Replace(s) }

func hours(v float64) string { return esc(fmt.Sprintf("%.2fh", v)) }

// renderSummary formats the summary table as MarkdownV2.
func renderSummary(table domain.SummaryTable) string {
	b := &strings.Builder{}
	fmt.Fprintf(b, "*Sprint Pulse*\n")
	if len(table.Rows) == 0 {
		fmt.Fprintf(b, "%s\n", esc("No status periods recorded yet."))
		return b.String()
	}
	fmt.Fprintf(b, "%s\n\n", esc("Average hours per status"))
	for _, row := range table.Rows {
		fmt.Fprintf(b, "*%s* %s %s\n", esc(row.SprintName), esc("-"), hours(row.Total))
		for i, col := range table.Columns {
			if i >= len(row.Averages) {
				break
			}
			fmt.Fprintf(b, "  %s: %s\n", esc(col), hours(row.Averages[i]))
		}
	}
	return b.String()
}

// slowest returns the longest periods of the run, longest first.
func slowest(res RunResult, n int) []domain.SprintRecord {
	var all []domain.SprintRecord
	for _, e := range res.Exports {
		all = append(all, e.Records...)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].DurationHours > all[j].DurationHours })
	if len(all) > n {
		all = all[:n]
	}
	return all
}

func (s *Service) renderDigest(ctx context.Context, res RunResult) string {
	b := &strings.Builder{}
	b.WriteString(renderSummary(res.Summary))

	names := make([]string, 0, len(res.Exports))
	for _, e := range res.Exports {
		names = append(names, e.Sprint.Name)
	}
	fmt.Fprintf(b, "\n%s %s\n", esc("Exported:"), esc(strings.Join(names, ", ")))

	top := slowest(res, slowestLimit)
	if len(top) == 0 {
		return b.String()
	}
	fmt.Fprintf(b, "\n*%s*\n", esc("Slowest periods"))
	lines := make([]string, 0, len(top))
	for i, r := range top {
		fmt.Fprintf(b, "%d\\. %s %s %s\n", i+1, esc(r.IssueKey), esc(r.Status), hours(r.DurationHours))
		lines = append(lines, fmt.Sprintf("%s (%s) spent %.2fh in %s during %s", r.IssueKey, redact(r.IssueSummary), r.DurationHours, r.Status, r.SprintName))
	}

	if s.llm != nil && strings.TrimSpace(s.cfg.OpenAIKey) != "" {
		note, err := s.llm.Commentary(ctx, renderPlainSummary(res.Summary), lines)
		if err != nil {
			s.log.Error().Err(err).Msg("llm commentary failed")
		} else if note = strings.TrimSpace(note); note != "" {
			fmt.Fprintf(b, "\n*%s*\n%s\n", esc("Notes"), esc(note))
		}
	}
	return b.String()
}

func renderPlainSummary(table domain.SummaryTable) string {
	b := &strings.Builder{}
	for _, row := range table.Rows {
		fmt.Fprintf(b, "%s: total %.2fh", row.SprintName, row.Total)
		for i, col := range table.Columns {
			if i < len(row.Averages) {
				fmt.Fprintf(b, ", %s %.2fh", col, row.Averages[i])
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (s *Service) deliverDigest(ctx context.Context, res RunResult) {
	if s.tg == nil || len(s.cfg.TelegramChatIDs) == 0 {
		return
	}
	digest := s.renderDigest(ctx, res)
	for _, chat := range s.cfg.TelegramChatIDs {
		s.sendChunked(ctx, chat, digest)
	}
}

func (s *Service) sendChunked(ctx context.Context, chatID int64, text string) {
	for _, p := range chunkText(text, telegramChunk) {
		if err := s.tg.SendMarkdownV2(ctx, chatID, p); err != nil {
			s.log.Error().Err(err).Int64("chat", chatID).Msg("telegram send failed")
		}
	}
}

// chunkText splits text into chunks of up to max runes, attempting to break on line boundaries.
func chunkText(s string, max int) []string {
	if max <= 0 {
		return []string{s}
	}
	var chunks []string
	cur := ""
	curlen := 0
	for _, ln := range strings.Split(s, "\n") {
		rl := len([]rune(ln))
		// a single line longer than max is hard-split
		if rl > max {
			if curlen > 0 {
				chunks = append(chunks, cur)
				cur, curlen = "", 0
			}
			r := []rune(ln)
			for i := 0; i < rl; {
				j := i + max
				if j > rl {
					j = rl
				} else if j-i > 1 && danglingEscape(r[i:j]) {
					// keep a MarkdownV2 escape together with the character it escapes
					j--
				}
				chunks = append(chunks, string(r[i:j]))
				i = j
			}
			continue
		}
		extra := rl
		if curlen > 0 {
			extra++
		}
		switch {
		case curlen+extra > max:
			chunks = append(chunks, cur)
			cur, curlen = ln, rl
		case curlen == 0:
			cur, curlen = ln, rl
		default:
			cur += "\n" + ln
			curlen += extra
		}
	}
	if curlen > 0 {
		chunks = append(chunks, cur)
	}
	if len(chunks) == 0 {
		chunks = []string{""}
	}
	return chunks
}

// danglingEscape reports whether r ends in an odd run of backslashes.
func danglingEscape(r []rune) bool {
	n := 0
	for k := len(r) - 1; k >= 0 && r[k] == '\\'; k-- {
		n++
	}
	return n%2 == 1
}
