package services_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/rs/zerolog"

	"github.com/HamedShams/sprint-pulse/internal/config"
	"github.com/HamedShams/sprint-pulse/internal/domain"
	"github.com/HamedShams/sprint-pulse/internal/lock"
	"github.com/HamedShams/sprint-pulse/internal/services"
)

func at(day, hour int) time.Time { return time.Date(2024, 1, day, hour, 0, 0, 0, time.UTC) }

func sprintIssues() []domain.Issue {
	return []domain.Issue{
		{
			Key: "A-1", Summary: "Login page", Type: "Story", Status: "In Progress", Created: at(1, 0),
			History: []domain.HistoryEntry{{At: at(2, 0), Items: []domain.FieldChange{{Field: "status", From: "To Do", To: "In Progress"}}}},
		},
		{Key: "A-2", Summary: "Mail ops@example.com about it", Type: "Task", Status: "Review", Created: at(2, 12)},
		{Key: "A-3", Summary: "Prod incident", Type: "Problem", Status: "In Progress", Created: at(1, 0)},
	}
}

var _ = Describe("Service", func() {
	var (
		ctx   context.Context
		cfg   config.Config
		jira  *mockJira
		store *memStore
		tg    *mockNotifier
		llm   *mockCommentator
		svc   *services.Service
	)

	build := func() {
		svc = services.New(cfg, zerolog.Nop(), jira, store, nil, tg, llm)
		svc.SetClock(func() time.Time { return at(3, 0) })
	}

	BeforeEach(func() {
		ctx = context.Background()
		cfg = config.Config{
			JiraBoardID:       7,
			TrackedStatuses:   []string{"In Progress", "Review"},
			ExcludedIssueType: "Problem",
		}
		jira = &mockJira{
			activeFn: func(_ context.Context, boardID int64) (domain.Sprint, error) {
				Expect(boardID).To(Equal(int64(7)))
				return domain.Sprint{ID: "55", Name: "Sprint 55", State: "active"}, nil
			},
			issuesFn: func(_ context.Context, sprintID string) ([]domain.Issue, error) {
				return sprintIssues(), nil
			},
		}
		store = &memStore{}
		tg = &mockNotifier{}
		llm = &mockCommentator{}
		build()
	})

	Describe("Run", func() {
		It("exports the active sprint when no ids are given", func() {
			res, err := svc.Run(ctx, nil)

			Expect(err).NotTo(HaveOccurred())
			Expect(res.Exports).To(HaveLen(1))
			Expect(res.Exports[0].Issues).To(Equal(3))
			Expect(res.Exports[0].Skipped).To(Equal(1))
			Expect(res.RecordCount()).To(Equal(3))

			Expect(store.records).To(HaveLen(3))
			first := store.records[0]
			Expect(first.SprintID).To(Equal("55"))
			Expect(first.SprintName).To(Equal("Sprint 55"))
			Expect(first.IssueKey).To(Equal("A-1"))
			Expect(first.Status).To(Equal("To Do"))
			Expect(first.DurationHours).To(Equal(24.0))
			Expect(store.records[1].Status).To(Equal("In Progress"))
			Expect(store.records[1].End).To(Equal(at(3, 0)))
			Expect(store.records[2].Status).To(Equal("Review"))
			Expect(store.records[2].DurationHours).To(Equal(12.0))
		})

		It("persists a summary over tracked statuses with a total over all of them", func() {
			_, err := svc.Run(ctx, nil)
			Expect(err).NotTo(HaveOccurred())

			Expect(store.replaced).To(Equal(1))
			Expect(store.summary.Columns).To(Equal([]string{"In Progress", "Review"}))
			Expect(store.summary.Rows).To(HaveLen(1))
			Expect(store.summary.Rows[0].SprintName).To(Equal("Sprint 55"))
			Expect(store.summary.Rows[0].Averages).To(Equal([]float64{24, 12}))
			Expect(store.summary.Rows[0].Total).To(Equal(60.0))
		})

		It("keeps the store cumulative and merges repeat exports of a sprint", func() {
			_, err := svc.Run(ctx, nil)
			Expect(err).NotTo(HaveOccurred())
			_, err = svc.Run(ctx, nil)
			Expect(err).NotTo(HaveOccurred())

			Expect(store.records).To(HaveLen(6))
			Expect(store.summary.Rows).To(HaveLen(1))
			Expect(store.summary.Rows[0].Averages).To(Equal([]float64{24, 12}))
		})

		It("recomputes averages across previously stored sprints", func() {
			store.records = []domain.SprintRecord{
				{SprintID: "54", SprintName: "Sprint 54", IssueKey: "A-0", Status: "Review", DurationHours: 4},
			}

			res, err := svc.Run(ctx, nil)

			Expect(err).NotTo(HaveOccurred())
			Expect(res.Summary.Rows).To(HaveLen(2))
			Expect(res.Summary.Rows[0].SprintName).To(Equal("Sprint 54"))
			Expect(res.Summary.Rows[0].Averages).To(Equal([]float64{0, 4}))
			Expect(res.Summary.Rows[1].SprintName).To(Equal("Sprint 55"))
		})

		It("uses the configured sprint ids and carries on past a failing sprint", func() {
			cfg.SprintIDs = []int64{10, 11}
			jira.sprintFn = func(_ context.Context, id int64) (domain.Sprint, error) {
				if id == 10 {
					return domain.Sprint{}, errors.New("jira api status=404")
				}
				return domain.Sprint{ID: "11", Name: "Sprint 11"}, nil
			}
			build()

			res, err := svc.Run(ctx, nil)

			Expect(err).To(MatchError(ContainSubstring("resolve sprint 10")))
			Expect(res.Exports).To(HaveLen(1))
			Expect(res.Exports[0].Sprint.Name).To(Equal("Sprint 11"))

			last, err := svc.GetLastRun(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(last).NotTo(BeNil())
			Expect(last.Sprints).To(Equal("10,11"))
			Expect(last.Success).To(BeFalse())
			Expect(last.RecordsWritten).To(Equal(3))
			Expect(last.FinishedAt).NotTo(BeNil())
		})

		It("exports the active sprint on RunActive even with sprint ids configured", func() {
			cfg.SprintIDs = []int64{10}
			jira.sprintFn = func(context.Context, int64) (domain.Sprint, error) {
				Fail("configured sprint ids must not be resolved")
				return domain.Sprint{}, nil
			}
			build()

			res, err := svc.RunActive(ctx)

			Expect(err).NotTo(HaveOccurred())
			Expect(res.Exports).To(HaveLen(1))
			Expect(res.Exports[0].Sprint.ID).To(Equal("55"))
		})

		It("fails when the board has no active sprint", func() {
			noActive := errors.New("jira: no active sprint found")
			jira.activeFn = func(context.Context, int64) (domain.Sprint, error) {
				return domain.Sprint{}, noActive
			}

			_, err := svc.Run(ctx, nil)

			Expect(err).To(MatchError(noActive))
			Expect(store.records).To(BeEmpty())
			Expect(store.replaced).To(BeZero())
		})

		It("does not replace the summary when appending fails", func() {
			store.appendErr = errors.New("disk full")

			_, err := svc.Run(ctx, nil)

			Expect(err).To(MatchError(ContainSubstring("disk full")))
			Expect(store.replaced).To(BeZero())
		})
	})

	Describe("digest", func() {
		BeforeEach(func() {
			cfg.TelegramChatIDs = []int64{-100, -200}
			cfg.OpenAIKey = "sk-test"
		})

		It("sends the summary to every configured chat with redacted commentary input", func() {
			var got []string
			llm.commentaryFn = func(_ context.Context, digest string, slowest []string) (string, error) {
				got = slowest
				Expect(digest).To(ContainSubstring("Sprint 55: total 60.00h"))
				return "Review is quick.", nil
			}
			build()

			_, err := svc.Run(ctx, nil)

			Expect(err).NotTo(HaveOccurred())
			Expect(tg.sent).To(HaveLen(2))
			Expect(tg.sent[0].chatID).To(Equal(int64(-100)))
			Expect(tg.sent[1].chatID).To(Equal(int64(-200)))
			Expect(tg.sent[0].markdown).To(BeTrue())
			Expect(tg.sent[0].text).To(ContainSubstring("*Sprint 55*"))
			Expect(tg.sent[0].text).To(ContainSubstring("Review is quick\\."))

			Expect(got).To(HaveLen(3))
			Expect(got[2]).To(ContainSubstring("<email>"))
			Expect(got[2]).NotTo(ContainSubstring("ops@example.com"))
		})

		It("still sends the digest when commentary fails", func() {
			llm.commentaryFn = func(context.Context, string, []string) (string, error) {
				return "", errors.New("rate limited")
			}
			build()

			_, err := svc.Run(ctx, nil)

			Expect(err).NotTo(HaveOccurred())
			Expect(tg.sent).To(HaveLen(2))
			Expect(tg.sent[0].text).NotTo(ContainSubstring("Notes"))
		})
	})

	Describe("HandleChatCommand", func() {
		It("replies to /summary with the current table", func() {
			store.records = []domain.SprintRecord{{SprintName: "Sprint 9", Status: "Review", DurationHours: 1.5}}

			Expect(svc.HandleChatCommand(ctx, 42, "/summary@sprint_pulse_bot")).To(Succeed())

			Expect(tg.sent).To(HaveLen(1))
			Expect(tg.sent[0].chatID).To(Equal(int64(42)))
			Expect(tg.sent[0].text).To(ContainSubstring("Sprint 9"))
			Expect(tg.sent[0].text).To(ContainSubstring("1\\.50h"))
		})

		It("runs an export on /export and reports the outcome", func() {
			Expect(svc.HandleChatCommand(ctx, 42, "/export")).To(Succeed())

			Expect(store.records).To(HaveLen(3))
			Expect(tg.sent).To(HaveLen(1))
			Expect(tg.sent[0].text).To(Equal("Export finished: 1 sprint(s), 3 record(s)."))
		})

		It("refuses /export while another export holds the lock", func() {
			locker := lock.NewLocal()
			svc.SetLocker(locker)
			held, err := locker.TryAdvisoryLock(ctx, services.ExportLockKey)
			Expect(err).NotTo(HaveOccurred())
			Expect(held).To(BeTrue())

			Expect(svc.HandleChatCommand(ctx, 42, "/export")).To(Succeed())

			Expect(store.records).To(BeEmpty())
			Expect(tg.sent).To(HaveLen(1))
			Expect(tg.sent[0].text).To(ContainSubstring("already running"))
		})

		It("releases the export lock once a chat export finishes", func() {
			locker := lock.NewLocal()
			svc.SetLocker(locker)

			Expect(svc.HandleChatCommand(ctx, 42, "/export")).To(Succeed())
			Expect(store.records).To(HaveLen(3))

			ok, err := locker.TryAdvisoryLock(ctx, services.ExportLockKey)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
		})

		It("answers /help and ignores other text", func() {
			Expect(svc.HandleChatCommand(ctx, 42, "/help")).To(Succeed())
			Expect(svc.HandleChatCommand(ctx, 42, "hello there")).To(Succeed())

			Expect(tg.sent).To(HaveLen(1))
			Expect(tg.sent[0].markdown).To(BeTrue())
		})
	})

	It("lists board sprints", func() {
		jira.boardSprintsFn = func(_ context.Context, boardID int64) ([]domain.Sprint, error) {
			return []domain.Sprint{{ID: "1", Name: "S1"}, {ID: "2", Name: "S2"}}, nil
		}

		sprints, err := svc.ListSprints(ctx)

		Expect(err).NotTo(HaveOccurred())
		Expect(sprints).To(HaveLen(2))
	})
})
