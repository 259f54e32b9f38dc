package store_test

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cropdesk/cropdesk/internal/config"
	"github.com/cropdesk/cropdesk/internal/store"
	"github.com/cropdesk/cropdesk/internal/store/model"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

var _ = Describe("history store", Ordered, func() {
	var (
		s      store.Store
		gormdb *gorm.DB
	)

	BeforeAll(func() {
		cfg, err := config.NewDefault()
		Expect(err).To(BeNil())
		cfg.Database.Name = filepath.Join(GinkgoT().TempDir(), "history.db")

		db, err := store.InitDB(cfg)
		Expect(err).To(BeNil())

		s = store.NewStore(db)
		gormdb = db
		Expect(s.InitialMigration(context.TODO())).To(Succeed())
	})

	AfterAll(func() {
		s.Close()
	})

	AfterEach(func() {
		gormdb.Exec("DELETE FROM history_records;")
	})

	Context("append", func() {
		It("stores the record with its artifacts", func() {
			created, err := s.History().Append(context.TODO(), model.HistoryRecord{
				UserID:   "user-1",
				ToolName: "flipkart",
				JobID:    "job-1",
				Artifacts: []model.ArtifactSummary{
					{Name: "a.pdf", URL: "/api/v1/download/flipkart/job-1/a.pdf"},
				},
			})
			Expect(err).To(BeNil())
			Expect(created.ID).ToNot(BeZero())
			Expect(created.CreatedAt).ToNot(BeZero())

			records, err := s.History().List(context.TODO(), store.NewHistoryQueryFilter().ByUserID("user-1"), nil)
			Expect(err).To(BeNil())
			Expect(records).To(HaveLen(1))
			Expect(records[0].JobID).To(Equal("job-1"))
			Expect(records[0].Artifacts).To(HaveLen(1))
			Expect(records[0].Artifacts[0].Name).To(Equal("a.pdf"))
		})

		It("rejects a second record for the same job", func() {
			_, err := s.History().Append(context.TODO(), model.HistoryRecord{UserID: "u", ToolName: "flipkart", JobID: "job-dup"})
			Expect(err).To(BeNil())
			_, err = s.History().Append(context.TODO(), model.HistoryRecord{UserID: "u", ToolName: "flipkart", JobID: "job-dup"})
			Expect(err).To(MatchError(store.ErrDuplicateKey))
		})
	})

	Context("list", func() {
		BeforeEach(func() {
			base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
			for i := 0; i < 12; i++ {
				_, err := s.History().Append(context.TODO(), model.HistoryRecord{
					UserID:    "user-1",
					ToolName:  "flipkart",
					JobID:     fmt.Sprintf("job-%02d", i),
					CreatedAt: base.Add(time.Duration(i) * time.Minute),
				})
				Expect(err).To(BeNil())
			}
			_, err := s.History().Append(context.TODO(), model.HistoryRecord{UserID: "user-2", ToolName: "meesho", JobID: "other", CreatedAt: base})
			Expect(err).To(BeNil())
		})

		It("returns the newest records first, capped", func() {
			records, err := s.History().List(context.TODO(),
				store.NewHistoryQueryFilter().ByUserID("user-1"),
				store.NewHistoryQueryOptions().WithSortOrder(store.SortByNewest).WithLimit(10))
			Expect(err).To(BeNil())
			Expect(records).To(HaveLen(10))
			Expect(records[0].JobID).To(Equal("job-11"))
			Expect(records[9].JobID).To(Equal("job-02"))
		})

		It("filters by user", func() {
			records, err := s.History().List(context.TODO(), store.NewHistoryQueryFilter().ByUserID("user-2"), nil)
			Expect(err).To(BeNil())
			Expect(records).To(HaveLen(1))
			Expect(records[0].JobID).To(Equal("other"))

			records, err = s.History().List(context.TODO(), store.NewHistoryQueryFilter().ByUserID("user-1"), nil)
			Expect(err).To(BeNil())
			Expect(records).To(HaveLen(12))
		})

		It("aggregates statistics", func() {
			stats, err := s.History().Statistics(context.TODO())
			Expect(err).To(BeNil())
			Expect(stats.TotalRecords).To(Equal(int64(13)))
			Expect(stats.TotalUsers).To(Equal(int64(2)))
			Expect(stats.ByTool).To(Equal(map[string]int64{"flipkart": 12, "meesho": 1}))
		})
	})

	Context("transaction", func() {
		It("rolls back an append", func() {
			ctx, err := s.NewTransactionContext(context.TODO())
			Expect(err).To(BeNil())

			_, err = s.History().Append(ctx, model.HistoryRecord{UserID: "u", ToolName: "flipkart", JobID: "job-tx"})
			Expect(err).To(BeNil())

			_, err = store.Rollback(ctx)
			Expect(err).To(BeNil())

			records, err := s.History().List(context.TODO(), store.NewHistoryQueryFilter().ByUserID("u"), nil)
			Expect(err).To(BeNil())
			Expect(records).To(BeEmpty())
		})

		It("joins a transaction already open in the context", func() {
			ctx, err := s.NewTransactionContext(context.TODO())
			Expect(err).To(BeNil())
			inner, err := s.NewTransactionContext(ctx)
			Expect(err).To(BeNil())
			Expect(store.FromContext(inner)).To(BeIdenticalTo(store.FromContext(ctx)))

			_, err = s.History().Append(inner, model.HistoryRecord{UserID: "u", ToolName: "flipkart", JobID: "job-nested"})
			Expect(err).To(BeNil())
			_, err = store.Rollback(ctx)
			Expect(err).To(BeNil())

			records, err := s.History().List(context.TODO(), store.NewHistoryQueryFilter().ByUserID("u"), nil)
			Expect(err).To(BeNil())
			Expect(records).To(BeEmpty())
		})

		It("commits an append", func() {
			ctx, err := s.NewTransactionContext(context.TODO())
			Expect(err).To(BeNil())

			_, err = s.History().Append(ctx, model.HistoryRecord{UserID: "u", ToolName: "flipkart", JobID: "job-tx"})
			Expect(err).To(BeNil())

			_, err = store.Commit(ctx)
			Expect(err).To(BeNil())

			records, err := s.History().List(context.TODO(), store.NewHistoryQueryFilter().ByUserID("u"), nil)
			Expect(err).To(BeNil())
			Expect(records).To(HaveLen(1))
		})
	})
})
