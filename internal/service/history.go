package service

import (
	"context"
	"fmt"

	"github.com/cropdesk/cropdesk/internal/store"
	"github.com/cropdesk/cropdesk/internal/store/model"
	"github.com/cropdesk/cropdesk/pkg/log"
)

// DefaultHistoryPageSize bounds how many records Recent returns.
const DefaultHistoryPageSize = 10

type HistoryService struct {
	store    store.Store
	pageSize int
	logger   *log.StructuredLogger
}

func NewHistoryService(s store.Store, pageSize int) *HistoryService {
	if pageSize <= 0 {
		pageSize = DefaultHistoryPageSize
	}
	return &HistoryService{
		store:    s,
		pageSize: pageSize,
		logger:   log.NewDebugLogger("history_service"),
	}
}

// Record appends the history of one completed job.
func (h *HistoryService) Record(ctx context.Context, userID, tool, jobID string, artifacts []Artifact) (*model.HistoryRecord, error) {
	tracer := h.logger.WithContext(ctx).Operation("record_history").
		WithString("user_id", userID).
		WithString("tool", tool).
		WithString("job_id", jobID).
		Build()

	record := model.HistoryRecord{
		UserID:    userID,
		ToolName:  tool,
		JobID:     jobID,
		Artifacts: make([]model.ArtifactSummary, 0, len(artifacts)),
	}
	for _, a := range artifacts {
		record.Artifacts = append(record.Artifacts, model.ArtifactSummary{Name: a.Name, URL: a.URL})
	}

	ctx, err := h.store.NewTransactionContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}

	created, err := h.store.History().Append(ctx, record)
	if err != nil {
		_, _ = store.Rollback(ctx)
		tracer.Error(err).Log()
		return nil, fmt.Errorf("failed to append history: %w", err)
	}

	if _, err := store.Commit(ctx); err != nil {
		tracer.Error(err).Log()
		return nil, fmt.Errorf("failed to commit history: %w", err)
	}

	tracer.Success().WithInt("artifacts", len(artifacts)).Log()
	return created, nil
}

// Recent returns the newest records of a user, at most one page.
func (h *HistoryService) Recent(ctx context.Context, userID string) (model.HistoryList, error) {
	tracer := h.logger.WithContext(ctx).Operation("recent_history").
		WithString("user_id", userID).
		Build()

	records, err := h.store.History().List(ctx,
		store.NewHistoryQueryFilter().ByUserID(userID),
		store.NewHistoryQueryOptions().WithSortOrder(store.SortByNewest).WithLimit(h.pageSize),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}

	tracer.Success().WithInt("count", len(records)).Log()
	return records, nil
}
