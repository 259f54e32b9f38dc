package store

import (
	"context"
	"errors"

	"github.com/cropdesk/cropdesk/internal/store/model"
	"gorm.io/gorm"
)

type History interface {
	InitialMigration(ctx context.Context) error
	Append(ctx context.Context, record model.HistoryRecord) (*model.HistoryRecord, error)
	List(ctx context.Context, filter *HistoryQueryFilter, opts *HistoryQueryOptions) (model.HistoryList, error)
	Statistics(ctx context.Context) (model.HistoryStats, error)
}

type HistoryStore struct {
	db *gorm.DB
}

// Make sure we conform to History interface
var _ History = (*HistoryStore)(nil)

func NewHistoryStore(db *gorm.DB) History {
	return &HistoryStore{db: db}
}

func (h *HistoryStore) InitialMigration(ctx context.Context) error {
	return h.getDB(ctx).AutoMigrate(&model.HistoryRecord{})
}

func (h *HistoryStore) Append(ctx context.Context, record model.HistoryRecord) (*model.HistoryRecord, error) {
	if result := h.getDB(ctx).WithContext(ctx).Create(&record); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateKey
		}
		return nil, result.Error
	}
	return &record, nil
}

func (h *HistoryStore) List(ctx context.Context, filter *HistoryQueryFilter, opts *HistoryQueryOptions) (model.HistoryList, error) {
	var records model.HistoryList
	tx := h.getDB(ctx).WithContext(ctx).Model(&records)

	if filter != nil {
		for _, fn := range filter.QueryFn {
			tx = fn(tx)
		}
	}
	if opts != nil {
		for _, fn := range opts.QueryFn {
			tx = fn(tx)
		}
	}

	if result := tx.Find(&records); result.Error != nil {
		return nil, result.Error
	}
	return records, nil
}

func (h *HistoryStore) Statistics(ctx context.Context) (model.HistoryStats, error) {
	stats := model.HistoryStats{ByTool: map[string]int64{}}
	db := h.getDB(ctx).WithContext(ctx).Model(&model.HistoryRecord{})

	if err := db.Count(&stats.TotalRecords).Error; err != nil {
		return stats, err
	}
	if err := h.getDB(ctx).WithContext(ctx).Model(&model.HistoryRecord{}).Distinct("user_id").Count(&stats.TotalUsers).Error; err != nil {
		return stats, err
	}

	var rows []struct {
		ToolName string
		Total    int64
	}
	if err := h.getDB(ctx).WithContext(ctx).Model(&model.HistoryRecord{}).
		Select("tool_name, count(*) as total").
		Group("tool_name").
		Scan(&rows).Error; err != nil {
		return stats, err
	}
	for _, r := range rows {
		stats.ByTool[r.ToolName] = r.Total
	}
	return stats, nil
}

func (h *HistoryStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return h.db
}
