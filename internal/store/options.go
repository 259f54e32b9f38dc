package store

import (
	"gorm.io/gorm"
)

type SortOrder int

const (
	Unsorted SortOrder = iota
	SortByNewest
)

type BaseQuerier struct {
	QueryFn []func(tx *gorm.DB) *gorm.DB
}

type HistoryQueryFilter BaseQuerier

func NewHistoryQueryFilter() *HistoryQueryFilter {
	return &HistoryQueryFilter{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

func (qf *HistoryQueryFilter) ByUserID(userID string) *HistoryQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("user_id = ?", userID)
	})
	return qf
}

type HistoryQueryOptions BaseQuerier

func NewHistoryQueryOptions() *HistoryQueryOptions {
	return &HistoryQueryOptions{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

func (o *HistoryQueryOptions) WithSortOrder(sort SortOrder) *HistoryQueryOptions {
	o.QueryFn = append(o.QueryFn, func(tx *gorm.DB) *gorm.DB {
		if sort == SortByNewest {
			return tx.Order("created_at desc").Order("id desc")
		}
		return tx
	})
	return o
}

func (o *HistoryQueryOptions) WithLimit(limit int) *HistoryQueryOptions {
	o.QueryFn = append(o.QueryFn, func(tx *gorm.DB) *gorm.DB {
		if limit <= 0 {
			return tx
		}
		return tx.Limit(limit)
	})
	return o
}
